package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/studio/internal/output"
	"github.com/jackzampolin/studio/internal/voices"
)

var voicesCheck bool

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "List the configured provider's voices",
	Long: `List the voices offered by synthesis.provider. The configured default
voice is marked with '*'. With --check, exit non-zero when the configured
voice is not offered.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		ctx := cmd.Context()
		provider, voice, err := newProvider(ctx, a.config.Get())
		if err != nil {
			return err
		}
		if c, ok := provider.(io.Closer); ok {
			defer c.Close()
		}

		if voicesCheck {
			if err := voices.Check(ctx, provider, voice); err != nil {
				return err
			}
			a.logger.Info("configured voice is available", "provider", provider.Name(), "voice", voice)
			return nil
		}

		list, err := voices.List(ctx, provider, voice)
		if err != nil {
			return err
		}
		return output.Print(voices.Table(list))
	},
}

func init() {
	voicesCmd.Flags().BoolVar(&voicesCheck, "check", false, "verify the configured voice instead of listing")
	rootCmd.AddCommand(voicesCmd)
}
