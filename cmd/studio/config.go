package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/studio/internal/config"
	"github.com/jackzampolin/studio/internal/effects"
	"github.com/jackzampolin/studio/internal/home"
	"github.com/jackzampolin/studio/internal/output"
)

var (
	configForce  bool
	configPreset string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage studio configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config file",
	Long: `Write the default configuration to <home>/config.yaml (or --config).

With --preset, the default effects chain is also written as a TOML preset
that effects.preset_file can point at.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		path := cfgFile
		if path == "" {
			path = h.ConfigPath()
		}
		if err := writeNew(path, configForce, config.WriteDefault); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)

		if configPreset == "" {
			return nil
		}
		data, err := effects.MarshalPreset(effects.DefaultChain(effects.DefaultFadeSeconds))
		if err != nil {
			return err
		}
		err = writeNew(configPreset, configForce, func(p string) error {
			return os.WriteFile(p, data, 0o644)
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configPreset)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		format := output.CurrentFormat()
		if format == output.FormatTable {
			format = output.FormatYAML
		}
		return output.To(cmd.OutOrStdout(), format, a.config.Get().Redacted())
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite existing files")
	configInitCmd.Flags().StringVar(&configPreset, "preset", "", "also write the default effects preset to this path")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func writeNew(path string, force bool, write func(string) error) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return write(path)
}
