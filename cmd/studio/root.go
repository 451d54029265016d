package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/studio/internal/output"
	"github.com/jackzampolin/studio/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	dotenvFile   string
)

var rootCmd = &cobra.Command{
	Use:   "studio",
	Short: "Episode audio production pipeline",
	Long: `Studio turns a narration transcript into a published podcast episode.

The pipeline includes:
  - Transcript chunking and bounded, retrying speech synthesis
  - Recursive batch merging of the synthesized segments
  - An ordered post-production effects chain with fallback
  - Final assembly with intro/outro bumpers and episode metadata`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		f, err := output.ParseFormat(outputFormat)
		if err != nil {
			return err
		}
		output.SetFormat(f)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.studio/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "studio home directory (default: ~/.studio)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "table", "output format: table, yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&dotenvFile, "env-file", ".env", "dotenv file with storage and provider secrets",
	)

	rootCmd.AddCommand(versionCmd)
}
