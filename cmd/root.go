package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/emotion-go/cmd/analyze"
	"github.com/tphakala/emotion-go/cmd/app"
	"github.com/tphakala/emotion-go/cmd/capture"
	"github.com/tphakala/emotion-go/cmd/recovery"
	"github.com/tphakala/emotion-go/cmd/sessions"
	"github.com/tphakala/emotion-go/internal/buildinfo"
)

// RootCommand creates and returns the root command
func RootCommand(build *buildinfo.Context) *cobra.Command {
	a := app.New(build)
	var configFile string

	rootCmd := &cobra.Command{
		Use:          "emotion-go",
		Short:        "Real-time emotion analysis capture client",
		Version:      fmt.Sprintf("%s (built %s)", build.Version(), build.BuildDate()),
		SilenceUsage: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, &configFile); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		capture.Command(a),
		analyze.Command(a),
		recovery.Command(a),
		sessions.Command(a),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return a.Init(configFile)
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		a.Close()
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	rootCmd.PersistentFlags().StringVarP(configFile, "config", "c", "", "Path to config.yaml (default: search the standard locations)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
