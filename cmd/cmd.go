// Package cmd builds the videodit command line interface.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/latentlab/videodit/envconfig"
)

// Version is overridden at link time for releases.
var Version = "0.0.0"

// appendEnvDocs adds environment variable documentation to a command's
// usage output.
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI assembles the root command with all subcommands.
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: envconfig.LogLevel(),
	})))

	rootCmd := &cobra.Command{
		Use:           "videodit",
		Short:         "Text-to-video diffusion transformer runner",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				fmt.Println("videodit version", Version)
				return
			}
			cmd.Print(cmd.UsageString())
		},
	}
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	generateCmd := newGenerateCmd()
	listCmd := newListCmd()
	serveCmd := newServeCmd()

	envVars := envconfig.AsMap()
	appendEnvDocs(generateCmd, []envconfig.EnvVar{
		envVars["VIDEODIT_MODELS"],
		envVars["VIDEODIT_ATTENTION"],
		envVars["VIDEODIT_THREADS"],
	})
	appendEnvDocs(serveCmd, []envconfig.EnvVar{
		envVars["VIDEODIT_DEBUG"],
		envVars["VIDEODIT_HOST"],
		envVars["VIDEODIT_MODELS"],
	})

	rootCmd.AddCommand(generateCmd, listCmd, serveCmd)
	return rootCmd
}
