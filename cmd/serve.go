package cmd

import (
	"github.com/spf13/cobra"

	"github.com/latentlab/videodit/server"
)

func newServeCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the generation server",
		Args:    cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.New(outDir).Serve(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&outDir, "output", "o", "out", "Directory to write generated frames into")
	return cmd
}
