package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/latentlab/videodit/dit"
	"github.com/latentlab/videodit/vae"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls", "variants"},
		Short:   "List network variants and autoencoders",
		Args:    cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows [][]string
			for _, name := range dit.Variants() {
				cfg, err := dit.VariantConfig(name)
				if err != nil {
					return err
				}
				layers := 0
				for _, n := range cfg.NumLayers {
					layers += n
				}
				rows = append(rows, []string{name, "sparse", strconv.Itoa(cfg.HiddenSize()), strconv.Itoa(layers)})
			}
			for _, name := range dit.UDiTVariants() {
				cfg, err := dit.UDiTVariantConfig(name)
				if err != nil {
					return err
				}
				layers := 0
				for _, n := range cfg.Depth {
					layers += n
				}
				rows = append(rows, []string{name, "udit", strconv.Itoa(cfg.HiddenSize), strconv.Itoa(layers)})
			}
			renderTable([]string{"NAME", "FAMILY", "HIDDEN", "LAYERS"}, rows)

			fmt.Println()
			rows = rows[:0]
			for _, id := range vae.IDs() {
				cfg, err := vae.Lookup(id)
				if err != nil {
					return err
				}
				rows = append(rows, []string{
					id,
					fmt.Sprintf("%dx%dx%d", cfg.TemporalStride, cfg.SpatialStride, cfg.SpatialStride),
					strconv.Itoa(cfg.Channels),
				})
			}
			renderTable([]string{"AUTOENCODER", "STRIDES", "CHANNELS"}, rows)
			return nil
		},
	}
}

func renderTable(header []string, rows [][]string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(rows)
	table.Render()
}
