package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/latentlab/videodit/envconfig"
	"github.com/latentlab/videodit/progress"
	"github.com/latentlab/videodit/sample"
	"github.com/latentlab/videodit/video"
)

func newGenerateCmd() *cobra.Command {
	var opts struct {
		model    string
		negative string
		frames   int
		height   int
		width    int
		steps    int
		guidance float32
		seed     int64
		fps      int
		output   string
	}

	cmd := &cobra.Command{
		Use:   "generate PROMPT...",
		Short: "Generate a video clip from a text prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")

			pipeline, err := sample.LoadPipeline(envconfig.Models(), opts.model)
			if err != nil {
				return err
			}

			st, ss := pipeline.Decoder.Strides()
			if opts.frames%st != 0 {
				return fmt.Errorf("frame count %d must be a multiple of the temporal stride %d", opts.frames, st)
			}
			// Spatial sizes round up to the next stride multiple; frames
			// are rescaled to the exact requested size after decoding.
			lh := (opts.height + ss - 1) / ss
			lw := (opts.width + ss - 1) / ss

			var bar *progress.Bar
			var onStep func(step, total int)
			if !envconfig.Quiet() {
				bar = progress.NewBar("generating", opts.steps)
				onStep = func(step, total int) { bar.Set(step) }
			}
			pixels, err := pipeline.Generate(cmd.Context(), sample.Options{
				Prompt:         prompt,
				NegativePrompt: opts.negative,
				Frames:         opts.frames / st,
				Height:         lh,
				Width:          lw,
				Steps:          opts.steps,
				Guidance:       opts.guidance,
				Seed:           opts.seed,
				Progress:       onStep,
			})
			if err != nil {
				return err
			}
			if bar != nil {
				bar.Stop()
			}

			frames, err := video.Frames(pixels)
			if err != nil {
				return err
			}
			for i := range frames {
				frames[i] = video.Resize(frames[i], opts.width, opts.height)
			}
			paths, err := video.WriteFrames(opts.output, frames)
			if err != nil {
				return err
			}
			if err := video.WriteMeta(opts.output, video.Meta{
				FPS:    opts.fps,
				Frames: len(paths),
				Height: opts.height,
				Width:  opts.width,
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d frames to %s\n", len(paths), opts.output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "Model directory name under the models path")
	cmd.Flags().StringVar(&opts.negative, "negative", "", "Negative prompt")
	cmd.Flags().IntVar(&opts.frames, "frames", 16, "Output frame count in pixels")
	cmd.Flags().IntVar(&opts.height, "height", 256, "Output height in pixels")
	cmd.Flags().IntVar(&opts.width, "width", 256, "Output width in pixels")
	cmd.Flags().IntVar(&opts.steps, "steps", 30, "Denoising steps")
	cmd.Flags().Float32Var(&opts.guidance, "guidance", 5, "Classifier-free guidance scale")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "Noise seed")
	cmd.Flags().IntVar(&opts.fps, "fps", 24, "Playback rate recorded in clip.json")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "out", "Directory to write frames into")
	cmd.MarkFlagRequired("model")

	return cmd
}
