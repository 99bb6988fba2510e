package sample

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/latentlab/videodit/dit"
	"github.com/latentlab/videodit/tensor"
	"github.com/latentlab/videodit/text"
	"github.com/latentlab/videodit/vae"
)

// Network is the denoising model boundary; both transformer families satisfy
// it.
type Network interface {
	Forward(dit.ForwardInput) (*tensor.Array, error)
}

// Pipeline wires the collaborators of one text-to-video generation: prompt
// embedding, the denoise loop with classifier-free guidance, and latent
// decoding.
type Pipeline struct {
	Model     Network
	Scheduler Scheduler
	Encoder   text.Encoder
	Tokenizer text.Tokenizer
	Decoder   vae.Autoencoder

	// LatentChannels is the model's input/output channel count.
	LatentChannels int
	// UsePooled feeds the encoder's pooled embedding to the model.
	UsePooled bool
}

// Options configure one generation call.
type Options struct {
	Prompt         string
	NegativePrompt string

	Frames int
	Height int
	Width  int

	Steps    int
	Guidance float32
	Seed     int64

	// Progress, when set, is called after every completed denoise step.
	Progress func(step, total int)
}

func (o Options) validate() error {
	if o.Prompt == "" {
		return fmt.Errorf("sample: prompt is required")
	}
	if o.Frames < 1 || o.Height < 1 || o.Width < 1 {
		return fmt.Errorf("sample: invalid extent %dx%dx%d", o.Frames, o.Height, o.Width)
	}
	if o.Steps < 1 {
		return fmt.Errorf("sample: need at least one step")
	}
	return nil
}

// GenerateLatent runs the denoise loop and returns the final latent
// [1, channels, frames, height, width] in latent units.
func (p *Pipeline) GenerateLatent(ctx context.Context, opts Options) (*tensor.Array, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	cond, condPool, condMask, err := p.embed(opts.Prompt)
	if err != nil {
		return nil, err
	}
	uncond, uncondPool, uncondMask, err := p.embed(opts.NegativePrompt)
	if err != nil {
		return nil, err
	}

	if err := p.Scheduler.SetTimesteps(opts.Steps); err != nil {
		return nil, err
	}
	timesteps := p.Scheduler.Timesteps()

	x := p.Scheduler.InitNoise(opts.Seed, 1, p.LatentChannels, opts.Frames, opts.Height, opts.Width)

	guided := opts.Guidance > 1
	caption := cond
	captionMask := condMask
	var pooled *tensor.Array
	if p.UsePooled {
		pooled = condPool
	}
	if guided {
		// One batched forward evaluates conditional and unconditional
		// branches together.
		caption = tensor.Concatenate([]*tensor.Array{cond, uncond}, 0)
		captionMask = tensor.Concatenate([]*tensor.Array{condMask, uncondMask}, 0)
		if p.UsePooled {
			pooled = tensor.Concatenate([]*tensor.Array{condPool, uncondPool}, 0)
		}
	}

	start := time.Now()
	for i, t := range timesteps {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		input := p.Scheduler.ScaleModelInput(x, i)
		batch := input
		ts := tensor.New([]float32{t}, 1)
		if guided {
			batch = tensor.Concatenate([]*tensor.Array{input, input}, 0)
			ts = tensor.New([]float32{t, t}, 2)
		}

		out, err := p.Model.Forward(dit.ForwardInput{
			Latent:   batch,
			Timestep: ts,
			Caption:  caption,
			Pooled:   pooled,
			TextMask: captionMask,
		})
		if err != nil {
			return nil, fmt.Errorf("sample: step %d: %w", i, err)
		}

		if guided {
			c := tensor.Slice(out, []int{0, 0, 0, 0, 0}, []int{1, out.Dim(1), out.Dim(2), out.Dim(3), out.Dim(4)})
			u := tensor.Slice(out, []int{1, 0, 0, 0, 0}, []int{2, out.Dim(1), out.Dim(2), out.Dim(3), out.Dim(4)})
			out = tensor.Add(u, tensor.MulScalar(tensor.Sub(c, u), opts.Guidance))
		}

		x, err = p.Scheduler.Step(out, x, i)
		if err != nil {
			return nil, err
		}
		if opts.Progress != nil {
			opts.Progress(i+1, len(timesteps))
		}
	}
	slog.Debug("denoise loop finished", "steps", len(timesteps), "elapsed", time.Since(start))
	return x, nil
}

// Generate runs GenerateLatent and decodes the result to pixels
// [1, 3, frames*st, height*ss, width*ss].
func (p *Pipeline) Generate(ctx context.Context, opts Options) (*tensor.Array, error) {
	latent, err := p.GenerateLatent(ctx, opts)
	if err != nil {
		return nil, err
	}
	if p.Decoder == nil {
		return nil, fmt.Errorf("sample: pipeline has no decoder")
	}
	return p.Decoder.Decode(latent)
}

func (p *Pipeline) embed(prompt string) (seq, pooled, mask *tensor.Array, err error) {
	ids, keep := p.Tokenizer.Encode(prompt)
	seqT, pooledT, err := p.Encoder.Embed(ids, keep)
	if err != nil {
		return nil, nil, nil, err
	}
	return seqT, pooledT, tensor.New(append([]float32(nil), keep...), 1, len(keep)), nil
}
