package render

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"scenecast/internal/logging"
	"scenecast/internal/media"
)

// Pipeline orchestrates resolve -> materialize -> compose -> encode for one
// composition request.
type Pipeline struct {
	resolver      *media.Resolver
	codec         Codec
	outputDir     string
	window        float64
	encodeTimeout time.Duration
	logger        *slog.Logger
}

// New builds a render pipeline. window is the transition duration in seconds;
// encodeTimeout bounds the final encode step (zero means no bound).
func New(resolver *media.Resolver, codec Codec, outputDir string, window float64, encodeTimeout time.Duration, logger *slog.Logger) *Pipeline {
	if window <= 0 {
		window = DefaultTransitionSeconds
	}
	return &Pipeline{
		resolver:      resolver,
		codec:         codec,
		outputDir:     outputDir,
		window:        window,
		encodeTimeout: encodeTimeout,
		logger:        logging.WithComponent(logger, "render"),
	}
}

// Render turns the request into a single output file, streaming progress
// checkpoints to events. Every intermediate resource is released before
// Render returns, on success and on failure alike.
func (p *Pipeline) Render(ctx context.Context, req Request, events chan<- Event) (Artifact, error) {
	if len(req.Scenes) == 0 {
		return Artifact{}, fmt.Errorf("%w: no scenes", ErrComposition)
	}

	var releases []func()
	defer func() {
		for _, release := range releases {
			release()
		}
	}()

	resolution := req.Quality.Resolve()
	emit(ctx, events, "Creating clips from scenes", 10)

	type materialized struct {
		clip       Clip
		transition Transition
	}
	clips := make([]materialized, 0, len(req.Scenes))
	total := len(req.Scenes)

	for i, scene := range req.Scenes {
		if err := ctx.Err(); err != nil {
			return Artifact{}, fmt.Errorf("%w: cancelled before scene %q: %v", ErrComposition, scene.Name, err)
		}

		resolved, err := p.resolver.Resolve(ctx, scene.Source)
		if err != nil {
			return Artifact{}, fmt.Errorf("%w: scene %q: %v", ErrComposition, scene.Name, err)
		}
		releases = append(releases, resolved.Release)

		clip, err := Materialize(ctx, p.codec, resolved.Path, scene.Kind, scene.Duration, resolution, req.FPS)
		if err != nil {
			return Artifact{}, fmt.Errorf("%w: scene %q: %v", ErrComposition, scene.Name, err)
		}
		clips = append(clips, materialized{clip: clip, transition: scene.Transition})

		progress := 10 + float64(i+1)/float64(total)*50
		emit(ctx, events, fmt.Sprintf("Processed scene: %s", scene.Name), progress)
	}

	emit(ctx, events, "Applying transitions", 70)

	// Each scene's transition joins it onto the tail of the accumulated
	// result, not onto the next scene. Plain concatenation stays a separate
	// list entry and is joined in the concatenation pass below.
	var assembled []Clip
	for i, entry := range clips {
		if i == 0 {
			assembled = append(assembled, entry.clip)
			continue
		}
		if entry.transition == TransitionNone || entry.transition == "" {
			assembled = append(assembled, entry.clip)
			continue
		}
		if !knownTransition(entry.transition) {
			p.logger.Warn("unknown transition, using plain concatenation",
				logging.String("transition", string(entry.transition)),
			)
		}
		tail := assembled[len(assembled)-1]
		assembled[len(assembled)-1] = ApplyTransition(tail, entry.clip, entry.transition, p.window)
	}

	emit(ctx, events, "Concatenating video", 80)
	final := assembled[0]
	for _, clip := range assembled[1:] {
		final = ApplyTransition(final, clip, TransitionNone, p.window)
	}

	if err := ctx.Err(); err != nil {
		return Artifact{}, fmt.Errorf("%w: cancelled before encode: %v", ErrComposition, err)
	}

	settings := EncodeSettingsFor(req.Format, req.FPS)
	comp := req.Settings
	if comp.WatermarkSource != "" {
		watermark, err := p.resolver.Resolve(ctx, comp.WatermarkSource)
		if err != nil {
			return Artifact{}, fmt.Errorf("%w: watermark: %v", ErrComposition, err)
		}
		releases = append(releases, watermark.Release)
		comp.WatermarkSource = watermark.Path
	}

	emit(ctx, events, "Rendering final video", 90)

	outputPath := filepath.Join(p.outputDir, fmt.Sprintf("composition_%s.%s", uuid.NewString(), req.Format))
	encodeCtx := ctx
	if p.encodeTimeout > 0 {
		var cancel context.CancelFunc
		encodeCtx, cancel = context.WithTimeout(ctx, p.encodeTimeout)
		defer cancel()
	}
	if err := p.codec.Encode(encodeCtx, final, settings, comp, outputPath); err != nil {
		return Artifact{}, fmt.Errorf("%w: encode %s: %v", ErrComposition, req.Format, err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: output missing after encode: %v", ErrComposition, err)
	}

	emit(ctx, events, "Video composition complete", 100)
	p.logger.Info("render complete",
		logging.String("output", outputPath),
		logging.Int64("bytes", info.Size()),
		logging.Float64("duration_seconds", final.Duration),
	)
	return Artifact{
		Path:     outputPath,
		Size:     info.Size(),
		Duration: final.Duration,
		Format:   req.Format,
	}, nil
}

func knownTransition(t Transition) bool {
	switch t {
	case TransitionNone, TransitionFade, TransitionCrossfade, TransitionSlideLeft:
		return true
	default:
		return false
	}
}

// emit delivers a checkpoint unless the render has been cancelled. Delivery
// is blocking so checkpoints cannot be reordered or dropped mid-render.
func emit(ctx context.Context, events chan<- Event, step string, percent float64) {
	if events == nil {
		return
	}
	select {
	case events <- Event{Step: step, Percent: percent}:
	case <-ctx.Done():
	}
}
