package render

import (
	"context"
	"fmt"
)

// Materialize turns resolved media into a time-bounded, normalized clip.
//
// Images are held for exactly the scene duration. Videos are trimmed to
// [0, min(duration, source duration)]. Both are scaled to fit the target box;
// aspect is not preserved. The ambiguous image/video kind tries an image
// decode first and falls back to video.
func Materialize(ctx context.Context, codec Codec, path string, kind MediaKind, duration float64, res Resolution, fps int) (Clip, error) {
	switch kind {
	case KindImage:
		if _, err := codec.ProbeImage(ctx, path); err != nil {
			return Clip{}, fmt.Errorf("%w: image %s: %v", ErrDecode, path, err)
		}
		return imageClip(path, duration, res, fps), nil

	case KindVideo:
		info, err := codec.ProbeVideo(ctx, path)
		if err != nil {
			return Clip{}, fmt.Errorf("%w: video %s: %v", ErrDecode, path, err)
		}
		return videoClip(path, duration, info, res, fps), nil

	case KindImageOrVideo:
		if _, err := codec.ProbeImage(ctx, path); err == nil {
			return imageClip(path, duration, res, fps), nil
		}
		info, err := codec.ProbeVideo(ctx, path)
		if err != nil {
			return Clip{}, fmt.Errorf("%w: %s decodes as neither image nor video: %v", ErrDecode, path, err)
		}
		return videoClip(path, duration, info, res, fps), nil

	default:
		return Clip{}, fmt.Errorf("%w: %q", ErrUnsupportedMediaKind, kind)
	}
}

func imageClip(path string, duration float64, res Resolution, fps int) Clip {
	return Clip{
		Segments: []Segment{{
			Path:    path,
			IsImage: true,
			StartAt: 0,
			Length:  duration,
		}},
		Duration: duration,
		Width:    res.Width,
		Height:   res.Height,
		FPS:      fps,
	}
}

func videoClip(path string, duration float64, info MediaInfo, res Resolution, fps int) Clip {
	length := duration
	if info.Duration > 0 && info.Duration < length {
		length = info.Duration
	}
	return Clip{
		Segments: []Segment{{
			Path:      path,
			StartAt:   0,
			Length:    length,
			TrimStart: 0,
			TrimEnd:   length,
		}},
		Duration: length,
		Width:    res.Width,
		Height:   res.Height,
		FPS:      fps,
	}
}
