package render

import "context"

// MediaInfo describes a decoded media file.
type MediaInfo struct {
	Width     int
	Height    int
	Duration  float64
	FrameRate float64
	HasAudio  bool
}

// Codec is the low-level encode/decode capability the pipeline drives. The
// pipeline never touches pixels itself; it composes timelines and asks the
// codec to realize them.
type Codec interface {
	// ProbeImage inspects path as a still image. It fails when the file is
	// not a decodable image.
	ProbeImage(ctx context.Context, path string) (MediaInfo, error)
	// ProbeVideo inspects path as a video and reports its metadata.
	ProbeVideo(ctx context.Context, path string) (MediaInfo, error)
	// Encode realizes the clip timeline into outputPath using the given
	// encode settings and composition-wide options.
	Encode(ctx context.Context, clip Clip, settings EncodeSettings, comp Settings, outputPath string) error
}
