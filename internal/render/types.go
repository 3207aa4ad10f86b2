package render

import (
	"errors"
	"strings"
)

var (
	// ErrComposition wraps any failure inside a render invocation.
	ErrComposition = errors.New("composition failed")
	// ErrDecode indicates a source could not be decoded as the requested kind.
	ErrDecode = errors.New("decode failed")
	// ErrUnsupportedMediaKind indicates an unknown media kind value.
	ErrUnsupportedMediaKind = errors.New("unsupported media kind")
)

// MediaKind declares how a scene source should be decoded.
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
	// KindImageOrVideo tries an image decode first and falls back to video.
	KindImageOrVideo MediaKind = "image/video"
)

// ParseMediaKind converts a string into a known MediaKind.
func ParseMediaKind(value string) (MediaKind, bool) {
	switch MediaKind(strings.ToLower(strings.TrimSpace(value))) {
	case KindImage:
		return KindImage, true
	case KindVideo:
		return KindVideo, true
	case KindImageOrVideo, MediaKind("image_or_video"):
		return KindImageOrVideo, true
	default:
		return "", false
	}
}

// Transition is the joining rule applied where one clip meets the next.
type Transition string

const (
	TransitionNone      Transition = "none"
	TransitionFade      Transition = "fade"
	TransitionCrossfade Transition = "crossfade"
	TransitionSlideLeft Transition = "slide_left"
)

// Format is a supported output container.
type Format string

const (
	FormatMP4  Format = "mp4"
	FormatWebM Format = "webm"
	FormatAVI  Format = "avi"
	FormatMOV  Format = "mov"
	FormatGIF  Format = "gif"
)

// ParseFormat converts a string into a known Format.
func ParseFormat(value string) (Format, bool) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case FormatMP4:
		return FormatMP4, true
	case FormatWebM:
		return FormatWebM, true
	case FormatAVI:
		return FormatAVI, true
	case FormatMOV:
		return FormatMOV, true
	case FormatGIF:
		return FormatGIF, true
	default:
		return "", false
	}
}

// Scene is one named segment of the output video.
type Scene struct {
	Name       string
	Source     string
	Kind       MediaKind
	Duration   float64
	Transition Transition
}

// Settings are composition-wide options.
type Settings struct {
	BackgroundColor   string
	CrossfadeAudio    bool
	WatermarkSource   string
	WatermarkPosition string
	WatermarkOpacity  float64
}

// Request describes one render invocation.
type Request struct {
	Scenes   []Scene
	Format   Format
	Quality  Quality
	FPS      int
	Settings Settings
}

// Artifact references the rendered output file.
type Artifact struct {
	Path     string
	Size     int64
	Duration float64
	Format   Format
}

// Event is one progress checkpoint emitted by the pipeline.
type Event struct {
	Step    string
	Percent float64
}

// SlideDirection marks a segment that slides into frame during its window.
type SlideDirection string

const SlideLeft SlideDirection = "left"

// Segment is one piece of source media placed on a clip's timeline.
type Segment struct {
	Path    string
	IsImage bool

	// StartAt positions the segment on the clip timeline; Length is how long
	// it is shown there.
	StartAt float64
	Length  float64

	// TrimStart/TrimEnd bound the region of the source video that is used.
	// Ignored for images.
	TrimStart float64
	TrimEnd   float64

	FadeIn  float64
	FadeOut float64

	Slide       SlideDirection
	SlideWindow float64
}

// Clip is a time-bounded, resolution-normalized piece of the output timeline.
// Duration is authoritative: the encoder trims the assembled timeline to it.
type Clip struct {
	Segments []Segment
	Duration float64
	Width    int
	Height   int
	FPS      int
}

// shiftedBy returns the clip's segments with StartAt moved by offset.
func (c Clip) shiftedBy(offset float64) []Segment {
	shifted := make([]Segment, len(c.Segments))
	copy(shifted, c.Segments)
	for i := range shifted {
		shifted[i].StartAt += offset
	}
	return shifted
}
