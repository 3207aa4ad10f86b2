package coordinator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"scenecast/internal/render"
)

// ErrValidation indicates a composition request that cannot be accepted.
var ErrValidation = errors.New("invalid composition request")

// SceneSpec is one scene as submitted by the caller.
type SceneSpec struct {
	Source     string  `json:"source"`
	MediaType  string  `json:"media_type"`
	Duration   float64 `json:"duration"`
	Transition string  `json:"transition,omitempty"`
}

// Scene pairs a scene name with its spec. Order is the composition order.
type Scene struct {
	Name string
	SceneSpec
}

// SceneList preserves the caller's scene order. The wire format is a JSON
// object keyed by scene name; object key order is the composition order, so
// decoding goes through the token stream instead of a map.
type SceneList []Scene

func (s *SceneList) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("scenes must be a JSON object")
	}

	var scenes []Scene
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return errors.New("scene name must be a string")
		}
		var spec SceneSpec
		if err := dec.Decode(&spec); err != nil {
			return fmt.Errorf("scene %q: %w", name, err)
		}
		scenes = append(scenes, Scene{Name: name, SceneSpec: spec})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = scenes
	return nil
}

func (s SceneList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, scene := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(scene.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		spec, err := json.Marshal(scene.SceneSpec)
		if err != nil {
			return nil, err
		}
		buf.Write(spec)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Settings are composition-wide options on the request.
type Settings struct {
	BackgroundColor   string  `json:"background_color,omitempty"`
	CrossfadeAudio    bool    `json:"crossfade_audio,omitempty"`
	WatermarkURL      string  `json:"watermark_url,omitempty"`
	WatermarkPosition string  `json:"watermark_position,omitempty"`
	WatermarkOpacity  float64 `json:"watermark_opacity,omitempty"`
}

// Request is one video composition submission.
type Request struct {
	Scenes       SceneList         `json:"scenes"`
	OutputFormat string            `json:"output_format,omitempty"`
	Quality      string            `json:"quality,omitempty"`
	FPS          int               `json:"fps,omitempty"`
	Priority     string            `json:"priority,omitempty"`
	Settings     Settings          `json:"composition_settings,omitempty"`
	WebhookURL   string            `json:"webhook_url,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Validate checks the request and fills defaults in place. All failures wrap
// ErrValidation.
func (r *Request) Validate() error {
	if len(r.Scenes) == 0 {
		return fmt.Errorf("%w: at least one scene is required", ErrValidation)
	}
	for _, scene := range r.Scenes {
		if strings.TrimSpace(scene.Source) == "" {
			return fmt.Errorf("%w: scene %q has no source", ErrValidation, scene.Name)
		}
		if scene.Duration <= 0 {
			return fmt.Errorf("%w: scene %q duration must be positive", ErrValidation, scene.Name)
		}
		if _, ok := render.ParseMediaKind(scene.MediaType); !ok {
			return fmt.Errorf("%w: scene %q has unknown media type %q", ErrValidation, scene.Name, scene.MediaType)
		}
	}

	if r.OutputFormat == "" {
		r.OutputFormat = string(render.FormatMP4)
	}
	if _, ok := render.ParseFormat(r.OutputFormat); !ok {
		return fmt.Errorf("%w: unknown output format %q", ErrValidation, r.OutputFormat)
	}
	if r.FPS == 0 {
		r.FPS = 30
	}
	if r.FPS < 1 || r.FPS > 60 {
		return fmt.Errorf("%w: fps must be between 1 and 60", ErrValidation)
	}
	if r.Settings.WatermarkOpacity < 0 || r.Settings.WatermarkOpacity > 1 {
		return fmt.Errorf("%w: watermark opacity must be between 0 and 1", ErrValidation)
	}
	return nil
}

// TotalDuration sums the scene durations.
func (r *Request) TotalDuration() float64 {
	var total float64
	for _, scene := range r.Scenes {
		total += scene.Duration
	}
	return total
}

// Title derives a human-readable job title from the first scene names.
func (r *Request) Title() string {
	names := make([]string, 0, 3)
	for i, scene := range r.Scenes {
		if i == 3 {
			break
		}
		names = append(names, scene.Name)
	}
	title := "Composition: " + strings.Join(names, ", ")
	if extra := len(r.Scenes) - 3; extra > 0 {
		title += fmt.Sprintf(" and %d more scenes", extra)
	}
	return title
}

// Description derives a job description with scene count and total runtime.
func (r *Request) Description() string {
	return fmt.Sprintf("Video composition with %d scenes, total duration: %.1fs",
		len(r.Scenes), r.TotalDuration())
}

// ToRender converts the validated request into the render package's form.
// Unknown transitions pass through; the pipeline degrades them to plain
// concatenation.
func (r *Request) ToRender() render.Request {
	scenes := make([]render.Scene, 0, len(r.Scenes))
	for _, scene := range r.Scenes {
		kind, _ := render.ParseMediaKind(scene.MediaType)
		scenes = append(scenes, render.Scene{
			Name:       scene.Name,
			Source:     scene.Source,
			Kind:       kind,
			Duration:   scene.Duration,
			Transition: render.Transition(strings.ToLower(strings.TrimSpace(scene.Transition))),
		})
	}

	format, _ := render.ParseFormat(r.OutputFormat)
	return render.Request{
		Scenes:  scenes,
		Format:  format,
		Quality: render.Quality(strings.ToLower(strings.TrimSpace(r.Quality))),
		FPS:     r.FPS,
		Settings: render.Settings{
			BackgroundColor:   r.Settings.BackgroundColor,
			CrossfadeAudio:    r.Settings.CrossfadeAudio,
			WatermarkSource:   r.Settings.WatermarkURL,
			WatermarkPosition: r.Settings.WatermarkPosition,
			WatermarkOpacity:  r.Settings.WatermarkOpacity,
		},
	}
}
