package render_test

import (
	"math"
	"testing"

	"scenecast/internal/render"
)

func clipOf(path string, duration float64) render.Clip {
	return render.Clip{
		Segments: []render.Segment{{Path: path, StartAt: 0, Length: duration}},
		Duration: duration,
		Width:    1920,
		Height:   1080,
		FPS:      30,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestApplyTransitionDurations(t *testing.T) {
	a := clipOf("a.mp4", 10)
	b := clipOf("b.mp4", 6)
	const window = 0.5

	cases := []struct {
		name       string
		transition render.Transition
		want       float64
	}{
		{"none is the exact sum", render.TransitionNone, 16},
		{"fade does not overlap", render.TransitionFade, 16},
		{"crossfade overlaps by the window", render.TransitionCrossfade, 15.5},
		{"slide_left adds the window", render.TransitionSlideLeft, 10.5},
		{"unknown degrades to concatenation", render.Transition("swirl"), 16},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			joined := render.ApplyTransition(a, b, tc.transition, window)
			if !almostEqual(joined.Duration, tc.want) {
				t.Fatalf("duration = %v, want %v", joined.Duration, tc.want)
			}
		})
	}
}

func TestCrossfadeWindowLargerThanShorterClip(t *testing.T) {
	a := clipOf("a.mp4", 10)
	b := clipOf("b.mp4", 2)

	// Window exceeds the shorter clip: overlap reduces to min/2 = 1.
	joined := render.ApplyTransition(a, b, render.TransitionCrossfade, 3)
	if !almostEqual(joined.Duration, 11) {
		t.Fatalf("duration = %v, want 11", joined.Duration)
	}
}

func TestFadeAnnotatesJunctionSegments(t *testing.T) {
	a := clipOf("a.mp4", 10)
	b := clipOf("b.mp4", 6)

	joined := render.ApplyTransition(a, b, render.TransitionFade, 0.5)
	if len(joined.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(joined.Segments))
	}
	if !almostEqual(joined.Segments[0].FadeOut, 0.5) {
		t.Fatalf("fade out = %v", joined.Segments[0].FadeOut)
	}
	if !almostEqual(joined.Segments[1].FadeIn, 0.5) {
		t.Fatalf("fade in = %v", joined.Segments[1].FadeIn)
	}
	if !almostEqual(joined.Segments[1].StartAt, 10) {
		t.Fatalf("second segment should start after the first, got %v", joined.Segments[1].StartAt)
	}
}

func TestFadeWindowClampedToSegmentLength(t *testing.T) {
	a := clipOf("a.mp4", 0.2)
	b := clipOf("b.mp4", 6)

	joined := render.ApplyTransition(a, b, render.TransitionFade, 0.5)
	if joined.Segments[0].FadeOut > 0.2 {
		t.Fatalf("fade out exceeds segment length: %v", joined.Segments[0].FadeOut)
	}
}

func TestCrossfadeShiftsSecondClipIntoOverlap(t *testing.T) {
	a := clipOf("a.mp4", 10)
	b := clipOf("b.mp4", 6)

	joined := render.ApplyTransition(a, b, render.TransitionCrossfade, 0.5)
	if !almostEqual(joined.Segments[1].StartAt, 9.5) {
		t.Fatalf("overlap start = %v, want 9.5", joined.Segments[1].StartAt)
	}
}

func TestSlideLeftMarksSlidingSegment(t *testing.T) {
	a := clipOf("a.mp4", 10)
	b := clipOf("b.mp4", 6)

	joined := render.ApplyTransition(a, b, render.TransitionSlideLeft, 0.5)
	second := joined.Segments[1]
	if second.Slide != render.SlideLeft || !almostEqual(second.SlideWindow, 0.5) {
		t.Fatalf("slide annotation missing: %+v", second)
	}
	if !almostEqual(second.StartAt, 10) {
		t.Fatalf("sliding segment should start after the first clip, got %v", second.StartAt)
	}
}

func TestApplyTransitionDoesNotMutateInputs(t *testing.T) {
	a := clipOf("a.mp4", 10)
	b := clipOf("b.mp4", 6)

	_ = render.ApplyTransition(a, b, render.TransitionFade, 0.5)
	if a.Segments[0].FadeOut != 0 || b.Segments[0].FadeIn != 0 {
		t.Fatal("inputs were mutated")
	}
	if b.Segments[0].StartAt != 0 {
		t.Fatal("second clip segments were shifted in place")
	}
}

func TestQualityResolve(t *testing.T) {
	cases := []struct {
		quality render.Quality
		want    render.Resolution
	}{
		{render.QualitySD, render.Resolution{Width: 640, Height: 480}},
		{render.QualityLow, render.Resolution{Width: 640, Height: 480}},
		{render.QualityMedium, render.Resolution{Width: 1280, Height: 720}},
		{render.QualityFHD, render.Resolution{Width: 1920, Height: 1080}},
		{render.QualityUltra, render.Resolution{Width: 3840, Height: 2160}},
		{render.Quality("8k"), render.Resolution{Width: 1920, Height: 1080}},
		{render.Quality(""), render.Resolution{Width: 1920, Height: 1080}},
	}
	for _, tc := range cases {
		if got := tc.quality.Resolve(); got != tc.want {
			t.Errorf("Resolve(%q) = %+v, want %+v", tc.quality, got, tc.want)
		}
	}
}

func TestEncodeSettingsTable(t *testing.T) {
	mp4 := render.EncodeSettingsFor(render.FormatMP4, 30)
	if mp4.VideoCodec != "libx264" || mp4.AudioCodec != "aac" || mp4.Preset != "medium" {
		t.Fatalf("mp4 settings: %+v", mp4)
	}
	webm := render.EncodeSettingsFor(render.FormatWebM, 30)
	if webm.VideoCodec != "libvpx-vp9" || webm.AudioCodec != "libvorbis" {
		t.Fatalf("webm settings: %+v", webm)
	}
	avi := render.EncodeSettingsFor(render.FormatAVI, 30)
	if avi.VideoCodec != "libxvid" || avi.AudioCodec != "mp3" {
		t.Fatalf("avi settings: %+v", avi)
	}
	gif := render.EncodeSettingsFor(render.FormatGIF, 30)
	if !gif.GIF || gif.FPS != 15 {
		t.Fatalf("gif settings should cap fps at 15: %+v", gif)
	}
	gifSlow := render.EncodeSettingsFor(render.FormatGIF, 10)
	if gifSlow.FPS != 10 {
		t.Fatalf("gif under the cap keeps its fps: %+v", gifSlow)
	}
}
