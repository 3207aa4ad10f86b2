package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"scenecast/internal/logging"
	"scenecast/internal/render"
)

// Codec realizes render timelines with ffmpeg/ffprobe subprocesses.
type Codec struct {
	ffmpegBin  string
	ffprobeBin string
	logger     *slog.Logger
}

// New builds a Codec. Empty binary names default to ffmpeg/ffprobe on PATH.
func New(ffmpegBin, ffprobeBin string, logger *slog.Logger) *Codec {
	if strings.TrimSpace(ffmpegBin) == "" {
		ffmpegBin = "ffmpeg"
	}
	if strings.TrimSpace(ffprobeBin) == "" {
		ffprobeBin = "ffprobe"
	}
	return &Codec{
		ffmpegBin:  ffmpegBin,
		ffprobeBin: ffprobeBin,
		logger:     logging.WithComponent(logger, "ffmpeg"),
	}
}

// Encode implements render.Codec. The clip timeline is realized as a single
// filter graph: every segment is normalized to the target box and frame rate,
// then overlaid onto a background canvas at its timeline position. Overlaps
// (crossfades) and the slide window fall out of the same overlay mechanism.
func (c *Codec) Encode(ctx context.Context, clip render.Clip, settings render.EncodeSettings, comp render.Settings, outputPath string) error {
	if len(clip.Segments) == 0 {
		return fmt.Errorf("encode: empty timeline")
	}

	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	for _, segment := range clip.Segments {
		if segment.IsImage {
			args = append(args, "-loop", "1", "-t", formatSeconds(segment.Length), "-i", segment.Path)
		} else {
			args = append(args,
				"-ss", formatSeconds(segment.TrimStart),
				"-t", formatSeconds(segment.Length),
				"-i", segment.Path,
			)
		}
	}

	watermarkIndex := -1
	if comp.WatermarkSource != "" {
		watermarkIndex = len(clip.Segments)
		args = append(args, "-i", comp.WatermarkSource)
	}

	graph := c.buildGraph(clip, settings, comp, watermarkIndex)
	args = append(args, "-filter_complex", graph, "-map", "[vout]")

	if settings.GIF {
		args = append(args, "-f", "gif")
	} else {
		args = append(args, "-map", "[aout]")
		args = append(args, "-c:v", settings.VideoCodec)
		if settings.Preset != "" {
			args = append(args, "-preset", settings.Preset)
		}
		args = append(args, "-c:a", settings.AudioCodec)
	}
	args = append(args,
		"-r", fmt.Sprintf("%d", settings.FPS),
		"-t", formatSeconds(clip.Duration),
		outputPath,
	)

	c.logger.Debug("running ffmpeg", logging.String("output", outputPath), logging.Int("inputs", len(clip.Segments)))
	cmd := exec.CommandContext(ctx, c.ffmpegBin, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg encode: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (c *Codec) buildGraph(clip render.Clip, settings render.EncodeSettings, comp render.Settings, watermarkIndex int) string {
	background := comp.BackgroundColor
	if background == "" {
		background = "black"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "color=c=%s:s=%dx%d:d=%s:r=%d[base]",
		background, clip.Width, clip.Height, formatSeconds(clip.Duration), settings.FPS)

	// Normalize each segment: fit to the target box (aspect is not
	// preserved), constant frame rate, fades, and timeline offset.
	for i, segment := range clip.Segments {
		b.WriteString(";")
		fmt.Fprintf(&b, "[%d:v]scale=%d:%d,setsar=1,fps=%d", i, clip.Width, clip.Height, settings.FPS)
		if segment.FadeIn > 0 {
			fmt.Fprintf(&b, ",fade=t=in:st=0:d=%s", formatSeconds(segment.FadeIn))
		}
		if segment.FadeOut > 0 {
			fmt.Fprintf(&b, ",fade=t=out:st=%s:d=%s",
				formatSeconds(segment.Length-segment.FadeOut), formatSeconds(segment.FadeOut))
		}
		fmt.Fprintf(&b, ",setpts=PTS-STARTPTS+%s/TB[v%d]", formatSeconds(segment.StartAt), i)
	}

	// Overlay the segments onto the canvas in timeline order.
	prev := "base"
	for i, segment := range clip.Segments {
		b.WriteString(";")
		x := "0"
		if segment.Slide == render.SlideLeft && segment.SlideWindow > 0 {
			// Slide in from the right edge across the window.
			x = fmt.Sprintf("max(0\\,W-W*(t-%s)/%s)",
				formatSeconds(segment.StartAt), formatSeconds(segment.SlideWindow))
		}
		out := fmt.Sprintf("ov%d", i)
		if i == len(clip.Segments)-1 && watermarkIndex < 0 {
			out = "vout"
		}
		fmt.Fprintf(&b, "[%s][v%d]overlay=x=%s:y=0:enable='between(t,%s,%s)'[%s]",
			prev, i, x,
			formatSeconds(segment.StartAt), formatSeconds(segment.StartAt+segment.Length),
			out)
		prev = out
	}

	if watermarkIndex >= 0 {
		opacity := comp.WatermarkOpacity
		if opacity <= 0 || opacity > 1 {
			opacity = 0.5
		}
		b.WriteString(";")
		fmt.Fprintf(&b, "[%d:v]format=rgba,colorchannelmixer=aa=%.2f[wm]", watermarkIndex, opacity)
		b.WriteString(";")
		fmt.Fprintf(&b, "[%s][wm]overlay=%s[vout]", prev, watermarkPosition(comp.WatermarkPosition))
	}

	if !settings.GIF {
		b.WriteString(";")
		b.WriteString(c.buildAudioGraph(clip, comp))
	}
	return b.String()
}

// buildAudioGraph mixes the audio of video segments at their timeline
// offsets. Compositions without any video audio get a silent track so the
// output container always carries an audio stream.
func (c *Codec) buildAudioGraph(clip render.Clip, comp render.Settings) string {
	var b strings.Builder
	var labels []string
	for i, segment := range clip.Segments {
		if segment.IsImage {
			continue
		}
		delayMS := int(segment.StartAt * 1000)
		fmt.Fprintf(&b, "[%d:a]adelay=%d:all=1", i, delayMS)
		if comp.CrossfadeAudio && segment.FadeIn > 0 {
			fmt.Fprintf(&b, ",afade=t=in:st=%s:d=%s",
				formatSeconds(segment.StartAt), formatSeconds(segment.FadeIn))
		}
		label := fmt.Sprintf("a%d", i)
		fmt.Fprintf(&b, "[%s];", label)
		labels = append(labels, label)
	}

	switch len(labels) {
	case 0:
		fmt.Fprintf(&b, "anullsrc=channel_layout=stereo:sample_rate=44100:d=%s[aout]", formatSeconds(clip.Duration))
	case 1:
		fmt.Fprintf(&b, "[%s]apad[aout]", labels[0])
	default:
		for _, label := range labels {
			fmt.Fprintf(&b, "[%s]", label)
		}
		fmt.Fprintf(&b, "amix=inputs=%d:normalize=0[aout]", len(labels))
	}
	return b.String()
}

func watermarkPosition(position string) string {
	switch strings.ToLower(strings.TrimSpace(position)) {
	case "top-left":
		return "x=10:y=10"
	case "top-right":
		return "x=W-w-10:y=10"
	case "bottom-left":
		return "x=10:y=H-h-10"
	case "center":
		return "x=(W-w)/2:y=(H-h)/2"
	default:
		return "x=W-w-10:y=H-h-10"
	}
}

func formatSeconds(value float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", value), "0"), ".")
}
