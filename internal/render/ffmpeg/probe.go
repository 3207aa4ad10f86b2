package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"scenecast/internal/render"
)

type probeResult struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType  string `json:"codec_type"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Duration   string `json:"duration"`
	RFrameRate string `json:"r_frame_rate"`
}

type probeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

// imageFormats are the ffprobe demuxer names that identify still images.
var imageFormats = map[string]struct{}{
	"image2":    {},
	"png_pipe":  {},
	"jpeg_pipe": {},
	"bmp_pipe":  {},
	"webp_pipe": {},
	"tiff_pipe": {},
}

func (c *Codec) probe(ctx context.Context, path string) (probeResult, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return probeResult{}, errors.New("probe: empty path")
	}

	cmd := exec.CommandContext(ctx, c.ffprobeBin,
		"-v", "error", "-hide_banner",
		"-show_format", "-show_streams",
		"-of", "json", "--", path,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return probeResult{}, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(output)))
	}

	var result probeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return probeResult{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// ProbeImage implements render.Codec. It fails when the file is not a
// decodable still image.
func (c *Codec) ProbeImage(ctx context.Context, path string) (render.MediaInfo, error) {
	result, err := c.probe(ctx, path)
	if err != nil {
		return render.MediaInfo{}, err
	}

	if !isImageFormat(result.Format.FormatName) {
		return render.MediaInfo{}, fmt.Errorf("%s is not an image (format %q)", path, result.Format.FormatName)
	}
	stream, ok := firstStream(result.Streams, "video")
	if !ok || stream.Width <= 0 || stream.Height <= 0 {
		return render.MediaInfo{}, fmt.Errorf("%s has no decodable image stream", path)
	}
	return render.MediaInfo{Width: stream.Width, Height: stream.Height}, nil
}

// ProbeVideo implements render.Codec.
func (c *Codec) ProbeVideo(ctx context.Context, path string) (render.MediaInfo, error) {
	result, err := c.probe(ctx, path)
	if err != nil {
		return render.MediaInfo{}, err
	}

	stream, ok := firstStream(result.Streams, "video")
	if !ok {
		return render.MediaInfo{}, fmt.Errorf("%s has no video stream", path)
	}
	_, hasAudio := firstStream(result.Streams, "audio")

	duration := parseFloat(result.Format.Duration)
	if duration == 0 {
		duration = parseFloat(stream.Duration)
	}

	return render.MediaInfo{
		Width:     stream.Width,
		Height:    stream.Height,
		Duration:  duration,
		FrameRate: parseFrameRate(stream.RFrameRate),
		HasAudio:  hasAudio,
	}, nil
}

func isImageFormat(formatName string) bool {
	for _, name := range strings.Split(formatName, ",") {
		if _, ok := imageFormats[strings.TrimSpace(name)]; ok {
			return true
		}
	}
	return false
}

func firstStream(streams []probeStream, codecType string) (probeStream, bool) {
	for _, stream := range streams {
		if strings.EqualFold(stream.CodecType, codecType) {
			return stream, true
		}
	}
	return probeStream{}, false
}

func parseFloat(value string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return parsed
}

// parseFrameRate parses ffprobe rational rates like "30000/1001".
func parseFrameRate(value string) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	parts := strings.SplitN(value, "/", 2)
	if len(parts) == 1 {
		return parseFloat(parts[0])
	}
	num := parseFloat(parts[0])
	den := parseFloat(parts[1])
	if den == 0 {
		return 0
	}
	return num / den
}
