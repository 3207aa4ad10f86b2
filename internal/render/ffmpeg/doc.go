// Package ffmpeg implements render.Codec on top of the ffmpeg and ffprobe
// command line tools. Probing shells out to ffprobe with JSON output; encoding
// builds a single filter_complex graph that realizes the clip timeline.
package ffmpeg
