package render

// EncodeSettings selects the codecs and container behavior for one output
// format.
type EncodeSettings struct {
	VideoCodec string
	AudioCodec string
	Preset     string
	// GIF takes a distinct encode path: no audio, frame rate capped.
	GIF bool
	FPS int
}

// gifMaxFPS caps animated GIF output; higher rates balloon file size for no
// visible gain.
const gifMaxFPS = 15

// EncodeSettingsFor returns the encode parameters for a format. The switch is
// exhaustive over the closed Format enum; mp4 settings are the fallback for a
// value that slipped past parsing.
func EncodeSettingsFor(format Format, fps int) EncodeSettings {
	switch format {
	case FormatMP4:
		return EncodeSettings{VideoCodec: "libx264", AudioCodec: "aac", Preset: "medium", FPS: fps}
	case FormatWebM:
		return EncodeSettings{VideoCodec: "libvpx-vp9", AudioCodec: "libvorbis", FPS: fps}
	case FormatAVI:
		return EncodeSettings{VideoCodec: "libxvid", AudioCodec: "mp3", FPS: fps}
	case FormatMOV:
		return EncodeSettings{VideoCodec: "libx264", AudioCodec: "aac", FPS: fps}
	case FormatGIF:
		capped := fps
		if capped > gifMaxFPS {
			capped = gifMaxFPS
		}
		return EncodeSettings{GIF: true, FPS: capped}
	default:
		return EncodeSettings{VideoCodec: "libx264", AudioCodec: "aac", Preset: "medium", FPS: fps}
	}
}
