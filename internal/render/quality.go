package render

// Quality is a named preset mapping to a fixed pixel resolution.
type Quality string

const (
	QualitySD  Quality = "480p"
	QualityHD  Quality = "720p"
	QualityFHD Quality = "1080p"
	QualityQHD Quality = "1440p"
	QualityUHD Quality = "4k"

	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
	QualityUltra  Quality = "ultra"
)

// Resolution is a fixed output frame size.
type Resolution struct {
	Width  int
	Height int
}

var qualityResolutions = map[Quality]Resolution{
	QualitySD:     {640, 480},
	QualityHD:     {1280, 720},
	QualityFHD:    {1920, 1080},
	QualityQHD:    {2560, 1440},
	QualityUHD:    {3840, 2160},
	QualityLow:    {640, 480},
	QualityMedium: {1280, 720},
	QualityHigh:   {1920, 1080},
	QualityUltra:  {3840, 2160},
}

// Resolve returns the pixel resolution for a quality preset. Unknown presets
// default to 1080p.
func (q Quality) Resolve() Resolution {
	if res, ok := qualityResolutions[q]; ok {
		return res
	}
	return Resolution{1920, 1080}
}
