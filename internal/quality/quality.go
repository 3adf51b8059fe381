package quality

import (
	"image"
	"math"

	log "github.com/sirupsen/logrus"
)

// Check weights. Each check contributes its weight to the possible
// total regardless of outcome, and to the achieved total only when it
// passes.
const (
	weightWhiteBackground = 2
	weightResolution      = 1
	weightLighting        = 1
	weightSharpness       = 1

	totalWeight = weightWhiteBackground + weightResolution + weightLighting + weightSharpness
)

// Thresholds tune the individual checks. The defaults reproduce the
// empirically chosen values for marketplace thumbnails.
type Thresholds struct {
	WhiteChannelMin  uint8   `mapstructure:"white_channel_min"`
	WhiteBorderRatio float64 `mapstructure:"white_border_ratio"`
	MinResolution    int     `mapstructure:"min_resolution"`
	BrightnessMin    float64 `mapstructure:"brightness_min"`
	BrightnessMax    float64 `mapstructure:"brightness_max"`
	ContrastMin      float64 `mapstructure:"contrast_min"`
	SharpnessMin     float64 `mapstructure:"sharpness_min"`
	PassRatio        float64 `mapstructure:"pass_ratio"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		WhiteChannelMin:  240,
		WhiteBorderRatio: 0.8,
		MinResolution:    300,
		BrightnessMin:    100,
		BrightnessMax:    200,
		ContrastMin:      30,
		SharpnessMin:     100,
		PassRatio:        0.6,
	}
}

// Score is the weighted outcome of classifying one image.
type Score struct {
	Achieved int
	Possible int
	Ratio    float64
	Passed   bool
}

// Classifier scores decoded images against weighted heuristics that
// separate studio-style product photos from casual ones.
type Classifier struct {
	thresholds Thresholds
}

func NewClassifier(thresholds Thresholds) *Classifier {
	if thresholds.PassRatio <= 0 {
		thresholds.PassRatio = DefaultThresholds().PassRatio
	}
	return &Classifier{thresholds: thresholds}
}

// Score runs every check. A nil or degenerate image fails every check
// rather than excluding any from the possible total.
func (c *Classifier) Score(img image.Image) Score {
	score := Score{Possible: totalWeight}

	if img == nil || img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
		return score
	}

	gray := grayPlane(img)

	if c.hasWhiteBackground(img) {
		score.Achieved += weightWhiteBackground
	}
	if c.hasMinResolution(img) {
		score.Achieved += weightResolution
	}
	if c.hasGoodLighting(gray) {
		score.Achieved += weightLighting
	}
	if c.isSharp(gray) {
		score.Achieved += weightSharpness
	}

	score.Ratio = float64(score.Achieved) / float64(score.Possible)
	score.Passed = score.Ratio >= c.thresholds.PassRatio
	log.Debugf("image scored %d/%d (ratio %.2f, passed %v)",
		score.Achieved, score.Possible, score.Ratio, score.Passed)
	return score
}

// hasWhiteBackground samples pixels along all four borders and passes
// when enough of them are near-white on every channel.
func (c *Classifier) hasWhiteBackground(img image.Image) bool {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	min := uint32(c.thresholds.WhiteChannelMin) << 8

	sampled, white := 0, 0
	sample := func(x, y int) {
		r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
		sampled++
		if r >= min && g >= min && b >= min {
			white++
		}
	}

	for x := 0; x < width; x += 10 {
		sample(x, 0)
		sample(x, height-1)
	}
	for y := 0; y < height; y += 10 {
		sample(0, y)
		sample(width-1, y)
	}

	if sampled == 0 {
		return false
	}
	return float64(white)/float64(sampled) > c.thresholds.WhiteBorderRatio
}

func (c *Classifier) hasMinResolution(img image.Image) bool {
	bounds := img.Bounds()
	shorter := bounds.Dx()
	if bounds.Dy() < shorter {
		shorter = bounds.Dy()
	}
	return shorter >= c.thresholds.MinResolution
}

// hasGoodLighting requires mean brightness inside the well-lit band and
// enough pixel spread to show contrast.
func (c *Classifier) hasGoodLighting(gray plane) bool {
	mean, stddev := gray.meanStddev()
	return mean > c.thresholds.BrightnessMin &&
		mean < c.thresholds.BrightnessMax &&
		stddev > c.thresholds.ContrastMin
}

// isSharp approximates focus with the variance of a 4-neighbor
// Laplacian over the grayscale plane.
func (c *Classifier) isSharp(gray plane) bool {
	if gray.w < 3 || gray.h < 3 {
		return false
	}

	laplacian := make([]float64, 0, (gray.w-2)*(gray.h-2))
	for y := 1; y < gray.h-1; y++ {
		for x := 1; x < gray.w-1; x++ {
			v := 4*gray.at(x, y) - gray.at(x-1, y) - gray.at(x+1, y) - gray.at(x, y-1) - gray.at(x, y+1)
			laplacian = append(laplacian, v)
		}
	}

	var mean float64
	for _, v := range laplacian {
		mean += v
	}
	mean /= float64(len(laplacian))

	var variance float64
	for _, v := range laplacian {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(laplacian))

	return variance > c.thresholds.SharpnessMin
}

// plane is a grayscale copy of an image in float space.
type plane struct {
	pix  []float64
	w, h int
}

func (p plane) at(x, y int) float64 {
	return p.pix[y*p.w+x]
}

func (p plane) meanStddev() (float64, float64) {
	if len(p.pix) == 0 {
		return 0, 0
	}
	var mean float64
	for _, v := range p.pix {
		mean += v
	}
	mean /= float64(len(p.pix))

	var variance float64
	for _, v := range p.pix {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(p.pix))
	return mean, math.Sqrt(variance)
}

func grayPlane(img image.Image) plane {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	p := plane{pix: make([]float64, w*h), w: w, h: h}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// ITU-R 601 luma, scaled back to 8-bit range
			p.pix[y*w+x] = (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 257.0
		}
	}
	return p
}
