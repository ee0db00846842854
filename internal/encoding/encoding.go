// Package encoding converts decoded images into the input tensors the
// classifiers expect. Every classifier declares one Variant; each variant is
// a pure image -> tensor function.
package encoding

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/cozy-creator/cattleid/internal/tensor"
	"github.com/cozy-creator/cattleid/internal/utils/imageutil"
)

// InputSize is the square spatial resolution both classifiers take.
const InputSize = 224

const channels = 3

// MeanBGR is the per-channel mean subtracted by MeanCenteredBGR, in B, G, R order.
var MeanBGR = [channels]float32{103.939, 116.779, 123.68}

var ErrUnknownVariant = errors.New("unknown encoding variant")

type Variant int

const (
	// NormalizedRGB maps 8-bit RGB into [0, 1].
	NormalizedRGB Variant = iota + 1
	// MeanCenteredBGR reorders channels to BGR and subtracts MeanBGR, unscaled.
	MeanCenteredBGR
)

var variantNames = map[Variant]string{
	NormalizedRGB:   "normalized_rgb",
	MeanCenteredBGR: "mean_centered_bgr",
}

func Variants() []Variant {
	return []Variant{NormalizedRGB, MeanCenteredBGR}
}

func Parse(name string) (Variant, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for v, n := range variantNames {
		if n == name {
			return v, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownVariant, name)
}

func (v Variant) String() string {
	if name, ok := variantNames[v]; ok {
		return name
	}

	return fmt.Sprintf("Variant(%d)", int(v))
}

// InputShape is the tensor shape Encode produces.
func InputShape() tensor.Shape {
	return tensor.Shape{1, InputSize, InputSize, channels}
}

// Encode resizes img to InputSize x InputSize with four-tap bilinear
// sampling, applies the variant's channel policy and prepends a batch axis,
// yielding [1, 224, 224, 3].
func (v Variant) Encode(img image.Image) (*tensor.Tensor, error) {
	pixel, err := v.pixelFunc()
	if err != nil {
		return nil, err
	}

	if img == nil || img.Bounds().Empty() {
		return nil, errors.New("cannot encode an empty image")
	}

	data := imageutil.ResizeBilinear(img, InputSize, InputSize)
	for i := 0; i < len(data); i += channels {
		data[i], data[i+1], data[i+2] = pixel(data[i], data[i+1], data[i+2])
	}

	base, err := tensor.New(tensor.Shape{InputSize, InputSize, channels}, data)
	if err != nil {
		return nil, err
	}

	return base.ExpandDims(0)
}

func (v Variant) pixelFunc() (func(r, g, b float32) (float32, float32, float32), error) {
	switch v {
	case NormalizedRGB:
		return normalizedRGB, nil
	case MeanCenteredBGR:
		return meanCenteredBGR, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownVariant, int(v))
	}
}

func normalizedRGB(r, g, b float32) (float32, float32, float32) {
	return r / 255.0, g / 255.0, b / 255.0
}

func meanCenteredBGR(r, g, b float32) (float32, float32, float32) {
	return b - MeanBGR[0], g - MeanBGR[1], r - MeanBGR[2]
}
