package encoding

import (
	"errors"
	"image"
	"image/color"
	"math"
	"math/rand"
	"testing"

	"github.com/cozy-creator/cattleid/internal/tensor"
)

func noise(w, h int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(rng.Intn(256))
		img.Pix[i+1] = uint8(rng.Intn(256))
		img.Pix[i+2] = uint8(rng.Intn(256))
		img.Pix[i+3] = 0xff
	}
	return img
}

func uniform(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func encode(t *testing.T, v Variant, img image.Image) *tensor.Tensor {
	t.Helper()
	out, err := v.Encode(img)
	if err != nil {
		t.Fatalf("%s.Encode returned error: %v", v, err)
	}
	t.Cleanup(out.Release)
	return out
}

func TestEncodeShape(t *testing.T) {
	sizes := []image.Point{{224, 224}, {640, 480}, {13, 901}, {1, 1}}
	for _, v := range Variants() {
		for _, size := range sizes {
			out := encode(t, v, noise(size.X, size.Y, 1))
			if !out.Shape().Equal(InputShape()) {
				t.Errorf("%s on %v: expected shape %s, got %s", v, size, InputShape(), out.Shape())
			}
			if len(out.Data()) != 224*224*3 {
				t.Errorf("%s on %v: unexpected element count %d", v, size, len(out.Data()))
			}
		}
	}
}

func TestNormalizedRGBRange(t *testing.T) {
	for seed := int64(0); seed < 5; seed++ {
		out := encode(t, NormalizedRGB, noise(97, 311, seed))
		for i, v := range out.Data() {
			if v < 0 || v > 1 {
				t.Fatalf("seed %d: element %d = %f outside [0,1]", seed, i, v)
			}
		}
	}
}

func TestNormalizedRGBKeepsChannelOrder(t *testing.T) {
	out := encode(t, NormalizedRGB, uniform(50, 30, color.RGBA{R: 255, G: 0, B: 0, A: 255}))
	data := out.Data()

	if data[0] < 0.99 || data[1] > 0.01 || data[2] > 0.01 {
		t.Errorf("expected red in channel 0, got %v", data[:3])
	}
}

func TestMeanCenteredBGR(t *testing.T) {
	img := noise(180, 120, 42)

	rgb := encode(t, NormalizedRGB, img).Data()
	bgr := encode(t, MeanCenteredBGR, img).Data()

	for i := 0; i < len(bgr); i += 3 {
		for c := 0; c < 3; c++ {
			// channel c of the BGR tensor comes from channel 2-c of the RGB one
			raw := float64(rgb[i+2-c]) * 255
			want := raw - float64(MeanBGR[c])
			if math.Abs(float64(bgr[i+c])-want) > 1e-3 {
				t.Fatalf("element %d channel %d: expected %f, got %f", i/3, c, want, bgr[i+c])
			}
		}
	}
}

func TestMeanCenteredBGRUniformColor(t *testing.T) {
	out := encode(t, MeanCenteredBGR, uniform(300, 200, color.RGBA{R: 200, G: 100, B: 50, A: 255}))
	data := out.Data()

	want := [3]float64{50 - 103.939, 100 - 116.779, 200 - 123.68}
	for c := 0; c < 3; c++ {
		if math.Abs(float64(data[c])-want[c]) > 1.0 {
			t.Errorf("channel %d: expected about %f, got %f", c, want[c], data[c])
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		want Variant
	}{
		{"normalized_rgb", NormalizedRGB},
		{" Mean_Centered_BGR ", MeanCenteredBGR},
	}
	for _, tt := range tests {
		got, err := Parse(tt.name)
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}

	if _, err := Parse("yuv"); !errors.Is(err, ErrUnknownVariant) {
		t.Errorf("expected ErrUnknownVariant, got %v", err)
	}
}

func TestEncodeRejectsBadInput(t *testing.T) {
	if _, err := Variant(0).Encode(noise(4, 4, 0)); !errors.Is(err, ErrUnknownVariant) {
		t.Errorf("expected ErrUnknownVariant, got %v", err)
	}
	if _, err := NormalizedRGB.Encode(image.NewRGBA(image.Rect(0, 0, 0, 0))); err == nil {
		t.Error("expected error for empty image")
	}
}

func TestEncodeDownscaleSamplesNearestPixels(t *testing.T) {
	// A 2x downscale samples even columns only; odd white columns must not
	// bleed into the result.
	img := image.NewRGBA(image.Rect(0, 0, 448, 448))
	for y := 0; y < 448; y++ {
		for x := 0; x < 448; x++ {
			if x%2 == 1 {
				img.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
			} else {
				img.SetRGBA(x, y, color.RGBA{A: 255})
			}
		}
	}

	for i, v := range encode(t, NormalizedRGB, img).Data() {
		if v != 0 {
			t.Fatalf("element %d = %f, want 0", i, v)
		}
	}
}
