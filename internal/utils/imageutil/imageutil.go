package imageutil

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strconv"
	"strings"

	"github.com/anthonynsimon/bild/transform"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/bmp"
	"golang.org/x/image/webp"
)

const (
	DefaultJPEGQuality = 90
	// MaxPixels bounds decoded images; a 12000x12000 photo is already far
	// beyond any camera the service is used with.
	MaxPixels = 144_000_000
)

var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrImageTooLarge     = errors.New("image dimensions too large")
	ErrEmptyCrop         = errors.New("crop rectangle does not intersect the image")
)

var decoders = map[string]func(r *bytes.Reader) (image.Image, error){
	"image/jpeg": func(r *bytes.Reader) (image.Image, error) { return jpeg.Decode(r) },
	"image/png":  func(r *bytes.Reader) (image.Image, error) { return png.Decode(r) },
	"image/gif":  func(r *bytes.Reader) (image.Image, error) { return gif.Decode(r) },
	"image/bmp":  func(r *bytes.Reader) (image.Image, error) { return bmp.Decode(r) },
	"image/webp": func(r *bytes.Reader) (image.Image, error) { return webp.Decode(r) },
}

var configDecoders = map[string]func(r *bytes.Reader) (image.Config, error){
	"image/jpeg": func(r *bytes.Reader) (image.Config, error) { return jpeg.DecodeConfig(r) },
	"image/png":  func(r *bytes.Reader) (image.Config, error) { return png.DecodeConfig(r) },
	"image/gif":  func(r *bytes.Reader) (image.Config, error) { return gif.DecodeConfig(r) },
	"image/bmp":  func(r *bytes.Reader) (image.Config, error) { return bmp.DecodeConfig(r) },
	"image/webp": func(r *bytes.Reader) (image.Config, error) { return webp.DecodeConfig(r) },
}

// Rect is a crop rectangle in source pixel space, relative to the image's
// top-left corner.
type Rect struct {
	X      int `json:"x" form:"x"`
	Y      int `json:"y" form:"y"`
	Width  int `json:"width" form:"width"`
	Height int `json:"height" form:"height"`
}

func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// ParseRect parses "x,y,width,height".
func ParseRect(s string) (Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Rect{}, fmt.Errorf("crop must be x,y,width,height, got %q", s)
	}

	values := make([]int, len(parts))
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return Rect{}, fmt.Errorf("invalid crop value %q: %w", part, err)
		}
		values[i] = v
	}

	return Rect{X: values[0], Y: values[1], Width: values[2], Height: values[3]}, nil
}

// DetectMIME sniffs the content type of data.
func DetectMIME(data []byte) string {
	return mimetype.Detect(data).String()
}

func IsSupported(mime string) bool {
	_, ok := decoders[mime]
	return ok
}

// Decode sniffs the format of data and decodes it. It returns the detected
// MIME type alongside the image.
func Decode(data []byte) (image.Image, string, error) {
	mime := DetectMIME(data)

	decode, ok := decoders[mime]
	if !ok {
		return nil, mime, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mime)
	}

	cfg, err := configDecoders[mime](bytes.NewReader(data))
	if err != nil {
		return nil, mime, fmt.Errorf("failed to read image header: %w", err)
	}

	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > MaxPixels {
		return nil, mime, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	img, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, mime, fmt.Errorf("failed to decode %s: %w", mime, err)
	}

	return img, mime, nil
}

// Crop returns exactly the pixels of img inside rect. The rectangle is
// clipped to the image bounds.
func Crop(img image.Image, rect Rect) (image.Image, error) {
	if rect.Empty() {
		return nil, ErrEmptyCrop
	}

	bounds := img.Bounds()
	area := image.Rect(rect.X, rect.Y, rect.X+rect.Width, rect.Y+rect.Height).
		Add(bounds.Min).
		Intersect(bounds)
	if area.Empty() {
		return nil, ErrEmptyCrop
	}

	return transform.Crop(img, area), nil
}

// ResizeBilinear samples img at width x height and returns straight
// (non-premultiplied) RGB values in [0, 255], row-major with 3 channels per
// pixel. Output pixel (x, y) reads source point (x*srcW/width, y*srcH/height)
// and blends only the four nearest source pixels, without corner alignment or
// half-pixel centers, at any scale. Values stay unrounded.
func ResizeBilinear(img image.Image, width, height int) []float32 {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	scaleX := float32(srcW) / float32(width)
	scaleY := float32(srcH) / float32(height)

	at := func(x, y int) [3]float32 {
		c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
		return [3]float32{float32(c.R), float32(c.G), float32(c.B)}
	}

	out := make([]float32, width*height*3)
	for y := 0; y < height; y++ {
		sy := float32(y) * scaleY
		y0 := min(int(sy), srcH-1)
		y1 := min(y0+1, srcH-1)
		dy := sy - float32(y0)

		for x := 0; x < width; x++ {
			sx := float32(x) * scaleX
			x0 := min(int(sx), srcW-1)
			x1 := min(x0+1, srcW-1)
			dx := sx - float32(x0)

			tl, tr := at(x0, y0), at(x1, y0)
			bl, br := at(x0, y1), at(x1, y1)

			i := (y*width + x) * 3
			for c := 0; c < 3; c++ {
				top := tl[c] + (tr[c]-tl[c])*dx
				bottom := bl[c] + (br[c]-bl[c])*dx
				out[i+c] = top + (bottom-top)*dy
			}
		}
	}

	return out
}

func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	var output bytes.Buffer
	if err := jpeg.Encode(&output, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}

	return output.Bytes(), nil
}

// CropJPEG decodes data, crops it to rect and re-encodes the result as JPEG.
func CropJPEG(data []byte, rect Rect, quality int) ([]byte, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}

	cropped, err := Crop(img, rect)
	if err != nil {
		return nil, err
	}

	return EncodeJPEG(cropped, quality)
}
