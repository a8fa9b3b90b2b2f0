// Package imaging decodes camera frames and computes the pixel statistics used
// by the liveness and quality checks: grayscale patches, local binary pattern
// entropy and Laplacian sharpness.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/harhit22/new-auto-attendace/internal/constants"
	"github.com/harhit22/new-auto-attendace/internal/face"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var errEmptyImage = errors.New("empty image data")

// Decode decodes JPEG, PNG, GIF, BMP or WebP data.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errEmptyImage
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// DecodeFrame decodes data into a burst frame, downscaling anything larger than
// maxSize on its longest side. The original bytes are kept only when no
// resize happened, so the model server sees the same pixels as the local checks.
func DecodeFrame(index int, data []byte, maxSize int) (face.Frame, error) {
	img, err := Decode(data)
	if err != nil {
		return face.Frame{}, fmt.Errorf("frame %d: %w", index, err)
	}
	if maxSize <= 0 {
		maxSize = constants.MaxImageSize
	}

	resized, changed := Downscale(img, maxSize)
	frame := face.Frame{Index: index, Image: resized}
	if !changed {
		frame.Data = data
	}
	return frame, nil
}

// Downscale scales img so neither side exceeds maxSize, keeping the aspect ratio.
// The second return value reports whether a new image was produced.
func Downscale(img image.Image, maxSize int) (image.Image, bool) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= maxSize && height <= maxSize {
		return img, false
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = int(float64(height) * float64(maxSize) / float64(width))
	} else {
		newHeight = maxSize
		newWidth = int(float64(width) * float64(maxSize) / float64(height))
	}

	resized := image.NewRGBA(image.Rect(0, 0, max(1, newWidth), max(1, newHeight)))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
	return resized, true
}

// EncodeJPEG encodes img as a JPEG at the shared quality setting.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: constants.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// FrameBytes returns the encoded bytes to send for a frame, encoding the
// decoded image when the original bytes are not available.
func FrameBytes(f face.Frame) ([]byte, error) {
	if len(f.Data) > 0 {
		return f.Data, nil
	}
	if f.Image == nil {
		return nil, errEmptyImage
	}
	return EncodeJPEG(f.Image)
}
