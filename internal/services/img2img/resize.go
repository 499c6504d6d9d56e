package img2img

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

// resizeFrame scales a PNG or JPEG frame to the target dimensions and
// re-encodes it as PNG. Frames already at the target size pass through
// untouched.
func resizeFrame(frame []byte, width, height int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	bounds := src.Bounds()
	if bounds.Dx() == width && bounds.Dy() == height {
		return frame, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode resized frame: %w", err)
	}
	return buf.Bytes(), nil
}
