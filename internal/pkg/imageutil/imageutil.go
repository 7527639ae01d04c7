// Package imageutil normalizes student photos for embedding into documents.
package imageutil

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

var ErrUnsupported = errors.New("unsupported image data")

const jpegQuality = 85

// Decode accepts JPEG, PNG and GIF input.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrUnsupported
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err == nil {
		return img, format, nil
	}
	// Some encoders write headers image.Decode does not sniff.
	if img, jerr := jpeg.Decode(bytes.NewReader(data)); jerr == nil {
		return img, "jpeg", nil
	}
	if img, perr := png.Decode(bytes.NewReader(data)); perr == nil {
		return img, "png", nil
	}
	return nil, "", fmt.Errorf("%w: %v", ErrUnsupported, err)
}

// FitJPEG scales data to fit inside maxW x maxH keeping its aspect ratio and
// re-encodes it as JPEG on a white background. Smaller images are not
// enlarged.
func FitJPEG(data []byte, maxW, maxH int) ([]byte, int, int, error) {
	src, _, err := Decode(data)
	if err != nil {
		return nil, 0, 0, err
	}
	w, h := fit(src.Bounds().Dx(), src.Bounds().Dy(), maxW, maxH)
	if w == 0 || h == 0 {
		return nil, 0, 0, fmt.Errorf("%w: empty bounds", ErrUnsupported)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, 0, 0, fmt.Errorf("encode jpeg failed: %w", err)
	}
	return buf.Bytes(), w, h, nil
}

func fit(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	if maxW <= 0 || maxH <= 0 || (w <= maxW && h <= maxH) {
		return w, h
	}
	if w*maxH > h*maxW {
		return maxW, max(1, h*maxW/w)
	}
	return max(1, w*maxH/h), maxH
}
