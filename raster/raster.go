// Package raster decodes, crops and re-encodes screenshot images.
package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/gen2brain/heic"
	"golang.org/x/image/draw"

	// Register WebP decoder so image.Decode can handle it
	_ "golang.org/x/image/webp"
)

// Format is an encodable output format
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatGIF  Format = "gif"
)

// JPEGQuality is used for every JPEG this package writes
const JPEGQuality = 95

// ErrUnsupported is returned for bytes no registered decoder understands
var ErrUnsupported = errors.New("unsupported image format")

// Pipeline is the image boundary the gallery and crop engine depend on
type Pipeline interface {
	Dimensions(data []byte) (image.Point, error)
	Crop(data []byte, r image.Rectangle) ([]byte, error)
	Convert(data []byte, to Format) ([]byte, error)
}

// Codec implements Pipeline with the standard decoders plus WebP and HEIC
type Codec struct{}

// NewCodec returns the default Pipeline
func NewCodec() *Codec {
	return &Codec{}
}

// Dimensions returns the native pixel size without decoding the full image when possible
func (Codec) Dimensions(data []byte) (image.Point, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err == nil {
		return image.Pt(cfg.Width, cfg.Height), nil
	}
	if isHEIC(data) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return image.Point{}, fmt.Errorf("decode heic: %w", err)
		}
		return img.Bounds().Size(), nil
	}
	if format == "" {
		return image.Point{}, ErrUnsupported
	}
	return image.Point{}, fmt.Errorf("decode %s config: %w", format, err)
}

// Crop cuts r out of the image. r is in native pixel coordinates relative to
// the image origin and must already be clamped by the caller. JPEG and GIF
// sources keep their format; WebP and HEIC have no encoder and become PNG, so
// callers naming files by format should use DetectExtension on the result.
func (Codec) Crop(data []byte, r image.Rectangle) ([]byte, error) {
	src, format, err := decode(data)
	if err != nil {
		return nil, err
	}

	b := src.Bounds()
	region := r.Add(b.Min).Intersect(b)
	if region.Empty() {
		return nil, fmt.Errorf("crop region %v outside image bounds %v", r, b.Size())
	}

	dst := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
	draw.Draw(dst, dst.Bounds(), src, region.Min, draw.Src)

	switch format {
	case "jpeg":
		return encode(dst, FormatJPEG)
	case "gif":
		return encode(dst, FormatGIF)
	}
	return encode(dst, FormatPNG)
}

// Convert re-encodes the image in the target format
func (Codec) Convert(data []byte, to Format) ([]byte, error) {
	img, _, err := decode(data)
	if err != nil {
		return nil, err
	}
	return encode(img, to)
}

// Thumbnail scales the image down to maxWidth (never up) and encodes it as JPEG
func (Codec) Thumbnail(data []byte, maxWidth int) ([]byte, error) {
	src, _, err := decode(data)
	if err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if maxWidth > 0 && w > maxWidth {
		h = h * maxWidth / w
		w = maxWidth
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return encode(dst, FormatJPEG)
}

// Extension returns the file extension for a format, including the dot
func Extension(f Format) string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatGIF:
		return ".gif"
	}
	return ".png"
}

// DetectExtension returns the file extension matching the encoded bytes, or
// "" when no registered decoder recognizes them.
func DetectExtension(data []byte) string {
	if isHEIC(data) {
		return ".heic"
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	switch format {
	case "jpeg":
		return ".jpg"
	case "png", "gif", "webp":
		return "." + format
	}
	return ""
}

func decode(data []byte) (image.Image, string, error) {
	// HEIC/HEIF needs a dedicated decoder (not registered with image.Decode)
	if isHEIC(data) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("decode heic: %w", err)
		}
		return img, "heic", nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if errors.Is(err, image.ErrFormat) {
		return nil, "", ErrUnsupported
	}
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

func encode(img image.Image, to Format) ([]byte, error) {
	var buf bytes.Buffer
	switch to {
	case FormatJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case FormatGIF:
		if err := gif.Encode(&buf, img, nil); err != nil {
			return nil, fmt.Errorf("encode gif: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown output format %q", to)
	}
	return buf.Bytes(), nil
}

// isHEIC sniffs the ISO BMFF ftyp box for HEIF brands
func isHEIC(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "hevc", "hevx", "mif1", "msf1":
		return true
	}
	return false
}
