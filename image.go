package polybot

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"
	"net/http"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/blacktop/polybot/internal/logutil"
)

const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEGIF  = "image/gif"
	MIMEWebP = "image/webp"
)

const (
	// MinImageDimension is the shortest side an image is shrunk to before giving up.
	MinImageDimension = 64

	shrinkRatio    = 0.9
	initialMargin  = 0.9
	initialQuality = 85
	minQuality     = 55
	qualityStep    = 10
)

// Image is an attachment: encoded bytes, their MIME type and alt text.
type Image struct {
	Data        []byte
	MIMEType    string
	Description string
}

// LoadImage reads an image file and detects its MIME type from its content.
func LoadImage(path, description string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Image{}, ValidationError{Service: "polybot", Reason: fmt.Sprintf("image %q not found", path)}
		}
		return Image{}, fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return Image{}, ErrEmptyImage
	}
	return Image{Data: data, MIMEType: DetectImageType(data), Description: description}, nil
}

// DetectImageType sniffs the MIME type from the leading bytes.
func DetectImageType(data []byte) string {
	detected := http.DetectContentType(data)
	if i := strings.IndexByte(detected, ';'); i >= 0 {
		detected = detected[:i]
	}
	return detected
}

// Size returns the image's width and height without decoding the pixels.
func (img Image) Size() (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		return 0, 0, fmt.Errorf("decode image config: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

func (img Image) String() string {
	return fmt.Sprintf("Image(%s, %s, %q)", img.MIMEType, humanize.Bytes(uint64(len(img.Data))), img.Description)
}

func canEncode(mimeType string) bool {
	switch mimeType {
	case MIMEJPEG, MIMEPNG, MIMEGIF:
		return true
	}
	return false
}

// Normalize returns a copy of img that satisfies the profile's type, byte
// and pixel limits. The input is never modified.
func Normalize(img Image, p Profile) (Image, error) {
	if len(img.Data) == 0 {
		return Image{}, ErrEmptyImage
	}
	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = DetectImageType(img.Data)
	}

	target := mimeType
	if len(p.ImageTypes) > 0 && !p.SupportsImageType(mimeType) {
		target = ""
		for _, t := range p.ImageTypes {
			if canEncode(t) {
				target = t
				break
			}
		}
		if target == "" {
			return Image{}, &UnsupportedImageError{MIMEType: mimeType, Accepted: p.ImageTypes}
		}
	}

	width, height, err := img.Size()
	if err != nil {
		return Image{}, err
	}
	size := int64(len(img.Data))

	if target == mimeType && fits(size, width, height, p) {
		return Image{Data: bytes.Clone(img.Data), MIMEType: mimeType, Description: img.Description}, nil
	}
	if !canEncode(target) {
		// Supported but over a limit, and we cannot write this format: fall
		// back to any other accepted format we can write.
		target = ""
		for _, t := range p.ImageTypes {
			if canEncode(t) {
				target = t
				break
			}
		}
		if target == "" {
			return Image{}, &ImageTooLargeError{Size: size, Limit: p.MaxImageBytes}
		}
	}

	src, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return Image{}, fmt.Errorf("decode image: %w", err)
	}

	ratio := initialRatio(size, width, height, p)
	quality := initialQuality
	for {
		w := int(float64(width) * ratio)
		h := int(float64(height) * ratio)
		if min(w, h) < MinImageDimension && ratio < 1 {
			return Image{}, &ImageTooLargeError{Size: size, Limit: p.MaxImageBytes}
		}

		data, err := encode(scale(src, w, h, target), target, quality)
		if err != nil {
			return Image{}, err
		}
		logutil.Debugf("re-encoded image %dx%d (%s) as %s %dx%d: %s (limit %s)",
			width, height, humanize.Bytes(uint64(len(img.Data))), target, w, h,
			humanize.Bytes(uint64(len(data))), humanize.Bytes(uint64(p.MaxImageBytes)))

		size = int64(len(data))
		if fits(size, w, h, p) {
			return Image{Data: data, MIMEType: target, Description: img.Description}, nil
		}

		if target == MIMEJPEG && quality > minQuality {
			quality -= qualityStep
		}
		ratio *= shrinkRatio
	}
}

func fits(size int64, width, height int, p Profile) bool {
	if p.MaxImageBytes > 0 && size > p.MaxImageBytes {
		return false
	}
	if p.MaxImagePixels > 0 && width*height > p.MaxImagePixels {
		return false
	}
	return true
}

// initialRatio estimates the first downscale from the byte overshoot, the
// same way a human would eyeball it, leaving a margin for encoder noise.
func initialRatio(size int64, width, height int, p Profile) float64 {
	ratio := 1.0
	if p.MaxImageBytes > 0 && size > p.MaxImageBytes {
		ratio = math.Sqrt(float64(p.MaxImageBytes) * initialMargin / float64(size))
	}
	if pixels := width * height; p.MaxImagePixels > 0 && pixels > p.MaxImagePixels {
		ratio = min(ratio, math.Sqrt(float64(p.MaxImagePixels)/float64(pixels)))
	}
	return ratio
}

func scale(src image.Image, width, height int, target string) image.Image {
	bounds := src.Bounds()
	if width == bounds.Dx() && height == bounds.Dy() && target != MIMEJPEG {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if target == MIMEJPEG {
		draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}

func encode(img image.Image, mimeType string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch mimeType {
	case MIMEJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	case MIMEPNG:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		err = enc.Encode(&buf, img)
	case MIMEGIF:
		err = gif.Encode(&buf, img, nil)
	default:
		return nil, fmt.Errorf("cannot encode %s", mimeType)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", mimeType, err)
	}
	return buf.Bytes(), nil
}
