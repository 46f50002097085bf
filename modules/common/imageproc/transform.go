package imageproc

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif" // GIF decoder
	"image/jpeg"
	_ "image/png" // PNG decoder
	"math"

	"github.com/anthonynsimon/bild/clone"
	"github.com/anthonynsimon/bild/transform"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	_ "golang.org/x/image/webp" // WebP decoder

	"prompt-decoder-server/modules/common/apperror"
)

// TargetSize - scale so the longer side equals maxDimension when either side exceeds it.
// Never upscales; each side is at least 1.
func TargetSize(width, height, maxDimension int) (int, int) {
	if width <= maxDimension && height <= maxDimension {
		return width, height
	}

	w, h := float64(width), float64(height)
	if width >= height {
		h = h * float64(maxDimension) / w
		w = float64(maxDimension)
	} else {
		w = w * float64(maxDimension) / h
		h = float64(maxDimension)
	}

	return max(1, int(math.Round(w))), max(1, int(math.Round(h)))
}

// checkPixels - read only the header and reject images above the pixel budget,
// so a small file declaring huge dimensions is never fully decoded
func checkPixels(data []byte, budget int) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return apperror.NewDecodeError("file is not a valid image", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return apperror.NewDecodeError(fmt.Sprintf("invalid image dimensions %dx%d", cfg.Width, cfg.Height), nil)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(budget) {
		return apperror.NewInvalidImageError(
			fmt.Sprintf("image is %dx%d, more than %d pixels", cfg.Width, cfg.Height, budget), nil)
	}
	return nil
}

// process - decode, resize and re-encode. Shared by the worker and the fallback path.
func process(data []byte, opts Options) (ImagePayload, error) {
	if err := checkPixels(data, opts.pixelBudget()); err != nil {
		return ImagePayload{}, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return ImagePayload{}, apperror.NewDecodeError("file is not a valid image", err)
	}

	bounds := img.Bounds()
	width, height := TargetSize(bounds.Dx(), bounds.Dy(), opts.MaxDimension)

	var surface *image.RGBA
	if width != bounds.Dx() || height != bounds.Dy() {
		surface = transform.Resize(img, width, height, transform.Lanczos)
	} else {
		surface = clone.AsRGBA(img)
	}

	encoded, err := encode(surface, opts)
	if err != nil {
		return ImagePayload{}, err
	}

	b64 := base64.StdEncoding.EncodeToString(encoded)
	payload := ImagePayload{
		Base64:     b64,
		MimeType:   opts.OutputFormat,
		PreviewURL: fmt.Sprintf("data:%s;base64,%s", opts.OutputFormat, b64),
		Width:      width,
		Height:     height,
	}

	return payload, nil
}

// encode - re-encode the rendered surface in the requested format
func encode(img *image.RGBA, opts Options) ([]byte, error) {
	var buf bytes.Buffer

	switch opts.OutputFormat {
	case MimeJPEG:
		quality := int(math.Round(opts.Quality * 100))
		if err := jpeg.Encode(&buf, flatten(img), &jpeg.Options{Quality: min(100, max(1, quality))}); err != nil {
			return nil, apperror.NewEncodeError("failed to encode JPEG", err)
		}
	case MimeWebP:
		options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(opts.Quality*100))
		if err != nil {
			return nil, apperror.NewEncodeError("failed to create WebP encoder options", err)
		}
		if err := webp.Encode(&buf, img, options); err != nil {
			return nil, apperror.NewEncodeError("failed to encode WebP", err)
		}
	default:
		return nil, apperror.NewEncodeError("unsupported output format: "+opts.OutputFormat, nil)
	}

	return buf.Bytes(), nil
}

// flatten - composite onto white, JPEG has no alpha channel
func flatten(img *image.RGBA) *image.RGBA {
	out := image.NewRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Over)
	return out
}
