package imageproc

import (
	"time"

	"prompt-decoder-server/modules/common/apperror"
)

const (
	MimeJPEG = "image/jpeg"
	MimeWebP = "image/webp"

	DefaultMaxDimension = 1536
	DefaultQuality      = 0.85
	DefaultTimeout      = 8 * time.Second
	DefaultMaxPixels    = 40_000_000
)

// Options - resize and re-encode settings
type Options struct {
	MaxDimension int     `json:"maxDimension"`
	Quality      float64 `json:"quality"`      // (0,1]
	OutputFormat string  `json:"outputFormat"` // image/jpeg or image/webp
	MaxPixels    int     `json:"maxPixels,omitempty"` // decode budget, 0 means DefaultMaxPixels
}

// DefaultOptions - 1536px, 0.85, JPEG
func DefaultOptions() Options {
	return Options{
		MaxDimension: DefaultMaxDimension,
		Quality:      DefaultQuality,
		OutputFormat: MimeJPEG,
		MaxPixels:    DefaultMaxPixels,
	}
}

// pixelBudget - largest width*height that will be decoded
func (o Options) pixelBudget() int {
	if o.MaxPixels > 0 {
		return o.MaxPixels
	}
	return DefaultMaxPixels
}

// Validate - reject options the encoder cannot honour
func (o Options) Validate() error {
	if o.MaxDimension <= 0 {
		return apperror.NewEncodeError("maxDimension must be positive", nil)
	}
	if o.Quality <= 0 || o.Quality > 1 {
		return apperror.NewEncodeError("quality must be in (0,1]", nil)
	}
	if o.OutputFormat != MimeJPEG && o.OutputFormat != MimeWebP {
		return apperror.NewEncodeError("unsupported output format: "+o.OutputFormat, nil)
	}
	if o.MaxPixels < 0 {
		return apperror.NewEncodeError("maxPixels must not be negative", nil)
	}
	return nil
}

// File - an uploaded file as received from the client
type File struct {
	Name        string
	ContentType string // declared type, may be empty
	Data        []byte
}

// ImagePayload - the bounded, re-encoded image sent to the model
type ImagePayload struct {
	Base64     string `json:"base64"`
	MimeType   string `json:"mimeType"`
	PreviewURL string `json:"previewUrl"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
}
