package imageproc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prompt-decoder-server/modules/common/apperror"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y += 7 {
		for x := 0; x < w; x += 7 {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodedSize(t *testing.T, payload ImagePayload) (int, int) {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(payload.Base64)
	require.NoError(t, err)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(raw))
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func TestTargetSize(t *testing.T) {
	tests := []struct {
		name          string
		w, h, max     int
		wantW, wantH  int
	}{
		{"landscape downscale", 2000, 1000, 1536, 1536, 768},
		{"portrait downscale", 1000, 2000, 1536, 768, 1536},
		{"square downscale", 3000, 3000, 1536, 1536, 1536},
		{"within bounds", 800, 600, 1536, 800, 600},
		{"exact bound", 1536, 1000, 1536, 1536, 1000},
		{"never below one pixel", 10000, 1, 100, 100, 1},
		{"rounding", 1999, 1000, 1536, 1536, 768},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := TargetSize(tt.w, tt.h, tt.max)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
			assert.LessOrEqual(t, max(w, h), tt.max)
			assert.LessOrEqual(t, w, tt.w)
			assert.LessOrEqual(t, h, tt.h)
		})
	}
}

func TestPreprocessResizesLargeImage(t *testing.T) {
	p := NewProcessor(nil, time.Second)

	payload, err := p.Preprocess(context.Background(), File{Name: "big.png", ContentType: "image/png", Data: pngBytes(t, 2000, 1000)}, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, MimeJPEG, payload.MimeType)
	assert.Equal(t, 1536, payload.Width)
	assert.Equal(t, 768, payload.Height)
	w, h := decodedSize(t, payload)
	assert.Equal(t, 1536, w)
	assert.Equal(t, 768, h)
	assert.True(t, strings.HasPrefix(payload.PreviewURL, "data:image/jpeg;base64,"))
	assert.True(t, strings.HasSuffix(payload.PreviewURL, payload.Base64))
}

func TestPreprocessNeverUpscales(t *testing.T) {
	p := NewProcessor(nil, time.Second)

	payload, err := p.Preprocess(context.Background(), File{ContentType: "image/png", Data: pngBytes(t, 300, 200)}, DefaultOptions())
	require.NoError(t, err)
	w, h := decodedSize(t, payload)
	assert.Equal(t, 300, w)
	assert.Equal(t, 200, h)
}

func TestPreprocessRejectsInvalidInput(t *testing.T) {
	p := NewProcessor(nil, time.Second)

	tests := []struct {
		name string
		file File
	}{
		{"empty", File{ContentType: "image/png"}},
		{"text declared", File{ContentType: "text/plain", Data: pngBytes(t, 10, 10)}},
		{"pdf declared", File{ContentType: "application/pdf", Data: []byte("%PDF-1.4")}},
		{"sniffed text", File{Data: []byte("hello, this is not an image")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Preprocess(context.Background(), tt.file, DefaultOptions())
			require.Error(t, err)
			assert.True(t, apperror.IsType(err, apperror.TypeInvalidInput), "got %v", err)
		})
	}
}

// oversizedPNG - a tiny valid PNG whose header claims w x h pixels
func oversizedPNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	data := pngBytes(t, 1, 1)
	// signature (8) + length (4), then "IHDR" + 13 bytes of header data + crc
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestPreprocessRejectsTooManyPixels(t *testing.T) {
	p := NewProcessor(nil, time.Second)

	start := time.Now()
	_, err := p.Preprocess(context.Background(), File{ContentType: "image/png", Data: oversizedPNG(t, 12000, 12000)}, DefaultOptions())
	require.Error(t, err)
	assert.True(t, apperror.IsType(err, apperror.TypeInvalidInput), "got %v", err)
	assert.Contains(t, err.Error(), "12000x12000")
	assert.Less(t, time.Since(start), time.Second)
}

func TestPreprocessPixelBudget(t *testing.T) {
	p := NewProcessor(nil, time.Second)
	file := File{ContentType: "image/png", Data: pngBytes(t, 400, 200)}

	opts := DefaultOptions()
	opts.MaxPixels = 400 * 200
	payload, err := p.Preprocess(context.Background(), file, opts)
	require.NoError(t, err)
	assert.Equal(t, 400, payload.Width)

	opts.MaxPixels = 400*200 - 1
	_, err = p.Preprocess(context.Background(), file, opts)
	assert.True(t, apperror.IsType(err, apperror.TypeInvalidInput), "got %v", err)

	opts.MaxPixels = -1
	_, err = p.Preprocess(context.Background(), file, opts)
	assert.True(t, apperror.IsType(err, apperror.TypeEncode), "got %v", err)
}

func TestPreprocessSniffsMissingType(t *testing.T) {
	p := NewProcessor(nil, time.Second)

	payload, err := p.Preprocess(context.Background(), File{ContentType: "application/octet-stream", Data: pngBytes(t, 40, 20)}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 40, payload.Width)
}

func TestPreprocessTruncatedPNG(t *testing.T) {
	p := NewProcessor(nil, time.Second)

	data := pngBytes(t, 200, 200)
	_, err := p.Preprocess(context.Background(), File{ContentType: "image/png", Data: data[:len(data)/2]}, DefaultOptions())
	require.Error(t, err)
	assert.True(t, apperror.IsType(err, apperror.TypeDecode), "got %v", err)
}

func TestPreprocessRejectsBadOptions(t *testing.T) {
	p := NewProcessor(nil, time.Second)
	file := File{ContentType: "image/png", Data: pngBytes(t, 10, 10)}

	_, err := p.Preprocess(context.Background(), file, Options{MaxDimension: 100, Quality: 0.8, OutputFormat: "image/bmp"})
	assert.True(t, apperror.IsType(err, apperror.TypeEncode))

	_, err = p.Preprocess(context.Background(), file, Options{MaxDimension: 100, Quality: 1.5, OutputFormat: MimeJPEG})
	assert.True(t, apperror.IsType(err, apperror.TypeEncode))
}

func TestPreprocessWorkerAndInlineAgree(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Start()
	defer pool.Close()

	data := pngBytes(t, 1800, 600)
	file := File{ContentType: "image/png", Data: data}

	viaPool, err := NewProcessor(pool, 5*time.Second).Preprocess(context.Background(), file, DefaultOptions())
	require.NoError(t, err)
	inline, err := NewProcessor(nil, 5*time.Second).Preprocess(context.Background(), file, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, inline.Width, viaPool.Width)
	assert.Equal(t, inline.Height, viaPool.Height)
	assert.Equal(t, inline.Base64, viaPool.Base64)
}

func TestPreprocessFallsBackOnTimeout(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Start()

	// occupy the only worker
	release := make(chan struct{})
	require.True(t, pool.TrySubmit(func() { <-release }))
	defer func() {
		close(release)
		pool.Close()
	}()

	p := NewProcessor(pool, 30*time.Millisecond)
	payload, err := p.Preprocess(context.Background(), File{ContentType: "image/png", Data: pngBytes(t, 64, 32)}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 64, payload.Width)
	assert.Equal(t, 32, payload.Height)
}

func TestPreprocessFallsBackWhenPoolClosed(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Start()
	pool.Close()

	assert.False(t, pool.TrySubmit(func() {}))

	payload, err := NewProcessor(pool, time.Second).Preprocess(context.Background(), File{ContentType: "image/png", Data: pngBytes(t, 20, 20)}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 20, payload.Width)
}

func TestPreprocessWebP(t *testing.T) {
	opts := DefaultOptions()
	opts.OutputFormat = MimeWebP

	payload, err := NewProcessor(nil, time.Second).Preprocess(context.Background(), File{ContentType: "image/png", Data: pngBytes(t, 50, 40)}, opts)
	require.NoError(t, err)
	assert.Equal(t, MimeWebP, payload.MimeType)
	assert.True(t, strings.HasPrefix(payload.PreviewURL, "data:image/webp;base64,"))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestReadFile(t *testing.T) {
	f, err := ReadFile(bytes.NewReader([]byte("abc")), "a.png", "image/png", 10)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), f.Data)
	assert.Equal(t, "a.png", f.Name)

	_, err = ReadFile(failingReader{}, "a.png", "image/png", 10)
	assert.True(t, apperror.IsType(err, apperror.TypeIO))

	_, err = ReadFile(bytes.NewReader(make([]byte, 11)), "a.png", "image/png", 10)
	assert.True(t, apperror.IsType(err, apperror.TypeInvalidInput))
}

func TestIsPreprocessError(t *testing.T) {
	assert.True(t, IsPreprocessError(apperror.NewDecodeError("x", nil)))
	assert.True(t, IsPreprocessError(apperror.NewInvalidImageError("x", nil)))
	assert.False(t, IsPreprocessError(apperror.NewInvalidInputError("sessionId is required", nil)))
	assert.False(t, IsPreprocessError(apperror.NewMalformedResponseError("x", nil)))
	assert.False(t, IsPreprocessError(errors.New("x")))
}
