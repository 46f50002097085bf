package imageproc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"prompt-decoder-server/modules/common/apperror"
	"prompt-decoder-server/modules/common/logger"
)

// Processor - runs preprocessing on a worker pool with a synchronous fallback
type Processor struct {
	pool    *WorkerPool
	timeout time.Duration
}

// NewProcessor - pool may be nil, in which case every job runs on the caller
func NewProcessor(pool *WorkerPool, timeout time.Duration) *Processor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Processor{pool: pool, timeout: timeout}
}

type result struct {
	payload ImagePayload
	err     error
	panicV  any
}

// ReadFile - read an upload fully. Read failures become IOError; more than maxBytes is InvalidInputError.
func ReadFile(r io.Reader, name, contentType string, maxBytes int64) (File, error) {
	reader := r
	if maxBytes > 0 {
		reader = io.LimitReader(r, maxBytes+1)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return File{}, apperror.NewIOError("failed to read uploaded file", err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return File{}, apperror.NewInvalidImageError(fmt.Sprintf("file exceeds %d bytes", maxBytes), nil)
	}

	return File{Name: name, ContentType: contentType, Data: data}, nil
}

// Preprocess - validate, decode, bound and re-encode an uploaded image
func (p *Processor) Preprocess(ctx context.Context, file File, opts Options) (ImagePayload, error) {
	if len(file.Data) == 0 {
		return ImagePayload{}, apperror.NewInvalidImageError("file is empty", nil)
	}

	declared := declaredType(file)
	if !strings.HasPrefix(declared, "image/") {
		return ImagePayload{}, apperror.NewInvalidImageError("file is not an image: "+declared, nil)
	}

	if err := opts.Validate(); err != nil {
		return ImagePayload{}, err
	}

	if err := ctx.Err(); err != nil {
		return ImagePayload{}, err
	}

	start := time.Now()
	payload, path, err := p.dispatch(ctx, file.Data, opts)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"file":  file.Name,
			"path":  path,
			"error": err.Error(),
		}).Warn("⚠️  [Preprocess] Failed")
		return ImagePayload{}, err
	}

	logger.WithFields(logrus.Fields{
		"file":        file.Name,
		"declared":    declared,
		"path":        path,
		"width":       payload.Width,
		"height":      payload.Height,
		"input_bytes": len(file.Data),
		"b64_chars":   len(payload.Base64),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("✅ [Preprocess] Image ready")

	return payload, nil
}

// dispatch - try the pool first and fall back to the calling goroutine on
// unavailability, panic or timeout. Returns which path produced the result.
func (p *Processor) dispatch(ctx context.Context, data []byte, opts Options) (ImagePayload, string, error) {
	done := make(chan result, 1)
	job := func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{panicV: r}
			}
		}()
		payload, err := process(data, opts)
		done <- result{payload: payload, err: err}
	}

	if !p.pool.TrySubmit(job) {
		logger.Debugf("🔄 [Preprocess] Worker pool unavailable, processing inline")
		payload, err := processSafely(data, opts)
		return payload, "inline", err
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.panicV != nil {
			logger.Warnf("⚠️  [Preprocess] Worker panicked (%v), processing inline", res.panicV)
			payload, err := processSafely(data, opts)
			return payload, "fallback", err
		}
		return res.payload, "worker", res.err
	case <-timer.C:
		logger.Warnf("⏱️  [Preprocess] Worker exceeded %s, processing inline", p.timeout)
		payload, err := processSafely(data, opts)
		return payload, "fallback", err
	case <-ctx.Done():
		return ImagePayload{}, "worker", ctx.Err()
	}
}

// processSafely - run process on the caller, turning a panic into a DecodeError
func processSafely(data []byte, opts Options) (payload ImagePayload, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperror.NewDecodeError("image processing failed", fmt.Errorf("panic: %v", r))
		}
	}()
	return process(data, opts)
}

// declaredType - the client's declared type, sniffed from content when missing or generic
func declaredType(file File) string {
	ct := strings.ToLower(strings.TrimSpace(file.ContentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "" || ct == "application/octet-stream" {
		return mimetype.Detect(file.Data).String()
	}
	return ct
}

// IsPreprocessError - true for failures that mean the user should pick another file
func IsPreprocessError(err error) bool {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Type {
	case apperror.TypeDecode, apperror.TypeEncode, apperror.TypeIO:
		return true
	case apperror.TypeInvalidInput:
		return appErr.Image
	}
	return false
}
