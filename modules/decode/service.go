package decode

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"prompt-decoder-server/modules/common/apperror"
	"prompt-decoder-server/modules/common/cancel"
	"prompt-decoder-server/modules/common/gemini"
	"prompt-decoder-server/modules/common/imageproc"
	"prompt-decoder-server/modules/common/logger"
	"prompt-decoder-server/modules/common/model"
	"prompt-decoder-server/modules/history"
	"prompt-decoder-server/modules/realtime"
)

// Analyzer - remote model operations used by the service (*gemini.Client)
type Analyzer interface {
	DecodeImage(ctx context.Context, image []byte, mimeType string, count int, opts ...gemini.CallOption) ([]byte, error)
	OptimizePrompt(ctx context.Context, original string, opts ...gemini.CallOption) ([]byte, error)
	TranslateText(ctx context.Context, text, targetLang string, opts ...gemini.CallOption) (string, error)
}

// Service - decode, optimise and translate with history and progress events
type Service struct {
	analyzer  Analyzer
	processor *imageproc.Processor
	options   imageproc.Options
	history   history.Store
	publisher realtime.Publisher
	cancels   *cancel.Registry

	batchSize  int
	batchPause time.Duration
}

// Deps - collaborators of the service. Nil publisher and cancels get no-op defaults.
type Deps struct {
	Analyzer  Analyzer
	Processor *imageproc.Processor
	Options   imageproc.Options
	History   history.Store
	Publisher realtime.Publisher
	Cancels   *cancel.Registry
}

// NewService - build the service
func NewService(deps Deps) *Service {
	s := &Service{
		analyzer:   deps.Analyzer,
		processor:  deps.Processor,
		options:    deps.Options,
		history:    deps.History,
		publisher:  deps.Publisher,
		cancels:    deps.Cancels,
		batchSize:  optimizeBatchSize,
		batchPause: optimizeBatchPause,
	}
	if s.processor == nil {
		s.processor = imageproc.NewProcessor(nil, imageproc.DefaultTimeout)
	}
	if s.options == (imageproc.Options{}) {
		s.options = imageproc.DefaultOptions()
	}
	if s.publisher == nil {
		s.publisher = realtime.Discard{}
	}
	if s.cancels == nil {
		s.cancels = cancel.NewRegistry()
	}
	return s
}

// Cancel - stop the in-flight decode of a session
func (s *Service) Cancel(session string) bool {
	return s.cancels.Cancel(session)
}

// Preprocess - bound and re-encode an upload, reporting progress to the session
func (s *Service) Preprocess(ctx context.Context, session string, file imageproc.File) (imageproc.ImagePayload, error) {
	s.publish(realtime.Event{Type: realtime.EventPreprocessing, SessionID: session})

	payload, err := s.processor.Preprocess(ctx, file, s.options)
	if err != nil {
		s.fail(session, "", err)
		return imageproc.ImagePayload{}, err
	}
	return payload, nil
}

// Decode - reconstruct prompts for an already preprocessed image.
// A newer decode for the same session cancels this one.
func (s *Service) Decode(ctx context.Context, req DecodeRequest) (*DecodeResult, error) {
	count := model.ClampCount(req.Count)

	ctx, release := s.cancels.Begin(ctx, req.SessionID)
	defer release()

	fields := logrus.Fields{
		"session": req.SessionID,
		"job":     req.JobID,
		"count":   count,
	}

	data, err := base64.StdEncoding.DecodeString(req.Image.Base64)
	if err != nil || len(data) == 0 {
		err = apperror.NewInvalidImageError("image payload is not valid base64", err)
		s.fail(req.SessionID, req.JobID, err)
		return nil, err
	}

	s.publish(realtime.Event{Type: realtime.EventAnalyzing, SessionID: req.SessionID, JobID: req.JobID})
	logger.WithFields(fields).Info("🔍 [Decode] Analyzing image")

	start := time.Now()
	raw, err := s.analyzer.DecodeImage(ctx, data, req.Image.MimeType, count, s.retryObserver(req.SessionID, req.JobID))
	if err != nil {
		s.fail(req.SessionID, req.JobID, err)
		return nil, err
	}

	result, err := model.Normalize(raw)
	if err != nil {
		s.fail(req.SessionID, req.JobID, err)
		return nil, err
	}

	if len(result.DetectedTexts) > 0 {
		s.publish(realtime.Event{Type: realtime.EventTranslating, SessionID: req.SessionID, JobID: req.JobID})
		result = s.translateDetected(ctx, result)
	}

	// translation swallows per-item errors, so a cancel during it surfaces here
	if err := ctx.Err(); err != nil {
		s.fail(req.SessionID, req.JobID, err)
		return nil, err
	}

	entry := history.NewEntry(req.Image, result)
	if s.history != nil && req.SessionID != "" {
		if err := s.history.Add(ctx, req.SessionID, entry); err != nil {
			logger.WithFields(fields).WithError(err).Warn("⚠️  [Decode] Failed to save history")
		}
	}

	s.publish(realtime.Event{Type: realtime.EventDone, SessionID: req.SessionID, JobID: req.JobID, Result: &result})

	fields["prompts"] = len(result.Prompts)
	fields["detected"] = len(result.DetectedTexts)
	fields["duration_ms"] = time.Since(start).Milliseconds()
	logger.WithFields(fields).Info("✅ [Decode] Completed")

	return &DecodeResult{
		EntryID: entry.ID,
		Count:   count,
		Image:   req.Image,
		Result:  result,
	}, nil
}

// translateDetected - translate every detected text to English in parallel and
// substitute the translations into the prompts. Failures keep the original text.
func (s *Service) translateDetected(ctx context.Context, result model.AnalysisResult) model.AnalysisResult {
	translated := make([]string, len(result.DetectedTexts))

	var g errgroup.Group
	for i, text := range result.DetectedTexts {
		g.Go(func() error {
			out, err := s.analyzer.TranslateText(ctx, text, "en")
			if err != nil || strings.TrimSpace(out) == "" {
				if err != nil {
					logger.WithError(err).Debugf("🌐 [Decode] Keeping untranslated text %q", text)
				}
				out = text
			}
			translated[i] = out
			return nil
		})
	}
	_ = g.Wait()

	prompts := make([]model.PromptItem, len(result.Prompts))
	for i, p := range result.Prompts {
		for j, original := range result.DetectedTexts {
			if original != "" && translated[j] != "" {
				p.Text = strings.ReplaceAll(p.Text, original, translated[j])
			}
		}
		prompts[i] = p
	}

	result.Prompts = prompts
	result.DetectedTexts = translated
	return result
}

// Translate - free text to en or vi
func (s *Service) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", apperror.NewInvalidInputError("text is required", nil)
	}
	switch targetLang {
	case "", "en":
		targetLang = "en"
	case "vi":
	default:
		return "", apperror.NewInvalidInputError("targetLang must be en or vi", nil)
	}
	return s.analyzer.TranslateText(ctx, text, targetLang)
}

// History - page of a session's history
func (s *Service) History(ctx context.Context, session string, offset, limit int) ([]model.HistoryEntry, error) {
	if s.history == nil {
		return []model.HistoryEntry{}, nil
	}
	return s.history.List(ctx, session, offset, limit)
}

// ClearHistory - forget a session's history
func (s *Service) ClearHistory(ctx context.Context, session string) error {
	if s.history == nil {
		return nil
	}
	return s.history.Clear(ctx, session)
}

func (s *Service) retryObserver(session, jobID string) gemini.CallOption {
	return gemini.OnRetry(func(attempt int, delay time.Duration, err error) {
		s.publish(realtime.Event{
			Type:      realtime.EventRetrying,
			SessionID: session,
			JobID:     jobID,
			Attempt:   attempt,
			DelayMs:   delay.Milliseconds(),
			Message:   err.Error(),
		})
	})
}

// fail - report a failed or cancelled operation to the session
func (s *Service) fail(session, jobID string, err error) {
	if errors.Is(err, context.Canceled) {
		s.publish(realtime.Event{Type: realtime.EventCancelled, SessionID: session, JobID: jobID})
		logger.WithField("session", session).Info("🛑 [Decode] Cancelled")
		return
	}

	details := apperror.Describe(err)
	s.publish(realtime.Event{
		Type:      realtime.EventFailed,
		SessionID: session,
		JobID:     jobID,
		Message:   err.Error(),
		Error:     &details,
	})
	logger.WithFields(logrus.Fields{
		"session": session,
		"job":     jobID,
		"type":    details.Type,
		"code":    apperror.Code(err),
	}).WithError(err).Error("❌ [Decode] Failed")
}

func (s *Service) publish(event realtime.Event) {
	if event.SessionID == "" {
		return
	}
	s.publisher.Publish(event)
}
