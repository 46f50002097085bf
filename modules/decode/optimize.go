package decode

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"prompt-decoder-server/modules/common/apperror"
	"prompt-decoder-server/modules/common/fallback"
	"prompt-decoder-server/modules/common/logger"
	"prompt-decoder-server/modules/common/model"
	"prompt-decoder-server/modules/realtime"
)

const (
	optimizeBatchSize  = 3
	optimizeBatchPause = time.Second
	perfectScore       = 10
)

// Optimize - rewrite one prompt into its best-scoring version
func (s *Service) Optimize(ctx context.Context, text string) (model.PromptItem, error) {
	if strings.TrimSpace(text) == "" {
		return model.PromptItem{}, apperror.NewInvalidInputError("text is required", nil)
	}

	raw, err := s.analyzer.OptimizePrompt(ctx, text)
	if err != nil {
		return model.PromptItem{}, err
	}

	var item model.PromptItem
	if err := json.Unmarshal([]byte(fallback.StripCodeFence(string(raw))), &item); err != nil {
		return model.PromptItem{}, apperror.NewMalformedResponseError("optimized prompt is not valid JSON", err)
	}
	if strings.TrimSpace(item.Text) == "" {
		return model.PromptItem{}, apperror.NewMalformedResponseError("optimized prompt is empty", nil)
	}
	return item, nil
}

// OptimizeAt - optimise the prompt at index and replace the newest history entry of session
func (s *Service) OptimizeAt(ctx context.Context, session string, result model.AnalysisResult, index int) (model.AnalysisResult, bool, error) {
	if index < 0 || index >= len(result.Prompts) {
		return result, false, apperror.NewInvalidInputError("prompt index out of range", nil)
	}

	item, err := s.Optimize(ctx, result.Prompts[index].Text)
	if err != nil {
		return result, false, err
	}

	updated := result.Normalized()
	updated.Prompts = append([]model.PromptItem(nil), result.Prompts...)
	updated.Prompts[index] = item

	return updated, s.replaceLatest(ctx, session, updated), nil
}

// OptimizeAll - optimise every prompt scoring below 10, a few at a time with a
// pause between batches. Prompts whose optimisation fails are kept unchanged.
func (s *Service) OptimizeAll(ctx context.Context, session string, result model.AnalysisResult) (model.AnalysisResult, int, bool, error) {
	var pending []int
	for i, p := range result.Prompts {
		if p.Score < perfectScore {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return result, 0, false, nil
	}

	s.publish(realtime.Event{Type: realtime.EventOptimizing, SessionID: session, Message: "optimizing prompts"})
	logger.WithFields(logrus.Fields{
		"session": session,
		"pending": len(pending),
	}).Info("✨ [Optimize] Optimizing prompts")

	prompts := append([]model.PromptItem(nil), result.Prompts...)
	optimized := make([]bool, len(prompts))

	for start := 0; start < len(pending); start += s.batchSize {
		end := min(start+s.batchSize, len(pending))

		var g errgroup.Group
		for _, idx := range pending[start:end] {
			g.Go(func() error {
				item, err := s.Optimize(ctx, result.Prompts[idx].Text)
				if err != nil {
					logger.WithError(err).Warnf("⚠️  [Optimize] Failed to optimize prompt at index %d", idx)
					return nil
				}
				prompts[idx] = item
				optimized[idx] = true
				return nil
			})
		}
		_ = g.Wait()

		if end < len(pending) {
			if err := pause(ctx, s.batchPause); err != nil {
				return result, 0, false, err
			}
		}
	}

	count := 0
	for _, ok := range optimized {
		if ok {
			count++
		}
	}

	updated := result.Normalized()
	updated.Prompts = prompts
	replaced := s.replaceLatest(ctx, session, updated)

	logger.WithFields(logrus.Fields{
		"session":   session,
		"optimized": count,
		"replaced":  replaced,
	}).Info("✅ [Optimize] Completed")
	return updated, count, replaced, nil
}

// replaceLatest - best effort; history failures are only logged
func (s *Service) replaceLatest(ctx context.Context, session string, result model.AnalysisResult) bool {
	if s.history == nil || session == "" {
		return false
	}
	replaced, err := s.history.ReplaceLatest(ctx, session, result)
	if err != nil {
		logger.WithField("session", session).WithError(err).Warn("⚠️  [Optimize] Failed to update history")
		return false
	}
	return replaced
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
