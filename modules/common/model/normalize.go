package model

import (
	"bytes"
	"encoding/json"
	"fmt"

	"prompt-decoder-server/modules/common/apperror"
	"prompt-decoder-server/modules/common/fallback"
)

// UnmarshalJSON accepts both the legacy bare-string prompt and the {text, score} object.
func (p *PromptItem) UnmarshalJSON(data []byte) error {
	item, err := decodePrompt(data)
	if err != nil {
		return err
	}
	*p = item
	return nil
}

func decodePrompt(data []byte) (PromptItem, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return PromptItem{}, nil
	}

	switch data[0] {
	case '"':
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return PromptItem{}, err
		}
		return NormalizePrompt(text), nil
	case '{':
		var obj map[string]interface{}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&obj); err != nil {
			return PromptItem{}, err
		}
		return NormalizePrompt(obj), nil
	default:
		return PromptItem{}, fmt.Errorf("prompt must be a string or an object, got %s", truncate(string(data), 40))
	}
}

// NormalizePrompt - resolve a legacy string or a structured prompt into a PromptItem.
// Strings get score 0; structured items keep their text and score.
func NormalizePrompt(item interface{}) PromptItem {
	switch v := item.(type) {
	case PromptItem:
		return v
	case *PromptItem:
		if v == nil {
			return PromptItem{}
		}
		return *v
	case string:
		return PromptItem{Text: v, Score: 0}
	case map[string]interface{}:
		text, _ := v["text"].(string)
		return PromptItem{Text: text, Score: fallback.SafeFloat(v["score"], 0)}
	default:
		return PromptItem{}
	}
}

// Normalize - parse raw model output into an AnalysisResult.
// Invalid JSON is a MalformedResponseError, never a retryable failure.
func Normalize(raw []byte) (AnalysisResult, error) {
	cleaned := fallback.StripCodeFence(string(raw))
	if cleaned == "" {
		return AnalysisResult{}, apperror.NewMalformedResponseError("empty response from model", nil)
	}

	var result AnalysisResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return AnalysisResult{}, apperror.NewMalformedResponseError(
			fmt.Sprintf("invalid JSON from model: %s", truncate(cleaned, 120)), err)
	}

	return result.Normalized(), nil
}

// Normalized - copy with nil slices replaced by empty ones
func (r AnalysisResult) Normalized() AnalysisResult {
	out := AnalysisResult{
		Prompts:       make([]PromptItem, len(r.Prompts)),
		Suggestions:   []string{},
		DetectedTexts: []string{},
	}
	copy(out.Prompts, r.Prompts)
	out.Suggestions = append(out.Suggestions, r.Suggestions...)
	out.DetectedTexts = append(out.DetectedTexts, r.DetectedTexts...)
	return out
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
