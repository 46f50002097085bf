package share

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"prompt-decoder-server/modules/common/apperror"
	"prompt-decoder-server/modules/common/model"
)

// payload - compact share format; the image itself is never included
type payload struct {
	P []model.PromptItem `json:"p"`
	S []string           `json:"s"`
	T []string           `json:"t,omitempty"`
}

// Encode - result to a URL-safe share token (unpadded base64url of {p, s, t})
func Encode(result model.AnalysisResult) (string, error) {
	result = result.Normalized()
	data, err := json.Marshal(payload{P: result.Prompts, S: result.Suggestions, T: result.DetectedTexts})
	if err != nil {
		return "", fmt.Errorf("failed to encode share payload: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// Decode - share token back to a normalised result. Legacy string prompts are accepted.
func Decode(token string) (model.AnalysisResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.AnalysisResult{}, apperror.NewInvalidInputError("share token is empty", nil)
	}

	data, err := decodeBase64(token)
	if err != nil {
		return model.AnalysisResult{}, apperror.NewInvalidInputError("share link is invalid or corrupted", err)
	}

	var raw struct {
		P json.RawMessage `json:"p"`
		S []string        `json:"s"`
		T []string        `json:"t"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.AnalysisResult{}, apperror.NewInvalidInputError("share link is invalid or corrupted", err)
	}

	var prompts []model.PromptItem
	if len(raw.P) == 0 || raw.P[0] != '[' {
		return model.AnalysisResult{}, apperror.NewInvalidInputError("share link has no prompts", nil)
	}
	if err := json.Unmarshal(raw.P, &prompts); err != nil {
		return model.AnalysisResult{}, apperror.NewInvalidInputError("share link has invalid prompts", err)
	}

	return model.AnalysisResult{Prompts: prompts, Suggestions: raw.S, DetectedTexts: raw.T}.Normalized(), nil
}

// decodeBase64 - accept std, URL-safe, padded and unpadded tokens
func decodeBase64(token string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		data, err := enc.DecodeString(token)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// Link - base URL with ?share=<token>
func Link(baseURL, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	q := u.Query()
	q.Set("share", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
