package share

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prompt-decoder-server/modules/common/apperror"
	"prompt-decoder-server/modules/common/model"
)

func sampleResult() model.AnalysisResult {
	return model.AnalysisResult{
		Prompts: []model.PromptItem{
			{Text: "A woman in a café, soft window light, 85mm", Score: 8},
			{Text: "Cận cảnh chân dung, ánh sáng ấm", Score: 6.5},
		},
		Suggestions:   []string{"Use a reflector", "Shoot at golden hour"},
		DetectedTexts: []string{"OPEN"},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := sampleResult()

	token, err := Encode(original)
	require.NoError(t, err)

	decoded, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, original.Prompts, decoded.Prompts)
	assert.Equal(t, original.Suggestions, decoded.Suggestions)
	assert.Equal(t, original.DetectedTexts, decoded.DetectedTexts)
}

func TestEncodeIsURLSafe(t *testing.T) {
	// nine '?' cover every base64 alignment; std encoding turns "???" into "Pz8/"
	result := model.AnalysisResult{Prompts: []model.PromptItem{{Text: "?????????", Score: 7}}}

	token, err := Encode(result)
	require.NoError(t, err)
	assert.NotContains(t, token, "/")
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "=")
	assert.Equal(t, token, url.QueryEscape(token))

	decoded, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, result.Prompts, decoded.Prompts)
}

func TestDecodeLegacyAndURLSafe(t *testing.T) {
	data := []byte(`{"p":["old style ??>"],"s":["tip"]}`)

	for _, token := range []string{
		base64.StdEncoding.EncodeToString(data),
		base64.URLEncoding.EncodeToString(data),
		base64.RawURLEncoding.EncodeToString(data),
	} {
		decoded, err := Decode(token)
		require.NoError(t, err, token)
		assert.Equal(t, []model.PromptItem{{Text: "old style ??>", Score: 0}}, decoded.Prompts)
		assert.Equal(t, []string{"tip"}, decoded.Suggestions)
		assert.NotNil(t, decoded.DetectedTexts)
	}
}

func TestDecodeInvalid(t *testing.T) {
	for _, token := range []string{
		"",
		"%%%not-base64%%%",
		base64.StdEncoding.EncodeToString([]byte("not json")),
		base64.StdEncoding.EncodeToString([]byte(`{"s":["no prompts"]}`)),
		base64.StdEncoding.EncodeToString([]byte(`{"p":"not an array"}`)),
	} {
		_, err := Decode(token)
		require.Error(t, err, token)
		assert.True(t, apperror.IsType(err, apperror.TypeInvalidInput), token)
	}
}

func TestLink(t *testing.T) {
	token, err := Encode(sampleResult())
	require.NoError(t, err)

	link, err := Link("https://decoder.example.com/app", token)
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "/app", u.Path)
	assert.Equal(t, token, u.Query().Get("share"))
}

func TestDisplayPrompt(t *testing.T) {
	detected := []string{"OPEN"}

	assert.Equal(t, "A sign saying CLOSED, photo by Linh",
		DisplayPrompt("A sign saying OPEN.", detected, DisplayOptions{
			AuthorName:    " Linh ",
			TextOverrides: map[string]string{"OPEN": "CLOSED"},
		}))

	assert.Equal(t, "A cozy café interior.",
		DisplayPrompt("A cozy café interior. A neon sign reads OPEN. Bold typography on the wall.", detected, DisplayOptions{NoText: true}))

	assert.Equal(t, "plain", DisplayPrompt("plain", nil, DisplayOptions{}))
}

func TestDisplayPromptOverridesOnlyInEnglish(t *testing.T) {
	detected := []string{"OPEN"}
	overrides := map[string]string{"OPEN": "CLOSED"}

	assert.Equal(t, "Biển hiệu ghi OPEN.",
		DisplayPrompt("Biển hiệu ghi OPEN.", detected, DisplayOptions{Language: "vi", TextOverrides: overrides}))
	assert.Equal(t, "A sign saying CLOSED.",
		DisplayPrompt("A sign saying OPEN.", detected, DisplayOptions{Language: "en", TextOverrides: overrides}))

	// no-text cleaning still sees the detected text in other languages
	assert.Equal(t, "Quán cà phê.",
		DisplayPrompt("Quán cà phê. Biển hiệu ghi OPEN.", detected, DisplayOptions{Language: "vi", NoText: true, TextOverrides: overrides}))
}

func TestExportText(t *testing.T) {
	result := model.AnalysisResult{Prompts: []model.PromptItem{
		{Text: "first\nline   with   spaces"},
		{Text: "second"},
	}}

	assert.Equal(t, "first line with spaces\n\nsecond", ExportText(result, DisplayOptions{}))
}

func TestExportJSON(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	data, err := ExportJSON(sampleResult(), DisplayOptions{AuthorName: "Minh"}, now)
	require.NoError(t, err)

	var doc ExportDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc.Prompts, 2)
	assert.Equal(t, 8.0, doc.Prompts[0].Score)
	assert.Equal(t, "A woman in a café, soft window light, 85mm, photo by Minh", doc.Prompts[0].FinalDisplay)
	assert.Equal(t, "Minh", doc.AuthorName)
	assert.Equal(t, []string{"OPEN"}, doc.DetectedTexts)
	assert.Equal(t, "2026-01-02T03:04:05Z", doc.Meta.ExportedAt)
	assert.Equal(t, AppName, doc.Meta.AppName)
	assert.Equal(t, "en", doc.Meta.CurrentLanguage)
}

func TestFileName(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	assert.Equal(t, "prompts_ai_1700000000123.txt", FileName("prompts_ai", "txt", now))
}
