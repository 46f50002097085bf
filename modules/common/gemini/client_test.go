package gemini

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"prompt-decoder-server/modules/common/apperror"
)

type fakeGenerator struct {
	responses []*genai.GenerateContentResponse
	errs      []error
	calls     int
	lastModel string
	lastParts []*genai.Part
	lastCfg   *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	i := f.calls
	f.calls++
	f.lastModel = model
	f.lastCfg = config
	if len(contents) > 0 {
		f.lastParts = contents[0].Parts
	}
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return f.responses[len(f.responses)-1], nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func TestDecodeImageSendsImageAndSchema(t *testing.T) {
	recordSleeps(t)

	gen := &fakeGenerator{responses: []*genai.GenerateContentResponse{textResponse(`{"prompts":[],"suggestions":[]}`)}}
	client := NewClientWithGenerator(gen, "gemini-2.5-flash", DefaultPolicy())

	raw, err := client.DecodeImage(context.Background(), []byte{0xff, 0xd8}, "image/jpeg", 4)
	require.NoError(t, err)
	assert.JSONEq(t, `{"prompts":[],"suggestions":[]}`, string(raw))

	assert.Equal(t, "gemini-2.5-flash", gen.lastModel)
	require.Len(t, gen.lastParts, 2)
	require.NotNil(t, gen.lastParts[0].InlineData)
	assert.Equal(t, "image/jpeg", gen.lastParts[0].InlineData.MIMEType)
	assert.Contains(t, gen.lastParts[1].Text, "array of 4 objects")

	require.NotNil(t, gen.lastCfg)
	assert.Equal(t, "application/json", gen.lastCfg.ResponseMIMEType)
	require.NotNil(t, gen.lastCfg.ResponseSchema)
	assert.Equal(t, []string{"prompts", "suggestions"}, gen.lastCfg.ResponseSchema.Required)
}

func TestDecodeImageRetriesTransient(t *testing.T) {
	delays := recordSleeps(t)

	gen := &fakeGenerator{
		errs:      []error{genai.APIError{Code: 503, Message: "overloaded"}, nil},
		responses: []*genai.GenerateContentResponse{nil, textResponse(`{"prompts":["a"]}`)},
	}
	var retries []int
	client := NewClientWithGenerator(gen, "m", Policy{MaxAttempts: 3, BaseDelay: time.Millisecond})

	raw, err := client.DecodeImage(context.Background(), []byte{1}, "image/png", 1, OnRetry(func(attempt int, delay time.Duration, err error) {
		retries = append(retries, attempt)
	}))
	require.NoError(t, err)
	assert.Equal(t, `{"prompts":["a"]}`, string(raw))
	assert.Equal(t, 2, gen.calls)
	assert.Equal(t, []int{1}, retries)
	assert.Len(t, *delays, 1)
}

func TestGenerateEmptyResponseIsMalformed(t *testing.T) {
	gen := &fakeGenerator{responses: []*genai.GenerateContentResponse{{}}}
	client := NewClientWithGenerator(gen, "m", DefaultPolicy())

	_, err := client.OptimizePrompt(context.Background(), "a cat")
	require.Error(t, err)
	assert.True(t, apperror.IsType(err, apperror.TypeMalformedResponse))
	assert.Equal(t, 1, gen.calls)
}

func TestGenerateSafetyBlockIsPermanent(t *testing.T) {
	gen := &fakeGenerator{responses: []*genai.GenerateContentResponse{{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: "SAFETY"},
	}}}
	client := NewClientWithGenerator(gen, "m", DefaultPolicy())

	_, err := client.DecodeImage(context.Background(), []byte{1}, "image/png", 1)
	require.Error(t, err)

	var remoteErr *apperror.RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, apperror.Permanent, remoteErr.Class)
	assert.Equal(t, apperror.DisplaySafety, apperror.Describe(err).Type)
}

func TestTranslateTextFallsBackOnEmptyAnswer(t *testing.T) {
	gen := &fakeGenerator{responses: []*genai.GenerateContentResponse{textResponse("   ")}}
	client := NewClientWithGenerator(gen, "m", DefaultPolicy())

	out, err := client.TranslateText(context.Background(), "xin chào", "en")
	require.NoError(t, err)
	assert.Equal(t, "xin chào", out)
}

func TestTranslateTextTrims(t *testing.T) {
	gen := &fakeGenerator{responses: []*genai.GenerateContentResponse{textResponse(" hello \n")}}
	client := NewClientWithGenerator(gen, "m", DefaultPolicy())

	out, err := client.TranslateText(context.Background(), "xin chào", "en")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Contains(t, gen.lastParts[0].Text, "English")
	assert.Equal(t, "text/plain", gen.lastCfg.ResponseMIMEType)
}

func TestResponseTextSkipsThoughts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking...", Thought: true},
				{Text: `{"a":`},
				{Text: `1}`},
			}},
		}},
	}
	assert.Equal(t, `{"a":1}`, responseText(resp))
	assert.Equal(t, "", responseText(nil))
}
