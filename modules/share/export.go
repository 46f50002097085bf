package share

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"prompt-decoder-server/modules/common/model"
)

// AppName - written into exported JSON metadata
const AppName = "AI Prompt Decoder"

// DisplayOptions - how prompts are rendered for copy and export
type DisplayOptions struct {
	AuthorName    string            `json:"authorName,omitempty"`
	NoText        bool              `json:"noText,omitempty"`        // drop sentences mentioning in-image text
	TextOverrides map[string]string `json:"textOverrides,omitempty"` // detected text -> replacement, English prompts only
	Language      string            `json:"language,omitempty"`      // "" means en
}

var (
	multiSpace = regexp.MustCompile(`\s\s+`)
	newlines   = regexp.MustCompile(`\r?\n|\r`)

	typographyKeywords = []string{
		"typography", "magazine text", "branded text", "words", "lettering", "font",
		"headline", "caption", "title text", "overlay text", "graphic text",
	}
)

// DisplayPrompt - the prompt text as the user would copy it
func DisplayPrompt(text string, detectedTexts []string, opts DisplayOptions) string {
	if opts.Language == "" || opts.Language == "en" {
		for _, original := range detectedTexts {
			if replacement, ok := opts.TextOverrides[original]; ok && original != "" && replacement != original {
				text = strings.ReplaceAll(text, original, replacement)
			}
		}
	}

	if opts.NoText {
		text = cleanTypography(text, detectedTexts)
	}

	if name := strings.TrimSpace(opts.AuthorName); name != "" {
		text = strings.TrimSuffix(text, ".")
		text += ", photo by " + name
	}
	return text
}

// cleanTypography - remove every sentence that mentions detected text or lettering
func cleanTypography(text string, detectedTexts []string) string {
	terms := make([]string, 0, len(detectedTexts)+len(typographyKeywords))
	for _, dt := range detectedTexts {
		if strings.TrimSpace(dt) != "" {
			terms = append(terms, dt)
		}
	}
	terms = append(terms, typographyKeywords...)

	for _, term := range terms {
		re, err := regexp.Compile(`(?i)[^.?!]*\b` + regexp.QuoteMeta(term) + `\b[^.?!]*[.?!]?`)
		if err != nil {
			continue
		}
		text = re.ReplaceAllString(text, "")
	}
	return multiSpace.ReplaceAllString(strings.TrimSpace(text), " ")
}

// ExportText - one prompt per paragraph, each flattened to a single line
func ExportText(result model.AnalysisResult, opts DisplayOptions) string {
	lines := make([]string, 0, len(result.Prompts))
	for _, p := range result.Prompts {
		text := DisplayPrompt(p.Text, result.DetectedTexts, opts)
		text = newlines.ReplaceAllString(text, " ")
		text = multiSpace.ReplaceAllString(text, " ")
		lines = append(lines, strings.TrimSpace(text))
	}
	return strings.Join(lines, "\n\n")
}

// ExportedPrompt - prompt plus its rendered form
type ExportedPrompt struct {
	Text         string  `json:"text"`
	Score        float64 `json:"score"`
	FinalDisplay string  `json:"finalDisplay"`
}

// ExportMeta - export metadata
type ExportMeta struct {
	ExportedAt      string `json:"exportedAt"`
	AppName         string `json:"appName"`
	CurrentLanguage string `json:"currentLanguage"`
}

// ExportDocument - structured JSON export
type ExportDocument struct {
	Prompts       []ExportedPrompt `json:"prompts"`
	Suggestions   []string         `json:"suggestions"`
	DetectedTexts []string         `json:"detectedTexts"`
	AuthorName    string           `json:"authorName"`
	Meta          ExportMeta       `json:"meta"`
}

// ExportJSON - indented JSON document of the result
func ExportJSON(result model.AnalysisResult, opts DisplayOptions, now time.Time) ([]byte, error) {
	result = result.Normalized()

	lang := opts.Language
	if lang == "" {
		lang = "en"
	}

	doc := ExportDocument{
		Prompts:       make([]ExportedPrompt, len(result.Prompts)),
		Suggestions:   result.Suggestions,
		DetectedTexts: result.DetectedTexts,
		AuthorName:    opts.AuthorName,
		Meta: ExportMeta{
			ExportedAt:      now.UTC().Format(time.RFC3339Nano),
			AppName:         AppName,
			CurrentLanguage: lang,
		},
	}
	for i, p := range result.Prompts {
		doc.Prompts[i] = ExportedPrompt{
			Text:         p.Text,
			Score:        p.Score,
			FinalDisplay: DisplayPrompt(p.Text, result.DetectedTexts, opts),
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export: %w", err)
	}
	return data, nil
}

// FileName - download name like prompts_ai_<millis>.txt
func FileName(prefix, ext string, now time.Time) string {
	return fmt.Sprintf("%s_%d.%s", prefix, now.UnixMilli(), ext)
}
