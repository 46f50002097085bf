package guide

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"prompt-decoder-server/modules/common/logger"
)

// WhiskURL - Google Labs Whisk project page
const WhiskURL = "https://labs.google/fx/tools/whisk/project"

// Step - one step of the workflow
type Step struct {
	Number      int    `json:"number"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Guide - how to reuse a decoded prompt in Whisk
type Guide struct {
	Language    string `json:"language"`
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle"`
	ActionLabel string `json:"actionLabel"`
	ActionURL   string `json:"actionUrl"`
	Steps       []Step `json:"steps"`
	Tip         string `json:"tip"`
}

var guides = map[string]Guide{
	"en": {
		Language:    "en",
		Title:       "Create new images with this face",
		Subtitle:    "Using Google Labs (Whisk)",
		ActionLabel: "Open Google Whisk",
		ActionURL:   WhiskURL,
		Steps: []Step{
			{Number: 1, Title: "Open the tool", Description: `Press "Open Google Whisk" to go to the Google Labs page.`},
			{Number: 2, Title: "Upload the subject", Description: "Under Subject Reference, upload at least one photo of the face you want to keep."},
			{Number: 3, Title: "Paste the prompt and generate", Description: "Copy the original prompt or a variation from this app, paste it into the input and press Generate."},
		},
		Tip: "Tip: Google Whisk (ImageFX) is very good at keeping a character's face consistent.",
	},
	"vi": {
		Language:    "vi",
		Title:       "Tạo ảnh mới với khuôn mặt này",
		Subtitle:    "Sử dụng Google Labs (Whisk)",
		ActionLabel: "Mở Google Whisk",
		ActionURL:   WhiskURL,
		Steps: []Step{
			{Number: 1, Title: "Truy cập công cụ", Description: `Nhấn nút "Mở Google Whisk" ở trên để truy cập vào trang Labs của Google.`},
			{Number: 2, Title: "Tải ảnh chủ thể", Description: "Tại mục Subject Reference, tải lên ít nhất 01 ảnh khuôn mặt bạn muốn giữ lại."},
			{Number: 3, Title: "Dán Prompt & Tạo", Description: "Copy Prompt Gốc hoặc Biến thể từ ứng dụng này, dán vào ô nhập liệu và nhấn Generate."},
		},
		Tip: "Mẹo: Google Whisk (ImageFX) rất giỏi trong việc giữ khuôn mặt nhân vật (Identity Consistency).",
	},
}

// For - guide in lang, English when unknown
func For(lang string) Guide {
	if g, ok := guides[lang]; ok {
		return g
	}
	return guides["en"]
}

// RegisterRoutes - GET /api/guide
func RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/guide", HandleGuide).Methods("GET", "OPTIONS")
	logger.Info("✅ [Guide] Routes registered: /api/guide")
}

// HandleGuide - GET /api/guide?lang=en|vi
func HandleGuide(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"guide":   For(r.URL.Query().Get("lang")),
	})
}
