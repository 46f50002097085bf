package decode

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"prompt-decoder-server/modules/common/apperror"
	"prompt-decoder-server/modules/common/fallback"
	"prompt-decoder-server/modules/common/imageproc"
	"prompt-decoder-server/modules/common/logger"
	"prompt-decoder-server/modules/share"
)

const multipartMemory = 32 << 20

// HandlerConfig - request limits and link settings
type HandlerConfig struct {
	MaxUploadBytes int64
	PublicBaseURL  string
	HistoryLimit   int
}

// Handler - HTTP surface of the decode service
type Handler struct {
	service *Service
	queue   *Queue // nil when the async queue is disabled
	cfg     HandlerConfig
	now     func() time.Time
}

// NewHandler - queue may be nil
func NewHandler(service *Service, queue *Queue, cfg HandlerConfig) *Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 24
	}
	return &Handler{service: service, queue: queue, cfg: cfg, now: time.Now}
}

// RegisterRoutes - register every decode route
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/decode", h.HandleDecode).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/decode/cancel", h.HandleCancel).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/decode/enqueue", h.HandleEnqueue).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/decode/jobs/{jobId}", h.HandleJobStatus).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/prompts/optimize", h.HandleOptimize).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/prompts/optimize-all", h.HandleOptimizeAll).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/translate", h.HandleTranslate).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/history", h.HandleHistory).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/history", h.HandleClearHistory).Methods("DELETE")
	r.HandleFunc("/api/share", h.HandleShare).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/share/{token:.+}", h.HandleShareLookup).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/export/txt", h.HandleExportText).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/export/json", h.HandleExportJSON).Methods("POST", "OPTIONS")
	logger.Info("✅ [Decode] Routes registered: /api/decode, /api/prompts, /api/translate, /api/history, /api/share, /api/export")
}

// HandleDecode - POST /api/decode (multipart: file, count, sessionId)
func (h *Handler) HandleDecode(w http.ResponseWriter, r *http.Request) {
	session, count, file, err := h.readUpload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	image, err := h.service.Preprocess(ctx, session, file)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.service.Decode(ctx, DecodeRequest{SessionID: session, Count: count, Image: image})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DecodeResponse{Success: true, DecodeResult: res})
}

// HandleEnqueue - POST /api/decode/enqueue; preprocess now, decode on the worker
func (h *Handler) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		writeErrorStatus(w, http.StatusServiceUnavailable, apperror.NewInternalError("decode queue is disabled", nil))
		return
	}

	session, count, file, err := h.readUpload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	image, err := h.service.Preprocess(ctx, session, file)
	if err != nil {
		writeError(w, err)
		return
	}

	job := NewJob(session, count, image)
	position, err := h.queue.Enqueue(ctx, job)
	if err != nil {
		logger.WithError(err).Error("❌ [Decode] Enqueue failed")
		writeError(w, apperror.NewInternalError("failed to enqueue job", err))
		return
	}

	writeJSON(w, http.StatusAccepted, EnqueueResponse{
		Success:       true,
		Message:       "Job enqueued successfully",
		JobID:         job.JobID,
		Queue:         QueueKey,
		QueuePosition: position,
	})
}

// HandleJobStatus - GET /api/decode/jobs/{jobId}
func (h *Handler) HandleJobStatus(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		writeErrorStatus(w, http.StatusServiceUnavailable, apperror.NewInternalError("decode queue is disabled", nil))
		return
	}

	job, err := h.queue.Get(r.Context(), mux.Vars(r)["jobId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, JobResponse{Success: true, Job: job})
}

// HandleCancel - POST /api/decode/cancel
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.SessionID == "" {
		writeError(w, apperror.NewInvalidInputError("sessionId is required", nil))
		return
	}

	cancelled := h.service.Cancel(req.SessionID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"cancelled": cancelled,
	})
}

// HandleOptimize - POST /api/prompts/optimize
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	if req.Result == nil {
		item, err := h.service.Optimize(ctx, req.Text)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, OptimizeResponse{Success: true, Prompt: &item, Optimized: 1})
		return
	}

	updated, replaced, err := h.service.OptimizeAt(ctx, req.SessionID, *req.Result, req.Index)
	if err != nil {
		writeError(w, err)
		return
	}
	item := updated.Prompts[req.Index]
	writeJSON(w, http.StatusOK, OptimizeResponse{
		Success:         true,
		Prompt:          &item,
		Result:          &updated,
		Optimized:       1,
		HistoryReplaced: replaced,
	})
}

// HandleOptimizeAll - POST /api/prompts/optimize-all
func (h *Handler) HandleOptimizeAll(w http.ResponseWriter, r *http.Request) {
	var req OptimizeAllRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	updated, count, replaced, err := h.service.OptimizeAll(r.Context(), req.SessionID, req.Result)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OptimizeResponse{
		Success:         true,
		Result:          &updated,
		Optimized:       count,
		HistoryReplaced: replaced,
	})
}

// HandleTranslate - POST /api/translate
func (h *Handler) HandleTranslate(w http.ResponseWriter, r *http.Request) {
	var req TranslateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	text, err := h.service.Translate(r.Context(), req.Text, req.TargetLang)
	if err != nil {
		writeError(w, err)
		return
	}
	lang := req.TargetLang
	if lang == "" {
		lang = "en"
	}
	writeJSON(w, http.StatusOK, TranslateResponse{Success: true, Text: text, TargetLang: lang})
}

// HandleHistory - GET /api/history?session=&offset=&limit=
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	session := q.Get("session")
	if session == "" {
		writeError(w, apperror.NewInvalidInputError("session is required", nil))
		return
	}
	offset := fallback.SafeInt(q.Get("offset"), 0)
	limit := fallback.SafeInt(q.Get("limit"), h.cfg.HistoryLimit)

	entries, err := h.service.History(r.Context(), session, offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Success: true, Entries: entries, Offset: offset, Limit: limit})
}

// HandleClearHistory - DELETE /api/history?session=
func (h *Handler) HandleClearHistory(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	if session == "" {
		writeError(w, apperror.NewInvalidInputError("session is required", nil))
		return
	}
	if err := h.service.ClearHistory(r.Context(), session); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// HandleShare - POST /api/share
func (h *Handler) HandleShare(w http.ResponseWriter, r *http.Request) {
	var req ShareRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Result.Prompts) == 0 {
		writeError(w, apperror.NewInvalidInputError("result has no prompts", nil))
		return
	}

	token, err := share.Encode(req.Result)
	if err != nil {
		writeError(w, apperror.NewInternalError("failed to encode share token", err))
		return
	}

	resp := ShareResponse{Success: true, Token: token}
	if h.cfg.PublicBaseURL != "" {
		if link, err := share.Link(h.cfg.PublicBaseURL, token); err == nil {
			resp.Link = link
		} else {
			logger.WithError(err).Warn("⚠️  [Share] Failed to build link")
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleShareLookup - GET /api/share/{token}
func (h *Handler) HandleShareLookup(w http.ResponseWriter, r *http.Request) {
	result, err := share.Decode(mux.Vars(r)["token"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ShareResponse{Success: true, Result: &result})
}

// HandleExportText - POST /api/export/txt
func (h *Handler) HandleExportText(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	body := share.ExportText(req.Result, req.Options)
	writeDownload(w, "text/plain; charset=utf-8", share.FileName("prompts_ai", "txt", h.now()), []byte(body))
}

// HandleExportJSON - POST /api/export/json
func (h *Handler) HandleExportJSON(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	now := h.now()
	body, err := share.ExportJSON(req.Result, req.Options, now)
	if err != nil {
		writeError(w, apperror.NewInternalError("failed to export JSON", err))
		return
	}
	writeDownload(w, "application/json", share.FileName("data_ai", "json", now), body)
}

// readUpload - parse the multipart form shared by decode and enqueue
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (string, int, imageproc.File, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes+multipartMemory/32)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", 0, imageproc.File{}, apperror.NewInvalidImageError("upload is too large", err)
		}
		return "", 0, imageproc.File{}, apperror.NewInvalidInputError("invalid multipart form", err)
	}

	session := fallback.SafeString(r.FormValue("sessionId"), "")
	count := fallback.SafeInt(r.FormValue("count"), 0)

	part, header, err := r.FormFile("file")
	if err != nil {
		return "", 0, imageproc.File{}, apperror.NewInvalidInputError("file is required", err)
	}
	defer part.Close()

	file, err := imageproc.ReadFile(part, header.Filename, header.Header.Get("Content-Type"), h.cfg.MaxUploadBytes)
	if err != nil {
		return "", 0, imageproc.File{}, err
	}

	logger.WithFields(logrus.Fields{
		"session": session,
		"file":    header.Filename,
		"bytes":   len(file.Data),
		"count":   count,
	}).Info("📥 [Decode] Upload received")
	return session, count, file, nil
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperror.NewInvalidInputError("invalid request body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Warn("⚠️  [Decode] Failed to write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, context.Canceled) {
		// superseded by a newer decode or cancelled by the user
		writeErrorStatus(w, http.StatusConflict, err)
		return
	}
	writeErrorStatus(w, apperror.GetStatusCode(err), err)
}

func writeErrorStatus(w http.ResponseWriter, status int, err error) {
	details := apperror.Describe(err)
	writeJSON(w, status, ErrorResponse{
		Success:      false,
		ErrorMessage: err.Error(),
		ErrorCode:    apperror.Code(err),
		Error:        &details,
	})
}

func writeDownload(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		logger.WithError(err).Warn("⚠️  [Export] Failed to write download")
	}
}
