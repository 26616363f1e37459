// Package httpadapter exposes the QA service over HTTP.
package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kirillkom/policy-qa/internal/core/ports"
	"github.com/kirillkom/policy-qa/internal/observability/metrics"
)

const serviceName = "policy-qa"

type Router struct {
	ingestor    ports.DocumentIngestor
	reader      ports.DocumentReader
	answerer    ports.QuestionAnswerer
	metrics     *metrics.ServerMetrics
	limiter     *RateLimiter
	defaultTopK int
}

func NewRouter(
	ingestor ports.DocumentIngestor,
	reader ports.DocumentReader,
	answerer ports.QuestionAnswerer,
	m *metrics.ServerMetrics,
	limiter *RateLimiter,
	defaultTopK int,
) *Router {
	return &Router{
		ingestor:    ingestor,
		reader:      reader,
		answerer:    answerer,
		metrics:     m,
		limiter:     limiter,
		defaultTopK: defaultTopK,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/documents/", rt.getDocumentByID)
	mux.HandleFunc("/v1/qa/query", rt.answerQuestion)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.limiter != nil {
		handler = rt.limiter.middleware(handler)
	}
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.ingestor.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	doc, err := rt.reader.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) answerQuestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		DocumentID string `json:"document_id"`
		Question   string `json:"question"`
		TopK       int    `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}
	if strings.TrimSpace(req.DocumentID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document_id is required"})
		return
	}
	if req.TopK <= 0 {
		req.TopK = rt.defaultTopK
	}

	resp, err := rt.answerer.Answer(r.Context(), req.DocumentID, req.Question, req.TopK)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordAnswer(serviceName, resp.ResponseType, resp.ConfidenceScore)
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
