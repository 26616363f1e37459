package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/policy-qa/internal/core/domain"
)

type stubIngestor struct {
	doc *domain.Document
	err error
}

func (s *stubIngestor) Upload(context.Context, string, string, io.Reader) (*domain.Document, error) {
	return s.doc, s.err
}

type stubReader struct {
	doc *domain.Document
	err error
}

func (s *stubReader) GetByID(context.Context, string) (*domain.Document, error) {
	return s.doc, s.err
}

type stubAnswerer struct {
	resp *domain.StructuredResponse
	err  error

	gotDocumentID string
	gotQuestion   string
	gotTopK       int
}

func (s *stubAnswerer) Answer(_ context.Context, documentID, question string, topK int) (*domain.StructuredResponse, error) {
	s.gotDocumentID = documentID
	s.gotQuestion = question
	s.gotTopK = topK
	return s.resp, s.err
}

func newTestServer(t *testing.T, ingestor *stubIngestor, reader *stubReader, answerer *stubAnswerer, limiter *RateLimiter) *httptest.Server {
	t.Helper()
	router := NewRouter(ingestor, reader, answerer, nil, limiter, 10)
	server := httptest.NewServer(router.Handler())
	t.Cleanup(server.Close)
	return server
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t, &stubIngestor{}, &stubReader{}, &stubAnswerer{}, nil)

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get(requestIDHeader); got == "" {
		t.Fatalf("expected generated request id header")
	}
}

func TestUploadDocumentAccepted(t *testing.T) {
	now := time.Now().UTC()
	ingestor := &stubIngestor{doc: &domain.Document{ID: "doc1", Filename: "p.pdf", Status: domain.StatusUploaded, CreatedAt: now, UpdatedAt: now}}
	server := newTestServer(t, ingestor, &stubReader{}, &stubAnswerer{}, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "p.pdf")
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	_, _ = part.Write([]byte("%PDF-1.7"))
	_ = mw.Close()

	resp, err := http.Post(server.URL+"/v1/documents", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("POST /v1/documents error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var doc domain.Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if doc.ID != "doc1" {
		t.Fatalf("unexpected document: %+v", doc)
	}
}

func TestUploadRequiresMultipartFile(t *testing.T) {
	server := newTestServer(t, &stubIngestor{}, &stubReader{}, &stubAnswerer{}, nil)

	resp, err := http.Post(server.URL+"/v1/documents", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetDocumentNotFoundMapsTo404(t *testing.T) {
	reader := &stubReader{err: domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id missing"))}
	server := newTestServer(t, &stubIngestor{}, reader, &stubAnswerer{}, nil)

	resp, err := http.Get(server.URL + "/v1/documents/missing")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestAnswerQuestion(t *testing.T) {
	answerer := &stubAnswerer{resp: &domain.StructuredResponse{
		Question:        "Is maternity covered?",
		Answer:          "Yes.",
		ResponseType:    "coverage_decision",
		ConfidenceScore: 0.9,
	}}
	server := newTestServer(t, &stubIngestor{}, &stubReader{}, answerer, nil)

	payload := `{"document_id":"doc1","question":"Is maternity covered?","top_k":5}`
	resp, err := http.Post(server.URL+"/v1/qa/query", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if answerer.gotDocumentID != "doc1" || answerer.gotTopK != 5 {
		t.Fatalf("answerer got document=%q topK=%d", answerer.gotDocumentID, answerer.gotTopK)
	}

	var out domain.StructuredResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.ResponseType != "coverage_decision" {
		t.Fatalf("unexpected body: %+v", out)
	}
}

func TestAnswerQuestionOmittedTopKUsesConfiguredDefault(t *testing.T) {
	answerer := &stubAnswerer{resp: &domain.StructuredResponse{Answer: "ok"}}
	server := newTestServer(t, &stubIngestor{}, &stubReader{}, answerer, nil)

	payload := `{"document_id":"doc1","question":"Is maternity covered?"}`
	resp, err := http.Post(server.URL+"/v1/qa/query", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if answerer.gotTopK != 10 {
		t.Fatalf("expected configured default top_k 10, got %d", answerer.gotTopK)
	}
}

func TestAnswerQuestionValidation(t *testing.T) {
	server := newTestServer(t, &stubIngestor{}, &stubReader{}, &stubAnswerer{}, nil)

	cases := []string{
		`{`,
		`{"document_id":"doc1"}`,
		`{"question":"q"}`,
	}
	for _, payload := range cases {
		resp, err := http.Post(server.URL+"/v1/qa/query", "application/json", strings.NewReader(payload))
		if err != nil {
			t.Fatalf("POST error = %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("payload %q: status = %d, want 400", payload, resp.StatusCode)
		}
	}
}

func TestDownstreamUnavailableMapsTo503(t *testing.T) {
	answerer := &stubAnswerer{err: domain.WrapError(domain.ErrDownstreamUnavailable, "answer", fmt.Errorf("llm offline"))}
	server := newTestServer(t, &stubIngestor{}, &stubReader{}, answerer, nil)

	payload := `{"document_id":"doc1","question":"q"}`
	resp, err := http.Post(server.URL+"/v1/qa/query", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestRateLimitReturns429(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	answerer := &stubAnswerer{resp: &domain.StructuredResponse{Answer: "ok"}}
	server := newTestServer(t, &stubIngestor{}, &stubReader{}, answerer, limiter)

	payload := `{"document_id":"doc1","question":"q"}`
	first, err := http.Post(server.URL+"/v1/qa/query", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	first.Body.Close()
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first request status = %d", first.StatusCode)
	}

	second, err := http.Post(server.URL+"/v1/qa/query", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	second.Body.Close()
	if second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", second.StatusCode)
	}

	// Probes bypass the limiter.
	health, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", health.StatusCode)
	}
}
