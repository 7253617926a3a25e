package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadam-codes/smart-pdf-summarizer/internal/config"
	"github.com/sadam-codes/smart-pdf-summarizer/internal/failure"
	"github.com/sadam-codes/smart-pdf-summarizer/internal/models"
	"github.com/sadam-codes/smart-pdf-summarizer/internal/pdftest"
	"github.com/sadam-codes/smart-pdf-summarizer/internal/service/ai"
	"github.com/sadam-codes/smart-pdf-summarizer/internal/service/upload"
)

type stubSummarizer struct {
	mu     sync.Mutex
	texts  []string
	result string
	err    error
}

func (s *stubSummarizer) Summarize(_ context.Context, text string) (*models.SummaryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	if s.err != nil {
		return nil, s.err
	}
	return &models.SummaryResult{Summary: s.result}, nil
}

type testServer struct {
	router     *gin.Engine
	uploadDir  string
	audioDir   string
	summarizer *stubSummarizer
	hook       *test.Hook
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	cfg := config.Default().Server
	cfg.MaxUploadMB = 1
	cfg.AudioDir = t.TempDir()
	uploadDir := filepath.Join(t.TempDir(), "uploads")

	store := upload.NewStore(uploadDir, time.Minute, nil, logger)
	extractor, err := ai.NewExtractor(context.Background(), logger)
	require.NoError(t, err)
	summarizer := &stubSummarizer{result: "A concise summary."}

	handler := NewHandler(cfg, store, extractor, summarizer, logger)
	return &testServer{
		router:     NewRouter(handler, cfg.AllowedOrigins, logger),
		uploadDir:  uploadDir,
		audioDir:   cfg.AudioDir,
		summarizer: summarizer,
		hook:       hook,
	}
}

func (s *testServer) assertNoTempFiles(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(s.uploadDir)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, entries, "temp upload left behind")
}

func (s *testServer) loggedKind(t *testing.T) failure.Kind {
	t.Helper()
	for _, entry := range s.hook.AllEntries() {
		if entry.Message == "summarization error" {
			kind, _ := entry.Data["kind"].(failure.Kind)
			return kind
		}
	}
	t.Fatalf("no summarization error logged")
	return ""
}

func postUpload(t *testing.T, router *gin.Engine, field, fileName, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, fileName))
		if contentType != "" {
			h.Set("Content-Type", contentType)
		}
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("note", "no file"))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode json: %v (body %s)", err, rec.Body.String())
	}
}

func assertGenericFailure(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	decodeJSON(t, rec, &body)
	assert.Equal(t, map[string]string{"error": "Failed to summarize PDF"}, body)
}

func TestUploadSummarizesPDF(t *testing.T) {
	srv := newTestServer(t)
	pdf := pdftest.Build("Quarterly revenue grew by ten percent.", "Costs were flat.")

	rec := postUpload(t, srv.router, "pdf", "report.pdf", "application/pdf", pdf)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]any
	decodeJSON(t, rec, &body)
	assert.Equal(t, map[string]any{"summary": "A concise summary."}, body)

	require.Len(t, srv.summarizer.texts, 1)
	assert.Contains(t, srv.summarizer.texts[0], "Quarterly revenue grew by ten percent.")
	assert.Contains(t, srv.summarizer.texts[0], "Costs were flat.")
	srv.assertNoTempFiles(t)
}

func TestUploadAcceptsOctetStreamDeclaredType(t *testing.T) {
	srv := newTestServer(t)

	rec := postUpload(t, srv.router, "pdf", "report.pdf", "application/octet-stream", pdftest.Build("text"))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	srv.assertNoTempFiles(t)
}

func TestUploadMissingFile(t *testing.T) {
	srv := newTestServer(t)

	rec := postUpload(t, srv.router, "", "", "", nil)
	assertGenericFailure(t, rec)
	assert.Equal(t, failure.InvalidUpload, srv.loggedKind(t))
	assert.Empty(t, srv.summarizer.texts)
}

func TestUploadWrongField(t *testing.T) {
	srv := newTestServer(t)

	rec := postUpload(t, srv.router, "file", "report.pdf", "application/pdf", pdftest.Build("text"))
	assertGenericFailure(t, rec)
	assert.Equal(t, failure.InvalidUpload, srv.loggedKind(t))
}

func TestUploadRejectsNonPDFContent(t *testing.T) {
	srv := newTestServer(t)

	rec := postUpload(t, srv.router, "pdf", "notes.pdf", "application/pdf", []byte("just some plain text, not a pdf"))
	assertGenericFailure(t, rec)
	assert.Equal(t, failure.InvalidUpload, srv.loggedKind(t))
	srv.assertNoTempFiles(t)
}

func TestUploadRejectsMismatchedDeclaredType(t *testing.T) {
	srv := newTestServer(t)

	rec := postUpload(t, srv.router, "pdf", "image.png", "image/png", pdftest.Build("text"))
	assertGenericFailure(t, rec)
	assert.Equal(t, failure.InvalidUpload, srv.loggedKind(t))
	srv.assertNoTempFiles(t)
}

func TestUploadRejectsOversizedBody(t *testing.T) {
	srv := newTestServer(t)
	big := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("0"), 2<<20)...)

	rec := postUpload(t, srv.router, "pdf", "big.pdf", "application/pdf", big)
	assertGenericFailure(t, rec)
	assert.Equal(t, failure.InvalidUpload, srv.loggedKind(t))
	srv.assertNoTempFiles(t)
}

func TestUploadCorruptPDF(t *testing.T) {
	srv := newTestServer(t)

	rec := postUpload(t, srv.router, "pdf", "broken.pdf", "application/pdf", pdftest.Corrupt())
	assertGenericFailure(t, rec)
	assert.Equal(t, failure.ExtractionFailure, srv.loggedKind(t))
	assert.Empty(t, srv.summarizer.texts)
	srv.assertNoTempFiles(t)
}

func TestUploadEncryptedPDF(t *testing.T) {
	for _, userPW := range []string{"user-secret", ""} {
		srv := newTestServer(t)
		data, err := pdftest.Encrypted(userPW, "confidential figures")
		require.NoError(t, err)

		rec := postUpload(t, srv.router, "pdf", "locked.pdf", "application/pdf", data)
		assertGenericFailure(t, rec)
		assert.Equal(t, failure.ExtractionFailure, srv.loggedKind(t))
		assert.Empty(t, srv.summarizer.texts)
		srv.assertNoTempFiles(t)
	}
}

func TestUploadPDFWithoutText(t *testing.T) {
	srv := newTestServer(t)

	rec := postUpload(t, srv.router, "pdf", "scan.pdf", "application/pdf", pdftest.Build(" "))
	assertGenericFailure(t, rec)
	assert.Equal(t, failure.ExtractionFailure, srv.loggedKind(t))
	srv.assertNoTempFiles(t)
}

func TestUploadUpstreamFailure(t *testing.T) {
	srv := newTestServer(t)
	srv.summarizer.err = errors.New("401 invalid api key")

	rec := postUpload(t, srv.router, "pdf", "report.pdf", "application/pdf", pdftest.Build("text"))
	assertGenericFailure(t, rec)
	assert.Equal(t, failure.UpstreamFailure, srv.loggedKind(t))
	assert.NotContains(t, rec.Body.String(), "401")
	srv.assertNoTempFiles(t)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestDownloadAudio(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(srv.audioDir, "voice.mp3"), []byte("ID3"), 0o600))

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/upload/audio/voice.mp3", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ID3", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	for _, name := range []string{"missing.mp3", "..%2Fsecret", ".hidden"} {
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/upload/audio/"+name, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, name)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/upload", nil)
	req.Header.Set("Origin", config.DefaultAllowedOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, config.DefaultAllowedOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.EqualFold("true", rec.Header().Get("Access-Control-Allow-Credentials")))
}
