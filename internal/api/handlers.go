package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/sadam-codes/smart-pdf-summarizer/internal/config"
	"github.com/sadam-codes/smart-pdf-summarizer/internal/failure"
	"github.com/sadam-codes/smart-pdf-summarizer/internal/models"
	"github.com/sadam-codes/smart-pdf-summarizer/internal/service/upload"
)

const (
	summarizeFailedMsg = "Failed to summarize PDF"
	pdfMIME            = "application/pdf"
	sniffLen           = 512

	stageReadUpload = "read_upload"
	stageCheckType  = "check_type"
	stageStore      = "store_upload"
	stageExtract    = "extract_text"
	stageSummarize  = "summarize"
)

// declared types that do not contradict a PDF body
var acceptedDeclaredTypes = []string{
	"application/pdf",
	"application/x-pdf",
	"application/octet-stream",
}

// TempStore holds an upload on disk for the length of one request.
type TempStore interface {
	Acquire(ctx context.Context, fileName, mimeType string, r io.Reader) (*models.TempFile, upload.ReleaseFunc, error)
}

// Extractor pulls plain text out of a stored PDF.
type Extractor interface {
	Extract(ctx context.Context, path string) (*models.ExtractedText, error)
}

// Summarizer turns extracted text into a summary.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (*models.SummaryResult, error)
}

// Handler wires HTTP routes to the upload store, the text extractor and the summarizer.
type Handler struct {
	store          TempStore
	extractor      Extractor
	summarizer     Summarizer
	uploadField    string
	maxUploadBytes int64
	audioDir       string
	log            logrus.FieldLogger
}

// NewHandler constructs a Handler instance.
func NewHandler(cfg config.ServerConfig, store TempStore, extractor Extractor, summarizer Summarizer, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	field := cfg.UploadField
	if field == "" {
		field = config.DefaultUploadField
	}
	maxMB := cfg.MaxUploadMB
	if maxMB <= 0 {
		maxMB = config.DefaultMaxUploadMB
	}
	return &Handler{
		store:          store,
		extractor:      extractor,
		summarizer:     summarizer,
		uploadField:    field,
		maxUploadBytes: int64(maxMB) << 20,
		audioDir:       cfg.AudioDir,
		log:            log,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.health)
	uploads := router.Group("/upload")
	uploads.POST("", h.uploadPDF)
	uploads.GET("/audio/:filename", h.downloadAudio)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) uploadPDF(c *gin.Context) {
	start := time.Now()
	res, err := h.summarizeUpload(c)
	if err != nil {
		h.log.WithError(err).WithFields(logrus.Fields{
			"kind":    failure.KindOf(err),
			"stage":   failure.StageOf(err),
			"elapsed": time.Since(start).String(),
		}).Error("summarization error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": summarizeFailedMsg})
		return
	}
	c.JSON(http.StatusOK, res)
}

// summarizeUpload runs one upload through store, extract and summarize. The
// work is detached from the request context so an abandoned request still
// finishes its upstream call and its cleanup.
func (h *Handler) summarizeUpload(c *gin.Context) (*models.SummaryResult, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	fileHeader, err := c.FormFile(h.uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, failure.Wrap(failure.InvalidUpload, stageReadUpload, fmt.Errorf("upload exceeds %d bytes", tooLarge.Limit))
		}
		return nil, failure.Wrap(failure.InvalidUpload, stageReadUpload, fmt.Errorf("read form file %q: %w", h.uploadField, err))
	}
	if fileHeader.Size > h.maxUploadBytes {
		return nil, failure.New(failure.InvalidUpload, stageReadUpload, "file too large")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return nil, failure.Wrap(failure.InvalidUpload, stageReadUpload, fmt.Errorf("open form file: %w", err))
	}
	defer src.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, failure.Wrap(failure.InvalidUpload, stageReadUpload, fmt.Errorf("read upload: %w", err))
	}
	head = head[:n]
	if err := checkPDF(head, fileHeader.Header.Get("Content-Type")); err != nil {
		return nil, failure.Wrap(failure.InvalidUpload, stageCheckType, err)
	}

	ctx := context.WithoutCancel(c.Request.Context())
	tf, release, err := h.store.Acquire(ctx, fileHeader.Filename, pdfMIME, io.MultiReader(bytes.NewReader(head), src))
	if err != nil {
		return nil, failure.Wrap(failure.InternalFailure, stageStore, err)
	}
	defer release()

	extracted, err := h.extractor.Extract(ctx, tf.StoredPath)
	if err != nil {
		return nil, failure.Wrap(failure.ExtractionFailure, stageExtract, err)
	}
	h.log.WithFields(logrus.Fields{
		"file":  tf.FileName,
		"size":  tf.Size,
		"pages": extracted.Pages,
		"chars": utf8.RuneCountInString(extracted.Text),
	}).Info("pdf text extracted")

	res, err := h.summarizer.Summarize(ctx, extracted.Text)
	if err != nil {
		return nil, failure.Wrap(failure.UpstreamFailure, stageSummarize, err)
	}
	return res, nil
}

func checkPDF(head []byte, declared string) error {
	if len(head) == 0 {
		return errors.New("empty upload")
	}
	sniffed := http.DetectContentType(head)
	if !strings.HasPrefix(sniffed, pdfMIME) {
		return fmt.Errorf("content is %s, not a pdf", sniffed)
	}
	if declared == "" {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return fmt.Errorf("parse declared type: %w", err)
	}
	for _, accepted := range acceptedDeclaredTypes {
		if mediaType == accepted {
			return nil
		}
	}
	return fmt.Errorf("declared type %s is not a pdf", mediaType)
}

// downloadAudio serves a previously generated audio file. Nothing in this
// server writes audio; the route exists for collaborators that do.
func (h *Handler) downloadAudio(c *gin.Context) {
	name := c.Param("filename")
	if h.audioDir == "" || name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		c.JSON(http.StatusNotFound, gin.H{"error": "audio not found"})
		return
	}
	path := filepath.Join(h.audioDir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, gin.H{"error": "audio not found"})
		return
	}
	c.FileAttachment(path, name)
}
