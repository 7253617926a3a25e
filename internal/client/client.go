// Package client is the summary client: it holds the selected PDF, submits it
// to the server and keeps the resulting summary for rendering, read-aloud and
// copying.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/sirupsen/logrus"

	"github.com/sadam-codes/smart-pdf-summarizer/internal/config"
	"github.com/sadam-codes/smart-pdf-summarizer/internal/models"
	"github.com/sadam-codes/smart-pdf-summarizer/internal/render"
)

// State is the submit lifecycle of a Client.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

const (
	MsgSelected   = "PDF selected"
	MsgNoFile     = "Please upload a PDF first"
	MsgSubmitting = "Summarizing PDF..."
	MsgSucceeded  = "Summary generated successfully!"
	MsgFailed     = "Failed to summarize PDF"
	MsgCopied     = "Summary copied to clipboard!"
	MsgCopyFailed = "Failed to copy summary"
	MsgNoSummary  = "Nothing to copy yet"
)

const (
	uploadPath      = "/upload"
	audioPathPrefix = "/upload/audio/"
)

var (
	ErrNoFile    = errors.New("no pdf selected")
	ErrInFlight  = errors.New("a summary request is already running")
	ErrNoSummary = errors.New("no summary available")
	ErrNoAudio   = errors.New("no audio available")
)

// Notifier shows short status messages to the user.
type Notifier interface {
	Info(msg string)
	Success(msg string)
	Error(msg string)
}

// Clipboard receives copied summaries.
type Clipboard interface {
	WriteAll(text string) error
}

// SystemClipboard writes to the operating system clipboard.
type SystemClipboard struct{}

func (SystemClipboard) WriteAll(text string) error {
	if clipboard.Unsupported {
		return errors.New("clipboard not supported on this system")
	}
	return clipboard.WriteAll(text)
}

type selection struct {
	name string
	data []byte
}

// Client holds one selected PDF and the last summary returned for it. It is
// safe for use from the UI goroutine and a submit goroutine at once.
type Client struct {
	baseURL    string
	field      string
	httpClient *http.Client
	notify     Notifier
	clip       Clipboard
	log        logrus.FieldLogger

	mu        sync.Mutex
	state     State
	file      *selection
	summary   string
	audio     string
	highlight int
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithClipboard(cb Clipboard) Option {
	return func(c *Client) { c.clip = cb }
}

func WithUploadField(field string) Option {
	return func(c *Client) { c.field = field }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) { c.log = log }
}

// New returns an idle client for serverURL. A nil notify discards messages.
func New(serverURL string, notify Notifier, opts ...Option) *Client {
	if serverURL == "" {
		serverURL = config.DefaultServerURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(serverURL, "/"),
		field:      config.DefaultUploadField,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		notify:     notify,
		clip:       SystemClipboard{},
		log:        logrus.StandardLogger(),
		state:      StateIdle,
		highlight:  render.NoHighlight,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notify == nil {
		c.notify = nopNotifier{}
	}
	return c
}

// State reports the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Summary returns the last summary, empty before the first success.
func (c *Client) Summary() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary
}

// Audio returns the audio path reported by the server, if any.
func (c *Client) Audio() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audio
}

// Select stores a PDF for the next submit and clears the previous summary and
// highlight. It is refused while a submit is running.
func (c *Client) Select(name string, data []byte) error {
	c.mu.Lock()
	if c.state == StateSubmitting {
		c.mu.Unlock()
		return ErrInFlight
	}
	c.file = &selection{name: filepath.Base(name), data: data}
	c.summary = ""
	c.audio = ""
	c.highlight = render.NoHighlight
	c.state = StateIdle
	c.mu.Unlock()

	c.notify.Info(MsgSelected)
	return nil
}

// SelectFile reads path from disk and selects it.
func (c *Client) SelectFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read pdf: %w", err)
	}
	return c.Select(path, data)
}

// Submit uploads the selected PDF. Without a selection it fails immediately
// and sends nothing. Failures are not retried.
func (c *Client) Submit(ctx context.Context) (*models.SummaryResult, error) {
	c.mu.Lock()
	if c.file == nil {
		c.mu.Unlock()
		c.notify.Error(MsgNoFile)
		return nil, ErrNoFile
	}
	if c.state == StateSubmitting {
		c.mu.Unlock()
		return nil, ErrInFlight
	}
	c.state = StateSubmitting
	file := c.file
	c.mu.Unlock()

	c.notify.Info(MsgSubmitting)
	res, err := c.post(ctx, file)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateFailed
		c.log.WithError(err).Error("summarize pdf failed")
		c.notify.Error(MsgFailed)
		return nil, err
	}
	c.state = StateSucceeded
	c.summary = res.Summary
	c.audio = res.AudioPath
	c.highlight = render.NoHighlight
	c.notify.Success(MsgSucceeded)
	return res, nil
}

func (c *Client) post(ctx context.Context, file *selection) (*models.SummaryResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreatePart(pdfPartHeader(c.field, file.name))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(file.data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, &body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload pdf: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		if payload.Error == "" {
			payload.Error = resp.Status
		}
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, payload.Error)
	}
	var res models.SummaryResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &res, nil
}

// SetHighlight marks the word at index for the next render.
func (c *Client) SetHighlight(index int) {
	c.mu.Lock()
	c.highlight = index
	c.mu.Unlock()
}

// RenderHTML returns the summary as sanitized HTML with the current highlight.
func (c *Client) RenderHTML() (string, error) {
	c.mu.Lock()
	summary, highlight := c.summary, c.highlight
	c.mu.Unlock()
	return render.Render(summary, highlight)
}

// Copy puts the raw summary on the clipboard.
func (c *Client) Copy() error {
	summary := c.Summary()
	if summary == "" {
		c.notify.Error(MsgNoSummary)
		return ErrNoSummary
	}
	if err := c.clip.WriteAll(summary); err != nil {
		c.notify.Error(MsgCopyFailed)
		return fmt.Errorf("copy summary: %w", err)
	}
	c.notify.Success(MsgCopied)
	return nil
}

// AudioURL is the download link for the reported audio file. Only the base
// name of the reported path is used.
func (c *Client) AudioURL() (string, error) {
	audio := c.Audio()
	if audio == "" {
		return "", ErrNoAudio
	}
	return c.baseURL + audioPathPrefix + url.PathEscape(path.Base(filepath.ToSlash(audio))), nil
}

// DownloadAudio saves the reported audio file into dir and returns its path.
func (c *Client) DownloadAudio(ctx context.Context, dir string) (string, error) {
	link, err := c.AudioURL()
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download audio: server returned %d", resp.StatusCode)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create audio dir: %w", err)
	}
	dst := filepath.Join(dir, path.Base(filepath.ToSlash(c.Audio())))
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create audio file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dst)
		return "", fmt.Errorf("write audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close audio file: %w", err)
	}
	return dst, nil
}

type nopNotifier struct{}

func (nopNotifier) Info(string)    {}
func (nopNotifier) Success(string) {}
func (nopNotifier) Error(string)   {}
