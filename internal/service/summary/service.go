// Package summary turns extracted PDF text into a summary with one
// chat-completion call.
package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/sadam-codes/smart-pdf-summarizer/internal/config"
	"github.com/sadam-codes/smart-pdf-summarizer/internal/failure"
	"github.com/sadam-codes/smart-pdf-summarizer/internal/models"
)

// Prompt text sent with every summary request.
const (
	SystemPrompt = "You are a helpful assistant that summarizes PDF documents. " +
		"Summarize the PDF with meaningful content."
	UserPrefix = "Summarize the following PDF content:\n\n"

	stageSummarize = "summarize"
)

// ErrEmptySummary is returned when the model answers with no content.
var ErrEmptySummary = errors.New("summary response was empty")

// Service asks a chat model for summaries of extracted text.
type Service struct {
	chatModel   model.BaseChatModel
	modelName   string
	maxChars    int
	temperature float32
	maxTokens   int
	timeout     time.Duration
	log         logrus.FieldLogger
}

// NewService validates cfg and returns a Service bound to chatModel.
func NewService(chatModel model.BaseChatModel, cfg config.SummaryConfig, log logrus.FieldLogger) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = config.DefaultMaxChars
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = config.DefaultTimeoutSeconds * time.Second
	}
	return &Service{
		chatModel:   chatModel,
		modelName:   cfg.Model,
		maxChars:    maxChars,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     timeout,
		log:         log,
	}, nil
}

// MaxChars is the cap applied to text before it is sent upstream.
func (s *Service) MaxChars() int { return s.maxChars }

// Truncate keeps at most max characters of text. It counts runes so a
// multi-byte character is never split.
func Truncate(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	n := 0
	for i := range text {
		if n == max {
			return text[:i]
		}
		n++
	}
	return text
}

// BuildMessages returns the fixed system persona followed by the prefixed
// user content.
func BuildMessages(text string) []*schema.Message {
	return []*schema.Message{
		{
			Role:    schema.System,
			Content: SystemPrompt,
		},
		{
			Role:    schema.User,
			Content: UserPrefix + text,
		},
	}
}

// Summarize truncates text and asks the chat model for a summary. The call is
// bounded by the configured timeout. Errors are classified as upstream
// failures.
func (s *Service) Summarize(ctx context.Context, text string) (*models.SummaryResult, error) {
	truncated := Truncate(text, s.maxChars)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := []model.Option{model.WithTemperature(s.temperature)}
	if s.maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(s.maxTokens))
	}
	if s.modelName != "" {
		opts = append(opts, model.WithModel(s.modelName))
	}

	start := time.Now()
	resp, err := s.chatModel.Generate(ctx, BuildMessages(truncated), opts...)
	if err != nil {
		return nil, failure.Wrap(failure.UpstreamFailure, stageSummarize, fmt.Errorf("generate summary: %w", err))
	}
	content := ""
	if resp != nil {
		content = strings.TrimSpace(resp.Content)
	}
	if content == "" {
		return nil, failure.Wrap(failure.UpstreamFailure, stageSummarize, ErrEmptySummary)
	}
	s.log.WithFields(logrus.Fields{
		"input_chars": utf8.RuneCountInString(truncated),
		"elapsed":     time.Since(start).String(),
	}).Debug("summary generated")
	return &models.SummaryResult{Summary: content}, nil
}
