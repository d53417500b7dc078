package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
)

var ErrMissingAPIKey = errors.New("summarizer API key is not set")

// SummaryError reports a title that could not be summarized.
type SummaryError struct {
	Title string
	Err   error
}

func (e *SummaryError) Error() string {
	return fmt.Sprintf("failed to summarize %q: %v", e.Title, e.Err)
}

func (e *SummaryError) Unwrap() error {
	return e.Err
}

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Prompt  Prompt
}

// Client produces one-line summaries through an OpenAI-compatible chat API.
type Client struct {
	chat    *openai.Client
	model   string
	timeout time.Duration
	prompt  Prompt
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Prompt.Rules == nil && cfg.Prompt.MaxChars == 0 {
		cfg.Prompt = DefaultPrompt()
	}
	if err := cfg.Prompt.Validate(); err != nil {
		return nil, err
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		chat:    openai.NewClientWithConfig(clientConfig),
		model:   model,
		timeout: cfg.Timeout,
		prompt:  cfg.Prompt,
	}, nil
}

// Summarize returns a one-line summary of title and the optional subtitle.
// Every failure is a *SummaryError.
func (c *Client) Summarize(ctx context.Context, title, subtitle string) (string, error) {
	text := title
	if subtitle != "" && subtitle != title {
		text = title + "\n" + subtitle
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.prompt.System()},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return "", &SummaryError{Title: title, Err: fmt.Errorf("chat completion failed: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return "", &SummaryError{Title: title, Err: errors.New("no choices in response")}
	}

	summary, err := c.clean(resp.Choices[0].Message.Content)
	if err != nil {
		return "", &SummaryError{Title: title, Err: err}
	}

	slog.Debug("Summary generated",
		"title", title,
		"summary", summary,
		"model", c.model,
		"duration", time.Since(start),
		"total_tokens", resp.Usage.TotalTokens)

	return summary, nil
}

// clean strips wrapping quotes and closing punctuation and rejects replies
// that are not a single short line.
func (c *Client) clean(reply string) (string, error) {
	s := strings.TrimSpace(reply)
	s = strings.Trim(s, `"'“”‘’`)
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "。.")
	s = strings.TrimSpace(s)

	if s == "" {
		return "", errors.New("empty reply")
	}
	if strings.ContainsAny(s, "\r\n") {
		return "", errors.New("reply spans multiple lines")
	}
	if n := utf8.RuneCountInString(s); n > 2*c.prompt.MaxChars {
		return "", fmt.Errorf("reply has %d characters, limit is %d", n, 2*c.prompt.MaxChars)
	}
	return s, nil
}
