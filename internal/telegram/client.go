// Package telegram is a thin client for the Telegram Bot API, covering the
// two calls the bridge needs: sendMessage and long-polled getUpdates. It is
// deliberately raw net/http; the bridge trusts Telegram's own update-offset
// semantics and adds no retry policy beyond "try again next tick".
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quailyquaily/morphbridge/internal/outputfmt"
)

const (
	DefaultBaseURL = "https://api.telegram.org"

	// Telegram rejects messages above 4096 chars; chunk a bit below that so
	// parse-mode escaping never pushes a chunk over the limit.
	maxChunkLen = 3500
)

// Config carries the pre-authorized conversation identity. The client only
// ever talks to this one chat.
type Config struct {
	BaseURL string
	Token   string
	ChatID  int64
	TopicID int64
}

type Client struct {
	http    *http.Client
	baseURL string
	token   string
	chatID  int64
	topicID int64
	logger  *slog.Logger
}

func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   cfg.Token,
		chatID:  cfg.ChatID,
		topicID: cfg.TopicID,
		logger:  logger,
	}
}

// ChatID returns the authorized conversation identity.
func (c *Client) ChatID() int64 {
	return c.chatID
}

// SendMessage delivers text to the authorized chat, chunking long payloads.
// It never returns an error: any failure is logged and reported as false.
func (c *Client) SendMessage(ctx context.Context, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		text = "(empty)"
	}
	for len(text) > 0 {
		chunk := text
		if len(chunk) > maxChunkLen {
			chunk = chunk[:maxChunkLen]
		}
		if err := c.sendChunk(ctx, chunk); err != nil {
			c.logger.Warn("telegram_send_failed", "error", outputfmt.FormatErrorForDisplay(err))
			return false
		}
		text = strings.TrimSpace(text[len(chunk):])
	}
	return true
}

// sendChunk tries MarkdownV2 first and falls back to plain text when Telegram
// rejects the formatting.
func (c *Client) sendChunk(ctx context.Context, text string) error {
	err := c.sendWithParseMode(ctx, text, "MarkdownV2")
	if err == nil {
		return nil
	}
	if !IsMarkdownParseError(err) {
		return err
	}
	c.logger.Debug("telegram_markdown_rejected", "error", err.Error())
	return c.sendWithParseMode(ctx, text, "")
}

type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	MessageThreadID       int64  `json:"message_thread_id,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

type okResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

func (c *Client) sendWithParseMode(ctx context.Context, text, parseMode string) error {
	reqBody := sendMessageRequest{
		ChatID:                c.chatID,
		Text:                  text,
		ParseMode:             parseMode,
		MessageThreadID:       c.topicID,
		DisableWebPagePreview: true,
	}
	b, _ := json.Marshal(reqBody)
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	var out okResponse
	_ = json.Unmarshal(raw, &out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !out.OK {
		return &RequestError{
			StatusCode:  resp.StatusCode,
			ErrorCode:   out.ErrorCode,
			Description: out.Description,
			Body:        strings.TrimSpace(string(raw)),
		}
	}
	return nil
}

type getUpdatesResponse struct {
	OK     bool     `json:"ok"`
	Result []Update `json:"result"`
}

// GetUpdates long-polls for new updates. Telegram holds the request open up
// to timeout when nothing is queued. The second return is the advanced offset
// cursor (max update_id + 1); on error the input offset comes back unchanged.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	secs := int(timeout.Seconds())
	if secs < 0 {
		secs = 0
	}

	params := url.Values{}
	params.Set("timeout", fmt.Sprintf("%d", secs))
	params.Set("allowed_updates", `["message"]`)
	if offset > 0 {
		params.Set("offset", fmt.Sprintf("%d", offset))
	}
	endpoint := fmt.Sprintf("%s/bot%s/getUpdates?%s", c.baseURL, c.token, params.Encode())

	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, offset, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, offset, err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, offset, fmt.Errorf("telegram http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out getUpdatesResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, offset, err
	}
	if !out.OK {
		return nil, offset, fmt.Errorf("telegram getUpdates: ok=false")
	}

	next := offset
	for _, u := range out.Result {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return out.Result, next, nil
}
