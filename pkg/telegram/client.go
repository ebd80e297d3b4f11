package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/chitragupt/chitragupt/pkg/observability"
)

// MaxDeleteBatch is the Bot API hard limit on ids per deleteMessages call
const MaxDeleteBatch = 100

// pollMargin keeps the HTTP deadline of getUpdates strictly longer than
// the server-side long-poll timeout so the connection is never cut early.
const pollMargin = 5 * time.Second

// APIError is a non-ok response from the Bot API
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Client talks to the Telegram Bot API over HTTP
type Client struct {
	baseURL     string
	token       string
	client      *http.Client
	callTimeout time.Duration
	pollTimeout time.Duration
	logger      *observability.Logger
	metrics     *observability.Metrics
}

// NewClient creates a Bot API client. metrics may be nil.
func NewClient(baseURL, token string, callTimeout, pollTimeout time.Duration, logger *observability.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		callTimeout: callTimeout,
		pollTimeout: pollTimeout,
		logger:      logger,
		metrics:     metrics,
	}
}

// call invokes one Bot API method and decodes its result into out (may be nil)
func (c *Client) call(ctx context.Context, method string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.ObserveAPICall(method, 0, time.Since(start))
		}
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.ObserveAPICall(method, resp.StatusCode, time.Since(start))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if !envelope.OK {
		return &APIError{Method: method, Code: envelope.ErrorCode, Description: envelope.Description}
	}

	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}

// GetMe returns the bot's own account, used to learn its username
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var me User
	if err := c.call(ctx, "getMe", map[string]interface{}{}, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// GetUpdates long-polls for new updates starting at offset
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout+pollMargin)
	defer cancel()

	payload := map[string]interface{}{
		"timeout": int(c.pollTimeout.Seconds()),
	}
	if offset != 0 {
		payload["offset"] = offset
	}

	var updates []Update
	if err := c.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage sends a text message, optionally with an inline keyboard
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup *InlineKeyboardMarkup) (*Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	payload := map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	}
	if markup != nil {
		payload["reply_markup"] = markup
	}

	var msg Message
	if err := c.call(ctx, "sendMessage", payload, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditMessageText replaces the text (and keyboard) of a previously sent message
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string, markup *InlineKeyboardMarkup) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	payload := map[string]interface{}{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}
	if markup != nil {
		payload["reply_markup"] = markup
	}
	return c.call(ctx, "editMessageText", payload, nil)
}

// DeleteMessage deletes a single message
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	return c.call(ctx, "deleteMessage", payload(chatID, "message_id", messageID), nil)
}

// DeleteMessages bulk-deletes up to MaxDeleteBatch messages in one call
func (c *Client) DeleteMessages(ctx context.Context, chatID int64, messageIDs []int64) error {
	if len(messageIDs) == 0 {
		return nil
	}
	if len(messageIDs) > MaxDeleteBatch {
		return fmt.Errorf("deleteMessages accepts at most %d ids, got %d", MaxDeleteBatch, len(messageIDs))
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	return c.call(ctx, "deleteMessages", payload(chatID, "message_ids", messageIDs), nil)
}

// AnswerCallbackQuery acknowledges a button press so the client spinner stops
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	p := map[string]interface{}{
		"callback_query_id": callbackQueryID,
	}
	if text != "" {
		p["text"] = text
	}
	return c.call(ctx, "answerCallbackQuery", p, nil)
}

// GetFile fetches file metadata for a file id
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var file File
	if err := c.call(ctx, "getFile", map[string]interface{}{"file_id": fileID}, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// BanChatMember removes a user from a chat
func (c *Client) BanChatMember(ctx context.Context, chatID, userID int64) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	return c.call(ctx, "banChatMember", payload(chatID, "user_id", userID), nil)
}

// payload builds the common chat-scoped request body
func payload(chatID int64, key string, value interface{}) map[string]interface{} {
	return map[string]interface{}{
		"chat_id": chatID,
		key:       value,
	}
}
