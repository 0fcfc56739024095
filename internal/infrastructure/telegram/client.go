// Package telegram talks to the Telegram Bot API over fasthttp.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/taskbot/api/transport"
	"github.com/fastygo/taskbot/domain"
	"github.com/fastygo/taskbot/usecase"
)

const (
	DefaultAPIBase = "https://api.telegram.org"
	defaultTimeout = 10 * time.Second
)

// allowedUpdates limits deliveries to what the bot handles.
var allowedUpdates = []string{"message", "callback_query"}

// APIError is a Bot API response with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

type Client struct {
	http    *fasthttp.Client
	baseURL string
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient builds a Bot API client for token. An empty apiBase uses the
// public endpoint.
func NewClient(token, apiBase string, timeout time.Duration, logger *zap.Logger) *Client {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http: &fasthttp.Client{
			Name:                "taskbot",
			MaxIdleConnDuration: time.Minute,
		},
		baseURL: strings.TrimRight(apiBase, "/") + "/bot" + token,
		timeout: timeout,
		logger:  logger,
	}
}

var _ usecase.Notifier = (*Client)(nil)

// Send delivers a reply with HTML formatting and its keyboard.
func (c *Client) Send(ctx context.Context, reply domain.Reply) error {
	return c.call(ctx, "sendMessage", transport.NewSendMessage(reply), nil, c.timeout)
}

// AnswerCallback acknowledges a button press.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	payload := map[string]interface{}{"callback_query_id": callbackID}
	if text != "" {
		payload["text"] = text
	}
	return c.call(ctx, "answerCallbackQuery", payload, nil, c.timeout)
}

// SetWebhook registers url for update delivery. Telegram echoes secret in
// the X-Telegram-Bot-Api-Secret-Token header of every delivery.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	payload := map[string]interface{}{
		"url":             url,
		"allowed_updates": allowedUpdates,
	}
	if secret != "" {
		payload["secret_token"] = secret
	}
	return c.call(ctx, "setWebhook", payload, nil, c.timeout)
}

// DeleteWebhook switches the bot back to getUpdates delivery.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, "deleteWebhook", map[string]interface{}{}, nil, c.timeout)
}

// GetUpdates long-polls for updates after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, wait time.Duration) ([]transport.TelegramUpdate, error) {
	payload := map[string]interface{}{
		"offset":          offset,
		"timeout":         int(wait.Seconds()),
		"allowed_updates": allowedUpdates,
	}
	var updates []transport.TelegramUpdate
	if err := c.call(ctx, "getUpdates", payload, &updates, wait+c.timeout); err != nil {
		return nil, err
	}
	return updates, nil
}

func (c *Client) call(ctx context.Context, method string, payload, result interface{}, timeout time.Duration) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + "/" + method)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}

	var envelope transport.TelegramResponse[json.RawMessage]
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return fmt.Errorf("telegram %s: decode response (status %d): %w", method, resp.StatusCode(), err)
	}
	if !envelope.OK {
		return &APIError{Method: method, Code: envelope.ErrorCode, Description: envelope.Description}
	}
	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	c.logger.Debug("telegram call", zap.String("method", method), zap.Int("status", resp.StatusCode()))
	return nil
}
