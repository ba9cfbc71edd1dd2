package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/sh1vu7/secreteshare/internal/share"
)

// WebhookConfig configures a Webhook transport.
type WebhookConfig struct {
	// URL is the base URL of the bot gateway, e.g. http://gateway:9000.
	URL string
	// Token is sent as a bearer token when set.
	Token string
	// Timeout bounds one call when the context has no deadline.
	Timeout time.Duration
	// Dial overrides how connections are made. Tests use it with an
	// in-memory listener.
	Dial fasthttp.DialFunc
}

// Webhook forwards transport calls as JSON POSTs to a bot gateway that owns
// the chat-platform connection.
//
// Endpoints are <URL>/deliver, /control, /delete and /notify. The gateway
// answers 403 for forbidden or blocked chats and 404 for missing messages;
// any other non-2xx status is treated as transient.
type Webhook struct {
	base    string
	token   string
	timeout time.Duration
	client  *fasthttp.Client
	log     *slog.Logger
}

var _ Transport = (*Webhook)(nil)

// NewWebhook creates a webhook transport.
func NewWebhook(cfg WebhookConfig, log *slog.Logger) (*Webhook, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook transport: url is required")
	}
	if !strings.HasPrefix(cfg.URL, "http://") && !strings.HasPrefix(cfg.URL, "https://") {
		return nil, fmt.Errorf("webhook transport: url %q must be http or https", cfg.URL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Webhook{
		base:    strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		timeout: cfg.Timeout,
		client: &fasthttp.Client{
			Name:                "secretshare",
			Dial:                cfg.Dial,
			MaxConnsPerHost:     64,
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxIdleConnDuration: time.Minute,
		},
		log: log.With("component", "webhook_transport"),
	}, nil
}

type messageResponse struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Deliver asks the gateway to copy content to user to.
func (w *Webhook) Deliver(ctx context.Context, content share.ContentRef, to int64, opts DeliverOptions) (DeliveryResult, error) {
	var out messageResponse
	err := w.post(ctx, "deliver", map[string]any{
		"content": content,
		"to":      to,
		"options": opts,
	}, &out)
	if err != nil {
		return DeliveryResult{}, err
	}
	return DeliveryResult{Message: share.MessageRef{ChatID: out.ChatID, MessageID: out.MessageID}}, nil
}

// SendControlMessage asks the gateway to post the control message.
func (w *Webhook) SendControlMessage(ctx context.Context, to int64, p ControlPayload) (share.MessageRef, error) {
	var out messageResponse
	if err := w.post(ctx, "control", map[string]any{"to": to, "payload": p}, &out); err != nil {
		return share.MessageRef{}, err
	}
	return share.MessageRef{ChatID: out.ChatID, MessageID: out.MessageID}, nil
}

// DeleteMessage asks the gateway to delete ref. A 404 means the message was
// already gone and is reported as false without error.
func (w *Webhook) DeleteMessage(ctx context.Context, ref share.MessageRef) (bool, error) {
	var out struct {
		Deleted bool `json:"deleted"`
	}
	err := w.post(ctx, "delete", ref, &out)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return out.Deleted, nil
}

// Notify asks the gateway to send a text notice.
func (w *Webhook) Notify(ctx context.Context, to int64, text string) error {
	return w.post(ctx, "notify", map[string]any{"to": to, "text": text}, nil)
}

func (w *Webhook) post(ctx context.Context, op string, in, out any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(w.base + "/" + op)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}
	req.SetBody(body)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(w.timeout)
	}
	if err := w.client.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	status := resp.StatusCode()
	switch {
	case status >= 200 && status < 300:
	case status == fasthttp.StatusForbidden:
		var e errorResponse
		_ = json.Unmarshal(resp.Body(), &e)
		if e.Error == "blocked" {
			return fmt.Errorf("%s: %w", op, ErrBlocked)
		}
		return fmt.Errorf("%s: %w", op, ErrForbidden)
	case status == fasthttp.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	default:
		w.log.Warn("gateway returned an error", "op", op, "status", status)
		return fmt.Errorf("%s: gateway status %d", op, status)
	}

	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
