// Package httpapi sends email through a JSON HTTP API with bearer auth.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/flaboy/aira-checkout/pkg/extensions/email/types"
	"github.com/valyala/fasthttp"
)

const defaultTimeout = 15 * time.Second

type HTTPAPI struct {
	url     string
	apiKey  string
	timeout time.Duration
	client  *fasthttp.Client
}

func New(url, apiKey string) *HTTPAPI {
	return &HTTPAPI{url: url, apiKey: apiKey, timeout: defaultTimeout}
}

func (h *HTTPAPI) Init() error {
	if h.url == "" {
		return fmt.Errorf("email API url is not configured")
	}
	if h.apiKey == "" {
		return fmt.Errorf("email API key is not configured")
	}
	h.client = &fasthttp.Client{
		Name:                "aira-checkout",
		MaxIdleConnDuration: 90 * time.Second,
	}
	return nil
}

func (h *HTTPAPI) GetProviderName() string {
	return "http"
}

type sendRequest struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
	Text    string            `json:"text,omitempty"`
	Tags    map[string]string `json:"tags,omitempty"`
}

func (h *HTTPAPI) Send(ctx context.Context, msg *types.Message) error {
	to := msg.To
	if msg.ToName != "" {
		// 含逗号、引号或非ASCII的显示名需要按RFC 5322编码
		to = (&mail.Address{Name: msg.ToName, Address: msg.To}).String()
	}
	body, err := json.Marshal(sendRequest{
		From:    msg.From,
		To:      []string{to},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
		Tags:    msg.Tags,
	})
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(h.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", "Bearer "+h.apiKey)
	req.SetBody(body)

	deadline := time.Now().Add(h.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := h.client.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("email API request failed: %w", err)
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		return fmt.Errorf("email API returned status %d: %s", status, truncate(resp.Body(), 256))
	}

	slog.Info("[EmailAPI] Sent", "to", msg.To, "status", status)
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
