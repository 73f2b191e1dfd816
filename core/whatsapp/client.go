package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/m3rciful/menubot/core/logger"
	"github.com/m3rciful/menubot/core/message"
)

// Cloud API defaults.
const (
	DefaultBaseURL    = "https://graph.facebook.com"
	DefaultAPIVersion = "v19.0"
)

// ClientOptions configures a Cloud API client.
type ClientOptions struct {
	BaseURL       string
	APIVersion    string
	PhoneNumberID string
	AccessToken   string
	// DryRun logs payloads instead of sending. Forced on when credentials are missing.
	DryRun     bool
	HTTPClient *http.Client
}

// Client sends messages through the WhatsApp Cloud API.
type Client struct {
	endpoint string
	token    string
	dryRun   bool
	http     *http.Client
}

// APIError is a non-2xx answer from the Graph API.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Type       string `json:"type"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp api: status %d code %d: %s", e.StatusCode, e.Code, e.Message)
}

// HTTPStatus reports the response status for retry classification.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// NewClient builds a client. Missing phone id or token switches it to dry-run.
func NewClient(opts ClientOptions) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	version := strings.Trim(opts.APIVersion, "/")
	if version == "" {
		version = DefaultAPIVersion
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	dry := opts.DryRun || opts.PhoneNumberID == "" || opts.AccessToken == ""
	return &Client{
		endpoint: fmt.Sprintf("%s/%s/%s/messages", base, version, opts.PhoneNumberID),
		token:    opts.AccessToken,
		dryRun:   dry,
		http:     httpClient,
	}
}

// DryRun reports whether the client only logs payloads.
func (c *Client) DryRun() bool { return c.dryRun }

// Send renders out and posts it to recipient to.
func (c *Client) Send(ctx context.Context, to string, out message.Outbound) error {
	payload, err := Render(to, out)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("whatsapp: marshal payload: %w", err)
	}

	if c.dryRun {
		logger.Info(ctx, component, "send.dry_run",
			slog.String("mode", "dry_run"),
			slog.String("action", payload.Type),
			slog.String("payload", logger.SanitizeLimit(string(body), 2048)),
		)
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("whatsapp: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: send: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error *APIError `json:"error"`
		}
		envelope.Error = apiErr
		if jsonErr := json.Unmarshal(raw, &envelope); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = logger.SanitizeLimit(string(raw), 256)
		}
		return apiErr
	}
	logger.Debug(ctx, component, "send.ok",
		slog.String("action", payload.Type),
		slog.Int("http_code", resp.StatusCode),
	)
	return nil
}
