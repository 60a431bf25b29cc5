package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/soyeahso/livechat/internal/config"
	"github.com/soyeahso/livechat/internal/domain"
	"github.com/soyeahso/livechat/internal/logging"
	"github.com/soyeahso/livechat/internal/version"
)

const maxBodyBytes = 1 << 20

// Client talks to the remote chat API.
type Client struct {
	baseURL   string
	endpoints config.EndpointsConfig
	headers   map[string]string
	client    *http.Client
	log       *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithLogger sets the client logger.
func WithLogger(log *logging.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New creates a client from the api section of the configuration.
func New(cfg config.APIConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		endpoints: cfg.Endpoints,
		headers:   cfg.Headers,
		client:    &http.Client{Timeout: cfg.Timeout()},
		log:       logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Presence reports whether a human agent is online.
func (c *Client) Presence(ctx context.Context) (bool, error) {
	var resp StatusResponse
	if err := c.do(ctx, "presence", http.MethodGet, c.endpoints.Presence, nil, nil, &resp); err != nil {
		return false, err
	}
	if !resp.Success {
		return false, &Error{Op: "presence", Kind: KindRejected}
	}
	return bool(resp.Status.IsOnline), nil
}

// StoreInitialMessage records a message typed before contact capture under the temp session id.
func (c *Client) StoreInitialMessage(ctx context.Context, tempSessionID, text string) error {
	req := InitialMessageRequest{
		TempSessionID:  tempSessionID,
		MessageContent: text,
		MessageType:    domain.MessageText,
	}
	return c.do(ctx, "store-initial-message", http.MethodPost, c.endpoints.InitialMessage, nil, req, nil)
}

// CreateSession asks the API to materialize a real session. The returned id is the
// one the server reports, or the proposed one when the server does not echo it.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (string, error) {
	var resp CreateSessionResponse
	if err := c.do(ctx, "create-session", http.MethodPost, c.endpoints.CreateSession, nil, req, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		return "", &Error{Op: "create-session", Kind: KindRejected, Err: remoteError(resp.Error)}
	}
	if resp.SessionID != "" {
		return resp.SessionID, nil
	}
	return req.SessionID, nil
}

// TransferMessages reattaches temp-tagged messages to a real session.
func (c *Client) TransferMessages(ctx context.Context, req TransferRequest) error {
	return c.do(ctx, "transfer", http.MethodPost, c.endpoints.Transfer, nil, req, nil)
}

// FetchMessages returns every message of a session in server order.
func (c *Client) FetchMessages(ctx context.Context, sessionID string) ([]RemoteMessage, error) {
	q := url.Values{"session_id": {sessionID}}
	var resp MessagesResponse
	if err := c.do(ctx, "fetch-messages", http.MethodGet, c.endpoints.Messages, q, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &Error{Op: "fetch-messages", Kind: KindRejected, Err: remoteError(resp.Error)}
	}
	return resp.Messages, nil
}

// SendMessage posts a message into a real session.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) error {
	var resp Response
	if err := c.do(ctx, "send-message", http.MethodPost, c.endpoints.Messages, nil, req, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return &Error{Op: "send-message", Kind: KindRejected, Err: remoteError(resp.Error)}
	}
	return nil
}

// ResolveURL turns a relative image reference into an absolute URL against the API root.
func (c *Client) ResolveURL(ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() {
		return ref
	}
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

func remoteError(msg string) error {
	if msg == "" {
		return nil
	}
	return errors.New(msg)
}

// do performs one JSON round trip. A nil out skips decoding the body.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return &Error{Op: op, Kind: KindDecode, Err: fmt.Errorf("failed to marshal request: %w", err)}
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return &Error{Op: op, Kind: KindNetwork, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &Error{Op: op, Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &Error{Op: op, Kind: KindNetwork, Status: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	c.log.Trace().
		Str("op", op).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Msg("api call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Op: op, Kind: KindStatus, Status: resp.StatusCode, Err: remoteError(strings.TrimSpace(string(respBody)))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &Error{Op: op, Kind: KindDecode, Status: resp.StatusCode, Err: err}
	}
	return nil
}
