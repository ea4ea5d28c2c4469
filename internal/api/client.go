// Package api is the REST boundary of the chat backend. It knows endpoints,
// headers and error bodies; it has no session rules of its own.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/model"
)

const (
	HeaderAPIKey         = "x-api-key"
	HeaderSessionToken   = "x-session-token"
	HeaderLocale         = "x-wecare-locale"
	HeaderAcceptLanguage = "accept-language"

	maxErrorBody = 64 << 10
)

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPError is returned for any non-2xx response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return e.Message
}

type Client struct {
	doer    Doer
	baseURL string
	apiKey  string
	locale  string

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

func WithDoer(d Doer) Option {
	return func(c *Client) {
		c.doer = d
	}
}

func WithLocale(locale string) Option {
	return func(c *Client) {
		c.locale = locale
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.doer = &http.Client{Timeout: timeout}
	}
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		doer:    &http.Client{Timeout: 15 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetSessionToken attaches the credential sent with every later request.
// An empty token detaches it.
func (c *Client) SetSessionToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) SessionToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) CreateSession(ctx context.Context, req model.CreateSessionRequest) (*model.CreateSessionResponse, error) {
	var resp model.CreateSessionResponse
	if err := c.request(ctx, http.MethodPost, "/widget/chat/session", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	var resp model.ChatSession
	if err := c.request(ctx, http.MethodGet, "/widget/chat/session/"+url.PathEscape(sessionID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) SendMessage(ctx context.Context, req model.SendMessageRequest) (*model.APIMessage, error) {
	var resp model.APIMessage
	if err := c.request(ctx, http.MethodPost, "/widget/chat/message", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) SubmitRating(ctx context.Context, sessionID string, req model.SubmitRatingRequest) (*model.SubmitRatingResponse, error) {
	var resp model.SubmitRatingResponse
	endpoint := "/widget/chat/session/" + url.PathEscape(sessionID) + "/rating"
	if err := c.request(ctx, http.MethodPost, endpoint, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) request(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.doer.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		log.Debug().Err(err).Str("method", method).Str("endpoint", endpoint).Dur("elapsed", elapsed).Msg("chat api request error")
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	log.Debug().
		Str("method", method).
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("chat api request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderAPIKey, c.apiKey)
	if c.locale != "" {
		req.Header.Set(HeaderLocale, c.locale)
		req.Header.Set(HeaderAcceptLanguage, c.locale)
	}
	if token := c.SessionToken(); token != "" {
		req.Header.Set(HeaderSessionToken, token)
	}
}

// decodeError prefers the server's message, then its error field, then the
// status line.
func decodeError(resp *http.Response) error {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = json.Unmarshal(data, &payload)

	msg := payload.Message
	if msg == "" {
		msg = payload.Error
	}
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return &HTTPError{StatusCode: resp.StatusCode, Message: msg}
}
