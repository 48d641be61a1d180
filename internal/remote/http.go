package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds a single HTTP round trip.
const DefaultTimeout = 15 * time.Second

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 8 << 20

// HTTPClient implements Client over the backend's JSON HTTP API.
type HTTPClient struct {
	base   *url.URL
	tokens TokenSource
	http   *http.Client
	logger *slog.Logger
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout of the default *http.Client.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		c.http.Timeout = d
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *slog.Logger) HTTPOption {
	return func(c *HTTPClient) {
		c.logger = l
	}
}

// NewHTTPClient creates a client rooted at baseURL.
func NewHTTPClient(baseURL string, tokens TokenSource, opts ...HTTPOption) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	if tokens == nil {
		return nil, errors.New("token source is required")
	}

	c := &HTTPClient{
		base:   u,
		tokens: tokens,
		http:   &http.Client{Timeout: DefaultTimeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Network fetches the user's accepted connections.
func (c *HTTPClient) Network(ctx context.Context, userID int64) ([]byte, error) {
	return c.get(ctx, "network", "users", strconv.FormatInt(userID, 10), "network")
}

// FriendRequests fetches requests received by the user.
func (c *HTTPClient) FriendRequests(ctx context.Context, userID int64) ([]byte, error) {
	return c.get(ctx, "friendRequests", "users", strconv.FormatInt(userID, 10), "friend-requests")
}

// SentRequests fetches requests sent by the user.
func (c *HTTPClient) SentRequests(ctx context.Context, userID int64) ([]byte, error) {
	return c.get(ctx, "sentRequests", "users", strconv.FormatInt(userID, 10), "sent-requests")
}

// CandidatePool fetches candidate profiles of the given kind.
func (c *HTTPClient) CandidatePool(ctx context.Context, kind string) ([]byte, error) {
	if kind != "entrepreneurs" && kind != "mentors" {
		return nil, NewTransportError("candidatePool", 0, fmt.Errorf("unknown candidate kind %q", kind))
	}
	return c.get(ctx, "candidatePool", "candidates", kind)
}

type sendRequestBody struct {
	UserID        int64  `json:"userId"`
	ReceiverEmail string `json:"receiverEmail"`
}

type answerRequestBody struct {
	SenderEmail string `json:"senderEmail"`
	ReceiverID  int64  `json:"receiverId"`
}

// SendFriendRequest asks the backend to create an outgoing request.
func (c *HTTPClient) SendFriendRequest(ctx context.Context, userID int64, receiverEmail string) error {
	return c.post(ctx, "sendFriendRequest", sendRequestBody{UserID: userID, ReceiverEmail: receiverEmail}, "friend-requests", "send")
}

// AcceptFriendRequest accepts the request sent by senderEmail.
func (c *HTTPClient) AcceptFriendRequest(ctx context.Context, senderEmail string, receiverID int64) error {
	return c.post(ctx, "acceptFriendRequest", answerRequestBody{SenderEmail: senderEmail, ReceiverID: receiverID}, "friend-requests", "accept")
}

// DeclineFriendRequest declines the request sent by senderEmail.
func (c *HTTPClient) DeclineFriendRequest(ctx context.Context, senderEmail string, receiverID int64) error {
	return c.post(ctx, "declineFriendRequest", answerRequestBody{SenderEmail: senderEmail, ReceiverID: receiverID}, "friend-requests", "decline")
}

func (c *HTTPClient) get(ctx context.Context, op string, path ...string) ([]byte, error) {
	req, err := c.newRequest(ctx, op, http.MethodGet, nil, path...)
	if err != nil {
		return nil, err
	}
	status, body, err := c.do(op, req)
	if err != nil {
		return nil, err
	}
	if err := classifyStatus(op, status, body, false); err != nil {
		return nil, err
	}
	// A rejected read carries no rows; treating it as an empty list would
	// wipe the partition.
	if msg, rejected := rejectedEnvelope(body); rejected {
		return nil, &Error{Code: ErrCodeTransport, Op: op, Status: status, Message: msg}
	}
	return body, nil
}

func (c *HTTPClient) post(ctx context.Context, op string, payload any, path ...string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return NewTransportError(op, 0, fmt.Errorf("encode request: %w", err))
	}
	req, err := c.newRequest(ctx, op, http.MethodPost, bytes.NewReader(data), path...)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	status, body, err := c.do(op, req)
	if err != nil {
		return err
	}
	if err := classifyStatus(op, status, body, true); err != nil {
		return err
	}
	if msg, rejected := rejectedEnvelope(body); rejected {
		return NewConflictError(op, status, msg)
	}
	return nil
}

func (c *HTTPClient) newRequest(ctx context.Context, op, method string, body io.Reader, path ...string) (*http.Request, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		if IsAuth(err) {
			return nil, err
		}
		return nil, &Error{Code: ErrCodeAuth, Op: op, Message: "token unavailable", Err: err}
	}
	if token == "" {
		return nil, NewAuthError(op, 0, "empty session token")
	}

	u := c.base.JoinPath(path...)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, NewTransportError(op, 0, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *HTTPClient) do(op string, req *http.Request) (int, []byte, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("remote request failed",
			"op", op,
			"method", req.Method,
			"error", err,
		)
		return 0, nil, NewTransportError(op, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, NewTransportError(op, resp.StatusCode, fmt.Errorf("read body: %w", err))
	}

	c.logger.Debug("remote request",
		"op", op,
		"method", req.Method,
		"status", resp.StatusCode,
		"bytes", len(body),
		"elapsed", time.Since(start),
	)
	return resp.StatusCode, body, nil
}

// classifyStatus maps an HTTP status to the error taxonomy.
func classifyStatus(op string, status int, body []byte, mutation bool) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewAuthError(op, status, messageOf(body, http.StatusText(status)))
	case status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		return NewConflictError(op, status, messageOf(body, http.StatusText(status)))
	case mutation && status == http.StatusBadRequest:
		return NewConflictError(op, status, messageOf(body, http.StatusText(status)))
	default:
		return &Error{Code: ErrCodeTransport, Op: op, Status: status, Message: messageOf(body, http.StatusText(status))}
	}
}

type envelope struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// rejectedEnvelope detects a 2xx body of the form {"success": false, ...}.
func rejectedEnvelope(body []byte) (string, bool) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", false
	}
	if env.Success == nil || *env.Success {
		return "", false
	}
	return messageOf(body, "request rejected"), true
}

func messageOf(body []byte, fallback string) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Message != "" {
			return env.Message
		}
		if env.Error != "" {
			return env.Error
		}
	}
	return fallback
}
