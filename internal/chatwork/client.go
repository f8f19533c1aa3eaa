package chatwork

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/adamavenir/cwthread/internal/types"
	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TokenHeader carries the API token on every request.
const TokenHeader = "X-ChatWorkToken"

// APIError represents a non-2xx response from the Chatwork API.
type APIError struct {
	Status     int
	Code       string
	Message    string
	RetryAfter string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("chatwork network error: %s", e.Message)
	}
	if e.Status == http.StatusTooManyRequests {
		if e.RetryAfter != "" {
			return fmt.Sprintf("chatwork rate limit exceeded (retry after %ss)", e.RetryAfter)
		}
		return "chatwork rate limit exceeded"
	}
	if e.Message != "" {
		return fmt.Sprintf("chatwork api error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("chatwork api error (%d)", e.Status)
}

// Retryable reports whether the request may succeed when repeated.
func (e *APIError) Retryable() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

type apiErrorPayload struct {
	Errors []string `json:"errors"`
}

// Options configures a Client.
type Options struct {
	BaseURL           string
	Token             string
	Timeout           time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
}

// Client fetches room messages from the Chatwork API.
type Client struct {
	baseURL       string
	token         string
	httpClient    *http.Client
	limiter       *rate.Limiter
	retryAttempts int
	retryDelay    time.Duration
	logger        *zap.Logger
}

// NewClient constructs a Chatwork client.
func NewClient(opts Options, logger *zap.Logger) (*Client, error) {
	normalized, err := NormalizeBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.Token) == "" {
		return nil, fmt.Errorf("chatwork API token cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		baseURL:       normalized,
		token:         opts.Token,
		httpClient:    httpClient,
		limiter:       rate.NewLimiter(limit, burst),
		retryAttempts: opts.RetryAttempts,
		retryDelay:    opts.RetryDelay,
		logger:        logger.Named("chatwork"),
	}, nil
}

// NormalizeBaseURL normalizes an API base URL and ensures it has a scheme.
func NormalizeBaseURL(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("chatwork api url cannot be empty")
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return "", fmt.Errorf("invalid chatwork api url: %w", err)
	}
	if parsed.Scheme == "" {
		return "", fmt.Errorf("chatwork api url must include scheme (https://)")
	}
	return strings.TrimRight(value, "/"), nil
}

type apiAccount struct {
	AccountID int64  `json:"account_id"`
	Name      string `json:"name"`
}

type apiMessage struct {
	MessageID  string     `json:"message_id"`
	Account    apiAccount `json:"account"`
	Body       string     `json:"body"`
	SendTime   int64      `json:"send_time"`
	UpdateTime int64      `json:"update_time"`
}

func (m apiMessage) toMessage(roomID string) types.Message {
	return types.Message{
		ID:         m.MessageID,
		RoomID:     roomID,
		SenderID:   strconv.FormatInt(m.Account.AccountID, 10),
		SenderName: m.Account.Name,
		Content:    m.Body,
		SendTime:   m.SendTime,
		UpdateTime: m.UpdateTime,
	}
}

// GetMessage fetches a single message.
func (c *Client) GetMessage(ctx context.Context, roomID, messageID string) (types.Message, error) {
	path := fmt.Sprintf("/rooms/%s/messages/%s", url.PathEscape(roomID), url.PathEscape(messageID))
	var resp apiMessage
	found, err := c.getJSON(ctx, path, nil, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return types.Message{}, types.NewMessageNotFound(messageID)
		}
		return types.Message{}, err
	}
	if !found || resp.MessageID == "" {
		return types.Message{}, types.NewMessageNotFound(messageID)
	}
	return resp.toMessage(roomID), nil
}

// GetMessages fetches the recent messages of a room. forceRefresh asks for the
// latest 100 messages instead of only unread ones.
func (c *Client) GetMessages(ctx context.Context, roomID string, forceRefresh bool) ([]types.Message, error) {
	query := url.Values{}
	if forceRefresh {
		query.Set("force", "1")
	} else {
		query.Set("force", "0")
	}

	var resp []apiMessage
	found, err := c.getJSON(ctx, fmt.Sprintf("/rooms/%s/messages", url.PathEscape(roomID)), query, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, &types.NotFoundError{Kind: "room", ID: roomID}
		}
		return nil, err
	}
	if !found {
		return []types.Message{}, nil
	}

	messages := make([]types.Message, 0, len(resp))
	for _, item := range resp {
		messages = append(messages, item.toMessage(roomID))
	}
	return messages, nil
}

// getJSON performs a GET with rate limiting and retries. found is false on 204.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, respBody any) (bool, error) {
	endpoint, err := c.buildURL(path, query)
	if err != nil {
		return false, err
	}

	var found bool
	attempt := 0
	operation := func() error {
		attempt++
		var err error
		found, err = c.do(ctx, endpoint, respBody)
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Retryable() && ctx.Err() == nil {
			c.logger.Debug("retrying request",
				zap.String("url", endpoint),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(operation, c.newBackOff(ctx)); err != nil {
		return false, err
	}
	return found, nil
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	if c.retryDelay > 0 {
		policy.InitialInterval = c.retryDelay
	}
	policy.MaxElapsedTime = 2 * time.Minute
	retries := c.retryAttempts
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx)
}

func (c *Client) do(ctx context.Context, endpoint string, respBody any) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(TokenHeader, c.token)

	c.logger.Debug("request", zap.String("method", req.Method), zap.String("url", endpoint))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, &APIError{Message: err.Error()}
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, &APIError{Message: err.Error()}
	}

	if resp.StatusCode == http.StatusNoContent {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, RetryAfter: resp.Header.Get("Retry-After")}
		var payload apiErrorPayload
		if err := json.Unmarshal(respData, &payload); err == nil && len(payload.Errors) > 0 {
			apiErr.Message = strings.Join(payload.Errors, "; ")
		} else {
			apiErr.Message = strings.TrimSpace(string(respData))
		}
		return false, apiErr
	}

	if len(respData) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(respData, respBody); err != nil {
		return false, fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return true, nil
}

func (c *Client) buildURL(path string, query url.Values) (string, error) {
	base, err := url.Parse(c.baseURL + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return "", err
	}
	if len(query) > 0 {
		base.RawQuery = query.Encode()
	}
	return base.String(), nil
}
