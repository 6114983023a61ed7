package client

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
	"time"

	"github.com/npnl/enigma-request/internal/catalog"
	"github.com/npnl/enigma-request/internal/estimate"
	"github.com/npnl/enigma-request/internal/reqdoc"
	"github.com/npnl/enigma-request/internal/services"
)

// TokenSource yields the bearer token for a call. An empty token means the
// request goes out unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return strings.TrimSpace(string(t)), nil }

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api status %d", e.Status)
	}
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Tokens  TokenSource
}

// New returns a client for baseURL. timeout is the per-request deadline
// (0 = no timeout).
func New(baseURL string, timeout time.Duration, tokens TokenSource) *Client {
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTP:    &http.Client{Timeout: timeout},
		Tokens:  tokens,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Tokens != nil {
		tok, err := c.Tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("token: %w", err)
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var msg struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &msg) == nil {
			apiErr.Message = msg.Message
			if apiErr.Message == "" {
				apiErr.Message = msg.Error
			}
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// Metrics fetches the behavioral and imaging catalogs.
func (c *Client) Metrics(ctx context.Context) (catalog.Pair, error) {
	var pair catalog.Pair
	err := c.do(ctx, http.MethodGet, "/metrics", nil, &pair)
	return pair, err
}

func (c *Client) RowsCount(ctx context.Context, q estimate.Query) (*estimate.Result, error) {
	var res estimate.Result
	if err := c.do(ctx, http.MethodPost, "/rows-count", q, &res); err != nil {
		return nil, err
	}
	if res.SessionsPerSite == nil {
		res.SessionsPerSite = map[string]int{}
	}
	return &res, nil
}

func (c *Client) BooleanData(ctx context.Context) ([]map[string]any, error) {
	var rows []map[string]any
	err := c.do(ctx, http.MethodGet, "/boolean-data", nil, &rows)
	return rows, err
}

// SubmitResult is the acknowledgement of a submitted request.
type SubmitResult struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	FileName string `json:"file_name"`
}

func (c *Client) SubmitRequest(ctx context.Context, doc reqdoc.Document) (*SubmitResult, error) {
	var res SubmitResult
	if err := c.do(ctx, http.MethodPost, "/submit-request", doc, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ListRequests(ctx context.Context) ([]services.DataRequest, error) {
	var list []services.DataRequest
	err := c.do(ctx, http.MethodGet, "/get-requests", nil, &list)
	return list, err
}

func (c *Client) GetRequest(ctx context.Context, fileName string) (*services.DataRequest, error) {
	var req services.DataRequest
	if err := c.do(ctx, http.MethodGet, "/get-request/"+url.PathEscape(fileName), nil, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (c *Client) CheckAuth(ctx context.Context) (*services.AuthCheck, error) {
	var res services.AuthCheck
	if err := c.do(ctx, http.MethodGet, "/auth/check", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (*services.AuthResult, error) {
	var res services.AuthResult
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Register creates a password for a person already in the directory.
func (c *Client) Register(ctx context.Context, email, password string) (*services.AuthResult, error) {
	var res services.AuthResult
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/register", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
