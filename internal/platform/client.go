// Package platform talks to the Supabase HTTP APIs the operator commands need:
// PostgREST RPC calls and Edge Function invocations.
package platform

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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// RequestIDHeader carries the invocation's run id so platform logs can be correlated.
	RequestIDHeader = "X-Request-ID"

	// codeFunctionNotFound is PostgREST's code for an unknown RPC function.
	codeFunctionNotFound = "PGRST202"

	maxErrorBody = 4 << 10
)

var (
	// ErrRPCUnavailable means the RPC function does not exist on the project.
	ErrRPCUnavailable = errors.New("rpc function is not available")
	ErrURLRequired    = errors.New("platform url is required")
	ErrKeyRequired    = errors.New("service role key is required")
	ErrInvalidName    = errors.New("invalid function name")
)

// ValidateName rejects names that would not stay a single path segment.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\?#%") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// APIError is a non-2xx response from the platform.
type APIError struct {
	Status  int
	Code    string
	Message string
	Body    string
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("platform returned %d (%s): %s", e.Status, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("platform returned %d: %s", e.Status, e.Message)
	case e.Body != "":
		return fmt.Sprintf("platform returned %d: %s", e.Status, e.Body)
	default:
		return fmt.Sprintf("platform returned %d", e.Status)
	}
}

// Options configures a Client.
type Options struct {
	URL            string
	ServiceRoleKey string
	RunID          string
	Timeout        time.Duration
	Transport      http.RoundTripper
}

// Client is a minimal Supabase HTTP client authenticated with the service role key.
// It is safe for concurrent use.
type Client struct {
	base  *url.URL
	key   string
	runID string
	http  *http.Client
}

// New validates the options and builds a Client with a traced transport.
func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, ErrURLRequired
	}
	if opts.ServiceRoleKey == "" {
		return nil, ErrKeyRequired
	}
	u, err := url.Parse(strings.TrimRight(opts.URL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid platform url %q", opts.URL)
	}

	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		base:  u,
		key:   opts.ServiceRoleKey,
		runID: opts.RunID,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(base),
		},
	}, nil
}

// FunctionURL returns the public URL of an Edge Function.
func (c *Client) FunctionURL(name string) string {
	return c.base.JoinPath("functions", "v1", name).String()
}

// CallRPC invokes a PostgREST RPC function with params as the JSON body and
// returns the raw JSON result.
func (c *Client) CallRPC(ctx context.Context, fn string, params any) (json.RawMessage, error) {
	if err := ValidateName(fn); err != nil {
		return nil, err
	}
	u := c.base.JoinPath("rest", "v1", "rpc", fn).String()
	status, body, err := c.post(ctx, u, params)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		apiErr := decodeAPIError(status, body)
		if status == http.StatusNotFound || apiErr.Code == codeFunctionNotFound {
			return nil, fmt.Errorf("%w: %s: %w", ErrRPCUnavailable, fn, apiErr)
		}
		return nil, apiErr
	}
	return json.RawMessage(body), nil
}

// FunctionResponse is the raw result of an Edge Function invocation.
type FunctionResponse struct {
	Status int
	Body   []byte
}

// InvokeFunction POSTs body (or {} when nil) to the named Edge Function.
// A non-2xx status is returned as *APIError together with the response.
func (c *Client) InvokeFunction(ctx context.Context, name string, body any) (*FunctionResponse, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if body == nil {
		body = struct{}{}
	}
	status, raw, err := c.post(ctx, c.FunctionURL(name), body)
	if err != nil {
		return nil, err
	}
	resp := &FunctionResponse{Status: status, Body: raw}
	if status/100 != 2 {
		return resp, decodeAPIError(status, raw)
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, target string, payload any) (int, []byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(b))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)
	if c.runID != "" {
		req.Header.Set(RequestIDHeader, c.runID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("post %s: %w", redact(target), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

func decodeAPIError(status int, body []byte) *APIError {
	e := &APIError{Status: status}
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		e.Code = payload.Code
		e.Message = payload.Message
		if e.Message == "" {
			e.Message = payload.Error
		}
	}
	if e.Message == "" {
		s := strings.TrimSpace(string(body))
		if len(s) > maxErrorBody {
			s = s[:maxErrorBody]
		}
		e.Body = s
	}
	return e
}

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	return u.String()
}

// DashboardSQLURL returns the SQL editor URL for a project, used in manual instructions.
func DashboardSQLURL(projectRef string) string {
	if projectRef == "" {
		return "https://supabase.com/dashboard"
	}
	return "https://supabase.com/dashboard/project/" + projectRef + "/sql/new"
}

// DashboardFunctionsURL returns the functions page of a project.
func DashboardFunctionsURL(projectRef string) string {
	if projectRef == "" {
		return "https://supabase.com/dashboard"
	}
	return "https://supabase.com/dashboard/project/" + projectRef + "/functions"
}
