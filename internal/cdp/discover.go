package cdp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
)

// Version is the browser's /json/version document.
type Version struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	V8Version            string `json:"V8-Version"`
	WebKitVersion        string `json:"WebKit-Version"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// TargetInfo is one entry of /json/list.
type TargetInfo struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Discovery queries a browser's HTTP debugging endpoint.
type Discovery struct {
	client *resty.Client
}

// NewDiscovery creates a client for the endpoint at baseURL, for example
// http://127.0.0.1:9222. The browser may still be starting, so connection
// failures are retried with backoff until timeout.
func NewDiscovery(baseURL string, timeout time.Duration) *Discovery {
	retry := retryablehttp.NewClient()
	retry.RetryMax = 8
	retry.RetryWaitMin = 250 * time.Millisecond
	retry.RetryWaitMax = 2 * time.Second
	retry.Logger = nil

	client := resty.NewWithClient(retry.StandardClient()).
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Discovery{client: client}
}

// Version fetches /json/version.
func (d *Discovery) Version(ctx context.Context) (*Version, error) {
	var v Version
	resp, err := d.client.R().SetContext(ctx).SetResult(&v).Get("/json/version")
	if err != nil {
		return nil, fmt.Errorf("query devtools version: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("query devtools version: unexpected status %s", resp.Status())
	}
	if v.WebSocketDebuggerURL == "" {
		return nil, fmt.Errorf("query devtools version: no webSocketDebuggerUrl in response")
	}
	return &v, nil
}

// Targets fetches /json/list.
func (d *Discovery) Targets(ctx context.Context) ([]TargetInfo, error) {
	var out []TargetInfo
	resp, err := d.client.R().SetContext(ctx).SetResult(&out).Get("/json/list")
	if err != nil {
		return nil, fmt.Errorf("list devtools targets: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("list devtools targets: unexpected status %s", resp.Status())
	}
	return out, nil
}

// Connect discovers the browser endpoint at baseURL and dials it.
func Connect(ctx context.Context, baseURL string, timeout time.Duration, opts ...ConnOption) (*Conn, *Version, error) {
	v, err := NewDiscovery(baseURL, timeout).Version(ctx)
	if err != nil {
		return nil, nil, err
	}
	conn, err := Dial(ctx, v.WebSocketDebuggerURL, opts...)
	if err != nil {
		return nil, nil, err
	}
	return conn, v, nil
}
