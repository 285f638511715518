// Package collector talks to the remote interaction collector: it fetches
// the wanted list and posts trial outcomes.
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/klauspost/compress/gzhttp"

	"nihhunt.ai/internal/protocol"
)

const (
	DefaultWantedURL = "https://chisel.weirdgloop.org/interactions/wanted"
	DefaultSubmitURL = "https://chisel.weirdgloop.org/interactions/submit"

	maxWantedBytes = 16 << 20
	maxAckBytes    = 64 << 10
)

type Config struct {
	WantedURL string
	SubmitURL string
	// ProtocolVersion stamps submissions; empty keeps protocol.SubmitVersion.
	ProtocolVersion string
	// HTTPClient overrides the default gzip-aware client.
	HTTPClient *http.Client
}

type Client struct {
	wantedURL  string
	submitURL  string
	version    string
	httpClient *http.Client
}

func New(cfg Config) (*Client, error) {
	wanted, err := normalizeURL(cfg.WantedURL, DefaultWantedURL)
	if err != nil {
		return nil, fmt.Errorf("wanted url: %w", err)
	}
	submit, err := normalizeURL(cfg.SubmitURL, DefaultSubmitURL)
	if err != nil {
		return nil, fmt.Errorf("submit url: %w", err)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Transport: gzhttp.Transport(http.DefaultTransport)}
	}
	version := strings.TrimSpace(cfg.ProtocolVersion)
	if version == "" {
		version = protocol.SubmitVersion
	}
	return &Client{wantedURL: wanted, submitURL: submit, version: version, httpClient: hc}, nil
}

func normalizeURL(raw, def string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = def
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid url: %s", raw)
	}
	return u.String(), nil
}

func (c *Client) WantedURL() string { return c.wantedURL }
func (c *Client) SubmitURL() string { return c.submitURL }

// FetchWanted downloads and validates the current wanted list.
func (c *Client) FetchWanted(ctx context.Context) (protocol.WantedMsg, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.wantedURL, nil)
	if err != nil {
		return protocol.WantedMsg{}, err
	}
	req.Header.Set("Accept", "application/json")
	body, err := c.do(req, maxWantedBytes)
	if err != nil {
		return protocol.WantedMsg{}, err
	}
	m, err := protocol.DecodeWanted(body)
	if err != nil {
		return protocol.WantedMsg{}, fmt.Errorf("decode wanted: %w", err)
	}
	return m, nil
}

// Submit posts one outcome and returns the collector's acknowledgement.
func (c *Client) Submit(ctx context.Context, sub protocol.SubmissionMsg) (protocol.SubmissionAck, error) {
	sub.Version = c.version
	b, err := json.Marshal(sub)
	if err != nil {
		return protocol.SubmissionAck{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.submitURL, bytes.NewReader(b))
	if err != nil {
		return protocol.SubmissionAck{}, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	body, err := c.do(req, maxAckBytes)
	if err != nil {
		return protocol.SubmissionAck{}, err
	}
	ack, err := protocol.DecodeSubmitAck(body)
	if err != nil {
		return protocol.SubmissionAck{}, fmt.Errorf("decode ack: %w", err)
	}
	return ack, nil
}

func (c *Client) do(req *http.Request, limit int64) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return nil, fmt.Errorf("%s %s failed status=%d body=%s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%s %s: response larger than %d bytes", req.Method, req.URL.Path, limit)
	}
	return body, nil
}
