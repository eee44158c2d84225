package sis

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	perr "autoreg/internal/platform/errors"
	"autoreg/internal/platform/logger"
)

const defaultTimeout = 5 * time.Second

// Client issues registration attempts against the SIS. It makes exactly one
// HTTP round trip per Register call; pacing and retry policy belong to the
// attempt loop, not this client (spec.md §4.4).
type Client struct {
	HTTPClient *http.Client
	log        logger.Logger
}

// NewClient builds a Client that sends through httpClient; the engine
// passes its own dedicated client (spec.md §5). A nil httpClient gets a
// plain client with defaultTimeout on the default transport.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{HTTPClient: httpClient, log: *logger.Named("sis")}
}

// Register issues the pre-built registration request and parses the
// response body. The returned error is always a *perr.Error classified by
// ErrorCode so the attempt loop can branch on perr.Retryable/perr.CodeOf
// without inspecting HTTP status codes directly.
func (c *Client) Register(ctx context.Context, prepared *PreparedRequest) (*RegisterResponse, int, error) {
	req, err := http.NewRequestWithContext(ctx, prepared.Method, prepared.URL, bytes.NewReader(prepared.Body))
	if err != nil {
		return nil, 0, perr.Wrapf(err, perr.ErrorCodeUnknown, "build registration request")
	}
	req.Header = prepared.Header.Clone()

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, perr.Wrapf(err, perr.ErrorCodeUnavailable, "registration request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		drain(resp.Body)
		return nil, resp.StatusCode, perr.Newf(perr.ErrorCodeTokenInvalid, "token rejected by SIS (status %d)", resp.StatusCode)
	case http.StatusTooManyRequests:
		drain(resp.Body)
		return nil, resp.StatusCode, perr.Newf(perr.ErrorCodeTooManyRequests, "rate limited by SIS")
	}
	if resp.StatusCode >= 500 {
		drain(resp.Body)
		return nil, resp.StatusCode, perr.Newf(perr.ErrorCodeUnavailable, "SIS returned status %d", resp.StatusCode)
	}

	var out RegisterResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, resp.StatusCode, perr.Wrapf(err, perr.ErrorCodeJSON, "decode registration response")
	}
	return &out, resp.StatusCode, nil
}

func drain(r io.Reader) { _, _ = io.Copy(io.Discard, io.LimitReader(r, 2048)) }

// CheckToken issues a minimal authenticated GET to the SIS host and
// interprets a 401/403 as a rejected credential (spec.md §4 token_check
// phase, CLI `test-token`). Any other response, including transport
// failure, is treated as "token not provably invalid" — the calibrator is
// the authoritative path for reachability problems.
func (c *Client) CheckToken(ctx context.Context, baseURL, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ProbeEndpoint(baseURL), nil)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "build token check request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "token check request failed")
	}
	defer func() { _ = resp.Body.Close() }()
	drain(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return perr.Newf(perr.ErrorCodeTokenInvalid, "token rejected by SIS (status %d)", resp.StatusCode)
	}
	return nil
}
