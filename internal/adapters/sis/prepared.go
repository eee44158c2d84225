package sis

import (
	"encoding/json"
	"net/http"

	perr "autoreg/internal/platform/errors"
	"autoreg/internal/platform/i18n"
	pstrings "autoreg/internal/platform/strings"
)

// RegisterPath is the registration endpoint path on the SIS host
const RegisterPath = "/api/ders-kayit/v21"

// PreparedRequest is a fully-serialized request ready for the firing path to
// dispatch with zero formatting work (spec.md §4.2: Request Builder).
type PreparedRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// NewPreparedRequest validates req and serializes it once, assembling the
// fixed headers (bearer credential, content type) so the caller never
// touches the network layer with an unvalidated working set.
func NewPreparedRequest(baseURL, token string, req RegisterRequest) (*PreparedRequest, error) {
	if err := i18n.Validate(req); err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeJSON, "encode registration request")
	}

	h := make(http.Header, 2)
	h.Set("Authorization", "Bearer "+token)
	h.Set("Content-Type", "application/json")

	return &PreparedRequest{
		Method: http.MethodPost,
		URL:    trimTrailingSlash(baseURL) + RegisterPath,
		Header: h,
		Body:   body,
	}, nil
}

// ProbeEndpoint returns the unauthenticated endpoint used for calibration
// probes: the SIS host itself, reachable with minimal payload, whose Date
// response header is the measurement surface.
func ProbeEndpoint(baseURL string) string { return trimTrailingSlash(baseURL) }

// trimTrailingSlash strips any trailing "/" from a configured base URL so
// a trailing slash in -sis-base-url/SIS_BASE_URL never produces a
// double-slash path when joined with RegisterPath.
func trimTrailingSlash(s string) string {
	for pstrings.HasSuffix(s, "/") {
		s = s[:len(s)-1]
	}
	return s
}
