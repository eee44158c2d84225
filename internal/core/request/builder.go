// Package request builds and caches the pre-serialized SIS registration
// request, rebuilding only when the working set of CRNs changes
// (spec.md §4.2).
package request

import (
	"sort"
	"strings"
	"sync"

	"autoreg/internal/adapters/sis"
)

// Builder caches the last PreparedRequest keyed by a fingerprint of the
// working ECRN/SCRN set, so the firing path never re-serializes on the hot
// path unless the set actually changed.
type Builder struct {
	baseURL string
	token   string

	mu          sync.Mutex
	fingerprint string
	prepared    *sis.PreparedRequest
}

// NewBuilder constructs a Builder for one run. token is held only in
// memory for the run's lifetime (I4).
func NewBuilder(baseURL, token string) *Builder {
	return &Builder{baseURL: baseURL, token: token}
}

// Build returns a PreparedRequest for the given working ECRN/SCRN sets,
// reusing the cached one if the set is unchanged since the last call.
func (b *Builder) Build(ecrn, scrn []string) (*sis.PreparedRequest, error) {
	fp := fingerprint(ecrn, scrn)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.prepared != nil && b.fingerprint == fp {
		return b.prepared, nil
	}

	prepared, err := sis.NewPreparedRequest(b.baseURL, b.token, sis.RegisterRequest{
		ECRN: ecrn,
		SCRN: scrn,
	})
	if err != nil {
		return nil, err
	}
	b.prepared = prepared
	b.fingerprint = fp
	return prepared, nil
}

// fingerprint produces a stable string for a working set regardless of
// input ordering, since set membership (not order) is what defines "the
// working set changed".
func fingerprint(ecrn, scrn []string) string {
	e := append([]string(nil), ecrn...)
	s := append([]string(nil), scrn...)
	sort.Strings(e)
	sort.Strings(s)
	return strings.Join(e, ",") + "|" + strings.Join(s, ",")
}
