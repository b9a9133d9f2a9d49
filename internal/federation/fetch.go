package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"roost/internal/config"
	"roost/internal/services"
)

const maxDocumentSize = 1 << 20

// Fetcher retrieves remote documents and canonicalizes them.
type Fetcher struct {
	client       *http.Client
	userAgent    string
	canonicalize Canonicalizer
}

// NewFetcher builds a fetcher from federation config, using the built-in
// normalizer as its canonicalizer.
func NewFetcher(cfg *config.Config) *Fetcher {
	timeout := time.Duration(cfg.Federation.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		client:       &http.Client{Timeout: timeout},
		userAgent:    cfg.Federation.UserAgent,
		canonicalize: Normalizer{},
	}
}

// WithCanonicalizer swaps the canonicalizer, returning the fetcher for
// chaining.
func (f *Fetcher) WithCanonicalizer(c Canonicalizer) *Fetcher {
	if c != nil {
		f.canonicalize = c
	}
	return f
}

// Fetch GETs a remote document and returns its canonical form. Redirects are
// followed. Any non-2xx response is a transient error: remote servers
// misbehave routinely and the caller's retry machinery handles it.
func (f *Fetcher) Fetch(ctx context.Context, uri string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "federation", "fetch", fmt.Sprintf("build request for %s", uri), err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "federation", "fetch", fmt.Sprintf("fetch %s", uri), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDocumentSize))
		return nil, services.Wrap(services.ErrTransient, "federation", "fetch", fmt.Sprintf("fetch %s returned %d", uri, resp.StatusCode), nil)
	}

	var doc map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDocumentSize)).Decode(&doc); err != nil {
		return nil, services.Wrap(services.ErrTransient, "federation", "fetch", fmt.Sprintf("decode %s", uri), err)
	}
	return f.canonicalize.Canonicalize(doc)
}
