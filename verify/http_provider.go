package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
)

// DefaultLookupTimeout bounds a single upstream call.
var DefaultLookupTimeout = 30 * time.Second

// HTTPProvider queries an upstream registry over JSON.
type HTTPProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
	source   string
}

type HTTPProviderOption func(*HTTPProvider)

// WithHTTPClient replaces the default client, mostly for tests.
func WithHTTPClient(client *http.Client) HTTPProviderOption {
	return func(p *HTTPProvider) {
		if client != nil {
			p.client = client
		}
	}
}

// WithSourceName overrides the source label stamped on results.
func WithSourceName(source string) HTTPProviderOption {
	return func(p *HTTPProvider) {
		if source != "" {
			p.source = source
		}
	}
}

func NewHTTPProvider(endpoint, apiKey string, opts ...HTTPProviderOption) *HTTPProvider {
	p := &HTTPProvider{
		endpoint: endpoint,
		apiKey:   apiKey,
		source:   "registry",
		client: &http.Client{
			Timeout: DefaultLookupTimeout,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

func (p *HTTPProvider) Lookup(ctx context.Context, q Query) (Result, error) {
	if err := q.Validate(); err != nil {
		return Result{}, err
	}

	body, err := json.Marshal(q)
	if err != nil {
		return Result{}, errors.Wrap(err, errors.CategoryInternal, "failed to encode verification query")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, errors.Wrap(err, errors.CategoryInternal, "failed to build verification request")
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	res, err := p.client.Do(req)
	if err != nil {
		return Result{}, errors.Wrap(err, errors.CategoryOperation, "verification provider unreachable")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return Result{}, errors.New("verification provider returned an error", errors.CategoryOperation).
			WithTextCode("PROVIDER_ERROR").
			WithMetadata(map[string]any{
				"status": res.StatusCode,
				"body":   string(payload),
			})
	}

	var result Result
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return Result{}, errors.Wrap(err, errors.CategoryOperation, "failed to decode verification response")
	}

	if result.Source == "" {
		result.Source = p.source
	}

	return result, nil
}
