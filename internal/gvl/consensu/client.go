// Package consensu provides a client for the hosted Global Vendor List.
package consensu

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/consentry/consentry/internal/gvl"
	"github.com/consentry/consentry/internal/provider/resilience"
)

const (
	// DefaultBaseURL is the base URL for the IAB-hosted vendor list.
	DefaultBaseURL = "https://vendor-list.consensu.org/v3"

	// ProviderName identifies this provider.
	ProviderName = "consensu"

	// vendorListPath is the document path under the base URL.
	vendorListPath = "/vendor-list.json"

	// maxBodyBytes caps the vendor list document size (the real list is
	// around 2 MB).
	maxBodyBytes = 32 << 20
)

// NetworkError indicates the vendor list could not be fetched. Callers
// degrade to an empty snapshot; a failed load never surfaces to consumers
// of the consent API.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch vendor list from %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ClientConfig holds configuration for the vendor list client.
type ClientConfig struct {
	// BaseURL is the vendor list base URL (defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient is the HTTP client to use (must implement HTTPDoer).
	// If nil, a resilient client with retries disabled is created: a
	// failed fetch yields an empty result for the page view, it is not
	// retried in-line.
	HTTPClient HTTPDoer

	// Timeout for the fetch request (default: 10s).
	Timeout time.Duration

	// Health receives fetch outcomes and, when the client builds its own
	// resilient transport, the circuit breaker registration. Defaults to
	// resilience.GlobalRegistry.
	Health *resilience.Registry
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches and parses the hosted vendor list.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
	health     *resilience.Registry
}

// NewClient creates a new vendor list client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	health := cfg.Health
	if health == nil {
		health = resilience.GlobalRegistry
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		resilient := resilience.NewClient(resilience.ClientConfig{
			Name:           ProviderName,
			Timeout:        timeout,
			DisableRetries: true,
		})
		health.Register(ProviderName, resilient)
		httpClient = resilient
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		health:     health,
	}
}

// Fetch retrieves and parses the current vendor list.
func (c *Client) Fetch(ctx context.Context) (*gvl.Snapshot, error) {
	snapshot, err := c.fetch(ctx)
	if err != nil {
		c.health.RecordFailure(ProviderName, err)
		return nil, err
	}
	c.health.RecordSuccess(ProviderName)
	return snapshot, nil
}

func (c *Client) fetch(ctx context.Context) (*gvl.Snapshot, error) {
	url := c.baseURL + vendorListPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &NetworkError{URL: url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}

	return gvl.ParseVendorList(body)
}
