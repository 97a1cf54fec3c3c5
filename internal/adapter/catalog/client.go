// Package catalog notifies the Cumulus API of newly uploaded product files.
package catalog

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/USACE/cumulus-geoproc/internal/domain"
)

// ErrStatus is returned when the catalog answers with a non-2xx status.
var ErrStatus = errors.New("catalog API error")

// Config holds catalog connection settings.
type Config struct {
	BaseURL string // e.g., "http://cumulus-api:80" or "https://host/api"
	AppKey  string
	Timeout time.Duration
	HTTP2   bool
}

// Client posts product batches to the productfiles endpoint.
type Client struct {
	endpoint   string
	appKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a catalog client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	endpoint, err := Endpoint(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ForceAttemptHTTP2 = cfg.HTTP2
	if !cfg.HTTP2 {
		transport.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}
	return &Client{
		endpoint: endpoint,
		appKey:   cfg.AppKey,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		logger: logger,
	}, nil
}

// Endpoint derives the productfiles URL. An API mounted at /api serves
// api/productfiles; any other base serves productfiles at the root.
func Endpoint(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse catalog url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("parse catalog url %q: scheme and host are required", base)
	}
	if u.Path == "/api" {
		u.Path = "/api/productfiles"
	} else {
		u.Path = "/productfiles"
	}
	u.RawQuery = ""
	return u.String(), nil
}

// NotifyProducts posts the batch and returns the catalog's answer. A non-2xx
// status is returned as ErrStatus alongside the response.
func (c *Client) NotifyProducts(ctx context.Context, products []domain.Product) (domain.CatalogResponse, error) {
	body, err := json.Marshal(products)
	if err != nil {
		return domain.CatalogResponse{}, fmt.Errorf("encode products: %w", err)
	}

	u := c.endpoint + "?" + url.Values{"key": {c.appKey}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return domain.CatalogResponse{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.CatalogResponse{}, fmt.Errorf("notify request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.CatalogResponse{StatusCode: resp.StatusCode}, fmt.Errorf("read response: %w", err)
	}
	out := domain.CatalogResponse{StatusCode: resp.StatusCode}
	if json.Valid(raw) {
		out.Body = raw
	} else if len(raw) > 0 {
		// plain-text error pages are kept as a JSON string
		quoted, _ := json.Marshal(string(raw))
		out.Body = quoted
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, fmt.Errorf("%w: status %d: %s", ErrStatus, resp.StatusCode, raw)
	}

	c.logger.Debug("catalog notified", "endpoint", c.endpoint, "products", len(products), "status", resp.StatusCode)
	return out, nil
}
