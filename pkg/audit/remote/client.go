// Package remote implements the HTTP clients for the assessment services:
// the OOPS! pitfall scanner, FAIR-Checker and the FOOPS! quality service.
// The clients return raw response bodies; validation and persistence happen
// in the audit package.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/stackvity/ontaudit/pkg/audit"
)

const (
	// MaxBodyBytes caps a response body.
	MaxBodyBytes = 32 << 20

	ServicePitfalls = "pitfalls"
	ServiceFair     = "fair"
	ServiceQuality  = "quality"

	errorSnippetLen = 256
)

// Config configures a Client. Empty URLs fall back to the public endpoints.
type Config struct {
	PitfallURL        string
	FairURL           string
	QualityURL        string
	RequestsPerMinute int
	UserAgent         string
	PitfallIDs        []int

	HTTPClient *http.Client
	Metrics    *audit.Metrics
	Logger     slog.Handler
}

// Client talks to all three services through one rate limiter.
type Client struct {
	http       *http.Client
	limiter    *rate.Limiter
	pitfallURL string
	fairURL    string
	qualityURL string
	userAgent  string
	pitfallIDs []int
	metrics    *audit.Metrics
	logger     *slog.Logger
}

// NewClient validates cfg and builds a client. A non-positive
// RequestsPerMinute disables throttling.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.NewTextHandler(io.Discard, nil)
	}
	endpoints := []struct {
		name string
		val  *string
		def  string
	}{
		{"pitfall", &cfg.PitfallURL, audit.DefaultPitfallURL},
		{"FAIR", &cfg.FairURL, audit.DefaultFairURL},
		{"quality", &cfg.QualityURL, audit.DefaultQualityURL},
	}
	for _, e := range endpoints {
		if *e.val == "" {
			*e.val = e.def
		}
		u, err := url.Parse(*e.val)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("%w: invalid %s service URL '%s'", audit.ErrConfigValidation, e.name, *e.val)
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				TLSHandshakeTimeout:   10 * time.Second,
				MaxIdleConns:          10,
				IdleConnTimeout:       90 * time.Second,
				ExpectContinueTimeout: time.Second,
			},
		}
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	ids := cfg.PitfallIDs
	if len(ids) == 0 {
		ids = audit.DefaultPitfallIDs
	}

	return &Client{
		http:       httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		pitfallURL: cfg.PitfallURL,
		fairURL:    cfg.FairURL,
		qualityURL: cfg.QualityURL,
		userAgent:  cfg.UserAgent,
		pitfallIDs: ids,
		metrics:    cfg.Metrics,
		logger:     slog.New(cfg.Logger).With(slog.String("component", "remote")),
	}, nil
}

// do sends req after waiting for the limiter and returns the body of a 2xx
// response. Every other outcome wraps audit.ErrRemoteService.
func (c *Client) do(ctx context.Context, service, method, target, contentType string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: create request: %w", audit.ErrRemoteService, service, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json, application/xml;q=0.9, */*;q=0.5")

	start := time.Now()
	data, err := c.roundTrip(req, service)
	elapsed := time.Since(start)
	c.metrics.ObserveRemote(service, elapsed, err)
	c.logger.Debug("Remote request finished",
		slog.String("service", service),
		slog.String("url", target),
		slog.Duration("elapsed", elapsed),
		slog.Int("bytes", len(data)),
		slog.Any("error", err))
	return data, err
}

func (c *Client) roundTrip(req *http.Request, service string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", audit.ErrRemoteService, service, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read body: %w", audit.ErrRemoteService, service, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned HTTP %d: %s", audit.ErrRemoteService, service, resp.StatusCode, snippet(data))
	}
	if len(data) > MaxBodyBytes {
		return nil, fmt.Errorf("%w: %s response exceeds %d bytes", audit.ErrRemoteService, service, MaxBodyBytes)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s returned an empty body", audit.ErrRemoteService, service)
	}
	return data, nil
}

func snippet(data []byte) string {
	data = bytes.TrimSpace(data)
	if len(data) > errorSnippetLen {
		data = data[:errorSnippetLen]
	}
	return string(data)
}

var (
	_ audit.PitfallService = (*Client)(nil)
	_ audit.FairService    = (*Client)(nil)
	_ audit.QualityService = (*Client)(nil)
)
