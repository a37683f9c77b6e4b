// Package chartimg fetches TradingView chart images from chart-img.com.
package chartimg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m3rciful/chartbot/chart"
	coreconfig "github.com/m3rciful/chartbot/core/config"
	"github.com/m3rciful/chartbot/core/logger"
	"github.com/m3rciful/chartbot/core/metrics"
)

const (
	defaultTimeout = 20 * time.Second
	maxImageBytes  = 10 << 20
	maxErrorBytes  = 64 << 10

	pathMiniChart     = "/mini-chart"
	pathAdvancedChart = "/advanced-chart"
)

// ErrUnknownKind is returned for chart kinds without an endpoint.
var ErrUnknownKind = errors.New("chartimg: unknown chart kind")

// StatusError is a non-200 response. Body holds the (bounded) response payload.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chartimg: unexpected status %d", e.Status)
}

func (e *StatusError) StatusCode() int      { return e.Status }
func (e *StatusError) ResponseBody() []byte { return e.Body }

// Client performs one GET per chart request; there are no retries.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New builds a client. A nil hc gets a client with the configured timeout.
func New(cfg coreconfig.ChartImgConfig, hc *http.Client) *Client {
	if hc == nil {
		timeout := defaultTimeout
		if cfg.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = coreconfig.DefaultChartImgBaseURL
	}
	return &Client{baseURL: base, apiKey: cfg.APIKey, http: hc}
}

// Fetch returns the image bytes for q. Non-200 responses yield *StatusError.
func (c *Client) Fetch(ctx context.Context, kind chart.Kind, q chart.Query) ([]byte, error) {
	endpoint, err := c.endpoint(kind, q)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("chartimg: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		took := time.Since(start)
		metrics.ChartFetched(kind.String(), 0, took)
		logger.LogEvent(ctx, logger.IMG, slog.LevelError, "fetch.fail",
			slog.String("status", "fail"),
			slog.String("kind", kind.String()),
			slog.String("symbol", q.Symbol),
			slog.Duration("duration", took),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("chartimg: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		took := time.Since(start)
		metrics.ChartFetched(kind.String(), resp.StatusCode, took)
		logger.LogEvent(ctx, logger.IMG, slog.LevelWarn, "fetch.status",
			slog.String("status", "fail"),
			slog.String("kind", kind.String()),
			slog.String("symbol", q.Symbol),
			slog.String("interval", q.Interval),
			slog.Int("http_code", resp.StatusCode),
			slog.Duration("duration", took),
		)
		return nil, &StatusError{Status: resp.StatusCode, Body: body}
	}

	img, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	took := time.Since(start)
	metrics.ChartFetched(kind.String(), resp.StatusCode, took)
	if err != nil {
		return nil, fmt.Errorf("chartimg: read body: %w", err)
	}
	logger.LogEvent(ctx, logger.IMG, slog.LevelDebug, "fetch.ok",
		slog.String("status", "ok"),
		slog.String("kind", kind.String()),
		slog.String("symbol", q.Symbol),
		slog.String("interval", q.Interval),
		slog.Int("bytes", len(img)),
		slog.Duration("duration", took),
	)
	return img, nil
}

func (c *Client) endpoint(kind chart.Kind, q chart.Query) (string, error) {
	v := url.Values{}
	v.Set("symbol", q.Symbol)
	v.Set("interval", q.Interval)

	var path string
	switch kind {
	case chart.KindPrice:
		path = pathMiniChart
	case chart.KindChart:
		path = pathAdvancedChart
		for _, s := range q.Studies {
			v.Add("studies", s)
		}
		if q.Style != "" {
			v.Set("style", q.Style)
		}
	default:
		return "", fmt.Errorf("%w: %d", ErrUnknownKind, int(kind))
	}
	return c.baseURL + path + "?" + v.Encode(), nil
}
