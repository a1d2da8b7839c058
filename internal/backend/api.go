package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/t77yq/task-telemetry/internal/model"
)

const (
	eventsPath = "/api/v1/events"
	seriesPath = "/api/v1/series"

	// Retry config
	defaultRetryWaitMin = 500 * time.Millisecond
	defaultRetryWaitMax = 5 * time.Second
)

// APIConfig configures the Datadog HTTP API client
type APIConfig struct {
	BaseURL      string
	APIKey       string
	AppKey       string
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// API delivers events and metric series to the Datadog HTTP API.
// Retries on 5xx and transport errors are handled by retryablehttp.
type API struct {
	logger  *zap.Logger
	client  *retryablehttp.Client
	baseURL string
	headers map[string]string
	now     func() time.Time
}

// NewAPI creates a Datadog HTTP API client
func NewAPI(cfg APIConfig, logger *zap.Logger) *API {
	logger = logger.Named("datadog-api")

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = cfg.Timeout

	waitMin, waitMax := cfg.RetryWaitMin, cfg.RetryWaitMax
	if waitMin <= 0 {
		waitMin = defaultRetryWaitMin
	}
	if waitMax <= 0 {
		waitMax = defaultRetryWaitMax
	}

	retryClient := &retryablehttp.Client{
		HTTPClient:   httpClient,
		Logger:       &retryLogger{logger: logger.Sugar()},
		RetryWaitMin: waitMin,
		RetryWaitMax: waitMax,
		RetryMax:     cfg.RetryMax,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      retryablehttp.DefaultBackoff,
	}

	return &API{
		logger:  logger,
		client:  retryClient,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		headers: map[string]string{
			"DD-API-KEY":         cfg.APIKey,
			"DD-APPLICATION-KEY": cfg.AppKey,
			"Content-Type":       "application/json",
		},
		now: time.Now,
	}
}

type seriesPayload struct {
	Series []series `json:"series"`
}

type series struct {
	Metric string       `json:"metric"`
	Points [][2]float64 `json:"points"`
	Type   string       `json:"type"`
	Tags   []string     `json:"tags,omitempty"`
}

// CreateEvent implements Client.CreateEvent
func (a *API) CreateEvent(ctx context.Context, event *model.Event) error {
	return a.post(ctx, eventsPath, event)
}

// Increment implements Client.Increment
func (a *API) Increment(ctx context.Context, name string, amount int64, tags []string) error {
	return a.postSeries(ctx, name, "count", float64(amount), tags)
}

// Gauge implements Client.Gauge
func (a *API) Gauge(ctx context.Context, name string, value float64, tags []string) error {
	return a.postSeries(ctx, name, "gauge", value, tags)
}

// Close releases idle connections
func (a *API) Close() error {
	a.client.HTTPClient.CloseIdleConnections()
	return nil
}

func (a *API) postSeries(ctx context.Context, name, metricType string, value float64, tags []string) error {
	payload := seriesPayload{
		Series: []series{{
			Metric: name,
			Points: [][2]float64{{float64(a.now().Unix()), value}},
			Type:   metricType,
			Tags:   tags,
		}},
	}
	return a.post(ctx, seriesPath, payload)
}

func (a *API) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range a.headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: POST %s returned %s", ErrBackendUnavailable, path, resp.Status)
	}
	return nil
}

// retryLogger adapts zap to retryablehttp.LeveledLogger
type retryLogger struct {
	logger *zap.SugaredLogger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, keysAndValues...)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warnw(msg, keysAndValues...)
}
