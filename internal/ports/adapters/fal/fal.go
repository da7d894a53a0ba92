// Package fal generates scene images through fal.ai's queue API.
package fal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forPelevin/reelforge/internal/faults"
	"github.com/forPelevin/reelforge/internal/logging"
	"github.com/forPelevin/reelforge/internal/ports"
	"github.com/forPelevin/reelforge/internal/ports/adapters/backoff"
)

const (
	defaultBaseURL      = "https://queue.fal.run"
	defaultModel        = "fal-ai/flux/dev"
	defaultImageSize    = "portrait_16_9"
	defaultPollInterval = 2 * time.Second
	defaultHTTPTimeout  = 60 * time.Second
	defaultMaxAttempts  = 5
)

// Config for the queue API. MaxAttempts bounds calls per request when fal
// answers 429.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	ImageSize    string
	PollInterval time.Duration
	MaxAttempts  int
	LoraPath     string
	LoraScale    float64
}

// Client implements ports.ImageSource.
type Client struct {
	cfg    Config
	client *http.Client
	sleep  func(context.Context, time.Duration) error
	retry  backoff.Policy
	log    *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithSleeper replaces the wait between status polls and retries.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

func New(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.ImageSize == "" {
		cfg.ImageSize = defaultImageSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	cfg.LoraPath = strings.TrimSpace(cfg.LoraPath)
	if cfg.LoraScale <= 0 {
		cfg.LoraScale = 1
	}
	c := &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: defaultHTTPTimeout},
		sleep:  backoff.Sleep,
		retry:  backoff.Policy{MaxAttempts: cfg.MaxAttempts, BaseDelay: time.Second, MaxDelay: 30 * time.Second},
		log:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "fal")
	return c
}

type submitRequest struct {
	Prompt            string  `json:"prompt"`
	ImageSize         string  `json:"image_size"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
	NumImages         int     `json:"num_images"`
	Loras             []lora  `json:"loras,omitempty"`
}

type lora struct {
	Path  string  `json:"path"`
	Scale float64 `json:"scale"`
}

type queueResponse struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type resultResponse struct {
	Images []struct {
		URL         string `json:"url"`
		ContentType string `json:"content_type"`
	} `json:"images"`
}

// GenerateImage submits the prompt, waits for the job and downloads the
// first image to outPath.
func (c *Client) GenerateImage(ctx context.Context, p ports.ScenePrompt, outPath string) error {
	const op = "fal.generate_image"
	if strings.TrimSpace(p.Prompt) == "" {
		return faults.InvalidInput(op, "scene %d has an empty prompt", p.SceneID)
	}
	if c.cfg.APIKey == "" {
		return faults.InvalidInput(op, "FAL_KEY is not set")
	}

	var queued queueResponse
	body := submitRequest{
		Prompt:            p.Prompt,
		ImageSize:         c.cfg.ImageSize,
		NumInferenceSteps: 28,
		GuidanceScale:     3.5,
		NumImages:         1,
	}
	if c.cfg.LoraPath != "" {
		body.Loras = []lora{{Path: c.cfg.LoraPath, Scale: c.cfg.LoraScale}}
	}
	if err := c.doJSON(ctx, http.MethodPost, c.cfg.BaseURL+"/"+c.cfg.Model, body, &queued); err != nil {
		return faults.Upstream(op, err)
	}
	if queued.StatusURL == "" || queued.ResponseURL == "" {
		return faults.Upstream(op, errors.New("queue response is missing status_url or response_url"))
	}

	if err := c.waitCompleted(ctx, queued.StatusURL); err != nil {
		return faults.Upstream(op, fmt.Errorf("request %s: %w", queued.RequestID, err))
	}

	var result resultResponse
	if err := c.doJSON(ctx, http.MethodGet, queued.ResponseURL, nil, &result); err != nil {
		return faults.Upstream(op, err)
	}
	if len(result.Images) == 0 || result.Images[0].URL == "" {
		return faults.Upstream(op, fmt.Errorf("request %s returned no images", queued.RequestID))
	}
	if err := c.download(ctx, result.Images[0].URL, outPath); err != nil {
		return faults.Upstream(op, err)
	}
	return nil
}

func (c *Client) waitCompleted(ctx context.Context, statusURL string) error {
	for {
		var st statusResponse
		if err := c.doJSON(ctx, http.MethodGet, statusURL, nil, &st); err != nil {
			return err
		}
		switch strings.ToUpper(st.Status) {
		case "COMPLETED":
			return nil
		case "IN_QUEUE", "IN_PROGRESS":
		default:
			return fmt.Errorf("unexpected status %q", st.Status)
		}
		if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// statusError is a non-2xx answer from fal.
type statusError struct {
	Method     string
	URL        string
	Code       int
	Body       string
	RetryAfter string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("fal %s %s returned %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// doJSON retries rate-limited calls per c.retry and fails fast on any other
// error.
func (c *Client) doJSON(ctx context.Context, method, url string, body any, out any) error {
	attempts := c.retry.Attempts()
	for attempt := 1; ; attempt++ {
		err := c.doOnce(ctx, method, url, body, out)
		var se *statusError
		if err == nil || attempt >= attempts || !errors.As(err, &se) || se.Code != http.StatusTooManyRequests {
			if err != nil && attempt > 1 {
				return fmt.Errorf("after %d attempts: %w", attempt, err)
			}
			return err
		}
		delay := c.retry.Delay(attempt, se.RetryAfter)
		c.log.Warn("rate limited, retrying", "method", method, "attempt", attempt, "delay", delay)
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (c *Client) doOnce(ctx context.Context, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Key "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fal request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{
			Method:     method,
			URL:        url,
			Code:       resp.StatusCode,
			Body:       strings.ReplaceAll(strings.TrimSpace(string(b)), c.cfg.APIKey, "[REDACTED]"),
			RetryAfter: resp.Header.Get("Retry-After"),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// download writes to a sibling temp file first so a failed transfer never
// leaves a truncated image behind.
func (c *Client) download(ctx context.Context, url, outPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("download image: status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(outPath), ".fal-*")
	if err != nil {
		return fmt.Errorf("create temp image: %w", err)
	}
	defer os.Remove(tmp.Name())
	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	if n == 0 {
		return errors.New("download image: empty body")
	}
	if err := os.Rename(tmp.Name(), outPath); err != nil {
		return fmt.Errorf("move image into place: %w", err)
	}
	return nil
}
