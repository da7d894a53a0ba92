// Package llm talks to an OpenAI-compatible chat endpoint (Gemini by
// default) to write narration scripts and to pick between options.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/forPelevin/reelforge/internal/faults"
	"github.com/forPelevin/reelforge/internal/logging"
	"github.com/forPelevin/reelforge/internal/ports"
	"github.com/forPelevin/reelforge/internal/ports/adapters/backoff"
	"github.com/forPelevin/reelforge/internal/types"
)

const (
	defaultModel          = "gemini-2.5-flash"
	defaultHTTPTimeout    = 120 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 30 * time.Second
	defaultRetryAttempts  = 5

	// wordsPerSecond is the narration pace the word budget assumes.
	wordsPerSecond = 2.5
)

// Config captures the settings needed to reach the chat endpoint.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// Client implements ports.ScriptWriter and ports.Chooser.
type Client struct {
	cfg        Config
	api        openai.Client
	httpClient *http.Client
	log        *slog.Logger

	retry   backoff.Policy
	sleeper func(time.Duration)
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts caps the number of calls made for one request,
// including the first.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) { c.retry.MaxAttempts = attempts }
}

func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retry.BaseDelay = baseDelay
		c.retry.MaxDelay = maxDelay
	}
}

// WithSleeper replaces the timer used between retries.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) { c.sleeper = sleeper }
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = normalizeBaseURL(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		log:        logging.NewNop(),
		retry: backoff.Policy{
			MaxAttempts: defaultRetryAttempts,
			BaseDelay:   defaultRetryBaseDelay,
			MaxDelay:    defaultRetryMaxDelay,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "llm")

	// Retries are ours: only rate limits are retried, with Retry-After honored.
	c.api = openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL+"/"),
		option.WithHTTPClient(c.httpClient),
		option.WithMaxRetries(0),
	)
	return c
}

type scriptPayload struct {
	Theme             string         `json:"theme" jsonschema_description:"The theme of the video, restated briefly."`
	Hook              string         `json:"hook" jsonschema_description:"One captivating opening sentence."`
	FullVoiceoverText string         `json:"full_voiceover_text" jsonschema_description:"The rest of the narration as one continuous paragraph following the hook."`
	Scenes            []scenePayload `json:"scenes" jsonschema_description:"Visual descriptions that illustrate the narration, in order."`
}

type scenePayload struct {
	ID           int    `json:"id" jsonschema_description:"1-based scene number."`
	VisualPrompt string `json:"visual_prompt" jsonschema_description:"A detailed visual description of one still image, without text overlays."`
}

type choicePayload struct {
	Index  int    `json:"index" jsonschema_description:"0-based index of the chosen option."`
	Reason string `json:"reason" jsonschema_description:"One short sentence explaining the choice."`
}

// generateSchema reflects a strict JSON schema for structured outputs.
func generateSchema[T any]() any {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

var (
	scriptSchema = generateSchema[scriptPayload]()
	choiceSchema = generateSchema[choicePayload]()
)

// MaxWords is the narration word budget for a target duration in seconds.
func MaxWords(targetDuration int) int {
	return int(float64(targetDuration) * wordsPerSecond)
}

func (c *Client) WriteScript(ctx context.Context, req ports.ScriptRequest) (ports.ScriptDraft, error) {
	const op = "llm.write_script"
	theme := strings.TrimSpace(req.Theme)
	if theme == "" {
		return ports.ScriptDraft{}, faults.InvalidInput(op, "theme is empty")
	}
	if req.NumScenes <= 0 || req.TargetDuration <= 0 {
		return ports.ScriptDraft{}, faults.InvalidInput(op, "num_scenes and target_duration must be positive (got %d, %d)", req.NumScenes, req.TargetDuration)
	}

	content, err := c.complete(ctx, op, buildScriptPrompt(req), "video_script", "Narration script with scene prompts", scriptSchema)
	if err != nil {
		return ports.ScriptDraft{}, err
	}
	var out scriptPayload
	if err := decodeContent(content, &out); err != nil {
		return ports.ScriptDraft{}, faults.Upstream(op, err)
	}

	draft := ports.ScriptDraft{
		Theme:             strings.TrimSpace(out.Theme),
		Hook:              strings.TrimSpace(out.Hook),
		FullVoiceoverText: strings.TrimSpace(out.FullVoiceoverText),
		Scenes:            normalizeScenes(out.Scenes),
	}
	if draft.Theme == "" {
		draft.Theme = theme
	}
	if draft.Hook == "" && draft.FullVoiceoverText == "" {
		return ports.ScriptDraft{}, faults.Upstream(op, errors.New("model returned no narration"))
	}
	if len(draft.Scenes) == 0 {
		return ports.ScriptDraft{}, faults.Upstream(op, errors.New("model returned no scenes"))
	}
	if len(draft.Scenes) != req.NumScenes {
		c.log.Warn("scene count differs from request", "requested", req.NumScenes, "got", len(draft.Scenes))
	}
	return draft, nil
}

// Choose asks the model to pick one of options for brief. It returns the
// index into options.
func (c *Client) Choose(ctx context.Context, brief string, options []string) (int, error) {
	const op = "llm.choose"
	if len(options) == 0 {
		return 0, faults.InvalidInput(op, "no options to choose from")
	}
	if len(options) == 1 {
		return 0, nil
	}
	content, err := c.complete(ctx, op, buildChoosePrompt(brief, options), "choice", "Index of the best option", choiceSchema)
	if err != nil {
		return 0, err
	}
	var out choicePayload
	if err := decodeContent(content, &out); err != nil {
		return 0, faults.Upstream(op, err)
	}
	if out.Index < 0 || out.Index >= len(options) {
		return 0, faults.Upstream(op, fmt.Errorf("index %d out of range [0,%d)", out.Index, len(options)))
	}
	c.log.Debug("option chosen", "index", out.Index, "reason", out.Reason)
	return out.Index, nil
}

func buildScriptPrompt(req ports.ScriptRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert writer of short documentary videos.\n")
	fmt.Fprintf(&b, "Write a script on the theme: %q.\n", strings.TrimSpace(req.Theme))
	if angle := strings.TrimSpace(req.Angle); angle != "" {
		fmt.Fprintf(&b, "\nSpecific angle and tone:\n%s\nApply this direction strictly throughout the narration.\n", angle)
	}
	if lang := strings.TrimSpace(req.Language); lang != "" {
		fmt.Fprintf(&b, "\nWrite the hook and the narration in the language with code %q.\n", lang)
	}
	fmt.Fprintf(&b, "\nStructure:\n")
	fmt.Fprintf(&b, "1. Put the opening sentence in \"hook\" and the rest of the narration in \"full_voiceover_text\".\n")
	fmt.Fprintf(&b, "2. The narration is one continuous paragraph of long, natural sentences.\n")
	fmt.Fprintf(&b, "3. Hook plus narration should total about %d words so it lasts %d seconds when read aloud.\n", MaxWords(req.TargetDuration), req.TargetDuration)
	fmt.Fprintf(&b, "4. Independently of the text, provide EXACTLY %d visual descriptions in \"scenes\", numbered from 1. They illustrate the narration as a whole.\n", req.NumScenes)
	fmt.Fprintf(&b, "\nReturn strictly valid JSON matching the provided schema, with no markdown.")
	return b.String()
}

func buildChoosePrompt(brief string, options []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pick the option that best fits this brief.\n\nBrief:\n%s\n\nOptions:\n", strings.TrimSpace(brief))
	for i, o := range options {
		fmt.Fprintf(&b, "%d. %s\n", i, strings.TrimSpace(o))
	}
	fmt.Fprintf(&b, "\nReturn strictly valid JSON matching the provided schema, with no markdown.")
	return b.String()
}

// normalizeScenes drops empty prompts and renumbers scenes 1..n when the
// model returned missing or duplicate ids.
func normalizeScenes(in []scenePayload) []types.Scene {
	out := make([]types.Scene, 0, len(in))
	seen := make(map[int]struct{}, len(in))
	renumber := false
	for _, s := range in {
		prompt := strings.TrimSpace(s.VisualPrompt)
		if prompt == "" {
			continue
		}
		if _, dup := seen[s.ID]; dup || s.ID <= 0 {
			renumber = true
		}
		seen[s.ID] = struct{}{}
		out = append(out, types.Scene{ID: s.ID, VisualPrompt: prompt})
	}
	if renumber {
		for i := range out {
			out[i].ID = i + 1
		}
	}
	return out
}

func (c *Client) complete(ctx context.Context, op, prompt, schemaName, schemaDesc string, schema any) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(c.cfg.Model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        schemaName,
					Description: openai.String(schemaDesc),
					Schema:      schema,
					Strict:      openai.Bool(true),
				},
			},
		},
	}

	attempts := c.retry.Attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		completion, err := c.api.Chat.Completions.New(ctx, params)
		if err == nil {
			if len(completion.Choices) == 0 || strings.TrimSpace(completion.Choices[0].Message.Content) == "" {
				return "", faults.Upstream(op, errors.New("empty completion"))
			}
			return completion.Choices[0].Message.Content, nil
		}

		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return "", faults.Upstream(op, c.redact(err))
		}
		c.log.Warn("rate limited, retrying", "op", op, "attempt", attempt, "delay", delay)
		if err := c.sleep(ctx, delay); err != nil {
			return "", err
		}
		lastErr = err
	}
	return "", faults.Upstream(op, fmt.Errorf("failed after %d attempts: %w", attempts, c.redact(lastErr)))
}

func (c *Client) redact(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(truncate(redactSecrets(err.Error(), c.cfg.APIKey), 600))
}

// retryDelay reports whether err is a rate limit worth another attempt and
// how long to wait before it.
func (c *Client) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil || ctx.Err() != nil {
		return 0, false
	}
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests {
		return 0, false
	}
	retryAfter := ""
	if apiErr.Response != nil {
		retryAfter = apiErr.Response.Header.Get("Retry-After")
	}
	return c.retry.Delay(attempt, retryAfter), true
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if c.sleeper != nil && delay > 0 {
		c.sleeper(delay)
		return ctx.Err()
	}
	return backoff.Sleep(ctx, delay)
}

func decodeContent(content string, target any) error {
	clean, err := extractJSONObject(content)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(clean), target); err != nil {
		return fmt.Errorf("decode model output: %w (content: %q)", err, truncate(clean, 200))
	}
	return nil
}

func extractJSONObject(s string) (string, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", errors.New("llm: empty content")
	}

	if strings.HasPrefix(t, "```") {
		if i := strings.Index(t, "\n"); i >= 0 {
			t = t[i+1:]
		}
		if j := strings.LastIndex(t, "```"); j >= 0 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}

	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start >= 0 && end > start {
		return t[start : end+1], nil
	}
	return "", fmt.Errorf("llm: could not locate JSON object in: %q", truncate(t, 200))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;&]+)`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}
