package img2img

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"vidstyle/internal/services"
)

const (
	defaultHTTPTimeout = 300 * time.Second

	component = "img2img"
)

// Config captures the runtime settings for the stylization endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration

	Steps         int
	Strength      float64
	GuidanceScale float64

	ResizeWidth  int
	ResizeHeight int
}

// Client submits frames to the remote img2img endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}
	client := &Client{
		cfg: Config{
			BaseURL:       strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			APIKey:        strings.TrimSpace(cfg.APIKey),
			Model:         strings.TrimSpace(cfg.Model),
			Timeout:       timeout,
			Steps:         cfg.Steps,
			Strength:      cfg.Strength,
			GuidanceScale: cfg.GuidanceScale,
			ResizeWidth:   cfg.ResizeWidth,
			ResizeHeight:  cfg.ResizeHeight,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.cfg.Model }

type stylizeRequest struct {
	Input stylizeInput `json:"input"`
}

type stylizeInput struct {
	Image         string  `json:"image"`
	Prompt        string  `json:"prompt"`
	Steps         int     `json:"num_inference_steps"`
	Strength      float64 `json:"strength"`
	GuidanceScale float64 `json:"guidance_scale"`
}

// Some deployments nest the result under "output", others return it at
// the top level. Accept both.
type stylizeResponse struct {
	Output *struct {
		Image string `json:"image"`
		Error string `json:"error"`
	} `json:"output"`
	Image string `json:"image"`
	Error string `json:"error"`
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("img2img request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// RetryAfterHint extracts the server-requested retry delay from an error,
// or zero when none was supplied.
func RetryAfterHint(err error) time.Duration {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.RetryAfter
	}
	return 0
}

// Stylize submits one frame and returns the stylized frame bytes. A
// positive strength overrides the configured default. The returned
// error carries a transient or permanent classification so the caller
// can decide whether to retry.
func (c *Client) Stylize(ctx context.Context, frame []byte, prompt string, strength float64) ([]byte, error) {
	if len(frame) == 0 {
		return nil, services.Wrap(services.ErrValidation, component, "stylize", "frame bytes required", nil)
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, services.Wrap(services.ErrValidation, component, "stylize", "prompt required", nil)
	}
	if c.cfg.BaseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, component, "stylize", "endpoint base_url required", nil)
	}

	if c.cfg.ResizeWidth > 0 && c.cfg.ResizeHeight > 0 {
		resized, err := resizeFrame(frame, c.cfg.ResizeWidth, c.cfg.ResizeHeight)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, component, "stylize", "resize frame", err)
		}
		frame = resized
	}

	if strength <= 0 {
		strength = c.cfg.Strength
	}
	payload := stylizeRequest{
		Input: stylizeInput{
			Image:         base64.StdEncoding.EncodeToString(frame),
			Prompt:        prompt,
			Steps:         c.cfg.Steps,
			Strength:      strength,
			GuidanceScale: c.cfg.GuidanceScale,
		},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, component, "stylize", "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/runsync", bytes.NewReader(encoded))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, component, "stylize", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, "stylize", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, component, "stylize", "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		statusErr := &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		}
		return nil, services.Wrap(classifyStatus(resp.StatusCode), component, "stylize", "", statusErr)
	}

	var decoded stylizeResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, services.Wrap(services.ErrTransient, component, "stylize", "decode response", err)
	}
	image, remoteErr := decoded.payload()
	if remoteErr != "" {
		return nil, services.Wrap(services.ErrTransient, component, "stylize", "remote error: "+remoteErr, nil)
	}
	if image == "" {
		return nil, services.Wrap(services.ErrTransient, component, "stylize", "empty image in response", nil)
	}
	result, err := base64.StdEncoding.DecodeString(image)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, component, "stylize", "decode image payload", err)
	}
	return result, nil
}

// Ping verifies the endpoint is reachable and serving.
func (c *Client) Ping(ctx context.Context) error {
	if c.cfg.BaseURL == "" {
		return services.Wrap(services.ErrConfiguration, component, "ping", "endpoint base_url required", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/ping", nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, component, "ping", "build request", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(ctx, "ping", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(classifyStatus(resp.StatusCode), component, "ping",
			fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	return nil
}

func (r stylizeResponse) payload() (image, remoteErr string) {
	if r.Output != nil {
		return strings.TrimSpace(r.Output.Image), strings.TrimSpace(r.Output.Error)
	}
	return strings.TrimSpace(r.Image), strings.TrimSpace(r.Error)
}

// classifyStatus maps an HTTP status to a retry class: request timeout,
// rate limiting, and server errors are worth retrying; any other 4xx
// means the request itself is bad.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return services.ErrTransient
	case code >= http.StatusInternalServerError:
		return services.ErrTransient
	default:
		return services.ErrValidation
	}
}

// classifyTransportError sorts request failures into retryable and not.
// The request context decides: a done context means the caller gave up
// and the error keeps its cancellation identity, while a timeout with a
// live context is the per-call HTTP deadline and is worth retrying.
func classifyTransportError(ctx context.Context, operation string, err error) error {
	if ctx.Err() != nil {
		return services.Wrap(services.ErrTimeout, component, operation, "request cancelled", ctx.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, component, operation, "request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTimeout, component, operation, "request timed out", err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return services.Wrap(services.ErrTimeout, component, operation, "request timed out", err)
	}
	return services.Wrap(services.ErrTransient, component, operation, "http error", err)
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
