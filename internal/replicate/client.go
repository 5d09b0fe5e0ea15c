package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fluxboom/internal/domain"
	"fluxboom/internal/flux"
	"fluxboom/internal/infra"
	"fluxboom/internal/secrets"
)

// modelConfig resolves how a model is addressed: standard models are
// submitted by name to a model-scoped endpoint, while pinned models post to
// the generic predictions endpoint with an explicit version identifier. The
// distinction is configuration here, never caller-visible.
type modelConfig struct {
	name    string
	version string
}

var modelConfigs = map[domain.Model]modelConfig{
	domain.ModelFluxPro:           {name: "flux-pro"},
	domain.ModelFluxSchnell:       {name: "flux-schnell"},
	domain.ModelFluxDevInpainting: {version: "ca8350ff748d56b3ebbd5a12bd3436c2214262a4ff8619de9890ecc41751a008"},
}

// Options configures the Replicate prediction client.
type Options struct {
	BaseURL    string
	Secrets    domain.SecretStore
	HTTPClient *http.Client
	Logger     *infra.Logger
	Timeout    time.Duration
}

// Client issues the prediction operations against the Replicate API. Every
// call is single-attempt; the orchestrator owns retry and poll policy.
type Client struct {
	baseURL    string
	secrets    domain.SecretStore
	httpClient *http.Client
	logger     infra.Logger
}

type predictionResponse struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Output *Output `json:"output"`
	Detail string  `json:"detail"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.replicate.com"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		baseURL:    baseURL,
		secrets:    opts.Secrets,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (c *Client) apiKey(ctx context.Context) (string, error) {
	key, err := c.secrets.Get(ctx, secrets.KeyReplicate)
	if err != nil {
		return "", fmt.Errorf("%w: read replicate key: %v", domain.ErrCredential, err)
	}
	if key == "" {
		return "", fmt.Errorf("%w: replicate api key not configured", domain.ErrCredential)
	}
	return key, nil
}

// Submit creates a prediction for the model and returns the remote job id.
func (c *Client) Submit(ctx context.Context, model domain.Model, params flux.Params) (string, error) {
	key, err := c.apiKey(ctx)
	if err != nil {
		return "", err
	}
	cfg, ok := modelConfigs[model]
	if !ok {
		return "", fmt.Errorf("%w: unsupported model %q", domain.ErrValidation, model)
	}

	endpoint := c.baseURL + "/v1/predictions"
	payload := map[string]any{"input": params}
	if cfg.version != "" {
		payload["version"] = cfg.version
	} else {
		endpoint = fmt.Sprintf("%s/v1/models/black-forest-labs/%s/predictions", c.baseURL, cfg.name)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", domain.ErrAPI, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", domain.ErrAPI, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	decoded, err := c.do(req)
	if err != nil {
		return "", err
	}
	if decoded.ID != "" {
		c.logger.Debug().Str("prediction_id", decoded.ID).Str("model", string(model)).Msg("replicate: prediction created")
		return decoded.ID, nil
	}
	if decoded.Detail != "" {
		return "", fmt.Errorf("%w: %s", domain.ErrAPI, decoded.Detail)
	}
	return "", fmt.Errorf("%w: invalid response", domain.ErrAPI)
}

// Status fetches the current remote status for a prediction. Unrecognized
// status strings map to Processing as a forward-compatible default.
func (c *Client) Status(ctx context.Context, jobID string) (domain.JobStatus, error) {
	decoded, err := c.get(ctx, jobID)
	if err != nil {
		return "", err
	}
	if decoded.Status == "" {
		if decoded.Detail != "" {
			return "", fmt.Errorf("%w: %s", domain.ErrAPI, decoded.Detail)
		}
		return "", fmt.Errorf("%w: invalid response", domain.ErrAPI)
	}
	return mapStatus(decoded.Status), nil
}

// FetchOutput retrieves the output URL(s) of a prediction.
func (c *Client) FetchOutput(ctx context.Context, jobID string) ([]string, error) {
	decoded, err := c.get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return decoded.Output.URLs(), nil
}

// Cancel requests remote cancellation. Any 2xx response counts as success
// regardless of body content.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	key, err := c.apiKey(ctx)
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/v1/predictions/%s/cancel", c.baseURL, jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", domain.ErrAPI, err)
	}
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAPI, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: cancel failed with status %d", domain.ErrAPI, resp.StatusCode)
	}
	return nil
}

// Download fetches the artifact bytes behind an output URL. No credential is
// attached; output URLs are pre-signed by the remote service.
func (c *Client) Download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: build download request: %v", domain.ErrAPI, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: download: %v", domain.ErrAPI, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("%w: download status %d", domain.ErrAPI, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read artifact: %v", domain.ErrAPI, err)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "image/png"
	}
	return data, mime, nil
}

func (c *Client) get(ctx context.Context, jobID string) (*predictionResponse, error) {
	key, err := c.apiKey(ctx)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/v1/predictions/%s", c.baseURL, jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrAPI, err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*predictionResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAPI, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrAPI, err)
	}
	var decoded predictionResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: invalid response", domain.ErrAPI)
	}
	if resp.StatusCode >= 300 && decoded.ID == "" {
		if decoded.Detail != "" {
			return nil, fmt.Errorf("%w: %s", domain.ErrAPI, decoded.Detail)
		}
		return nil, fmt.Errorf("%w: status %d", domain.ErrAPI, resp.StatusCode)
	}
	return &decoded, nil
}

func mapStatus(remote string) domain.JobStatus {
	switch strings.ToLower(strings.TrimSpace(remote)) {
	case "starting":
		return domain.JobStatusPending
	case "processing":
		return domain.JobStatusProcessing
	case "succeeded":
		return domain.JobStatusSucceeded
	case "failed":
		return domain.JobStatusFailed
	case "canceled":
		return domain.JobStatusCanceled
	default:
		return domain.JobStatusProcessing
	}
}
