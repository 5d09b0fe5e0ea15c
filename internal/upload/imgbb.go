package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fluxboom/internal/domain"
	"fluxboom/internal/infra"
	"fluxboom/internal/secrets"
)

// Options configures the imgbb asset uploader.
type Options struct {
	Endpoint   string
	Secrets    domain.SecretStore
	HTTPClient *http.Client
	Logger     *infra.Logger
	Timeout    time.Duration
}

// Uploader pushes binary image data to the imgbb hosting endpoint and returns
// the public URL. Exactly one attempt is made per call; retry policy belongs
// to the caller, since uploads are paired and a lone retry would desynchronize
// the pairing.
type Uploader struct {
	endpoint   string
	secrets    domain.SecretStore
	httpClient *http.Client
	logger     infra.Logger
}

type uploadResponse struct {
	Data struct {
		URL string `json:"url"`
	} `json:"data"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
	Status int `json:"status"`
}

// NewUploader constructs an uploader with sane defaults and injected dependencies.
func NewUploader(opts Options) *Uploader {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		endpoint = "https://api.imgbb.com/1/upload"
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
	return &Uploader{
		endpoint:   endpoint,
		secrets:    opts.Secrets,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Upload sends one multipart POST carrying the payload and returns the hosted
// asset URL. It never retries and never persists anything locally.
func (u *Uploader) Upload(ctx context.Context, data []byte, mimeType string) (domain.UploadedAsset, error) {
	if len(data) == 0 {
		return domain.UploadedAsset{}, fmt.Errorf("%w: empty payload", domain.ErrUpload)
	}
	apiKey, err := u.secrets.Get(ctx, secrets.KeyImgbb)
	if err != nil {
		return domain.UploadedAsset{}, fmt.Errorf("%w: read imgbb key: %v", domain.ErrCredential, err)
	}
	if apiKey == "" {
		return domain.UploadedAsset{}, fmt.Errorf("%w: imgbb api key not configured", domain.ErrCredential)
	}

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	if err := form.WriteField("key", apiKey); err != nil {
		return domain.UploadedAsset{}, fmt.Errorf("%w: build form: %v", domain.ErrUpload, err)
	}
	part, err := form.CreateFormFile("image", filenameForMIME(mimeType))
	if err != nil {
		return domain.UploadedAsset{}, fmt.Errorf("%w: build form: %v", domain.ErrUpload, err)
	}
	if _, err := part.Write(data); err != nil {
		return domain.UploadedAsset{}, fmt.Errorf("%w: build form: %v", domain.ErrUpload, err)
	}
	if err := form.Close(); err != nil {
		return domain.UploadedAsset{}, fmt.Errorf("%w: build form: %v", domain.ErrUpload, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, body)
	if err != nil {
		return domain.UploadedAsset{}, fmt.Errorf("%w: build request: %v", domain.ErrUpload, err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return domain.UploadedAsset{}, fmt.Errorf("%w: %v", domain.ErrUpload, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.UploadedAsset{}, fmt.Errorf("%w: read response: %v", domain.ErrUpload, err)
	}

	var decoded uploadResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return domain.UploadedAsset{}, fmt.Errorf("%w: status %d: invalid response", domain.ErrUpload, resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		if msg := strings.TrimSpace(decoded.Error.Message); msg != "" {
			return domain.UploadedAsset{}, fmt.Errorf("%w: %s", domain.ErrUpload, msg)
		}
		return domain.UploadedAsset{}, fmt.Errorf("%w: status %d", domain.ErrUpload, resp.StatusCode)
	}
	url := strings.TrimSpace(decoded.Data.URL)
	if url == "" {
		return domain.UploadedAsset{}, fmt.Errorf("%w: response missing url", domain.ErrUpload)
	}
	u.logger.Debug().Str("url", url).Int("bytes", len(data)).Msg("imgbb: uploaded asset")
	return domain.UploadedAsset{URL: url}, nil
}

func filenameForMIME(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/png":
		return "image.png"
	case "image/jpeg", "image/jpg":
		return "image.jpg"
	case "image/webp":
		return "image.webp"
	default:
		return "image.bin"
	}
}
