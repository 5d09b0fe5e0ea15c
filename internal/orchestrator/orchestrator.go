package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fluxboom/internal/domain"
	"fluxboom/internal/flux"
	"fluxboom/internal/history"
	"fluxboom/internal/infra"
	"fluxboom/internal/secrets"
	"fluxboom/internal/storage"
)

// ErrCanceled is returned by Run when the attempt was canceled by the caller.
var ErrCanceled = errors.New("generation canceled")

// Stage identifies where a generation attempt is in its lifecycle.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageValidating Stage = "validating"
	StageUploading  Stage = "uploading"
	StageSubmitting Stage = "submitting"
	StagePolling    Stage = "polling"
	StageFetching   Stage = "fetching"
	StagePersisting Stage = "persisting"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
	StageCanceled   Stage = "canceled"
)

// Uploader pushes binary image data to the asset host.
type Uploader interface {
	Upload(ctx context.Context, data []byte, mimeType string) (domain.UploadedAsset, error)
}

// PredictionClient issues the remote prediction operations.
type PredictionClient interface {
	Submit(ctx context.Context, model domain.Model, params flux.Params) (string, error)
	Status(ctx context.Context, jobID string) (domain.JobStatus, error)
	FetchOutput(ctx context.Context, jobID string) ([]string, error)
	Cancel(ctx context.Context, jobID string) error
	Download(ctx context.Context, url string) ([]byte, string, error)
}

// Options wires an orchestrator instance.
type Options struct {
	Uploader     Uploader
	Client       PredictionClient
	Images       domain.ImageRepository
	Prompts      domain.PromptHistoryRepository
	Secrets      domain.SecretStore
	Store        *storage.FileStore
	Logger       *infra.Logger
	PollInterval time.Duration
	OnStage      func(stage Stage, status domain.JobStatus)
}

// Result is the terminal success payload of a generation attempt.
type Result struct {
	ImageID    string
	ImageBytes []byte
	MIME       string
	OutputURL  string
	Warning    string
}

// Snapshot is a point-in-time view of an orchestrator for status readers.
type Snapshot struct {
	Stage   Stage
	Status  domain.JobStatus
	JobID   string
	Warning string
	Error   string
	ImageID string
}

// Orchestrator drives one generation attempt through upload, submission,
// polling, artifact fetch and persistence. An instance is constructed per
// generation session and enforces single-flight: at most one Run may be
// active at a time, and the current remote job id is written exactly once at
// submission and cleared exactly once at the terminal transition.
type Orchestrator struct {
	uploader     Uploader
	client       PredictionClient
	images       domain.ImageRepository
	prompts      domain.PromptHistoryRepository
	secrets      domain.SecretStore
	store        *storage.FileStore
	logger       infra.Logger
	pollInterval time.Duration
	onStage      func(Stage, domain.JobStatus)

	mu       sync.Mutex
	running  bool
	snapshot Snapshot

	cancelCh   chan struct{}
	cancelOnce sync.Once
}

// New constructs an orchestrator for a single generation session.
func New(opts Options) *Orchestrator {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Orchestrator{
		uploader:     opts.Uploader,
		client:       opts.Client,
		images:       opts.Images,
		prompts:      opts.Prompts,
		secrets:      opts.Secrets,
		store:        opts.Store,
		logger:       logger,
		pollInterval: interval,
		onStage:      opts.OnStage,
		snapshot:     Snapshot{Stage: StageIdle},
		cancelCh:     make(chan struct{}),
	}
}

// Cancel requests cooperative cancellation. It is observed at the next poll
// boundary, never interrupting an in-flight request. Calling Cancel on an
// idle or already-terminal orchestrator is a no-op.
func (o *Orchestrator) Cancel() {
	o.cancelOnce.Do(func() { close(o.cancelCh) })
}

// State returns the current snapshot.
func (o *Orchestrator) State() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshot
}

// Run executes one generation attempt to a terminal state. Every failure is
// terminal for the attempt; no stage retries.
func (o *Orchestrator) Run(ctx context.Context, req domain.GenerationRequest) (*Result, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, domain.ErrGenerationInFlight
	}
	o.running = true
	// Drop any snapshot left by a previous attempt on this instance.
	o.snapshot = Snapshot{Stage: StageIdle}
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.running = false
		o.snapshot.JobID = ""
		o.mu.Unlock()
	}()

	result, err := o.run(ctx, req)
	switch {
	case err == nil:
		o.update(func(s *Snapshot) {
			s.Stage = StageDone
			s.ImageID = result.ImageID
			s.Warning = result.Warning
		})
	case errors.Is(err, ErrCanceled):
		o.update(func(s *Snapshot) { s.Stage = StageCanceled })
	default:
		o.update(func(s *Snapshot) {
			s.Stage = StageFailed
			s.Error = err.Error()
		})
	}
	return result, err
}

func (o *Orchestrator) run(ctx context.Context, req domain.GenerationRequest) (*Result, error) {
	o.setStage(StageValidating, "")

	warning, err := o.validate(ctx, req)
	if err != nil {
		return nil, err
	}
	if warning != "" {
		o.update(func(s *Snapshot) { s.Warning = warning })
	}

	assets, err := o.uploadAssets(ctx, req)
	if err != nil {
		return nil, err
	}

	params, err := flux.Build(req, assets)
	if err != nil {
		return nil, err
	}

	o.setStage(StageSubmitting, "")
	jobID, err := o.client.Submit(ctx, req.Model, params)
	if err != nil {
		return nil, err
	}
	o.update(func(s *Snapshot) { s.JobID = jobID })
	o.logger.Info().Str("prediction_id", jobID).Str("model", string(req.Model)).Msg("orchestrator: prediction submitted")

	status, err := o.poll(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if status == domain.JobStatusCanceled {
		return nil, ErrCanceled
	}
	if status == domain.JobStatusFailed {
		return nil, fmt.Errorf("%w: prediction failed", domain.ErrAPI)
	}

	o.setStage(StageFetching, status)
	urls, err := o.client.FetchOutput(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		// A succeeded job with no output is a contract violation by the
		// remote API, not something to mask.
		return nil, fmt.Errorf("%w: no output produced", domain.ErrAPI)
	}
	// Only the first output is used; additional outputs are discarded. This
	// mirrors the single-result assumption of the gallery and history model.
	outputURL := urls[0]
	data, mime, err := o.client.Download(ctx, outputURL)
	if err != nil {
		return nil, err
	}

	o.setStage(StagePersisting, status)
	imageID, err := o.persist(ctx, req, assets, data, mime)
	if err != nil {
		return nil, err
	}

	return &Result{
		ImageID:    imageID,
		ImageBytes: data,
		MIME:       mime,
		OutputURL:  outputURL,
		Warning:    warning,
	}, nil
}

// validate rejects bad input and missing credentials before any network
// call. The returned warning is non-fatal.
func (o *Orchestrator) validate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	if !req.Model.Valid() {
		return "", fmt.Errorf("%w: unsupported model %q", domain.ErrValidation, req.Model)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return "", fmt.Errorf("%w: prompt is required", domain.ErrValidation)
	}
	key, err := o.secrets.Get(ctx, secrets.KeyReplicate)
	if err != nil {
		return "", fmt.Errorf("%w: read replicate key: %v", domain.ErrCredential, err)
	}
	if key == "" {
		return "", fmt.Errorf("%w: replicate api key not configured", domain.ErrCredential)
	}
	warning := ""
	if req.Model.Inpainting() {
		if len(req.SourceImage) == 0 {
			return "", fmt.Errorf("%w: source image is required for inpainting", domain.ErrValidation)
		}
		imgbbKey, err := o.secrets.Get(ctx, secrets.KeyImgbb)
		if err != nil {
			return "", fmt.Errorf("%w: read imgbb key: %v", domain.ErrCredential, err)
		}
		if imgbbKey == "" {
			return "", fmt.Errorf("%w: imgbb api key not configured", domain.ErrCredential)
		}
		if len(req.MaskImage) == 0 {
			warning = domain.ErrMissingMask.Error()
		}
	}
	return warning, nil
}

type uploadResult struct {
	asset domain.UploadedAsset
	err   error
}

// uploadAssets uploads the source image and mask as two concurrent
// operations and joins on both. Failure is all-or-nothing: if either upload
// fails nothing is submitted, and when both fail the image error wins.
func (o *Orchestrator) uploadAssets(ctx context.Context, req domain.GenerationRequest) (flux.AssetURLs, error) {
	if !req.Model.Inpainting() {
		return flux.AssetURLs{}, nil
	}
	o.setStage(StageUploading, "")

	var (
		wg         sync.WaitGroup
		image      uploadResult
		mask       uploadResult
		maskWanted = len(req.MaskImage) > 0
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		image.asset, image.err = o.uploader.Upload(ctx, req.SourceImage, sourceMIME(req))
	}()
	if maskWanted {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Masks are always rasterized to PNG by the client.
			mask.asset, mask.err = o.uploader.Upload(ctx, req.MaskImage, "image/png")
		}()
	}
	wg.Wait()

	if image.err != nil {
		if maskWanted && mask.err == nil && mask.asset.URL != "" {
			o.logger.Warn().Str("url", mask.asset.URL).Msg("orchestrator: mask upload orphaned by image failure")
		}
		return flux.AssetURLs{}, image.err
	}
	if maskWanted && mask.err != nil {
		// The hosted source image has no cleanup call on the anonymous
		// upload API; log the orphan so the leak stays visible.
		o.logger.Warn().Str("url", image.asset.URL).Msg("orchestrator: image upload orphaned by mask failure")
		return flux.AssetURLs{}, mask.err
	}
	return flux.AssetURLs{Image: image.asset.URL, Mask: mask.asset.URL}, nil
}

// poll watches the remote job at a fixed cadence until it reaches a terminal
// status or the caller cancels. Cancellation is checked only at poll
// boundaries, so worst-case latency is one interval plus the in-flight
// request.
func (o *Orchestrator) poll(ctx context.Context, jobID string) (domain.JobStatus, error) {
	job := domain.PredictionJob{ID: jobID, Status: domain.JobStatusPending}
	o.setStage(StagePolling, job.Status)

	for {
		if canceled := o.checkCanceled(ctx, jobID); canceled {
			return domain.JobStatusCanceled, nil
		}

		status, err := o.client.Status(ctx, jobID)
		if err != nil {
			return "", err
		}
		job.Advance(status)
		o.setStage(StagePolling, job.Status)
		if job.Status.Terminal() {
			return job.Status, nil
		}

		timer := time.NewTimer(o.pollInterval)
		select {
		case <-timer.C:
		case <-o.cancelCh:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		}
	}
}

// checkCanceled observes a pending cancel request. The remote cancel call is
// best-effort: its failure is logged but never blocks the local transition,
// since polling a job the user abandoned is the worse failure mode.
func (o *Orchestrator) checkCanceled(ctx context.Context, jobID string) bool {
	select {
	case <-o.cancelCh:
	default:
		return false
	}
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.client.Cancel(cancelCtx, jobID); err != nil {
		o.logger.Warn().Err(err).Str("prediction_id", jobID).Msg("orchestrator: remote cancel failed")
	}
	return true
}

func (o *Orchestrator) persist(ctx context.Context, req domain.GenerationRequest, assets flux.AssetURLs, data []byte, mime string) (string, error) {
	now := time.Now().UTC()

	imageID := strings.TrimSpace(req.BaseImageID)
	if imageID != "" && req.Model.Inpainting() {
		edit := &domain.EditHistoryEntry{
			ID:                uuid.NewString(),
			ImageID:           imageID,
			Prompt:            req.Prompt,
			MaskURL:           assets.Mask,
			Width:             req.Width,
			Height:            req.Height,
			Strength:          req.Strength,
			OutputFormat:      req.OutputFormat,
			GuidanceScale:     req.GuidanceScale,
			OutputQuality:     req.OutputQuality,
			NumInferenceSteps: req.NumInferenceSteps,
			EditedImage:       data,
			CreatedAt:         now,
		}
		if err := o.images.AppendEdit(ctx, edit); err != nil {
			return "", fmt.Errorf("%w: append edit: %v", domain.ErrPersistence, err)
		}
	} else {
		imageID = uuid.NewString()
		record := &domain.GeneratedImage{
			ID:            imageID,
			Caption:       history.Caption(req.Model, req.Prompt),
			OriginalImage: data,
			MIME:          mime,
			CreatedAt:     now,
		}
		record.StorageKey = o.mirrorArtifact(ctx, imageID, mime, data)
		if err := o.images.Create(ctx, record); err != nil {
			return "", fmt.Errorf("%w: save image: %v", domain.ErrPersistence, err)
		}
	}

	entry := &domain.PromptHistoryEntry{
		ID:                   uuid.NewString(),
		ImageID:              imageID,
		Model:                req.Model,
		Prompt:               req.Prompt,
		Guidance:             req.Guidance,
		AspectRatio:          req.AspectRatio,
		Steps:                req.Steps,
		Interval:             req.Interval,
		SafetyTolerance:      req.SafetyTolerance,
		Seed:                 req.Seed,
		OutputFormat:         req.OutputFormat,
		OutputQuality:        req.OutputQuality,
		DisableSafetyChecker: req.DisableSafetyChecker,
		ImageURL:             assets.Image,
		MaskURL:              assets.Mask,
		CreatedAt:            now,
	}
	if err := o.prompts.Create(ctx, entry); err != nil {
		return "", fmt.Errorf("%w: save prompt history: %v", domain.ErrPersistence, err)
	}
	return imageID, nil
}

// mirrorArtifact writes a copy of the artifact to the file store for static
// serving. The database record is authoritative, so a mirror failure only
// logs.
func (o *Orchestrator) mirrorArtifact(ctx context.Context, imageID, mime string, data []byte) string {
	if o.store == nil {
		return ""
	}
	key := fmt.Sprintf("generated/images/%s/image-01%s", imageID, extensionForMIME(mime))
	savedKey, err := o.store.Write(ctx, key, data)
	if err != nil {
		o.logger.Warn().Err(err).Str("image_id", imageID).Msg("orchestrator: mirror artifact failed")
		return ""
	}
	return savedKey
}

func (o *Orchestrator) setStage(stage Stage, status domain.JobStatus) {
	o.update(func(s *Snapshot) {
		s.Stage = stage
		if status != "" {
			s.Status = status
		}
	})
	if o.onStage != nil {
		o.onStage(stage, status)
	}
}

func (o *Orchestrator) update(fn func(*Snapshot)) {
	o.mu.Lock()
	fn(&o.snapshot)
	o.mu.Unlock()
}

func sourceMIME(req domain.GenerationRequest) string {
	if mime := strings.TrimSpace(req.SourceImageMIME); mime != "" {
		return mime
	}
	return "image/jpeg"
}

func extensionForMIME(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
