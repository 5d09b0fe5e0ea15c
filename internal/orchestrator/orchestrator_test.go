package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"fluxboom/internal/domain"
	"fluxboom/internal/flux"
)

type staticSecrets map[string]string

func (s staticSecrets) Get(ctx context.Context, name string) (string, error) {
	return s[name], nil
}

func (s staticSecrets) Set(ctx context.Context, name, value string) error {
	s[name] = value
	return nil
}

func allSecrets() staticSecrets {
	return staticSecrets{
		"replicate_api_key": "r8_test",
		"imgbb_api_key":     "imgbb_test",
	}
}

type fakeUploader struct {
	mu    sync.Mutex
	calls int
	// errByMIME fails uploads of the given mime type.
	errByMIME map[string]error
}

func (u *fakeUploader) Upload(ctx context.Context, data []byte, mimeType string) (domain.UploadedAsset, error) {
	u.mu.Lock()
	u.calls++
	n := u.calls
	u.mu.Unlock()
	if err := u.errByMIME[mimeType]; err != nil {
		return domain.UploadedAsset{}, err
	}
	return domain.UploadedAsset{URL: fmt.Sprintf("https://i.example/%s-%d", strings.TrimPrefix(mimeType, "image/"), n)}, nil
}

type fakeClient struct {
	mu          sync.Mutex
	submits     int
	statusCalls int
	cancels     int

	submitErr error
	statuses  []domain.JobStatus
	outputs   []string
	fetchErr  error
	artifact  []byte
	mime      string
}

func (c *fakeClient) Submit(ctx context.Context, model domain.Model, params flux.Params) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submits++
	if c.submitErr != nil {
		return "", c.submitErr
	}
	return "pred-1", nil
}

func (c *fakeClient) Status(ctx context.Context, jobID string) (domain.JobStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.statusCalls
	c.statusCalls++
	if idx >= len(c.statuses) {
		return c.statuses[len(c.statuses)-1], nil
	}
	return c.statuses[idx], nil
}

func (c *fakeClient) FetchOutput(ctx context.Context, jobID string) ([]string, error) {
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	return c.outputs, nil
}

func (c *fakeClient) Cancel(ctx context.Context, jobID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancels++
	return nil
}

func (c *fakeClient) Download(ctx context.Context, url string) ([]byte, string, error) {
	if c.artifact == nil {
		return []byte{0x89, 'P', 'N', 'G'}, "image/png", nil
	}
	return c.artifact, c.mime, nil
}

type memoryImages struct {
	mu      sync.Mutex
	records []domain.GeneratedImage
	edits   []domain.EditHistoryEntry
}

func (m *memoryImages) Create(ctx context.Context, image *domain.GeneratedImage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *image)
	return nil
}

func (m *memoryImages) AppendEdit(ctx context.Context, edit *domain.EditHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, *edit)
	return nil
}

func (m *memoryImages) GetByID(ctx context.Context, id string) (*domain.GeneratedImage, error) {
	return nil, domain.ErrNotFound
}

func (m *memoryImages) List(ctx context.Context, limit, offset int) ([]domain.GeneratedImage, error) {
	return m.records, nil
}

func (m *memoryImages) ListEdits(ctx context.Context, imageID string) ([]domain.EditHistoryEntry, error) {
	return m.edits, nil
}

func (m *memoryImages) Delete(ctx context.Context, id string) error { return nil }

type memoryPrompts struct {
	mu      sync.Mutex
	entries []domain.PromptHistoryEntry
}

func (m *memoryPrompts) Create(ctx context.Context, entry *domain.PromptHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryPrompts) List(ctx context.Context, limit, offset int) ([]domain.PromptHistoryEntry, error) {
	return m.entries, nil
}

func (m *memoryPrompts) ListByImage(ctx context.Context, imageID string) ([]domain.PromptHistoryEntry, error) {
	return m.entries, nil
}

func newTestOrchestrator(client *fakeClient, uploader *fakeUploader, images *memoryImages, prompts *memoryPrompts, sec domain.SecretStore) *Orchestrator {
	return New(Options{
		Uploader:     uploader,
		Client:       client,
		Images:       images,
		Prompts:      prompts,
		Secrets:      sec,
		PollInterval: time.Millisecond,
	})
}

func proRequest() domain.GenerationRequest {
	return domain.GenerationRequest{
		Model:           domain.ModelFluxPro,
		Prompt:          "a cat",
		Guidance:        3.0,
		Steps:           25,
		Interval:        2.0,
		SafetyTolerance: 2,
	}
}

func inpaintingRequest() domain.GenerationRequest {
	return domain.GenerationRequest{
		Model:           domain.ModelFluxDevInpainting,
		Prompt:          "replace the sky",
		SourceImage:     []byte{0x01},
		SourceImageMIME: "image/jpeg",
		MaskImage:       []byte{0x02},
		Strength:        0.85,
		GuidanceScale:   7.0,
	}
}

func TestProHappyPath(t *testing.T) {
	client := &fakeClient{
		statuses: []domain.JobStatus{domain.JobStatusProcessing, domain.JobStatusSucceeded},
		outputs:  []string{"https://out.example/cat.png"},
	}
	images := &memoryImages{}
	prompts := &memoryPrompts{}
	o := newTestOrchestrator(client, &fakeUploader{}, images, prompts, allSecrets())

	result, err := o.Run(context.Background(), proRequest())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if client.statusCalls != 2 {
		t.Fatalf("status calls = %d, want 2", client.statusCalls)
	}
	if result.OutputURL != "https://out.example/cat.png" {
		t.Fatalf("output url = %q", result.OutputURL)
	}
	if len(result.ImageBytes) == 0 {
		t.Fatalf("expected artifact bytes")
	}
	if len(images.records) != 1 {
		t.Fatalf("records = %d, want 1", len(images.records))
	}
	if len(prompts.entries) != 1 {
		t.Fatalf("prompt entries = %d, want 1", len(prompts.entries))
	}
	entry := prompts.entries[0]
	if entry.Model != domain.ModelFluxPro || entry.Prompt != "a cat" {
		t.Fatalf("prompt entry = %+v", entry)
	}
	if state := o.State(); state.Stage != StageDone {
		t.Fatalf("stage = %q, want done", state.Stage)
	}
}

func TestMissingCredentialNoNetwork(t *testing.T) {
	client := &fakeClient{statuses: []domain.JobStatus{domain.JobStatusSucceeded}}
	uploader := &fakeUploader{}
	o := newTestOrchestrator(client, uploader, &memoryImages{}, &memoryPrompts{}, staticSecrets{})

	_, err := o.Run(context.Background(), proRequest())
	if !errors.Is(err, domain.ErrCredential) {
		t.Fatalf("err = %v, want ErrCredential", err)
	}
	if client.submits != 0 || client.statusCalls != 0 || uploader.calls != 0 {
		t.Fatalf("expected zero remote calls, got submits=%d status=%d uploads=%d", client.submits, client.statusCalls, uploader.calls)
	}
	if state := o.State(); state.Stage != StageFailed {
		t.Fatalf("stage = %q, want failed", state.Stage)
	}
}

func TestMaskUploadFailureNeverSubmits(t *testing.T) {
	client := &fakeClient{statuses: []domain.JobStatus{domain.JobStatusSucceeded}}
	uploader := &fakeUploader{errByMIME: map[string]error{
		"image/png": fmt.Errorf("%w: mask host rejected payload", domain.ErrUpload),
	}}
	o := newTestOrchestrator(client, uploader, &memoryImages{}, &memoryPrompts{}, allSecrets())

	_, err := o.Run(context.Background(), inpaintingRequest())
	if !errors.Is(err, domain.ErrUpload) {
		t.Fatalf("err = %v, want ErrUpload", err)
	}
	if client.submits != 0 {
		t.Fatalf("submit must never be invoked, got %d", client.submits)
	}
}

func TestBothUploadsFailingReportsImageError(t *testing.T) {
	client := &fakeClient{}
	uploader := &fakeUploader{errByMIME: map[string]error{
		"image/jpeg": fmt.Errorf("%w: image upload refused", domain.ErrUpload),
		"image/png":  fmt.Errorf("%w: mask upload refused", domain.ErrUpload),
	}}
	o := newTestOrchestrator(client, uploader, &memoryImages{}, &memoryPrompts{}, allSecrets())

	_, err := o.Run(context.Background(), inpaintingRequest())
	if err == nil || !strings.Contains(err.Error(), "image upload refused") {
		t.Fatalf("err = %v, want the image-upload error", err)
	}
	if client.submits != 0 {
		t.Fatalf("submit must never be invoked, got %d", client.submits)
	}
}

func TestSucceededWithEmptyOutput(t *testing.T) {
	client := &fakeClient{
		statuses: []domain.JobStatus{domain.JobStatusSucceeded},
		outputs:  nil,
	}
	images := &memoryImages{}
	prompts := &memoryPrompts{}
	o := newTestOrchestrator(client, &fakeUploader{}, images, prompts, allSecrets())

	_, err := o.Run(context.Background(), proRequest())
	if !errors.Is(err, domain.ErrAPI) {
		t.Fatalf("err = %v, want ErrAPI", err)
	}
	if !strings.Contains(err.Error(), "no output produced") {
		t.Fatalf("err = %v, want no output produced", err)
	}
	if len(images.records) != 0 || len(prompts.entries) != 0 {
		t.Fatalf("nothing must be persisted, got %d records, %d entries", len(images.records), len(prompts.entries))
	}
}

func TestOnlyFirstOutputUsed(t *testing.T) {
	client := &fakeClient{
		statuses: []domain.JobStatus{domain.JobStatusSucceeded},
		outputs:  []string{"https://out.example/a.png", "https://out.example/b.png"},
	}
	o := newTestOrchestrator(client, &fakeUploader{}, &memoryImages{}, &memoryPrompts{}, allSecrets())

	result, err := o.Run(context.Background(), proRequest())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.OutputURL != "https://out.example/a.png" {
		t.Fatalf("output url = %q, want first url", result.OutputURL)
	}
}

func TestStatusNeverRegresses(t *testing.T) {
	client := &fakeClient{
		statuses: []domain.JobStatus{
			domain.JobStatusProcessing,
			domain.JobStatusPending, // remote regression, must be ignored
			domain.JobStatusSucceeded,
		},
		outputs: []string{"https://out.example/a.png"},
	}
	var observed []domain.JobStatus
	o := New(Options{
		Uploader:     &fakeUploader{},
		Client:       client,
		Images:       &memoryImages{},
		Prompts:      &memoryPrompts{},
		Secrets:      allSecrets(),
		PollInterval: time.Millisecond,
		OnStage: func(stage Stage, status domain.JobStatus) {
			if stage == StagePolling && status != "" {
				observed = append(observed, status)
			}
		},
	})
	if _, err := o.Run(context.Background(), proRequest()); err != nil {
		t.Fatalf("run: %v", err)
	}
	last := domain.JobStatusPending
	for _, status := range observed {
		if status.Rank() < last.Rank() {
			t.Fatalf("status regressed: %v", observed)
		}
		last = status
	}
}

func TestCancelDuringPolling(t *testing.T) {
	client := &fakeClient{
		statuses: []domain.JobStatus{domain.JobStatusProcessing},
	}
	o := New(Options{
		Uploader:     &fakeUploader{},
		Client:       client,
		Images:       &memoryImages{},
		Prompts:      &memoryPrompts{},
		Secrets:      allSecrets(),
		PollInterval: 5 * time.Millisecond,
	})

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background(), proRequest())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	o.Cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrCanceled) {
			t.Fatalf("err = %v, want ErrCanceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not observe cancellation")
	}
	if client.cancels != 1 {
		t.Fatalf("remote cancels = %d, want 1", client.cancels)
	}
	if state := o.State(); state.Stage != StageCanceled {
		t.Fatalf("stage = %q, want canceled", state.Stage)
	}
}

func TestCancelAfterTerminalIsNoOp(t *testing.T) {
	client := &fakeClient{
		statuses: []domain.JobStatus{domain.JobStatusSucceeded},
		outputs:  []string{"https://out.example/a.png"},
	}
	o := newTestOrchestrator(client, &fakeUploader{}, &memoryImages{}, &memoryPrompts{}, allSecrets())
	if _, err := o.Run(context.Background(), proRequest()); err != nil {
		t.Fatalf("run: %v", err)
	}

	o.Cancel()
	o.Cancel()

	if client.cancels != 0 {
		t.Fatalf("remote cancels = %d, want 0", client.cancels)
	}
	if state := o.State(); state.Stage != StageDone {
		t.Fatalf("stage = %q, want done after no-op cancel", state.Stage)
	}
}

func TestRunClearsPreviousSnapshot(t *testing.T) {
	client := &fakeClient{
		statuses: []domain.JobStatus{domain.JobStatusSucceeded},
		outputs:  []string{"https://out.example/a.png"},
	}
	sec := staticSecrets{}
	o := newTestOrchestrator(client, &fakeUploader{}, &memoryImages{}, &memoryPrompts{}, sec)

	if _, err := o.Run(context.Background(), proRequest()); !errors.Is(err, domain.ErrCredential) {
		t.Fatalf("first run err = %v, want ErrCredential", err)
	}
	if state := o.State(); state.Error == "" {
		t.Fatalf("failed run must record its error")
	}

	sec["replicate_api_key"] = "r8_test"
	if _, err := o.Run(context.Background(), proRequest()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	state := o.State()
	if state.Stage != StageDone {
		t.Fatalf("stage = %q, want done", state.Stage)
	}
	if state.Error != "" {
		t.Fatalf("stale error carried into new run: %q", state.Error)
	}
}

func TestSingleFlight(t *testing.T) {
	client := &fakeClient{
		statuses: []domain.JobStatus{domain.JobStatusProcessing},
	}
	o := New(Options{
		Uploader:     &fakeUploader{},
		Client:       client,
		Images:       &memoryImages{},
		Prompts:      &memoryPrompts{},
		Secrets:      allSecrets(),
		PollInterval: 5 * time.Millisecond,
	})

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background(), proRequest())
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)

	if _, err := o.Run(context.Background(), proRequest()); !errors.Is(err, domain.ErrGenerationInFlight) {
		t.Fatalf("err = %v, want ErrGenerationInFlight", err)
	}

	o.Cancel()
	<-done
}

func TestMissingMaskIsWarningNotError(t *testing.T) {
	client := &fakeClient{
		statuses: []domain.JobStatus{domain.JobStatusSucceeded},
		outputs:  []string{"https://out.example/a.png"},
	}
	req := inpaintingRequest()
	req.MaskImage = nil
	o := newTestOrchestrator(client, &fakeUploader{}, &memoryImages{}, &memoryPrompts{}, allSecrets())

	result, err := o.Run(context.Background(), req)
	if err == nil {
		// A masked model without a mask URL cannot build parameters; the
		// warning must still have been recorded before the build rejected it.
		t.Fatalf("expected build failure for maskless inpainting, got result %+v", result)
	}
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if state := o.State(); state.Warning == "" {
		t.Fatalf("missing mask warning must be recorded on the snapshot")
	}
}

func TestInpaintingEditAppendsToBaseImage(t *testing.T) {
	client := &fakeClient{
		statuses: []domain.JobStatus{domain.JobStatusSucceeded},
		outputs:  []string{"https://out.example/edited.png"},
	}
	images := &memoryImages{}
	prompts := &memoryPrompts{}
	req := inpaintingRequest()
	req.BaseImageID = "base-1"
	o := newTestOrchestrator(client, &fakeUploader{}, images, prompts, allSecrets())

	result, err := o.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.ImageID != "base-1" {
		t.Fatalf("image id = %q, want base-1", result.ImageID)
	}
	if len(images.records) != 0 {
		t.Fatalf("no new record expected, got %d", len(images.records))
	}
	if len(images.edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(images.edits))
	}
	edit := images.edits[0]
	if edit.ImageID != "base-1" || edit.Prompt != "replace the sky" {
		t.Fatalf("edit = %+v", edit)
	}
	if len(edit.EditedImage) == 0 {
		t.Fatalf("edit must carry the edited image bytes")
	}
}
