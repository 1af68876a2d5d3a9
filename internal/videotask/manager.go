// Package videotask submits image-to-video jobs to the signed visual
// intelligence API and tracks them in persisted task records. Unlike the
// generation stages there is no fallback for a missing video, so submission
// and polling surface hard failures.
package videotask

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

	"storyreel/internal/domain"
	"storyreel/internal/signer"
	"storyreel/internal/store"
)

const (
	apiVersion   = "2022-08-31"
	actionSubmit = "CVSync2AsyncSubmitTask"
	actionResult = "CVSync2AsyncGetResult"

	// codeOK is the provider's success code.
	codeOK = 10000

	defaultPrompt      = "根据图片内容生成一个精美的视频，展现画面中的美好时光"
	defaultAspectRatio = "16:9"
	defaultSeed        = -1

	imageStrength  = 0.8
	motionStrength = 0.6

	defaultSceneRef = "batch"
)

// ProviderConfig carries the signed endpoint parameters and credentials.
type ProviderConfig struct {
	Host      string
	Region    string
	Service   string
	ReqKey    string
	AccessKey string
	SecretKey string
}

// Manager owns the video task lifecycle.
type Manager struct {
	records    store.RecordStore
	httpClient *http.Client
	provider   ProviderConfig
	now        func() time.Time
	log        zerolog.Logger
}

// ManagerOptions configures a Manager. Now defaults to time.Now.
type ManagerOptions struct {
	Records    store.RecordStore
	HTTPClient *http.Client
	Provider   ProviderConfig
	Timeout    time.Duration
	Now        func() time.Time
	Logger     zerolog.Logger
}

// NewManager creates a video task manager.
func NewManager(opts ManagerOptions) *Manager {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		records:    opts.Records,
		httpClient: httpClient,
		provider:   opts.Provider,
		now:        now,
		log:        opts.Logger,
	}
}

// SubmitParams is the caller input for one video submission.
type SubmitParams struct {
	OwnerID        string
	DiaryID        string
	SceneID        string
	SelectedImages []string
	Prompt         string
	Seed           int64
	AspectRatio    string
}

type submitRequest struct {
	ReqKey         string  `json:"req_key"`
	Prompt         string  `json:"prompt"`
	Seed           int64   `json:"seed"`
	AspectRatio    string  `json:"aspect_ratio"`
	ImageURL       string  `json:"image_url"`
	ImageStrength  float64 `json:"image_strength"`
	MotionStrength float64 `json:"motion_strength"`
}

type resultRequest struct {
	ReqKey string `json:"req_key"`
	TaskID string `json:"task_id"`
}

type providerResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		TaskID   string `json:"task_id"`
		Status   string `json:"status"`
		VideoURL string `json:"video_url"`
	} `json:"data"`
}

// Submit validates the selection, signs and posts the job, and persists a new
// processing task. The record id is the handle callers poll with, so a
// persistence failure here is surfaced rather than swallowed.
func (m *Manager) Submit(ctx context.Context, p SubmitParams) (*domain.VideoTask, error) {
	if len(p.SelectedImages) == 0 {
		return nil, fmt.Errorf("videotask: at least one image must be selected: %w", domain.ErrValidation)
	}
	if p.DiaryID == "" {
		return nil, fmt.Errorf("videotask: diary id is required: %w", domain.ErrValidation)
	}

	prompt := p.Prompt
	if prompt == "" {
		prompt = defaultPrompt
	}
	seed := p.Seed
	if seed == 0 {
		seed = defaultSeed
	}
	aspect := p.AspectRatio
	if aspect == "" {
		aspect = defaultAspectRatio
	}

	resp, err := m.call(ctx, actionSubmit, submitRequest{
		ReqKey:         m.provider.ReqKey,
		Prompt:         prompt,
		Seed:           seed,
		AspectRatio:    aspect,
		ImageURL:       p.SelectedImages[0],
		ImageStrength:  imageStrength,
		MotionStrength: motionStrength,
	})
	if err != nil {
		return nil, err
	}
	if resp.Data.TaskID == "" {
		return nil, fmt.Errorf("videotask: submit response has no task id: %w", domain.ErrUpstreamPermanent)
	}

	sceneID := p.SceneID
	if sceneID == "" {
		sceneID = defaultSceneRef
	}
	now := m.now()
	task := domain.VideoTask{
		ExternalTaskID: resp.Data.TaskID,
		OwnerID:        p.OwnerID,
		DiaryID:        p.DiaryID,
		SceneID:        sceneID,
		SelectedImages: p.SelectedImages,
		Status:         domain.VideoTaskProcessing,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	id, err := m.records.Add(ctx, store.CollectionVideoTasks, p.OwnerID, task)
	if err != nil {
		return nil, fmt.Errorf("videotask: save task record: %v: %w", err, domain.ErrPersistence)
	}
	task.ID = id
	m.log.Info().Str("task_id", id).Str("external_task_id", task.ExternalTaskID).Msg("video task submitted")
	return &task, nil
}

// Poll reports the current snapshot of a task, querying the provider when the
// task is still in flight. Only the transition to completed is persisted;
// repeated polls of a processing task write nothing.
func (m *Manager) Poll(ctx context.Context, taskID string) (*domain.VideoTask, error) {
	rec, err := m.records.Get(ctx, store.CollectionVideoTasks, taskID)
	if err != nil {
		return nil, fmt.Errorf("videotask: load task %s: %w", taskID, err)
	}
	var task domain.VideoTask
	if err := json.Unmarshal(rec.Data, &task); err != nil {
		return nil, fmt.Errorf("videotask: decode task %s: %w", taskID, err)
	}
	task.ID = rec.ID
	if task.OwnerID == "" {
		task.OwnerID = rec.OwnerID
	}

	if task.Status.Terminal() {
		return &task, nil
	}
	if task.ExternalTaskID == "" {
		return nil, fmt.Errorf("videotask: task %s: %w", taskID, domain.ErrMissingExternalTask)
	}

	resp, err := m.call(ctx, actionResult, resultRequest{
		ReqKey: m.provider.ReqKey,
		TaskID: task.ExternalTaskID,
	})
	if err != nil {
		return nil, err
	}

	next := ApplyProviderStatus(task.Status, resp.Data.Status, resp.Data.VideoURL)
	task.Status = next
	task.UpdatedAt = m.now()
	if next == domain.VideoTaskCompleted {
		task.VideoURL = resp.Data.VideoURL
		m.persistCompletion(ctx, &task)
	}
	return &task, nil
}

// persistCompletion writes the terminal snapshot. A store failure is logged
// and swallowed: the caller still gets the completed task, and the next poll
// retries the write.
func (m *Manager) persistCompletion(ctx context.Context, task *domain.VideoTask) {
	_, err := m.records.Update(ctx, store.CollectionVideoTasks, store.Filter{ID: task.ID}, map[string]any{
		"status":     task.Status,
		"video_url":  task.VideoURL,
		"updated_at": task.UpdatedAt,
	})
	if err != nil {
		m.log.Error().Err(err).Str("task_id", task.ID).Msg("persist video task completion failed")
	}
}

// call signs and posts one provider request and decodes the shared response
// envelope. Non-success provider codes are permanent failures.
func (m *Manager) call(ctx context.Context, action string, payload any) (*providerResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("videotask: encode %s request: %w", action, err)
	}
	headers, err := signer.Sign(signer.Request{
		Method:    http.MethodPost,
		Host:      m.provider.Host,
		Path:      "/",
		Action:    action,
		Version:   apiVersion,
		Region:    m.provider.Region,
		Service:   m.provider.Service,
		AccessKey: m.provider.AccessKey,
		SecretKey: m.provider.SecretKey,
		Body:      body,
		Now:       m.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("videotask: sign %s request: %w", action, err)
	}

	url := fmt.Sprintf("https://%s/?Action=%s&Version=%s", m.provider.Host, action, apiVersion)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("videotask: build %s request: %w", action, err)
	}
	for name, values := range headers {
		for _, v := range values {
			httpReq.Header.Set(name, v)
		}
	}
	httpReq.Host = m.provider.Host

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("videotask: %s call: %v: %w", action, err, domain.ClassifyTransportError(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("videotask: read %s response: %w", action, domain.ErrUpstreamTransient)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("videotask: %s status %d: %s: %w", action, resp.StatusCode, strings.TrimSpace(string(raw)), domain.ClassifyHTTPStatus(resp.StatusCode))
	}

	var parsed providerResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("videotask: decode %s response: %w", action, domain.ErrParseFailed)
	}
	if parsed.Code != codeOK {
		return nil, fmt.Errorf("videotask: %s provider code %d: %s: %w", action, parsed.Code, parsed.Message, domain.ErrUpstreamPermanent)
	}
	return &parsed, nil
}
