package videotask

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"storyreel/internal/domain"
	"storyreel/internal/store"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

type countingTransport struct {
	calls int
	fn    roundTripFunc
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.calls++
	return c.fn(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func testProvider() ProviderConfig {
	return ProviderConfig{
		Host:      "visual.example.com",
		Region:    "cn-north-1",
		Service:   "cv",
		ReqKey:    "jimeng_vgfm_i2v_l20",
		AccessKey: "AKTEST",
		SecretKey: "secret",
	}
}

func newTestManager(records store.RecordStore, transport http.RoundTripper) *Manager {
	return NewManager(ManagerOptions{
		Records:    records,
		HTTPClient: &http.Client{Transport: transport},
		Provider:   testProvider(),
		Now:        func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
		Logger:     zerolog.Nop(),
	})
}

func submitOK(taskID string) string {
	return fmt.Sprintf(`{"code":10000,"message":"ok","data":{"task_id":%q}}`, taskID)
}

func pollBody(status, videoURL string) string {
	return fmt.Sprintf(`{"code":10000,"message":"ok","data":{"task_id":"ext-1","status":%q,"video_url":%q}}`, status, videoURL)
}

func seedTask(t *testing.T, mem *store.MemoryStore, task domain.VideoTask) string {
	t.Helper()
	id, err := mem.Add(context.Background(), store.CollectionVideoTasks, task.OwnerID, task)
	if err != nil {
		t.Fatalf("seed task: %v", err)
	}
	return id
}

func loadTask(t *testing.T, mem *store.MemoryStore, id string) domain.VideoTask {
	t.Helper()
	rec, err := mem.Get(context.Background(), store.CollectionVideoTasks, id)
	if err != nil {
		t.Fatalf("load task: %v", err)
	}
	var task domain.VideoTask
	if err := json.Unmarshal(rec.Data, &task); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	return task
}

func TestSubmitRejectsEmptySelection(t *testing.T) {
	transport := &countingTransport{fn: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, submitOK("ext-1")), nil
	}}
	m := newTestManager(store.NewMemoryStore(), transport)

	_, err := m.Submit(context.Background(), SubmitParams{
		OwnerID:        "owner-1",
		DiaryID:        "diary-1",
		SelectedImages: []string{},
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if transport.calls != 0 {
		t.Fatalf("provider called %d times for invalid input", transport.calls)
	}
}

func TestSubmitBuildsSignedProviderRequest(t *testing.T) {
	var captured *http.Request
	var body submitRequest
	transport := &countingTransport{fn: func(req *http.Request) (*http.Response, error) {
		captured = req
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		return jsonResponse(http.StatusOK, submitOK("ext-1")), nil
	}}
	mem := store.NewMemoryStore()
	m := newTestManager(mem, transport)

	task, err := m.Submit(context.Background(), SubmitParams{
		OwnerID:        "owner-1",
		DiaryID:        "diary-1",
		SceneID:        "2",
		SelectedImages: []string{"https://img.example.com/a", "https://img.example.com/b"},
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	if captured.URL.String() != "https://visual.example.com/?Action=CVSync2AsyncSubmitTask&Version=2022-08-31" {
		t.Fatalf("url = %s", captured.URL)
	}
	if auth := captured.Header.Get("Authorization"); !strings.HasPrefix(auth, "HMAC-SHA256 Credential=AKTEST/") {
		t.Fatalf("authorization = %q", auth)
	}
	if captured.Header.Get("X-Date") == "" {
		t.Fatal("missing X-Date header")
	}
	if body.ReqKey != "jimeng_vgfm_i2v_l20" || body.ImageURL != "https://img.example.com/a" {
		t.Fatalf("body = %+v", body)
	}
	if body.Seed != -1 || body.AspectRatio != "16:9" {
		t.Fatalf("defaults not applied: %+v", body)
	}
	if body.ImageStrength != 0.8 || body.MotionStrength != 0.6 {
		t.Fatalf("strengths = %v/%v", body.ImageStrength, body.MotionStrength)
	}

	if task.ID == "" {
		t.Fatal("task has no record id")
	}
	saved := loadTask(t, mem, task.ID)
	if saved.Status != domain.VideoTaskProcessing {
		t.Fatalf("saved status = %s", saved.Status)
	}
	if saved.ExternalTaskID != "ext-1" {
		t.Fatalf("saved external id = %q", saved.ExternalTaskID)
	}
}

func TestSubmitProviderRejectionDoesNotPersist(t *testing.T) {
	transport := &countingTransport{fn: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"code":50411,"message":"invalid image"}`), nil
	}}
	mem := store.NewMemoryStore()
	m := newTestManager(mem, transport)

	_, err := m.Submit(context.Background(), SubmitParams{
		OwnerID:        "owner-1",
		DiaryID:        "diary-1",
		SelectedImages: []string{"https://img.example.com/a"},
	})
	if !errors.Is(err, domain.ErrUpstreamPermanent) {
		t.Fatalf("err = %v, want ErrUpstreamPermanent", err)
	}
	recs, _ := mem.Query(context.Background(), store.CollectionVideoTasks, store.Filter{}, store.QueryOptions{})
	if len(recs) != 0 {
		t.Fatalf("persisted %d tasks after provider rejection", len(recs))
	}
}

func TestSubmitClassifiesHTTPFailures(t *testing.T) {
	cases := map[int]error{
		http.StatusUnauthorized:        domain.ErrUpstreamPermanent,
		http.StatusForbidden:           domain.ErrUpstreamPermanent,
		http.StatusInternalServerError: domain.ErrUpstreamTransient,
		http.StatusTooManyRequests:     domain.ErrUpstreamTransient,
	}
	for status, want := range cases {
		transport := &countingTransport{fn: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(status, `{"message":"nope"}`), nil
		}}
		m := newTestManager(store.NewMemoryStore(), transport)
		_, err := m.Submit(context.Background(), SubmitParams{
			OwnerID:        "owner-1",
			DiaryID:        "diary-1",
			SelectedImages: []string{"https://img.example.com/a"},
		})
		if !errors.Is(err, want) {
			t.Fatalf("status %d: err = %v, want %v", status, err, want)
		}
	}
}

func TestPollTerminalTaskSkipsProvider(t *testing.T) {
	mem := store.NewMemoryStore()
	id := seedTask(t, mem, domain.VideoTask{
		ExternalTaskID: "ext-1",
		OwnerID:        "owner-1",
		DiaryID:        "diary-1",
		Status:         domain.VideoTaskCompleted,
		VideoURL:       "https://v.example.com/1.mp4",
	})
	transport := &countingTransport{fn: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, pollBody("processing", "")), nil
	}}
	m := newTestManager(mem, transport)

	task, err := m.Poll(context.Background(), id)
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if task.Status != domain.VideoTaskCompleted {
		t.Fatalf("status = %s, want completed", task.Status)
	}
	if transport.calls != 0 {
		t.Fatalf("provider called %d times for terminal task", transport.calls)
	}
}

func TestPollMissingExternalTaskFailsFast(t *testing.T) {
	mem := store.NewMemoryStore()
	id := seedTask(t, mem, domain.VideoTask{
		OwnerID: "owner-1",
		DiaryID: "diary-1",
		Status:  domain.VideoTaskProcessing,
	})
	transport := &countingTransport{fn: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, pollBody("processing", "")), nil
	}}
	m := newTestManager(mem, transport)

	_, err := m.Poll(context.Background(), id)
	if !errors.Is(err, domain.ErrMissingExternalTask) {
		t.Fatalf("err = %v, want ErrMissingExternalTask", err)
	}
	if transport.calls != 0 {
		t.Fatalf("provider called %d times without an external task id", transport.calls)
	}
}

func TestPollUnknownTask(t *testing.T) {
	m := newTestManager(store.NewMemoryStore(), &countingTransport{fn: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, pollBody("processing", "")), nil
	}})
	_, err := m.Poll(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPollCompletionPersistsOnce(t *testing.T) {
	mem := store.NewMemoryStore()
	id := seedTask(t, mem, domain.VideoTask{
		ExternalTaskID: "ext-1",
		OwnerID:        "owner-1",
		DiaryID:        "diary-1",
		Status:         domain.VideoTaskProcessing,
	})
	var body resultRequest
	transport := &countingTransport{fn: func(req *http.Request) (*http.Response, error) {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		return jsonResponse(http.StatusOK, pollBody("done", "https://v.example.com/1.mp4")), nil
	}}
	m := newTestManager(mem, transport)

	task, err := m.Poll(context.Background(), id)
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if body.TaskID != "ext-1" || body.ReqKey != "jimeng_vgfm_i2v_l20" {
		t.Fatalf("poll body = %+v", body)
	}
	if task.Status != domain.VideoTaskCompleted || task.VideoURL != "https://v.example.com/1.mp4" {
		t.Fatalf("task = %+v", task)
	}

	saved := loadTask(t, mem, id)
	if saved.Status != domain.VideoTaskCompleted || saved.VideoURL != "https://v.example.com/1.mp4" {
		t.Fatalf("saved = %+v", saved)
	}

	// A second poll now short-circuits on the persisted terminal state.
	if _, err := m.Poll(context.Background(), id); err != nil {
		t.Fatalf("second Poll returned error: %v", err)
	}
	if transport.calls != 1 {
		t.Fatalf("provider calls = %d, want 1", transport.calls)
	}
}

func TestPollProcessingIsNotPersisted(t *testing.T) {
	mem := store.NewMemoryStore()
	id := seedTask(t, mem, domain.VideoTask{
		ExternalTaskID: "ext-1",
		OwnerID:        "owner-1",
		DiaryID:        "diary-1",
		Status:         domain.VideoTaskProcessing,
	})
	transport := &countingTransport{fn: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, pollBody("in_queue", "")), nil
	}}
	m := newTestManager(mem, transport)

	before := loadTask(t, mem, id)
	task, err := m.Poll(context.Background(), id)
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if task.Status != domain.VideoTaskProcessing {
		t.Fatalf("status = %s", task.Status)
	}
	after := loadTask(t, mem, id)
	if before.UpdatedAt != after.UpdatedAt || after.Status != domain.VideoTaskProcessing {
		t.Fatal("in-flight poll mutated the stored record")
	}
}

func TestPollDoneWithoutURLFailsWithoutPersisting(t *testing.T) {
	mem := store.NewMemoryStore()
	id := seedTask(t, mem, domain.VideoTask{
		ExternalTaskID: "ext-1",
		OwnerID:        "owner-1",
		DiaryID:        "diary-1",
		Status:         domain.VideoTaskProcessing,
	})
	transport := &countingTransport{fn: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, pollBody("done", "")), nil
	}}
	m := newTestManager(mem, transport)

	task, err := m.Poll(context.Background(), id)
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if task.Status != domain.VideoTaskFailed {
		t.Fatalf("status = %s, want failed", task.Status)
	}
	if task.VideoURL != "" {
		t.Fatalf("video url = %q, want empty", task.VideoURL)
	}
	saved := loadTask(t, mem, id)
	if saved.Status != domain.VideoTaskProcessing {
		t.Fatalf("saved status = %s, want the untouched processing record", saved.Status)
	}
}
