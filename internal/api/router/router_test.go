package router

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"recruit-go/internal/api/handler"
	"recruit-go/internal/api/middleware"
	"recruit-go/internal/batch"
	"recruit-go/internal/bootstrap"
	"recruit-go/internal/service"
	"recruit-go/internal/storage"
	"recruit-go/internal/store"
	"recruit-go/internal/types"
	"recruit-go/pkg/ratelimit"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdminKey = "s3cret"

type testEnv struct {
	h         *server.Hertz
	store     *store.Store
	sched     *batch.ManualScheduler
	resumeDir string
	uploadDir string
}

func newTestEnv(t *testing.T, limiter *ratelimit.Registry) *testEnv {
	t.Helper()
	ctx := context.Background()

	st := store.New(storage.NewMemoryKV(), "test")
	require.NoError(t, bootstrap.NewBootstrapper(st, nil).InitializeStorage(ctx))

	resumeDir := t.TempDir()
	uploadDir := t.TempDir()
	objects, err := storage.NewLocalObjects(uploadDir, resumeDir)
	require.NoError(t, err)

	sched := batch.NewManualScheduler()
	batches := batch.NewService(st, batch.Config{ProcessingDelay: time.Second, CompletionDelay: 3 * time.Second},
		batch.WithScheduler(sched))
	t.Cleanup(batches.Close)

	h := server.New(server.WithHostPorts("127.0.0.1:0"))
	RegisterRoutes(h, Deps{
		Companies:   service.NewCompanyService(st, service.NoDelay{}),
		Users:       service.NewUserService(st, service.NoDelay{}),
		Jobs:        service.NewJobService(st, service.NoDelay{}),
		Candidates:  service.NewCandidateService(st, service.NoDelay{}),
		Matches:     service.NewJobMatchService(st, service.NoDelay{}, service.NewRandomScorer(7)),
		Batches:     batches,
		Reset:       bootstrap.NewResetService(st),
		Objects:     objects,
		AdminAPIKey: testAdminKey,
		RateLimiter: limiter,
	})
	return &testEnv{h: h, store: st, sched: sched, resumeDir: resumeDir, uploadDir: uploadDir}
}

func (e *testEnv) do(method, path, body string, headers ...ut.Header) *ut.ResponseRecorder {
	var b *ut.Body
	if body != "" {
		b = &ut.Body{Body: strings.NewReader(body), Len: len(body)}
		headers = append(headers, ut.Header{Key: "Content-Type", Value: "application/json"})
	}
	return ut.PerformRequest(e.h.Engine, method, path, b, headers...)
}

func decode[T any](t *testing.T, w *ut.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Result().Body(), &v), string(w.Result().Body()))
	return v
}

func TestHealthAndRequestID(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(consts.MethodGet, "/health", "")
	assert.Equal(t, consts.StatusOK, w.Code)
	assert.NotEmpty(t, w.Result().Header.Get(middleware.HeaderRequestID))

	w = env.do(consts.MethodGet, "/api/v1/health", "", ut.Header{Key: middleware.HeaderRequestID, Value: "req-42"})
	assert.Equal(t, consts.StatusOK, w.Code)
	assert.Equal(t, "req-42", w.Result().Header.Get(middleware.HeaderRequestID))
}

func TestCompanyCRUD(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(consts.MethodGet, "/api/v1/companies", "")
	require.Equal(t, consts.StatusOK, w.Code)
	assert.Len(t, decode[[]types.Company](t, w), 2)

	w = env.do(consts.MethodPost, "/api/v1/companies", `{"name":"Acme Robotics","industry":"Manufacturing"}`)
	require.Equal(t, consts.StatusCreated, w.Code)
	created := decode[types.Company](t, w)
	assert.NotEmpty(t, created.ID)

	w = env.do(consts.MethodPut, "/api/v1/companies/"+created.ID, `{"industry":"Robotics"}`)
	require.Equal(t, consts.StatusOK, w.Code)
	updated := decode[types.Company](t, w)
	assert.Equal(t, "Robotics", updated.Industry)
	assert.Equal(t, "Acme Robotics", updated.Name)

	w = env.do(consts.MethodGet, "/api/v1/companies?q=acme", "")
	require.Equal(t, consts.StatusOK, w.Code)
	assert.Len(t, decode[[]types.Company](t, w), 1)

	w = env.do(consts.MethodDelete, "/api/v1/companies/"+created.ID, "")
	assert.Equal(t, consts.StatusNoContent, w.Code)

	w = env.do(consts.MethodGet, "/api/v1/companies/"+created.ID, "")
	assert.Equal(t, consts.StatusNotFound, w.Code)
}

func TestBadJSONAndValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(consts.MethodPost, "/api/v1/companies", `{not json`)
	assert.Equal(t, consts.StatusBadRequest, w.Code)

	w = env.do(consts.MethodPost, "/api/v1/users", `{"name":"","email":"broken","role":"root"}`)
	require.Equal(t, consts.StatusBadRequest, w.Code)
	resp := decode[struct {
		Error    string   `json:"error"`
		Messages []string `json:"messages"`
	}](t, w)
	assert.Contains(t, resp.Messages, "name is required")
	assert.Contains(t, resp.Messages, `role "root" is not supported`)
}

func TestListFilters(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(consts.MethodGet, "/api/v1/jobs?company_id=company-2", "")
	require.Equal(t, consts.StatusOK, w.Code)
	for _, j := range decode[[]types.Job](t, w) {
		assert.Equal(t, "company-2", j.CompanyID)
	}

	w = env.do(consts.MethodGet, "/api/v1/users?company_id=company-1", "")
	require.Equal(t, consts.StatusOK, w.Code)
	users := decode[[]types.User](t, w)
	require.NotEmpty(t, users)
	for _, u := range users {
		assert.Equal(t, "company-1", u.CompanyID)
	}
}

func TestMatchEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(consts.MethodPost, "/api/v1/matches/calculate", `{"job_id":"job-1","candidate_id":"candidate-1"}`)
	require.Equal(t, consts.StatusCreated, w.Code)
	m := decode[types.JobMatch](t, w)
	assert.GreaterOrEqual(t, m.Score, service.MinMatchScore)
	assert.LessOrEqual(t, m.Score, service.MaxMatchScore)

	w = env.do(consts.MethodPut, "/api/v1/matches/"+m.ID+"/status", `{"status":"interviewing"}`)
	require.Equal(t, consts.StatusOK, w.Code)
	assert.Equal(t, types.MatchStatus("interviewing"), decode[types.JobMatch](t, w).Status)

	w = env.do(consts.MethodPut, "/api/v1/matches/"+m.ID+"/status", `{"status":"bogus"}`)
	assert.Equal(t, consts.StatusBadRequest, w.Code)

	w = env.do(consts.MethodPost, "/api/v1/matches/calculate", `{"job_id":"job-404","candidate_id":"candidate-1"}`)
	assert.Equal(t, consts.StatusNotFound, w.Code)

	w = env.do(consts.MethodPost, "/api/v1/matches/bulk", `{"job_id":"job-2","candidate_ids":["candidate-1","ghost","candidate-2"]}`)
	require.Equal(t, consts.StatusCreated, w.Code)
	assert.Len(t, decode[[]types.JobMatch](t, w), 2)

	w = env.do(consts.MethodGet, "/api/v1/matches?job_id=job-2&candidate_id=candidate-2", "")
	require.Equal(t, consts.StatusOK, w.Code)
	assert.Len(t, decode[[]types.JobMatch](t, w), 1)

	w = env.do(consts.MethodGet, "/api/v1/candidates?job_id=job-2", "")
	require.Equal(t, consts.StatusOK, w.Code)
	assert.Len(t, decode[[]types.Candidate](t, w), 2)

	w = env.do(consts.MethodDelete, "/api/v1/matches/"+m.ID, "")
	assert.Equal(t, consts.StatusNoContent, w.Code)
}

func multipartUpload(t *testing.T, fields map[string]string, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestBatchUploadLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	body, contentType := multipartUpload(t, map[string]string{
		"company_id":  "company-1",
		"job_id":      "job-1",
		"uploaded_by": "user-2",
	}, "../../candidates.zip", "zip-bytes")
	w := ut.PerformRequest(env.h.Engine, consts.MethodPost, "/api/v1/batch-uploads",
		&ut.Body{Body: body, Len: body.Len()}, ut.Header{Key: "Content-Type", Value: contentType})
	require.Equal(t, consts.StatusCreated, w.Code, string(w.Result().Body()))
	upload := decode[types.BatchUpload](t, w)
	assert.Equal(t, types.BatchStatusPending, upload.Status)
	assert.Equal(t, "candidates.zip", upload.FileName)
	require.NotNil(t, upload.FileSize)
	assert.Equal(t, int64(len("zip-bytes")), *upload.FileSize)
	assert.NotEmpty(t, upload.FileMD5)
	assert.FileExists(t, filepath.Join(env.uploadDir, filepath.FromSlash(upload.ObjectKey)))

	env.sched.Advance(time.Second)
	w = env.do(consts.MethodGet, "/api/v1/batch-uploads/"+upload.ID, "")
	require.Equal(t, consts.StatusOK, w.Code)
	assert.Equal(t, types.BatchStatusProcessing, decode[types.BatchUpload](t, w).Status)

	env.sched.Advance(3 * time.Second)
	w = env.do(consts.MethodGet, "/api/v1/batch-uploads/"+upload.ID, "")
	require.Equal(t, consts.StatusOK, w.Code)
	done := decode[types.BatchUpload](t, w)
	assert.Equal(t, types.BatchStatusCompleted, done.Status)
	require.NotNil(t, done.TotalCandidates)

	w = env.do(consts.MethodGet, "/api/v1/batch-uploads/"+upload.ID+"/candidates", "")
	require.Equal(t, consts.StatusOK, w.Code)
	assert.Len(t, decode[[]types.BatchCandidate](t, w), *done.TotalCandidates)

	w = env.do(consts.MethodPost, "/api/v1/batch-uploads/"+upload.ID+"/cancel", "")
	assert.Equal(t, consts.StatusConflict, w.Code)

	w = env.do(consts.MethodPost, "/api/v1/batch-uploads/"+upload.ID+"/retry", "")
	assert.Equal(t, consts.StatusConflict, w.Code)

	w = env.do(consts.MethodGet, "/api/v1/batch-uploads?company_id=company-1", "")
	require.Equal(t, consts.StatusOK, w.Code)
	assert.Len(t, decode[[]types.BatchUpload](t, w), 1)

	w = env.do(consts.MethodGet, "/api/v1/batch-uploads/missing", "")
	assert.Equal(t, consts.StatusNotFound, w.Code)
}

func TestBatchUploadCancel(t *testing.T) {
	env := newTestEnv(t, nil)

	body, contentType := multipartUpload(t, map[string]string{"company_id": "company-1", "job_id": "job-1"}, "resume.pdf", "%PDF")
	w := ut.PerformRequest(env.h.Engine, consts.MethodPost, "/api/v1/batch-uploads",
		&ut.Body{Body: body, Len: body.Len()}, ut.Header{Key: "Content-Type", Value: contentType})
	require.Equal(t, consts.StatusCreated, w.Code)
	upload := decode[types.BatchUpload](t, w)

	w = env.do(consts.MethodPost, "/api/v1/batch-uploads/"+upload.ID+"/cancel", "")
	require.Equal(t, consts.StatusOK, w.Code)
	cancelled := decode[types.BatchUpload](t, w)
	assert.Equal(t, types.BatchStatusFailed, cancelled.Status)
	assert.Equal(t, batch.CancelledMessage, cancelled.ErrorMessage)

	env.sched.Advance(10 * time.Second)
	w = env.do(consts.MethodGet, "/api/v1/batch-uploads/"+upload.ID, "")
	assert.Equal(t, types.BatchStatusFailed, decode[types.BatchUpload](t, w).Status)

	w = env.do(consts.MethodPost, "/api/v1/batch-uploads/"+upload.ID+"/retry", "")
	require.Equal(t, consts.StatusOK, w.Code)
	assert.Equal(t, types.BatchStatusPending, decode[types.BatchUpload](t, w).Status)
}

func TestBatchUploadRequiresFields(t *testing.T) {
	env := newTestEnv(t, nil)

	body, contentType := multipartUpload(t, map[string]string{"company_id": "company-1"}, "resume.pdf", "%PDF")
	w := ut.PerformRequest(env.h.Engine, consts.MethodPost, "/api/v1/batch-uploads",
		&ut.Body{Body: body, Len: body.Len()}, ut.Header{Key: "Content-Type", Value: contentType})
	assert.Equal(t, consts.StatusBadRequest, w.Code)

	body, contentType = multipartUpload(t, map[string]string{"company_id": "company-1", "job_id": "job-1"}, "", "")
	w = ut.PerformRequest(env.h.Engine, consts.MethodPost, "/api/v1/batch-uploads",
		&ut.Body{Body: body, Len: body.Len()}, ut.Header{Key: "Content-Type", Value: contentType})
	assert.Equal(t, consts.StatusBadRequest, w.Code)
}

func TestServeResume(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(env.resumeDir, "emma_chen.pdf"), []byte("%PDF-1.4 test"), 0644))

	w := env.do(consts.MethodGet, "/api/resumes/emma_chen.pdf", "")
	require.Equal(t, consts.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Result().Header.Get("Content-Type"))
	assert.Equal(t, `inline; filename="emma_chen.pdf"`, w.Result().Header.Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.4 test", string(w.Result().Body()))

	w = env.do(consts.MethodGet, "/api/resumes/missing.pdf", "")
	assert.Equal(t, consts.StatusNotFound, w.Code)

	w = env.do(consts.MethodGet, "/api/resumes/..%2Fsecret.pdf", "")
	assert.Equal(t, consts.StatusNotFound, w.Code)
}

func TestAdminRequiresKey(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(consts.MethodGet, "/api/v1/admin/stats", "")
	assert.Equal(t, consts.StatusUnauthorized, w.Code)

	w = env.do(consts.MethodGet, "/api/v1/admin/stats", "", ut.Header{Key: middleware.HeaderAdminKey, Value: "wrong"})
	assert.Equal(t, consts.StatusUnauthorized, w.Code)

	w = env.do(consts.MethodGet, "/api/v1/admin/stats", "", ut.Header{Key: middleware.HeaderAdminKey, Value: testAdminKey})
	require.Equal(t, consts.StatusOK, w.Code)
	stats := decode[bootstrap.DatabaseStats](t, w)
	assert.Equal(t, 2, stats.Collections["companies"])
}

func TestAdminResetAndExport(t *testing.T) {
	env := newTestEnv(t, nil)
	key := ut.Header{Key: middleware.HeaderAdminKey, Value: testAdminKey}

	w := env.do(consts.MethodPost, "/api/v1/companies", `{"name":"Temp Co"}`)
	require.Equal(t, consts.StatusCreated, w.Code)

	w = env.do(consts.MethodPost, "/api/v1/admin/reset", "", key)
	require.Equal(t, consts.StatusOK, w.Code)

	w = env.do(consts.MethodGet, "/api/v1/companies", "")
	assert.Len(t, decode[[]types.Company](t, w), 2)

	w = env.do(consts.MethodGet, "/api/v1/admin/export", "", key)
	require.Equal(t, consts.StatusOK, w.Code)
	assert.Contains(t, w.Result().Header.Get("Content-Disposition"), "recruit-backup-")
	exported := decode[map[string][]map[string]any](t, w)
	assert.Len(t, exported["companies"], 2)

	w = env.do(consts.MethodGet, "/api/v1/admin/export/users.csv", "", key)
	require.Equal(t, consts.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(string(w.Result().Body()), "ID,Name,Email,Role"))
}

func TestCreateRejectsExistingID(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(consts.MethodPost, "/api/v1/companies", `{"id":"company-1","name":"Copycat Inc"}`)
	assert.Equal(t, consts.StatusConflict, w.Code)

	w = env.do(consts.MethodGet, "/api/v1/companies", "")
	require.Equal(t, consts.StatusOK, w.Code)
	companies := decode[[]types.Company](t, w)
	assert.Len(t, companies, 2)
	for _, c := range companies {
		if c.ID == "company-1" {
			assert.NotEqual(t, "Copycat Inc", c.Name)
		}
	}
}

func TestUpdateWithWrongFieldTypeLeavesRecord(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(consts.MethodGet, "/api/v1/jobs/job-1", "")
	require.Equal(t, consts.StatusOK, w.Code)
	before := decode[types.Job](t, w)

	w = env.do(consts.MethodPut, "/api/v1/jobs/job-1", `{"title":5}`)
	assert.Equal(t, consts.StatusBadRequest, w.Code)

	w = env.do(consts.MethodGet, "/api/v1/jobs/job-1", "")
	require.Equal(t, consts.StatusOK, w.Code)
	assert.Equal(t, before.Title, decode[types.Job](t, w).Title)

	w = env.do(consts.MethodGet, "/api/v1/jobs", "")
	require.Equal(t, consts.StatusOK, w.Code)
	assert.Len(t, decode[[]types.Job](t, w), env.store.GetCollectionSize(context.Background(), "jobs"))
}

func createUpload(t *testing.T, env *testEnv) types.BatchUpload {
	t.Helper()
	body, contentType := multipartUpload(t, map[string]string{"company_id": "company-1", "job_id": "job-1"}, "candidates.zip", "zip-bytes")
	w := ut.PerformRequest(env.h.Engine, consts.MethodPost, "/api/v1/batch-uploads",
		&ut.Body{Body: body, Len: body.Len()}, ut.Header{Key: "Content-Type", Value: contentType})
	require.Equal(t, consts.StatusCreated, w.Code, string(w.Result().Body()))
	return decode[types.BatchUpload](t, w)
}

func TestBatchUploadStatusEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	upload := createUpload(t, env)

	w := env.do(consts.MethodPut, "/api/v1/batch-uploads/"+upload.ID+"/status", `{"status":"processing"}`)
	require.Equal(t, consts.StatusOK, w.Code)
	assert.Equal(t, types.BatchStatusProcessing, decode[types.BatchUpload](t, w).Status)

	w = env.do(consts.MethodPut, "/api/v1/batch-uploads/"+upload.ID+"/status", `{"status":"archived"}`)
	assert.Equal(t, consts.StatusBadRequest, w.Code)

	w = env.do(consts.MethodPut, "/api/v1/batch-uploads/missing/status", `{"status":"failed"}`)
	assert.Equal(t, consts.StatusNotFound, w.Code)
}

func TestBatchUploadWatch(t *testing.T) {
	env := newTestEnv(t, nil)
	upload := createUpload(t, env)

	w := env.do(consts.MethodGet, "/api/v1/batch-uploads/watch?timeout=20ms", "")
	require.Equal(t, consts.StatusOK, w.Code)
	idle := decode[handler.WatchResponse](t, w)
	assert.False(t, idle.Changed)
	require.Len(t, idle.Uploads, 1)

	w = env.do(consts.MethodGet, "/api/v1/batch-uploads/watch?timeout=soon", "")
	assert.Equal(t, consts.StatusBadRequest, w.Code)

	result := make(chan *ut.ResponseRecorder, 1)
	go func() {
		result <- env.do(consts.MethodGet, "/api/v1/batch-uploads/watch?timeout=5s&company_id=company-1", "")
	}()

	// 订阅建立之前的变更不会唤醒等待，持续推送直到返回
	var watched *ut.ResponseRecorder
	for watched == nil {
		env.do(consts.MethodPut, "/api/v1/batch-uploads/"+upload.ID+"/status", `{"status":"processing"}`)
		select {
		case watched = <-result:
		case <-time.After(10 * time.Millisecond):
		}
	}
	require.Equal(t, consts.StatusOK, watched.Code)
	changed := decode[handler.WatchResponse](t, watched)
	assert.True(t, changed.Changed)
	require.Len(t, changed.Uploads, 1)
	assert.Equal(t, types.BatchStatusProcessing, changed.Uploads[0].Status)
}

func TestAdminResetClearsBatchUploads(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	key := ut.Header{Key: middleware.HeaderAdminKey, Value: testAdminKey}

	createUpload(t, env)
	require.Equal(t, 1, env.store.GetCollectionSize(ctx, "batch_uploads"))

	w := env.do(consts.MethodPost, "/api/v1/admin/reset", "", key)
	require.Equal(t, consts.StatusOK, w.Code)

	w = env.do(consts.MethodGet, "/api/v1/batch-uploads", "")
	require.Equal(t, consts.StatusOK, w.Code)
	assert.Empty(t, decode[[]types.BatchUpload](t, w))

	env.sched.Advance(time.Minute)
	assert.Equal(t, 0, env.store.GetCollectionSize(ctx, "batch_uploads"))
	assert.Equal(t, 0, env.store.GetCollectionSize(ctx, "batch_candidates"))
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, ratelimit.NewRegistry(0.001, 1, time.Minute))

	w := env.do(consts.MethodGet, "/api/v1/companies", "")
	assert.Equal(t, consts.StatusOK, w.Code)

	w = env.do(consts.MethodGet, "/api/v1/companies", "")
	assert.Equal(t, consts.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Result().Header.Get("Retry-After"))

	// 健康检查不限流
	w = env.do(consts.MethodGet, "/health", "")
	assert.Equal(t, consts.StatusOK, w.Code)
}
