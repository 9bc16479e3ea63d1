package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/yoppiari/loopingflow/internal/middleware"
	"github.com/yoppiari/loopingflow/internal/sqlinline"
)

// jobsTestSQL routes the queries the job handlers issue. Unconfigured
// queries answer with no rows.
type jobsTestSQL struct {
	assetExists   bool
	balance       int
	insufficient  bool
	cancellable   bool
	activateFails bool

	debits       []int
	inserted     bool
	refunds      int
	layerInserts int
	events       []string // write order of job, layer and activation rows
}

func (f *jobsTestSQL) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (f *jobsTestSQL) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}

func (f *jobsTestSQL) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	switch query {
	case sqlinline.QAssetByID:
		if !f.assetExists {
			return NewSimpleRow(nil)
		}
		return NewSimpleRow(func(dest ...any) error {
			setString(dest[0], "a0b54cf0-8e75-4df9-93e2-1a6fd5e0c001")
			setString(dest[1], "user-1")
			setString(dest[2], "source")
			setString(dest[3], "sources/user-1/clip.mp4")
			setString(dest[4], "clip.mp4")
			setString(dest[5], "video/mp4")
			setInt64(dest[6], 1<<20)
			setFloat(dest[7], 8)
			setInt(dest[8], 1920)
			setInt(dest[9], 1080)
			setBool(dest[10], true)
			setTime(dest[11], time.Now())
			return nil
		})
	case sqlinline.QDebitCredits:
		if f.insufficient {
			return NewSimpleRow(nil)
		}
		amount := args[1].(int)
		f.debits = append(f.debits, amount)
		return NewSimpleRow(func(dest ...any) error {
			setInt(dest[0], f.balance-amount)
			return nil
		})
	case sqlinline.QRefundCredits:
		f.refunds++
		return NewSimpleRow(func(dest ...any) error {
			setInt(dest[0], f.balance)
			return nil
		})
	case sqlinline.QInsertJob:
		f.inserted = true
		f.events = append(f.events, "insert-job")
		id := args[0].(string)
		return NewSimpleRow(func(dest ...any) error {
			setString(dest[0], id)
			setTime(dest[1], time.Now())
			return nil
		})
	case sqlinline.QInsertAudioLayer:
		f.layerInserts++
		f.events = append(f.events, "insert-layer")
		id := args[0].(string)
		return NewSimpleRow(func(dest ...any) error {
			setString(dest[0], id)
			return nil
		})
	case sqlinline.QActivateJob:
		if f.activateFails {
			return NewSimpleRow(nil)
		}
		f.events = append(f.events, "activate")
		return NewSimpleRow(func(dest ...any) error {
			setString(dest[0], args[0].(string))
			return nil
		})
	case sqlinline.QCancelJob:
		if !f.cancellable {
			return NewSimpleRow(nil)
		}
		return NewSimpleRow(func(dest ...any) error {
			setString(dest[0], args[0].(string))
			return nil
		})
	case sqlinline.QJobByID:
		return jobRowForTest()
	}
	return NewSimpleRow(nil)
}

// jobRowForTest answers QJobByID with a completed job record.
func jobRowForTest() SimpleRow {
	created := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	return NewSimpleRow(func(dest ...any) error {
		setString(dest[0], "0c1de111-3e5b-4a3f-9f11-61dbe77d9402")
		setString(dest[1], "user-1")
		setString(dest[2], "a0b54cf0-8e75-4df9-93e2-1a6fd5e0c001")
		setFloat(dest[3], 20)
		setString(dest[4], "simple")
		setFloat(dest[5], 1)
		setBool(dest[6], true)
		setBool(dest[7], true)
		setInt(dest[8], 100)
		setFloat(dest[9], 2)
		setFloat(dest[10], 2)
		setBool(dest[11], false)
		setInt(dest[12], 2)
		setString(dest[13], "completed")
		setTime(dest[17], created)
		return nil
	})
}

func setString(dest any, v string) {
	if p, ok := dest.(*string); ok {
		*p = v
	}
}

func setInt(dest any, v int) {
	if p, ok := dest.(*int); ok {
		*p = v
	}
}

func setInt64(dest any, v int64) {
	if p, ok := dest.(*int64); ok {
		*p = v
	}
}

func setFloat(dest any, v float64) {
	if p, ok := dest.(*float64); ok {
		*p = v
	}
}

func setBool(dest any, v bool) {
	if p, ok := dest.(*bool); ok {
		*p = v
	}
}

func setTime(dest any, v time.Time) {
	if p, ok := dest.(*time.Time); ok {
		*p = v
	}
}

func newJobsApp(sql *jobsTestSQL) *App {
	return NewApp(sql, zerolog.Nop())
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestJobsCreate_ChargesAndPersists(t *testing.T) {
	sqlFake := &jobsTestSQL{assetExists: true, balance: 10}
	app := newJobsApp(sqlFake)

	body := `{"source_asset_id":"a0b54cf0-8e75-4df9-93e2-1a6fd5e0c001","target_duration":20,"style":"simple"}`
	req := httptest.NewRequest("POST", "/v1/jobs", strings.NewReader(body))
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
	rr := httptest.NewRecorder()

	app.JobsCreate(rr, req)

	if rr.Code != 202 {
		t.Fatalf("status: got %d, want 202 (%s)", rr.Code, rr.Body.String())
	}
	if len(sqlFake.debits) != 1 || sqlFake.debits[0] != 2 {
		t.Fatalf("want one debit of 2 credits, got %v", sqlFake.debits)
	}
	if !sqlFake.inserted {
		t.Fatal("job row not inserted")
	}

	var resp struct {
		Job struct {
			Status         string `json:"status"`
			CreditsCharged int    `json:"credits_charged"`
		} `json:"job"`
		CreditBalance int `json:"credit_balance"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Job.Status != "pending" {
		t.Fatalf("status: got %q, want pending", resp.Job.Status)
	}
	if resp.Job.CreditsCharged != 2 || resp.CreditBalance != 8 {
		t.Fatalf("credits: charged=%d balance=%d", resp.Job.CreditsCharged, resp.CreditBalance)
	}
}

func TestJobsCreate_InlineAudioLayers(t *testing.T) {
	sqlFake := &jobsTestSQL{assetExists: true, balance: 10}
	app := newJobsApp(sqlFake)

	body := `{
		"source_asset_id": "a0b54cf0-8e75-4df9-93e2-1a6fd5e0c001",
		"target_duration": 20,
		"style": "simple",
		"audio_layers": [
			{"asset_id": "a0b54cf0-8e75-4df9-93e2-1a6fd5e0c001", "volume": 80, "fade_in": 1}
		]
	}`
	req := httptest.NewRequest("POST", "/v1/jobs", strings.NewReader(body))
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
	rr := httptest.NewRecorder()

	app.JobsCreate(rr, req)

	if rr.Code != 202 {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	if sqlFake.layerInserts != 1 {
		t.Fatalf("layer inserts: got %d, want 1", sqlFake.layerInserts)
	}
}

func TestJobsCreate_ActivatesAfterLayersLand(t *testing.T) {
	// The job row goes in as a draft and only flips to pending once every
	// layer row is written, so a worker can never claim a half-built job.
	sqlFake := &jobsTestSQL{assetExists: true, balance: 10}
	app := newJobsApp(sqlFake)

	body := `{
		"source_asset_id": "a0b54cf0-8e75-4df9-93e2-1a6fd5e0c001",
		"target_duration": 20,
		"style": "simple",
		"audio_layers": [
			{"asset_id": "a0b54cf0-8e75-4df9-93e2-1a6fd5e0c001"},
			{"asset_id": "a0b54cf0-8e75-4df9-93e2-1a6fd5e0c001", "muted": true}
		]
	}`
	req := httptest.NewRequest("POST", "/v1/jobs", strings.NewReader(body))
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
	rr := httptest.NewRecorder()

	app.JobsCreate(rr, req)

	if rr.Code != 202 {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	want := []string{"insert-job", "insert-layer", "insert-layer", "activate"}
	if len(sqlFake.events) != len(want) {
		t.Fatalf("events: got %v, want %v", sqlFake.events, want)
	}
	for i := range want {
		if sqlFake.events[i] != want[i] {
			t.Fatalf("events: got %v, want %v", sqlFake.events, want)
		}
	}
	var resp struct {
		Job struct {
			Status string `json:"status"`
		} `json:"job"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Job.Status != "pending" {
		t.Fatalf("status: got %q, want pending", resp.Job.Status)
	}
}

func TestJobsCreate_FailedActivationRefunds(t *testing.T) {
	sqlFake := &jobsTestSQL{assetExists: true, balance: 10, activateFails: true, cancellable: true}
	app := newJobsApp(sqlFake)

	body := `{"source_asset_id":"a0b54cf0-8e75-4df9-93e2-1a6fd5e0c001","target_duration":20,"style":"simple"}`
	req := httptest.NewRequest("POST", "/v1/jobs", strings.NewReader(body))
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
	rr := httptest.NewRecorder()

	app.JobsCreate(rr, req)

	if rr.Code != 409 {
		t.Fatalf("status: got %d, want 409 (%s)", rr.Code, rr.Body.String())
	}
	if sqlFake.refunds != 1 {
		t.Fatalf("refunds: got %d, want 1", sqlFake.refunds)
	}
}

func TestJobsCreate_LongTargetCostsMore(t *testing.T) {
	sqlFake := &jobsTestSQL{assetExists: true, balance: 10}
	app := newJobsApp(sqlFake)

	// 1801s = three 15-minute blocks started = 6 credits.
	body := `{"source_asset_id":"a0b54cf0-8e75-4df9-93e2-1a6fd5e0c001","target_duration":1801,"style":"crossfade"}`
	req := httptest.NewRequest("POST", "/v1/jobs", strings.NewReader(body))
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
	rr := httptest.NewRecorder()

	app.JobsCreate(rr, req)

	if rr.Code != 202 {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	if len(sqlFake.debits) != 1 || sqlFake.debits[0] != 6 {
		t.Fatalf("want debit of 6 credits, got %v", sqlFake.debits)
	}
}

func TestJobsCreate_InsufficientCredits(t *testing.T) {
	sqlFake := &jobsTestSQL{assetExists: true, insufficient: true}
	app := newJobsApp(sqlFake)

	body := `{"source_asset_id":"a0b54cf0-8e75-4df9-93e2-1a6fd5e0c001","target_duration":20,"style":"simple"}`
	req := httptest.NewRequest("POST", "/v1/jobs", strings.NewReader(body))
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
	rr := httptest.NewRecorder()

	app.JobsCreate(rr, req)

	if rr.Code != 402 {
		t.Fatalf("status: got %d, want 402", rr.Code)
	}
	if sqlFake.inserted {
		t.Fatal("job must not be inserted without a successful charge")
	}
}

func TestJobsCreate_UnknownAssetSkipsCharge(t *testing.T) {
	sqlFake := &jobsTestSQL{assetExists: false, balance: 10}
	app := newJobsApp(sqlFake)

	body := `{"source_asset_id":"a0b54cf0-8e75-4df9-93e2-1a6fd5e0c001","target_duration":20,"style":"simple"}`
	req := httptest.NewRequest("POST", "/v1/jobs", strings.NewReader(body))
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
	rr := httptest.NewRecorder()

	app.JobsCreate(rr, req)

	if rr.Code != 404 {
		t.Fatalf("status: got %d, want 404", rr.Code)
	}
	if len(sqlFake.debits) != 0 {
		t.Fatalf("no debit expected, got %v", sqlFake.debits)
	}
}

func TestJobsCreate_RejectsBadStyle(t *testing.T) {
	app := newJobsApp(&jobsTestSQL{assetExists: true, balance: 10})

	body := `{"source_asset_id":"a0b54cf0-8e75-4df9-93e2-1a6fd5e0c001","target_duration":20,"style":"zigzag"}`
	req := httptest.NewRequest("POST", "/v1/jobs", strings.NewReader(body))
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
	rr := httptest.NewRecorder()

	app.JobsCreate(rr, req)

	if rr.Code != 400 {
		t.Fatalf("status: got %d, want 400", rr.Code)
	}
}

func TestJobsCreate_RequiresAuth(t *testing.T) {
	app := newJobsApp(&jobsTestSQL{})

	req := httptest.NewRequest("POST", "/v1/jobs", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()

	app.JobsCreate(rr, req)

	if rr.Code != 401 {
		t.Fatalf("status: got %d, want 401", rr.Code)
	}
}

func TestJobCancel_TerminalJobConflicts(t *testing.T) {
	// Cancel finds no cancellable row; the follow-up lookup sees a
	// completed job, which maps to a conflict.
	sqlFake := &jobsTestSQL{cancellable: false}
	app := newJobsApp(sqlFake)

	req := httptest.NewRequest("POST", "/v1/jobs/0c1de111-3e5b-4a3f-9f11-61dbe77d9402/cancel", nil)
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
	req = withURLParam(req, "job_id", "0c1de111-3e5b-4a3f-9f11-61dbe77d9402")
	rr := httptest.NewRecorder()

	app.JobCancel(rr, req)

	if rr.Code != 409 {
		t.Fatalf("status: got %d, want 409 (%s)", rr.Code, rr.Body.String())
	}
}

func TestJobCancel_PendingJob(t *testing.T) {
	sqlFake := &jobsTestSQL{cancellable: true}
	app := newJobsApp(sqlFake)

	req := httptest.NewRequest("POST", "/v1/jobs/0c1de111-3e5b-4a3f-9f11-61dbe77d9402/cancel", nil)
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
	req = withURLParam(req, "job_id", "0c1de111-3e5b-4a3f-9f11-61dbe77d9402")
	rr := httptest.NewRecorder()

	app.JobCancel(rr, req)

	if rr.Code != 200 {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "cancelled" {
		t.Fatalf("status field: %v", resp["status"])
	}
}

func TestJobStatus_CompletedReportsFullProgress(t *testing.T) {
	app := newJobsApp(&jobsTestSQL{})

	req := httptest.NewRequest("GET", "/v1/jobs/0c1de111-3e5b-4a3f-9f11-61dbe77d9402", nil)
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
	req = withURLParam(req, "job_id", "0c1de111-3e5b-4a3f-9f11-61dbe77d9402")
	rr := httptest.NewRecorder()

	app.JobStatus(rr, req)

	if rr.Code != 200 {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	var dto jobDTO
	if err := json.NewDecoder(rr.Body).Decode(&dto); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if dto.Status != "completed" || dto.Progress != 100 {
		t.Fatalf("got status=%s progress=%d", dto.Status, dto.Progress)
	}
}

func TestJobsEstimate(t *testing.T) {
	app := newJobsApp(&jobsTestSQL{})

	body := `{"target_duration":3600,"source_duration":8,"style":"crossfade","crossfade_duration":1}`
	req := httptest.NewRequest("POST", "/v1/jobs/estimate", strings.NewReader(body))
	rr := httptest.NewRecorder()

	app.JobsEstimate(rr, req)

	if rr.Code != 200 {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	var resp struct {
		Credits             int     `json:"credits"`
		RepeatCount         int     `json:"repeat_count"`
		TwoStage            bool    `json:"two_stage"`
		EffectiveTransition float64 `json:"effective_transition"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Credits != 8 {
		t.Fatalf("credits: got %d, want 8", resp.Credits)
	}
	if resp.RepeatCount != 450 || !resp.TwoStage {
		t.Fatalf("plan summary: %+v", resp)
	}
	if resp.EffectiveTransition != 1 {
		t.Fatalf("effective transition: got %v, want 1", resp.EffectiveTransition)
	}
}
