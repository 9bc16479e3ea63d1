package orchestrator

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/yoppiari/loopingflow/internal/domain"
	"github.com/yoppiari/loopingflow/internal/ffmpeg"
	"github.com/yoppiari/loopingflow/internal/probe"
)

type fakeStore struct {
	job    *domain.GenerationJob
	asset  *domain.MediaAsset
	layers []domain.AudioLayer

	statusReads  []domain.JobStatus
	completed    bool
	failed       bool
	failMessage  string
	failErr      error
	createdAsset *domain.MediaAsset
	probeCached  bool
}

func (s *fakeStore) Job(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	return s.job, nil
}

func (s *fakeStore) JobStatus(ctx context.Context, jobID string) (domain.JobStatus, error) {
	if len(s.statusReads) == 0 {
		return domain.JobStatusProcessing, nil
	}
	status := s.statusReads[0]
	s.statusReads = s.statusReads[1:]
	return status, nil
}

func (s *fakeStore) MarkCompleted(ctx context.Context, jobID, outputAssetID, outputKey string) error {
	s.completed = true
	return nil
}

func (s *fakeStore) MarkFailed(ctx context.Context, jobID, message string) error {
	if s.failErr != nil {
		return s.failErr
	}
	s.failed = true
	s.failMessage = message
	return nil
}

func (s *fakeStore) ClaimNextPending(ctx context.Context) (*domain.GenerationJob, error) {
	return s.job, nil
}

func (s *fakeStore) ClaimPending(ctx context.Context, jobID string) (bool, error) {
	return true, nil
}

func (s *fakeStore) AudioLayers(ctx context.Context, jobID string) ([]domain.AudioLayer, error) {
	return s.layers, nil
}

func (s *fakeStore) Asset(ctx context.Context, assetID string) (*domain.MediaAsset, error) {
	return s.asset, nil
}

func (s *fakeStore) CacheProbe(ctx context.Context, assetID string, duration float64, width, height int, hasAudio bool) error {
	s.probeCached = true
	return nil
}

func (s *fakeStore) CreateAsset(ctx context.Context, asset *domain.MediaAsset) error {
	s.createdAsset = asset
	return nil
}

type fakeCredits struct {
	refunds []int
}

func (c *fakeCredits) Refund(ctx context.Context, userID string, amount int, reason, jobID string) (int, error) {
	c.refunds = append(c.refunds, amount)
	return amount, nil
}

type fakeProber struct {
	result *probe.Result
	calls  int
}

func (p *fakeProber) Probe(ctx context.Context, path string) (*probe.Result, error) {
	p.calls++
	return p.result, nil
}

type fakeRunner struct {
	invocations [][]string
	failOn      int // 1-based invocation index to fail at, 0 = never
}

func (r *fakeRunner) Run(ctx context.Context, args []string, outputPath string, onProgress func(float64)) (*ffmpeg.Report, error) {
	r.invocations = append(r.invocations, args)
	if r.failOn > 0 && len(r.invocations) == r.failOn {
		return nil, &ffmpeg.ExecError{ExitCode: 1, Stderr: "Error while decoding stream"}
	}
	if onProgress != nil {
		onProgress(1.5)
	}
	// The import step renames this file into the store.
	os.WriteFile(outputPath, []byte("x"), 0o644)
	return &ffmpeg.Report{OutputPath: outputPath, WallClockMillis: 10}, nil
}

type fakeFiles struct{}

func (fakeFiles) Path(key string) (string, error) { return "/media/" + key, nil }

func (fakeFiles) ImportFile(ctx context.Context, key, srcPath string) (string, int64, error) {
	os.Remove(srcPath)
	return key, 1024, nil
}

type fakeProgress struct {
	sets    []int
	cleared bool
}

func (p *fakeProgress) Set(ctx context.Context, jobID string, percent int) {
	p.sets = append(p.sets, percent)
}

func (p *fakeProgress) Clear(ctx context.Context, jobID string) { p.cleared = true }

func testJob() *domain.GenerationJob {
	return &domain.GenerationJob{
		ID:             "job-1",
		UserID:         "user-1",
		SourceAssetID:  "asset-1",
		TargetDuration: 20,
		Style:          domain.StyleSimple,
		MasterVolume:   100,
		CreditsCharged: 2,
		Status:         domain.JobStatusProcessing,
	}
}

func testAsset(probed bool) *domain.MediaAsset {
	a := &domain.MediaAsset{
		ID: "asset-1", UserID: "user-1", Kind: domain.AssetKindSource,
		StorageKey: "sources/user-1/clip.mp4", FileName: "clip.mp4",
		MimeType: "video/mp4", FileSize: 1 << 20, HasAudio: true,
	}
	if probed {
		a.Duration = 8
		a.Width = 1920
		a.Height = 1080
	}
	return a
}

func newTestOrchestrator(st *fakeStore, cr *fakeCredits, pr *fakeProber, rn *fakeRunner, pg *fakeProgress) *Orchestrator {
	return &Orchestrator{
		Store:    st,
		Credits:  cr,
		Prober:   pr,
		Runner:   rn,
		Files:    fakeFiles{},
		Progress: pg,
		Logger:   zerolog.Nop(),
	}
}

func TestProcess_Success(t *testing.T) {
	st := &fakeStore{job: testJob(), asset: testAsset(true)}
	cr := &fakeCredits{}
	rn := &fakeRunner{}
	pg := &fakeProgress{}
	o := newTestOrchestrator(st, cr, &fakeProber{}, rn, pg)

	if err := o.Process(context.Background(), st.job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !st.completed {
		t.Fatal("job not marked completed")
	}
	if len(cr.refunds) != 0 {
		t.Fatalf("success must not refund, got %v", cr.refunds)
	}
	if st.createdAsset == nil || st.createdAsset.Kind != domain.AssetKindOutput {
		t.Fatalf("output asset not recorded: %+v", st.createdAsset)
	}
	if !strings.HasPrefix(st.createdAsset.StorageKey, "outputs/user-1/") {
		t.Fatalf("output key: %q", st.createdAsset.StorageKey)
	}
	if !pg.cleared {
		t.Fatal("progress key not cleared")
	}
}

func TestProcess_FailureRefundsExactlyOnce(t *testing.T) {
	st := &fakeStore{job: testJob(), asset: testAsset(true)}
	cr := &fakeCredits{}
	rn := &fakeRunner{failOn: 1}
	o := newTestOrchestrator(st, cr, &fakeProber{}, rn, &fakeProgress{})

	if err := o.Process(context.Background(), st.job); err != nil {
		t.Fatalf("render failure must be absorbed, got %v", err)
	}
	if !st.failed {
		t.Fatal("job not marked failed")
	}
	if st.completed {
		t.Fatal("failed job must not complete")
	}
	if len(cr.refunds) != 1 || cr.refunds[0] != 2 {
		t.Fatalf("want exactly one refund of 2, got %v", cr.refunds)
	}
	if !strings.Contains(st.failMessage, "ffmpeg exited") {
		t.Fatalf("failure message: %q", st.failMessage)
	}
}

func TestProcess_CancelledBeforeRenderSkipsRefund(t *testing.T) {
	st := &fakeStore{
		job: testJob(), asset: testAsset(true),
		statusReads: []domain.JobStatus{domain.JobStatusCancelled},
	}
	cr := &fakeCredits{}
	rn := &fakeRunner{}
	o := newTestOrchestrator(st, cr, &fakeProber{}, rn, &fakeProgress{})

	if err := o.Process(context.Background(), st.job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rn.invocations) != 0 {
		t.Fatal("cancelled job must not reach the engine")
	}
	if st.failed || st.completed {
		t.Fatal("cancelled job must stay cancelled")
	}
	if len(cr.refunds) != 0 {
		t.Fatalf("cancellation must not refund, got %v", cr.refunds)
	}
}

func TestProcess_CancelRacingFailureSkipsRefund(t *testing.T) {
	st := &fakeStore{
		job: testJob(), asset: testAsset(true),
		failErr: domain.ErrInvalidState,
	}
	cr := &fakeCredits{}
	rn := &fakeRunner{failOn: 1}
	o := newTestOrchestrator(st, cr, &fakeProber{}, rn, &fakeProgress{})

	if err := o.Process(context.Background(), st.job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cr.refunds) != 0 {
		t.Fatalf("refund must be skipped when the job already left processing, got %v", cr.refunds)
	}
}

func TestProcess_TwoStageRender(t *testing.T) {
	job := testJob()
	job.TargetDuration = 3600 // 450 repeats of an 8s source
	st := &fakeStore{job: job, asset: testAsset(true)}
	pr := &fakeProber{result: &probe.Result{Duration: 200, HasVideo: true, HasAudio: true}}
	rn := &fakeRunner{}
	o := newTestOrchestrator(st, &fakeCredits{}, pr, rn, &fakeProgress{})

	if err := o.Process(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rn.invocations) != 2 {
		t.Fatalf("want base render + extend, got %d invocations", len(rn.invocations))
	}
	stageTwo := rn.invocations[1]
	if !containsArg(stageTwo, "concat") || !containsArg(stageTwo, "copy") {
		t.Fatalf("stage two must stream-copy through the concat demuxer: %v", stageTwo)
	}
	if !st.completed {
		t.Fatal("job not marked completed")
	}
}

func TestProcess_UsesCachedProbe(t *testing.T) {
	st := &fakeStore{job: testJob(), asset: testAsset(true)}
	pr := &fakeProber{result: &probe.Result{Duration: 8, HasVideo: true, HasAudio: true}}
	o := newTestOrchestrator(st, &fakeCredits{}, pr, &fakeRunner{}, &fakeProgress{})

	if err := o.Process(context.Background(), st.job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pr.calls != 0 {
		t.Fatalf("cached duration must skip the probe, got %d calls", pr.calls)
	}
}

func TestProcess_ProbesAndCachesWhenMissing(t *testing.T) {
	st := &fakeStore{job: testJob(), asset: testAsset(false)}
	pr := &fakeProber{result: &probe.Result{Duration: 8, HasVideo: true, HasAudio: true, SampleRate: 44100}}
	o := newTestOrchestrator(st, &fakeCredits{}, pr, &fakeRunner{}, &fakeProgress{})

	if err := o.Process(context.Background(), st.job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pr.calls != 1 {
		t.Fatalf("want one probe call, got %d", pr.calls)
	}
	if !st.probeCached {
		t.Fatal("probe result not cached on the asset")
	}
}

func TestProcess_RefundFailureSurfaces(t *testing.T) {
	st := &fakeStore{job: testJob(), asset: testAsset(true)}
	o := newTestOrchestrator(st, &fakeCredits{}, &fakeProber{}, &fakeRunner{failOn: 1}, &fakeProgress{})
	o.Credits = failingCredits{}

	if err := o.Process(context.Background(), st.job); err == nil {
		t.Fatal("a lost refund must surface to the caller")
	}
	if !st.failed {
		t.Fatal("job must still be marked failed")
	}
}

type failingCredits struct{}

func (failingCredits) Refund(ctx context.Context, userID string, amount int, reason, jobID string) (int, error) {
	return 0, errors.New("ledger unavailable")
}

func containsArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}
