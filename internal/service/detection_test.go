package service_test

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krushi/krushi-api/internal/config"
	"github.com/krushi/krushi-api/internal/inference"
	"github.com/krushi/krushi-api/internal/logging"
	"github.com/krushi/krushi-api/internal/model"
	"github.com/krushi/krushi-api/internal/service"
	"github.com/krushi/krushi-api/internal/service/servicetest"
)

// fakeGate reports awake after the first Wake.
type fakeGate struct {
	mu        sync.Mutex
	awake     bool
	wakeErr   error
	probes    int
	wakes     int
	bgWakes   int
	bgWakeErr error
}

func (g *fakeGate) Probe(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.probes++
	if !g.awake {
		return errors.New("connection refused")
	}
	return nil
}

func (g *fakeGate) Wake(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.wakes++
	if g.wakeErr != nil {
		return g.wakeErr
	}
	g.awake = true
	return nil
}

func (g *fakeGate) WakeInBackground() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bgWakes++
	return g.bgWakeErr
}

// fakePredictor replays results in order; the last one repeats.
type fakePredictor struct {
	mu      sync.Mutex
	results []predictResult
	calls   int
	crops   []string
	paths   []string
}

type predictResult struct {
	pred inference.Prediction
	err  error
}

func (p *fakePredictor) Predict(_ context.Context, path, _, crop string) (inference.Prediction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.results[min(p.calls, len(p.results)-1)]
	p.calls++
	p.crops = append(p.crops, crop)
	p.paths = append(p.paths, path)
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return r.pred, r.err
}

type recordedEvents struct {
	mu      sync.Mutex
	reports []model.DiseaseReport
	err     error
}

func (e *recordedEvents) ReportCreated(_ context.Context, rep model.DiseaseReport) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reports = append(e.reports, rep)
	return e.err
}

type detectEnv struct {
	store     *servicetest.Store
	objects   *servicetest.Objects
	gate      *fakeGate
	predictor *fakePredictor
	events    *recordedEvents
	detector  *service.Detector
	scratch   string
}

func newDetectEnv(t *testing.T, results ...predictResult) detectEnv {
	t.Helper()
	env := detectEnv{
		store:     servicetest.NewStore(),
		objects:   servicetest.NewObjects(),
		gate:      &fakeGate{awake: true},
		predictor: &fakePredictor{results: results},
		events:    &recordedEvents{},
		scratch:   t.TempDir(),
	}
	cfg := config.InferenceConfig{MaxAttempts: 3, RetryDelay: time.Millisecond, ScratchDir: env.scratch}
	env.detector = service.NewDetector(env.store, env.gate, env.predictor, env.objects, env.events, cfg, logging.Nop())
	return env
}

// assertScratchEmpty fails when a spooled upload outlived Detect.
func assertScratchEmpty(t *testing.T, env detectEnv) {
	t.Helper()
	entries, err := os.ReadDir(env.scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func jpeg() *service.Upload {
	b := []byte{0xff, 0xd8, 0xff, 0xe0, 'l', 'e', 'a', 'f'}
	return &service.Upload{Filename: "leaf.jpg", ContentType: "image/jpeg", Size: int64(len(b)), Body: bytes.NewReader(b)}
}

func ok(label string, confidence any) predictResult {
	return predictResult{pred: inference.Prediction{"success": true, "predicted_class": label, "confidence": confidence}}
}

func TestDetect_ColdServiceThenFractionConfidence(t *testing.T) {
	env := newDetectEnv(t, ok("Tomato___Early_blight", 0.87))
	env.gate.awake = false

	rep, err := env.detector.Detect(context.Background(), 7, service.DetectInput{CropName: "tomato", Image: jpeg()})
	require.NoError(t, err)

	assert.Equal(t, 1, env.gate.wakes)
	require.NotNil(t, rep.Confidence)
	assert.InDelta(t, 87.0, *rep.Confidence, 1e-9)
	assert.Equal(t, "Tomato___Early_blight", *rep.Prediction)
	assert.Equal(t, "tomato", *rep.CropName)
	assert.Equal(t, model.ReportPendingAction, rep.Status)
	assert.True(t, env.objects.Has(*rep.ImageKey))
	assert.Contains(t, *rep.ImageURL, *rep.ImageKey)
	assert.Equal(t, []string{"tomato"}, env.predictor.crops)
	assert.Equal(t, 1, env.store.ReportCount())
	require.Len(t, env.events.reports, 1)
	assert.Equal(t, rep.ID, env.events.reports[0].ID)

	_, err = os.Stat(env.predictor.paths[0])
	assert.True(t, os.IsNotExist(err), "scratch file removed")
}

func TestDetect_PercentConfidenceKept(t *testing.T) {
	env := newDetectEnv(t, ok("Healthy", "93.5"))

	rep, err := env.detector.Detect(context.Background(), 7, service.DetectInput{CropName: "grape", Image: jpeg()})
	require.NoError(t, err)
	assert.InDelta(t, 93.5, *rep.Confidence, 1e-9)
	assert.Zero(t, env.gate.wakes)
}

func TestDetect_RetriesTransientErrors(t *testing.T) {
	timeout := &net.OpError{Op: "dial", Err: errors.New("i/o timeout")}
	env := newDetectEnv(t,
		predictResult{err: timeout},
		predictResult{err: &inference.HTTPError{StatusCode: 503, Message: "loading"}},
		ok("Leaf_Mold", 0.5),
	)

	rep, err := env.detector.Detect(context.Background(), 7, service.DetectInput{CropName: "tomato", Image: jpeg()})
	require.NoError(t, err)
	assert.Equal(t, 3, env.predictor.calls)
	assert.InDelta(t, 50.0, *rep.Confidence, 1e-9)
}

func TestDetect_TransientExhaustedIsUnavailable(t *testing.T) {
	env := newDetectEnv(t, predictResult{err: &inference.HTTPError{StatusCode: 504, Message: "timeout"}})

	_, err := env.detector.Detect(context.Background(), 7, service.DetectInput{CropName: "tomato", Image: jpeg()})
	var de *service.DetectionError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, service.StagePredict, de.Stage)
	assert.ErrorIs(t, err, service.ErrServiceUnavailable)
	assert.Equal(t, 3, env.predictor.calls)
	assert.Zero(t, env.store.ReportCount())
	assert.Zero(t, env.objects.Len())
	assertScratchEmpty(t, env)
}

func TestDetect_RejectionNotRetried(t *testing.T) {
	env := newDetectEnv(t, predictResult{err: &inference.RejectedError{Message: "not a leaf"}})

	_, err := env.detector.Detect(context.Background(), 7, service.DetectInput{CropName: "tomato", Image: jpeg()})
	var de *service.DetectionError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, service.StagePredict, de.Stage)
	assert.NotErrorIs(t, err, service.ErrServiceUnavailable)
	assert.Equal(t, 1, env.predictor.calls)
	assertScratchEmpty(t, env)
}

func TestDetect_WakeBudgetExhausted(t *testing.T) {
	env := newDetectEnv(t, ok("x", 1.0))
	env.gate.awake = false
	env.gate.wakeErr = inference.ErrUnavailable

	_, err := env.detector.Detect(context.Background(), 7, service.DetectInput{CropName: "tomato", Image: jpeg()})
	var de *service.DetectionError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, service.StageWake, de.Stage)
	assert.ErrorIs(t, err, service.ErrServiceUnavailable)
	assert.Zero(t, env.predictor.calls)
	assertScratchEmpty(t, env)
}

func TestDetect_MissingInput(t *testing.T) {
	env := newDetectEnv(t, ok("x", 1.0))
	var ve *service.ValidationError

	_, err := env.detector.Detect(context.Background(), 7, service.DetectInput{CropName: "tomato"})
	require.ErrorAs(t, err, &ve)
	_, err = env.detector.Detect(context.Background(), 7, service.DetectInput{CropName: "  ", Image: jpeg()})
	require.ErrorAs(t, err, &ve)

	gif := &service.Upload{Filename: "a.gif", ContentType: "image/gif", Size: 3, Body: bytes.NewReader([]byte("GIF"))}
	_, err = env.detector.Detect(context.Background(), 7, service.DetectInput{CropName: "tomato", Image: gif})
	require.ErrorAs(t, err, &ve)
	assert.Zero(t, env.gate.probes)
}

func TestDetect_UnderstatedSizeRejectedWhileSpooling(t *testing.T) {
	env := newDetectEnv(t, ok("Healthy", 0.99))
	body := bytes.Repeat([]byte{0xff}, service.MaxImageBytes+1)
	img := &service.Upload{Filename: "leaf.jpg", ContentType: "image/jpeg", Size: 10, Body: bytes.NewReader(body)}

	_, err := env.detector.Detect(context.Background(), 7, service.DetectInput{CropName: "tomato", Image: img})
	var de *service.DetectionError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, service.StageSpool, de.Stage)
	var ve *service.ValidationError
	assert.ErrorAs(t, err, &ve)
	assert.Zero(t, env.predictor.calls)
	assertScratchEmpty(t, env)
}

func TestDetect_StorageFailure(t *testing.T) {
	env := newDetectEnv(t, ok("Healthy", 0.99))
	env.objects.FailUploads(errors.New("bucket gone"))

	_, err := env.detector.Detect(context.Background(), 7, service.DetectInput{CropName: "tomato", Image: jpeg()})
	var de *service.DetectionError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, service.StageStore, de.Stage)
	assert.Zero(t, env.store.ReportCount())
	assertScratchEmpty(t, env)
}

func TestDetect_PersistFailureRemovesObject(t *testing.T) {
	env := newDetectEnv(t, ok("Healthy", 0.99))
	env.store.FailOn("Reports.Create", errors.New("db down"))

	_, err := env.detector.Detect(context.Background(), 7, service.DetectInput{CropName: "tomato", Image: jpeg()})
	var de *service.DetectionError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, service.StagePersist, de.Stage)
	assert.Zero(t, env.objects.Len())
	assert.Len(t, env.objects.Deleted(), 1)
	assert.Empty(t, env.events.reports)
	assertScratchEmpty(t, env)
}

func TestDetect_EventFailureIsIgnored(t *testing.T) {
	env := newDetectEnv(t, ok("Healthy", 0.99))
	env.events.err = errors.New("broker down")

	_, err := env.detector.Detect(context.Background(), 7, service.DetectInput{CropName: "tomato", Image: jpeg()})
	assert.NoError(t, err)
	assertScratchEmpty(t, env)
}

func TestServiceStatus(t *testing.T) {
	env := newDetectEnv(t, ok("x", 1.0))
	ctx := context.Background()

	st, err := env.detector.ServiceStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "running", st)

	env.gate.awake = false
	st, err = env.detector.ServiceStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "starting", st)
	assert.Equal(t, 1, env.gate.bgWakes)

	env.gate.bgWakeErr = errors.New("exec: not found")
	st, err = env.detector.ServiceStatus(ctx)
	assert.Error(t, err)
	assert.Equal(t, "error", st)
}
