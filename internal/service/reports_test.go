package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krushi/krushi-api/internal/genai"
	"github.com/krushi/krushi-api/internal/logging"
	"github.com/krushi/krushi-api/internal/model"
	"github.com/krushi/krushi-api/internal/repository"
	"github.com/krushi/krushi-api/internal/service"
	"github.com/krushi/krushi-api/internal/service/servicetest"
)

// fakeAI answers GenerateJSON with a canned JSON document.
type fakeAI struct {
	mu      sync.Mutex
	answer  string
	err     error
	prompts []string
	images  int
}

func (f *fakeAI) GenerateJSON(_ context.Context, prompt string, images []genai.Image, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.images += len(images)
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.answer), v)
}

const diagnosisJSON = `{"detectedDisease":"Late blight","diagnosis":"Water soaked lesions.","recommendation":"Spray mancozeb 2.5 g/l."}`

func png(name string) service.Upload {
	b := []byte("\x89PNG\r\n\x1a\n" + name)
	return service.Upload{Filename: name, ContentType: "image/png", Size: int64(len(b)), Body: bytes.NewReader(b)}
}

type reportEnv struct {
	store   *servicetest.Store
	objects *servicetest.Objects
	ai      *fakeAI
	events  *recordedEvents
	reports *service.ReportService
	farmer  model.User
	crop    model.Crop
}

func newReportEnv(t *testing.T) reportEnv {
	t.Helper()
	ctx := context.Background()
	env := reportEnv{
		store:   servicetest.NewStore(),
		objects: servicetest.NewObjects(),
		ai:      &fakeAI{answer: diagnosisJSON},
		events:  &recordedEvents{},
	}
	env.reports = service.NewReportService(env.store, env.objects, env.ai, env.events, logging.Nop())
	env.farmer = model.User{FullName: "Sunita", MobileNumber: "9876543210", PasswordHash: "x", Role: model.RoleFarmer}
	require.NoError(t, env.store.Repos().Users.Create(ctx, &env.farmer))
	crop, err := service.NewCropService(env.store).Create(ctx, env.farmer.ID, service.CropInput{CropName: "Potato", CropVariety: "Kufri Jyoti"})
	require.NoError(t, err)
	env.crop = crop
	return env
}

func TestDiagnose_StoresReportWithImages(t *testing.T) {
	env := newReportEnv(t)

	rep, err := env.reports.Diagnose(context.Background(), env.farmer.ID, service.DiagnoseInput{
		CropID:   env.crop.ID,
		Language: "mr",
		Images:   []service.Upload{png("a.png"), png("b.png")},
	})
	require.NoError(t, err)

	assert.Equal(t, "Late blight", *rep.DetectedDisease)
	assert.Equal(t, model.ReportMarathi, rep.Language)
	assert.Equal(t, "Potato", *rep.CropName)
	require.Len(t, rep.Images, 2)
	assert.Equal(t, 2, env.objects.Len())
	assert.Equal(t, 2, env.ai.images)
	require.Len(t, env.ai.prompts, 1)
	assert.Contains(t, env.ai.prompts[0], "Kufri Jyoti Potato")
	assert.Contains(t, env.ai.prompts[0], "Marathi")
	assert.Len(t, env.events.reports, 1)

	list, err := env.reports.List(context.Background(), env.farmer.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Images, 2)
}

func TestDiagnose_AIFailureCleansUp(t *testing.T) {
	env := newReportEnv(t)
	env.ai.err = errors.New("quota exceeded")

	_, err := env.reports.Diagnose(context.Background(), env.farmer.ID, service.DiagnoseInput{
		CropID: env.crop.ID,
		Images: []service.Upload{png("a.png"), png("b.png"), png("c.png")},
	})
	require.ErrorIs(t, err, service.ErrAIUnavailable)
	assert.Zero(t, env.objects.Len())
	assert.Zero(t, env.store.ReportCount())
	assert.Zero(t, env.store.MediaCount())
}

func TestDiagnose_Validation(t *testing.T) {
	env := newReportEnv(t)
	ctx := context.Background()
	var ve *service.ValidationError

	_, err := env.reports.Diagnose(ctx, env.farmer.ID, service.DiagnoseInput{CropID: env.crop.ID})
	require.ErrorAs(t, err, &ve)

	six := make([]service.Upload, 6)
	for i := range six {
		six[i] = png("x.png")
	}
	_, err = env.reports.Diagnose(ctx, env.farmer.ID, service.DiagnoseInput{CropID: env.crop.ID, Images: six})
	require.ErrorAs(t, err, &ve)

	_, err = env.reports.Diagnose(ctx, env.farmer.ID+100, service.DiagnoseInput{CropID: env.crop.ID, Images: []service.Upload{png("a.png")}})
	require.ErrorIs(t, err, repository.ErrNotFound, "crop must belong to the farmer")
	assert.Empty(t, env.ai.prompts)
}

func TestMarkTreated_Idempotent(t *testing.T) {
	env := newReportEnv(t)
	ctx := context.Background()
	rep, err := env.reports.Diagnose(ctx, env.farmer.ID, service.DiagnoseInput{CropID: env.crop.ID, Images: []service.Upload{png("a.png")}})
	require.NoError(t, err)

	notes := "sprayed on monday"
	first, err := env.reports.MarkTreated(ctx, env.farmer.ID, rep.ID, &notes)
	require.NoError(t, err)
	assert.Equal(t, model.ReportTreated, first.Status)

	second, err := env.reports.MarkTreated(ctx, env.farmer.ID, rep.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, model.ReportTreated, second.Status)
	assert.Equal(t, notes, second.FarmerNotes)

	long := strings.Repeat("n", 1001)
	_, err = env.reports.MarkTreated(ctx, env.farmer.ID, rep.ID, &long)
	var ve *service.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = env.reports.MarkTreated(ctx, env.farmer.ID+1, rep.ID, nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeleteReport_RemovesObjects(t *testing.T) {
	env := newReportEnv(t)
	ctx := context.Background()
	rep, err := env.reports.Diagnose(ctx, env.farmer.ID, service.DiagnoseInput{CropID: env.crop.ID, Images: []service.Upload{png("a.png"), png("b.png")}})
	require.NoError(t, err)

	assert.ErrorIs(t, env.reports.Delete(ctx, env.farmer.ID+1, rep.ID), repository.ErrNotFound)
	require.NoError(t, env.reports.Delete(ctx, env.farmer.ID, rep.ID))
	assert.Zero(t, env.store.ReportCount())
	assert.Zero(t, env.store.MediaCount())
	assert.Zero(t, env.objects.Len())
}
