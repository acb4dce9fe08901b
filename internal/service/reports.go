package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/krushi/krushi-api/internal/genai"
	"github.com/krushi/krushi-api/internal/logging"
	"github.com/krushi/krushi-api/internal/model"
	"github.com/krushi/krushi-api/internal/repository"
	"github.com/krushi/krushi-api/internal/storage"
)

// Generator asks the generative model for a JSON answer.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string, images []genai.Image, v any) error
}

// DiagnoseInput is a multi-image diagnosis request for one crop.
type DiagnoseInput struct {
	CropID   uint64
	Language string
	Images   []Upload
}

// Diagnosis is the JSON object requested from the model.
type Diagnosis struct {
	DetectedDisease string `json:"detectedDisease"`
	Diagnosis       string `json:"diagnosis"`
	Recommendation  string `json:"recommendation"`
}

const diagnosisPrompt = `You are an expert agronomist specializing in crop diseases. Analyze the following image(s) of a %s plant.

Based on the visual evidence, provide a diagnosis in the following JSON format.
Your entire response MUST be a single, valid JSON object and nothing else.
The diagnosis and recommendation must be in %s.

{
  "detectedDisease": "Name of the disease",
  "diagnosis": "A detailed but easy-to-understand explanation of the disease, its causes, and symptoms visible in the image.",
  "recommendation": "A clear, step-by-step solution. Include names of specific chemical pesticides (and their composition) or organic solutions. Provide application instructions, dosage per acre, and precautionary measures."
}`

// ReportService handles generative diagnoses and the farmer's report list.
type ReportService struct {
	store   Store
	objects storage.ObjectStore
	ai      Generator
	events  ReportEvents
	log     logging.Logger
}

func NewReportService(store Store, objects storage.ObjectStore, ai Generator, events ReportEvents, log logging.Logger) *ReportService {
	return &ReportService{store: store, objects: objects, ai: ai, events: events, log: log.With("component", "reports")}
}

// Diagnose uploads the images and queries the model concurrently, then
// stores the report with its images. Uploaded objects are removed when any
// step fails.
func (s *ReportService) Diagnose(ctx context.Context, farmerID uint64, in DiagnoseInput) (model.DiseaseReport, error) {
	if len(in.Images) == 0 {
		return model.DiseaseReport{}, invalid("at least one image is required")
	}
	if len(in.Images) > MaxReportImages {
		return model.DiseaseReport{}, invalid("a maximum of %d images is allowed", MaxReportImages)
	}
	if in.CropID == 0 {
		return model.DiseaseReport{}, invalid("cropId is required")
	}
	for i, up := range in.Images {
		if err := up.check(imageTypes, MaxImageBytes, fmt.Sprintf("image %d", i+1)); err != nil {
			return model.DiseaseReport{}, err
		}
	}
	crop, err := s.store.Repos().Crops.GetOwned(ctx, in.CropID, farmerID)
	if err != nil {
		return model.DiseaseReport{}, err
	}

	lang := model.ParseReportLanguage(in.Language)
	parts := make([]genai.Image, len(in.Images))
	bufs := make([]Upload, len(in.Images))
	for i, up := range in.Images {
		b, err := up.readAll(MaxImageBytes)
		if err != nil {
			return model.DiseaseReport{}, err
		}
		ct := up.contentType()
		parts[i] = genai.Image{MIMEType: ct, Data: b}
		bufs[i] = memUpload(up.Filename, ct, b)
	}

	media := make([]model.Media, len(bufs))
	var diag Diagnosis
	g, gctx := errgroup.WithContext(ctx)
	for i := range bufs {
		g.Go(func() error {
			m, _, err := storeMedia(gctx, s.objects, &farmerID, "disease-reports", bufs[i])
			if err != nil {
				return err
			}
			media[i] = m
			return nil
		})
	}
	g.Go(func() error {
		if s.ai == nil {
			return ErrAIUnavailable
		}
		prompt := fmt.Sprintf(diagnosisPrompt, strings.TrimSpace(crop.CropVariety+" "+crop.CropName), languageName(lang))
		if err := s.ai.GenerateJSON(gctx, prompt, parts, &diag); err != nil {
			return fmt.Errorf("%w: %v", ErrAIUnavailable, err)
		}
		return nil
	})
	cleanup := func() {
		keys := make([]string, 0, len(media))
		for _, m := range media {
			keys = append(keys, m.PublicID)
		}
		discard(ctx, s.objects, s.log, keys...)
	}
	if err := g.Wait(); err != nil {
		cleanup()
		return model.DiseaseReport{}, err
	}

	rep := model.DiseaseReport{
		FarmerID:        farmerID,
		CropID:          &crop.ID,
		CropName:        &crop.CropName,
		DetectedDisease: &diag.DetectedDisease,
		Diagnosis:       &diag.Diagnosis,
		Recommendation:  &diag.Recommendation,
		Status:          model.ReportPendingAction,
		Language:        lang,
	}
	err = s.store.InTx(ctx, func(ctx context.Context, r Repos) error {
		ids := make([]uint64, len(media))
		for i := range media {
			if err := r.Media.Create(ctx, &media[i]); err != nil {
				return err
			}
			ids[i] = media[i].ID
		}
		if err := r.Reports.Create(ctx, &rep); err != nil {
			return err
		}
		return r.Reports.AttachImages(ctx, rep.ID, ids)
	})
	if err != nil {
		cleanup()
		return model.DiseaseReport{}, fmt.Errorf("save report: %w", err)
	}
	rep.Images = media
	s.log.Info(ctx, "diagnosis stored", "report_id", rep.ID, "farmer_id", farmerID, "images", len(media))
	publish(ctx, s.events, s.log, rep)
	return rep, nil
}

func languageName(l model.ReportLanguage) string {
	if l == model.ReportMarathi {
		return "Marathi"
	}
	return "English"
}

func (s *ReportService) List(ctx context.Context, farmerID uint64) ([]model.DiseaseReport, error) {
	return s.store.Repos().Reports.ListByFarmer(ctx, farmerID)
}

// MarkTreated is idempotent: a treated report can be marked again.
func (s *ReportService) MarkTreated(ctx context.Context, farmerID, id uint64, notes *string) (model.DiseaseReport, error) {
	if notes != nil {
		n := strings.TrimSpace(*notes)
		if len([]rune(n)) > 1000 {
			return model.DiseaseReport{}, invalid("farmerNotes cannot exceed 1000 characters")
		}
		notes = &n
	}
	r := s.store.Repos()
	if err := r.Reports.MarkTreated(ctx, id, farmerID, notes); err != nil {
		return model.DiseaseReport{}, err
	}
	return r.Reports.GetByID(ctx, id)
}

// Delete removes an owned report, its image rows and stored objects.
func (s *ReportService) Delete(ctx context.Context, farmerID, id uint64) error {
	r := s.store.Repos()
	rep, err := r.Reports.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rep.FarmerID != farmerID {
		return repository.ErrNotFound
	}
	var keys []string
	if rep.ImageKey != nil {
		keys = append(keys, *rep.ImageKey)
	}
	for _, m := range rep.Images {
		keys = append(keys, m.PublicID)
	}
	err = s.store.InTx(ctx, func(ctx context.Context, tx Repos) error {
		if err := tx.Reports.Delete(ctx, id, farmerID); err != nil {
			return err
		}
		for _, m := range rep.Images {
			if err := tx.Media.Delete(ctx, m.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	discard(ctx, s.objects, s.log, keys...)
	return nil
}
