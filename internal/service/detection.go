package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/krushi/krushi-api/internal/config"
	"github.com/krushi/krushi-api/internal/inference"
	"github.com/krushi/krushi-api/internal/logging"
	"github.com/krushi/krushi-api/internal/model"
	"github.com/krushi/krushi-api/internal/storage"
)

// StageSpool is the copy of the upload to local scratch space.
const StageSpool = "spool"

// Predictor submits one image for classification.
type Predictor interface {
	Predict(ctx context.Context, imagePath, filename, crop string) (inference.Prediction, error)
}

// ServiceGate checks and wakes the inference service.
type ServiceGate interface {
	Probe(ctx context.Context) error
	Wake(ctx context.Context) error
	WakeInBackground() error
}

// ReportEvents is notified after a report has been stored.
type ReportEvents interface {
	ReportCreated(ctx context.Context, rep model.DiseaseReport) error
}

// DetectInput is one detection request.
type DetectInput struct {
	CropName string
	Image    *Upload
}

// Detector turns an uploaded image into a classification report, waiting
// for a cold inference service when needed.
type Detector struct {
	store     Store
	gate      ServiceGate
	predictor Predictor
	objects   storage.ObjectStore
	events    ReportEvents
	policy    RetryPolicy
	scratch   string
	log       logging.Logger
}

func NewDetector(store Store, gate ServiceGate, predictor Predictor, objects storage.ObjectStore, events ReportEvents, cfg config.InferenceConfig, log logging.Logger) *Detector {
	return &Detector{
		store:     store,
		gate:      gate,
		predictor: predictor,
		objects:   objects,
		events:    events,
		policy:    LinearPolicy(cfg.MaxAttempts, cfg.RetryDelay, inference.IsTransient),
		scratch:   cfg.ScratchDir,
		log:       log.With("component", "detector"),
	}
}

// WithPolicy replaces the prediction retry policy.
func (d *Detector) WithPolicy(p RetryPolicy) *Detector {
	d.policy = p
	return d
}

// Detect runs validate, check, wake, predict, normalize, store and persist
// in that order. Failures come back as *DetectionError.
func (d *Detector) Detect(ctx context.Context, farmerID uint64, in DetectInput) (model.DiseaseReport, error) {
	crop := strings.TrimSpace(in.CropName)
	if in.Image == nil {
		return model.DiseaseReport{}, &DetectionError{StageValidate, invalid("no image file uploaded")}
	}
	if crop == "" {
		return model.DiseaseReport{}, &DetectionError{StageValidate, invalid("cropName is required")}
	}
	if err := in.Image.check(imageTypes, MaxImageBytes, "image"); err != nil {
		return model.DiseaseReport{}, &DetectionError{StageValidate, err}
	}
	img := *in.Image
	if img.Filename == "" {
		img.Filename = "image.jpg"
	}

	path, size, err := d.spool(img)
	if err != nil {
		return model.DiseaseReport{}, &DetectionError{StageSpool, err}
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			d.log.Warn(ctx, "scratch cleanup failed", "path", path, "error", err)
		}
	}()

	log := d.log.With("farmer_id", farmerID, "crop", crop)
	if err := d.gate.Probe(ctx); err != nil {
		log.Info(ctx, "inference service not ready, waking", "error", err)
		if err := d.gate.Wake(ctx); err != nil {
			if errors.Is(err, inference.ErrUnavailable) {
				err = ErrServiceUnavailable
			}
			return model.DiseaseReport{}, &DetectionError{StageWake, err}
		}
	}

	var pred inference.Prediction
	attempt := 0
	err = d.policy.Do(ctx, func(ctx context.Context) error {
		attempt++
		p, err := d.predictor.Predict(ctx, path, img.Filename, crop)
		if err != nil {
			log.Warn(ctx, "prediction attempt failed", "attempt", attempt, "error", err)
			return err
		}
		pred = p
		return nil
	})
	if err != nil {
		if inference.IsTransient(err) {
			err = fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
		return model.DiseaseReport{}, &DetectionError{StagePredict, err}
	}

	label := pred.Label()
	confidence := pred.Confidence()

	f, err := os.Open(path)
	if err != nil {
		return model.DiseaseReport{}, &DetectionError{StageStore, err}
	}
	obj, err := d.objects.Upload(ctx, "disease-detection", img.Filename, img.contentType(), f, size)
	_ = f.Close()
	if err != nil {
		return model.DiseaseReport{}, &DetectionError{StageStore, err}
	}

	rep := model.DiseaseReport{
		FarmerID:   farmerID,
		CropName:   &crop,
		ImageURL:   &obj.URL,
		ImageKey:   &obj.Key,
		Prediction: &label,
		Confidence: &confidence,
		Status:     model.ReportPendingAction,
		Language:   model.ReportEnglish,
	}
	if err := d.store.Repos().Reports.Create(ctx, &rep); err != nil {
		discard(ctx, d.objects, d.log, obj.Key)
		return model.DiseaseReport{}, &DetectionError{StagePersist, err}
	}
	log.Info(ctx, "disease detected", "report_id", rep.ID, "label", label, "confidence", confidence, "attempts", attempt)
	publish(ctx, d.events, d.log, rep)
	return rep, nil
}

// spool copies the upload into the scratch directory.
func (d *Detector) spool(u Upload) (string, int64, error) {
	if _, err := u.Body.Seek(0, io.SeekStart); err != nil {
		return "", 0, err
	}
	f, err := os.CreateTemp(d.scratch, "detect-*"+strings.ToLower(filepath.Ext(u.Filename)))
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(f, io.LimitReader(u.Body, MaxImageBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > MaxImageBytes {
		err = invalid("image exceeds %d MB", MaxImageBytes>>20)
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return "", 0, err
	}
	return f.Name(), n, nil
}

// ServiceStatus is "running" when the probe answers. Otherwise a single
// shared background wake is started and "starting" returned.
func (d *Detector) ServiceStatus(ctx context.Context) (string, error) {
	if err := d.gate.Probe(ctx); err == nil {
		return "running", nil
	}
	if err := d.gate.WakeInBackground(); err != nil {
		d.log.Error(ctx, "inference service start failed", "error", err)
		return "error", err
	}
	return "starting", nil
}

func publish(ctx context.Context, events ReportEvents, log logging.Logger, rep model.DiseaseReport) {
	if events == nil {
		return
	}
	if err := events.ReportCreated(context.WithoutCancel(ctx), rep); err != nil {
		log.Warn(ctx, "report event not published", "report_id", rep.ID, "error", err)
	}
}
