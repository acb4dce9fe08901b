// Package queue defines message payloads exchanged over the message broker.
package queue

import (
    "time"

    "github.com/krushi/krushi-api/internal/model"
)

// ReportCreatedQueue is the durable queue carrying ReportCreatedEvent.
const ReportCreatedQueue = "report.created"

// Report kinds.
const (
    KindDetection = "detection"
    KindDiagnosis = "diagnosis"
)

// ReportCreatedEvent is published when a disease report has been stored.
// It carries enough for the consumer to match an agronomist and log the
// report without reading it back.
type ReportCreatedEvent struct {
    ReportID   uint64   `json:"report_id"`
    FarmerID   uint64   `json:"farmer_id"`
    Kind       string   `json:"kind"`
    CropName   string   `json:"crop_name"`
    Label      string   `json:"label"`
    Confidence *float64 `json:"confidence,omitempty"`
    Images     int      `json:"images"`
    CreatedAt  string   `json:"created_at"`
}

// NewReportCreatedEvent summarises rep.
func NewReportCreatedEvent(rep model.DiseaseReport) ReportCreatedEvent {
    ev := ReportCreatedEvent{
        ReportID:   rep.ID,
        FarmerID:   rep.FarmerID,
        Kind:       KindDiagnosis,
        Confidence: rep.Confidence,
        Images:     len(rep.Images),
        CreatedAt:  rep.CreatedAt.UTC().Format(time.RFC3339),
    }
    if rep.CreatedAt.IsZero() {
        ev.CreatedAt = time.Now().UTC().Format(time.RFC3339)
    }
    if rep.CropName != nil {
        ev.CropName = *rep.CropName
    }
    switch {
    case rep.Prediction != nil:
        ev.Kind = KindDetection
        ev.Label = *rep.Prediction
        ev.Images = 1
    case rep.DetectedDisease != nil:
        ev.Label = *rep.DetectedDisease
    }
    return ev
}
