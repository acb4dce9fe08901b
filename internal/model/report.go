package model

import "time"

type ReportStatus string

const (
    ReportPendingAction ReportStatus = "pending_action"
    ReportTreated       ReportStatus = "treated"
)

// ReportLanguage is the language a generated diagnosis is written in.
type ReportLanguage string

const (
    ReportEnglish ReportLanguage = "en"
    ReportMarathi ReportLanguage = "mr"
)

// ParseReportLanguage maps anything but "mr" to English.
func ParseReportLanguage(s string) ReportLanguage {
    if s == string(ReportMarathi) {
        return ReportMarathi
    }
    return ReportEnglish
}

// DiseaseReport models a row of `disease_reports`.  A report is either a
// single image classification (CropName, ImageURL, Prediction, Confidence)
// or a multi image diagnosis tied to a crop (CropID, Images,
// DetectedDisease, Diagnosis, Recommendation).  Confidence, when set, is a
// percentage in [0,100].
type DiseaseReport struct {
    ID              uint64         // disease_reports.id
    FarmerID        uint64         // disease_reports.farmer_id
    CropID          *uint64        // disease_reports.crop_id
    CropName        *string        // disease_reports.crop_name
    ImageURL        *string        // disease_reports.image_url
    ImageKey        *string        // disease_reports.image_key
    Prediction      *string        // disease_reports.prediction
    Confidence      *float64       // disease_reports.confidence
    DetectedDisease *string        // disease_reports.detected_disease
    Diagnosis       *string        // disease_reports.diagnosis
    Recommendation  *string        // disease_reports.recommendation
    Status          ReportStatus   // disease_reports.status
    FarmerNotes     string         // disease_reports.farmer_notes
    Language        ReportLanguage // disease_reports.report_language
    AgronomistID    *uint64        // disease_reports.agronomist_id
    CreatedAt       time.Time      // disease_reports.created_at
    UpdatedAt       time.Time      // disease_reports.updated_at

    Images []Media // disease_report_images joined with media, in upload order
}
