package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/krushi/krushi-api/internal/database"
	"github.com/krushi/krushi-api/internal/model"
)

const reportColumns = `id,farmer_id,crop_id,crop_name,image_url,image_key,prediction,confidence,
detected_disease,diagnosis,recommendation,status,farmer_notes,report_language,agronomist_id,created_at,updated_at`

// ReportRepo persists disease reports and their image links.
type ReportRepo struct{ DB database.DBTX }

func NewReportRepo(db database.DBTX) *ReportRepo { return &ReportRepo{DB: db} }

// Create inserts the report row and sets rep.ID. Images are linked
// separately with AttachImages.
func (r *ReportRepo) Create(ctx context.Context, rep *model.DiseaseReport) error {
	if rep.Status == "" {
		rep.Status = model.ReportPendingAction
	}
	if rep.Language == "" {
		rep.Language = model.ReportEnglish
	}
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO disease_reports (farmer_id, crop_id, crop_name, image_url, image_key, prediction, confidence,
		 detected_disease, diagnosis, recommendation, status, farmer_notes, report_language, agronomist_id)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rep.FarmerID, rep.CropID, rep.CropName, rep.ImageURL, rep.ImageKey, rep.Prediction, rep.Confidence,
		rep.DetectedDisease, rep.Diagnosis, rep.Recommendation, rep.Status, rep.FarmerNotes, rep.Language, rep.AgronomistID)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	rep.ID = uint64(id)
	return nil
}

// AttachImages links media rows to a report, keeping the given order.
func (r *ReportRepo) AttachImages(ctx context.Context, reportID uint64, mediaIDs []uint64) error {
	if len(mediaIDs) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("INSERT INTO disease_report_images (report_id, media_id, position) VALUES ")
	args := make([]any, 0, len(mediaIDs)*3)
	for i, id := range mediaIDs {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?,?,?)")
		args = append(args, reportID, id, i)
	}
	if _, err := r.DB.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("attach report images: %w", err)
	}
	return nil
}

// GetByID fetches a report with its images.
func (r *ReportRepo) GetByID(ctx context.Context, id uint64) (model.DiseaseReport, error) {
	row := r.DB.QueryRowContext(ctx, "SELECT "+reportColumns+" FROM disease_reports WHERE id=? LIMIT 1", id)
	rep, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DiseaseReport{}, ErrNotFound
	}
	if err != nil {
		return model.DiseaseReport{}, fmt.Errorf("get report: %w", err)
	}
	imgs, err := r.ImageMedia(ctx, id)
	if err != nil {
		return model.DiseaseReport{}, err
	}
	rep.Images = imgs
	return rep, nil
}

// ListByFarmer returns the farmer's reports, newest first, images included.
func (r *ReportRepo) ListByFarmer(ctx context.Context, farmerID uint64) ([]model.DiseaseReport, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+reportColumns+" FROM disease_reports WHERE farmer_id=? ORDER BY created_at DESC, id DESC", farmerID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	var out []model.DiseaseReport
	index := map[uint64]int{}
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan report: %w", err)
		}
		index[rep.ID] = len(out)
		out = append(out, rep)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("list reports: %w", err)
	}
	rows.Close()
	if len(out) == 0 {
		return out, nil
	}

	imgRows, err := r.DB.QueryContext(ctx,
		`SELECT ri.report_id, m.id, m.owner_id, m.url, m.public_id, m.content_type, m.size_bytes, m.created_at
		 FROM disease_report_images ri
		 JOIN disease_reports d ON d.id = ri.report_id
		 JOIN media m ON m.id = ri.media_id
		 WHERE d.farmer_id=? ORDER BY ri.report_id, ri.position`, farmerID)
	if err != nil {
		return nil, fmt.Errorf("list report images: %w", err)
	}
	defer imgRows.Close()
	for imgRows.Next() {
		var reportID uint64
		var m model.Media
		var owner sql.NullInt64
		if err := imgRows.Scan(&reportID, &m.ID, &owner, &m.URL, &m.PublicID, &m.ContentType, &m.SizeBytes, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report image: %w", err)
		}
		m.OwnerID = nullUint(owner)
		if i, ok := index[reportID]; ok {
			out[i].Images = append(out[i].Images, m)
		}
	}
	return out, imgRows.Err()
}

// ImageMedia returns the media linked to a report in upload order.
func (r *ReportRepo) ImageMedia(ctx context.Context, reportID uint64) ([]model.Media, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT m.id, m.owner_id, m.url, m.public_id, m.content_type, m.size_bytes, m.created_at
		 FROM disease_report_images ri JOIN media m ON m.id = ri.media_id
		 WHERE ri.report_id=? ORDER BY ri.position`, reportID)
	if err != nil {
		return nil, fmt.Errorf("report images: %w", err)
	}
	defer rows.Close()
	var out []model.Media
	for rows.Next() {
		var m model.Media
		var owner sql.NullInt64
		if err := rows.Scan(&m.ID, &owner, &m.URL, &m.PublicID, &m.ContentType, &m.SizeBytes, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report image: %w", err)
		}
		m.OwnerID = nullUint(owner)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ImageKeysByFarmer returns the object keys of single image reports owned by
// farmerID.
func (r *ReportRepo) ImageKeysByFarmer(ctx context.Context, farmerID uint64) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT image_key FROM disease_reports WHERE farmer_id=? AND image_key IS NOT NULL", farmerID)
	if err != nil {
		return nil, fmt.Errorf("report image keys: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan image key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// MarkTreated sets status=treated on a report owned by farmerID. Notes, when
// non-nil, replace the farmer notes. Marking an already treated report
// succeeds again.
func (r *ReportRepo) MarkTreated(ctx context.Context, id, farmerID uint64, notes *string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE disease_reports SET status=?, farmer_notes=COALESCE(?, farmer_notes) WHERE id=? AND farmer_id=?",
		model.ReportTreated, notes, id, farmerID)
	if err != nil {
		return fmt.Errorf("mark treated: %w", err)
	}
	return expectOne(res)
}

// Delete removes report id owned by farmerID. Image links cascade.
func (r *ReportRepo) Delete(ctx context.Context, id, farmerID uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM disease_reports WHERE id=? AND farmer_id=?", id, farmerID)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	return expectOne(res)
}

// AssignAgronomist sets the agronomist of a report that has none yet. It
// reports whether the assignment happened.
func (r *ReportRepo) AssignAgronomist(ctx context.Context, reportID, agronomistID uint64) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE disease_reports SET agronomist_id=? WHERE id=? AND agronomist_id IS NULL", agronomistID, reportID)
	if err != nil {
		return false, fmt.Errorf("assign agronomist: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanReport(s rowScanner) (model.DiseaseReport, error) {
	var (
		rep            model.DiseaseReport
		cropID         sql.NullInt64
		cropName       sql.NullString
		imageURL       sql.NullString
		imageKey       sql.NullString
		prediction     sql.NullString
		confidence     sql.NullFloat64
		detected       sql.NullString
		diagnosis      sql.NullString
		recommendation sql.NullString
		agronomistID   sql.NullInt64
	)
	err := s.Scan(&rep.ID, &rep.FarmerID, &cropID, &cropName, &imageURL, &imageKey, &prediction, &confidence,
		&detected, &diagnosis, &recommendation, &rep.Status, &rep.FarmerNotes, &rep.Language, &agronomistID,
		&rep.CreatedAt, &rep.UpdatedAt)
	if err != nil {
		return model.DiseaseReport{}, err
	}
	rep.CropID = nullUint(cropID)
	rep.CropName = nullString(cropName)
	rep.ImageURL = nullString(imageURL)
	rep.ImageKey = nullString(imageKey)
	rep.Prediction = nullString(prediction)
	rep.Confidence = nullFloat(confidence)
	rep.DetectedDisease = nullString(detected)
	rep.Diagnosis = nullString(diagnosis)
	rep.Recommendation = nullString(recommendation)
	rep.AgronomistID = nullUint(agronomistID)
	return rep, nil
}
