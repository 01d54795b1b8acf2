package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"qrfeedback/internal/config"
	"qrfeedback/internal/models"
	"qrfeedback/internal/observability"
	contextutils "qrfeedback/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// FeedbackService implements feedback submission and dashboard operations.
type FeedbackService struct {
	db     *sql.DB
	cfg    *config.Config
	logger *observability.Logger
}

// NewFeedbackService creates a new FeedbackService instance.
func NewFeedbackService(db *sql.DB, cfg *config.Config, logger *observability.Logger) *FeedbackService {
	if db == nil {
		panic("NewFeedbackService: db is nil")
	}
	if cfg == nil {
		panic("NewFeedbackService: cfg is nil")
	}
	if logger == nil {
		panic("NewFeedbackService: logger is nil")
	}
	return &FeedbackService{db: db, cfg: cfg, logger: logger}
}

// Submission is a visitor's validated report before it is stored.
type Submission struct {
	LocationCode string
	IssueIDs     []string
	Note         string
}

// BuildStatusSummary derives the short status line shown on dashboards from
// the resolved issue labels and the free-text note.
func BuildStatusSummary(labels []string, note string) string {
	if len(labels) > 0 {
		return strings.Join(labels, ", ")
	}
	note = strings.TrimSpace(note)
	if note != "" {
		if len([]rune(note)) > config.StatusNoteMaxChars {
			return string([]rune(note)[:config.StatusNoteMaxChars])
		}
		return note
	}
	return config.DefaultStatusSummary
}

// SubmitFeedback validates a visitor submission against the location's issue
// catalog, stores the feedback row and updates the location status, all in
// one transaction.
func (s *FeedbackService) SubmitFeedback(ctx context.Context, sub Submission) (result0 *models.Feedback, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "submit_feedback",
		observability.AttributeLocationCode(sub.LocationCode),
		attribute.Int("feedback.issue_count", len(sub.IssueIDs)),
	)
	defer observability.FinishSpan(span, &err)

	loc, err := s.getLocationByCode(ctx, sub.LocationCode)
	if err != nil {
		return nil, err
	}

	// Unknown issue IDs keep their raw id as the label so stale forms and
	// catalog edits never reject a submission.
	labelsByID := s.cfg.IssueLabels(loc.Category)
	issues := make([]models.IssueRef, 0, len(sub.IssueIDs))
	labels := make([]string, 0, len(sub.IssueIDs))
	for _, id := range sub.IssueIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		label, ok := labelsByID[id]
		if !ok {
			label = id
		}
		issues = append(issues, models.IssueRef{ID: id, Label: label})
		labels = append(labels, label)
	}

	note := strings.TrimSpace(sub.Note)
	if len(issues) == 0 && note == "" {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn, "at least one issue or a note is required", "")
	}

	now := time.Now()
	meta := models.FeedbackMeta{Issues: issues, Note: note, ReportedAt: now}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to marshal feedback meta")
	}
	summary := BuildStatusSummary(labels, note)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO feedbacks (location_id, message, meta, resolved, created_at) VALUES (?, ?, ?, 0, ?)`,
		loc.ID, summary, string(metaJSON), now)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to insert feedback")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to read inserted feedback id")
	}

	if err = setLocationStatus(ctx, tx, loc.ID, summary); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, contextutils.WrapError(err, "failed to commit feedback")
	}

	span.SetAttributes(observability.AttributeFeedbackID(int(id)))
	s.logger.Info(ctx, "Feedback recorded", map[string]interface{}{
		"feedback_id":   id,
		"location_code": loc.Code,
		"issue_count":   len(issues),
		"has_note":      note != "",
	})

	return &models.Feedback{
		ID:         int(id),
		LocationID: loc.ID,
		Message:    summary,
		Meta:       sql.NullString{String: string(metaJSON), Valid: true},
		Resolved:   false,
		CreatedAt:  now,
	}, nil
}

// ListUnresolved returns unresolved feedback joined with location details,
// newest first. A nil floors slice means no floor filtering; an empty
// non-nil slice matches nothing.
func (s *FeedbackService) ListUnresolved(ctx context.Context, floors []int) (result0 []models.FeedbackView, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "list_unresolved",
		attribute.Bool("feedback.floor_filtered", floors != nil),
	)
	defer observability.FinishSpan(span, &err)

	if floors != nil && len(floors) == 0 {
		return []models.FeedbackView{}, nil
	}

	query := `SELECT f.id, f.location_id, l.code, l.name, l.category, l.floor, f.message, f.meta, f.resolved, f.created_at
	          FROM feedbacks f
	          JOIN locations l ON l.id = f.location_id
	          WHERE f.resolved = 0`
	args := []interface{}{}
	if floors != nil {
		placeholders := make([]string, len(floors))
		for i, floor := range floors {
			placeholders[i] = "?"
			args = append(args, floor)
		}
		query += " AND l.floor IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY f.created_at DESC LIMIT ?"
	args = append(args, config.UnresolvedListLimit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query unresolved feedback")
	}
	defer func() {
		_ = rows.Close()
	}()

	list := []models.FeedbackView{}
	for rows.Next() {
		var fv models.FeedbackView
		var floor sql.NullInt64
		var rawMeta sql.NullString
		if err := rows.Scan(&fv.ID, &fv.LocationID, &fv.LocationCode, &fv.LocationName, &fv.Category, &floor, &fv.Message, &rawMeta, &fv.Resolved, &fv.CreatedAt); err != nil {
			return nil, contextutils.WrapError(err, "scan unresolved feedback")
		}
		if floor.Valid {
			fv.Floor = &floor.Int64
		}
		fv.Issues = []models.IssueRef{}
		if rawMeta.Valid && rawMeta.String != "" {
			var meta models.FeedbackMeta
			// A bad meta payload only degrades that row's detail view,
			// never the whole listing.
			if err := json.Unmarshal([]byte(rawMeta.String), &meta); err == nil {
				if meta.Issues != nil {
					fv.Issues = meta.Issues
				}
				fv.Note = meta.Note
			} else {
				fv.Raw = rawMeta.String
				s.logger.Warn(ctx, "Unparseable feedback meta", map[string]interface{}{
					"feedback_id": fv.ID,
				})
			}
		}
		list = append(list, fv)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "iterate unresolved feedback")
	}

	span.SetAttributes(attribute.Int("feedback.count", len(list)))
	return list, nil
}

// ResolveFeedback marks a report handled on behalf of the given identity.
// Admins may resolve anything; staff only reports on their assigned floors.
// Resolving an already resolved report is a no-op.
func (s *FeedbackService) ResolveFeedback(ctx context.Context, id int, who models.Identity) (err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "resolve_feedback",
		observability.AttributeFeedbackID(id),
		attribute.Bool("identity.is_admin", who.IsAdmin),
	)
	defer observability.FinishSpan(span, &err)

	var floor sql.NullInt64
	err = s.db.QueryRowContext(ctx,
		`SELECT l.floor FROM feedbacks f JOIN locations l ON l.id = f.location_id WHERE f.id = ?`, id).
		Scan(&floor)
	if err != nil {
		if err == sql.ErrNoRows {
			return contextutils.ErrRecordNotFound
		}
		return contextutils.WrapError(err, "failed to look up feedback")
	}

	var floorPtr *int64
	if floor.Valid {
		floorPtr = &floor.Int64
	}
	if !who.CanSeeFloor(floorPtr) {
		return contextutils.ErrForbidden
	}

	if _, err = s.db.ExecContext(ctx, `UPDATE feedbacks SET resolved = 1 WHERE id = ?`, id); err != nil {
		return contextutils.WrapError(err, "failed to resolve feedback")
	}

	s.logger.Info(ctx, "Feedback resolved", map[string]interface{}{
		"feedback_id": id,
		"resolved_by": who.Username,
		"is_admin":    who.IsAdmin,
	})
	return nil
}

// getLocationByCode is a local lookup to avoid a service dependency cycle.
func (s *FeedbackService) getLocationByCode(ctx context.Context, code string) (*models.Location, error) {
	var loc models.Location
	err := s.db.QueryRowContext(ctx,
		`SELECT id, code, name, category, floor, status, status_time, created_at FROM locations WHERE code = ?`, code).
		Scan(&loc.ID, &loc.Code, &loc.Name, &loc.Category, &loc.Floor, &loc.Status, &loc.StatusTime, &loc.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, contextutils.ErrRecordNotFound
		}
		return nil, contextutils.WrapError(err, "failed to scan location")
	}
	return &loc, nil
}
