package services

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"qrfeedback/internal/config"
	"qrfeedback/internal/models"
	"qrfeedback/internal/observability"
	contextutils "qrfeedback/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// QRArtifactWriter generates and removes on-disk QR code images for
// location codes. The service treats artifact failures as non-fatal.
type QRArtifactWriter interface {
	Generate(ctx context.Context, code, url string) (string, error)
	Remove(ctx context.Context, code string) error
}

// LocationService implements location registry operations backed by SQL.
type LocationService struct {
	db     *sql.DB
	cfg    *config.Config
	logger *observability.Logger
	qr     QRArtifactWriter
}

// NewLocationService creates a new LocationService instance. The QR writer
// may be nil, in which case no artifacts are produced.
func NewLocationService(db *sql.DB, cfg *config.Config, logger *observability.Logger, qr QRArtifactWriter) *LocationService {
	if db == nil {
		panic("NewLocationService: db is nil")
	}
	if cfg == nil {
		panic("NewLocationService: cfg is nil")
	}
	if logger == nil {
		panic("NewLocationService: logger is nil")
	}
	return &LocationService{db: db, cfg: cfg, logger: logger, qr: qr}
}

// CreateLocation registers a new location. The code must be unique; floor is
// optional and nil means the location is unscoped for staff filtering.
func (s *LocationService) CreateLocation(ctx context.Context, code, name, category string, floor *int64) (result0 *models.Location, err error) {
	ctx, span := observability.TraceLocationFunction(ctx, "create_location",
		observability.AttributeLocationCode(code),
		attribute.String("location.category", category),
	)
	defer observability.FinishSpan(span, &err)

	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)
	category = strings.TrimSpace(category)
	if code == "" || name == "" || category == "" {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeMissingRequired, contextutils.SeverityWarn, "code, name and category are required", "")
	}
	if !contextutils.IsValidLocationCode(code) {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeInvalidFormat, contextutils.SeverityWarn, "invalid location code", code)
	}

	var floorVal sql.NullInt64
	if floor != nil {
		floorVal = sql.NullInt64{Int64: *floor, Valid: true}
		span.SetAttributes(observability.AttributeFloor(int(*floor)))
	}

	now := time.Now()
	query := `INSERT INTO locations (code, name, category, floor, created_at) VALUES (?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query, code, name, category, floorVal, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, contextutils.WrapError(contextutils.ErrRecordExists, "location code already exists")
		}
		return nil, contextutils.WrapError(err, "failed to insert location")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to read inserted location id")
	}

	loc := &models.Location{
		ID:        int(id),
		Code:      code,
		Name:      name,
		Category:  category,
		Floor:     floorVal,
		CreatedAt: now,
	}

	// QR artifacts are best effort. A failed image write never rolls back
	// the registration.
	if s.qr != nil {
		if _, qrErr := s.qr.Generate(ctx, code, s.cfg.PublicFeedbackURL(code)); qrErr != nil {
			s.logger.Warn(ctx, "Failed to generate QR artifact for location", map[string]interface{}{
				"location_code": code,
				"error":         qrErr.Error(),
			})
		}
	}

	return loc, nil
}

// GetLocationByCode looks up a location by its QR code value.
func (s *LocationService) GetLocationByCode(ctx context.Context, code string) (result0 *models.Location, err error) {
	ctx, span := observability.TraceLocationFunction(ctx, "get_location_by_code",
		observability.AttributeLocationCode(code),
	)
	defer observability.FinishSpan(span, &err)

	query := `SELECT id, code, name, category, floor, status, status_time, created_at FROM locations WHERE code = ?`
	var loc models.Location
	err = s.db.QueryRowContext(ctx, query, code).
		Scan(&loc.ID, &loc.Code, &loc.Name, &loc.Category, &loc.Floor, &loc.Status, &loc.StatusTime, &loc.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, contextutils.ErrRecordNotFound
		}
		return nil, contextutils.WrapError(err, "failed to scan location")
	}
	return &loc, nil
}

// GetLocationByID looks up a location by its numeric ID.
func (s *LocationService) GetLocationByID(ctx context.Context, id int) (result0 *models.Location, err error) {
	ctx, span := observability.TraceLocationFunction(ctx, "get_location_by_id",
		observability.AttributeLocationID(id),
	)
	defer observability.FinishSpan(span, &err)

	query := `SELECT id, code, name, category, floor, status, status_time, created_at FROM locations WHERE id = ?`
	var loc models.Location
	err = s.db.QueryRowContext(ctx, query, id).
		Scan(&loc.ID, &loc.Code, &loc.Name, &loc.Category, &loc.Floor, &loc.Status, &loc.StatusTime, &loc.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, contextutils.ErrRecordNotFound
		}
		return nil, contextutils.WrapError(err, "failed to scan location")
	}
	return &loc, nil
}

// ListLocations returns all locations, newest first.
func (s *LocationService) ListLocations(ctx context.Context) (result0 []models.Location, err error) {
	ctx, span := observability.TraceLocationFunction(ctx, "list_locations")
	defer observability.FinishSpan(span, &err)

	query := `SELECT id, code, name, category, floor, status, status_time, created_at FROM locations ORDER BY id DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query locations")
	}
	defer func() {
		_ = rows.Close()
	}()

	list := []models.Location{}
	for rows.Next() {
		var loc models.Location
		if err := rows.Scan(&loc.ID, &loc.Code, &loc.Name, &loc.Category, &loc.Floor, &loc.Status, &loc.StatusTime, &loc.CreatedAt); err != nil {
			return nil, contextutils.WrapError(err, "scan location list")
		}
		list = append(list, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "iterate location list")
	}

	span.SetAttributes(attribute.Int("location.count", len(list)))
	return list, nil
}

// DeleteLocation removes the location with the given code, all of its
// feedback rows, and the QR artifact.
func (s *LocationService) DeleteLocation(ctx context.Context, code string) (err error) {
	ctx, span := observability.TraceLocationFunction(ctx, "delete_location",
		observability.AttributeLocationCode(code),
	)
	defer observability.FinishSpan(span, &err)

	loc, err := s.GetLocationByCode(ctx, code)
	if err != nil {
		return err
	}
	id := loc.ID

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return contextutils.WrapError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Feedback rows are removed explicitly rather than relying only on the
	// schema cascade, so the delete works the same on databases created
	// before foreign keys were enforced.
	if _, err = tx.ExecContext(ctx, `DELETE FROM feedbacks WHERE location_id = ?`, id); err != nil {
		return contextutils.WrapError(err, "failed to delete location feedback")
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM locations WHERE id = ?`, id); err != nil {
		return contextutils.WrapError(err, "failed to delete location")
	}
	if err = tx.Commit(); err != nil {
		return contextutils.WrapError(err, "failed to commit location delete")
	}

	if s.qr != nil {
		if qrErr := s.qr.Remove(ctx, loc.Code); qrErr != nil {
			s.logger.Warn(ctx, "Failed to remove QR artifact for location", map[string]interface{}{
				"location_code": loc.Code,
				"error":         qrErr.Error(),
			})
		}
	}

	return nil
}

// SetStatus records a short status summary on a location, stamped with the
// current time.
func (s *LocationService) SetStatus(ctx context.Context, id int, summary string) (err error) {
	ctx, span := observability.TraceLocationFunction(ctx, "set_status",
		observability.AttributeLocationID(id),
	)
	defer observability.FinishSpan(span, &err)

	return setLocationStatus(ctx, s.db, id, summary)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func setLocationStatus(ctx context.Context, db execer, id int, summary string) error {
	res, err := db.ExecContext(ctx, `UPDATE locations SET status = ?, status_time = ? WHERE id = ?`, summary, time.Now(), id)
	if err != nil {
		return contextutils.WrapError(err, "failed to update location status")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to read affected rows")
	}
	if affected == 0 {
		return contextutils.ErrRecordNotFound
	}
	return nil
}

// isUniqueViolation reports whether the error is a SQLite unique constraint
// failure.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed: UNIQUE")
}
