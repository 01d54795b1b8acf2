package services

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"qrfeedback/internal/models"
	"qrfeedback/internal/observability"
	contextutils "qrfeedback/internal/utils"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"
)

// StaffService manages floor-scoped staff accounts.
type StaffService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewStaffService creates a new StaffService instance.
func NewStaffService(db *sql.DB, logger *observability.Logger) *StaffService {
	if db == nil {
		panic("NewStaffService: db is nil")
	}
	if logger == nil {
		panic("NewStaffService: logger is nil")
	}
	return &StaffService{db: db, logger: logger}
}

// CreateStaff registers a staff account with a bcrypt password hash and the
// given floor assignments. Duplicate floors are collapsed.
func (s *StaffService) CreateStaff(ctx context.Context, username, password string, floors []int) (result0 *models.StaffUser, err error) {
	ctx, span := observability.TraceStaffFunction(ctx, "create_staff",
		attribute.String("staff.username", username),
		attribute.Int("staff.floor_count", len(floors)),
	)
	defer observability.FinishSpan(span, &err)

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeMissingRequired, contextutils.SeverityWarn, "username and password are required", "")
	}
	if !contextutils.IsValidUsername(username) {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeInvalidFormat, contextutils.SeverityWarn, "invalid username", username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to hash password")
	}

	floorSet := map[int]bool{}
	uniqueFloors := []int{}
	for _, floor := range floors {
		if !floorSet[floor] {
			floorSet[floor] = true
			uniqueFloors = append(uniqueFloors, floor)
		}
	}
	sort.Ints(uniqueFloors)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		username, string(hash), now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, contextutils.WrapError(contextutils.ErrRecordExists, "username already exists")
		}
		return nil, contextutils.WrapError(err, "failed to insert staff user")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to read inserted user id")
	}

	for _, floor := range uniqueFloors {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO user_floors (user_id, floor) VALUES (?, ?)`, id, floor); err != nil {
			return nil, contextutils.WrapError(err, "failed to insert floor assignment")
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, contextutils.WrapError(err, "failed to commit staff user")
	}

	return &models.StaffUser{
		ID:        int(id),
		Username:  username,
		CreatedAt: now,
		Floors:    uniqueFloors,
	}, nil
}

// DeleteStaff removes a staff account and its floor assignments.
func (s *StaffService) DeleteStaff(ctx context.Context, username string) (err error) {
	ctx, span := observability.TraceStaffFunction(ctx, "delete_staff",
		attribute.String("staff.username", username),
	)
	defer observability.FinishSpan(span, &err)

	var id int
	err = s.db.QueryRowContext(ctx, `SELECT id FROM users WHERE username = ?`, username).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return contextutils.ErrRecordNotFound
		}
		return contextutils.WrapError(err, "failed to look up staff user")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return contextutils.WrapError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM user_floors WHERE user_id = ?`, id); err != nil {
		return contextutils.WrapError(err, "failed to delete floor assignments")
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return contextutils.WrapError(err, "failed to delete staff user")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to read affected rows")
	}
	if affected == 0 {
		err = contextutils.ErrRecordNotFound
		return err
	}
	if err = tx.Commit(); err != nil {
		return contextutils.WrapError(err, "failed to commit staff delete")
	}
	return nil
}

// ListStaff returns all staff accounts with their floor assignments.
func (s *StaffService) ListStaff(ctx context.Context) (result0 []models.StaffUser, err error) {
	ctx, span := observability.TraceStaffFunction(ctx, "list_staff")
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, created_at FROM users ORDER BY username`)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query staff users")
	}
	defer func() {
		_ = rows.Close()
	}()

	list := []models.StaffUser{}
	index := map[int]int{}
	for rows.Next() {
		var u models.StaffUser
		if err := rows.Scan(&u.ID, &u.Username, &u.CreatedAt); err != nil {
			return nil, contextutils.WrapError(err, "scan staff user")
		}
		u.Floors = []int{}
		index[u.ID] = len(list)
		list = append(list, u)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "iterate staff users")
	}

	floorRows, err := s.db.QueryContext(ctx,
		`SELECT user_id, floor FROM user_floors ORDER BY floor`)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query floor assignments")
	}
	defer func() {
		_ = floorRows.Close()
	}()
	for floorRows.Next() {
		var userID, floor int
		if err := floorRows.Scan(&userID, &floor); err != nil {
			return nil, contextutils.WrapError(err, "scan floor assignment")
		}
		if i, ok := index[userID]; ok {
			list[i].Floors = append(list[i].Floors, floor)
		}
	}
	if err := floorRows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "iterate floor assignments")
	}

	span.SetAttributes(attribute.Int("staff.count", len(list)))
	return list, nil
}

// GetFloorsForUser returns the sorted floor assignments for one account.
func (s *StaffService) GetFloorsForUser(ctx context.Context, userID int) (result0 []int, err error) {
	ctx, span := observability.TraceStaffFunction(ctx, "get_floors_for_user",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx,
		`SELECT floor FROM user_floors WHERE user_id = ? ORDER BY floor`, userID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query floor assignments")
	}
	defer func() {
		_ = rows.Close()
	}()

	floors := []int{}
	for rows.Next() {
		var floor int
		if err := rows.Scan(&floor); err != nil {
			return nil, contextutils.WrapError(err, "scan floor")
		}
		floors = append(floors, floor)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "iterate floors")
	}
	return floors, nil
}

// AuthenticateStaff verifies a username and password against the stored
// bcrypt hash and returns the account with its floors on success.
func (s *StaffService) AuthenticateStaff(ctx context.Context, username, password string) (result0 *models.StaffUser, err error) {
	ctx, span := observability.TraceStaffFunction(ctx, "authenticate_staff",
		attribute.String("staff.username", username),
	)
	defer observability.FinishSpan(span, &err)

	var u models.StaffUser
	err = s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, contextutils.ErrInvalidCredentials
		}
		return nil, contextutils.WrapError(err, "failed to scan staff user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, contextutils.ErrInvalidCredentials
	}

	floors, err := s.GetFloorsForUser(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Floors = floors
	u.PasswordHash = ""
	return &u, nil
}
