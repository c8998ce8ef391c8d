package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/tempora/tempora/internal/domain"
	"github.com/tempora/tempora/internal/ports"
)

// runningTimerConstraint is the partial unique index on (user_id, tenant_id)
// filtered to running active entries. It is the second enforcement layer for
// timer exclusivity and stays correct regardless of the isolation level.
const runningTimerConstraint = "uq_time_entries_running"

const entryColumns = `id, user_id, tenant_id, description, start_time, end_time, duration_minutes,
		is_running, is_billable, hourly_rate, currency, tags, client_id, task_id, status, rejection_note,
		is_locked, locked_by_id, locked_at, is_active, created_at, updated_at`

// PostgresTimeEntryRepository implements TimeEntryRepository using PostgreSQL
type PostgresTimeEntryRepository struct {
	db *sql.DB
}

// NewPostgresTimeEntryRepository creates a new PostgreSQL time entry repository
func NewPostgresTimeEntryRepository(db *sql.DB) *PostgresTimeEntryRepository {
	return &PostgresTimeEntryRepository{db: db}
}

// InTx runs fn inside a single database transaction.
func (r *PostgresTimeEntryRepository) InTx(ctx context.Context, fn func(tx ports.TimeEntryTx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&postgresTx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return translateError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// FindByID retrieves an active entry by id within the tenant.
func (r *PostgresTimeEntryRepository) FindByID(ctx context.Context, tenantID, id string) (*domain.TimeEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM time_entries WHERE id = $1 AND tenant_id = $2 AND is_active = TRUE`, entryColumns)
	return scanEntry(r.db.QueryRowContext(ctx, query, id, tenantID))
}

// FindRunning retrieves the pair's running entry without locking.
func (r *PostgresTimeEntryRepository) FindRunning(ctx context.Context, userID, tenantID string) (*domain.TimeEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM time_entries
		WHERE user_id = $1 AND tenant_id = $2 AND is_running = TRUE AND is_active = TRUE`, entryColumns)
	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, userID, tenantID))
	if err == domain.ErrEntryNotFound {
		return nil, domain.ErrTimerNotRunning
	}
	return entry, err
}

// List retrieves the pair's active entries based on filter criteria.
func (r *PostgresTimeEntryRepository) List(ctx context.Context, userID, tenantID string, filter ports.EntryFilter) ([]*domain.TimeEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM time_entries
		WHERE user_id = $1 AND tenant_id = $2 AND is_active = TRUE`, entryColumns)

	args := []interface{}{userID, tenantID}
	argIndex := 3

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, string(*filter.Status))
		argIndex++
	}
	if filter.From != nil {
		query += fmt.Sprintf(" AND start_time >= $%d", argIndex)
		args = append(args, *filter.From)
		argIndex++
	}
	if filter.To != nil {
		query += fmt.Sprintf(" AND start_time < $%d", argIndex)
		args = append(args, *filter.To)
		argIndex++
	}

	query += " ORDER BY start_time DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
		argIndex++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query time entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.TimeEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating time entries: %w", err)
	}
	return entries, nil
}

// postgresTx is the transactional view over *sql.Tx.
type postgresTx struct {
	tx *sql.Tx
}

// LockPair takes a transaction-scoped advisory lock keyed on the pair. Unlike
// SELECT ... FOR UPDATE it also serializes two inserts when the pair has no
// rows yet, closing the phantom gap; the lock is released on commit/rollback.
func (t *postgresTx) LockPair(ctx context.Context, userID, tenantID string) error {
	if _, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, pairLockKey(userID, tenantID)); err != nil {
		return fmt.Errorf("failed to acquire pair lock: %w", err)
	}
	return nil
}

func (t *postgresTx) FindRunning(ctx context.Context, userID, tenantID string) (*domain.TimeEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM time_entries
		WHERE user_id = $1 AND tenant_id = $2 AND is_running = TRUE AND is_active = TRUE
		FOR UPDATE`, entryColumns)
	entry, err := scanEntry(t.tx.QueryRowContext(ctx, query, userID, tenantID))
	if err == domain.ErrEntryNotFound {
		return nil, domain.ErrTimerNotRunning
	}
	return entry, err
}

func (t *postgresTx) HasOverlap(ctx context.Context, userID, tenantID string, start, end time.Time, excludeID string) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM time_entries
		WHERE user_id = $1 AND tenant_id = $2 AND is_active = TRUE
		  AND end_time IS NOT NULL
		  AND start_time < $4 AND $3 < end_time
		  AND ($5 = '' OR id <> $5)
	)`

	var overlaps bool
	if err := t.tx.QueryRowContext(ctx, query, userID, tenantID, start, end, excludeID).Scan(&overlaps); err != nil {
		return false, fmt.Errorf("failed to check overlap: %w", err)
	}
	return overlaps, nil
}

func (t *postgresTx) FindByIDForUpdate(ctx context.Context, tenantID, id string) (*domain.TimeEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM time_entries
		WHERE id = $1 AND tenant_id = $2 AND is_active = TRUE
		FOR UPDATE`, entryColumns)
	return scanEntry(t.tx.QueryRowContext(ctx, query, id, tenantID))
}

func (t *postgresTx) Insert(ctx context.Context, entry *domain.TimeEntry) error {
	query := `INSERT INTO time_entries (id, user_id, tenant_id, description, start_time, end_time,
			duration_minutes, is_running, is_billable, hourly_rate, currency, tags, client_id, task_id, status,
			rejection_note, is_locked, locked_by_id, locked_at, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`

	_, err := t.tx.ExecContext(ctx, query,
		entry.ID,
		entry.UserID,
		entry.TenantID,
		entry.Description,
		entry.StartTime,
		entry.EndTime,
		entry.DurationMinutes,
		entry.IsRunning,
		entry.IsBillable,
		entry.HourlyRate,
		entry.Currency,
		pq.Array(entry.Tags),
		entry.ClientID,
		entry.TaskID,
		string(entry.Status),
		entry.RejectionNote,
		entry.IsLocked,
		entry.LockedByID,
		entry.LockedAt,
		entry.IsActive,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		return translateError(err)
	}
	return nil
}

func (t *postgresTx) Update(ctx context.Context, entry *domain.TimeEntry) error {
	query := `UPDATE time_entries
		SET description = $2, start_time = $3, end_time = $4, duration_minutes = $5,
			is_running = $6, is_billable = $7, hourly_rate = $8, currency = $9, tags = $10,
			client_id = $11, task_id = $12, status = $13, rejection_note = $14, is_locked = $15,
			locked_by_id = $16, locked_at = $17, is_active = $18, updated_at = $19
		WHERE id = $1`

	result, err := t.tx.ExecContext(ctx, query,
		entry.ID,
		entry.Description,
		entry.StartTime,
		entry.EndTime,
		entry.DurationMinutes,
		entry.IsRunning,
		entry.IsBillable,
		entry.HourlyRate,
		entry.Currency,
		pq.Array(entry.Tags),
		entry.ClientID,
		entry.TaskID,
		string(entry.Status),
		entry.RejectionNote,
		entry.IsLocked,
		entry.LockedByID,
		entry.LockedAt,
		entry.IsActive,
		entry.UpdatedAt,
	)
	if err != nil {
		return translateError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrEntryNotFound
	}
	return nil
}

// translateError remaps the known uniqueness violation to the domain error so
// a raced insert surfaces as TimerAlreadyRunning instead of a raw storage
// failure. Everything else propagates as infrastructure failure.
func translateError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" && strings.Contains(pqErr.Constraint, runningTimerConstraint) {
		return domain.ErrTimerAlreadyRunning
	}
	return err
}

// pairLockKey hashes the pair into the signed 64-bit key space that
// pg_advisory_xact_lock expects.
func pairLockKey(userID, tenantID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(tenantID))
	h.Write([]byte{0})
	h.Write([]byte(userID))
	return int64(h.Sum64())
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*domain.TimeEntry, error) {
	var entry domain.TimeEntry
	var description sql.NullString
	var endTime sql.NullTime
	var durationMinutes sql.NullInt64
	var hourlyRate sql.NullFloat64
	var currency sql.NullString
	var tags pq.StringArray
	var clientID sql.NullString
	var taskID sql.NullString
	var status string
	var rejectionNote sql.NullString
	var lockedByID sql.NullString
	var lockedAt sql.NullTime

	err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.TenantID,
		&description,
		&entry.StartTime,
		&endTime,
		&durationMinutes,
		&entry.IsRunning,
		&entry.IsBillable,
		&hourlyRate,
		&currency,
		&tags,
		&clientID,
		&taskID,
		&status,
		&rejectionNote,
		&entry.IsLocked,
		&lockedByID,
		&lockedAt,
		&entry.IsActive,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to scan time entry: %w", err)
	}

	entry.Description = description.String
	if endTime.Valid {
		t := endTime.Time
		entry.EndTime = &t
	}
	if durationMinutes.Valid {
		d := int(durationMinutes.Int64)
		entry.DurationMinutes = &d
	}
	if hourlyRate.Valid {
		rate := hourlyRate.Float64
		entry.HourlyRate = &rate
	}
	entry.Currency = currency.String
	entry.Tags = []string(tags)
	if clientID.Valid {
		id := clientID.String
		entry.ClientID = &id
	}
	if taskID.Valid {
		id := taskID.String
		entry.TaskID = &id
	}
	entry.Status = domain.EntryStatus(status)
	entry.RejectionNote = rejectionNote.String
	if lockedByID.Valid {
		id := lockedByID.String
		entry.LockedByID = &id
	}
	if lockedAt.Valid {
		t := lockedAt.Time
		entry.LockedAt = &t
	}
	return &entry, nil
}
