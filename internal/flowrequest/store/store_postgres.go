package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"flowgate/internal/flowrequest/models"
	dErrors "flowgate/pkg/domain-errors"
	"flowgate/pkg/platform/sentinel"
	txcontext "flowgate/pkg/platform/tx"
)

const pgUniqueViolation = "23505"

// Postgres persists lifecycle state in PostgreSQL. Methods run on the
// transaction carried by ctx when there is one.
type Postgres struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgres constructs a PostgreSQL-backed store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, timeout: defaultTxTimeout}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (p *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return p.db
}

func (p *Postgres) RunInTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx), p); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (p *Postgres) View(ctx context.Context, fn func(ctx context.Context, s Store) error) error {
	return fn(ctx, p)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func (p *Postgres) CreateFlowRequest(ctx context.Context, fr *models.FlowRequest) error {
	var profileCode sql.NullString
	if fr.Profile != nil {
		profileCode = sql.NullString{String: fr.Profile.Code, Valid: true}
	}
	query := `
		INSERT INTO flow_requests (
			id, flow_id, process_id, profile_code, destination_id, subject_id,
			start_validity, expire_validity, status, sources, batch_id, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::text[], $11, $12, $13)
	`
	_, err := p.execer(ctx).ExecContext(ctx, query,
		fr.ID, fr.FlowID, fr.ProcessID, profileCode, fr.DestinationID, fr.SubjectID,
		fr.StartValidity, fr.ExpireValidity, string(fr.Status), pq.Array(fr.Sources), fr.BatchID,
		fr.CreatedAt, fr.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("flow request %s: %w", fr.FlowID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert flow request: %w", err)
	}
	return nil
}

const flowRequestColumns = `
	f.id, f.flow_id, f.process_id, f.destination_id, f.subject_id,
	f.start_validity, f.expire_validity, f.status, f.sources, f.batch_id,
	f.created_at, f.updated_at, p.code, p.version, p.payload
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlowRequest(row rowScanner) (*models.FlowRequest, error) {
	var (
		fr      models.FlowRequest
		status  string
		sources []string
		code    sql.NullString
		version sql.NullString
		payload sql.NullString
	)
	err := row.Scan(
		&fr.ID, &fr.FlowID, &fr.ProcessID, &fr.DestinationID, &fr.SubjectID,
		&fr.StartValidity, &fr.ExpireValidity, &status, pq.Array(&sources), &fr.BatchID,
		&fr.CreatedAt, &fr.UpdatedAt, &code, &version, &payload,
	)
	if err != nil {
		return nil, err
	}
	fr.Status = models.Status(status)
	fr.Sources = sources
	if code.Valid {
		fr.Profile = &models.Profile{Code: code.String, Version: version.String, Payload: payload.String}
	}
	return &fr, nil
}

func (p *Postgres) findFlowRequest(ctx context.Context, where string, arg any) (*models.FlowRequest, error) {
	query := `SELECT ` + flowRequestColumns + `
		FROM flow_requests f
		LEFT JOIN profiles p ON p.code = f.profile_code
		WHERE ` + where
	fr, err := scanFlowRequest(p.execer(ctx).QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find flow request: %w", err)
	}
	return fr, nil
}

func (p *Postgres) FindFlowRequest(ctx context.Context, id uuid.UUID) (*models.FlowRequest, error) {
	return p.findFlowRequest(ctx, "f.id = $1", id)
}

// FindFlowRequestForUpdate row-locks the flow request until the surrounding
// transaction ends.
func (p *Postgres) FindFlowRequestForUpdate(ctx context.Context, id uuid.UUID) (*models.FlowRequest, error) {
	return p.findFlowRequest(ctx, "f.id = $1 FOR UPDATE OF f", id)
}

func (p *Postgres) FindFlowRequestByProcessID(ctx context.Context, processID string) (*models.FlowRequest, error) {
	return p.findFlowRequest(ctx, "f.process_id = $1", processID)
}

func (p *Postgres) ListFlowRequests(ctx context.Context, filter FlowRequestFilter, page Page) ([]*models.FlowRequest, int, error) {
	var total int
	err := p.execer(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM flow_requests WHERE ($1 = '' OR destination_id = $1)
	`, filter.DestinationID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count flow requests: %w", err)
	}

	query := `SELECT ` + flowRequestColumns + `
		FROM flow_requests f
		LEFT JOIN profiles p ON p.code = f.profile_code
		WHERE ($1 = '' OR f.destination_id = $1)
		ORDER BY f.created_at, f.process_id
		OFFSET $2 LIMIT NULLIF($3, 0)
	`
	rows, err := p.execer(ctx).QueryContext(ctx, query, filter.DestinationID, page.Offset, page.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list flow requests: %w", err)
	}
	defer rows.Close()

	var out []*models.FlowRequest
	for rows.Next() {
		fr, err := scanFlowRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan flow request: %w", err)
		}
		out = append(out, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate flow requests: %w", err)
	}
	return out, total, nil
}

func (p *Postgres) UpdateFlowRequest(ctx context.Context, fr *models.FlowRequest, expected models.Status) error {
	res, err := p.execer(ctx).ExecContext(ctx, `
		UPDATE flow_requests
		SET status = $2, subject_id = $3, batch_id = $4, sources = $5::text[], updated_at = $6
		WHERE id = $1 AND status = $7
	`, fr.ID, string(fr.Status), fr.SubjectID, fr.BatchID, pq.Array(fr.Sources), fr.UpdatedAt, string(expected))
	if err != nil {
		return fmt.Errorf("update flow request: %w", err)
	}
	return p.expectOneRow(ctx, res, "flow_requests", "id", fr.ID)
}

// expectOneRow tells a missing row apart from a failed status precondition.
func (p *Postgres) expectOneRow(ctx context.Context, res sql.Result, table, column string, key any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1)`, table, column)
	if err := p.execer(ctx).QueryRowContext(ctx, query, key).Scan(&exists); err != nil {
		return fmt.Errorf("check %s: %w", table, err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrInvalidState
}

// DeleteFlowRequest relies on ON DELETE CASCADE for the owned rows.
func (p *Postgres) DeleteFlowRequest(ctx context.Context, id uuid.UUID) error {
	res, err := p.execer(ctx).ExecContext(ctx, `DELETE FROM flow_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete flow request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (p *Postgres) EnsureProfile(ctx context.Context, profile *models.Profile) error {
	_, err := p.execer(ctx).ExecContext(ctx, `
		INSERT INTO profiles (code, version, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO NOTHING
	`, profile.Code, profile.Version, profile.Payload)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	var payload string
	err = p.execer(ctx).QueryRowContext(ctx, `SELECT payload FROM profiles WHERE code = $1`, profile.Code).Scan(&payload)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	if payload != profile.Payload {
		return fmt.Errorf("profile %s: %w", profile.Code, sentinel.ErrConflict)
	}
	return nil
}

func (p *Postgres) CreateChannels(ctx context.Context, channels []*models.Channel) error {
	for _, ch := range channels {
		_, err := p.execer(ctx).ExecContext(ctx, `
			INSERT INTO channels (id, flow_request_id, source_id, destination_id, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, ch.ID, ch.FlowRequestID, ch.SourceID, ch.DestinationID, string(ch.Status), ch.CreatedAt, ch.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("channel for source %s: %w", ch.SourceID, sentinel.ErrConflict)
			}
			return fmt.Errorf("insert channel: %w", err)
		}
	}
	return nil
}

const channelColumns = `id, flow_request_id, source_id, destination_id, status, created_at, updated_at`

func scanChannel(row rowScanner) (*models.Channel, error) {
	var (
		ch     models.Channel
		status string
	)
	if err := row.Scan(&ch.ID, &ch.FlowRequestID, &ch.SourceID, &ch.DestinationID, &status, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
		return nil, err
	}
	ch.Status = models.ChannelStatus(status)
	return &ch, nil
}

func (p *Postgres) FindChannel(ctx context.Context, id string) (*models.Channel, error) {
	ch, err := scanChannel(p.execer(ctx).QueryRowContext(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find channel: %w", err)
	}
	return ch, nil
}

func (p *Postgres) ListChannels(ctx context.Context, filter ChannelFilter, page Page) ([]*models.Channel, int, error) {
	var flowRequestID *uuid.UUID
	if filter.FlowRequestID != uuid.Nil {
		flowRequestID = &filter.FlowRequestID
	}
	where := `
		WHERE ($1 = '' OR destination_id = $1)
		  AND ($2::uuid IS NULL OR flow_request_id = $2)
		  AND ($3 = '' OR status = $3)
	`
	args := []any{filter.DestinationID, flowRequestID, string(filter.Status)}

	var total int
	if err := p.execer(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM channels `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count channels: %w", err)
	}

	query := `SELECT ` + channelColumns + ` FROM channels ` + where + `
		ORDER BY created_at, id
		OFFSET $4 LIMIT NULLIF($5, 0)
	`
	rows, err := p.execer(ctx).QueryContext(ctx, query, append(args, page.Offset, page.Limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var out []*models.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate channels: %w", err)
	}
	return out, total, nil
}

func (p *Postgres) UpdateChannel(ctx context.Context, c *models.Channel, expected models.ChannelStatus) error {
	res, err := p.execer(ctx).ExecContext(ctx, `
		UPDATE channels SET status = $2, updated_at = $3
		WHERE id = $1 AND status = $4
	`, c.ID, string(c.Status), c.UpdatedAt, string(expected))
	if err != nil {
		return fmt.Errorf("update channel: %w", err)
	}
	return p.expectOneRow(ctx, res, "channels", "id", c.ID)
}

func (p *Postgres) CreateCode(ctx context.Context, code *models.ConfirmationCode) error {
	_, err := p.execer(ctx).ExecContext(ctx, `
		INSERT INTO confirmation_codes (code, flow_request_id, action, created_at, expires_at, consumed)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, code.Code, code.FlowRequestID, string(code.Action), code.CreatedAt, code.ExpiresAt, code.Consumed)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert confirmation code: %w", err)
	}
	return nil
}

func (p *Postgres) InvalidateCodes(ctx context.Context, flowRequestID uuid.UUID) error {
	_, err := p.execer(ctx).ExecContext(ctx, `
		UPDATE confirmation_codes SET consumed = TRUE
		WHERE flow_request_id = $1 AND NOT consumed
	`, flowRequestID)
	if err != nil {
		return fmt.Errorf("invalidate confirmation codes: %w", err)
	}
	return nil
}

// ConsumeCode locks the code row, so a concurrent consumer waits for this
// transaction and then sees the code consumed.
func (p *Postgres) ConsumeCode(ctx context.Context, code string, now time.Time) (*models.ConfirmationCode, error) {
	var (
		record models.ConfirmationCode
		action string
	)
	err := p.execer(ctx).QueryRowContext(ctx, `
		SELECT code, flow_request_id, action, created_at, expires_at, consumed
		FROM confirmation_codes WHERE code = $1
		FOR UPDATE
	`, code).Scan(&record.Code, &record.FlowRequestID, &action, &record.CreatedAt, &record.ExpiresAt, &record.Consumed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("load confirmation code: %w", err)
	}
	record.Action = models.Action(action)
	if err := record.ValidateForConsume(now); err != nil {
		return nil, err
	}
	if _, err := p.execer(ctx).ExecContext(ctx, `UPDATE confirmation_codes SET consumed = TRUE WHERE code = $1`, code); err != nil {
		return nil, fmt.Errorf("consume confirmation code: %w", err)
	}
	record.Consumed = true
	return &record, nil
}

func (p *Postgres) CreateConfirmations(ctx context.Context, confirmations []*models.ConsentConfirmation) error {
	for _, c := range confirmations {
		_, err := p.execer(ctx).ExecContext(ctx, `
			INSERT INTO consent_confirmations (
				confirm_id, consent_id, channel_id, flow_request_id, batch_id,
				callback_url, resolved, success, created_at, resolved_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, c.ConfirmID, c.ConsentID, c.ChannelID, c.FlowRequestID, c.BatchID,
			c.CallbackURL, c.Resolved, c.Success, c.CreatedAt, c.ResolvedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("confirmation %s: %w", c.ConfirmID, sentinel.ErrConflict)
			}
			return fmt.Errorf("insert consent confirmation: %w", err)
		}
	}
	return nil
}

const confirmationColumns = `
	confirm_id, consent_id, channel_id, flow_request_id, batch_id,
	callback_url, resolved, success, created_at, resolved_at
`

func scanConfirmation(row rowScanner) (*models.ConsentConfirmation, error) {
	var (
		c          models.ConsentConfirmation
		resolvedAt sql.NullTime
	)
	err := row.Scan(&c.ConfirmID, &c.ConsentID, &c.ChannelID, &c.FlowRequestID, &c.BatchID,
		&c.CallbackURL, &c.Resolved, &c.Success, &c.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		c.ResolvedAt = &resolvedAt.Time
	}
	return &c, nil
}

func (p *Postgres) FindConfirmation(ctx context.Context, confirmID string) (*models.ConsentConfirmation, error) {
	c, err := scanConfirmation(p.execer(ctx).QueryRowContext(ctx,
		`SELECT `+confirmationColumns+` FROM consent_confirmations WHERE confirm_id = $1`, confirmID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find consent confirmation: %w", err)
	}
	return c, nil
}

func (p *Postgres) ListConfirmationsByBatch(ctx context.Context, batchID string) ([]*models.ConsentConfirmation, error) {
	rows, err := p.execer(ctx).QueryContext(ctx,
		`SELECT `+confirmationColumns+` FROM consent_confirmations WHERE batch_id = $1 ORDER BY confirm_id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list consent confirmations: %w", err)
	}
	defer rows.Close()

	var out []*models.ConsentConfirmation
	for rows.Next() {
		c, err := scanConfirmation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent confirmation: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consent confirmations: %w", err)
	}
	return out, nil
}

func (p *Postgres) FindOpenConfirmation(ctx context.Context, channelID string) (*models.ConsentConfirmation, error) {
	c, err := scanConfirmation(p.execer(ctx).QueryRowContext(ctx, `
		SELECT `+confirmationColumns+` FROM consent_confirmations
		WHERE channel_id = $1 AND NOT resolved
		ORDER BY created_at DESC
		LIMIT 1
	`, channelID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find open consent confirmation: %w", err)
	}
	return c, nil
}

func (p *Postgres) MoveConfirmation(ctx context.Context, c *models.ConsentConfirmation) error {
	res, err := p.execer(ctx).ExecContext(ctx, `
		UPDATE consent_confirmations
		SET batch_id = $2, callback_url = $3
		WHERE confirm_id = $1 AND NOT resolved
	`, c.ConfirmID, c.BatchID, c.CallbackURL)
	if err != nil {
		return fmt.Errorf("move consent confirmation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		if _, err := p.FindConfirmation(ctx, c.ConfirmID); err != nil {
			return err
		}
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (p *Postgres) ResolveConfirmation(ctx context.Context, c *models.ConsentConfirmation) error {
	res, err := p.execer(ctx).ExecContext(ctx, `
		UPDATE consent_confirmations
		SET resolved = TRUE, success = $2, resolved_at = $3
		WHERE confirm_id = $1 AND NOT resolved
	`, c.ConfirmID, c.Success, c.ResolvedAt)
	if err != nil {
		return fmt.Errorf("resolve consent confirmation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		if _, err := p.FindConfirmation(ctx, c.ConfirmID); err != nil {
			return err
		}
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*memoryState)(nil)
	_ Tx    = (*Postgres)(nil)
	_ Tx    = (*InMemory)(nil)
)
