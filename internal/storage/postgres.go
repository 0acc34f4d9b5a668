package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/org/archpilot/pkg/models"
)

// PostgresBackend is a StorageBackend backed by PostgreSQL.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend opens a pgxpool connection and returns a ready backend.
func NewPostgresBackend(ctx context.Context, connStr string) (*PostgresBackend, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

func (p *PostgresBackend) Close() {
	p.pool.Close()
}

// --- Identities ---

func (p *PostgresBackend) CreateIdentity(ctx context.Context, identity *models.Identity) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO identities (id, email, password_hash, verified, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)`,
		identity.ID, identity.Email, identity.PasswordHash, identity.Verified, identity.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (p *PostgresBackend) GetIdentity(ctx context.Context, id string) (*models.Identity, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, verified, created_at, updated_at
		 FROM identities WHERE id = $1`,
		id,
	)
	return scanIdentity(row)
}

func (p *PostgresBackend) GetIdentityByEmail(ctx context.Context, email string) (*models.Identity, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, verified, created_at, updated_at
		 FROM identities WHERE email = $1`,
		email,
	)
	return scanIdentity(row)
}

func scanIdentity(row pgx.Row) (*models.Identity, error) {
	var i models.Identity
	err := row.Scan(&i.ID, &i.Email, &i.PasswordHash, &i.Verified, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &i, nil
}

func (p *PostgresBackend) DeleteIdentity(ctx context.Context, id string) error {
	// Credentials and sessions go with the identity (FK cascade).
	_, err := p.pool.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
	return err
}

// --- Passcodes ---

func (p *PostgresBackend) SetPasscode(ctx context.Context, identityID, code string, expiresAt time.Time) error {
	// One UPDATE supersedes whatever code was active before it. Under
	// concurrent resends the last committed writer wins and exactly one
	// code remains active.
	tag, err := p.pool.Exec(ctx,
		`UPDATE identities
		 SET passcode = $2, passcode_expires_at = $3, updated_at = NOW()
		 WHERE id = $1`,
		identityID, code, expiresAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresBackend) GetPasscode(ctx context.Context, identityID string) (*models.Passcode, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, passcode, passcode_expires_at, verified FROM identities WHERE id = $1`,
		identityID,
	)
	var pc models.Passcode
	err := row.Scan(&pc.IdentityID, &pc.Code, &pc.ExpiresAt, &pc.Consumed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &pc, nil
}

func (p *PostgresBackend) MarkVerified(ctx context.Context, identityID string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE identities
		 SET verified = TRUE, passcode = NULL, passcode_expires_at = NULL, updated_at = NOW()
		 WHERE id = $1`,
		identityID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Credentials ---

func (p *PostgresBackend) GetCredential(ctx context.Context, identityID string) (*models.StoredCredential, error) {
	cred := &models.StoredCredential{
		IdentityID:   identityID,
		ProviderKeys: map[models.Provider]string{},
	}

	var found bool
	err := p.pool.QueryRow(ctx,
		`SELECT COALESCE(linked_token, ''), updated_at FROM credentials WHERE identity_id = $1`,
		identityID,
	).Scan(&cred.LinkedToken, &cred.UpdatedAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	found = err == nil

	rows, err := p.pool.Query(ctx,
		`SELECT provider, blob FROM credential_keys WHERE identity_id = $1`,
		identityID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var provider, blob string
		if err := rows.Scan(&provider, &blob); err != nil {
			return nil, err
		}
		cred.ProviderKeys[models.Provider(provider)] = blob
		found = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !found {
		return nil, ErrNotFound
	}
	return cred, nil
}

func (p *PostgresBackend) SetCredentialField(ctx context.Context, identityID, field, blob string) error {
	if field == FieldLinkedToken {
		_, err := p.pool.Exec(ctx,
			`INSERT INTO credentials (identity_id, linked_token, updated_at)
			 VALUES ($1, $2, NOW())
			 ON CONFLICT (identity_id) DO UPDATE SET linked_token = EXCLUDED.linked_token, updated_at = NOW()`,
			identityID, blob,
		)
		return err
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO credential_keys (identity_id, provider, blob, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (identity_id, provider) DO UPDATE SET blob = EXCLUDED.blob, updated_at = NOW()`,
		identityID, field, blob,
	)
	return err
}

func (p *PostgresBackend) DeleteCredentialField(ctx context.Context, identityID, field string) error {
	if field == FieldLinkedToken {
		_, err := p.pool.Exec(ctx,
			`UPDATE credentials SET linked_token = NULL, updated_at = NOW() WHERE identity_id = $1`,
			identityID,
		)
		return err
	}
	_, err := p.pool.Exec(ctx,
		`DELETE FROM credential_keys WHERE identity_id = $1 AND provider = $2`,
		identityID, field,
	)
	return err
}

func (p *PostgresBackend) PurgeCredential(ctx context.Context, identityID string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM credential_keys WHERE identity_id = $1`, identityID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM credentials WHERE identity_id = $1`, identityID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// --- Sessions ---

func (p *PostgresBackend) WriteSession(ctx context.Context, session *models.Session, tokenHash string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO sessions (id, token_hash, identity_id, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		session.ID, tokenHash, session.IdentityID, session.CreatedAt, session.ExpiresAt,
	)
	return err
}

func (p *PostgresBackend) GetSession(ctx context.Context, tokenHash string) (*models.Session, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, identity_id, created_at, expires_at, revoked_at
		 FROM sessions WHERE token_hash = $1`,
		tokenHash,
	)
	var s models.Session
	err := row.Scan(&s.ID, &s.IdentityID, &s.CreatedAt, &s.ExpiresAt, &s.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (p *PostgresBackend) RevokeSession(ctx context.Context, sessionID string) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE sessions SET revoked_at = NOW() WHERE id = $1`,
		sessionID,
	)
	return err
}

// --- Designs ---

func (p *PostgresBackend) SaveDesign(ctx context.Context, design *models.DesignResult) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO designs (id, identity_id, provider, tier, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		design.ID, design.IdentityID, string(design.Provider), design.Tier, design.Content, design.CreatedAt,
	)
	return err
}

func (p *PostgresBackend) ListDesigns(ctx context.Context, identityID string, limit int) ([]*models.DesignResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx,
		`SELECT id, identity_id, provider, tier, content, created_at
		 FROM designs WHERE identity_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		identityID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var designs []*models.DesignResult
	for rows.Next() {
		var d models.DesignResult
		var provider string
		if err := rows.Scan(&d.ID, &d.IdentityID, &provider, &d.Tier, &d.Content, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.Provider = models.Provider(provider)
		designs = append(designs, &d)
	}
	return designs, rows.Err()
}

// --- Audit ---

func (p *PostgresBackend) WriteAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO audit_log (request_id, timestamp, identity_id, operation, path, status, response_code, response_time_ms, client_ip)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.RequestID, entry.Timestamp, entry.IdentityID, entry.Operation, entry.Path,
		entry.Status, entry.ResponseCode, entry.ResponseTimeMs, entry.ClientIP,
	)
	return err
}

func (p *PostgresBackend) QueryAuditLog(ctx context.Context, filter AuditFilter) ([]*models.AuditEntry, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT id, request_id, timestamp, identity_id, operation, path, status, response_code, response_time_ms, client_ip FROM audit_log WHERE 1=1`)
	args := []any{}
	n := 1
	if filter.IdentityID != "" {
		fmt.Fprintf(&query, ` AND identity_id = $%d`, n)
		args = append(args, filter.IdentityID)
		n++
	}
	if filter.Path != "" {
		fmt.Fprintf(&query, ` AND path LIKE $%d`, n)
		args = append(args, filter.Path+"%")
		n++
	}
	if filter.Since != nil {
		fmt.Fprintf(&query, ` AND timestamp >= $%d`, n)
		args = append(args, filter.Since)
		n++
	}
	query.WriteString(` ORDER BY timestamp DESC`)
	if filter.Limit > 0 {
		fmt.Fprintf(&query, ` LIMIT $%d`, n)
		args = append(args, filter.Limit)
		n++
	}
	if filter.Offset > 0 {
		fmt.Fprintf(&query, ` OFFSET $%d`, n)
		args = append(args, filter.Offset)
	}

	rows, err := p.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Timestamp, &e.IdentityID, &e.Operation,
			&e.Path, &e.Status, &e.ResponseCode, &e.ResponseTimeMs, &e.ClientIP); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
