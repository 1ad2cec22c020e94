// Package postgres is the PostgreSQL IdentityStore and TenantDirectory, built
// on sqlx over the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/internal/ids"
)

const uniqueViolation = "23505"

// Schema creates the tables the store needs. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS tenants (
  id TEXT PRIMARY KEY,
  domain TEXT NOT NULL UNIQUE,
  active BOOLEAN NOT NULL DEFAULT true,
  plan TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS principals (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  email TEXT NOT NULL,
  password_hash TEXT NOT NULL DEFAULT '',
  first_name TEXT NOT NULL DEFAULT '',
  last_name TEXT NOT NULL DEFAULT '',
  phone TEXT NOT NULL DEFAULT '',
  two_factor_enabled BOOLEAN NOT NULL DEFAULT false,
  two_factor_secret TEXT NOT NULL DEFAULT '',
  failed_login_attempts INT NOT NULL DEFAULT 0,
  locked_until TIMESTAMPTZ,
  allowed_ips JSONB NOT NULL DEFAULT '[]'::jsonb,
  permissions JSONB NOT NULL DEFAULT '[]'::jsonb,
  roles JSONB NOT NULL DEFAULT '[]'::jsonb,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  deleted_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS principals_tenant_email
  ON principals (tenant_id, lower(email)) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS principals_email ON principals (lower(email));
CREATE TABLE IF NOT EXISTS roles (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  name TEXT NOT NULL,
  permissions JSONB NOT NULL DEFAULT '[]'::jsonb,
  UNIQUE (tenant_id, name)
);
`

type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type Store struct {
	db *sqlx.DB
}

// Open connects with the pgx driver and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sqlx.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema applies Schema.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

// stringList is a []string stored as a JSON array.
type stringList []string

func (l stringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	raw, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (l *stringList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("stringList: unsupported type %T", src)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*l = out
	return nil
}

type principalRow struct {
	ID                  string       `db:"id"`
	TenantID            string       `db:"tenant_id"`
	Email               string       `db:"email"`
	PasswordHash        string       `db:"password_hash"`
	FirstName           string       `db:"first_name"`
	LastName            string       `db:"last_name"`
	Phone               string       `db:"phone"`
	TwoFactorEnabled    bool         `db:"two_factor_enabled"`
	TwoFactorSecret     string       `db:"two_factor_secret"`
	FailedLoginAttempts int          `db:"failed_login_attempts"`
	LockedUntil         sql.NullTime `db:"locked_until"`
	AllowedIPs          stringList   `db:"allowed_ips"`
	Permissions         stringList   `db:"permissions"`
	Roles               stringList   `db:"roles"`
	CreatedAt           time.Time    `db:"created_at"`
	UpdatedAt           time.Time    `db:"updated_at"`
	DeletedAt           sql.NullTime `db:"deleted_at"`
}

const principalColumns = `id, tenant_id, email, password_hash, first_name, last_name, phone,
	two_factor_enabled, two_factor_secret, failed_login_attempts, locked_until,
	allowed_ips, permissions, roles, created_at, updated_at, deleted_at`

func (r *principalRow) principal() *shopauth.Principal {
	p := &shopauth.Principal{
		ID:                  r.ID,
		TenantID:            r.TenantID,
		Email:               r.Email,
		PasswordHash:        r.PasswordHash,
		FirstName:           r.FirstName,
		LastName:            r.LastName,
		Phone:               r.Phone,
		TwoFactorEnabled:    r.TwoFactorEnabled,
		TwoFactorSecret:     r.TwoFactorSecret,
		FailedLoginAttempts: r.FailedLoginAttempts,
		AllowedIPs:          r.AllowedIPs,
		Permissions:         r.Permissions,
		Roles:               r.Roles,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
	if r.LockedUntil.Valid {
		p.LockedUntil = r.LockedUntil.Time
	}
	if r.DeletedAt.Valid {
		d := r.DeletedAt.Time
		p.DeletedAt = &d
	}
	return p
}

func (s *Store) getPrincipal(ctx context.Context, query string, args ...any) (*shopauth.Principal, error) {
	var row principalRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shopauth.ErrIdentityNotFound
		}
		return nil, err
	}
	return row.principal(), nil
}

func (s *Store) FindByEmailInTenant(ctx context.Context, tenantID, email string) (*shopauth.Principal, error) {
	return s.getPrincipal(ctx,
		`SELECT `+principalColumns+` FROM principals
		WHERE tenant_id = $1 AND lower(email) = $2 AND deleted_at IS NULL`,
		tenantID, shopauth.NormalizeEmail(email))
}

func (s *Store) FindByEmailGlobal(ctx context.Context, email string) (*shopauth.Principal, error) {
	return s.getPrincipal(ctx,
		`SELECT `+principalColumns+` FROM principals
		WHERE lower(email) = $1 AND deleted_at IS NULL
		ORDER BY created_at LIMIT 1`,
		shopauth.NormalizeEmail(email))
}

func (s *Store) FindByID(ctx context.Context, id string) (*shopauth.Principal, error) {
	return s.getPrincipal(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = $1`, id)
}

func (s *Store) Create(ctx context.Context, p *shopauth.Principal) error {
	if p.ID == "" {
		p.ID = ids.New()
	}
	p.Email = shopauth.NormalizeEmail(p.Email)
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO principals (id, tenant_id, email, password_hash, first_name, last_name, phone,
			two_factor_enabled, two_factor_secret, allowed_ips, permissions, roles)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		p.ID, p.TenantID, p.Email, p.PasswordHash, p.FirstName, p.LastName, p.Phone,
		p.TwoFactorEnabled, p.TwoFactorSecret,
		stringList(p.AllowedIPs), stringList(p.Permissions), stringList(p.Roles),
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return shopauth.ErrEmailAlreadyUsed
		}
		return err
	}
	return nil
}

// Save writes every mutable column. tenant_id and created_at are never
// updated.
func (s *Store) Save(ctx context.Context, p *shopauth.Principal) error {
	var lockedUntil sql.NullTime
	if !p.LockedUntil.IsZero() {
		lockedUntil = sql.NullTime{Time: p.LockedUntil, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE principals SET password_hash = $2, first_name = $3, last_name = $4, phone = $5,
			two_factor_enabled = $6, two_factor_secret = $7, failed_login_attempts = $8,
			locked_until = $9, allowed_ips = $10, permissions = $11, roles = $12, updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.PasswordHash, p.FirstName, p.LastName, p.Phone,
		p.TwoFactorEnabled, p.TwoFactorSecret, p.FailedLoginAttempts,
		lockedUntil, stringList(p.AllowedIPs), stringList(p.Permissions), stringList(p.Roles),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return shopauth.ErrIdentityNotFound
	}
	return nil
}

type roleRow struct {
	ID          string     `db:"id"`
	TenantID    string     `db:"tenant_id"`
	Name        string     `db:"name"`
	Permissions stringList `db:"permissions"`
}

func (r roleRow) role() *shopauth.Role {
	return &shopauth.Role{ID: r.ID, TenantID: r.TenantID, Name: r.Name, Permissions: r.Permissions}
}

// EnsureRole inserts the role when missing and returns the stored row, so
// concurrent callers agree on one role.
func (s *Store) EnsureRole(ctx context.Context, tenantID, name string, perms []string) (*shopauth.Role, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO roles (id, tenant_id, name, permissions) VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, name) DO NOTHING`,
		ids.New(), tenantID, name, stringList(perms))
	if err != nil {
		return nil, err
	}
	return s.FindRole(ctx, tenantID, name)
}

func (s *Store) FindRole(ctx context.Context, tenantID, name string) (*shopauth.Role, error) {
	var row roleRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, tenant_id, name, permissions FROM roles WHERE tenant_id = $1 AND name = $2`,
		tenantID, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shopauth.ErrRoleNotFound
		}
		return nil, err
	}
	return row.role(), nil
}

func (s *Store) SetRolePermissions(ctx context.Context, tenantID, name string, perms []string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE roles SET permissions = $3 WHERE tenant_id = $1 AND name = $2`,
		tenantID, name, stringList(perms))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return shopauth.ErrRoleNotFound
	}
	return nil
}

func (s *Store) UserIDsWithRole(ctx context.Context, tenantID, name string) ([]string, error) {
	var out []string
	err := s.db.SelectContext(ctx, &out,
		`SELECT id FROM principals
		WHERE tenant_id = $1 AND roles @> jsonb_build_array($2::text) AND deleted_at IS NULL
		ORDER BY id`,
		tenantID, name)
	return out, err
}

type tenantRow struct {
	ID     string `db:"id"`
	Domain string `db:"domain"`
	Active bool   `db:"active"`
	Plan   string `db:"plan"`
}

func (s *Store) FindTenant(ctx context.Context, id string) (*shopauth.Tenant, error) {
	var row tenantRow
	err := s.db.GetContext(ctx, &row, `SELECT id, domain, active, plan FROM tenants WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shopauth.ErrIdentityNotFound
		}
		return nil, err
	}
	return &shopauth.Tenant{ID: row.ID, Domain: row.Domain, Active: row.Active, Plan: row.Plan}, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]shopauth.Tenant, error) {
	var rows []tenantRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, domain, active, plan FROM tenants ORDER BY id`); err != nil {
		return nil, err
	}
	out := make([]shopauth.Tenant, 0, len(rows))
	for _, r := range rows {
		out = append(out, shopauth.Tenant{ID: r.ID, Domain: r.Domain, Active: r.Active, Plan: r.Plan})
	}
	return out, nil
}
