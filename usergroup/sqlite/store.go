// Package sqlite implements usergroup.Service and usergroup.RoleService on
// an SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/oauth2preauth/go-oauth2-filter/usergroup"
	"github.com/oauth2preauth/go-oauth2-filter/usergroup/sqlite/migrations"
)

var (
	_ usergroup.Service     = (*Store)(nil)
	_ usergroup.RoleService = (*Store)(nil)
)

type Store struct {
	db  *sql.DB
	dsn string
}

// NewStore opens the database at dsn. Call ApplyMigrations before first use.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Enforce FKs
	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, dsn: dsn}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ApplyMigrations applies any pending migrations from the embedded schema.
func (s *Store) ApplyMigrations() error {
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return err
	}

	source, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return err
	}

	instance, err := migrate.NewWithInstance("iofs", source, "", driver)
	if err != nil {
		return err
	}

	if err := instance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// GetUserByUsername implements usergroup.Service.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*usergroup.User, error) {
	var enabled bool
	err := s.db.QueryRowContext(ctx,
		`SELECT enabled FROM users WHERE username = ?`, username).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user %q: %w", username, err)
	}

	groups, err := s.strings(ctx,
		`SELECT group_name FROM user_groups WHERE username = ? ORDER BY rowid`, username)
	if err != nil {
		return nil, fmt.Errorf("query groups of %q: %w", username, err)
	}

	return &usergroup.User{Username: username, Enabled: enabled, Groups: groups}, nil
}

// RolesForUser implements usergroup.RoleService.
func (s *Store) RolesForUser(ctx context.Context, username string) ([]string, error) {
	return s.strings(ctx, `SELECT role FROM user_roles WHERE username = ? ORDER BY rowid`, username)
}

// RolesForGroup implements usergroup.RoleService.
func (s *Store) RolesForGroup(ctx context.Context, group string) ([]string, error) {
	return s.strings(ctx, `SELECT role FROM group_roles WHERE group_name = ? ORDER BY rowid`, group)
}

// CreateUser inserts or updates a user and its group memberships.
func (s *Store) CreateUser(ctx context.Context, u usergroup.User) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (username, enabled) VALUES (?, ?)
			 ON CONFLICT(username) DO UPDATE SET enabled = excluded.enabled`,
			u.Username, u.Enabled); err != nil {
			return err
		}
		for _, g := range u.Groups {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO user_groups (username, group_name) VALUES (?, ?)`,
				u.Username, g); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetEnabled flips the enabled flag of an existing user.
func (s *Store) SetEnabled(ctx context.Context, username string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET enabled = ? WHERE username = ?`, enabled, username)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("user %q not found", username)
	}
	return nil
}

// AddUserToGroup adds an existing user to group.
func (s *Store) AddUserToGroup(ctx context.Context, username, group string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_groups (username, group_name) VALUES (?, ?)`, username, group)
	return err
}

func (s *Store) GrantUserRole(ctx context.Context, username, role string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_roles (username, role) VALUES (?, ?)`, username, role)
	return err
}

func (s *Store) GrantGroupRole(ctx context.Context, group, role string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO group_roles (group_name, role) VALUES (?, ?)`, group, role)
	return err
}

func (s *Store) strings(ctx context.Context, query string, arg any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() // safe to call even after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
