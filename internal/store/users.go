package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/catread/internal/apperr"
	"github.com/starford/catread/internal/models"
)

// CreateUser inserts a user. A taken username yields apperr.ErrAlreadyExists.
func (db *DB) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	u := models.User{Username: username, PasswordHash: passwordHash, CreatedAt: time.Now().UTC()}
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		u.Username, u.PasswordHash, u.CreatedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("store: user %q: %w", username, apperr.ErrAlreadyExists)
	}
	if err != nil {
		return nil, fmt.Errorf("store: insert user: %w", err)
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("store: user id: %w", err)
	}
	return &u, nil
}

// GetUser returns a user by id.
func (db *DB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return db.getUser(ctx, `WHERE id = ?`, id)
}

// GetUserByUsername returns a user by username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return db.getUser(ctx, `WHERE username = ?`, username)
}

func (db *DB) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	var u models.User
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users `+where, arg,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: user %v: %w", arg, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user: %w", err)
	}
	return &u, nil
}
