package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/foxzi/maillist/internal/errs"
	"github.com/foxzi/maillist/internal/models"
)

// ListStore persists list definitions and their custom-property schema.
type ListStore struct {
	db *sql.DB
}

func NewListStore(db *sql.DB) *ListStore {
	return &ListStore{db: db}
}

// Create persists a new list. The title must be non-empty and unique
// (case-sensitive); property definitions must have non-empty, pairwise
// distinct titles. Duplicate titles would make placeholder resolution
// ambiguous, so they are rejected here instead of silently picking one.
func (s *ListStore) Create(ctx context.Context, title string, props []models.CustomProperty) (*models.List, error) {
	if title == "" {
		return nil, errs.Validationf("title is required")
	}

	seen := make(map[string]struct{}, len(props))
	for _, p := range props {
		if p.Title == "" {
			return nil, errs.Validationf("custom property title is required")
		}
		if _, dup := seen[p.Title]; dup {
			return nil, errs.Validationf("duplicate custom property title: %s", p.Title)
		}
		seen[p.Title] = struct{}{}
	}

	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM lists WHERE title = ?", title).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check list title: %w", err)
	}
	if exists > 0 {
		return nil, errs.Conflictf("a list with the same title already exists")
	}

	if props == nil {
		props = []models.CustomProperty{}
	}
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal properties: %w", err)
	}

	list := &models.List{
		ID:         uuid.New().String(),
		Title:      title,
		Properties: props,
		CreatedAt:  time.Now(),
	}
	list.UpdatedAt = list.CreatedAt

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO lists (id, title, properties, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		list.ID, list.Title, string(propsJSON), list.CreatedAt, list.UpdatedAt,
	)
	if err != nil {
		// The UNIQUE constraint backstops the title check above
		if IsUniqueViolation(err) {
			return nil, errs.Conflictf("a list with the same title already exists")
		}
		return nil, fmt.Errorf("failed to create list: %w", err)
	}

	return list, nil
}

// GetByID returns a list by ID, or nil when no such list exists.
func (s *ListStore) GetByID(ctx context.Context, id string) (*models.List, error) {
	list := &models.List{}
	var propsJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, properties, created_at, updated_at
		FROM lists WHERE id = ?`, id,
	).Scan(&list.ID, &list.Title, &propsJSON, &list.CreatedAt, &list.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(propsJSON), &list.Properties); err != nil {
		return nil, fmt.Errorf("failed to unmarshal properties: %w", err)
	}
	return list, nil
}

// List returns all lists, newest first.
func (s *ListStore) List(ctx context.Context) ([]models.List, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, properties, created_at, updated_at
		FROM lists ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lists := []models.List{}
	for rows.Next() {
		var list models.List
		var propsJSON string
		if err := rows.Scan(&list.ID, &list.Title, &propsJSON, &list.CreatedAt, &list.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(propsJSON), &list.Properties); err != nil {
			return nil, fmt.Errorf("failed to unmarshal properties: %w", err)
		}
		lists = append(lists, list)
	}
	return lists, rows.Err()
}

// IsUniqueViolation reports whether err is a SQLite UNIQUE constraint
// violation.
func IsUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
