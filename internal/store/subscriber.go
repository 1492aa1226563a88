package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/maillist/internal/errs"
	"github.com/foxzi/maillist/internal/models"
)

// SubscriberStore persists per-list subscriber records. The schema
// enforces one subscriber per (list_id, email) and a globally unique
// token.
type SubscriberStore struct {
	db *sql.DB
}

func NewSubscriberStore(db *sql.DB) *SubscriberStore {
	return &SubscriberStore{db: db}
}

// Insert persists a new subscriber, assigning ID and timestamps.
// A unique-constraint violation (duplicate email within the list, or a
// token collision) is returned as a ConflictError so callers can
// classify it without crashing the batch.
func (s *SubscriberStore) Insert(ctx context.Context, sub *models.Subscriber) error {
	sub.ID = uuid.New().String()
	sub.CreatedAt = time.Now()
	sub.UpdatedAt = sub.CreatedAt

	propsJSON, err := sub.Properties.MarshalDB()
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO subscribers (id, list_id, name, email, token, properties, unsubscribed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.ListID, sub.Name, sub.Email, sub.Token, propsJSON, sub.Unsubscribed, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return errs.Conflictf("duplicate email")
		}
		return fmt.Errorf("failed to insert subscriber: %w", err)
	}
	return nil
}

// FindByListAndEmail returns the subscriber with the given email in the
// given list, or nil when none exists.
func (s *SubscriberStore) FindByListAndEmail(ctx context.Context, listID, email string) (*models.Subscriber, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, list_id, name, email, token, properties, unsubscribed, created_at, updated_at
		FROM subscribers WHERE list_id = ? AND email = ?`, listID, email)
	return scanSubscriber(row)
}

// FindByToken returns the subscriber holding the given token, or nil.
func (s *SubscriberStore) FindByToken(ctx context.Context, token string) (*models.Subscriber, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, list_id, name, email, token, properties, unsubscribed, created_at, updated_at
		FROM subscribers WHERE token = ?`, token)
	return scanSubscriber(row)
}

// ListActive returns the list's subscribers with unsubscribed=false, in
// insertion order.
func (s *SubscriberStore) ListActive(ctx context.Context, listID string) ([]*models.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, list_id, name, email, token, properties, unsubscribed, created_at, updated_at
		FROM subscribers WHERE list_id = ? AND unsubscribed = 0
		ORDER BY created_at, id`, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []*models.Subscriber{}
	for rows.Next() {
		sub, err := scanSubscriberRow(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// CountByList returns the number of subscribers in a list, regardless of
// unsubscribe state.
func (s *SubscriberStore) CountByList(ctx context.Context, listID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM subscribers WHERE list_id = ?", listID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count subscribers: %w", err)
	}
	return count, nil
}

// Unsubscribe flips the unsubscribed flag for the subscriber holding the
// token. The transition is one-way: a second call with the same token is
// a conflict, not a silent no-op.
func (s *SubscriberStore) Unsubscribe(ctx context.Context, token string) (*models.Subscriber, error) {
	if token == "" {
		return nil, errs.Validationf("token is required")
	}

	sub, err := s.FindByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}
	if sub == nil {
		return nil, errs.NotFoundf("invalid token")
	}
	if sub.Unsubscribed {
		return nil, errs.Conflictf("user is already unsubscribed")
	}

	sub.Unsubscribed = true
	sub.UpdatedAt = time.Now()
	_, err = s.db.ExecContext(ctx,
		"UPDATE subscribers SET unsubscribed = 1, updated_at = ? WHERE id = ?",
		sub.UpdatedAt, sub.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to unsubscribe: %w", err)
	}
	return sub, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscriber(row *sql.Row) (*models.Subscriber, error) {
	sub, err := scanSubscriberRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func scanSubscriberRow(row rowScanner) (*models.Subscriber, error) {
	sub := &models.Subscriber{}
	var propsJSON string
	err := row.Scan(&sub.ID, &sub.ListID, &sub.Name, &sub.Email, &sub.Token,
		&propsJSON, &sub.Unsubscribed, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := sub.Properties.UnmarshalDB(propsJSON); err != nil {
		return nil, err
	}
	return sub, nil
}
