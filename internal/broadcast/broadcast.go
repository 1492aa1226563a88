// Package broadcast implements the mail-merge broadcast engine: it picks
// the list's subscribed members, renders the template per subscriber and
// dispatches through the mail transport.
package broadcast

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/foxzi/maillist/internal/errs"
	"github.com/foxzi/maillist/internal/merge"
	"github.com/foxzi/maillist/internal/models"
)

// Transport delivers a single rendered message.
type Transport interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// ListGetter resolves list definitions.
type ListGetter interface {
	GetByID(ctx context.Context, id string) (*models.List, error)
}

// SubscriberSource yields the subscribers eligible for dispatch.
type SubscriberSource interface {
	ListActive(ctx context.Context, listID string) ([]*models.Subscriber, error)
}

// DispatchFailure records one subscriber whose dispatch failed.
type DispatchFailure struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

// Result is the outcome of one broadcast invocation.
type Result struct {
	Sent     int               `json:"sentCount"`
	Failures []DispatchFailure `json:"failures,omitempty"`
}

// Engine performs templated broadcast to a list.
type Engine struct {
	lists     ListGetter
	subs      SubscriberSource
	transport Transport
	baseURL   string
	logger    *slog.Logger
}

func New(lists ListGetter, subs SubscriberSource, transport Transport, unsubscribeBaseURL string, logger *slog.Logger) *Engine {
	return &Engine{
		lists:     lists,
		subs:      subs,
		transport: transport,
		baseURL:   unsubscribeBaseURL,
		logger:    logger.With("component", "broadcast"),
	}
}

// Broadcast renders subject/body for every subscribed member of the list
// and dispatches each through the transport. Eligibility is computed once
// up front and not re-evaluated per send. A transport failure for one
// subscriber does not halt the rest; failures are collected into the
// result instead of being swallowed.
func (e *Engine) Broadcast(ctx context.Context, listID, subject, body string) (*Result, error) {
	list, err := e.lists.GetByID(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("failed to load list: %w", err)
	}
	if list == nil {
		return nil, errs.NotFoundf("list not found")
	}
	if subject == "" || body == "" {
		return nil, errs.Validationf("subject and body are required")
	}

	subscribers, err := e.subs.ListActive(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscribers: %w", err)
	}
	if len(subscribers) == 0 {
		return nil, errs.NotFoundf("no subscribed users")
	}

	result := &Result{}
	for _, sub := range subscribers {
		rendered := merge.Render(body, sub, e.baseURL)

		if err := e.transport.Send(ctx, sub.Email, subject, rendered); err != nil {
			e.logger.Warn("dispatch failed",
				"list_id", listID,
				"email", sub.Email,
				"error", err,
			)
			result.Failures = append(result.Failures, DispatchFailure{
				Email: sub.Email,
				Error: err.Error(),
			})
			continue
		}
		result.Sent++
	}

	e.logger.Info("broadcast finished",
		"list_id", listID,
		"sent", result.Sent,
		"failed", len(result.Failures),
	)
	return result, nil
}
