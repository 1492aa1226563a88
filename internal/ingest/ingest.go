// Package ingest implements the streaming CSV ingestion pipeline: parse,
// per-row validation, deduplication against committed subscribers, token
// issuance, custom-property resolution and per-batch reporting.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/foxzi/maillist/internal/errs"
	"github.com/foxzi/maillist/internal/models"
)

// ListGetter resolves list definitions.
type ListGetter interface {
	GetByID(ctx context.Context, id string) (*models.List, error)
}

// SubscriberStore is the subset of the subscriber store the pipeline needs.
type SubscriberStore interface {
	FindByListAndEmail(ctx context.Context, listID, email string) (*models.Subscriber, error)
	Insert(ctx context.Context, sub *models.Subscriber) error
	CountByList(ctx context.Context, listID string) (int, error)
}

// FailureKind classifies a non-fatal row failure.
type FailureKind string

const (
	FailureMissingField   FailureKind = "missing_field"
	FailureDuplicateEmail FailureKind = "duplicate_email"
	FailurePersistence    FailureKind = "persistence"
)

// RowError describes one failed row. Line follows the file's display
// numbering: data row i (1-based) is line i+2, accounting for the header
// line.
type RowError struct {
	Line    int         `json:"line"`
	Kind    FailureKind `json:"-"`
	Message string      `json:"error"`
}

// Report is the aggregated outcome of one batch. TotalSubscribers is a
// fresh post-batch count of the whole list, so it includes subscribers
// from earlier batches.
type Report struct {
	SuccessCount     int        `json:"successCount"`
	FailureCount     int        `json:"failureCount"`
	Errors           []RowError `json:"errors"`
	TotalSubscribers int        `json:"totalUsers"`
}

// Pipeline ingests CSV batches into the subscriber store.
type Pipeline struct {
	lists  ListGetter
	subs   SubscriberStore
	logger *slog.Logger
}

func New(lists ListGetter, subs SubscriberStore, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		lists:  lists,
		subs:   subs,
		logger: logger.With("component", "ingest"),
	}
}

// Ingest streams a comma-delimited file with a header row into the list.
// Rows are processed strictly in file order: line numbers in the report
// are a contract. Row failures never abort the batch; only a parse or
// read failure does, in which case no partial report is produced.
//
// The duplicate check consults committed subscribers only. Two rows in
// one batch sharing a fresh email can both pass it; the store's unique
// constraint catches the second at insert time, which is reported as a
// persistence row failure.
func (p *Pipeline) Ingest(ctx context.Context, listID string, r io.Reader) (*Report, error) {
	list, err := p.lists.GetByID(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("failed to load list: %w", err)
	}
	if list == nil {
		return nil, errs.NotFoundf("list not found")
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	report := &Report{Errors: []RowError{}}

	header, err := reader.Read()
	if err != nil && err != io.EOF {
		return nil, &errs.IngestionError{Err: err}
	}
	if err == io.EOF {
		// Empty file: nothing to ingest, still report the list total
		return p.finish(ctx, listID, report)
	}

	// Header establishes field names; first occurrence of a name wins
	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if _, ok := cols[name]; !ok {
			cols[name] = i
		}
	}

	field := func(record []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	for i := 1; ; i++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &errs.IngestionError{Err: err}
		}

		line := i + 2

		name := field(record, "name")
		email := field(record, "email")
		if name == "" || email == "" {
			report.fail(line, FailureMissingField, "name or email missing")
			continue
		}

		existing, err := p.subs.FindByListAndEmail(ctx, listID, email)
		if err != nil {
			report.fail(line, FailurePersistence, err.Error())
			continue
		}
		if existing != nil {
			report.fail(line, FailureDuplicateEmail, "duplicate email")
			continue
		}

		token, err := newToken()
		if err != nil {
			return nil, fmt.Errorf("failed to issue token: %w", err)
		}

		props := models.Properties{}
		for _, def := range list.Properties {
			if v := field(record, def.Title); v != "" {
				props[def.Title] = v
			} else {
				props[def.Title] = def.DefaultValue
			}
		}

		sub := &models.Subscriber{
			ListID:     listID,
			Name:       name,
			Email:      email,
			Token:      token,
			Properties: props,
		}
		if err := p.subs.Insert(ctx, sub); err != nil {
			report.fail(line, FailurePersistence, err.Error())
			continue
		}

		report.SuccessCount++
	}

	return p.finish(ctx, listID, report)
}

func (p *Pipeline) finish(ctx context.Context, listID string, report *Report) (*Report, error) {
	total, err := p.subs.CountByList(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("failed to count subscribers: %w", err)
	}
	report.TotalSubscribers = total

	p.logger.Info("csv batch ingested",
		"list_id", listID,
		"succeeded", report.SuccessCount,
		"failed", report.FailureCount,
		"total", report.TotalSubscribers,
	)
	return report, nil
}

func (r *Report) fail(line int, kind FailureKind, message string) {
	r.Errors = append(r.Errors, RowError{Line: line, Kind: kind, Message: message})
	r.FailureCount++
}
