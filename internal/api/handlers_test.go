package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/foxzi/maillist/internal/broadcast"
	"github.com/foxzi/maillist/internal/config"
	"github.com/foxzi/maillist/internal/errs"
	"github.com/foxzi/maillist/internal/ingest"
	"github.com/foxzi/maillist/internal/metrics"
	"github.com/foxzi/maillist/internal/models"
)

type mockRegistry struct {
	created []models.List
	err     error
}

func (m *mockRegistry) Create(ctx context.Context, title string, props []models.CustomProperty) (*models.List, error) {
	if m.err != nil {
		return nil, m.err
	}
	list := models.List{ID: "list-1", Title: title, Properties: props}
	m.created = append(m.created, list)
	return &list, nil
}

func (m *mockRegistry) List(ctx context.Context) ([]models.List, error) {
	return m.created, m.err
}

type mockIngestor struct {
	report   *ingest.Report
	err      error
	received string
}

func (m *mockIngestor) Ingest(ctx context.Context, listID string, r io.Reader) (*ingest.Report, error) {
	data, _ := io.ReadAll(r)
	m.received = string(data)
	return m.report, m.err
}

type mockBroadcaster struct {
	result *broadcast.Result
	err    error
}

func (m *mockBroadcaster) Broadcast(ctx context.Context, listID, subject, body string) (*broadcast.Result, error) {
	return m.result, m.err
}

type mockUnsubscriber struct {
	sub *models.Subscriber
	err error
}

func (m *mockUnsubscriber) Unsubscribe(ctx context.Context, token string) (*models.Subscriber, error) {
	return m.sub, m.err
}

type testDeps struct {
	registry    *mockRegistry
	ingestor    *mockIngestor
	broadcaster *mockBroadcaster
	subscriber  *mockUnsubscriber
}

func setupTestServer(t *testing.T) (*Server, *testDeps) {
	t.Helper()

	deps := &testDeps{
		registry:    &mockRegistry{},
		ingestor:    &mockIngestor{report: &ingest.Report{Errors: []ingest.RowError{}}},
		broadcaster: &mockBroadcaster{result: &broadcast.Result{}},
		subscriber:  &mockUnsubscriber{sub: &models.Subscriber{ID: "s1", ListID: "l1"}},
	}

	cfg := config.Default()
	cfg.Server.UploadDir = t.TempDir()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := NewServer(cfg, logger, metrics.New(), deps.registry, deps.ingestor, deps.broadcaster, deps.subscriber)
	return server, deps
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doJSON(t, server, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestCreateList(t *testing.T) {
	server, deps := setupTestServer(t)

	w := doJSON(t, server, "POST", "/lists", CreateListRequest{
		Title:            "Newsletter",
		CustomProperties: []models.CustomProperty{{Title: "plan", DefaultValue: "free"}},
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("Status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	var resp CreateListResponse
	decodeBody(t, w, &resp)
	if resp.ListID == "" {
		t.Error("response should carry the list ID")
	}
	if len(deps.registry.created) != 1 {
		t.Errorf("created %d lists, want 1", len(deps.registry.created))
	}
}

func TestCreateListErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", errs.Validationf("title is required"), http.StatusBadRequest},
		{"conflict", errs.Conflictf("a list with the same title already exists"), http.StatusBadRequest},
		{"internal", errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, deps := setupTestServer(t)
			deps.registry.err = tt.err

			w := doJSON(t, server, "POST", "/lists", CreateListRequest{Title: "X"})
			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestCreateListBadJSON(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest("POST", "/lists", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestInternalErrorIsOpaque(t *testing.T) {
	server, deps := setupTestServer(t)
	deps.registry.err = errors.New("dial tcp 10.0.0.5:5432: connection refused")

	w := doJSON(t, server, "POST", "/lists", CreateListRequest{Title: "X"})

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "10.0.0.5") {
		t.Error("internal error details must not leak to the client")
	}
}

func multipartUpload(t *testing.T, filename, content string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestImportUsers(t *testing.T) {
	server, deps := setupTestServer(t)
	deps.ingestor.report = &ingest.Report{
		SuccessCount: 2,
		FailureCount: 1,
		Errors: []ingest.RowError{
			{Line: 4, Kind: ingest.FailureDuplicateEmail, Message: "duplicate email"},
		},
		TotalSubscribers: 5,
	}

	csvData := "name,email\nA,a@x.com\nB,b@x.com\nC,a@x.com\n"
	body, contentType := multipartUpload(t, "users.csv", csvData)
	req := httptest.NewRequest("POST", "/lists/l1/users", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d: %s", w.Code, w.Body.String())
	}
	if deps.ingestor.received != csvData {
		t.Error("pipeline should receive the staged file content")
	}

	var resp map[string]any
	decodeBody(t, w, &resp)
	if resp["successCount"] != float64(2) || resp["failureCount"] != float64(1) {
		t.Errorf("response = %v", resp)
	}
	if resp["totalUsers"] != float64(5) {
		t.Errorf("totalUsers = %v, want 5", resp["totalUsers"])
	}
	errsList, ok := resp["errors"].([]any)
	if !ok || len(errsList) != 1 {
		t.Fatalf("errors = %v", resp["errors"])
	}
	first := errsList[0].(map[string]any)
	if first["line"] != float64(4) || first["error"] != "duplicate email" {
		t.Errorf("errors[0] = %v", first)
	}
}

func TestImportUsersMissingFile(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doJSON(t, server, "POST", "/lists/l1/users", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestImportUsersRejectsNonCSV(t *testing.T) {
	server, _ := setupTestServer(t)

	body, contentType := multipartUpload(t, "users.txt", "name,email\n")
	req := httptest.NewRequest("POST", "/lists/l1/users", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestImportUsersListNotFound(t *testing.T) {
	server, deps := setupTestServer(t)
	deps.ingestor.err = errs.NotFoundf("list not found")

	body, contentType := multipartUpload(t, "users.csv", "name,email\n")
	req := httptest.NewRequest("POST", "/lists/nope/users", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestImportUsersStreamFailure(t *testing.T) {
	server, deps := setupTestServer(t)
	deps.ingestor.err = &errs.IngestionError{Err: errors.New("parse error on line 7")}

	body, contentType := multipartUpload(t, "users.csv", "name,email\nbroken")
	req := httptest.NewRequest("POST", "/lists/l1/users", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestBroadcastEndpoint(t *testing.T) {
	server, deps := setupTestServer(t)
	deps.broadcaster.result = &broadcast.Result{
		Sent: 3,
		Failures: []broadcast.DispatchFailure{
			{Email: "b@x.com", Error: "550 mailbox unavailable"},
		},
	}

	w := doJSON(t, server, "POST", "/lists/l1/email", BroadcastRequest{Subject: "Hi", Body: "Hello [name]"})

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d: %s", w.Code, w.Body.String())
	}
	var resp BroadcastResponse
	decodeBody(t, w, &resp)
	if resp.SentCount != 3 {
		t.Errorf("SentCount = %d, want 3", resp.SentCount)
	}
	if len(resp.Failures) != 1 || resp.Failures[0].Email != "b@x.com" {
		t.Errorf("Failures = %+v", resp.Failures)
	}
}

func TestBroadcastEndpointErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"missing subject", errs.Validationf("subject and body are required"), http.StatusBadRequest},
		{"unknown list", errs.NotFoundf("list not found"), http.StatusNotFound},
		{"no subscribers", errs.NotFoundf("no subscribed users"), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, deps := setupTestServer(t)
			deps.broadcaster.err = tt.err

			w := doJSON(t, server, "POST", "/lists/l1/email", BroadcastRequest{Subject: "s", Body: "b"})
			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestUnsubscribeEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doJSON(t, server, "GET", "/lists/unsubscribe/tok", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d: %s", w.Code, w.Body.String())
	}
	var resp MessageResponse
	decodeBody(t, w, &resp)
	if resp.Message != "Unsubscribed successfully" {
		t.Errorf("Message = %q", resp.Message)
	}
}

func TestUnsubscribeEndpointErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"unknown token", errs.NotFoundf("invalid token"), http.StatusNotFound},
		{"already unsubscribed", errs.Conflictf("user is already unsubscribed"), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, deps := setupTestServer(t)
			deps.subscriber.err = tt.err
			deps.subscriber.sub = nil

			w := doJSON(t, server, "GET", "/lists/unsubscribe/tok", nil)
			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
