package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"log/slog"

	"github.com/google/uuid"

	"ecopoints/internal/auth"
	"ecopoints/internal/importer"
	"ecopoints/internal/points"
)

func newPointsTestHandler(t *testing.T) (*PointsHandler, *points.InMemoryRepository) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := points.NewInMemoryRepository()
	svc := points.NewService(repo, points.NopNotifier{})
	imp := importer.NewCSVImporter(svc, auth.NewInMemoryRepository())
	return NewPointsHandler(svc, imp, logger), repo
}

func requestWithUser(req *http.Request, user *auth.User) *http.Request {
	ctx := context.WithValue(req.Context(), userContextKey, user)
	return req.WithContext(ctx)
}

func TestMeReturnsProfile(t *testing.T) {
	handler, _ := newPointsTestHandler(t)
	user := &auth.User{
		ID:             uuid.New(),
		Name:           "Ana",
		Email:          "ana@example.com",
		Role:           auth.RoleNormal,
		Points:         120,
		RewardEligible: true,
	}

	req := requestWithUser(httptest.NewRequest(http.MethodGet, "/api/me", nil), user)
	rec := httptest.NewRecorder()
	handler.Me(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	response := decodeJSONResponse(t, rec)
	if response["email"] != "ana@example.com" {
		t.Fatalf("expected email in profile, got %v", response["email"])
	}
	if response["points"] != float64(120) {
		t.Fatalf("expected 120 points, got %v", response["points"])
	}
	if _, leaked := response["passwordHash"]; leaked {
		t.Fatal("profile must not expose the password hash")
	}
}

func TestBalanceEndpoint(t *testing.T) {
	handler, repo := newPointsTestHandler(t)
	user := &auth.User{ID: uuid.New()}
	repo.Seed(user.ID, 75)

	req := requestWithUser(httptest.NewRequest(http.MethodGet, "/api/points/balance", nil), user)
	rec := httptest.NewRecorder()
	handler.Balance(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	response := decodeJSONResponse(t, rec)
	if response["balance"] != float64(75) {
		t.Fatalf("expected balance 75, got %v", response["balance"])
	}
}

func TestTransferEndpoint(t *testing.T) {
	handler, repo := newPointsTestHandler(t)
	sender := &auth.User{ID: uuid.New()}
	receiver := uuid.New()
	repo.Seed(sender.ID, 100)
	repo.Seed(receiver, 0)

	body := `{"to":"` + receiver.String() + `","amount":40}`
	req := requestWithUser(httptest.NewRequest(http.MethodPost, "/api/points/transfer", strings.NewReader(body)), sender)
	rec := httptest.NewRecorder()
	handler.Transfer(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	balance, err := repo.Balance(context.Background(), receiver)
	if err != nil {
		t.Fatalf("receiver balance: %v", err)
	}
	if balance != 40 {
		t.Fatalf("expected receiver balance 40, got %d", balance)
	}
}

func TestTransferInsufficientBalance(t *testing.T) {
	handler, repo := newPointsTestHandler(t)
	sender := &auth.User{ID: uuid.New()}
	receiver := uuid.New()
	repo.Seed(sender.ID, 10)
	repo.Seed(receiver, 0)

	body := `{"to":"` + receiver.String() + `","amount":40}`
	req := requestWithUser(httptest.NewRequest(http.MethodPost, "/api/points/transfer", strings.NewReader(body)), sender)
	rec := httptest.NewRecorder()
	handler.Transfer(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	response := decodeJSONResponse(t, rec)
	if response["error"] != "insufficient balance" {
		t.Fatalf("expected insufficient balance error, got %v", response["error"])
	}
}

func TestRecycleEndpoint(t *testing.T) {
	handler, repo := newPointsTestHandler(t)
	operator := &auth.User{ID: uuid.New(), Role: auth.RoleCooperative}
	member := uuid.New()
	repo.Seed(member, 0)

	body := `{"userId":"` + member.String() + `","amount":25,"material":"glass"}`
	req := requestWithUser(httptest.NewRequest(http.MethodPost, "/api/points/recycle", strings.NewReader(body)), operator)
	rec := httptest.NewRecorder()
	handler.Recycle(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	balance, err := repo.Balance(context.Background(), member)
	if err != nil {
		t.Fatalf("member balance: %v", err)
	}
	if balance != 25 {
		t.Fatalf("expected member balance 25, got %d", balance)
	}
}

func TestRecycleRejectsUnrecognizedMaterial(t *testing.T) {
	handler, repo := newPointsTestHandler(t)
	operator := &auth.User{ID: uuid.New(), Role: auth.RoleCooperative}
	member := uuid.New()
	repo.Seed(member, 0)

	body := `{"userId":"` + member.String() + `","amount":25,"material":"unobtainium"}`
	req := requestWithUser(httptest.NewRequest(http.MethodPost, "/api/points/recycle", strings.NewReader(body)), operator)
	rec := httptest.NewRecorder()
	handler.Recycle(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	response := decodeJSONResponse(t, rec)
	if response["error"] != "unrecognized material" {
		t.Fatalf("expected material error, got %v", response["error"])
	}
}

func TestExportHistoryWritesCSV(t *testing.T) {
	handler, repo := newPointsTestHandler(t)
	user := &auth.User{ID: uuid.New()}
	repo.Seed(user.ID, 0)

	svc := points.NewService(repo, points.NopNotifier{})
	if _, err := svc.RecordRecycling(context.Background(), user.ID, 25, "glass"); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}

	req := requestWithUser(httptest.NewRequest(http.MethodGet, "/api/points/history.csv", nil), user)
	rec := httptest.NewRecorder()
	handler.ExportHistory(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("expected text/csv content type, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "glass") {
		t.Fatalf("expected glass transaction in export, got %s", rec.Body.String())
	}
}

func TestMaterialsListsRates(t *testing.T) {
	handler, _ := newPointsTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/materials", nil)
	rec := httptest.NewRecorder()
	handler.Materials(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "pointsPerKg") {
		t.Fatalf("expected rate table in response, got %s", rec.Body.String())
	}
}

func TestImportDropOffsCreditsMembers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := points.NewInMemoryRepository()
	svc := points.NewService(repo, points.NopNotifier{})
	authRepo := auth.NewInMemoryRepository()
	member, err := authRepo.CreateUser(context.Background(), auth.User{ID: uuid.New(), Name: "Ana", Email: "ana@example.com"})
	if err != nil {
		t.Fatalf("seed member: %v", err)
	}
	repo.Seed(member.ID, 0)
	handler := NewPointsHandler(svc, importer.NewCSVImporter(svc, authRepo), logger)

	operator := &auth.User{ID: uuid.New(), Role: auth.RoleCooperative}
	csvBody := "email,material,weightKg\nana@example.com,glass,2\n"
	req := requestWithUser(httptest.NewRequest(http.MethodPost, "/api/points/import", strings.NewReader(csvBody)), operator)
	rec := httptest.NewRecorder()
	handler.ImportDropOffs(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	response := decodeJSONResponse(t, rec)
	if response["credited"] != float64(1) {
		t.Fatalf("expected 1 credited row, got %v", response["credited"])
	}

	balance, err := repo.Balance(context.Background(), member.ID)
	if err != nil {
		t.Fatalf("member balance: %v", err)
	}
	if balance != 30 {
		t.Fatalf("expected 30 points for 2kg of glass, got %d", balance)
	}
}

func TestImportDropOffsRejectsMalformedCSV(t *testing.T) {
	handler, _ := newPointsTestHandler(t)
	operator := &auth.User{ID: uuid.New(), Role: auth.RoleAdmin}

	req := requestWithUser(httptest.NewRequest(http.MethodPost, "/api/points/import", strings.NewReader("material\nglass")), operator)
	rec := httptest.NewRecorder()
	handler.ImportDropOffs(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestHistoryEndpointEmpty(t *testing.T) {
	handler, repo := newPointsTestHandler(t)
	user := &auth.User{ID: uuid.New()}
	repo.Seed(user.ID, 0)

	req := requestWithUser(httptest.NewRequest(http.MethodGet, "/api/points/history", nil), user)
	rec := httptest.NewRecorder()
	handler.History(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"transactions":[]`) {
		t.Fatalf("expected empty transactions array, got %s", rec.Body.String())
	}
}
