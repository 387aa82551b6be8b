package importer

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"ecopoints/internal/auth"
	"ecopoints/internal/points"
)

type storeSpy struct {
	credits []credit
	err     error
}

type credit struct {
	userID   uuid.UUID
	amount   int64
	material string
}

func (s *storeSpy) RecordRecycling(ctx context.Context, userID uuid.UUID, amount int64, material string) (points.Transaction, error) {
	if s.err != nil {
		return points.Transaction{}, s.err
	}
	s.credits = append(s.credits, credit{userID: userID, amount: amount, material: material})
	return points.Transaction{ID: uuid.New(), Points: amount}, nil
}

type directoryStub struct {
	users map[string]*auth.User
}

func (d *directoryStub) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return d.users[email], nil
}

func newTestImporter(users map[string]*auth.User) (*CSVImporter, *storeSpy) {
	store := &storeSpy{}
	return NewCSVImporter(store, &directoryStub{users: users}), store
}

func TestImportCreditsEachRow(t *testing.T) {
	t.Parallel()

	ana := &auth.User{ID: uuid.New(), Email: "ana@example.com"}
	bea := &auth.User{ID: uuid.New(), Email: "bea@example.com"}
	imp, store := newTestImporter(map[string]*auth.User{
		"ana@example.com": ana,
		"bea@example.com": bea,
	})

	csvData := strings.Join([]string{
		"email,material,weightKg",
		"ana@example.com,PET bottles,2",
		"bea@example.com,glass,1.5",
	}, "\n")

	summary, err := imp.Import(context.Background(), strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Import returned error: %v", err)
	}

	if summary.TotalRows != 2 || summary.Credited != 2 {
		t.Fatalf("expected 2 credited rows, got %+v", summary)
	}
	if len(store.credits) != 2 {
		t.Fatalf("expected 2 store calls, got %d", len(store.credits))
	}
	if store.credits[0].userID != ana.ID || store.credits[0].material != "plastic" || store.credits[0].amount != 24 {
		t.Fatalf("unexpected first credit: %+v", store.credits[0])
	}
	if store.credits[1].amount != 22 {
		t.Fatalf("expected 1.5kg of glass to earn 22 points, got %d", store.credits[1].amount)
	}
	if summary.PointsAwarded != 46 {
		t.Fatalf("expected 46 points awarded, got %d", summary.PointsAwarded)
	}
}

func TestImportRecordsFailuresAndContinues(t *testing.T) {
	t.Parallel()

	ana := &auth.User{ID: uuid.New(), Email: "ana@example.com"}
	imp, store := newTestImporter(map[string]*auth.User{"ana@example.com": ana})

	csvData := strings.Join([]string{
		"email,material,weightKg",
		"ghost@example.com,glass,1",
		"ana@example.com,unobtainium,1",
		"ana@example.com,glass,not-a-number",
		"ana@example.com,glass,2",
	}, "\n")

	summary, err := imp.Import(context.Background(), strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Import returned error: %v", err)
	}

	if summary.Credited != 1 {
		t.Fatalf("expected 1 credited row, got %d", summary.Credited)
	}
	if len(summary.Failed) != 3 {
		t.Fatalf("expected 3 failed rows, got %+v", summary.Failed)
	}
	if summary.Failed[0].Row != 2 || summary.Failed[0].Email != "ghost@example.com" {
		t.Fatalf("unexpected first failure: %+v", summary.Failed[0])
	}
	if len(store.credits) != 1 {
		t.Fatalf("expected single store call, got %d", len(store.credits))
	}
}

func TestImportRejectsMissingColumns(t *testing.T) {
	t.Parallel()

	imp, _ := newTestImporter(nil)
	_, err := imp.Import(context.Background(), strings.NewReader("email,material\nana@example.com,glass"))
	if err == nil || !strings.Contains(err.Error(), "missing required columns") {
		t.Fatalf("expected missing column error, got %v", err)
	}
}

func TestImportRejectsEmptyFile(t *testing.T) {
	t.Parallel()

	imp, _ := newTestImporter(nil)
	_, err := imp.Import(context.Background(), strings.NewReader(""))
	if err == nil || !strings.Contains(err.Error(), "file is empty") {
		t.Fatalf("expected empty file error, got %v", err)
	}
}

func TestImportAcceptsByteOrderMarkedHeader(t *testing.T) {
	t.Parallel()

	ana := &auth.User{ID: uuid.New(), Email: "ana@example.com"}
	imp, store := newTestImporter(map[string]*auth.User{"ana@example.com": ana})

	// Spreadsheet exports commonly prefix the file with a UTF-8 BOM.
	csvData := "\ufeffemail,material,weightKg\nana@example.com,glass,1\n"
	summary, err := imp.Import(context.Background(), strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	if summary.Credited != 1 || len(store.credits) != 1 {
		t.Fatalf("expected BOM header to be accepted, got %+v", summary)
	}
}

func TestImportSkipsBlankRows(t *testing.T) {
	t.Parallel()

	ana := &auth.User{ID: uuid.New(), Email: "ana@example.com"}
	imp, _ := newTestImporter(map[string]*auth.User{"ana@example.com": ana})

	csvData := "email,material,weightKg\n,,\nana@example.com,glass,1\n"
	summary, err := imp.Import(context.Background(), strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	if summary.TotalRows != 1 || summary.Credited != 1 {
		t.Fatalf("expected blank row to be skipped, got %+v", summary)
	}
}
