package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"ecopoints/internal/auth"
	"ecopoints/internal/materials"
	"ecopoints/internal/points"
)

// RecyclingStore credits points for a weighed drop-off.
type RecyclingStore interface {
	RecordRecycling(ctx context.Context, userID uuid.UUID, amount int64, material string) (points.Transaction, error)
}

// UserDirectory resolves member emails to accounts.
type UserDirectory interface {
	FindUserByEmail(ctx context.Context, email string) (*auth.User, error)
}

// Summary reports the outcome of a bulk drop-off import.
type Summary struct {
	TotalRows        int            `json:"totalRows"`
	Credited         int            `json:"credited"`
	PointsAwarded    int64          `json:"pointsAwarded"`
	Failed           []FailedRecord `json:"failed"`
	TruncatedRecords bool           `json:"truncatedRecords,omitempty"`
}

// FailedRecord describes one row that could not be credited.
type FailedRecord struct {
	Row   int    `json:"row"`
	Email string `json:"email,omitempty"`
	Error string `json:"error"`
}

var ErrInvalidCSV = errors.New("invalid csv upload")

// MaxImportRows limits the number of data rows processed per CSV import to
// prevent excessive memory usage and long-running requests.
const MaxImportRows = 1000

// MaxFailedRecords caps the number of failed records stored in the
// summary to avoid unbounded memory growth from malformed uploads.
const MaxFailedRecords = 100

var requiredColumns = []string{
	"email",
	"material",
	"weightkg",
}

// CSVImporter credits recycling points from a cooperative's weigh-in
// sheet. Each row names a member email, a material label, and the
// weighed mass; the rate table converts mass to points.
type CSVImporter struct {
	store RecyclingStore
	users UserDirectory
}

func NewCSVImporter(store RecyclingStore, users UserDirectory) *CSVImporter {
	return &CSVImporter{store: store, users: users}
}

func (i *CSVImporter) Import(ctx context.Context, reader io.Reader) (Summary, error) {
	if i.store == nil || i.users == nil {
		return Summary{}, fmt.Errorf("%w: importer is not configured", ErrInvalidCSV)
	}

	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1
	csvReader.TrimLeadingSpace = true

	header, err := csvReader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Summary{}, fmt.Errorf("%w: file is empty", ErrInvalidCSV)
		}
		return Summary{}, fmt.Errorf("%w: failed to read header", ErrInvalidCSV)
	}

	columns, err := normalizeHeader(header)
	if err != nil {
		return Summary{}, err
	}

	type parsedRow struct {
		number int
		values map[string]string
	}

	var rows []parsedRow
	rowNumber := 1
	totalRows := 0

	for {
		record, err := csvReader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Summary{}, fmt.Errorf("%w: failed to read row %d", ErrInvalidCSV, rowNumber+1)
		}
		rowNumber++
		values := mapRecord(columns, record)
		if isRowEmpty(values) {
			continue
		}

		totalRows++
		if totalRows > MaxImportRows {
			return Summary{}, fmt.Errorf("%w: CSV exceeds maximum of %d rows", ErrInvalidCSV, MaxImportRows)
		}

		rows = append(rows, parsedRow{number: rowNumber, values: values})
	}

	summary := Summary{TotalRows: totalRows}

	for _, row := range rows {
		email := strings.TrimSpace(row.values["email"])
		userID, amount, material, rowErr := i.buildCredit(ctx, row.values)
		if rowErr != nil {
			summary.recordFailure(row.number, email, rowErr)
			continue
		}

		if _, err := i.store.RecordRecycling(ctx, userID, amount, material); err != nil {
			summary.recordFailure(row.number, email, err)
			continue
		}

		summary.Credited++
		summary.PointsAwarded += amount
	}

	return summary, nil
}

func (i *CSVImporter) buildCredit(ctx context.Context, values map[string]string) (uuid.UUID, int64, string, error) {
	email := strings.TrimSpace(values["email"])
	if email == "" {
		return uuid.Nil, 0, "", fmt.Errorf("email is required")
	}

	user, err := i.users.FindUserByEmail(ctx, strings.ToLower(email))
	if err != nil {
		return uuid.Nil, 0, "", fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return uuid.Nil, 0, "", fmt.Errorf("no account for %s", email)
	}

	material, ok := materials.Normalize(values["material"])
	if !ok {
		return uuid.Nil, 0, "", fmt.Errorf("unrecognized material %q", strings.TrimSpace(values["material"]))
	}

	weightValue := strings.TrimSpace(values["weightkg"])
	weight, err := strconv.ParseFloat(weightValue, 64)
	if err != nil {
		return uuid.Nil, 0, "", fmt.Errorf("weightKg must be a number, got %q", weightValue)
	}
	if weight <= 0 {
		return uuid.Nil, 0, "", fmt.Errorf("weightKg must be positive")
	}

	amount := materials.PointsFor(material, weight)
	if amount <= 0 {
		return uuid.Nil, 0, "", fmt.Errorf("weight too small to earn points")
	}

	return user.ID, amount, string(material), nil
}

func (s *Summary) recordFailure(row int, email string, err error) {
	if len(s.Failed) >= MaxFailedRecords {
		s.TruncatedRecords = true
		return
	}
	s.Failed = append(s.Failed, FailedRecord{Row: row, Email: email, Error: err.Error()})
}

func normalizeHeader(header []string) ([]string, error) {
	columns := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for idx, name := range header {
		normalized := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		columns[idx] = normalized
		seen[normalized] = true
	}

	var missing []string
	for _, required := range requiredColumns {
		if !seen[required] {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required columns: %s", ErrInvalidCSV, strings.Join(missing, ", "))
	}

	return columns, nil
}

func mapRecord(columns, record []string) map[string]string {
	values := make(map[string]string, len(columns))
	for idx, column := range columns {
		if column == "" {
			continue
		}
		if idx < len(record) {
			values[column] = record[idx]
		}
	}
	return values
}

func isRowEmpty(values map[string]string) bool {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}
