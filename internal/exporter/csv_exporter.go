package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"ecopoints/internal/points"
)

// SchemaVersion identifies the CSV export format version.
// Increment when adding new columns or changing the format.
const SchemaVersion = "1"

// csvColumns defines the column order for export. The layout matches
// what the bulk drop-off importer accepts so cooperatives can edit and
// re-submit an export.
var csvColumns = []string{
	"schemaVersion",
	"id",
	"type",
	"fromUserId",
	"toUserId",
	"points",
	"material",
	"createdAt",
}

// CSVExporter exports point transactions to CSV format.
type CSVExporter struct{}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Export writes transactions to the given writer in CSV format.
func (e *CSVExporter) Export(w io.Writer, transactions []points.Transaction) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(csvColumns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, tx := range transactions {
		if err := writer.Write(e.transactionToRow(tx)); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	return writer.Error()
}

func (e *CSVExporter) transactionToRow(tx points.Transaction) []string {
	row := make([]string, len(csvColumns))

	row[0] = SchemaVersion
	row[1] = tx.ID.String()
	row[2] = string(tx.Type)
	if tx.FromUserID != nil {
		row[3] = tx.FromUserID.String()
	}
	row[4] = tx.ToUserID.String()
	row[5] = strconv.FormatInt(tx.Points, 10)
	row[6] = tx.Material
	row[7] = formatTime(tx.CreatedAt)

	return row
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.Format(time.RFC3339)
}
