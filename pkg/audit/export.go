package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ExportFormat names a history export encoding
type ExportFormat string

const (
	FormatJSON   ExportFormat = "json"
	FormatNDJSON ExportFormat = "ndjson"
	FormatCSV    ExportFormat = "csv"
)

// ContentType returns the MIME type of the format
func (f ExportFormat) ContentType() string {
	switch f {
	case FormatNDJSON:
		return "application/x-ndjson"
	case FormatCSV:
		return "text/csv"
	}
	return "application/json"
}

// ParseFormat maps a query value to a format; empty selects JSON
func ParseFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(s); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatNDJSON, FormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// Export writes records to w in the given format
func Export(w io.Writer, records []Record, format ExportFormat) error {
	switch format {
	case FormatJSON, "":
		return json.NewEncoder(w).Encode(records)
	case FormatNDJSON:
		enc := json.NewEncoder(w)
		for i := range records {
			if err := enc.Encode(&records[i]); err != nil {
				return fmt.Errorf("failed to encode record: %w", err)
			}
		}
		return nil
	case FormatCSV:
		return exportCSV(w, records)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func exportCSV(w io.Writer, records []Record) error {
	writer := csv.NewWriter(w)

	header := []string{"id", "timestamp", "entity_type", "entity_id", "field", "from", "to", "reason", "actor_id"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, rec := range records {
		row := []string{
			strconv.FormatInt(rec.ID, 10),
			rec.Timestamp.UTC().Format(time.RFC3339),
			rec.EntityType,
			rec.EntityID.String(),
			rec.Field,
			rec.FromValue,
			rec.ToValue,
			rec.Reason,
			formatActor(rec.ActorID),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}

// formatActor renders a missing actor as an empty cell
func formatActor(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
