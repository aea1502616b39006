package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	apperrors "github.com/scanbridge/relay-server-go/internal/errors"
	"github.com/scanbridge/relay-server-go/internal/util"
)

const (
	ExportFormatCSV  = "csv"
	ExportFormatJSON = "json"
)

// utf8BOM makes spreadsheet tools detect the encoding so non-ASCII scan
// payloads display correctly.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

type exportRow struct {
	Index         int       `json:"index"`
	Code          string    `json:"code"`
	ScanTimestamp time.Time `json:"scanTimestamp"`
	RecordedAt    time.Time `json:"recordedAt"`
}

type ExportService struct {
	scans *ScanService
}

func NewExportService(scans *ScanService) *ExportService {
	return &ExportService{scans: scans}
}

// Export renders the full ledger of a session as a downloadable artifact.
// An empty ledger is rejected rather than exported as an empty file.
func (s *ExportService) Export(ctx context.Context, sessionID string, format string) (*ExportResult, error) {
	if !util.IsValidEnum(format, []string{ExportFormatCSV, ExportFormatJSON}) {
		return nil, apperrors.InvalidInput("format", "must be csv or json")
	}
	if format == "" {
		format = ExportFormatCSV
	}

	records, err := s.scans.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NotFound("Scan records for this session")
	}

	rows := make([]exportRow, len(records))
	for i, r := range records {
		rows[i] = exportRow{
			Index:         i + 1,
			Code:          r.Code,
			ScanTimestamp: r.ScanTimestamp,
			RecordedAt:    r.RecordedAt,
		}
	}

	filename := fmt.Sprintf("scans-%s-%s.%s", sessionID, time.Now().Format("2006-01-02"), format)

	switch format {
	case ExportFormatJSON:
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return nil, apperrors.Internal("Failed to encode export")
		}
		return &ExportResult{
			Filename:    filename,
			ContentType: "application/json",
			Data:        data,
		}, nil

	default:
		var buf bytes.Buffer
		buf.Write(utf8BOM)
		w := csv.NewWriter(&buf)
		if err := w.Write([]string{"#", "Code", "Scan Time", "Recorded At"}); err != nil {
			return nil, apperrors.Internal("Failed to encode export")
		}
		for _, row := range rows {
			record := []string{
				strconv.Itoa(row.Index),
				row.Code,
				row.ScanTimestamp.Format(time.RFC3339),
				row.RecordedAt.Format(time.RFC3339),
			}
			if err := w.Write(record); err != nil {
				return nil, apperrors.Internal("Failed to encode export")
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, apperrors.Internal("Failed to encode export")
		}
		return &ExportResult{
			Filename:    filename,
			ContentType: "text/csv; charset=utf-8",
			Data:        buf.Bytes(),
		}, nil
	}
}
