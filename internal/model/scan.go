package model

import (
	"encoding/json"
	"time"
)

// ScanRecord is one decoded barcode/QR read. Records are immutable once
// appended; ledger order is recorded_at (server arrival), not scan_timestamp
// (producer clock, possibly skewed).
type ScanRecord struct {
	ID            int64     `db:"id" json:"id"`
	SessionID     string    `db:"session_id" json:"sessionId"`
	Code          string    `db:"code" json:"code"`
	ScanTimestamp time.Time `db:"scan_timestamp" json:"scanTimestamp"`
	RecordedAt    time.Time `db:"recorded_at" json:"recordedAt"`
}

// ToRelayEventData returns the JSON payload broadcast as a new-scan event.
func (r *ScanRecord) ToRelayEventData() json.RawMessage {
	data, _ := json.Marshal(r)
	return data
}

type CreateScanParams struct {
	SessionID     string
	Code          string
	ScanTimestamp time.Time
}
