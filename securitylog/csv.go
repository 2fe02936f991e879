package securitylog

import (
	"encoding/csv"
	"io"
)

// csvColumns is the fixed column order for security-log exports, matching
// the admin CSV export endpoint in the original reference implementation.
var csvColumns = []string{"ID", "Provider", "Event Type", "Client IP", "Request ID", "Created At"}

// WriteCSV writes events as CSV to w, header row first.
func WriteCSV(w io.Writer, events []Event) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvColumns); err != nil {
		return err
	}

	for _, e := range events {
		requestID := ""
		if e.RequestID != nil {
			requestID = *e.RequestID
		}
		record := []string{
			e.ID,
			e.ProviderName,
			string(e.EventType),
			e.IPAddress,
			requestID,
			e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
