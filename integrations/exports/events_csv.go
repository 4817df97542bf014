package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"time"

	"shadowpay/integrations/index"
)

// EventsCSV builds a CSV export of indexed pay request events and returns the
// serialised data alongside a SHA-256 checksum of the payload.
func EventsCSV(records []index.Record) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	header := []string{"id", "type", "address", "amount", "counterparty", "recorded_at"}
	if err := writer.Write(header); err != nil {
		return nil, "", err
	}
	for _, rec := range records {
		evt, err := rec.Event()
		if err != nil {
			return nil, "", err
		}
		row := []string{
			fmt.Sprintf("%d", rec.ID),
			rec.Type,
			rec.Address,
			amountOf(evt.Attributes),
			counterpartyOf(evt.Attributes),
			rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := writer.Write(row); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}

// amountOf picks the lamport figure that matters for each event type.
func amountOf(attrs map[string]string) string {
	for _, key := range []string{"deposited", "amount"} {
		if v, ok := attrs[key]; ok {
			return v
		}
	}
	return "0"
}

func counterpartyOf(attrs map[string]string) string {
	if v, ok := attrs["payer"]; ok {
		return v
	}
	return attrs["receiver"]
}
