package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"shadowpay/integrations/index"
)

// EventsJSONL builds a JSON Lines export of indexed pay request events and
// returns the serialised payload alongside a checksum.
func EventsJSONL(records []index.Record) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, rec := range records {
		evt, err := rec.Event()
		if err != nil {
			return nil, "", err
		}
		payload := map[string]interface{}{
			"id":          rec.ID,
			"type":        rec.Type,
			"address":     rec.Address,
			"attributes":  evt.Attributes,
			"recorded_at": rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}
