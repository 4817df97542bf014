package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"shadowpay/integrations/index"
)

type parquetEvent struct {
	ID           int64  `parquet:"name=id, type=INT64"`
	Type         string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Address      string `parquet:"name=address, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount       string `parquet:"name=amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	Counterparty string `parquet:"name=counterparty, type=BYTE_ARRAY, convertedtype=UTF8"`
	RecordedAt   string `parquet:"name=recorded_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// EventsParquet renders indexed events as a Snappy compressed parquet file and
// returns it with a SHA-256 checksum.
func EventsParquet(records []index.Record) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	pw, err := writer.NewParquetWriter(writerfile.NewWriterFile(buffer), new(parquetEvent), 1)
	if err != nil {
		return nil, "", fmt.Errorf("exports: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, rec := range records {
		evt, err := rec.Event()
		if err != nil {
			pw.WriteStop()
			return nil, "", err
		}
		row := &parquetEvent{
			ID:           int64(rec.ID),
			Type:         rec.Type,
			Address:      rec.Address,
			Amount:       amountOf(evt.Attributes),
			Counterparty: counterpartyOf(evt.Attributes),
			RecordedAt:   rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			return nil, "", fmt.Errorf("exports: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, "", fmt.Errorf("exports: parquet flush: %w", err)
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}
