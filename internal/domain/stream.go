package domain

import (
	"context"
	"encoding/json"
	"errors"
	"io"
)

// readChunk drains up to n records from the stream. done is true once the
// stream is exhausted; a short (or empty) chunk is returned alongside it.
func readChunk(ctx context.Context, stream RecordStream, n int) (records []json.RawMessage, done bool, err error) {
	for len(records) < n {
		rec, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return records, true, nil
		}
		if err != nil {
			return records, false, err
		}
		records = append(records, rec)
	}
	return records, false, nil
}

// drainStream reads the stream to completion and returns all records.
// Callers use it for per-chunk sub-streams whose size is already bounded.
func drainStream(ctx context.Context, stream RecordStream) ([]json.RawMessage, error) {
	var records []json.RawMessage
	for {
		rec, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}
