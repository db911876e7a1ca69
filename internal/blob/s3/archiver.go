package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quantpulse/marketd/internal/domain"
)

// TickArchiver exports ticks older than a cutoff to cold storage as JSON
// lines and then deletes them from the database. The delete only runs
// after a successful upload, so data is never dropped unarchived.
type TickArchiver struct {
	writer domain.BlobWriter
	ticks  domain.TickStore
}

// NewTickArchiver creates a TickArchiver over the given writer and store.
func NewTickArchiver(writer domain.BlobWriter, ticks domain.TickStore) *TickArchiver {
	return &TickArchiver{writer: writer, ticks: ticks}
}

// archivedTick is the JSON line layout of one archived tick.
type archivedTick struct {
	InstrumentID int64     `json:"instrument_id"`
	SourceType   string    `json:"source_type"`
	Price        string    `json:"price"`
	Volume       string    `json:"volume"`
	Timestamp    time.Time `json:"timestamp"`
	ReceivedAt   time.Time `json:"received_at"`
}

// ArchiveBefore exports all ticks older than the cutoff and deletes them.
// Returns the number of rows removed. With nothing to archive it is a
// no-op.
func (a *TickArchiver) ArchiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ticks, err := a.ticks.ListBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("s3blob: list ticks for archive: %w", err)
	}
	if len(ticks) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, t := range ticks {
		line := archivedTick{
			InstrumentID: t.InstrumentID,
			SourceType:   string(t.Source),
			Price:        t.Price.String(),
			Volume:       t.Volume.String(),
			Timestamp:    t.Timestamp,
			ReceivedAt:   t.ReceivedAt,
		}
		if err := enc.Encode(line); err != nil {
			return 0, fmt.Errorf("s3blob: encode archive line: %w", err)
		}
	}

	key := fmt.Sprintf("ticks/%s/ticks-%s.jsonl",
		cutoff.UTC().Format("2006-01-02"),
		cutoff.UTC().Format("20060102T150405Z"),
	)
	if err := a.writer.Put(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: upload archive %s: %w", key, err)
	}

	deleted, err := a.ticks.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("s3blob: delete archived ticks: %w", err)
	}
	return deleted, nil
}
