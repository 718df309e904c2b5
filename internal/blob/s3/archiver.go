package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/pumpfight/internal/domain"
)

// EventArchiveStore is the part of domain.EventStore the archiver needs.
type EventArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.EventRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// multipartThreshold switches uploads of large month files to multipart.
const multipartThreshold = 4 * MinPartSize

// EventArchiver implements domain.Archiver. Events older than the cutoff are
// grouped by the month they were emitted in, appended as JSON lines to
// archive/events/YYYY-MM.jsonl and only then deleted from the store.
type EventArchiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	events EventArchiveStore
	audit  domain.AuditStore
}

// NewEventArchiver creates an EventArchiver.
func NewEventArchiver(writer domain.BlobWriter, reader domain.BlobReader, events EventArchiveStore, audit domain.AuditStore) *EventArchiver {
	return &EventArchiver{writer: writer, reader: reader, events: events, audit: audit}
}

var _ domain.Archiver = (*EventArchiver)(nil)

// archivedEvent is one JSONL line.
type archivedEvent struct {
	Seq       int64           `json:"seq"`
	Contract  common.Address  `json:"contract"`
	Token     common.Address  `json:"token"`
	Name      string          `json:"name"`
	Payload   json.RawMessage `json:"payload"`
	Topics    []common.Hash   `json:"topics"`
	Data      hexutil.Bytes   `json:"data"`
	Signature hexutil.Bytes   `json:"signature,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ArchiveEvents moves events created before the cutoff to object storage and
// returns how many were archived.
func (a *EventArchiver) ArchiveEvents(ctx context.Context, before time.Time) (int64, error) {
	records, err := a.events.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	byMonth := make(map[string][]archivedEvent)
	for _, r := range records {
		path := ArchivePath(r.CreatedAt)
		byMonth[path] = append(byMonth[path], archivedEvent{
			Seq:       r.Seq,
			Contract:  r.Contract,
			Token:     r.Token,
			Name:      r.Name,
			Payload:   r.Payload,
			Topics:    r.Topics,
			Data:      r.Data,
			Signature: r.Signature,
			CreatedAt: r.CreatedAt,
		})
	}

	paths := make([]string, 0, len(byMonth))
	for p := range byMonth {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := a.appendMonth(ctx, path, byMonth[path]); err != nil {
			return 0, err
		}
	}

	deleted, err := a.events.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events delete: %w", err)
	}

	count := int64(len(records))
	if err := a.audit.Log(ctx, "archive.events", map[string]any{
		"files":   paths,
		"count":   count,
		"deleted": deleted,
		"before":  before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive events audit log: %w", err)
	}
	return count, nil
}

// appendMonth writes lines after whatever an earlier run already stored at
// path.
func (a *EventArchiver) appendMonth(ctx context.Context, path string, lines []archivedEvent) error {
	var buf bytes.Buffer

	existing, err := a.reader.Get(ctx, path)
	switch {
	case err == nil:
		_, err = io.Copy(&buf, existing)
		existing.Close()
		if err != nil {
			return fmt.Errorf("s3blob: read existing %s: %w", path, err)
		}
	case errors.Is(err, domain.ErrNotFound):
	default:
		return fmt.Errorf("s3blob: read existing %s: %w", path, err)
	}

	body, err := marshalJSONL(lines)
	if err != nil {
		return fmt.Errorf("s3blob: encode %s: %w", path, err)
	}
	buf.Write(body)

	if int64(buf.Len()) >= multipartThreshold {
		return a.writer.PutMultipart(ctx, path, &buf, MinPartSize)
	}
	return a.writer.Put(ctx, path, &buf, "application/x-ndjson")
}

// ArchivePath is the object key holding the events of t's month.
func ArchivePath(t time.Time) string {
	return fmt.Sprintf("archive/events/%s.jsonl", t.UTC().Format("2006-01"))
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
