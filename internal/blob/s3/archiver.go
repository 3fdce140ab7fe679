package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/stakearena/internal/domain"
)

// matchArchiveStore is the slice of the match record store the archiver
// actually calls. The Postgres and in-memory stores satisfy it implicitly.
type matchArchiveStore interface {
	// ListBefore returns all records completed strictly before the cutoff,
	// oldest first.
	ListBefore(ctx context.Context, before time.Time) ([]domain.MatchRecord, error)
	// DeleteBefore removes records completed strictly before the cutoff and
	// reports how many rows were deleted.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ArchiveImpl implements domain.Archiver by querying settled match records,
// serializing them to JSONL, and uploading the result to S3. The primary-store
// rows are deleted only after the uploaded object has been read back and its
// line count verified against the export.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	reader  domain.BlobReader
	records matchArchiveStore
	audit   domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	records matchArchiveStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		reader:  reader,
		records: records,
		audit:   audit,
	}
}

// ArchiveMatches exports all match records completed before the cutoff to
// archive/matches/YYYY-MM.jsonl, verifies the upload, records the event in
// the audit log, and deletes the archived rows. It returns the number of
// records archived.
func (a *ArchiveImpl) ArchiveMatches(ctx context.Context, before time.Time) (int64, error) {
	records, err := a.records.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive matches query: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive matches marshal: %w", err)
	}

	path := archivePath("matches", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive matches upload: %w", err)
	}

	count := int64(len(records))

	// Read the object back before touching the primary store. A truncated or
	// failed upload must never cost us the only copy of the history.
	if err := a.verifyUpload(ctx, path, count); err != nil {
		return 0, fmt.Errorf("s3blob: archive matches verify: %w", err)
	}

	if err := a.audit.Log(ctx, "archive.matches", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive matches audit log: %w", err)
	}

	deleted, err := a.records.DeleteBefore(ctx, before)
	if err != nil {
		return count, fmt.Errorf("s3blob: archive matches delete: %w", err)
	}
	if deleted != count {
		// Records settled between the list and the delete share the same
		// cutoff, so a mismatch here means the window moved underneath us.
		return count, fmt.Errorf("s3blob: archived %d records but deleted %d", count, deleted)
	}

	return count, nil
}

// verifyUpload reads the uploaded object back and checks its line count
// matches the number of exported records.
func (a *ArchiveImpl) verifyUpload(ctx context.Context, path string, want int64) error {
	body, err := a.reader.Get(ctx, path)
	if err != nil {
		return fmt.Errorf("read back %s: %w", path, err)
	}
	defer body.Close()

	var got int64
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) > 0 {
			got++
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", path, err)
	}

	if got != want {
		return fmt.Errorf("object %s holds %d lines, expected %d", path, got, want)
	}
	return nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/matches/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
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

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
