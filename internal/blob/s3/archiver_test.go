package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakearena/internal/domain"
)

type fakeBlobStore struct {
	objects map[string][]byte
	putErr  error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: map[string][]byte{}}
}

func (f *fakeBlobStore) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.objects[path] = b
	return nil
}

func (f *fakeBlobStore) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return f.Put(ctx, path, data, "")
}

func (f *fakeBlobStore) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := f.objects[path]
	if !ok {
		return nil, fmt.Errorf("fake: get %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeBlobStore) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	for path, b := range f.objects {
		if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
			infos = append(infos, domain.BlobInfo{Path: path, Size: int64(len(b))})
		}
	}
	return infos, nil
}

func (f *fakeBlobStore) Exists(_ context.Context, path string) (bool, error) {
	_, ok := f.objects[path]
	return ok, nil
}

type fakeRecordStore struct {
	records   []domain.MatchRecord
	deleted   int64
	deleteErr error
}

func (f *fakeRecordStore) ListBefore(_ context.Context, before time.Time) ([]domain.MatchRecord, error) {
	var out []domain.MatchRecord
	for _, r := range f.records {
		if r.CompletedAt.Before(before) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRecordStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	var kept []domain.MatchRecord
	var n int64
	for _, r := range f.records {
		if r.CompletedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	f.records = kept
	f.deleted += n
	return n, nil
}

type fakeAudit struct {
	events []string
}

func (f *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAudit) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func testRecords(n int, completedAt time.Time) []domain.MatchRecord {
	out := make([]domain.MatchRecord, n)
	for i := range out {
		out[i] = domain.MatchRecord{
			MatchID:     fmt.Sprintf("m%d", i),
			GameType:    domain.GameReactionRace,
			PlayerA:     "0xaaa",
			PlayerB:     "0xbbb",
			Winner:      "0xaaa",
			Stake:       5_000_000,
			Payout:      9_700_000,
			CompletedAt: completedAt,
		}
	}
	return out
}

func TestArchiveMatchesUploadsVerifiesDeletes(t *testing.T) {
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	blob := newFakeBlobStore()
	store := &fakeRecordStore{records: testRecords(3, cutoff.Add(-time.Hour))}
	audit := &fakeAudit{}

	arch := NewArchiver(blob, blob, store, audit)

	count, err := arch.ArchiveMatches(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	data, ok := blob.objects["archive/matches/2026-03.jsonl"]
	require.True(t, ok)
	assert.Equal(t, 3, bytes.Count(data, []byte("\n")))

	assert.Equal(t, []string{"archive.matches"}, audit.events)
	assert.Empty(t, store.records)
}

func TestArchiveMatchesNoRecordsIsNoop(t *testing.T) {
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	blob := newFakeBlobStore()
	store := &fakeRecordStore{records: testRecords(2, cutoff.Add(time.Hour))}
	audit := &fakeAudit{}

	arch := NewArchiver(blob, blob, store, audit)

	count, err := arch.ArchiveMatches(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, blob.objects)
	assert.Empty(t, audit.events)
	assert.Len(t, store.records, 2)
}

func TestArchiveMatchesUploadFailureKeepsRows(t *testing.T) {
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	blob := newFakeBlobStore()
	blob.putErr = fmt.Errorf("bucket gone")
	store := &fakeRecordStore{records: testRecords(2, cutoff.Add(-time.Hour))}

	arch := NewArchiver(blob, blob, store, &fakeAudit{})

	_, err := arch.ArchiveMatches(context.Background(), cutoff)
	require.Error(t, err)
	assert.Len(t, store.records, 2)
}

func TestArchiveMatchesVerifyFailureKeepsRows(t *testing.T) {
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	blob := newFakeBlobStore()
	store := &fakeRecordStore{records: testRecords(2, cutoff.Add(-time.Hour))}

	arch := NewArchiver(blob, blob, store, &fakeAudit{})

	// Sabotage the read-back by truncating the object after upload.
	blobWithTruncate := &truncatingBlobStore{fakeBlobStore: blob}
	arch = NewArchiver(blobWithTruncate, blobWithTruncate, store, &fakeAudit{})

	_, err := arch.ArchiveMatches(context.Background(), cutoff)
	require.ErrorContains(t, err, "verify")
	assert.Len(t, store.records, 2)
}

type truncatingBlobStore struct {
	*fakeBlobStore
}

func (f *truncatingBlobStore) Put(ctx context.Context, path string, data io.Reader, ct string) error {
	if err := f.fakeBlobStore.Put(ctx, path, data, ct); err != nil {
		return err
	}
	b := f.objects[path]
	f.objects[path] = b[:len(b)/2]
	return nil
}
