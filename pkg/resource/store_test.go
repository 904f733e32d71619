package resource

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	blob, err := NewDiskBlob(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskBlob() error = %v", err)
	}
	cfg.Logger = testLogger()
	return NewStore(blob, cfg)
}

func uploadObject(t *testing.T, s *Store, kind string, data []byte) string {
	t.Helper()
	ticket, err := s.Prepare(kind, "application/octet-stream", int64(len(data)), "")
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if _, _, err := s.Upload(ticket.RID, bytes.NewReader(data)); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	return ticket.RID
}

func TestTwoPhaseUpload(t *testing.T) {
	s := newTestStore(t, Config{BaseURL: "http://127.0.0.1:9091/resources"})
	data := []byte("hello resource")
	sum := sha256.Sum256(data)

	ticket, err := s.Prepare("audio", "audio/mpeg", int64(len(data)), hex.EncodeToString(sum[:]))
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if ticket.Method != "PUT" {
		t.Errorf("ticket method = %q, want PUT", ticket.Method)
	}
	if !strings.HasPrefix(ticket.URL, "http://127.0.0.1:9091/resources/") {
		t.Errorf("ticket url = %q, want under base url", ticket.URL)
	}

	size, digest, err := s.Upload(ticket.RID, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if size != int64(len(data)) {
		t.Errorf("size = %d, want %d", size, len(data))
	}
	if digest != hex.EncodeToString(sum[:]) {
		t.Errorf("digest = %q, want declared", digest)
	}

	status, err := s.Commit(ticket.RID, size)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if status != StatusReady {
		t.Errorf("status = %q, want ready", status)
	}
}

func TestPrepareFailsBeforeFileCreation(t *testing.T) {
	dir := t.TempDir()
	blob, err := NewDiskBlob(dir)
	if err != nil {
		t.Fatalf("NewDiskBlob() error = %v", err)
	}
	s := NewStore(blob, Config{MaxTotalBytes: 500, Logger: testLogger()})

	_, err = s.Prepare("image", "image/png", 1000, "")
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Prepare() error = %v, want ErrQuotaExceeded", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("directory has %d files after failed prepare, want 0", len(entries))
	}
	if bytes, files := s.Stats(); bytes != 0 || files != 0 {
		t.Errorf("stats = %d bytes / %d files, want 0 / 0", bytes, files)
	}
}

func TestUploadChecksumMismatchDeletesArtifact(t *testing.T) {
	s := newTestStore(t, Config{})
	ticket, err := s.Prepare("image", "image/png", 4, strings.Repeat("ab", 32))
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	_, _, err = s.Upload(ticket.RID, strings.NewReader("data"))
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("Upload() error = %v, want ErrChecksumMismatch", err)
	}
	if _, ok := s.Lookup(ticket.RID); ok {
		t.Error("entry survived checksum mismatch, want removed")
	}
}

func TestCommitSizeMismatch(t *testing.T) {
	s := newTestStore(t, Config{})
	rid := uploadObject(t, s, "image", []byte("four"))

	if _, err := s.Commit(rid, 9999); !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("Commit() error = %v, want ErrSizeMismatch", err)
	}
	if _, ok := s.Lookup(rid); ok {
		t.Error("entry survived size mismatch, want removed")
	}
}

func TestCommitBeforeUpload(t *testing.T) {
	s := newTestStore(t, Config{})
	ticket, err := s.Prepare("image", "image/png", 4, "")
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if _, err := s.Commit(ticket.RID, 0); !errors.Is(err, ErrNotReady) {
		t.Errorf("Commit() error = %v, want ErrNotReady", err)
	}
}

func TestGetInlineSmallObject(t *testing.T) {
	s := newTestStore(t, Config{MaxInlineBytes: 1024})
	data := []byte("tiny payload")
	rid := uploadObject(t, s, "image", data)

	ref, err := s.Get(context.Background(), rid)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ref.URL != "" {
		t.Errorf("url = %q, want empty for inline reference", ref.URL)
	}
	decoded, err := base64.StdEncoding.DecodeString(ref.Inline)
	if err != nil {
		t.Fatalf("inline decode error = %v", err)
	}
	if !bytes.Equal(decoded, data) {
		t.Errorf("inline bytes = %q, want %q", decoded, data)
	}
}

func TestGetURLLargeObject(t *testing.T) {
	s := newTestStore(t, Config{
		MaxInlineBytes: 1,
		BaseURL:        "http://127.0.0.1:9091/resources",
		Token:          "secret",
	})
	rid := uploadObject(t, s, "video", []byte("definitely larger than one byte"))

	ref, err := s.Get(context.Background(), rid)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ref.Inline != "" {
		t.Error("inline set for large object, want url")
	}
	want := "http://127.0.0.1:9091/resources/" + rid + "?token=secret"
	if ref.URL != want {
		t.Errorf("url = %q, want %q", ref.URL, want)
	}
}

func TestReleaseNotIdempotent(t *testing.T) {
	s := newTestStore(t, Config{})
	rid := uploadObject(t, s, "image", []byte("x"))

	if err := s.Release(rid); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := s.Release(rid); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Release() error = %v, want ErrNotFound", err)
	}
}

func TestCleanupTTL(t *testing.T) {
	s := newTestStore(t, Config{TTL: 10 * time.Millisecond})
	rid := uploadObject(t, s, "image", []byte("expiring"))

	time.Sleep(30 * time.Millisecond)
	if err := s.Cleanup(0, 0); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if _, ok := s.Lookup(rid); ok {
		t.Error("expired entry survived cleanup")
	}
}

func TestCleanupEvictsLeastRecentlyAccessed(t *testing.T) {
	s := newTestStore(t, Config{MaxTotalBytes: 100})
	old := uploadObject(t, s, "image", bytes.Repeat([]byte("a"), 40))
	time.Sleep(5 * time.Millisecond)
	fresh := uploadObject(t, s, "image", bytes.Repeat([]byte("b"), 40))

	// Touch the older object last so access order diverges from
	// creation order.
	time.Sleep(5 * time.Millisecond)
	if _, err := s.Get(context.Background(), old); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if err := s.Cleanup(40, 1); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if _, ok := s.Lookup(fresh); ok {
		t.Error("least recently accessed entry survived, want evicted")
	}
	if _, ok := s.Lookup(old); !ok {
		t.Error("recently accessed entry evicted, want kept")
	}
}

func TestCleanupNeverEvictsMidUpload(t *testing.T) {
	s := newTestStore(t, Config{MaxTotalBytes: 100})
	ticket, err := s.Prepare("video", "video/mp4", 90, "")
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	// Hold the upload open while a cleanup demands more headroom than
	// evicting everything else could provide.
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		_, _, err := s.Upload(ticket.RID, pr)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)

	if err := s.Cleanup(50, 0); !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("Cleanup() error = %v, want ErrQuotaExceeded", err)
	}
	if _, ok := s.Lookup(ticket.RID); !ok {
		t.Error("mid-upload entry evicted by cleanup")
	}

	pw.Write(bytes.Repeat([]byte("v"), 90))
	pw.Close()
	if err := <-done; err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
}

func TestBuildReferenceFromFile(t *testing.T) {
	s := newTestStore(t, Config{MaxInlineBytes: 1024})
	path := filepath.Join(t.TempDir(), "clip.mp3")
	if err := os.WriteFile(path, []byte("mp3 bytes"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	ref, err := s.BuildReferenceFromFile(context.Background(), path, "audio")
	if err != nil {
		t.Fatalf("BuildReferenceFromFile() error = %v", err)
	}
	if ref.Kind != "audio" {
		t.Errorf("kind = %q, want audio", ref.Kind)
	}
	if ref.MIME != "audio/mpeg" {
		t.Errorf("mime = %q, want audio/mpeg", ref.MIME)
	}
	if ref.Inline == "" {
		t.Error("inline empty for small ingested file")
	}
	if e, ok := s.Lookup(ref.RID); !ok || e.Status != StatusReady {
		t.Errorf("ingested entry = %+v, want ready", e)
	}
}

func TestReserveUploadGrowsReservation(t *testing.T) {
	s := newTestStore(t, Config{MaxTotalBytes: 1000})
	idle := uploadObject(t, s, "image", bytes.Repeat([]byte("a"), 300))

	ticket, err := s.Prepare("video", "video/mp4", 100, "")
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	// Growing to 900 needs the idle object evicted, but never the
	// pending entry the reservation is for.
	if err := s.ReserveUpload(ticket.RID, 900); err != nil {
		t.Fatalf("ReserveUpload() error = %v", err)
	}
	if _, ok := s.Lookup(idle); ok {
		t.Error("idle object survived, want evicted for headroom")
	}
	entry, ok := s.Lookup(ticket.RID)
	if !ok {
		t.Fatal("pending entry evicted by its own reservation")
	}
	if entry.Size != 900 {
		t.Errorf("reserved size = %d, want 900", entry.Size)
	}

	if err := s.ReserveUpload(ticket.RID, 2000); !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("ReserveUpload(2000) error = %v, want ErrQuotaExceeded", err)
	}
	// A total at or below the current reservation is a no-op.
	if err := s.ReserveUpload(ticket.RID, 500); err != nil {
		t.Errorf("ReserveUpload(500) error = %v, want nil", err)
	}
	if entry, _ := s.Lookup(ticket.RID); entry.Size != 900 {
		t.Errorf("reservation shrank to %d, want 900 kept", entry.Size)
	}

	if err := s.ReserveUpload("missing", 10); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReserveUpload(missing) error = %v, want ErrNotFound", err)
	}
}
