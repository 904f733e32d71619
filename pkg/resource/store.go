package resource

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a rid has no entry in the index.
	ErrNotFound = errors.New("resource: not found")

	// ErrQuotaExceeded is returned when a write cannot fit within the
	// configured quota even after eviction.
	ErrQuotaExceeded = errors.New("resource: quota exceeded")

	// ErrChecksumMismatch is returned when uploaded bytes do not match
	// the declared sha256 digest.
	ErrChecksumMismatch = errors.New("resource: checksum mismatch")

	// ErrSizeMismatch is returned when the committed size does not match
	// the stored size.
	ErrSizeMismatch = errors.New("resource: size mismatch")

	// ErrNotReady is returned when an operation needs a ready object but
	// the upload has not completed.
	ErrNotReady = errors.New("resource: upload not completed")

	// ErrBadState is returned when an upload targets a rid that is not
	// pending.
	ErrBadState = errors.New("resource: invalid state for upload")
)

// Status tracks an entry through the two-phase upload.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// Entry is the in-memory metadata record for one stored object.
type Entry struct {
	RID        string
	Kind       string
	MIME       string
	Size       int64
	SHA256     string
	Status     Status
	CreatedAt  time.Time
	LastAccess time.Time

	uploading bool
}

// Ticket tells a client where to stream the bytes of a prepared upload.
type Ticket struct {
	RID     string            `json:"rid"`
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Reference is a resolvable pointer to a ready object. Exactly one of
// URL or Inline is set; Inline carries base64-encoded bytes for small
// objects.
type Reference struct {
	RID    string `json:"rid"`
	URL    string `json:"url,omitempty"`
	Inline string `json:"inline,omitempty"`
	MIME   string `json:"mime"`
	Kind   string `json:"kind"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256,omitempty"`
}

// Config controls store quotas and reference building.
type Config struct {
	// MaxTotalBytes caps resident bytes, pending reservations included.
	MaxTotalBytes int64

	// MaxFiles caps the number of index entries.
	MaxFiles int

	// TTL is the maximum age of an object before the cleanup pass
	// removes it.
	TTL time.Duration

	// MaxInlineBytes is the threshold below which Get returns object
	// bytes inline instead of a URL.
	MaxInlineBytes int64

	// BaseURL is the external URL of the resource HTTP server including
	// the mount path, e.g. "http://127.0.0.1:9091/resources". Used for
	// tickets and for downloads the blob backend cannot serve directly.
	BaseURL string

	// Token, when set, is required as a bearer or query token by the
	// HTTP server and is attached to issued references and tickets.
	Token string

	// Logger for store events. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the store limits used when fields are zero.
func DefaultConfig() Config {
	return Config{
		MaxTotalBytes:  1 << 30,
		MaxFiles:       2000,
		TTL:            7 * 24 * time.Hour,
		MaxInlineBytes: 256 << 10,
	}
}

// Store is the content object store. All methods are safe for concurrent
// use.
type Store struct {
	cfg    Config
	blob   Blob
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*Entry
}

// NewStore creates a store over the given blob backend, filling zero
// config fields from DefaultConfig.
func NewStore(blob Blob, cfg Config) *Store {
	def := DefaultConfig()
	if cfg.MaxTotalBytes <= 0 {
		cfg.MaxTotalBytes = def.MaxTotalBytes
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = def.MaxFiles
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxInlineBytes <= 0 {
		cfg.MaxInlineBytes = def.MaxInlineBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Store{
		cfg:     cfg,
		blob:    blob,
		logger:  cfg.Logger.With("component", "resource_store"),
		entries: make(map[string]*Entry),
	}
}

// Prepare allocates a rid for an incoming object and reserves its
// declared size against the quota, evicting idle objects if needed. It
// fails with ErrQuotaExceeded before any file is created when the
// declared size cannot fit.
func (s *Store) Prepare(kind, mimeType string, declaredSize int64, declaredSHA256 string) (*Ticket, error) {
	if declaredSize < 0 {
		return nil, fmt.Errorf("resource: negative declared size %d", declaredSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cleanupLocked(declaredSize, 1); err != nil {
		return nil, err
	}

	now := time.Now()
	e := &Entry{
		RID:        uuid.NewString(),
		Kind:       kind,
		MIME:       mimeType,
		Size:       declaredSize,
		SHA256:     declaredSHA256,
		Status:     StatusPending,
		CreatedAt:  now,
		LastAccess: now,
	}
	s.entries[e.RID] = e

	t := &Ticket{
		RID:    e.RID,
		URL:    s.objectURL(e.RID, false),
		Method: "PUT",
	}
	if s.cfg.Token != "" {
		t.Headers = map[string]string{"Authorization": "Bearer " + s.cfg.Token}
	}
	s.logger.Debug("prepared upload", "rid", e.RID, "kind", kind, "size", declaredSize)
	return t, nil
}

// ReserveUpload grows the quota reservation of a prepared rid to total
// bytes when the incoming payload is larger than the size declared at
// Prepare. The entry is pinned against eviction while headroom is made,
// so the reservation can never evict the upload it serves. A total the
// store can never fit is ErrQuotaExceeded.
func (s *Store) ReserveUpload(rid string, total int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[rid]
	if !ok {
		return ErrNotFound
	}
	if e.Status != StatusPending || e.uploading {
		return ErrBadState
	}
	extra := total - e.Size
	if extra <= 0 {
		return nil
	}

	e.uploading = true
	err := s.cleanupLocked(extra, 0)
	e.uploading = false
	if err != nil {
		return err
	}
	e.Size = total
	return nil
}

// Upload streams the object bytes for a prepared rid, computing the
// sha256 digest and size as it writes. A digest declared at Prepare time
// is verified here; mismatch deletes the partial artifact and marks the
// entry errored.
func (s *Store) Upload(rid string, r io.Reader) (int64, string, error) {
	s.mu.Lock()
	e, ok := s.entries[rid]
	if !ok {
		s.mu.Unlock()
		return 0, "", ErrNotFound
	}
	if e.Status != StatusPending || e.uploading {
		s.mu.Unlock()
		return 0, "", ErrBadState
	}
	e.uploading = true
	s.mu.Unlock()

	size, digest, err := s.writeBlob(rid, r)

	s.mu.Lock()
	defer s.mu.Unlock()
	e.uploading = false
	if err != nil {
		e.Status = StatusError
		s.removeLocked(e)
		return 0, "", err
	}
	if e.SHA256 != "" && e.SHA256 != digest {
		e.Status = StatusError
		s.removeLocked(e)
		return 0, "", fmt.Errorf("%w: declared %s got %s", ErrChecksumMismatch, e.SHA256, digest)
	}
	e.SHA256 = digest
	e.Size = size
	e.Status = StatusReady
	e.LastAccess = time.Now()
	s.logger.Info("upload stored", "rid", rid, "size", size)
	return size, digest, nil
}

func (s *Store) writeBlob(rid string, r io.Reader) (int64, string, error) {
	w, err := s.blob.Writer(rid)
	if err != nil {
		return 0, "", err
	}
	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(w, h), r)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.blob.Remove(rid)
		return 0, "", err
	}
	return size, hex.EncodeToString(h.Sum(nil)), nil
}

// Commit finalizes a two-phase upload. A non-zero actualSize must match
// the stored size; mismatch deletes the artifact. Committing a rid whose
// bytes never arrived fails with ErrNotReady.
func (s *Store) Commit(rid string, actualSize int64) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[rid]
	if !ok {
		return "", ErrNotFound
	}
	switch e.Status {
	case StatusReady:
		if actualSize > 0 && actualSize != e.Size {
			e.Status = StatusError
			s.removeLocked(e)
			return StatusError, fmt.Errorf("%w: declared %d stored %d", ErrSizeMismatch, actualSize, e.Size)
		}
		e.LastAccess = time.Now()
		return StatusReady, nil
	case StatusPending:
		return StatusPending, ErrNotReady
	default:
		return StatusError, ErrNotFound
	}
}

// Get returns a resolvable reference for a ready object and refreshes
// its access time. Objects at or below MaxInlineBytes are returned
// inline as base64.
func (s *Store) Get(ctx context.Context, rid string) (*Reference, error) {
	s.mu.Lock()
	e, ok := s.entries[rid]
	if !ok || e.Status != StatusReady {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	e.LastAccess = time.Now()
	ref := &Reference{RID: e.RID, MIME: e.MIME, Kind: e.Kind, Size: e.Size, SHA256: e.SHA256}
	inline := e.Size <= s.cfg.MaxInlineBytes
	s.mu.Unlock()

	if inline {
		rc, err := s.blob.Open(rid)
		if err != nil {
			return nil, fmt.Errorf("resource: open %s: %w", rid, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("resource: read %s: %w", rid, err)
		}
		ref.Inline = base64.StdEncoding.EncodeToString(data)
		return ref, nil
	}

	if url, ok := s.blob.URL(ctx, rid); ok {
		ref.URL = url
	} else {
		ref.URL = s.objectURL(rid, true)
	}
	return ref, nil
}

// Open returns a read stream and the entry for a ready object,
// refreshing its access time. The caller closes the stream.
func (s *Store) Open(rid string) (io.ReadCloser, *Entry, error) {
	s.mu.Lock()
	e, ok := s.entries[rid]
	if !ok || e.Status != StatusReady {
		s.mu.Unlock()
		return nil, nil, ErrNotFound
	}
	e.LastAccess = time.Now()
	snapshot := *e
	s.mu.Unlock()

	rc, err := s.blob.Open(rid)
	if err != nil {
		return nil, nil, fmt.Errorf("resource: open %s: %w", rid, err)
	}
	return rc, &snapshot, nil
}

// Lookup returns a snapshot of the entry for rid.
func (s *Store) Lookup(rid string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[rid]
	if !ok {
		return nil, false
	}
	snapshot := *e
	return &snapshot, true
}

// Release deletes an object. A second release of the same rid reports
// ErrNotFound.
func (s *Store) Release(rid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[rid]
	if !ok {
		return ErrNotFound
	}
	s.removeLocked(e)
	s.logger.Debug("released", "rid", rid)
	return nil
}

// BuildReferenceFromFile ingests a local file into the store and returns
// a reference of the same shape as Get. The kind drives MIME fallback
// when the extension is unknown.
func (s *Store) BuildReferenceFromFile(ctx context.Context, path, kind string) (*Reference, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("resource: stat %s: %w", path, err)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	t, err := s.Prepare(kind, mimeType, fi.Size(), "")
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		s.Release(t.RID)
		return nil, fmt.Errorf("resource: open %s: %w", path, err)
	}
	defer f.Close()

	if _, _, err := s.Upload(t.RID, f); err != nil {
		return nil, err
	}
	return s.Get(ctx, t.RID)
}

// Cleanup evicts objects in two passes: first everything older than the
// TTL, then least-recently-accessed objects until resident bytes and
// file count fit under the quota minus the requested headroom. Entries
// mid-upload are never evicted. A headroom that cannot fit even in an
// empty store is a hard ErrQuotaExceeded.
func (s *Store) Cleanup(reserveBytes int64, reserveFiles int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanupLocked(reserveBytes, reserveFiles)
}

func (s *Store) cleanupLocked(reserveBytes int64, reserveFiles int) error {
	if reserveBytes > s.cfg.MaxTotalBytes || reserveFiles > s.cfg.MaxFiles {
		return fmt.Errorf("%w: need %d bytes / %d files, limit %d / %d",
			ErrQuotaExceeded, reserveBytes, reserveFiles, s.cfg.MaxTotalBytes, s.cfg.MaxFiles)
	}

	now := time.Now()
	for _, e := range s.entries {
		if e.uploading {
			continue
		}
		if now.Sub(e.CreatedAt) > s.cfg.TTL {
			s.removeLocked(e)
			s.logger.Debug("evicted expired", "rid", e.RID, "age", now.Sub(e.CreatedAt))
		}
	}

	byteTarget := s.cfg.MaxTotalBytes - reserveBytes
	fileTarget := s.cfg.MaxFiles - reserveFiles
	if s.usedBytesLocked() <= byteTarget && len(s.entries) <= fileTarget {
		return nil
	}

	victims := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.uploading {
			victims = append(victims, e)
		}
	}
	sort.Slice(victims, func(i, j int) bool {
		return victims[i].LastAccess.Before(victims[j].LastAccess)
	})
	for _, e := range victims {
		if s.usedBytesLocked() <= byteTarget && len(s.entries) <= fileTarget {
			break
		}
		s.removeLocked(e)
		s.logger.Debug("evicted for quota", "rid", e.RID, "size", e.Size)
	}

	if s.usedBytesLocked() > byteTarget || len(s.entries) > fileTarget {
		return fmt.Errorf("%w: %d bytes resident, need %d headroom",
			ErrQuotaExceeded, s.usedBytesLocked(), reserveBytes)
	}
	return nil
}

// Stats reports resident bytes (reservations included) and entry count.
func (s *Store) Stats() (bytes int64, files int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usedBytesLocked(), len(s.entries)
}

func (s *Store) usedBytesLocked() int64 {
	var n int64
	for _, e := range s.entries {
		n += e.Size
	}
	return n
}

// removeLocked drops the index entry and its bytes. Blob errors are
// logged, not propagated, so a bulk cleanup pass survives per-file I/O
// failures.
func (s *Store) removeLocked(e *Entry) {
	delete(s.entries, e.RID)
	if err := s.blob.Remove(e.RID); err != nil {
		s.logger.Warn("blob remove failed", "rid", e.RID, "error", err)
	}
}

func (s *Store) objectURL(rid string, withToken bool) string {
	url := s.cfg.BaseURL + "/" + rid
	if withToken && s.cfg.Token != "" {
		url += "?token=" + s.cfg.Token
	}
	return url
}
