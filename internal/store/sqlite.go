package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	cserrors "github.com/Aman-CERP/codesearch/internal/errors"
)

// candidateFactor is the HNSW over-fetch multiplier before exact rescoring.
const candidateFactor = 4

// entry is one record of the in-memory snapshot.
type entry struct {
	rec  VectorRecord
	norm []float32
	seq  uint64
}

// SQLiteStore implements VectorStore, FileRecordStore and StateStore on one
// SQLite database. Records are mirrored in memory for query; a file's records
// are replaced in a single transaction and swapped into the snapshot under
// the write lock, so a reader sees either the old set or the new one.
type SQLiteStore struct {
	writeMu sync.Mutex

	mu     sync.RWMutex
	db     *sql.DB
	path   string
	cfg    Config
	byFile map[string][]*entry
	bySeq  map[uint64]*entry
	dims   int
	gen    uint64
	ann    *hnswIndex
	closed bool
}

var (
	_ VectorStore     = (*SQLiteStore)(nil)
	_ FileRecordStore = (*SQLiteStore)(nil)
	_ StateStore      = (*SQLiteStore)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS chunks (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT NOT NULL UNIQUE,
	file_path    TEXT NOT NULL,
	start_line   INTEGER NOT NULL,
	end_line     INTEGER NOT NULL,
	chunk_type   TEXT NOT NULL,
	name         TEXT NOT NULL DEFAULT '',
	context      TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL,
	vector       BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file_path);

CREATE TABLE IF NOT EXISTS files (
	path         TEXT PRIMARY KEY,
	mod_time     INTEGER NOT NULL,
	size         INTEGER NOT NULL,
	content_hash TEXT NOT NULL,
	chunks       INTEGER NOT NULL DEFAULT -1
);

CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

// migrateChunkCount adds files.chunks to databases created at version 1.
func migrateChunkCount(db *sql.DB) error {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('files') WHERE name = 'chunks'`).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		if _, err := db.Exec(`ALTER TABLE files ADD COLUMN chunks INTEGER NOT NULL DEFAULT -1`); err != nil {
			return err
		}
	}
	_, err := db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (2)`)
	return err
}

// validateIntegrity checks an existing database before it is opened.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// RemoveDatabase deletes a database file and its WAL companions.
func RemoveDatabase(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	_ = os.Remove(path + "-wal")
	_ = os.Remove(path + "-shm")
	return nil
}

// OpenDB opens a SQLite database with the WAL settings shared by every
// codesearch database. An empty path opens an in-memory database.
func OpenDB(path string) (*sql.DB, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: one writer, and in-memory databases are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	return db, nil
}

// OpenChecked validates the database at path and opens it. A corrupted file
// is removed and reopened empty; the returned flag reports that it happened.
func OpenChecked(path string) (*sql.DB, bool, error) {
	reset := false
	if path != "" {
		if validErr := validateIntegrity(path); validErr != nil {
			slog.Warn("database_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if err := RemoveDatabase(path); err != nil {
				return nil, false, fmt.Errorf("database corrupted at %s and cannot remove: %w (original error: %v)", path, err, validErr)
			}
			reset = true
		}
	}
	db, err := OpenDB(path)
	return db, reset, err
}

// Open opens or creates the index database at path. An empty path creates an
// in-memory store for tests.
func Open(path string, cfg Config) (*SQLiteStore, error) {
	if cfg.Backend == "" {
		cfg.Backend = BackendExact
	}
	if cfg.Backend != BackendExact && cfg.Backend != BackendHNSW {
		return nil, cserrors.ValidationError(fmt.Sprintf("unknown store backend %q", cfg.Backend), nil)
	}

	db, reset, err := OpenChecked(path)
	if err != nil {
		return nil, cserrors.New(cserrors.ErrCodeStoreFailed, "failed to open index store", err)
	}
	if reset {
		slog.Info("index_store_cleared",
			slog.String("path", path),
			slog.String("reason", "corruption detected, full reindex required"))
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, cserrors.New(cserrors.ErrCodeStoreFailed, "failed to initialize schema", err)
	}
	if err := migrateChunkCount(db); err != nil {
		_ = db.Close()
		return nil, cserrors.New(cserrors.ErrCodeStoreFailed, "failed to migrate schema", err)
	}

	s := &SQLiteStore{
		db:     db,
		path:   path,
		cfg:    cfg,
		byFile: make(map[string][]*entry),
		bySeq:  make(map[uint64]*entry),
	}
	if cfg.Backend == BackendHNSW {
		s.ann = newHNSWIndex(cfg.M, cfg.EfSearch)
	}

	if err := s.load(context.Background()); err != nil {
		_ = db.Close()
		return nil, cserrors.New(cserrors.ErrCodeStoreFailed, "failed to load index", err)
	}
	return s, nil
}

// load reads every chunk row into the snapshot in insertion order.
func (s *SQLiteStore) load(ctx context.Context) error {
	dimStr, err := s.GetState(ctx, StateKeyDimension)
	if err != nil {
		return err
	}
	if dimStr != "" {
		if s.dims, err = strconv.Atoi(dimStr); err != nil {
			return fmt.Errorf("invalid stored dimension %q: %w", dimStr, err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT seq, id, file_path, start_line, end_line,
		chunk_type, name, context, content_hash, vector FROM chunks ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("query chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			e    entry
			blob []byte
		)
		if err := rows.Scan(&e.seq, &e.rec.ID, &e.rec.FilePath, &e.rec.StartLine, &e.rec.EndLine,
			&e.rec.Type, &e.rec.Name, &e.rec.Context, &e.rec.ContentHash, &blob); err != nil {
			return fmt.Errorf("scan chunk: %w", err)
		}
		e.rec.Vector = DecodeVector(blob)
		if s.dims == 0 {
			s.dims = len(e.rec.Vector)
		}
		e.norm = normalize(e.rec.Vector)
		s.byFile[e.rec.FilePath] = append(s.byFile[e.rec.FilePath], &e)
		s.bySeq[e.seq] = &e
		if s.ann != nil {
			s.ann.add(e.seq, e.norm)
		}
	}
	return rows.Err()
}

// Upsert replaces every record of filePath with records. An empty records
// slice behaves like Delete.
func (s *SQLiteStore) Upsert(ctx context.Context, filePath string, records []VectorRecord) error {
	if len(records) == 0 {
		return s.Delete(ctx, filePath)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	closed, dims := s.closed, s.dims
	s.mu.RUnlock()
	if closed {
		return fmt.Errorf("store is closed")
	}

	newDims := 0
	for i := range records {
		got := len(records[i].Vector)
		if got == 0 {
			return cserrors.ValidationError("record has an empty vector", nil).WithDetail("id", records[i].ID)
		}
		if dims == 0 {
			if newDims == 0 {
				newDims = got
			}
			if got != newDims {
				return cserrors.DimensionMismatch(newDims, got)
			}
			continue
		}
		if got != dims {
			return cserrors.DimensionMismatch(dims, got)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_path = ?`, filePath); err != nil {
		return fmt.Errorf("failed to delete old chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks
		(id, file_path, start_line, end_line, chunk_type, name, context, content_hash, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	entries := make([]*entry, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		rec.FilePath = filePath
		if rec.ID == "" {
			rec.ID = RecordID(filePath, rec.StartLine, rec.EndLine)
		}
		if seen[rec.ID] {
			slog.Debug("duplicate_record_skipped", slog.String("id", rec.ID))
			continue
		}
		seen[rec.ID] = true

		res, err := stmt.ExecContext(ctx, rec.ID, rec.FilePath, rec.StartLine, rec.EndLine,
			rec.Type, rec.Name, rec.Context, rec.ContentHash, EncodeVector(rec.Vector))
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", rec.ID, err)
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read chunk sequence: %w", err)
		}
		rec.Vector = slices.Clone(rec.Vector)
		entries = append(entries, &entry{rec: rec, norm: normalize(rec.Vector), seq: uint64(seq)})
	}

	if newDims != 0 {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO state (key, value) VALUES (?, ?)`,
			StateKeyDimension, strconv.Itoa(newDims)); err != nil {
			return fmt.Errorf("failed to record dimension: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if newDims != 0 {
		s.dims = newDims
	}
	s.gen++
	s.dropLocked(filePath)
	s.byFile[filePath] = entries
	for _, e := range entries {
		s.bySeq[e.seq] = e
		if s.ann != nil {
			s.ann.add(e.seq, e.norm)
		}
	}
	s.compactLocked()
	return nil
}

// Delete removes every record of filePath.
func (s *SQLiteStore) Delete(ctx context.Context, filePath string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return fmt.Errorf("store is closed")
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE file_path = ?`, filePath); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.dropLocked(filePath)
	return nil
}

// dropLocked removes filePath from the snapshot. Caller holds mu.
func (s *SQLiteStore) dropLocked(filePath string) {
	for _, e := range s.byFile[filePath] {
		delete(s.bySeq, e.seq)
		if s.ann != nil {
			s.ann.remove(e.seq)
		}
	}
	delete(s.byFile, filePath)
}

// compactLocked rebuilds the HNSW graph once lazily removed nodes dominate it.
func (s *SQLiteStore) compactLocked() {
	if s.ann == nil || !s.ann.needsCompaction() {
		return
	}
	orphans := s.ann.orphans()
	s.ann.rebuild(s.orderedLocked())
	slog.Debug("hnsw_compacted", slog.Int("orphans_removed", orphans), slog.Int("nodes", len(s.bySeq)))
}

// orderedLocked returns every entry in insertion order.
func (s *SQLiteStore) orderedLocked() []*entry {
	all := make([]*entry, 0, len(s.bySeq))
	for _, e := range s.bySeq {
		all = append(all, e)
	}
	slices.SortFunc(all, func(a, b *entry) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	return all
}

// Query returns the k most similar records.
func (s *SQLiteStore) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if k <= 0 || len(s.bySeq) == 0 {
		return []Match{}, nil
	}
	if len(vector) != s.dims {
		return nil, cserrors.DimensionMismatch(s.dims, len(vector))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := normalize(vector)

	var candidates []*entry
	if s.ann != nil && k < len(s.bySeq) {
		for _, seq := range s.ann.search(q, k*candidateFactor) {
			candidates = append(candidates, s.bySeq[seq])
		}
	} else {
		candidates = make([]*entry, 0, len(s.bySeq))
		for _, e := range s.bySeq {
			candidates = append(candidates, e)
		}
	}

	type scored struct {
		e     *entry
		score float32
	}
	hits := make([]scored, len(candidates))
	for i, e := range candidates {
		hits[i] = scored{e: e, score: dot(q, e.norm)}
	}
	slices.SortFunc(hits, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		case a.e.seq < b.e.seq:
			return -1
		case a.e.seq > b.e.seq:
			return 1
		}
		return 0
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	matches := make([]Match, len(hits))
	for i, h := range hits {
		matches[i] = Match{Record: h.e.rec, Score: h.score}
	}
	return matches, nil
}

// Count returns the number of stored records.
func (s *SQLiteStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bySeq)
}

// Generation returns the snapshot version. It changes under the same lock
// that swaps a file's records.
func (s *SQLiteStore) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// Dimensions returns the fixed vector dimension, or 0 before the first write.
func (s *SQLiteStore) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dims
}

// RecordsForFile returns the records of filePath in insertion order.
func (s *SQLiteStore) RecordsForFile(filePath string) []VectorRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]VectorRecord, 0, len(s.byFile[filePath]))
	for _, e := range s.byFile[filePath] {
		out = append(out, e.rec)
	}
	return out
}

// IndexedFiles returns the record count of every file in the snapshot.
func (s *SQLiteStore) IndexedFiles() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.byFile))
	for path, entries := range s.byFile {
		out[path] = len(entries)
	}
	return out
}

// FileRecords returns the FileRecord table keyed by path.
func (s *SQLiteStore) FileRecords(ctx context.Context) (map[string]FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, mod_time, size, content_hash, chunks FROM files`)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]FileRecord)
	for rows.Next() {
		var r FileRecord
		if err := rows.Scan(&r.Path, &r.ModTime, &r.Size, &r.ContentHash, &r.Chunks); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		out[r.Path] = r
	}
	return out, rows.Err()
}

// FileCount returns the number of FileRecords.
func (s *SQLiteStore) FileCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count files: %w", err)
	}
	return n, nil
}

// PutFileRecords inserts or replaces FileRecords.
func (s *SQLiteStore) PutFileRecords(ctx context.Context, records []FileRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO files (path, mod_time, size, content_hash, chunks)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.Path, r.ModTime, r.Size, r.ContentHash, r.Chunks); err != nil {
			return fmt.Errorf("failed to save file record %s: %w", r.Path, err)
		}
	}
	return tx.Commit()
}

// DeleteFileRecords removes FileRecords by path.
func (s *SQLiteStore) DeleteFileRecords(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range paths {
		if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, p); err != nil {
			return fmt.Errorf("failed to delete file record %s: %w", p, err)
		}
	}
	return tx.Commit()
}

// GetState returns the value of key, or "" if it is unset.
func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get state %s: %w", key, err)
	}
	return value, nil
}

// SetState stores value under key.
func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO state (key, value) VALUES (?, ?)`, key, value); err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteStore) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.path != "" {
		if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			slog.Warn("wal_checkpoint_failed", slog.String("path", s.path), slog.String("error", err.Error()))
		}
	}
	return s.db.Close()
}

// EncodeVector packs a vector as little-endian float32s.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector unpacks a vector written by EncodeVector. Trailing bytes that
// do not form a whole float32 are ignored.
func DecodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
