package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/memkeep/memkeep/internal/embedding"
	"github.com/memkeep/memkeep/internal/types"
)

func init() {
	sqlite_vec.Auto() // registers the vec0 virtual table with go-sqlite3
}

// SQLite implements Store on a single SQLite database. Embeddings live as
// JSON blobs alongside the rows; when the sqlite-vec extension is available
// a vec0 index accelerates Search, otherwise Search falls back to a Go-side
// cosine scan over all rows.
type SQLite struct {
	db       *sql.DB
	path     string
	embedder embedding.Embedder

	vecAvailable bool
	vecDim       int // dimension of memory_vec (0 = not yet created)
}

// Open opens or creates the memory database at dbPath.
func Open(dbPath string, embedder embedding.Embedder) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLite{db: db, path: dbPath, embedder: embedder}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		log.Printf("[store] sqlite-vec not available: %v — falling back to full scan", err)
	} else {
		log.Printf("[store] sqlite-vec %s loaded", vecVersion)
		s.vecAvailable = true
		if err := s.initVecTable(); err != nil {
			log.Printf("[store] vec init warning: %v", err)
		}
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		title TEXT,
		date TEXT,
		session_date TEXT,
		source TEXT,
		complexity TEXT,
		project TEXT,
		technologies TEXT,
		extra TEXT,
		embedding BLOB,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_memories_source ON memories(source);
	CREATE INDEX IF NOT EXISTS idx_memories_date ON memories(date);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	s.db.Exec("INSERT OR IGNORE INTO schema_version (version) VALUES (1)")
	return nil
}

// Add inserts a memory, computing its embedding first.
func (s *SQLite) Add(m *types.Memory) error {
	if m.ID == "" {
		return fmt.Errorf("empty memory id")
	}
	if m.Content == "" {
		return fmt.Errorf("empty memory content")
	}

	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM memories WHERE id = ?`, m.ID).Scan(&exists); err != nil {
		return err
	}
	if exists > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateID, m.ID)
	}

	// Embedding failure is not fatal: the row is stored without a vector and
	// simply won't surface in similarity search.
	var embBytes []byte
	emb, err := s.embedder.Embed(m.Content)
	if err != nil {
		log.Printf("[store] embed failed for %s: %v — storing without vector", m.ID, err)
		emb = nil
	} else {
		embBytes, err = json.Marshal(emb)
		if err != nil {
			return fmt.Errorf("marshal embedding: %w", err)
		}
	}

	extraBytes, err := json.Marshal(m.Metadata.Extra)
	if err != nil {
		return fmt.Errorf("marshal extra: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO memories (id, content, title, date, session_date, source, complexity, project, technologies, extra, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Content,
		m.Metadata.Title, m.Metadata.Date, m.Metadata.SessionDate,
		string(m.Metadata.Source), string(m.Metadata.Complexity), m.Metadata.Project,
		types.EncodeTechnologies(m.Metadata.Technologies), string(extraBytes), embBytes)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}

	if s.vecAvailable && len(emb) > 0 {
		if err := s.vecIndex(m.ID, emb); err != nil {
			log.Printf("[store] vec index failed for %s: %v", m.ID, err)
		}
	}
	return nil
}

// Get returns one memory by ID.
func (s *SQLite) Get(id string) (*types.Memory, error) {
	row := s.db.QueryRow(`
		SELECT id, content, title, date, session_date, source, complexity, project, technologies, extra
		FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m, err
}

// GetAll returns every memory, ordered by creation time.
func (s *SQLite) GetAll() ([]*types.Memory, error) {
	rows, err := s.db.Query(`
		SELECT id, content, title, date, session_date, source, complexity, project, technologies, extra
		FROM memories ORDER BY created_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memories []*types.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

// UpdateMetadata replaces the metadata of an existing memory. The content
// and embedding are left alone.
func (s *SQLite) UpdateMetadata(id string, md types.Metadata) error {
	extraBytes, err := json.Marshal(md.Extra)
	if err != nil {
		return fmt.Errorf("marshal extra: %w", err)
	}

	res, err := s.db.Exec(`
		UPDATE memories
		SET title = ?, date = ?, session_date = ?, source = ?, complexity = ?, project = ?, technologies = ?, extra = ?
		WHERE id = ?`,
		md.Title, md.Date, md.SessionDate, string(md.Source), string(md.Complexity), md.Project,
		types.EncodeTechnologies(md.Technologies), string(extraBytes), id)
	if err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Delete removes a memory. Missing IDs are a no-op.
func (s *SQLite) Delete(id string) error {
	if s.vecAvailable && s.vecDim != 0 {
		var rowid int64
		if err := s.db.QueryRow(`SELECT rowid FROM memories WHERE id = ?`, id).Scan(&rowid); err == nil {
			s.db.Exec(`DELETE FROM memory_vec WHERE rowid = ?`, rowid)
		}
	}
	_, err := s.db.Exec(`DELETE FROM memories WHERE id = ?`, id)
	return err
}

// Count returns the number of stored memories.
func (s *SQLite) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM memories`).Scan(&n)
	return n, err
}

// Search embeds the query and returns the most similar memories.
func (s *SQLite) Search(query string, maxResults int, threshold float64, sourceFilter string) ([]SearchResult, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	queryEmb, err := s.embedder.Embed(query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	if s.vecAvailable && s.vecDim == len(queryEmb) {
		results, err := s.searchVec(queryEmb, maxResults, threshold, sourceFilter)
		if err == nil {
			return results, nil
		}
		log.Printf("[store] vec search failed, falling back to scan: %v", err)
	}
	return s.searchScan(queryEmb, maxResults, threshold, sourceFilter)
}

// searchVec runs a KNN query against the vec0 index. Over-fetches when a
// source filter is set, since vec0 can't filter on auxiliary columns.
func (s *SQLite) searchVec(queryEmb []float64, maxResults int, threshold float64, sourceFilter string) ([]SearchResult, error) {
	k := maxResults
	if sourceFilter != "" {
		k = maxResults * 4
	}

	emb32 := normalizeFloat32(float64ToFloat32(queryEmb))
	serialized, err := sqlite_vec.SerializeFloat32(emb32)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT id, distance FROM memory_vec
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance`, serialized, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var id string
		var dist float64
		if err := rows.Scan(&id, &dist); err != nil {
			continue
		}
		sim := l2ToCosineSim(dist)
		if sim < threshold {
			continue
		}
		m, err := s.Get(id)
		if err != nil {
			continue
		}
		if sourceFilter != "" && string(m.Metadata.Source) != sourceFilter {
			continue
		}
		results = append(results, SearchResult{Memory: m, Similarity: sim})
		if len(results) >= maxResults {
			break
		}
	}
	return results, rows.Err()
}

// searchScan is the O(n) fallback: load every embedding and rank in Go.
func (s *SQLite) searchScan(queryEmb []float64, maxResults int, threshold float64, sourceFilter string) ([]SearchResult, error) {
	rows, err := s.db.Query(`SELECT id, embedding FROM memories WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type scored struct {
		id  string
		sim float64
	}
	var candidates []scored
	for rows.Next() {
		var id string
		var embBytes []byte
		if err := rows.Scan(&id, &embBytes); err != nil {
			continue
		}
		var emb []float64
		if err := json.Unmarshal(embBytes, &emb); err != nil {
			continue
		}
		sim := embedding.CosineSimilarity(queryEmb, emb)
		if sim >= threshold {
			candidates = append(candidates, scored{id: id, sim: sim})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].sim > candidates[j].sim
	})

	var results []SearchResult
	for _, c := range candidates {
		m, err := s.Get(c.id)
		if err != nil {
			continue
		}
		if sourceFilter != "" && string(m.Metadata.Source) != sourceFilter {
			continue
		}
		results = append(results, SearchResult{Memory: m, Similarity: c.sim})
		if len(results) >= maxResults {
			break
		}
	}
	return results, nil
}

// initVecTable reads the embedding dimension from existing rows, creates the
// memory_vec virtual table with that dimension, and backfills. No-ops when
// the table is empty; the first Add creates the index instead.
func (s *SQLite) initVecTable() error {
	var embBytes []byte
	err := s.db.QueryRow(`SELECT embedding FROM memories WHERE embedding IS NOT NULL AND LENGTH(embedding) > 4 LIMIT 1`).Scan(&embBytes)
	if err != nil {
		return nil // nothing stored yet; defer to first Add
	}
	var emb []float64
	if err := json.Unmarshal(embBytes, &emb); err != nil || len(emb) == 0 {
		return nil
	}
	return s.ensureVecTable(len(emb))
}

// ensureVecTable creates the memory_vec virtual table for the given embedding
// dimension (if not yet created) and backfills all existing rows. Idempotent
// for the same dim.
//
// Schema uses integer rowid (from the memories table) + auxiliary +id column,
// avoiding vec0's TEXT PRIMARY KEY partitioning behaviour which breaks KNN
// queries.
func (s *SQLite) ensureVecTable(dim int) error {
	if s.vecDim == dim {
		return nil
	}
	if s.vecDim != 0 && s.vecDim != dim {
		return fmt.Errorf("embedding dim %d doesn't match vec table dim %d", dim, s.vecDim)
	}

	_, err := s.db.Exec(fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS memory_vec USING vec0(
			embedding float[%d],
			+id TEXT
		)
	`, dim))
	if err != nil {
		return fmt.Errorf("failed to create memory_vec(float[%d]): %w", dim, err)
	}
	s.vecDim = dim

	rows, err := s.db.Query(`SELECT rowid, id, embedding FROM memories WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil // backfill failure is non-fatal
	}
	defer rows.Close()

	tx, err := s.db.Begin()
	if err != nil {
		return nil
	}

	var count int
	for rows.Next() {
		var rowid int64
		var id string
		var embBytes []byte
		if err := rows.Scan(&rowid, &id, &embBytes); err != nil {
			continue
		}
		var emb []float64
		if err := json.Unmarshal(embBytes, &emb); err != nil || len(emb) != dim {
			continue
		}
		emb32 := normalizeFloat32(float64ToFloat32(emb))
		serialized, serErr := sqlite_vec.SerializeFloat32(emb32)
		if serErr != nil {
			continue
		}
		// vec0 does not reliably support INSERT OR REPLACE; use DELETE + INSERT.
		tx.Exec(`DELETE FROM memory_vec WHERE rowid = ?`, rowid)
		if _, err := tx.Exec(`INSERT INTO memory_vec(rowid, embedding, id) VALUES (?, ?, ?)`, rowid, serialized, id); err != nil {
			log.Printf("[store] vec backfill failed for %s: %v", id, err)
			continue
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return nil
	}
	if count > 0 {
		log.Printf("[store] vec backfill: indexed %d memories (dim=%d)", count, dim)
	}
	return nil
}

// vecIndex adds a single memory's embedding to the vec0 index, creating the
// index on first use.
func (s *SQLite) vecIndex(id string, emb []float64) error {
	if s.vecDim == 0 {
		if err := s.ensureVecTable(len(emb)); err != nil {
			return err
		}
	}
	if len(emb) != s.vecDim {
		return fmt.Errorf("embedding dim %d doesn't match vec table dim %d", len(emb), s.vecDim)
	}

	var rowid int64
	if err := s.db.QueryRow(`SELECT rowid FROM memories WHERE id = ?`, id).Scan(&rowid); err != nil {
		return err
	}
	emb32 := normalizeFloat32(float64ToFloat32(emb))
	serialized, err := sqlite_vec.SerializeFloat32(emb32)
	if err != nil {
		return err
	}
	s.db.Exec(`DELETE FROM memory_vec WHERE rowid = ?`, rowid)
	_, err = s.db.Exec(`INSERT INTO memory_vec(rowid, embedding, id) VALUES (?, ?, ?)`, rowid, serialized, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*types.Memory, error) {
	var m types.Memory
	var title, date, sessionDate, source, complexity, project, techs, extra sql.NullString
	err := row.Scan(&m.ID, &m.Content, &title, &date, &sessionDate, &source, &complexity, &project, &techs, &extra)
	if err != nil {
		return nil, err
	}
	m.Metadata = types.Metadata{
		Title:        title.String,
		Date:         date.String,
		SessionDate:  sessionDate.String,
		Source:       types.Source(source.String),
		Complexity:   types.Complexity(complexity.String),
		Project:      project.String,
		Technologies: types.DecodeTechnologies(techs.String),
	}
	if extra.String != "" && extra.String != "null" {
		var m2 map[string]string
		if err := json.Unmarshal([]byte(extra.String), &m2); err == nil && len(m2) > 0 {
			m.Metadata.Extra = m2
		}
	}
	return &m, nil
}

// float64ToFloat32 converts a float64 slice to float32.
func float64ToFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

// normalizeFloat32 returns a unit-length copy of the vector.
// Normalizing before storing in vec0 makes L2 distance equivalent to cosine
// distance:
//
//	cosine_dist = L2_dist² / 2   (for unit vectors)
func normalizeFloat32(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// l2ToCosineSim converts an L2 distance (on normalized vectors) to cosine
// similarity: cosine_sim = 1 - L2²/2
func l2ToCosineSim(l2dist float64) float64 {
	return 1.0 - (l2dist*l2dist)/2.0
}
