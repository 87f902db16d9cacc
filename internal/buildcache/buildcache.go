// Package buildcache records compile results in a local sqlite database so
// repeated driver runs can be inspected; LastResult looks up the latest
// record for a file and source hash. Nothing here skips recompilation.
package buildcache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS compiles (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session    TEXT NOT NULL,
	file       TEXT NOT NULL,
	src_hash   TEXT NOT NULL,
	errors     INTEGER NOT NULL,
	warnings   INTEGER NOT NULL,
	duration_us INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS compiles_file ON compiles(file, src_hash);
`

// Cache is one open build-cache database. A session id is minted per Cache
// so all records of one driver invocation can be correlated.
type Cache struct {
	db      *sql.DB
	session string
}

// Record is one stored compile result.
type Record struct {
	Session  string
	File     string
	SrcHash  string
	Errors   int
	Warnings int
	Duration time.Duration
	Created  time.Time
}

func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open build cache: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize build cache: %w", err)
	}
	return &Cache{db: db, session: uuid.New().String()}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Session returns the id stamped on every record of this Cache.
func (c *Cache) Session() string {
	return c.session
}

// HashSource returns the content hash used to correlate compiles of the
// same input.
func HashSource(src string) string {
	sum := sha256.Sum256([]byte(src))
	return hex.EncodeToString(sum[:])
}

// Put stores one compile result.
func (c *Cache) Put(file, srcHash string, errors, warnings int, duration time.Duration) error {
	_, err := c.db.Exec(
		`INSERT INTO compiles (session, file, src_hash, errors, warnings, duration_us, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.session, file, srcHash, errors, warnings, duration.Microseconds(),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record compile: %w", err)
	}
	return nil
}

// LastResult returns the most recent record for the given file and source
// hash, or ok=false when the input has not been compiled before.
func (c *Cache) LastResult(file, srcHash string) (Record, bool, error) {
	row := c.db.QueryRow(
		`SELECT session, file, src_hash, errors, warnings, duration_us, created_at
		 FROM compiles WHERE file = ? AND src_hash = ?
		 ORDER BY id DESC LIMIT 1`,
		file, srcHash,
	)
	var r Record
	var durationUS int64
	var created string
	err := row.Scan(&r.Session, &r.File, &r.SrcHash, &r.Errors, &r.Warnings, &durationUS, &created)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("query build cache: %w", err)
	}
	r.Duration = time.Duration(durationUS) * time.Microsecond
	r.Created, _ = time.Parse(time.RFC3339Nano, created)
	return r, true, nil
}
