// Package nvs implements the persistent key-value store collaborator
// from §6 (open/get_*/set_*/commit/erase_*) over a single SQLite table,
// one row per (namespace, key) pair. Every value is stored as text and
// parsed on read, since the original NVS API is itself just a typed
// view over an untyped blob store.
package nvs

import (
	"database/sql"
	"fmt"
	"strconv"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/jfg3rd/doorbell-core/internal/errkind"
)

// Store owns the single SQLite connection backing every namespace.
type Store struct {
	db *sql.DB
}

// Open creates or opens the SQLite-backed store at path and ensures the
// config table exists. SQLite tolerates only one writer at a time, so
// the connection pool is capped to one connection, matching the
// teacher's single-writer database setup.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errkind.New(errkind.TransportPermanent, "nvs.open", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errkind.New(errkind.TransportPermanent, "nvs.open.ping", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS config (
		namespace TEXT NOT NULL,
		key       TEXT NOT NULL,
		value     TEXT NOT NULL,
		PRIMARY KEY (namespace, key)
	)`); err != nil {
		db.Close()
		return nil, errkind.New(errkind.TransportPermanent, "nvs.open.migrate", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// OpenNamespace returns a handle scoped to a single namespace
// (`wifi`, `sip`, `camera`, `system`), mirroring nvs_open's namespace
// argument.
func (s *Store) OpenNamespace(namespace string) *Handle {
	return &Handle{
		store:     s,
		namespace: namespace,
		pending:   make(map[string]string),
		erase:     make(map[string]bool),
	}
}

// Handle is a namespace-scoped view with a write-behind staging area:
// Set* calls only take effect once Commit is called, matching the
// nvs_set_*/nvs_commit split the original API exposes.
type Handle struct {
	mu        sync.Mutex
	store     *Store
	namespace string
	pending   map[string]string
	erase     map[string]bool
	eraseAll  bool
}

func (h *Handle) setPending(key, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.erase, key)
	h.pending[key] = value
}

func (h *Handle) SetStr(key, value string) { h.setPending(key, value) }
func (h *Handle) SetU8(key string, value uint8) {
	h.setPending(key, strconv.FormatUint(uint64(value), 10))
}
func (h *Handle) SetI8(key string, value int8) {
	h.setPending(key, strconv.FormatInt(int64(value), 10))
}
func (h *Handle) SetU16(key string, value uint16) {
	h.setPending(key, strconv.FormatUint(uint64(value), 10))
}
func (h *Handle) SetU32(key string, value uint32) {
	h.setPending(key, strconv.FormatUint(uint64(value), 10))
}

func (h *Handle) readRaw(key string) (string, bool, error) {
	h.mu.Lock()
	if h.erase[key] {
		h.mu.Unlock()
		return "", false, nil
	}
	if v, ok := h.pending[key]; ok {
		h.mu.Unlock()
		return v, true, nil
	}
	h.mu.Unlock()

	var value string
	err := h.store.db.QueryRow(
		`SELECT value FROM config WHERE namespace = ? AND key = ?`,
		h.namespace, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errkind.New(errkind.TransportTemporary, "nvs.get", err)
	}
	return value, true, nil
}

func (h *Handle) GetStr(key string) (string, bool, error) {
	return h.readRaw(key)
}

func (h *Handle) GetU8(key string) (uint8, bool, error) {
	raw, ok, err := h.readRaw(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	v, perr := strconv.ParseUint(raw, 10, 8)
	if perr != nil {
		return 0, false, errkind.New(errkind.ProtocolParse, "nvs.get_u8", perr)
	}
	return uint8(v), true, nil
}

func (h *Handle) GetI8(key string) (int8, bool, error) {
	raw, ok, err := h.readRaw(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	v, perr := strconv.ParseInt(raw, 10, 8)
	if perr != nil {
		return 0, false, errkind.New(errkind.ProtocolParse, "nvs.get_i8", perr)
	}
	return int8(v), true, nil
}

func (h *Handle) GetU16(key string) (uint16, bool, error) {
	raw, ok, err := h.readRaw(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	v, perr := strconv.ParseUint(raw, 10, 16)
	if perr != nil {
		return 0, false, errkind.New(errkind.ProtocolParse, "nvs.get_u16", perr)
	}
	return uint16(v), true, nil
}

func (h *Handle) GetU32(key string) (uint32, bool, error) {
	raw, ok, err := h.readRaw(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	v, perr := strconv.ParseUint(raw, 10, 32)
	if perr != nil {
		return 0, false, errkind.New(errkind.ProtocolParse, "nvs.get_u32", perr)
	}
	return uint32(v), true, nil
}

// EraseKey stages removal of a single key, effective on Commit.
func (h *Handle) EraseKey(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pending, key)
	h.erase[key] = true
}

// EraseAll stages removal of every key in the namespace, effective on
// Commit.
func (h *Handle) EraseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending = make(map[string]string)
	h.erase = make(map[string]bool)
	h.eraseAll = true
}

// Commit flushes every staged Set/Erase call in a single transaction,
// matching nvs_commit's all-or-nothing durability contract.
func (h *Handle) Commit() error {
	h.mu.Lock()
	pending := h.pending
	erase := h.erase
	eraseAll := h.eraseAll
	h.pending = make(map[string]string)
	h.erase = make(map[string]bool)
	h.eraseAll = false
	h.mu.Unlock()

	tx, err := h.store.db.Begin()
	if err != nil {
		return errkind.New(errkind.TransportTemporary, "nvs.commit.begin", err)
	}

	if eraseAll {
		if _, err := tx.Exec(`DELETE FROM config WHERE namespace = ?`, h.namespace); err != nil {
			tx.Rollback()
			return errkind.New(errkind.TransportTemporary, "nvs.commit.erase_all", err)
		}
	}
	for key := range erase {
		if _, err := tx.Exec(`DELETE FROM config WHERE namespace = ? AND key = ?`, h.namespace, key); err != nil {
			tx.Rollback()
			return errkind.New(errkind.TransportTemporary, "nvs.commit.erase_key", err)
		}
	}
	for key, value := range pending {
		if _, err := tx.Exec(
			`INSERT INTO config (namespace, key, value) VALUES (?, ?, ?)
			 ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value`,
			h.namespace, key, value,
		); err != nil {
			tx.Rollback()
			return errkind.New(errkind.TransportTemporary, "nvs.commit.set", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errkind.New(errkind.TransportTemporary, "nvs.commit", err)
	}
	return nil
}

// All returns every committed key/value pair in the namespace as
// strings, for mapstructure-based typed decode; staged-but-uncommitted
// writes are not reflected.
func (h *Handle) All() (map[string]string, error) {
	rows, err := h.store.db.Query(`SELECT key, value FROM config WHERE namespace = ?`, h.namespace)
	if err != nil {
		return nil, errkind.New(errkind.TransportTemporary, "nvs.all", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, errkind.New(errkind.TransportTemporary, "nvs.all.scan", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}
