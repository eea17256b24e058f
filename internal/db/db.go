package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("item not found")

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}
	return &DB{sql: conn}, nil
}

func (d *DB) Close() error {
	return d.sql.Close()
}

func (d *DB) Migrate() error {
	_, err := d.sql.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create metadata: %w", err)
	}

	_, err = d.sql.Exec(`
		CREATE TABLE IF NOT EXISTS items (
			id         TEXT PRIMARY KEY,
			url        TEXT NOT NULL UNIQUE,
			title      TEXT NOT NULL DEFAULT '',
			status     TEXT NOT NULL DEFAULT 'Pending',
			error      TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create items: %w", err)
	}

	_, err = d.sql.Exec(`
		CREATE TABLE IF NOT EXISTS item_events (
			id         INTEGER PRIMARY KEY,
			item_id    TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
			ts         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			event_type TEXT NOT NULL,
			detail     TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return fmt.Errorf("create item_events: %w", err)
	}

	if _, err := d.sql.Exec(`CREATE INDEX IF NOT EXISTS idx_item_events_item_id ON item_events(item_id, ts DESC)`); err != nil {
		return fmt.Errorf("index item_events: %w", err)
	}
	return nil
}

const itemColumns = `id, url, title, status, error, created_at, updated_at`

func (d *DB) SaveItem(it *Item) error {
	_, err := d.sql.Exec(`
		INSERT OR REPLACE INTO items (`+itemColumns+`)
		VALUES (?,?,?,?,?,?,?)`,
		it.ID, it.URL, it.Title, string(it.Status), it.Error,
		it.CreatedAt.UnixMilli(), it.UpdatedAt.UnixMilli(),
	)
	return err
}

func (d *DB) GetItem(id string) (*Item, error) {
	row := d.sql.QueryRow(`SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return it, err
}

func (d *DB) LoadItems() ([]*Item, error) {
	rows, err := d.sql.Query(`SELECT ` + itemColumns + ` FROM items ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// HasURL reports whether an item for url already exists.
func (d *DB) HasURL(url string) (bool, error) {
	var count int
	err := d.sql.QueryRow("SELECT COUNT(*) FROM items WHERE url = ?", url).Scan(&count)
	return count > 0, err
}

func (d *DB) DeleteItem(id string) error {
	res, err := d.sql.Exec("DELETE FROM items WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// WriteStatus sets status and error text in one statement.
func (d *DB) WriteStatus(id string, status ItemStatus, errText string) error {
	res, err := d.sql.Exec("UPDATE items SET status = ?, error = ?, updated_at = ? WHERE id = ?",
		string(status), errText, time.Now().UnixMilli(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (d *DB) UpdateTitle(id, title string) error {
	_, err := d.sql.Exec("UPDATE items SET title = ?, updated_at = ? WHERE id = ?",
		title, time.Now().UnixMilli(), id)
	return err
}

// rowScanner is implemented by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var it Item
	var status string
	var createdAt, updatedAt int64
	if err := row.Scan(&it.ID, &it.URL, &it.Title, &status, &it.Error, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	it.Status = ItemStatus(status)
	it.CreatedAt = time.UnixMilli(createdAt)
	it.UpdatedAt = time.UnixMilli(updatedAt)
	return &it, nil
}

func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (d *DB) SetMeta(key, value string) error {
	_, err := d.sql.Exec("INSERT OR REPLACE INTO metadata (key, value) VALUES (?,?)", key, value)
	return err
}

func (d *DB) GetMeta(key string) (string, error) {
	var value string
	err := d.sql.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// Touch bumps last_modified to now in unix milliseconds, or to one past
// its previous value, so every change gets a distinct stamp.
func (d *DB) Touch() error {
	_, err := d.sql.Exec(`
		INSERT INTO metadata (key, value) VALUES ('last_modified', ?)
		ON CONFLICT(key) DO UPDATE SET
			value = MAX(CAST(value AS INTEGER) + 1, CAST(excluded.value AS INTEGER))`,
		strconv.FormatInt(time.Now().UnixMilli(), 10),
	)
	return err
}

// LastModified returns the stamp of the last Touch, or 0 before the first.
func (d *DB) LastModified() (int64, error) {
	v, err := d.GetMeta("last_modified")
	if err != nil || v == "" {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

func (d *DB) InsertItemEvent(itemID, eventType, detail string) error {
	_, err := d.sql.Exec(
		`INSERT INTO item_events (item_id, event_type, detail) VALUES (?, ?, ?)`,
		itemID, eventType, detail,
	)
	return err
}

func (d *DB) GetItemEvents(itemID string, limit int) ([]ItemEvent, error) {
	rows, err := d.sql.Query(
		`SELECT id, item_id, ts, event_type, detail
		 FROM item_events
		 WHERE item_id = ?
		 ORDER BY ts DESC, id DESC
		 LIMIT ?`,
		itemID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []ItemEvent
	for rows.Next() {
		var e ItemEvent
		var ts string
		if err := rows.Scan(&e.ID, &e.ItemID, &ts, &e.EventType, &e.Detail); err != nil {
			return nil, err
		}
		e.Ts, _ = time.Parse("2006-01-02 15:04:05", ts)
		events = append(events, e)
	}
	return events, rows.Err()
}
