package settings

import (
	"database/sql"
	"time"

	"racedirector/pkg/model"
)

const createTables = `
CREATE TABLE IF NOT EXISTS connection (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	endpoint TEXT NOT NULL,
	poll_interval_ms INTEGER NOT NULL,
	schema TEXT NOT NULL,
	updated_at TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS subscribers (
	chatid INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	on_error INTEGER NOT NULL DEFAULT 0,
	on_connected INTEGER NOT NULL DEFAULT 0,
	on_disconnected INTEGER NOT NULL DEFAULT 0);`

const upsertConnection = `INSERT OR REPLACE INTO connection (id, endpoint, poll_interval_ms, schema, updated_at)
	VALUES (1, ?, ?, ?, ?)`

const selectConnection = `SELECT endpoint, poll_interval_ms, schema, updated_at FROM connection WHERE id = 1`

const upsertSubscriber = `INSERT OR REPLACE INTO subscribers (chatid, name, on_error, on_connected, on_disconnected)
	VALUES (?, ?, ?, ?, ?)`

const selectAlerts = `SELECT on_error, on_connected, on_disconnected FROM subscribers WHERE chatid = ?`

const deleteSubscriber = `DELETE FROM subscribers WHERE chatid = ?`

// one query per status keeps the column name out of the statement text
var selectSubscribers = map[model.ConnectionStatus]string{
	model.Error:        `SELECT chatid, name FROM subscribers WHERE on_error = 1 ORDER BY chatid`,
	model.Connected:    `SELECT chatid, name FROM subscribers WHERE on_connected = 1 ORDER BY chatid`,
	model.Disconnected: `SELECT chatid, name FROM subscribers WHERE on_disconnected = 1 ORDER BY chatid`,
}

func readConnection(row *sql.Row) (Connection, bool, error) {
	var (
		c          Connection
		intervalMS int64
		updatedAt  string
	)
	err := row.Scan(&c.Endpoint, &intervalMS, &c.Schema, &updatedAt)
	if err == sql.ErrNoRows {
		return c, false, nil
	}
	if err != nil {
		return c, false, err
	}
	c.PollInterval = time.Duration(intervalMS) * time.Millisecond
	c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return c, true, nil
}

func readAlerts(rows *sql.Rows) (Alerts, error) {
	defer rows.Close()

	a := AllDisabled()
	// only can be one row
	if rows.Next() {
		var onError, onConnected, onDisconnected int
		if err := rows.Scan(&onError, &onConnected, &onDisconnected); err != nil {
			return a, err
		}
		a[model.Error] = onError == 1
		a[model.Connected] = onConnected == 1
		a[model.Disconnected] = onDisconnected == 1
	}
	return a, rows.Err()
}

func readSubscribers(rows *sql.Rows) ([]Subscriber, error) {
	defer rows.Close()

	subs := make([]Subscriber, 0)
	for rows.Next() {
		var s Subscriber
		if err := rows.Scan(&s.ChatID, &s.Name); err != nil {
			return subs, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
