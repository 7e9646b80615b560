// Package analytics records relay lifecycle events into SQLite with batched
// background writes. It is operational telemetry only; game state itself is
// never persisted.
package analytics

import (
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Event types tracked by the relay.
const (
	EvtJoin  = "player_join"
	EvtLeave = "player_leave"
	EvtEvict = "player_evicted"
	EvtChat  = "chat_message"
	EvtError = "error"
)

const (
	batchSize     = 50
	flushInterval = 5 * time.Second
	queueSize     = 1024
)

// Event is a single trackable relay event.
type Event struct {
	Type      string
	PlayerID  string
	Data      string
	Timestamp time.Time
}

// Recorder batches events and writes them to SQLite from a background
// goroutine. A nil *Recorder is valid and drops everything, so callers never
// need to branch on whether analytics is enabled.
type Recorder struct {
	db     *sql.DB
	log    *zap.SugaredLogger
	events chan Event
	stop   chan struct{}
	wg     sync.WaitGroup
}

// Open opens (or creates) the database at path and starts the writer.
func Open(path string, log *zap.SugaredLogger) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL keeps writers from blocking the query helpers.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	r := &Recorder{
		db:     db,
		log:    log,
		events: make(chan Event, queueSize),
		stop:   make(chan struct{}),
	}
	r.wg.Add(1)
	go r.writer()
	return r, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS relay_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		player_id TEXT,
		data TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_relay_events_type
		ON relay_events(event_type, created_at);
	`)
	return err
}

// Track enqueues an event without blocking; when the queue is full the event
// is dropped rather than stalling a message handler.
func (r *Recorder) Track(evtType, playerID, data string) {
	if r == nil {
		return
	}
	select {
	case r.events <- Event{
		Type:      evtType,
		PlayerID:  playerID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}:
	default:
	}
}

// Stop flushes pending events and closes the database.
func (r *Recorder) Stop() {
	if r == nil {
		return
	}
	close(r.stop)
	r.wg.Wait()
	r.db.Close()
}

func (r *Recorder) writer() {
	defer r.wg.Done()

	batch := make([]Event, 0, batchSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case evt := <-r.events:
			batch = append(batch, evt)
			if len(batch) >= batchSize {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-r.stop:
			close(r.events)
			for evt := range r.events {
				batch = append(batch, evt)
			}
			if len(batch) > 0 {
				r.flush(batch)
			}
			return
		}
	}
}

func (r *Recorder) flush(events []Event) {
	tx, err := r.db.Begin()
	if err != nil {
		r.log.Errorw("analytics: begin tx", "err", err)
		return
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO relay_events (event_type, player_id, data, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		r.log.Errorw("analytics: prepare", "err", err)
		return
	}
	defer stmt.Close()

	for _, evt := range events {
		pid := sql.NullString{String: evt.PlayerID, Valid: evt.PlayerID != ""}
		data := sql.NullString{String: evt.Data, Valid: evt.Data != ""}
		if _, err := stmt.Exec(evt.Type, pid, data, evt.Timestamp.Format(time.RFC3339)); err != nil {
			r.log.Errorw("analytics: insert", "err", err)
		}
	}
	tx.Commit()
}

// EventCounts returns counts per event type for the last N days.
func (r *Recorder) EventCounts(days int) (map[string]int, error) {
	if r == nil {
		return nil, nil
	}
	rows, err := r.db.Query(`
		SELECT event_type, COUNT(*) FROM relay_events
		WHERE created_at >= date('now', '-' || ? || ' days')
		GROUP BY event_type ORDER BY COUNT(*) DESC
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var evtType string
		var count int
		if err := rows.Scan(&evtType, &count); err != nil {
			continue
		}
		result[evtType] = count
	}
	return result, rows.Err()
}

// DailyActivePlayers returns distinct active player counts per day for the
// last N days.
func (r *Recorder) DailyActivePlayers(days int) (map[string]int, error) {
	if r == nil {
		return nil, nil
	}
	rows, err := r.db.Query(`
		SELECT date(created_at) AS day, COUNT(DISTINCT player_id)
		FROM relay_events
		WHERE player_id IS NOT NULL AND created_at >= date('now', '-' || ? || ' days')
		GROUP BY day ORDER BY day
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var day string
		var count int
		if err := rows.Scan(&day, &count); err != nil {
			continue
		}
		result[day] = count
	}
	return result, rows.Err()
}
