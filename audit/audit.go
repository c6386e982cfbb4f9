// Copyright 2026 CarePilot
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package audit persists a task-run trail to Postgres through a buffered
// queue and batch writer. Without a reachable database it degrades to a
// no-op logger so the gateway keeps serving.
package audit

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Entry statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Logger records task-run audit entries for all gateway activity
type Logger struct {
	db           *sql.DB
	batchWriter  *BatchWriter
	queue        chan *Entry
	wg           sync.WaitGroup
	shutdownChan chan struct{}
}

// Entry represents a single audit log entry
type Entry struct {
	ID           string    `json:"id"`
	RequestID    string    `json:"request_id"`
	Timestamp    time.Time `json:"timestamp"`
	Endpoint     string    `json:"endpoint"`
	Task         string    `json:"task"`
	SessionID    string    `json:"session_id"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	ValidCount   int       `json:"valid_count"`
	InvalidCount int       `json:"invalid_count"`
	DurationMS   int64     `json:"duration_ms"`
	Status       string    `json:"status"` // "ok", "error"
	ErrorMessage string    `json:"error_message,omitempty"`
}

// BatchWriter handles batch writing of audit entries
type BatchWriter struct {
	db          *sql.DB
	batchSize   int
	flushTicker *time.Ticker
	entries     []*Entry
	mu          sync.Mutex
	done        chan struct{}
}

// NewLogger creates an audit logger over the given Postgres URL. An empty
// URL or an unreachable database yields a no-op logger.
func NewLogger(databaseURL string) *Logger {
	if databaseURL == "" {
		log.Printf("Audit database not configured, entries will not be persisted")
		return noopLogger()
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		log.Printf("Failed to open audit database: %v", err)
		return noopLogger()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Printf("Audit database unreachable, entries will not be persisted: %v", err)
		_ = db.Close()
		return noopLogger()
	}

	// Create tables if they don't exist
	if err := createTables(db); err != nil {
		log.Printf("Failed to create audit tables: %v", err)
	}

	return newLogger(db)
}

func noopLogger() *Logger {
	return &Logger{
		queue:        make(chan *Entry, 10000),
		shutdownChan: make(chan struct{}),
	}
}

func newLogger(db *sql.DB) *Logger {
	logger := &Logger{
		db:           db,
		batchWriter:  NewBatchWriter(db, 100),
		queue:        make(chan *Entry, 10000),
		shutdownChan: make(chan struct{}),
	}

	logger.wg.Add(1)
	go logger.processQueue()

	return logger
}

// Record queues an entry for persistence, filling in the ID and timestamp
// when the caller left them empty. It never blocks the request path.
func (l *Logger) Record(entry *Entry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	l.enqueue(entry)
}

// Recent returns the most recent entries, newest first.
func (l *Logger) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	if l.db == nil {
		return []*Entry{}, nil
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, request_id, timestamp, endpoint, task, session_id,
		       provider, model, valid_count, invalid_count, duration_ms,
		       status, error_message
		FROM task_audit
		ORDER BY timestamp DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []*Entry
	for rows.Next() {
		entry := &Entry{}
		err := rows.Scan(
			&entry.ID,
			&entry.RequestID,
			&entry.Timestamp,
			&entry.Endpoint,
			&entry.Task,
			&entry.SessionID,
			&entry.Provider,
			&entry.Model,
			&entry.ValidCount,
			&entry.InvalidCount,
			&entry.DurationMS,
			&entry.Status,
			&entry.ErrorMessage,
		)
		if err != nil {
			log.Printf("Error scanning audit entry: %v", err)
			continue
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Enabled reports whether entries are being persisted.
func (l *Logger) Enabled() bool {
	return l.db != nil
}

// IsHealthy checks if the audit logger is healthy
func (l *Logger) IsHealthy() bool {
	if l.db == nil {
		return true // No-op logger is always healthy
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	err := l.db.PingContext(ctx)
	return err == nil
}

// Close drains the queue, flushes pending batches and closes the database.
func (l *Logger) Close() {
	close(l.shutdownChan)
	l.wg.Wait()
	if l.batchWriter != nil {
		l.batchWriter.Close()
	}
	if l.db != nil {
		_ = l.db.Close()
	}
}

// enqueue adds an entry to the processing queue
func (l *Logger) enqueue(entry *Entry) {
	select {
	case l.queue <- entry:
		// Entry queued successfully
	default:
		// Queue is full, write directly (blocking)
		log.Printf("Audit queue full, writing directly")
		if l.batchWriter != nil {
			_ = l.batchWriter.Write([]*Entry{entry})
		}
	}
}

// processQueue processes audit entries from the queue
func (l *Logger) processQueue() {
	defer l.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case entry := <-l.queue:
			l.batchWriter.Add(entry)
		case <-ticker.C:
			l.batchWriter.Flush()
		case <-l.shutdownChan:
			// Drain whatever is still queued, then flush
			for {
				select {
				case entry := <-l.queue:
					l.batchWriter.Add(entry)
				default:
					l.batchWriter.Flush()
					return
				}
			}
		}
	}
}

// BatchWriter implementation

func NewBatchWriter(db *sql.DB, batchSize int) *BatchWriter {
	writer := &BatchWriter{
		db:          db,
		batchSize:   batchSize,
		entries:     make([]*Entry, 0, batchSize),
		flushTicker: time.NewTicker(10 * time.Second),
		done:        make(chan struct{}),
	}

	go writer.periodicFlush()

	return writer
}

func (b *BatchWriter) Add(entry *Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append(b.entries, entry)

	if len(b.entries) >= b.batchSize {
		b.flush()
	}
}

func (b *BatchWriter) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flush()
}

func (b *BatchWriter) flush() {
	if len(b.entries) == 0 {
		return
	}

	if err := b.Write(b.entries); err != nil {
		log.Printf("Failed to write audit batch: %v", err)
	}

	b.entries = b.entries[:0]
}

func (b *BatchWriter) Write(entries []*Entry) error {
	if b.db == nil {
		return nil
	}

	tx, err := b.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO task_audit (
			id, request_id, timestamp, endpoint, task, session_id,
			provider, model, valid_count, invalid_count, duration_ms,
			status, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, entry := range entries {
		_, err = stmt.Exec(
			entry.ID,
			entry.RequestID,
			entry.Timestamp,
			entry.Endpoint,
			entry.Task,
			entry.SessionID,
			entry.Provider,
			entry.Model,
			entry.ValidCount,
			entry.InvalidCount,
			entry.DurationMS,
			entry.Status,
			entry.ErrorMessage,
		)
		if err != nil {
			log.Printf("Failed to insert audit entry: %v", err)
		}
	}

	return tx.Commit()
}

func (b *BatchWriter) periodicFlush() {
	for {
		select {
		case <-b.flushTicker.C:
			b.Flush()
		case <-b.done:
			return
		}
	}
}

// Close stops the periodic flush and writes any buffered entries.
func (b *BatchWriter) Close() {
	b.flushTicker.Stop()
	close(b.done)
	b.Flush()
}

// createTables creates the audit tables if they don't exist
func createTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS task_audit (
		id VARCHAR(255) PRIMARY KEY,
		request_id VARCHAR(255) NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		endpoint VARCHAR(100) NOT NULL,
		task TEXT,
		session_id VARCHAR(255),
		provider VARCHAR(50),
		model VARCHAR(100),
		valid_count INTEGER,
		invalid_count INTEGER,
		duration_ms BIGINT,
		status VARCHAR(20) NOT NULL,
		error_message TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_task_audit_timestamp ON task_audit(timestamp);
	CREATE INDEX IF NOT EXISTS idx_task_audit_session_id ON task_audit(session_id);
	CREATE INDEX IF NOT EXISTS idx_task_audit_request_id ON task_audit(request_id);
	CREATE INDEX IF NOT EXISTS idx_task_audit_endpoint ON task_audit(endpoint);
	`

	_, err := db.Exec(query)
	return err
}
