// Package persistence owns the session row, batched snapshot writes, and
// the bulk-load index lifecycle for one ingest session's PostgreSQL
// storage.
package persistence

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"mbo-ingest/internal/ring"
	"mbo-ingest/pkg/types"
)

const defaultBatchSize = 50000
const idlePoll = time.Millisecond

// Writer owns the *sql.DB exclusively for the lifetime of one session: it
// runs the batch/flush loop that drains the ring buffer and it performs
// every persistence-level mutation of the session row, including the
// final one.
type Writer struct {
	db        *sql.DB
	logger    *slog.Logger
	batchSize int

	sessionID    string
	itemsWritten atomic.Uint64
}

// NewWriter wraps db for one session's writes. db should already be
// reachable; NewWriter does not ping.
func NewWriter(db *sql.DB, logger *slog.Logger) *Writer {
	return &Writer{
		db:        db,
		logger:    logger.With("component", "persistence_writer"),
		batchSize: defaultBatchSize,
	}
}

// Begin creates the session row with status "processing" and generates
// its id. Called synchronously by the supervisor before the writer loop
// starts, since the session row must exist before any snapshot can
// reference it as a foreign key.
func (w *Writer) Begin(ctx context.Context, symbol, fileName string, fileSize int64) (string, error) {
	w.sessionID = NewSessionID()
	_, err := w.db.ExecContext(ctx, `
		INSERT INTO processing_sessions (session_id, symbol, file_name, file_size, status)
		VALUES ($1, $2, $3, $4, $5)`,
		w.sessionID, symbol, fileName, fileSize, string(types.SessionProcessing))
	if err != nil {
		return "", fmt.Errorf("persistence: begin session: %w", err)
	}
	return w.sessionID, nil
}

// Run drains rb into batched transactions until processingDone reports
// true and rb is empty, or ctx is cancelled. On exit it flushes any
// partial batch, recreates the bulk-load indexes, and finalizes the
// session row from stats. It returns the error that ended the session, if
// any — nil on a clean completion.
func (w *Writer) Run(ctx context.Context, rb *ring.Buffer, stats *Stats, processingDone *atomic.Bool) error {
	if _, err := w.db.ExecContext(ctx, dropSnapshotIndexesSQL); err != nil {
		w.logger.Warn("drop indexes failed, continuing without bulk-load optimization", "error", err)
	}

	batch := make([]types.BookSnapshot, 0, w.batchSize)
	var started bool
	var startTime time.Time
	var connErr error

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := w.writeBatch(batch); err != nil {
			connErr = err
		}
		batch = batch[:0]
	}

loop:
	for {
		if ctx.Err() != nil {
			break loop
		}

		v, ok := rb.TryPop()
		if ok {
			if !started {
				started = true
				startTime = time.Now()
			}
			batch = append(batch, v)
			if len(batch) >= w.batchSize {
				flush()
				if connErr != nil {
					break loop
				}
			}
			continue
		}

		flush()
		if connErr != nil {
			break loop
		}
		if (processingDone.Load() && rb.Empty()) || ctx.Err() != nil {
			break loop
		}
		time.Sleep(idlePoll)
	}

	flush()

	// On a connection failure or cancellation, nothing more will be
	// persisted: close the ring so a producer blocked in Push fails fast
	// instead of waiting on a consumer that is gone, then discard whatever
	// is still queued.
	if connErr != nil || ctx.Err() != nil {
		rb.Close()
		for {
			if _, ok := rb.TryPop(); !ok {
				break
			}
		}
	}

	var elapsed time.Duration
	if started {
		elapsed = time.Since(startTime)
	}

	if _, err := w.db.Exec(createSnapshotIndexesSQL); err != nil {
		w.logger.Warn("recreate indexes failed", "error", err)
	}

	success := connErr == nil && ctx.Err() == nil
	errText := ""
	switch {
	case connErr != nil:
		errText = connErr.Error()
	case ctx.Err() != nil:
		errText = "cancelled"
	}

	snap := stats.Snapshot(elapsed)
	if err := w.UpdateStats(snap.MessagesReceived, snap.OrdersProcessed, snap.ThroughputMsgPS, snap.AvgApplyNs, snap.P99ApplyNs); err != nil {
		w.logger.Error("failed to update session stats", "error", err)
	}
	if snap.HasFinalBook {
		if err := w.UpdateFinalBookState(snap.FinalTotalOrders, snap.FinalBidLevels, snap.FinalAskLevels,
			snap.FinalBestBid, snap.FinalBestAsk, snap.FinalSpread); err != nil {
			w.logger.Error("failed to update final book state", "error", err)
		}
	}
	if err := w.End(success, errText); err != nil {
		w.logger.Error("failed to end session row", "error", err)
	}

	if connErr != nil {
		return connErr
	}
	return ctx.Err()
}

// writeBatch commits one transaction containing every snapshot (and its
// level rows) in batch. A row-level failure rolls back the whole batch —
// Postgres aborts the transaction on the first error, so there is no
// partial-commit option — logs, and returns nil so the writer loop moves
// on to the next batch. A connection-level failure is returned to the
// caller, which fails the session.
func (w *Writer) writeBatch(batch []types.BookSnapshot) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("persistence: begin batch tx: %w", err)
	}

	insertSnapshot, err := tx.Prepare(insertSnapshotSQL)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("persistence: prepare snapshot insert: %w", err)
	}
	defer insertSnapshot.Close()

	insertBid, err := tx.Prepare(insertBidLevelSQL)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("persistence: prepare bid level insert: %w", err)
	}
	defer insertBid.Close()

	insertAsk, err := tx.Prepare(insertAskLevelSQL)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("persistence: prepare ask level insert: %w", err)
	}
	defer insertAsk.Close()

	for _, snap := range batch {
		if err := w.insertSnapshotRow(insertSnapshot, insertBid, insertAsk, snap); err != nil {
			tx.Rollback()
			if isConnErr(err) {
				return err
			}
			w.logger.Warn("snapshot row failed, dropping batch", "error", err, "batch_size", len(batch))
			return nil
		}
	}

	if err := tx.Commit(); err != nil {
		if isConnErr(err) {
			return err
		}
		w.logger.Warn("batch commit failed, dropping batch", "error", err, "batch_size", len(batch))
		return nil
	}

	w.itemsWritten.Add(uint64(len(batch)))
	return nil
}

func (w *Writer) insertSnapshotRow(insSnap, insBid, insAsk *sql.Stmt, snap types.BookSnapshot) error {
	var snapshotID int64
	err := insSnap.QueryRow(
		w.sessionID, snap.Symbol, int64(snap.TsNs),
		levelPrice(snap.Bid), int64(snap.Bid.Size), int32(snap.Bid.Count),
		levelPrice(snap.Ask), int64(snap.Ask.Size), int32(snap.Ask.Count),
		snap.TotalOrders, snap.BidLevels, snap.AskLevels,
	).Scan(&snapshotID)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	for i, lv := range snap.Bids {
		if _, err := insBid.Exec(snapshotID, lv.Price, int64(lv.Size), int32(lv.Count), i); err != nil {
			return fmt.Errorf("insert bid level %d: %w", i, err)
		}
	}
	for i, lv := range snap.Asks {
		if _, err := insAsk.Exec(snapshotID, lv.Price, int64(lv.Size), int32(lv.Count), i); err != nil {
			return fmt.Errorf("insert ask level %d: %w", i, err)
		}
	}
	return nil
}

func levelPrice(lv types.LevelView) int64 {
	if lv.Empty() {
		return types.UndefPrice
	}
	return lv.Price
}

// UpdateStats records the session's message/order counters and latency
// aggregates on the session row.
func (w *Writer) UpdateStats(messagesReceived, ordersProcessed uint64, throughput, avgApplyNs, p99ApplyNs float64) error {
	_, err := w.db.Exec(`
		UPDATE processing_sessions SET
			messages_received = $1, orders_processed = $2, throughput = $3,
			avg_process_ns = $4, p99_process_ns = $5
		WHERE session_id = $6`,
		messagesReceived, ordersProcessed, throughput, avgApplyNs, p99ApplyNs, w.sessionID)
	if err != nil {
		return fmt.Errorf("persistence: update session stats: %w", err)
	}
	return nil
}

// UpdateFinalBookState records the book's terminal state on the session
// row. Called only when the book is non-empty at completion.
func (w *Writer) UpdateFinalBookState(totalOrders, bidLevels, askLevels int, bestBid, bestAsk, spread float64) error {
	_, err := w.db.Exec(`
		UPDATE processing_sessions SET
			final_total_orders = $1, final_bid_levels = $2, final_ask_levels = $3,
			final_best_bid = $4, final_best_ask = $5, final_spread = $6
		WHERE session_id = $7`,
		totalOrders, bidLevels, askLevels, bestBid, bestAsk, spread, w.sessionID)
	if err != nil {
		return fmt.Errorf("persistence: update final book state: %w", err)
	}
	return nil
}

// End sets the session's terminal status, error text, snapshot count, and
// end time.
func (w *Writer) End(success bool, errText string) error {
	status := types.SessionCompleted
	if !success {
		status = types.SessionError
	}

	_, err := w.db.Exec(`
		UPDATE processing_sessions SET
			status = $1, error_message = $2, snapshots_written = $3, end_time = now()
		WHERE session_id = $4`,
		string(status), errText, w.itemsWritten.Load(), w.sessionID)
	if err != nil {
		return fmt.Errorf("persistence: end session: %w", err)
	}
	return nil
}

// isConnErr reports whether err reflects a lost or unusable connection,
// as opposed to a rejected row (constraint violation, bad value).
func isConnErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
