// Package ingest wires the frame reader, book engine, snapshot producer,
// ring buffer, and persistence writer into one ingest session: two
// goroutines with an explicit handoff, joined before the session row is
// finalized.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"mbo-ingest/internal/book"
	"mbo-ingest/internal/persistence"
	"mbo-ingest/internal/ring"
	"mbo-ingest/internal/snapshot"
	"mbo-ingest/internal/stream"
	"mbo-ingest/pkg/types"
)

const (
	// nanosToCents normalizes wire prices (nanos) to the book's internal
	// unit (cents). Everything downstream of the wire boundary — book,
	// snapshots, persisted level rows — stores integer cents.
	nanosToCents = 10_000_000
	// priceScaleFactor normalizes cents to dollars, applied only at
	// session finalization for the final_* aggregate fields.
	priceScaleFactor = 100

	// toleratedLogEvery is the cadence for logging tolerated book
	// inconsistencies, to avoid flooding logs on a gappy feed.
	toleratedLogEvery = 1000
)

// Supervisor runs one ingest session end to end. It owns no state across
// sessions; a launcher constructs a fresh Supervisor per session.
type Supervisor struct {
	topLevels int
	ringSize  int
	writer    *persistence.Writer
	metrics   *Metrics
	logger    *slog.Logger
}

// NewSupervisor builds a Supervisor reporting topLevels per side, backed
// by a ring buffer of ringSize (must be a power of two), writing through
// writer.
func NewSupervisor(topLevels, ringSize int, writer *persistence.Writer, metrics *Metrics, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		topLevels: topLevels,
		ringSize:  ringSize,
		writer:    writer,
		metrics:   metrics,
		logger:    logger.With("component", "ingest_supervisor"),
	}
}

// Result is the outcome of one session.
type Result struct {
	SessionID string
	Stats     types.SessionStats
	Err       error
}

// Run decodes r until it ends, applying every event to a fresh Book for
// symbol, persisting a snapshot per successfully applied event, and
// finalizing the session row. It blocks until both the ingest goroutine
// and the persistence writer goroutine have exited.
func (s *Supervisor) Run(ctx context.Context, r *stream.Reader, symbol, fileName string, fileSize int64) Result {
	sessionID, err := s.writer.Begin(ctx, symbol, fileName, fileSize)
	if err != nil {
		return Result{Err: fmt.Errorf("ingest: %w", err)}
	}

	stats := persistence.NewStats()
	rb := ring.New(s.ringSize)
	var processingDone atomic.Bool

	var wg sync.WaitGroup
	var writerErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		writerErr = s.writer.Run(ctx, rb, stats, &processingDone)
	}()

	ingestErr := s.runIngest(ctx, r, symbol, stats, rb, &processingDone)

	wg.Wait()

	// The writer finalizes the row from its own view (connection failure or
	// cancellation); an ingest-side failure is only known here.
	if ingestErr != nil && writerErr == nil {
		if err := s.writer.End(false, ingestErr.Error()); err != nil {
			s.logger.Error("failed to mark session failed", "session_id", sessionID, "error", err)
		}
	}

	finalErr := ingestErr
	if finalErr == nil {
		finalErr = writerErr
	}
	if finalErr != nil {
		s.metrics.SessionsFailed.Inc()
		s.logger.Error("session failed", "session_id", sessionID, "error", finalErr)
	} else {
		s.logger.Info("session completed", "session_id", sessionID)
	}

	return Result{SessionID: sessionID, Stats: stats.Snapshot(0), Err: finalErr}
}

// runIngest is the network-decoupled half of the pipeline: Frame Reader →
// Book Engine → Snapshot Producer → Ring Buffer. It always marks
// processingDone and closes the ring buffer on exit, so the writer
// goroutine is guaranteed to observe completion even when this returns
// early on a fatal error.
func (s *Supervisor) runIngest(ctx context.Context, r *stream.Reader, symbol string, stats *persistence.Stats, rb *ring.Buffer, processingDone *atomic.Bool) error {
	defer func() {
		processingDone.Store(true)
		rb.Close()
	}()

	b := book.New(symbol, s.topLevels)
	producer := snapshot.New(symbol, s.topLevels)
	dec := stream.NewDecoder(r)

	var toleratedDrops uint64

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		evt, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.finalizeBook(b, stats)
				return nil
			}
			return fmt.Errorf("ingest: decode: %w", err)
		}

		stats.RecordMessage()
		s.metrics.MessagesReceived.Inc()

		normalizePrice(&evt)

		timer := snapshot.StartTimer()
		applyErr := b.Apply(evt)
		stats.RecordApplyLatency(float64(timer.ElapsedNs()))

		if applyErr != nil {
			var bookErr *book.Error
			if errors.As(applyErr, &bookErr) && bookErr.Kind.Tolerated() {
				toleratedDrops++
				s.metrics.ToleratedDrops.Inc()
				if toleratedDrops%toleratedLogEvery == 0 {
					s.logger.Warn("tolerated book inconsistencies",
						"count", toleratedDrops, "last_kind", bookErr.Kind, "last_order_id", bookErr.OrderID)
				}
				continue
			}
			return fmt.Errorf("ingest: book apply: %w", applyErr)
		}

		if evt.Action == types.ActionAdd && !evt.IsTOB() {
			stats.RecordOrderProcessed()
			s.metrics.OrdersProcessed.Inc()
		}

		s.pushSnapshot(rb, producer.Build(b, evt.TsEvent))
	}
}

func (s *Supervisor) pushSnapshot(rb *ring.Buffer, snap types.BookSnapshot) {
	rb.Push(snap)
	s.metrics.RingDepth.Set(float64(rb.Len()))
}

// finalizeBook records the book's terminal state for the session's
// final_* fields, skipped entirely when the book is empty at completion.
func (s *Supervisor) finalizeBook(b *book.Book, stats *persistence.Stats) {
	if b.OrderCount() == 0 && b.BidLevelCount() == 0 && b.AskLevelCount() == 0 {
		return
	}

	bid, ask := b.Bbo()
	var bestBid, bestAsk, spread float64
	if !bid.Empty() {
		bestBid = float64(bid.Price) / priceScaleFactor
	}
	if !ask.Empty() {
		bestAsk = float64(ask.Price) / priceScaleFactor
	}
	if !bid.Empty() && !ask.Empty() {
		spread = bestAsk - bestBid
	}

	stats.SetFinalBookState(b.OrderCount(), b.BidLevelCount(), b.AskLevelCount(), bestBid, bestAsk, spread)
}

// normalizePrice converts a wire event's price from nanos to cents,
// leaving the UndefPrice sentinel and zero prices unchanged.
func normalizePrice(evt *types.Event) {
	if evt.Price == types.UndefPrice || evt.Price == 0 {
		return
	}
	evt.Price /= nanosToCents
}
