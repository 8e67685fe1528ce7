// Package output implements the retrieval side of the output JSON
// contract: querying a session's persisted snapshots and writing one
// newline-delimited JSON object per snapshot.
package output

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"mbo-ingest/pkg/types"
)

type levelJSON struct {
	Price string `json:"price"`
	Size  uint64 `json:"size"`
	Count uint32 `json:"count"`
}

type bboJSON struct {
	Price string `json:"price"`
	Size  uint64 `json:"size"`
	Count uint32 `json:"count"`
}

type snapshotLine struct {
	Symbol      string `json:"symbol"`
	Timestamp   string `json:"timestamp"`
	TimestampNs uint64 `json:"timestamp_ns"`
	BBO         struct {
		Bid *bboJSON `json:"bid"`
		Ask *bboJSON `json:"ask"`
	} `json:"bbo"`
	Levels struct {
		Bids []levelJSON `json:"bids"`
		Asks []levelJSON `json:"asks"`
	} `json:"levels"`
	Stats struct {
		TotalOrders int `json:"total_orders"`
		BidLevels   int `json:"bid_levels"`
		AskLevels   int `json:"ask_levels"`
	} `json:"stats"`
}

const selectSnapshotsSQL = `
SELECT id, symbol, timestamp_ns,
       best_bid_price, best_bid_size, best_bid_count,
       best_ask_price, best_ask_size, best_ask_count,
       total_orders, bid_level_count, ask_level_count
FROM order_book_snapshots
WHERE session_id = $1
ORDER BY timestamp_ns ASC, id ASC
`

const selectBidLevelsSQL = `SELECT price, size, count FROM bid_levels WHERE snapshot_id = $1 ORDER BY level_index ASC`
const selectAskLevelsSQL = `SELECT price, size, count FROM ask_levels WHERE snapshot_id = $1 ORDER BY level_index ASC`

// WriteSessionNDJSON queries every snapshot persisted for sessionID, in
// timestamp order, and writes one ND-JSON line per snapshot to w.
func WriteSessionNDJSON(db *sql.DB, sessionID string, w io.Writer) error {
	rows, err := db.Query(selectSnapshotsSQL, sessionID)
	if err != nil {
		return fmt.Errorf("output: query snapshots: %w", err)
	}
	defer rows.Close()

	enc := json.NewEncoder(w)

	for rows.Next() {
		var id int64
		var symbol string
		var tsNs int64
		var bidPrice, askPrice int64
		var bidSize, askSize uint64
		var bidCount, askCount uint32
		var totalOrders, bidLevels, askLevels int

		if err := rows.Scan(&id, &symbol, &tsNs,
			&bidPrice, &bidSize, &bidCount,
			&askPrice, &askSize, &askCount,
			&totalOrders, &bidLevels, &askLevels); err != nil {
			return fmt.Errorf("output: scan snapshot row: %w", err)
		}

		bids, err := queryLevels(db, selectBidLevelsSQL, id)
		if err != nil {
			return err
		}
		asks, err := queryLevels(db, selectAskLevelsSQL, id)
		if err != nil {
			return err
		}

		var line snapshotLine
		line.Symbol = symbol
		line.Timestamp = strconv.FormatInt(tsNs, 10)
		line.TimestampNs = uint64(tsNs)
		if bidPrice != types.UndefPrice {
			line.BBO.Bid = &bboJSON{Price: strconv.FormatInt(bidPrice, 10), Size: bidSize, Count: bidCount}
		}
		if askPrice != types.UndefPrice {
			line.BBO.Ask = &bboJSON{Price: strconv.FormatInt(askPrice, 10), Size: askSize, Count: askCount}
		}
		line.Levels.Bids = bids
		line.Levels.Asks = asks
		line.Stats.TotalOrders = totalOrders
		line.Stats.BidLevels = bidLevels
		line.Stats.AskLevels = askLevels

		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("output: write ndjson line: %w", err)
		}
	}
	return rows.Err()
}

func queryLevels(db *sql.DB, query string, snapshotID int64) ([]levelJSON, error) {
	rows, err := db.Query(query, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("output: query levels: %w", err)
	}
	defer rows.Close()

	out := []levelJSON{}
	for rows.Next() {
		var price int64
		var size uint64
		var count uint32
		if err := rows.Scan(&price, &size, &count); err != nil {
			return nil, fmt.Errorf("output: scan level row: %w", err)
		}
		out = append(out, levelJSON{Price: strconv.FormatInt(price, 10), Size: size, Count: count})
	}
	return out, rows.Err()
}
