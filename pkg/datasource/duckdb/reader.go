// Package duckdb streams historical ticks out of DuckDB tables. One table
// per symbol, named <symbol>_ticks, ordered by timestamp.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/peregrine-trading/peregrine/pkg/common"
	"github.com/peregrine-trading/peregrine/pkg/datasource"
	"github.com/peregrine-trading/peregrine/pkg/utility"
	"github.com/peregrine-trading/peregrine/pkg/utility/fixed"
)

const tickReaderComponentName = "datasource.duckdb.reader"

type Reader struct {
	dataSourceName string
	db             *sql.DB
}

func NewReader(dataSourceName string) *Reader {
	return &Reader{
		dataSourceName: dataSourceName,
	}
}

func (r *Reader) Connect() error {
	db, err := sql.Open("duckdb", r.dataSourceName)
	if err != nil {
		return fmt.Errorf("unable to open duckdb %q: %w", r.dataSourceName, err)
	}
	r.db = db
	return nil
}

func (r *Reader) Close() {
	_ = r.db.Close()
}

// Ticks opens a streaming cursor over the symbol's tick table. The returned
// iterator implements datasource.TickSource and must be closed by exhausting
// it or calling Close.
func (r *Reader) Ticks(ctx context.Context, symbol string, from, to time.Time) (*TickIterator, error) {
	query := fmt.Sprintf(`SELECT ts, ask, bid, ask_volume, bid_volume FROM %s_ticks WHERE ts BETWEEN ? AND ? ORDER BY ts`, symbol)

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("error preparing query: %w", err)
	}
	return &TickIterator{symbol: symbol, rows: rows}, nil
}

type TickIterator struct {
	symbol string
	rows   *sql.Rows
	done   bool
}

func (it *TickIterator) GetNext() (common.Tick, error) {
	var tick common.Tick

	if it.done {
		return tick, datasource.ErrEof
	}
	if !it.rows.Next() {
		it.done = true
		if err := it.rows.Err(); err != nil {
			return tick, fmt.Errorf("error scanning rows: %w", err)
		}
		return tick, datasource.ErrEof
	}

	var timeStamp time.Time
	var ask, bid, askVolume, bidVolume float64
	if err := it.rows.Scan(&timeStamp, &ask, &bid, &askVolume, &bidVolume); err != nil {
		return tick, fmt.Errorf("error scanning row: %w", err)
	}

	tick.TimeStamp = timeStamp
	tick.Ask = fixed.FromFloat64(ask)
	tick.Bid = fixed.FromFloat64(bid)
	tick.AskVolume = fixed.FromFloat64(askVolume)
	tick.BidVolume = fixed.FromFloat64(bidVolume)
	tick.Source = tickReaderComponentName
	tick.Symbol = it.symbol
	tick.ExecutionId = utility.GetExecutionID()
	tick.TraceID = utility.CreateTraceID()

	return tick, nil
}

func (it *TickIterator) Close() error {
	it.done = true
	return it.rows.Close()
}
