// Command dumpticks exports a DuckDB tick table into the binary tick format
// read by the historical data source.
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/peregrine-trading/peregrine/pkg/common"
	"github.com/peregrine-trading/peregrine/pkg/datasource"
	"github.com/peregrine-trading/peregrine/pkg/datasource/duckdb"
	"github.com/peregrine-trading/peregrine/pkg/datasource/historical"
)

func toBinaryTick(tick common.Tick) historical.BinaryTick {
	bid, _ := tick.Bid.Float64()
	ask, _ := tick.Ask.Float64()
	bidVolume, _ := tick.BidVolume.Float64()
	askVolume, _ := tick.AskVolume.Float64()

	return historical.BinaryTick{
		TimeStamp: tick.TimeStamp.UnixNano(),
		Bid:       bid,
		Ask:       ask,
		BidVolume: bidVolume,
		AskVolume: askVolume,
	}
}

func dump(ctx context.Context, dbPath, symbol string, from, to time.Time) error {
	reader := duckdb.NewReader(dbPath)
	if err := reader.Connect(); err != nil {
		return err
	}
	defer reader.Close()

	iterator, err := reader.Ticks(ctx, symbol, from, to)
	if err != nil {
		return err
	}
	defer func() { _ = iterator.Close() }()

	binFile, err := os.Create(symbol + ".bin")
	if err != nil {
		return err
	}
	defer func(binFile *os.File) {
		_ = binFile.Close()
	}(binFile)

	var count int64
	for {
		tick, err := iterator.GetNext()
		if errors.Is(err, datasource.ErrEof) {
			break
		}
		if err != nil {
			_ = os.Remove(symbol + ".bin")
			return err
		}
		if err := binary.Write(binFile, binary.LittleEndian, toBinaryTick(tick)); err != nil {
			_ = os.Remove(symbol + ".bin")
			return err
		}
		count++
	}

	slog.Info("dump finished", "symbol", symbol, "ticks", count)
	return nil
}

func main() {
	dbPath := flag.String("db", "ticks.duckdb", "path to the duckdb database")
	symbol := flag.String("symbol", "", "symbol")
	from := flag.String("from", "2018-01-01T00:00:00Z", "first timestamp, RFC 3339")
	to := flag.String("to", "2025-12-31T23:59:59Z", "last timestamp, RFC 3339")
	flag.Parse()

	if *symbol == "" {
		slog.Error("symbol is required")
		os.Exit(1)
	}

	fromTime, err := time.Parse(time.RFC3339, *from)
	if err != nil {
		slog.Error("invalid from timestamp", "error", err)
		os.Exit(1)
	}
	toTime, err := time.Parse(time.RFC3339, *to)
	if err != nil {
		slog.Error("invalid to timestamp", "error", err)
		os.Exit(1)
	}

	if err := dump(context.Background(), *dbPath, *symbol, fromTime, toTime); err != nil {
		slog.Error("failed to dump", "error", err)
		os.Exit(1)
	}
	slog.Info("done")
}
