// Package datasource defines the data-adapter boundary. Implementations hand
// the engine already-materialized records in timestamp order; file and
// database I/O never crosses into the core.
package datasource

import (
	"errors"

	"github.com/peregrine-trading/peregrine/pkg/common"
)

// ErrEof signals an exhausted source. It is the normal end of a series, not
// a failure.
var ErrEof = errors.New("EOF")

type TickSource interface {
	GetNext() (common.Tick, error)
}

type BarSource interface {
	GetNext() (common.Bar, error)
}
