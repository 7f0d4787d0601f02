// Package synthetic generates geometric-brownian-motion tick series from a
// caller-supplied seeded generator, so tests and examples run without data
// files while staying fully reproducible.
package synthetic

import (
	"math/rand"
	"time"

	"github.com/peregrine-trading/peregrine/pkg/common"
	"github.com/peregrine-trading/peregrine/pkg/datasource"
	"github.com/peregrine-trading/peregrine/pkg/utility"
	"github.com/peregrine-trading/peregrine/pkg/utility/fixed"
)

const tickGeneratorComponentName = "datasource.synthetic.generator"

type TickGenerator struct {
	symbol string
	rng    *rand.Rand

	startTime  time.Time
	baseSpread fixed.Point
	deltaT     fixed.Point
	steps      int64
	t          int64

	avgTickInterval time.Duration
	tickVariability float64

	avgVolume      fixed.Point
	volumeVariance float64

	deltaLogPre1 fixed.Point
	deltaLogPre2 fixed.Point

	spreadVolatility float64
	minSpread        fixed.Point
	maxSpread        fixed.Point

	lastTime      time.Time
	lastPrice     fixed.Point
	currentSpread fixed.Point

	priceDigits  int
	volumeDigits int
}

func NewTickGenerator(
	symbol string,
	rng *rand.Rand,
	startTime time.Time,
	startPrice, fullSpread, mu, sigma, deltaT fixed.Point,
	steps int64) *TickGenerator {

	return &TickGenerator{
		symbol: symbol,
		rng:    rng,

		startTime:  startTime,
		baseSpread: fullSpread.DivInt64(2),
		deltaT:     deltaT,
		steps:      steps,

		avgTickInterval: time.Duration(333_000_000),
		tickVariability: 0.3,

		avgVolume:      fixed.FromInt64(100, 0),
		volumeVariance: 0.5,

		spreadVolatility: 0.1,
		minSpread:        fullSpread.Mul(fixed.FromInt64(5, 1)),
		maxSpread:        fullSpread.Mul(fixed.FromInt64(15, 1)),

		// Pre-calculated GBM drift and diffusion terms.
		deltaLogPre1: mu.Sub(sigma.Mul(sigma).Mul(fixed.PointFive)).Mul(deltaT),
		deltaLogPre2: sigma.Mul(deltaT.Sqrt()),

		lastTime:      startTime,
		lastPrice:     startPrice,
		currentSpread: fullSpread.DivInt64(2),

		priceDigits:  5,
		volumeDigits: 2,
	}
}

func (e *TickGenerator) SetTickParameters(avgInterval time.Duration, intervalVariability float64, avgVol fixed.Point, volVariance float64) {
	e.avgTickInterval = avgInterval
	e.tickVariability = intervalVariability
	e.avgVolume = avgVol
	e.volumeVariance = volVariance
}

func (e *TickGenerator) SetSpreadDynamics(volatility float64, minSpread, maxSpread fixed.Point) {
	e.spreadVolatility = volatility
	e.minSpread = minSpread
	e.maxSpread = maxSpread
}

func (e *TickGenerator) SetPriceDigits(digits int) {
	e.priceDigits = digits
}

func (e *TickGenerator) SetVolumeDigits(digits int) {
	e.volumeDigits = digits
}

func (e *TickGenerator) GetNext() (common.Tick, error) {
	var tick common.Tick

	if e.t >= e.steps {
		return tick, datasource.ErrEof
	}

	z := e.rng.NormFloat64()
	deltaLog := e.deltaLogPre1.Add(e.deltaLogPre2.Mul(fixed.FromFloat64(z)))
	e.lastPrice = e.lastPrice.Mul(deltaLog.Exp())

	e.updateSpread()

	tickInterval := e.generateTickInterval()
	e.lastTime = e.lastTime.Add(tickInterval)
	e.t++

	askVol, bidVol := e.generateVolumes()

	tick.Ask = e.lastPrice.Add(e.currentSpread).Rescale(e.priceDigits)
	tick.Bid = e.lastPrice.Sub(e.currentSpread).Rescale(e.priceDigits)
	tick.AskVolume = askVol.Rescale(e.volumeDigits)
	tick.BidVolume = bidVol.Rescale(e.volumeDigits)
	tick.TimeStamp = e.lastTime

	tick.Source = tickGeneratorComponentName
	tick.Symbol = e.symbol
	tick.ExecutionId = utility.GetExecutionID()
	tick.TraceID = utility.CreateTraceID()

	return tick, nil
}

func (e *TickGenerator) updateSpread() {
	if e.spreadVolatility <= 0 {
		return
	}

	spreadChange := e.rng.NormFloat64() * e.spreadVolatility
	newSpread := e.currentSpread.Mul(fixed.FromFloat64(1.0 + spreadChange))

	if newSpread.Lt(e.minSpread) {
		e.currentSpread = e.minSpread
	} else if newSpread.Gt(e.maxSpread) {
		e.currentSpread = e.maxSpread
	} else {
		e.currentSpread = newSpread
	}
}

func (e *TickGenerator) generateTickInterval() time.Duration {
	if e.tickVariability <= 0 {
		return e.avgTickInterval
	}

	lambda := 1.0 / float64(e.avgTickInterval.Nanoseconds())
	interval := e.rng.ExpFloat64() / lambda

	minInterval := float64(e.avgTickInterval.Nanoseconds()) * (1.0 - e.tickVariability)
	maxInterval := float64(e.avgTickInterval.Nanoseconds()) * (1.0 + e.tickVariability*3)

	if interval < minInterval {
		interval = minInterval
	} else if interval > maxInterval {
		interval = maxInterval
	}

	return time.Duration(int64(interval))
}

func (e *TickGenerator) generateVolumes() (askVol, bidVol fixed.Point) {
	askVariation := e.rng.NormFloat64() * e.volumeVariance
	bidVariation := e.rng.NormFloat64() * e.volumeVariance

	askVol = e.avgVolume.Mul(fixed.FromFloat64(1.0 + askVariation).Exp())
	bidVol = e.avgVolume.Mul(fixed.FromFloat64(1.0 + bidVariation).Exp())

	if askVol.Lte(fixed.Zero) {
		askVol = fixed.One
	}
	if bidVol.Lte(fixed.Zero) {
		bidVol = fixed.One
	}

	return askVol, bidVol
}
