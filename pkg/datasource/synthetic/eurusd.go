package synthetic

import (
	"log/slog"
	"math/rand"
	"time"

	"github.com/peregrine-trading/peregrine/pkg/utility/fixed"
)

// NewEURUSDTickGenerator builds a generator with typical EURUSD market
// parameters. The start time is explicit so runs stay reproducible.
func NewEURUSDTickGenerator(symbol string, rng *rand.Rand, startTime time.Time, duration time.Duration, mu, sigma float64) *TickGenerator {

	const (
		eurUsdStartPrice    = 1.0550
		eurUsdTypicalSpread = 0.00003 // 0.3 pips spread
		eurUsdMinSpread     = 0.00001 // 0.1 pips minimum
		eurUsdMaxSpread     = 0.00006 // 0.6 pips maximum

		avgTickIntervalSeconds = 1
		tickTimingVariability  = 0.45

		avgVolumeUnits    = 1
		volumeVariability = 0.65

		spreadVolatility = 0.12

		priceDigits  = 5
		volumeDigits = 2
	)

	totalSeconds := int64(duration.Seconds())
	avgTickInterval := time.Duration(avgTickIntervalSeconds * float64(time.Second))
	estimatedTicks := totalSeconds / int64(avgTickIntervalSeconds)

	secondsPerYear := 365.25 * 24 * 3600
	deltaT := fixed.FromFloat64(avgTickIntervalSeconds / secondsPerYear)

	tickGenerator := NewTickGenerator(
		symbol,
		rng,
		startTime,
		fixed.FromFloat64(eurUsdStartPrice),
		fixed.FromFloat64(eurUsdTypicalSpread),
		fixed.FromFloat64(mu),
		fixed.FromFloat64(sigma),
		deltaT,
		estimatedTicks,
	)

	tickGenerator.SetTickParameters(avgTickInterval, tickTimingVariability, fixed.FromInt(avgVolumeUnits, 0), volumeVariability)
	tickGenerator.SetSpreadDynamics(spreadVolatility, fixed.FromFloat64(eurUsdMinSpread), fixed.FromFloat64(eurUsdMaxSpread))
	tickGenerator.SetPriceDigits(priceDigits)
	tickGenerator.SetVolumeDigits(volumeDigits)

	slog.Debug("EURUSD synthetic tick generator configuration",
		"duration", duration,
		"mu_annual", mu,
		"sigma_annual", sigma,
		"start_price", eurUsdStartPrice,
		"avg_tick_interval_sec", avgTickIntervalSeconds,
		"estimated_ticks", estimatedTicks,
		"start_time", startTime,
	)

	return tickGenerator
}
