package fixed

var (
	NegOne = FromInt64(-1, 0)
	Zero   = FromInt64(0, 0)
	One    = FromInt64(1, 0)
	Two    = FromInt64(2, 0)
	Ten    = FromInt64(10, 0)

	PointFive = FromInt64(5, 1)
	Hundred   = FromInt64(100, 0)

	// Annualization factor for daily return series, sqrt(252 trading days).
	Sqrt252 = FromInt64(252, 0).Sqrt()
)
