package middleware

import (
	"context"

	"github.com/peregrine-trading/peregrine/pkg/common"
)

var (
	NoopTickHdl      = func(context.Context, common.Tick) {}
	NoopBarHdl       = func(context.Context, common.Bar) {}
	NoopPosOpnHdl    = func(context.Context, common.Position) {}
	NoopPosUpdHdl    = func(context.Context, common.Position) {}
	NoopPosClsHdl    = func(context.Context, common.Position) {}
	NoopAccountHdl   = func(context.Context, common.AccountState) {}
	NoopOrderFillHdl = func(context.Context, common.OrderFilled) {}
	NoopOrderRjctHdl = func(context.Context, common.OrderRejected) {}
	NoopOrderAccHdl  = func(context.Context, common.OrderAccepted) {}
	NoopMarginHdl    = func(context.Context, common.MarginWarning) {}
)
