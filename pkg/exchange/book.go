package exchange

import (
	"time"

	"github.com/tidwall/btree"

	"github.com/peregrine-trading/peregrine/pkg/common"
	"github.com/peregrine-trading/peregrine/pkg/utility/fixed"
)

// priceLevel groups resting orders at one price. Arrival order within a level
// is preserved, which fixes the evaluation order for equal prices.
type priceLevel struct {
	price  fixed.Point
	orders []*common.Order
}

func lessLevel(a, b *priceLevel) bool { return a.price.Lt(b.price) }

// Book holds the resting orders of a single instrument, keyed by price so
// only the marketable slice of the ladder is walked per tick. Limit orders
// rest at their limit price, untriggered stops at their trigger price, and
// market orders wait in arrival order for the next usable quote.
type Book struct {
	buyLimits  *btree.BTreeG[*priceLevel]
	sellLimits *btree.BTreeG[*priceLevel]
	buyStops   *btree.BTreeG[*priceLevel]
	sellStops  *btree.BTreeG[*priceLevel]
	market     []*common.Order
}

func NewBook() *Book {
	return &Book{
		buyLimits:  btree.NewBTreeG(lessLevel),
		sellLimits: btree.NewBTreeG(lessLevel),
		buyStops:   btree.NewBTreeG(lessLevel),
		sellStops:  btree.NewBTreeG(lessLevel),
	}
}

func (b *Book) Add(order *common.Order) {
	switch order.Type {
	case common.OrderTypeMarket:
		b.market = append(b.market, order)
	case common.OrderTypeLimit:
		b.limitTree(order.Side).insert(order.Price, order)
	case common.OrderTypeStop, common.OrderTypeStopLimit:
		if order.Triggered {
			// A triggered stop-limit rests as a plain limit order.
			b.limitTree(order.Side).insert(order.Price, order)
			return
		}
		b.stopTree(order.Side).insert(order.TriggerPrice, order)
	}
}

// Remove takes the order out of the book wherever it rests. Returns nil when
// the order is not resting.
func (b *Book) Remove(id common.OrderId) *common.Order {
	for idx, order := range b.market {
		if order.Id == id {
			b.market = append(b.market[:idx], b.market[idx+1:]...)
			return order
		}
	}
	for _, tree := range []levelTree{
		b.limitTree(common.OrderSideBuy), b.limitTree(common.OrderSideSell),
		b.stopTree(common.OrderSideBuy), b.stopTree(common.OrderSideSell),
	} {
		if order := tree.remove(id); order != nil {
			return order
		}
	}
	return nil
}

// TakeMarketOrders drains pending market orders in arrival order. Partially
// filled remainders are re-added by the caller.
func (b *Book) TakeMarketOrders() []*common.Order {
	orders := b.market
	b.market = nil
	return orders
}

// MarketableLimits returns resting limit orders the quote touches or crosses:
// buys from the highest price down, then sells from the lowest up. Orders
// stay in the book; the caller removes them as they fill.
func (b *Book) MarketableLimits(tick common.Tick) []*common.Order {
	var eligible []*common.Order
	b.buyLimits.Reverse(func(level *priceLevel) bool {
		if tick.Ask.Gt(level.price) {
			return false
		}
		eligible = append(eligible, level.orders...)
		return true
	})
	b.sellLimits.Scan(func(level *priceLevel) bool {
		if tick.Bid.Lt(level.price) {
			return false
		}
		eligible = append(eligible, level.orders...)
		return true
	})
	return eligible
}

// TakeTriggeredStops removes and returns stops whose trigger the quote
// crossed: buy stops from the lowest trigger up, then sell stops from the
// highest down.
func (b *Book) TakeTriggeredStops(tick common.Tick) []*common.Order {
	var triggered []*common.Order
	b.buyStops.Scan(func(level *priceLevel) bool {
		if tick.Ask.Lt(level.price) {
			return false
		}
		triggered = append(triggered, level.orders...)
		return true
	})
	b.sellStops.Reverse(func(level *priceLevel) bool {
		if tick.Bid.Gt(level.price) {
			return false
		}
		triggered = append(triggered, level.orders...)
		return true
	})
	for _, order := range triggered {
		b.stopTree(order.Side).remove(order.Id)
	}
	return triggered
}

// TakeExpired removes and returns good-till-date orders due at now.
func (b *Book) TakeExpired(now time.Time) []*common.Order {
	var expired []*common.Order
	for _, order := range b.Orders() {
		if order.TimeInForce == common.TimeInForceGoodTillDate && !order.ExpireTime.After(now) {
			expired = append(expired, order)
		}
	}
	for _, order := range expired {
		b.Remove(order.Id)
	}
	return expired
}

// Orders snapshots every resting order in a deterministic sequence.
func (b *Book) Orders() []*common.Order {
	var orders []*common.Order
	for _, tree := range []levelTree{
		b.limitTree(common.OrderSideBuy), b.limitTree(common.OrderSideSell),
		b.stopTree(common.OrderSideBuy), b.stopTree(common.OrderSideSell),
	} {
		tree.tree().Scan(func(level *priceLevel) bool {
			orders = append(orders, level.orders...)
			return true
		})
	}
	orders = append(orders, b.market...)
	return orders
}

func (b *Book) Len() int {
	return len(b.Orders())
}

func (b *Book) limitTree(side common.OrderSide) levelTree {
	if side == common.OrderSideBuy {
		return levelTree{b.buyLimits}
	}
	return levelTree{b.sellLimits}
}

func (b *Book) stopTree(side common.OrderSide) levelTree {
	if side == common.OrderSideBuy {
		return levelTree{b.buyStops}
	}
	return levelTree{b.sellStops}
}

type levelTree struct {
	t *btree.BTreeG[*priceLevel]
}

func (lt levelTree) tree() *btree.BTreeG[*priceLevel] { return lt.t }

func (lt levelTree) insert(price fixed.Point, order *common.Order) {
	level, ok := lt.t.Get(&priceLevel{price: price})
	if !ok {
		level = &priceLevel{price: price}
		lt.t.Set(level)
	}
	level.orders = append(level.orders, order)
}

func (lt levelTree) remove(id common.OrderId) *common.Order {
	var found *common.Order
	var emptied *priceLevel
	lt.t.Scan(func(level *priceLevel) bool {
		for idx, order := range level.orders {
			if order.Id == id {
				found = order
				level.orders = append(level.orders[:idx], level.orders[idx+1:]...)
				if len(level.orders) == 0 {
					emptied = level
				}
				return false
			}
		}
		return true
	})
	if emptied != nil {
		lt.t.Delete(emptied)
	}
	return found
}
