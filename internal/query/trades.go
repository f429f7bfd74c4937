package query

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/rickgao/coinbase-data/internal/model"
)

// AggregateTrades splits trades by side and summarizes each side. A side with
// no trades, or with zero total size, reports zero average price.
func AggregateTrades(trades []model.Trade) model.TradeAggregate {
	var buys, sells sideAcc
	for _, t := range trades {
		switch t.Side {
		case model.SideBuy:
			buys.add(t)
		case model.SideSell:
			sells.add(t)
		}
	}
	return model.TradeAggregate{
		Buys:  buys.summary(),
		Sells: sells.summary(),
	}
}

type sideAcc struct {
	size     decimal.Decimal
	notional decimal.Decimal // Σ price*size
	count    int
}

func (a *sideAcc) add(t model.Trade) {
	a.size = a.size.Add(t.Size)
	a.notional = a.notional.Add(t.Price.Mul(t.Size))
	a.count++
}

func (a sideAcc) summary() model.SideSummary {
	avg := decimal.Zero
	if a.size.IsPositive() {
		avg = a.notional.Div(a.size)
	}
	return model.SideSummary{
		TotalSize: a.size,
		AvgPrice:  avg,
		Count:     a.count,
	}
}

// SortTradesDesc orders trades newest first, ties broken by trade_id descending.
func SortTradesDesc(trades []model.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		if !trades[i].Time.Equal(trades[j].Time) {
			return trades[i].Time.After(trades[j].Time)
		}
		return trades[i].TradeID > trades[j].TradeID
	})
}
