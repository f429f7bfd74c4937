// Package query implements the read side: the binning query engine and the
// trade aggregator.
//
// The pure algorithms (BinTickers, AggregateTrades, SortTradesDesc) are kept
// separate from Service, which fetches rows through a Store and holds no
// state between calls.
package query
