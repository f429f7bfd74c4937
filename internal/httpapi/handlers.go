package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rickgao/coinbase-data/internal/apperr"
	"github.com/rickgao/coinbase-data/internal/model"
	"github.com/rickgao/coinbase-data/internal/timestamp"
)

const defaultTradeLimit = 10

// Response shapes.

type binJSON struct {
	Time  string  `json:"time"`
	Price float64 `json:"price"`
}

type tradeJSON struct {
	ProductID string  `json:"product_id"`
	Time      string  `json:"time"`
	TradeID   string  `json:"trade_id"`
	Price     float64 `json:"price"`
	Size      float64 `json:"size"`
	Side      string  `json:"side"`
}

type sideJSON struct {
	TotalSize float64 `json:"total_size"`
	AvgPrice  float64 `json:"avg_price"`
	Count     int     `json:"count"`
}

type aggregateJSON struct {
	Buys  sideJSON `json:"buys"`
	Sells sideJSON `json:"sells"`
}

type rollupJSON struct {
	ProductID string  `json:"product_id"`
	Time      string  `json:"time"`
	AvgPrice  float64 `json:"avg_price"`
	MinPrice  float64 `json:"min_price"`
	MaxPrice  float64 `json:"max_price"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func toTradeJSON(t model.Trade) tradeJSON {
	return tradeJSON{
		ProductID: t.ProductID,
		Time:      formatTime(t.Time),
		TradeID:   t.TradeID,
		Price:     t.Price.InexactFloat64(),
		Size:      t.Size.InexactFloat64(),
		Side:      string(t.Side),
	}
}

func toSideJSON(s model.SideSummary) sideJSON {
	return sideJSON{
		TotalSize: s.TotalSize.InexactFloat64(),
		AvgPrice:  s.AvgPrice.InexactFloat64(),
		Count:     s.Count,
	}
}

// GET /api/ticker_data?product_id&start_time&end_time&bin_size
func (s *Server) tickerData(c *gin.Context) {
	productID, err := requiredParam(c, "product_id")
	if err != nil {
		s.fail(c, err)
		return
	}
	start, err := requiredTime(c, "start_time")
	if err != nil {
		s.fail(c, err)
		return
	}
	end, err := optionalTime(c, "end_time")
	if err != nil {
		s.fail(c, err)
		return
	}
	binSize := s.cfg.DefaultBinSize
	if raw := c.Query("bin_size"); raw != "" {
		binSize, err = time.ParseDuration(raw)
		if err != nil {
			s.fail(c, apperr.E(apperr.ErrInvalidArgument, "parse bin_size", err))
			return
		}
	}

	bins, err := s.svc.FetchBinned(c.Request.Context(), productID, start, end, binSize)
	if err != nil {
		s.fail(c, err)
		return
	}

	out := make([]binJSON, 0, len(bins))
	for _, b := range bins {
		out = append(out, binJSON{Time: formatTime(b.Start), Price: b.AvgPrice.InexactFloat64()})
	}
	c.JSON(http.StatusOK, out)
}

// GET /api/recent_trades?product_id&limit
func (s *Server) recentTrades(c *gin.Context) {
	productID, err := requiredParam(c, "product_id")
	if err != nil {
		s.fail(c, err)
		return
	}
	limit := defaultTradeLimit
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			s.fail(c, apperr.E(apperr.ErrInvalidArgument, "parse limit", err))
			return
		}
	}

	trades, err := s.svc.RecentTrades(c.Request.Context(), productID, limit)
	if err != nil {
		s.fail(c, err)
		return
	}

	out := make([]tradeJSON, 0, len(trades))
	for _, t := range trades {
		out = append(out, toTradeJSON(t))
	}
	c.JSON(http.StatusOK, out)
}

// GET /api/aggregated_trades?product_id&since
func (s *Server) aggregatedTrades(c *gin.Context) {
	productID, err := requiredParam(c, "product_id")
	if err != nil {
		s.fail(c, err)
		return
	}
	since, err := requiredTime(c, "since")
	if err != nil {
		s.fail(c, err)
		return
	}

	agg, err := s.svc.AggregateSince(c.Request.Context(), productID, since)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, aggregateJSON{
		Buys:  toSideJSON(agg.Buys),
		Sells: toSideJSON(agg.Sells),
	})
}

// GET /api/last_trade?product_id
func (s *Server) lastTrade(c *gin.Context) {
	productID, err := requiredParam(c, "product_id")
	if err != nil {
		s.fail(c, err)
		return
	}

	trade, err := s.svc.LastTrade(c.Request.Context(), productID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toTradeJSON(trade))
}

// GET /api/summary?product_id&granularity&start_time&end_time
func (s *Server) summary(c *gin.Context) {
	productID, err := requiredParam(c, "product_id")
	if err != nil {
		s.fail(c, err)
		return
	}
	g, err := model.ParseGranularity(c.DefaultQuery("granularity", string(model.GranularityHour)))
	if err != nil {
		s.fail(c, apperr.E(apperr.ErrInvalidArgument, "parse granularity", err))
		return
	}
	start, err := optionalTime(c, "start_time")
	if err != nil {
		s.fail(c, err)
		return
	}
	end, err := optionalTime(c, "end_time")
	if err != nil {
		s.fail(c, err)
		return
	}

	rows, err := s.svc.Rollups(c.Request.Context(), productID, g, start, end)
	if err != nil {
		s.fail(c, err)
		return
	}

	out := make([]rollupJSON, 0, len(rows))
	for _, r := range rows {
		out = append(out, rollupJSON{
			ProductID: r.ProductID,
			Time:      formatTime(r.BinStart),
			AvgPrice:  r.AvgPrice.InexactFloat64(),
			MinPrice:  r.MinPrice.InexactFloat64(),
			MaxPrice:  r.MaxPrice.InexactFloat64(),
		})
	}
	c.JSON(http.StatusOK, out)
}

// GET /health
func (s *Server) healthz(c *gin.Context) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fail writes err with the status its kind maps to.
func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("query failed",
			"path", c.Request.URL.Path,
			"kind", apperr.KindOf(err),
			"error", err,
			"request_id", c.GetString("request_id"),
		)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.ErrValidation, apperr.ErrInvalidArgument, apperr.ErrParse:
		return http.StatusBadRequest
	case apperr.ErrNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func requiredParam(c *gin.Context, name string) (string, error) {
	v := c.Query(name)
	if v == "" {
		return "", apperr.Errorf(apperr.ErrValidation, "read params", "%s is required", name)
	}
	return v, nil
}

func requiredTime(c *gin.Context, name string) (time.Time, error) {
	raw, err := requiredParam(c, name)
	if err != nil {
		return time.Time{}, err
	}
	t, err := timestamp.Normalize(raw)
	if err != nil {
		return time.Time{}, apperr.E(apperr.ErrValidation, "parse "+name, err)
	}
	return t, nil
}

func optionalTime(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := timestamp.Normalize(raw)
	if err != nil {
		return nil, apperr.E(apperr.ErrValidation, "parse "+name, err)
	}
	return &t, nil
}
