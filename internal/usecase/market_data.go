package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"TradeSync/internal/domain/models"
	domrepo "TradeSync/internal/domain/repository"
	"TradeSync/pkg/cache"
	xhttp "TradeSync/pkg/http"
	"TradeSync/pkg/logger"
)

// MarketDataService serves candles and the markets list from the backend
// through a read-through cache. These are reference data and never touch
// the state store.
type MarketDataService struct {
	api        domrepo.TradingAPI
	cache      cache.Service
	candlesTTL time.Duration
	marketsTTL time.Duration
	log        *logger.Logger
	metrics    domrepo.Metrics
}

func NewMarketDataService(api domrepo.TradingAPI, c cache.Service, candlesTTL, marketsTTL time.Duration, log *logger.Logger, metrics domrepo.Metrics) *MarketDataService {
	return &MarketDataService{
		api:        api,
		cache:      c,
		candlesTTL: candlesTTL,
		marketsTTL: marketsTTL,
		log:        log.Component("market_data"),
		metrics:    metrics,
	}
}

type CandlesResult struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	Count     int             `json:"count"`
	Cached    bool            `json:"cached"`
	Candles   []models.Candle `json:"candles"`
}

// GetCandles returns up to req.Limit candles ordered by bucket.
func (s *MarketDataService) GetCandles(ctx context.Context, req models.MarketDataRequest) (*CandlesResult, error) {
	req.Symbol = models.NormalizeSymbol(req.Symbol)
	if err := xhttp.ValidateStruct(ctx, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	tf := domrepo.NormalizeTimeframe(req.Timeframe)

	start := time.Now()
	key := cache.GenerateKeyWithParams("candles", req.Symbol, tf, req.Limit)
	candles, hit, err := cache.GetOrLoad(ctx, s.cache, key, s.candlesTTL, func(ctx context.Context) ([]models.Candle, error) {
		return s.api.FetchMarketData(ctx, req)
	})
	if err != nil {
		s.metrics.RecordError("market_data")
		return nil, fmt.Errorf("get candles: %w", err)
	}
	s.metrics.RecordLatency("market_data", time.Since(start).Seconds())

	sort.SliceStable(candles, func(i, j int) bool { return candles[i].Bucket.Before(candles[j].Bucket) })
	if len(candles) > req.Limit {
		candles = candles[len(candles)-req.Limit:]
	}
	if !hit {
		s.log.Debug("candles loaded", logger.String("symbol", req.Symbol), logger.Int("count", len(candles)))
	}

	return &CandlesResult{
		Symbol:    req.Symbol,
		Timeframe: string(tf),
		Count:     len(candles),
		Cached:    hit,
		Candles:   candles,
	}, nil
}

// Markets returns the symbols the backend can stream.
func (s *MarketDataService) Markets(ctx context.Context) ([]string, error) {
	markets, _, err := cache.GetOrLoad(ctx, s.cache, cache.GenerateKey("markets", "list"), s.marketsTTL, s.api.FetchMarketsList)
	if err != nil {
		s.metrics.RecordError("markets_list")
		return nil, fmt.Errorf("list markets: %w", err)
	}
	return markets, nil
}
