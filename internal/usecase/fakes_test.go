package usecase

import (
	"context"
	"sync"
	"sync/atomic"

	"TradeSync/internal/domain/models"
)

// fakeAPI counts calls per operation and delegates to optional hooks.
type fakeAPI struct {
	mu    sync.Mutex
	calls map[string]int

	portfolio  func(ctx context.Context) (models.PortfolioState, error)
	tickers    func(ctx context.Context) ([]models.MarketSnapshot, error)
	signal     func(ctx context.Context, symbol string) (models.Signal, error)
	trade      func(ctx context.Context, req models.TradeRequest) (models.TradeResult, error)
	train      func(ctx context.Context, symbol string) (models.TrainStatus, error)
	analyze    func(ctx context.Context, req models.AnalyzeRequest) (models.Analysis, error)
	marketData func(ctx context.Context, req models.MarketDataRequest) ([]models.Candle, error)
	markets    func(ctx context.Context) ([]string, error)
	config     func(ctx context.Context, cfg models.BackendConfig) (models.ConfigStatus, error)
}

func (f *fakeAPI) hit(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[op]++
}

func (f *fakeAPI) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeAPI) FetchPortfolio(ctx context.Context) (models.PortfolioState, error) {
	f.hit("portfolio")
	if f.portfolio == nil {
		return models.PortfolioState{}, nil
	}
	return f.portfolio(ctx)
}

func (f *fakeAPI) FetchTickers(ctx context.Context) ([]models.MarketSnapshot, error) {
	f.hit("tickers")
	if f.tickers == nil {
		return nil, nil
	}
	return f.tickers(ctx)
}

func (f *fakeAPI) GenerateSignal(ctx context.Context, symbol string) (models.Signal, error) {
	f.hit("signal")
	if f.signal == nil {
		return models.Signal{Symbol: symbol, Action: models.ActionHold}, nil
	}
	return f.signal(ctx, symbol)
}

func (f *fakeAPI) ExecuteTrade(ctx context.Context, req models.TradeRequest) (models.TradeResult, error) {
	f.hit("trade")
	if f.trade == nil {
		return models.TradeResult{Accepted: true}, nil
	}
	return f.trade(ctx, req)
}

func (f *fakeAPI) TrainModel(ctx context.Context, symbol string) (models.TrainStatus, error) {
	f.hit("train")
	if f.train == nil {
		return models.TrainStatus{Status: "training", Symbol: symbol}, nil
	}
	return f.train(ctx, symbol)
}

func (f *fakeAPI) Analyze(ctx context.Context, req models.AnalyzeRequest) (models.Analysis, error) {
	f.hit("analyze")
	if f.analyze == nil {
		return models.Analysis{Type: req.Type, Symbol: req.Symbol}, nil
	}
	return f.analyze(ctx, req)
}

func (f *fakeAPI) FetchMarketData(ctx context.Context, req models.MarketDataRequest) ([]models.Candle, error) {
	f.hit("marketData")
	if f.marketData == nil {
		return nil, nil
	}
	return f.marketData(ctx, req)
}

func (f *fakeAPI) FetchMarketsList(ctx context.Context) ([]string, error) {
	f.hit("markets")
	if f.markets == nil {
		return nil, nil
	}
	return f.markets(ctx)
}

func (f *fakeAPI) UpdateConfig(ctx context.Context, cfg models.BackendConfig) (models.ConfigStatus, error) {
	f.hit("config")
	if f.config == nil {
		return models.ConfigStatus{Status: "success"}, nil
	}
	return f.config(ctx, cfg)
}

func (f *fakeAPI) Health(context.Context) (map[string]any, error) {
	f.hit("health")
	return map[string]any{"status": "ok"}, nil
}

type countingRefresher struct{ n atomic.Int32 }

func (r *countingRefresher) ForceRefresh() { r.n.Add(1) }

type memJournal struct {
	mu      sync.Mutex
	actions []models.PendingAction
}

func (j *memJournal) RecordActions(_ context.Context, actions []models.PendingAction) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.actions = append(j.actions, actions...)
	return nil
}

func (j *memJournal) len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.actions)
}
