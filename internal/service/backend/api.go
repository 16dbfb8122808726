package backend

import (
	"context"

	"TradeSync/internal/domain/models"
	xhttp "TradeSync/pkg/http"
	"TradeSync/pkg/util"
)

// FetchPortfolio polls the full account view.
func (c *Client) FetchPortfolio(ctx context.Context) (models.PortfolioState, error) {
	issuedAt := c.now()
	var resp portfolioResponse
	err := c.Request(ctx, "fetchPortfolio", &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    "/api/portfolio",
	}, &resp, 0)
	if err != nil {
		return models.PortfolioState{}, err
	}
	return resp.toModel(issuedAt), nil
}

// FetchTickers polls the latest ticker of every tracked symbol.
func (c *Client) FetchTickers(ctx context.Context) ([]models.MarketSnapshot, error) {
	issuedAt := c.now()
	var resp []tickerDTO
	err := c.Request(ctx, "fetchTickers", &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    "/market-data",
	}, &resp, 0)
	if err != nil {
		return nil, err
	}
	out := make([]models.MarketSnapshot, 0, len(resp))
	for _, t := range resp {
		if t.Symbol == "" {
			continue
		}
		out = append(out, t.toModel(issuedAt))
	}
	return out, nil
}

func (c *Client) GenerateSignal(ctx context.Context, symbol string) (models.Signal, error) {
	issuedAt := c.now()
	var resp signalResponse
	err := c.Request(ctx, "generateSignal", &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    "/api/signals/generate",
		Body:   models.SymbolRequest{Symbol: symbol},
	}, &resp, 0)
	if err != nil {
		return models.Signal{}, err
	}
	return resp.toModel(symbol, issuedAt), nil
}

// ExecuteTrade submits a paper trade. A 2xx response whose status is not
// "success" is returned as a not accepted result rather than an error.
func (c *Client) ExecuteTrade(ctx context.Context, req models.TradeRequest) (models.TradeResult, error) {
	issuedAt := c.now()
	var resp tradeResponse
	err := c.Request(ctx, "executeTrade", &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    "/api/trade/execute",
		Body:   req,
	}, &resp, 0)
	if err != nil {
		return models.TradeResult{}, err
	}
	return resp.toModel(req, issuedAt), nil
}

func (c *Client) TrainModel(ctx context.Context, symbol string) (models.TrainStatus, error) {
	var resp models.TrainStatus
	err := c.Request(ctx, "trainModel", &xhttp.RequestOptions{
		Method:      xhttp.MethodPost,
		URL:         "/api/models/train",
		QueryParams: map[string][]string{"symbol": {symbol}},
	}, &resp, 0)
	if err != nil {
		return models.TrainStatus{}, err
	}
	if resp.Symbol == "" {
		resp.Symbol = symbol
	}
	return resp, nil
}

func (c *Client) Analyze(ctx context.Context, req models.AnalyzeRequest) (models.Analysis, error) {
	var resp analysisResponse
	err := c.Request(ctx, "analyze", &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    "/api/ai/analyze",
		Body:   req,
	}, &resp, 0)
	if err != nil {
		return models.Analysis{}, err
	}
	return resp.toModel(req), nil
}

func (c *Client) FetchMarketData(ctx context.Context, req models.MarketDataRequest) ([]models.Candle, error) {
	var resp marketDataResponse
	err := c.Request(ctx, "fetchMarketData", &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    "/api/market/data",
		Body:   req,
	}, &resp, 0)
	if err != nil {
		return nil, err
	}
	symbol := models.NormalizeSymbol(req.Symbol)
	out := make([]models.Candle, 0, len(resp.Data))
	for _, d := range resp.Data {
		bucket, _ := util.ParseRawTime(d.Timestamp)
		out = append(out, models.Candle{
			Bucket: bucket,
			Symbol: symbol,
			Open:   d.Open,
			High:   d.High,
			Low:    d.Low,
			Close:  d.Close,
			Volume: d.Volume,
		})
	}
	return out, nil
}

func (c *Client) FetchMarketsList(ctx context.Context) ([]string, error) {
	var resp marketsResponse
	err := c.Request(ctx, "fetchMarketsList", &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    "/api/markets/list",
	}, &resp, 0)
	if err != nil {
		return nil, err
	}
	return resp.Markets, nil
}

// UpdateConfig forwards the configuration blob untouched.
func (c *Client) UpdateConfig(ctx context.Context, cfg models.BackendConfig) (models.ConfigStatus, error) {
	var resp models.ConfigStatus
	err := c.Request(ctx, "updateConfig", &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    "/api/config/update",
		Body:   cfg,
	}, &resp, 0)
	if err != nil {
		return models.ConfigStatus{}, err
	}
	return resp, nil
}

func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var resp map[string]any
	err := c.Request(ctx, "health", &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    "/api/health",
	}, &resp, 0)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
