package api

import (
	"errors"
	"net/url"

	"TradeSync/internal/domain/fault"
	models "TradeSync/internal/domain/models"
	domrepo "TradeSync/internal/domain/repository"
	"TradeSync/internal/usecase"
	xhttp "TradeSync/pkg/http"
	xlogger "TradeSync/pkg/logger"

	"github.com/labstack/echo/v4"
)

// SyncEchoHandler exposes the sync layer to a local dashboard.
type SyncEchoHandler struct {
	logger  *xlogger.Logger
	store   *usecase.StateStore
	session *usecase.Session
	actions *usecase.ActionCoordinator
	market  *usecase.MarketDataService
	api     domrepo.TradingAPI
}

func NewSyncEchoHandler(
	logger *xlogger.Logger,
	store *usecase.StateStore,
	session *usecase.Session,
	actions *usecase.ActionCoordinator,
	market *usecase.MarketDataService,
	api domrepo.TradingAPI,
) *SyncEchoHandler {
	return &SyncEchoHandler{
		logger:  logger.Component("api"),
		store:   store,
		session: session,
		actions: actions,
		market:  market,
		api:     api,
	}
}

func (h *SyncEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/state", h.State)
	g.GET("/health", h.Health)
	g.POST("/reconcile", h.Reconcile)

	g.GET("/subscriptions", h.Subscriptions)
	g.POST("/subscriptions", h.Subscribe)
	g.DELETE("/subscriptions/:symbol", h.Unsubscribe)

	g.GET("/actions", h.Actions)
	g.DELETE("/actions/:id", h.AcknowledgeAction)
	g.POST("/signals/generate", h.GenerateSignal)
	g.POST("/trade/execute", h.ExecuteTrade)
	g.POST("/models/train", h.TrainModel)
	g.POST("/ai/analyze", h.Analyze)
	g.POST("/config/update", h.UpdateConfig)

	g.GET("/market/data", h.MarketData)
	g.GET("/markets", h.Markets)
}

func (h *SyncEchoHandler) State(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, h.store.Read())
}

func (h *SyncEchoHandler) Health(c echo.Context) error {
	out := map[string]any{
		"status":     "ok",
		"connection": h.session.ConnectionState(),
		"pending":    len(h.actions.Pending()),
	}
	backend, err := h.api.Health(c.Request().Context())
	if err != nil {
		out["status"] = "degraded"
		out["backend_error"] = err.Error()
	} else {
		out["backend"] = backend
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *SyncEchoHandler) Reconcile(c echo.Context) error {
	h.session.Refresh()
	return xhttp.AcceptedResponse(c, map[string]string{"status": "scheduled"})
}

func (h *SyncEchoHandler) Subscriptions(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.session.Subscriptions())
}

func (h *SyncEchoHandler) Subscribe(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.session.Subscribe(c.Request().Context(), req.Symbol); err != nil {
		h.logger.Warn("subscribe frame failed", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
	}
	return xhttp.SuccessResponse(c, h.session.Subscriptions())
}

func (h *SyncEchoHandler) Unsubscribe(c echo.Context) error {
	symbol, err := url.PathUnescape(c.Param("symbol"))
	if err != nil || models.NormalizeSymbol(symbol) == "" {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("invalid symbol"))
	}
	if err := h.session.Unsubscribe(c.Request().Context(), symbol); err != nil {
		h.logger.Warn("unsubscribe frame failed", xlogger.String("symbol", symbol), xlogger.Error(err))
	}
	return xhttp.SuccessResponse(c, h.session.Subscriptions())
}

func (h *SyncEchoHandler) Actions(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.actions.Pending())
}

func (h *SyncEchoHandler) AcknowledgeAction(c echo.Context) error {
	if !h.actions.Acknowledge(c.Param("id")) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no terminal action with this id"))
	}
	return xhttp.NoContentResponse(c)
}

func (h *SyncEchoHandler) GenerateSignal(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sig, err := h.actions.GenerateSignal(c.Request().Context(), req.Symbol)
	if err != nil {
		return h.fail(c, "generate signal", err)
	}
	return xhttp.SuccessResponse(c, sig)
}

func (h *SyncEchoHandler) ExecuteTrade(c echo.Context) error {
	req := &models.TradeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.actions.ExecuteTrade(c.Request().Context(), req.Symbol, req.Action, req.Price)
	if errors.Is(err, fault.ErrAmbiguousOutcome) {
		h.logger.Warn("trade outcome unknown", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AcceptedResponse(c, map[string]string{
			"status": string(models.StatusAmbiguous),
			"reason": fault.Reason(err),
		})
	}
	if err != nil {
		return h.fail(c, "execute trade", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SyncEchoHandler) TrainModel(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.actions.TrainModel(c.Request().Context(), req.Symbol)
	if err != nil {
		return h.fail(c, "train model", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SyncEchoHandler) Analyze(c echo.Context) error {
	req := &models.AnalyzeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.actions.Analyze(c.Request().Context(), req.Type, req.Symbol)
	if err != nil {
		return h.fail(c, "analyze", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SyncEchoHandler) UpdateConfig(c echo.Context) error {
	req := &models.ConfigRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.actions.UpdateConfig(c.Request().Context(), req.Config)
	if err != nil {
		return h.fail(c, "update config", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SyncEchoHandler) MarketData(c echo.Context) error {
	req := &models.MarketDataRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.market.GetCandles(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "market data", err)
	}
	if res.Cached {
		c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SyncEchoHandler) Markets(c echo.Context) error {
	res, err := h.market.Markets(c.Request().Context())
	if err != nil {
		return h.fail(c, "markets", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SyncEchoHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= 500 {
		h.logger.Error(op+" failed", xlogger.Error(err))
	} else {
		h.logger.Debug(op+" refused", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}
