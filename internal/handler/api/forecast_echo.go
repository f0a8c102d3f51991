package api

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"FinCast/internal/domain/models"
	"FinCast/internal/service/ratelimit"
	xhttp "FinCast/pkg/http"
	xlogger "FinCast/pkg/logger"
	"FinCast/pkg/util"
)

// ForecastEngine is the engine surface served over HTTP.
type ForecastEngine interface {
	Predict(ctx context.Context, symbol string, horizon int) (*models.ForecastResult, error)
	TrainNow(ctx context.Context, symbol string) bool
	StartPretrain(symbols []string) bool
	TrainingState(ctx context.Context, symbol string) models.TrainingStatus
	TrainingStates() []models.TrainingStatus
	Watchlist() []string
}

// HealthCheck checks one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// RateLimit bounds manual training per symbol.
type RateLimit struct {
	Capacity  float64
	PerMinute float64
}

// ForecastEchoHandler serves the forecasting API.
type ForecastEchoHandler struct {
	logger  *xlogger.Logger
	engine  ForecastEngine
	market  *util.MarketClock
	rl      *ratelimit.Limiter
	limit   RateLimit
	checks  []HealthCheck
	ready   atomic.Bool
	timeout time.Duration
}

func NewForecastEchoHandler(logger *xlogger.Logger, engine ForecastEngine, market *util.MarketClock, limit RateLimit, checks ...HealthCheck) *ForecastEchoHandler {
	if limit.Capacity <= 0 {
		limit.Capacity = 2
	}
	if limit.PerMinute <= 0 {
		limit.PerMinute = 1
	}
	return &ForecastEchoHandler{
		logger:  logger.Component("api"),
		engine:  engine,
		market:  market,
		rl:      ratelimit.New(),
		limit:   limit,
		checks:  checks,
		timeout: 3 * time.Second,
	}
}

// SetReady flips health from starting to healthy/degraded.
func (h *ForecastEchoHandler) SetReady(ready bool) { h.ready.Store(ready) }

func (h *ForecastEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/health", h.Health)
	g.GET("/market/status", h.MarketStatus)

	s := g.Group("/stock")
	s.GET("/predict/:symbol", h.Predict)
	s.POST("/train/:symbol", h.Train)
	s.POST("/pretrain_all", h.PretrainAll)
	s.GET("/training", h.TrainingList)
	s.GET("/training/:symbol", h.Training)
	s.GET("/watchlist", h.Watchlist)
}

func (h *ForecastEchoHandler) Predict(c echo.Context) error {
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := util.NormalizeSymbol(req.Symbol)

	res, err := h.engine.Predict(c.Request().Context(), symbol, req.Days)
	switch {
	case err == nil:
		c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=30")
		return xhttp.SuccessResponse(c, res)
	case errors.Is(err, models.ErrTrainingInProgress):
		return xhttp.AcceptedResponse(c, map[string]string{
			"symbol":  symbol,
			"status":  string(models.StateTraining),
			"message": "model is training, retry shortly",
		})
	case errors.Is(err, models.ErrNotFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no price history for %s", symbol).WithError(err))
	case errors.Is(err, models.ErrInvalidHorizon):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("days must be between 1 and 365").WithError(err))
	default:
		h.logger.Error("predict usecase error", xlogger.String("symbol", symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("forecast failed for %s", symbol).WithError(err))
	}
}

func (h *ForecastEchoHandler) Train(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := util.NormalizeSymbol(req.Symbol)

	if !h.rl.Allow("train:"+symbol, h.limit.Capacity, h.limit.PerMinute/60) {
		h.logger.Warn("train rate_limited", xlogger.String("symbol", symbol), xlogger.String("remote", c.RealIP()))
		return xhttp.TooManyRequestsResponse(c, map[string]string{"symbol": symbol, "message": "too many training requests"})
	}

	trained := h.engine.TrainNow(c.Request().Context(), symbol)
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"symbol":  symbol,
		"trained": trained,
		"state":   h.engine.TrainingState(c.Request().Context(), symbol).State,
	})
}

func (h *ForecastEchoHandler) PretrainAll(c echo.Context) error {
	req := &models.PretrainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbols := util.NormalizeSymbols(req.Symbols)
	if len(symbols) == 0 {
		symbols = h.engine.Watchlist()
	}

	if !h.engine.StartPretrain(symbols) {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_CONFLICT", "", "a pretraining batch is already running", http.StatusConflict))
	}
	return xhttp.AcceptedResponse(c, map[string]interface{}{
		"status":  "started",
		"symbols": symbols,
	})
}

func (h *ForecastEchoHandler) Training(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.engine.TrainingState(c.Request().Context(), util.NormalizeSymbol(req.Symbol)))
}

func (h *ForecastEchoHandler) TrainingList(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{"symbols": h.engine.TrainingStates()})
}

func (h *ForecastEchoHandler) Watchlist(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{"symbols": h.engine.Watchlist()})
}

func (h *ForecastEchoHandler) MarketStatus(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.market.Info(time.Now()))
}

func (h *ForecastEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	services := make(map[string]string, len(h.checks))
	healthy := true
	for _, chk := range h.checks {
		if err := chk.Check(ctx); err != nil {
			services[chk.Name] = "down: " + err.Error()
			healthy = false
			continue
		}
		services[chk.Name] = "up"
	}

	status := "healthy"
	switch {
	case !h.ready.Load():
		status = "starting"
	case !healthy:
		status = "degraded"
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status":    status,
		"services":  services,
		"timestamp": time.Now().UTC(),
	})
}

var _ xhttp.Handler = (*ForecastEchoHandler)(nil)
