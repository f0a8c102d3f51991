package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"

	"FinCast/internal/domain/models"
	xlogger "FinCast/pkg/logger"
	"FinCast/pkg/util"
)

type stubEngine struct {
	mu        sync.Mutex
	predict   func(symbol string, days int) (*models.ForecastResult, error)
	trained   []string
	pretrain  [][]string
	busy      bool
	watchlist []string
}

func (s *stubEngine) Predict(_ context.Context, symbol string, days int) (*models.ForecastResult, error) {
	return s.predict(symbol, days)
}

func (s *stubEngine) TrainNow(_ context.Context, symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trained = append(s.trained, symbol)
	return true
}

func (s *stubEngine) StartPretrain(symbols []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.pretrain = append(s.pretrain, symbols)
	return true
}

func (s *stubEngine) TrainingState(_ context.Context, symbol string) models.TrainingStatus {
	return models.TrainingStatus{Symbol: symbol, State: models.StateTrained}
}

func (s *stubEngine) TrainingStates() []models.TrainingStatus {
	return []models.TrainingStatus{{Symbol: "AAPL", State: models.StateFailed, Error: "boom"}}
}

func (s *stubEngine) Watchlist() []string { return s.watchlist }

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func newTestServer(eng *stubEngine, checks ...HealthCheck) (*echo.Echo, *ForecastEchoHandler) {
	e := echo.New()
	h := NewForecastEchoHandler(xlogger.Nop(), eng, util.NewMarketClock("", nil), RateLimit{Capacity: 1, PerMinute: 1}, checks...)
	h.RegisterRoutes(e)
	return e, h
}

func do(t *testing.T, e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s %s: %v (%s)", method, target, err, rec.Body.String())
	}
	return rec, env
}

func TestPredictRoute(t *testing.T) {
	eng := &stubEngine{predict: func(symbol string, days int) (*models.ForecastResult, error) {
		switch symbol {
		case "AAPL":
			return &models.ForecastResult{Symbol: symbol, PredictedPrices: make([]float64, days), ModelUsed: models.ModelUsedPrimary}, nil
		case "NEW":
			return nil, models.ErrTrainingInProgress
		case "GONE":
			return nil, models.ErrNotFound
		default:
			return nil, errors.New("boom")
		}
	}}
	e, _ := newTestServer(eng)

	rec, env := do(t, e, http.MethodGet, "/api/stock/predict/aapl?days=7", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var res models.ForecastResult
	if err := json.Unmarshal(env.Data, &res); err != nil || len(res.PredictedPrices) != 7 || res.Symbol != "AAPL" {
		t.Fatalf("unexpected result %+v (%v)", res, err)
	}

	// default horizon
	_, env = do(t, e, http.MethodGet, "/api/stock/predict/AAPL", "")
	_ = json.Unmarshal(env.Data, &res)
	if len(res.PredictedPrices) != 30 {
		t.Fatalf("default days not applied: %d", len(res.PredictedPrices))
	}

	cases := map[string]int{
		"/api/stock/predict/NEW":           http.StatusAccepted,
		"/api/stock/predict/GONE":          http.StatusNotFound,
		"/api/stock/predict/ERR":           http.StatusInternalServerError,
		"/api/stock/predict/AAPL?days=0":   http.StatusBadRequest,
		"/api/stock/predict/AAPL?days=366": http.StatusBadRequest,
		"/api/stock/predict/AAPL?days=abc": http.StatusBadRequest,
	}
	for target, want := range cases {
		if rec, _ := do(t, e, http.MethodGet, target, ""); rec.Code != want {
			t.Fatalf("%s: status %d want %d (%s)", target, rec.Code, want, rec.Body.String())
		}
	}
}

func TestTrainRouteRateLimited(t *testing.T) {
	eng := &stubEngine{}
	e, _ := newTestServer(eng)

	rec, env := do(t, e, http.MethodPost, "/api/stock/train/msft", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body struct {
		Symbol  string `json:"symbol"`
		Trained bool   `json:"trained"`
	}
	if err := json.Unmarshal(env.Data, &body); err != nil || body.Symbol != "MSFT" || !body.Trained {
		t.Fatalf("unexpected body %s", env.Data)
	}

	if rec, _ := do(t, e, http.MethodPost, "/api/stock/train/MSFT", ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second call status %d", rec.Code)
	}
	if rec, _ := do(t, e, http.MethodPost, "/api/stock/train/AAPL", ""); rec.Code != http.StatusOK {
		t.Fatalf("other symbol status %d", rec.Code)
	}
	if len(eng.trained) != 2 {
		t.Fatalf("trained %v", eng.trained)
	}
}

func TestPretrainAllRoute(t *testing.T) {
	eng := &stubEngine{watchlist: []string{"AAPL", "MSFT"}}
	e, _ := newTestServer(eng)

	if rec, _ := do(t, e, http.MethodPost, "/api/stock/pretrain_all", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("status %d", rec.Code)
	}
	if rec, _ := do(t, e, http.MethodPost, "/api/stock/pretrain_all", `{"symbols":["nvda"]}`); rec.Code != http.StatusAccepted {
		t.Fatalf("status %d", rec.Code)
	}
	if len(eng.pretrain) != 2 || len(eng.pretrain[0]) != 2 || len(eng.pretrain[1]) != 1 || eng.pretrain[1][0] != "NVDA" {
		t.Fatalf("submitted batches %v", eng.pretrain)
	}

	eng.busy = true
	if rec, _ := do(t, e, http.MethodPost, "/api/stock/pretrain_all", ""); rec.Code != http.StatusConflict {
		t.Fatalf("busy status %d", rec.Code)
	}
	if len(eng.pretrain) != 2 {
		t.Fatalf("busy engine must not accept a batch: %v", eng.pretrain)
	}
}

func TestTrainingAndMarketRoutes(t *testing.T) {
	e, _ := newTestServer(&stubEngine{})

	rec, env := do(t, e, http.MethodGet, "/api/stock/training/aapl", "")
	var st models.TrainingStatus
	if rec.Code != http.StatusOK || json.Unmarshal(env.Data, &st) != nil || st.Symbol != "AAPL" || st.State != models.StateTrained {
		t.Fatalf("training: %d %s", rec.Code, env.Data)
	}

	rec, env = do(t, e, http.MethodGet, "/api/stock/training", "")
	var list struct {
		Symbols []models.TrainingStatus `json:"symbols"`
	}
	if rec.Code != http.StatusOK || json.Unmarshal(env.Data, &list) != nil || len(list.Symbols) != 1 || list.Symbols[0].State != models.StateFailed {
		t.Fatalf("training list: %d %s", rec.Code, env.Data)
	}

	rec, env = do(t, e, http.MethodGet, "/api/market/status", "")
	var info util.MarketInfo
	if rec.Code != http.StatusOK || json.Unmarshal(env.Data, &info) != nil || info.Timezone != util.DefaultMarketTimezone {
		t.Fatalf("market: %d %s", rec.Code, env.Data)
	}
}

func TestHealthRoute(t *testing.T) {
	var fail bool
	e, h := newTestServer(&stubEngine{}, HealthCheck{Name: "artifacts", Check: func(context.Context) error {
		if fail {
			return errors.New("locked")
		}
		return nil
	}})

	status := func() string {
		_, env := do(t, e, http.MethodGet, "/api/health", "")
		var body struct {
			Status   string            `json:"status"`
			Services map[string]string `json:"services"`
		}
		if err := json.Unmarshal(env.Data, &body); err != nil {
			t.Fatalf("decode health: %v", err)
		}
		return body.Status
	}

	if got := status(); got != "starting" {
		t.Fatalf("got %s", got)
	}
	h.SetReady(true)
	if got := status(); got != "healthy" {
		t.Fatalf("got %s", got)
	}
	fail = true
	if got := status(); got != "degraded" {
		t.Fatalf("got %s", got)
	}
}
