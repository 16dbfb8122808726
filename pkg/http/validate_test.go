package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderReq struct {
	Symbol string  `json:"symbol" validate:"required,symbol"`
	Side   string  `json:"side" default:"buy" validate:"oneof=buy sell"`
	Price  float64 `json:"price" validate:"gt=0"`
}

func TestValidateStructAppliesDefaults(t *testing.T) {
	req := &orderReq{Symbol: "BTC/USDT", Price: 1}
	require.NoError(t, ValidateStruct(context.Background(), req))
	assert.Equal(t, "buy", req.Side)
}

func TestSymbolRule(t *testing.T) {
	for sym, ok := range map[string]bool{
		"BTC/USDT":              true,
		"eth-usd":               true,
		"AAPL":                  true,
		"BTC//USDT":             false,
		"/BTC":                  false,
		"BTC USDT":              false,
		strings.Repeat("A", 33): false,
	} {
		err := ValidateStruct(context.Background(), &orderReq{Symbol: sym, Price: 1})
		assert.Equal(t, ok, err == nil, sym)
	}
}

func TestReadAndValidateRequestReportsWireNames(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"symbol":"BTC/USDT","side":"hold"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	details := ReadAndValidateRequest(c, &orderReq{})
	errs, ok := details.([]ValidationError)
	require.True(t, ok)
	require.Len(t, errs, 2)

	byField := map[string]ValidationError{}
	for _, e := range errs {
		byField[e.Field] = e
	}
	assert.Equal(t, "ERR_ONEOF", byField["side"].Code)
	assert.Equal(t, []string{"buy", "sell"}, byField["side"].Params["options"])
	assert.Equal(t, "ERR_GT", byField["price"].Code)
}

func TestReadAndValidateRequestMalformedBody(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"symbol":`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	errs := ReadAndValidateRequest(c, &orderReq{}).([]ValidationError)
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_MALFORMED", errs[0].Code)
}
