package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runMiddleware(t *testing.T, handlerErr error) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := Middleware()(func(echo.Context) error { return handlerErr })(c)
	return rec, err
}

func TestMiddleware_StructuredErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   ErrorType
	}{
		{"validation", ValidationError("bad"), http.StatusBadRequest, TypeValidation},
		{"rate limited", RateLimitedError("slow down").WithField("reason", "rate"), http.StatusTooManyRequests, TypeRateLimited},
		{"unavailable", UnavailableError("full", nil), http.StatusServiceUnavailable, TypeUnavailable},
		{"plain error becomes internal", errors.New("kaboom"), http.StatusInternalServerError, TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(HTTPErrorsTotal.WithLabelValues(string(tt.wantType)))

			rec, err := runMiddleware(t, tt.err)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantType, resp.Type)

			after := testutil.ToFloat64(HTTPErrorsTotal.WithLabelValues(string(tt.wantType)))
			assert.Equal(t, before+1, after)
		})
	}
}

func TestMiddleware_InternalHidesCause(t *testing.T) {
	rec, err := runMiddleware(t, errors.New("secret detail"))
	require.NoError(t, err)
	assert.NotContains(t, rec.Body.String(), "secret detail")
}

func TestMiddleware_NoError(t *testing.T) {
	rec, err := runMiddleware(t, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestMiddleware_PassesEchoHTTPError(t *testing.T) {
	httpErr := echo.NewHTTPError(http.StatusNotFound, "no route")
	before := testutil.ToFloat64(HTTPErrorsTotal.WithLabelValues(string(TypeNotFound)))

	_, err := runMiddleware(t, httpErr)
	assert.Same(t, httpErr, err)
	assert.Equal(t, before+1, testutil.ToFloat64(HTTPErrorsTotal.WithLabelValues(string(TypeNotFound))))
}

func TestMiddleware_SkipsCommittedResponse(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := Middleware()(func(c echo.Context) error {
		c.Response().WriteHeader(http.StatusSwitchingProtocols)
		return InternalError("attach failed", nil)
	})(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusSwitchingProtocols, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestWrapHTTPError(t *testing.T) {
	tests := []struct {
		code     int
		message  any
		wantType ErrorType
		wantMsg  string
	}{
		{http.StatusBadRequest, "bad", TypeValidation, "bad"},
		{http.StatusNotFound, nil, TypeNotFound, "Not Found"},
		{http.StatusMethodNotAllowed, "nope", TypeNotFound, "nope"},
		{http.StatusTooManyRequests, 42, TypeRateLimited, "Too Many Requests"},
		{http.StatusServiceUnavailable, "down", TypeUnavailable, "down"},
		{http.StatusTeapot, "tea", TypeInternal, "tea"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			httpErr := &echo.HTTPError{Code: tt.code, Message: tt.message}
			got := WrapHTTPError(httpErr)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantMsg, got.Message)
		})
	}
}

func TestWrapHTTPError_KeepsInternalCause(t *testing.T) {
	cause := errors.New("upgrade failed")
	httpErr := echo.NewHTTPError(http.StatusBadRequest, "bad handshake").SetInternal(cause)

	assert.ErrorIs(t, WrapHTTPError(httpErr), cause)
}
