package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitLogger(t *testing.T) {
	for _, env := range []string{"production", "development"} {
		require.NoError(t, InitLogger(&LogConfig{Level: "debug", Environment: env, ServiceName: "turn-service"}))
		assert.NotNil(t, GetLogger())
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("WARN"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

func TestZapConfig_Environment(t *testing.T) {
	prod := zapConfig(&LogConfig{Level: "error", Environment: "production"})
	assert.Equal(t, "json", prod.Encoding)
	assert.Equal(t, "timestamp", prod.EncoderConfig.TimeKey)
	assert.Equal(t, zapcore.ErrorLevel, prod.Level.Level())

	dev := zapConfig(&LogConfig{Environment: "development"})
	assert.Equal(t, "console", dev.Encoding)
	assert.Equal(t, zapcore.InfoLevel, dev.Level.Level())
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := WithContext(context.Background(), zap.New(core))

	FromContext(ctx).Info("dispatched")
	assert.Equal(t, 1, logs.FilterMessage("dispatched").Len())

	assert.NotNil(t, FromContext(context.Background()))
}

func TestMiddleware_LogsFinalStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("logger", zap.New(core))
			return next(c)
		}
	})
	e.Use(Middleware())
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, errors.New("nope"))
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	entries := logs.FilterMessage("HTTP Request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(http.StatusTeapot), entries[0].ContextMap()["status"])
}
