package logger

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig selects level, encoding and the fields stamped on every entry.
// Environment "production" gives JSON output, anything else the console
// encoder.
type LogConfig struct {
	Level       string
	Environment string
	ServiceName string
}

var log *zap.Logger

// InitLogger builds the process logger and installs it as zap's global.
func InitLogger(cfg *LogConfig) error {
	built, err := zapConfig(cfg).Build(zap.Fields(
		zap.String("service", cfg.ServiceName),
		zap.String("environment", cfg.Environment),
	))
	if err != nil {
		return err
	}

	log = built
	zap.ReplaceGlobals(log)
	return nil
}

func zapConfig(cfg *LogConfig) zap.Config {
	var zc zap.Config
	if cfg.Environment == "production" {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "timestamp"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	return zc
}

// parseLevel accepts zap level names; unknown or empty input means info.
func parseLevel(s string) zapcore.Level {
	level, err := zapcore.ParseLevel(s)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// GetLogger returns the logger set by InitLogger, or zap's global (a no-op
// unless replaced) before that.
func GetLogger() *zap.Logger {
	if log == nil {
		return zap.L()
	}
	return log
}

// Middleware writes one access log entry per request, after the error
// handler has produced the final status.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			req := c.Request()
			FromEcho(c).Info("HTTP Request",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.String("route", c.Path()),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", c.RealIP()),
			)
			return nil
		}
	}
}
