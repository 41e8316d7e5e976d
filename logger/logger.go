// Package logger builds zap loggers and adapts them to fieldmigrate.Logger.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/getpup/fieldmigrate"
	zaplogfmt "github.com/jsternberg/zap-logfmt"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger writing to w with the default config (format "auto",
// level info). Config.New only fails on an unknown format, which the default
// config never has, so the error is dropped.
func New(w io.Writer) *zap.Logger {
	l, _ := NewConfig().New(w)
	return l
}

// New builds a logger writing to w at the configured level.
// Format "auto" picks the console encoder for terminals and JSON otherwise.
func (c Config) New(w io.Writer) (*zap.Logger, error) {
	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = func(ts time.Time, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(ts.UTC().Format(time.RFC3339))
	}
	config.EncodeDuration = func(d time.Duration, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(d.String())
	}

	format := c.Format
	if format == "auto" || format == "" {
		format = "json"
		if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			format = "console"
		}
	}

	var encoder zapcore.Encoder
	switch format {
	case "console":
		encoder = zapcore.NewConsoleEncoder(config)
	case "json":
		encoder = zapcore.NewJSONEncoder(config)
	case "logfmt":
		encoder = zaplogfmt.NewEncoder(config)
	default:
		return nil, fmt.Errorf("unknown log format %q: supported formats are auto, console, json, logfmt", c.Format)
	}

	return zap.New(zapcore.NewCore(
		encoder,
		zapcore.Lock(zapcore.AddSync(w)),
		c.Level,
	)), nil
}

// Adapter exposes a zap logger as a fieldmigrate.Logger.
type Adapter struct {
	log *zap.SugaredLogger
}

var _ fieldmigrate.Logger = (*Adapter)(nil)

// NewAdapter wraps l. A nil l logs nothing.
func NewAdapter(l *zap.Logger) *Adapter {
	if l == nil {
		l = zap.NewNop()
	}
	return &Adapter{log: l.Sugar()}
}

func (a *Adapter) Debug(_ context.Context, msg string, keyvals ...any) {
	a.log.Debugw(msg, keyvals...)
}

func (a *Adapter) Info(_ context.Context, msg string, keyvals ...any) {
	a.log.Infow(msg, keyvals...)
}

func (a *Adapter) Error(_ context.Context, msg string, keyvals ...any) {
	a.log.Errorw(msg, keyvals...)
}
