package cli

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// levelFlag is a pflag.Value writing a zap level through a pointer, so an
// Opt's DestP receives the parsed level from flags, env and config alike.
type levelFlag struct {
	p *zapcore.Level
}

func newLevelFlag(p *zapcore.Level, def zapcore.Level) levelFlag {
	*p = def
	return levelFlag{p: p}
}

func (f levelFlag) String() string {
	if f.p == nil {
		return zapcore.InfoLevel.String()
	}
	return f.p.String()
}

func (f levelFlag) Set(s string) error {
	level, err := zapcore.ParseLevel(s)
	if err != nil {
		return fmt.Errorf("invalid log level %q: want debug, info, warn or error", s)
	}
	*f.p = level
	return nil
}

func (levelFlag) Type() string {
	return "level"
}
