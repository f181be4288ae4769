// Package logadapter provides adapters so existing logger libraries can
// satisfy util.Logger without bramble writing its own logging backend.
package logadapter

import (
	"go.uber.org/zap"

	"github.com/brambledb/bramble/util"
)

// Zap wraps a *zap.Logger to implement util.Logger.
type Zap struct {
	logger *zap.Logger
}

// NewZap adapts a zap.Logger.
func NewZap(logger *zap.Logger) util.Logger {
	return &Zap{logger: logger}
}

func (z *Zap) Debug(msg string, args ...any) {
	z.logger.Sugar().Debugw(msg, args...)
}

func (z *Zap) Info(msg string, args ...any) {
	z.logger.Sugar().Infow(msg, args...)
}

func (z *Zap) Warn(msg string, args ...any) {
	z.logger.Sugar().Warnw(msg, args...)
}

func (z *Zap) Error(msg string, args ...any) {
	z.logger.Sugar().Errorw(msg, args...)
}
