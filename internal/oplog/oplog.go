// Package oplog adapts the engine's operation callback onto zap.
package oplog

import (
	"context"

	"github.com/MarkoPoloResearchLab/creditmarket/pkg/market"
	"go.uber.org/zap"
)

// Logger emits one structured record per engine operation.
type Logger struct {
	base *zap.Logger
}

// New returns a Logger writing through the supplied zap logger.
func New(base *zap.Logger) *Logger {
	return &Logger{base: base}
}

// LogOperation implements market.OperationLogger.
func (logger *Logger) LogOperation(_ context.Context, entry market.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("actor", entry.Actor.String()),
		zap.String("status", entry.Status),
		zap.Int64("credits", entry.Credits),
		zap.Int64("native", entry.Native),
	}
	if !entry.Counterparty.IsZero() {
		fields = append(fields, zap.String("counterparty", entry.Counterparty.String()))
	}
	if entry.Fee != 0 {
		fields = append(fields, zap.Int64("fee", entry.Fee))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		logger.base.Warn("market operation rejected", fields...)
		return
	}
	logger.base.Info("market operation", fields...)
}
