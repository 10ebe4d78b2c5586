package notifications

import (
	"context"

	"github.com/ducminhle1904/crypto-paper-risk/internal/logger"
)

// LogSink writes notifications to a logger
type LogSink struct {
	logger *logger.Logger
}

// NewLogSink creates a sink that logs through log
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

// SendNotification logs n at a level matching its urgency
func (s *LogSink) SendNotification(_ context.Context, n Notification) error {
	switch n.Level {
	case LevelCritical:
		s.logger.Critical("[%s] %s %s", n.Type, n.Symbol, n.Message)
	case LevelWarning:
		s.logger.Warning("[%s] %s %s", n.Type, n.Symbol, n.Message)
	default:
		s.logger.Info("[%s] %s %s", n.Type, n.Symbol, n.Message)
	}
	return nil
}
