package orchestrator

import "go.uber.org/zap"

// ZapLogger adapts a *zap.SugaredLogger to this package's Logger facade,
// the production backend behind the teacher's own Logger/NoOpLogger shape.
type ZapLogger struct {
	s *zap.SugaredLogger
}

// NewZapLogger wraps an existing zap logger.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	return &ZapLogger{s: l.Sugar()}
}

func (z *ZapLogger) Debug(msg string, args ...interface{}) { z.s.Debugw(msg, args...) }
func (z *ZapLogger) Info(msg string, args ...interface{})  { z.s.Infow(msg, args...) }
func (z *ZapLogger) Warn(msg string, args ...interface{})  { z.s.Warnw(msg, args...) }
func (z *ZapLogger) Error(msg string, args ...interface{}) { z.s.Errorw(msg, args...) }
