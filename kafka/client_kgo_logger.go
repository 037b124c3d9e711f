package kafka

import (
	"github.com/hugolhafner/go-kcore/logger"
	"github.com/twmb/franz-go/pkg/kgo"
)

var _ kgo.Logger = (*kgoLogger)(nil)

// kgoLogger routes franz-go client logs into a logger.Logger. franz-go logs
// connection lifecycle at info, which is demoted to debug here.
type kgoLogger struct {
	l logger.Logger
}

func newKgoLogger(l logger.Logger) *kgoLogger {
	return &kgoLogger{l: l.With("component", "franz-go")}
}

func (kl *kgoLogger) Level() kgo.LogLevel {
	switch kl.l.Level() {
	case logger.DebugLevel:
		return kgo.LogLevelDebug
	case logger.InfoLevel, logger.WarnLevel:
		return kgo.LogLevelWarn
	case logger.ErrorLevel:
		return kgo.LogLevelError
	default:
		return kgo.LogLevelWarn
	}
}

func (kl *kgoLogger) Log(level kgo.LogLevel, msg string, kv ...any) {
	switch level {
	case kgo.LogLevelNone:
		return
	case kgo.LogLevelError:
		kl.l.Error(msg, kv...)
	case kgo.LogLevelWarn:
		kl.l.Warn(msg, kv...)
	default:
		kl.l.Debug(msg, kv...)
	}
}
