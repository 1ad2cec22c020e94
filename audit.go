package shopauth

import (
	"io"

	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth/internal/audit"
)

type (
	AuditEvent = audit.Event
	AuditSink  = audit.Sink
	NoOpSink   = audit.NoOpSink
)

func NewChannelSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewZapSink writes audit events through logger.
func NewZapSink(logger *zap.Logger) *audit.ZapSink {
	return audit.NewZapSink(logger)
}
