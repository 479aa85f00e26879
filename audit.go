package authgate

import (
	"io"

	"github.com/MrEthical07/authgate/internal/audit"
	"go.uber.org/zap"
)

// AuditEvent is one security-relevant occurrence emitted by the Engine.
type AuditEvent = audit.Event

// AuditSink receives audit events on the dispatcher goroutine.
type AuditSink = audit.Sink

// AuditSinkFunc adapts a function to AuditSink.
type AuditSinkFunc = audit.SinkFunc

type ChannelSink = audit.ChannelSink

// JSONLinesSink writes one JSON object per line.
type JSONLinesSink = audit.JSONLinesSink

// ZapSink logs audit events through zap.
type ZapSink = audit.ZapSink

func NewChannelSink(size int) *ChannelSink {
	return audit.NewChannelSink(size)
}

func NewJSONLinesSink(w io.Writer) *JSONLinesSink {
	return audit.NewJSONLinesSink(w)
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	return audit.NewZapSink(logger)
}
