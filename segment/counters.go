package segment

import "sync/atomic"

type sourceCounters struct {
	received  atomic.Int64
	decodeErr atomic.Int64
	reconnect atomic.Int64
	sequence  atomic.Int64
}

func (c *sourceCounters) snapshot() SourceMetrics {
	return SourceMetrics{
		ReceivedEvents: c.received.Load(),
		DecodeErrors:   c.decodeErr.Load(),
		ReconnectCount: c.reconnect.Load(),
		LastSequence:   c.sequence.Load(),
	}
}
