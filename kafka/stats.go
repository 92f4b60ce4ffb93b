package kafka

import (
	"fmt"
	"strings"

	kafkago "github.com/segmentio/kafka-go"
)

// Stats is a runner's traffic since its previous snapshot. kafka-go
// resets its counters on every read, so each health check reports the
// interval since the last one. Lag is absolute.
type Stats struct {
	Topic    string
	Messages int64
	Errors   int64
	Lag      int64
}

func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d msgs", s.Topic, s.Messages)
	if s.Errors > 0 {
		fmt.Fprintf(&b, ", %d errors", s.Errors)
	}
	if s.Lag > 0 {
		fmt.Fprintf(&b, ", lag %d", s.Lag)
	}
	return b.String()
}

func readerStats(topic string, rs kafkago.ReaderStats) Stats {
	return Stats{Topic: topic, Messages: rs.Messages, Errors: rs.Errors, Lag: rs.Lag}
}

func writerStats(topic string, ws kafkago.WriterStats) Stats {
	return Stats{Topic: topic, Messages: ws.Messages, Errors: ws.Errors}
}

// summarize joins runner stats into one health message.
func summarize(stats []Stats) string {
	parts := make([]string, len(stats))
	for i, s := range stats {
		parts[i] = s.String()
	}
	return strings.Join(parts, "; ")
}
