// Package kafka feeds activity events from Kafka into the reducer
// dispatcher and optionally forwards reducer updates to an output topic.
//
// It wraps segmentio/kafka-go readers and writers with TLS/SASL support,
// backoff on broker failures, and structured logging.
//
// # Architecture
//
//   - Consumer: reads one topic and hands each message to a MessageHandler
//   - EventHandler: decodes a message into a reducer.Event and dispatches it
//   - Producer / Forwarder: publishes reducer updates as JSON
//   - Component: owns consumers and the producer for the component registry
//
// # Configuration
//
//	kafka:
//	  enabled: true
//	  brokers: ["localhost:9092"]
//	  group_id: "observer"
//	  topics: ["activity-events"]
//	  updates_topic: "reducer-updates"
//
// # Event wire format
//
//	{"context": "org.mitclubs.writing", "dimensions": {"STUDENT": "s1"},
//	 "payload": {...}, "time": "2026-01-01T00:00:00Z"}
//
// The context falls back to the "event-context" header and the time to the
// message timestamp.
package kafka
