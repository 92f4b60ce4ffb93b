package kafka

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"strings"
	"syscall"

	kafkago "github.com/segmentio/kafka-go"

	apperrors "github.com/ETS-Next-Gen/writing-observer-sub002/errors"
)

// failure classifies a broker error by how the caller should react.
type failure int

const (
	failureNone failure = iota
	failureUnknown
	failureConnection // the broker or its leader is unreachable
	failureTransient  // the broker answered and asked for a retry
	failurePermanent  // retrying sends the same rejected request
)

// Protocol errors that mean no usable broker connection exists.
var unreachable = map[kafkago.Error]bool{
	kafkago.LeaderNotAvailable:    true,
	kafkago.NotLeaderForPartition: true,
	kafkago.BrokerNotAvailable:    true,
	kafkago.NetworkException:      true,
}

// Message fragments for errors kafka-go reports without a type, such as
// dial failures wrapped by the writer.
var connectionHints = []string{"connection refused", "connection reset", "broken pipe", "dial tcp", "no route to host"}

func classify(err error) failure {
	if err == nil {
		return failureNone
	}
	var kerr kafkago.Error
	if stderrors.As(err, &kerr) {
		switch {
		case unreachable[kerr]:
			return failureConnection
		case kerr.Temporary():
			return failureTransient
		default:
			return failurePermanent
		}
	}

	var nerr net.Error
	if stderrors.As(err, &nerr) ||
		stderrors.Is(err, io.ErrUnexpectedEOF) ||
		stderrors.Is(err, syscall.ECONNREFUSED) ||
		stderrors.Is(err, syscall.ECONNRESET) ||
		stderrors.Is(err, syscall.EPIPE) {
		return failureConnection
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range connectionHints {
		if strings.Contains(msg, hint) {
			return failureConnection
		}
	}
	return failureUnknown
}

// IsRetryableError reports whether retrying err may succeed.
func IsRetryableError(err error) bool {
	f := classify(err)
	return f == failureConnection || f == failureTransient
}

// FromKafka converts a broker error into an AppError tagged with topic.
// AppErrors pass through unchanged.
func FromKafka(err error, topic string) *apperrors.AppError {
	if appErr, ok := apperrors.AsAppError(err); ok || err == nil {
		return appErr
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(err)
	}

	var appErr *apperrors.AppError
	switch classify(err) {
	case failureConnection:
		appErr = apperrors.ServiceUnavailable("kafka")
	case failureTransient:
		appErr = apperrors.ServiceUnavailable("kafka")
		appErr.Message = "temporary broker failure"
	case failurePermanent:
		appErr = apperrors.InvalidInput("message", err.Error())
	default:
		return apperrors.Wrap(err)
	}
	return appErr.WithDetail("topic", topic).WithCause(err)
}
