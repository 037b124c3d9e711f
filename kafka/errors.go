package kafka

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/twmb/franz-go/pkg/kerr"
)

var ErrClientClosed = errors.New("kafka client closed")

// IsTopicAlreadyExists reports whether err is the broker's TOPIC_ALREADY_EXISTS
// response to a create-topic request.
func IsTopicAlreadyExists(err error) bool {
	return errors.Is(err, kerr.TopicAlreadyExists)
}

// IsTransient reports whether err is a connectivity or timeout failure that is
// expected to clear on its own.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return kerr.IsRetriable(err)
}
