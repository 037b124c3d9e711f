package mockkafka

import (
	"time"
)

// Option is a functional option for configuring a mock Client.
type Option func(*Client)

// WithGroupID sets the group id reported by GroupID.
func WithGroupID(id string) Option {
	return func(c *Client) {
		c.groupID = id
	}
}

// WithMaxPollRecords sets the maximum number of records returned per Poll call.
// Default is 10.
func WithMaxPollRecords(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPollRecords = n
		}
	}
}

// WithPollDelay adds an artificial delay to Poll calls, capped at the poll timeout.
func WithPollDelay(d time.Duration) Option {
	return func(c *Client) {
		c.pollDelay = d
	}
}

// WithResetOffset sets the offset offered for partitions without a committed
// offset. Default is kafka.OffsetBeginning.
func WithResetOffset(offset int64) Option {
	return func(c *Client) {
		c.resetOffset = offset
	}
}

// WithDeliveryDelay makes Produce deliver asynchronously after d.
func WithDeliveryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.deliveryDelay = d
	}
}

// WithCreateTopicDelay delays every CreateTopic call, widening race windows.
func WithCreateTopicDelay(d time.Duration) Option {
	return func(c *Client) {
		c.createDelay = d
	}
}

// WithSendError configures an error to be returned by all deliveries.
func WithSendError(err error) Option {
	return func(c *Client) {
		c.sendErr = func(string, []byte, []byte) error { return err }
	}
}

// WithPollError configures an error to be returned by all Poll calls.
func WithPollError(err error) Option {
	return func(c *Client) {
		c.pollErr = func() error { return err }
	}
}

// WithFlushError configures an error to be returned by Flush.
func WithFlushError(err error) Option {
	return func(c *Client) {
		c.flushErr = err
	}
}

// WithPingError configures an error to be returned by Ping.
func WithPingError(err error) Option {
	return func(c *Client) {
		c.pingErr = err
	}
}
