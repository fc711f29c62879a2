package mockkafka

import (
	"time"

	"github.com/hugolhafner/go-consumer/kafka"
)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithMaxFetchRecords sets the maximum number of records returned per Fetch
// call. Default is 10.
func WithMaxFetchRecords(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxFetchRecords = n
		}
	}
}

// WithFetchDelay adds an artificial delay to Fetch calls.
// This can be useful for testing timeout behavior or rate limiting.
func WithFetchDelay(d time.Duration) Option {
	return func(c *Client) {
		c.fetchDelay = d
	}
}

// WithFetchError configures an error to be returned by all Fetch calls.
func WithFetchError(err error) Option {
	return func(c *Client) {
		c.fetchErr = func(kafka.TopicPartition, int64) error { return err }
	}
}

// WithCommitError configures an error to be returned by all Commit calls.
func WithCommitError(err error) Option {
	return func(c *Client) {
		c.commitErr = func(map[kafka.TopicPartition]int64) error { return err }
	}
}

// WithProduceError configures an error to be returned by all Produce calls.
func WithProduceError(err error) Option {
	return func(c *Client) {
		c.produceErr = func(kafka.Record) error { return err }
	}
}
