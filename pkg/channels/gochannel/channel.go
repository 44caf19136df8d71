// Package gochannel provides an in-process pub/sub for a single galaxyflow process.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// DefaultBuffer holds enough lifecycle events for one launch with a slow
// subscriber: a handful of state changes plus one event per output.
const DefaultBuffer int64 = 256

// CreateChannel returns the same GoChannel as publisher and subscriber.
// Events published before Subscribe are lost. A non-positive buffer falls
// back to DefaultBuffer.
func CreateChannel(logger watermill.LoggerAdapter, buffer int64) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: buffer},
		logger,
	)

	return pubSub, pubSub, nil
}
