package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dreschagin/monitor-dw/pkg/logger"
	"github.com/nats-io/nats.go"
)

const (
	// StreamName is the JetStream stream that stores monitor events.
	StreamName = "MONITOR_DW"

	streamMaxAge  = 7 * 24 * time.Hour
	flushDeadline = 5 * time.Second
)

// StreamSubjects covers every subject published by the service.
var StreamSubjects = []string{"monitor.>"}

// NATSPublisher implements port.EventPublisher on NATS JetStream.
type NATSPublisher struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	logger *logger.Logger
}

// NewNATSPublisher connects to NATS and makes sure the event stream exists.
func NewNATSPublisher(natsURL string, log *logger.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("monitor-dw"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream(nats.PublishAsyncMaxPending(256))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	if err := ensureStream(js); err != nil {
		log.Warn("JetStream stream is not available, events may be dropped", "stream", StreamName, "error", err.Error())
	}

	log.Info("Connected to NATS", "url", natsURL, "stream", StreamName)

	return &NATSPublisher{
		nc:     nc,
		js:     js,
		logger: log,
	}, nil
}

func streamConfig() *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:      StreamName,
		Subjects:  StreamSubjects,
		Retention: nats.LimitsPolicy,
		MaxAge:    streamMaxAge,
		Storage:   nats.FileStorage,
	}
}

func ensureStream(js nats.JetStreamContext) error {
	_, err := js.StreamInfo(StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = js.AddStream(streamConfig())
	return err
}

// PublishEvent publishes an event asynchronously. Acks are awaited on Close.
func (p *NATSPublisher) PublishEvent(ctx context.Context, subject string, event interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set("Content-Type", "application/json")

	if _, err := p.js.PublishMsgAsync(msg); err != nil {
		p.logger.Error("Failed to publish event", err, "subject", subject)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Event published",
		"subject", subject,
		"size", len(data),
	)

	return nil
}

// Close waits briefly for pending acks and drains the connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}

	select {
	case <-p.js.PublishAsyncComplete():
	case <-time.After(flushDeadline):
		p.logger.Warn("Timed out waiting for NATS acks", "pending", p.js.PublishAsyncPending())
	}

	p.logger.Info("Closing NATS connection")
	return p.nc.Drain()
}
