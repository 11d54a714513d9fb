package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Client is the event bus as the service sees it: typed publishers for the
// events it emits and raw subscriptions for the ones it reacts to.
type Client interface {
	PublishProjectEvent(evt ProjectEvent) error
	PublishRankingUpdated(evt RankingUpdatedEvent) error
	Subscribe(subject string, handler func(subject string, data []byte)) error
	Close()
}

type NATSClient struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewNATSClient(ctx context.Context, url string, logger *slog.Logger) (*NATSClient, error) {
	nc, err := nats.Connect(url,
		nats.Name("portfolio"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	c := &NATSClient{conn: nc, js: js, logger: logger}
	if err := c.ensureStream(ctx); err != nil {
		logger.Warn("failed to ensure stream", "error", err)
	}
	return c, nil
}

func (c *NATSClient) ensureStream(ctx context.Context) error {
	maxAge, _ := time.ParseDuration(StreamMaxAge)
	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: StreamSubjects,
		MaxAge:   maxAge,
	})
	return err
}

func (c *NATSClient) PublishProjectEvent(evt ProjectEvent) error {
	msg, err := projectMsg(evt)
	if err != nil {
		return err
	}
	return c.conn.PublishMsg(msg)
}

func (c *NATSClient) PublishRankingUpdated(evt RankingUpdatedEvent) error {
	msg, err := newMsg(SubjectRankingUpdated, evt.Timestamp, evt)
	if err != nil {
		return err
	}
	return c.conn.PublishMsg(msg)
}

func projectMsg(evt ProjectEvent) (*nats.Msg, error) {
	subject, err := evt.Subject()
	if err != nil {
		return nil, err
	}
	return newMsg(subject, evt.Timestamp, evt)
}

// newMsg encodes v for subject. A non-zero timestamp becomes the JetStream
// message id, so a republished event is stored once.
func newMsg(subject string, ts time.Time, v interface{}) (*nats.Msg, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", subject, err)
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set("Content-Type", "application/json")
	if !ts.IsZero() {
		msg.Header.Set(nats.MsgIdHdr, fmt.Sprintf("%s@%d", subject, ts.UnixNano()))
	}
	return msg, nil
}

func (c *NATSClient) Subscribe(subject string, handler func(string, []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return err
	}
	c.subs = append(c.subs, sub)
	return nil
}

func (c *NATSClient) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
}
