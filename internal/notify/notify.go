// Package notify implements the optional NATS commit-hint publisher:
// write.CommitNotifier lets the write pipeline ping a subject per
// committed persistence id so live tag/all-events/persistence-ids queries
// can poll a beat early instead of waiting a full refresh_interval. It is
// a single fire-and-forget subject whose payload is the persistence id,
// rather than a topic-per-event-type taxonomy.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Subject is the NATS subject commit hints are published on. Consumers
// subscribe to it directly; the payload is the persistence id.
const Subject = "sqljournal.commit"

// NoopNotifier discards every hint. Attaching it has the same effect as
// attaching no CommitNotifier at all (the pipeline's default when
// JOURNAL_NATS_URL is unset), leaving correctness to polling alone.
type NoopNotifier struct{}

func (NoopNotifier) NotifyCommit(persistenceID string) {}

// NATSNotifier publishes a commit hint for every committed persistence
// id. Publish failures are swallowed: a dropped hint only costs the
// subscriber one refresh_interval of extra latency, never correctness,
// so NotifyCommit has no error return to propagate.
type NATSNotifier struct {
	conn *nats.Conn
}

// NewNATSNotifier connects to url with unlimited reconnect attempts and
// returns a notifier ready for WithCommitNotifier.
func NewNATSNotifier(url string) (*NATSNotifier, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSNotifier{conn: nc}, nil
}

func (n *NATSNotifier) NotifyCommit(persistenceID string) {
	_ = n.conn.Publish(Subject, []byte(persistenceID))
}

func (n *NATSNotifier) Close() error {
	n.conn.Close()
	return nil
}

// Subscriber receives commit hints for live queries that want to wake
// up before their next refresh_interval tick.
type Subscriber struct {
	conn *nats.Conn
	sub  *nats.Subscription
}

// NewSubscriber connects to url and subscribes to Subject.
func NewSubscriber(ctx context.Context, url string) (*Subscriber, <-chan string, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}

	ch := make(chan string, 64)
	sub, err := nc.Subscribe(Subject, func(msg *nats.Msg) {
		select {
		case ch <- string(msg.Data):
		default:
			// Drop the hint if nobody is listening; the subscriber falls
			// back to its own refresh_interval.
		}
	})
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("subscribing to %s: %w", Subject, err)
	}
	if err := nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		nc.Close()
		return nil, nil, fmt.Errorf("flushing subscription: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
		nc.Close()
		close(ch)
	}()

	return &Subscriber{conn: nc, sub: sub}, ch, nil
}

func (s *Subscriber) Close() error {
	_ = s.sub.Unsubscribe()
	s.conn.Close()
	return nil
}
