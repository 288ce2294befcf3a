package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"turn-service/internal/queue"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
)

// RedisNotifier appends every queue event to a Redis stream and publishes it
// to the queue room and the organization room.
type RedisNotifier struct {
	client        redis.Cmdable
	stream        string
	channelPrefix string
	maxLen        int64
}

// NewRedisNotifier creates a notifier. maxLen caps the stream approximately;
// zero leaves it unbounded.
func NewRedisNotifier(client redis.Cmdable, stream, channelPrefix string, maxLen int64) *RedisNotifier {
	return &RedisNotifier{
		client:        client,
		stream:        stream,
		channelPrefix: channelPrefix,
		maxLen:        maxLen,
	}
}

// QueueChannel is the room of a single queue
func (n *RedisNotifier) QueueChannel(orgID, categoryID string) string {
	return fmt.Sprintf("%s.queue.%s.%s", n.channelPrefix, orgID, categoryID)
}

// OrgChannel is the room of a whole organization
func (n *RedisNotifier) OrgChannel(orgID string) string {
	return fmt.Sprintf("%s.org.%s", n.channelPrefix, orgID)
}

// StreamArgs builds the XADD arguments for ev
func (n *RedisNotifier) StreamArgs(ev queue.Event) *redis.XAddArgs {
	ticketID := ""
	if ev.Ticket != nil {
		ticketID = ev.Ticket.ID
	}
	args := &redis.XAddArgs{
		Stream: n.stream,
		Values: []interface{}{
			"type", string(ev.Type),
			"organization_id", ev.OrganizationID,
			"category_id", ev.CategoryID,
			"ticket_id", ticketID,
			"waiting_count", len(ev.Waiting),
			"at", ev.At.UTC().Format(time.RFC3339Nano),
		},
	}
	if n.maxLen > 0 {
		args.MaxLen = n.maxLen
		args.Approx = true
	}
	return args
}

// Notify writes ev to the stream and both rooms. Every write is attempted;
// the errors are combined.
func (n *RedisNotifier) Notify(ctx context.Context, ev queue.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}

	var errs error
	if err := n.client.XAdd(ctx, n.StreamArgs(ev)).Err(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("xadd %s: %w", n.stream, err))
	}
	for _, channel := range []string{n.QueueChannel(ev.OrganizationID, ev.CategoryID), n.OrgChannel(ev.OrganizationID)} {
		if err := n.client.Publish(ctx, channel, string(payload)).Err(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("publish %s: %w", channel, err))
		}
	}
	return errs
}

// Nop drops every event. It is used when Redis is disabled.
type Nop struct{}

func (Nop) Notify(context.Context, queue.Event) error { return nil }
