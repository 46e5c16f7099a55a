package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/loupe-analytics/loupe/internal/database"
	"github.com/loupe-analytics/loupe/internal/logging"
)

// ChannelName is the Postgres NOTIFY channel carrying event payloads. Going
// through the database rather than in-process channels keeps every replica
// of the server in sync.
const ChannelName = "loupe_events"

// EventPayload is the realtime message pushed to dashboard sockets.
type EventPayload struct {
	Kind      string    `json:"kind"`
	SiteID    string    `json:"siteId"`
	Pathname  string    `json:"pathname"`
	EventName string    `json:"eventName,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewEventPayload builds the notification for one accepted event.
func NewEventPayload(kind string, siteID uuid.UUID, pathname, eventName string, createdAt time.Time) EventPayload {
	return EventPayload{
		Kind:      kind,
		SiteID:    siteID.String(),
		Pathname:  pathname,
		EventName: eventName,
		CreatedAt: createdAt,
	}
}

// NotifyEvent publishes a payload on the NOTIFY channel. Failures are logged
// and swallowed; realtime delivery is best effort and never fails ingestion.
func NotifyEvent(ctx context.Context, payload EventPayload) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.L().Warn("failed to marshal realtime payload", zap.Error(err))
		return
	}

	if _, err := database.DB.ExecContext(ctx, "SELECT pg_notify($1, $2)", ChannelName, string(data)); err != nil {
		logging.L().Warn("failed to send realtime notification", zap.Error(err))
	}
}

// StartListener subscribes to the NOTIFY channel and relays payloads into
// the hub until ctx is cancelled.
func StartListener(ctx context.Context, databaseURL string, hub *Hub) error {
	log := logging.With(zap.String("channel", ChannelName))

	listener := pq.NewListener(databaseURL, 5*time.Second, time.Minute, func(event pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn("realtime listener event", zap.Int("event", int(event)), zap.Error(err))
		}
	})

	if err := listener.Listen(ChannelName); err != nil {
		return err
	}

	go func() {
		defer func() {
			_ = listener.Close()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case n := <-listener.Notify:
				if n == nil {
					continue
				}
				hub.Broadcast([]byte(n.Extra))
			case <-time.After(time.Minute):
				if err := listener.Ping(); err != nil {
					log.Warn("realtime listener ping failed", zap.Error(err))
				}
			}
		}
	}()

	return nil
}
