package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/civicworks/assetgraph-backend/internal/platform/logger"
)

const (
	EventSyncCompleted     = "sync.completed"
	EventOrphansCleaned    = "sync.orphans_cleaned"
	EventHierarchyRebuilt  = "hierarchy.rebuilt"
)

// ChangeEvent is the cross-process change signal: other platform nodes
// subscribe to learn when the graph mirror or the forest moved.
type ChangeEvent struct {
	Type             string    `json:"type"`
	OrganisationID   string    `json:"organisation_id,omitempty"`
	RecordsProcessed int       `json:"records_processed,omitempty"`
	Generation       uint64    `json:"generation,omitempty"`
	At               time.Time `json:"at"`
}

type ChangeBus interface {
	Publish(ctx context.Context, ev ChangeEvent) error
	StartForwarder(ctx context.Context, onEvent func(ev ChangeEvent)) error
	Close() error
}

type changeBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

// NewChangeBus returns (nil, nil) when REDIS_ADDR is unset; the bus is an
// optional collaborator and callers must nil-check it.
func NewChangeBus(log *logger.Logger) (ChangeBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, nil
	}
	ch := strings.TrimSpace(os.Getenv("REDIS_CHANGE_CHANNEL"))
	if ch == "" {
		ch = "assetgraph.changes"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &changeBus{
		log:     log.With("client", "RedisChangeBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *changeBus) Publish(ctx context.Context, ev ChangeEvent) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("change bus not initialized")
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *changeBus) StartForwarder(ctx context.Context, onEvent func(ev ChangeEvent)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("change bus not initialized")
	}
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				var ev ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.log.Warn("dropping malformed change event", "error", err)
					continue
				}
				onEvent(ev)
			}
		}
	}()
	return nil
}

func (b *changeBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
