package vector

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Zereker/storekit/pkg/mq"
	"github.com/Zereker/storekit/pkg/schema"
)

// Event types published by WithEvents.
const (
	EventAdded   = "vector.added"
	EventDeleted = "vector.deleted"
)

// Event describes a completed vector store mutation.
type Event struct {
	Type      string    `json:"type"`
	IndexID   string    `json:"index_id"`
	IDs       []string  `json:"ids,omitempty"`
	RefDocID  string    `json:"ref_doc_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type eventStore struct {
	Store
	queue  mq.MessageQueue
	topic  string
	logger *slog.Logger
}

// WithEvents publishes an Event to topic after every successful Add and Delete.
// Events are keyed by index id. A failed publish is logged and does not fail the mutation.
func WithEvents(store Store, queue mq.MessageQueue, topic string) Store {
	return &eventStore{
		Store:  store,
		queue:  queue,
		topic:  topic,
		logger: slog.Default().With("module", "vector.events", "topic", topic),
	}
}

func (s *eventStore) Add(ctx context.Context, nodes []schema.Node) ([]string, error) {
	ids, err := s.Store.Add(ctx, nodes)
	if err != nil || len(ids) == 0 {
		return ids, err
	}
	s.publish(Event{Type: EventAdded, IDs: ids})
	return ids, nil
}

func (s *eventStore) Delete(ctx context.Context, refDocID string, opts ...DeleteOption) error {
	if err := s.Store.Delete(ctx, refDocID, opts...); err != nil {
		return err
	}
	s.publish(Event{Type: EventDeleted, RefDocID: refDocID})
	return nil
}

func (s *eventStore) publish(evt Event) {
	evt.IndexID = s.IndexID()
	evt.Timestamp = time.Now().UTC()

	payload, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error("failed to marshal event", "type", evt.Type, "error", err)
		return
	}
	if err := mq.PublishKeyed(s.queue, s.topic, evt.IndexID, payload); err != nil {
		s.logger.Warn("failed to publish event", "type", evt.Type, "error", err)
	}
}
