package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/dshills/pixelstorm/internal/event/topic"
)

// Document topics published by the engine.
const (
	TopicCelAdded      topic.Topic = "doc.cel.added"
	TopicCelRemoved    topic.Topic = "doc.cel.removed"
	TopicCelMoved      topic.Topic = "doc.cel.moved"
	TopicCelChanged    topic.Topic = "doc.cel.changed"
	TopicLayerAdded    topic.Topic = "doc.layer.added"
	TopicLayerRemoved  topic.Topic = "doc.layer.removed"
	TopicLayerMoved    topic.Topic = "doc.layer.moved"
	TopicLayerChanged  topic.Topic = "doc.layer.changed"
	TopicFrameAdded    topic.Topic = "doc.frame.added"
	TopicFrameRemoved  topic.Topic = "doc.frame.removed"
	TopicFrameChanged  topic.Topic = "doc.frame.changed"
	TopicSpriteChanged topic.Topic = "doc.sprite.changed"
	TopicImageChanged  topic.Topic = "doc.sprite.image"
	TopicMaskChanged   topic.Topic = "doc.mask.changed"
	TopicPaletteChange topic.Topic = "doc.palette.changed"
	TopicHistoryChange topic.Topic = "doc.history.changed"
	TopicDocSaved      topic.Topic = "doc.saved"
	TopicDocClosed     topic.Topic = "doc.closed"
)

// Event is one notification delivered to subscribers.
type Event struct {
	// Topic names what happened.
	Topic topic.Topic

	// Document identifies the document the event concerns.
	Document uuid.UUID

	// Payload carries event specific data, usually one of the payload
	// structs below.
	Payload any

	// Time is set by Publish when zero.
	Time time.Time

	// Seq is assigned by the bus in publish order.
	Seq uint64
}

// New creates an event for doc.
func New(t topic.Topic, doc uuid.UUID, payload any) Event {
	return Event{Topic: t, Document: doc, Payload: payload}
}

// ObjectPayload identifies the object an event refers to.
type ObjectPayload struct {
	ID    uint64
	Frame int
}

// HistoryPayload describes a history navigation.
type HistoryPayload struct {
	Action string
	Label  string
	State  uint64
}
