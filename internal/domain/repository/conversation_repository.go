package repository

import (
	"context"

	"lotedd/internal/domain/entity"
)

// MessagePage is one newest-first page of a conversation's message log.
// NextCursor is an opaque position token; empty means the log is exhausted.
type MessagePage struct {
	Messages   []*entity.Message
	NextCursor string
}

type ConversationRepository interface {
	Create(ctx context.Context, conversation *entity.Conversation) error
	GetByID(ctx context.Context, id string) (*entity.Conversation, error)
	GetByParticipantKey(ctx context.Context, key string) (*entity.Conversation, error)
	ListByParticipantID(ctx context.Context, canonicalID string, limit, offset int) ([]*entity.Conversation, int64, error)
	UpdateRelatedEntity(ctx context.Context, conversationID string, related *entity.RelatedEntity) error

	// AppendMessage persists the message and applies its unread accounting
	// (lastMessage, updatedAt, per-recipient counter increments) as one
	// atomic batch: neither side is ever visible without the other.
	AppendMessage(ctx context.Context, conversation *entity.Conversation, message *entity.Message) error
	ListMessages(ctx context.Context, conversationID string, pageSize int, cursor string) (*MessagePage, error)
	GetMessageByID(ctx context.Context, conversationID, messageID string) (*entity.Message, error)

	// MarkRead atomically zeroes the reader's unread counter and flips the
	// read flag on every unread message not authored by the reader.
	MarkRead(ctx context.Context, conversationID, canonicalID string) error

	// DeleteMessage removes a message. Moderation removal is the only
	// delete path in this module.
	DeleteMessage(ctx context.Context, conversationID, messageID string) error

	// Watch methods return a channel fed by the store's change
	// subscription plus a stop handle releasing the listener. The channel
	// is closed on stop or on a store-level listener failure.
	WatchConversation(ctx context.Context, id string) (<-chan *entity.Conversation, func(), error)
	WatchConversations(ctx context.Context, canonicalID string) (<-chan []*entity.Conversation, func(), error)
	WatchMessages(ctx context.Context, conversationID string, limit int) (<-chan []*entity.Message, func(), error)
}
