package repository

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"lotedd/internal/domain/entity"
	"lotedd/internal/domain/repository"
	"lotedd/pkg/errors"
	"lotedd/pkg/logger"
)

type firestoreConversationRepository struct {
	client *firestore.Client
}

func NewFirestoreConversationRepository(client *firestore.Client) repository.ConversationRepository {
	return &firestoreConversationRepository{
		client: client,
	}
}

func (r *firestoreConversationRepository) conversations() *firestore.CollectionRef {
	return r.client.Collection("conversations")
}

func (r *firestoreConversationRepository) messages(conversationID string) *firestore.CollectionRef {
	return r.conversations().Doc(conversationID).Collection("messages")
}

func (r *firestoreConversationRepository) Create(ctx context.Context, conversation *entity.Conversation) error {
	if conversation.ID == "" {
		conversation.ID = uuid.New().String()
	}
	if conversation.ParticipantKey == "" {
		conversation.ParticipantKey = entity.ParticipantKey(conversation.ParticipantIDs)
	}

	now := time.Now()
	conversation.CreatedAt = now
	conversation.UpdatedAt = now

	_, err := r.conversations().Doc(conversation.ID).Set(ctx, conversation)
	if err != nil {
		return errors.Store("Failed to create conversation", err)
	}

	return nil
}

func (r *firestoreConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	doc, err := r.conversations().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Conversation", nil)
		}
		return nil, errors.Store("Failed to get conversation", err)
	}

	var conversation entity.Conversation
	if err := doc.DataTo(&conversation); err != nil {
		return nil, errors.Store("Failed to parse conversation data", err)
	}

	return &conversation, nil
}

func (r *firestoreConversationRepository) GetByParticipantKey(ctx context.Context, key string) (*entity.Conversation, error) {
	query := r.conversations().Where("participantKey", "==", key).Limit(1)
	iter := query.Documents(ctx)
	doc, err := iter.Next()
	if err != nil {
		if err == iterator.Done {
			return nil, errors.NotFound("Conversation", nil)
		}
		return nil, errors.Store("Failed to query conversation by participant key", err)
	}

	var conversation entity.Conversation
	if err := doc.DataTo(&conversation); err != nil {
		return nil, errors.Store("Failed to parse conversation data", err)
	}

	return &conversation, nil
}

func (r *firestoreConversationRepository) ListByParticipantID(ctx context.Context, canonicalID string, limit, offset int) ([]*entity.Conversation, int64, error) {
	query := r.conversations().Where("participantIds", "array-contains", canonicalID).OrderBy("updatedAt", firestore.Desc)

	allDocs, err := query.Documents(ctx).GetAll()
	if err != nil {
		logger.Error("Firestore error while fetching conversations for %s: %v", canonicalID, err)
		return nil, 0, errors.Store("Failed to fetch conversations", err)
	}

	total := int64(len(allDocs))

	// Pagination applied in-memory to keep it a single store query
	start := offset
	end := len(allDocs)
	if limit > 0 {
		end = start + limit
		if end > len(allDocs) {
			end = len(allDocs)
		}
	}
	if start > len(allDocs) {
		start = len(allDocs)
	}

	var conversations []*entity.Conversation
	for i := start; i < end; i++ {
		var conversation entity.Conversation
		if err := allDocs[i].DataTo(&conversation); err != nil {
			logger.Warn("Skipping malformed conversation document %s: %v", allDocs[i].Ref.ID, err)
			continue
		}
		conversations = append(conversations, &conversation)
	}

	return conversations, total, nil
}

func (r *firestoreConversationRepository) UpdateRelatedEntity(ctx context.Context, conversationID string, related *entity.RelatedEntity) error {
	_, err := r.conversations().Doc(conversationID).Update(ctx, []firestore.Update{
		{Path: "relatedEntity", Value: related},
		{Path: "updatedAt", Value: time.Now()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Conversation", nil)
		}
		return errors.Store("Failed to update related entity", err)
	}
	return nil
}

// AppendMessage writes the message document and the conversation's
// lastMessage/updatedAt/unread updates in one transaction. Counters are
// bumped with firestore.Increment so concurrent senders converge without a
// read-modify-write cycle.
func (r *firestoreConversationRepository) AppendMessage(ctx context.Context, conversation *entity.Conversation, message *entity.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	convRef := r.conversations().Doc(conversation.ID)
	msgRef := r.messages(conversation.ID).Doc(message.ID)

	updates := []firestore.Update{
		{Path: "lastMessage", Value: &entity.LastMessage{
			Text:      message.Text,
			SenderID:  message.SenderID,
			CreatedAt: message.CreatedAt,
		}},
		{Path: "updatedAt", Value: message.CreatedAt},
	}
	for _, participantID := range conversation.ParticipantIDs {
		if participantID == message.SenderID {
			continue
		}
		updates = append(updates, firestore.Update{
			FieldPath: firestore.FieldPath{"unreadCounts", participantID},
			Value:     firestore.Increment(1),
		})
	}

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Set(msgRef, message); err != nil {
			return err
		}
		return tx.Update(convRef, updates)
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Conversation", nil)
		}
		return errors.Store("Failed to append message", err)
	}

	return nil
}

// messageCursor encodes a position in the creation-order sequence as the
// pair (createdAt, id) of the last message already delivered.
func encodeMessageCursor(m *entity.Message) string {
	raw := fmt.Sprintf("%s|%s", m.CreatedAt.UTC().Format(time.RFC3339Nano), m.ID)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

func decodeMessageCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", err
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", fmt.Errorf("malformed cursor")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", err
	}
	return createdAt, parts[1], nil
}

func (r *firestoreConversationRepository) ListMessages(ctx context.Context, conversationID string, pageSize int, cursor string) (*repository.MessagePage, error) {
	query := r.messages(conversationID).
		OrderBy("createdAt", firestore.Desc).
		OrderBy("id", firestore.Desc)

	if cursor != "" {
		createdAt, id, err := decodeMessageCursor(cursor)
		if err != nil {
			return nil, errors.Validation("Invalid message cursor", err)
		}
		query = query.StartAfter(createdAt, id)
	}

	iter := query.Limit(pageSize).Documents(ctx)
	var messages []*entity.Message

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			logger.Error("Firestore error while iterating messages for conversation %s: %v", conversationID, err)
			return nil, errors.Store("Failed to iterate messages", err)
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			logger.Warn("Skipping malformed message document %s: %v", doc.Ref.ID, err)
			continue
		}
		messages = append(messages, &message)
	}

	page := &repository.MessagePage{Messages: messages}
	if len(messages) == pageSize && pageSize > 0 {
		page.NextCursor = encodeMessageCursor(messages[len(messages)-1])
	}

	return page, nil
}

func (r *firestoreConversationRepository) GetMessageByID(ctx context.Context, conversationID, messageID string) (*entity.Message, error) {
	doc, err := r.messages(conversationID).Doc(messageID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Message", nil)
		}
		return nil, errors.Store("Failed to get message", err)
	}

	var message entity.Message
	if err := doc.DataTo(&message); err != nil {
		return nil, errors.Store("Failed to parse message data", err)
	}
	return &message, nil
}

// MarkRead zeroes the reader's counter and flips the read flag on every
// unread message authored by someone else, all in one transaction.
// updatedAt is left alone so marking read never reorders the list.
func (r *firestoreConversationRepository) MarkRead(ctx context.Context, conversationID, canonicalID string) error {
	convRef := r.conversations().Doc(conversationID)
	unreadQuery := r.messages(conversationID).Where("read", "==", false)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docs, err := tx.Documents(unreadQuery).GetAll()
		if err != nil {
			return err
		}

		// senderId filtered in memory to avoid a composite index
		var foreign []*firestore.DocumentRef
		for _, doc := range docs {
			var message entity.Message
			if err := doc.DataTo(&message); err != nil {
				continue
			}
			if message.SenderID != canonicalID {
				foreign = append(foreign, doc.Ref)
			}
		}

		for _, ref := range foreign {
			if err := tx.Update(ref, []firestore.Update{
				{Path: "read", Value: true},
			}); err != nil {
				return err
			}
		}

		return tx.Update(convRef, []firestore.Update{
			{FieldPath: firestore.FieldPath{"unreadCounts", canonicalID}, Value: int64(0)},
		})
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Conversation", nil)
		}
		return errors.Store("Failed to mark conversation read", err)
	}

	return nil
}

func (r *firestoreConversationRepository) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	_, err := r.messages(conversationID).Doc(messageID).Delete(ctx)
	if err != nil {
		return errors.Store("Failed to delete message", err)
	}
	return nil
}

func (r *firestoreConversationRepository) WatchConversation(ctx context.Context, id string) (<-chan *entity.Conversation, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	iter := r.conversations().Doc(id).Snapshots(ctx)
	out := make(chan *entity.Conversation, 8)

	go func() {
		defer close(out)
		defer iter.Stop()
		for {
			snap, err := iter.Next()
			if err != nil {
				if status.Code(err) != codes.Canceled {
					logger.Error("Conversation listener for %s stopped: %v", id, err)
				}
				return
			}
			if !snap.Exists() {
				continue
			}

			var conversation entity.Conversation
			if err := snap.DataTo(&conversation); err != nil {
				logger.Warn("Skipping malformed conversation snapshot %s: %v", id, err)
				continue
			}

			select {
			case out <- &conversation:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, cancel, nil
}

func (r *firestoreConversationRepository) WatchConversations(ctx context.Context, canonicalID string) (<-chan []*entity.Conversation, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	query := r.conversations().Where("participantIds", "array-contains", canonicalID).OrderBy("updatedAt", firestore.Desc)
	iter := query.Snapshots(ctx)
	out := make(chan []*entity.Conversation, 8)

	go func() {
		defer close(out)
		defer iter.Stop()
		for {
			snap, err := iter.Next()
			if err != nil {
				if status.Code(err) != codes.Canceled {
					logger.Error("Conversation list listener for %s stopped: %v", canonicalID, err)
				}
				return
			}

			docs, err := snap.Documents.GetAll()
			if err != nil {
				logger.Error("Failed to read conversation list snapshot for %s: %v", canonicalID, err)
				return
			}

			conversations := make([]*entity.Conversation, 0, len(docs))
			for _, doc := range docs {
				var conversation entity.Conversation
				if err := doc.DataTo(&conversation); err != nil {
					continue
				}
				conversations = append(conversations, &conversation)
			}

			select {
			case out <- conversations:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, cancel, nil
}

func (r *firestoreConversationRepository) WatchMessages(ctx context.Context, conversationID string, limit int) (<-chan []*entity.Message, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	query := r.messages(conversationID).OrderBy("createdAt", firestore.Desc)
	if limit > 0 {
		query = query.Limit(limit)
	}
	iter := query.Snapshots(ctx)
	out := make(chan []*entity.Message, 8)

	go func() {
		defer close(out)
		defer iter.Stop()
		for {
			snap, err := iter.Next()
			if err != nil {
				if status.Code(err) != codes.Canceled {
					logger.Error("Message listener for conversation %s stopped: %v", conversationID, err)
				}
				return
			}

			docs, err := snap.Documents.GetAll()
			if err != nil {
				logger.Error("Failed to read message snapshot for conversation %s: %v", conversationID, err)
				return
			}

			messages := make([]*entity.Message, 0, len(docs))
			for _, doc := range docs {
				var message entity.Message
				if err := doc.DataTo(&message); err != nil {
					continue
				}
				messages = append(messages, &message)
			}

			select {
			case out <- messages:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, cancel, nil
}
