package usecase

import (
	"context"

	"lotedd/internal/domain/entity"
	"lotedd/internal/domain/repository"
	"lotedd/internal/infrastructure/ratelimit"
	"lotedd/pkg/errors"
	"lotedd/pkg/identity"
	"lotedd/pkg/logger"
)

type ChatUseCase struct {
	conversationRepo repository.ConversationRepository
	userRepo         repository.UserRepository
	rateLimiter      *ratelimit.RateLimiter
}

func NewChatUseCase(
	conversationRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	rateLimiter *ratelimit.RateLimiter,
) *ChatUseCase {
	return &ChatUseCase{
		conversationRepo: conversationRepo,
		userRepo:         userRepo,
		rateLimiter:      rateLimiter,
	}
}

type ParticipantInput struct {
	ID          string
	DisplayName string
	Role        string
	AvatarURL   string
}

type ResolveConversationInput struct {
	Participants  []ParticipantInput
	RelatedEntity *entity.RelatedEntity
}

type SendMessageInput struct {
	ConversationID string
	Text           string
	Attachments    []entity.Attachment
}

func validRole(role string) bool {
	switch role {
	case entity.RoleBuyer, entity.RoleSeller, entity.RoleAdmin:
		return true
	}
	return false
}

func validRelatedEntityType(kind string) bool {
	switch kind {
	case entity.RelatedEntityOrder, entity.RelatedEntityProduct, entity.RelatedEntityGeneral:
		return true
	}
	return false
}

func validAttachmentType(kind string) bool {
	switch kind {
	case entity.AttachmentImage, entity.AttachmentDocument, entity.AttachmentProduct:
		return true
	}
	return false
}

// ResolveConversation finds the conversation for the given participant set
// or creates it on first contact. Two racing resolvers for the same pair may
// still both create; the stored participant key keeps the lookup stable
// either way.
func (uc *ChatUseCase) ResolveConversation(ctx context.Context, callerID string, input ResolveConversationInput) (*entity.Conversation, error) {
	caller := identity.Normalize(callerID)

	if allowed, waitTime := uc.rateLimiter.Allow(caller, ratelimit.ActionResolveConversation); !allowed {
		logger.Warn("ResolveConversation rate limited: caller %s must wait %v", caller, waitTime)
		return nil, errors.TooManyRequests("Rate limit exceeded. Please wait before starting another conversation")
	}

	if len(input.Participants) < 2 {
		return nil, errors.Validation("A conversation requires at least two participants", nil)
	}

	seen := make(map[string]bool, len(input.Participants))
	participants := make([]entity.Participant, 0, len(input.Participants))
	ids := make([]string, 0, len(input.Participants))

	for _, p := range input.Participants {
		canonicalID := identity.Normalize(p.ID)
		if canonicalID == "" {
			return nil, errors.Validation("Participant id is required", nil)
		}
		if p.DisplayName == "" {
			return nil, errors.Validation("Participant display name is required", nil)
		}
		if !validRole(p.Role) {
			return nil, errors.Validation("Participant role must be buyer, seller or admin", nil)
		}
		if seen[canonicalID] {
			continue
		}
		seen[canonicalID] = true
		participants = append(participants, entity.Participant{
			ID:          canonicalID,
			DisplayName: p.DisplayName,
			Role:        p.Role,
			AvatarURL:   p.AvatarURL,
		})
		ids = append(ids, canonicalID)
	}

	if len(participants) < 2 {
		return nil, errors.Validation("A conversation requires at least two distinct participants", nil)
	}
	if !seen[caller] {
		return nil, errors.Forbidden("Caller must be one of the conversation participants", nil)
	}
	if input.RelatedEntity != nil && !validRelatedEntityType(input.RelatedEntity.Type) {
		return nil, errors.Validation("Related entity type must be order, product or general", nil)
	}

	key := entity.ParticipantKey(ids)

	existing, err := uc.conversationRepo.GetByParticipantKey(ctx, key)
	if err == nil && existing != nil {
		// Refresh the related-entity context so an ongoing thread always
		// points at the latest subject being discussed.
		if input.RelatedEntity != nil {
			if updateErr := uc.conversationRepo.UpdateRelatedEntity(ctx, existing.ID, input.RelatedEntity); updateErr != nil {
				logger.Warn("ResolveConversation: failed to refresh related entity on %s: %v", existing.ID, updateErr)
			} else {
				existing.RelatedEntity = input.RelatedEntity
			}
		}
		return existing, nil
	}
	if err != nil && !errors.Is(err, "NOT_FOUND") {
		logger.Error("ResolveConversation: lookup by participant key failed: %v", err)
		return nil, err
	}

	conversation := &entity.Conversation{
		Participants:   participants,
		ParticipantIDs: ids,
		ParticipantKey: key,
		UnreadCounts:   make(map[string]int64),
		RelatedEntity:  input.RelatedEntity,
	}

	if err := uc.conversationRepo.Create(ctx, conversation); err != nil {
		logger.Error("ResolveConversation: failed to create conversation: %v", err)
		return nil, err
	}

	return conversation, nil
}

// SendMessage appends a message and its unread accounting as one unit. The
// sender profile supplies the denormalized sender fields.
func (uc *ChatUseCase) SendMessage(ctx context.Context, senderID string, input SendMessageInput) (*entity.Message, error) {
	sender := identity.Normalize(senderID)

	if allowed, waitTime := uc.rateLimiter.Allow(sender, ratelimit.ActionSendMessage); !allowed {
		logger.Warn("SendMessage rate limited: sender %s must wait %v", sender, waitTime)
		return nil, errors.TooManyRequests("Rate limit exceeded. Please wait before sending another message")
	}

	if input.Text == "" {
		return nil, errors.Validation("Message text is required", nil)
	}
	if sender == "" {
		return nil, errors.Validation("Sender id is required", nil)
	}
	for _, attachment := range input.Attachments {
		if !validAttachmentType(attachment.Type) {
			return nil, errors.Validation("Attachment type must be image, document or product", nil)
		}
		if attachment.URL == "" {
			return nil, errors.Validation("Attachment URL is required", nil)
		}
	}

	conversation, err := uc.conversationRepo.GetByID(ctx, input.ConversationID)
	if err != nil {
		logger.Error("SendMessage: conversation %s not found: %v", input.ConversationID, err)
		return nil, err
	}

	if !conversation.HasParticipant(sender) {
		logger.Warn("SendMessage: %s is not a participant in conversation %s", sender, input.ConversationID)
		return nil, errors.Forbidden("Sender is not a participant in this conversation", nil)
	}

	profile, err := uc.userRepo.GetByID(ctx, sender)
	if err != nil {
		logger.Error("SendMessage: sender profile %s not found: %v", sender, err)
		return nil, errors.NotFound("Sender", err)
	}
	if profile.DisplayName == "" {
		return nil, errors.Validation("Sender display name is required", nil)
	}
	if !validRole(profile.Role) {
		return nil, errors.Validation("Sender role must be buyer, seller or admin", nil)
	}

	message := &entity.Message{
		ConversationID: conversation.ID,
		Text:           input.Text,
		SenderID:       sender,
		SenderName:     profile.DisplayName,
		SenderRole:     profile.Role,
		SenderAvatar:   profile.AvatarURL,
		Attachments:    input.Attachments,
		Read:           false,
	}

	if err := uc.conversationRepo.AppendMessage(ctx, conversation, message); err != nil {
		logger.Error("SendMessage: failed to append message to conversation %s: %v", conversation.ID, err)
		return nil, err
	}

	return message, nil
}

// MarkRead zeroes the caller's unread counter and flips the read flag on
// every unread message from the other participants.
func (uc *ChatUseCase) MarkRead(ctx context.Context, callerID, conversationID string) error {
	caller := identity.Normalize(callerID)

	conversation, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		logger.Error("MarkRead: conversation %s not found: %v", conversationID, err)
		return err
	}

	if !conversation.HasParticipant(caller) {
		logger.Warn("MarkRead: %s is not a participant in conversation %s", caller, conversationID)
		return errors.Forbidden("Caller is not a participant in this conversation", nil)
	}

	return uc.conversationRepo.MarkRead(ctx, conversationID, caller)
}

// GetConversations lists the caller's conversations, most recently updated
// first. Membership is re-validated per item in case the containment query
// and the participant data ever drift.
func (uc *ChatUseCase) GetConversations(ctx context.Context, callerID string, limit, offset int) ([]*entity.Conversation, int64, error) {
	caller := identity.Normalize(callerID)

	conversations, total, err := uc.conversationRepo.ListByParticipantID(ctx, caller, limit, offset)
	if err != nil {
		logger.Error("GetConversations: failed to list conversations for %s: %v", caller, err)
		return nil, 0, err
	}

	filtered := make([]*entity.Conversation, 0, len(conversations))
	for _, conversation := range conversations {
		if conversation.HasParticipant(caller) {
			filtered = append(filtered, conversation)
		}
	}

	return filtered, total, nil
}

// GetConversationByID returns a single conversation. A non-participant gets
// the same answer as a missing conversation so existence is never leaked.
func (uc *ChatUseCase) GetConversationByID(ctx context.Context, callerID, conversationID string) (*entity.Conversation, error) {
	caller := identity.Normalize(callerID)

	conversation, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if !conversation.HasParticipant(caller) {
		logger.Warn("GetConversationByID: %s is not a participant in conversation %s", caller, conversationID)
		return nil, errors.NotFound("Conversation", nil)
	}

	return conversation, nil
}

// GetMessages returns one newest-first page of the conversation's messages.
func (uc *ChatUseCase) GetMessages(ctx context.Context, callerID, conversationID string, pageSize int, cursor string) (*repository.MessagePage, error) {
	caller := identity.Normalize(callerID)

	conversation, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if !conversation.HasParticipant(caller) {
		logger.Warn("GetMessages: %s is not a participant in conversation %s", caller, conversationID)
		return nil, errors.NotFound("Conversation", nil)
	}

	return uc.conversationRepo.ListMessages(ctx, conversationID, pageSize, cursor)
}

// UnreadTotal sums the caller's unread counters across all their
// conversations, for the badge count.
func (uc *ChatUseCase) UnreadTotal(ctx context.Context, callerID string) (int64, error) {
	caller := identity.Normalize(callerID)

	conversations, _, err := uc.conversationRepo.ListByParticipantID(ctx, caller, 0, 0)
	if err != nil {
		logger.Error("UnreadTotal: failed to list conversations for %s: %v", caller, err)
		return 0, err
	}

	var total int64
	for _, conversation := range conversations {
		if conversation.HasParticipant(caller) {
			total += conversation.UnreadFor(caller)
		}
	}

	return total, nil
}

// RemoveMessage is the explicit moderation removal, restricted to admins.
// It is the only delete path in the module.
func (uc *ChatUseCase) RemoveMessage(ctx context.Context, callerID, conversationID, messageID string) error {
	caller := identity.Normalize(callerID)

	profile, err := uc.userRepo.GetByID(ctx, caller)
	if err != nil {
		return errors.Forbidden("Caller could not be verified", err)
	}
	if profile.Role != entity.RoleAdmin {
		return errors.Forbidden("Moderation removal requires an admin", nil)
	}

	if _, err := uc.conversationRepo.GetByID(ctx, conversationID); err != nil {
		return err
	}
	if _, err := uc.conversationRepo.GetMessageByID(ctx, conversationID, messageID); err != nil {
		return err
	}

	logger.Info("RemoveMessage: admin %s removing message %s from conversation %s", caller, messageID, conversationID)
	return uc.conversationRepo.DeleteMessage(ctx, conversationID, messageID)
}
