package usecase

import (
	"context"
	"sync"

	"lotedd/internal/domain/entity"
	"lotedd/internal/domain/repository"
	"lotedd/pkg/errors"
	"lotedd/pkg/identity"
	"lotedd/pkg/logger"
)

// StreamUseCase exposes the store's change subscriptions as cancellable
// streams. Authorization is re-applied on every emitted update, not only at
// subscribe time: the moment a caller stops being a participant the stream
// emits one zero-value update and closes. Cancel is idempotent and safe to
// call after the stream has ended naturally.
type StreamUseCase struct {
	conversationRepo repository.ConversationRepository
}

func NewStreamUseCase(conversationRepo repository.ConversationRepository) *StreamUseCase {
	return &StreamUseCase{
		conversationRepo: conversationRepo,
	}
}

// ConversationListStream delivers the caller's conversation list on every
// store commit that affects it.
type ConversationListStream struct {
	updates chan []*entity.Conversation
	stop    func()
	done    chan struct{}
	once    sync.Once
}

func (s *ConversationListStream) Updates() <-chan []*entity.Conversation { return s.updates }

// Cancel releases the store listener and unblocks the forwarder even if
// the consumer never drained the stream.
func (s *ConversationListStream) Cancel() {
	s.once.Do(func() {
		s.stop()
		close(s.done)
	})
}

// ConversationStream delivers snapshots of a single conversation. A nil
// update means access was denied; no further updates follow it.
type ConversationStream struct {
	updates chan *entity.Conversation
	stop    func()
	done    chan struct{}
	once    sync.Once
}

func (s *ConversationStream) Updates() <-chan *entity.Conversation { return s.updates }

func (s *ConversationStream) Cancel() {
	s.once.Do(func() {
		s.stop()
		close(s.done)
	})
}

// MessageStream delivers the newest-first message window of a conversation.
// An empty update after a non-empty history means access was denied.
type MessageStream struct {
	updates chan []*entity.Message
	stop    func()
	done    chan struct{}
	once    sync.Once
}

func (s *MessageStream) Updates() <-chan []*entity.Message { return s.updates }

func (s *MessageStream) Cancel() {
	s.once.Do(func() {
		s.stop()
		close(s.done)
	})
}

// SubscribeConversations streams every conversation the caller belongs to,
// ordered by updatedAt descending. Each emitted item is re-checked against
// the caller's membership before delivery.
func (uc *StreamUseCase) SubscribeConversations(ctx context.Context, callerID string) (*ConversationListStream, error) {
	caller := identity.Normalize(callerID)
	if caller == "" {
		return nil, errors.Validation("Caller id is required", nil)
	}

	source, stop, err := uc.conversationRepo.WatchConversations(ctx, caller)
	if err != nil {
		return nil, err
	}

	stream := &ConversationListStream{
		updates: make(chan []*entity.Conversation, 8),
		stop:    stop,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(stream.updates)
		for batch := range source {
			filtered := make([]*entity.Conversation, 0, len(batch))
			for _, conversation := range batch {
				if conversation.HasParticipant(caller) {
					filtered = append(filtered, conversation)
				}
			}
			select {
			case stream.updates <- filtered:
			case <-stream.done:
				return
			}
		}
	}()

	return stream, nil
}

// SubscribeConversation streams snapshots of one conversation. Denied access,
// at subscribe time or at any later point, produces a single nil update and
// ends the stream without leaking whether the conversation exists.
func (uc *StreamUseCase) SubscribeConversation(ctx context.Context, callerID, conversationID string) (*ConversationStream, error) {
	caller := identity.Normalize(callerID)
	if caller == "" {
		return nil, errors.Validation("Caller id is required", nil)
	}

	conversation, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, "NOT_FOUND") {
			return deniedConversationStream(), nil
		}
		return nil, err
	}
	if !conversation.HasParticipant(caller) {
		logger.Warn("SubscribeConversation: %s denied on conversation %s", caller, conversationID)
		return deniedConversationStream(), nil
	}

	source, stop, err := uc.conversationRepo.WatchConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	stream := &ConversationStream{
		updates: make(chan *entity.Conversation, 8),
		stop:    stop,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(stream.updates)
		for snapshot := range source {
			if !snapshot.HasParticipant(caller) {
				logger.Warn("SubscribeConversation: %s lost access to conversation %s", caller, conversationID)
				select {
				case stream.updates <- nil:
				case <-stream.done:
				}
				stream.Cancel()
				return
			}
			select {
			case stream.updates <- snapshot:
			case <-stream.done:
				return
			}
		}
	}()

	return stream, nil
}

// SubscribeMessages streams the message window of one conversation. The
// conversation document is watched alongside the messages so membership is
// re-validated against the latest participant set on every delivery.
func (uc *StreamUseCase) SubscribeMessages(ctx context.Context, callerID, conversationID string, limit int) (*MessageStream, error) {
	caller := identity.Normalize(callerID)
	if caller == "" {
		return nil, errors.Validation("Caller id is required", nil)
	}

	conversation, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, "NOT_FOUND") {
			return deniedMessageStream(), nil
		}
		return nil, err
	}
	if !conversation.HasParticipant(caller) {
		logger.Warn("SubscribeMessages: %s denied on conversation %s", caller, conversationID)
		return deniedMessageStream(), nil
	}

	ctx, cancel := context.WithCancel(ctx)

	convSource, convStop, err := uc.conversationRepo.WatchConversation(ctx, conversationID)
	if err != nil {
		cancel()
		return nil, err
	}
	msgSource, msgStop, err := uc.conversationRepo.WatchMessages(ctx, conversationID, limit)
	if err != nil {
		convStop()
		cancel()
		return nil, err
	}

	stream := &MessageStream{
		updates: make(chan []*entity.Message, 8),
		stop: func() {
			convStop()
			msgStop()
			cancel()
		},
		done: make(chan struct{}),
	}

	deny := func() {
		select {
		case stream.updates <- nil:
		case <-stream.done:
		case <-ctx.Done():
		}
		stream.Cancel()
	}

	go func() {
		defer close(stream.updates)
		authorized := true
		for {
			select {
			case snapshot, ok := <-convSource:
				if !ok {
					convSource = nil
					continue
				}
				authorized = snapshot.HasParticipant(caller)
				if !authorized {
					logger.Warn("SubscribeMessages: %s lost access to conversation %s", caller, conversationID)
					deny()
					return
				}
			case messages, ok := <-msgSource:
				if !ok {
					return
				}
				if !authorized {
					deny()
					return
				}
				select {
				case stream.updates <- messages:
				case <-stream.done:
					return
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return stream, nil
}

func deniedConversationStream() *ConversationStream {
	stream := &ConversationStream{
		updates: make(chan *entity.Conversation, 1),
		stop:    func() {},
		done:    make(chan struct{}),
	}
	stream.updates <- nil
	close(stream.updates)
	return stream
}

func deniedMessageStream() *MessageStream {
	stream := &MessageStream{
		updates: make(chan []*entity.Message, 1),
		stop:    func() {},
		done:    make(chan struct{}),
	}
	stream.updates <- nil
	close(stream.updates)
	return stream
}
