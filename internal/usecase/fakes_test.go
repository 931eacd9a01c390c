package usecase

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"lotedd/internal/domain/entity"
	"lotedd/internal/domain/repository"
	"lotedd/pkg/errors"
)

// fakeUserRepo is an in-memory UserRepository.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*entity.User
}

func newFakeUserRepo(users ...*entity.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[string]*entity.User)}
	for _, user := range users {
		repo.users[user.ID] = user
	}
	return repo
}

func (r *fakeUserRepo) Create(ctx context.Context, user *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	copied := *user
	return &copied, nil
}

func (r *fakeUserRepo) Update(ctx context.Context, user *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return errors.NotFound("User", nil)
	}
	r.users[user.ID] = user
	return nil
}

type messageWatcher struct {
	ch    chan []*entity.Message
	limit int
}

// fakeConversationRepo is an in-memory ConversationRepository with the same
// observable behavior as the Firestore adapter: atomic unread accounting on
// append, newest-first message pages, and change notifications that start
// with the current state.
type fakeConversationRepo struct {
	mu            sync.Mutex
	seq           int
	conversations map[string]*entity.Conversation
	messages      map[string][]*entity.Message

	convWatchers    map[string][]chan *entity.Conversation
	listWatchers    map[string][]chan []*entity.Conversation
	messageWatchers map[string][]*messageWatcher
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{
		conversations:   make(map[string]*entity.Conversation),
		messages:        make(map[string][]*entity.Message),
		convWatchers:    make(map[string][]chan *entity.Conversation),
		listWatchers:    make(map[string][]chan []*entity.Conversation),
		messageWatchers: make(map[string][]*messageWatcher),
	}
}

var _ repository.ConversationRepository = (*fakeConversationRepo)(nil)

func (r *fakeConversationRepo) nextID(prefix string) string {
	r.seq++
	return fmt.Sprintf("%s-%d", prefix, r.seq)
}

func cloneConversation(c *entity.Conversation) *entity.Conversation {
	copied := *c
	copied.Participants = append([]entity.Participant(nil), c.Participants...)
	copied.ParticipantIDs = append([]string(nil), c.ParticipantIDs...)
	copied.UnreadCounts = make(map[string]int64, len(c.UnreadCounts))
	for id, count := range c.UnreadCounts {
		copied.UnreadCounts[id] = count
	}
	return &copied
}

func (r *fakeConversationRepo) Create(ctx context.Context, conversation *entity.Conversation) error {
	r.mu.Lock()
	if conversation.ID == "" {
		conversation.ID = r.nextID("conv")
	}
	if conversation.ParticipantKey == "" {
		conversation.ParticipantKey = entity.ParticipantKey(conversation.ParticipantIDs)
	}
	now := time.Now()
	conversation.CreatedAt = now
	conversation.UpdatedAt = now
	r.conversations[conversation.ID] = cloneConversation(conversation)
	r.mu.Unlock()

	r.broadcast(conversation.ID)
	return nil
}

func (r *fakeConversationRepo) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conversation, ok := r.conversations[id]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}
	return cloneConversation(conversation), nil
}

func (r *fakeConversationRepo) GetByParticipantKey(ctx context.Context, key string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conversation := range r.conversations {
		if conversation.ParticipantKey == key {
			return cloneConversation(conversation), nil
		}
	}
	return nil, errors.NotFound("Conversation", nil)
}

func (r *fakeConversationRepo) ListByParticipantID(ctx context.Context, canonicalID string, limit, offset int) ([]*entity.Conversation, int64, error) {
	r.mu.Lock()
	matched := make([]*entity.Conversation, 0)
	for _, conversation := range r.conversations {
		if conversation.HasParticipant(canonicalID) {
			matched = append(matched, cloneConversation(conversation))
		}
	}
	r.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})

	total := int64(len(matched))
	if offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (r *fakeConversationRepo) UpdateRelatedEntity(ctx context.Context, conversationID string, related *entity.RelatedEntity) error {
	r.mu.Lock()
	conversation, ok := r.conversations[conversationID]
	if !ok {
		r.mu.Unlock()
		return errors.NotFound("Conversation", nil)
	}
	conversation.RelatedEntity = related
	r.mu.Unlock()

	r.broadcast(conversationID)
	return nil
}

func (r *fakeConversationRepo) AppendMessage(ctx context.Context, conversation *entity.Conversation, message *entity.Message) error {
	r.mu.Lock()
	stored, ok := r.conversations[conversation.ID]
	if !ok {
		r.mu.Unlock()
		return errors.NotFound("Conversation", nil)
	}

	if message.ID == "" {
		message.ID = r.nextID("msg")
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	r.messages[conversation.ID] = append(r.messages[conversation.ID], message)
	stored.LastMessage = &entity.LastMessage{
		Text:      message.Text,
		SenderID:  message.SenderID,
		CreatedAt: message.CreatedAt,
	}
	stored.UpdatedAt = message.CreatedAt
	if stored.UnreadCounts == nil {
		stored.UnreadCounts = make(map[string]int64)
	}
	for _, participantID := range stored.ParticipantIDs {
		if participantID != message.SenderID {
			stored.UnreadCounts[participantID]++
		}
	}
	r.mu.Unlock()

	r.broadcast(conversation.ID)
	return nil
}

// ListMessages pages newest-first; the cursor is the count of messages
// already consumed from the tail.
func (r *fakeConversationRepo) ListMessages(ctx context.Context, conversationID string, pageSize int, cursor string) (*repository.MessagePage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conversations[conversationID]; !ok {
		return nil, errors.NotFound("Conversation", nil)
	}

	log := r.messages[conversationID]
	newestFirst := make([]*entity.Message, 0, len(log))
	for i := len(log) - 1; i >= 0; i-- {
		copied := *log[i]
		newestFirst = append(newestFirst, &copied)
	}

	skip := 0
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, errors.Validation("Invalid cursor", err)
		}
		skip = parsed
	}
	if skip >= len(newestFirst) {
		return &repository.MessagePage{}, nil
	}
	newestFirst = newestFirst[skip:]

	page := &repository.MessagePage{Messages: newestFirst}
	if pageSize > 0 && len(newestFirst) > pageSize {
		page.Messages = newestFirst[:pageSize]
		page.NextCursor = strconv.Itoa(skip + pageSize)
	}
	return page, nil
}

func (r *fakeConversationRepo) GetMessageByID(ctx context.Context, conversationID, messageID string) (*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, message := range r.messages[conversationID] {
		if message.ID == messageID {
			copied := *message
			return &copied, nil
		}
	}
	return nil, errors.NotFound("Message", nil)
}

func (r *fakeConversationRepo) MarkRead(ctx context.Context, conversationID, canonicalID string) error {
	r.mu.Lock()
	conversation, ok := r.conversations[conversationID]
	if !ok {
		r.mu.Unlock()
		return errors.NotFound("Conversation", nil)
	}
	if conversation.UnreadCounts == nil {
		conversation.UnreadCounts = make(map[string]int64)
	}
	conversation.UnreadCounts[canonicalID] = 0
	for _, message := range r.messages[conversationID] {
		if message.SenderID != canonicalID {
			message.Read = true
		}
	}
	r.mu.Unlock()

	r.broadcast(conversationID)
	return nil
}

func (r *fakeConversationRepo) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	r.mu.Lock()
	log := r.messages[conversationID]
	for i, message := range log {
		if message.ID == messageID {
			r.messages[conversationID] = append(log[:i], log[i+1:]...)
			r.mu.Unlock()
			r.broadcast(conversationID)
			return nil
		}
	}
	r.mu.Unlock()
	return errors.NotFound("Message", nil)
}

func (r *fakeConversationRepo) WatchConversation(ctx context.Context, id string) (<-chan *entity.Conversation, func(), error) {
	r.mu.Lock()
	ch := make(chan *entity.Conversation, 16)
	if conversation, ok := r.conversations[id]; ok {
		ch <- cloneConversation(conversation)
	}
	r.convWatchers[id] = append(r.convWatchers[id], ch)
	r.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			r.mu.Lock()
			watchers := r.convWatchers[id]
			for i, watcher := range watchers {
				if watcher == ch {
					r.convWatchers[id] = append(watchers[:i], watchers[i+1:]...)
					break
				}
			}
			r.mu.Unlock()
			close(ch)
		})
	}
	return ch, stop, nil
}

func (r *fakeConversationRepo) WatchConversations(ctx context.Context, canonicalID string) (<-chan []*entity.Conversation, func(), error) {
	r.mu.Lock()
	ch := make(chan []*entity.Conversation, 16)
	ch <- r.listSnapshotLocked(canonicalID)
	r.listWatchers[canonicalID] = append(r.listWatchers[canonicalID], ch)
	r.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			r.mu.Lock()
			watchers := r.listWatchers[canonicalID]
			for i, watcher := range watchers {
				if watcher == ch {
					r.listWatchers[canonicalID] = append(watchers[:i], watchers[i+1:]...)
					break
				}
			}
			r.mu.Unlock()
			close(ch)
		})
	}
	return ch, stop, nil
}

func (r *fakeConversationRepo) WatchMessages(ctx context.Context, conversationID string, limit int) (<-chan []*entity.Message, func(), error) {
	r.mu.Lock()
	watcher := &messageWatcher{ch: make(chan []*entity.Message, 16), limit: limit}
	watcher.ch <- r.messageWindowLocked(conversationID, limit)
	r.messageWatchers[conversationID] = append(r.messageWatchers[conversationID], watcher)
	r.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			r.mu.Lock()
			watchers := r.messageWatchers[conversationID]
			for i, w := range watchers {
				if w == watcher {
					r.messageWatchers[conversationID] = append(watchers[:i], watchers[i+1:]...)
					break
				}
			}
			r.mu.Unlock()
			close(watcher.ch)
		})
	}
	return watcher.ch, stop, nil
}

func (r *fakeConversationRepo) listSnapshotLocked(canonicalID string) []*entity.Conversation {
	matched := make([]*entity.Conversation, 0)
	for _, conversation := range r.conversations {
		if conversation.HasParticipant(canonicalID) {
			matched = append(matched, cloneConversation(conversation))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})
	return matched
}

func (r *fakeConversationRepo) messageWindowLocked(conversationID string, limit int) []*entity.Message {
	log := r.messages[conversationID]
	window := make([]*entity.Message, 0, len(log))
	for i := len(log) - 1; i >= 0; i-- {
		if limit > 0 && len(window) >= limit {
			break
		}
		copied := *log[i]
		window = append(window, &copied)
	}
	return window
}

// broadcast pushes fresh snapshots to every watcher touched by a change to
// the given conversation. Slow watchers are skipped, like slow realtime
// clients are.
func (r *fakeConversationRepo) broadcast(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conversation, ok := r.conversations[conversationID]
	if !ok {
		return
	}

	for _, ch := range r.convWatchers[conversationID] {
		select {
		case ch <- cloneConversation(conversation):
		default:
		}
	}
	for canonicalID, watchers := range r.listWatchers {
		for _, ch := range watchers {
			select {
			case ch <- r.listSnapshotLocked(canonicalID):
			default:
			}
		}
	}
	for _, watcher := range r.messageWatchers[conversationID] {
		select {
		case watcher.ch <- r.messageWindowLocked(conversationID, watcher.limit):
		default:
		}
	}
}

// setParticipants swaps the participant set of a stored conversation, for
// exercising mid-stream access revocation.
func (r *fakeConversationRepo) setParticipants(conversationID string, participants []entity.Participant) {
	r.mu.Lock()
	conversation, ok := r.conversations[conversationID]
	if ok {
		conversation.Participants = participants
		ids := make([]string, 0, len(participants))
		for _, p := range participants {
			ids = append(ids, p.ID)
		}
		conversation.ParticipantIDs = ids
		conversation.ParticipantKey = entity.ParticipantKey(ids)
	}
	r.mu.Unlock()

	if ok {
		r.broadcast(conversationID)
	}
}
