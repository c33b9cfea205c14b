package services

import (
	"strings"
	"sync"
	"time"

	"github.com/fitcoach/fitness_coach/models"
	"github.com/fitcoach/fitness_coach/websocket"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// memStore is an in-memory persistence gateway for service tests. It
// mirrors the repository's contract, including the atomic find-or-insert
// on the canonical participant key.
type memStore struct {
	mu sync.Mutex

	conversations map[uuid.UUID]*models.Conversation
	byKey         map[string]uuid.UUID
	messages      map[uuid.UUID]*models.Message
	seq           int64

	createMessageErr error
}

func newMemStore() *memStore {
	return &memStore{
		conversations: make(map[uuid.UUID]*models.Conversation),
		byKey:         make(map[string]uuid.UUID),
		messages:      make(map[uuid.UUID]*models.Message),
	}
}

func (s *memStore) Transaction(fn func(tx ChatStore) error) error {
	return fn(s)
}

func (s *memStore) CreateMessage(m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createMessageErr != nil {
		return s.createMessageErr
	}
	m.ID = uuid.New()
	s.seq++
	m.Seq = s.seq
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	stored := *m
	s.messages[m.ID] = &stored
	return nil
}

func (s *memStore) GetMessage(id uuid.UUID) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *m
	return &copied, nil
}

func (s *memStore) SaveMessage(m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *m
	s.messages[m.ID] = &stored
	return nil
}

func (s *memStore) MarkMessageDeleted(id, by uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.IsDeleted {
		return false, nil
	}
	m.IsDeleted = true
	m.DeletedAt = &at
	m.DeletedBy = &by
	return true, nil
}

func (s *memStore) FindDirectConversation(a, b uuid.UUID) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[models.DirectParticipantKey(a, b)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return s.conversations[id], nil
}

func (s *memStore) FindOrCreateDirectConversation(a, b *models.User) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.DirectParticipantKey(a.ID, b.ID)
	if id, ok := s.byKey[key]; ok {
		return s.conversations[id], nil
	}
	now := time.Now()
	conv := &models.Conversation{
		ID:             uuid.New(),
		Kind:           models.ConversationDirect,
		ParticipantKey: &key,
		LastActivityAt: now,
		IsActive:       true,
		Participants: []models.ConversationParticipant{
			{UserID: a.ID, Role: a.Role, JoinedAt: now, LastReadAt: now, NotificationsEnabled: true},
			{UserID: b.ID, Role: b.Role, JoinedAt: now, LastReadAt: now, NotificationsEnabled: true},
		},
	}
	conv.Participants[0].ConversationID = conv.ID
	conv.Participants[1].ConversationID = conv.ID
	s.conversations[conv.ID] = conv
	s.byKey[key] = conv.ID
	return conv, nil
}

func (s *memStore) CreateGroupConversation(name string, members []*models.User) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	conv := &models.Conversation{
		ID:             uuid.New(),
		Kind:           models.ConversationGroup,
		Name:           &name,
		LastActivityAt: now,
		IsActive:       true,
	}
	for _, m := range members {
		conv.Participants = append(conv.Participants, models.ConversationParticipant{
			ConversationID: conv.ID, UserID: m.ID, Role: m.Role,
			JoinedAt: now, LastReadAt: now, NotificationsEnabled: true,
		})
	}
	s.conversations[conv.ID] = conv
	return conv, nil
}

func (s *memStore) GetConversation(id uuid.UUID) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return conv, nil
}

func (s *memStore) ListUserConversations(userID uuid.UUID) ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Conversation
	for _, conv := range s.conversations {
		if conv.IsActive && conv.HasParticipant(userID) {
			out = append(out, *conv)
		}
	}
	return out, nil
}

func (s *memStore) HasSharedConversation(a, b uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conv := range s.conversations {
		if conv.IsActive && conv.HasParticipant(a) && conv.HasParticipant(b) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) RecordMessage(conversationID, messageID uuid.UUID, createdAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	conv.MessageCount++
	conv.LastMessageID = &messageID
	if createdAt.After(conv.LastActivityAt) {
		conv.LastActivityAt = createdAt
	}
	return nil
}

func (s *memStore) DecrementMessageCount(conversationID uuid.UUID, by int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	conv.MessageCount -= by
	if conv.MessageCount < 0 {
		conv.MessageCount = 0
	}
	return nil
}

func (s *memStore) MarkParticipantRead(conversationID, userID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for i := range conv.Participants {
		if conv.Participants[i].UserID == userID {
			conv.Participants[i].LastReadAt = at
		}
	}
	return nil
}

func (s *memStore) ListConversationMessages(conversationID uuid.UUID, page, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID && !m.IsDeleted {
			out = append(out, *m)
		}
	}
	// Newest first, seq breaking ties.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.After(out[i].CreatedAt) ||
				(out[j].CreatedAt.Equal(out[i].CreatedAt) && out[j].Seq > out[i].Seq) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (s *memStore) MarkMessagesRead(conversationID, readerID uuid.UUID, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.messages {
		if m.ConversationID == conversationID && m.ReceiverID != nil &&
			*m.ReceiverID == readerID && !m.IsRead && !m.IsDeleted {
			m.IsRead = true
			readAt := at
			m.ReadAt = &readAt
			n++
		}
	}
	return n, nil
}

func (s *memStore) UnreadCount(conversationID, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.messages {
		if m.ConversationID == conversationID && m.ReceiverID != nil &&
			*m.ReceiverID == userID && !m.IsRead && !m.IsDeleted {
			n++
		}
	}
	return n, nil
}

func (s *memStore) SearchMessages(userID uuid.UUID, query string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.IsDeleted || m.Body == nil {
			continue
		}
		mine := m.SenderID == userID || (m.ReceiverID != nil && *m.ReceiverID == userID)
		if mine && strings.Contains(strings.ToLower(*m.Body), strings.ToLower(query)) {
			out = append(out, *m)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// helpers for assertions
func (s *memStore) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *memStore) conversationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

func (s *memStore) stored(id uuid.UUID) *models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[id]
}

// memDirectory is the user-directory collaborator for tests.
type memDirectory struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func newMemDirectory(users ...*models.User) *memDirectory {
	d := &memDirectory{users: make(map[uuid.UUID]*models.User)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *memDirectory) GetUser(id uuid.UUID) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (d *memDirectory) TouchLastActivity(id uuid.UUID, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.users[id]; ok {
		u.LastActivity = &at
	}
	return nil
}

// recordingBroadcaster captures fan-out without any real connections.
type recordingBroadcaster struct {
	mu     sync.Mutex
	online map[uuid.UUID]bool
	sent   []sentEvent
}

type sentEvent struct {
	UserID uuid.UUID
	Room   string
	Event  websocket.Event
}

func newRecordingBroadcaster(online ...uuid.UUID) *recordingBroadcaster {
	b := &recordingBroadcaster{online: make(map[uuid.UUID]bool)}
	for _, id := range online {
		b.online[id] = true
	}
	return b
}

func (b *recordingBroadcaster) BroadcastToUser(userID uuid.UUID, e websocket.Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, sentEvent{UserID: userID, Event: e})
	if b.online[userID] {
		return 1
	}
	return 0
}

func (b *recordingBroadcaster) BroadcastToRoom(room string, e websocket.Event, except uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, sentEvent{Room: room, Event: e})
}

func (b *recordingBroadcaster) IsOnline(userID uuid.UUID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.online[userID]
}

func (b *recordingBroadcaster) eventsOfType(t string) []sentEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []sentEvent
	for _, e := range b.sent {
		if e.Event.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// fixture wires a trainer with an assigned client plus an unrelated client.
type fixture struct {
	store     *memStore
	directory *memDirectory
	presence  *recordingBroadcaster
	authz     *AuthorizationService
	messages  *MessageService

	trainer  *models.User
	client   *models.User
	stranger *models.User
}

func newFixture() *fixture {
	trainer := &models.User{ID: uuid.New(), FullName: "Tina Trainer", Role: models.RoleTrainer, IsActive: true}
	client := &models.User{ID: uuid.New(), FullName: "Carl Client", Role: models.RoleClient, IsActive: true, TrainerID: &trainer.ID}
	stranger := &models.User{ID: uuid.New(), FullName: "Sam Stranger", Role: models.RoleClient, IsActive: true}

	store := newMemStore()
	directory := newMemDirectory(trainer, client, stranger)
	presence := newRecordingBroadcaster(trainer.ID, client.ID)
	authz := NewAuthorizationService(store)
	messages := NewMessageService(store, directory, authz, presence)

	return &fixture{
		store: store, directory: directory, presence: presence,
		authz: authz, messages: messages,
		trainer: trainer, client: client, stranger: stranger,
	}
}

func body(s string) *string { return &s }
