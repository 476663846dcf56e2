package chat

import (
	"context"
	"sort"
	"sync"

	"github.com/driftchat/driftchat/store"
)

// memoryStore is an in-memory Store used by the service tests. It mirrors
// the database drivers' ordering: messages ascend by creation, conversations
// descend by update time.
type memoryStore struct {
	mu            sync.Mutex
	nextID        int32
	users         map[int32]*store.User
	conversations map[int32]*store.Conversation
	messages      map[int32]*store.Message

	// afterMessageUpdate runs after each successful message update, while
	// the lock is released. Tests use it to inject a stop between chunks.
	afterMessageUpdate func(updated *store.Message)
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:         map[int32]*store.User{},
		conversations: map[int32]*store.Conversation{},
		messages:      map[int32]*store.Message{},
	}
}

func (m *memoryStore) allocID() int32 {
	m.nextID++
	return m.nextID
}

func (m *memoryStore) CreateConversation(_ context.Context, create *store.Conversation) (*store.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *create
	clone.ID = m.allocID()
	m.conversations[clone.ID] = &clone
	copied := clone
	return &copied, nil
}

func (m *memoryStore) GetConversation(ctx context.Context, find *store.FindConversation) (*store.Conversation, error) {
	list, err := m.ListConversations(ctx, find)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (m *memoryStore) ListConversations(_ context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*store.Conversation
	for _, c := range m.conversations {
		if find.ID != nil && c.ID != *find.ID {
			continue
		}
		if find.UID != nil && c.UID != *find.UID {
			continue
		}
		if find.CreatorID != nil && c.CreatorID != *find.CreatorID {
			continue
		}
		if find.Visibility != nil && c.Visibility != *find.Visibility {
			continue
		}
		copied := *c
		list = append(list, &copied)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UpdatedTs > list[j].UpdatedTs })
	if find.Limit != nil && len(list) > *find.Limit {
		list = list[:*find.Limit]
	}
	return list, nil
}

func (m *memoryStore) UpdateConversation(_ context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[update.ID]
	if !ok {
		return nil, nil
	}
	if update.Title != nil {
		c.Title = *update.Title
	}
	if update.Visibility != nil {
		c.Visibility = *update.Visibility
	}
	if update.UpdatedTs != nil {
		c.UpdatedTs = *update.UpdatedTs
	}
	copied := *c
	return &copied, nil
}

func (m *memoryStore) DeleteConversation(_ context.Context, del *store.DeleteConversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conversations, del.ID)
	return nil
}

func (m *memoryStore) CreateMessage(_ context.Context, create *store.Message) (*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *create
	clone.ID = m.allocID()
	m.messages[clone.ID] = &clone
	copied := clone
	return &copied, nil
}

func (m *memoryStore) GetMessage(ctx context.Context, find *store.FindMessage) (*store.Message, error) {
	list, err := m.ListMessages(ctx, find)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (m *memoryStore) ListMessages(_ context.Context, find *store.FindMessage) ([]*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*store.Message
	for _, msg := range m.messages {
		if find.ID != nil && msg.ID != *find.ID {
			continue
		}
		if find.UID != nil && msg.UID != *find.UID {
			continue
		}
		if find.ConversationID != nil && msg.ConversationID != *find.ConversationID {
			continue
		}
		if find.Status != nil && msg.Status != *find.Status {
			continue
		}
		copied := *msg
		list = append(list, &copied)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (m *memoryStore) UpdateMessage(_ context.Context, update *store.UpdateMessage) (*store.Message, error) {
	m.mu.Lock()
	msg, ok := m.messages[update.ID]
	if !ok {
		m.mu.Unlock()
		return nil, nil
	}
	if update.Content != nil {
		msg.Content = *update.Content
	}
	if update.Status != nil {
		msg.Status = *update.Status
	}
	if update.UpdatedTs != nil {
		msg.UpdatedTs = *update.UpdatedTs
	}
	copied := *msg
	hook := m.afterMessageUpdate
	m.mu.Unlock()

	if hook != nil {
		hook(&copied)
	}
	return &copied, nil
}

func (m *memoryStore) DeleteMessage(_ context.Context, del *store.DeleteMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, msg := range m.messages {
		if del.ID != nil && msg.ID != *del.ID {
			continue
		}
		if del.ConversationID != nil && msg.ConversationID != *del.ConversationID {
			continue
		}
		delete(m.messages, id)
	}
	return nil
}

func (m *memoryStore) GetUser(_ context.Context, find *store.FindUser) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if find.ID != nil && u.ID != *find.ID {
			continue
		}
		if find.UID != nil && u.UID != *find.UID {
			continue
		}
		if find.Email != nil && u.Email != *find.Email {
			continue
		}
		copied := *u
		return &copied, nil
	}
	return nil, nil
}

func (m *memoryStore) UpdateUser(_ context.Context, update *store.UpdateUser) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[update.ID]
	if !ok {
		return nil, nil
	}
	if update.Nickname != nil {
		u.Nickname = *update.Nickname
	}
	if update.OpenRouterKey != nil {
		u.OpenRouterKey = *update.OpenRouterKey
	}
	copied := *u
	return &copied, nil
}

func (m *memoryStore) addUser(user *store.User) *store.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *user
	if clone.ID == 0 {
		clone.ID = m.allocID()
	}
	m.users[clone.ID] = &clone
	copied := clone
	return &copied
}
