package conversations

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

var ErrConversationNotFound = errors.New("conversation not found")

// Store persists conversations. Implementations must keep the order of
// appended messages and the tool call arguments exactly as given.
type Store interface {
	Create(ctx context.Context, conversation Conversation) (Conversation, error)
	Load(ctx context.Context, id string) (Conversation, error)
	Append(ctx context.Context, id string, messages ...Message) error
	// List returns conversations without their messages, most recently
	// updated first.
	List(ctx context.Context) ([]Conversation, error)
}

type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: map[string]*Conversation{}}
}

func (s *MemoryStore) Create(_ context.Context, conversation Conversation) (Conversation, error) {
	if conversation.ID == "" {
		conversation.ID = uuid.NewString()
	}
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = time.Now()
	}
	conversation.UpdatedAt = conversation.CreatedAt

	stored, err := deepCopy(conversation)
	if err != nil {
		return Conversation{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conversation.ID] = &stored
	return conversation, nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.conversations[id]
	if !ok {
		return Conversation{}, ErrConversationNotFound
	}
	return deepCopy(*stored)
}

func (s *MemoryStore) Append(_ context.Context, id string, messages ...Message) error {
	copied := make([]Message, 0, len(messages))
	for _, message := range messages {
		c, err := deepCopy(message)
		if err != nil {
			return err
		}
		copied = append(copied, c)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	stored.Messages = append(stored.Messages, copied...)
	stored.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]Conversation, 0, len(s.conversations))
	for _, stored := range s.conversations {
		header := *stored
		header.Messages = nil
		list = append(list, header)
	}
	slices.SortFunc(list, func(a, b Conversation) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return list, nil
}

// time.Time only has unexported fields, so it is copied by value.
var copyOptions = copier.Option{
	DeepCopy: true,
	Converters: []copier.TypeConverter{{
		SrcType: time.Time{},
		DstType: time.Time{},
		Fn:      func(src any) (any, error) { return src.(time.Time), nil },
	}},
}

func deepCopy[T any](value T) (T, error) {
	var copied T
	if err := copier.CopyWithOption(&copied, &value, copyOptions); err != nil {
		return copied, err
	}
	return copied, nil
}
