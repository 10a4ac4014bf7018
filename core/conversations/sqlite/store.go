// Package sqlite persists conversations in SQLite through gorm.
package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-chat/core/conversations"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type conversationRecord struct {
	ID           string `gorm:"primaryKey"`
	Title        string
	Instructions string
	CreatedAt    time.Time
	UpdatedAt    time.Time `gorm:"index"`
}

func (conversationRecord) TableName() string { return "conversations" }

type messageRecord struct {
	ID             string `gorm:"primaryKey"`
	ConversationID string `gorm:"index:idx_conversation_seq,priority:1"`
	Seq            int    `gorm:"index:idx_conversation_seq,priority:2"`
	Role           string
	Kind           string
	Content        string
	Reasoning      string
	// ReasoningSignature is opaque backend data replayed with Reasoning.
	ReasoningSignature string
	// ToolCalls, Attachments and Sources are stored as JSON. Arguments stay a
	// JSON string inside the document so they are never re-encoded.
	ToolCalls   []byte
	ToolCallID  string
	ToolName    string
	ToolStatus  string
	Attachments []byte
	Sources     []byte
	Partial     bool
	CreatedAt   time.Time
}

func (messageRecord) TableName() string { return "messages" }

type Store struct {
	db *gorm.DB
}

// Open opens (and migrates) the database at dsn, e.g. "chat.db" or
// "file::memory:?cache=shared".
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation database: %w", err)
	}
	if err := db.AutoMigrate(&conversationRecord{}, &messageRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate conversation database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Create(ctx context.Context, conversation conversations.Conversation) (conversations.Conversation, error) {
	if conversation.ID == "" {
		conversation.ID = uuid.NewString()
	}
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = time.Now()
	}
	conversation.UpdatedAt = conversation.CreatedAt

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&conversationRecord{
			ID:           conversation.ID,
			Title:        conversation.Title,
			Instructions: conversation.Instructions,
			CreatedAt:    conversation.CreatedAt,
			UpdatedAt:    conversation.UpdatedAt,
		}).Error; err != nil {
			return err
		}
		return appendMessages(tx, conversation.ID, 0, conversation.Messages)
	})
	if err != nil {
		return conversations.Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conversation, nil
}

func (s *Store) Load(ctx context.Context, id string) (conversations.Conversation, error) {
	db := s.db.WithContext(ctx)

	var record conversationRecord
	if err := db.First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return conversations.Conversation{}, conversations.ErrConversationNotFound
		}
		return conversations.Conversation{}, fmt.Errorf("failed to load conversation: %w", err)
	}

	var records []messageRecord
	if err := db.Where("conversation_id = ?", id).Order("seq").Find(&records).Error; err != nil {
		return conversations.Conversation{}, fmt.Errorf("failed to load messages: %w", err)
	}

	conversation := record.toConversation()
	for _, record := range records {
		message, err := record.toMessage()
		if err != nil {
			return conversations.Conversation{}, fmt.Errorf("failed to decode message %s: %w", record.ID, err)
		}
		conversation.Messages = append(conversation.Messages, message)
	}
	return conversation, nil
}

func (s *Store) Append(ctx context.Context, id string, messages ...conversations.Message) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&conversationRecord{}).Where("id = ?", id).Update("updated_at", time.Now())
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return conversations.ErrConversationNotFound
		}

		var next int
		if err := tx.Model(&messageRecord{}).
			Where("conversation_id = ?", id).
			Select("COALESCE(MAX(seq), -1) + 1").
			Scan(&next).Error; err != nil {
			return err
		}
		return appendMessages(tx, id, next, messages)
	})
	if errors.Is(err, conversations.ErrConversationNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to append messages: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]conversations.Conversation, error) {
	var records []conversationRecord
	if err := s.db.WithContext(ctx).Order("updated_at DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	list := make([]conversations.Conversation, 0, len(records))
	for _, record := range records {
		list = append(list, record.toConversation())
	}
	return list, nil
}

func appendMessages(tx *gorm.DB, conversationID string, seq int, messages []conversations.Message) error {
	if len(messages) == 0 {
		return nil
	}
	records := make([]messageRecord, 0, len(messages))
	for i, message := range messages {
		record, err := newMessageRecord(conversationID, seq+i, message)
		if err != nil {
			return err
		}
		records = append(records, record)
	}
	return tx.Create(&records).Error
}

func (r conversationRecord) toConversation() conversations.Conversation {
	return conversations.Conversation{
		ID:           r.ID,
		Title:        r.Title,
		Instructions: r.Instructions,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func newMessageRecord(conversationID string, seq int, message conversations.Message) (messageRecord, error) {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	record := messageRecord{
		ID:                 message.ID,
		ConversationID:     conversationID,
		Seq:                seq,
		Role:               string(message.Role),
		Kind:               string(message.Kind),
		Content:            message.Content,
		Reasoning:          message.Reasoning,
		ReasoningSignature: message.ReasoningSignature,
		ToolCallID:         message.ToolCallID,
		ToolName:           message.ToolName,
		ToolStatus:         string(message.ToolStatus),
		Partial:            message.Partial,
		CreatedAt:          message.CreatedAt,
	}

	var err error
	if record.ToolCalls, err = marshalNonEmpty(message.ToolCalls); err != nil {
		return record, err
	}
	if record.Attachments, err = marshalNonEmpty(message.Attachments); err != nil {
		return record, err
	}
	if record.Sources, err = marshalNonEmpty(message.Sources); err != nil {
		return record, err
	}
	return record, nil
}

func (r messageRecord) toMessage() (conversations.Message, error) {
	message := conversations.Message{
		ID:                 r.ID,
		Role:               conversations.Role(r.Role),
		Kind:               conversations.Kind(r.Kind),
		Content:            r.Content,
		Reasoning:          r.Reasoning,
		ReasoningSignature: r.ReasoningSignature,
		ToolCallID:         r.ToolCallID,
		ToolName:           r.ToolName,
		ToolStatus:         conversations.ToolStatus(r.ToolStatus),
		Partial:            r.Partial,
		CreatedAt:          r.CreatedAt,
	}
	if err := unmarshalNonEmpty(r.ToolCalls, &message.ToolCalls); err != nil {
		return message, err
	}
	if err := unmarshalNonEmpty(r.Attachments, &message.Attachments); err != nil {
		return message, err
	}
	if err := unmarshalNonEmpty(r.Sources, &message.Sources); err != nil {
		return message, err
	}
	return message, nil
}

func marshalNonEmpty[T any](values []T) ([]byte, error) {
	if len(values) == 0 {
		return nil, nil
	}
	return json.Marshal(values)
}

func unmarshalNonEmpty[T any](data []byte, values *[]T) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, values)
}

var _ conversations.Store = (*Store)(nil)
