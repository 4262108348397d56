// Package conversation keeps the ordered, append-only chat history of a
// single session. History lives in process memory only.
package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role 标识消息的发送方。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message 是一条不可变的对话消息。
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage 创建一条带有唯一 ID 与时间戳的消息。
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        string(role) + "-" + uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// Store 按插入顺序保存消息，只允许追加。
type Store struct {
	mu       sync.RWMutex
	messages []Message
}

// NewStore 创建一个空的对话记录。
func NewStore() *Store {
	return &Store{}
}

// Append 将消息追加到末尾。
func (s *Store) Append(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// Snapshot 返回当前全部消息的副本，调用方可以自由修改。
func (s *Store) Snapshot() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len 返回消息数量。
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}
