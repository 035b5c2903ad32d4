package store

import (
	"sort"
	"time"

	"github.com/cbc3929/bi_agent_server/internal/core/prompts"
	"github.com/google/uuid"
)

// ChatMessage 是会话中的一条消息。
type ChatMessage struct {
	Role      string    `json:"role"` // "user" 或 "assistant"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatSession 是一个用户与某个连接之间的持续会话。
type ChatSession struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	ConnID    string        `json:"conn_id"`
	Title     string        `json:"title,omitempty"` // 取第一条用户消息的截断
	Messages  []ChatMessage `json:"messages"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ChatStore 管理会话的持久化。所有操作都要求所有者匹配。
type ChatStore struct {
	col *collection[*ChatSession]
}

// NewChatStore 创建会话存储。
func NewChatStore(dataDir string) (*ChatStore, error) {
	col, err := newCollection[*ChatSession](dataDir, "chats")
	if err != nil {
		return nil, err
	}
	return &ChatStore{col: col}, nil
}

// Create 开启一个新会话。
func (s *ChatStore) Create(userID, connID string) (*ChatSession, error) {
	now := time.Now()
	session := &ChatSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		ConnID:    connID,
		Messages:  []ChatMessage{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.col.items.Set(session.ID, session)
	if err := s.col.persist(); err != nil {
		s.col.items.Remove(session.ID)
		return nil, err
	}
	return session, nil
}

// Get 按 ID 取会话，所有者不匹配按不存在处理。
func (s *ChatStore) Get(id, userID string) (*ChatSession, error) {
	session, ok := s.col.items.Get(id)
	if !ok || session.UserID != userID {
		return nil, ErrNotFound
	}
	return session, nil
}

// List 返回用户的全部会话，按更新时间倒序。
func (s *ChatStore) List(userID string) []*ChatSession {
	var out []*ChatSession
	for _, session := range s.col.items.Items() {
		if session.UserID == userID {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// AppendMessage 向会话追加一条消息。
func (s *ChatStore) AppendMessage(id, userID, role, content string) (*ChatSession, error) {
	session, err := s.Get(id, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session.Messages = append(session.Messages, ChatMessage{
		Role:      role,
		Content:   content,
		CreatedAt: now,
	})
	if session.Title == "" && role == "user" {
		session.Title = truncateTitle(content)
	}
	session.UpdatedAt = now

	s.col.items.Set(id, session)
	if err := s.col.persist(); err != nil {
		return nil, err
	}
	return session, nil
}

// Delete 删除会话。
func (s *ChatStore) Delete(id, userID string) error {
	if _, err := s.Get(id, userID); err != nil {
		return err
	}
	s.col.items.Remove(id)
	return s.col.persist()
}

// HistoryWindow 把会话最近的 window 条消息转成提示词历史。
func (s *ChatStore) HistoryWindow(id, userID string, window int) []prompts.HistoryTurn {
	session, err := s.Get(id, userID)
	if err != nil {
		return nil
	}

	messages := session.Messages
	if window > 0 && len(messages) > window {
		messages = messages[len(messages)-window:]
	}

	turns := make([]prompts.HistoryTurn, 0, len(messages))
	for _, msg := range messages {
		turns = append(turns, prompts.HistoryTurn{Role: msg.Role, Content: msg.Content})
	}
	return turns
}

// truncateTitle 取消息前若干个字符作为会话标题。
func truncateTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= 30 {
		return content
	}
	return string(runes[:30]) + "…"
}
