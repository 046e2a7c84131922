// internal/store/sessions.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"cyphr-server/internal/common/logger"
)

const sessionKeyPrefix = "session:"

// Message is one turn of a conversation.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Session holds conversation state for one client. Stored as a JSON blob in
// Redis with an idle TTL refreshed on every touch.
type Session struct {
	ID         string                 `json:"id"`
	CreatedAt  string                 `json:"created_at"`
	LastActive string                 `json:"last_active"`
	Metadata   map[string]interface{} `json:"metadata"`
	Messages   []Message              `json:"messages"`
}

// SessionStore keeps conversation sessions in Redis.
type SessionStore struct {
	client      *redis.Client
	ttl         time.Duration
	maxMessages int
	logger      logger.Logger
}

func NewSessionStore(client *redis.Client, ttl time.Duration, maxMessages int, log logger.Logger) *SessionStore {
	if maxMessages <= 0 {
		maxMessages = 10
	}
	return &SessionStore{
		client:      client,
		ttl:         ttl,
		maxMessages: maxMessages,
		logger:      log.WithFields(map[string]interface{}{"component": "session-store"}),
	}
}

// GetOrCreate loads a session, creating a fresh one when the id is empty or
// unknown. The second return reports whether a session was created.
func (s *SessionStore) GetOrCreate(ctx context.Context, sessionID string, metadata map[string]interface{}) (*Session, bool, error) {
	if sessionID != "" {
		session, err := s.Get(ctx, sessionID)
		if err == nil {
			return session, false, nil
		}
		if err != ErrNotFound {
			return nil, false, err
		}
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	session := &Session{
		ID:         sessionID,
		CreatedAt:  now,
		LastActive: now,
		Metadata:   metadata,
		Messages:   []Message{},
	}
	if err := s.save(ctx, session); err != nil {
		return nil, false, err
	}

	s.logger.Info("session created", map[string]interface{}{"sessionId": sessionID})
	return session, true, nil
}

// Get loads a session and refreshes its TTL.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	raw, err := s.client.Get(ctx, sessionKeyPrefix+sessionID).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}

	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}

	session.LastActive = time.Now().UTC().Format(time.RFC3339)
	if err := s.save(ctx, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// AppendMessage records one conversation turn. History is capped at twice the
// context window so user/assistant pairs survive trimming together.
func (s *SessionStore) AppendMessage(ctx context.Context, sessionID, role, content string) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	session.Messages = append(session.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})

	limit := s.maxMessages * 2
	if len(session.Messages) > limit {
		session.Messages = session.Messages[len(session.Messages)-limit:]
	}

	return s.save(ctx, session)
}

// PromptContext renders the most recent history as conversation text for
// prompt assembly. Returns "" for an empty or unknown session.
func (s *SessionStore) PromptContext(ctx context.Context, sessionID string) (string, error) {
	session, err := s.Get(ctx, sessionID)
	if err == ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	messages := session.Messages
	if len(messages) > s.maxMessages {
		messages = messages[len(messages)-s.maxMessages:]
	}
	if len(messages) == 0 {
		return "", nil
	}

	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		role := "Assistant"
		if strings.EqualFold(msg.Role, "user") {
			role = "User"
		}
		b.WriteString(role + ": " + msg.Content)
	}
	return b.String(), nil
}

// Delete removes a session. Returns ErrNotFound when the id is unknown.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	deleted, err := s.client.Del(ctx, sessionKeyPrefix+sessionID).Result()
	if err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	if deleted == 0 {
		return ErrNotFound
	}

	s.logger.Info("session deleted", map[string]interface{}{"sessionId": sessionID})
	return nil
}

func (s *SessionStore) save(ctx context.Context, session *Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.ID, err)
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+session.ID, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", session.ID, err)
	}
	return nil
}
