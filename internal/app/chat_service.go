package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docuchat/internal/ai"
	"docuchat/internal/model"
	"docuchat/internal/repository"
)

var ErrMessageEmpty = errors.New("message content is empty")

const defaultRetrievalTopK = 4

// ChatService orchestrates conversations: session ownership check,
// history load, optional retrieval, backend prompt assembly, model
// invocation, transcript persistence. All steps run synchronously in
// order; the user turn is persisted before any model call so the
// question survives a failed invocation. Concurrent Converse calls on
// one session are not serialized here; callers are expected to keep a
// single conversation in flight per session.
type ChatService struct {
	sessionRepo  *repository.SessionRepository
	messageRepo  *repository.MessageRepository
	embedder     TextEmbedder
	index        VectorIndex
	invoker      ModelInvoker
	historyCache HistoryCache
	publisher    EventPublisher
	topK         int
}

func NewChatService(
	sessionRepo *repository.SessionRepository,
	messageRepo *repository.MessageRepository,
	embedder TextEmbedder,
	index VectorIndex,
	invoker ModelInvoker,
	historyCache HistoryCache,
	publisher EventPublisher,
	topK int,
) *ChatService {
	if topK <= 0 {
		topK = defaultRetrievalTopK
	}
	return &ChatService{
		sessionRepo:  sessionRepo,
		messageRepo:  messageRepo,
		embedder:     embedder,
		index:        index,
		invoker:      invoker,
		historyCache: historyCache,
		publisher:    publisher,
		topK:         topK,
	}
}

type CreateSessionInput struct {
	UserID uint
	Title  string
}

func (s *ChatService) CreateSession(input CreateSessionInput) (*model.Session, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "New Chat"
	}
	session := &model.Session{UserID: input.UserID, Title: title}
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *ChatService) ListSessions(userID uint) ([]model.Session, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.sessionRepo.ListByUserID(userID)
}

// DeleteSession removes a session and all of its messages.
func (s *ChatService) DeleteSession(ctx context.Context, userID, sessionID uint) error {
	if userID == 0 || sessionID == 0 {
		return ErrInvalidInput
	}
	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if err := s.messageRepo.DeleteBySessionID(sessionID); err != nil {
		return err
	}
	if err := s.sessionRepo.DeleteByIDAndUserID(sessionID, userID); err != nil {
		return err
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(ctx, sessionID)
	}
	return nil
}

// GetHistory returns the session's messages in conversation order,
// including blank ones; blank turns are only filtered when building
// prompts.
func (s *ChatService) GetHistory(ctx context.Context, userID, sessionID uint) ([]model.Message, error) {
	if userID == 0 || sessionID == 0 {
		return nil, ErrInvalidInput
	}
	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return s.loadMessages(ctx, sessionID)
}

type ConverseInput struct {
	SessionID    uint
	UserID       uint
	Backend      string
	SystemPrompt string
	UserInput    string
	EnableRAG    bool
}

// Converse runs one conversation turn and returns the assistant reply.
// The user turn is durably persisted before retrieval and invocation; a
// failure after that point surfaces to the caller with the user turn
// kept and no assistant turn written.
func (s *ChatService) Converse(ctx context.Context, input ConverseInput) (string, error) {
	if input.UserID == 0 || input.SessionID == 0 {
		return "", ErrInvalidInput
	}
	if strings.TrimSpace(input.UserInput) == "" {
		return "", ErrMessageEmpty
	}

	// Ownership check comes first, before any remote call. A session
	// owned by someone else is indistinguishable from a missing one.
	session, err := s.sessionRepo.GetByIDAndUserID(input.SessionID, input.UserID)
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", ErrSessionNotFound
	}

	messages, err := s.loadMessages(ctx, input.SessionID)
	if err != nil {
		return "", err
	}
	history := promptHistory(messages)

	if err := s.appendTurn(ctx, input.SessionID, model.RoleUser, input.UserInput); err != nil {
		return "", err
	}

	systemPrompt := input.SystemPrompt
	if input.EnableRAG {
		augmented, ragErr := s.retrieveContext(ctx, input.UserID, input.UserInput, systemPrompt)
		if ragErr != nil {
			return "", ragErr
		}
		systemPrompt = augmented
	}

	prompt, err := ai.FormatPrompt(input.Backend, systemPrompt, history, input.UserInput)
	if err != nil {
		return "", err
	}

	reply, err := s.invoker.Invoke(ctx, input.Backend, prompt)
	if err != nil {
		return "", err
	}

	if err := s.appendTurn(ctx, input.SessionID, model.RoleAssistant, reply); err != nil {
		return "", err
	}

	publishEvent(ctx, s.publisher, input.UserID, model.EventChatCompleted, map[string]interface{}{
		"session_id": input.SessionID,
		"backend":    input.Backend,
		"rag":        input.EnableRAG,
	})

	return reply, nil
}

// retrieveContext embeds the user input, queries the owner's namespace,
// and appends the matched chunk texts under a "Context:" label. With
// zero matches the system prompt comes back unchanged; an empty context
// block is never emitted.
func (s *ChatService) retrieveContext(ctx context.Context, userID uint, userInput, systemPrompt string) (string, error) {
	vectors, err := s.embedder.EmbedTexts(ctx, []string{userInput})
	if err != nil {
		return "", fmt.Errorf("embed query failed: %w", err)
	}

	matches, err := s.index.Query(ctx, vectorNamespace(userID), vectors[0], s.topK)
	if err != nil {
		return "", fmt.Errorf("query vector index failed: %w", err)
	}

	texts := make([]string, 0, len(matches))
	for _, match := range matches {
		if text := match.Metadata["text"]; text != "" {
			texts = append(texts, text)
		}
	}
	if len(texts) == 0 {
		return systemPrompt, nil
	}
	return systemPrompt + "\n\nContext:\n" + strings.Join(texts, "\n"), nil
}

func (s *ChatService) appendTurn(ctx context.Context, sessionID uint, role, content string) error {
	msg := &model.Message{SessionID: sessionID, Role: role, Content: content}
	if err := s.messageRepo.Create(msg); err != nil {
		return err
	}
	if err := s.sessionRepo.Touch(sessionID); err != nil {
		return err
	}
	if s.historyCache != nil {
		_ = s.historyCache.MarkDirty(ctx, sessionID)
		_ = s.historyCache.DeleteHistory(ctx, sessionID)
	}
	return nil
}

func (s *ChatService) loadMessages(ctx context.Context, sessionID uint) ([]model.Message, error) {
	if s.historyCache != nil {
		if dirty, err := s.historyCache.IsDirty(ctx, sessionID); err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, sessionID); cacheErr == nil && hit {
				return cached, nil
			}
		}
	}

	messages, err := s.messageRepo.ListBySessionID(sessionID)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, err := s.historyCache.IsDirty(ctx, sessionID); err == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, sessionID, messages)
		}
	}
	return messages, nil
}

// promptHistory converts stored messages into prompt turns, dropping any
// turn whose content is blank.
func promptHistory(messages []model.Message) []ai.Turn {
	history := make([]ai.Turn, 0, len(messages))
	for _, msg := range messages {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		history = append(history, ai.Turn{Role: msg.Role, Content: msg.Content})
	}
	return history
}
