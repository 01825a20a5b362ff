package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuchat/internal/ai"
	"docuchat/internal/cache"
	"docuchat/internal/model"
	"docuchat/internal/platform/pinecone"
	"docuchat/internal/repository"
)

type chatFixture struct {
	svc         *ChatService
	sessionRepo *repository.SessionRepository
	messageRepo *repository.MessageRepository
	embedder    *fakeEmbedder
	index       *fakeIndex
	invoker     *fakeInvoker
	publisher   *fakePublisher
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	db := newTestDB(t)
	f := &chatFixture{
		sessionRepo: repository.NewSessionRepository(db),
		messageRepo: repository.NewMessageRepository(db),
		embedder:    &fakeEmbedder{},
		index:       &fakeIndex{},
		invoker:     &fakeInvoker{},
		publisher:   &fakePublisher{},
	}
	f.svc = NewChatService(f.sessionRepo, f.messageRepo, f.embedder, f.index, f.invoker, nil, f.publisher, 4)
	return f
}

func (f *chatFixture) mustCreateSession(t *testing.T, userID uint) *model.Session {
	t.Helper()
	session, err := f.svc.CreateSession(CreateSessionInput{UserID: userID, Title: "test session"})
	require.NoError(t, err)
	return session
}

func TestCreateSessionDefaultTitle(t *testing.T) {
	f := newChatFixture(t)

	session, err := f.svc.CreateSession(CreateSessionInput{UserID: 1, Title: "   "})
	require.NoError(t, err)
	assert.Equal(t, "New Chat", session.Title)
	assert.Equal(t, uint(1), session.UserID)
}

func TestConverseHappyPath(t *testing.T) {
	f := newChatFixture(t)
	session := f.mustCreateSession(t, 1)
	f.invoker.reply = "the assistant answer"

	reply, err := f.svc.Converse(context.Background(), ConverseInput{
		SessionID:    session.ID,
		UserID:       1,
		Backend:      ai.BackendClaude,
		SystemPrompt: "You are helpful.",
		UserInput:    "Hello there",
	})
	require.NoError(t, err)
	assert.Equal(t, "the assistant answer", reply)

	// Prompt carries the system prompt and the fresh user input.
	require.Len(t, f.invoker.prompts, 1)
	assert.Equal(t, "You are helpful.\nUser: Hello there", f.invoker.prompts[0])

	// Both turns are stored in order.
	messages, err := f.messageRepo.ListBySessionID(session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, model.RoleUser, messages[0].Role)
	assert.Equal(t, "Hello there", messages[0].Content)
	assert.Equal(t, model.RoleAssistant, messages[1].Role)
	assert.Equal(t, "the assistant answer", messages[1].Content)

	// Retrieval never ran.
	assert.Zero(t, f.embedder.calls)
	assert.Zero(t, f.index.queryCalls)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, model.EventChatCompleted, f.publisher.events[0].Kind)
}

func TestConverseHistoryExcludesCurrentInput(t *testing.T) {
	f := newChatFixture(t)
	session := f.mustCreateSession(t, 1)
	ctx := context.Background()

	_, err := f.svc.Converse(ctx, ConverseInput{
		SessionID: session.ID, UserID: 1, Backend: ai.BackendClaude,
		SystemPrompt: "Sys", UserInput: "first question",
	})
	require.NoError(t, err)

	_, err = f.svc.Converse(ctx, ConverseInput{
		SessionID: session.ID, UserID: 1, Backend: ai.BackendClaude,
		SystemPrompt: "Sys", UserInput: "second question",
	})
	require.NoError(t, err)

	require.Len(t, f.invoker.prompts, 2)
	expected := "Sys\n" +
		"User: first question\n" +
		"Assistant: canned reply\n" +
		"User: second question"
	assert.Equal(t, expected, f.invoker.prompts[1])
}

func TestConverseBlankHistoryTurnsDropped(t *testing.T) {
	f := newChatFixture(t)
	session := f.mustCreateSession(t, 1)

	require.NoError(t, f.messageRepo.Create(&model.Message{SessionID: session.ID, Role: model.RoleUser, Content: "Ping"}))
	require.NoError(t, f.messageRepo.Create(&model.Message{SessionID: session.ID, Role: model.RoleAssistant, Content: "   "}))
	require.NoError(t, f.messageRepo.Create(&model.Message{SessionID: session.ID, Role: model.RoleAssistant, Content: "Pong"}))

	_, err := f.svc.Converse(context.Background(), ConverseInput{
		SessionID: session.ID, UserID: 1, Backend: ai.BackendTitan,
		SystemPrompt: "System Start", UserInput: "What's the weather?",
	})
	require.NoError(t, err)

	expected := "System Start\n" +
		"User: Ping\n" +
		"Assistant: Pong\n" +
		"User: What's the weather?\n" +
		"Assistant:"
	assert.Equal(t, expected, f.invoker.prompts[0])
}

func TestConverseSessionOwnership(t *testing.T) {
	f := newChatFixture(t)
	session := f.mustCreateSession(t, 1)

	_, err := f.svc.Converse(context.Background(), ConverseInput{
		SessionID: session.ID, UserID: 2, Backend: ai.BackendClaude,
		UserInput: "let me in", EnableRAG: true,
	})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// The ownership check precedes every remote call.
	assert.Zero(t, f.embedder.calls)
	assert.Zero(t, f.index.queryCalls)
	assert.Empty(t, f.invoker.prompts)

	messages, _ := f.messageRepo.ListBySessionID(session.ID)
	assert.Empty(t, messages)
}

func TestConverseMissingSession(t *testing.T) {
	f := newChatFixture(t)

	_, err := f.svc.Converse(context.Background(), ConverseInput{
		SessionID: 999, UserID: 1, Backend: ai.BackendClaude, UserInput: "hi",
	})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestConverseEmptyMessage(t *testing.T) {
	f := newChatFixture(t)
	session := f.mustCreateSession(t, 1)

	_, err := f.svc.Converse(context.Background(), ConverseInput{
		SessionID: session.ID, UserID: 1, Backend: ai.BackendClaude, UserInput: "   \n ",
	})
	assert.ErrorIs(t, err, ErrMessageEmpty)
}

func TestConverseUnknownBackend(t *testing.T) {
	f := newChatFixture(t)
	session := f.mustCreateSession(t, 1)

	_, err := f.svc.Converse(context.Background(), ConverseInput{
		SessionID: session.ID, UserID: 1, Backend: "llama", UserInput: "hi",
	})
	assert.ErrorIs(t, err, ai.ErrUnsupportedBackend)
}

func TestConverseUserTurnSurvivesInvokeFailure(t *testing.T) {
	f := newChatFixture(t)
	session := f.mustCreateSession(t, 1)
	f.invoker.err = errBoom

	_, err := f.svc.Converse(context.Background(), ConverseInput{
		SessionID: session.ID, UserID: 1, Backend: ai.BackendClaude, UserInput: "doomed question",
	})
	require.Error(t, err)

	// The user turn was persisted before the model call; no assistant
	// turn follows it.
	messages, dbErr := f.messageRepo.ListBySessionID(session.ID)
	require.NoError(t, dbErr)
	require.Len(t, messages, 1)
	assert.Equal(t, model.RoleUser, messages[0].Role)
	assert.Equal(t, "doomed question", messages[0].Content)
	assert.Empty(t, f.publisher.events)
}

func TestConverseRAGAugmentsSystemPrompt(t *testing.T) {
	f := newChatFixture(t)
	session := f.mustCreateSession(t, 4)
	f.index.matches = []pinecone.Match{
		{ID: "a", Score: 0.9, Metadata: map[string]string{"text": "chunk alpha"}},
		{ID: "b", Score: 0.8, Metadata: map[string]string{"text": "chunk beta"}},
	}

	_, err := f.svc.Converse(context.Background(), ConverseInput{
		SessionID: session.ID, UserID: 4, Backend: ai.BackendClaude,
		SystemPrompt: "Base prompt.", UserInput: "what do the docs say?",
		EnableRAG: true,
	})
	require.NoError(t, err)

	// Query went to the owner's namespace.
	require.Len(t, f.index.queryNS, 1)
	assert.Equal(t, "user-4", f.index.queryNS[0])

	require.Len(t, f.invoker.prompts, 1)
	assert.True(t, strings.HasPrefix(f.invoker.prompts[0], "Base prompt.\n\nContext:\nchunk alpha\nchunk beta\n"))
}

func TestConverseRAGNoMatchesLeavesPromptUnchanged(t *testing.T) {
	f := newChatFixture(t)
	session := f.mustCreateSession(t, 4)
	f.index.matches = nil

	_, err := f.svc.Converse(context.Background(), ConverseInput{
		SessionID: session.ID, UserID: 4, Backend: ai.BackendClaude,
		SystemPrompt: "Base prompt.", UserInput: "anything indexed?",
		EnableRAG: true,
	})
	require.NoError(t, err)

	require.Len(t, f.invoker.prompts, 1)
	assert.NotContains(t, f.invoker.prompts[0], "Context:")
	assert.Equal(t, "Base prompt.\nUser: anything indexed?", f.invoker.prompts[0])
}

func TestConverseRAGSkipsBlankMetadataText(t *testing.T) {
	f := newChatFixture(t)
	session := f.mustCreateSession(t, 4)
	f.index.matches = []pinecone.Match{
		{ID: "a", Score: 0.9, Metadata: map[string]string{}},
		{ID: "b", Score: 0.8, Metadata: map[string]string{"text": "usable chunk"}},
	}

	_, err := f.svc.Converse(context.Background(), ConverseInput{
		SessionID: session.ID, UserID: 4, Backend: ai.BackendClaude,
		SystemPrompt: "Base.", UserInput: "q", EnableRAG: true,
	})
	require.NoError(t, err)

	assert.Contains(t, f.invoker.prompts[0], "Context:\nusable chunk")
}

func TestConverseRAGEmbedFailure(t *testing.T) {
	f := newChatFixture(t)
	session := f.mustCreateSession(t, 4)
	f.embedder.err = errBoom

	_, err := f.svc.Converse(context.Background(), ConverseInput{
		SessionID: session.ID, UserID: 4, Backend: ai.BackendClaude,
		UserInput: "q", EnableRAG: true,
	})
	require.Error(t, err)
	assert.Empty(t, f.invoker.prompts)

	// The user turn is already durable at this point.
	messages, _ := f.messageRepo.ListBySessionID(session.ID)
	require.Len(t, messages, 1)
	assert.Equal(t, model.RoleUser, messages[0].Role)
}

func TestConverseHistoryCacheInterplay(t *testing.T) {
	db := newTestDB(t)
	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	historyCache := cache.NewHistoryCache(client, time.Minute, 5*time.Second)

	invoker := &fakeInvoker{}
	svc := NewChatService(
		repository.NewSessionRepository(db),
		repository.NewMessageRepository(db),
		&fakeEmbedder{},
		&fakeIndex{},
		invoker,
		historyCache,
		&fakePublisher{},
		4,
	)

	session, err := svc.CreateSession(CreateSessionInput{UserID: 1, Title: "cached"})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.Converse(ctx, ConverseInput{
		SessionID: session.ID, UserID: 1, Backend: ai.BackendClaude,
		SystemPrompt: "Sys", UserInput: "first question",
	})
	require.NoError(t, err)

	// The dirty marker set by the append blocks the cache; this read
	// falls through to the database.
	history, err := svc.GetHistory(ctx, 1, session.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)

	// Once the marker lapses, a read fills the cache.
	mr.FastForward(6 * time.Second)
	history, err = svc.GetHistory(ctx, 1, session.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	cached, hit, err := historyCache.GetHistory(ctx, session.ID)
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, cached, 2)

	// The next turn builds its prompt from the two cached turns, then
	// appending drops the cached copy.
	_, err = svc.Converse(ctx, ConverseInput{
		SessionID: session.ID, UserID: 1, Backend: ai.BackendClaude,
		SystemPrompt: "Sys", UserInput: "second question",
	})
	require.NoError(t, err)
	expected := "Sys\n" +
		"User: first question\n" +
		"Assistant: canned reply\n" +
		"User: second question"
	assert.Equal(t, expected, invoker.prompts[1])

	_, hit, err = historyCache.GetHistory(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, hit)

	// A read after the append sees the fresh transcript, never the stale
	// cached pair.
	history, err = svc.GetHistory(ctx, 1, session.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "second question", history[2].Content)
	assert.Equal(t, model.RoleAssistant, history[3].Role)
}

func TestDeleteSessionCascades(t *testing.T) {
	f := newChatFixture(t)
	session := f.mustCreateSession(t, 1)
	ctx := context.Background()

	_, err := f.svc.Converse(ctx, ConverseInput{
		SessionID: session.ID, UserID: 1, Backend: ai.BackendClaude, UserInput: "hi",
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteSession(ctx, 1, session.ID))

	sessions, err := f.svc.ListSessions(1)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	messages, err := f.messageRepo.ListBySessionID(session.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestDeleteSessionWrongOwner(t *testing.T) {
	f := newChatFixture(t)
	session := f.mustCreateSession(t, 1)

	err := f.svc.DeleteSession(context.Background(), 2, session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGetHistoryOwnership(t *testing.T) {
	f := newChatFixture(t)
	session := f.mustCreateSession(t, 1)

	_, err := f.svc.GetHistory(context.Background(), 2, session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestListSessionsMostRecentFirst(t *testing.T) {
	f := newChatFixture(t)
	first := f.mustCreateSession(t, 1)
	second := f.mustCreateSession(t, 1)
	ctx := context.Background()

	// Activity on the older session bumps it to the front.
	_, err := f.svc.Converse(ctx, ConverseInput{
		SessionID: first.ID, UserID: 1, Backend: ai.BackendClaude, UserInput: "bump",
	})
	require.NoError(t, err)

	sessions, err := f.svc.ListSessions(1)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, first.ID, sessions[0].ID)
	assert.Equal(t, second.ID, sessions[1].ID)
}
