package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"docuchat/internal/model"
	"docuchat/internal/platform/pinecone"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrEmptyContent     = errors.New("no extractable text found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrDocumentNotFound = errors.New("document not found")
)

// TextEmbedder turns texts into vectors, one backend call per text,
// preserving order; the first failure aborts with no partial result.
type TextEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is the per-namespace vector store.
type VectorIndex interface {
	Upsert(ctx context.Context, namespace string, vectors []pinecone.Vector) error
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]pinecone.Match, error)
}

// BlobStore keeps raw document bytes.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	PresignedURL(key string, ttl time.Duration) (string, error)
}

// ModelInvoker sends a formatted prompt to a named backend.
type ModelInvoker interface {
	Invoke(ctx context.Context, backendKey, prompt string) (string, error)
}

// EventPublisher pushes activity events onto the queue. Nil disables the
// stream; failures are logged, never propagated.
type EventPublisher interface {
	Publish(ctx context.Context, event model.ActivityEvent) error
}

// HistoryCache caches conversation history per session.
type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID uint) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, sessionID uint, messages []model.Message) error
	DeleteHistory(ctx context.Context, sessionID uint) error
	MarkDirty(ctx context.Context, sessionID uint) error
	IsDirty(ctx context.Context, sessionID uint) (bool, error)
}

// vectorNamespace derives the per-owner partition of the vector index.
// Every vector operation is scoped to exactly one owner's namespace.
func vectorNamespace(userID uint) string {
	return fmt.Sprintf("user-%d", userID)
}

func publishEvent(ctx context.Context, publisher EventPublisher, userID uint, kind string, detail interface{}) {
	if publisher == nil {
		return
	}
	payload, err := json.Marshal(detail)
	if err != nil {
		log.Printf("marshal %s event detail failed: %v", kind, err)
		return
	}
	event := model.ActivityEvent{
		UserID: userID,
		Kind:   kind,
		Detail: string(payload),
	}
	if err := publisher.Publish(ctx, event); err != nil {
		log.Printf("publish %s event failed: %v", kind, err)
	}
}
