package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"docuchat/internal/model"
	"docuchat/internal/platform/pinecone"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Session{},
		&model.Message{},
		&model.Document{},
		&model.ActivityEvent{},
	))
	return db
}

// fakeEmbedder embeds every text as a fixed-size vector and records the
// texts it saw, in order.
type fakeEmbedder struct {
	texts []string
	err   error
	calls int
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.texts = append(f.texts, texts...)
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(len(texts[i])), float32(i)}
	}
	return vectors, nil
}

type upsertCall struct {
	namespace string
	vectors   []pinecone.Vector
}

type fakeIndex struct {
	upserts    []upsertCall
	queryNS    []string
	matches    []pinecone.Match
	upsertErr  error
	queryErr   error
	queryCalls int
}

func (f *fakeIndex) Upsert(ctx context.Context, namespace string, vectors []pinecone.Vector) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, upsertCall{namespace: namespace, vectors: vectors})
	return nil
}

func (f *fakeIndex) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]pinecone.Match, error) {
	f.queryCalls++
	f.queryNS = append(f.queryNS, namespace)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if topK < len(f.matches) {
		return f.matches[:topK], nil
	}
	return f.matches, nil
}

type fakeBlobStore struct {
	puts map[string][]byte
	err  error
}

func (f *fakeBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.puts == nil {
		f.puts = make(map[string][]byte)
	}
	f.puts[key] = data
	return key, nil
}

func (f *fakeBlobStore) PresignedURL(key string, ttl time.Duration) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("https://blobs.test/%s?expires=%d", key, int(ttl.Seconds())), nil
}

type fakeInvoker struct {
	prompts  []string
	backends []string
	reply    string
	err      error
}

func (f *fakeInvoker) Invoke(ctx context.Context, backendKey, prompt string) (string, error) {
	f.backends = append(f.backends, backendKey)
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	if f.reply == "" {
		return "canned reply", nil
	}
	return f.reply, nil
}

type fakePublisher struct {
	events []model.ActivityEvent
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, event model.ActivityEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

var errBoom = errors.New("boom")
