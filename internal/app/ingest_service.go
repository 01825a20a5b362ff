package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"docuchat/internal/model"
	"docuchat/internal/pkg/extract"
	"docuchat/internal/pkg/textsplit"
	"docuchat/internal/platform/pinecone"
	"docuchat/internal/platform/s3store"
	"docuchat/internal/repository"
)

// IngestService runs the document ingestion pipeline: extract text, cut
// chunks, embed, index the vectors, store the blob, then write the
// metadata row. The side-effect order is fixed (vector store, blob
// store, relational store) so a crash mid-pipeline leaves orphaned but
// harmless external artifacts rather than a Document row pointing at
// data that does not exist. There is no transaction spanning the three
// stores and no retry; the first failure aborts the whole ingestion.
type IngestService struct {
	docRepo   *repository.DocumentRepository
	embedder  TextEmbedder
	index     VectorIndex
	blobs     BlobStore
	publisher EventPublisher

	chunkSize    int
	chunkOverlap int
}

func NewIngestService(
	docRepo *repository.DocumentRepository,
	embedder TextEmbedder,
	index VectorIndex,
	blobs BlobStore,
	publisher EventPublisher,
	chunkSize, chunkOverlap int,
) *IngestService {
	if chunkSize <= 0 {
		chunkSize = textsplit.DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = textsplit.DefaultChunkOverlap
	}
	return &IngestService{
		docRepo:      docRepo,
		embedder:     embedder,
		index:        index,
		blobs:        blobs,
		publisher:    publisher,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

type IngestInput struct {
	UserID   uint
	Filename string
	Data     []byte
}

type IngestResult struct {
	DocumentID uint   `json:"document_id"`
	Filename   string `json:"filename"`
	ChunkCount int    `json:"chunk_count"`
	StorageKey string `json:"storage_key"`
}

func (s *IngestService) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	if input.UserID == 0 || strings.TrimSpace(input.Filename) == "" || len(input.Data) == 0 {
		return nil, ErrInvalidInput
	}

	text, err := extract.Text(input.Data, input.Filename)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyContent
	}

	chunks := textsplit.Split(text, s.chunkSize, s.chunkOverlap)
	if len(chunks) == 0 {
		return nil, ErrEmptyContent
	}

	embeddings, err := s.embedder.EmbedTexts(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed chunks failed: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return nil, errors.New("embedding count mismatch")
	}

	namespace := vectorNamespace(input.UserID)
	now := time.Now().UTC().Format(time.RFC3339)
	vectors := make([]pinecone.Vector, len(chunks))
	for i := range chunks {
		vectors[i] = pinecone.Vector{
			ID:     uuid.NewString(),
			Values: embeddings[i],
			Metadata: map[string]string{
				"filename":    input.Filename,
				"user_id":     strconv.FormatUint(uint64(input.UserID), 10),
				"chunk_index": strconv.Itoa(i),
				"text":        chunks[i],
				"timestamp":   now,
			},
		}
	}
	if err := s.index.Upsert(ctx, namespace, vectors); err != nil {
		return nil, fmt.Errorf("index chunks failed: %w", err)
	}

	contentType := s3store.ContentType(input.Filename)
	key, err := s.blobs.Put(ctx, s3store.UploadKey(input.UserID, input.Filename), input.Data, contentType)
	if err != nil {
		return nil, fmt.Errorf("store document blob failed: %w", err)
	}

	doc := &model.Document{
		UserID:          input.UserID,
		Filename:        input.Filename,
		StorageKey:      key,
		FileSize:        int64(len(input.Data)),
		ContentType:     contentType,
		VectorNamespace: namespace,
	}
	if err := s.docRepo.Create(doc); err != nil {
		return nil, err
	}

	publishEvent(ctx, s.publisher, input.UserID, model.EventDocumentIngested, map[string]interface{}{
		"document_id": doc.ID,
		"filename":    input.Filename,
		"chunk_count": len(chunks),
	})

	return &IngestResult{
		DocumentID: doc.ID,
		Filename:   input.Filename,
		ChunkCount: len(chunks),
		StorageKey: key,
	}, nil
}

func (s *IngestService) ListDocuments(userID uint) ([]model.Document, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.docRepo.ListByUserID(userID)
}

// DownloadURL returns a presigned URL for the stored blob of one of the
// user's documents.
func (s *IngestService) DownloadURL(userID, documentID uint, ttl time.Duration) (string, error) {
	if userID == 0 || documentID == 0 {
		return "", ErrInvalidInput
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	doc, err := s.docRepo.GetByIDAndUserID(documentID, userID)
	if err != nil {
		return "", err
	}
	if doc == nil {
		return "", ErrDocumentNotFound
	}
	return s.blobs.PresignedURL(doc.StorageKey, ttl)
}
