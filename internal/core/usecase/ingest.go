package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/policy-qa/internal/core/domain"
	"github.com/kirillkom/policy-qa/internal/core/ports"
)

// IngestUseCase accepts an uploaded policy document, stores the raw bytes and
// schedules asynchronous processing through the message queue.
type IngestUseCase struct {
	documents ports.DocumentRepository
	storage   ports.ObjectStorage
	queue     ports.MessageQueue
	log       *slog.Logger
}

func NewIngestUseCase(documents ports.DocumentRepository, storage ports.ObjectStorage, queue ports.MessageQueue, log *slog.Logger) *IngestUseCase {
	if log == nil {
		log = slog.Default()
	}
	return &IngestUseCase{documents: documents, storage: storage, queue: queue, log: log}
}

func (uc *IngestUseCase) Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error) {
	filename = sanitizeFilename(filename)
	if filename == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("empty filename"))
	}

	id := uuid.NewString()
	storagePath := id + filepath.Ext(filename)
	if err := uc.storage.Save(ctx, storagePath, body); err != nil {
		return nil, fmt.Errorf("store document %s: %w", id, err)
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:          id,
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: storagePath,
		Title:       titleFromFilename(filename),
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.documents.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document record: %w", err)
	}

	if err := uc.queue.PublishDocumentIngested(ctx, id); err != nil {
		// The record exists; cmd/reindex or a manual re-publish can recover it.
		uc.log.Error("ingest_publish_failed", "document_id", id, "error", err)
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}

	uc.log.Info("document_uploaded", "document_id", id, "filename", filename)
	return doc, nil
}

func (uc *IngestUseCase) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	return uc.documents.GetByID(ctx, id)
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return name
}

func titleFromFilename(name string) string {
	title := strings.TrimSuffix(name, filepath.Ext(name))
	title = strings.NewReplacer("_", " ", "-", " ").Replace(title)
	return strings.TrimSpace(title)
}
