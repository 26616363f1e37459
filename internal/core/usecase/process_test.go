package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/policy-qa/internal/core/domain"
)

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract(context.Context, *domain.Document) (string, error) {
	return f.text, f.err
}

type fakeChunker struct{}

func (fakeChunker) Split(text string) []domain.Passage {
	if text == "" {
		return nil
	}
	return []domain.Passage{
		{Section: "PART I", Text: text},
		{Section: "PART II", Text: "second passage"},
	}
}

type fakeEmbedder struct {
	dim int
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
		out[i][0] = 1
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	vecs, err := f.Embed(context.Background(), []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

type fakeIndex struct {
	upserted  []domain.EmbeddedChunk
	upsertErr error
}

func (f *fakeIndex) Upsert(_ context.Context, chunks []domain.EmbeddedChunk) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, chunks...)
	return nil
}

func (f *fakeIndex) Query(context.Context, []float32, int, map[string]struct{}) ([]domain.RetrievalResult, error) {
	return nil, nil
}

func uploadedDoc(id string) *domain.Document {
	doc := readyDoc(id)
	doc.Status = domain.StatusUploaded
	return doc
}

func TestProcessByIDHappyPath(t *testing.T) {
	repo := newFakeDocumentRepo(uploadedDoc("doc1"))
	store := newFakeChunkStore()
	index := &fakeIndex{}
	uc := NewProcessUseCase(repo, store, &fakeExtractor{text: "PART I COVERAGE maternity is covered"}, fakeChunker{}, &fakeEmbedder{dim: 3}, index, nil)

	if err := uc.ProcessByID(context.Background(), "doc1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}

	transitions := repo.status["doc1"]
	if len(transitions) != 2 || transitions[0] != domain.StatusProcessing || transitions[1] != domain.StatusReady {
		t.Fatalf("unexpected status transitions: %v", transitions)
	}
	chunks := store.replaced["doc1"]
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks persisted, got %d", len(chunks))
	}
	if chunks[0].ID != "doc1:0" || chunks[1].ID != "doc1:1" {
		t.Fatalf("expected stable positional ids, got %s %s", chunks[0].ID, chunks[1].ID)
	}
	if chunks[0].Metadata.Section != "PART I" {
		t.Fatalf("section metadata lost: %+v", chunks[0].Metadata)
	}
	if len(index.upserted) != 2 {
		t.Fatalf("expected 2 vectors indexed, got %d", len(index.upserted))
	}
}

func TestProcessByIDExtractFailureMarksFailed(t *testing.T) {
	repo := newFakeDocumentRepo(uploadedDoc("doc1"))
	uc := NewProcessUseCase(repo, newFakeChunkStore(), &fakeExtractor{err: errors.New("corrupt pdf")}, fakeChunker{}, &fakeEmbedder{dim: 3}, &fakeIndex{}, nil)

	if err := uc.ProcessByID(context.Background(), "doc1"); err == nil {
		t.Fatalf("expected error")
	}
	transitions := repo.status["doc1"]
	if len(transitions) != 2 || transitions[1] != domain.StatusFailed {
		t.Fatalf("expected failed transition, got %v", transitions)
	}
	if repo.errMsgs["doc1"] == "" {
		t.Fatalf("expected failure reason recorded")
	}
}

func TestProcessByIDEmptyTextFails(t *testing.T) {
	repo := newFakeDocumentRepo(uploadedDoc("doc1"))
	uc := NewProcessUseCase(repo, newFakeChunkStore(), &fakeExtractor{text: ""}, fakeChunker{}, &fakeEmbedder{dim: 3}, &fakeIndex{}, nil)

	if err := uc.ProcessByID(context.Background(), "doc1"); err == nil {
		t.Fatalf("expected error for chunkless document")
	}
	if repo.docs["doc1"].Status != domain.StatusFailed {
		t.Fatalf("expected failed status, got %s", repo.docs["doc1"].Status)
	}
}

func TestProcessByIDIndexWriteFailureAborts(t *testing.T) {
	repo := newFakeDocumentRepo(uploadedDoc("doc1"))
	indexErr := domain.WrapError(domain.ErrIndexPersistence, "vector upsert", errors.New("disk full"))
	uc := NewProcessUseCase(repo, newFakeChunkStore(), &fakeExtractor{text: "some text"}, fakeChunker{}, &fakeEmbedder{dim: 3}, &fakeIndex{upsertErr: indexErr}, nil)

	err := uc.ProcessByID(context.Background(), "doc1")
	if !domain.IsKind(err, domain.ErrIndexPersistence) {
		t.Fatalf("expected ErrIndexPersistence, got %v", err)
	}
	if repo.docs["doc1"].Status != domain.StatusFailed {
		t.Fatalf("expected failed status, got %s", repo.docs["doc1"].Status)
	}
}

func TestProcessByIDUnknownDocument(t *testing.T) {
	uc := NewProcessUseCase(newFakeDocumentRepo(), newFakeChunkStore(), &fakeExtractor{}, fakeChunker{}, &fakeEmbedder{dim: 3}, &fakeIndex{}, nil)

	if err := uc.ProcessByID(context.Background(), "missing"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}
