package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"tutorbase/internal/core/domain"
)

func newChunkRepoWithMock(t *testing.T) (*ChunkRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &ChunkRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestReplaceChunksDeletesThenInserts(t *testing.T) {
	repo, mock, done := newChunkRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM document_chunks").
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO document_chunks").
		WithArgs("chunk-1", "doc-1", "col-1", 0, "content", 0, 7, 2, 1, 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	doc := &domain.Document{ID: "doc-1", CollectionID: "col-1"}
	chunks := []domain.Chunk{{
		ID: "chunk-1", DocumentID: "doc-1", CollectionID: "col-1",
		Index: 0, Content: "content", CharStart: 0, CharEnd: 7, TokenCount: 2, PageStart: 1, PageEnd: 1,
	}}

	stored, err := repo.ReplaceChunks(context.Background(), doc, chunks)
	if err != nil {
		t.Fatalf("ReplaceChunks() error = %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected 1 stored chunk, got %d", len(stored))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReplaceChunksRollsBackOnInsertError(t *testing.T) {
	repo, mock, done := newChunkRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM document_chunks").
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO document_chunks").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	doc := &domain.Document{ID: "doc-1", CollectionID: "col-1"}
	_, err := repo.ReplaceChunks(context.Background(), doc, []domain.Chunk{{ID: "chunk-1", DocumentID: "doc-1"}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateEmbeddingSendsVectorLiteral(t *testing.T) {
	repo, mock, done := newChunkRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE document_chunks").
		WithArgs("chunk-1", "[0.5,-1,0.25]").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateEmbedding(context.Background(), "chunk-1", []float32{0.5, -1, 0.25}); err != nil {
		t.Fatalf("UpdateEmbedding() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateEmbeddingMissingChunk(t *testing.T) {
	repo, mock, done := newChunkRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE document_chunks").
		WithArgs("missing", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.UpdateEmbedding(context.Background(), "missing", []float32{1}); err == nil {
		t.Fatalf("expected error for missing chunk")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRankScansScoredChunks(t *testing.T) {
	repo, mock, done := newChunkRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{
		"id", "document_id", "collection_id", "chunk_index", "content",
		"char_start", "char_end", "token_count", "page_start", "page_end",
		"similarity", "filename",
	}).AddRow("chunk-1", "doc-1", "col-1", 0, "relevant text", 0, 13, 3, 2, 3, 0.87, "notes.pdf")

	mock.ExpectQuery("SELECT c.id, c.document_id").
		WithArgs("col-1", "[1,0]", 0.7, 5).
		WillReturnRows(rows)

	out, err := repo.Rank(context.Background(), domain.SearchScope{CollectionID: "col-1"}, []float32{1, 0}, 5, 0.7)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 row, got %d", len(out))
	}
	sc := out[0]
	if sc.Score != 0.87 || sc.Filename != "notes.pdf" {
		t.Fatalf("unexpected scored chunk %+v", sc)
	}
	if sc.Chunk.PageStart != 2 || sc.Chunk.PageEnd != 3 {
		t.Fatalf("page range not scanned: %+v", sc.Chunk)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFetchEmbeddedParsesVectors(t *testing.T) {
	repo, mock, done := newChunkRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{
		"id", "document_id", "collection_id", "chunk_index", "content",
		"char_start", "char_end", "token_count", "page_start", "page_end",
		"embedding", "filename",
	}).AddRow("chunk-1", "doc-1", "col-1", 0, "text", 0, 4, 1, 1, 1, "[0.25,0.5,-1]", "a.pdf")

	mock.ExpectQuery("SELECT c.id, c.document_id").
		WithArgs("col-1").
		WillReturnRows(rows)

	out, err := repo.FetchEmbedded(context.Background(), domain.SearchScope{CollectionID: "col-1"})
	if err != nil {
		t.Fatalf("FetchEmbedded() error = %v", err)
	}
	vec := out[0].Chunk.Embedding
	if len(vec) != 3 || vec[0] != 0.25 || vec[1] != 0.5 || vec[2] != -1 {
		t.Fatalf("vector parsed wrong: %v", vec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFetchEmbeddedRejectsMalformedVector(t *testing.T) {
	repo, mock, done := newChunkRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{
		"id", "document_id", "collection_id", "chunk_index", "content",
		"char_start", "char_end", "token_count", "page_start", "page_end",
		"embedding", "filename",
	}).AddRow("chunk-1", "doc-1", "col-1", 0, "text", 0, 4, 1, 1, 1, "not-a-vector", "a.pdf")

	mock.ExpectQuery("SELECT c.id, c.document_id").
		WithArgs("col-1").
		WillReturnRows(rows)

	if _, err := repo.FetchEmbedded(context.Background(), domain.SearchScope{CollectionID: "col-1"}); err == nil {
		t.Fatalf("expected parse error for malformed vector")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDimensionsEmptyScope(t *testing.T) {
	repo, mock, done := newChunkRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT vector_dims").
		WithArgs("col-1").
		WillReturnError(sql.ErrNoRows)

	dims, err := repo.Dimensions(context.Background(), domain.SearchScope{CollectionID: "col-1"})
	if err != nil {
		t.Fatalf("Dimensions() error = %v", err)
	}
	if dims != 0 {
		t.Fatalf("expected 0 dims for empty scope, got %d", dims)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFormatVectorRoundTrip(t *testing.T) {
	in := []float32{0.1, -2.5, 3}
	parsed, err := parseVector(formatVector(in))
	if err != nil {
		t.Fatalf("parseVector() error = %v", err)
	}
	if len(parsed) != len(in) {
		t.Fatalf("length mismatch: %d vs %d", len(parsed), len(in))
	}
	for i := range in {
		if parsed[i] != in[i] {
			t.Fatalf("component %d: %f != %f", i, parsed[i], in[i])
		}
	}
}
