package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/document"
)

const documentsTable = "institutional_documents"

var documentColumns = []string{
	"id", "institution_id", "title", "description", "category", "file_url", "file_name",
	"file_size", "mime_type", "visible_to_roles", "is_active", "uploaded_by_id", "created_at",
}

type documentRow struct {
	ID             string      `db:"id"`
	InstitutionID  string      `db:"institution_id"`
	Title          string      `db:"title"`
	Description    null.String `db:"description"`
	Category       string      `db:"category"`
	FileURL        string      `db:"file_url"`
	FileName       string      `db:"file_name"`
	FileSize       int64       `db:"file_size"`
	MimeType       string      `db:"mime_type"`
	VisibleToRoles jsonStrings `db:"visible_to_roles"`
	IsActive       bool        `db:"is_active"`
	UploadedByID   string      `db:"uploaded_by_id"`
	CreatedAt      time.Time   `db:"created_at"`
}

func (r documentRow) toDocument() document.Document {
	return document.Document{
		ID:             r.ID,
		InstitutionID:  r.InstitutionID,
		Title:          r.Title,
		Description:    r.Description,
		Category:       document.Category(r.Category),
		FileURL:        r.FileURL,
		FileName:       r.FileName,
		FileSize:       r.FileSize,
		MimeType:       r.MimeType,
		VisibleToRoles: []string(r.VisibleToRoles),
		IsActive:       r.IsActive,
		UploadedByID:   r.UploadedByID,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

type documentRepository struct {
	baseRepository
}

var _ document.Repository = (*documentRepository)(nil) // interface compliance check

func NewDocumentRepository(exec core.DBExecutor) *documentRepository {
	return &documentRepository{baseRepository: newBaseRepository(exec)}
}

func (repo documentRepository) CreateDocument(ctx context.Context, doc document.Document, exec ...core.DBExecutor) (document.Document, error) {
	doc.ID = uuid.New().String()
	doc.CreatedAt = doc.CreatedAt.UTC()
	if doc.VisibleToRoles == nil {
		doc.VisibleToRoles = []string{}
	}

	q := repo.sb.Insert(documentsTable).
		Columns(documentColumns...).
		Values(
			doc.ID, doc.InstitutionID, doc.Title, doc.Description, string(doc.Category), doc.FileURL, doc.FileName,
			doc.FileSize, doc.MimeType, jsonStrings(doc.VisibleToRoles), doc.IsActive, doc.UploadedByID, doc.CreatedAt,
		)
	if _, err := repo.execute(ctx, repo.getExec(exec), q); err != nil {
		return document.Document{}, errors.Wrap(err, "inserting document")
	}
	return doc, nil
}

func (repo documentRepository) GetDocument(ctx context.Context, id string, exec ...core.DBExecutor) (document.Document, error) {
	var row documentRow
	q := repo.sb.Select(documentColumns...).From(documentsTable).Where(sq.Eq{"id": id})
	if err := repo.get(ctx, repo.getExec(exec), &row, q); err != nil {
		return document.Document{}, trapNoRowsErr(err, document.ErrNotFound, "getting document")
	}
	return row.toDocument(), nil
}

func (repo documentRepository) QueryDocuments(ctx context.Context, filter document.QueryFilter, exec ...core.DBExecutor) ([]document.Document, error) {
	q := repo.sb.Select(documentColumns...).
		From(documentsTable).
		Where(sq.Eq{"institution_id": filter.InstitutionID}).
		OrderBy("category ASC", "created_at DESC")
	if filter.IsActive != nil {
		q = q.Where(sq.Eq{"is_active": *filter.IsActive})
	}

	var rows []documentRow
	if err := repo.selectRows(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying documents")
	}
	docs := make([]document.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, r.toDocument())
	}
	return docs, nil
}

func (repo documentRepository) UpdateDocument(ctx context.Context, id string, upd document.UpdateDocument, exec ...core.DBExecutor) (document.Document, error) {
	exe := repo.getExec(exec)

	q := repo.sb.Update(documentsTable).Where(sq.Eq{"id": id})
	if upd.Title != nil {
		q = q.Set("title", *upd.Title)
	}
	if upd.Description != nil {
		q = q.Set("description", null.NewString(*upd.Description, *upd.Description != ""))
	}
	if upd.Category != nil {
		q = q.Set("category", string(*upd.Category))
	}
	if upd.VisibleToRoles != nil {
		q = q.Set("visible_to_roles", jsonStrings(*upd.VisibleToRoles))
	}
	if upd.IsActive != nil {
		q = q.Set("is_active", *upd.IsActive)
	}

	n, err := repo.execute(ctx, exe, q)
	if err != nil {
		return document.Document{}, errors.Wrap(err, "updating document")
	}
	if n == 0 {
		return document.Document{}, document.ErrNotFound
	}
	return repo.GetDocument(ctx, id, exe)
}

func (repo documentRepository) DeleteDocument(ctx context.Context, id string, exec ...core.DBExecutor) error {
	n, err := repo.execute(ctx, repo.getExec(exec), repo.sb.Delete(documentsTable).Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting document")
	}
	if n == 0 {
		return document.ErrNotFound
	}
	return nil
}

func (repo documentRepository) QueryFileURLs(ctx context.Context, institutionID string, exec ...core.DBExecutor) ([]string, error) {
	urls := make([]string, 0)
	q := repo.sb.Select("file_url").From(documentsTable).Where(sq.Eq{"institution_id": institutionID})
	if err := repo.selectRows(ctx, repo.getExec(exec), &urls, q); err != nil {
		return nil, errors.Wrap(err, "querying document urls")
	}
	return urls, nil
}
