package document

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/quota"
	"github.com/trezcool/colegio/core/user"
)

var ErrNotFound = core.NotFound("document not found")

type (
	Repository interface {
		CreateDocument(ctx context.Context, doc Document, exec ...core.DBExecutor) (Document, error)
		GetDocument(ctx context.Context, id string, exec ...core.DBExecutor) (Document, error)
		// QueryDocuments returns the matching documents ordered by category then newest first.
		QueryDocuments(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Document, error)
		UpdateDocument(ctx context.Context, id string, upd UpdateDocument, exec ...core.DBExecutor) (Document, error)
		DeleteDocument(ctx context.Context, id string, exec ...core.DBExecutor) error
		// QueryFileURLs returns the file URL of every document row of the institution, active or not.
		QueryFileURLs(ctx context.Context, institutionID string, exec ...core.DBExecutor) ([]string, error)
	}

	Service struct {
		repo     Repository
		usrSvc   *user.Service
		quotaSvc *quota.Service
		store    core.ObjectStorage
		logger   core.Logger
		validate *validator.Validate

		nowFunc func() time.Time
	}
)

func NewService(
	repo Repository,
	usrSvc *user.Service,
	quotaSvc *quota.Service,
	store core.ObjectStorage,
	logger core.Logger,
	validate *validator.Validate,
) *Service {
	return &Service{
		repo:     repo,
		usrSvc:   usrSvc,
		quotaSvc: quotaSvc,
		store:    store,
		logger:   logger,
		validate: validate,
		nowFunc:  time.Now,
	}
}

// InstitutionPrefix is the object path under which all of an institution's documents are stored.
func InstitutionPrefix(institutionID string) string {
	return fmt.Sprintf("institucion/%s/institucionales/", institutionID)
}

// ObjectPath builds the storage path of a document file uploaded at t.
func ObjectPath(institutionID string, cat Category, t time.Time, ext string) string {
	return fmt.Sprintf(
		"%s%s/%s_%d.%s",
		InstitutionPrefix(institutionID), strings.ToLower(string(cat)), cat, t.UnixNano()/int64(time.Millisecond), ext,
	)
}

// Create validates and stores file, then records it as a new document uploaded by uploaderID.
func (svc *Service) Create(ctx context.Context, nd NewDocument, file *core.UploadedFile, uploaderID string) (Document, error) {
	nd.clean()
	if err := svc.validate.Struct(nd); err != nil {
		return Document{}, err
	}
	if err := validateFile(file); err != nil {
		return Document{}, err
	}
	if err := svc.quotaSvc.CheckLimit(ctx, nd.InstitutionID, quota.CategoryDocuments, file.Size); err != nil {
		return Document{}, err
	}

	now := svc.nowFunc().UTC()
	path := ObjectPath(nd.InstitutionID, nd.Category, now, fileExt(file))
	url, err := svc.store.Upload(ctx, path, file.Body, file.Size, file.MimeType)
	if err != nil {
		return Document{}, errors.Wrap(err, "uploading document")
	}

	doc, err := svc.repo.CreateDocument(ctx, Document{
		InstitutionID:  nd.InstitutionID,
		Title:          nd.Title,
		Description:    null.NewString(nd.Description, nd.Description != ""),
		Category:       nd.Category,
		FileURL:        url,
		FileName:       file.FileName,
		FileSize:       file.Size,
		MimeType:       file.MimeType,
		VisibleToRoles: nd.VisibleToRoles,
		IsActive:       true,
		UploadedByID:   uploaderID,
		CreatedAt:      now,
	})
	if err != nil {
		if dErr := svc.store.Delete(ctx, path); dErr != nil {
			svc.logger.Error(fmt.Sprintf("removing uploaded file %s: %v", path, dErr), dErr)
		}
		return Document{}, errors.Wrap(err, "creating document")
	}

	if err = svc.quotaSvc.AdjustUsage(ctx, doc.InstitutionID, quota.CategoryDocuments, doc.FileSize); err != nil {
		return Document{}, errors.Wrap(err, "adjusting documents usage")
	}
	return svc.withUploader(ctx, doc)
}

// FindAll returns the institution's active documents the caller may see.
func (svc *Service) FindAll(ctx context.Context, institutionID string, roles user.RoleSet) ([]Document, error) {
	active := true
	docs, err := svc.repo.QueryDocuments(ctx, QueryFilter{InstitutionID: institutionID, IsActive: &active})
	if err != nil {
		return nil, errors.Wrap(err, "querying documents")
	}

	visible := make([]Document, 0, len(docs))
	for _, doc := range docs {
		if doc.VisibleTo(roles) {
			visible = append(visible, doc)
		}
	}
	return svc.withUploaders(ctx, visible)
}

func (svc *Service) FindOne(ctx context.Context, id string) (Document, error) {
	doc, err := svc.repo.GetDocument(ctx, id)
	if err != nil {
		return Document{}, err
	}
	return svc.withUploader(ctx, doc)
}

// Update changes the document metadata. The stored file is left untouched.
func (svc *Service) Update(ctx context.Context, id string, ud UpdateDocument) (Document, error) {
	ud.clean()
	if err := svc.validate.Struct(ud); err != nil {
		return Document{}, err
	}
	if ud.IsEmpty() {
		return svc.FindOne(ctx, id)
	}
	doc, err := svc.repo.UpdateDocument(ctx, id, ud)
	if err != nil {
		return Document{}, err
	}
	return svc.withUploader(ctx, doc)
}

// Delete removes the document's file, releases its size from the institution's usage
// and deletes the row. Failing to remove the file does not prevent the rest.
func (svc *Service) Delete(ctx context.Context, id string) error {
	doc, err := svc.repo.GetDocument(ctx, id)
	if err != nil {
		return err
	}

	if path, ok := core.ObjectPathFromURL(doc.FileURL, svc.store.Bucket()); ok {
		if err = svc.store.Delete(ctx, path); err != nil {
			svc.logger.Warn(fmt.Sprintf("removing document file %s: %v", path, err), err)
		}
	} else {
		svc.logger.Warn(fmt.Sprintf("document %s: cannot recover object path from %q", doc.ID, doc.FileURL))
	}

	if err = svc.quotaSvc.AdjustUsage(ctx, doc.InstitutionID, quota.CategoryDocuments, -doc.FileSize); err != nil {
		return errors.Wrap(err, "adjusting documents usage")
	}
	if err = svc.repo.DeleteDocument(ctx, doc.ID); err != nil {
		return errors.Wrap(err, "deleting document")
	}
	return nil
}

// CleanupOrphanedFiles removes the institution's stored files no document references
// and recalculates its documents usage.
func (svc *Service) CleanupOrphanedFiles(ctx context.Context, institutionID string) (CleanupResult, error) {
	institutionID = core.CleanString(institutionID)
	if institutionID == "" {
		return CleanupResult{}, core.NewValidationError(
			errors.New("institution is required"),
			core.FieldError{Field: "institution_id", Error: "this field is required"},
		)
	}

	paths, err := svc.store.List(ctx, InstitutionPrefix(institutionID))
	if err != nil {
		return CleanupResult{}, errors.Wrap(err, "listing stored documents")
	}

	urls, err := svc.repo.QueryFileURLs(ctx, institutionID)
	if err != nil {
		return CleanupResult{}, errors.Wrap(err, "querying document urls")
	}
	referenced := make(map[string]struct{}, len(urls))
	for _, url := range urls {
		if path, ok := core.ObjectPathFromURL(url, svc.store.Bucket()); ok {
			referenced[path] = struct{}{}
		}
	}

	orphans := make([]string, 0)
	for _, path := range paths {
		if _, ok := referenced[path]; !ok {
			orphans = append(orphans, path)
		}
	}
	sort.Strings(orphans)
	if len(orphans) > 0 {
		if err = svc.store.Delete(ctx, orphans...); err != nil {
			return CleanupResult{}, errors.Wrap(err, "removing orphaned files")
		}
	}

	total, err := svc.quotaSvc.Reconcile(ctx, institutionID)
	if err != nil {
		return CleanupResult{}, errors.Wrap(err, "reconciling documents usage")
	}

	return CleanupResult{
		DeletedFiles:      orphans,
		RecalculatedUsage: total,
		Message: fmt.Sprintf(
			"Removed %d orphaned %s. Documents usage recalculated to %s.",
			len(orphans), pluralize(len(orphans), "file", "files"), humanize.IBytes(uint64(total)),
		),
	}, nil
}

// GetDownloadURL returns a signed URL to the document's file. The stored URL is returned
// with no expiry when the bucket is public or signing fails.
func (svc *Service) GetDownloadURL(ctx context.Context, id string) (DownloadURL, error) {
	doc, err := svc.repo.GetDocument(ctx, id)
	if err != nil {
		return DownloadURL{}, err
	}
	return SignedURL(ctx, svc.store, svc.logger, doc.FileURL), nil
}

// SignedURL signs the object behind a stored public URL, degrading to the stored URL.
// Objects of a public bucket are served from their stored URL.
func SignedURL(ctx context.Context, store core.ObjectStorage, logger core.Logger, storedURL string) DownloadURL {
	fallback := DownloadURL{URL: storedURL}
	if !store.Private() {
		return fallback
	}

	path, ok := core.ObjectPathFromURL(storedURL, store.Bucket())
	if !ok {
		return fallback
	}
	url, err := store.SignedURL(ctx, path, core.SignedURLExpiry)
	if err != nil {
		logger.Warn(fmt.Sprintf("signing url for %s: %v", path, err), err)
		return fallback
	}
	return DownloadURL{URL: url, ExpiresIn: int(core.SignedURLExpiry / time.Second)}
}

// GetStorageUsage returns the institution's storage usage without creating its usage record.
func (svc *Service) GetStorageUsage(ctx context.Context, institutionID string) (quota.Snapshot, error) {
	return svc.quotaSvc.Snapshot(ctx, institutionID)
}

func (svc *Service) Categories() []CategoryInfo {
	return Categories
}

func (svc *Service) withUploader(ctx context.Context, doc Document) (Document, error) {
	docs, err := svc.withUploaders(ctx, []Document{doc})
	if err != nil {
		return Document{}, err
	}
	return docs[0], nil
}

func (svc *Service) withUploaders(ctx context.Context, docs []Document) ([]Document, error) {
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.UploadedByID)
	}
	users, err := svc.usrSvc.GetByIDs(ctx, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "getting uploaders")
	}
	for i := range docs {
		if usr, ok := users[docs[i].UploadedByID]; ok {
			summary := usr.Summary()
			docs[i].UploadedBy = &summary
		}
	}
	return docs, nil
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
