package document_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/document"
	"github.com/trezcool/colegio/core/quota"
	"github.com/trezcool/colegio/core/user"
	"github.com/trezcool/colegio/storage/database/sqlxrepos"
	"github.com/trezcool/colegio/storage/objectstore/memstore"
	"github.com/trezcool/colegio/tests"
)

// failingRepo fails document inserts.
type failingRepo struct {
	document.Repository
}

func (failingRepo) CreateDocument(context.Context, document.Document, ...core.DBExecutor) (document.Document, error) {
	return document.Document{}, errors.New("db down")
}

type env struct {
	usrRepo  user.Repository
	docRepo  document.Repository
	store    *memstore.Store
	logger   *testutil.Logger
	quotaSvc *quota.Service
	svc      *document.Service
	usrSvc   *user.Service
	validate *validator.Validate
}

func setup(t *testing.T) *env {
	db := testutil.PrepareDB(t)
	e := &env{
		usrRepo:  sqlxrepos.NewUserRepository(db),
		docRepo:  sqlxrepos.NewDocumentRepository(db),
		store:    memstore.New(core.DocumentsBucket, "http://storage.test"),
		logger:   new(testutil.Logger),
		validate: testutil.NewValidator(),
	}
	e.usrSvc = user.NewService(e.usrRepo, e.validate)
	e.quotaSvc = quota.NewService(sqlxrepos.NewQuotaRepository(db), e.logger, e.validate, testutil.QuotaConfig())
	e.svc = document.NewService(e.docRepo, e.usrSvc, e.quotaSvc, e.store, e.logger, e.validate)
	return e
}

func pdf(content string) *core.UploadedFile {
	return &core.UploadedFile{
		FileName: "file.pdf",
		MimeType: "application/pdf",
		Size:     int64(len(content)),
		Body:     strings.NewReader(content),
	}
}

func newDoc(title string, cat document.Category, roles ...string) document.NewDocument {
	return document.NewDocument{InstitutionID: "inst-1", Title: title, Category: cat, VisibleToRoles: roles}
}

func TestObjectPath(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t,
		"institucion/inst-1/institucionales/reglamento/REGLAMENTO_1772359200000.pdf",
		document.ObjectPath("inst-1", document.CategoryReglamento, at, "pdf"),
	)
}

func TestDocument_VisibleTo(t *testing.T) {
	tests := []struct {
		name  string
		doc   document.Document
		roles user.RoleSet
		want  bool
	}{
		{name: "no restriction", doc: document.Document{}, roles: user.NewRoleSet(user.RoleEstudiante), want: true},
		{name: "no roles, no restriction", doc: document.Document{}, roles: user.NewRoleSet(), want: true},
		{name: "matching role", doc: document.Document{VisibleToRoles: []string{user.RoleDocente}}, roles: user.NewRoleSet(user.RoleDocente), want: true},
		{name: "other role", doc: document.Document{VisibleToRoles: []string{user.RoleDocente}}, roles: user.NewRoleSet(user.RoleAcudiente), want: false},
		{name: "admin", doc: document.Document{VisibleToRoles: []string{user.RoleDocente}}, roles: user.NewRoleSet(user.RoleAdminInstitutional), want: true},
		{name: "superadmin", doc: document.Document{VisibleToRoles: []string{user.RoleRector}}, roles: user.NewRoleSet(user.RoleSuperAdmin), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.doc.VisibleTo(tt.roles))
		})
	}
}

func TestService_Create_invalidFile(t *testing.T) {
	e := setup(t)
	usr := testutil.CreateUser(t, e.usrRepo, "Rector", "rector@test.co", []string{user.RoleRector}, true)

	tests := []struct {
		name    string
		file    *core.UploadedFile
		wantErr string
	}{
		{name: "missing", file: nil, wantErr: "A file is required"},
		{name: "empty", file: pdf(""), wantErr: "The file is empty"},
		{
			name:    "too large",
			file:    &core.UploadedFile{FileName: "big.pdf", MimeType: "application/pdf", Size: 10*core.MiB + 1, Body: strings.NewReader("x")},
			wantErr: "The file exceeds the maximum size of 10 MB",
		},
		{
			name:    "type not allowed",
			file:    &core.UploadedFile{FileName: "run.sh", MimeType: "application/x-sh", Size: 2, Body: strings.NewReader("ls")},
			wantErr: `File type "application/x-sh" is not allowed. Allowed: PDF, Word, Excel, PowerPoint and images (JPEG, PNG, WEBP)`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.Create(context.Background(), newDoc("Manual", document.CategoryManual), tt.file, usr.ID)
			require.Error(t, err)
			assert.True(t, core.IsKind(err, core.KindInvalidFile))
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
	assert.Empty(t, e.store.Uploaded)
}

func TestService_Create(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, e.usrRepo, "Rector", "rector@test.co", []string{user.RoleRector}, true)

	file := pdf("%PDF-1.4")
	file.FileName = "sin-extension"

	nd := newDoc(" Manual ", document.CategoryManual, user.RoleRector, " DOCENTE ", user.RoleRector)
	nd.Description = "  "
	doc, err := e.svc.Create(ctx, nd, file, usr.ID)
	require.NoError(t, err)

	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "Manual", doc.Title)
	assert.False(t, doc.Description.Valid)
	assert.Equal(t, []string{user.RoleDocente, user.RoleRector}, doc.VisibleToRoles)
	assert.True(t, doc.IsActive)
	require.NotNil(t, doc.UploadedBy)
	assert.Equal(t, "Rector", doc.UploadedBy.Name)

	require.Len(t, e.store.Uploaded, 1)
	path := e.store.Uploaded[0]
	assert.True(t, strings.HasPrefix(path, document.InstitutionPrefix("inst-1")+"manual/MANUAL_"))
	assert.True(t, strings.HasSuffix(path, ".pdf"), "extension derived from the mime type")
	assert.Equal(t, e.store.PublicURL(path), doc.FileURL)

	snap, err := e.quotaSvc.Snapshot(ctx, "inst-1")
	require.NoError(t, err)
	assert.EqualValues(t, 8, snap.Documents.Used)
}

func TestService_Create_fileNameWithSymbols(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, e.usrRepo, "Rector", "rector@test.co", []string{user.RoleRector}, true)

	file := pdf("%PDF-1.4")
	file.FileName = "acta.pdf#2"
	doc, err := e.svc.Create(ctx, newDoc("Acta", document.CategoryFormato), file, usr.ID)
	require.NoError(t, err)

	require.Len(t, e.store.Uploaded, 1)
	path := e.store.Uploaded[0]
	assert.True(t, strings.HasSuffix(path, ".pdf"), path)
	stored, ok := core.ObjectPathFromURL(doc.FileURL, core.DocumentsBucket)
	require.True(t, ok)
	assert.Equal(t, path, stored)

	// the file is still referenced by its document
	res, err := e.svc.CleanupOrphanedFiles(ctx, "inst-1")
	require.NoError(t, err)
	assert.Empty(t, res.DeletedFiles)
	assert.True(t, e.store.Has(path))

	require.NoError(t, e.svc.Delete(ctx, doc.ID))
	assert.False(t, e.store.Has(path))
}

func TestService_Create_quotaExceeded(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, e.usrRepo, "Rector", "rector@test.co", []string{user.RoleRector}, true)

	limit := int64(5)
	_, err := e.quotaSvc.SetLimits(ctx, "inst-1", quota.Limits{DocumentsLimit: &limit})
	require.NoError(t, err)

	_, err = e.svc.Create(ctx, newDoc("Manual", document.CategoryManual), pdf("%PDF-1.4"), usr.ID)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindQuotaExceeded))

	// storage was never called
	assert.Empty(t, e.store.Uploaded)
	snap, err := e.quotaSvc.Snapshot(ctx, "inst-1")
	require.NoError(t, err)
	assert.Zero(t, snap.Documents.Used)
}

func TestService_Create_uploadFails(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, e.usrRepo, "Rector", "rector@test.co", []string{user.RoleRector}, true)
	e.store.UploadErr = errors.New("network down")

	_, err := e.svc.Create(ctx, newDoc("Manual", document.CategoryManual), pdf("%PDF"), usr.ID)
	require.Error(t, err)
	assert.Equal(t, "network down", errors.Cause(err).Error())

	docs, err := e.docRepo.QueryDocuments(ctx, document.QueryFilter{InstitutionID: "inst-1"})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestService_Create_insertFails(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, e.usrRepo, "Rector", "rector@test.co", []string{user.RoleRector}, true)
	svc := document.NewService(failingRepo{e.docRepo}, e.usrSvc, e.quotaSvc, e.store, e.logger, e.validate)

	_, err := svc.Create(ctx, newDoc("Manual", document.CategoryManual), pdf("%PDF"), usr.ID)
	require.Error(t, err)

	// the uploaded file was removed and no usage recorded
	require.Len(t, e.store.Uploaded, 1)
	assert.Equal(t, e.store.Uploaded, e.store.Deleted)
	assert.False(t, e.store.Has(e.store.Uploaded[0]))
	snap, err := e.quotaSvc.Snapshot(ctx, "inst-1")
	require.NoError(t, err)
	assert.Zero(t, snap.Documents.Used)
}

func TestService_FindAll(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, e.usrRepo, "Rector", "rector@test.co", []string{user.RoleRector}, true)

	create := func(title string, cat document.Category, roles ...string) document.Document {
		doc, err := e.svc.Create(ctx, newDoc(title, cat, roles...), pdf("%PDF"), usr.ID)
		require.NoError(t, err)
		return doc
	}
	create("Circular 1", document.CategoryCircular)
	create("Circular 2", document.CategoryCircular, user.RoleAcudiente)
	create("Manual", document.CategoryManual, user.RoleDocente)
	hidden := create("PEI", document.CategoryPEI)
	inactive := false
	_, err := e.svc.Update(ctx, hidden.ID, document.UpdateDocument{IsActive: &inactive})
	require.NoError(t, err)

	titles := func(docs []document.Document) []string {
		ts := make([]string, 0, len(docs))
		for _, d := range docs {
			ts = append(ts, d.Title)
		}
		return ts
	}

	tests := []struct {
		name  string
		roles user.RoleSet
		want  []string
	}{
		// by category, then newest first
		{name: "admin", roles: user.NewRoleSet(user.RoleAdminInstitutional), want: []string{"Circular 2", "Circular 1", "Manual"}},
		{name: "docente", roles: user.NewRoleSet(user.RoleDocente), want: []string{"Circular 1", "Manual"}},
		{name: "acudiente", roles: user.NewRoleSet(user.RoleAcudiente), want: []string{"Circular 2", "Circular 1"}},
		{name: "no roles", roles: user.NewRoleSet(), want: []string{"Circular 1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := e.svc.FindAll(ctx, "inst-1", tt.roles)
			require.NoError(t, err)
			assert.Equal(t, tt.want, titles(docs))
		})
	}
}

func TestService_Update(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, e.usrRepo, "Rector", "rector@test.co", []string{user.RoleRector}, true)
	doc, err := e.svc.Create(ctx, newDoc("Manual", document.CategoryManual, user.RoleDocente), pdf("%PDF"), usr.ID)
	require.NoError(t, err)

	t.Run("nothing to change", func(t *testing.T) {
		got, err := e.svc.Update(ctx, doc.ID, document.UpdateDocument{})
		require.NoError(t, err)
		assert.Equal(t, doc.Title, got.Title)
	})

	t.Run("invalid category", func(t *testing.T) {
		cat := document.Category("LOL")
		_, err := e.svc.Update(ctx, doc.ID, document.UpdateDocument{Category: &cat})
		var vErrs validator.ValidationErrors
		assert.True(t, errors.As(err, &vErrs))
	})

	t.Run("updated", func(t *testing.T) {
		cat, desc, roles := document.CategoryReglamento, " Versión 2 ", []string{}
		got, err := e.svc.Update(ctx, doc.ID, document.UpdateDocument{Category: &cat, Description: &desc, VisibleToRoles: &roles})
		require.NoError(t, err)
		assert.Equal(t, document.CategoryReglamento, got.Category)
		assert.Equal(t, "Versión 2", got.Description.String)
		assert.Empty(t, got.VisibleToRoles)
		assert.Equal(t, doc.FileURL, got.FileURL)
		assert.Equal(t, doc.Title, got.Title)
	})
}

func TestService_Delete(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, e.usrRepo, "Rector", "rector@test.co", []string{user.RoleRector}, true)

	keep, err := e.svc.Create(ctx, newDoc("Keep", document.CategoryManual), pdf("%PDF-keep"), usr.ID)
	require.NoError(t, err)
	doc, err := e.svc.Create(ctx, newDoc("Manual", document.CategoryManual), pdf("%PDF"), usr.ID)
	require.NoError(t, err)

	t.Run("file removal failure does not block", func(t *testing.T) {
		e.store.DeleteErr = errors.New("network down")
		defer func() { e.store.DeleteErr = nil }()

		require.NoError(t, e.svc.Delete(ctx, doc.ID))
		assert.EqualValues(t, 1, e.logger.Warnings)

		_, err := e.svc.FindOne(ctx, doc.ID)
		assert.Equal(t, document.ErrNotFound, err)

		snap, err := e.quotaSvc.Snapshot(ctx, "inst-1")
		require.NoError(t, err)
		assert.EqualValues(t, keep.FileSize, snap.Documents.Used)
	})

	t.Run("not found", func(t *testing.T) {
		assert.Equal(t, document.ErrNotFound, e.svc.Delete(ctx, doc.ID))
	})

	t.Run("deleted", func(t *testing.T) {
		path, ok := core.ObjectPathFromURL(keep.FileURL, core.DocumentsBucket)
		require.True(t, ok)

		require.NoError(t, e.svc.Delete(ctx, keep.ID))
		assert.False(t, e.store.Has(path))

		snap, err := e.quotaSvc.Snapshot(ctx, "inst-1")
		require.NoError(t, err)
		assert.Zero(t, snap.Documents.Used)
	})
}

func TestService_CleanupOrphanedFiles(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, e.usrRepo, "Rector", "rector@test.co", []string{user.RoleRector}, true)

	doc, err := e.svc.Create(ctx, newDoc("Manual", document.CategoryManual), pdf("%PDF-1.4"), usr.ID)
	require.NoError(t, err)
	inactive, err := e.svc.Create(ctx, newDoc("PEI", document.CategoryPEI), pdf("%PDF"), usr.ID)
	require.NoError(t, err)
	isActive := false
	_, err = e.svc.Update(ctx, inactive.ID, document.UpdateDocument{IsActive: &isActive})
	require.NoError(t, err)

	prefix := document.InstitutionPrefix("inst-1")
	e.store.Put(prefix+"otro/OTRO_2.pdf", []byte("orphan"))
	e.store.Put(prefix+"circular/CIRCULAR_1.pdf", []byte("orphan"))
	e.store.Put(document.InstitutionPrefix("inst-2")+"otro/OTRO_1.pdf", []byte("other institution"))

	t.Run("institution required", func(t *testing.T) {
		_, err := e.svc.CleanupOrphanedFiles(ctx, " ")
		var vErr *core.ValidationError
		assert.True(t, errors.As(err, &vErr))
	})

	t.Run("cleanup", func(t *testing.T) {
		res, err := e.svc.CleanupOrphanedFiles(ctx, "inst-1")
		require.NoError(t, err)
		assert.Equal(t, []string{prefix + "circular/CIRCULAR_1.pdf", prefix + "otro/OTRO_2.pdf"}, res.DeletedFiles)
		assert.EqualValues(t, 12, res.RecalculatedUsage) // inactive documents keep their file
		assert.Equal(t, "Removed 2 orphaned files. Documents usage recalculated to 12 B.", res.Message)

		docPath, _ := core.ObjectPathFromURL(doc.FileURL, core.DocumentsBucket)
		inactivePath, _ := core.ObjectPathFromURL(inactive.FileURL, core.DocumentsBucket)
		assert.True(t, e.store.Has(docPath))
		assert.True(t, e.store.Has(inactivePath))
		assert.True(t, e.store.Has(document.InstitutionPrefix("inst-2")+"otro/OTRO_1.pdf"))
	})

	t.Run("idempotent", func(t *testing.T) {
		res, err := e.svc.CleanupOrphanedFiles(ctx, "inst-1")
		require.NoError(t, err)
		assert.Empty(t, res.DeletedFiles)
		assert.EqualValues(t, 12, res.RecalculatedUsage)
	})

	t.Run("listing fails", func(t *testing.T) {
		e.store.ListErr = errors.New("network down")
		defer func() { e.store.ListErr = nil }()

		_, err := e.svc.CleanupOrphanedFiles(ctx, "inst-1")
		assert.Error(t, err)
	})
}

func TestService_GetDownloadURL(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, e.usrRepo, "Rector", "rector@test.co", []string{user.RoleRector}, true)
	doc, err := e.svc.Create(ctx, newDoc("Manual", document.CategoryManual), pdf("%PDF"), usr.ID)
	require.NoError(t, err)

	url, err := e.svc.GetDownloadURL(ctx, doc.ID)
	require.NoError(t, err)
	assert.Contains(t, url.URL, "token=signed")
	assert.Equal(t, 900, url.ExpiresIn)

	_, err = e.svc.GetDownloadURL(ctx, "lol")
	assert.Equal(t, document.ErrNotFound, err)

	t.Run("unrecognized url", func(t *testing.T) {
		got := document.SignedURL(ctx, e.store, e.logger, "https://elsewhere.test/file.pdf")
		assert.Equal(t, document.DownloadURL{URL: "https://elsewhere.test/file.pdf"}, got)
	})

	t.Run("public bucket", func(t *testing.T) {
		e.store.Public = true
		defer func() { e.store.Public = false }()

		url, err := e.svc.GetDownloadURL(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, document.DownloadURL{URL: doc.FileURL}, url)
		assert.Zero(t, e.logger.Warnings)
	})
}
