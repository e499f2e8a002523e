package echoapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/document"
	"github.com/trezcool/colegio/core/quota"
	"github.com/trezcool/colegio/core/user"
)

const institutionParam = "institutionId"

var (
	documentManagers = []string{user.RoleSuperAdmin, user.RoleAdminInstitutional, user.RoleRector}
	storageAdmins    = []string{user.RoleSuperAdmin, user.RoleAdminInstitutional}
)

type documentApi struct {
	svc      *document.Service
	quotaSvc *quota.Service
	metrics  *metrics
}

func registerDocumentAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *document.Service,
	quotaSvc *quota.Service,
	m *metrics,
) {
	api := documentApi{svc: svc, quotaSvc: quotaSvc, metrics: m}

	dg := g.Group("/institutional-documents", jwt)
	dg.POST("", api.create, rolesMiddleware(documentManagers...))
	dg.GET("", api.query)
	dg.GET("/categories", api.categories)
	dg.GET("/storage-usage", api.storageUsage, rolesMiddleware(documentManagers...))
	dg.POST("/cleanup", api.cleanup, rolesMiddleware(storageAdmins...))
	dg.PUT("/storage-limits", api.setLimits, rolesMiddleware(user.RoleSuperAdmin))

	// detail endpoints
	dg.GET("/:id", api.retrieve)
	dg.GET("/:id/download-url", api.downloadURL)
	dg.PUT("/:id", api.update, rolesMiddleware(documentManagers...))
	dg.DELETE("/:id", api.destroy, rolesMiddleware(documentManagers...))
}

// Handlers

func (api *documentApi) create(ctx echo.Context) error {
	c, err := getCaller(ctx)
	if err != nil {
		return errors.Wrap(err, "getting caller")
	}

	var data document.NewDocument
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDocument")
	}
	if data.InstitutionID == "" {
		data.InstitutionID = ctx.QueryParam(institutionParam)
	}
	data.VisibleToRoles = expandJSONList(data.VisibleToRoles)

	file, closeFile, err := formFile(ctx, "file")
	if err != nil {
		return err
	}
	defer closeFile()

	doc, err := api.svc.Create(ctx.Request().Context(), data, file, c.ID)
	if err != nil {
		return errors.Wrap(err, "creating document")
	}
	api.metrics.uploaded(quota.CategoryDocuments, doc.FileSize)
	return ctx.JSON(http.StatusCreated, doc)
}

func (api *documentApi) query(ctx echo.Context) error {
	c, err := getCaller(ctx)
	if err != nil {
		return errors.Wrap(err, "getting caller")
	}
	institutionID, err := requireInstitution(ctx)
	if err != nil {
		return err
	}

	docs, err := api.svc.FindAll(ctx.Request().Context(), institutionID, c.Roles)
	if err != nil {
		return errors.Wrap(err, "querying documents")
	}
	return ctx.JSON(http.StatusOK, docs)
}

func (api *documentApi) categories(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.svc.Categories())
}

func (api *documentApi) storageUsage(ctx echo.Context) error {
	institutionID, err := requireInstitution(ctx)
	if err != nil {
		return err
	}
	snap, err := api.svc.GetStorageUsage(ctx.Request().Context(), institutionID)
	if err != nil {
		return errors.Wrap(err, "getting storage usage")
	}
	return ctx.JSON(http.StatusOK, snap)
}

func (api *documentApi) cleanup(ctx echo.Context) error {
	institutionID, err := requireInstitution(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.CleanupOrphanedFiles(ctx.Request().Context(), institutionID)
	if err != nil {
		return errors.Wrap(err, "cleaning up orphaned files")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *documentApi) setLimits(ctx echo.Context) error {
	institutionID, err := requireInstitution(ctx)
	if err != nil {
		return err
	}
	var data quota.Limits
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Limits")
	}
	if _, err = api.quotaSvc.SetLimits(ctx.Request().Context(), institutionID, data); err != nil {
		return errors.Wrap(err, "setting limits")
	}
	snap, err := api.quotaSvc.Snapshot(ctx.Request().Context(), institutionID)
	if err != nil {
		return errors.Wrap(err, "getting storage usage")
	}
	return ctx.JSON(http.StatusOK, snap)
}

func (api *documentApi) retrieve(ctx echo.Context) error {
	doc, err := api.svc.FindOne(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding document")
	}
	return ctx.JSON(http.StatusOK, doc)
}

func (api *documentApi) downloadURL(ctx echo.Context) error {
	url, err := api.svc.GetDownloadURL(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting download url")
	}
	return ctx.JSON(http.StatusOK, url)
}

func (api *documentApi) update(ctx echo.Context) error {
	var data document.UpdateDocument
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateDocument")
	}
	doc, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating document")
	}
	return ctx.JSON(http.StatusOK, doc)
}

func (api *documentApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting document")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Document deleted."})
}

// Helpers

func requireInstitution(ctx echo.Context) (string, error) {
	id := core.CleanString(ctx.QueryParam(institutionParam))
	if id == "" {
		return "", core.NewValidationError(
			errors.New("institution is required"),
			core.FieldError{Field: institutionParam, Error: "this field is required"},
		)
	}
	return id, nil
}

// formFile returns the uploaded file named field, or nil when none was sent.
// The returned func releases the file and must always be called.
func formFile(ctx echo.Context, field string) (*core.UploadedFile, func(), error) {
	noop := func() {}

	fh, err := ctx.FormFile(field)
	if err != nil {
		if errors.Cause(err) == http.ErrMissingFile || errors.Cause(err) == http.ErrNotMultipart {
			return nil, noop, nil
		}
		return nil, noop, errors.Wrap(err, "reading form file")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, noop, errors.Wrap(err, "opening form file")
	}
	return &core.UploadedFile{
		FileName: fh.Filename,
		MimeType: fh.Header.Get(echo.HeaderContentType),
		Size:     fh.Size,
		Body:     f,
	}, func() { _ = f.Close() }, nil
}

// expandJSONList accepts list form values sent as a single JSON array (eg: `["RECTOR","DOCENTE"]`).
func expandJSONList(values []string) []string {
	if len(values) != 1 || !strings.HasPrefix(strings.TrimSpace(values[0]), "[") {
		return values
	}
	var list []string
	if err := json.Unmarshal([]byte(values[0]), &list); err != nil {
		return values
	}
	return list
}
