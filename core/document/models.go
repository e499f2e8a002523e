package document

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/user"
)

type Category string

const (
	CategoryManual     Category = "MANUAL"
	CategoryReglamento Category = "REGLAMENTO"
	CategoryFormato    Category = "FORMATO"
	CategoryCircular   Category = "CIRCULAR"
	CategoryPEI        Category = "PEI"
	CategorySIEE       Category = "SIEE"
	CategoryOtro       Category = "OTRO"
)

type CategoryInfo struct {
	Value Category `json:"value"`
	Label string   `json:"label"`
}

// Categories lists the document categories in display order.
var Categories = []CategoryInfo{
	{Value: CategoryManual, Label: "Manual de convivencia"},
	{Value: CategoryReglamento, Label: "Reglamento"},
	{Value: CategoryFormato, Label: "Formato"},
	{Value: CategoryCircular, Label: "Circular"},
	{Value: CategoryPEI, Label: "Proyecto Educativo Institucional (PEI)"},
	{Value: CategorySIEE, Label: "Sistema Institucional de Evaluación (SIEE)"},
	{Value: CategoryOtro, Label: "Otro"},
}

func categoryValues() []string {
	values := make([]string, 0, len(Categories))
	for _, c := range Categories {
		values = append(values, string(c.Value))
	}
	return values
}

type Document struct {
	ID             string        `json:"id"`
	InstitutionID  string        `json:"institution_id"`
	Title          string        `json:"title"`
	Description    null.String   `json:"description"`
	Category       Category      `json:"category"`
	FileURL        string        `json:"file_url"`
	FileName       string        `json:"file_name"`
	FileSize       int64         `json:"file_size"`
	MimeType       string        `json:"mime_type"`
	VisibleToRoles []string      `json:"visible_to_roles"` // empty: visible to everyone
	IsActive       bool          `json:"is_active"`
	UploadedByID   string        `json:"uploaded_by_id"`
	UploadedBy     *user.Summary `json:"uploaded_by,omitempty"`
	CreatedAt      time.Time     `json:"created_at"` // UTC
}

// VisibleTo reports whether a caller holding roles may see the document.
func (d Document) VisibleTo(roles user.RoleSet) bool {
	if roles.IsAdmin() || len(d.VisibleToRoles) == 0 {
		return true
	}
	return roles.HasAny(d.VisibleToRoles...)
}

// NewDocument contains the metadata sent along an uploaded file.
type NewDocument struct {
	InstitutionID  string   `json:"institution_id" form:"institution_id" validate:"required,notblank"`
	Title          string   `json:"title" form:"title" validate:"required,notblank,max=255"`
	Description    string   `json:"description" form:"description"`
	Category       Category `json:"category" form:"category" validate:"required,doccategory"`
	VisibleToRoles []string `json:"visible_to_roles" form:"visible_to_roles" validate:"omitempty,dive,notblank"`
}

func (nd *NewDocument) clean() {
	nd.InstitutionID = core.CleanString(nd.InstitutionID)
	nd.Title = core.CleanString(nd.Title)
	nd.Description = core.CleanString(nd.Description)
	nd.Category = Category(core.CleanString(string(nd.Category)))
	nd.VisibleToRoles = user.NewRoleSet(nd.VisibleToRoles...).Names()
}

// UpdateDocument defines what may be changed on an existing Document. Nil fields are left untouched.
type UpdateDocument struct {
	Title          *string   `json:"title" validate:"omitempty,notblank,max=255"`
	Description    *string   `json:"description"`
	Category       *Category `json:"category" validate:"omitempty,doccategory"`
	VisibleToRoles *[]string `json:"visible_to_roles" validate:"omitempty,dive,notblank"`
	IsActive       *bool     `json:"is_active"`
}

func (ud *UpdateDocument) clean() {
	if ud.Title != nil {
		t := core.CleanString(*ud.Title)
		ud.Title = &t
	}
	if ud.Description != nil {
		d := core.CleanString(*ud.Description)
		ud.Description = &d
	}
	if ud.VisibleToRoles != nil {
		roles := user.NewRoleSet(*ud.VisibleToRoles...).Names()
		ud.VisibleToRoles = &roles
	}
}

func (ud UpdateDocument) IsEmpty() bool {
	return ud.Title == nil && ud.Description == nil && ud.Category == nil && ud.VisibleToRoles == nil && ud.IsActive == nil
}

type QueryFilter struct {
	InstitutionID string
	IsActive      *bool
}

// DownloadURL is a URL to fetch a document's file. ExpiresIn is 0 when the URL does not expire.
type DownloadURL struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expires_in"` // seconds
}

type CleanupResult struct {
	DeletedFiles      []string `json:"deleted_files"`
	RecalculatedUsage int64    `json:"recalculated_usage"`
	Message           string   `json:"message"`
}
