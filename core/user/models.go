package user

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/colegio/core"
)

// Roles
const (
	RoleSuperAdmin         = "SUPERADMIN"
	RoleAdminInstitutional = "ADMIN_INSTITUTIONAL"
	RoleRector             = "RECTOR"
	RoleCoordinador        = "COORDINADOR"
	RoleDocente            = "DOCENTE"
	RoleEstudiante         = "ESTUDIANTE"
	RoleAcudiente          = "ACUDIENTE"
	RoleSecretaria         = "SECRETARIA"
)

var (
	// AdminRoles see every document regardless of its visibility.
	AdminRoles = []string{RoleSuperAdmin, RoleAdminInstitutional}

	// ManagementRoles may manage documents, leaders and tasks.
	ManagementRoles = []string{RoleSuperAdmin, RoleAdminInstitutional, RoleRector}

	AllRoles = []string{
		RoleSuperAdmin,
		RoleAdminInstitutional,
		RoleRector,
		RoleCoordinador,
		RoleDocente,
		RoleEstudiante,
		RoleAcudiente,
		RoleSecretaria,
	}
)

// RoleSet is a normalized set of role names.
type RoleSet map[string]struct{}

func NewRoleSet(names ...string) RoleSet {
	rs := make(RoleSet, len(names))
	for _, n := range names {
		if n = core.CleanString(n); n != "" {
			rs[n] = struct{}{}
		}
	}
	return rs
}

func (rs RoleSet) Has(role string) bool {
	_, ok := rs[role]
	return ok
}

func (rs RoleSet) HasAny(roles ...string) bool {
	for _, r := range roles {
		if rs.Has(r) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the set holds one of AdminRoles.
func (rs RoleSet) IsAdmin() bool {
	return rs.HasAny(AdminRoles...)
}

// Names returns the sorted role names.
func (rs RoleSet) Names() []string {
	names := make([]string, 0, len(rs))
	for n := range rs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RoleClaim is a role as carried by an authenticated principal. It decodes from
// a plain string, a `{"name": ...}` object or a `{"role": {"name": ...}}` object.
type RoleClaim struct {
	Name string
}

func (rc RoleClaim) MarshalJSON() ([]byte, error) {
	return json.Marshal(rc.Name)
}

func (rc *RoleClaim) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		rc.Name = name
		return nil
	}

	var obj struct {
		Name string `json:"name"`
		Role *struct {
			Name string `json:"name"`
		} `json:"role"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return errors.Wrap(err, "decoding role claim")
	}
	if obj.Role != nil && obj.Role.Name != "" {
		rc.Name = obj.Role.Name
	} else {
		rc.Name = obj.Name
	}
	return nil
}

// ResolveRoleNames normalizes the roles of a principal into a RoleSet.
func ResolveRoleNames(claims []RoleClaim) RoleSet {
	names := make([]string, 0, len(claims))
	for _, c := range claims {
		names = append(names, c.Name)
	}
	return NewRoleSet(names...)
}

func RoleClaims(names ...string) []RoleClaim {
	claims := make([]RoleClaim, 0, len(names))
	for _, n := range names {
		claims = append(claims, RoleClaim{Name: n})
	}
	return claims
}

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

func (u User) RoleSet() RoleSet {
	return NewRoleSet(u.Roles...)
}

// Summary is the public view of a user embedded in other resources.
type Summary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (u User) Summary() Summary {
	return Summary{ID: u.ID, Name: u.Name, Email: u.Email}
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name  string   `json:"name" validate:"required,notblank"`
	Email string   `json:"email" validate:"required,email"`
	Roles []string `json:"roles" validate:"omitempty,allroles"`
}

func (nu *NewUser) Validate(svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	for i, r := range nu.Roles {
		nu.Roles[i] = core.CleanString(r)
	}

	if err := svc.validate.Struct(nu); err != nil {
		return err
	}
	return nil
}
