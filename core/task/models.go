package task

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/user"
)

type (
	Area     string
	Category string
	Priority string
)

const (
	AreaAcademica      Area = "ACADEMICA"
	AreaDirectiva      Area = "DIRECTIVA"
	AreaComunitaria    Area = "COMUNITARIA"
	AreaAdministrativa Area = "ADMINISTRATIVA"

	CategoryPlaneacion   Category = "PLANEACION"
	CategorySeguimiento  Category = "SEGUIMIENTO"
	CategoryEvidencia    Category = "EVIDENCIA"
	CategoryReunion      Category = "REUNION"
	CategoryCapacitacion Category = "CAPACITACION"
	CategoryProyecto     Category = "PROYECTO"
	CategoryOtro         Category = "OTRO"

	PriorityBaja    Priority = "BAJA"
	PriorityNormal  Priority = "NORMAL"
	PriorityAlta    Priority = "ALTA"
	PriorityUrgente Priority = "URGENTE"
)

var (
	Areas      = []Area{AreaAcademica, AreaDirectiva, AreaComunitaria, AreaAdministrativa}
	Categories = []Category{
		CategoryPlaneacion, CategorySeguimiento, CategoryEvidencia, CategoryReunion,
		CategoryCapacitacion, CategoryProyecto, CategoryOtro,
	}
	// Priorities are sorted from lowest to highest.
	Priorities = []Priority{PriorityBaja, PriorityNormal, PriorityAlta, PriorityUrgente}
)

func (p Priority) rank() int {
	for i, prio := range Priorities {
		if prio == p {
			return i
		}
	}
	return -1
}

// Leader is a user granted authority to create management tasks in one area of an institution.
type Leader struct {
	ID            string        `json:"id"`
	InstitutionID string        `json:"institution_id"`
	UserID        string        `json:"user_id"`
	Area          Area          `json:"area"`
	AssignedByID  string        `json:"assigned_by_id"`
	IsActive      bool          `json:"is_active"`
	CreatedAt     time.Time     `json:"created_at"` // UTC
	User          *user.Summary `json:"user,omitempty"`
}

type NewLeader struct {
	InstitutionID string `json:"institution_id" validate:"required,notblank"`
	UserID        string `json:"user_id" validate:"required,notblank"`
	Area          Area   `json:"area" validate:"required,leaderarea"`
}

func (nl *NewLeader) clean() {
	nl.InstitutionID = core.CleanString(nl.InstitutionID)
	nl.UserID = core.CleanString(nl.UserID)
	nl.Area = Area(core.CleanString(string(nl.Area)))
}

type Task struct {
	ID            string        `json:"id"`
	InstitutionID string        `json:"institution_id"`
	Title         string        `json:"title"`
	Description   null.String   `json:"description"`
	Category      Category      `json:"category"`
	Priority      Priority      `json:"priority"`
	DueDate       null.Time     `json:"due_date"`
	CreatedByID   string        `json:"created_by_id"`
	LeaderID      null.String   `json:"leader_id"`
	IsActive      bool          `json:"is_active"`
	CreatedAt     time.Time     `json:"created_at"` // UTC
	CreatedBy     *user.Summary `json:"created_by,omitempty"`
	Assignments   []Assignment  `json:"assignments,omitempty"`
}

type NewTask struct {
	InstitutionID string     `json:"institution_id" validate:"required,notblank"`
	Title         string     `json:"title" validate:"required,notblank,max=255"`
	Description   string     `json:"description"`
	Category      Category   `json:"category" validate:"required,taskcategory"`
	Priority      Priority   `json:"priority" validate:"omitempty,taskpriority"`
	DueDate       *time.Time `json:"due_date"`
	AssigneeIDs   []string   `json:"assignee_ids" validate:"required,min=1,dive,notblank"`
}

func (nt *NewTask) clean() {
	nt.InstitutionID = core.CleanString(nt.InstitutionID)
	nt.Title = core.CleanString(nt.Title)
	nt.Description = core.CleanString(nt.Description)
	nt.Category = Category(core.CleanString(string(nt.Category)))
	nt.Priority = Priority(core.CleanString(string(nt.Priority)))
	if nt.Priority == "" {
		nt.Priority = PriorityNormal
	}

	// an assignee is assigned once
	seen := make(map[string]struct{}, len(nt.AssigneeIDs))
	ids := make([]string, 0, len(nt.AssigneeIDs))
	for _, id := range nt.AssigneeIDs {
		id = core.CleanString(id)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if nt.AssigneeIDs != nil {
		nt.AssigneeIDs = ids
	}
}

// Assignment is the work of one assignee on a task.
type Assignment struct {
	ID               string        `json:"id"`
	TaskID           string        `json:"task_id"`
	AssigneeID       string        `json:"assignee_id"`
	Status           Status        `json:"status"`
	StartedAt        null.Time     `json:"started_at"`
	CompletedAt      null.Time     `json:"completed_at"`
	ResponseNote     null.String   `json:"response_note"`
	EvidenceURL      null.String   `json:"evidence_url"`
	EvidenceFileName null.String   `json:"evidence_file_name"`
	EvidenceFileSize null.Int64    `json:"evidence_file_size"`
	EvidenceMimeType null.String   `json:"evidence_mime_type"`
	VerifiedByID     null.String   `json:"verified_by_id"`
	VerifiedAt       null.Time     `json:"verified_at"`
	VerificationNote null.String   `json:"verification_note"`
	CreatedAt        time.Time     `json:"created_at"` // UTC
	Assignee         *user.Summary `json:"assignee,omitempty"`
	Task             *Task         `json:"task,omitempty"`
}

type Verification struct {
	Status Status `json:"status" validate:"required,verifystatus"`
	Note   string `json:"note"`
}

type LeaderFilter struct {
	InstitutionID string
	UserID        string
	IsActive      *bool
}

type TaskFilter struct {
	IDs           []string
	InstitutionID string
	CreatedByID   string
	IsActive      *bool
}

type AssignmentFilter struct {
	TaskIDs    []string
	AssigneeID string
	Statuses   []Status
}

type PendingCount struct {
	Count int `json:"count"`
}
