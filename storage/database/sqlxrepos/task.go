package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/task"
)

const (
	leadersTable     = "management_leaders"
	tasksTable       = "management_tasks"
	assignmentsTable = "task_assignments"
)

var (
	leaderColumns = []string{"id", "institution_id", "user_id", "area", "assigned_by_id", "is_active", "created_at"}
	taskColumns   = []string{
		"id", "institution_id", "title", "description", "category", "priority", "due_date",
		"created_by_id", "leader_id", "is_active", "created_at",
	}
	assignmentColumns = []string{
		"id", "task_id", "assignee_id", "status", "started_at", "completed_at", "response_note",
		"evidence_url", "evidence_file_name", "evidence_file_size", "evidence_mime_type",
		"verified_by_id", "verified_at", "verification_note", "created_at",
	}
)

type leaderRow struct {
	ID            string    `db:"id"`
	InstitutionID string    `db:"institution_id"`
	UserID        string    `db:"user_id"`
	Area          string    `db:"area"`
	AssignedByID  string    `db:"assigned_by_id"`
	IsActive      bool      `db:"is_active"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r leaderRow) toLeader() task.Leader {
	return task.Leader{
		ID:            r.ID,
		InstitutionID: r.InstitutionID,
		UserID:        r.UserID,
		Area:          task.Area(r.Area),
		AssignedByID:  r.AssignedByID,
		IsActive:      r.IsActive,
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

type taskRow struct {
	ID            string      `db:"id"`
	InstitutionID string      `db:"institution_id"`
	Title         string      `db:"title"`
	Description   null.String `db:"description"`
	Category      string      `db:"category"`
	Priority      string      `db:"priority"`
	DueDate       null.Time   `db:"due_date"`
	CreatedByID   string      `db:"created_by_id"`
	LeaderID      null.String `db:"leader_id"`
	IsActive      bool        `db:"is_active"`
	CreatedAt     time.Time   `db:"created_at"`
}

func (r taskRow) toTask() task.Task {
	t := task.Task{
		ID:            r.ID,
		InstitutionID: r.InstitutionID,
		Title:         r.Title,
		Description:   r.Description,
		Category:      task.Category(r.Category),
		Priority:      task.Priority(r.Priority),
		DueDate:       r.DueDate,
		CreatedByID:   r.CreatedByID,
		LeaderID:      r.LeaderID,
		IsActive:      r.IsActive,
		CreatedAt:     r.CreatedAt.UTC(),
	}
	if t.DueDate.Valid {
		t.DueDate.Time = t.DueDate.Time.UTC()
	}
	return t
}

type assignmentRow struct {
	ID               string      `db:"id"`
	TaskID           string      `db:"task_id"`
	AssigneeID       string      `db:"assignee_id"`
	Status           string      `db:"status"`
	StartedAt        null.Time   `db:"started_at"`
	CompletedAt      null.Time   `db:"completed_at"`
	ResponseNote     null.String `db:"response_note"`
	EvidenceURL      null.String `db:"evidence_url"`
	EvidenceFileName null.String `db:"evidence_file_name"`
	EvidenceFileSize null.Int64  `db:"evidence_file_size"`
	EvidenceMimeType null.String `db:"evidence_mime_type"`
	VerifiedByID     null.String `db:"verified_by_id"`
	VerifiedAt       null.Time   `db:"verified_at"`
	VerificationNote null.String `db:"verification_note"`
	CreatedAt        time.Time   `db:"created_at"`
}

func utcTime(t null.Time) null.Time {
	if t.Valid {
		t.Time = t.Time.UTC()
	}
	return t
}

func (r assignmentRow) toAssignment() task.Assignment {
	return task.Assignment{
		ID:               r.ID,
		TaskID:           r.TaskID,
		AssigneeID:       r.AssigneeID,
		Status:           task.Status(r.Status),
		StartedAt:        utcTime(r.StartedAt),
		CompletedAt:      utcTime(r.CompletedAt),
		ResponseNote:     r.ResponseNote,
		EvidenceURL:      r.EvidenceURL,
		EvidenceFileName: r.EvidenceFileName,
		EvidenceFileSize: r.EvidenceFileSize,
		EvidenceMimeType: r.EvidenceMimeType,
		VerifiedByID:     r.VerifiedByID,
		VerifiedAt:       utcTime(r.VerifiedAt),
		VerificationNote: r.VerificationNote,
		CreatedAt:        r.CreatedAt.UTC(),
	}
}

type taskRepository struct {
	baseRepository
}

var _ task.Repository = (*taskRepository)(nil) // interface compliance check

func NewTaskRepository(exec core.DBExecutor) *taskRepository {
	return &taskRepository{baseRepository: newBaseRepository(exec)}
}

// Leaders

func (repo taskRepository) CreateLeader(ctx context.Context, ldr task.Leader, exec ...core.DBExecutor) (task.Leader, error) {
	ldr.ID = uuid.New().String()
	ldr.CreatedAt = ldr.CreatedAt.UTC()

	q := repo.sb.Insert(leadersTable).
		Columns(leaderColumns...).
		Values(ldr.ID, ldr.InstitutionID, ldr.UserID, string(ldr.Area), ldr.AssignedByID, ldr.IsActive, ldr.CreatedAt)
	if _, err := repo.execute(ctx, repo.getExec(exec), q); err != nil {
		return task.Leader{}, errors.Wrap(err, "inserting leader")
	}
	return ldr, nil
}

func (repo taskRepository) GetLeader(ctx context.Context, id string, exec ...core.DBExecutor) (task.Leader, error) {
	var row leaderRow
	q := repo.sb.Select(leaderColumns...).From(leadersTable).Where(sq.Eq{"id": id})
	if err := repo.get(ctx, repo.getExec(exec), &row, q); err != nil {
		return task.Leader{}, trapNoRowsErr(err, task.ErrLeaderNotFound, "getting leader")
	}
	return row.toLeader(), nil
}

func (repo taskRepository) QueryLeaders(ctx context.Context, filter task.LeaderFilter, exec ...core.DBExecutor) ([]task.Leader, error) {
	q := repo.sb.Select(leaderColumns...).From(leadersTable).OrderBy("created_at ASC")
	if filter.InstitutionID != "" {
		q = q.Where(sq.Eq{"institution_id": filter.InstitutionID})
	}
	if filter.UserID != "" {
		q = q.Where(sq.Eq{"user_id": filter.UserID})
	}
	if filter.IsActive != nil {
		q = q.Where(sq.Eq{"is_active": *filter.IsActive})
	}

	var rows []leaderRow
	if err := repo.selectRows(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying leaders")
	}
	leaders := make([]task.Leader, 0, len(rows))
	for _, r := range rows {
		leaders = append(leaders, r.toLeader())
	}
	return leaders, nil
}

func (repo taskRepository) DeactivateLeader(ctx context.Context, id string, exec ...core.DBExecutor) error {
	q := repo.sb.Update(leadersTable).Set("is_active", false).Where(sq.Eq{"id": id})
	n, err := repo.execute(ctx, repo.getExec(exec), q)
	if err != nil {
		return errors.Wrap(err, "deactivating leader")
	}
	if n == 0 {
		return task.ErrLeaderNotFound
	}
	return nil
}

// Tasks

func (repo taskRepository) CreateTask(ctx context.Context, tsk task.Task, exec ...core.DBExecutor) (task.Task, error) {
	tsk.ID = uuid.New().String()
	tsk.CreatedAt = tsk.CreatedAt.UTC()

	q := repo.sb.Insert(tasksTable).
		Columns(taskColumns...).
		Values(
			tsk.ID, tsk.InstitutionID, tsk.Title, tsk.Description, string(tsk.Category), string(tsk.Priority), tsk.DueDate,
			tsk.CreatedByID, tsk.LeaderID, tsk.IsActive, tsk.CreatedAt,
		)
	if _, err := repo.execute(ctx, repo.getExec(exec), q); err != nil {
		return task.Task{}, errors.Wrap(err, "inserting task")
	}
	return tsk, nil
}

func (repo taskRepository) GetTask(ctx context.Context, id string, exec ...core.DBExecutor) (task.Task, error) {
	var row taskRow
	q := repo.sb.Select(taskColumns...).From(tasksTable).Where(sq.Eq{"id": id})
	if err := repo.get(ctx, repo.getExec(exec), &row, q); err != nil {
		return task.Task{}, trapNoRowsErr(err, task.ErrTaskNotFound, "getting task")
	}
	return row.toTask(), nil
}

func (repo taskRepository) QueryTasks(ctx context.Context, filter task.TaskFilter, exec ...core.DBExecutor) ([]task.Task, error) {
	q := repo.sb.Select(taskColumns...).From(tasksTable).OrderBy("created_at DESC")
	if filter.IDs != nil {
		q = q.Where(sq.Eq{"id": filter.IDs})
	}
	if filter.InstitutionID != "" {
		q = q.Where(sq.Eq{"institution_id": filter.InstitutionID})
	}
	if filter.CreatedByID != "" {
		q = q.Where(sq.Eq{"created_by_id": filter.CreatedByID})
	}
	if filter.IsActive != nil {
		q = q.Where(sq.Eq{"is_active": *filter.IsActive})
	}

	var rows []taskRow
	if err := repo.selectRows(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying tasks")
	}
	tasks := make([]task.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, r.toTask())
	}
	return tasks, nil
}

func (repo taskRepository) DeactivateTask(ctx context.Context, id string, exec ...core.DBExecutor) error {
	q := repo.sb.Update(tasksTable).Set("is_active", false).Where(sq.Eq{"id": id})
	n, err := repo.execute(ctx, repo.getExec(exec), q)
	if err != nil {
		return errors.Wrap(err, "deactivating task")
	}
	if n == 0 {
		return task.ErrTaskNotFound
	}
	return nil
}

// Assignments

func (repo taskRepository) CreateAssignments(ctx context.Context, asgs []task.Assignment, exec ...core.DBExecutor) ([]task.Assignment, error) {
	if len(asgs) == 0 {
		return []task.Assignment{}, nil
	}

	q := repo.sb.Insert(assignmentsTable).Columns(assignmentColumns...)
	for i := range asgs {
		a := &asgs[i]
		a.ID = uuid.New().String()
		a.CreatedAt = a.CreatedAt.UTC()
		if a.Status == "" {
			a.Status = task.StatusPending
		}
		q = q.Values(
			a.ID, a.TaskID, a.AssigneeID, string(a.Status), a.StartedAt, a.CompletedAt, a.ResponseNote,
			a.EvidenceURL, a.EvidenceFileName, a.EvidenceFileSize, a.EvidenceMimeType,
			a.VerifiedByID, a.VerifiedAt, a.VerificationNote, a.CreatedAt,
		)
	}
	if _, err := repo.execute(ctx, repo.getExec(exec), q); err != nil {
		return nil, errors.Wrap(err, "inserting assignments")
	}
	return asgs, nil
}

func (repo taskRepository) GetAssignment(ctx context.Context, id string, exec ...core.DBExecutor) (task.Assignment, error) {
	var row assignmentRow
	q := repo.sb.Select(assignmentColumns...).From(assignmentsTable).Where(sq.Eq{"id": id})
	if err := repo.get(ctx, repo.getExec(exec), &row, q); err != nil {
		return task.Assignment{}, trapNoRowsErr(err, task.ErrAssignmentNotFound, "getting assignment")
	}
	return row.toAssignment(), nil
}

func (repo taskRepository) QueryAssignments(ctx context.Context, filter task.AssignmentFilter, exec ...core.DBExecutor) ([]task.Assignment, error) {
	q := repo.sb.Select(assignmentColumns...).From(assignmentsTable).OrderBy("created_at ASC", "id ASC")
	if filter.TaskIDs != nil {
		q = q.Where(sq.Eq{"task_id": filter.TaskIDs})
	}
	if filter.AssigneeID != "" {
		q = q.Where(sq.Eq{"assignee_id": filter.AssigneeID})
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		q = q.Where(sq.Eq{"status": statuses})
	}

	var rows []assignmentRow
	if err := repo.selectRows(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	asgs := make([]task.Assignment, 0, len(rows))
	for _, r := range rows {
		asgs = append(asgs, r.toAssignment())
	}
	return asgs, nil
}

func (repo taskRepository) UpdateAssignment(ctx context.Context, asg task.Assignment, exec ...core.DBExecutor) (task.Assignment, error) {
	exe := repo.getExec(exec)

	q := repo.sb.Update(assignmentsTable).
		SetMap(map[string]interface{}{
			"status":             string(asg.Status),
			"started_at":         asg.StartedAt,
			"completed_at":       asg.CompletedAt,
			"response_note":      asg.ResponseNote,
			"evidence_url":       asg.EvidenceURL,
			"evidence_file_name": asg.EvidenceFileName,
			"evidence_file_size": asg.EvidenceFileSize,
			"evidence_mime_type": asg.EvidenceMimeType,
			"verified_by_id":     asg.VerifiedByID,
			"verified_at":        asg.VerifiedAt,
			"verification_note":  asg.VerificationNote,
		}).
		Where(sq.Eq{"id": asg.ID})

	n, err := repo.execute(ctx, exe, q)
	if err != nil {
		return task.Assignment{}, errors.Wrap(err, "updating assignment")
	}
	if n == 0 {
		return task.Assignment{}, task.ErrAssignmentNotFound
	}
	return repo.GetAssignment(ctx, asg.ID, exe)
}
