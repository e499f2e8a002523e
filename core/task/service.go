package task

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/document"
	"github.com/trezcool/colegio/core/quota"
	"github.com/trezcool/colegio/core/user"
)

var (
	// errors
	ErrLeaderNotFound     = core.NotFound("leader not found")
	ErrTaskNotFound       = core.NotFound("task not found")
	ErrAssignmentNotFound = core.NotFound("assignment not found")
	ErrAssigneeNotFound   = core.NotFound("assignee not found")
	ErrNotAssignee        = core.Forbidden("You are not assigned to this task")
)

type (
	Repository interface {
		CreateLeader(ctx context.Context, ldr Leader, exec ...core.DBExecutor) (Leader, error)
		GetLeader(ctx context.Context, id string, exec ...core.DBExecutor) (Leader, error)
		QueryLeaders(ctx context.Context, filter LeaderFilter, exec ...core.DBExecutor) ([]Leader, error)
		DeactivateLeader(ctx context.Context, id string, exec ...core.DBExecutor) error

		CreateTask(ctx context.Context, tsk Task, exec ...core.DBExecutor) (Task, error)
		GetTask(ctx context.Context, id string, exec ...core.DBExecutor) (Task, error)
		// QueryTasks returns the matching tasks, newest first.
		QueryTasks(ctx context.Context, filter TaskFilter, exec ...core.DBExecutor) ([]Task, error)
		DeactivateTask(ctx context.Context, id string, exec ...core.DBExecutor) error

		CreateAssignments(ctx context.Context, asgs []Assignment, exec ...core.DBExecutor) ([]Assignment, error)
		GetAssignment(ctx context.Context, id string, exec ...core.DBExecutor) (Assignment, error)
		QueryAssignments(ctx context.Context, filter AssignmentFilter, exec ...core.DBExecutor) ([]Assignment, error)
		// UpdateAssignment persists the status, response, evidence and verification fields of asg.
		UpdateAssignment(ctx context.Context, asg Assignment, exec ...core.DBExecutor) (Assignment, error)
	}

	Service struct {
		db       core.DB
		repo     Repository
		usrSvc   *user.Service
		quotaSvc *quota.Service
		store    core.ObjectStorage
		mailSvc  core.EmailService
		logger   core.Logger
		validate *validator.Validate

		nowFunc func() time.Time
	}
)

func NewService(
	db core.DB,
	repo Repository,
	usrSvc *user.Service,
	quotaSvc *quota.Service,
	store core.ObjectStorage,
	mailSvc core.EmailService,
	logger core.Logger,
	validate *validator.Validate,
) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		usrSvc:   usrSvc,
		quotaSvc: quotaSvc,
		store:    store,
		mailSvc:  mailSvc,
		logger:   logger,
		validate: validate,
		nowFunc:  time.Now,
	}
}

func (svc *Service) now() time.Time {
	return svc.nowFunc().UTC()
}

// EvidencePath builds the storage path of an evidence file uploaded at t.
func EvidencePath(institutionID, taskID, userID string, t time.Time, ext string) string {
	return fmt.Sprintf(
		"institucion/%s/tareas/%s/%s/evidence_%d.%s",
		institutionID, taskID, userID, t.UnixNano()/int64(time.Millisecond), ext,
	)
}

// Leaders

// CreateLeader grants nl.UserID the leadership of an area. Granting the same area twice is allowed.
func (svc *Service) CreateLeader(ctx context.Context, nl NewLeader, assignedByID string) (Leader, error) {
	nl.clean()
	if err := svc.validate.Struct(nl); err != nil {
		return Leader{}, err
	}
	usr, err := svc.usrSvc.GetByID(ctx, nl.UserID)
	if err != nil {
		return Leader{}, err
	}

	ldr, err := svc.repo.CreateLeader(ctx, Leader{
		InstitutionID: nl.InstitutionID,
		UserID:        nl.UserID,
		Area:          nl.Area,
		AssignedByID:  assignedByID,
		IsActive:      true,
		CreatedAt:     svc.now(),
	})
	if err != nil {
		return Leader{}, errors.Wrap(err, "creating leader")
	}
	summary := usr.Summary()
	ldr.User = &summary
	return ldr, nil
}

// IsUserLeader reports whether the user holds an active leadership in the institution.
func (svc *Service) IsUserLeader(ctx context.Context, userID, institutionID string) (bool, error) {
	ldr, err := svc.activeLeader(ctx, userID, institutionID)
	if err != nil {
		return false, err
	}
	return ldr != nil, nil
}

func (svc *Service) activeLeader(ctx context.Context, userID, institutionID string) (*Leader, error) {
	active := true
	leaders, err := svc.repo.QueryLeaders(ctx, LeaderFilter{InstitutionID: institutionID, UserID: userID, IsActive: &active})
	if err != nil {
		return nil, errors.Wrap(err, "querying leaders")
	}
	if len(leaders) == 0 {
		return nil, nil
	}
	return &leaders[0], nil
}

func (svc *Service) ListLeaders(ctx context.Context, institutionID string) ([]Leader, error) {
	active := true
	leaders, err := svc.repo.QueryLeaders(ctx, LeaderFilter{InstitutionID: institutionID, IsActive: &active})
	if err != nil {
		return nil, errors.Wrap(err, "querying leaders")
	}

	ids := make([]string, 0, len(leaders))
	for _, l := range leaders {
		ids = append(ids, l.UserID)
	}
	users, err := svc.usrSvc.GetByIDs(ctx, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "getting leader users")
	}
	for i := range leaders {
		if usr, ok := users[leaders[i].UserID]; ok {
			summary := usr.Summary()
			leaders[i].User = &summary
		}
	}
	return leaders, nil
}

// RemoveLeader revokes a leadership. The row is kept.
func (svc *Service) RemoveLeader(ctx context.Context, id string) error {
	if _, err := svc.repo.GetLeader(ctx, id); err != nil {
		return err
	}
	return errors.Wrap(svc.repo.DeactivateLeader(ctx, id), "deactivating leader")
}

// Tasks

// CreateTask creates a task and one pending assignment per assignee. The task is linked
// to the creator's leadership when they hold one in the institution.
func (svc *Service) CreateTask(ctx context.Context, nt NewTask, createdByID string) (Task, error) {
	nt.clean()
	if err := svc.validate.Struct(nt); err != nil {
		return Task{}, err
	}

	assignees, err := svc.usrSvc.GetByIDs(ctx, nt.AssigneeIDs...)
	if err != nil {
		return Task{}, errors.Wrap(err, "getting assignees")
	}
	for _, id := range nt.AssigneeIDs {
		if _, ok := assignees[id]; !ok {
			return Task{}, ErrAssigneeNotFound
		}
	}

	ldr, err := svc.activeLeader(ctx, createdByID, nt.InstitutionID)
	if err != nil {
		return Task{}, err
	}

	now := svc.now()
	tsk := Task{
		InstitutionID: nt.InstitutionID,
		Title:         nt.Title,
		Description:   null.NewString(nt.Description, nt.Description != ""),
		Category:      nt.Category,
		Priority:      nt.Priority,
		DueDate:       null.TimeFromPtr(nt.DueDate),
		CreatedByID:   createdByID,
		IsActive:      true,
		CreatedAt:     now,
	}
	if tsk.DueDate.Valid {
		tsk.DueDate.Time = tsk.DueDate.Time.UTC()
	}
	if ldr != nil {
		tsk.LeaderID = null.StringFrom(ldr.ID)
	}

	tx, err := svc.db.BeginTxx(ctx, nil)
	if err != nil {
		return Task{}, errors.Wrap(err, "starting transaction")
	}
	tsk, err = svc.repo.CreateTask(ctx, tsk, tx)
	if err != nil {
		_ = tx.Rollback()
		return Task{}, errors.Wrap(err, "creating task")
	}
	asgs := make([]Assignment, 0, len(nt.AssigneeIDs))
	for _, id := range nt.AssigneeIDs {
		asgs = append(asgs, Assignment{TaskID: tsk.ID, AssigneeID: id, Status: StatusPending, CreatedAt: now})
	}
	if asgs, err = svc.repo.CreateAssignments(ctx, asgs, tx); err != nil {
		_ = tx.Rollback()
		return Task{}, errors.Wrap(err, "creating assignments")
	}
	if err = tx.Commit(); err != nil {
		return Task{}, errors.Wrap(err, "committing task")
	}

	for i := range asgs {
		summary := assignees[asgs[i].AssigneeID].Summary()
		asgs[i].Assignee = &summary
	}
	tsk.Assignments = asgs

	svc.notifyAssigned(tsk, assignees)
	return tsk, nil
}

// ListTasks returns the institution's active tasks with their assignments.
func (svc *Service) ListTasks(ctx context.Context, institutionID string) ([]Task, error) {
	active := true
	tasks, err := svc.repo.QueryTasks(ctx, TaskFilter{InstitutionID: institutionID, IsActive: &active})
	if err != nil {
		return nil, errors.Wrap(err, "querying tasks")
	}
	return svc.withAssignments(ctx, tasks)
}

func (svc *Service) GetTask(ctx context.Context, id string) (Task, error) {
	tsk, err := svc.repo.GetTask(ctx, id)
	if err != nil {
		return Task{}, err
	}
	tasks, err := svc.withAssignments(ctx, []Task{tsk})
	if err != nil {
		return Task{}, err
	}
	return tasks[0], nil
}

// DeleteTask deactivates a task. Its assignments are kept.
func (svc *Service) DeleteTask(ctx context.Context, id string) error {
	if _, err := svc.repo.GetTask(ctx, id); err != nil {
		return err
	}
	return errors.Wrap(svc.repo.DeactivateTask(ctx, id), "deactivating task")
}

// Assignments

// StartTask moves a pending assignment to IN_PROGRESS.
func (svc *Service) StartTask(ctx context.Context, assignmentID, userID string) (Assignment, error) {
	asg, err := svc.assigneeAssignment(ctx, assignmentID, userID)
	if err != nil {
		return Assignment{}, err
	}
	if !asg.Status.CanStart() {
		return Assignment{}, core.InvalidStateTransition("Only pending tasks can be started")
	}

	asg.Status = StatusInProgress
	asg.StartedAt = null.TimeFrom(svc.now())
	updated, err := svc.repo.UpdateAssignment(ctx, asg)
	if err != nil {
		return Assignment{}, errors.Wrap(err, "updating assignment")
	}
	updated.Task = asg.Task
	return updated, nil
}

// SubmitEvidence submits the assignment for verification, optionally storing an evidence file.
func (svc *Service) SubmitEvidence(ctx context.Context, assignmentID, userID, note string, file *core.UploadedFile) (Assignment, error) {
	asg, err := svc.assigneeAssignment(ctx, assignmentID, userID)
	if err != nil {
		return Assignment{}, err
	}
	if !asg.Status.CanSubmit() {
		return Assignment{}, core.InvalidStateTransition("This task cannot be submitted in its current status")
	}

	now := svc.now()
	var uploaded string
	if file != nil && file.Body != nil {
		tsk, err := svc.repo.GetTask(ctx, asg.TaskID)
		if err != nil {
			return Assignment{}, err
		}
		if err = validateEvidence(file); err != nil {
			return Assignment{}, err
		}
		if err = svc.quotaSvc.CheckLimit(ctx, tsk.InstitutionID, quota.CategoryEvidences, file.Size); err != nil {
			return Assignment{}, err
		}

		path := EvidencePath(tsk.InstitutionID, tsk.ID, userID, now, evidenceExt(file))
		url, err := svc.store.Upload(ctx, path, file.Body, file.Size, file.MimeType)
		if err != nil {
			return Assignment{}, errors.Wrap(err, "uploading evidence")
		}
		uploaded = path

		asg.EvidenceURL = null.StringFrom(url)
		asg.EvidenceFileName = null.StringFrom(file.FileName)
		asg.EvidenceFileSize = null.Int64From(file.Size)
		asg.EvidenceMimeType = null.StringFrom(file.MimeType)
	}

	asg, err = svc.submit(ctx, asg, note, now)
	if err != nil {
		if uploaded != "" {
			if dErr := svc.store.Delete(ctx, uploaded); dErr != nil {
				svc.logger.Error(fmt.Sprintf("removing uploaded evidence %s: %v", uploaded, dErr), dErr)
			}
		}
		return Assignment{}, err
	}

	if uploaded != "" {
		if err = svc.quotaSvc.AdjustUsage(ctx, asg.Task.InstitutionID, quota.CategoryEvidences, asg.EvidenceFileSize.Int64); err != nil {
			return Assignment{}, errors.Wrap(err, "adjusting evidences usage")
		}
	}
	return asg, nil
}

// MarkAsCompleted submits the assignment for verification without evidence.
func (svc *Service) MarkAsCompleted(ctx context.Context, assignmentID, userID, note string) (Assignment, error) {
	asg, err := svc.assigneeAssignment(ctx, assignmentID, userID)
	if err != nil {
		return Assignment{}, err
	}
	if !asg.Status.CanSubmit() {
		return Assignment{}, core.InvalidStateTransition("This task cannot be completed in its current status")
	}
	return svc.submit(ctx, asg, note, svc.now())
}

func (svc *Service) submit(ctx context.Context, asg Assignment, note string, now time.Time) (Assignment, error) {
	note = core.CleanString(note)
	asg.Status = StatusSubmitted
	asg.CompletedAt = null.TimeFrom(now)
	if note != "" {
		asg.ResponseNote = null.StringFrom(note)
	}

	updated, err := svc.repo.UpdateAssignment(ctx, asg)
	if err != nil {
		return Assignment{}, errors.Wrap(err, "updating assignment")
	}
	updated.Task = asg.Task
	return updated, nil
}

// VerifyTask approves or rejects a submitted assignment.
func (svc *Service) VerifyTask(ctx context.Context, assignmentID, verifierID string, v Verification) (Assignment, error) {
	v.Status = Status(core.CleanString(string(v.Status)))
	if err := svc.validate.Struct(v); err != nil {
		return Assignment{}, err
	}

	asg, err := svc.repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return Assignment{}, err
	}
	if !asg.Status.CanVerify() {
		return Assignment{}, core.InvalidStateTransition("Only submitted tasks can be verified")
	}

	note := core.CleanString(v.Note)
	asg.Status = v.Status
	asg.VerifiedByID = null.StringFrom(verifierID)
	asg.VerifiedAt = null.TimeFrom(svc.now())
	asg.VerificationNote = null.NewString(note, note != "")
	if asg, err = svc.repo.UpdateAssignment(ctx, asg); err != nil {
		return Assignment{}, errors.Wrap(err, "updating assignment")
	}

	svc.notifyVerified(ctx, asg)
	return asg, nil
}

// GetPendingVerifications returns the submitted assignments of the verifier's active tasks.
func (svc *Service) GetPendingVerifications(ctx context.Context, institutionID, verifierID string) ([]Assignment, error) {
	active := true
	tasks, err := svc.repo.QueryTasks(ctx, TaskFilter{InstitutionID: institutionID, CreatedByID: verifierID, IsActive: &active})
	if err != nil {
		return nil, errors.Wrap(err, "querying tasks")
	}
	if len(tasks) == 0 {
		return []Assignment{}, nil
	}

	byID := make(map[string]Task, len(tasks))
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}
	asgs, err := svc.repo.QueryAssignments(ctx, AssignmentFilter{TaskIDs: ids, Statuses: []Status{StatusSubmitted}})
	if err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	for i := range asgs {
		tsk := byID[asgs[i].TaskID]
		asgs[i].Task = &tsk
	}
	sort.SliceStable(asgs, func(i, j int) bool {
		return asgs[i].CompletedAt.Time.Before(asgs[j].CompletedAt.Time)
	})
	return svc.withAssignees(ctx, asgs)
}

// GetMyTasks returns the user's assignments on active tasks, ordered by status,
// then task priority (highest first), then due date (soonest first, undated last).
func (svc *Service) GetMyTasks(ctx context.Context, userID string) ([]Assignment, error) {
	asgs, err := svc.repo.QueryAssignments(ctx, AssignmentFilter{AssigneeID: userID})
	if err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	if len(asgs) == 0 {
		return []Assignment{}, nil
	}

	ids := make([]string, 0, len(asgs))
	for _, a := range asgs {
		ids = append(ids, a.TaskID)
	}
	active := true
	tasks, err := svc.repo.QueryTasks(ctx, TaskFilter{IDs: ids, IsActive: &active})
	if err != nil {
		return nil, errors.Wrap(err, "querying tasks")
	}
	byID := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	mine := make([]Assignment, 0, len(asgs))
	for _, a := range asgs {
		if tsk, ok := byID[a.TaskID]; ok {
			a.Task = &tsk
			mine = append(mine, a)
		}
	}
	sortMyTasks(mine)
	return mine, nil
}

// GetMyPendingCount counts the user's assignments of active tasks that are pending, in progress or rejected.
func (svc *Service) GetMyPendingCount(ctx context.Context, userID string) (PendingCount, error) {
	asgs, err := svc.GetMyTasks(ctx, userID)
	if err != nil {
		return PendingCount{}, err
	}
	var count int
	for _, a := range asgs {
		if a.Status.IsOpen() {
			count++
		}
	}
	return PendingCount{Count: count}, nil
}

// GetEvidenceURL returns a signed URL to the assignment's evidence file.
func (svc *Service) GetEvidenceURL(ctx context.Context, assignmentID string) (document.DownloadURL, error) {
	asg, err := svc.repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return document.DownloadURL{}, err
	}
	if !asg.EvidenceURL.Valid {
		return document.DownloadURL{}, core.NotFound("This assignment has no evidence file")
	}
	return document.SignedURL(ctx, svc.store, svc.logger, asg.EvidenceURL.String), nil
}

func sortMyTasks(asgs []Assignment) {
	sort.SliceStable(asgs, func(i, j int) bool {
		a, b := asgs[i], asgs[j]
		if ra, rb := a.Status.rank(), b.Status.rank(); ra != rb {
			return ra < rb
		}
		if pa, pb := a.Task.Priority.rank(), b.Task.Priority.rank(); pa != pb {
			return pa > pb
		}
		da, db := a.Task.DueDate, b.Task.DueDate
		switch {
		case da.Valid && db.Valid:
			return da.Time.Before(db.Time)
		case da.Valid != db.Valid:
			return da.Valid // undated last
		}
		return false
	})
}

// assigneeAssignment fetches the assignment and its task, making sure userID is the assignee.
func (svc *Service) assigneeAssignment(ctx context.Context, assignmentID, userID string) (Assignment, error) {
	asg, err := svc.repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return Assignment{}, err
	}
	if asg.AssigneeID != userID {
		return Assignment{}, ErrNotAssignee
	}
	tsk, err := svc.repo.GetTask(ctx, asg.TaskID)
	if err != nil {
		return Assignment{}, err
	}
	asg.Task = &tsk
	return asg, nil
}

func (svc *Service) withAssignments(ctx context.Context, tasks []Task) ([]Task, error) {
	if len(tasks) == 0 {
		return []Task{}, nil
	}
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	asgs, err := svc.repo.QueryAssignments(ctx, AssignmentFilter{TaskIDs: ids})
	if err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	if asgs, err = svc.withAssignees(ctx, asgs); err != nil {
		return nil, err
	}

	byTask := make(map[string][]Assignment, len(tasks))
	for _, a := range asgs {
		byTask[a.TaskID] = append(byTask[a.TaskID], a)
	}
	userIDs := make([]string, 0, len(tasks))
	for _, t := range tasks {
		userIDs = append(userIDs, t.CreatedByID)
	}
	creators, err := svc.usrSvc.GetByIDs(ctx, userIDs...)
	if err != nil {
		return nil, errors.Wrap(err, "getting task creators")
	}
	for i := range tasks {
		tasks[i].Assignments = byTask[tasks[i].ID]
		if usr, ok := creators[tasks[i].CreatedByID]; ok {
			summary := usr.Summary()
			tasks[i].CreatedBy = &summary
		}
	}
	return tasks, nil
}

func (svc *Service) withAssignees(ctx context.Context, asgs []Assignment) ([]Assignment, error) {
	ids := make([]string, 0, len(asgs))
	for _, a := range asgs {
		ids = append(ids, a.AssigneeID)
	}
	users, err := svc.usrSvc.GetByIDs(ctx, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "getting assignees")
	}
	for i := range asgs {
		if usr, ok := users[asgs[i].AssigneeID]; ok {
			summary := usr.Summary()
			asgs[i].Assignee = &summary
		}
	}
	return asgs, nil
}

// Notifications

type (
	assignedMailData struct {
		AssigneeName string
		Title        string
		Priority     Priority
		DueDate      string
	}

	verifiedMailData struct {
		AssigneeName string
		Title        string
		Status       Status
		Note         string
	}
)

func (svc *Service) notifyAssigned(tsk Task, assignees map[string]user.User) {
	var dueDate string
	if tsk.DueDate.Valid {
		dueDate = tsk.DueDate.Time.Format("2006-01-02")
	}

	msgs := make([]*core.EmailMessage, 0, len(tsk.Assignments))
	for _, a := range tsk.Assignments {
		usr, ok := assignees[a.AssigneeID]
		if !ok || usr.Email == "" {
			continue
		}
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
			Subject:      "Nueva tarea de gestión: " + tsk.Title,
			TemplateName: "task_assigned",
			TemplateData: assignedMailData{AssigneeName: usr.Name, Title: tsk.Title, Priority: tsk.Priority, DueDate: dueDate},
		})
	}
	if len(msgs) > 0 {
		svc.mailSvc.SendMessages(msgs...)
	}
}

func (svc *Service) notifyVerified(ctx context.Context, asg Assignment) {
	usr, err := svc.usrSvc.GetByID(ctx, asg.AssigneeID)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("notifying verification of %s: %v", asg.ID, err), err)
		return
	}
	tsk, err := svc.repo.GetTask(ctx, asg.TaskID)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("notifying verification of %s: %v", asg.ID, err), err)
		return
	}
	if usr.Email == "" {
		return
	}

	// the task creator is kept in copy
	var cc []mail.Address
	if creator, err := svc.usrSvc.GetByID(ctx, tsk.CreatedByID); err != nil {
		svc.logger.Warn(fmt.Sprintf("loading creator of task %s: %v", tsk.ID, err), err)
	} else if creator.Email != "" && creator.Email != usr.Email {
		cc = append(cc, mail.Address{Name: creator.Name, Address: creator.Email})
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Cc:           cc,
		Subject:      "Tarea revisada: " + tsk.Title,
		TemplateName: "task_verified",
		TemplateData: verifiedMailData{AssigneeName: usr.Name, Title: tsk.Title, Status: asg.Status, Note: asg.VerificationNote.String},
	})
}
