package tests

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/colegio/apps/api/echo"
	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/document"
	"github.com/trezcool/colegio/core/quota"
	"github.com/trezcool/colegio/core/task"
	"github.com/trezcool/colegio/core/user"
	"github.com/trezcool/colegio/tests"
)

const tasksPath = "/api/management-tasks"

func assignmentPath(id, action string) string {
	return tasksPath + "/assignments/" + id + "/" + action
}

func createTask(t *testing.T, e *env, creator user.User, inst, title string, assignees ...user.User) task.Task {
	t.Helper()
	ids := make([]string, 0, len(assignees))
	for _, a := range assignees {
		ids = append(ids, a.ID)
	}
	tsk, err := e.taskSvc.CreateTask(context.Background(), task.NewTask{
		InstitutionID: inst,
		Title:         title,
		Category:      task.CategoryPlaneacion,
		AssigneeIDs:   ids,
	}, creator.ID)
	if err != nil {
		t.Fatalf("createTask() failed: %v", err)
	}
	return tsk
}

func assignmentOf(t *testing.T, tsk task.Task, usr user.User) task.Assignment {
	t.Helper()
	for _, a := range tsk.Assignments {
		if a.AssigneeID == usr.ID {
			return a
		}
	}
	t.Fatalf("no assignment of %s on task %s", usr.ID, tsk.ID)
	return task.Assignment{}
}

func Test_taskApi_leaders(t *testing.T) {
	e := setup(t)

	rector := testutil.CreateUser(t, e.usrRepo, "Rector", "rector@test.co", []string{user.RoleRector}, true)
	coord := testutil.CreateUser(t, e.usrRepo, "Coordinador", "coord@test.co", []string{user.RoleCoordinador}, true)
	docente := testutil.CreateUser(t, e.usrRepo, "Docente", "docente@test.co", []string{user.RoleDocente}, true)
	rectorToken := e.getToken(t, rector)
	forbidden := marchallObj(t, httpErr{Error: "permission denied"})

	runHTTPTests(t, e, []httpTest{
		{
			name: "create: auth required", method: http.MethodPost, path: tasksPath + "/leaders",
			body: []byte(`{}`), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "create: management role required", method: http.MethodPost, path: tasksPath + "/leaders", token: e.getToken(t, coord),
			body: []byte(`{"institution_id":"inst-1","user_id":"` + coord.ID + `","area":"ACADEMICA"}`),
			wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "create: invalid area", method: http.MethodPost, path: tasksPath + "/leaders", token: rectorToken,
			body:     []byte(`{"institution_id":"inst-1","user_id":"` + coord.ID + `","area":"DEPORTES"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"area": "invalid management area"}),
		},
		{
			name: "create: unknown user", method: http.MethodPost, path: tasksPath + "/leaders", token: rectorToken,
			body:     []byte(`{"institution_id":"inst-1","user_id":"lol","area":"ACADEMICA"}`),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, kindErr{Error: "user not found", Kind: core.KindNotFound}),
		},
		{
			name: "list: institution required", path: tasksPath + "/leaders", token: rectorToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"institutionId": "this field is required"}),
		},
		{
			name: "list: role required", path: tasksPath + "/leaders?institutionId=inst-1", token: e.getToken(t, docente),
			wantCode: http.StatusForbidden, wantData: forbidden,
		},
	})

	var ldr task.Leader
	t.Run("create", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, tasksPath+"/leaders?institutionId=inst-1", rectorToken,
			[]byte(`{"user_id":"`+coord.ID+`","area":"ACADEMICA"}`))
		e.do(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		unmarshal(t, rec, &ldr)
		assert.NotEmpty(t, ldr.ID)
		assert.Equal(t, "inst-1", ldr.InstitutionID)
		assert.Equal(t, coord.ID, ldr.UserID)
		assert.Equal(t, task.AreaAcademica, ldr.Area)
		assert.Equal(t, rector.ID, ldr.AssignedByID)
		assert.True(t, ldr.IsActive)
		require.NotNil(t, ldr.User)
		assert.Equal(t, coord.Summary(), *ldr.User)
	})

	t.Run("list", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, tasksPath+"/leaders?institutionId=inst-1", e.getToken(t, coord))
		e.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var leaders []task.Leader
		unmarshal(t, rec, &leaders)
		require.Len(t, leaders, 1)
		assert.Equal(t, ldr.ID, leaders[0].ID)
		require.NotNil(t, leaders[0].User)
		assert.Equal(t, "Coordinador", leaders[0].User.Name)
	})

	runHTTPTests(t, e, []httpTest{
		{
			name: "check: leader", path: tasksPath + "/leaders/check?institutionId=inst-1", token: e.getToken(t, coord),
			wantCode: http.StatusOK, wantData: []byte(`{"is_leader":true}`),
		},
		{
			name: "check: other institution", path: tasksPath + "/leaders/check?institutionId=inst-2", token: e.getToken(t, coord),
			wantCode: http.StatusOK, wantData: []byte(`{"is_leader":false}`),
		},
		{
			name: "check: not a leader", path: tasksPath + "/leaders/check?institutionId=inst-1", token: e.getToken(t, docente),
			wantCode: http.StatusOK, wantData: []byte(`{"is_leader":false}`),
		},
		{
			name: "remove: not found", method: http.MethodDelete, path: tasksPath + "/leaders/lol", token: rectorToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, kindErr{Error: "leader not found", Kind: core.KindNotFound}),
		},
		{
			name: "remove", method: http.MethodDelete, path: tasksPath + "/leaders/" + ldr.ID, token: rectorToken,
			wantCode: http.StatusOK, wantData: marchallObj(t, SuccessResponse{Success: "Leader removed."}),
		},
		{
			name: "check: removed", path: tasksPath + "/leaders/check?institutionId=inst-1", token: e.getToken(t, coord),
			wantCode: http.StatusOK, wantData: []byte(`{"is_leader":false}`),
		},
		{
			name: "list: removed", path: tasksPath + "/leaders?institutionId=inst-1", token: rectorToken,
			wantCode: http.StatusOK, wantData: marchallList(t),
		},
	})
}

func Test_taskApi_create(t *testing.T) {
	e := setup(t)

	rector := testutil.CreateUser(t, e.usrRepo, "Rector", "rector@test.co", []string{user.RoleRector}, true)
	coord := testutil.CreateUser(t, e.usrRepo, "Coordinador", "coord@test.co", []string{user.RoleCoordinador}, true)
	doc1 := testutil.CreateUser(t, e.usrRepo, "Docente Uno", "uno@test.co", []string{user.RoleDocente}, true)
	doc2 := testutil.CreateUser(t, e.usrRepo, "Docente Dos", "dos@test.co", []string{user.RoleDocente}, true)

	ldr, err := e.taskSvc.CreateLeader(context.Background(), task.NewLeader{
		InstitutionID: "inst-1", UserID: coord.ID, Area: task.AreaAcademica,
	}, rector.ID)
	require.NoError(t, err)

	coordToken := e.getToken(t, coord)

	runHTTPTests(t, e, []httpTest{
		{
			name: "role required", method: http.MethodPost, path: tasksPath + "?institutionId=inst-1", token: e.getToken(t, doc1),
			body:     []byte(`{"title":"Plan","category":"PLANEACION","assignee_ids":["` + doc2.ID + `"]}`),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "assignees required", method: http.MethodPost, path: tasksPath + "?institutionId=inst-1", token: coordToken,
			body:     []byte(`{"title":"Plan","category":"PLANEACION"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"assignee_ids": "this field is required"}),
		},
		{
			name: "invalid priority", method: http.MethodPost, path: tasksPath + "?institutionId=inst-1", token: coordToken,
			body:     []byte(`{"title":"Plan","category":"PLANEACION","priority":"YA","assignee_ids":["` + doc1.ID + `"]}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"priority": "invalid task priority"}),
		},
		{
			name: "unknown assignee", method: http.MethodPost, path: tasksPath + "?institutionId=inst-1", token: coordToken,
			body:     []byte(`{"title":"Plan","category":"PLANEACION","assignee_ids":["` + doc1.ID + `","lol"]}`),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, kindErr{Error: "assignee not found", Kind: core.KindNotFound}),
		},
	})
	assert.Empty(t, e.mailSvc.Sent())

	req, rec := newAuthRequest(http.MethodPost, tasksPath+"?institutionId=inst-1", coordToken, []byte(fmt.Sprintf(
		`{"title":" Plan de área ","category":"PLANEACION","priority":"ALTA","due_date":"2026-11-30T00:00:00Z","assignee_ids":[%q,%q,%q]}`,
		doc1.ID, doc2.ID, doc1.ID,
	)))
	e.do(req, rec)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var tsk task.Task
	unmarshal(t, rec, &tsk)
	assert.Equal(t, "inst-1", tsk.InstitutionID)
	assert.Equal(t, "Plan de área", tsk.Title)
	assert.Equal(t, task.PriorityAlta, tsk.Priority)
	assert.Equal(t, "2026-11-30", tsk.DueDate.Time.Format("2006-01-02"))
	assert.Equal(t, coord.ID, tsk.CreatedByID)
	assert.Equal(t, ldr.ID, tsk.LeaderID.String)
	require.Len(t, tsk.Assignments, 2)
	for _, a := range tsk.Assignments {
		assert.Equal(t, task.StatusPending, a.Status)
		assert.Equal(t, tsk.ID, a.TaskID)
		require.NotNil(t, a.Assignee)
	}

	t.Run("assignees are notified", func(t *testing.T) {
		sent := e.mailSvc.Sent()
		require.Len(t, sent, 2)

		to := make([]string, 0, len(sent))
		for _, msg := range sent {
			assert.Equal(t, "Nueva tarea de gestión: Plan de área", msg.Subject)
			require.Len(t, msg.To, 1)
			to = append(to, msg.To[0].Address)
			assert.Contains(t, msg.TextContent, "Plan de área")
			assert.Contains(t, msg.TextContent, "2026-11-30")
		}
		assert.ElementsMatch(t, []string{doc1.Email, doc2.Email}, to)
	})

	t.Run("task without leadership", func(t *testing.T) {
		created := createTask(t, e, rector, "inst-1", "Circular", doc1)
		assert.False(t, created.LeaderID.Valid)
		assert.Equal(t, task.PriorityNormal, created.Priority)
	})
}

func Test_taskApi_detail(t *testing.T) {
	e := setup(t)

	coord := testutil.CreateUser(t, e.usrRepo, "Coordinador", "coord@test.co", []string{user.RoleCoordinador}, true)
	docente := testutil.CreateUser(t, e.usrRepo, "Docente", "docente@test.co", []string{user.RoleDocente}, true)
	tsk := createTask(t, e, coord, "inst-1", "Plan", docente)
	createTask(t, e, coord, "inst-2", "Otro plan", docente)
	coordToken := e.getToken(t, coord)

	t.Run("retrieve", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, tasksPath+"/"+tsk.ID, e.getToken(t, docente))
		e.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got task.Task
		unmarshal(t, rec, &got)
		assert.Equal(t, tsk.ID, got.ID)
		require.NotNil(t, got.CreatedBy)
		assert.Equal(t, coord.Summary(), *got.CreatedBy)
		require.Len(t, got.Assignments, 1)
		assert.Equal(t, docente.ID, got.Assignments[0].AssigneeID)
	})

	t.Run("list", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, tasksPath+"?institutionId=inst-1", coordToken)
		e.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var tasks []task.Task
		unmarshal(t, rec, &tasks)
		require.Len(t, tasks, 1)
		assert.Equal(t, tsk.ID, tasks[0].ID)
		assert.Len(t, tasks[0].Assignments, 1)
	})

	runHTTPTests(t, e, []httpTest{
		{
			name: "not found", path: tasksPath + "/lol", token: coordToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, kindErr{Error: "task not found", Kind: core.KindNotFound}),
		},
		{
			name: "delete: role required", method: http.MethodDelete, path: tasksPath + "/" + tsk.ID, token: e.getToken(t, docente),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "delete", method: http.MethodDelete, path: tasksPath + "/" + tsk.ID, token: coordToken,
			wantCode: http.StatusOK, wantData: marchallObj(t, SuccessResponse{Success: "Task deleted."}),
		},
		{
			name: "deleted tasks are not listed", path: tasksPath + "?institutionId=inst-1", token: coordToken,
			wantCode: http.StatusOK, wantData: marchallList(t),
		},
	})

	t.Run("deleted tasks leave my tasks", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, tasksPath+"/my-tasks", e.getToken(t, docente))
		e.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var asgs []task.Assignment
		unmarshal(t, rec, &asgs)
		require.Len(t, asgs, 1)
		assert.Equal(t, "Otro plan", asgs[0].Task.Title)
	})
}

func Test_taskApi_workflow(t *testing.T) {
	e := setup(t)

	coord := testutil.CreateUser(t, e.usrRepo, "Coordinador", "coord@test.co", []string{user.RoleCoordinador}, true)
	doc1 := testutil.CreateUser(t, e.usrRepo, "Docente Uno", "uno@test.co", []string{user.RoleDocente}, true)
	doc2 := testutil.CreateUser(t, e.usrRepo, "Docente Dos", "dos@test.co", []string{user.RoleDocente}, true)
	tsk := createTask(t, e, coord, "inst-1", "Plan de área", doc1, doc2)
	asg1, asg2 := assignmentOf(t, tsk, doc1), assignmentOf(t, tsk, doc2)

	coordToken := e.getToken(t, coord)
	doc1Token, doc2Token := e.getToken(t, doc1), e.getToken(t, doc2)
	evidence := &upload{name: "acta.pdf", contentType: "application/pdf", content: []byte("%PDF-1.4 acta")}

	runHTTPTests(t, e, []httpTest{
		{name: "my tasks", path: tasksPath + "/my-tasks/pending-count", token: doc1Token, wantCode: http.StatusOK, wantData: []byte(`{"count":1}`)},
		{
			name: "start: assignee only", method: http.MethodPost, path: assignmentPath(asg1.ID, "start"), token: doc2Token,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, kindErr{Error: "You are not assigned to this task", Kind: core.KindForbidden}),
		},
		{
			name: "start: not found", method: http.MethodPost, path: assignmentPath("lol", "start"), token: doc1Token,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, kindErr{Error: "assignment not found", Kind: core.KindNotFound}),
		},
		{
			name: "verify: not submitted", method: http.MethodPost, path: assignmentPath(asg1.ID, "verify"), token: coordToken,
			body: []byte(`{"status":"APPROVED"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, kindErr{Error: "Only submitted tasks can be verified", Kind: core.KindInvalidStateTransition}),
		},
	})

	t.Run("start", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, assignmentPath(asg1.ID, "start"), doc1Token)
		e.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got task.Assignment
		unmarshal(t, rec, &got)
		assert.Equal(t, task.StatusInProgress, got.Status)
		assert.True(t, got.StartedAt.Valid)
		assert.False(t, got.CompletedAt.Valid)
	})

	runHTTPTests(t, e, []httpTest{
		{
			name: "start: already started", method: http.MethodPost, path: assignmentPath(asg1.ID, "start"), token: doc1Token,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, kindErr{Error: "Only pending tasks can be started", Kind: core.KindInvalidStateTransition}),
		},
		{name: "in progress is still pending", path: tasksPath + "/my-tasks/pending-count", token: doc1Token, wantCode: http.StatusOK, wantData: []byte(`{"count":1}`)},
	})

	t.Run("submit: file type not allowed", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, assignmentPath(asg1.ID, "submit"), doc1Token,
			map[string][]string{"note": {"hecho"}}, &upload{name: "acta.txt", contentType: "text/plain", content: []byte("acta")})
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, kindErr{
				Error: `File type "text/plain" is not allowed. Allowed: PDF, images and Word`,
				Kind:  core.KindInvalidFile,
			}),
		}, e.do(req, rec))
		assert.Empty(t, e.store.Uploaded)
	})

	t.Run("submit with evidence", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, assignmentPath(asg1.ID, "submit"), doc1Token,
			map[string][]string{"note": {" Acta adjunta "}}, evidence)
		e.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got task.Assignment
		unmarshal(t, rec, &got)
		assert.Equal(t, task.StatusSubmitted, got.Status)
		assert.True(t, got.CompletedAt.Valid)
		assert.Equal(t, "Acta adjunta", got.ResponseNote.String)
		assert.Equal(t, "acta.pdf", got.EvidenceFileName.String)
		assert.EqualValues(t, len(evidence.content), got.EvidenceFileSize.Int64)
		assert.Equal(t, "application/pdf", got.EvidenceMimeType.String)

		path, ok := core.ObjectPathFromURL(got.EvidenceURL.String, core.DocumentsBucket)
		require.True(t, ok)
		pattern := fmt.Sprintf(`^institucion/inst-1/tareas/%s/%s/evidence_\d+\.pdf$`, regexp.QuoteMeta(tsk.ID), regexp.QuoteMeta(doc1.ID))
		assert.Regexp(t, regexp.MustCompile(pattern), path)
		assert.True(t, e.store.Has(path))

		snap, err := e.quotaSvc.Snapshot(context.Background(), "inst-1")
		require.NoError(t, err)
		assert.EqualValues(t, len(evidence.content), snap.Evidences.Used)
		assert.EqualValues(t, 0, snap.Documents.Used)
	})

	runHTTPTests(t, e, []httpTest{
		{
			name: "start: submitted", method: http.MethodPost, path: assignmentPath(asg1.ID, "start"), token: doc1Token,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, kindErr{Error: "Only pending tasks can be started", Kind: core.KindInvalidStateTransition}),
		},
		{
			name: "complete: already submitted", method: http.MethodPost, path: assignmentPath(asg1.ID, "complete"), token: doc1Token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, kindErr{Error: "This task cannot be completed in its current status", Kind: core.KindInvalidStateTransition}),
		},
		{
			name: "complete without evidence", method: http.MethodPost, path: assignmentPath(asg2.ID, "complete"), token: doc2Token,
			body: []byte(`{"note":"Listo"}`), wantCode: http.StatusOK,
		},
		{
			name: "evidence url: none", path: assignmentPath(asg2.ID, "evidence-url"), token: coordToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, kindErr{Error: "This assignment has no evidence file", Kind: core.KindNotFound}),
		},
		{name: "nothing pending", path: tasksPath + "/my-tasks/pending-count", token: doc1Token, wantCode: http.StatusOK, wantData: []byte(`{"count":0}`)},
	})

	t.Run("evidence url", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, assignmentPath(asg1.ID, "evidence-url"), coordToken)
		e.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var url document.DownloadURL
		unmarshal(t, rec, &url)
		assert.Contains(t, url.URL, "/storage/v1/object/sign/documentos/institucion/inst-1/tareas/"+tsk.ID+"/"+doc1.ID+"/")
		assert.Equal(t, 900, url.ExpiresIn)
	})

	t.Run("pending verifications", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, tasksPath+"/pending-verifications?institutionId=inst-1", coordToken)
		e.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var asgs []task.Assignment
		unmarshal(t, rec, &asgs)
		require.Len(t, asgs, 2)
		ids := []string{asgs[0].ID, asgs[1].ID}
		assert.ElementsMatch(t, []string{asg1.ID, asg2.ID}, ids)
		for _, a := range asgs {
			assert.Equal(t, task.StatusSubmitted, a.Status)
			require.NotNil(t, a.Task)
			assert.Equal(t, "Plan de área", a.Task.Title)
			require.NotNil(t, a.Assignee)
		}
	})

	sentBefore := len(e.mailSvc.Sent())

	runHTTPTests(t, e, []httpTest{
		{
			name: "verify: role required", method: http.MethodPost, path: assignmentPath(asg1.ID, "verify"), token: doc2Token,
			body: []byte(`{"status":"APPROVED"}`), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "verify: invalid status", method: http.MethodPost, path: assignmentPath(asg1.ID, "verify"), token: coordToken,
			body: []byte(`{"status":"SUBMITTED"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"status": "status must be one of APPROVED or REJECTED"}),
		},
	})

	t.Run("approve", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, assignmentPath(asg1.ID, "verify"), coordToken, []byte(`{"status":"APPROVED","note":"Muy bien"}`))
		e.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got task.Assignment
		unmarshal(t, rec, &got)
		assert.Equal(t, task.StatusApproved, got.Status)
		assert.Equal(t, coord.ID, got.VerifiedByID.String)
		assert.True(t, got.VerifiedAt.Valid)
		assert.Equal(t, "Muy bien", got.VerificationNote.String)
	})

	t.Run("reject then resubmit", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, assignmentPath(asg2.ID, "verify"), coordToken, []byte(`{"status":"REJECTED","note":"Falta el acta"}`))
		e.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		req, rec = newAuthRequest(http.MethodGet, tasksPath+"/my-tasks", doc2Token)
		e.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var mine []task.Assignment
		unmarshal(t, rec, &mine)
		require.Len(t, mine, 1)
		assert.Equal(t, task.StatusRejected, mine[0].Status)
		assert.Equal(t, "Falta el acta", mine[0].VerificationNote.String)

		req, rec = newAuthRequest(http.MethodGet, tasksPath+"/my-tasks/pending-count", doc2Token)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte(`{"count":1}`)}, e.do(req, rec))

		req, rec = newMultipartRequest(t, http.MethodPost, assignmentPath(asg2.ID, "submit"), doc2Token, nil, evidence)
		e.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got task.Assignment
		unmarshal(t, rec, &got)
		assert.Equal(t, task.StatusSubmitted, got.Status)
		assert.True(t, got.EvidenceURL.Valid)
	})

	t.Run("assignees are notified of verifications", func(t *testing.T) {
		sent := e.mailSvc.Sent()[sentBefore:]
		require.Len(t, sent, 2)

		assert.Equal(t, "Tarea revisada: Plan de área", sent[0].Subject)
		assert.Equal(t, doc1.Email, sent[0].To[0].Address)
		require.Len(t, sent[0].Cc, 1)
		assert.Equal(t, coord.Email, sent[0].Cc[0].Address)
		assert.Contains(t, sent[0].TextContent, string(task.StatusApproved))
		assert.Contains(t, sent[0].TextContent, "Muy bien")

		assert.Equal(t, doc2.Email, sent[1].To[0].Address)
		assert.Contains(t, sent[1].TextContent, string(task.StatusRejected))
	})

	runHTTPTests(t, e, []httpTest{
		{
			name: "approved is terminal", method: http.MethodPost, path: assignmentPath(asg1.ID, "verify"), token: coordToken,
			body: []byte(`{"status":"REJECTED"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, kindErr{Error: "Only submitted tasks can be verified", Kind: core.KindInvalidStateTransition}),
		},
		{
			name: "start: approved", method: http.MethodPost, path: assignmentPath(asg1.ID, "start"), token: doc1Token,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, kindErr{Error: "Only pending tasks can be started", Kind: core.KindInvalidStateTransition}),
		},
	})
}

func Test_taskApi_submit_quotaExceeded(t *testing.T) {
	e := setup(t)

	coord := testutil.CreateUser(t, e.usrRepo, "Coordinador", "coord@test.co", []string{user.RoleCoordinador}, true)
	docente := testutil.CreateUser(t, e.usrRepo, "Docente", "docente@test.co", []string{user.RoleDocente}, true)
	tsk := createTask(t, e, coord, "inst-1", "Plan", docente)
	asg := assignmentOf(t, tsk, docente)

	limit := int64(10)
	_, err := e.quotaSvc.SetLimits(context.Background(), "inst-1", quota.Limits{EvidencesLimit: &limit})
	require.NoError(t, err)

	req, rec := newMultipartRequest(t, http.MethodPost, assignmentPath(asg.ID, "submit"), e.getToken(t, docente),
		map[string][]string{"note": {"hecho"}},
		&upload{name: "acta.png", contentType: "image/png", content: []byte(strings.Repeat("x", 15))},
	)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusForbidden,
		wantData: marchallObj(t, kindErr{
			Error: "Storage limit exceeded: 0 B of 10 B used, the file needs 15 B",
			Kind:  core.KindQuotaExceeded,
		}),
	}, e.do(req, rec))
	assert.Empty(t, e.store.Uploaded)

	// the assignment was left untouched
	got, err := e.taskSvc.GetTask(context.Background(), tsk.ID)
	require.NoError(t, err)
	require.Len(t, got.Assignments, 1)
	assert.Equal(t, task.StatusPending, got.Assignments[0].Status)
}
