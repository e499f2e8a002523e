package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/colegio/core/quota"
	"github.com/trezcool/colegio/core/task"
	"github.com/trezcool/colegio/core/user"
)

var (
	leaderViewers = []string{user.RoleSuperAdmin, user.RoleAdminInstitutional, user.RoleRector, user.RoleCoordinador}
	taskManagers  = leaderViewers
)

type (
	taskApi struct {
		svc     *task.Service
		metrics *metrics
	}

	noteRequest struct {
		Note string `json:"note" form:"note"`
	}

	leaderCheckResponse struct {
		IsLeader bool `json:"is_leader"`
	}
)

func registerTaskAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *task.Service, m *metrics) {
	api := taskApi{svc: svc, metrics: m}

	tg := g.Group("/management-tasks", jwt)

	// leaders
	tg.POST("/leaders", api.createLeader, rolesMiddleware(documentManagers...))
	tg.GET("/leaders", api.queryLeaders, rolesMiddleware(leaderViewers...))
	tg.GET("/leaders/check", api.checkLeader)
	tg.DELETE("/leaders/:id", api.destroyLeader, rolesMiddleware(documentManagers...))

	// tasks
	tg.POST("", api.create, rolesMiddleware(taskManagers...))
	tg.GET("", api.query, rolesMiddleware(taskManagers...))
	tg.GET("/my-tasks", api.myTasks)
	tg.GET("/my-tasks/pending-count", api.myPendingCount)
	tg.GET("/pending-verifications", api.pendingVerifications, rolesMiddleware(taskManagers...))
	tg.GET("/:id", api.retrieve)
	tg.DELETE("/:id", api.destroy, rolesMiddleware(taskManagers...))

	// assignments
	ag := tg.Group("/assignments/:id")
	ag.POST("/start", api.start)
	ag.POST("/submit", api.submit)
	ag.POST("/complete", api.complete)
	ag.POST("/verify", api.verify, rolesMiddleware(taskManagers...))
	ag.GET("/evidence-url", api.evidenceURL)
}

// Leaders

func (api *taskApi) createLeader(ctx echo.Context) error {
	c, err := getCaller(ctx)
	if err != nil {
		return errors.Wrap(err, "getting caller")
	}
	var data task.NewLeader
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLeader")
	}
	if data.InstitutionID == "" {
		data.InstitutionID = ctx.QueryParam(institutionParam)
	}

	ldr, err := api.svc.CreateLeader(ctx.Request().Context(), data, c.ID)
	if err != nil {
		return errors.Wrap(err, "creating leader")
	}
	return ctx.JSON(http.StatusCreated, ldr)
}

func (api *taskApi) queryLeaders(ctx echo.Context) error {
	institutionID, err := requireInstitution(ctx)
	if err != nil {
		return err
	}
	leaders, err := api.svc.ListLeaders(ctx.Request().Context(), institutionID)
	if err != nil {
		return errors.Wrap(err, "listing leaders")
	}
	return ctx.JSON(http.StatusOK, leaders)
}

func (api *taskApi) checkLeader(ctx echo.Context) error {
	c, err := getCaller(ctx)
	if err != nil {
		return errors.Wrap(err, "getting caller")
	}
	institutionID, err := requireInstitution(ctx)
	if err != nil {
		return err
	}
	isLeader, err := api.svc.IsUserLeader(ctx.Request().Context(), c.ID, institutionID)
	if err != nil {
		return errors.Wrap(err, "checking leadership")
	}
	return ctx.JSON(http.StatusOK, leaderCheckResponse{IsLeader: isLeader})
}

func (api *taskApi) destroyLeader(ctx echo.Context) error {
	if err := api.svc.RemoveLeader(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "removing leader")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Leader removed."})
}

// Tasks

func (api *taskApi) create(ctx echo.Context) error {
	c, err := getCaller(ctx)
	if err != nil {
		return errors.Wrap(err, "getting caller")
	}
	var data task.NewTask
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTask")
	}
	if data.InstitutionID == "" {
		data.InstitutionID = ctx.QueryParam(institutionParam)
	}

	tsk, err := api.svc.CreateTask(ctx.Request().Context(), data, c.ID)
	if err != nil {
		return errors.Wrap(err, "creating task")
	}
	return ctx.JSON(http.StatusCreated, tsk)
}

func (api *taskApi) query(ctx echo.Context) error {
	institutionID, err := requireInstitution(ctx)
	if err != nil {
		return err
	}
	tasks, err := api.svc.ListTasks(ctx.Request().Context(), institutionID)
	if err != nil {
		return errors.Wrap(err, "listing tasks")
	}
	return ctx.JSON(http.StatusOK, tasks)
}

func (api *taskApi) myTasks(ctx echo.Context) error {
	c, err := getCaller(ctx)
	if err != nil {
		return errors.Wrap(err, "getting caller")
	}
	asgs, err := api.svc.GetMyTasks(ctx.Request().Context(), c.ID)
	if err != nil {
		return errors.Wrap(err, "getting my tasks")
	}
	return ctx.JSON(http.StatusOK, asgs)
}

func (api *taskApi) myPendingCount(ctx echo.Context) error {
	c, err := getCaller(ctx)
	if err != nil {
		return errors.Wrap(err, "getting caller")
	}
	count, err := api.svc.GetMyPendingCount(ctx.Request().Context(), c.ID)
	if err != nil {
		return errors.Wrap(err, "counting my pending tasks")
	}
	return ctx.JSON(http.StatusOK, count)
}

func (api *taskApi) pendingVerifications(ctx echo.Context) error {
	c, err := getCaller(ctx)
	if err != nil {
		return errors.Wrap(err, "getting caller")
	}
	institutionID, err := requireInstitution(ctx)
	if err != nil {
		return err
	}
	asgs, err := api.svc.GetPendingVerifications(ctx.Request().Context(), institutionID, c.ID)
	if err != nil {
		return errors.Wrap(err, "getting pending verifications")
	}
	return ctx.JSON(http.StatusOK, asgs)
}

func (api *taskApi) retrieve(ctx echo.Context) error {
	tsk, err := api.svc.GetTask(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting task")
	}
	return ctx.JSON(http.StatusOK, tsk)
}

func (api *taskApi) destroy(ctx echo.Context) error {
	if err := api.svc.DeleteTask(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting task")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Task deleted."})
}

// Assignments

func (api *taskApi) start(ctx echo.Context) error {
	c, err := getCaller(ctx)
	if err != nil {
		return errors.Wrap(err, "getting caller")
	}
	asg, err := api.svc.StartTask(ctx.Request().Context(), ctx.Param("id"), c.ID)
	if err != nil {
		return errors.Wrap(err, "starting task")
	}
	return ctx.JSON(http.StatusOK, asg)
}

func (api *taskApi) submit(ctx echo.Context) error {
	c, err := getCaller(ctx)
	if err != nil {
		return errors.Wrap(err, "getting caller")
	}
	var data noteRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to noteRequest")
	}

	file, closeFile, err := formFile(ctx, "file")
	if err != nil {
		return err
	}
	defer closeFile()

	asg, err := api.svc.SubmitEvidence(ctx.Request().Context(), ctx.Param("id"), c.ID, data.Note, file)
	if err != nil {
		return errors.Wrap(err, "submitting evidence")
	}
	if file != nil {
		api.metrics.uploaded(quota.CategoryEvidences, file.Size)
	}
	return ctx.JSON(http.StatusOK, asg)
}

func (api *taskApi) complete(ctx echo.Context) error {
	c, err := getCaller(ctx)
	if err != nil {
		return errors.Wrap(err, "getting caller")
	}
	var data noteRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to noteRequest")
	}
	asg, err := api.svc.MarkAsCompleted(ctx.Request().Context(), ctx.Param("id"), c.ID, data.Note)
	if err != nil {
		return errors.Wrap(err, "completing task")
	}
	return ctx.JSON(http.StatusOK, asg)
}

func (api *taskApi) verify(ctx echo.Context) error {
	c, err := getCaller(ctx)
	if err != nil {
		return errors.Wrap(err, "getting caller")
	}
	var data task.Verification
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Verification")
	}
	asg, err := api.svc.VerifyTask(ctx.Request().Context(), ctx.Param("id"), c.ID, data)
	if err != nil {
		return errors.Wrap(err, "verifying task")
	}
	return ctx.JSON(http.StatusOK, asg)
}

func (api *taskApi) evidenceURL(ctx echo.Context) error {
	url, err := api.svc.GetEvidenceURL(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting evidence url")
	}
	return ctx.JSON(http.StatusOK, url)
}
