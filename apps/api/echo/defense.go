package echoapi

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/capdesk/capdesk/core/defense"
	"github.com/capdesk/capdesk/core/group"
	"github.com/capdesk/capdesk/core/user"
)

type defenseApi struct {
	svc      defense.Service
	groupSvc group.Service
	validate *validator.Validate
}

func registerDefenseAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc defense.Service,
	groupSvc group.Service,
	validate *validator.Validate,
) {
	api := defenseApi{svc: svc, groupSvc: groupSvc, validate: validate}

	dg := g.Group("/groups/:id", jwt)
	dg.GET("/verdicts", api.verdicts)
	dg.GET("/gate-status", api.gateStatus, roleMiddleware(user.RolePanelist))

	sg := dg.Group("/defenses/:stage")
	sg.GET("/feedback", api.feedbackView)
	sg.PUT("/feedback", api.putFeedback, roleMiddleware(user.RolePanelist))
	sg.PUT("/submissions", api.putSubmission, roleMiddleware(user.RoleStudent, user.RoleAdviser, user.RoleInstructor))
	sg.POST("/schedule", api.createSchedule, roleMiddleware(user.RoleInstructor))

	g.GET("/dashboard", api.dashboard, jwt, roleMiddleware(user.RoleInstructor, user.RoleAdviser, user.RolePanelist))
}

func pathStage(ctx echo.Context) (defense.Stage, error) {
	stage, err := defense.ParseStage(ctx.Param("stage"))
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return stage, nil
}

// FileSlotView is a reconciled slot plus its derived flags.
type FileSlotView struct {
	FileSlot string `json:"file_slot"`
	*defense.FileView
	Verdict   defense.Verdict `json:"verdict"`
	CanRevise bool            `json:"can_revise"`
}

func (api *defenseApi) feedbackView(ctx echo.Context) error {
	stage, err := pathStage(ctx)
	if err != nil {
		return err
	}

	view, err := api.svc.BuildFeedbackView(ctx.Request().Context(), ctx.Param("id"), stage)
	if err != nil {
		return errors.Wrap(err, "building feedback view")
	}

	slots := make([]string, 0, len(view))
	for slot := range view {
		slots = append(slots, slot)
	}
	sort.Strings(slots)

	out := make([]FileSlotView, 0, len(slots))
	for _, slot := range slots {
		out = append(out, FileSlotView{
			FileSlot:  slot,
			FileView:  view[slot],
			Verdict:   defense.FileVerdict(view[slot]),
			CanRevise: defense.CanRevise(view, slot),
		})
	}
	return ctx.JSON(http.StatusOK, out)
}

type PutFeedbackRequest struct {
	FileSlot     string  `json:"file_slot" validate:"required"`
	Status       *string `json:"status"`
	Remarks      *string `json:"remarks"`
	AnnotatedURL *string `json:"annotated_url"`
}

func (api *defenseApi) putFeedback(ctx echo.Context) error {
	stage, err := pathStage(ctx)
	if err != nil {
		return err
	}
	var data PutFeedbackRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PutFeedbackRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	entry, err := api.svc.PutFeedback(ctx.Request().Context(), defense.PutFeedback{
		GroupID:      ctx.Param("id"),
		Stage:        stage,
		FileSlot:     data.FileSlot,
		Panelist:     claims.Name,
		Status:       data.Status,
		Remarks:      data.Remarks,
		AnnotatedURL: data.AnnotatedURL,
	})
	if err != nil {
		return errors.Wrap(err, "recording feedback")
	}
	return ctx.JSON(http.StatusOK, entry)
}

type PutSubmissionRequest struct {
	FileSlot string `json:"file_slot" validate:"required"`
	URL      string `json:"url" validate:"required,url"`
	Revised  bool   `json:"revised"`
}

func (api *defenseApi) putSubmission(ctx echo.Context) error {
	stage, err := pathStage(ctx)
	if err != nil {
		return err
	}
	var data PutSubmissionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PutSubmissionRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	sub, err := api.svc.PutSubmission(ctx.Request().Context(), defense.PutSubmission{
		GroupID:  ctx.Param("id"),
		Stage:    stage,
		FileSlot: data.FileSlot,
		URL:      data.URL,
		Revised:  data.Revised,
	})
	if err != nil {
		return errors.Wrap(err, "recording submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *defenseApi) gateStatus(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	gs, err := api.svc.GateStatus(ctx.Request().Context(), claims.Name, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deriving gate status")
	}
	return ctx.JSON(http.StatusOK, gs)
}

type CreateScheduleRequest struct {
	StartsAt  time.Time `json:"starts_at" validate:"required"`
	Venue     string    `json:"venue" validate:"required"`
	Panelists []string  `json:"panelists"`
}

func (api *defenseApi) createSchedule(ctx echo.Context) error {
	stage, err := pathStage(ctx)
	if err != nil {
		return err
	}
	var data CreateScheduleRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CreateScheduleRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	sched, err := api.svc.CreateSchedule(ctx.Request().Context(), ctx.Param("id"), stage, defense.NewSchedule{
		StartsAt:  data.StartsAt,
		Venue:     data.Venue,
		Panelists: data.Panelists,
	})
	if err != nil {
		return errors.Wrap(err, "creating schedule")
	}
	return ctx.JSON(http.StatusCreated, sched)
}

func (api *defenseApi) verdicts(ctx echo.Context) error {
	gv, err := api.svc.GroupVerdicts(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "aggregating verdicts")
	}
	return ctx.JSON(http.StatusOK, gv)
}

func (api *defenseApi) dashboard(ctx echo.Context) error {
	groups, err := api.groupSvc.Filter(ctx.Request().Context(), group.QueryFilter{})
	if err != nil {
		return errors.Wrap(err, "querying groups")
	}
	counts, err := api.svc.Dashboard(ctx.Request().Context(), groups)
	if err != nil {
		return errors.Wrap(err, "rolling up dashboard")
	}
	return ctx.JSON(http.StatusOK, counts)
}
