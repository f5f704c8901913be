package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/capdesk/capdesk/core/evaluation"
	"github.com/capdesk/capdesk/core/group"
	"github.com/capdesk/capdesk/core/user"
)

type evaluationApi struct {
	svc      evaluation.Service
	groupSvc group.Service
}

func registerEvaluationAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc evaluation.Service, groupSvc group.Service) {
	api := evaluationApi{svc: svc, groupSvc: groupSvc}

	eg := g.Group("/evaluations", jwt)
	eg.POST("/individual", api.submitIndividual, roleMiddleware(user.RolePanelist))
	eg.POST("/system", api.submitSystem, roleMiddleware(user.RolePanelist))

	gg := g.Group("/grades", jwt, roleMiddleware(user.RoleInstructor))
	gg.PUT("/:studentID/:stage", api.putGrade)
	gg.PUT("/groups/:id/:stage", api.putGroupGrades)
}

// The panelist identity always comes from the token, never the payload.
func (api *evaluationApi) submitIndividual(ctx echo.Context) error {
	var data evaluation.NewIndividualScore
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewIndividualScore")
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	data.Panelist = claims.Name

	sc, err := api.svc.SubmitIndividual(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "submitting individual score")
	}
	return ctx.JSON(http.StatusCreated, sc)
}

func (api *evaluationApi) submitSystem(ctx echo.Context) error {
	var data evaluation.NewSystemScore
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSystemScore")
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	data.Panelist = claims.Name

	sc, err := api.svc.SubmitSystem(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "submitting system score")
	}
	return ctx.JSON(http.StatusCreated, sc)
}

type PutGradeRequest struct {
	Grade *float64 `json:"grade"`
}

func (api *evaluationApi) putGrade(ctx echo.Context) error {
	stage, err := pathStage(ctx)
	if err != nil {
		return err
	}
	var data PutGradeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PutGradeRequest")
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	if err := api.svc.PutGrade(ctx.Request().Context(), claims.Name, ctx.Param("studentID"), stage, data.Grade); err != nil {
		return errors.Wrap(err, "recording grade")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type PutGroupGradesRequest struct {
	Grades map[string]*float64 `json:"grades"`
}

func (api *evaluationApi) putGroupGrades(ctx echo.Context) error {
	stage, err := pathStage(ctx)
	if err != nil {
		return err
	}
	var data PutGroupGradesRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PutGroupGradesRequest")
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	// restrict the batch to actual members of the group
	grp, err := api.groupSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == group.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "fetching group")
	}
	members := make(map[string]bool, len(grp.Members))
	for _, m := range grp.Members {
		members[m.StudentID] = true
	}
	for id := range data.Grades {
		if !members[id] {
			return echo.NewHTTPError(http.StatusBadRequest, "student "+id+" is not a member of this group")
		}
	}

	if err := api.svc.PutGroupGrades(ctx.Request().Context(), claims.Name, stage, data.Grades); err != nil {
		return errors.Wrap(err, "recording group grades")
	}
	return ctx.NoContent(http.StatusNoContent)
}
