package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/awe-academy/core/fee"
	"github.com/trezcool/awe-academy/core/student"
	"github.com/trezcool/awe-academy/core/user"
)

type studentApi struct {
	svc    student.ServiceInterface
	feeSvc fee.ServiceInterface
}

func registerStudentAPI(g *echo.Group, auth echo.MiddlewareFunc, svc student.ServiceInterface, feeSvc fee.ServiceInterface) {
	api := studentApi{svc: svc, feeSvc: feeSvc}

	readers := roleMiddleware(user.RoleAdmin, user.RoleStudentOfficer, user.RoleFinanceOfficer, user.RoleSupplyOfficer)
	writers := roleMiddleware(user.RoleAdmin, user.RoleStudentOfficer)

	sg := g.Group("/students", auth)
	sg.GET("", api.query, readers)
	sg.POST("", api.create, writers)
	sg.GET("/:id", api.retrieve, readers)
	sg.PUT("/:id", api.update, writers)
	sg.DELETE("/:id", api.destroy, adminMiddleware())
	sg.GET("/:id/fees", api.queryFees,
		roleMiddleware(user.RoleAdmin, user.RoleFinanceOfficer, user.RoleStudentOfficer))
}

func (api *studentApi) create(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data student.NewStudent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}

	s, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *studentApi) query(ctx echo.Context) error {
	filter := new(student.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []student.Student{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	students, err := api.svc.Query(ctx.Request().Context(), *filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	s, err := api.svc.Get(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding student")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *studentApi) update(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	var data student.UpdateStudent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}

	s, err := api.svc.Update(ctx.Request().Context(), actor, id, data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *studentApi) destroy(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	if err = api.svc.Delete(ctx.Request().Context(), actor, id); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// queryFees lists the fee assessments of a student.
func (api *studentApi) queryFees(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	if _, err = api.svc.Get(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "finding student")
	}

	sfs, err := api.feeSvc.QueryStudentFees(ctx.Request().Context(), fee.StudentFeeFilter{StudentID: id})
	if err != nil {
		return errors.Wrap(err, "querying student fees")
	}
	if sfs == nil {
		sfs = []fee.StudentFee{}
	}
	return ctx.JSON(http.StatusOK, sfs)
}
