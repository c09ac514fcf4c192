package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/awe-academy/core/fee"
	"github.com/trezcool/awe-academy/core/user"
)

type feeApi struct {
	svc fee.ServiceInterface
}

func registerFeeAPI(g *echo.Group, auth echo.MiddlewareFunc, svc fee.ServiceInterface) {
	api := feeApi{svc: svc}
	officers := roleMiddleware(user.RoleAdmin, user.RoleFinanceOfficer)

	fg := g.Group("/fees", auth)
	fg.GET("", api.query, officers)
	fg.POST("", api.create, officers)
	fg.GET("/:id", api.retrieve, officers)
	fg.PUT("/:id", api.update, officers)
	fg.DELETE("/:id", api.destroy, adminMiddleware())
	fg.POST("/:id/assign", api.assign, officers)
	fg.GET("/:id/student-fees", api.queryStudentFees, officers)

	sfg := g.Group("/student-fees", auth, officers)
	sfg.GET("", api.queryAllStudentFees)
	sfg.GET("/:id", api.retrieveStudentFee)
	sfg.GET("/:id/payments", api.paymentHistory)
	sfg.POST("/:id/payments", api.applyPayment)

	g.GET("/payments/:id/receipt", api.receipt, auth, officers)
	g.POST("/ledger/reconcile", api.reconcile, auth, adminMiddleware())
}

type (
	FeeCreatedResponse struct {
		fee.Fee
		Assigned int `json:"assigned"`
	}

	AssignFeeRequest struct {
		StudentID int `json:"student_id"`
	}

	ReconcileResponse struct {
		Fixed         bool              `json:"fixed"`
		Discrepancies []fee.Discrepancy `json:"discrepancies"`
	}
)

func (api *feeApi) create(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data fee.NewFee
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFee")
	}

	f, assigned, err := api.svc.CreateFee(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating fee")
	}
	return ctx.JSON(http.StatusCreated, FeeCreatedResponse{Fee: f, Assigned: assigned})
}

func (api *feeApi) query(ctx echo.Context) error {
	filter := new(fee.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []fee.FeeSummary{})
	}
	if err := bindQueryTime(ctx, "due_from", &filter.DueFrom); err != nil {
		return err
	}
	if err := bindQueryTime(ctx, "due_to", &filter.DueTo); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	fees, err := api.svc.QueryFees(ctx.Request().Context(), *filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying fees")
	}
	if fees == nil {
		fees = []fee.FeeSummary{}
	}
	return ctx.JSON(http.StatusOK, fees)
}

func (api *feeApi) retrieve(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	f, err := api.svc.GetFee(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding fee")
	}
	return ctx.JSON(http.StatusOK, f)
}

func (api *feeApi) update(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	var data fee.UpdateFee
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateFee")
	}

	f, err := api.svc.UpdateFee(ctx.Request().Context(), actor, id, data)
	if err != nil {
		return errors.Wrap(err, "updating fee")
	}
	return ctx.JSON(http.StatusOK, f)
}

func (api *feeApi) destroy(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	if err = api.svc.DeleteFee(ctx.Request().Context(), actor, id); err != nil {
		return errors.Wrap(err, "deleting fee")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *feeApi) assign(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	var data AssignFeeRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignFeeRequest")
	}

	sf, err := api.svc.AssignFee(ctx.Request().Context(), actor, id, data.StudentID)
	if err != nil {
		return errors.Wrap(err, "assigning fee")
	}
	return ctx.JSON(http.StatusCreated, sf)
}

func (api *feeApi) queryStudentFees(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	if _, err = api.svc.GetFee(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "finding fee")
	}
	return api.listStudentFees(ctx, fee.StudentFeeFilter{FeeID: id})
}

func (api *feeApi) queryAllStudentFees(ctx echo.Context) error {
	filter := new(fee.StudentFeeFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []fee.StudentFee{})
	}
	return api.listStudentFees(ctx, *filter)
}

func (api *feeApi) listStudentFees(ctx echo.Context, filter fee.StudentFeeFilter) error {
	sfs, err := api.svc.QueryStudentFees(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying student fees")
	}
	if sfs == nil {
		sfs = []fee.StudentFee{}
	}
	return ctx.JSON(http.StatusOK, sfs)
}

func (api *feeApi) retrieveStudentFee(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	sf, err := api.svc.GetStudentFee(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding student fee")
	}
	return ctx.JSON(http.StatusOK, sf)
}

func (api *feeApi) paymentHistory(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	payments, err := api.svc.PaymentHistory(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	if payments == nil {
		payments = []fee.Payment{}
	}
	return ctx.JSON(http.StatusOK, payments)
}

func (api *feeApi) applyPayment(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	var data fee.NewPayment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}
	data.StudentFeeID = id // the path wins over the body

	rp, err := api.svc.ApplyPayment(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "applying payment")
	}
	return ctx.JSON(http.StatusCreated, rp)
}

// receipt renders a payment receipt as JSON, or as plain text with `?format=text`.
func (api *feeApi) receipt(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	rct, err := api.svc.GetReceipt(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding receipt")
	}
	if ctx.QueryParam("format") == "text" {
		return ctx.String(http.StatusOK, rct.Text())
	}
	return ctx.JSON(http.StatusOK, rct)
}

func (api *feeApi) reconcile(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	fix := queryBool(ctx, "fix")

	found, err := api.svc.Reconcile(ctx.Request().Context(), actor, fix)
	if err != nil {
		return errors.Wrap(err, "reconciling ledger")
	}
	if found == nil {
		found = []fee.Discrepancy{}
	}
	return ctx.JSON(http.StatusOK, ReconcileResponse{Fixed: fix && len(found) > 0, Discrepancies: found})
}
