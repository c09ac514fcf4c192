package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/awe-academy/core/supply"
	"github.com/trezcool/awe-academy/core/user"
)

type supplyApi struct {
	svc supply.ServiceInterface
}

func registerSupplyAPI(g *echo.Group, auth echo.MiddlewareFunc, svc supply.ServiceInterface) {
	api := supplyApi{svc: svc}
	officers := roleMiddleware(user.RoleAdmin, user.RoleSupplyOfficer)

	sg := g.Group("/supplies", auth)
	sg.GET("", api.query, officers)
	sg.POST("", api.create, officers)
	sg.GET("/low-stock", api.lowStock, officers)
	sg.GET("/:id", api.retrieve, officers)
	sg.PUT("/:id", api.update, officers)
	sg.DELETE("/:id", api.destroy, adminMiddleware())
	sg.GET("/:id/distributions", api.distributions, officers)
	sg.POST("/:id/distributions", api.distribute, officers)
}

type (
	SupplyResponse struct {
		supply.Supply
		StockStatus string `json:"stock_status"`
	}

	DistributedResponse struct {
		Distribution supply.Distribution `json:"distribution"`
		Supply       SupplyResponse      `json:"supply"`
	}
)

func (api *supplyApi) response(s supply.Supply) SupplyResponse {
	return SupplyResponse{Supply: s, StockStatus: s.StockStatus(api.svc.LowStockThreshold())}
}

func (api *supplyApi) responses(supplies []supply.Supply) []SupplyResponse {
	res := make([]SupplyResponse, 0, len(supplies))
	for _, s := range supplies {
		res = append(res, api.response(s))
	}
	return res
}

func (api *supplyApi) create(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data supply.NewSupply
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSupply")
	}

	s, err := api.svc.CreateSupply(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating supply")
	}
	return ctx.JSON(http.StatusCreated, api.response(s))
}

func (api *supplyApi) query(ctx echo.Context) error {
	filter := new(supply.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []SupplyResponse{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	supplies, err := api.svc.QuerySupplies(ctx.Request().Context(), *filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying supplies")
	}
	return ctx.JSON(http.StatusOK, api.responses(supplies))
}

func (api *supplyApi) lowStock(ctx echo.Context) error {
	supplies, err := api.svc.LowStock(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying low stock supplies")
	}
	return ctx.JSON(http.StatusOK, api.responses(supplies))
}

func (api *supplyApi) retrieve(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	s, err := api.svc.GetSupply(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding supply")
	}
	return ctx.JSON(http.StatusOK, api.response(s))
}

func (api *supplyApi) update(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	var data supply.UpdateSupply
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSupply")
	}

	s, err := api.svc.UpdateSupply(ctx.Request().Context(), actor, id, data)
	if err != nil {
		return errors.Wrap(err, "updating supply")
	}
	return ctx.JSON(http.StatusOK, api.response(s))
}

func (api *supplyApi) destroy(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	if err = api.svc.DeleteSupply(ctx.Request().Context(), actor, id); err != nil {
		return errors.Wrap(err, "deleting supply")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *supplyApi) distributions(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	ds, err := api.svc.Distributions(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "querying distributions")
	}
	if ds == nil {
		ds = []supply.Distribution{}
	}
	return ctx.JSON(http.StatusOK, ds)
}

func (api *supplyApi) distribute(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	var data supply.NewDistribution
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDistribution")
	}
	data.SupplyID = id // the path wins over the body

	res, err := api.svc.Distribute(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "distributing supply")
	}
	return ctx.JSON(http.StatusCreated, DistributedResponse{
		Distribution: res.Distribution,
		Supply:       api.response(res.Supply),
	})
}
