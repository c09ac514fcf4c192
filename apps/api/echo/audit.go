package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/awe-academy/core/audit"
)

type auditApi struct {
	svc audit.ServiceInterface
}

func registerAuditAPI(g *echo.Group, auth echo.MiddlewareFunc, svc audit.ServiceInterface) {
	api := auditApi{svc: svc}
	g.GET("/audit-logs", api.query, auth, adminMiddleware())
}

func (api *auditApi) query(ctx echo.Context) error {
	filter := new(audit.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []audit.Entry{})
	}
	if err := bindQueryTime(ctx, "from", &filter.From); err != nil {
		return err
	}
	if err := bindQueryTime(ctx, "to", &filter.To); err != nil {
		return err
	}

	entries, err := api.svc.Query(ctx.Request().Context(), *filter)
	if err != nil {
		return errors.Wrap(err, "querying audit log")
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}
