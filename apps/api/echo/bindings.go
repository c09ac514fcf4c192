package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/awe-academy/core"
)

var (
	orderingParam = "ordering"

	// accepted query time layouts
	timeLayouts = []string{time.RFC3339, "2006-01-02"}
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// pathID parses the integer path param `name`. A malformed ID cannot match any record.
func pathID(ctx echo.Context, name string) (int, error) {
	id, err := strconv.Atoi(ctx.Param(name))
	if err != nil || id <= 0 {
		return 0, errHttpNotFound
	}
	return id, nil
}

// bindQueryTime parses the query param `name` into dst, when it is set.
func bindQueryTime(ctx echo.Context, name string, dst *time.Time) error {
	val := strings.TrimSpace(ctx.QueryParam(name))
	if val == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, val); err == nil {
			*dst = t
			return nil
		}
	}
	msg := "invalid date, expected YYYY-MM-DD or RFC 3339"
	return core.NewValidationError(errors.New(msg), core.FieldError{Field: name, Error: msg})
}

func queryBool(ctx echo.Context, name string) bool {
	b, _ := strconv.ParseBool(ctx.QueryParam(name))
	return b
}
