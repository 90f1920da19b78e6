package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/studentnotes/core"
)

var orderingParam = "ordering"

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

// bindPage reads the `page` & `size` query params. Invalid values fall back to the defaults.
func bindPage(ctx echo.Context) core.Paginate {
	var page core.Paginate
	if p, err := strconv.Atoi(ctx.QueryParam("page")); err == nil {
		page.Page = p
	}
	if s, err := strconv.Atoi(ctx.QueryParam("size")); err == nil {
		page.Size = s
	}
	page.Clean()
	return page
}

// ListResponse is returned by paged list endpoints.
type ListResponse struct {
	Data     interface{}   `json:"data"`
	PageInfo core.PageInfo `json:"page_info"`
}

type (
	SuccessResponse struct {
		Success string `json:"success"`
	}

	MessageResponse struct {
		Message string `json:"message"`
	}
)
