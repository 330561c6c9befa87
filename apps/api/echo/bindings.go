package echoapi

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-credits/core"
)

var (
	limitParam  = "limit"
	offsetParam = "offset"

	errInvalidPage = errors.New("invalid pagination")
)

// Pagination binds the `limit` & `offset` query params.
// missing params are left at zero: the service applies its defaults.
type Pagination struct {
	core.Page
}

func (p *Pagination) Bind(ctx echo.Context) error {
	var fldErrs []core.FieldError

	parse := func(param string, dst *int) {
		val := ctx.QueryParam(param)
		if val == "" {
			return
		}
		n, err := strconv.Atoi(val)
		if err != nil || n < 0 {
			fldErrs = append(fldErrs, core.FieldError{Field: param, Error: "must be a non-negative integer"})
			return
		}
		*dst = n
	}
	parse(limitParam, &p.Limit)
	parse(offsetParam, &p.Offset)

	if len(fldErrs) > 0 {
		return core.NewValidationError(errInvalidPage, fldErrs...)
	}
	return nil
}
