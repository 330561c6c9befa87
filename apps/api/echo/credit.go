package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-credits/core/credit"
)

type creditAPI struct {
	svc      credit.Service
	validate *validator.Validate
}

func registerCreditAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc credit.Service, validate *validator.Validate) {
	api := &creditAPI{svc: svc, validate: validate}

	cg := g.Group("/credits", jwt)
	cg.GET("/balance", api.balance)
	cg.GET("/packages", api.packages)
	cg.GET("/costs", api.costs)
	cg.GET("/costs/:type", api.cost)
	cg.POST("/purchases", api.purchase)
	cg.POST("/consumptions", api.consume)
	cg.GET("/transactions", api.transactions)
	cg.GET("/usage", api.usage)
}

func (api *creditAPI) balance(ctx echo.Context) error {
	owner, err := getContextOwner(ctx)
	if err != nil {
		return err
	}
	bal, err := api.svc.GetBalance(ctx.Request().Context(), owner)
	if err != nil {
		return errors.Wrap(err, "getting balance")
	}
	return ctx.JSON(http.StatusOK, bal)
}

func (api *creditAPI) packages(ctx echo.Context) error {
	pkgs, err := api.svc.ListActivePackages(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing packages")
	}
	return ctx.JSON(http.StatusOK, pkgs)
}

func (api *creditAPI) costs(ctx echo.Context) error {
	costs, err := api.svc.ListCosts(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing costs")
	}
	return ctx.JSON(http.StatusOK, costs)
}

func (api *creditAPI) cost(ctx echo.Context) error {
	cost, err := api.svc.GetCost(ctx.Request().Context(), ctx.Param("type"))
	if err != nil {
		return errors.Wrap(err, "getting cost")
	}
	return ctx.JSON(http.StatusOK, cost)
}

func (api *creditAPI) purchase(ctx echo.Context) error {
	owner, err := getContextOwner(ctx)
	if err != nil {
		return err
	}

	var data credit.NewPurchase
	if err = ctx.Bind(&data); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	rcpt, err := api.svc.Purchase(ctx.Request().Context(), owner, data)
	if err != nil {
		return errors.Wrap(err, "purchasing package")
	}
	return ctx.JSON(http.StatusCreated, rcpt)
}

func (api *creditAPI) consume(ctx echo.Context) error {
	owner, err := getContextOwner(ctx)
	if err != nil {
		return err
	}

	var data credit.NewConsumption
	if err = ctx.Bind(&data); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	cons, err := api.svc.Consume(ctx.Request().Context(), owner, data)
	if err != nil {
		return errors.Wrap(err, "consuming credits")
	}
	return ctx.JSON(http.StatusCreated, cons)
}

func (api *creditAPI) transactions(ctx echo.Context) error {
	owner, err := getContextOwner(ctx)
	if err != nil {
		return err
	}

	var page Pagination
	if err = page.Bind(ctx); err != nil {
		return err
	}

	trxs, err := api.svc.ListTransactions(ctx.Request().Context(), owner, page.Page)
	if err != nil {
		return errors.Wrap(err, "listing transactions")
	}
	return ctx.JSON(http.StatusOK, trxs)
}

func (api *creditAPI) usage(ctx echo.Context) error {
	owner, err := getContextOwner(ctx)
	if err != nil {
		return err
	}

	var page Pagination
	if err = page.Bind(ctx); err != nil {
		return err
	}

	entries, err := api.svc.ListUsage(ctx.Request().Context(), owner, page.Page)
	if err != nil {
		return errors.Wrap(err, "listing usage")
	}
	return ctx.JSON(http.StatusOK, entries)
}
