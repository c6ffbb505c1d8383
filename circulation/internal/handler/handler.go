package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"

	_ "github.com/odl-go/circulation-service/docs" // swagger docs
	"github.com/odl-go/circulation-service/pkg/auth"
	"github.com/odl-go/circulation-service/pkg/validate"

	"github.com/odl-go/circulation-service/circulation/internal/errs"
	"github.com/odl-go/circulation-service/circulation/internal/model"
)

type Handler struct {
	circulationSvc CirculationService
	log            *zap.Logger
}

func New(circulationSvc CirculationService, log *zap.Logger) *Handler {
	return &Handler{
		circulationSvc: circulationSvc,
		log:            log,
	}
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	}))

	base := e.Group("", newRateLimiterMW(baseRPS))
	base.GET("/manage/health", h.Health)
	base.GET("/swagger/*", echoSwagger.WrapHandler)

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(requestLoggerConfig(h.log)),
		middleware.RequestID(),
		newRateLimiterMW(apiRPS),
	)

	api.POST("/pools/:poolUid/checkout", h.Checkout, auth.MiddlewarePatron)
	api.POST("/pools/:poolUid/checkin", h.Checkin, auth.MiddlewarePatron)
	api.POST("/pools/:poolUid/holds", h.PlaceHold, auth.MiddlewarePatron)
	api.DELETE("/pools/:poolUid/holds", h.ReleaseHold, auth.MiddlewarePatron)
	api.GET("/pools/:poolUid/fulfill", h.Fulfill, auth.MiddlewarePatron)
	api.GET("/patron/activity", h.PatronActivity, auth.MiddlewarePatron)

	// The distributor pushes loan status changes here; no patron auth.
	api.POST("/notifications/:loanUid", h.Notification)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// Checkout godoc
//
//	@Summary	Borrow a title from a license pool
//	@Router		/api/v1/pools/{poolUid}/checkout [post]
func (h *Handler) Checkout(c echo.Context) error {
	patron, err := auth.GetPatron(c)
	if err != nil {
		return err
	}
	poolUID := c.Param("poolUid")
	if poolUID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "poolUid is empty")
	}

	var dm model.DeliveryMechanism
	if err := c.Bind(&dm); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(dm); err != nil {
		return err
	}

	loan, err := h.circulationSvc.Checkout(c.Request().Context(), patron, poolUID, dm)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, loan)
}

func (h *Handler) Checkin(c echo.Context) error {
	patron, err := auth.GetPatron(c)
	if err != nil {
		return err
	}
	poolUID := c.Param("poolUid")
	if poolUID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "poolUid is empty")
	}

	if err := h.circulationSvc.Checkin(c.Request().Context(), patron, poolUID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *Handler) PlaceHold(c echo.Context) error {
	patron, err := auth.GetPatron(c)
	if err != nil {
		return err
	}
	poolUID := c.Param("poolUid")
	if poolUID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "poolUid is empty")
	}

	hold, err := h.circulationSvc.PlaceHold(c.Request().Context(), patron, poolUID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, hold)
}

func (h *Handler) ReleaseHold(c echo.Context) error {
	patron, err := auth.GetPatron(c)
	if err != nil {
		return err
	}
	poolUID := c.Param("poolUid")
	if poolUID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "poolUid is empty")
	}

	if err := h.circulationSvc.ReleaseHold(c.Request().Context(), patron, poolUID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *Handler) Fulfill(c echo.Context) error {
	patron, err := auth.GetPatron(c)
	if err != nil {
		return err
	}
	poolUID := c.Param("poolUid")
	if poolUID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "poolUid is empty")
	}

	dm := model.DeliveryMechanism{
		ContentType: c.QueryParam("contentType"),
		DRMScheme:   c.QueryParam("drmScheme"),
	}
	if dm.ContentType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "contentType is required")
	}

	fulfillment, err := h.circulationSvc.Fulfill(c.Request().Context(), patron, poolUID, dm)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, fulfillment)
}

type activityResponse struct {
	Loans []model.Loan `json:"loans"`
	Holds []model.Hold `json:"holds"`
}

func (h *Handler) PatronActivity(c echo.Context) error {
	patron, err := auth.GetPatron(c)
	if err != nil {
		return err
	}
	loans, holds, err := h.circulationSvc.PatronActivity(c.Request().Context(), patron)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, activityResponse{Loans: loans, Holds: holds})
}

func (h *Handler) Notification(c echo.Context) error {
	loanUID := c.Param("loanUid")
	if loanUID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "loanUid is empty")
	}

	var doc model.StatusDocument
	if err := c.Bind(&doc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !model.KnownStatus(doc.Status) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown status value")
	}

	if err := h.circulationSvc.UpdateLoan(c.Request().Context(), loanUID, doc); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusOK)
}

// httpError maps circulation errors onto HTTP status codes. Business-rule
// violations keep their message; internals do not leak.
func httpError(err error) error {
	switch {
	case errors.Is(err, errs.ErrNotFound),
		errors.Is(err, errs.ErrNotCheckedOut),
		errors.Is(err, errs.ErrNotOnHold):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrAlreadyCheckedOut),
		errors.Is(err, errs.ErrAlreadyOnHold),
		errors.Is(err, errs.ErrCurrentlyAvailable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, errs.ErrNoAvailableCopies),
		errors.Is(err, errs.ErrNoLicenses),
		errors.Is(err, errs.ErrHoldsNotPermitted),
		errors.Is(err, errs.ErrHoldOnUnlimitedAccess),
		errors.Is(err, errs.ErrPatronLoanLimitReached),
		errors.Is(err, errs.ErrPatronHoldLimitReached):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, errs.ErrCannotFulfill),
		errors.Is(err, errs.ErrCannotReturn),
		errors.Is(err, errs.ErrCannotLoan):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errs.IsRemoteIntegration(err):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
