package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"

	"github.com/Astemirdum/club-lending/lending/internal/errs"
	"github.com/Astemirdum/club-lending/lending/internal/model"
	_ "github.com/Astemirdum/club-lending/lending/swagger"
	"github.com/Astemirdum/club-lending/pkg/auth"
	md "github.com/Astemirdum/club-lending/pkg/middleware"
	"github.com/Astemirdum/club-lending/pkg/validate"
)

type Handler struct {
	lendingSvc LendingService
	jwtSecret  []byte
	log        *zap.Logger
}

type Option func(*Handler)

// WithJWTSecret switches actor resolution from gateway headers to bearer tokens.
func WithJWTSecret(secret string) Option {
	return func(h *Handler) {
		if secret != "" {
			h.jwtSecret = []byte(secret)
		}
	}
}

func New(lendingSvc LendingService, log *zap.Logger, opts ...Option) *Handler {
	h := &Handler{
		lendingSvc: lendingSvc,
		log:        log.Named("handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.HideBanner = true
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPatch, http.MethodPost},
		AllowCredentials: true,
	}))

	base := e.Group("", md.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)
	base.GET("/swagger/*", echoSwagger.WrapHandler)

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(md.RequestLoggerConfig()),
		middleware.RequestID(),
		md.NewRateLimiter(apiRPS),
		h.actorMiddleware(),
	)

	api.POST("/transactions", h.SubmitRequest)
	api.GET("/transactions", h.ListRequests)
	api.GET("/transactions/:id", h.GetRequest)
	api.PATCH("/transactions/:id", h.Amend)
	api.POST("/transactions/:id/decision", h.Decide)
	api.POST("/transactions/:id/collect", h.MarkCollected)

	return e
}

func (h *Handler) actorMiddleware() echo.MiddlewareFunc {
	if h.jwtSecret != nil {
		return md.JwtAuthentication(h.jwtSecret)
	}
	return md.AuthContext
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (h *Handler) SubmitRequest(c echo.Context) error {
	var req model.SubmitRequest
	if err := c.Bind(&req); err != nil {
		return h.fail(errs.Validation("%s", bindMessage(err)))
	}
	if err := c.Validate(&req); err != nil {
		return h.fail(errs.Validation("%s", err.Error()))
	}
	t, err := h.lendingSvc.SubmitRequest(c.Request().Context(), actorFrom(c), req)
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) Decide(c echo.Context) error {
	var req model.DecisionRequest
	if err := c.Bind(&req); err != nil {
		return h.fail(errs.Validation("%s", bindMessage(err)))
	}
	if err := c.Validate(&req); err != nil {
		return h.fail(errs.Validation("%s", err.Error()))
	}
	actor, err := requireActor(c)
	if err != nil {
		return h.fail(err)
	}
	t, err := h.lendingSvc.Decide(c.Request().Context(), c.Param("id"), actor, req.Decision)
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) MarkCollected(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return h.fail(err)
	}
	t, err := h.lendingSvc.MarkCollected(c.Request().Context(), c.Param("id"), actor)
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) Amend(c echo.Context) error {
	var req model.Amendment
	if err := c.Bind(&req); err != nil {
		return h.fail(errs.Validation("%s", bindMessage(err)))
	}
	if err := c.Validate(&req); err != nil {
		return h.fail(errs.Validation("%s", err.Error()))
	}
	actor, err := requireActor(c)
	if err != nil {
		return h.fail(err)
	}
	t, err := h.lendingSvc.Amend(c.Request().Context(), c.Param("id"), actor, req)
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) GetRequest(c echo.Context) error {
	t, err := h.lendingSvc.GetRequest(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ListRequests(c echo.Context) error {
	f := model.Filter{
		ClubID:       c.QueryParam("clubId"),
		StudentID:    c.QueryParam("studentId"),
		InventoryID:  c.QueryParam("inventoryId"),
		OwnerClubID:  c.QueryParam("ownerClubId"),
		DepartmentID: c.QueryParam("departmentId"),
	}
	var err error
	if statusParam := c.QueryParam("status"); statusParam != "" {
		if f.Status, err = model.ParseStatus(statusParam); err != nil {
			return h.fail(err)
		}
	}
	if pageParam := c.QueryParam("page"); pageParam != "" {
		if f.Page, err = strconv.Atoi(pageParam); err != nil || f.Page < 0 {
			return h.fail(errs.Validation("page is invalid"))
		}
	}
	if sizeParam := c.QueryParam("size"); sizeParam != "" {
		if f.Size, err = strconv.Atoi(sizeParam); err != nil || f.Size < 0 {
			return h.fail(errs.Validation("size is invalid"))
		}
	}

	items, err := h.lendingSvc.ListRequests(c.Request().Context(), f)
	if err != nil {
		return h.fail(err)
	}
	if items == nil {
		items = []model.Transaction{}
	}
	return c.JSON(http.StatusOK, items)
}

func bindMessage(err error) string {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return fmt.Sprint(he.Message)
	}
	return err.Error()
}

func actorFrom(c echo.Context) model.Actor {
	id, ok := auth.FromContext(c.Request().Context())
	if !ok {
		return model.Actor{}
	}
	return model.Actor{
		Kind:         model.ParseActorKind(id.Kind),
		ID:           id.ID,
		DepartmentID: id.DepartmentID,
	}
}

func requireActor(c echo.Context) (model.Actor, error) {
	a := actorFrom(c)
	if a.Kind == model.ActorAnonymous || a.ID == "" {
		return model.Actor{}, errs.ErrUnauthorized
	}
	return a, nil
}

var statusByCode = map[string]int{
	errs.CodeValidation:        http.StatusBadRequest,
	errs.CodeCapacityExceeded:  http.StatusUnprocessableEntity,
	errs.CodeUnauthorized:      http.StatusUnauthorized,
	errs.CodeForbidden:         http.StatusForbidden,
	errs.CodeRoleNotPermitted:  http.StatusForbidden,
	errs.CodeNotYetEligible:    http.StatusLocked,
	errs.CodeInvalidTransition: http.StatusConflict,
	errs.CodeConflict:          http.StatusConflict,
	errs.CodeNotFound:          http.StatusNotFound,
	errs.CodeDepartmentUnknown: http.StatusUnprocessableEntity,
}

func (h *Handler) fail(err error) error {
	code := errs.Code(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
		h.log.Error("internal", zap.Error(err))
	}
	return echo.NewHTTPError(status, errs.ErrorResponse{Message: err.Error(), Code: code})
}
