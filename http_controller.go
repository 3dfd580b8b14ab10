package identity

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RegisterAuthRoutes mounts the JSON identity endpoints on the given router.
// The API key and user administration endpoints carry no guard of their own,
// mount the router group behind authware.AuthorizeAdmin.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...ControllerOption) {

	controller := NewController(opts...)

	app.Post(controller.Routes.Signup, controller.Signup).
		SetName("auth-signup.post")

	app.Post(controller.Routes.Signin, controller.Signin).
		SetName("auth-signin.post")

	app.Post(controller.Routes.Refresh, controller.Refresh).
		SetName("auth-refresh.post")

	app.Post(controller.Routes.ChangePassword, controller.ChangePassword).
		SetName("auth-change-password.post")

	app.Get(fmt.Sprintf("%s/:token", controller.Routes.ConfirmEmail), controller.ConfirmEmail).
		SetName("auth-confirm-email.get")

	app.Post(controller.Routes.ForgotPassword, controller.ForgotPasswordRequest).
		SetName("auth-pwd-reset.post")

	app.Post(fmt.Sprintf("%s/:token", controller.Routes.ForgotPassword), controller.ForgotPasswordConfirm).
		SetName("auth-pwd-reset-do.post")

	app.Post(controller.Routes.APIKeys, controller.CreateAPIKey).
		SetName("auth-api-keys.post")

	app.Get(controller.Routes.APIKeys, controller.ListAPIKeys).
		SetName("auth-api-keys.get")

	app.Get(controller.Routes.Users, controller.ListUsers).
		SetName("auth-users.get")

	app.Post(controller.Routes.Users, controller.UpsertUser).
		SetName("auth-users.post")

	app.Get(fmt.Sprintf("%s/:id", controller.Routes.Users), controller.GetUser).
		SetName("auth-users-id.get")

	app.Delete(fmt.Sprintf("%s/:id", controller.Routes.Users), controller.RemoveUser).
		SetName("auth-users-id.delete")
}

type ControllerRoutes struct {
	Signup         string
	Signin         string
	Refresh        string
	ChangePassword string
	ConfirmEmail   string
	ForgotPassword string
	APIKeys        string
	Users          string
}

type Controller struct {
	Debug        bool
	Logger       Logger
	Service      *Service
	Routes       *ControllerRoutes
	ErrorHandler router.ErrorHandler
}

type ControllerOption func(*Controller) *Controller

func WithControllerService(svc *Service) ControllerOption {
	return func(c *Controller) *Controller {
		c.Service = svc
		return c
	}
}

func WithControllerLogger(logger Logger) ControllerOption {
	return func(c *Controller) *Controller {
		c.Logger = logger
		return c
	}
}

func WithControllerDebug(debug bool) ControllerOption {
	return func(c *Controller) *Controller {
		c.Debug = debug
		return c
	}
}

func NewController(opts ...ControllerOption) *Controller {
	c := &Controller{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &ControllerRoutes{
			Signup:         "/auth/signup",
			Signin:         "/auth/signin",
			Refresh:        "/auth/refresh",
			ChangePassword: "/auth/password",
			ConfirmEmail:   "/auth/confirm-email",
			ForgotPassword: "/auth/password-reset",
			APIKeys:        "/auth/api-keys",
			Users:          "/auth/users",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Service == nil {
		panic("Missing Service in auth controller...")
	}

	return c
}

func (a *Controller) Signup(ctx router.Context) error {
	payload := SignupPayload{}
	if err := ctx.Bind(&payload); err != nil {
		return a.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryBadInput, "failed to parse body").WithCode(errors.CodeBadRequest))
	}

	if a.Debug {
		fmt.Println("======= AUTH SIGNUP ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("==========================")
	}

	resp, err := a.Service.Signup(ctx.Context(), payload)
	if err != nil {
		a.Logger.Error("signup error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, resp)
}

func (a *Controller) Signin(ctx router.Context) error {
	payload := SigninPayload{}
	if err := ctx.Bind(&payload); err != nil {
		return a.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryBadInput, "failed to parse body").WithCode(errors.CodeBadRequest))
	}

	resp, err := a.Service.Signin(ctx.Context(), payload, false)
	if err != nil {
		a.Logger.Error("signin error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, resp)
}

func (a *Controller) Refresh(ctx router.Context) error {
	payload := RefreshPayload{}
	if err := ctx.Bind(&payload); err != nil {
		return a.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryBadInput, "failed to parse body").WithCode(errors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryValidation, "invalid refresh payload").WithCode(errors.CodeBadRequest))
	}

	resp, err := a.Service.Refresh(ctx.Context(), payload.RefreshToken)
	if err != nil {
		a.Logger.Error("refresh error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, resp)
}

func (a *Controller) ChangePassword(ctx router.Context) error {
	payload := ChangePasswordPayload{}
	if err := ctx.Bind(&payload); err != nil {
		return a.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryBadInput, "failed to parse body").WithCode(errors.CodeBadRequest))
	}

	resp, err := a.Service.ChangePassword(ctx.Context(), payload)
	if err != nil {
		a.Logger.Error("change password error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, resp)
}

func (a *Controller) ConfirmEmail(ctx router.Context) error {
	token := ctx.Param("token", "")

	user, err := a.Service.ConfirmEmail(ctx.Context(), token)
	if err != nil {
		a.Logger.Error("confirm email error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, user)
}

// ForgotPasswordRequestPayload holds values for password reset
type ForgotPasswordRequestPayload struct {
	Email string `form:"email" json:"email"`
}

func (a *Controller) ForgotPasswordRequest(ctx router.Context) error {
	payload := ForgotPasswordRequestPayload{}
	if err := ctx.Bind(&payload); err != nil {
		return a.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryBadInput, "failed to parse body").WithCode(errors.CodeBadRequest))
	}

	if _, err := a.Service.ForgotPasswordRequest(ctx.Context(), payload.Email); err != nil {
		a.Logger.Error("password reset request error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	// the token only travels through the notifier, never the response
	return ctx.JSON(router.StatusAccepted, map[string]any{
		"success": true,
	})
}

func (a *Controller) ForgotPasswordConfirm(ctx router.Context) error {
	token := ctx.Param("token", "")

	result, err := a.Service.ForgotPasswordConfirm(ctx.Context(), token)
	if err != nil {
		a.Logger.Error("password reset error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

func (a *Controller) CreateAPIKey(ctx router.Context) error {
	apikey, err := a.Service.CreateAPIKey(ctx.Context())
	if err != nil {
		a.Logger.Error("create api key error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, map[string]any{
		"api_key": apikey,
	})
}

func (a *Controller) ListAPIKeys(ctx router.Context) error {
	keys, err := a.Service.ListAPIKeys(ctx.Context())
	if err != nil {
		a.Logger.Error("list api keys error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, keys)
}

func (a *Controller) ListUsers(ctx router.Context) error {
	query := ListQuery{
		Email:  ctx.Query("email", ""),
		Limit:  queryInt(ctx, "limit"),
		Offset: queryInt(ctx, "offset"),
	}

	if tags := ctx.Query("tags", ""); tags != "" {
		query.Tags = strings.Split(tags, ",")
	}

	users, err := a.Service.ListUsers(ctx.Context(), query)
	if err != nil {
		a.Logger.Error("list users error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, users)
}

func (a *Controller) GetUser(ctx router.Context) error {
	user, err := a.Service.GetUser(ctx.Context(), ctx.Param("id", ""))
	if err != nil {
		a.Logger.Error("get user error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, user)
}

func (a *Controller) UpsertUser(ctx router.Context) error {
	user := &AuthUser{}
	if err := ctx.Bind(user); err != nil {
		return a.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryBadInput, "failed to parse body").WithCode(errors.CodeBadRequest))
	}

	saved, err := a.Service.UpsertUser(ctx.Context(), user)
	if err != nil {
		a.Logger.Error("upsert user error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, saved)
}

func (a *Controller) RemoveUser(ctx router.Context) error {
	removed, err := a.Service.RemoveUser(ctx.Context(), ctx.Param("id", ""))
	if err != nil {
		a.Logger.Error("remove user error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"removed": removed,
	})
}

func queryInt(ctx router.Context, name string) int {
	raw := ctx.Query(name, "")
	if raw == "" {
		return 0
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}

	return val
}

func defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		status := richErr.Code
		if status == 0 {
			status = router.StatusInternalServerError
		}
		return c.JSON(status, map[string]any{
			"error":     richErr.Message,
			"text_code": richErr.TextCode,
		})
	}

	return c.JSON(router.StatusInternalServerError, map[string]any{
		"error": err.Error(),
	})
}
