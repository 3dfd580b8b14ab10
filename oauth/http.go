package oauth

import (
	"net/url"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPController handles provider auth HTTP routes.
type HTTPController struct {
	bridge *Bridge
	config HTTPConfig
}

// HTTPConfig configures the HTTP controller.
type HTTPConfig struct {
	// RedirectURI is the callback URI registered with the providers.
	RedirectURI string

	// ErrorHandler handles errors (optional)
	ErrorHandler func(ctx router.Context, err error) error
}

// NewHTTPController creates a provider auth HTTP controller.
func NewHTTPController(bridge *Bridge, cfg HTTPConfig) *HTTPController {
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}

	return &HTTPController{
		bridge: bridge,
		config: cfg,
	}
}

// RegisterRoutes registers provider auth routes on a group, conventionally
// mounted at /auth/providers.
func (c *HTTPController) RegisterRoutes(group RouteRegistrar) {
	group.Get("/", c.ListProviders)
	group.Get("/:provider/callback", c.Callback)
	group.Get("/:provider", c.BeginAuth)
}

// ListProviders returns the configured providers.
func (c *HTTPController) ListProviders(ctx router.Context) error {
	return ctx.JSON(router.StatusOK, map[string]any{
		"providers": c.bridge.ListProviders(),
	})
}

// BeginAuth redirects the browser to the provider consent page.
func (c *HTTPController) BeginAuth(ctx router.Context) error {
	provider := ctx.Param("provider")

	extra := url.Values{}
	if state := ctx.Query("state", ""); state != "" {
		extra.Set("state", state)
	}

	uri, err := c.bridge.CreateAuthURI(provider, c.config.RedirectURI, extra)
	if err != nil {
		return c.config.ErrorHandler(ctx, err)
	}

	return ctx.Redirect(uri.URI, router.StatusTemporaryRedirect)
}

// Callback exchanges the provider authorization response for a session.
func (c *HTTPController) Callback(ctx router.Context) error {
	provider := ctx.Param("provider")

	response := url.Values{}
	if u, err := url.Parse(ctx.OriginalURL()); err == nil {
		response = u.Query()
	}
	if code := ctx.Query("code", ""); code != "" {
		response.Set("code", code)
	}

	session, err := c.bridge.SignWithProvider(ctx.Context(), provider, c.config.RedirectURI, response)
	if err != nil {
		return c.config.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, session)
}

func defaultErrorHandler(ctx router.Context, err error) error {
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.Code != 0 {
		return ctx.JSON(richErr.Code, map[string]string{
			"error": richErr.Message,
		})
	}
	return ctx.JSON(router.StatusInternalServerError, map[string]string{
		"error": err.Error(),
	})
}
