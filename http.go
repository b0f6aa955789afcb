package access

import (
	"context"
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteGuard wires the access gate into go-router handlers. Each guarded
// request waits for any in-flight resolution, evaluates the requirement,
// and either parks the session in locals or issues the redirect the gate
// decided on.
type RouteGuard struct {
	resolver     *SessionResolver
	gate         *AccessGate
	cfg          Config
	Logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

func NewRouteGuard(resolver *SessionResolver, cfg Config) (*RouteGuard, error) {
	if resolver == nil {
		return nil, errors.New("route guard requires a session resolver", errors.CategoryValidation)
	}

	g := &RouteGuard{
		resolver: resolver,
		gate:     NewAccessGate(),
		cfg:      cfg,
		Logger:   defLogger{},
	}

	g.ErrorHandler = g.defaultErrHandler

	return g, nil
}

// Protected returns a middleware enforcing the given requirement.
func (g *RouteGuard) Protected(req Requirement) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			ctx := c.Context()
			session, decision := g.awaitSettled(ctx, req, c.OriginalURL())

			switch decision.Kind {
			case DecisionAllow:
				c.Locals(SessionLocalsKey, session)
				c.SetContext(WithContext(ctx, session))
				return hf(c)
			case DecisionRedirectDenied:
				g.Logger.Info("Access denied, redirecting: reason=%s path=%s", decision.Reason, c.OriginalURL())
				return c.Redirect(g.cfg.GetDeniedRoute(), g.redirectStatus(c))
			default:
				// redirect-login, or the request context expired while the
				// session was still resolving; fail closed to sign-in
				g.SetRedirect(c)
				return c.Redirect(g.cfg.GetLoginRoute(), g.redirectStatus(c))
			}
		}
	}
}

// awaitSettled blocks until the gate reaches a non-wait verdict. A
// resolution can start in the window after Await returns; a wait verdict
// never turns into a redirect, the guard re-awaits until the session
// settles or the request context expires.
func (g *RouteGuard) awaitSettled(ctx context.Context, req Requirement, path string) (*ResolvedSession, Decision) {
	session := g.resolver.Await(ctx)
	decision := g.gate.Evaluate(session, req, path)

	for decision.Kind == DecisionWait && ctx.Err() == nil {
		session = g.resolver.Await(ctx)
		decision = g.gate.Evaluate(session, req, path)
	}

	return session, decision
}

// RequireRole is shorthand for a guard with a minimum role.
func (g *RouteGuard) RequireRole(min Role) router.MiddlewareFunc {
	return g.Protected(Requirement{RequireAuth: true, MinRole: min})
}

// RequireAuth guards a route that needs any authorized session.
func (g *RouteGuard) RequireAuth() router.MiddlewareFunc {
	return g.Protected(Requirement{RequireAuth: true})
}

func (g *RouteGuard) GetRedirect(ctx router.Context, def ...string) string {
	rejectedRoute := g.cfg.GetRejectedRouteKey()
	r := ctx.Cookies(rejectedRoute)
	if r == "" {
		return def[0]
	}
	g.cookieDel(ctx, rejectedRoute)
	return r
}

func (g *RouteGuard) GetRedirectOrDefault(ctx router.Context) string {
	rejectedRoute := g.cfg.GetRejectedRouteKey()
	refererHeader := string(ctx.Referer())

	r := ctx.Cookies(rejectedRoute, refererHeader)
	if r == "" {
		r = g.cfg.GetRejectedRouteDefault()
	}
	g.cookieDel(ctx, rejectedRoute)
	return r
}

func (g *RouteGuard) SetRedirect(ctx router.Context) {
	rejectedRoute := g.cfg.GetRejectedRouteKey()

	g.Logger.Info("Setting redirect cookie %s to %s", rejectedRoute, ctx.OriginalURL())

	ctx.Cookie(&router.Cookie{
		Name:     rejectedRoute,
		Value:    ctx.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (g *RouteGuard) redirectStatus(c router.Context) int {
	if c.Method() == string(router.GET) {
		return http.StatusFound
	}
	return http.StatusSeeOther
}

func (g *RouteGuard) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (g *RouteGuard) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	g.Logger.Info(
		"Guard error handler: %s category=%s details=%s",
		richErr.Message,
		richErr.Category,
		print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		g.SetRedirect(c)
		return c.Redirect(g.cfg.GetLoginRoute(), g.redirectStatus(c))
	default:
		return c.Status(richErr.Code).Render("errors/500", router.ViewContext{
			"error": richErr,
		})
	}
}
