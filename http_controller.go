package access

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

func RegisterAccessRoutes[T any](app router.Router[T], opts ...AccessControllerOption) {

	controller := NewAccessController(opts...)

	app.
		Get(controller.Routes.Login,
			controller.LoginShow,
		).
		SetName("sign-in.get")

	app.
		Post(
			controller.Routes.Login,
			controller.LoginPost,
		).
		SetName("sign-in.post")

	app.Get(controller.Routes.Logout, controller.LogOut).SetName("sign-out.get")

	app.Get(controller.Routes.Denied, controller.DeniedShow).SetName("denied.get")
}

type AccessControllerRoutes struct {
	Login  string
	Logout string
	Denied string
}

type AccessControllerViews struct {
	Login  string
	Denied string
}

type AccessController struct {
	Debug        bool
	Logger       Logger
	Lifecycle    *SessionLifecycle
	Guard        *RouteGuard
	Routes       *AccessControllerRoutes
	Views        *AccessControllerViews
	ErrorHandler router.ErrorHandler
}

type AccessControllerOption func(*AccessController) *AccessController

func NewAccessController(opts ...AccessControllerOption) *AccessController {
	c := &AccessController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &AccessControllerRoutes{
			Login:  "/login",
			Logout: "/logout",
			Denied: "/denied",
		},
		Views: &AccessControllerViews{
			Login:  "login",
			Denied: "denied",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Lifecycle == nil {
		panic("Missing SessionLifecycle in access controller...")
	}

	if c.Guard == nil {
		panic("Missing RouteGuard in access controller...")
	}

	return c
}

func WithControllerLifecycle(lifecycle *SessionLifecycle) AccessControllerOption {
	return func(c *AccessController) *AccessController {
		c.Lifecycle = lifecycle
		return c
	}
}

func WithControllerGuard(guard *RouteGuard) AccessControllerOption {
	return func(c *AccessController) *AccessController {
		c.Guard = guard
		return c
	}
}

func WithControllerLogger(logger Logger) AccessControllerOption {
	return func(c *AccessController) *AccessController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func (a *AccessController) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AccessController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)
	errs := map[string]string{}

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Login, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		errs := FormatValidationErrorToMap(err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": errs,
		})
	}

	if a.Debug {
		fmt.Println("======= ACCESS LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("===========================")
	}

	if _, err := a.Lifecycle.SignIn(ctx.Context(), payload.Email, payload.Password); err != nil {
		errs["authentication"] = loginErrorMessage(err)
		return ctx.Status(loginErrorStatus(err)).Render(a.Views.Login, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	redirect := a.Guard.GetRedirect(ctx, "/")

	return ctx.Redirect(redirect, router.StatusSeeOther)
}

func (a *AccessController) LogOut(ctx router.Context) error {
	if err := a.Lifecycle.SignOut(ctx.Context()); err != nil {
		a.Logger.Warn("sign out: %v", err)
	}
	return ctx.Redirect("/", router.StatusTemporaryRedirect)
}

func (a *AccessController) DeniedShow(ctx router.Context) error {
	session := a.Lifecycle.Current()
	reason := ReasonLoginRequired
	if session != nil {
		switch session.State {
		case StateInactive:
			reason = ReasonAccountDeactivated
		case StateUnauthorized:
			reason = ReasonNotProvisioned
		case StateError:
			reason = ReasonCheckFailed
		case StateActive:
			reason = ReasonInsufficientRole
		}
	}

	return ctx.Status(fiber.StatusForbidden).Render(a.Views.Denied, router.ViewContext{
		"reason": reason,
	})
}

func loginErrorMessage(err error) string {
	switch {
	case IsInvalidCredentials(err):
		return "Invalid email or password"
	case IsEmailUnconfirmed(err):
		return "Please confirm your email before signing in"
	case IsRateLimited(err):
		return "Too many attempts, try again later"
	default:
		return "Authentication Error"
	}
}

func loginErrorStatus(err error) int {
	switch {
	case IsInvalidCredentials(err), IsEmailUnconfirmed(err):
		return fiber.StatusUnauthorized
	case IsRateLimited(err):
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors for templates.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["validation"] = err.Error()
	return out
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}
