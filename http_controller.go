package auth

import (
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/google/uuid"
)

// RegisterAuthRoutes mounts the auth endpoints on router, usually an
// "/api" group.
func RegisterAuthRoutes(router fiber.Router, opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)
	protected := controller.Service.HTTP.ProtectedRoute()

	router.Post(controller.Routes.Login, controller.LoginPost).Name("login.post")
	router.Post(controller.Routes.Register, controller.RegistrationCreate).Name("register.post")
	router.Post(controller.Routes.Logout, protected, controller.LogOut).Name("logout.post")
	router.Post(controller.Routes.Refresh, protected, controller.RefreshPost).Name("refresh.post")
	router.Post(controller.Routes.Profile, protected, controller.ProfileUpdate).Name("user-profile.post")
	router.Post(controller.Routes.Invite, protected, controller.InviteCreate).Name("invite.post")
	router.Get(controller.Routes.Signup+"/:code", controller.SignupShow).Name("signup.get")
	router.Post(controller.Routes.Signup+"/:code", controller.SignupCreate).Name("signup.post")
	router.Get(controller.Routes.ConfirmPin+"/:pin", controller.ConfirmPinGet).Name("confirm-pin.get")

	return controller
}

type AuthControllerRoutes struct {
	Login      string
	Logout     string
	Register   string
	Refresh    string
	Profile    string
	Invite     string
	Signup     string
	ConfirmPin string
}

type AuthController struct {
	Debug   bool
	Logger  Logger
	Service *Service
	Routes  *AuthControllerRoutes
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerService(s *Service) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Service = s
		if s != nil && s.Logger != nil {
			c.Logger = s.Logger
		}
		return c
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defaultLogger(),
		Routes: &AuthControllerRoutes{
			Login:      "/login",
			Logout:     "/logout",
			Register:   "/register",
			Refresh:    "/refresh",
			Profile:    "/user-profile",
			Invite:     "/invite",
			Signup:     "/signup",
			ConfirmPin: "/confirm-pin",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Service == nil {
		panic("Missing Service in auth controller...")
	}

	c.Service.HTTP.Debug = c.Debug

	return c
}

type LoginPayload struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

func (a *AuthController) LoginPost(ctx *fiber.Ctx) error {
	payload := new(LoginPayload)
	if err := ctx.BodyParser(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return a.renderError(ctx, FieldError("form", "Failed to parse body"))
	}

	token, err := a.Service.Auther.Login(ctx.UserContext(), payload.Email, payload.Password)
	if err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"success": true,
		"token":   token.Value,
	})
}

type RegistrationCreatePayload struct {
	Name                 string `form:"name" json:"name"`
	Email                string `form:"email" json:"email"`
	Password             string `form:"password" json:"password"`
	PasswordConfirmation string `form:"password_confirmation" json:"password_confirmation"`
}

func (a *AuthController) RegistrationCreate(ctx *fiber.Ctx) error {
	payload := new(RegistrationCreatePayload)
	if err := ctx.BodyParser(payload); err != nil {
		a.Logger.Error("register user parse payload", "error", err)
		return a.renderError(ctx, FieldError("form", "Failed to parse body"))
	}

	var user *User
	req := RegisterUserMessage{
		Name:                 payload.Name,
		Email:                payload.Email,
		Password:             payload.Password,
		PasswordConfirmation: payload.PasswordConfirmation,
		OnResponse:           func(u *User) { user = u },
	}

	if err := a.Service.Register.Execute(ctx.UserContext(), req); err != nil {
		a.Logger.Info("register user failed", "error", err)
		return a.renderError(ctx, err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User successfully registered",
		"user":    user,
	})
}

func (a *AuthController) LogOut(ctx *fiber.Ctx) error {
	raw, ok := a.Service.HTTP.RawToken(ctx)
	if !ok {
		return a.renderError(ctx, ErrTokenMalformed)
	}

	if err := a.Service.Auther.Logout(ctx.UserContext(), raw); err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"message": "User successfully signed out",
	})
}

func (a *AuthController) RefreshPost(ctx *fiber.Ctx) error {
	raw, ok := a.Service.HTTP.RawToken(ctx)
	if !ok {
		return a.renderError(ctx, ErrTokenMalformed)
	}

	res, err := a.Service.Auther.Refresh(ctx.UserContext(), raw)
	if err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"access_token": res.Token.Value,
		"token_type":   "bearer",
		"expires_in":   res.Token.ExpiresIn(),
		"user":         res.User,
	})
}

func (a *AuthController) ProfileUpdate(ctx *fiber.Ctx) error {
	actor, ok := ActorID(ctx, a.Service.HTTP.contextKey)
	if !ok {
		return a.renderError(ctx, ErrTokenInvalid)
	}

	userID := actor
	if raw := strings.TrimSpace(ctx.FormValue("user_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return a.renderError(ctx, FieldError("user_id", "the user id is invalid"))
		}
		userID = id
	}

	avatar, err := readAvatar(ctx)
	if err != nil {
		return a.renderError(ctx, err)
	}

	var user *User
	msg := UpdateProfileMessage{
		ActorID:     actor,
		UserID:      userID,
		DisplayName: ctx.FormValue("user_name"),
		Avatar:      avatar,
		OnResponse:  func(u *User) { user = u },
	}

	if err := a.Service.Profile.Execute(ctx.UserContext(), msg); err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"message": "Information updated successfully",
		"user":    user,
	})
}

func readAvatar(ctx *fiber.Ctx) (*UploadedFile, error) {
	header, err := ctx.FormFile("avatar")
	if err != nil || header == nil {
		return nil, nil
	}

	if header.Size > AvatarMaxSize {
		return nil, FieldError("avatar", "the avatar may not be greater than 2048 kilobytes")
	}

	file, err := header.Open()
	if err != nil {
		return nil, FieldError("avatar", "the avatar failed to upload")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, AvatarMaxSize+1))
	if err != nil {
		return nil, FieldError("avatar", "the avatar failed to upload")
	}

	return &UploadedFile{
		Name:     header.Filename,
		MimeType: header.Header.Get(fiber.HeaderContentType),
		Data:     data,
	}, nil
}

type InvitePayload struct {
	Email string `form:"email" json:"email"`
}

func (a *AuthController) InviteCreate(ctx *fiber.Ctx) error {
	issuer, ok := ActorID(ctx, a.Service.HTTP.contextKey)
	if !ok {
		return a.renderError(ctx, ErrTokenInvalid)
	}

	payload := new(InvitePayload)
	if err := ctx.BodyParser(payload); err != nil {
		return a.renderError(ctx, FieldError("form", "Failed to parse body"))
	}

	var result *InviteResult
	msg := CreateInviteMessage{
		IssuerID:   issuer,
		Email:      payload.Email,
		OnResponse: func(r *InviteResult) { result = r },
	}

	if err := a.Service.Invite.Execute(ctx.UserContext(), msg); err != nil {
		return a.renderError(ctx, err)
	}

	body := fiber.Map{
		"success":    true,
		"message":    "Email sent Successfully",
		"code":       result.Invitation.Code,
		"expires_at": result.Invitation.ExpiresAt,
		"sent":       result.Sent(),
	}
	if !result.Sent() {
		body["message"] = "Invitation created, but the email could not be sent"
	}

	if a.Debug {
		a.Logger.Debug("invite response", "body", print.MaybePrettyJSON(body))
	}

	return ctx.JSON(body)
}

func (a *AuthController) SignupShow(ctx *fiber.Ctx) error {
	inv, err := a.Service.Repo.Invitations().GetByCode(ctx.UserContext(), ctx.Params("code"))
	if err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"email":      inv.Email,
		"state":      inv.State(),
		"expires_at": inv.ExpiresAt,
	})
}

type SignupPayload struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

func (a *AuthController) SignupCreate(ctx *fiber.Ctx) error {
	payload := new(SignupPayload)
	if err := ctx.BodyParser(payload); err != nil {
		return a.renderError(ctx, FieldError("form", "Failed to parse body"))
	}

	var result *SignupResult
	msg := InvitedSignupMessage{
		Code:       ctx.Params("code"),
		Email:      payload.Email,
		Password:   payload.Password,
		OnResponse: func(r *SignupResult) { result = r },
	}

	if err := a.Service.Signup.Execute(ctx.UserContext(), msg); err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.SendString(result.ConfirmLink)
}

func (a *AuthController) ConfirmPinGet(ctx *fiber.Ctx) error {
	var user *User
	msg := ConfirmPinMessage{
		Pin:        ctx.Params("pin"),
		OnResponse: func(u *User) { user = u },
	}

	if err := a.Service.ConfirmPin.Execute(ctx.UserContext(), msg); err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.SendString("Email Confirmed Successfully. ID: " + user.ID.String())
}

func (a *AuthController) renderError(ctx *fiber.Ctx, err error) error {
	if StatusFor(err) >= fiber.StatusInternalServerError {
		a.Logger.Error("auth request failed", "path", ctx.Path(), "error", err)
	}
	return RenderError(ctx, err, a.Debug)
}
