package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/mahalle/mahalle-api/internal/account"
	"github.com/mahalle/mahalle-api/internal/apperr"
	"github.com/mahalle/mahalle-api/internal/middleware"
)

var errMalformedBody = apperr.Invalid("malformed request body")

// Handler exposes the sign-in endpoints.
type Handler struct {
	svc *Service
}

// NewHandler constructs an auth HTTP handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type requestOTPRequest struct {
	Phone string `json:"phone"`
}

type requestOTPResponse struct {
	Message    string `json:"message"`
	ExpiresIn  int64  `json:"expires_in"`
	RetryAfter int64  `json:"retry_after"`
}

// RequestOTP sends a one-time code to the phone in the body.
func (h *Handler) RequestOTP(c *fiber.Ctx) error {
	var req requestOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return errMalformedBody
	}
	ch, err := h.svc.RequestCode(c.UserContext(), req.Phone)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(requestOTPResponse{
		Message:    "verification code sent",
		ExpiresIn:  int64(ch.TTL.Seconds()),
		RetryAfter: int64(ch.RetryAfter.Seconds()),
	})
}

type verifyOTPRequest struct {
	Phone string `json:"phone"`
	OTP   string `json:"otp"`
}

type newUserResponse struct {
	IsNewUser bool   `json:"is_new_user"`
	TempToken string `json:"temp_token"`
}

type sessionResponse struct {
	IsNewUser    *bool        `json:"is_new_user,omitempty"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
	User         account.View `json:"user"`
}

// VerifyOTP checks a code and returns either a registration token or a session.
func (h *Handler) VerifyOTP(c *fiber.Ctx) error {
	var req verifyOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return errMalformedBody
	}
	out, err := h.svc.VerifyCode(c.UserContext(), req.Phone, req.OTP)
	if err != nil {
		return err
	}
	if out.NewIdentity {
		return c.Status(http.StatusOK).JSON(newUserResponse{IsNewUser: true, TempToken: out.RegistrationToken})
	}
	known := false
	return c.Status(http.StatusOK).JSON(sessionResponse{
		IsNewUser:    &known,
		AccessToken:  out.Session.AccessToken,
		RefreshToken: out.Session.RefreshToken,
		ExpiresIn:    out.Session.ExpiresIn,
		User:         out.Account,
	})
}

type registerRequest struct {
	Username       string `json:"username"`
	FullName       string `json:"full_name"`
	NeighborhoodID string `json:"neighborhood_id"`
	FCMToken       string `json:"fcm_token"`
}

// Register creates the account for the phone named by the bearer registration token.
func (h *Handler) Register(c *fiber.Ctx) error {
	tok, err := middleware.BearerToken(c)
	if err != nil {
		return err
	}
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return errMalformedBody
	}
	reg, err := h.svc.CompleteRegistration(c.UserContext(), tok, Profile{
		Username:       req.Username,
		FullName:       req.FullName,
		NeighborhoodID: req.NeighborhoodID,
		FCMToken:       req.FCMToken,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(sessionResponse{
		AccessToken:  reg.Session.AccessToken,
		RefreshToken: reg.Session.RefreshToken,
		ExpiresIn:    reg.Session.ExpiresIn,
		User:         reg.Account,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh issues a new access token using a valid refresh token.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return errMalformedBody
	}
	grant, err := h.svc.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"access_token": grant.AccessToken, "expires_in": grant.ExpiresIn})
}

type logoutRequest struct {
	FCMToken string `json:"fcm_token"`
}

// Logout drops the caller's device push token. Issued tokens are not revoked.
func (h *Handler) Logout(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return middleware.ErrMissingBearer
	}
	var req logoutRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return errMalformedBody
		}
	}
	if err := h.svc.Logout(c.UserContext(), p.Account.ID, req.FCMToken); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": "logged out"})
}

// Me returns the authenticated account.
func (h *Handler) Me(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return middleware.ErrMissingBearer
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"user": p.Account.View()})
}
