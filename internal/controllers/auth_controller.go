package controllers

import (
	"net/http"
	"time"

	"merchantcrm/internal/apperr"
	"merchantcrm/internal/auth"
	"merchantcrm/internal/metrics"
	"merchantcrm/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthController struct {
	Auth         *auth.Service
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
	CookieSecure bool
	SessionTTL   time.Duration
}

func (ac *AuthController) setSessionCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, token, int(ac.SessionTTL.Seconds()), "/", "", ac.CookieSecure, true)
}

func (ac *AuthController) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", ac.CookieSecure, true)
}

// respondLogin sets the cookie for a finished login, or hands back the
// challenge when a code is still needed.
func (ac *AuthController) respondLogin(c *gin.Context, res *auth.LoginResult) {
	if res.RequiresTwoFactor {
		ac.Metrics.Login(metrics.LoginChallenge)
		ok(c, http.StatusOK, gin.H{
			"requires_two_factor": true,
			"challenge_id":        res.ChallengeID,
			"reason":              res.Reason,
			"message":             "A verification code was sent to your email",
		})
		return
	}

	ac.Metrics.Login(metrics.LoginSuccess)
	ac.setSessionCookie(c, res.Token)
	ok(c, http.StatusOK, gin.H{"user": res.User, "expires_at": res.Session.ExpiresAt})
}

func (ac *AuthController) loginFailed(c *gin.Context, err error) {
	if apperr.KindOf(err) == apperr.Locked {
		ac.Metrics.Login(metrics.LoginLocked)
	} else {
		ac.Metrics.Login(metrics.LoginFailed)
	}
	fail(c, ac.Logger, err)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /api/auth/login
func (ac *AuthController) Login(c *gin.Context) {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, ac.Logger, err)
		return
	}

	res, err := ac.Auth.Login(c.Request.Context(), auth.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		ac.loginFailed(c, err)
		return
	}
	ac.respondLogin(c, res)
}

type verifyRequest struct {
	ChallengeID string `json:"challenge_id" binding:"required"`
	Code        string `json:"code" binding:"required"`
}

// VerifyTwoFactor handles POST /api/auth/verify-2fa
func (ac *AuthController) VerifyTwoFactor(c *gin.Context) {
	var req verifyRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, ac.Logger, err)
		return
	}

	res, err := ac.Auth.VerifyTwoFactor(c.Request.Context(), req.ChallengeID, req.Code, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		ac.loginFailed(c, err)
		return
	}
	ac.respondLogin(c, res)
}

type resendRequest struct {
	ChallengeID string `json:"challenge_id" binding:"required"`
}

func (ac *AuthController) ResendTwoFactor(c *gin.Context) {
	var req resendRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, ac.Logger, err)
		return
	}
	if err := ac.Auth.ResendTwoFactor(c.Request.Context(), req.ChallengeID); err != nil {
		fail(c, ac.Logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "A new verification code was sent"})
}

func (ac *AuthController) Logout(c *gin.Context) {
	if session := middleware.CurrentSession(c); session != nil {
		if err := ac.Auth.Logout(c.Request.Context(), session.ID); err != nil {
			fail(c, ac.Logger, err)
			return
		}
	}
	ac.clearSessionCookie(c)
	ok(c, http.StatusOK, gin.H{"message": "Signed out"})
}

type forgotRequest struct {
	Email string `json:"email" binding:"required,email"`
}

func (ac *AuthController) ForgotPassword(c *gin.Context) {
	var req forgotRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, ac.Logger, err)
		return
	}
	if err := ac.Auth.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		fail(c, ac.Logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "If the address belongs to an account, a reset link is on its way"})
}

type resetRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (ac *AuthController) ResetPassword(c *gin.Context) {
	var req resetRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, ac.Logger, err)
		return
	}
	if err := ac.Auth.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		fail(c, ac.Logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Password updated, please sign in"})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

func (ac *AuthController) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, ac.Logger, err)
		return
	}

	user := middleware.CurrentUser(c)
	session := middleware.CurrentSession(c)
	if err := ac.Auth.ChangePassword(c.Request.Context(), user, req.CurrentPassword, req.NewPassword, session.ID); err != nil {
		fail(c, ac.Logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Password changed"})
}

// Me handles GET /api/auth/me
func (ac *AuthController) Me(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"user": middleware.CurrentUser(c)})
}
