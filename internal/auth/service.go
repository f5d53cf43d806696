package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"merchantcrm/internal/apperr"
	"merchantcrm/internal/config"
	"merchantcrm/internal/mailer"
	"merchantcrm/internal/models"
	"merchantcrm/internal/tasks"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxCodeAttempts = 5

// Reasons a login needs a second factor.
const (
	ReasonTwoFactorEnabled = "two_factor_enabled"
	ReasonNewIP            = "new_ip"
)

var (
	errInvalidCredentials = apperr.Unauthorizedf("Invalid email or password")
	errInvalidCode        = apperr.Unauthorizedf("Invalid or expired code")
	errUnauthenticated    = apperr.Unauthorizedf("Authentication required")
	errLocked             = apperr.New(apperr.Locked, "Account is temporarily locked after too many failed sign-in attempts. Try again later.")
)

type Options struct {
	MaxAttempts   int
	LockoutWindow time.Duration
	TwoFactorTTL  time.Duration
	ResetTTL      time.Duration
	BcryptCost    int
	AppBaseURL    string
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxAttempts:   cfg.LoginMaxAttempts,
		LockoutWindow: cfg.LoginLockoutWindow,
		TwoFactorTTL:  cfg.TwoFactorTTL,
		ResetTTL:      cfg.PasswordResetTTL,
		BcryptCost:    cfg.BcryptCost,
		AppBaseURL:    cfg.AppBaseURL,
	}
}

// Service implements sign-in, second factor, sessions and password recovery.
type Service struct {
	DB       *gorm.DB
	Sessions *SessionManager
	Queue    tasks.Enqueuer
	Logger   *zap.Logger
	opts     Options
	now      func() time.Time
}

func NewService(db *gorm.DB, sessions *SessionManager, queue tasks.Enqueuer, logger *zap.Logger, opts Options) *Service {
	return &Service{
		DB:       db,
		Sessions: sessions,
		Queue:    queue,
		Logger:   logger,
		opts:     opts,
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Options() Options {
	return s.opts
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

type LoginInput struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

// LoginResult either carries a new session or a pending two-factor challenge.
type LoginResult struct {
	User              *models.User
	Session           *models.Session
	Token             string
	RequiresTwoFactor bool
	ChallengeID       string
	Reason            string
}

// Login checks the lockout window, then the password, then decides whether a
// second factor is needed (2FA enabled, or the IP differs from the last login).
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := models.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, apperr.Invalidf("Email and password are required")
	}

	user, err := gorm.G[models.User](s.DB).Where("email = ?", email).First(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.recordAttempt(ctx, nil, email, in.IP, false)
			return nil, errInvalidCredentials
		}
		return nil, apperr.Wrap(err, "load user")
	}

	locked, err := s.Locked(ctx, &user)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, errLocked
	}

	if !CheckPassword(user.PasswordHash, in.Password) {
		s.recordAttempt(ctx, &user.ID, email, in.IP, false)
		return nil, errInvalidCredentials
	}

	if !user.Active() {
		return nil, apperr.Forbiddenf("Account is disabled")
	}

	reason := ""
	switch {
	case user.TwoFactorEnabled:
		reason = ReasonTwoFactorEnabled
	case user.LastLoginIP != "" && user.LastLoginIP != in.IP:
		reason = ReasonNewIP
	}

	if reason != "" {
		challenge, err := s.startChallenge(ctx, &user, in.IP, in.UserAgent)
		if err != nil {
			return nil, err
		}
		return &LoginResult{User: &user, RequiresTwoFactor: true, ChallengeID: challenge.ID, Reason: reason}, nil
	}

	return s.completeLogin(ctx, &user, in.IP, in.UserAgent)
}

// Locked reports whether the user has reached the failure limit inside the
// lockout window. Failures before the last success or unlock do not count.
func (s *Service) Locked(ctx context.Context, user *models.User) (bool, error) {
	since := s.clock().Add(-s.opts.LockoutWindow)

	last, err := gorm.G[models.LoginAttempt](s.DB).
		Where("user_id = ? AND success = ?", user.ID, true).
		Order("created_at DESC").First(ctx)
	if err == nil && last.CreatedAt.After(since) {
		since = last.CreatedAt
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, apperr.Wrap(err, "load last login")
	}

	if user.LockoutClearedAt != nil && user.LockoutClearedAt.After(since) {
		since = *user.LockoutClearedAt
	}

	failures, err := gorm.G[models.LoginAttempt](s.DB).
		Where("user_id = ? AND success = ? AND created_at > ?", user.ID, false, since).
		Count(ctx, "id")
	if err != nil {
		return false, apperr.Wrap(err, "count login failures")
	}

	return failures >= int64(s.opts.MaxAttempts), nil
}

func (s *Service) recordAttempt(ctx context.Context, userID *uint, email, ip string, success bool) {
	attempt := models.LoginAttempt{
		UserID:    userID,
		Email:     email,
		IPAddress: ip,
		Success:   success,
		CreatedAt: s.clock(),
	}
	if err := gorm.G[models.LoginAttempt](s.DB).Create(ctx, &attempt); err != nil {
		s.Logger.Error("failed to record login attempt", zap.Error(err))
	}
}

func (s *Service) startChallenge(ctx context.Context, user *models.User, ip, ua string) (*models.TwoFactorChallenge, error) {
	code, err := GenerateCode()
	if err != nil {
		return nil, apperr.Wrap(err, "generate code")
	}

	now := s.clock()
	challenge := models.TwoFactorChallenge{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CodeHash:  Digest(code),
		IPAddress: ip,
		UserAgent: ua,
		ExpiresAt: now.Add(s.opts.TwoFactorTTL),
		CreatedAt: now,
	}
	if err := gorm.G[models.TwoFactorChallenge](s.DB).Create(ctx, &challenge); err != nil {
		return nil, apperr.Wrap(err, "store challenge")
	}

	if err := s.sendCode(user, code, ip); err != nil {
		return nil, err
	}

	s.Logger.Info("two-factor challenge issued", zap.Uint("user_id", user.ID), zap.String("challenge_id", challenge.ID))
	return &challenge, nil
}

func (s *Service) sendCode(user *models.User, code, ip string) error {
	task, err := tasks.NewSendEmailTask(mailer.TwoFactorCode(user.Email, user.FirstName, code, ip, s.opts.TwoFactorTTL))
	if err != nil {
		return apperr.Wrap(err, "build code email")
	}
	if _, err := s.Queue.Enqueue(task); err != nil {
		return apperr.Wrap(err, "queue code email")
	}
	return nil
}

func (s *Service) completeLogin(ctx context.Context, user *models.User, ip, ua string) (*LoginResult, error) {
	now := s.clock()
	session := models.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		IPAddress: ip,
		UserAgent: ua,
		ExpiresAt: now.Add(s.Sessions.TTL),
		CreatedAt: now,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := gorm.G[models.Session](tx).Create(ctx, &session); err != nil {
			return err
		}
		if _, err := gorm.G[models.User](tx).Where("id = ?", user.ID).
			Updates(ctx, models.User{LastLoginIP: ip, LastLoginAt: &now}); err != nil {
			return err
		}
		attempt := models.LoginAttempt{UserID: &user.ID, Email: user.Email, IPAddress: ip, Success: true, CreatedAt: now}
		return gorm.G[models.LoginAttempt](tx).Create(ctx, &attempt)
	})
	if err != nil {
		return nil, apperr.Wrap(err, "create session")
	}

	token, err := s.Sessions.Issue(session.ID, user.ID, now, session.ExpiresAt)
	if err != nil {
		return nil, apperr.Wrap(err, "sign session")
	}

	user.LastLoginIP = ip
	user.LastLoginAt = &now
	return &LoginResult{User: user, Session: &session, Token: token}, nil
}

func (s *Service) liveChallenge(ctx context.Context, id string) (*models.TwoFactorChallenge, error) {
	if id == "" {
		return nil, errInvalidCode
	}
	ch, err := gorm.G[models.TwoFactorChallenge](s.DB).Where("id = ?", id).First(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errInvalidCode
		}
		return nil, apperr.Wrap(err, "load challenge")
	}
	if ch.ConsumedAt != nil || !s.clock().Before(ch.ExpiresAt) || ch.Attempts >= maxCodeAttempts {
		return nil, errInvalidCode
	}
	return &ch, nil
}

// VerifyTwoFactor completes a login with the emailed code. Wrong codes count
// as failed logins. A challenge accepts five guesses.
func (s *Service) VerifyTwoFactor(ctx context.Context, challengeID, code, ip, ua string) (*LoginResult, error) {
	ch, err := s.liveChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	// Every guess claims one of the challenge's attempts before comparing.
	claimed, err := gorm.G[models.TwoFactorChallenge](s.DB).
		Where("id = ? AND consumed_at IS NULL AND attempts < ?", ch.ID, maxCodeAttempts).
		Update(ctx, "attempts", gorm.Expr("attempts + 1"))
	if err != nil {
		return nil, apperr.Wrap(err, "count code attempt")
	}
	if claimed == 0 {
		return nil, errInvalidCode
	}

	user, err := gorm.G[models.User](s.DB).Where("id = ?", ch.UserID).First(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "load user")
	}

	if subtle.ConstantTimeCompare([]byte(Digest(code)), []byte(ch.CodeHash)) != 1 {
		s.recordAttempt(ctx, &user.ID, user.Email, ip, false)
		return nil, errInvalidCode
	}

	if !user.Active() {
		return nil, apperr.Forbiddenf("Account is disabled")
	}

	n, err := gorm.G[models.TwoFactorChallenge](s.DB).
		Where("id = ? AND consumed_at IS NULL", ch.ID).
		Update(ctx, "consumed_at", s.clock())
	if err != nil {
		return nil, apperr.Wrap(err, "consume challenge")
	}
	if n == 0 {
		return nil, errInvalidCode
	}

	return s.completeLogin(ctx, &user, ip, ua)
}

// ResendTwoFactor issues a fresh code for a live challenge.
func (s *Service) ResendTwoFactor(ctx context.Context, challengeID string) error {
	ch, err := s.liveChallenge(ctx, challengeID)
	if err != nil {
		return err
	}

	user, err := gorm.G[models.User](s.DB).Where("id = ?", ch.UserID).First(ctx)
	if err != nil {
		return apperr.Wrap(err, "load user")
	}

	code, err := GenerateCode()
	if err != nil {
		return apperr.Wrap(err, "generate code")
	}

	err = s.DB.Model(&models.TwoFactorChallenge{}).Where("id = ?", ch.ID).Updates(map[string]any{
		"code_hash":  Digest(code),
		"attempts":   0,
		"expires_at": s.clock().Add(s.opts.TwoFactorTTL),
	}).Error
	if err != nil {
		return apperr.Wrap(err, "refresh challenge")
	}

	return s.sendCode(&user, code, ch.IPAddress)
}

// Authenticate resolves a session token to its live session and active user.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.User, *models.Session, error) {
	if token == "" {
		return nil, nil, errUnauthenticated
	}

	now := s.clock()
	claims, err := s.Sessions.Parse(token, now)
	if err != nil {
		return nil, nil, errUnauthenticated
	}

	session, err := gorm.G[models.Session](s.DB).Where("id = ?", claims.SessionID).First(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, errUnauthenticated
		}
		return nil, nil, apperr.Wrap(err, "load session")
	}
	if !session.Valid(now) || session.UserID != claims.UserID {
		return nil, nil, errUnauthenticated
	}

	user, err := gorm.G[models.User](s.DB).Where("id = ?", session.UserID).First(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, errUnauthenticated
		}
		return nil, nil, apperr.Wrap(err, "load user")
	}
	if !user.Active() {
		return nil, nil, errUnauthenticated
	}

	return &user, &session, nil
}

func (s *Service) Logout(ctx context.Context, sessionID string) error {
	_, err := gorm.G[models.Session](s.DB).
		Where("id = ? AND revoked_at IS NULL", sessionID).
		Update(ctx, "revoked_at", s.clock())
	if err != nil {
		return apperr.Wrap(err, "revoke session")
	}
	return nil
}

// RevokeSessions ends every live session of the user except keep.
func (s *Service) RevokeSessions(ctx context.Context, userID uint, keep string) error {
	_, err := gorm.G[models.Session](s.DB).
		Where("user_id = ? AND id <> ? AND revoked_at IS NULL", userID, keep).
		Update(ctx, "revoked_at", s.clock())
	if err != nil {
		return apperr.Wrap(err, "revoke sessions")
	}
	return nil
}

func (s *Service) ChangePassword(ctx context.Context, user *models.User, current, next, keepSession string) error {
	if !CheckPassword(user.PasswordHash, current) {
		return apperr.InvalidFields("Current password is incorrect", map[string]string{"current_password": "is incorrect"})
	}

	hash, err := HashPassword(next, s.opts.BcryptCost)
	if err != nil {
		return apperr.InvalidFields(err.Error(), map[string]string{"new_password": err.Error()})
	}

	if _, err := gorm.G[models.User](s.DB).Where("id = ?", user.ID).Update(ctx, "password_hash", hash); err != nil {
		return apperr.Wrap(err, "update password")
	}
	user.PasswordHash = hash

	return s.RevokeSessions(ctx, user.ID, keepSession)
}

// RequestPasswordReset mails a reset link to active users. Unknown addresses
// succeed silently so the endpoint does not reveal which accounts exist.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := gorm.G[models.User](s.DB).
		Where("email = ? AND status = ?", models.NormalizeEmail(email), models.UserStatusActive).
		First(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return apperr.Wrap(err, "load user")
	}

	token, err := RandomToken()
	if err != nil {
		return apperr.Wrap(err, "generate reset token")
	}

	now := s.clock()
	reset := models.PasswordReset{
		UserID:    user.ID,
		TokenHash: Digest(token),
		ExpiresAt: now.Add(s.opts.ResetTTL),
		CreatedAt: now,
	}
	if err := gorm.G[models.PasswordReset](s.DB).Create(ctx, &reset); err != nil {
		return apperr.Wrap(err, "store reset token")
	}

	link := fmt.Sprintf("%s/reset-password?token=%s", s.opts.AppBaseURL, token)
	task, err := tasks.NewSendEmailTask(mailer.PasswordReset(user.Email, user.FirstName, link, s.opts.ResetTTL))
	tasks.Enqueue(s.Logger, s.Queue, task, err)
	return nil
}

func (s *Service) ResetPassword(ctx context.Context, token, next string) error {
	hash, err := HashPassword(next, s.opts.BcryptCost)
	if err != nil {
		return apperr.InvalidFields(err.Error(), map[string]string{"password": err.Error()})
	}

	now := s.clock()
	reset, err := gorm.G[models.PasswordReset](s.DB).Where("token_hash = ?", Digest(token)).First(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Invalidf("Reset link is invalid or has expired")
		}
		return apperr.Wrap(err, "load reset token")
	}
	if reset.UsedAt != nil || !now.Before(reset.ExpiresAt) {
		return apperr.Invalidf("Reset link is invalid or has expired")
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		n, err := gorm.G[models.PasswordReset](tx).Where("id = ? AND used_at IS NULL", reset.ID).Update(ctx, "used_at", now)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.Invalidf("Reset link is invalid or has expired")
		}
		if _, err := gorm.G[models.User](tx).Where("id = ?", reset.UserID).
			Updates(ctx, models.User{PasswordHash: hash, LockoutClearedAt: &now}); err != nil {
			return err
		}
		_, err = gorm.G[models.Session](tx).
			Where("user_id = ? AND revoked_at IS NULL", reset.UserID).
			Update(ctx, "revoked_at", now)
		return err
	})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return err
		}
		return apperr.Wrap(err, "reset password")
	}
	return nil
}

// UnlockUser forgives earlier failed attempts.
func (s *Service) UnlockUser(ctx context.Context, userID uint) error {
	n, err := gorm.G[models.User](s.DB).Where("id = ?", userID).Update(ctx, "lockout_cleared_at", s.clock())
	if err != nil {
		return apperr.Wrap(err, "unlock user")
	}
	if n == 0 {
		return apperr.NotFoundf("User not found")
	}
	return nil
}
