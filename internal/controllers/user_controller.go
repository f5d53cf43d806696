package controllers

import (
	"context"
	"net/http"

	"merchantcrm/internal/apperr"
	"merchantcrm/internal/auth"
	"merchantcrm/internal/middleware"
	"merchantcrm/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UserController manages sign-in accounts. Admin only.
type UserController struct {
	DB     *gorm.DB
	Auth   *auth.Service
	Logger *zap.Logger
}

type userRequest struct {
	Email            string `json:"email" binding:"omitempty,email"`
	Password         string `json:"password"`
	FirstName        string `json:"first_name" binding:"max=100"`
	LastName         string `json:"last_name" binding:"max=100"`
	Role             string `json:"role" binding:"required,oneof=admin agent merchant"`
	Status           string `json:"status" binding:"omitempty,oneof=active disabled"`
	TwoFactorEnabled bool   `json:"two_factor_enabled"`
	AgentID          *uint  `json:"agent_id"`
	MerchantID       *uint  `json:"merchant_id"`
}

// links checks that agent and merchant users point at existing records.
func (uc *UserController) links(ctx context.Context, req *userRequest) error {
	switch req.Role {
	case models.RoleAgent:
		if req.AgentID == nil {
			return apperr.InvalidFields("Agent users need an agent", map[string]string{"agent_id": "is required"})
		}
		if _, err := gorm.G[models.Agent](uc.DB).Where("id = ?", *req.AgentID).First(ctx); err != nil {
			return apperr.InvalidFields("Agent users need an agent", map[string]string{"agent_id": "does not exist"})
		}
		req.MerchantID = nil
	case models.RoleMerchant:
		if req.MerchantID == nil {
			return apperr.InvalidFields("Merchant users need a merchant", map[string]string{"merchant_id": "is required"})
		}
		if _, err := gorm.G[models.Merchant](uc.DB).Where("id = ?", *req.MerchantID).First(ctx); err != nil {
			return apperr.InvalidFields("Merchant users need a merchant", map[string]string{"merchant_id": "does not exist"})
		}
		req.AgentID = nil
	default:
		req.AgentID, req.MerchantID = nil, nil
	}
	return nil
}

func (uc *UserController) load(c *gin.Context) (*models.User, error) {
	id, err := paramID(c, "id")
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := first(uc.DB.WithContext(c.Request.Context()).Where("id = ?", id), &user, "User"); err != nil {
		return nil, err
	}
	return &user, nil
}

func (uc *UserController) List(c *gin.Context) {
	p := pageFrom(c)
	role := c.Query("role")
	query := func() *gorm.DB {
		q := uc.DB.WithContext(c.Request.Context()).Model(&models.User{}).
			Scopes(p.filter("users", "email", "first_name", "last_name"))
		if role != "" {
			q = q.Where("role = ?", role)
		}
		return q
	}

	var users []models.User
	total, err := p.list(query, "id DESC", &users)
	if err != nil {
		fail(c, uc.Logger, apperr.Wrap(err, "list users"))
		return
	}
	ok(c, http.StatusOK, p.body("users", users, total))
}

func (uc *UserController) Get(c *gin.Context) {
	user, err := uc.load(c)
	if err != nil {
		fail(c, uc.Logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"user": user})
}

func (uc *UserController) Create(c *gin.Context) {
	ctx := c.Request.Context()
	var req userRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, uc.Logger, err)
		return
	}
	if req.Email == "" {
		fail(c, uc.Logger, apperr.InvalidFields("Please fix the highlighted fields", map[string]string{"email": "is required"}))
		return
	}
	if err := uc.links(ctx, &req); err != nil {
		fail(c, uc.Logger, err)
		return
	}

	hash, err := auth.HashPassword(req.Password, uc.Auth.Options().BcryptCost)
	if err != nil {
		fail(c, uc.Logger, apperr.InvalidFields(err.Error(), map[string]string{"password": err.Error()}))
		return
	}

	user := models.User{
		Email:            models.NormalizeEmail(req.Email),
		PasswordHash:     hash,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Role:             req.Role,
		Status:           models.UserStatusActive,
		TwoFactorEnabled: req.TwoFactorEnabled,
		AgentID:          req.AgentID,
		MerchantID:       req.MerchantID,
	}
	if req.Status != "" {
		user.Status = req.Status
	}
	if err := gorm.G[models.User](uc.DB).Create(ctx, &user); err != nil {
		fail(c, uc.Logger, translate(err, "A user with this email already exists"))
		return
	}

	uc.Logger.Info("user created", zap.Uint("user_id", user.ID), zap.String("role", user.Role))
	ok(c, http.StatusCreated, gin.H{"user": user})
}

func (uc *UserController) Update(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := uc.load(c)
	if err != nil {
		fail(c, uc.Logger, err)
		return
	}

	var req userRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, uc.Logger, err)
		return
	}
	if err := uc.links(ctx, &req); err != nil {
		fail(c, uc.Logger, err)
		return
	}

	current := middleware.CurrentUser(c)
	if current.ID == user.ID && (req.Role != user.Role || req.Status == models.UserStatusDisabled) {
		fail(c, uc.Logger, apperr.Invalidf("You cannot change your own role or disable yourself"))
		return
	}

	cols := []string{"first_name", "last_name", "role", "two_factor_enabled", "agent_id", "merchant_id"}
	user.FirstName, user.LastName, user.Role = req.FirstName, req.LastName, req.Role
	user.TwoFactorEnabled, user.AgentID, user.MerchantID = req.TwoFactorEnabled, req.AgentID, req.MerchantID
	if req.Email != "" {
		user.Email = models.NormalizeEmail(req.Email)
		cols = append(cols, "email")
	}
	if req.Status != "" {
		user.Status = req.Status
		cols = append(cols, "status")
	}
	if req.Password != "" {
		hash, err := auth.HashPassword(req.Password, uc.Auth.Options().BcryptCost)
		if err != nil {
			fail(c, uc.Logger, apperr.InvalidFields(err.Error(), map[string]string{"password": err.Error()}))
			return
		}
		user.PasswordHash = hash
		cols = append(cols, "password_hash")
	}

	if err := uc.DB.WithContext(ctx).Model(user).Select(cols).Updates(user).Error; err != nil {
		fail(c, uc.Logger, translate(err, "A user with this email already exists"))
		return
	}
	if user.Status == models.UserStatusDisabled || req.Password != "" {
		if err := uc.Auth.RevokeSessions(ctx, user.ID, ""); err != nil {
			fail(c, uc.Logger, err)
			return
		}
	}
	ok(c, http.StatusOK, gin.H{"user": user})
}

// Delete disables the account and ends its sessions; history stays intact.
func (uc *UserController) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := uc.load(c)
	if err != nil {
		fail(c, uc.Logger, err)
		return
	}
	if middleware.CurrentUser(c).ID == user.ID {
		fail(c, uc.Logger, apperr.Invalidf("You cannot delete your own account"))
		return
	}

	if _, err := gorm.G[models.User](uc.DB).Where("id = ?", user.ID).Update(ctx, "status", models.UserStatusDisabled); err != nil {
		fail(c, uc.Logger, apperr.Wrap(err, "disable user"))
		return
	}
	if err := uc.Auth.RevokeSessions(ctx, user.ID, ""); err != nil {
		fail(c, uc.Logger, err)
		return
	}

	uc.Logger.Info("user disabled", zap.Uint("user_id", user.ID))
	ok(c, http.StatusOK, gin.H{"message": "User disabled"})
}

func (uc *UserController) Unlock(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		fail(c, uc.Logger, err)
		return
	}
	if err := uc.Auth.UnlockUser(c.Request.Context(), id); err != nil {
		fail(c, uc.Logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "User unlocked"})
}
