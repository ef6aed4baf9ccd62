package service

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"storefront/internal/apperror"
	"storefront/internal/auth"
	"storefront/internal/authz"
	"storefront/internal/model"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// DTOs for Request validation
type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role" binding:"required"`
}

type UpdateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email" binding:"omitempty,email"`
	Phone    string `json:"phone"`
}

type LoginUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AssignRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// SetPermissionsRequest replaces the custom override; an empty list clears it
type SetPermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

// DTO for returning User without exposing sensitive data (e.g. password)
type UserResponse struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Role        string    `json:"role"`
	Permissions []string  `json:"permissions"` // Custom override, empty when the role applies
	CreatedAt   string    `json:"created_at"`
	UpdatedAt   string    `json:"updated_at"`
}

// UserService defines the interface for business logic related to User
type UserService interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error)
	Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error)
	GetUserByID(ctx context.Context, id string) (*UserResponse, error)
	ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error)
	UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*UserResponse, error)
	DeleteUser(ctx context.Context, id string) error
	AssignRole(ctx context.Context, actorID, userID, roleName string) (*UserResponse, error)
	SetCustomPermissions(ctx context.Context, actorID, userID string, names []string) (*UserResponse, error)
}

type userService struct {
	repo      repository.UserRepository
	roleRepo  repository.RoleRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	log       *zap.Logger
	secret    []byte
	tokenTTL  time.Duration
}

// NewUserService returns a new instance of UserService
func NewUserService(
	repo repository.UserRepository,
	roleRepo repository.RoleRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	log *zap.Logger,
	secret []byte,
	tokenTTL time.Duration,
) UserService {
	return &userService{
		repo:      repo,
		roleRepo:  roleRepo,
		auditRepo: auditRepo,
		txManager: txManager,
		log:       log,
		secret:    secret,
		tokenTTL:  tokenTTL,
	}
}

var emailRegex = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)

// Helper: parse model to standard json API response
func mapToResponse(user *model.User) *UserResponse {
	perms := user.Permissions
	if perms == nil {
		perms = []string{}
	}
	return &UserResponse{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		Phone:       user.Phone,
		Role:        user.Role,
		Permissions: perms,
		CreatedAt:   user.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   user.UpdatedAt.Format(time.RFC3339),
	}
}

// ensureRole fails with NotFound when no role carries the name
func (s *userService) ensureRole(ctx context.Context, name string) error {
	if _, err := s.roleRepo.FindByName(ctx, name); err != nil {
		return lookupErr(err, fmt.Sprintf("role %q", name))
	}
	return nil
}

func (s *userService) CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error) {
	if err := s.ensureRole(ctx, req.Role); err != nil {
		return nil, err
	}

	if !emailRegex.MatchString(req.Email) {
		return nil, apperror.Validation("invalid email format")
	}

	// Double check username/email uniqueness via repo directly
	if _, err := s.repo.GetByUsername(ctx, req.Username); err == nil {
		return nil, apperror.Conflict("username already exists")
	}
	if _, err := s.repo.GetByEmail(ctx, req.Email); err == nil {
		return nil, apperror.Conflict("email already exists")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Username: req.Username,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: string(hashedPassword),
		Role:     req.Role,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	return mapToResponse(user), nil
}

func (s *userService) Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error) {
	user, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, apperror.Unauthorized("invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, apperror.Unauthorized("invalid email or password")
	}

	tokenString, err := auth.Issue(s.secret, user.ID.String(), user.Role, s.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	s.log.Info("user logged in", zap.String("user_id", user.ID.String()), zap.String("role", user.Role))
	return &TokenResponse{Token: tokenString}, nil
}

func (s *userService) GetUserByID(ctx context.Context, id string) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "user")
	}
	return mapToResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}

	users, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, *mapToResponse(&users[i]))
	}

	return responses, total, nil
}

func (s *userService) UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "user")
	}

	if req.Username != "" && req.Username != user.Username {
		if _, err := s.repo.GetByUsername(ctx, req.Username); err == nil {
			return nil, apperror.Conflict("username already exists")
		}
		user.Username = req.Username
	}

	if req.Email != "" && req.Email != user.Email {
		if !emailRegex.MatchString(req.Email) {
			return nil, apperror.Validation("invalid email format")
		}
		if _, err := s.repo.GetByEmail(ctx, req.Email); err == nil {
			return nil, apperror.Conflict("email already exists")
		}
		user.Email = req.Email
	}

	if req.Phone != "" {
		user.Phone = req.Phone
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}

	return mapToResponse(user), nil
}

func (s *userService) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return lookupErr(err, "user")
	}
	return s.repo.Delete(ctx, id)
}

// AssignRole binds the user to a role. Last write wins.
func (s *userService) AssignRole(ctx context.Context, actorID, userID, roleName string) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, lookupErr(err, "user")
	}
	if err := s.ensureRole(ctx, roleName); err != nil {
		return nil, err
	}

	previous := user.Role
	user.Role = roleName

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Update(txCtx, user); err != nil {
			return fmt.Errorf("failed to assign role: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionAssignRole, user.ID.String(), user.Username,
			map[string]string{"from": previous, "to": roleName})
	})
	if err != nil {
		return nil, err
	}

	return mapToResponse(user), nil
}

// SetCustomPermissions replaces the user's override list. Last write wins.
func (s *userService) SetCustomPermissions(ctx context.Context, actorID, userID string, names []string) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, lookupErr(err, "user")
	}

	names = authz.Dedupe(names)
	if len(names) > 0 {
		found, err := s.roleRepo.FindPermissionsByNames(ctx, names)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch permissions: %w", err)
		}
		if len(found) != len(names) {
			return nil, apperror.Validation("unknown permission in override list")
		}
	}
	user.Permissions = names

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Update(txCtx, user); err != nil {
			return fmt.Errorf("failed to set permissions: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionSetPermissions, user.ID.String(), user.Username, names)
	})
	if err != nil {
		return nil, err
	}

	return mapToResponse(user), nil
}
