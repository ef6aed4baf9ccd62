package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront/internal/apperror"
	"storefront/internal/authz"
	"storefront/internal/metrics"
	"storefront/internal/model"
	"storefront/internal/repository"
	ws "storefront/internal/websocket"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreatePermissionRequest struct {
	Name        string `json:"name" binding:"required"`
	DisplayName string `json:"display_name" binding:"required"`
	Description string `json:"description"`
	Category    string `json:"category" binding:"required"`
}

// UpdatePermissionRequest edits metadata only, the name is immutable
type UpdatePermissionRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
	Description string `json:"description"`
	Category    string `json:"category" binding:"required"`
}

type CreateRoleRequest struct {
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	Color       string   `json:"color"`
	Priority    int      `json:"priority"`
	Permissions []string `json:"permissions"` // Permission names
}

type UpdateRoleRequest struct {
	Name        string   `json:"name"` // Optional, must match the stored name when sent
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	Color       string   `json:"color"`
	Priority    *int     `json:"priority"`
	Permissions []string `json:"permissions"`
}

type ToggleCategoryRequest struct {
	Category string `json:"category" binding:"required"`
}

type RoleResponse struct {
	ID string `json:"id"`
	authz.Role
	CreatedAt string `json:"created_at"`
}

// --- Interface ---

type RoleService interface {
	ListPermissions(ctx context.Context) (map[string][]authz.Permission, error)
	CreatePermission(ctx context.Context, actorID string, req CreatePermissionRequest) (*authz.Permission, error)
	UpdatePermission(ctx context.Context, actorID, name string, req UpdatePermissionRequest) (*authz.Permission, error)
	DeletePermission(ctx context.Context, actorID, name string) error

	ListRoles(ctx context.Context) ([]RoleResponse, error)
	GetRole(ctx context.Context, id string) (*RoleResponse, error)
	CreateRole(ctx context.Context, actorID string, req CreateRoleRequest) (*RoleResponse, error)
	UpdateRole(ctx context.Context, actorID, id string, req UpdateRoleRequest) (*RoleResponse, error)
	DeleteRole(ctx context.Context, actorID, id string) error
	ToggleRoleCategory(ctx context.Context, actorID, id, category string) (*RoleResponse, error)

	RolePermissions(ctx context.Context, roleName string) ([]string, error)
	GetUserPermissions(ctx context.Context, userID string) ([]string, error)
	HasPermission(ctx context.Context, userID, permission string) (bool, error)
	SeedDefaults(ctx context.Context) error
}

// rolePermsEntry stores cached permission names for a role with TTL
type rolePermsEntry struct {
	names     []string
	expiresAt time.Time
}

type roleService struct {
	roleRepo  repository.RoleRepository
	userRepo  repository.UserRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	events    EventPublisher
	log       *zap.Logger
	metrics   *metrics.AuthzMetrics

	cache    sync.Map // roleName -> rolePermsEntry
	cacheTTL time.Duration
	now      func() time.Time
}

func NewRoleService(
	roleRepo repository.RoleRepository,
	userRepo repository.UserRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	events EventPublisher,
	log *zap.Logger,
	m *metrics.AuthzMetrics,
	cacheTTL time.Duration,
) RoleService {
	return &roleService{
		roleRepo:  roleRepo,
		userRepo:  userRepo,
		auditRepo: auditRepo,
		txManager: txManager,
		events:    events,
		log:       log,
		metrics:   m,
		cacheTTL:  cacheTTL,
		now:       time.Now,
	}
}

// --- Permissions ---

func (s *roleService) ListPermissions(ctx context.Context) (map[string][]authz.Permission, error) {
	perms, err := s.roleRepo.ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}

	flat := make([]authz.Permission, 0, len(perms))
	for _, p := range perms {
		flat = append(flat, toPermission(p))
	}
	return authz.GroupByCategory(flat), nil
}

func (s *roleService) CreatePermission(ctx context.Context, actorID string, req CreatePermissionRequest) (*authz.Permission, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || strings.TrimSpace(req.DisplayName) == "" || strings.TrimSpace(req.Category) == "" {
		return nil, apperror.Validation("name, display_name and category are required")
	}

	if _, err := s.roleRepo.FindPermissionByName(ctx, name); err == nil {
		return nil, apperror.Conflict("permission %q already exists", name)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	perm := model.Permission{
		Name:        name,
		DisplayName: req.DisplayName,
		Description: req.Description,
		Category:    req.Category,
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.roleRepo.CreatePermission(txCtx, &perm); err != nil {
			return fmt.Errorf("failed to create permission: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionCreatePermission, perm.ID.String(), perm.Name, req)
	})
	if err != nil {
		return nil, err
	}

	res := toPermission(perm)
	return &res, nil
}

func (s *roleService) UpdatePermission(ctx context.Context, actorID, name string, req UpdatePermissionRequest) (*authz.Permission, error) {
	if strings.TrimSpace(req.DisplayName) == "" || strings.TrimSpace(req.Category) == "" {
		return nil, apperror.Validation("display_name and category are required")
	}

	perm, err := s.roleRepo.FindPermissionByName(ctx, name)
	if err != nil {
		return nil, lookupErr(err, "permission")
	}

	perm.DisplayName = req.DisplayName
	perm.Description = req.Description
	perm.Category = req.Category

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.roleRepo.UpdatePermission(txCtx, perm); err != nil {
			return fmt.Errorf("failed to update permission: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionUpdatePermission, perm.ID.String(), perm.Name, req)
	})
	if err != nil {
		return nil, err
	}

	s.events.PublishAll(ws.EventRolesChanged, map[string]interface{}{"permission": perm.Name})
	res := toPermission(*perm)
	return &res, nil
}

func (s *roleService) DeletePermission(ctx context.Context, actorID, name string) error {
	perm, err := s.roleRepo.FindPermissionByName(ctx, name)
	if err != nil {
		return lookupErr(err, "permission")
	}
	if perm.IsSystem {
		return apperror.Forbidden("cannot delete system permission %q", perm.Name)
	}

	inUse, err := s.roleRepo.CountRolesWithPermission(ctx, perm.ID)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if inUse > 0 {
		return apperror.Conflict("permission %q is assigned to %d role(s)", perm.Name, inUse)
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.roleRepo.DeletePermission(txCtx, perm); err != nil {
			return fmt.Errorf("failed to delete permission: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionDeletePermission, perm.ID.String(), perm.Name, nil)
	})
}

// --- Roles ---

func (s *roleService) ListRoles(ctx context.Context) ([]RoleResponse, error) {
	roles, err := s.roleRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}

	res := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		res = append(res, toRoleResponse(r))
	}
	sort.SliceStable(res, func(i, j int) bool { return authz.RoleLess(res[i].Role, res[j].Role) })
	return res, nil
}

func (s *roleService) GetRole(ctx context.Context, id string) (*RoleResponse, error) {
	roleID, err := parseID(id, "role")
	if err != nil {
		return nil, err
	}

	role, err := s.roleRepo.FindByID(ctx, roleID)
	if err != nil {
		return nil, lookupErr(err, "role")
	}

	resp := toRoleResponse(*role)
	return &resp, nil
}

func (s *roleService) CreateRole(ctx context.Context, actorID string, req CreateRoleRequest) (*RoleResponse, error) {
	if strings.TrimSpace(req.DisplayName) == "" {
		return nil, apperror.Validation("display name is required")
	}
	names := authz.Dedupe(req.Permissions)
	if len(names) == 0 {
		return nil, apperror.Validation("select at least one permission")
	}

	name := authz.DeriveRoleName(req.DisplayName)
	if _, err := s.roleRepo.FindByName(ctx, name); err == nil {
		return nil, apperror.Conflict("role %q already exists", name)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	perms, err := s.resolvePermissions(ctx, names)
	if err != nil {
		return nil, err
	}

	role := model.Role{
		Name:        name,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Description: req.Description,
		Color:       req.Color,
		Priority:    req.Priority,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.roleRepo.Create(txCtx, &role); err != nil {
			return fmt.Errorf("failed to create role: %w", err)
		}
		if err := s.roleRepo.ReplacePermissions(txCtx, &role, perms); err != nil {
			return fmt.Errorf("failed to assign permissions: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionCreateRole, role.ID.String(), role.Name, req)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(role.Name)
	s.log.Info("role created", zap.String("role", role.Name), zap.Int("permissions", len(perms)))
	s.events.PublishAll(ws.EventRolesChanged, map[string]interface{}{"role": role.Name})
	resp := toRoleResponse(role)
	return &resp, nil
}

func (s *roleService) UpdateRole(ctx context.Context, actorID, id string, req UpdateRoleRequest) (*RoleResponse, error) {
	if strings.TrimSpace(req.DisplayName) == "" {
		return nil, apperror.Validation("display name is required")
	}
	names := authz.Dedupe(req.Permissions)
	if len(names) == 0 {
		return nil, apperror.Validation("select at least one permission")
	}

	roleID, err := parseID(id, "role")
	if err != nil {
		return nil, err
	}
	role, err := s.roleRepo.FindByID(ctx, roleID)
	if err != nil {
		return nil, lookupErr(err, "role")
	}

	renamed := req.Name != "" && req.Name != role.Name
	displayChanged := strings.TrimSpace(req.DisplayName) != role.DisplayName
	if role.IsSystem && (renamed || displayChanged) {
		return nil, apperror.Forbidden("system role %q cannot be renamed", role.Name)
	}
	if renamed {
		return nil, apperror.Validation("role name cannot be changed after creation")
	}

	perms, err := s.resolvePermissions(ctx, names)
	if err != nil {
		return nil, err
	}

	role.DisplayName = strings.TrimSpace(req.DisplayName)
	role.Description = req.Description
	role.Color = req.Color
	if req.Priority != nil {
		role.Priority = *req.Priority
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.roleRepo.Update(txCtx, role); err != nil {
			return fmt.Errorf("failed to update role: %w", err)
		}
		if err := s.roleRepo.ReplacePermissions(txCtx, role, perms); err != nil {
			return fmt.Errorf("failed to update permissions: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionUpdateRole, role.ID.String(), role.Name, req)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(role.Name)
	s.events.PublishAll(ws.EventRolesChanged, map[string]interface{}{"role": role.Name})
	resp := toRoleResponse(*role)
	return &resp, nil
}

func (s *roleService) DeleteRole(ctx context.Context, actorID, id string) error {
	roleID, err := parseID(id, "role")
	if err != nil {
		return err
	}
	role, err := s.roleRepo.FindByID(ctx, roleID)
	if err != nil {
		return lookupErr(err, "role")
	}
	if role.IsSystem {
		return apperror.Forbidden("cannot delete system role %q", role.Name)
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.roleRepo.Delete(txCtx, role); err != nil {
			return fmt.Errorf("failed to delete role: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionDeleteRole, role.ID.String(), role.Name, nil)
	})
	if err != nil {
		return err
	}

	// Users keep the dangling name and resolve to no permissions until reassigned
	if n, err := s.userRepo.CountByRole(ctx, role.Name); err == nil && n > 0 {
		s.log.Warn("deleted role still assigned to users", zap.String("role", role.Name), zap.Int64("users", n))
	}

	s.invalidate(role.Name)
	s.events.PublishAll(ws.EventRolesChanged, map[string]interface{}{"role": role.Name, "deleted": true})
	return nil
}

func (s *roleService) ToggleRoleCategory(ctx context.Context, actorID, id, category string) (*RoleResponse, error) {
	roleID, err := parseID(id, "role")
	if err != nil {
		return nil, err
	}
	role, err := s.roleRepo.FindByID(ctx, roleID)
	if err != nil {
		return nil, lookupErr(err, "role")
	}

	inCategory, err := s.roleRepo.FindPermissionsByCategory(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if len(inCategory) == 0 {
		return nil, apperror.NotFound("permission category %q not found", category)
	}
	categoryNames := make([]string, 0, len(inCategory))
	for _, p := range inCategory {
		categoryNames = append(categoryNames, p.Name)
	}

	next := authz.ToggleCategory(role.PermissionNames(), categoryNames)
	if len(next) == 0 {
		return nil, apperror.Validation("a role needs at least one permission")
	}

	perms, err := s.resolvePermissions(ctx, next)
	if err != nil {
		return nil, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.roleRepo.ReplacePermissions(txCtx, role, perms); err != nil {
			return fmt.Errorf("failed to update permissions: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionUpdateRole, role.ID.String(), role.Name,
			map[string]interface{}{"toggled_category": category, "permissions": next})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(role.Name)
	s.events.PublishAll(ws.EventRolesChanged, map[string]interface{}{"role": role.Name})
	resp := toRoleResponse(*role)
	return &resp, nil
}

// --- Checks ---

// RolePermissions returns cached or DB-fetched permission names for a role.
// Unknown roles yield an empty set.
func (s *roleService) RolePermissions(ctx context.Context, roleName string) ([]string, error) {
	if entry, ok := s.cache.Load(roleName); ok {
		cached := entry.(rolePermsEntry)
		if s.now().Before(cached.expiresAt) {
			if s.metrics != nil {
				s.metrics.RoleCacheHitsTotal.Inc()
			}
			return cached.names, nil
		}
	}
	if s.metrics != nil {
		s.metrics.RoleCacheMissesTotal.Inc()
	}

	names, err := s.roleRepo.GetPermissionsByRoleName(ctx, roleName)
	if err != nil {
		return nil, fmt.Errorf("failed to load role permissions: %w", err)
	}
	if names == nil {
		names = []string{}
	}

	s.cache.Store(roleName, rolePermsEntry{names: names, expiresAt: s.now().Add(s.cacheTTL)})
	return names, nil
}

func (s *roleService) GetUserPermissions(ctx context.Context, userID string) ([]string, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, lookupErr(err, "user")
	}

	principal := authz.Principal{Role: user.Role, Permissions: user.Permissions}
	table := authz.RoleTable{}
	if len(principal.Permissions) == 0 && principal.Role != "" {
		names, err := s.RolePermissions(ctx, principal.Role)
		if err != nil {
			return nil, err
		}
		table[principal.Role] = names
	}
	return authz.EffectivePermissions(principal, table), nil
}

func (s *roleService) HasPermission(ctx context.Context, userID, permission string) (bool, error) {
	perms, err := s.GetUserPermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p == permission {
			return true, nil
		}
	}
	return false, nil
}

// SeedDefaults upserts the permission catalog and creates missing system roles.
// Existing roles keep whatever permissions an admin gave them.
func (s *roleService) SeedDefaults(ctx context.Context) error {
	var seeded []string
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		byName := make(map[string]model.Permission)
		for _, def := range authz.DefaultPermissions() {
			perm := model.Permission{
				Name:        def.Name,
				DisplayName: def.DisplayName,
				Description: def.Description,
				Category:    def.Category,
				IsSystem:    true,
			}
			if err := s.roleRepo.FindOrCreatePermission(txCtx, &perm); err != nil {
				return fmt.Errorf("failed to seed permission '%s': %w", def.Name, err)
			}
			byName[perm.Name] = perm
		}

		for _, def := range authz.DefaultRoles() {
			_, err := s.roleRepo.FindByName(txCtx, def.Name)
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to look up role '%s': %w", def.Name, err)
			}

			role := model.Role{
				Name:        def.Name,
				DisplayName: def.DisplayName,
				Description: def.Description,
				Color:       def.Color,
				Priority:    def.Priority,
				IsSystem:    true,
			}
			if err := s.roleRepo.Create(txCtx, &role); err != nil {
				return fmt.Errorf("failed to seed role '%s': %w", def.Name, err)
			}

			perms := make([]model.Permission, 0, len(def.Permissions))
			for _, name := range def.Permissions {
				if p, ok := byName[name]; ok {
					perms = append(perms, p)
				}
			}
			if err := s.roleRepo.ReplacePermissions(txCtx, &role, perms); err != nil {
				return fmt.Errorf("failed to assign permissions to role '%s': %w", def.Name, err)
			}
			seeded = append(seeded, role.Name)
			s.log.Info("seeded system role", zap.String("role", role.Name))
		}
		return nil
	})
	if err != nil {
		return err
	}

	// a lookup before the seed may have cached an empty set for these names
	for _, name := range seeded {
		s.invalidate(name)
	}
	return nil
}

// --- Helpers ---

// resolvePermissions loads permissions by name and rejects names missing from the catalog
func (s *roleService) resolvePermissions(ctx context.Context, names []string) ([]model.Permission, error) {
	perms, err := s.roleRepo.FindPermissionsByNames(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}
	if len(perms) == len(names) {
		return perms, nil
	}

	found := make(map[string]bool, len(perms))
	for _, p := range perms {
		found[p.Name] = true
	}
	var missing []string
	for _, n := range names {
		if !found[n] {
			missing = append(missing, n)
		}
	}
	return nil, apperror.Validation("unknown permissions: %s", strings.Join(missing, ", "))
}

func (s *roleService) invalidate(roleName string) {
	s.cache.Delete(roleName)
}

func toRoleResponse(r model.Role) RoleResponse {
	return RoleResponse{
		ID: r.ID.String(),
		Role: authz.Role{
			Name:        r.Name,
			DisplayName: r.DisplayName,
			Description: r.Description,
			Color:       r.Color,
			Priority:    r.Priority,
			IsSystem:    r.IsSystem,
			Permissions: r.PermissionNames(),
		},
		CreatedAt: r.CreatedAt.Format(timeLayout),
	}
}

func toPermission(p model.Permission) authz.Permission {
	return authz.Permission{
		Name:        p.Name,
		DisplayName: p.DisplayName,
		Description: p.Description,
		Category:    p.Category,
		IsSystem:    p.IsSystem,
	}
}
