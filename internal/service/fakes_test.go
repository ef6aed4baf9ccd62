package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	"storefront/internal/model"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var nopLog = zap.NewNop()

type fakeTx struct{ calls int }

func (f *fakeTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []model.AuditLog
}

func (f *fakeAuditRepo) Log(_ context.Context, entry *model.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeAuditRepo) List(_ context.Context, page, limit int, action string) ([]model.AuditLog, int64, error) {
	var out []model.AuditLog
	for _, e := range f.entries {
		if action == "" || e.Action == action {
			out = append(out, e)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeAuditRepo) actions() []string {
	names := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		names = append(names, e.Action)
	}
	return names
}

type event struct {
	userID string
	name   string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []event
}

func (p *recordingPublisher) PublishToUser(userID, name string, _ interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event{userID: userID, name: name})
}

func (p *recordingPublisher) PublishAll(name string, _ interface{}) {
	p.PublishToUser("", name, nil)
}

// fakeRoleRepo keeps roles and permissions in maps and mimics gorm's not-found error
type fakeRoleRepo struct {
	roles       map[uuid.UUID]*model.Role
	perms       map[string]*model.Permission
	permLookups int
}

var _ repository.RoleRepository = (*fakeRoleRepo)(nil)

func newFakeRoleRepo() *fakeRoleRepo {
	return &fakeRoleRepo{roles: map[uuid.UUID]*model.Role{}, perms: map[string]*model.Permission{}}
}

func (f *fakeRoleRepo) addPermission(name, category string, system bool) model.Permission {
	p := &model.Permission{ID: uuid.New(), Name: name, DisplayName: name, Category: category, IsSystem: system}
	f.perms[name] = p
	return *p
}

func (f *fakeRoleRepo) addRole(name string, priority int, system bool, permNames ...string) *model.Role {
	r := &model.Role{ID: uuid.New(), Name: name, DisplayName: strings.ToLower(name), Priority: priority, IsSystem: system}
	for _, n := range permNames {
		r.Permissions = append(r.Permissions, *f.perms[n])
	}
	f.roles[r.ID] = r
	return r
}

func (f *fakeRoleRepo) Create(_ context.Context, role *model.Role) error {
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	stored := *role
	stored.Permissions = nil
	f.roles[role.ID] = &stored
	return nil
}

func (f *fakeRoleRepo) Update(_ context.Context, role *model.Role) error {
	stored, ok := f.roles[role.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	perms := stored.Permissions
	*stored = *role
	stored.Permissions = perms
	return nil
}

func (f *fakeRoleRepo) Delete(_ context.Context, role *model.Role) error {
	delete(f.roles, role.ID)
	return nil
}

func (f *fakeRoleRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Role, error) {
	r, ok := f.roles[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *r
	cp.Permissions = append([]model.Permission(nil), r.Permissions...)
	return &cp, nil
}

func (f *fakeRoleRepo) FindByName(ctx context.Context, name string) (*model.Role, error) {
	for id, r := range f.roles {
		if r.Name == name {
			return f.FindByID(ctx, id)
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRoleRepo) ListAll(ctx context.Context) ([]model.Role, error) {
	out := make([]model.Role, 0, len(f.roles))
	for id := range f.roles {
		r, _ := f.FindByID(ctx, id)
		out = append(out, *r)
	}
	// map order is random; the service is expected to sort
	return out, nil
}

func (f *fakeRoleRepo) ReplacePermissions(_ context.Context, role *model.Role, perms []model.Permission) error {
	stored, ok := f.roles[role.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.Permissions = append([]model.Permission(nil), perms...)
	role.Permissions = perms
	return nil
}

func (f *fakeRoleRepo) GetPermissionsByRoleName(_ context.Context, roleName string) ([]string, error) {
	f.permLookups++
	for _, r := range f.roles {
		if r.Name == roleName {
			return r.PermissionNames(), nil
		}
	}
	return nil, nil
}

func (f *fakeRoleRepo) ListPermissions(_ context.Context) ([]model.Permission, error) {
	out := make([]model.Permission, 0, len(f.perms))
	for _, p := range f.perms {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeRoleRepo) FindPermissionByName(_ context.Context, name string) (*model.Permission, error) {
	p, ok := f.perms[name]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeRoleRepo) FindPermissionsByNames(_ context.Context, names []string) ([]model.Permission, error) {
	var out []model.Permission
	for _, n := range names {
		if p, ok := f.perms[n]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeRoleRepo) FindPermissionsByCategory(_ context.Context, category string) ([]model.Permission, error) {
	var out []model.Permission
	for _, p := range f.perms {
		if p.Category == category {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeRoleRepo) CreatePermission(_ context.Context, perm *model.Permission) error {
	if perm.ID == uuid.Nil {
		perm.ID = uuid.New()
	}
	cp := *perm
	f.perms[perm.Name] = &cp
	return nil
}

func (f *fakeRoleRepo) UpdatePermission(_ context.Context, perm *model.Permission) error {
	cp := *perm
	f.perms[perm.Name] = &cp
	return nil
}

func (f *fakeRoleRepo) DeletePermission(_ context.Context, perm *model.Permission) error {
	delete(f.perms, perm.Name)
	return nil
}

func (f *fakeRoleRepo) CountRolesWithPermission(_ context.Context, permID uuid.UUID) (int64, error) {
	var n int64
	for _, r := range f.roles {
		for _, p := range r.Permissions {
			if p.ID == permID {
				n++
				break
			}
		}
	}
	return n, nil
}

func (f *fakeRoleRepo) FindOrCreatePermission(ctx context.Context, perm *model.Permission) error {
	if existing, ok := f.perms[perm.Name]; ok {
		*perm = *existing
		return nil
	}
	return f.CreatePermission(ctx, perm)
}

type fakeUserRepo struct {
	users map[string]*model.User
}

var _ repository.UserRepository = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*model.User{}}
}

func (f *fakeUserRepo) add(u model.User) *model.User {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	f.users[u.ID.String()] = &u
	return &u
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	cp := *user
	f.users[user.ID.String()] = &cp
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) find(match func(*model.User) bool) (*model.User, error) {
	for _, u := range f.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.Email == email })
}

func (f *fakeUserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.Username == username })
}

func (f *fakeUserRepo) List(_ context.Context, page, limit int) ([]model.User, int64, error) {
	out := make([]model.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, int64(len(out)), nil
}

func (f *fakeUserRepo) Update(_ context.Context, user *model.User) error {
	cp := *user
	f.users[user.ID.String()] = &cp
	return nil
}

func (f *fakeUserRepo) Delete(_ context.Context, id string) error {
	delete(f.users, id)
	return nil
}

func (f *fakeUserRepo) CountByRole(_ context.Context, role string) (int64, error) {
	var n int64
	for _, u := range f.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

type fakeProductRepo struct {
	products map[uuid.UUID]*model.Product
}

var _ repository.ProductRepository = (*fakeProductRepo)(nil)

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{products: map[uuid.UUID]*model.Product{}}
}

func (f *fakeProductRepo) add(name string, price float64, stock int) *model.Product {
	p := &model.Product{ID: uuid.New(), SKU: strings.ToUpper(name), Name: name, Price: price, Stock: stock}
	f.products[p.ID] = p
	return p
}

func (f *fakeProductRepo) Create(_ context.Context, product *model.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	cp := *product
	f.products[product.ID] = &cp
	return nil
}

func (f *fakeProductRepo) Update(_ context.Context, product *model.Product) error {
	cp := *product
	f.products[product.ID] = &cp
	return nil
}

func (f *fakeProductRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.products, id)
	return nil
}

func (f *fakeProductRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProductRepo) FindBySKU(_ context.Context, sku string) (*model.Product, error) {
	for _, p := range f.products {
		if p.SKU == sku {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeProductRepo) List(_ context.Context, page, limit int, search string) ([]model.Product, int64, error) {
	var out []model.Product
	for _, p := range f.products {
		if search == "" || strings.Contains(strings.ToLower(p.Name), strings.ToLower(search)) {
			out = append(out, *p)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeProductRepo) UpdateStock(_ context.Context, id uuid.UUID, stock int) error {
	p, ok := f.products[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	p.Stock = stock
	return nil
}

func (f *fakeProductRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeProductRepo) FindByIDs(_ context.Context, ids []uuid.UUID) ([]model.Product, error) {
	var out []model.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

type fakeLedgerRepo struct {
	entries []model.InventoryTransaction
}

func (f *fakeLedgerRepo) Create(_ context.Context, tx *model.InventoryTransaction) error {
	tx.ID = uuid.New()
	f.entries = append(f.entries, *tx)
	return nil
}

func (f *fakeLedgerRepo) ListByProduct(_ context.Context, productID uuid.UUID, limit int) ([]model.InventoryTransaction, error) {
	var out []model.InventoryTransaction
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if f.entries[i].ProductID == productID {
			out = append(out, f.entries[i])
		}
	}
	return out, nil
}

// fakeCartRepo stores lines per user and joins products from a fakeProductRepo on read
type fakeCartRepo struct {
	products *fakeProductRepo
	carts    map[uuid.UUID]*model.Cart
}

var _ repository.CartRepository = (*fakeCartRepo)(nil)

func newFakeCartRepo(products *fakeProductRepo) *fakeCartRepo {
	return &fakeCartRepo{products: products, carts: map[uuid.UUID]*model.Cart{}}
}

func (f *fakeCartRepo) FindOrCreateByUser(_ context.Context, userID uuid.UUID) (*model.Cart, error) {
	c, ok := f.carts[userID]
	if !ok {
		c = &model.Cart{ID: uuid.New(), UserID: userID}
		f.carts[userID] = c
	}
	cp := *c
	cp.Items = make([]model.CartItem, 0, len(c.Items))
	for _, it := range c.Items {
		if p, ok := f.products.products[it.ProductID]; ok {
			it.Product = *p
		}
		cp.Items = append(cp.Items, it)
	}
	return &cp, nil
}

func (f *fakeCartRepo) LockByUser(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	return f.FindOrCreateByUser(ctx, userID)
}

func (f *fakeCartRepo) byID(cartID uuid.UUID) *model.Cart {
	for _, c := range f.carts {
		if c.ID == cartID {
			return c
		}
	}
	return nil
}

func (f *fakeCartRepo) CreateItem(_ context.Context, item *model.CartItem) error {
	c := f.byID(item.CartID)
	if c == nil {
		return gorm.ErrRecordNotFound
	}
	item.ID = uuid.New()
	stored := *item
	stored.Product = model.Product{}
	c.Items = append(c.Items, stored)
	return nil
}

func (f *fakeCartRepo) UpdateItemQuantity(_ context.Context, itemID uuid.UUID, quantity int) error {
	for _, c := range f.carts {
		for i := range c.Items {
			if c.Items[i].ID == itemID {
				c.Items[i].Quantity = quantity
				return nil
			}
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeCartRepo) DeleteItem(_ context.Context, cartID, itemID uuid.UUID) (int64, error) {
	c := f.byID(cartID)
	if c == nil {
		return 0, nil
	}
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (f *fakeCartRepo) DeleteAllItems(_ context.Context, cartID uuid.UUID) error {
	if c := f.byID(cartID); c != nil {
		c.Items = nil
	}
	return nil
}
