// Package memory 进程内 Store 实现，用于测试与 STORE=memory 的本地开发
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"apartel/internal/models"
	"apartel/internal/store"
	"apartel/pkg/lock"

	"gorm.io/datatypes"
)

type key struct {
	tenant string
	id     string
}

// Store 内存实现，所有返回值均为副本
type Store struct {
	mu    sync.RWMutex
	units *lock.KeyedMutex

	tenants       map[string]models.Tenant
	groups        map[key]models.PortfolioGroup
	unitsByKey    map[key]models.Unit
	bookings      map[key]models.Booking
	mappings      map[key]models.ChannelMapping
	feeds         map[key]models.ICalConnection
	transactions  map[key]models.Transaction
	categories    map[key]models.TransactionCategory
	subCategories map[key]models.TransactionSubCategory

	// FailTransaction 测试钩子，返回非 nil 时 CreateTransaction 失败
	FailTransaction func(tx *models.Transaction) error
	// FailRoster 测试钩子，返回非 nil 时 ListActiveUnits 失败
	FailRoster func(tenantID string) error
}

// New 创建空的内存存储
func New() *Store {
	return &Store{
		units:         lock.NewKeyedMutex(),
		tenants:       make(map[string]models.Tenant),
		groups:        make(map[key]models.PortfolioGroup),
		unitsByKey:    make(map[key]models.Unit),
		bookings:      make(map[key]models.Booking),
		mappings:      make(map[key]models.ChannelMapping),
		feeds:         make(map[key]models.ICalConnection),
		transactions:  make(map[key]models.Transaction),
		categories:    make(map[key]models.TransactionCategory),
		subCategories: make(map[key]models.TransactionSubCategory),
	}
}

var _ store.Store = (*Store)(nil)

func stamp(m *models.TenantModel, tenantID string, now time.Time) {
	m.TenantID = tenantID
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
}

// ========== 单元名册 ==========

func (s *Store) ListActiveUnits(ctx context.Context, tenantID string) ([]models.RosterUnit, error) {
	if s.FailRoster != nil {
		if err := s.FailRoster(tenantID); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var roster []models.RosterUnit
	for k, u := range s.unitsByKey {
		if k.tenant != tenantID {
			continue
		}
		g, ok := s.groups[key{tenantID, u.GroupID}]
		if !ok {
			continue
		}
		roster = append(roster, models.RosterUnit{ID: u.ID, Name: u.Name, GroupName: g.Name})
	}
	sort.Slice(roster, func(i, j int) bool {
		if roster[i].GroupName != roster[j].GroupName {
			return roster[i].GroupName < roster[j].GroupName
		}
		if roster[i].Name != roster[j].Name {
			return roster[i].Name < roster[j].Name
		}
		return roster[i].ID < roster[j].ID
	})
	return roster, nil
}

func (s *Store) ListGroups(ctx context.Context, tenantID string) ([]models.PortfolioGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var groups []models.PortfolioGroup
	for k, g := range s.groups {
		if k.tenant != tenantID {
			continue
		}
		g.Units = nil
		for uk, u := range s.unitsByKey {
			if uk.tenant == tenantID && u.GroupID == g.ID {
				g.Units = append(g.Units, u)
			}
		}
		sort.Slice(g.Units, func(i, j int) bool { return g.Units[i].Name < g.Units[j].Name })
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

func (s *Store) SaveGroups(ctx context.Context, tenantID string, groups []models.PortfolioGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, g := range groups {
		units := g.Units
		g.Units = nil
		if old, ok := s.groups[key{tenantID, g.ID}]; ok {
			g.CreatedAt = old.CreatedAt
		}
		stamp(&g.TenantModel, tenantID, now)
		s.groups[key{tenantID, g.ID}] = g

		for _, u := range units {
			if old, ok := s.unitsByKey[key{tenantID, u.ID}]; ok {
				u.CreatedAt = old.CreatedAt
			}
			u.GroupID = g.ID
			stamp(&u.TenantModel, tenantID, now)
			s.unitsByKey[key{tenantID, u.ID}] = u
		}
	}
	return nil
}

func (s *Store) GetUnit(ctx context.Context, tenantID, unitID string) (*models.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.unitsByKey[key{tenantID, unitID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

type unitClaim struct {
	id     string
	unitID string
}

// claimUnits 模拟 (tenant_id, unit_id) 唯一索引：owners 为现有 ID→单元，依次应用 claims，
// 出现同一单元被两个 ID 占用时返回 false
func claimUnits(owners map[string]string, claims []unitClaim) bool {
	taken := make(map[string]string, len(owners))
	for id, unitID := range owners {
		taken[unitID] = id
	}
	for _, c := range claims {
		if prev, ok := owners[c.id]; ok && taken[prev] == c.id {
			delete(taken, prev)
		}
		if holder, ok := taken[c.unitID]; ok && holder != c.id {
			return false
		}
		taken[c.unitID] = c.id
		owners[c.id] = c.unitID
	}
	return true
}

func unitLockKey(tenantID, unitID string) string {
	return tenantID + "/" + unitID
}

func (s *Store) DeleteUnitCascade(ctx context.Context, tenantID, unitID string) error {
	release, err := s.units.Lock(ctx, unitLockKey(tenantID, unitID))
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.unitsByKey[key{tenantID, unitID}]
	if !ok {
		return store.ErrNotFound
	}

	for k, b := range s.bookings {
		if k.tenant == tenantID && b.UnitID == unitID {
			delete(s.bookings, k)
		}
	}
	for k, m := range s.mappings {
		if k.tenant == tenantID && m.UnitID == unitID {
			delete(s.mappings, k)
		}
	}
	for k, f := range s.feeds {
		if k.tenant == tenantID && f.UnitID == unitID {
			delete(s.feeds, k)
		}
	}
	delete(s.unitsByKey, key{tenantID, unitID})

	g, ok := s.groups[key{tenantID, u.GroupID}]
	if !ok || !g.IsMerge {
		return nil
	}
	for k, other := range s.unitsByKey {
		if k.tenant == tenantID && other.GroupID == g.ID {
			return nil
		}
	}
	delete(s.groups, key{tenantID, g.ID})
	return nil
}

// ========== 预订 ==========

func (s *Store) GetBooking(ctx context.Context, tenantID, id string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[key{tenantID, id}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &b, nil
}

func (s *Store) ListBookings(ctx context.Context, tenantID string, filter store.BookingFilter) ([]models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Booking
	for k, b := range s.bookings {
		if k.tenant != tenantID {
			continue
		}
		if filter.UnitID != "" && b.UnitID != filter.UnitID {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if filter.From != nil && !b.EndDate.After(*filter.From) {
			continue
		}
		if filter.To != nil && !b.StartDate.Before(*filter.To) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) FindOverlap(ctx context.Context, tenantID, unitID string, start, end time.Time, excludeID string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *models.Booking
	for k, b := range s.bookings {
		if k.tenant != tenantID || b.UnitID != unitID || b.ID == excludeID {
			continue
		}
		if !b.BlocksCalendar() || !b.Overlaps(start, end) {
			continue
		}
		if found == nil || b.StartDate.Before(found.StartDate) {
			b := b
			found = &b
		}
	}
	return found, nil
}

func (s *Store) CreateBooking(ctx context.Context, booking *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{booking.TenantID, booking.ID}
	if _, exists := s.bookings[k]; exists {
		return store.ErrDuplicate
	}
	stamp(&booking.TenantModel, booking.TenantID, time.Now())
	s.bookings[k] = *booking
	return nil
}

func (s *Store) SaveBooking(ctx context.Context, booking *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp(&booking.TenantModel, booking.TenantID, time.Now())
	s.bookings[key{booking.TenantID, booking.ID}] = *booking
	return nil
}

// WithUnitLock 以 (tenant, unit) 为键串行化，单元不存在时返回 ErrNotFound
func (s *Store) WithUnitLock(ctx context.Context, tenantID string, unitIDs []string, fn func(tx store.BookingStore) error) error {
	keys := make([]string, 0, len(unitIDs))
	for _, unitID := range unitIDs {
		keys = append(keys, unitLockKey(tenantID, unitID))
	}

	release, err := lock.LockAll(ctx, s.units, keys...)
	if err != nil {
		return err
	}
	defer release()

	// 持锁后再确认单元存在，与 DeleteUnitCascade 互斥
	for _, unitID := range unitIDs {
		if _, err := s.GetUnit(ctx, tenantID, unitID); err != nil {
			return err
		}
	}
	return fn(s)
}

// ========== 渠道映射 / 日历连接 ==========

func (s *Store) ListMappings(ctx context.Context, tenantID string) ([]models.ChannelMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ChannelMapping
	for k, m := range s.mappings {
		if k.tenant == tenantID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UnitName != out[j].UnitName {
			return out[i].UnitName < out[j].UnitName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CreateMapping(ctx context.Context, mapping *models.ChannelMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{mapping.TenantID, mapping.ID}
	if _, exists := s.mappings[k]; exists {
		return store.ErrDuplicate
	}
	for other, m := range s.mappings {
		if other.tenant == mapping.TenantID && m.UnitID == mapping.UnitID {
			return store.ErrDuplicate
		}
	}
	stamp(&mapping.TenantModel, mapping.TenantID, time.Now())
	s.mappings[k] = *mapping
	return nil
}

func (s *Store) UpdateMappingNames(ctx context.Context, tenantID, id, unitName, groupName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.mappings[key{tenantID, id}]
	if !ok {
		return store.ErrNotFound
	}
	m.UnitName = unitName
	m.GroupName = groupName
	m.UpdatedAt = time.Now()
	s.mappings[key{tenantID, id}] = m
	return nil
}

func (s *Store) UpsertMappings(ctx context.Context, tenantID string, mappings []models.ChannelMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	owners := map[string]string{}
	for k, m := range s.mappings {
		if k.tenant == tenantID {
			owners[m.ID] = m.UnitID
		}
	}
	claims := make([]unitClaim, 0, len(mappings))
	for _, m := range mappings {
		claims = append(claims, unitClaim{id: m.ID, unitID: m.UnitID})
	}
	if !claimUnits(owners, claims) {
		return store.ErrDuplicate
	}

	now := time.Now()
	for _, m := range mappings {
		if old, ok := s.mappings[key{tenantID, m.ID}]; ok {
			m.CreatedAt = old.CreatedAt
		}
		stamp(&m.TenantModel, tenantID, now)
		s.mappings[key{tenantID, m.ID}] = m
	}
	return nil
}

func (s *Store) ListFeeds(ctx context.Context, tenantID string) ([]models.ICalConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ICalConnection
	for k, f := range s.feeds {
		if k.tenant == tenantID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UnitName != out[j].UnitName {
			return out[i].UnitName < out[j].UnitName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CreateFeed(ctx context.Context, feed *models.ICalConnection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{feed.TenantID, feed.ID}
	if _, exists := s.feeds[k]; exists {
		return store.ErrDuplicate
	}
	for other, f := range s.feeds {
		if other.tenant == feed.TenantID && f.UnitID == feed.UnitID {
			return store.ErrDuplicate
		}
	}
	stamp(&feed.TenantModel, feed.TenantID, time.Now())
	s.feeds[k] = *feed
	return nil
}

func (s *Store) UpdateFeedName(ctx context.Context, tenantID, id, unitName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.feeds[key{tenantID, id}]
	if !ok {
		return store.ErrNotFound
	}
	f.UnitName = unitName
	f.UpdatedAt = time.Now()
	s.feeds[key{tenantID, id}] = f
	return nil
}

func (s *Store) UpsertFeeds(ctx context.Context, tenantID string, feeds []models.ICalConnection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	owners := map[string]string{}
	for k, f := range s.feeds {
		if k.tenant == tenantID {
			owners[f.ID] = f.UnitID
		}
	}
	claims := make([]unitClaim, 0, len(feeds))
	for _, f := range feeds {
		claims = append(claims, unitClaim{id: f.ID, unitID: f.UnitID})
	}
	if !claimUnits(owners, claims) {
		return store.ErrDuplicate
	}

	now := time.Now()
	for _, f := range feeds {
		if old, ok := s.feeds[key{tenantID, f.ID}]; ok {
			f.CreatedAt = old.CreatedAt
		}
		stamp(&f.TenantModel, tenantID, now)
		s.feeds[key{tenantID, f.ID}] = f
	}
	return nil
}

func (s *Store) TouchFeedSync(ctx context.Context, tenantID, id, lastSync string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.feeds[key{tenantID, id}]
	if !ok {
		return nil
	}
	f.LastSync = lastSync
	s.feeds[key{tenantID, id}] = f
	return nil
}

// ========== 流水 ==========

func (s *Store) ListTransactions(ctx context.Context, tenantID string, filter store.TransactionFilter) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Transaction
	for k, t := range s.transactions {
		if k.tenant != tenantID {
			continue
		}
		if filter.UnitID != "" && (t.UnitID == nil || *t.UnitID != filter.UnitID) {
			continue
		}
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		if filter.LinkedOnly && t.BookingID == nil {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	if s.FailTransaction != nil {
		if err := s.FailTransaction(tx); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{tx.TenantID, tx.ID}
	if _, exists := s.transactions[k]; exists {
		return store.ErrDuplicate
	}
	// 与数据库唯一索引 (tenant_id, unit_id, booking_id) 一致
	if tx.UnitID != nil && tx.BookingID != nil {
		for tk, other := range s.transactions {
			if tk.tenant == tx.TenantID && other.UnitID != nil && other.BookingID != nil &&
				*other.UnitID == *tx.UnitID && *other.BookingID == *tx.BookingID {
				return store.ErrDuplicate
			}
		}
	}
	stamp(&tx.TenantModel, tx.TenantID, time.Now())
	s.transactions[k] = *tx
	return nil
}

func (s *Store) ListCategories(ctx context.Context, tenantID string) ([]models.TransactionCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.TransactionCategory
	for k, c := range s.categories {
		if k.tenant != tenantID {
			continue
		}
		c.SubCategories = s.subCategoriesOf(tenantID, c.ID)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) subCategoriesOf(tenantID, categoryID string) []models.TransactionSubCategory {
	var subs []models.TransactionSubCategory
	for k, sc := range s.subCategories {
		if k.tenant == tenantID && sc.CategoryID == categoryID {
			subs = append(subs, sc)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Name < subs[j].Name })
	return subs
}

func (s *Store) GetCategory(ctx context.Context, tenantID, id string) (*models.TransactionCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.categories[key{tenantID, id}]
	if !ok {
		return nil, store.ErrNotFound
	}
	c.SubCategories = s.subCategoriesOf(tenantID, id)
	return &c, nil
}

func (s *Store) CreateCategory(ctx context.Context, category *models.TransactionCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{category.TenantID, category.ID}
	if _, exists := s.categories[k]; exists {
		return store.ErrDuplicate
	}
	stamp(&category.TenantModel, category.TenantID, time.Now())
	c := *category
	c.SubCategories = nil
	s.categories[k] = c
	return nil
}

func (s *Store) UpdateCategory(ctx context.Context, category *models.TransactionCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{category.TenantID, category.ID}
	c, ok := s.categories[k]
	if !ok {
		return store.ErrNotFound
	}
	c.Name = category.Name
	c.Type = category.Type
	c.UpdatedAt = time.Now()
	s.categories[k] = c
	return nil
}

func (s *Store) DeleteCategory(ctx context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[key{tenantID, id}]; !ok {
		return store.ErrNotFound
	}
	for k, sc := range s.subCategories {
		if k.tenant == tenantID && sc.CategoryID == id {
			delete(s.subCategories, k)
		}
	}
	delete(s.categories, key{tenantID, id})
	return nil
}

func (s *Store) GetSubCategory(ctx context.Context, tenantID, id string) (*models.TransactionSubCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.subCategories[key{tenantID, id}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sc, nil
}

func (s *Store) CreateSubCategory(ctx context.Context, sub *models.TransactionSubCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{sub.TenantID, sub.ID}
	if _, exists := s.subCategories[k]; exists {
		return store.ErrDuplicate
	}
	stamp(&sub.TenantModel, sub.TenantID, time.Now())
	s.subCategories[k] = *sub
	return nil
}

func (s *Store) UpdateSubCategory(ctx context.Context, sub *models.TransactionSubCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{sub.TenantID, sub.ID}
	sc, ok := s.subCategories[k]
	if !ok {
		return store.ErrNotFound
	}
	sc.Name = sub.Name
	sc.UpdatedAt = time.Now()
	s.subCategories[k] = sc
	return nil
}

func (s *Store) DeleteSubCategory(ctx context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subCategories[key{tenantID, id}]; !ok {
		return store.ErrNotFound
	}
	delete(s.subCategories, key{tenantID, id})
	return nil
}

// ========== 租户 ==========

func (s *Store) ListTenantIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.tenants))
	for id := range s.tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (s *Store) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tenants[tenant.ID]; exists {
		return store.ErrDuplicate
	}
	now := time.Now()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now
	s.tenants[tenant.ID] = *tenant
	return nil
}

func (s *Store) SaveOtaConfigs(ctx context.Context, id string, configs datatypes.JSON) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[id]
	if !ok {
		return store.ErrNotFound
	}
	t.OtaConfigs = configs
	t.UpdatedAt = time.Now()
	s.tenants[id] = t
	return nil
}
