package memory

import (
	"cmp"
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/store"
	"sawmill/backend/internal/xid"
)

// Store is a mutex-guarded Repository. Every multi-record operation runs
// under the write lock, which makes it atomic.
type Store struct {
	mu           sync.RWMutex
	products     map[string]domain.Product
	orders       map[string]*domain.Order
	orderSeq     int64
	promotions   map[string]*domain.Promotion
	analytics    map[string]domain.DailyAnalytics
	reviews      map[string]domain.Review
	wishlists    map[string]*domain.Wishlist
	settings     *domain.SiteSettings
	alerts       map[string]domain.InventoryAlert
	usersByID    map[string]domain.UserAccount
	usersByEmail map[string]string
	auditLogs    []domain.AuditLog
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		products:     make(map[string]domain.Product),
		orders:       make(map[string]*domain.Order),
		promotions:   make(map[string]*domain.Promotion),
		analytics:    make(map[string]domain.DailyAnalytics),
		reviews:      make(map[string]domain.Review),
		wishlists:    make(map[string]*domain.Wishlist),
		alerts:       make(map[string]domain.InventoryAlert),
		usersByID:    make(map[string]domain.UserAccount),
		usersByEmail: make(map[string]string),
		auditLogs:    make([]domain.AuditLog, 0, 128),
	}
}

// NewSeeded returns a store holding a demo timber catalog and the dev
// accounts. Passwords come from SEED_ADMIN_PASSWORD and
// SEED_CUSTOMER_PASSWORD, falling back to dev defaults with a warning.
func NewSeeded(lg *zap.Logger) (*Store, error) {
	if lg == nil {
		lg = zap.NewNop()
	}
	s := New()
	now := time.Now().UTC()
	for _, p := range seedCatalog(now) {
		s.products[p.ID] = p
	}

	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin12345")
	customerPwd := envOr("SEED_CUSTOMER_PASSWORD", "customer12345")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CUSTOMER_PASSWORD") == "" {
		lg.Warn("Using default dev credentials, set SEED_ADMIN_PASSWORD and SEED_CUSTOMER_PASSWORD to override")
	}
	for _, u := range []struct {
		name     string
		email    string
		password string
		role     string
	}{
		{"Sawmill Admin", "admin@sawmill.local", adminPwd, domain.RoleAdmin},
		{"Demo Customer", "customer@sawmill.local", customerPwd, domain.RoleCustomer},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			return nil, errors.Wrapf(err, "hash seed password for %s", u.email)
		}
		if _, err := s.CreateUser(context.Background(), domain.UserAccount{
			Name:         u.name,
			Email:        u.email,
			PasswordHash: string(hash),
			Role:         u.role,
			CreatedAt:    now,
		}); err != nil {
			return nil, errors.Wrapf(err, "seed user %s", u.email)
		}
	}
	return s, nil
}

func seedCatalog(now time.Time) []domain.Product {
	mk := func(id, name, category, wood, color string, price string, stock int, featured bool, tags ...string) domain.Product {
		return domain.Product{
			ID:                   id,
			Name:                 name,
			Description:          name + " from the sawmill yard.",
			Category:             category,
			ProductType:          strings.ToLower(category),
			WoodType:             wood,
			Color:                color,
			Price:                decimal.RequireFromString(price),
			Stock:                stock,
			Dimensions:           domain.Dimensions{Length: 3, Unit: "m"},
			Weight:               domain.Weight{Unit: "kg"},
			Images:               []domain.ProductImage{},
			IsAvailable:          true,
			Featured:             featured,
			BulkPricing:          []domain.BulkPricingTier{},
			Tags:                 tags,
			MinimumOrderQuantity: 1,
			LeadTime:             domain.LeadTime{Value: 1, Unit: "days"},
			CreatedAt:            now,
			UpdatedAt:            now,
		}
	}

	beam := mk("prd_pine_beam", "Pine Beam 38x114", "4x4 Timber", "Pine", "Natural", "450", 120, true, "structural", "beam")
	beam.BulkPricing = []domain.BulkPricingTier{{MinQuantity: 50, DiscountPrice: decimal.RequireFromString("420")}}

	return []domain.Product{
		beam,
		mk("prd_pine_board", "Pine Board 22x152", "Boards", "Pine", "Natural", "180", 200, false, "shelving"),
		mk("prd_meranti_door", "Meranti Door", "Doors", "Meranti", "Red", "2450", 12, true, "door", "exterior"),
		mk("prd_kiaat_frame", "Kiaat Window Frame", "Window Frames", "Kiaat", "Brown", "1890", 8, false, "window"),
		mk("prd_ply_18", "Shutter Ply 18mm", "Plywood", "Plywood", "Natural", "695", 60, false, "sheet"),
		mk("prd_oak_pillar", "Oak Pillar 150x150", "Pillars", "Oak", "Light Brown", "3200", 5, false, "pillar", "structural"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" || strings.TrimSpace(user.PasswordHash) == "" {
		return nil, errors.Wrap(store.ErrInvalidInput, "email and password are required")
	}
	if _, exists := s.usersByEmail[email]; exists {
		return nil, errors.Wrapf(store.ErrConflict, "email %s already registered", email)
	}
	user.Email = email
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.Role == "" {
		user.Role = domain.RoleCustomer
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByID[user.ID] = user
	s.usersByEmail[email] = user.ID
	return &user, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, store.ErrNotFound
	}
	user := s.usersByID[id]
	return &user, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		logs = append(logs, entry)
	}
	slices.SortStableFunc(logs, func(a, b domain.AuditLog) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return page(logs, 0, limit), nil
}

// page returns items[offset:offset+limit]; a non-positive limit keeps the
// rest of the slice.
func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[max(offset, 0):]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func byNewest(a, b time.Time, idA, idB string) int {
	if c := b.Compare(a); c != 0 {
		return c
	}
	return cmp.Compare(idB, idA)
}
