package service

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"sawmill/backend/internal/cache"
	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/recommendation"
	"sawmill/backend/internal/store"
	"sawmill/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo              store.Repository
	audit             store.AuditSink
	recommender       *recommendation.Engine
	facets            cache.JSONCache
	facetsTTL         time.Duration
	loc               *time.Location
	lowStockThreshold int
	now               func() time.Time
	lg                *zap.Logger
}

type Option func(*Service)

// WithAuditSink sends the audit trail somewhere other than the repository.
func WithAuditSink(sink store.AuditSink) Option {
	return func(s *Service) {
		if sink != nil {
			s.audit = sink
		}
	}
}

// WithLocation sets the zone analytics days are cut in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithLowStockThreshold(threshold int) Option {
	return func(s *Service) {
		s.lowStockThreshold = max(threshold, 0)
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithFilterCache caches search filter options.
func WithFilterCache(c cache.JSONCache, ttl time.Duration) Option {
	return func(s *Service) {
		if c != nil {
			s.facets = c
		}
		if ttl > 0 {
			s.facetsTTL = ttl
		}
	}
}

func New(repo store.Repository, recommender *recommendation.Engine, lg *zap.Logger, opts ...Option) *Service {
	if lg == nil {
		lg = zap.NewNop()
	}
	if recommender == nil {
		recommender = recommendation.NewEngine(nil, 0, lg)
	}

	s := &Service{
		repo:              repo,
		audit:             repo,
		recommender:       recommender,
		facets:            cache.Noop{},
		facetsTTL:         time.Minute,
		loc:               time.UTC,
		lowStockThreshold: 10,
		now:               func() time.Time { return time.Now().UTC() },
		lg:                lg.Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == "" {
		return domain.Actor{}, errors.Wrap(store.ErrForbidden, "authentication required")
	}
	return actor, nil
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || !actor.IsAdmin() {
		return domain.Actor{}, errors.Wrap(store.ErrForbidden, "admin role required")
	}
	return actor, nil
}

// requireOwner allows the owning user and admins.
func requireOwner(ctx context.Context, ownerID string) (domain.Actor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if !actor.IsAdmin() && actor.UserID != ownerID {
		return domain.Actor{}, errors.Wrap(store.ErrForbidden, "not allowed to access this resource")
	}
	return actor, nil
}

// Paging is a 1-based page request.
type Paging struct {
	Page  int
	Limit int
}

func (p Paging) normalize(defaultLimit int) Paging {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultLimit
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	return p
}

func (p Paging) offset() int {
	return (p.Page - 1) * p.Limit
}

func pagination(total int64, p Paging) domain.Pagination {
	pages := 0
	if p.Limit > 0 {
		pages = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	}
	return domain.Pagination{Total: total, Page: p.Page, Limit: p.Limit, Pages: pages}
}

func (s *Service) ListAuditLogs(ctx context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if to.IsZero() {
		to = s.now().Add(time.Second)
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}
	if !from.Before(to) {
		return nil, errors.Wrap(store.ErrInvalidInput, "from must be before to")
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.audit.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{UserID: "system", Email: "system", Role: "system"}
	}

	if err := s.audit.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		ActorID:    actor.UserID,
		ActorEmail: actor.Email,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  s.now(),
	}); err != nil {
		s.lg.Warn("Write audit log",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err),
		)
	}
}
