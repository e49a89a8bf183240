package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"mystore/backend/internal/cache"
	"mystore/backend/internal/domain"
	"mystore/backend/internal/roles"
	"mystore/backend/internal/store"
	"mystore/backend/internal/xid"
)

// ErrForbidden is returned when the actor's role lacks the capability an
// operation needs.
var ErrForbidden = errors.New("permission denied")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Cache            cache.ProductCache
	CacheTTL         time.Duration
	ReturnWindow     time.Duration
	CreditExpiryDays int
	Logger           *logrus.Entry
	Now              func() time.Time
}

type Service struct {
	repo             store.Repository
	cache            cache.ProductCache
	cacheTTL         time.Duration
	returnWindow     time.Duration
	creditExpiryDays int
	logger           *logrus.Entry
	now              func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Cache == nil {
		opts.Cache = cache.Noop{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.ReturnWindow <= 0 {
		opts.ReturnWindow = 7 * 24 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		repo:             repo,
		cache:            opts.Cache,
		cacheTTL:         opts.CacheTTL,
		returnWindow:     opts.ReturnWindow,
		creditExpiryDays: opts.CreditExpiryDays,
		logger:           opts.Logger.WithField("module", "service"),
		now:              opts.Now,
	}
}

// authorize resolves the actor from ctx and checks it holds capability.
func (s *Service) authorize(ctx context.Context, capability roles.Capability) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.Actor{}, fmt.Errorf("%w: no actor on request", ErrForbidden)
	}
	if !roles.Allows(actor.Role, capability) {
		return domain.Actor{}, fmt.Errorf("%w: role %s lacks %s", ErrForbidden, actor.Role, capability)
	}
	return actor, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if _, err := s.authorize(ctx, roles.AuditView); err != nil {
		return nil, err
	}

	day := s.now()
	if strings.TrimSpace(date) != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(date))
		if err != nil {
			return nil, domain.Invalid("date", "expected YYYY-MM-DD")
		}
		day = parsed
	}
	if limit <= 0 {
		limit = 100
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return s.repo.ListAuditLogs(ctx, start, start.Add(24*time.Hour), limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, _ := ActorFromContext(ctx)
	entry := domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.logger.WithFields(logrus.Fields{"action": action, "entity_id": entityID}).Warnf("failed to write audit log: %v", err)
	}
}

// invalidateProducts drops every derived product view. A failure is logged,
// not returned: the write it follows has already committed.
func (s *Service) invalidateProducts(ctx context.Context) {
	if err := s.cache.InvalidateProducts(ctx); err != nil {
		s.logger.Warnf("failed to invalidate product cache: %v", err)
	}
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	if _, err := s.authorize(ctx, roles.CustomersEdit); err != nil {
		return domain.Customer{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := validateStruct(req); err != nil {
		return domain.Customer{}, err
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Name:      req.Name,
		Phone:     strings.TrimSpace(req.Phone),
		Email:     req.Email,
		Address:   strings.TrimSpace(req.Address),
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Customer{}, err
	}
	s.logAudit(ctx, "customer_create", "customer", fmt.Sprint(created.ID), created.Name)
	return *created, nil
}

func (s *Service) GetCustomer(ctx context.Context, id int64) (domain.Customer, error) {
	if _, err := s.authorize(ctx, roles.CustomersView); err != nil {
		return domain.Customer{}, err
	}
	customer, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	if _, err := s.authorize(ctx, roles.CustomersView); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListCustomers(ctx, limit)
}
