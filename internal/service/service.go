package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"garmentpos/backend/internal/cache"
	"garmentpos/backend/internal/domain"
	"garmentpos/backend/internal/idgen"
	"garmentpos/backend/internal/store"
)

const maxConflictAttempts = 3

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

func actorOf(ctx context.Context) domain.Actor {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.Actor{Username: "system", Role: "system"}
	}
	return actor
}

type Options struct {
	BillCacheTTL time.Duration
	Location     *time.Location
	Now          func() time.Time
}

type Service struct {
	repo    store.Repository
	bills   cache.BillCache
	billTTL time.Duration
	loc     *time.Location
	now     func() time.Time
}

func New(repo store.Repository, bills cache.BillCache, opts Options) *Service {
	if bills == nil {
		bills = cache.NoopBillCache{}
	}
	if opts.BillCacheTTL <= 0 {
		opts.BillCacheTTL = 5 * time.Minute
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:    repo,
		bills:   bills,
		billTTL: opts.BillCacheTTL,
		loc:     opts.Location,
		now:     opts.Now,
	}
}

// clock returns the current instant in UTC and in the store's local zone.
// Document numbers are minted from the local calendar day.
func (s *Service) clock() (time.Time, time.Time) {
	now := s.now()
	return now.UTC(), now.In(s.loc)
}

// inTx runs fn as one unit of work, retrying when the store reports a
// write conflict.
func (s *Service) inTx(ctx context.Context, op string, fn func(tx store.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxConflictAttempts; attempt++ {
		err = s.repo.InTx(ctx, fn)
		if err == nil || !retryable(err) {
			return err
		}
		log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("write conflict, retrying")
	}
	return err
}

// retryable reports store conflicts caused by concurrent writers. Duplicate
// names supplied by the caller fail the same way on every attempt.
func retryable(err error) bool {
	if errors.Is(err, store.ErrDuplicateCategory) || errors.Is(err, store.ErrDuplicateSKU) {
		return false
	}
	return errors.Is(err, store.ErrConflict)
}

// logActivity is best effort: the business operation has already committed.
func (s *Service) logActivity(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor := actorOf(ctx)
	if err := s.repo.CreateActivity(ctx, domain.ActivityLog{
		ID:            idgen.NewID(),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		log.Warn().Err(err).Str("action", action).Str("entity", entityType+"/"+entityID).Msg("failed to write activity log")
	}
}

func (s *Service) ListActivity(ctx context.Context, date string, limit int) ([]domain.ActivityLog, error) {
	from, to, err := s.dayRange(date)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListActivity(ctx, from, to, limit)
}

// dayRange resolves YYYY-MM-DD in the store's zone, defaulting to today.
func (s *Service) dayRange(date string) (time.Time, time.Time, error) {
	_, local := s.clock()
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	if date = strings.TrimSpace(date); date != "" {
		parsed, err := time.ParseInLocation("2006-01-02", date, s.loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrValidation)
		}
		day = parsed
	}
	return day.UTC(), day.AddDate(0, 0, 1).UTC(), nil
}

// recordMovement applies delta to a product's stock and appends the
// matching ledger entry.
func recordMovement(ctx context.Context, tx store.Tx, product domain.Product, movement domain.MovementType, qty int, ref ledgerRef, actor domain.Actor, at time.Time) (domain.LedgerEntry, error) {
	if qty <= 0 {
		return domain.LedgerEntry{}, fmt.Errorf("%w: movement quantity must be positive", store.ErrValidation)
	}
	if qty > domain.MaxStockQuantity {
		return domain.LedgerEntry{}, validationError("movement quantity must not exceed %d", domain.MaxStockQuantity)
	}
	previous, current, err := tx.AdjustStock(ctx, product.ID, movement.Sign()*qty)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	if current > domain.MaxStockQuantity {
		return domain.LedgerEntry{}, validationError("stock of %s would exceed %d", product.SKU, domain.MaxStockQuantity)
	}
	entry := domain.LedgerEntry{
		ID:              idgen.NewID(),
		ProductID:       product.ID,
		SKU:             product.SKU,
		Type:            movement,
		Quantity:        qty,
		PreviousStock:   previous,
		NewStock:        current,
		ReferenceType:   ref.Type,
		ReferenceID:     ref.ID,
		ReferenceNumber: ref.Number,
		Note:            ref.Note,
		CreatedBy:       actor.Username,
		CreatedAt:       at,
	}
	if err := tx.AppendLedger(ctx, entry); err != nil {
		return domain.LedgerEntry{}, err
	}
	return entry, nil
}

type ledgerRef struct {
	Type   string
	ID     string
	Number string
	Note   string
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrValidation, fmt.Sprintf(format, args...))
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
