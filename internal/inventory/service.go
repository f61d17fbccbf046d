package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tessera-erp/tessera-erp/internal/observability"
	"github.com/tessera-erp/tessera-erp/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// LockerPort abstracts the per-stock-key critical section.
type LockerPort interface {
	AcquireAll(ctx context.Context, keys []string) (func(), error)
}

// Service coordinates inventory operations. Every document transition runs
// with the affected stock keys locked and inside one repeatable-read
// transaction; a duplicate submission is rejected through the idempotency
// store.
type Service struct {
	repo        RepositoryPort
	locker      LockerPort
	idempotency *shared.IdempotencyStore
	audit       AuditPort
	metrics     *observability.Metrics
	policy      ShortfallPolicy
	logger      *slog.Logger
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	ShortfallPolicy ShortfallPolicy
}

// NewService builds Service.
func NewService(repo RepositoryPort, locker LockerPort, idem *shared.IdempotencyStore, audit AuditPort, metrics *observability.Metrics, cfg ServiceConfig, logger *slog.Logger) *Service {
	policy := cfg.ShortfallPolicy
	if policy == "" {
		policy = ShortfallReject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, locker: locker, idempotency: idem, audit: audit, metrics: metrics, policy: policy, logger: logger}
}

// ApplyTransition applies one document status transition end to end.
func (s *Service) ApplyTransition(ctx context.Context, t Transition, actorID int64) (Result, error) {
	if len(t.Lines) == 0 {
		return Result{}, fmt.Errorf("%w: document has no lines", shared.ErrValidation)
	}

	// Edits are legitimately re-submitted with new quantities, so only the
	// terminal transitions are deduplicated.
	idemKey := ""
	if s.idempotency != nil && t.Mode != ModeEdit {
		idemKey = fmt.Sprintf("%s:%s:%s", t.Kind, t.DocNo, t.Mode)
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, "inventory"); err != nil {
			return Result{}, err
		}
	}

	release, err := s.lockKeys(ctx, t)
	if err != nil {
		s.dropIdemKey(ctx, idemKey)
		return Result{}, err
	}
	defer release()

	var result Result
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		coordinator := NewCoordinator(tx, s.policy)
		var applyErr error
		result, applyErr = coordinator.Apply(ctx, t)
		return applyErr
	})
	if err != nil {
		s.dropIdemKey(ctx, idemKey)
		s.observeFailure(err)
		return Result{}, err
	}

	s.observeSuccess(t, result)
	s.recordAudit(ctx, t, actorID)
	return result, nil
}

func (s *Service) lockKeys(ctx context.Context, t Transition) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	seen := map[string]struct{}{}
	var keys []string
	for _, line := range t.Lines {
		if !line.Item.StockControlled {
			continue
		}
		for _, alloc := range append(append([]SubAllocation{}, line.SubAllocations...), line.PrevSubAllocations...) {
			key := shared.StockLockKey(line.Item.ID, t.PlantID, alloc.LocationID)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	// Stable order so concurrent transitions cannot deadlock.
	sort.Strings(keys)
	return s.locker.AcquireAll(ctx, keys)
}

func (s *Service) dropIdemKey(ctx context.Context, key string) {
	if key == "" || s.idempotency == nil {
		return
	}
	if err := s.idempotency.Delete(ctx, key); err != nil {
		s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", err))
	}
}

func (s *Service) observeFailure(err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveRollback()
	if errors.Is(err, ErrInsufficientStock) {
		s.metrics.ObserveShortfall()
	}
}

func (s *Service) observeSuccess(t Transition, result Result) {
	if s.metrics == nil {
		return
	}
	direction := string(DirectionIn)
	if t.Kind == KindGoodsDelivery {
		direction = string(DirectionOut)
	}
	for _, line := range result.Lines {
		for range line.MovementIDs {
			s.metrics.ObserveMovement(direction)
		}
		if line.Shortfall.IsPositive() {
			s.metrics.ObserveShortfall()
		}
	}
}

func (s *Service) recordAudit(ctx context.Context, t Transition, actorID int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   fmt.Sprintf("inventory:%s:%s", t.Kind, t.Mode),
		Entity:   "inventory_transition",
		EntityID: t.DocNo,
		Meta: map[string]any{
			"doc_ref":  t.DocRef,
			"plant_id": t.PlantID,
			"lines":    len(t.Lines),
		},
	})
}

// GetBalance reads one balance record.
func (s *Service) GetBalance(ctx context.Context, key StockKey) (BalanceRecord, error) {
	return s.repo.GetBalance(ctx, key)
}

// ListBalances lists all balance records of a material at a plant.
func (s *Service) ListBalances(ctx context.Context, materialID, plantID int64) ([]BalanceRecord, error) {
	if materialID == 0 || plantID == 0 {
		return nil, fmt.Errorf("%w: material and plant required", shared.ErrValidation)
	}
	return s.repo.ListBalances(ctx, materialID, plantID)
}

// StockCardEntry pairs a ledger row with the stock level after it posted.
type StockCardEntry struct {
	MovementRecord
	RunningBalance decimal.Decimal `json:"running_balance"`
}

// StockCard lists the movement ledger for one material, newest first, with a
// running balance walked backwards from the current stock level.
func (s *Service) StockCard(ctx context.Context, filter MovementFilter) ([]StockCardEntry, error) {
	if filter.MaterialID == 0 || filter.PlantID == 0 {
		return nil, fmt.Errorf("%w: material and plant required", shared.ErrValidation)
	}
	movements, err := s.repo.ListMovements(ctx, filter)
	if err != nil {
		return nil, err
	}

	current, err := s.currentTotal(ctx, filter)
	if err != nil {
		return nil, err
	}

	entries := make([]StockCardEntry, 0, len(movements))
	for _, m := range movements {
		entries = append(entries, StockCardEntry{MovementRecord: m, RunningBalance: current})
		if m.Voided {
			continue
		}
		if m.Direction == DirectionIn {
			current = round3(current.Sub(m.Quantity))
		} else {
			current = round3(current.Add(m.Quantity))
		}
	}
	return entries, nil
}

// currentTotal resolves the stock level the newest card entry left behind.
// Batched stock mirrors into the batch-less aggregate row at the same
// location, so the plant-wide sum walks aggregate rows only; each location
// then counts exactly once whether or not its stock is batch-managed.
func (s *Service) currentTotal(ctx context.Context, filter MovementFilter) (decimal.Decimal, error) {
	if filter.LocationID != 0 {
		key := StockKey{MaterialID: filter.MaterialID, PlantID: filter.PlantID, LocationID: filter.LocationID, BatchID: filter.BatchID}
		rec, err := s.repo.GetBalance(ctx, key)
		if errors.Is(err, ErrBalanceNotFound) {
			return decimal.Zero, nil
		}
		if err != nil {
			return decimal.Decimal{}, err
		}
		return rec.Total(), nil
	}

	records, err := s.repo.ListBalances(ctx, filter.MaterialID, filter.PlantID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	total := decimal.Zero
	for _, rec := range records {
		if filter.BatchID != "" {
			if rec.Key.BatchID == filter.BatchID {
				total = total.Add(rec.Total())
			}
			continue
		}
		if rec.Key.IsAggregate() {
			total = total.Add(rec.Total())
		}
	}
	return round3(total), nil
}

// ListLots lists FIFO lots for one costing scope.
func (s *Service) ListLots(ctx context.Context, scope CostScope) ([]FIFOLot, error) {
	if scope.MaterialID == 0 || scope.PlantID == 0 {
		return nil, fmt.Errorf("%w: material and plant required", shared.ErrValidation)
	}
	return s.repo.ListLots(ctx, scope)
}
