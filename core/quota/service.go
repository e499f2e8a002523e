package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/colegio/core"
)

// ErrNotFound is returned by the Repository when an institution has no usage row yet.
var ErrNotFound = errors.New("storage usage not found")

type (
	Repository interface {
		// EnsureUsage inserts a zeroed usage row with the given limits unless one already exists.
		EnsureUsage(ctx context.Context, institutionID string, documentsLimit, evidencesLimit int64, now time.Time, exec ...core.DBExecutor) error
		GetUsage(ctx context.Context, institutionID string, exec ...core.DBExecutor) (Usage, error)
		// IncrementUsage adds delta to the counter of cat in a single statement.
		IncrementUsage(ctx context.Context, institutionID string, cat Category, delta int64, now time.Time, exec ...core.DBExecutor) error
		SetDocumentsUsage(ctx context.Context, institutionID string, usage int64, now time.Time, exec ...core.DBExecutor) error
		UpdateLimits(ctx context.Context, institutionID string, limits Limits, exec ...core.DBExecutor) error
		// SumDocumentSizes returns the total file size of the institution's document rows.
		SumDocumentSizes(ctx context.Context, institutionID string, exec ...core.DBExecutor) (int64, error)
	}

	Service struct {
		repo     Repository
		logger   core.Logger
		validate *validator.Validate
		defaults core.QuotaConfig

		cache    core.Cache
		cacheTTL time.Duration

		nowFunc func() time.Time
	}
)

func NewService(repo Repository, logger core.Logger, validate *validator.Validate, conf core.QuotaConfig) *Service {
	return &Service{
		repo:     repo,
		logger:   logger,
		validate: validate,
		defaults: conf,
		nowFunc:  time.Now,
	}
}

// WithCache makes Snapshot read through cache. Every mutation evicts the institution's entry.
func (svc *Service) WithCache(cache core.Cache, ttl time.Duration) *Service {
	svc.cache = cache
	svc.cacheTTL = ttl
	return svc
}

func (svc *Service) now() time.Time {
	return svc.nowFunc().UTC()
}

// EnsureUsageRecord creates the institution's usage row with the default limits if absent
// and returns the current row.
func (svc *Service) EnsureUsageRecord(ctx context.Context, institutionID string) (Usage, error) {
	err := svc.repo.EnsureUsage(ctx, institutionID, svc.defaults.DocumentsLimit, svc.defaults.EvidencesLimit, svc.now())
	if err != nil {
		return Usage{}, errors.Wrap(err, "ensuring usage record")
	}
	usage, err := svc.repo.GetUsage(ctx, institutionID)
	if err != nil {
		return Usage{}, errors.Wrap(err, "getting usage")
	}
	return usage, nil
}

// CheckLimit fails with a quota_exceeded error when storing incoming more bytes in cat
// would go past the institution's limit.
func (svc *Service) CheckLimit(ctx context.Context, institutionID string, cat Category, incoming int64) error {
	usage, err := svc.EnsureUsageRecord(ctx, institutionID)
	if err != nil {
		return err
	}
	used, limit := usage.Of(cat)
	if limit > 0 && used+incoming > limit {
		return core.QuotaExceeded(fmt.Sprintf(
			"Storage limit exceeded: %s of %s used, the file needs %s",
			humanBytes(used), humanBytes(limit), humanBytes(incoming),
		))
	}
	return nil
}

// AdjustUsage adds delta (negative to release) to the institution's counter of cat.
func (svc *Service) AdjustUsage(ctx context.Context, institutionID string, cat Category, delta int64) error {
	now := svc.now()
	if err := svc.repo.EnsureUsage(ctx, institutionID, svc.defaults.DocumentsLimit, svc.defaults.EvidencesLimit, now); err != nil {
		return errors.Wrap(err, "ensuring usage record")
	}
	if err := svc.repo.IncrementUsage(ctx, institutionID, cat, delta, now); err != nil {
		return errors.Wrap(err, "incrementing usage")
	}
	svc.evict(ctx, institutionID)
	return nil
}

// Reconcile overwrites the documents counter with the exact size of the stored document rows.
// Evidence usage is left as is.
func (svc *Service) Reconcile(ctx context.Context, institutionID string) (int64, error) {
	total, err := svc.repo.SumDocumentSizes(ctx, institutionID)
	if err != nil {
		return 0, errors.Wrap(err, "summing document sizes")
	}
	now := svc.now()
	if err = svc.repo.EnsureUsage(ctx, institutionID, svc.defaults.DocumentsLimit, svc.defaults.EvidencesLimit, now); err != nil {
		return 0, errors.Wrap(err, "ensuring usage record")
	}
	if err = svc.repo.SetDocumentsUsage(ctx, institutionID, total, now); err != nil {
		return 0, errors.Wrap(err, "setting documents usage")
	}
	svc.evict(ctx, institutionID)
	return total, nil
}

// Snapshot returns both categories' usage. An institution without a usage row gets a zeroed
// view against the default limits; no row is created.
func (svc *Service) Snapshot(ctx context.Context, institutionID string) (Snapshot, error) {
	if snap, ok := svc.cached(ctx, institutionID); ok {
		return snap, nil
	}

	usage, err := svc.repo.GetUsage(ctx, institutionID)
	switch {
	case errors.Cause(err) == ErrNotFound:
		usage = Usage{
			InstitutionID:  institutionID,
			DocumentsLimit: svc.defaults.DocumentsLimit,
			EvidencesLimit: svc.defaults.EvidencesLimit,
		}
	case err != nil:
		return Snapshot{}, errors.Wrap(err, "getting usage")
	}

	snap := newSnapshot(usage)
	svc.store(ctx, institutionID, snap)
	return snap, nil
}

// SetLimits overrides the institution's ceilings.
func (svc *Service) SetLimits(ctx context.Context, institutionID string, limits Limits) (Usage, error) {
	if err := svc.validate.Struct(limits); err != nil {
		return Usage{}, err
	}
	if _, err := svc.EnsureUsageRecord(ctx, institutionID); err != nil {
		return Usage{}, err
	}
	if limits.DocumentsLimit != nil || limits.EvidencesLimit != nil {
		if err := svc.repo.UpdateLimits(ctx, institutionID, limits); err != nil {
			return Usage{}, errors.Wrap(err, "updating limits")
		}
		svc.evict(ctx, institutionID)
	}
	usage, err := svc.repo.GetUsage(ctx, institutionID)
	return usage, errors.Wrap(err, "getting usage")
}

func cacheKey(institutionID string) string {
	return "quota:snapshot:" + institutionID
}

func (svc *Service) cached(ctx context.Context, institutionID string) (Snapshot, bool) {
	if svc.cache == nil {
		return Snapshot{}, false
	}
	data, ok, err := svc.cache.Get(ctx, cacheKey(institutionID))
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("reading cached usage snapshot: %v", err), err)
		return Snapshot{}, false
	}
	if !ok {
		return Snapshot{}, false
	}
	var snap Snapshot
	if err = json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false
	}
	return snap, true
}

func (svc *Service) store(ctx context.Context, institutionID string, snap Snapshot) {
	if svc.cache == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err = svc.cache.Set(ctx, cacheKey(institutionID), data, svc.cacheTTL); err != nil {
		svc.logger.Warn(fmt.Sprintf("caching usage snapshot: %v", err), err)
	}
}

func (svc *Service) evict(ctx context.Context, institutionID string) {
	if svc.cache == nil {
		return
	}
	if err := svc.cache.Delete(ctx, cacheKey(institutionID)); err != nil {
		svc.logger.Warn(fmt.Sprintf("evicting usage snapshot: %v", err), err)
	}
}
