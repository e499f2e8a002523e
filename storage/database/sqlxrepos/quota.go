package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/quota"
)

const usageTable = "institution_storage_usage"

var usageColumns = []string{
	"institution_id", "documents_usage", "documents_limit", "evidences_usage", "evidences_limit", "last_calculated_at",
}

var usageColumnByCategory = map[quota.Category]string{
	quota.CategoryDocuments: "documents_usage",
	quota.CategoryEvidences: "evidences_usage",
}

type quotaRepository struct {
	baseRepository
}

var _ quota.Repository = (*quotaRepository)(nil) // interface compliance check

func NewQuotaRepository(exec core.DBExecutor) *quotaRepository {
	return &quotaRepository{baseRepository: newBaseRepository(exec)}
}

func (repo quotaRepository) EnsureUsage(
	ctx context.Context,
	institutionID string,
	documentsLimit, evidencesLimit int64,
	now time.Time,
	exec ...core.DBExecutor,
) error {
	q := repo.sb.Insert(usageTable).
		Columns(usageColumns...).
		Values(institutionID, 0, documentsLimit, 0, evidencesLimit, now.UTC()).
		Suffix("ON CONFLICT (institution_id) DO NOTHING")
	if _, err := repo.execute(ctx, repo.getExec(exec), q); err != nil {
		return errors.Wrap(err, "inserting usage")
	}
	return nil
}

func (repo quotaRepository) GetUsage(ctx context.Context, institutionID string, exec ...core.DBExecutor) (quota.Usage, error) {
	var usage quota.Usage
	q := repo.sb.Select(usageColumns...).From(usageTable).Where(sq.Eq{"institution_id": institutionID})
	if err := repo.get(ctx, repo.getExec(exec), &usage, q); err != nil {
		return quota.Usage{}, trapNoRowsErr(err, quota.ErrNotFound, "getting usage")
	}
	usage.LastCalculatedAt = usage.LastCalculatedAt.UTC()
	return usage, nil
}

func (repo quotaRepository) IncrementUsage(
	ctx context.Context,
	institutionID string,
	cat quota.Category,
	delta int64,
	now time.Time,
	exec ...core.DBExecutor,
) error {
	col, ok := usageColumnByCategory[cat]
	if !ok {
		return errors.Errorf("unknown quota category %q", cat)
	}
	q := repo.sb.Update(usageTable).
		Set(col, sq.Expr(col+" + ?", delta)).
		Set("last_calculated_at", now.UTC()).
		Where(sq.Eq{"institution_id": institutionID})

	n, err := repo.execute(ctx, repo.getExec(exec), q)
	if err != nil {
		return errors.Wrap(err, "incrementing usage")
	}
	if n == 0 {
		return quota.ErrNotFound
	}
	return nil
}

func (repo quotaRepository) SetDocumentsUsage(ctx context.Context, institutionID string, usage int64, now time.Time, exec ...core.DBExecutor) error {
	q := repo.sb.Update(usageTable).
		Set("documents_usage", usage).
		Set("last_calculated_at", now.UTC()).
		Where(sq.Eq{"institution_id": institutionID})

	n, err := repo.execute(ctx, repo.getExec(exec), q)
	if err != nil {
		return errors.Wrap(err, "setting documents usage")
	}
	if n == 0 {
		return quota.ErrNotFound
	}
	return nil
}

func (repo quotaRepository) UpdateLimits(ctx context.Context, institutionID string, limits quota.Limits, exec ...core.DBExecutor) error {
	q := repo.sb.Update(usageTable).Where(sq.Eq{"institution_id": institutionID})
	if limits.DocumentsLimit != nil {
		q = q.Set("documents_limit", *limits.DocumentsLimit)
	}
	if limits.EvidencesLimit != nil {
		q = q.Set("evidences_limit", *limits.EvidencesLimit)
	}

	n, err := repo.execute(ctx, repo.getExec(exec), q)
	if err != nil {
		return errors.Wrap(err, "updating limits")
	}
	if n == 0 {
		return quota.ErrNotFound
	}
	return nil
}

func (repo quotaRepository) SumDocumentSizes(ctx context.Context, institutionID string, exec ...core.DBExecutor) (int64, error) {
	var total int64
	q := repo.sb.Select("COALESCE(SUM(file_size), 0)").From(documentsTable).Where(sq.Eq{"institution_id": institutionID})
	if err := repo.get(ctx, repo.getExec(exec), &total, q); err != nil {
		return 0, errors.Wrap(err, "summing document sizes")
	}
	return total, nil
}
