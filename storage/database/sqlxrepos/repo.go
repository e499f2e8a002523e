package sqlxrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/trezcool/colegio/core"
)

// baseRepository holds the default executor and a statement builder using its driver's placeholders.
type baseRepository struct {
	exec core.DBExecutor
	sb   sq.StatementBuilderType
}

func newBaseRepository(exec core.DBExecutor) baseRepository {
	return baseRepository{
		exec: exec,
		sb:   sq.StatementBuilder.PlaceholderFormat(placeholderFormat(exec.DriverName())),
	}
}

func placeholderFormat(driverName string) sq.PlaceholderFormat {
	switch driverName {
	case "postgres", "pgx":
		return sq.Dollar
	default:
		return sq.Question
	}
}

func (repo baseRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

func (repo baseRepository) get(ctx context.Context, exec core.DBExecutor, dest interface{}, q sq.Sqlizer) error {
	query, args, err := q.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return exec.GetContext(ctx, dest, query, args...)
}

func (repo baseRepository) selectRows(ctx context.Context, exec core.DBExecutor, dest interface{}, q sq.Sqlizer) error {
	query, args, err := q.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return exec.SelectContext(ctx, dest, query, args...)
}

func (repo baseRepository) execute(ctx context.Context, exec core.DBExecutor, q sq.Sqlizer) (int64, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// trapNoRowsErr maps the "no rows" err to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// jsonStrings is a string list stored as a JSON array in a TEXT column.
type jsonStrings []string

func (js jsonStrings) Value() (driver.Value, error) {
	if js == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(js))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (js *jsonStrings) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*js = jsonStrings{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.Errorf("jsonStrings: cannot scan %T", src)
	}

	list := make([]string, 0)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &list); err != nil {
			return errors.Wrap(err, "jsonStrings: decoding")
		}
	}
	*js = list
	return nil
}
