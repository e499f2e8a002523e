package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/user"
)

const usersTable = "users"

var userColumns = []string{"id", "name", "email", "roles", "is_active", "created_at"}

type userRow struct {
	ID        string      `db:"id"`
	Name      string      `db:"name"`
	Email     string      `db:"email"`
	Roles     jsonStrings `db:"roles"`
	IsActive  bool        `db:"is_active"`
	CreatedAt time.Time   `db:"created_at"`
}

func (r userRow) toUser() user.User {
	return user.User{
		ID:        r.ID,
		Name:      r.Name,
		Email:     r.Email,
		Roles:     []string(r.Roles),
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

type userRepository struct {
	baseRepository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{baseRepository: newBaseRepository(exec)}
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	usr.CreatedAt = usr.CreatedAt.UTC()
	if usr.Roles == nil {
		usr.Roles = []string{}
	}

	q := repo.sb.Insert(usersTable).
		Columns(userColumns...).
		Values(usr.ID, usr.Name, usr.Email, jsonStrings(usr.Roles), usr.IsActive, usr.CreatedAt)
	if _, err := repo.execute(ctx, repo.getExec(exec), q); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) getBy(ctx context.Context, exec core.DBExecutor, where sq.Eq) (user.User, error) {
	var row userRow
	q := repo.sb.Select(userColumns...).From(usersTable).Where(where).Limit(1)
	if err := repo.get(ctx, exec, &row, q); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "getting user")
	}
	return row.toUser(), nil
}

func (repo userRepository) GetUserByID(ctx context.Context, id string, exec ...core.DBExecutor) (user.User, error) {
	return repo.getBy(ctx, repo.getExec(exec), sq.Eq{"id": id})
}

func (repo userRepository) GetUserByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (user.User, error) {
	return repo.getBy(ctx, repo.getExec(exec), sq.Eq{"email": email})
}

func (repo userRepository) GetUsersByIDs(ctx context.Context, ids []string, exec ...core.DBExecutor) (map[string]user.User, error) {
	users := make(map[string]user.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	var rows []userRow
	q := repo.sb.Select(userColumns...).From(usersTable).Where(sq.Eq{"id": ids})
	if err := repo.selectRows(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying users by ids")
	}
	for _, r := range rows {
		users[r.ID] = r.toUser()
	}
	return users, nil
}

func (repo userRepository) QueryAllUsers(ctx context.Context, exec ...core.DBExecutor) ([]user.User, error) {
	var rows []userRow
	q := repo.sb.Select(userColumns...).From(usersTable).OrderBy("created_at DESC")
	if err := repo.selectRows(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toUser())
	}
	return users, nil
}
