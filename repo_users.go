package shield

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

// Users is the bun backed user repository. It satisfies UserRepository and
// adds transactional variants used by the mutation path.
type Users interface {
	UserRepository

	FindByFieldTx(ctx context.Context, tx bun.IDB, field, value string) (*User, error)
	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	SaveTx(ctx context.Context, tx bun.IDB, user *User) error
	DeleteTx(ctx context.Context, tx bun.IDB, user *User) error
	CountInRoleTx(ctx context.Context, tx bun.IDB, roleID uuid.UUID) (int, error)
}

type users struct {
	repo  repository.Repository[*User]
	db    bun.IDB
	clock Clock
}

var _ Users = (*users)(nil)

// NewUsersRepository returns a Users repository on db.
func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		repo:  repo,
		db:    db,
		clock: time.Now,
	}
}

func (a *users) FindByField(ctx context.Context, field, value string) (*User, error) {
	return a.FindByFieldTx(ctx, a.db, field, value)
}

func (a *users) FindByFieldTx(ctx context.Context, tx bun.IDB, field, value string) (*User, error) {
	value = strings.TrimSpace(value)
	if value == "" || !identifierPattern.MatchString(field) {
		return nil, ErrUserNotFound
	}

	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.? = ?", bun.Ident(field), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return record, nil
}

func (a *users) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.FindByIDTx(ctx, a.db, id)
}

func (a *users) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	if id == uuid.Nil {
		return nil, ErrUserNotFound
	}
	record := &User{}
	err := tx.NewSelect().Model(record).Where("?TableAlias.id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return record, nil
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := a.clock()
	user.CreatedAt = now
	user.UpdatedAt = now

	out, err := a.repo.CreateTx(ctx, tx, user)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return out, nil
}

func (a *users) Save(ctx context.Context, user *User) error {
	return a.SaveTx(ctx, a.db, user)
}

// SaveTx inserts users without an id and updates the rest.
func (a *users) SaveTx(ctx context.Context, tx bun.IDB, user *User) error {
	if user == nil {
		return ErrUserNotFound
	}
	if user.ID == uuid.Nil {
		_, err := a.CreateTx(ctx, tx, user)
		return err
	}

	user.UpdatedAt = a.clock()
	_, err := tx.NewUpdate().
		Model(user).
		WherePK().
		ExcludeColumn("id", "created_at").
		Exec(ctx)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (a *users) Delete(ctx context.Context, user *User) error {
	return a.DeleteTx(ctx, a.db, user)
}

// DeleteTx removes the user row and its role assignments.
func (a *users) DeleteTx(ctx context.Context, tx bun.IDB, user *User) error {
	if user == nil || user.ID == uuid.Nil {
		return ErrUserNotFound
	}

	if _, err := tx.NewDelete().Model((*UserRole)(nil)).Where("user_id = ?", user.ID).Exec(ctx); err != nil {
		return err
	}

	res, err := tx.NewDelete().Model((*User)(nil)).Where("id = ?", user.ID).Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (a *users) CountInRole(ctx context.Context, roleID uuid.UUID) (int, error) {
	return a.CountInRoleTx(ctx, a.db, roleID)
}

func (a *users) CountInRoleTx(ctx context.Context, tx bun.IDB, roleID uuid.UUID) (int, error) {
	return tx.NewSelect().
		Model((*UserRole)(nil)).
		Where("role_id = ?", roleID).
		Count(ctx)
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}
