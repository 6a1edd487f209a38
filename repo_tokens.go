package shield

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TokenStore persists opaque tokens.
type TokenStore interface {
	Create(ctx context.Context, token *AccessToken) error
	Find(ctx context.Context, id uuid.UUID) (*AccessToken, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteForUser(ctx context.Context, userID uuid.UUID) (int, error)
	DeleteForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int, error)
	CountForUser(ctx context.Context, userID uuid.UUID) (int, error)
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
}

type tokens struct {
	repo repository.Repository[*AccessToken]
	db   bun.IDB
}

var _ TokenStore = (*tokens)(nil)

// NewTokensRepository returns a bun backed TokenStore.
func NewTokensRepository(db *bun.DB) TokenStore {
	return &tokens{
		repo: repository.NewRepository[*AccessToken](db, repository.ModelHandlers[*AccessToken]{
			NewRecord: func() *AccessToken { return &AccessToken{} },
			GetID: func(t *AccessToken) uuid.UUID {
				if t == nil {
					return uuid.Nil
				}
				return t.ID
			},
			SetID: func(t *AccessToken, id uuid.UUID) {
				if t != nil {
					t.ID = id
				}
			},
		}),
		db: db,
	}
}

func (t *tokens) Create(ctx context.Context, token *AccessToken) error {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	_, err := t.repo.CreateTx(ctx, t.db, token)
	return err
}

func (t *tokens) Find(ctx context.Context, id uuid.UUID) (*AccessToken, error) {
	record := &AccessToken{}
	if err := t.db.NewSelect().Model(record).Where("?TableAlias.id = ?", id).Limit(1).Scan(ctx); err != nil {
		if isNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return record, nil
}

func (t *tokens) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := t.db.NewDelete().Model((*AccessToken)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (t *tokens) DeleteForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	return t.DeleteForUserTx(ctx, t.db, userID)
}

func (t *tokens) DeleteForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int, error) {
	res, err := tx.NewDelete().Model((*AccessToken)(nil)).Where("user_id = ?", userID).Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (t *tokens) CountForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	return t.db.NewSelect().Model((*AccessToken)(nil)).Where("user_id = ?", userID).Count(ctx)
}

func (t *tokens) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := t.db.NewUpdate().
		Model((*AccessToken)(nil)).
		Set("last_used_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	return err
}
