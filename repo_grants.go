package shield

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Grants persists delegated grants.
type Grants interface {
	Create(ctx context.Context, grant *Grant) error
	Find(ctx context.Context, id uuid.UUID) (*Grant, error)
	Revoke(ctx context.Context, id uuid.UUID) (bool, error)
	RevokeForUser(ctx context.Context, userID uuid.UUID) (int, error)
	DeleteForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int, error)
}

type grants struct {
	repo repository.Repository[*Grant]
	db   bun.IDB
}

var _ Grants = (*grants)(nil)

// NewGrantsRepository returns a bun backed Grants repository.
func NewGrantsRepository(db *bun.DB) Grants {
	return &grants{
		repo: repository.NewRepository[*Grant](db, repository.ModelHandlers[*Grant]{
			NewRecord: func() *Grant { return &Grant{} },
			GetID: func(g *Grant) uuid.UUID {
				if g == nil {
					return uuid.Nil
				}
				return g.ID
			},
			SetID: func(g *Grant, id uuid.UUID) {
				if g != nil {
					g.ID = id
				}
			},
		}),
		db: db,
	}
}

func (g *grants) Create(ctx context.Context, grant *Grant) error {
	if grant.ID == uuid.Nil {
		grant.ID = uuid.New()
	}
	_, err := g.repo.CreateTx(ctx, g.db, grant)
	return err
}

func (g *grants) Find(ctx context.Context, id uuid.UUID) (*Grant, error) {
	record := &Grant{}
	if err := g.db.NewSelect().Model(record).Where("?TableAlias.id = ?", id).Limit(1).Scan(ctx); err != nil {
		if isNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return record, nil
}

func (g *grants) Revoke(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := g.db.NewUpdate().
		Model((*Grant)(nil)).
		Set("revoked = ?", true).
		Where("id = ?", id).
		Where("revoked = ?", false).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (g *grants) RevokeForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	res, err := g.db.NewUpdate().
		Model((*Grant)(nil)).
		Set("revoked = ?", true).
		Where("user_id = ?", userID).
		Where("revoked = ?", false).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (g *grants) DeleteForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int, error) {
	res, err := tx.NewDelete().Model((*Grant)(nil)).Where("user_id = ?", userID).Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
