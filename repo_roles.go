package shield

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// Roles persists roles and user to role assignments.
type Roles interface {
	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Role, error)
	FindBySlugTx(ctx context.Context, tx bun.IDB, slug string) (*Role, error)
	ListTx(ctx context.Context, tx bun.IDB) ([]*Role, error)
	CreateTx(ctx context.Context, tx bun.IDB, role *Role) (*Role, error)
	UpdateTx(ctx context.Context, tx bun.IDB, role *Role) (*Role, error)
	DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	TruncateTx(ctx context.Context, tx bun.IDB) error
	LockTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error

	AssignTx(ctx context.Context, tx bun.IDB, userID, roleID uuid.UUID) (bool, error)
	RevokeTx(ctx context.Context, tx bun.IDB, userID, roleID uuid.UUID) (bool, error)
	HasUserTx(ctx context.Context, tx bun.IDB, userID, roleID uuid.UUID) (bool, error)
	UserIDsTx(ctx context.Context, tx bun.IDB, roleID uuid.UUID) ([]uuid.UUID, error)
	SlugsForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]string, error)
}

// Privileges persists privileges and role to privilege grants.
type Privileges interface {
	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Privilege, error)
	FindBySlugTx(ctx context.Context, tx bun.IDB, slug string) (*Privilege, error)
	ListTx(ctx context.Context, tx bun.IDB) ([]*Privilege, error)
	CreateTx(ctx context.Context, tx bun.IDB, privilege *Privilege) (*Privilege, error)
	UpdateTx(ctx context.Context, tx bun.IDB, privilege *Privilege) (*Privilege, error)
	DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	TruncateTx(ctx context.Context, tx bun.IDB) error

	AttachTx(ctx context.Context, tx bun.IDB, roleID, privilegeID uuid.UUID) (bool, error)
	DetachTx(ctx context.Context, tx bun.IDB, roleID, privilegeID uuid.UUID) (bool, error)
	UserIDsTx(ctx context.Context, tx bun.IDB, privilegeID uuid.UUID) ([]uuid.UUID, error)
	SlugsForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]string, error)
}

type roles struct {
	repo  repository.Repository[*Role]
	clock Clock
}

var _ Roles = (*roles)(nil)

// NewRolesRepository returns a Roles repository on db.
func NewRolesRepository(db *bun.DB) Roles {
	return &roles{
		repo: repository.NewRepository[*Role](db, repository.ModelHandlers[*Role]{
			NewRecord: func() *Role { return &Role{} },
			GetID: func(r *Role) uuid.UUID {
				if r == nil {
					return uuid.Nil
				}
				return r.ID
			},
			SetID: func(r *Role, id uuid.UUID) {
				if r != nil {
					r.ID = id
				}
			},
			GetIdentifier: func() string {
				return "slug"
			},
		}),
		clock: time.Now,
	}
}

func (r *roles) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Role, error) {
	record := &Role{}
	if err := tx.NewSelect().Model(record).Where("?TableAlias.id = ?", id).Limit(1).Scan(ctx); err != nil {
		if isNotFound(err) {
			return nil, ErrRoleNotFound
		}
		return nil, err
	}
	return record, nil
}

// LockTx takes a row lock on the role until tx ends. Only postgres needs it,
// sqlite serializes writers.
func (r *roles) LockTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	if tx.Dialect().Name() != dialect.PG {
		return nil
	}
	var locked uuid.UUID
	err := tx.NewSelect().
		Model((*Role)(nil)).
		Column("id").
		Where("id = ?", id).
		For("UPDATE").
		Scan(ctx, &locked)
	if isNotFound(err) {
		return ErrRoleNotFound
	}
	return err
}

func (r *roles) FindBySlugTx(ctx context.Context, tx bun.IDB, slug string) (*Role, error) {
	record, err := r.repo.GetByIdentifierTx(ctx, tx, slug)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrRoleNotFound
		}
		return nil, err
	}
	return record, nil
}

func (r *roles) ListTx(ctx context.Context, tx bun.IDB) ([]*Role, error) {
	var records []*Role
	err := tx.NewSelect().Model(&records).OrderExpr("?TableAlias.slug ASC").Scan(ctx)
	return records, err
}

func (r *roles) CreateTx(ctx context.Context, tx bun.IDB, role *Role) (*Role, error) {
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	now := r.clock()
	role.CreatedAt, role.UpdatedAt = now, now

	out, err := r.repo.CreateTx(ctx, tx, role)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return out, nil
}

func (r *roles) UpdateTx(ctx context.Context, tx bun.IDB, role *Role) (*Role, error) {
	role.UpdatedAt = r.clock()
	out, err := r.repo.UpdateTx(ctx, tx, role, repository.UpdateByID(role.ID.String()))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrRoleNotFound
		}
		return nil, mapWriteError(err)
	}
	return out, nil
}

// DeleteTx removes the role together with its assignments and grants.
func (r *roles) DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	if _, err := tx.NewDelete().Model((*UserRole)(nil)).Where("role_id = ?", id).Exec(ctx); err != nil {
		return err
	}
	if _, err := tx.NewDelete().Model((*RolePrivilege)(nil)).Where("role_id = ?", id).Exec(ctx); err != nil {
		return err
	}
	res, err := tx.NewDelete().Model((*Role)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRoleNotFound
	}
	return nil
}

// TruncateTx removes every role, assignment and grant.
func (r *roles) TruncateTx(ctx context.Context, tx bun.IDB) error {
	for _, model := range []any{(*UserRole)(nil), (*RolePrivilege)(nil), (*Role)(nil)} {
		if _, err := tx.NewDelete().Model(model).Where("1 = 1").Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *roles) AssignTx(ctx context.Context, tx bun.IDB, userID, roleID uuid.UUID) (bool, error) {
	link := &UserRole{UserID: userID, RoleID: roleID, CreatedAt: r.clock()}
	res, err := tx.NewInsert().Model(link).On("CONFLICT DO NOTHING").Exec(ctx)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *roles) RevokeTx(ctx context.Context, tx bun.IDB, userID, roleID uuid.UUID) (bool, error) {
	res, err := tx.NewDelete().
		Model((*UserRole)(nil)).
		Where("user_id = ?", userID).
		Where("role_id = ?", roleID).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *roles) HasUserTx(ctx context.Context, tx bun.IDB, userID, roleID uuid.UUID) (bool, error) {
	return tx.NewSelect().
		Model((*UserRole)(nil)).
		Where("user_id = ?", userID).
		Where("role_id = ?", roleID).
		Exists(ctx)
}

func (r *roles) UserIDsTx(ctx context.Context, tx bun.IDB, roleID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := tx.NewSelect().
		Model((*UserRole)(nil)).
		Column("user_id").
		Where("role_id = ?", roleID).
		Scan(ctx, &ids)
	return ids, err
}

func (r *roles) SlugsForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]string, error) {
	slugs := []string{}
	err := tx.NewSelect().
		TableExpr("roles AS r").
		Column("r.slug").
		Join("JOIN user_roles AS ur ON ur.role_id = r.id").
		Where("ur.user_id = ?", userID).
		OrderExpr("r.slug ASC").
		Scan(ctx, &slugs)
	return slugs, err
}

type privileges struct {
	repo  repository.Repository[*Privilege]
	clock Clock
}

var _ Privileges = (*privileges)(nil)

// NewPrivilegesRepository returns a Privileges repository on db.
func NewPrivilegesRepository(db *bun.DB) Privileges {
	return &privileges{
		repo: repository.NewRepository[*Privilege](db, repository.ModelHandlers[*Privilege]{
			NewRecord: func() *Privilege { return &Privilege{} },
			GetID: func(p *Privilege) uuid.UUID {
				if p == nil {
					return uuid.Nil
				}
				return p.ID
			},
			SetID: func(p *Privilege, id uuid.UUID) {
				if p != nil {
					p.ID = id
				}
			},
			GetIdentifier: func() string {
				return "slug"
			},
		}),
		clock: time.Now,
	}
}

func (p *privileges) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Privilege, error) {
	record := &Privilege{}
	if err := tx.NewSelect().Model(record).Where("?TableAlias.id = ?", id).Limit(1).Scan(ctx); err != nil {
		if isNotFound(err) {
			return nil, ErrPrivilegeNotFound
		}
		return nil, err
	}
	return record, nil
}

func (p *privileges) FindBySlugTx(ctx context.Context, tx bun.IDB, slug string) (*Privilege, error) {
	record, err := p.repo.GetByIdentifierTx(ctx, tx, slug)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrPrivilegeNotFound
		}
		return nil, err
	}
	return record, nil
}

func (p *privileges) ListTx(ctx context.Context, tx bun.IDB) ([]*Privilege, error) {
	var records []*Privilege
	err := tx.NewSelect().Model(&records).OrderExpr("?TableAlias.slug ASC").Scan(ctx)
	return records, err
}

func (p *privileges) CreateTx(ctx context.Context, tx bun.IDB, privilege *Privilege) (*Privilege, error) {
	if privilege.ID == uuid.Nil {
		privilege.ID = uuid.New()
	}
	now := p.clock()
	privilege.CreatedAt, privilege.UpdatedAt = now, now

	out, err := p.repo.CreateTx(ctx, tx, privilege)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return out, nil
}

func (p *privileges) UpdateTx(ctx context.Context, tx bun.IDB, privilege *Privilege) (*Privilege, error) {
	privilege.UpdatedAt = p.clock()
	out, err := p.repo.UpdateTx(ctx, tx, privilege, repository.UpdateByID(privilege.ID.String()))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrPrivilegeNotFound
		}
		return nil, mapWriteError(err)
	}
	return out, nil
}

func (p *privileges) DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	if _, err := tx.NewDelete().Model((*RolePrivilege)(nil)).Where("privilege_id = ?", id).Exec(ctx); err != nil {
		return err
	}
	res, err := tx.NewDelete().Model((*Privilege)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPrivilegeNotFound
	}
	return nil
}

// TruncateTx removes every privilege and grant.
func (p *privileges) TruncateTx(ctx context.Context, tx bun.IDB) error {
	for _, model := range []any{(*RolePrivilege)(nil), (*Privilege)(nil)} {
		if _, err := tx.NewDelete().Model(model).Where("1 = 1").Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *privileges) AttachTx(ctx context.Context, tx bun.IDB, roleID, privilegeID uuid.UUID) (bool, error) {
	link := &RolePrivilege{RoleID: roleID, PrivilegeID: privilegeID, CreatedAt: p.clock()}
	res, err := tx.NewInsert().Model(link).On("CONFLICT DO NOTHING").Exec(ctx)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (p *privileges) DetachTx(ctx context.Context, tx bun.IDB, roleID, privilegeID uuid.UUID) (bool, error) {
	res, err := tx.NewDelete().
		Model((*RolePrivilege)(nil)).
		Where("role_id = ?", roleID).
		Where("privilege_id = ?", privilegeID).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UserIDsTx returns every user reachable through a role granted the privilege.
func (p *privileges) UserIDsTx(ctx context.Context, tx bun.IDB, privilegeID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := tx.NewSelect().
		TableExpr("user_roles AS ur").
		ColumnExpr("DISTINCT ur.user_id").
		Join("JOIN privilege_role AS pr ON pr.role_id = ur.role_id").
		Where("pr.privilege_id = ?", privilegeID).
		Scan(ctx, &ids)
	return ids, err
}

func (p *privileges) SlugsForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]string, error) {
	slugs := []string{}
	err := tx.NewSelect().
		TableExpr("privileges AS p").
		ColumnExpr("DISTINCT p.slug").
		Join("JOIN privilege_role AS pr ON pr.privilege_id = p.id").
		Join("JOIN user_roles AS ur ON ur.role_id = pr.role_id").
		Where("ur.user_id = ?", userID).
		OrderExpr("p.slug ASC").
		Scan(ctx, &slugs)
	return slugs, err
}
