package shield

import (
	"context"
	"database/sql"
	"log"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	// MustValidate panics when Validate fails.
	MustValidate()
	DB() bun.IDB
	Users() Users
	Roles() Roles
	Privileges() Privileges
	Tokens() TokenStore
	Grants() Grants
}

type mngr struct {
	db         *bun.DB
	users      Users
	roles      Roles
	privileges Privileges
	tokens     TokenStore
	grants     Grants
}

// NewRepositoryManager wires every repository on db. A nil db yields a
// manager that fails Validate.
func NewRepositoryManager(db *bun.DB) RepositoryManager {
	if db == nil {
		return &mngr{}
	}
	return &mngr{
		db:         db,
		users:      NewUsersRepository(db),
		roles:      NewRolesRepository(db),
		privileges: NewPrivilegesRepository(db),
		tokens:     NewTokensRepository(db),
		grants:     NewGrantsRepository(db),
	}
}

func (m mngr) Validate() error {
	switch {
	case m.db == nil:
		return errors.New("database should be initialized", errors.CategoryInternal)
	case m.users == nil:
		return errors.New("repository users should be initialized", errors.CategoryInternal)
	case m.roles == nil:
		return errors.New("repository roles should be initialized", errors.CategoryInternal)
	case m.privileges == nil:
		return errors.New("repository privileges should be initialized", errors.CategoryInternal)
	case m.tokens == nil:
		return errors.New("repository tokens should be initialized", errors.CategoryInternal)
	case m.grants == nil:
		return errors.New("repository grants should be initialized", errors.CategoryInternal)
	}
	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) DB() bun.IDB {
	return m.db
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Roles() Roles {
	return m.roles
}

func (m mngr) Privileges() Privileges {
	return m.privileges
}

func (m mngr) Tokens() TokenStore {
	return m.tokens
}

func (m mngr) Grants() Grants {
	return m.grants
}
