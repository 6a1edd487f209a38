package shield

import (
	"context"

	"github.com/uptrace/bun"
)

// Models lists every table owned by the package in creation order.
func Models() []any {
	return []any{
		(*User)(nil),
		(*Role)(nil),
		(*Privilege)(nil),
		(*UserRole)(nil),
		(*RolePrivilege)(nil),
		(*AccessToken)(nil),
		(*Grant)(nil),
	}
}

// CreateSchema creates the tables from the models if they do not exist.
// Deployed databases use the SQL migrations in GetMigrationsFS instead.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range Models() {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}

	indexes := []struct {
		model  any
		name   string
		column string
	}{
		{(*UserRole)(nil), "idx_user_roles_role_id", "role_id"},
		{(*RolePrivilege)(nil), "idx_privilege_role_privilege_id", "privilege_id"},
		{(*AccessToken)(nil), "idx_access_tokens_user_id", "user_id"},
		{(*Grant)(nil), "idx_oauth_grants_user_id", "user_id"},
	}

	for _, idx := range indexes {
		_, err := db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.column).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return err
		}
	}

	return nil
}

// DropSchema removes every table owned by the package.
func DropSchema(ctx context.Context, db bun.IDB) error {
	models := Models()
	for i := len(models) - 1; i >= 0; i-- {
		if _, err := db.NewDropTable().Model(models[i]).IfExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}
