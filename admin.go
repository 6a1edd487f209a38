package shield

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:[-_.][a-z0-9]+)*$`)

// bcrypt ignores input past this many bytes.
const maxPasswordBytes = 72

var passwordRules = []validation.Rule{
	validation.Required,
	validation.RuneLength(8, 0),
	validation.By(func(value any) error {
		if s, _ := value.(string); len(s) > maxPasswordBytes {
			return fmt.Errorf("must be no more than %d bytes long", maxPasswordBytes)
		}
		return nil
	}),
}

// Invalidator is the cache side of the mutation path.
type Invalidator interface {
	MutationHandler
	InvalidateAll(ctx context.Context) error
}

// Admin is the role, privilege and user mutation path. Every write computes
// the affected users inside its transaction and invalidates them before the
// transaction commits and again after it commits.
type Admin struct {
	repos        RepositoryManager
	cache        Invalidator
	hasher       PasswordHasher
	cfg          Config
	logger       Logger
	activitySink ActivitySink
	clock        Clock
}

// AdminOption configures an Admin.
type AdminOption func(*Admin)

// WithAdminLogger sets the logger.
func WithAdminLogger(l Logger) AdminOption {
	return func(a *Admin) { a.logger = normalizeLogger(l) }
}

// WithAdminActivitySink sets the sink receiving mutation and user events.
func WithAdminActivitySink(s ActivitySink) AdminOption {
	return func(a *Admin) { a.activitySink = normalizeActivitySink(s) }
}

// WithAdminClock sets the clock used for suspension and verification stamps.
func WithAdminClock(c Clock) AdminOption {
	return func(a *Admin) { a.clock = normalizeClock(c) }
}

// NewAdmin returns the mutation path.
func NewAdmin(cfg Config, repos RepositoryManager, cache Invalidator, hasher PasswordHasher, opts ...AdminOption) *Admin {
	a := &Admin{
		repos:        repos,
		cache:        cache,
		hasher:       hasher,
		cfg:          cfg,
		logger:       NopLogger(),
		activitySink: noopActivitySink{},
		clock:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

type mutation func(ctx context.Context, tx bun.Tx) (MutationEvent, error)

// mutate runs fn in a transaction. A failing pre-commit invalidation rolls
// the change back. A failing post-commit invalidation falls back to
// clearing the whole cache.
func (a *Admin) mutate(ctx context.Context, fn mutation) error {
	var event MutationEvent

	err := a.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		ev, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		event = ev
		if event.Kind == "" {
			return nil
		}
		if err := a.cache.Handle(ctx, event); err != nil {
			a.logger.Error("pre-commit invalidation failed", "kind", event.Kind, "error", err)
			return ErrCacheInvalidation
		}
		return nil
	})
	if err != nil {
		return err
	}
	if event.Kind == "" {
		return nil
	}

	if err := a.cache.Handle(ctx, event); err != nil {
		a.logger.Warn("post-commit invalidation failed, clearing cache", "kind", event.Kind, "error", err)
		if err := a.cache.InvalidateAll(ctx); err != nil {
			a.logger.Error("cache clear failed", "kind", event.Kind, "error", err)
			return ErrCacheInvalidation
		}
	}

	a.emit(ctx, ActivityEventAuthzMutation, "", map[string]any{
		"kind":         string(event.Kind),
		"role_id":      event.RoleID.String(),
		"privilege_id": event.PrivilegeID.String(),
		"users":        len(event.UserIDs),
		"all":          event.All,
	})
	return nil
}

// RoleInput is the payload of CreateRole.
type RoleInput struct {
	Name string
	Slug string
}

func (r RoleInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 120)),
		validation.Field(&r.Slug, validation.Required, validation.Length(1, 120), validation.Match(slugPattern)),
	)
}

// RoleUpdate carries optional changes to a role.
type RoleUpdate struct {
	Name *string
	Slug *string
}

// CreateRole creates a role. A new role has no holders, so no cache entry
// changes.
func (a *Admin) CreateRole(ctx context.Context, in RoleInput) (*Role, error) {
	if err := in.Validate(); err != nil {
		return nil, validationError(err)
	}

	var out *Role
	err := a.mutate(ctx, func(ctx context.Context, tx bun.Tx) (MutationEvent, error) {
		role, err := a.repos.Roles().CreateTx(ctx, tx, &Role{Name: in.Name, Slug: in.Slug})
		if err != nil {
			return MutationEvent{}, err
		}
		out = role
		return MutationEvent{Kind: MutationRoleCreated, RoleID: role.ID}, nil
	})
	return out, err
}

// UpdateRole renames a role. Changing the slug of a protected role fails
// with ErrProtectedResource; changing its name is allowed.
func (a *Admin) UpdateRole(ctx context.Context, id uuid.UUID, in RoleUpdate) (*Role, error) {
	var out *Role
	err := a.mutate(ctx, func(ctx context.Context, tx bun.Tx) (MutationEvent, error) {
		role, err := a.repos.Roles().FindByIDTx(ctx, tx, id)
		if err != nil {
			return MutationEvent{}, err
		}

		if in.Slug != nil && *in.Slug != role.Slug {
			if a.cfg.IsProtectedRole(role.Slug) {
				return MutationEvent{}, ErrProtectedResource
			}
			if err := validation.Validate(*in.Slug, validation.Required, validation.Match(slugPattern)); err != nil {
				return MutationEvent{}, validationError(err)
			}
			role.Slug = *in.Slug
		}
		if in.Name != nil {
			if err := validation.Validate(strings.TrimSpace(*in.Name), validation.Required); err != nil {
				return MutationEvent{}, validationError(err)
			}
			role.Name = *in.Name
		}

		users, err := a.repos.Roles().UserIDsTx(ctx, tx, role.ID)
		if err != nil {
			return MutationEvent{}, err
		}

		if out, err = a.repos.Roles().UpdateTx(ctx, tx, role); err != nil {
			return MutationEvent{}, err
		}
		return MutationEvent{Kind: MutationRoleUpdated, RoleID: role.ID, UserIDs: users}, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteRole deletes a role and its links. Protected roles cannot be deleted.
func (a *Admin) DeleteRole(ctx context.Context, id uuid.UUID) error {
	return a.mutate(ctx, func(ctx context.Context, tx bun.Tx) (MutationEvent, error) {
		role, err := a.repos.Roles().FindByIDTx(ctx, tx, id)
		if err != nil {
			return MutationEvent{}, err
		}
		if a.cfg.IsProtectedRole(role.Slug) {
			return MutationEvent{}, ErrProtectedResource
		}

		if role.Slug == a.cfg.AdminRoleSlug {
			if err := a.repos.Roles().LockTx(ctx, tx, role.ID); err != nil {
				return MutationEvent{}, err
			}
		}
		users, err := a.repos.Roles().UserIDsTx(ctx, tx, role.ID)
		if err != nil {
			return MutationEvent{}, err
		}
		if role.Slug == a.cfg.AdminRoleSlug && len(users) > 0 {
			return MutationEvent{}, ErrLastAdmin
		}
		if err := a.repos.Roles().DeleteTx(ctx, tx, role.ID); err != nil {
			return MutationEvent{}, err
		}
		return MutationEvent{Kind: MutationRoleDeleted, RoleID: role.ID, UserIDs: users}, nil
	})
}

// FindRole looks a role up by slug.
func (a *Admin) FindRole(ctx context.Context, slug string) (*Role, error) {
	return a.repos.Roles().FindBySlugTx(ctx, a.repos.DB(), slug)
}

func (a *Admin) ListRoles(ctx context.Context) ([]*Role, error) {
	return a.repos.Roles().ListTx(ctx, a.repos.DB())
}

// PurgeRoles removes every role, assignment and grant.
func (a *Admin) PurgeRoles(ctx context.Context) error {
	return a.mutate(ctx, func(ctx context.Context, tx bun.Tx) (MutationEvent, error) {
		if err := a.repos.Roles().TruncateTx(ctx, tx); err != nil {
			return MutationEvent{}, err
		}
		return MutationEvent{Kind: MutationRolesPurged, All: true}, nil
	})
}

// PrivilegeInput is the payload of CreatePrivilege.
type PrivilegeInput struct {
	Name        string `yaml:"name"`
	Slug        string `yaml:"slug"`
	Description string `yaml:"description"`
}

func (p PrivilegeInput) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Required, validation.Length(1, 120)),
		validation.Field(&p.Slug, validation.Required, validation.Length(1, 120), validation.Match(slugPattern)),
		validation.Field(&p.Description, validation.Length(0, 500)),
	)
}

// PrivilegeUpdate carries optional changes to a privilege.
type PrivilegeUpdate struct {
	Name        *string
	Slug        *string
	Description *string
}

func (a *Admin) CreatePrivilege(ctx context.Context, in PrivilegeInput) (*Privilege, error) {
	if err := in.Validate(); err != nil {
		return nil, validationError(err)
	}

	var out *Privilege
	err := a.mutate(ctx, func(ctx context.Context, tx bun.Tx) (MutationEvent, error) {
		p, err := a.repos.Privileges().CreateTx(ctx, tx, &Privilege{
			Name:        in.Name,
			Slug:        in.Slug,
			Description: in.Description,
		})
		if err != nil {
			return MutationEvent{}, err
		}
		out = p
		return MutationEvent{Kind: MutationPrivilegeCreated, PrivilegeID: p.ID}, nil
	})
	return out, err
}

func (a *Admin) UpdatePrivilege(ctx context.Context, id uuid.UUID, in PrivilegeUpdate) (*Privilege, error) {
	var out *Privilege
	err := a.mutate(ctx, func(ctx context.Context, tx bun.Tx) (MutationEvent, error) {
		p, err := a.repos.Privileges().FindByIDTx(ctx, tx, id)
		if err != nil {
			return MutationEvent{}, err
		}
		if in.Slug != nil {
			if err := validation.Validate(*in.Slug, validation.Required, validation.Match(slugPattern)); err != nil {
				return MutationEvent{}, validationError(err)
			}
			p.Slug = *in.Slug
		}
		if in.Name != nil {
			p.Name = *in.Name
		}
		if in.Description != nil {
			p.Description = *in.Description
		}

		users, err := a.repos.Privileges().UserIDsTx(ctx, tx, p.ID)
		if err != nil {
			return MutationEvent{}, err
		}
		if out, err = a.repos.Privileges().UpdateTx(ctx, tx, p); err != nil {
			return MutationEvent{}, err
		}
		return MutationEvent{Kind: MutationPrivilegeUpdated, PrivilegeID: p.ID, UserIDs: users}, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Admin) DeletePrivilege(ctx context.Context, id uuid.UUID) error {
	return a.mutate(ctx, func(ctx context.Context, tx bun.Tx) (MutationEvent, error) {
		users, err := a.repos.Privileges().UserIDsTx(ctx, tx, id)
		if err != nil {
			return MutationEvent{}, err
		}
		if err := a.repos.Privileges().DeleteTx(ctx, tx, id); err != nil {
			return MutationEvent{}, err
		}
		return MutationEvent{Kind: MutationPrivilegeDeleted, PrivilegeID: id, UserIDs: users}, nil
	})
}

// FindPrivilege looks a privilege up by slug.
func (a *Admin) FindPrivilege(ctx context.Context, slug string) (*Privilege, error) {
	return a.repos.Privileges().FindBySlugTx(ctx, a.repos.DB(), slug)
}

func (a *Admin) ListPrivileges(ctx context.Context) ([]*Privilege, error) {
	return a.repos.Privileges().ListTx(ctx, a.repos.DB())
}

// PurgePrivileges removes every privilege and grant.
func (a *Admin) PurgePrivileges(ctx context.Context) error {
	return a.mutate(ctx, func(ctx context.Context, tx bun.Tx) (MutationEvent, error) {
		if err := a.repos.Privileges().TruncateTx(ctx, tx); err != nil {
			return MutationEvent{}, err
		}
		return MutationEvent{Kind: MutationPrivilegesPurged, All: true}, nil
	})
}

// AssignRole gives the user the role. Assigning a held role is a no-op.
func (a *Admin) AssignRole(ctx context.Context, userID uuid.UUID, roleSlug string) error {
	return a.mutate(ctx, func(ctx context.Context, tx bun.Tx) (MutationEvent, error) {
		if _, err := a.repos.Users().FindByIDTx(ctx, tx, userID); err != nil {
			return MutationEvent{}, err
		}
		role, err := a.repos.Roles().FindBySlugTx(ctx, tx, roleSlug)
		if err != nil {
			return MutationEvent{}, err
		}
		added, err := a.repos.Roles().AssignTx(ctx, tx, userID, role.ID)
		if err != nil || !added {
			return MutationEvent{}, err
		}
		return MutationEvent{Kind: MutationRoleAssigned, RoleID: role.ID, UserIDs: []uuid.UUID{userID}}, nil
	})
}

// RevokeRole removes the role from the user. Removing the admin role from
// its only holder fails with ErrLastAdmin.
func (a *Admin) RevokeRole(ctx context.Context, userID uuid.UUID, roleSlug string) error {
	return a.mutate(ctx, func(ctx context.Context, tx bun.Tx) (MutationEvent, error) {
		role, err := a.repos.Roles().FindBySlugTx(ctx, tx, roleSlug)
		if err != nil {
			return MutationEvent{}, err
		}
		if role.Slug == a.cfg.AdminRoleSlug {
			if err := a.guardLastAdmin(ctx, tx, userID, role.ID); err != nil {
				return MutationEvent{}, err
			}
		}
		removed, err := a.repos.Roles().RevokeTx(ctx, tx, userID, role.ID)
		if err != nil || !removed {
			return MutationEvent{}, err
		}
		return MutationEvent{Kind: MutationRoleRevoked, RoleID: role.ID, UserIDs: []uuid.UUID{userID}}, nil
	})
}

// AttachPrivilege grants the privilege to the role.
func (a *Admin) AttachPrivilege(ctx context.Context, roleSlug, privilegeSlug string) error {
	return a.mutate(ctx, func(ctx context.Context, tx bun.Tx) (MutationEvent, error) {
		role, priv, err := a.rolePrivilege(ctx, tx, roleSlug, privilegeSlug)
		if err != nil {
			return MutationEvent{}, err
		}
		added, err := a.repos.Privileges().AttachTx(ctx, tx, role.ID, priv.ID)
		if err != nil || !added {
			return MutationEvent{}, err
		}
		users, err := a.repos.Roles().UserIDsTx(ctx, tx, role.ID)
		if err != nil {
			return MutationEvent{}, err
		}
		return MutationEvent{Kind: MutationPrivilegeAttached, RoleID: role.ID, PrivilegeID: priv.ID, UserIDs: users}, nil
	})
}

// DetachPrivilege removes the privilege from the role.
func (a *Admin) DetachPrivilege(ctx context.Context, roleSlug, privilegeSlug string) error {
	return a.mutate(ctx, func(ctx context.Context, tx bun.Tx) (MutationEvent, error) {
		role, priv, err := a.rolePrivilege(ctx, tx, roleSlug, privilegeSlug)
		if err != nil {
			return MutationEvent{}, err
		}
		removed, err := a.repos.Privileges().DetachTx(ctx, tx, role.ID, priv.ID)
		if err != nil || !removed {
			return MutationEvent{}, err
		}
		users, err := a.repos.Roles().UserIDsTx(ctx, tx, role.ID)
		if err != nil {
			return MutationEvent{}, err
		}
		return MutationEvent{Kind: MutationPrivilegeDetached, RoleID: role.ID, PrivilegeID: priv.ID, UserIDs: users}, nil
	})
}

func (a *Admin) rolePrivilege(ctx context.Context, tx bun.IDB, roleSlug, privilegeSlug string) (*Role, *Privilege, error) {
	role, err := a.repos.Roles().FindBySlugTx(ctx, tx, roleSlug)
	if err != nil {
		return nil, nil, err
	}
	priv, err := a.repos.Privileges().FindBySlugTx(ctx, tx, privilegeSlug)
	if err != nil {
		return nil, nil, err
	}
	return role, priv, nil
}

// guardLastAdmin fails when userID is the only holder of the admin role.
// It counts rows in the store and never consults the cache.
func (a *Admin) guardLastAdmin(ctx context.Context, tx bun.IDB, userID, adminRoleID uuid.UUID) error {
	if err := a.repos.Roles().LockTx(ctx, tx, adminRoleID); err != nil {
		return err
	}
	holds, err := a.repos.Roles().HasUserTx(ctx, tx, userID, adminRoleID)
	if err != nil || !holds {
		return err
	}
	count, err := a.repos.Users().CountInRoleTx(ctx, tx, adminRoleID)
	if err != nil {
		return err
	}
	if count <= 1 {
		return ErrLastAdmin
	}
	return nil
}

// NewUser is the payload of RegisterUser.
type NewUser struct {
	Name     string
	Email    string
	Mobile   string
	Password string
	Verified bool
}

func (u NewUser) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&u.Email, validation.Required, is.Email),
		validation.Field(&u.Password, passwordRules...),
	)
}

// RegisterUser creates the user and attaches the default role in the same
// transaction.
func (a *Admin) RegisterUser(ctx context.Context, in NewUser) (*User, error) {
	if err := in.Validate(); err != nil {
		return nil, validationError(err)
	}

	hash, err := a.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash: hash,
	}
	if in.Mobile != "" {
		mobile := NormalizePhone(in.Mobile, a.cfg.PhoneRegion)
		user.Mobile = &mobile
	}
	if in.Verified {
		now := a.clock()
		user.EmailVerifiedAt = &now
	}
	if a.cfg.HashIDUserIDs {
		id, err := hashid.NewUUID(user.Email)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to derive user id")
		}
		user.ID = id
	}

	err = a.mutate(ctx, func(ctx context.Context, tx bun.Tx) (MutationEvent, error) {
		if _, err := a.repos.Users().CreateTx(ctx, tx, user); err != nil {
			return MutationEvent{}, err
		}
		role, err := a.repos.Roles().FindBySlugTx(ctx, tx, a.cfg.DefaultRoleSlug)
		if err != nil {
			return MutationEvent{}, err
		}
		if _, err := a.repos.Roles().AssignTx(ctx, tx, user.ID, role.ID); err != nil {
			return MutationEvent{}, err
		}
		return MutationEvent{Kind: MutationRoleAssigned, RoleID: role.ID, UserIDs: []uuid.UUID{user.ID}}, nil
	})
	if err != nil {
		return nil, err
	}

	a.emit(ctx, ActivityEventUserRegistered, user.ID.String(), map[string]any{"default_role": a.cfg.DefaultRoleSlug})
	return user, nil
}

// DeleteUser deletes the user with their tokens and grants. Deleting the
// only admin fails with ErrLastAdmin.
func (a *Admin) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	err := a.mutate(ctx, func(ctx context.Context, tx bun.Tx) (MutationEvent, error) {
		user, err := a.repos.Users().FindByIDTx(ctx, tx, userID)
		if err != nil {
			return MutationEvent{}, err
		}

		admin, err := a.repos.Roles().FindBySlugTx(ctx, tx, a.cfg.AdminRoleSlug)
		switch {
		case err == nil:
			if err := a.guardLastAdmin(ctx, tx, user.ID, admin.ID); err != nil {
				return MutationEvent{}, err
			}
		case !errors.Is(err, ErrRoleNotFound):
			return MutationEvent{}, err
		}

		if _, err := a.repos.Tokens().DeleteForUserTx(ctx, tx, user.ID); err != nil {
			return MutationEvent{}, err
		}
		if _, err := a.repos.Grants().DeleteForUserTx(ctx, tx, user.ID); err != nil {
			return MutationEvent{}, err
		}
		if err := a.repos.Users().DeleteTx(ctx, tx, user); err != nil {
			return MutationEvent{}, err
		}
		return MutationEvent{Kind: MutationUserDeleted, UserIDs: []uuid.UUID{user.ID}}, nil
	})
	if err != nil {
		return err
	}
	a.emit(ctx, ActivityEventUserDeleted, userID.String(), nil)
	return nil
}

// SuspendUser stamps the suspension. Login rejects suspended users.
func (a *Admin) SuspendUser(ctx context.Context, userID uuid.UUID, reason string) (*User, error) {
	return a.updateUser(ctx, userID, ActivityEventUserSuspended, func(u *User) {
		now := a.clock()
		u.SuspendedAt = &now
		u.SuspensionReason = reason
	})
}

func (a *Admin) UnsuspendUser(ctx context.Context, userID uuid.UUID) (*User, error) {
	return a.updateUser(ctx, userID, ActivityEventUserUnsuspended, func(u *User) {
		u.SuspendedAt = nil
		u.SuspensionReason = ""
	})
}

func (a *Admin) MarkVerified(ctx context.Context, userID uuid.UUID) (*User, error) {
	return a.updateUser(ctx, userID, ActivityEventUserVerified, func(u *User) {
		now := a.clock()
		u.EmailVerifiedAt = &now
	})
}

// PasswordChange is the payload of ChangePassword.
type PasswordChange struct {
	Current string
	Next    string
}

func (p PasswordChange) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Current, validation.Required),
		validation.Field(&p.Next, passwordRules...),
	)
}

// ChangePassword replaces the password of userID after checking the current
// one. A wrong current password fails with ErrInvalidCredentials. Issued
// tokens stay valid.
func (a *Admin) ChangePassword(ctx context.Context, userID uuid.UUID, in PasswordChange) error {
	if err := in.Validate(); err != nil {
		return validationError(err)
	}

	user, err := a.repos.Users().FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !a.hasher.Verify(in.Current, user.PasswordHash) {
		a.logger.Debug("password change rejected", "user_id", userID)
		return ErrInvalidCredentials
	}

	hash, err := a.hasher.Hash(in.Next)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	if err := a.repos.Users().Save(ctx, user); err != nil {
		return err
	}
	a.emit(ctx, ActivityEventPasswordChanged, user.ID.String(), nil)
	return nil
}

func (a *Admin) updateUser(ctx context.Context, userID uuid.UUID, kind ActivityEventType, change func(*User)) (*User, error) {
	user, err := a.repos.Users().FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	change(user)
	if err := a.repos.Users().Save(ctx, user); err != nil {
		return nil, err
	}
	a.emit(ctx, kind, user.ID.String(), nil)
	return user, nil
}

// SeedRole describes a role to create with the privileges it carries.
type SeedRole struct {
	Name       string   `yaml:"name"`
	Slug       string   `yaml:"slug"`
	Privileges []string `yaml:"privileges"`
}

// SeedData lists roles and privileges to ensure exist.
type SeedData struct {
	Privileges []PrivilegeInput `yaml:"privileges"`
	Roles      []SeedRole       `yaml:"roles"`
}

// DefaultSeed returns the admin and default roles from cfg.
func DefaultSeed(cfg Config) SeedData {
	return SeedData{
		Roles: []SeedRole{
			{Name: "Administrator", Slug: cfg.AdminRoleSlug},
			{Name: "User", Slug: cfg.DefaultRoleSlug},
		},
	}
}

// Seed creates missing roles and privileges and attaches privileges to
// roles. Existing records are left as they are, so seeding twice is safe.
func (a *Admin) Seed(ctx context.Context, data SeedData) error {
	return a.mutate(ctx, func(ctx context.Context, tx bun.Tx) (MutationEvent, error) {
		changed := false

		for _, in := range data.Privileges {
			if err := in.Validate(); err != nil {
				return MutationEvent{}, validationError(err)
			}
			_, err := a.repos.Privileges().FindBySlugTx(ctx, tx, in.Slug)
			if err == nil {
				continue
			}
			if !errors.Is(err, ErrPrivilegeNotFound) {
				return MutationEvent{}, err
			}
			if _, err := a.repos.Privileges().CreateTx(ctx, tx, &Privilege{Name: in.Name, Slug: in.Slug, Description: in.Description}); err != nil {
				return MutationEvent{}, err
			}
			changed = true
		}

		for _, in := range data.Roles {
			if err := (RoleInput{Name: in.Name, Slug: in.Slug}).Validate(); err != nil {
				return MutationEvent{}, validationError(err)
			}
			role, err := a.repos.Roles().FindBySlugTx(ctx, tx, in.Slug)
			if errors.Is(err, ErrRoleNotFound) {
				role, err = a.repos.Roles().CreateTx(ctx, tx, &Role{Name: in.Name, Slug: in.Slug})
				changed = true
			}
			if err != nil {
				return MutationEvent{}, err
			}

			for _, slug := range in.Privileges {
				priv, err := a.repos.Privileges().FindBySlugTx(ctx, tx, slug)
				if err != nil {
					return MutationEvent{}, err
				}
				added, err := a.repos.Privileges().AttachTx(ctx, tx, role.ID, priv.ID)
				if err != nil {
					return MutationEvent{}, err
				}
				changed = changed || added
			}
		}

		if !changed {
			return MutationEvent{}, nil
		}
		return MutationEvent{Kind: MutationPrivilegeAttached, All: true}, nil
	})
}

func (a *Admin) emit(ctx context.Context, kind ActivityEventType, userID string, meta map[string]any) {
	recordActivity(ctx, a.activitySink, a.logger, ActivityEvent{
		EventType:  kind,
		UserID:     userID,
		Metadata:   meta,
		OccurredAt: a.clock(),
	})
}

func validationError(err error) error {
	return errors.Wrap(err, errors.CategoryValidation, "validation failed").
		WithTextCode("VALIDATION_FAILED").
		WithCode(errors.CodeBadRequest)
}
