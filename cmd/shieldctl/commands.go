package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-print"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	shield "github.com/goliatone/go-shield"
)

type rootFlags struct {
	configPath string
	envFiles   []string
	dsn        string
	driver     string
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "shieldctl",
		Short:         "Manage users, roles and privileges",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to a yaml config file")
	root.PersistentFlags().StringSliceVar(&flags.envFiles, "env-file", nil, "env files to load (default .env when present)")
	root.PersistentFlags().StringVar(&flags.dsn, "dsn", "", "database dsn, overrides the config (sqlite://... or postgres://...)")
	root.PersistentFlags().StringVar(&flags.driver, "driver", "", "auth driver, overrides the config")

	root.AddCommand(
		migrateCommand(flags),
		seedCommand(flags),
		createUserCommand(flags),
		deleteUserCommand(flags),
		userStateCommand(flags, "suspend", "Suspend a user", func(ctx context.Context, a *shield.Admin, id uuid.UUID, reason string) error {
			_, err := a.SuspendUser(ctx, id, reason)
			return err
		}),
		userStateCommand(flags, "unsuspend", "Lift a suspension", func(ctx context.Context, a *shield.Admin, id uuid.UUID, _ string) error {
			_, err := a.UnsuspendUser(ctx, id)
			return err
		}),
		userStateCommand(flags, "verify", "Mark a user as verified", func(ctx context.Context, a *shield.Admin, id uuid.UUID, _ string) error {
			_, err := a.MarkVerified(ctx, id)
			return err
		}),
		createRoleCommand(flags),
		deleteRoleCommand(flags),
		listRolesCommand(flags),
		roleLinkCommand(flags, "assign-role", "Give a role to a user", (*shield.Admin).AssignRole),
		roleLinkCommand(flags, "revoke-role", "Take a role from a user", (*shield.Admin).RevokeRole),
		createPrivilegeCommand(flags),
		deletePrivilegeCommand(flags),
		listPrivilegesCommand(flags),
		privilegeLinkCommand(flags, "attach-privilege", "Grant a privilege to a role", (*shield.Admin).AttachPrivilege),
		privilegeLinkCommand(flags, "detach-privilege", "Remove a privilege from a role", (*shield.Admin).DetachPrivilege),
		purgeCommand(flags, "purge-roles", "Delete every role and assignment", (*shield.Admin).PurgeRoles),
		purgeCommand(flags, "purge-privileges", "Delete every privilege", (*shield.Admin).PurgePrivileges),
		loginCommand(flags),
		serveCommand(flags),
	)
	return root
}

// withApp loads the app for the duration of fn.
func withApp(cmd *cobra.Command, flags *rootFlags, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := loadApp(ctx, flags)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func migrateCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run the SQL migrations for the configured dialect",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				if err := a.persistence.ValidateDialects(ctx); err != nil {
					return err
				}
				if err := a.persistence.Migrate(ctx); err != nil {
					return err
				}
				printReport(cmd, a)
				fmt.Fprintln(cmd.OutOrStdout(), "schema ready")
				return nil
			})
		},
	}
}

func seedCommand(flags *rootFlags) *cobra.Command {
	var (
		file     string
		fixtures string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the default roles, the roles and privileges in --file, or load --fixtures",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				if fixtures != "" {
					return seedFixtures(ctx, cmd, a, fixtures)
				}

				data := shield.DefaultSeed(a.cfg)
				if file != "" {
					raw, err := os.ReadFile(file)
					if err != nil {
						return err
					}
					data = shield.SeedData{}
					if err := yaml.Unmarshal(raw, &data); err != nil {
						return fmt.Errorf("parse seed file: %w", err)
					}
				}
				if err := a.stack.Admin.Seed(ctx, data); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "seeded")
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "yaml file with privileges and roles")
	cmd.Flags().StringVar(&fixtures, "fixtures", "", "directory of table fixtures (*.yml) loaded as is")
	return cmd
}

// seedFixtures loads raw table fixtures. They bypass the mutation path, so
// the whole authorization cache is dropped afterwards and the default roles
// are ensured again.
func seedFixtures(ctx context.Context, cmd *cobra.Command, a *app, dir string) error {
	a.persistence.RegisterFixtures(os.DirFS(dir)).AddOptions(persistence.WithTrucateTables())
	if err := a.persistence.Seed(ctx); err != nil {
		return err
	}
	if err := a.stack.Cache.InvalidateAll(ctx); err != nil {
		return err
	}
	if err := a.stack.Admin.Seed(ctx, shield.DefaultSeed(a.cfg)); err != nil {
		return err
	}
	printReport(cmd, a)
	fmt.Fprintln(cmd.OutOrStdout(), "fixtures loaded")
	return nil
}

func printReport(cmd *cobra.Command, a *app) {
	if report := a.persistence.Report(); report != nil && !report.IsZero() {
		fmt.Fprintf(cmd.OutOrStdout(), "report: %s\n", report.String())
	}
}

func createUserCommand(flags *rootFlags) *cobra.Command {
	var (
		in    shield.NewUser
		roles []string
	)
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Register a user with the default role",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				user, err := a.stack.Admin.RegisterUser(ctx, in)
				if err != nil {
					return err
				}
				for _, slug := range roles {
					if err := a.stack.Admin.AssignRole(ctx, user.ID, slug); err != nil {
						return err
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), user.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringVar(&in.Mobile, "mobile", "", "mobile number")
	cmd.Flags().StringVar(&in.Password, "password", "", "password")
	cmd.Flags().BoolVar(&in.Verified, "verified", false, "mark the account verified")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "extra roles to assign")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func deleteUserCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-user <user>",
		Short: "Delete a user with their tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				user, err := findUser(ctx, a, args[0])
				if err != nil {
					return err
				}
				return a.stack.Admin.DeleteUser(ctx, user.ID)
			})
		},
	}
}

func userStateCommand(flags *rootFlags, use, short string, fn func(context.Context, *shield.Admin, uuid.UUID, string) error) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   use + " <user>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				user, err := findUser(ctx, a, args[0])
				if err != nil {
					return err
				}
				return fn(ctx, a.stack.Admin, user.ID, reason)
			})
		},
	}
	if use == "suspend" {
		cmd.Flags().StringVar(&reason, "reason", "", "suspension reason")
	}
	return cmd
}

func createRoleCommand(flags *rootFlags) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create-role <slug>",
		Short: "Create a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				if name == "" {
					name = args[0]
				}
				role, err := a.stack.Admin.CreateRole(ctx, shield.RoleInput{Name: name, Slug: args[0]})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), role.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

func deleteRoleCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-role <slug>",
		Short: "Delete a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				role, err := a.stack.Admin.FindRole(ctx, args[0])
				if err != nil {
					return err
				}
				return a.stack.Admin.DeleteRole(ctx, role.ID)
			})
		},
	}
}

func listRolesCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list-roles",
		Short: "List roles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				roles, err := a.stack.Admin.ListRoles(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, roles)
			})
		},
	}
}

func roleLinkCommand(flags *rootFlags, use, short string, fn func(*shield.Admin, context.Context, uuid.UUID, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <user> <role>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				user, err := findUser(ctx, a, args[0])
				if err != nil {
					return err
				}
				return fn(a.stack.Admin, ctx, user.ID, args[1])
			})
		},
	}
}

func createPrivilegeCommand(flags *rootFlags) *cobra.Command {
	var in shield.PrivilegeInput
	cmd := &cobra.Command{
		Use:   "create-privilege <slug>",
		Short: "Create a privilege",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				in.Slug = args[0]
				if in.Name == "" {
					in.Name = args[0]
				}
				p, err := a.stack.Admin.CreatePrivilege(ctx, in)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), p.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	return cmd
}

func deletePrivilegeCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-privilege <slug>",
		Short: "Delete a privilege",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				p, err := a.stack.Admin.FindPrivilege(ctx, args[0])
				if err != nil {
					return err
				}
				return a.stack.Admin.DeletePrivilege(ctx, p.ID)
			})
		},
	}
}

func listPrivilegesCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list-privileges",
		Short: "List privileges",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				ps, err := a.stack.Admin.ListPrivileges(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, ps)
			})
		},
	}
}

func privilegeLinkCommand(flags *rootFlags, use, short string, fn func(*shield.Admin, context.Context, string, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <role> <privilege>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				return fn(a.stack.Admin, ctx, args[0], args[1])
			})
		},
	}
}

func purgeCommand(flags *rootFlags, use, short string, fn func(*shield.Admin, context.Context) error) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("%s removes data, pass --yes to confirm", use)
			}
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				return fn(a.stack.Admin, ctx)
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm")
	return cmd
}

func loginCommand(flags *rootFlags) *cobra.Command {
	var login, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print the issued token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				res, err := a.stack.Orchestrator.Login(ctx, shield.Credentials{
					shield.CredentialLogin:    login,
					shield.CredentialPassword: password,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
	cmd.Flags().StringVar(&login, "login", "", "email, mobile or any configured credential field")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("login")
	return cmd
}

// findUser accepts a user id or a value of the first credential field.
func findUser(ctx context.Context, a *app, ref string) (*shield.User, error) {
	users := a.stack.Repos.Users()
	if id, err := uuid.Parse(ref); err == nil {
		return users.FindByID(ctx, id)
	}
	field := a.cfg.Fields()[0]
	if field == "email" {
		ref = strings.ToLower(ref)
	}
	return users.FindByField(ctx, field, ref)
}

func printJSON(cmd *cobra.Command, v any) error {
	_, err := fmt.Fprintln(cmd.OutOrStdout(), print.MaybeHighlightJSON(v))
	return err
}
