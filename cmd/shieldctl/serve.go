package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	shield "github.com/goliatone/go-shield"
	"github.com/goliatone/go-shield/httpapi"
)

func serveCommand(flags *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the auth routes and metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				srv := newServer(a)

				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				go func() {
					<-ctx.Done()
					_ = srv.Shutdown()
				}()

				a.stack.Logger.Info("listening", "addr", addr, "driver", a.cfg.AuthDriver)
				return srv.Listen(addr)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

func newServer(a *app) *fiber.App {
	srv := fiber.New(fiber.Config{
		AppName:               "shield",
		DisableStartupMessage: true,
	})

	h := httpapi.New(a.stack.Orchestrator, a.stack.Cache, httpapi.Config{
		Prefix:    "/auth",
		Passwords: a.stack.Admin,
		Logger:    a.stack.Logger,
	})
	h.Register(srv)

	admin := srv.Group("/admin", h.Protected(), h.RequireRoles(a.cfg.AdminRoleSlug))
	admin.Get("/roles", func(c *fiber.Ctx) error {
		roles, err := a.stack.Admin.ListRoles(c.UserContext())
		if err != nil {
			return c.Status(shield.HTTPStatus(err)).JSON(fiber.Map{"error": 1, "code": shield.ErrorCode(err)})
		}
		return c.JSON(roles)
	})

	srv.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{})))
	return srv
}
