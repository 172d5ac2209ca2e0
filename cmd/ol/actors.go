package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"orderline/internal/app"
	"orderline/internal/domain"
	"orderline/internal/engine/auth"
	"orderline/internal/repo"
	"orderline/internal/server"
)

func actorCmd() *cobra.Command {
	actor := &cobra.Command{
		Use:   "actor",
		Short: "Manage actors, roles and credentials (admin)",
	}
	actor.AddCommand(actorAddCmd())
	actor.AddCommand(actorRoleCmd("grant", true))
	actor.AddCommand(actorRoleCmd("revoke", false))
	actor.AddCommand(actorListCmd())
	actor.AddCommand(actorTokenCmd())
	actor.AddCommand(actorKeyCmd())
	return actor
}

func actorAddCmd() *cobra.Command {
	var a domain.Actor
	var roles []string
	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Create or update an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.ID = args[0]
			for _, r := range roles {
				a.Roles = append(a.Roles, domain.Role(strings.TrimSpace(r)))
			}
			return withApp(cmd.Context(), func(ctx context.Context, ap *app.App, s auth.Subject) error {
				saved, err := ap.Engine.SaveActor(ctx, s, a)
				if err != nil {
					return err
				}
				return printJSONOrTable(saved)
			})
		},
	}
	cmd.Flags().StringVar(&a.Name, "name", "", "display name")
	cmd.Flags().StringVar(&a.Email, "email", "", "email")
	cmd.Flags().StringVar(&a.AvatarURL, "avatar-url", "", "avatar url")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "roles to grant (admin, shipper, designer, customer)")
	return cmd
}

func actorRoleCmd(use string, grant bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <actor-id> <role>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, s auth.Subject) error {
				change := a.Engine.RevokeRole
				if grant {
					change = a.Engine.GrantRole
				}
				updated, err := change(ctx, s, args[0], domain.Role(args[1]))
				if err != nil {
					return err
				}
				return printJSONOrTable(updated)
			})
		},
	}
}

func actorListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List actors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, s auth.Subject) error {
				actors, err := a.Engine.ListActors(ctx, s)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(actors)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Roles"})
				for _, ac := range actors {
					roles := make([]string, len(ac.Roles))
					for i, r := range ac.Roles {
						roles[i] = string(r)
					}
					tw.AppendRow(table.Row{ac.ID, ac.Name, ac.Email, strings.Join(roles, ",")})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func actorTokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <actor-id>",
		Short: "Mint a bearer token for an actor (needs ORDERLINE_JWT_SECRET)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, s auth.Subject) error {
				if !s.IsAdmin() {
					return fmt.Errorf("only admins may mint tokens")
				}
				target, err := a.Engine.Me(ctx, args[0])
				if err != nil {
					return err
				}
				if target.CreatedAt.IsZero() {
					return fmt.Errorf("actor %s not found", args[0])
				}
				if ttl <= 0 {
					ttl = a.Config.Auth.TokenTTL
				}
				token, err := server.SignToken(a.Config.Auth.JWTSecret, target.ID, target.Roles, ttl, time.Now().UTC())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"token": token, "actor_id": target.ID, "ttl": ttl.String()})
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default from config)")
	return cmd
}

func actorKeyCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "key <actor-id>",
		Short: "Issue an API key; it is printed once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, s auth.Subject) error {
				key, plain, err := a.Engine.CreateAPIKey(ctx, s, args[0], name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "actor_id": key.ActorID, "name": key.Name, "key": plain})
				}
				fmt.Printf("key %s for %s:\n%s\n", key.ID, key.ActorID, plain)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "label for the key")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Audit log",
		Long:  "Every create, transition, assignment and note change, newest first.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilter
	var kind string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Kind = domain.Kind(kind)
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, s auth.Subject) error {
				evts, err := a.Engine.AuditLog(ctx, s, f)
				if err != nil {
					return err
				}
				return printEvents(evts)
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter, e.g. item.transitioned")
	cmd.Flags().StringVar(&kind, "kind", "", "order or quote")
	cmd.Flags().StringVar(&f.ItemID, "item-id", "", "item id")
	return cmd
}
