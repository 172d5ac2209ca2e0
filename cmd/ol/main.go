package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"orderline/internal/app"
	"orderline/internal/config"
	"orderline/internal/domain"
	"orderline/internal/engine/auth"
	"orderline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ol",
	Short: "Orderline CLI",
	Long: `Orderline moves storefront orders and design quotes through their status workflows.
- Orders: pending -> processing -> shipping -> shipped -> delivered (canceled is an exit).
- Quotes: pending -> reviewing -> quoted -> approved -> completed (rejected can be reopened).
- Shippers claim orders while shipping; designers claim quotes while pending or reviewing.
- Every change is recorded; view it with 'ol log tail'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ORDERLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", app.BootstrapAdminID, "actor identifier")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/orderline.yml)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(itemCmd(orderCommands))
	rootCmd.AddCommand(itemCmd(quoteCommands))
	rootCmd.AddCommand(notesCmd())
	rootCmd.AddCommand(actorCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(devCmd())
	rootCmd.AddCommand(configCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create orderline.yml and the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				fmt.Printf("%s exists; keeping it (use --force to overwrite)\n", path)
			} else {
				if err := os.MkdirAll(workspace, 0o755); err != nil {
					return err
				}
				if err := os.WriteFile(path, []byte(config.DefaultYAML), 0o644); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", path)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, _ auth.Subject) error {
				admin := viper.GetString("actor-id")
				if err := app.EnsureBootstrapAdmin(ctx, a.Engine, admin); err != nil {
					return err
				}
				fmt.Printf("%s is an admin\n", admin)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			cfg := a.Config
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("ORDERLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:   a.Engine,
				BasePath: basePath,
				Auth: server.AuthConfig{
					JWTSecret:              cfg.Auth.JWTSecret,
					AllowLegacyActorHeader: cfg.Auth.AllowLegacyActorHeader,
					TokenTTL:               cfg.Auth.TokenTTL,
				},
				RateLimit:   server.RateLimit{RPS: cfg.Server.RateLimit.RPS, Burst: cfg.Server.RateLimit.Burst},
				Log:         a.Log,
				Metrics:     a.Metrics,
				MetricsPath: cfg.Metrics.Path,
				Media:       a.Media,
				MediaDir:    a.MediaDir,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			a.Log.Info("serving orderline api",
				zap.String("addr", addr),
				zap.String("base_path", basePath),
				zap.Bool("metrics", a.Metrics != nil))
			fmt.Printf("Serving Orderline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect orderline.yml",
	}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(c)
			}
			out, err := c.YAML()
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig()
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})
	return cfg
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	if path := viper.GetString("config"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return config.FromYAML(data)
	}
	return config.LoadOptional(viper.GetString("workspace"))
}

func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.OpenWithConfig(ctx, viper.GetString("workspace"), cfg)
}

// withApp runs fn as the --actor-id actor.
func withApp(ctx context.Context, fn func(context.Context, *app.App, auth.Subject) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	s, err := a.Engine.Subject(ctx, viper.GetString("actor-id"))
	if err != nil {
		return err
	}
	return fn(ctx, a, s)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printItems(views []domain.ItemView) error {
	if viper.GetBool("json") {
		return printJSON(views)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Status", "Owner", "Assignee", "Amount", "Updated"})
	for _, v := range views {
		tw.AppendRow(table.Row{v.ID, v.Status, profileName(v.Owner, v.OwnerUserID), profileName(v.Assignee, deref(v.AssigneeID)), amount(v.WorkItem), v.UpdatedAt.Format(time.RFC3339)})
	}
	tw.Render()
	return nil
}

func printEvents(evts []domain.Event) error {
	if viper.GetBool("json") {
		return printJSON(evts)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Time", "Type", "Item", "Actor", "Payload"})
	for _, e := range evts {
		payload, _ := json.Marshal(e.Payload)
		tw.AppendRow(table.Row{e.ID, e.TS.Format(time.RFC3339), e.Type, string(e.Kind) + "/" + e.ItemID, e.ActorID, string(payload)})
	}
	tw.Render()
	return nil
}

func profileName(p *domain.Profile, fallback string) string {
	if p != nil && p.Name != "" {
		return p.Name
	}
	return fallback
}

// amount is the order total or the quoted price.
func amount(it domain.WorkItem) string {
	if it.QuotedPrice != nil {
		return it.QuotedPrice.String()
	}
	if p, ok := it.Payload.(*domain.OrderPayload); ok {
		return p.Total.String()
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optionalString(cmd *cobra.Command, flag, value string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}
