package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"apartel/internal/app"
	"apartel/internal/services"
	"apartel/pkg/config"
	"apartel/pkg/jwt"
	"apartel/pkg/logger"

	"github.com/google/subcommands"
)

// withApp 装配运行时后执行 fn，结果以 JSON 输出到 stdout
func withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) (interface{}, error)) subcommands.ExitStatus {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if err := logger.Initialize(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	a, err := app.New(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	result, err := fn(ctx, a)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return printJSON(result)
}

func printJSON(v interface{}) subcommands.ExitStatus {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type reconcileCmd struct {
	tenant string
}

func (*reconcileCmd) Name() string     { return "reconcile" }
func (*reconcileCmd) Synopsis() string { return "align channel mappings and iCal feeds with the unit roster" }
func (*reconcileCmd) Usage() string {
	return `apartelctl reconcile [-tenant <id>]

  Creates missing channel mappings and iCal connections and refreshes
  renamed units. Without -tenant every tenant is reconciled.
`
}

func (c *reconcileCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.tenant, "tenant", "", "Tenant to reconcile (defaults to all tenants).")
}

func (c *reconcileCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(ctx context.Context, a *app.App) (interface{}, error) {
		if c.tenant != "" {
			return a.Channels.Reconcile(ctx, c.tenant)
		}
		ok := a.ChannelReconcileScheduler().RunOnce(ctx)
		return map[string]int{"reconciledTenants": ok}, nil
	})
}

type icalSyncCmd struct{}

func (*icalSyncCmd) Name() string     { return "ical-sync" }
func (*icalSyncCmd) Synopsis() string { return "run one iCal sync pass over all tenants" }
func (*icalSyncCmd) Usage() string {
	return `apartelctl ical-sync

  Fetches every configured import feed once and stamps lastSync on
  success, exactly as the scheduled job does.
`
}

func (*icalSyncCmd) SetFlags(*flag.FlagSet) {}

func (*icalSyncCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(ctx context.Context, a *app.App) (interface{}, error) {
		return a.ICalSyncScheduler().RunOnce(ctx)
	})
}

type syncIncomeCmd struct {
	tenant   string
	unit     string
	currency string
}

func (*syncIncomeCmd) Name() string     { return "sync-income" }
func (*syncIncomeCmd) Synopsis() string { return "record income transactions for confirmed bookings of a unit" }
func (*syncIncomeCmd) Usage() string {
	return `apartelctl sync-income -tenant <id> -unit <id> [-currency <code>]
`
}

func (c *syncIncomeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.tenant, "tenant", "", "Tenant owning the unit.")
	f.StringVar(&c.unit, "unit", "", "Unit whose bookings are synced.")
	f.StringVar(&c.currency, "currency", "", "ISO currency code (defaults to the tenant currency).")
}

func (c *syncIncomeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.tenant == "" || c.unit == "" {
		fmt.Fprintln(os.Stderr, "-tenant and -unit are required")
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(ctx context.Context, a *app.App) (interface{}, error) {
		return a.Transactions.SyncUnitIncome(ctx, c.tenant, c.unit, services.IncomeSyncOptions{Currency: c.currency})
	})
}

type tokenCmd struct {
	tenant   string
	user     string
	username string
	ttl      time.Duration
}

func (*tokenCmd) Name() string     { return "token" }
func (*tokenCmd) Synopsis() string { return "issue a tenant-scoped access token" }
func (*tokenCmd) Usage() string {
	return `apartelctl token -tenant <id> [-user <id>] [-username <name>] [-ttl 24h]
`
}

func (c *tokenCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.tenant, "tenant", "", "Tenant the token is scoped to.")
	f.StringVar(&c.user, "user", "cli", "User ID claim.")
	f.StringVar(&c.username, "username", "cli", "Username claim.")
	f.DurationVar(&c.ttl, "ttl", 0, "Token lifetime (defaults to JWT_TOKEN_DURATION).")
}

func (c *tokenCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.tenant == "" {
		fmt.Fprintln(os.Stderr, "-tenant is required")
		return subcommands.ExitUsageError
	}

	manager := jwt.GetJWTManager()
	if c.ttl > 0 {
		manager = jwt.NewJWTManager(config.GetConfig().JWT.SecretKey, c.ttl)
	}
	token, err := manager.GenerateToken(c.user, c.tenant, c.username)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Println(token)
	return subcommands.ExitSuccess
}
