package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/craftbase/meridian/internal/clock"
	"github.com/craftbase/meridian/internal/config"
	"github.com/craftbase/meridian/internal/logger"
	"github.com/craftbase/meridian/internal/migration"
	"github.com/craftbase/meridian/internal/providers/notification"
	"github.com/craftbase/meridian/internal/settlement"
	settlementdomain "github.com/craftbase/meridian/internal/settlement/domain"
	"github.com/craftbase/meridian/internal/settlement/runner"
	"github.com/craftbase/meridian/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

type runFlags struct {
	ownerType   string
	ownerID     string
	periodStart string
	periodEnd   string
	migrate     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &runFlags{}

	root := &cobra.Command{
		Use:   "settlementd",
		Short: "Settlement batch runner",
		Long:  "Runs the settlement pass: with no flags it settles the previous calendar month for every eligible owner; with --owner-type and --owner it settles that single owner.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettlements(cmd.Context(), flags)
		},
	}

	root.Flags().StringVar(&flags.ownerType, "owner-type", "", "owner type for a single-owner run (SELLER, REVIEWER or EXPERT)")
	root.Flags().StringVar(&flags.ownerID, "owner", "", "owner id for a single-owner run")
	root.Flags().StringVar(&flags.periodStart, "period-start", "", "period start (RFC3339), defaults to the previous calendar month")
	root.Flags().StringVar(&flags.periodEnd, "period-end", "", "period end (RFC3339, exclusive)")
	root.Flags().BoolVar(&flags.migrate, "migrate", false, "run schema migrations before the pass")
	return root
}

// runSettlements returns an error only for setup failures. Per-owner unit
// failures live in the printed report and never change the exit code.
func runSettlements(ctx context.Context, flags *runFlags) error {
	var r *runner.Runner

	opts := []fx.Option{
		config.Module,
		logger.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		notification.Module,
		settlement.Module,
		fx.NopLogger,
		fx.Populate(&r),
	}
	if flags.migrate {
		opts = append(opts, migration.Module)
	}

	app := fx.New(opts...)

	startCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	report, err := executeRun(ctx, r, flags)
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

func executeRun(ctx context.Context, r *runner.Runner, flags *runFlags) (*runner.RunReport, error) {
	periodStart, periodEnd, err := resolvePeriod(flags)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(flags.ownerID) == "" {
		return r.Run(ctx, periodStart, periodEnd)
	}

	ownerID, err := snowflake.ParseString(strings.TrimSpace(flags.ownerID))
	if err != nil || ownerID == 0 {
		return nil, fmt.Errorf("invalid --owner %q", flags.ownerID)
	}
	ownerType := settlementdomain.OwnerType(strings.ToUpper(strings.TrimSpace(flags.ownerType)))
	return r.RunOwner(ctx, ownerType, ownerID, periodStart, periodEnd)
}

func resolvePeriod(flags *runFlags) (time.Time, time.Time, error) {
	if strings.TrimSpace(flags.periodStart) == "" && strings.TrimSpace(flags.periodEnd) == "" {
		periodStart, periodEnd := runner.PreviousMonth(time.Now())
		return periodStart, periodEnd, nil
	}

	periodStart, err := time.Parse(time.RFC3339, strings.TrimSpace(flags.periodStart))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --period-start: %w", err)
	}
	periodEnd, err := time.Parse(time.RFC3339, strings.TrimSpace(flags.periodEnd))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --period-end: %w", err)
	}
	return periodStart.UTC(), periodEnd.UTC(), nil
}

func registerSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
