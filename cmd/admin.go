package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/master-pd/MARPD-MAX/config"
	"github.com/master-pd/MARPD-MAX/service"
	log "github.com/sirupsen/logrus"
)

// ErrUsage is returned when an admin command is called with bad arguments
var ErrUsage = errors.New("usage")

// Admin runs an operator command against the configured database
func Admin(ctx context.Context, out io.Writer, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: marpd [reconcile|pending|trx|decide|expire|games] [args...]", ErrUsage)
	}

	cfg := config.Get()
	ConfigureLogging(cfg)

	// Simulation never touches the database
	if args[0] == "games" {
		rounds := 100000
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return fmt.Errorf("%w: marpd games [rounds]", ErrUsage)
			}
			rounds = n
		}
		return PrintGames(out, cfg, rounds, service.CryptoRandom{})
	}

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	if _, err := rt.core.Registry.Rebuild(ctx); err != nil {
		return err
	}

	switch args[0] {
	case "reconcile":
		report, err := rt.core.Reconciler.ReconcileAll(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Checked %d balances, %d faults\n", report.Checked, len(report.Faults))
		for _, f := range report.Faults {
			fmt.Fprintf(out, "  %s %s: %s (expected %d, actual %d)\n", f.AccountID, f.Currency, f.Reason, f.Expected, f.Actual)
		}
		return nil

	case "pending":
		pending, err := rt.core.Payments.ListPending(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tACCOUNT\tDIRECTION\tMETHOD\tAMOUNT\tFEE\tTRX\tEXPIRES")
		for _, p := range pending {
			trx := "-"
			if p.TrxID != nil {
				trx = *p.TrxID
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d %s\t%d\t%s\t%s\n",
				p.ID, p.AccountID, p.Direction, p.Method, p.Amount, p.Currency, p.Fee, trx, p.ExpiresAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()

	case "trx":
		if len(args) != 3 {
			return fmt.Errorf("%w: marpd trx <request-id> <trx-id>", ErrUsage)
		}
		request, err := rt.core.Payments.RecordTrxID(ctx, args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Request %s matched to transfer %s\n", request.ID, *request.TrxID)
		return nil

	case "decide":
		if len(args) < 4 || (args[3] != "approve" && args[3] != "reject") {
			return fmt.Errorf("%w: marpd decide <request-id> <operator-id> approve|reject [reason]", ErrUsage)
		}
		reason := strings.Join(args[4:], " ")
		decision, err := rt.core.Payments.Decide(ctx, args[1], args[2], args[3] == "approve", reason)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Request %s is %s\n", decision.Request.ID, decision.Request.Status)
		return nil

	case "expire":
		n, err := rt.core.Payments.ExpireStale(ctx, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Expired %d requests\n", n)
		return nil

	default:
		log.WithField("command", args[0]).Warn("Unknown admin command")
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}
}

// PrintGames lists the game tables with their expected return and a
// simulated return over the given number of rounds at the minimum bet
func PrintGames(out io.Writer, cfg *config.Config, rounds int, rng service.RandomSource) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "GAME\tBET RANGE\tEXPECTED\tHOUSE EDGE\tSIMULATED\tCHI2 (DOF)")
	for _, table := range service.GameCatalog(cfg) {
		report, err := service.Simulate(table, rounds, table.MinBet, rng)
		if err != nil {
			return fmt.Errorf("failed to simulate %s: %w", table.Name, err)
		}
		fmt.Fprintf(w, "%s\t%d-%d\t%s\t%s\t%.4f\t%.2f (%d)\n",
			table.Name,
			table.MinBet, table.MaxBet,
			table.ExpectedReturn.StringFixed(4),
			table.HouseEdge().StringFixed(4),
			report.ObservedReturn,
			report.ChiSquared, report.DegreesOfFreedom(),
		)
	}
	return w.Flush()
}
