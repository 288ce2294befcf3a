// turnadmin runs maintenance tasks against the turn-service database:
// statistics, activity reports, retention sweep, integrity check, position
// repair and JSON backup. It reads the same environment as the server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"turn-service/internal/maintenance"
	"turn-service/pkg/config"
	"turn-service/pkg/database"
	"turn-service/pkg/logger"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const usage = `Usage: turnadmin <command> [flags]

Commands:
  stats             system-wide counts
  activity [--org ID] [--days N]
                    per-organization activity, or tickets per day of one
                    organization over the last N days (default 7)
  sweep [--days N]  delete called tickets and snapshots older than N days
  check             report integrity problems, exit 2 when any are found
  repair            rewrite waiting positions as 1..N
  backup [--out F]  write all tables as JSON to F (default stdout)
`

// errProblems makes check exit non-zero without printing an error
var errProblems = errors.New("integrity problems found")

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, errProblems) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(os.Stderr, usage)
		return nil
	}

	cfg, err := config.Load("turnadmin")
	if err != nil {
		return err
	}
	if err := logger.InitLogger(&logger.LogConfig{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		ServiceName: cfg.ServiceName,
	}); err != nil {
		return err
	}
	log := logger.GetLogger()
	defer log.Sync()

	loc, err := cfg.Queue.Location()
	if err != nil {
		return err
	}

	db, err := database.InitDB(&cfg.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	svc := maintenance.NewService(db, maintenance.WithLocation(loc))
	log.Debug("Running admin command", zap.String("command", args[0]))
	return execute(ctx, svc, args, cfg.Queue.RetentionDays, os.Stdout)
}

// execute runs one command and writes its JSON result to out
func execute(ctx context.Context, svc *maintenance.Service, args []string, defaultDays int, out io.Writer) error {
	command, rest := args[0], args[1:]
	flags := pflag.NewFlagSet("turnadmin "+command, pflag.ContinueOnError)
	flags.SetOutput(io.Discard)

	switch command {
	case "stats":
		if err := flags.Parse(rest); err != nil {
			return err
		}
		ov, err := svc.Overview(ctx)
		if err != nil {
			return err
		}
		return writeJSON(out, ov)

	case "activity":
		orgID := flags.String("org", "", "organization for the per-day report")
		days := flags.IntP("days", "d", 7, "days covered by the per-day report")
		if err := flags.Parse(rest); err != nil {
			return err
		}
		if *orgID == "" {
			reports, err := svc.Activity(ctx)
			if err != nil {
				return err
			}
			return writeJSON(out, reports)
		}
		counts, err := svc.TicketsByDay(ctx, *orgID, *days)
		if err != nil {
			return err
		}
		return writeJSON(out, counts)

	case "sweep":
		days := flags.IntP("days", "d", defaultDays, "retention in days")
		if err := flags.Parse(rest); err != nil {
			return err
		}
		if *days < 0 {
			return fmt.Errorf("--days must not be negative, got %d", *days)
		}
		res, err := svc.Sweep(ctx, *days)
		if werr := writeJSON(out, res); werr != nil {
			return werr
		}
		return err

	case "check":
		if err := flags.Parse(rest); err != nil {
			return err
		}
		report, err := svc.IntegrityCheck(ctx)
		if err != nil {
			return err
		}
		if err := writeJSON(out, report); err != nil {
			return err
		}
		if !report.OK {
			return errProblems
		}
		return nil

	case "repair":
		if err := flags.Parse(rest); err != nil {
			return err
		}
		res, err := svc.Repair(ctx)
		if werr := writeJSON(out, res); werr != nil {
			return werr
		}
		return err

	case "backup":
		path := flags.StringP("out", "o", "", "output file, stdout when empty")
		if err := flags.Parse(rest); err != nil {
			return err
		}
		if *path == "" {
			_, err := svc.Export(ctx, out)
			return err
		}
		f, err := os.Create(*path)
		if err != nil {
			return fmt.Errorf("create backup file: %w", err)
		}
		backup, err := svc.Export(ctx, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		return writeJSON(out, map[string]interface{}{
			"file":            *path,
			"organizations":   len(backup.Organizations),
			"categories":      len(backup.Categories),
			"tickets":         len(backup.Tickets),
			"current_serving": len(backup.CurrentServing),
		})

	default:
		return fmt.Errorf("unknown command %q\n\n%s", command, usage)
	}
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
