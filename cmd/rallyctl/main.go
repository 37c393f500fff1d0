// Command rallyctl performs the operator-only mutations and reads the
// leaderboard straight from the database.
//
// Usage:
//
//	rallyctl [-db path] [-env file] set-weight -team <id> -user <id> -weight <float>
//	rallyctl [-db path] [-env file] set-new -user <id> -new=<bool>
//	rallyctl [-db path] [-env file] rankings [-limit N]
//
// The database path defaults to DB_PATH (from the environment or the env
// file, .env unless -env says otherwise).
// Run it against a live server's database: WAL mode lets both write.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/sakif/teamrally/internal/clock"
	"github.com/sakif/teamrally/internal/config"
	"github.com/sakif/teamrally/internal/ranking"
	sqliteRepo "github.com/sakif/teamrally/internal/repository/sqlite"
	"github.com/sakif/teamrally/internal/scoring"
	"github.com/sakif/teamrally/internal/service"
)

var errUsage = errors.New("usage: rallyctl [-db path] <set-weight|set-new|rankings> [flags]")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "rallyctl:", err)
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("rallyctl", flag.ContinueOnError)
	global.SetOutput(stderr)
	dbPath := global.String("db", "", "path to the SQLite database (default DB_PATH)")
	envFile := global.String("env", ".env", "env file to read settings from")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		return errUsage
	}
	cmd, cmdArgs := global.Arg(0), global.Args()[1:]

	// Flags are parsed first so -h and usage errors never depend on the env file.
	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	if *dbPath == "" {
		*dbPath = cfg.DBPath
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	db, err := sqliteRepo.New(ctx, *dbPath, clock.NewMonotonic())
	if err != nil {
		return err
	}
	defer db.Close()

	ops := service.NewOperatorService(db, db, logger)

	switch cmd {
	case "set-weight":
		return setWeight(ctx, ops, cmdArgs, stdout, stderr)
	case "set-new":
		return setNew(ctx, ops, cmdArgs, stdout, stderr)
	case "rankings":
		return printRankings(ctx, db, cfg, logger, cmdArgs, stdout, stderr)
	}
	return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
}

func setWeight(ctx context.Context, ops *service.OperatorService, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("set-weight", flag.ContinueOnError)
	fs.SetOutput(stderr)
	teamID := fs.String("team", "", "team id")
	userID := fs.String("user", "", "user id")
	weight := fs.Float64("weight", 1.0, "membership weight")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *teamID == "" || *userID == "" {
		return fmt.Errorf("set-weight needs -team and -user: %w", errUsage)
	}

	if err := ops.SetMemberWeight(ctx, *teamID, *userID, *weight); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "weight of %s in %s set to %s\n", *userID, *teamID,
		strconv.FormatFloat(*weight, 'g', -1, 64))
	return nil
}

func setNew(ctx context.Context, ops *service.OperatorService, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("set-new", flag.ContinueOnError)
	fs.SetOutput(stderr)
	userID := fs.String("user", "", "user id")
	isNew := fs.Bool("new", false, "value of the is_new flag")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		return fmt.Errorf("set-new needs -user: %w", errUsage)
	}

	if err := ops.SetUserNew(ctx, *userID, *isNew); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "is_new of %s set to %t\n", *userID, *isNew)
	return nil
}

func printRankings(ctx context.Context, db *sqliteRepo.DB, cfg *config.Config, logger *slog.Logger, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("rankings", flag.ContinueOnError)
	fs.SetOutput(stderr)
	limit := fs.Int("limit", ranking.DefaultLimit, "number of teams to show (1..100)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	engine, err := scoring.New(cfg.ScoreAlpha, cfg.ScoreBeta)
	if err != nil {
		return err
	}
	entries, err := ranking.NewService(db, engine, logger,
		ranking.WithWorkers(cfg.RankingWorkers),
	).TopRankings(ctx, *limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tTEAM ID\tNAME\tSCORE")
	for i, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.3f\n", i+1, e.TeamID, e.TeamName, e.Score)
	}
	return tw.Flush()
}
