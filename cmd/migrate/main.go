// Command migrate применяет SQL-миграции схемы checkout: migrate [-dsn DSN] [-steps N] up|down|status.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/storage/postgres"
)

const dsnEnv = "CHECKOUT_POSTGRES_DSN"

type command string

const (
	commandUp     command = "up"
	commandDown   command = "down"
	commandStatus command = "status"
)

type invocation struct {
	cmd     command
	steps   int
	dsn     string
	timeout time.Duration
}

func parseArgs(args []string, getenv func(string) string) (invocation, error) {
	var inv invocation
	set := flag.NewFlagSet("migrate", flag.ContinueOnError)
	set.StringVar(&inv.dsn, "dsn", "", "PostgreSQL DSN (default $"+dsnEnv+")")
	set.IntVar(&inv.steps, "steps", 0, "migrations to apply; up defaults to all pending, down to one")
	set.DurationVar(&inv.timeout, "timeout", 30*time.Second, "overall deadline")
	if err := set.Parse(args); err != nil {
		return invocation{}, err
	}

	switch set.NArg() {
	case 0:
		inv.cmd = commandUp
	case 1:
		inv.cmd = command(strings.ToLower(set.Arg(0)))
	default:
		return invocation{}, fmt.Errorf("expected one command, got %q", set.Args())
	}
	if inv.cmd != commandUp && inv.cmd != commandDown && inv.cmd != commandStatus {
		return invocation{}, fmt.Errorf("unknown command %q: use up, down or status", inv.cmd)
	}
	if inv.steps < 0 {
		return invocation{}, errors.New("-steps must not be negative")
	}

	if inv.dsn = strings.TrimSpace(inv.dsn); inv.dsn == "" {
		inv.dsn = strings.TrimSpace(getenv(dsnEnv))
	}
	if inv.dsn == "" {
		return invocation{}, fmt.Errorf("no database: pass -dsn or set %s", dsnEnv)
	}
	return inv, nil
}

// schema: часть postgres.Store, которой управляет утилита.
type schema interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	MigrationStatus(ctx context.Context) (int64, int, error)
}

func main() {
	_ = godotenv.Load()

	inv, err := parseArgs(os.Args[1:], os.Getenv)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.WithError(err).Fatal("invalid arguments")
	}

	ctx, cancel := context.WithTimeout(context.Background(), inv.timeout)
	defer cancel()

	store, err := postgres.Open(ctx, inv.dsn)
	if err != nil {
		log.WithError(err).Fatal("cannot reach postgres")
	}
	defer store.Close()

	if err := execute(ctx, store, inv, os.Stdout); err != nil {
		log.WithError(err).WithField("command", inv.cmd).Fatal("migration failed")
	}
}

func execute(ctx context.Context, s schema, inv invocation, out io.Writer) error {
	switch inv.cmd {
	case commandUp:
		if err := s.MigrateUp(ctx, inv.steps); err != nil {
			return err
		}
	case commandDown:
		if err := s.MigrateDown(ctx, max(inv.steps, 1)); err != nil {
			return err
		}
	}

	version, applied, err := s.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	_, err = fmt.Fprintf(out, "%s: schema at version %d, %d migrations applied\n", inv.cmd, version, applied)
	return err
}
