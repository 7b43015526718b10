package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"

	"rubberweigh/internal/config"
	"rubberweigh/internal/db"
	"rubberweigh/internal/migrate"
	"rubberweigh/internal/modules/deliveries/repository"
	"rubberweigh/internal/modules/deliveries/types"
)

const usage = `usage: %s <command>
  migrate                          apply pending schema migrations
  deliveries [-station ID] [-n N]  print the most recent forwarded records
`

var errUsage = errors.New("usage")

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, usage, os.Args[0])
		} else {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) < 1 {
		return errUsage
	}

	cfg, err := config.LoadGatewayFromEnv()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	conn, err := db.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(conn); closeErr != nil {
			logger.Error("db close", "err", closeErr)
		}
	}()

	switch args[0] {
	case "migrate":
		applied, err := migrate.Run(ctx, conn, logger)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		if len(applied) == 0 {
			fmt.Fprintln(out, "schema up to date")
			return nil
		}
		for _, name := range applied {
			fmt.Fprintf(out, "applied %s\n", name)
		}
		return nil
	case "deliveries":
		fs := flag.NewFlagSet("deliveries", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		station := fs.String("station", "", "only show this station")
		limit := fs.Int("n", 20, "number of rows")
		if err := fs.Parse(args[1:]); err != nil {
			return fmt.Errorf("deliveries: %w", err)
		}
		if *limit <= 0 {
			return fmt.Errorf("deliveries: -n must be positive, got %d", *limit)
		}
		rows, err := repository.NewRepository(conn).GetRecentDeliveries(ctx, *station, *limit)
		if err != nil {
			return fmt.Errorf("deliveries: %w", err)
		}
		printDeliveries(out, rows)
		return nil
	default:
		return fmt.Errorf("unknown command: %s: %w", args[0], errUsage)
	}
}

func printDeliveries(out io.Writer, rows []types.Delivery) {
	if len(rows) == 0 {
		fmt.Fprintln(out, "no deliveries")
		return
	}
	for _, d := range rows {
		status := "-"
		if d.Responded() {
			status = fmt.Sprintf("%d", d.StatusCode)
		}
		fmt.Fprintf(out, "%5d  %s  %-10s %-10s %-12s %-4s %-10s x%d  %s\n",
			d.ID,
			d.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			d.StationID,
			d.TagID,
			d.Payload,
			status,
			outcomeStyle(d.Outcome).Render(string(d.Outcome)),
			d.Attempts,
			d.Error,
		)
	}
}

func outcomeStyle(o types.Outcome) lipgloss.Style {
	switch o {
	case types.OutcomeDelivered:
		return okStyle
	case types.OutcomeRejected:
		return warnStyle
	default:
		return failStyle
	}
}
