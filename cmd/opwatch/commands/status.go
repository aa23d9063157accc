package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/opwatch/pkg/lib"
)

type StatusCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	view    string
	format  string
	refresh bool
}

// NewStatusCommand returns the status command.
func NewStatusCommand(rootCmd *RootCommand, app *kingpin.Application) *StatusCommand {
	c := &StatusCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("status", "Show the tracked tasks, the scan history or the statistics.")
	c.Cmd.Flag("view", "View to show (tasks, history, stats), defaults to the last used one.").EnumVar(&c.view, string(lib.ViewTasks), string(lib.ViewHistory), string(lib.ViewStats))
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)
	c.Cmd.Flag("refresh", "Fetch the statistics even if the cached ones are fresh.").BoolVar(&c.refresh)

	return c
}

func (c StatusCommand) Name() string { return c.Cmd.FullCommand() }

func (c StatusCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	client, err := c.rootCmd.newClient(ctx, clientOptions{})
	if err != nil {
		return err
	}
	defer client.Close()

	view := client.ActiveView(ctx)
	if c.view != "" {
		view = lib.View(c.view)
		if err := client.SetActiveView(ctx, view); err != nil {
			logger.Warningf("Could not remember selected view: %s", err)
		}
	}

	p := c.rootCmd.printer(c.format)
	switch view {
	case lib.ViewHistory:
		err = p.PrintHistory(client.ScanHistory())
	case lib.ViewStats:
		err = p.PrintStats(c.statistics(ctx, client))
	default:
		err = p.PrintTasks(client.Tasks())
	}
	if err != nil {
		return fmt.Errorf("could not print %s view: %w", view, err)
	}

	return nil
}

// statistics renders the cached statistics and only goes to the back office when they
// are stale or missing.
func (c StatusCommand) statistics(ctx context.Context, client *lib.Client) lib.StatsView {
	cached := client.Statistics(ctx)
	if cached.Fresh && !c.refresh {
		return cached
	}

	view, err := client.RefreshStatistics(ctx)
	if err != nil {
		if errors.Is(err, lib.ErrUnauthorized) {
			c.rootCmd.Logger.Errorf("Back office rejected the credentials: %s", err)
		}
		view.Err = err
	}

	return view
}
