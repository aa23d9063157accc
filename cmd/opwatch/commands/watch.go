package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"

	"github.com/slok/opwatch/internal/printer"
	"github.com/slok/opwatch/pkg/lib"
)

const notificationBuffer = 32

type WatchCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	interval     time.Duration
	pollInterval time.Duration
}

// NewWatchCommand returns the watch command.
func NewWatchCommand(rootCmd *RootCommand, app *kingpin.Application) *WatchCommand {
	c := &WatchCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("watch", "Follow the running jobs until they finish, printing notifications as they arrive.")
	c.Cmd.Flag("interval", "How often the followed jobs are checked for completion.").Default("1s").DurationVar(&c.interval)
	c.Cmd.Flag("poll-interval", "Job status poll interval, overrides the settings file.").DurationVar(&c.pollInterval)

	return c
}

func (c WatchCommand) Name() string { return c.Cmd.FullCommand() }

func (c WatchCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	if c.interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}

	notifications := make(chan lib.Notification, notificationBuffer)
	client, err := c.rootCmd.newClient(ctx, clientOptions{
		JobPollInterval: c.pollInterval,
		OnNotification: func(n lib.Notification) {
			select {
			case notifications <- n:
			default:
				logger.Warningf("Notification %d dropped, printer is too slow", n.ID)
			}
		},
	})
	if err != nil {
		return err
	}
	defer client.Close()

	p := printer.NewTablePrinter(c.rootCmd.Stdout)

	resumed, err := client.ResumeJobs(ctx)
	if err != nil {
		return fmt.Errorf("could not resume jobs: %w", err)
	}
	if client.FollowedJobs() == 0 {
		return p.PrintMessage("No running jobs to follow")
	}
	for _, t := range resumed {
		_ = p.PrintMessage(fmt.Sprintf("Following %s job: %s (%d%%)", t.Kind, t.ID, t.Progress))
	}
	client.EnsureStatsPolling()

	var g run.Group

	// Completion check.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				ticker := time.NewTicker(c.interval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
						if client.FollowedJobs() == 0 {
							logger.Debugf("No jobs left to follow")
							return nil
						}
					}
				}
			},
			func(_ error) {
				cancel()
			},
		)
	}

	// Notification printer.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				for {
					select {
					case <-ctx.Done():
						drainNotifications(p, notifications)
						return nil
					case n := <-notifications:
						_ = p.PrintNotifications([]lib.Notification{n})
					}
				}
			},
			func(_ error) {
				cancel()
			},
		)
	}

	if err := g.Run(); err != nil {
		return err
	}

	return p.PrintTasks(client.Tasks())
}

func drainNotifications(p printer.Printer, notifications <-chan lib.Notification) {
	for {
		select {
		case n := <-notifications:
			_ = p.PrintNotifications([]lib.Notification{n})
		default:
			return
		}
	}
}
