package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/opwatch/pkg/lib"
)

type ScanRunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	subjectID string
	format    string
}

// NewScanRunCommand returns the scan run command.
func NewScanRunCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *ScanRunCommand {
	c := &ScanRunCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("run", "Scan a subject for anomalies and wait for the result.")
	c.Cmd.Arg("subject", "Subject (model) ID to scan.").Required().StringVar(&c.subjectID)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c ScanRunCommand) Name() string { return c.Cmd.FullCommand() }

func (c ScanRunCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	client, err := c.rootCmd.newClient(ctx, clientOptions{})
	if err != nil {
		return err
	}
	defer client.Close()

	task, err := client.Scan(ctx, c.subjectID)
	if err != nil {
		if errors.Is(err, lib.ErrAlreadyRunning) {
			return fmt.Errorf("subject %s is already being scanned, use 'task forget' if the previous scan never finished: %w", c.subjectID, err)
		}
		return fmt.Errorf("could not scan subject: %w", err)
	}
	logger.Debugf("Scan of %s finished in %s state", task.ID, task.State)

	p := c.rootCmd.printer(c.format)
	if err := p.PrintTask(task); err != nil {
		return fmt.Errorf("could not print task: %w", err)
	}

	if c.format == formatTable {
		if err := p.PrintNotifications(client.Notifications()); err != nil {
			return fmt.Errorf("could not print notifications: %w", err)
		}
	}

	if task.State == lib.TaskStateError {
		return fmt.Errorf("scan of %s failed: %s", task.ID, task.Error)
	}

	return nil
}
