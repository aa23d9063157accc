package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/opwatch/internal/printer"
	"github.com/slok/opwatch/pkg/lib"
)

// JobStartCommand starts cleanup and validation jobs, they only differ on the options.
type JobStartCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand
	kind    lib.TaskKind

	subjectID    string
	dryRun       bool
	wait         bool
	pollInterval time.Duration
	format       string
}

// NewCleanupStartCommand returns the cleanup start command.
func NewCleanupStartCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *JobStartCommand {
	c := newJobStartCommand(rootCmd, parent, lib.TaskKindCleanup, "Start a cleanup of the detected anomalies.")
	c.Cmd.Flag("dry-run", "Report what would be cleaned without removing anything.").BoolVar(&c.dryRun)
	return c
}

// NewValidationStartCommand returns the validation start command.
func NewValidationStartCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *JobStartCommand {
	return newJobStartCommand(rootCmd, parent, lib.TaskKindValidation, "Start a validation of the subject models.")
}

func newJobStartCommand(rootCmd *RootCommand, parent *kingpin.CmdClause, kind lib.TaskKind, help string) *JobStartCommand {
	c := &JobStartCommand{rootCmd: rootCmd, kind: kind}

	c.Cmd = parent.Command("start", help)
	c.Cmd.Flag("subject", "Limit the job to a single subject ID.").StringVar(&c.subjectID)
	c.Cmd.Flag("wait", "Follow the job until it finishes.").BoolVar(&c.wait)
	c.Cmd.Flag("poll-interval", "Job status poll interval, overrides the settings file.").DurationVar(&c.pollInterval)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c JobStartCommand) Name() string { return c.Cmd.FullCommand() }

func (c JobStartCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	opts := clientOptions{JobPollInterval: c.pollInterval}

	// Only draw progress when a human is reading.
	var bar *printer.ProgressBar
	if c.wait && c.format == formatTable {
		bar = printer.NewProgressBar(c.rootCmd.Stderr)
		opts.OnTaskUpdate = func(t lib.Task) { bar.Update(t.Progress, t.Message) }
	}

	client, err := c.rootCmd.newClient(ctx, opts)
	if err != nil {
		return err
	}
	defer client.Close()

	var task lib.Task
	switch c.kind {
	case lib.TaskKindCleanup:
		task, err = client.StartCleanup(ctx, lib.CleanupOpts{SubjectID: c.subjectID, DryRun: c.dryRun})
	default:
		task, err = client.StartValidation(ctx, lib.ValidationOpts{SubjectID: c.subjectID})
	}
	if err != nil {
		return fmt.Errorf("could not start %s job: %w", c.kind, err)
	}
	logger.Infof("Started %s job %s", c.kind, task.ID)

	p := c.rootCmd.printer(c.format)
	if !c.wait {
		if c.format == formatJSON {
			return p.PrintTask(task)
		}
		return p.PrintMessage(fmt.Sprintf("Started %s job: %s (follow it with 'opwatch watch')", c.kind, task.ID))
	}

	task, err = client.WaitJob(ctx, task.ID)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return fmt.Errorf("could not wait for %s job: %w", c.kind, err)
	}

	if err := p.PrintTask(task); err != nil {
		return fmt.Errorf("could not print task: %w", err)
	}

	if task.State == lib.TaskStateError {
		return fmt.Errorf("%s job %s failed: %s", c.kind, task.ID, task.Error)
	}

	return nil
}
