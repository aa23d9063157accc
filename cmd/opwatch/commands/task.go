package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

type TaskForgetCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	id string
}

// NewTaskForgetCommand returns the task forget command.
func NewTaskForgetCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *TaskForgetCommand {
	c := &TaskForgetCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("forget", "Stop tracking a task, the remote operation is not affected.")
	c.Cmd.Arg("id", "Task ID (subject ID for scans, job ID for jobs).").Required().StringVar(&c.id)

	return c
}

func (c TaskForgetCommand) Name() string { return c.Cmd.FullCommand() }

func (c TaskForgetCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.newClient(ctx, clientOptions{})
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.ForgetTask(ctx, c.id); err != nil {
		return fmt.Errorf("could not forget task: %w", err)
	}

	return c.rootCmd.printer(formatTable).PrintMessage(fmt.Sprintf("Forgot task: %s", c.id))
}
