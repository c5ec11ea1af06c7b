package taskwarrior

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
)

// Runner runs the task binary with args, feeding it stdin, and returns its
// standard output.
type Runner func(ctx context.Context, stdin io.Reader, args ...string) ([]byte, error)

type Client struct {
	// Args are passed before every command, for example rc overrides.
	Args []string
	run  Runner
}

// NewClient returns a client running the task binary found in PATH.
func NewClient(args ...string) *Client {
	return &Client{Args: args, run: execRunner("task")}
}

// NewClientWithRunner returns a client that runs commands through run.
func NewClientWithRunner(run Runner, args ...string) *Client {
	return &Client{Args: args, run: run}
}

func execRunner(bin string) Runner {
	return func(ctx context.Context, stdin io.Reader, args ...string) ([]byte, error) {
		cmd := exec.CommandContext(ctx, bin, args...)
		cmd.Stdin = stdin
		output, err := cmd.Output()
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				return nil, fmt.Errorf("taskwarrior command failed: exit code %d, %s, stderr: %s",
					exitErr.ExitCode(), err, exitErr.Stderr)
			}
			return nil, fmt.Errorf("taskwarrior command failed: %w", err)
		}
		return output, nil
	}
}

func (c *Client) command(args ...string) []string {
	out := append([]string{"rc.hooks=0", "rc.confirmation=off", "rc.verbose=nothing"}, c.Args...)
	return append(out, args...)
}

// GetTasks exports the tasks matching filter.
func (c *Client) GetTasks(ctx context.Context, filter []string) ([]Task, error) {
	args := append(append([]string(nil), filter...), "export")
	output, err := c.run(ctx, nil, c.command(args...)...)
	if err != nil {
		return nil, err
	}
	var tasks []Task
	if err := json.Unmarshal(output, &tasks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal taskwarrior output: %w", err)
	}
	return tasks, nil
}

// Import creates or replaces tasks by uuid.
func (c *Client) Import(ctx context.Context, tasks []Task) error {
	data, err := json.Marshal(tasks)
	if err != nil {
		return err
	}
	_, err = c.run(ctx, bytes.NewReader(data), c.command("import", "-")...)
	return err
}

// DeleteTask marks a task deleted.
func (c *Client) DeleteTask(ctx context.Context, uuid string) error {
	_, err := c.run(ctx, nil, c.command(uuid, "delete")...)
	return err
}

// ParseTasks parses every JSON object of r. Hooks send one line on add and
// two lines, old then new, on modify.
func (c *Client) ParseTasks(r io.Reader) ([]Task, error) {
	var tasks []Task
	decoder := json.NewDecoder(r)
	for {
		var task Task
		if err := decoder.Decode(&task); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode task json: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}
