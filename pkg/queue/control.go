package queue

import (
	"context"
	"fmt"
)

// CommandKind enumerates the closed set of control commands.
type CommandKind string

const (
	CommandStatus CommandKind = "status"
	CommandClear  CommandKind = "clear"
	CommandStart  CommandKind = "start"
	CommandStop   CommandKind = "stop"
	CommandMode   CommandKind = "mode"
)

// Command is one administrative request from the control surface.
type Command struct {
	Kind CommandKind `json:"kind"`
	Mode Mode        `json:"mode,omitempty"` // only for CommandMode
}

// ControlResponse is the structured reply to a control command.
type ControlResponse struct {
	Status  *StatusReport `json:"status,omitempty"`
	Removed *int          `json:"removed,omitempty"`
	Mode    Mode          `json:"mode"`
	Running bool          `json:"running"`
}

type commandHandler func(ctx context.Context, cmd Command) (ControlResponse, error)

// commandHandlers builds the dispatch table. Commands outside this map
// are rejected; there is no open-ended dispatch.
func (c *Controller) commandHandlers() map[CommandKind]commandHandler {
	return map[CommandKind]commandHandler{
		CommandStatus: c.handleStatus,
		CommandClear:  c.handleClear,
		CommandStart:  c.handleStart,
		CommandStop:   c.handleStop,
		CommandMode:   c.handleMode,
	}
}

// Execute runs one control command and returns its structured response.
func (c *Controller) Execute(ctx context.Context, cmd Command) (ControlResponse, error) {
	handler, ok := c.handlers[cmd.Kind]
	if !ok {
		return ControlResponse{}, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Kind)
	}
	return handler(ctx, cmd)
}

// Status reports the full queue snapshot with mode and loop state.
func (c *Controller) Status() StatusReport {
	report := c.queue.Status()
	report.Mode = c.Mode()
	report.Processing = c.sched.Running()
	return report
}

func (c *Controller) handleStatus(_ context.Context, _ Command) (ControlResponse, error) {
	report := c.Status()
	return ControlResponse{
		Status:  &report,
		Mode:    report.Mode,
		Running: report.Processing,
	}, nil
}

func (c *Controller) handleClear(ctx context.Context, _ Command) (ControlResponse, error) {
	removed := c.queue.Clear(ctx)
	return ControlResponse{
		Removed: &removed,
		Mode:    c.Mode(),
		Running: c.sched.Running(),
	}, nil
}

func (c *Controller) handleStart(ctx context.Context, _ Command) (ControlResponse, error) {
	// The loop must outlive the control request that started it.
	if err := c.sched.Start(context.WithoutCancel(ctx)); err != nil {
		return ControlResponse{}, err
	}
	return ControlResponse{Mode: c.Mode(), Running: true}, nil
}

func (c *Controller) handleStop(_ context.Context, _ Command) (ControlResponse, error) {
	if err := c.sched.Stop(); err != nil {
		return ControlResponse{}, err
	}
	return ControlResponse{Mode: c.Mode(), Running: false}, nil
}

func (c *Controller) handleMode(_ context.Context, cmd Command) (ControlResponse, error) {
	if err := c.SetMode(cmd.Mode); err != nil {
		return ControlResponse{}, err
	}
	return ControlResponse{Mode: c.Mode(), Running: c.sched.Running()}, nil
}
