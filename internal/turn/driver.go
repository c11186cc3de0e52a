// Package turn posts user turns to the agent thread and consumes the
// streamed run, dispatching function tool calls as they are requested.
package turn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/salesagent/internal/toolset"
	"github.com/user/salesagent/pkg/agents"
)

// Runner is the slice of the agents service the driver needs.
type Runner interface {
	CreateMessage(ctx context.Context, threadID, role, content string) (*agents.Message, error)
	CreateRunStream(ctx context.Context, threadID, agentID string, opts agents.RunOptions) (agents.EventStream, error)
	SubmitToolOutputsStream(ctx context.Context, threadID, runID string, outputs []agents.ToolOutput) (agents.EventStream, error)
}

// ErrRunOpen is returned when PostMessage is called while a run is already
// open on the thread.
var ErrRunOpen = errors.New("a run is already open on this thread")

// Driver executes one turn at a time against a single thread and agent.
type Driver struct {
	svc      Runner
	registry *toolset.Registry
	out      io.Writer

	agentID  string
	threadID string
	opts     agents.RunOptions

	tokenizer *tiktoken.Tiktoken
	busy      bool
}

// New creates a Driver bound to one agent and thread. model selects the
// tokenizer used for prompt budget estimates.
func New(svc Runner, registry *toolset.Registry, out io.Writer, model, agentID, threadID string, opts agents.RunOptions) (*Driver, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Driver{
		svc:       svc,
		registry:  registry,
		out:       out,
		agentID:   agentID,
		threadID:  threadID,
		opts:      opts,
		tokenizer: enc,
	}, nil
}

// PostMessage appends a user message to the thread, opens a streamed run,
// and consumes it to a terminal state, dispatching any requested tool calls
// along the way. It does not return until the run completes or fails. The
// returned error is a recoverable turn error: the session stays usable.
func (d *Driver) PostMessage(ctx context.Context, content string) error {
	if d.busy {
		return ErrRunOpen
	}
	d.busy = true
	defer func() { d.busy = false }()

	if d.opts.MaxPromptTokens > 0 {
		if n := len(d.tokenizer.Encode(content, nil, nil)); n > d.opts.MaxPromptTokens {
			slog.Warn("prompt exceeds the prompt token budget and may be truncated",
				"tokens", n, "budget", d.opts.MaxPromptTokens)
		}
	}

	if _, err := d.svc.CreateMessage(ctx, d.threadID, "user", content); err != nil {
		return fmt.Errorf("post message: %w", err)
	}

	stream, err := d.svc.CreateRunStream(ctx, d.threadID, d.agentID, d.opts)
	if err != nil {
		return fmt.Errorf("open run: %w", err)
	}
	defer func() {
		if stream != nil {
			stream.Close()
		}
	}()

	for {
		ev, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("run stream ended without a terminal event")
			}
			return fmt.Errorf("consume run stream: %w", err)
		}

		switch ev.Kind {
		case agents.EventMessageDelta:
			fmt.Fprint(d.out, ev.Delta)

		case agents.EventRequiresAction:
			outputs := d.dispatch(ctx, ev.Run)
			next, err := d.svc.SubmitToolOutputsStream(ctx, d.threadID, ev.Run.ID, outputs)
			if err != nil {
				return fmt.Errorf("submit tool outputs: %w", err)
			}
			stream.Close()
			stream = next

		case agents.EventRunCompleted:
			fmt.Fprintln(d.out)
			return nil

		case agents.EventRunFailed:
			if ev.Run != nil && ev.Run.LastError != nil {
				return fmt.Errorf("run failed: %s: %s", ev.Run.LastError.Code, ev.Run.LastError.Message)
			}
			return fmt.Errorf("run failed")

		case agents.EventDone:
			// Stream end marker arriving before a terminal run event.
			return fmt.Errorf("run stream ended without a terminal event")
		}
	}
}

// dispatch executes every requested tool call against the local registry.
// Execution errors become error strings in the output so the agent can react
// to them; they never abort the turn.
func (d *Driver) dispatch(ctx context.Context, run *agents.Run) []agents.ToolOutput {
	if run == nil || run.RequiredAction == nil {
		return nil
	}
	calls := run.RequiredAction.SubmitToolOutputs.ToolCalls
	outputs := make([]agents.ToolOutput, 0, len(calls))

	for _, call := range calls {
		tool, ok := d.registry.Get(call.Function.Name)
		var result string
		if !ok {
			result = fmt.Sprintf("error: unknown tool %q", call.Function.Name)
		} else {
			slog.Debug("dispatching tool call", "tool", call.Function.Name, "call_id", call.ID)
			var execErr error
			result, execErr = tool.Execute(ctx, call.Function.Arguments)
			if execErr != nil {
				result = fmt.Sprintf("error: %v", execErr)
			}
		}
		outputs = append(outputs, agents.ToolOutput{ToolCallID: call.ID, Output: result})
	}
	return outputs
}
