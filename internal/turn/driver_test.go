package turn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/user/salesagent/internal/toolset"
	"github.com/user/salesagent/pkg/agents"
)

// fakeStream replays scripted events.
type fakeStream struct {
	events []agents.Event
	pos    int
	closed bool
}

func (s *fakeStream) Next() (agents.Event, error) {
	if s.pos >= len(s.events) {
		return agents.Event{}, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

func (s *fakeStream) Close() error { s.closed = true; return nil }

// fakeRunner records posted messages and serves scripted streams.
type fakeRunner struct {
	messages []string
	streams  []*fakeStream
	outputs  [][]agents.ToolOutput

	failCreateMessage bool
}

func (f *fakeRunner) CreateMessage(_ context.Context, threadID, role, content string) (*agents.Message, error) {
	if f.failCreateMessage {
		return nil, fmt.Errorf("message rejected")
	}
	f.messages = append(f.messages, content)
	return &agents.Message{ID: fmt.Sprintf("msg_%d", len(f.messages)), ThreadID: threadID, Role: role, Content: content}, nil
}

func (f *fakeRunner) CreateRunStream(_ context.Context, threadID, agentID string, opts agents.RunOptions) (agents.EventStream, error) {
	return f.nextStream()
}

func (f *fakeRunner) SubmitToolOutputsStream(_ context.Context, threadID, runID string, outputs []agents.ToolOutput) (agents.EventStream, error) {
	f.outputs = append(f.outputs, outputs)
	return f.nextStream()
}

func (f *fakeRunner) nextStream() (agents.EventStream, error) {
	if len(f.streams) == 0 {
		return nil, fmt.Errorf("no scripted stream")
	}
	s := f.streams[0]
	f.streams = f.streams[1:]
	return s, nil
}

// sqlTool returns canned rows for any query.
type sqlTool struct{ lastArgs string }

func (s *sqlTool) Name() string        { return "fetch_sales_data" }
func (s *sqlTool) Description() string { return "Query sales data" }
func (s *sqlTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`)
}
func (s *sqlTool) Execute(_ context.Context, args json.RawMessage) (string, error) {
	s.lastArgs = string(args)
	return `[{"region":"EUROPE","total":2800.75}]`, nil
}

func completedRun(id string) agents.Event {
	return agents.Event{Kind: agents.EventRunCompleted, Run: &agents.Run{ID: id, Status: "completed"}}
}

func requiresAction(id string, calls ...agents.ToolCall) agents.Event {
	run := &agents.Run{ID: id, Status: "requires_action", RequiredAction: &agents.RequiredAction{Type: "submit_tool_outputs"}}
	run.RequiredAction.SubmitToolOutputs.ToolCalls = calls
	return agents.Event{Kind: agents.EventRequiresAction, Run: run}
}

func newTestDriver(t *testing.T, svc Runner, registry *toolset.Registry, out io.Writer) *Driver {
	t.Helper()
	d, err := New(svc, registry, out, "gpt-4o", "agent_1", "thread_1", agents.RunOptions{
		MaxCompletionTokens: 10240,
		MaxPromptTokens:     20480,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return d
}

func TestPostMessageStreamsResponse(t *testing.T) {
	runner := &fakeRunner{streams: []*fakeStream{{events: []agents.Event{
		{Kind: agents.EventMessageDelta, Delta: "Sales by "},
		{Kind: agents.EventMessageDelta, Delta: "region"},
		completedRun("run_1"),
	}}}}

	var out bytes.Buffer
	d := newTestDriver(t, runner, toolset.NewRegistry(), &out)

	if err := d.PostMessage(context.Background(), "show sales by region"); err != nil {
		t.Fatalf("PostMessage failed: %v", err)
	}
	if got := out.String(); got != "Sales by region\n" {
		t.Errorf("unexpected output: %q", got)
	}
	if len(runner.messages) != 1 || runner.messages[0] != "show sales by region" {
		t.Errorf("unexpected posted messages: %v", runner.messages)
	}
}

func TestPostMessageDispatchesToolCalls(t *testing.T) {
	runner := &fakeRunner{streams: []*fakeStream{
		{events: []agents.Event{
			requiresAction("run_1", agents.ToolCall{
				ID:   "call_1",
				Type: "function",
				Function: agents.FunctionCall{
					Name:      "fetch_sales_data",
					Arguments: json.RawMessage(`{"query":"SELECT 1"}`),
				},
			}),
		}},
		{events: []agents.Event{
			{Kind: agents.EventMessageDelta, Delta: "Here are the results"},
			completedRun("run_1"),
		}},
	}}

	tool := &sqlTool{}
	registry := toolset.NewRegistry()
	registry.Register(tool)

	var out bytes.Buffer
	d := newTestDriver(t, runner, registry, &out)

	if err := d.PostMessage(context.Background(), "total revenue per region"); err != nil {
		t.Fatalf("PostMessage failed: %v", err)
	}

	if len(runner.outputs) != 1 {
		t.Fatalf("expected 1 tool output submission, got %d", len(runner.outputs))
	}
	submitted := runner.outputs[0]
	if len(submitted) != 1 || submitted[0].ToolCallID != "call_1" {
		t.Fatalf("unexpected submitted outputs: %+v", submitted)
	}
	if !strings.Contains(submitted[0].Output, "EUROPE") {
		t.Errorf("tool result not forwarded: %q", submitted[0].Output)
	}
	if !strings.Contains(tool.lastArgs, "SELECT 1") {
		t.Errorf("tool did not receive arguments: %q", tool.lastArgs)
	}
	if !strings.Contains(out.String(), "Here are the results") {
		t.Errorf("final response missing from output: %q", out.String())
	}
}

func TestPostMessageUnknownToolReportsError(t *testing.T) {
	runner := &fakeRunner{streams: []*fakeStream{
		{events: []agents.Event{
			requiresAction("run_1", agents.ToolCall{
				ID:       "call_1",
				Type:     "function",
				Function: agents.FunctionCall{Name: "mystery_tool"},
			}),
		}},
		{events: []agents.Event{completedRun("run_1")}},
	}}

	var out bytes.Buffer
	d := newTestDriver(t, runner, toolset.NewRegistry(), &out)

	if err := d.PostMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("PostMessage failed: %v", err)
	}
	if len(runner.outputs) != 1 {
		t.Fatalf("expected tool outputs despite unknown tool, got %d", len(runner.outputs))
	}
	if !strings.Contains(runner.outputs[0][0].Output, "unknown tool") {
		t.Errorf("expected unknown-tool error output, got %q", runner.outputs[0][0].Output)
	}
}

func TestPostMessageRunFailed(t *testing.T) {
	runner := &fakeRunner{streams: []*fakeStream{{events: []agents.Event{
		{Kind: agents.EventRunFailed, Run: &agents.Run{
			ID:        "run_1",
			Status:    "failed",
			LastError: &agents.RunError{Code: "server_error", Message: "boom"},
		}},
	}}}}

	d := newTestDriver(t, runner, toolset.NewRegistry(), io.Discard)

	err := d.PostMessage(context.Background(), "hi")
	if err == nil {
		t.Fatal("expected error for failed run")
	}
	if !strings.Contains(err.Error(), "server_error") {
		t.Errorf("expected run error detail, got %v", err)
	}
}

func TestPostMessageCreateMessageFailure(t *testing.T) {
	runner := &fakeRunner{failCreateMessage: true}
	d := newTestDriver(t, runner, toolset.NewRegistry(), io.Discard)

	if err := d.PostMessage(context.Background(), "hi"); err == nil {
		t.Fatal("expected error when posting the message fails")
	}
}

func TestPostMessageStreamEndsEarly(t *testing.T) {
	runner := &fakeRunner{streams: []*fakeStream{{events: []agents.Event{
		{Kind: agents.EventMessageDelta, Delta: "partial"},
	}}}}
	d := newTestDriver(t, runner, toolset.NewRegistry(), io.Discard)

	err := d.PostMessage(context.Background(), "hi")
	if err == nil {
		t.Fatal("expected error when the stream ends without a terminal event")
	}
}

func TestSequentialIdenticalMessagesBothAppend(t *testing.T) {
	runner := &fakeRunner{streams: []*fakeStream{
		{events: []agents.Event{completedRun("run_1")}},
		{events: []agents.Event{completedRun("run_2")}},
	}}
	d := newTestDriver(t, runner, toolset.NewRegistry(), io.Discard)

	ctx := context.Background()
	if err := d.PostMessage(ctx, "same question"); err != nil {
		t.Fatalf("first PostMessage failed: %v", err)
	}
	if err := d.PostMessage(ctx, "same question"); err != nil {
		t.Fatalf("second PostMessage failed: %v", err)
	}
	if len(runner.messages) != 2 {
		t.Fatalf("expected 2 appended messages, got %d", len(runner.messages))
	}
	if runner.messages[0] != runner.messages[1] {
		t.Error("identical content should append without deduplication")
	}
}

func TestDriverNotBusyAfterError(t *testing.T) {
	runner := &fakeRunner{
		failCreateMessage: true,
	}
	d := newTestDriver(t, runner, toolset.NewRegistry(), io.Discard)

	ctx := context.Background()
	if err := d.PostMessage(ctx, "hi"); err == nil {
		t.Fatal("expected error")
	}

	runner.failCreateMessage = false
	runner.streams = []*fakeStream{{events: []agents.Event{completedRun("run_1")}}}
	if err := d.PostMessage(ctx, "hi again"); err != nil {
		t.Fatalf("driver should be usable after a turn error: %v", err)
	}
}
