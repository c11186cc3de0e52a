// Package session owns the lifecycle of one agent session: provisioning the
// remote agent and thread, and tearing remote resources down on exit.
package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/user/salesagent/internal/instructions"
	"github.com/user/salesagent/internal/toolset"
	"github.com/user/salesagent/pkg/agents"
)

// Service is the slice of the agents service the manager needs.
type Service interface {
	CreateAgent(ctx context.Context, req agents.CreateAgentRequest) (*agents.Agent, error)
	CreateThread(ctx context.Context) (*agents.Thread, error)
	ListFiles(ctx context.Context) ([]agents.FileRef, error)
	DeleteFile(ctx context.Context, id string) error
	DeleteThread(ctx context.Context, id string) error
	DeleteAgent(ctx context.Context, id string) error
}

// DataEngine is the external data-query collaborator.
type DataEngine interface {
	Connect(ctx context.Context) error
	SchemaDescription(ctx context.Context) (string, error)
	Close() error
}

// Options carries the agent-creation settings.
type Options struct {
	Deployment  string
	AgentName   string
	Temperature float32
}

// Manager drives the session state machine from uninitialized through an
// open session to teardown.
type Manager struct {
	svc      Service
	builder  *toolset.Builder
	renderer *instructions.Renderer // nil when no template was selected
	data     DataEngine
	opts     Options

	state           State
	toolset         *toolset.Toolset
	dispatchEnabled bool
}

// NewManager wires the manager's collaborators. renderer may be nil, which
// makes Initialize abort before creating any remote resource.
func NewManager(svc Service, builder *toolset.Builder, renderer *instructions.Renderer, data DataEngine, opts Options) *Manager {
	return &Manager{
		svc:      svc,
		builder:  builder,
		renderer: renderer,
		data:     data,
		opts:     opts,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State { return m.state }

// Toolset returns the toolset assembled during initialization, or nil before
// a successful Initialize.
func (m *Manager) Toolset() *toolset.Toolset { return m.toolset }

// Initialize assembles the toolset, renders the instructions, and provisions
// the agent and thread. It returns (nil, nil) without creating any remote
// resource when no instruction template is selected or no model deployment
// is configured, and (nil, nil) after logging on any provisioning error.
// Initialization failure is always reported as "no session", never a crash.
func (m *Manager) Initialize(ctx context.Context) (*agents.Agent, *agents.Thread) {
	m.transition(StateConfiguring)

	if m.renderer == nil {
		slog.Error("no instruction template selected; set instructions.template in the config")
		m.transition(StateUninitialized)
		return nil, nil
	}
	if m.opts.Deployment == "" {
		slog.Error("model deployment is not configured; set service.deployment in the config")
		m.transition(StateUninitialized)
		return nil, nil
	}

	agent, thread, err := m.provision(ctx)
	if err != nil {
		slog.Error("initializing the agent failed", "error", err)
		m.transition(StateUninitialized)
		return nil, nil
	}

	m.transition(StateProvisioned)
	m.transition(StateOpen)
	return agent, thread
}

func (m *Manager) provision(ctx context.Context) (*agents.Agent, *agents.Thread, error) {
	ts, asset, err := m.builder.Assemble(ctx)
	if err != nil {
		return nil, nil, err
	}
	m.toolset = ts

	if err := m.data.Connect(ctx); err != nil {
		return nil, nil, err
	}
	schema, err := m.data.SchemaDescription(ctx)
	if err != nil {
		return nil, nil, err
	}

	assetID := ""
	if asset != nil {
		assetID = asset.ID
	}
	rendered, err := m.renderer.Render(schema, assetID)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("creating agent", "name", m.opts.AgentName, "deployment", m.opts.Deployment)
	agent, err := m.svc.CreateAgent(ctx, agents.CreateAgentRequest{
		Model:        m.opts.Deployment,
		Name:         m.opts.AgentName,
		Instructions: rendered,
		Tools:        ts.Descriptors(),
		Temperature:  m.opts.Temperature,
	})
	if err != nil {
		return nil, nil, err
	}
	slog.Info("agent created", "id", agent.ID)

	// Function tool calls raised during a run are dispatched to the local
	// registry by the turn driver; flip it on for the life of the session.
	m.dispatchEnabled = true
	slog.Info("automatic tool dispatch enabled")

	thread, err := m.svc.CreateThread(ctx)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("thread created", "id", thread.ID)

	return agent, thread, nil
}

// DispatchEnabled reports whether automatic tool dispatch was enabled for
// the session's toolset.
func (m *Manager) DispatchEnabled() bool { return m.dispatchEnabled }

// Cleanup deletes every file held by the service, then the thread, then the
// agent, and closes the data engine. Each deletion is attempted regardless
// of earlier failures; the failures are aggregated into the returned error.
func (m *Manager) Cleanup(ctx context.Context, agent *agents.Agent, thread *agents.Thread) error {
	m.transition(StateTerminating)

	var errs []error

	files, err := m.svc.ListFiles(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	for _, f := range files {
		if err := m.svc.DeleteFile(ctx, f.ID); err != nil {
			errs = append(errs, err)
		}
	}

	if thread != nil {
		if err := m.svc.DeleteThread(ctx, thread.ID); err != nil {
			errs = append(errs, err)
		}
	}
	if agent != nil {
		if err := m.svc.DeleteAgent(ctx, agent.ID); err != nil {
			errs = append(errs, err)
		}
	}

	if err := m.data.Close(); err != nil {
		errs = append(errs, err)
	}

	m.transition(StateClosed)
	return errors.Join(errs...)
}

// Save ends the session without deleting any remote resource, leaving the
// agent available for continued external use. The data engine is still
// closed.
func (m *Manager) Save() error {
	m.transition(StateTerminating)
	err := m.data.Close()
	m.transition(StateSaved)
	return err
}
