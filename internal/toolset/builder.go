package toolset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/user/salesagent/pkg/agents"
)

// maxConcurrentUploads bounds parallel corpus uploads.
const maxConcurrentUploads = 4

// Uploader is the slice of the agents service the builder needs.
type Uploader interface {
	UploadFile(ctx context.Context, path, purpose string) (*agents.FileRef, error)
	CreateVectorStore(ctx context.Context, name string, fileIDs []string) (*agents.VectorStore, error)
	DeleteFile(ctx context.Context, id string) error
}

// Toolset is the composed, immutable set of tool descriptors an agent may
// invoke, plus the uploaded files backing them.
type Toolset struct {
	descriptors []agents.ToolDescriptor
	fileIDs     []string
}

// Descriptors returns the tool descriptors in composition order: function
// tools first, then file search, then code interpreter.
func (t *Toolset) Descriptors() []agents.ToolDescriptor {
	out := make([]agents.ToolDescriptor, len(t.descriptors))
	copy(out, t.descriptors)
	return out
}

// FileIDs returns the service file ids uploaded while assembling the toolset.
func (t *Toolset) FileIDs() []string {
	out := make([]string, len(t.fileIDs))
	copy(out, t.fileIDs)
	return out
}

// AssemblyError reports a failed toolset assembly. Err is the failing step's
// error; Rollback holds any errors hit while releasing already-uploaded files.
type AssemblyError struct {
	Step     string
	Err      error
	Rollback error
}

func (e *AssemblyError) Error() string {
	if e.Rollback != nil {
		return fmt.Sprintf("assemble toolset: %s: %v (rollback: %v)", e.Step, e.Err, e.Rollback)
	}
	return fmt.Sprintf("assemble toolset: %s: %v", e.Step, e.Err)
}

func (e *AssemblyError) Unwrap() error { return e.Err }

// Builder assembles the toolset for a session: the function tools from the
// registry, a file-search tool over a freshly built vector store, and a
// code-interpreter tool with an optional attached asset.
type Builder struct {
	svc       Uploader
	registry  *Registry
	corpus    []string
	assetPath string
	storeName string
}

// NewBuilder creates a Builder. assetPath may be empty when the code
// interpreter needs no attached asset.
func NewBuilder(svc Uploader, registry *Registry, corpus []string, assetPath, storeName string) *Builder {
	return &Builder{
		svc:       svc,
		registry:  registry,
		corpus:    corpus,
		assetPath: assetPath,
		storeName: storeName,
	}
}

// Assemble uploads the corpus, builds the vector store, and composes the
// toolset. It returns the attached asset's file reference when an asset path
// was configured, for later instruction rendering. On failure every file
// uploaded so far is deleted before the error is returned.
func (b *Builder) Assemble(ctx context.Context) (*Toolset, *agents.FileRef, error) {
	var uploaded []string

	fail := func(step string, err error) (*Toolset, *agents.FileRef, error) {
		return nil, nil, &AssemblyError{
			Step:     step,
			Err:      err,
			Rollback: b.release(ctx, uploaded),
		}
	}

	// Corpus uploads run in parallel; results keep corpus order.
	refs := make([]*agents.FileRef, len(b.corpus))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentUploads)
	for i, path := range b.corpus {
		i, path := i, path
		g.Go(func() error {
			ref, err := b.svc.UploadFile(gctx, path, "assistants")
			if err != nil {
				return fmt.Errorf("upload %s: %w", path, err)
			}
			refs[i] = ref
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, ref := range refs {
			if ref != nil {
				uploaded = append(uploaded, ref.ID)
			}
		}
		return fail("upload corpus", err)
	}

	fileIDs := make([]string, len(refs))
	for i, ref := range refs {
		fileIDs[i] = ref.ID
		uploaded = append(uploaded, ref.ID)
	}

	store, err := b.svc.CreateVectorStore(ctx, b.storeName, fileIDs)
	if err != nil {
		return fail("create vector store", err)
	}
	slog.Info("vector store created", "id", store.ID, "name", store.Name, "files", len(fileIDs))

	var asset *agents.FileRef
	if b.assetPath != "" {
		asset, err = b.svc.UploadFile(ctx, b.assetPath, "assistants")
		if err != nil {
			return fail("upload asset", err)
		}
		uploaded = append(uploaded, asset.ID)
	}

	descriptors := b.registry.Descriptors()
	descriptors = append(descriptors, agents.ToolDescriptor{
		Type:       agents.ToolTypeFileSearch,
		FileSearch: &agents.FileSearchDef{VectorStoreIDs: []string{store.ID}},
	})
	ci := &agents.CodeInterpreterDef{}
	if asset != nil {
		ci.FileIDs = []string{asset.ID}
	}
	descriptors = append(descriptors, agents.ToolDescriptor{
		Type:            agents.ToolTypeCodeInterpreter,
		CodeInterpreter: ci,
	})

	return &Toolset{descriptors: descriptors, fileIDs: uploaded}, asset, nil
}

// release deletes the given uploaded files, attempting every deletion and
// aggregating failures.
func (b *Builder) release(ctx context.Context, fileIDs []string) error {
	var errs []error
	for _, id := range fileIDs {
		if err := b.svc.DeleteFile(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
