package toolset

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/user/salesagent/pkg/agents"
)

// fakeUploader records service calls and can be scripted to fail.
type fakeUploader struct {
	mu sync.Mutex

	uploads []string
	deleted []string
	stores  int

	failUpload      string // path whose upload fails
	failVectorStore bool
	failDelete      bool

	nextID int
}

func (f *fakeUploader) UploadFile(_ context.Context, path, purpose string) (*agents.FileRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if path == f.failUpload {
		return nil, fmt.Errorf("upload rejected")
	}
	f.nextID++
	id := fmt.Sprintf("file_%d", f.nextID)
	f.uploads = append(f.uploads, path)
	return &agents.FileRef{ID: id, Filename: path, Purpose: purpose}, nil
}

func (f *fakeUploader) CreateVectorStore(_ context.Context, name string, fileIDs []string) (*agents.VectorStore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failVectorStore {
		return nil, fmt.Errorf("vector store rejected")
	}
	f.stores++
	return &agents.VectorStore{ID: "vs_1", Name: name, FileIDs: fileIDs}, nil
}

func (f *fakeUploader) DeleteFile(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete {
		return fmt.Errorf("delete rejected")
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func TestAssembleComposesToolset(t *testing.T) {
	svc := &fakeUploader{}
	registry := NewRegistry()
	registry.Register(&echoTool{})

	b := NewBuilder(svc, registry, []string{"a.pdf", "b.pdf"}, "fonts.zip", "Product Info")
	ts, asset, err := b.Assemble(context.Background())
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	descs := ts.Descriptors()
	if len(descs) != 3 {
		t.Fatalf("expected 3 descriptors, got %d", len(descs))
	}
	if descs[0].Type != agents.ToolTypeFunction {
		t.Errorf("descriptor 0: expected function, got %s", descs[0].Type)
	}
	if descs[1].Type != agents.ToolTypeFileSearch {
		t.Errorf("descriptor 1: expected file_search, got %s", descs[1].Type)
	}
	if got := descs[1].FileSearch.VectorStoreIDs; len(got) != 1 || got[0] != "vs_1" {
		t.Errorf("file search should reference vs_1, got %v", got)
	}
	if descs[2].Type != agents.ToolTypeCodeInterpreter {
		t.Errorf("descriptor 2: expected code_interpreter, got %s", descs[2].Type)
	}

	if asset == nil {
		t.Fatal("expected an asset file ref")
	}
	if len(descs[2].CodeInterpreter.FileIDs) != 1 || descs[2].CodeInterpreter.FileIDs[0] != asset.ID {
		t.Errorf("code interpreter should attach asset %s, got %v", asset.ID, descs[2].CodeInterpreter.FileIDs)
	}

	if len(ts.FileIDs()) != 3 {
		t.Errorf("expected 3 uploaded file ids, got %d", len(ts.FileIDs()))
	}

	sort.Strings(svc.uploads)
	want := []string{"a.pdf", "b.pdf", "fonts.zip"}
	for i, p := range want {
		if svc.uploads[i] != p {
			t.Errorf("upload %d: expected %s, got %s", i, p, svc.uploads[i])
		}
	}
}

func TestAssembleNoAsset(t *testing.T) {
	svc := &fakeUploader{}
	b := NewBuilder(svc, NewRegistry(), []string{"a.pdf"}, "", "Product Info")

	ts, asset, err := b.Assemble(context.Background())
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if asset != nil {
		t.Errorf("expected no asset, got %+v", asset)
	}

	descs := ts.Descriptors()
	last := descs[len(descs)-1]
	if last.Type != agents.ToolTypeCodeInterpreter {
		t.Fatalf("expected code interpreter last, got %s", last.Type)
	}
	if len(last.CodeInterpreter.FileIDs) != 0 {
		t.Errorf("expected no attached files, got %v", last.CodeInterpreter.FileIDs)
	}
}

func TestAssembleVectorStoreFailureRollsBack(t *testing.T) {
	svc := &fakeUploader{failVectorStore: true}
	b := NewBuilder(svc, NewRegistry(), []string{"a.pdf", "b.pdf"}, "", "Product Info")

	_, _, err := b.Assemble(context.Background())
	if err == nil {
		t.Fatal("expected assembly error")
	}

	var asmErr *AssemblyError
	if !errors.As(err, &asmErr) {
		t.Fatalf("expected *AssemblyError, got %T", err)
	}
	if asmErr.Step != "create vector store" {
		t.Errorf("expected failing step 'create vector store', got %q", asmErr.Step)
	}
	if asmErr.Rollback != nil {
		t.Errorf("rollback should have succeeded, got %v", asmErr.Rollback)
	}
	if len(svc.deleted) != 2 {
		t.Errorf("expected 2 rolled-back files, got %d (%v)", len(svc.deleted), svc.deleted)
	}
}

func TestAssembleUploadFailureRollsBackPartialUploads(t *testing.T) {
	svc := &fakeUploader{failUpload: "b.pdf"}
	b := NewBuilder(svc, NewRegistry(), []string{"a.pdf", "b.pdf"}, "", "Product Info")

	_, _, err := b.Assemble(context.Background())
	if err == nil {
		t.Fatal("expected assembly error")
	}
	if svc.stores != 0 {
		t.Error("vector store must not be created after a failed upload")
	}
	// a.pdf may or may not have completed before b.pdf failed; whatever
	// uploaded must be released.
	if len(svc.deleted) != len(svc.uploads) {
		t.Errorf("expected %d rollback deletes, got %d", len(svc.uploads), len(svc.deleted))
	}
}

func TestAssembleRollbackFailureIsReported(t *testing.T) {
	svc := &fakeUploader{failVectorStore: true, failDelete: true}
	b := NewBuilder(svc, NewRegistry(), []string{"a.pdf"}, "", "Product Info")

	_, _, err := b.Assemble(context.Background())
	var asmErr *AssemblyError
	if !errors.As(err, &asmErr) {
		t.Fatalf("expected *AssemblyError, got %v", err)
	}
	if asmErr.Rollback == nil {
		t.Error("expected rollback failure to be reported")
	}
}
