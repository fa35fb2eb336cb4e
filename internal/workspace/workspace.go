// Package workspace allocates the ephemeral, request-scoped directories that
// hold one submission's source file and compiled artifact.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// SourceExt is the extension given to every source file.
const SourceExt = ".rs"

// Step names the workspace operation that failed.
type Step string

const (
	StepCreateDir  Step = "create directory"
	StepCreateFile Step = "create file"
	StepWriteFile  Step = "write file"
)

// Error reports a failed workspace operation.
type Error struct {
	Step Step
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("workspace %s %s: %v", e.Step, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Manager creates workspaces under a shared root directory.
type Manager struct {
	root     string
	active   atomic.Int64
	openFile func(path string) (io.WriteCloser, error)
}

// NewManager returns a Manager rooted at root. The root is created lazily on
// the first Create so that a missing or broken root surfaces per request.
func NewManager(root string) *Manager {
	return &Manager{root: root, openFile: createExclusive}
}

func createExclusive(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
}

// Root returns the directory all workspaces live under.
func (m *Manager) Root() string { return m.root }

// Active returns the number of workspaces not yet removed.
func (m *Manager) Active() int { return int(m.active.Load()) }

// Create allocates a new workspace and writes code verbatim into its source
// file. On failure nothing is left behind on disk.
func (m *Manager) Create(code string) (*Workspace, error) {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return nil, &Error{Step: StepCreateDir, Path: m.root, Err: err}
	}

	id := uuid.New().String()
	dir := filepath.Join(m.root, id)

	// Mkdir, not MkdirAll: an existing directory means an id collision.
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, &Error{Step: StepCreateDir, Path: dir, Err: err}
	}

	ws := &Workspace{id: id, dir: dir, manager: m}
	m.active.Add(1)

	if err := ws.writeSource(code); err != nil {
		ws.Remove()
		return nil, err
	}
	return ws, nil
}

// Workspace is one request's private directory.
type Workspace struct {
	id      string
	dir     string
	manager *Manager

	once      sync.Once
	removeErr error
}

// ID returns the workspace's unique identifier.
func (w *Workspace) ID() string { return w.id }

// Dir returns the absolute path of the workspace directory.
func (w *Workspace) Dir() string { return w.dir }

// SourceFile returns the source file name relative to Dir.
func (w *Workspace) SourceFile() string { return w.id + SourceExt }

// SourcePath returns the absolute path of the source file.
func (w *Workspace) SourcePath() string { return filepath.Join(w.dir, w.SourceFile()) }

// Artifact returns the compiled binary's name relative to Dir.
func (w *Workspace) Artifact() string { return w.id }

// ArtifactPath returns the absolute path of the compiled binary.
func (w *Workspace) ArtifactPath() string { return filepath.Join(w.dir, w.Artifact()) }

func (w *Workspace) writeSource(code string) error {
	path := w.SourcePath()
	f, err := w.manager.openFile(path)
	if err != nil {
		return &Error{Step: StepCreateFile, Path: path, Err: err}
	}

	_, werr := io.WriteString(f, code)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		return &Error{Step: StepWriteFile, Path: path, Err: err}
	}
	return nil
}

// Remove deletes the workspace directory and everything in it. Only the
// first call does any work; later calls return the first call's result.
func (w *Workspace) Remove() error {
	w.once.Do(func() {
		w.removeErr = os.RemoveAll(w.dir)
		w.manager.active.Add(-1)
	})
	return w.removeErr
}
