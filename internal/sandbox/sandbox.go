// Package sandbox provides ephemeral, filesystem-rooted execution
// environments in which an agent runs commands, edits files and drives git.
//
// Containment is a logical path discipline layered over normal process
// execution:
//   - Every caller-supplied path is resolved (symlinks followed, . and ..
//     applied physically) and rejected if it leaves the sandbox root
//   - Commands run as ordinary child processes in their own process group
//   - Resource shapes are advisory and not enforced
//
// Caveats: there is no OS-level isolation (namespaces, cgroups, VMs), no
// network isolation and no per-tenant quota. A command that opens files by
// itself, or calls low-level system interfaces, is not confined by the path
// resolver and can read or write anything the host user can.
package sandbox

import (
	"context"
	"time"
)

// TimeoutExitCode is the exit code reported for a command killed because it
// exceeded its timeout.
const TimeoutExitCode = 124

// Provider is the backend-agnostic capability contract for sandbox
// lifecycle, command execution, file I/O and git operations.
//
// Paths are relative to the sandbox root, or absolute paths that resolve
// inside it.
type Provider interface {
	Create(ctx context.Context, req CreateRequest) (*Sandbox, error)
	Get(ctx context.Context, id string) (*Sandbox, error)
	List(ctx context.Context) ([]*Sandbox, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error

	Exec(ctx context.Context, id string, req ExecRequest) (*ExecResult, error)

	ReadFile(ctx context.Context, id, path string) ([]byte, error)
	WriteFile(ctx context.Context, id, path string, data []byte, opts WriteOptions) error
	ListFiles(ctx context.Context, id, path string) ([]FileEntry, error)
	Mkdirs(ctx context.Context, id, path string) error

	GitClone(ctx context.Context, id string, opts CloneOptions) error
	GitStatus(ctx context.Context, id, path string) (string, error)
	GitDiff(ctx context.Context, id, path string) (string, error)
	GitCheckoutNewBranch(ctx context.Context, id, path, branch string) error
	GitCommit(ctx context.Context, id, path, message string) (string, error)
	GitPush(ctx context.Context, id string, opts PushOptions) error

	// PreviewLink returns a reachable URL for a forwarded port, or "" when
	// the backend cannot expose one.
	PreviewLink(ctx context.Context, id string, port int) (string, error)
}

// Resources is the declared compute shape of a sandbox.
type Resources struct {
	VCPU      int `json:"vcpu" yaml:"vcpu"`
	MemoryGiB int `json:"memory_gib" yaml:"memory_gib"`
	DiskGiB   int `json:"disk_gib" yaml:"disk_gib"`
}

// DefaultResources mirrors the smallest managed sandbox shape.
var DefaultResources = Resources{VCPU: 2, MemoryGiB: 4, DiskGiB: 10}

// CreateRequest describes a sandbox to create.
type CreateRequest struct {
	Name      string
	Resources Resources
	// Image is a base image reference. Ignored by the local backend.
	Image string
	// Env holds defaults merged into every Exec, lowest precedence after
	// the provider's own environment.
	Env    map[string]string
	Labels map[string]string
}

// Sandbox is one live execution environment.
type Sandbox struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Root      string            `json:"root"`
	Resources Resources         `json:"resources"`
	Image     string            `json:"image,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// ExecRequest defines what to run inside a sandbox.
type ExecRequest struct {
	// Args is the program and its arguments. Never interpreted by a shell.
	Args []string

	// Dir is the working directory, resolved against the sandbox root.
	// Empty = the root.
	Dir string

	// Env overrides both the provider and sandbox environments.
	Env map[string]string

	// Timeout bounds the run. Zero = provider default.
	Timeout time.Duration
}

// ExecResult is the immutable outcome of one process invocation.
type ExecResult struct {
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"-"`
	TimedOut bool          `json:"timed_out"`
}

// DurationMS reports the wall-clock duration in milliseconds.
func (r *ExecResult) DurationMS() int64 { return r.Duration.Milliseconds() }

// FileEntry is one immediate child of a listed directory.
type FileEntry struct {
	Name    string    `json:"name"`
	IsDir   bool      `json:"is_dir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time,omitzero"`
}

// WriteOptions controls WriteFile.
type WriteOptions struct {
	Append bool
	// Mode, when non-zero, is applied to the file after writing.
	Mode uint32
}

// CloneOptions describes a git clone into a sandbox.
type CloneOptions struct {
	URL    string
	Path   string
	Branch string
	Auth   *Credential
}

// PushOptions describes a git push from a sandbox repository.
type PushOptions struct {
	Path string
	// Remote is either a configured remote name or a URL.
	Remote string
	Branch string
	Auth   *Credential
}
