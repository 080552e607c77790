package sandbox

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultSandboxName = "sandbox"

// Registry is the in-memory mapping from sandbox identifier to root
// directory. It owns creation and removal of the roots under OwnerDir, a
// per-registry directory inside BaseDir guarded by a lock file, so several
// processes can share one base dir without sweeping each other's roots.
//
// Identifiers are never reissued: deleted identifiers are remembered so a
// second Delete is a no-op and every other operation keeps failing with
// ErrUnknownSandbox.
type Registry struct {
	baseDir  string
	ownerDir string
	owner    *ownerLock

	mu      sync.RWMutex
	live    map[string]*Sandbox
	deleted map[string]struct{}
	newID   func(name string) string
	now     func() time.Time
}

// NewRegistry creates a registry whose roots live under a new owner
// directory in baseDir. baseDir is created if needed and canonicalized.
// Close releases the owner directory.
func NewRegistry(baseDir string) (*Registry, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating sandbox base dir: %w", err)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving sandbox base dir: %w", err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolving sandbox base dir: %w", err)
	}
	owner, err := acquireOwner(canonical)
	if err != nil {
		return nil, err
	}
	return &Registry{
		baseDir:  canonical,
		ownerDir: filepath.Join(canonical, owner.name),
		owner:    owner,
		live:     make(map[string]*Sandbox),
		deleted:  make(map[string]struct{}),
		newID:    randomID,
		now:      time.Now,
	}, nil
}

// BaseDir returns the canonical directory shared by all registries.
func (r *Registry) BaseDir() string { return r.baseDir }

// OwnerDir returns the directory holding this registry's sandbox roots.
func (r *Registry) OwnerDir() string { return r.ownerDir }

// Close releases the owner directory. Roots still present become orphans
// for the next sweep by any registry on the same base dir.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owner.release(r.baseDir)
}

// Create allocates an identifier and materializes its root directory.
// The root must not already exist.
func (r *Registry) Create(req CreateRequest) (*Sandbox, error) {
	name := sanitizeName(req.Name)

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID(name)
	if _, taken := r.live[id]; taken {
		return nil, fmt.Errorf("%w: identifier %s already allocated", ErrSandboxCreation, id)
	}
	if _, taken := r.deleted[id]; taken {
		return nil, fmt.Errorf("%w: identifier %s already used", ErrSandboxCreation, id)
	}

	root := filepath.Join(r.ownerDir, id)
	if err := os.Mkdir(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSandboxCreation, err)
	}

	resources := req.Resources
	if resources == (Resources{}) {
		resources = DefaultResources
	}

	sb := &Sandbox{
		ID:        id,
		Name:      name,
		Root:      root,
		Resources: resources,
		Image:     req.Image,
		Env:       maps.Clone(req.Env),
		Labels:    maps.Clone(req.Labels),
		CreatedAt: r.now(),
	}
	r.live[id] = sb
	return sb.clone(), nil
}

// Get returns a copy of the sandbox registered under id.
func (r *Registry) Get(id string) (*Sandbox, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sb, ok := r.live[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSandbox, id)
	}
	return sb.clone(), nil
}

// Delete unregisters id and removes its root tree. Removal is best effort
// and happens outside the lock; the entry is dropped even if it fails.
// Deleting an already-deleted identifier is a no-op.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	sb, ok := r.live[id]
	if !ok {
		_, wasDeleted := r.deleted[id]
		r.mu.Unlock()
		if wasDeleted {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrUnknownSandbox, id)
	}
	delete(r.live, id)
	r.deleted[id] = struct{}{}
	r.mu.Unlock()

	_ = os.RemoveAll(sb.Root)
	return nil
}

// List returns copies of all live sandboxes ordered by creation time.
func (r *Registry) List() []*Sandbox {
	r.mu.RLock()
	out := make([]*Sandbox, 0, len(r.live))
	for _, sb := range r.live {
		out = append(out, sb.clone())
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Sandbox) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Orphans returns paths that no live sandbox owns: entries of this
// registry's owner dir that are not live roots (failed removals), and
// directories in the base dir whose owner lock is not held, together with
// their stale lock files. Owner dirs of other running registries are
// never reported.
func (r *Registry) Orphans() ([]string, error) {
	entries, err := os.ReadDir(r.baseDir)
	if err != nil {
		return nil, fmt.Errorf("reading sandbox base dir: %w", err)
	}
	dirs := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			dirs[e.Name()] = true
		}
	}

	var orphans []string
	for _, e := range entries {
		name := e.Name()
		switch {
		case name == filepath.Base(r.ownerDir):
			own, err := r.ownOrphans()
			if err != nil {
				return nil, err
			}
			orphans = append(orphans, own...)
		case e.IsDir():
			lock := filepath.Join(r.baseDir, name+ownerLockSuffix)
			held, err := lockHeld(lock)
			if err != nil {
				return nil, fmt.Errorf("checking owner of %s: %w", name, err)
			}
			if held {
				continue
			}
			orphans = append(orphans, filepath.Join(r.baseDir, name))
			if _, err := os.Stat(lock); err == nil {
				orphans = append(orphans, lock)
			}
		case strings.HasSuffix(name, ownerLockSuffix) && name != filepath.Base(r.owner.path):
			if dirs[strings.TrimSuffix(name, ownerLockSuffix)] {
				// Reported with its directory.
				continue
			}
			path := filepath.Join(r.baseDir, name)
			held, err := lockHeld(path)
			if err != nil {
				return nil, fmt.Errorf("checking lock %s: %w", name, err)
			}
			if !held {
				orphans = append(orphans, path)
			}
		}
	}
	return orphans, nil
}

// ownOrphans lists entries of the owner dir that are not live roots.
// Membership is checked under the lock Create holds across mkdir and
// insert, so a root being created is never reported.
func (r *Registry) ownOrphans() ([]string, error) {
	entries, err := os.ReadDir(r.ownerDir)
	if err != nil {
		return nil, fmt.Errorf("reading owner dir: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var orphans []string
	for _, e := range entries {
		if _, ok := r.live[e.Name()]; ok {
			continue
		}
		orphans = append(orphans, filepath.Join(r.ownerDir, e.Name()))
	}
	return orphans, nil
}

func (sb *Sandbox) clone() *Sandbox {
	c := *sb
	c.Env = maps.Clone(sb.Env)
	c.Labels = maps.Clone(sb.Labels)
	return &c
}

// randomID returns name-xxxxxxxx with eight hex characters from a UUIDv4.
func randomID(name string) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return name + "-" + hex[:8]
}

// sanitizeName keeps identifiers usable as a single path component.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	name = strings.Trim(b.String(), "_")
	if name == "" {
		return defaultSandboxName
	}
	return name
}
