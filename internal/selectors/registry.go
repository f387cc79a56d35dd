package selectors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"songfactory/internal/fileutil"
	"songfactory/internal/logging"
)

// Registry holds selector groups in priority order.
type Registry struct {
	mu     sync.Mutex
	path   string
	lock   *flock.Flock
	groups map[string][]string
	logger *slog.Logger
}

// Open loads the registry at path. A missing file starts empty; an
// unreadable or corrupt file is logged and also starts empty.
func Open(path string, logger *slog.Logger) *Registry {
	r := &Registry{
		path:   path,
		lock:   flock.New(path + ".lock"),
		groups: map[string][]string{},
		logger: logging.NewComponentLogger(logger, "selectors"),
	}
	r.load()
	return r
}

// Path returns the registry file location.
func (r *Registry) Path() string {
	return r.path
}

func (r *Registry) load() {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		logging.WarnWithContext(r.logger, "selector registry unreadable", "selector_registry_load_failed",
			logging.String("path", r.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check file permissions; learned order starts fresh"),
		)
		return
	}
	var groups map[string][]string
	if err := json.Unmarshal(data, &groups); err != nil {
		logging.WarnWithContext(r.logger, "selector registry corrupt", "selector_registry_corrupt",
			logging.String("path", r.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the file is rewritten on the next change"),
		)
		return
	}
	for name, candidates := range groups {
		r.groups[name] = cleanCandidates(candidates)
	}
	r.logger.Debug("selector registry loaded", logging.Int("groups", len(r.groups)))
}

// RegisterGroup stores default candidates for a group. A group that already
// has history keeps its learned order.
func (r *Registry) RegisterGroup(name string, candidates []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[name]; ok {
		return nil
	}
	r.groups[name] = cleanCandidates(candidates)
	return r.saveLocked()
}

// RegisterDefaults registers every group from Defaults.
func (r *Registry) RegisterDefaults() error {
	defaults := Defaults()
	names := make([]string, 0, len(defaults))
	for name := range defaults {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := r.RegisterGroup(name, defaults[name]); err != nil {
			return err
		}
	}
	return nil
}

// Selectors returns a copy of the group's candidates in priority order.
func (r *Registry) Selectors(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.groups[name])
}

// Promote moves selector to the front of its group, inserting it when the
// group does not know it yet.
func (r *Registry) Promote(name, selector string) error {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	group := r.groups[name]
	if len(group) > 0 && group[0] == selector {
		return nil
	}
	next := make([]string, 0, len(group)+1)
	next = append(next, selector)
	for _, candidate := range group {
		if candidate != selector {
			next = append(next, candidate)
		}
	}
	r.groups[name] = next
	return r.saveLocked()
}

// Demote moves selector to the back of its group. Unknown selectors are
// ignored.
func (r *Registry) Demote(name, selector string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	group := r.groups[name]
	idx := slices.Index(group, selector)
	if idx < 0 || idx == len(group)-1 {
		return nil
	}
	next := make([]string, 0, len(group))
	next = append(next, group[:idx]...)
	next = append(next, group[idx+1:]...)
	next = append(next, selector)
	r.groups[name] = next
	return r.saveLocked()
}

// ResetGroup overwrites a group's order.
func (r *Registry) ResetGroup(name string, candidates []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[name] = cleanCandidates(candidates)
	return r.saveLocked()
}

// Groups returns the registered group names sorted alphabetically.
func (r *Registry) Groups() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.groups))
	for name := range r.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) saveLocked() error {
	data, err := json.MarshalIndent(r.groups, "", "  ")
	if err != nil {
		return fmt.Errorf("encode selector registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	if err := r.lock.Lock(); err != nil {
		return fmt.Errorf("lock selector registry: %w", err)
	}
	defer func() { _ = r.lock.Unlock() }()
	if err := fileutil.WriteFileAtomic(r.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("save selector registry: %w", err)
	}
	return nil
}

func cleanCandidates(candidates []string) []string {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}
		out = append(out, candidate)
	}
	return out
}
