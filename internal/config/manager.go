// Package config loads the base and per-task YAML configuration described
// in spec §6, exposes GetNodeConfig(tag) to the rest of the system, and
// supports hot reload driven by the fleet supervisor's 60s tick.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Snapshot is one immutable view of the full configuration: the base
// config plus every logical node derived from its task files. Reload
// publishes a new *Snapshot by atomic pointer swap so a worker observes
// either the old or new snapshot in full, never a partial mix (§5).
type Snapshot struct {
	Base  BaseConfig
	nodes map[string]NodeConfig // keyed by node tag ("<task-tag>_<ordinal>")
	tags  []string              // sorted node tags, for deterministic iteration
}

// Nodes returns every NodeConfig in the snapshot, ordered by tag.
func (s *Snapshot) Nodes() []NodeConfig {
	out := make([]NodeConfig, 0, len(s.tags))
	for _, t := range s.tags {
		out = append(out, s.nodes[t])
	}
	return out
}

// Get returns the NodeConfig for tag, or ok=false if it is not (or no
// longer) configured.
func (s *Snapshot) Get(tag string) (NodeConfig, bool) {
	n, ok := s.nodes[tag]
	return n, ok
}

// Manager owns the live configuration and the path it was loaded from.
// Reload() re-parses everything from disk and swaps the published
// snapshot atomically; GetNodeConfig always reads the current snapshot.
type Manager struct {
	configPath string
	configDir  string

	current atomic.Pointer[Snapshot]

	mu       sync.Mutex // serializes concurrent Reload calls
	validate *validator.Validate
}

// NewManager loads configPath (or searches default locations when empty)
// and returns a Manager whose initial Snapshot is already populated.
// A missing required key aborts with an aggregated *Error, per §6.
func NewManager(configPath string) (*Manager, error) {
	_ = godotenv.Load()

	m := &Manager{validate: validator.New()}

	snap, dir, resolvedPath, err := loadSnapshot(configPath, m.validate)
	if err != nil {
		return nil, err
	}
	m.configPath = resolvedPath
	m.configDir = dir
	m.current.Store(snap)
	return m, nil
}

// Current returns the currently published configuration snapshot.
func (m *Manager) Current() *Snapshot {
	return m.current.Load()
}

// GetNodeConfig returns the current config for the given node tag.
func (m *Manager) GetNodeConfig(tag string) (NodeConfig, bool) {
	return m.current.Load().Get(tag)
}

// Reload re-reads the base config and every per-task file from disk and
// publishes the result as the new current Snapshot. A task file that now
// fails validation is dropped (with its error returned) rather than
// aborting the whole reload — already-running nodes for other tasks
// continue undisturbed (§7 ConfigError policy).
func (m *Manager) Reload() (*Snapshot, []error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, _, _, err := loadSnapshotTolerant(m.configPath, m.configDir, m.validate)
	if err != nil {
		return nil, []error{err}
	}
	m.current.Store(snap.snapshot)
	return snap.snapshot, snap.taskErrors
}

func loadSnapshot(configPath string, v *validator.Validate) (*Snapshot, string, string, error) {
	base, dir, resolvedPath, err := readBaseConfig(configPath)
	if err != nil {
		return nil, "", "", err
	}
	if err := v.Struct(&base); err != nil {
		return nil, "", "", formatValidationError(resolvedPath, err)
	}

	nodes := make(map[string]NodeConfig)
	tagOwner := make(map[string]string) // task tag -> source file, for uniqueness checks
	for _, taskFile := range base.Tasks {
		path := resolveTaskPath(dir, taskFile)
		task, err := readTaskConfig(path, v)
		if err != nil {
			return nil, "", "", err
		}
		if owner, exists := tagOwner[task.Tag]; exists {
			return nil, "", "", NewError(path, fmt.Sprintf("tag %q already used by %s", task.Tag, owner))
		}
		tagOwner[task.Tag] = path
		for _, n := range task.Nodes() {
			nodes[n.Tag] = n
		}
	}

	tags := make([]string, 0, len(nodes))
	for t := range nodes {
		tags = append(tags, t)
	}
	sort.Strings(tags)

	return &Snapshot{Base: base, nodes: nodes, tags: tags}, dir, resolvedPath, nil
}

type tolerantResult struct {
	snapshot   *Snapshot
	taskErrors []error
}

// loadSnapshotTolerant is Reload's variant of loadSnapshot: a base config
// error is still fatal to the reload, but a single bad task file is
// skipped (its nodes simply absent from the new snapshot) and reported.
func loadSnapshotTolerant(configPath, dir string, v *validator.Validate) (*tolerantResult, string, string, error) {
	base, newDir, resolvedPath, err := readBaseConfig(configPath)
	if err != nil {
		return nil, "", "", err
	}
	if err := v.Struct(&base); err != nil {
		return nil, "", "", formatValidationError(resolvedPath, err)
	}
	if newDir != "" {
		dir = newDir
	}

	nodes := make(map[string]NodeConfig)
	tagOwner := make(map[string]string)
	var taskErrors []error
	for _, taskFile := range base.Tasks {
		path := resolveTaskPath(dir, taskFile)
		task, err := readTaskConfig(path, v)
		if err != nil {
			taskErrors = append(taskErrors, err)
			continue
		}
		if owner, exists := tagOwner[task.Tag]; exists {
			taskErrors = append(taskErrors, NewError(path, fmt.Sprintf("tag %q already used by %s", task.Tag, owner)))
			continue
		}
		tagOwner[task.Tag] = path
		for _, n := range task.Nodes() {
			nodes[n.Tag] = n
		}
	}

	tags := make([]string, 0, len(nodes))
	for t := range nodes {
		tags = append(tags, t)
	}
	sort.Strings(tags)

	return &tolerantResult{
		snapshot:   &Snapshot{Base: base, nodes: nodes, tags: tags},
		taskErrors: taskErrors,
	}, dir, resolvedPath, nil
}

func readBaseConfig(configPath string) (BaseConfig, string, string, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/fleetd")
	}

	v.SetEnvPrefix("FLEETD")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return BaseConfig{}, "", "", NewError(configPath, fmt.Sprintf("failed to read base config: %v", err))
	}

	var base BaseConfig
	if err := v.Unmarshal(&base); err != nil {
		return BaseConfig{}, "", "", NewError(v.ConfigFileUsed(), fmt.Sprintf("failed to unmarshal base config: %v", err))
	}

	return base, filepath.Dir(v.ConfigFileUsed()), v.ConfigFileUsed(), nil
}

func resolveTaskPath(dir, taskFile string) string {
	if filepath.IsAbs(taskFile) {
		return taskFile
	}
	return filepath.Join(dir, taskFile)
}

func readTaskConfig(path string, v *validator.Validate) (TaskConfig, error) {
	if _, err := os.Stat(path); err != nil {
		return TaskConfig{}, NewError(path, fmt.Sprintf("task config not found: %v", err))
	}

	tv := viper.New()
	tv.SetConfigFile(path)
	if err := tv.ReadInConfig(); err != nil {
		return TaskConfig{}, NewError(path, fmt.Sprintf("failed to read task config: %v", err))
	}

	var task TaskConfig
	if err := tv.Unmarshal(&task); err != nil {
		return TaskConfig{}, NewError(path, fmt.Sprintf("failed to unmarshal task config: %v", err))
	}
	task.sourceFile = path

	if err := validateTask(v, &task); err != nil {
		return TaskConfig{}, err
	}

	return task, nil
}
