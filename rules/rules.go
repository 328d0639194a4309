package rules

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Verdict is the outcome of matching a path against the rule set.
type Verdict int

const (
	// None means the request must be authenticated.
	None Verdict = iota
	// Pass skips authentication.
	Pass
	// Block rejects the request with 403.
	Block
)

func (v Verdict) String() string {
	switch v {
	case Pass:
		return "pass"
	case Block:
		return "block"
	default:
		return "none"
	}
}

// Set holds path prefixes.
type Set struct {
	Pass  []string `yaml:"pass"`
	Block []string `yaml:"block"`
}

type fileLayout struct {
	Rules Set `yaml:"rules"`
}

// Decide matches path by prefix. Block is checked first.
func (s *Set) Decide(path string) Verdict {
	if s == nil {
		return None
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	for _, p := range s.Block {
		if strings.HasPrefix(path, p) {
			return Block
		}
	}
	for _, p := range s.Pass {
		if strings.HasPrefix(path, p) {
			return Pass
		}
	}
	return None
}

// Parse decodes a rules document. Empty prefixes are dropped since they would
// match every path.
func Parse(data []byte) (*Set, error) {
	var doc fileLayout
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("rules: parse: %w", err)
	}
	return &Set{Pass: clean(doc.Rules.Pass), Block: clean(doc.Rules.Block)}, nil
}

func clean(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Store holds the active Set for a file path.
type Store struct {
	path    string
	logger  *slog.Logger
	current atomic.Pointer[Set]
}

// NewStore loads path once. A missing file yields an empty Set and a warning;
// a malformed file is an error.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, logger: logger.With("module", "rules", "layer", "store")}
	s.current.Store(&Set{})
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStaticStore wraps a fixed Set. Reload is a no-op.
func NewStaticStore(set *Set) *Store {
	s := &Store{logger: slog.Default()}
	if set == nil {
		set = &Set{}
	}
	s.current.Store(set)
	return s
}

// Path returns the watched file path.
func (s *Store) Path() string { return s.path }

// Current returns the active Set.
func (s *Store) Current() *Set { return s.current.Load() }

// Decide matches path against the active Set.
func (s *Store) Decide(path string) Verdict { return s.Current().Decide(path) }

// Reload re-reads the file. On a parse error the previous Set stays active.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("rules file not found, using empty rule set", "operation", "reload", "path", s.path)
		s.current.Store(&Set{})
		return nil
	}
	if err != nil {
		return fmt.Errorf("rules: read %s: %w", s.path, err)
	}
	set, err := Parse(data)
	if err != nil {
		return err
	}
	s.current.Store(set)
	s.logger.Info("rules loaded", "operation", "reload", "outcome", "success", "pass", len(set.Pass), "block", len(set.Block))
	return nil
}
