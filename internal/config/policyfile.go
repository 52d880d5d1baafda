package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/titanous/json5"
)

// ForgeAPIRule is one (method, path-regexp) blocklist entry from spec §4.10
// step 1 (merge endpoints, administrative mutations, secret reads, webhook
// changes, branch-protection changes, arbitrary deletions).
type ForgeAPIRule struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Reason string `json:"reason"`

	compiled *regexp.Regexp
}

// EgressPolicyDoc is the JSON5 document the egress proxy loads and
// hot-reloads. It backs both of §4.10's pure predicates.
type EgressPolicyDoc struct {
	HostBlocklist    []string       `json:"hostBlocklist"`
	ForgeAPIRules    []ForgeAPIRule `json:"forgeApiRules"`
	ForgeAPIBypass   []string       `json:"forgeApiBypass,omitempty"`
}

// ParsePolicyDoc parses and compiles a JSON5 egress policy document. Exported
// so callers (tests in particular) can build a doc without going through a
// file on disk.
func ParsePolicyDoc(data []byte) (*EgressPolicyDoc, error) {
	return parsePolicyDoc(data)
}

func parsePolicyDoc(data []byte) (*EgressPolicyDoc, error) {
	var doc EgressPolicyDoc
	if err := json5.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse egress policy: %w", err)
	}
	for i := range doc.ForgeAPIRules {
		rule := &doc.ForgeAPIRules[i]
		re, err := regexp.Compile(rule.Path)
		if err != nil {
			return nil, fmt.Errorf("config: egress policy rule %d: compile path regexp: %w", i, err)
		}
		rule.compiled = re
	}
	return &doc, nil
}

// Matches reports whether this rule fires for the given method and path.
func (r ForgeAPIRule) Matches(method, path string) bool {
	if r.compiled == nil {
		return false
	}
	if r.Method != "" && !equalFoldASCII(r.Method, method) {
		return false
	}
	return r.compiled.MatchString(path)
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'a' <= ca && ca <= 'z' {
			ca -= 'a' - 'A'
		}
		if 'a' <= cb && cb <= 'z' {
			cb -= 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// PolicyWatcher holds the current egress policy document and refreshes it
// from disk whenever the file changes, the way the teacher's own config
// loader separates "parse" from "load+watch". Reads are lock-protected;
// writes only ever come from the watch goroutine.
type PolicyWatcher struct {
	mu   sync.RWMutex
	doc  *EgressPolicyDoc
	path string

	watcher *fsnotify.Watcher
	log     *slog.Logger
}

// NewPolicyWatcher loads path once, then starts watching it for changes.
// Callers must call Close when done.
func NewPolicyWatcher(path string, log *slog.Logger) (*PolicyWatcher, error) {
	if log == nil {
		log = slog.Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read egress policy %q: %w", path, err)
	}
	doc, err := parsePolicyDoc(data)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create fsnotify watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("config: watch egress policy %q: %w", path, err)
	}

	pw := &PolicyWatcher{doc: doc, path: path, watcher: w, log: log}
	go pw.loop()
	return pw, nil
}

func (pw *PolicyWatcher) loop() {
	for {
		select {
		case ev, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pw.reload()
		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			pw.log.Warn("egress policy watcher error", "error", err)
		}
	}
}

func (pw *PolicyWatcher) reload() {
	data, err := os.ReadFile(pw.path)
	if err != nil {
		pw.log.Warn("egress policy reload: read failed, keeping previous policy", "error", err)
		return
	}
	doc, err := parsePolicyDoc(data)
	if err != nil {
		pw.log.Warn("egress policy reload: parse failed, keeping previous policy", "error", err)
		return
	}
	pw.mu.Lock()
	pw.doc = doc
	pw.mu.Unlock()
	pw.log.Info("egress policy reloaded", "path", pw.path, "hosts", len(doc.HostBlocklist), "rules", len(doc.ForgeAPIRules))
}

// Current returns the presently active policy document.
func (pw *PolicyWatcher) Current() *EgressPolicyDoc {
	pw.mu.RLock()
	defer pw.mu.RUnlock()
	return pw.doc
}

// Close stops the watch goroutine.
func (pw *PolicyWatcher) Close() error {
	return pw.watcher.Close()
}
