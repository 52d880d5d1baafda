// Package classify implements spec §4.1 and §4.2: pure, deterministic
// functions that turn an agent's argv into a policy category. Categories
// and their member subcommands are fixed sets, mirroring the teacher's own
// fixed-table idiom in internal/tools/policy.go (toolGroups/toolProfiles)
// and the regex deny-list precedence in internal/tools/shell.go.
package classify

import "strings"

// GitCategory is one of the seven buckets a git subcommand can fall into.
type GitCategory string

const (
	GitLocal        GitCategory = "local"
	GitBranchView   GitCategory = "branch-view"
	GitMergeFamily  GitCategory = "merge-family"
	GitRemoteRead   GitCategory = "remote-read"
	GitRemoteWrite  GitCategory = "remote-write"
	GitDenied       GitCategory = "denied"
	GitUnrecognized GitCategory = "unrecognized"
)

// gitLocal are subcommands that only ever touch the working tree/index and
// never the network or the ref namespace the assignment protects.
var gitLocal = map[string]bool{
	"status": true, "diff": true, "log": true, "show": true,
	"add": true, "commit": true, "reset": true, "stash": true,
	"blame": true, "grep": true, "rev-parse": true, "describe": true,
	"shortlog": true, "tag": true, "mv": true, "rm": true, "apply": true,
	"am": true, "clean": true, "restore": true,
}

// gitBranchView are navigation commands that can move the workspace off
// the assigned branch. Permitted, but warned about (spec §4.3).
var gitBranchView = map[string]bool{
	"checkout": true, "switch": true,
}

// gitMergeFamily requires the workspace to currently be on the assigned
// branch (spec §4.3 merge-family gate).
var gitMergeFamily = map[string]bool{
	"merge": true, "rebase": true, "cherry-pick": true,
}

// gitRemoteRead fetches from upstream without mutating it.
var gitRemoteRead = map[string]bool{
	"fetch": true, "pull": true, "ls-remote": true,
}

// gitRemoteWrite is push and nothing else; it is the only category the
// push gate (spec §4.3) applies to.
var gitRemoteWrite = map[string]bool{
	"push": true,
}

// gitDeniedMessages lists subcommands that are known, unsafe, and refused with an
// operation-specific message regardless of any other argument.
var gitDeniedMessages = map[string]string{
	"clone":             "clone is not permitted; workspaces are bootstrapped by the dispatcher",
	"remote":             "remote management is not permitted",
	"submodule":          "submodule operations are not permitted",
	"credential":         "credential helpers are managed by the dispatcher and cannot be configured",
	"config":             "git configuration is managed by the dispatcher and cannot be changed",
	"init":               "repository initialization is not permitted",
	"filter-branch":      "history rewriting is not permitted",
	"filter-repo":        "history rewriting is not permitted",
	"gc":                 "garbage collection is managed by the dispatcher",
	"daemon":             "running a git daemon is not permitted",
	"update-ref":         "direct ref manipulation is not permitted",
	"symbolic-ref":       "direct ref manipulation is not permitted",
	"reflog":             "reflog manipulation is not permitted",
	"worktree":           "worktree management is not permitted",
	"fast-import":        "fast-import is not permitted",
	"hash-object":        "low-level object manipulation is not permitted",
	"update-index":       "low-level index manipulation is not permitted",
}

// ClassifyGit returns the category for argv, plus a denial message when the
// category is GitDenied. Finds the first non-option token and treats it as
// the subcommand; unrecognized is the default and is always refused by the
// dispatcher (never executed).
func ClassifyGit(argv []string) (GitCategory, string) {
	sub := firstNonOption(argv)
	if sub == "" {
		return GitUnrecognized, ""
	}

	// Tie-break order: deny beats allow beats unknown.
	if msg, ok := gitDeniedMessages[sub]; ok {
		return GitDenied, msg
	}
	if gitLocal[sub] {
		return GitLocal, ""
	}
	if gitBranchView[sub] {
		return GitBranchView, ""
	}
	if gitMergeFamily[sub] {
		return GitMergeFamily, ""
	}
	if gitRemoteRead[sub] {
		return GitRemoteRead, ""
	}
	if gitRemoteWrite[sub] {
		return GitRemoteWrite, ""
	}
	return GitUnrecognized, ""
}

// firstNonOption returns the first token in argv that does not begin with
// "-", skipping any leading global flags (e.g. "-C <dir>", "--no-pager").
func firstNonOption(argv []string) string {
	for i := 0; i < len(argv); i++ {
		tok := argv[i]
		if !strings.HasPrefix(tok, "-") {
			return tok
		}
		// Flags that consume a following value we must also skip, so we
		// don't mistake the value for the subcommand.
		if tok == "-C" || tok == "-c" || tok == "--git-dir" || tok == "--work-tree" {
			i++
		}
	}
	return ""
}

// GitDeniedSubcommands exposes the fixed deny set for test coverage (spec §8
// property 1: every subcommand in the deny set must classify as denied
// regardless of subsequent arguments).
func GitDeniedSubcommands() []string {
	out := make([]string, 0, len(gitDeniedMessages))
	for k := range gitDeniedMessages {
		out = append(out, k)
	}
	return out
}

// GitSubcommandsByCategory exposes the fixed allow sets for test coverage
// (spec §8 property 2).
func GitSubcommandsByCategory() map[GitCategory][]string {
	out := map[GitCategory][]string{}
	for name, set := range map[GitCategory]map[string]bool{
		GitLocal:       gitLocal,
		GitBranchView:  gitBranchView,
		GitMergeFamily: gitMergeFamily,
		GitRemoteRead:  gitRemoteRead,
		GitRemoteWrite: gitRemoteWrite,
	} {
		for sub := range set {
			out[name] = append(out[name], sub)
		}
	}
	return out
}
