// Package policy implements spec §4.3: the three decisions that sit between
// a classified command and the executor. Results are an exhaustive sum
// type rather than a duck-typed "nil means allowed" value, per the
// redesign note in spec.md §9.
package policy

import (
	"fmt"
	"net/url"
	"strings"
)

// Decision is the outcome of a policy check. Every check in this package
// returns one built by exactly one of the three constructors below;
// callers switch on Verdict. The unexported field rules out unkeyed
// literals outside the package, but not keyed ones, and the zero value's
// Verdict is Allow.
type Decision struct {
	Verdict Verdict
	Message string

	sealed struct{}
}

// Verdict is the sum type's tag.
type Verdict int

const (
	Allow Verdict = iota
	Warn
	Deny
)

func allow() Decision         { return Decision{Verdict: Allow} }
func warn(msg string) Decision { return Decision{Verdict: Warn, Message: msg} }
func deny(msg string) Decision { return Decision{Verdict: Deny, Message: msg} }

// CheckBranchSwitch implements the branch-switch warning. target is the
// branch a checkout/switch command names; assigned is the caller's bound
// branch. Read-only navigation away from the assigned branch is always
// permitted; the caller only ever gets a warning, never a denial.
func CheckBranchSwitch(target, assigned string) Decision {
	if target == "" || target == assigned {
		return allow()
	}
	return warn(fmt.Sprintf(
		"warning: now on branch %q, not your assigned branch %q; commits and pushes from here will be refused",
		target, assigned,
	))
}

// CheckMergeFamily implements the merge-family gate: merge, rebase and
// cherry-pick require the workspace to currently be on the assigned
// branch.
func CheckMergeFamily(currentBranch, assignedBranch string) Decision {
	if currentBranch == assignedBranch {
		return allow()
	}
	return deny(fmt.Sprintf(
		"refusing: workspace is on branch %q but assigned branch is %q", currentBranch, assignedBranch,
	))
}

// CheckPush implements the push gate. argv is the full "push" invocation
// (including the leading "push" token); currentBranch/assignedBranch are
// the workspace's present and bound branches.
func CheckPush(argv []string, currentBranch, assignedBranch string) Decision {
	if currentBranch != assignedBranch {
		return deny(fmt.Sprintf(
			"refusing push: workspace is on branch %q but assigned branch is %q", currentBranch, assignedBranch,
		))
	}

	for _, tok := range argv[1:] {
		if strings.HasPrefix(tok, "-") {
			continue
		}
		if looksLikeURL(tok) {
			return deny("refusing push: pushing directly to a URL is not permitted")
		}
		if strings.Contains(tok, ":") {
			src, dst, _ := strings.Cut(tok, ":")
			if src == "" {
				// A bare ":dst" refspec deletes the remote branch named by
				// dst; treated as targeting dst and refused outright.
				return deny(fmt.Sprintf(
					"refusing push: refspec %q deletes a remote branch, which is not permitted", tok,
				))
			}
			if dst != "" && dst != assignedBranch && dst != "refs/heads/"+assignedBranch {
				return deny(fmt.Sprintf(
					"refusing push: refspec targets branch %q, not your assigned branch %q", dst, assignedBranch,
				))
			}
		}
	}
	return allow()
}

// looksLikeURL reports whether tok is an absolute URL or a scp-like
// user@host:path remote, either of which would let a push escape to a
// repository other than the bound upstream.
func looksLikeURL(tok string) bool {
	if strings.HasPrefix(tok, "https://") || strings.HasPrefix(tok, "http://") {
		return true
	}
	if u, err := url.Parse(tok); err == nil && u.Scheme != "" && u.Host != "" {
		return true
	}
	if at := strings.Index(tok, "@"); at > 0 {
		rest := tok[at+1:]
		if strings.Contains(rest, ":") && !strings.HasPrefix(rest, ":") {
			return true
		}
	}
	return false
}
