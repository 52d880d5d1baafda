package classify

import "strings"

// GhCategory is one of the buckets a gh invocation can fall into.
type GhCategory string

const (
	GhAllowed      GhCategory = "allowed"
	GhDenied       GhCategory = "denied"
	GhUnrecognized GhCategory = "unrecognized"
)

// ghFullyBlockedPrimaries are top-level gh commands refused no matter the
// subcommand: api lets the agent reach the forge API directly (bypassing
// every other category here), extension and alias let it install new
// behavior the classifier has never seen.
var ghFullyBlockedPrimaries = map[string]string{
	"api":       "direct API access is not permitted; use the specific gh subcommand instead",
	"extension": "installing gh extensions is not permitted",
	"alias":     "defining gh aliases is not permitted",
}

// ghBlockedPair is a (primary, sub) pair that is denied even though other
// subcommands of the same primary are allowed.
type ghBlockedPair struct {
	primary string
	sub     string
	reason  string
}

var ghBlockedPairs = []ghBlockedPair{
	{"pr", "merge", "merging pull requests is not permitted"},
	{"repo", "delete", "deleting repositories is not permitted"},
	{"repo", "edit", "editing repository settings is not permitted"},
	{"repo", "archive", "archiving repositories is not permitted"},
	{"repo", "rename", "renaming repositories is not permitted"},
	{"secret", "set", "managing secrets is not permitted"},
	{"secret", "delete", "managing secrets is not permitted"},
	{"secret", "list", "listing secrets is not permitted"},
	{"variable", "set", "managing variables is not permitted"},
	{"variable", "delete", "managing variables is not permitted"},
	{"variable", "list", "listing variables is not permitted"},
	{"auth", "login", "authentication is managed by the dispatcher"},
	{"auth", "logout", "authentication is managed by the dispatcher"},
	{"auth", "refresh", "authentication is managed by the dispatcher"},
	{"auth", "setup-git", "authentication is managed by the dispatcher"},
	{"auth", "token", "authentication is managed by the dispatcher"},
	{"config", "set", "gh configuration is managed by the dispatcher"},
}

// ghFullyAllowedPrimaries are primaries where every subcommand is permitted
// once the fully-blocked-primary and blocked-pair checks above have passed.
var ghFullyAllowedPrimaries = map[string]bool{
	"issue":   true,
	"gist":    true,
	"label":   true,
	"release": true,
}

// ghAllowedSubcommands restricts primaries that have both safe and unsafe
// subcommands (pr create/view/list/comment/review/diff/checks/status are
// safe; pr merge is denied above). Anything not listed here for these
// primaries is unrecognized, not denied, and is still refused (spec §4.2:
// unrecognized commands are always refused).
var ghAllowedSubcommands = map[string]map[string]bool{
	"pr": {
		"create": true, "view": true, "list": true, "comment": true,
		"review": true, "diff": true, "checks": true, "status": true,
		"edit": true, "close": true, "reopen": true, "ready": true,
	},
	"workflow": {
		"list": true, "view": true, "run": true,
	},
	"run": {
		"list": true, "view": true, "watch": true, "rerun": true,
	},
}

// ClassifyGh returns the category for a gh invocation (argv with the
// leading "gh" already stripped), plus a denial message when denied.
func ClassifyGh(argv []string) (GhCategory, string) {
	primary := firstNonOption(argv)
	if primary == "" {
		return GhUnrecognized, ""
	}
	if msg, ok := ghFullyBlockedPrimaries[primary]; ok {
		return GhDenied, msg
	}

	sub := secondNonOption(argv)
	for _, pair := range ghBlockedPairs {
		if pair.primary == primary && pair.sub == sub {
			return GhDenied, pair.reason
		}
	}

	if ghFullyAllowedPrimaries[primary] {
		return GhAllowed, ""
	}
	if allowedSubs, ok := ghAllowedSubcommands[primary]; ok {
		if allowedSubs[sub] {
			return GhAllowed, ""
		}
		return GhUnrecognized, ""
	}
	return GhUnrecognized, ""
}

// secondNonOption returns the second non-option token in argv, i.e. the
// subcommand that follows the primary.
func secondNonOption(argv []string) string {
	seen := 0
	for i := 0; i < len(argv); i++ {
		tok := argv[i]
		if strings.HasPrefix(tok, "-") {
			continue
		}
		seen++
		if seen == 2 {
			return tok
		}
	}
	return ""
}

// GhBlockedPairsForTest exposes the fixed blocked-pair table for test
// coverage.
func GhBlockedPairsForTest() []ghBlockedPair {
	out := make([]ghBlockedPair, len(ghBlockedPairs))
	copy(out, ghBlockedPairs)
	return out
}

// GhFullyBlockedPrimariesForTest exposes the fixed fully-blocked primary set
// for test coverage.
func GhFullyBlockedPrimariesForTest() []string {
	out := make([]string, 0, len(ghFullyBlockedPrimaries))
	for k := range ghFullyBlockedPrimaries {
		out = append(out, k)
	}
	return out
}
