// Package egress implements spec §4.10: the TLS-intercepting proxy every
// sandbox's outbound traffic transits, plus the pure predicates that back
// its host- and forge-API blocklists. Predicate shape grounded on teacher
// internal/tools/shell.go's defaultDenyPatterns regex-table idiom; exact
// rule semantics grounded on original_source/dockerfiles/proxy/policy.py
// (check_blocked_domain, check_github_api) and proxy/addon.py's ordering of
// checks.
package egress

import (
	"strings"

	"github.com/yolo-cage/yolo-cage/internal/config"
)

// hostBlocked reports whether host is on the blocklist, or a subdomain of
// an entry on it (spec §4.10 step 2).
func hostBlocked(doc *config.EgressPolicyDoc, host string) (bool, string) {
	for _, blocked := range doc.HostBlocklist {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return true, blocked
		}
	}
	return false, ""
}

// forgeAPIBlocked reports whether (method, path) against the forge's
// canonical API host matches a configured rule (spec §4.10 step 1).
// forgeAPIHost identifies which host counts as "the forge's API"; bypass
// lets specific hosts skip this check entirely (mirrors the pod spec's
// NO_PROXY allowance for the same hosts, spec's supplemented forgeAPIBypass
// concept).
func forgeAPIBlocked(doc *config.EgressPolicyDoc, forgeAPIHost, host, method, path string) (bool, string) {
	if host != forgeAPIHost {
		return false, ""
	}
	for _, bypass := range doc.ForgeAPIBypass {
		if host == bypass {
			return false, ""
		}
	}
	for _, rule := range doc.ForgeAPIRules {
		if rule.Matches(method, path) {
			return true, rule.Reason
		}
	}
	return false, ""
}
