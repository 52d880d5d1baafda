package egress

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/yolo-cage/yolo-cage/internal/config"
	"github.com/yolo-cage/yolo-cage/internal/scanner"
)

// Decision is the outcome of running a request through the six-step
// pipeline in spec §4.10. A positive scan at any step blocks with a tag
// identifying which step fired.
type Decision struct {
	Blocked bool
	Reason  string
	Tags    []string
}

// RequestInfo is everything decide needs from an intercepted request,
// decoupled from *http.Request so the pipeline is testable without a real
// TLS handshake.
type RequestInfo struct {
	Method   string
	Host     string
	Path     string
	RawQuery string
	Header   map[string][]string
	Body     []byte
}

func allow() Decision { return Decision{} }

func block(reason string, tags ...string) Decision {
	return Decision{Blocked: true, Reason: reason, Tags: tags}
}

// decide runs spec §4.10's six-step pipeline. forgeAPIHost identifies the
// forge's canonical API host for step 1.
func decide(ctx context.Context, doc *config.EgressPolicyDoc, sc *scanner.Client, forgeAPIHost string, req RequestInfo) Decision {
	if blocked, reason := forgeAPIBlocked(doc, forgeAPIHost, req.Host, req.Method, req.Path); blocked {
		return block(fmt.Sprintf("forge_api_blocked:%s", reason))
	}

	if blocked, reason := hostBlocked(doc, req.Host); blocked {
		return block(fmt.Sprintf("blocked_domain:%s", reason))
	}

	if len(req.Body) >= scanner.LengthFloor {
		if result := sc.Scan(ctx, string(req.Body)); result.Positive {
			return block("request body contains potential secrets", result.Tags...).withTag("secrets_detected")
		}
	}

	if req.RawQuery != "" {
		if queryText := queryAsText(req.RawQuery); queryText != "" {
			if result := sc.Scan(ctx, queryText); result.Positive {
				return block("URL query parameters contain potential secrets", result.Tags...).withTag("secrets_in_query")
			}
		}
	}

	decodedPath := req.Path
	if unescaped, err := url.PathUnescape(req.Path); err == nil {
		decodedPath = unescaped
	}
	if len(decodedPath) > scanner.LengthFloor {
		if result := sc.Scan(ctx, decodedPath); result.Positive {
			return block("URL path contains potential secrets", result.Tags...).withTag("secrets_in_path")
		}
	}

	for name, values := range req.Header {
		for _, v := range values {
			if len(v) > scanner.LengthFloor {
				if result := sc.Scan(ctx, v); result.Positive {
					return block(fmt.Sprintf("request header %q contains potential secrets", name), result.Tags...).
						withTag("secrets_in_header:" + name)
				}
			}
		}
	}

	return allow()
}

// withTag prepends a step-identifying tag so the log entry can show which
// rule fired in addition to the scanner's own per-scanner tags (spec §4.10:
// "tag identifying which step fired").
func (d Decision) withTag(tag string) Decision {
	d.Tags = append([]string{tag}, d.Tags...)
	return d
}

func queryAsText(rawQuery string) string {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}
	var b strings.Builder
	for k, vs := range values {
		for _, v := range vs {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(v)
		}
	}
	return b.String()
}
