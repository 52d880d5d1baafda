package egress

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yolo-cage/yolo-cage/internal/config"
	"github.com/yolo-cage/yolo-cage/internal/scanner"
)

func cleanScanner(t *testing.T) *scanner.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz":
			w.WriteHeader(http.StatusOK)
		case "/analyze/prompt":
			w.Write([]byte(`{"is_valid":true}`))
		}
	}))
	t.Cleanup(srv.Close)
	return scanner.New(srv.URL, "tok", time.Second)
}

func hitScanner(t *testing.T, tag string) *scanner.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz":
			w.WriteHeader(http.StatusOK)
		case "/analyze/prompt":
			w.Write([]byte(`{"is_valid":false,"scanners":{"` + tag + `":0.0}}`))
		}
	}))
	t.Cleanup(srv.Close)
	return scanner.New(srv.URL, "tok", time.Second)
}

func policyDoc(t *testing.T, json5 string) *config.EgressPolicyDoc {
	t.Helper()
	doc, err := config.ParsePolicyDoc([]byte(json5))
	if err != nil {
		t.Fatalf("parse policy doc: %v", err)
	}
	return doc
}

func TestDecideBlocksHostBlocklist(t *testing.T) {
	doc := policyDoc(t, `{hostBlocklist: ["evil.example.com"]}`)
	d := decide(context.Background(), doc, cleanScanner(t), "api.github.com", RequestInfo{
		Method: "GET", Host: "evil.example.com", Path: "/",
	})
	if !d.Blocked {
		t.Fatalf("expected block for exact blocklisted host")
	}
}

func TestDecideBlocksSubdomainOfBlocklistedHost(t *testing.T) {
	doc := policyDoc(t, `{hostBlocklist: ["evil.example.com"]}`)
	d := decide(context.Background(), doc, cleanScanner(t), "api.github.com", RequestInfo{
		Method: "GET", Host: "sub.evil.example.com", Path: "/",
	})
	if !d.Blocked {
		t.Fatalf("expected block for subdomain of a blocklisted host")
	}
}

func TestDecideAllowsUnlistedHost(t *testing.T) {
	doc := policyDoc(t, `{hostBlocklist: ["evil.example.com"]}`)
	d := decide(context.Background(), doc, cleanScanner(t), "api.github.com", RequestInfo{
		Method: "GET", Host: "example.com", Path: "/",
	})
	if d.Blocked {
		t.Fatalf("expected allow, got block: %s", d.Reason)
	}
}

func TestDecideBlocksForgeAPIRuleOnCanonicalHostOnly(t *testing.T) {
	doc := policyDoc(t, `{forgeApiRules: [{method: "DELETE", path: "^/repos/.+$", reason: "repo deletion"}]}`)

	blocked := decide(context.Background(), doc, cleanScanner(t), "api.github.com", RequestInfo{
		Method: "DELETE", Host: "api.github.com", Path: "/repos/foo/bar",
	})
	if !blocked.Blocked {
		t.Fatalf("expected forge API rule to block on canonical host")
	}

	allowed := decide(context.Background(), doc, cleanScanner(t), "api.github.com", RequestInfo{
		Method: "DELETE", Host: "example.com", Path: "/repos/foo/bar",
	})
	if allowed.Blocked {
		t.Fatalf("expected forge API rule to only apply to the canonical host, got block: %s", allowed.Reason)
	}
}

func TestDecideForgeAPIBypassSkipsRule(t *testing.T) {
	doc := policyDoc(t, `{
		forgeApiRules: [{method: "DELETE", path: "^/repos/.+$", reason: "repo deletion"}],
		forgeApiBypass: ["api.github.com"],
	}`)

	d := decide(context.Background(), doc, cleanScanner(t), "api.github.com", RequestInfo{
		Method: "DELETE", Host: "api.github.com", Path: "/repos/foo/bar",
	})
	if d.Blocked {
		t.Fatalf("expected bypass host to skip the forge API rule, got block: %s", d.Reason)
	}
}

func TestDecideBlocksSecretsInBody(t *testing.T) {
	doc := policyDoc(t, `{}`)
	d := decide(context.Background(), doc, hitScanner(t, "secrets"), "api.github.com", RequestInfo{
		Method: "POST", Host: "example.com", Path: "/", Body: []byte("this body definitely has a secret in it"),
	})
	if !d.Blocked || d.Tags[0] != "secrets_detected" {
		t.Fatalf("expected body secret block tagged secrets_detected, got %+v", d)
	}
}

func TestDecideBlocksSecretsInQuery(t *testing.T) {
	doc := policyDoc(t, `{}`)
	d := decide(context.Background(), doc, hitScanner(t, "secrets"), "api.github.com", RequestInfo{
		Method: "GET", Host: "example.com", Path: "/", RawQuery: "token=abcdefghijklmnop",
	})
	if !d.Blocked || d.Tags[0] != "secrets_in_query" {
		t.Fatalf("expected query secret block tagged secrets_in_query, got %+v", d)
	}
}

func TestDecideBlocksSecretsInPath(t *testing.T) {
	doc := policyDoc(t, `{}`)
	d := decide(context.Background(), doc, hitScanner(t, "secrets"), "api.github.com", RequestInfo{
		Method: "GET", Host: "example.com", Path: "/reallylongsecretlookingpath",
	})
	if !d.Blocked || d.Tags[0] != "secrets_in_path" {
		t.Fatalf("expected path secret block tagged secrets_in_path, got %+v", d)
	}
}

func TestDecideBlocksSecretsInHeader(t *testing.T) {
	doc := policyDoc(t, `{}`)
	d := decide(context.Background(), doc, hitScanner(t, "secrets"), "api.github.com", RequestInfo{
		Method: "GET", Host: "example.com", Path: "/",
		Header: map[string][]string{"X-Custom": {"a-very-long-header-value-here"}},
	})
	if !d.Blocked || d.Tags[0] != "secrets_in_header:X-Custom" {
		t.Fatalf("expected header secret block tagged secrets_in_header:X-Custom, got %+v", d)
	}
}

func TestDecideAllowsCleanRequest(t *testing.T) {
	doc := policyDoc(t, `{}`)
	d := decide(context.Background(), doc, cleanScanner(t), "api.github.com", RequestInfo{
		Method: "GET", Host: "example.com", Path: "/", RawQuery: "a=b",
		Header: map[string][]string{"X-Custom": {"short"}},
		Body:   []byte("short"),
	})
	if d.Blocked {
		t.Fatalf("expected clean request to be allowed, got block: %s", d.Reason)
	}
}

func TestDecideShortFieldsSkipScanning(t *testing.T) {
	doc := policyDoc(t, `{}`)
	d := decide(context.Background(), doc, hitScanner(t, "secrets"), "api.github.com", RequestInfo{
		Method: "GET", Host: "example.com", Path: "/short",
		RawQuery: "a=b",
		Header:   map[string][]string{"X-Custom": {"short"}},
		Body:     []byte("short"),
	})
	if d.Blocked {
		t.Fatalf("expected fields under the length floor to skip scanning entirely, got block: %s", d.Reason)
	}
}
