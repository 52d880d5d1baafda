package podlifecycle

import "testing"

func TestSandboxNameLowercasesAndReplacesSeparators(t *testing.T) {
	cases := map[string]string{
		"Feature/X":        "yolo-cage-feature-x",
		"bugfix_123":        "yolo-cage-bugfix-123",
		"main":              "yolo-cage-main",
		"team/sub_branch":   "yolo-cage-team-sub-branch",
	}
	for branch, want := range cases {
		if got := SandboxName(branch); got != want {
			t.Errorf("SandboxName(%q) = %q, want %q", branch, got, want)
		}
	}
}
