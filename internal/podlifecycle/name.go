// Package podlifecycle manages sandbox pods via the Kubernetes API (spec
// §4.8): one pod per branch, created from a rendered template, looked up
// by a well-known label, deleted on request. Grounded on the original
// dispatcher's pods.py, translated from the Python kubernetes client into
// k8s.io/client-go, and on kubetask-io-kubetask's pod_builder.go for the
// pod-spec construction idiom.
package podlifecycle

import "strings"

const namePrefix = "yolo-cage-"

// BranchLabel and AppLabel are the well-known labels spec §4.8 List/Get
// filter on.
const (
	BranchLabel = "yolo-cage/branch"
	AppLabel    = "app"
	AppValue    = "yolo-cage"
)

// SandboxName derives the pod name for branch: lowercase, replace '/' and
// '_' with '-', then prefix.
func SandboxName(branch string) string {
	lower := strings.ToLower(branch)
	replaced := strings.Map(func(r rune) rune {
		if r == '/' || r == '_' {
			return '-'
		}
		return r
	}, lower)
	return namePrefix + replaced
}
