package podlifecycle

import (
	"context"
	"fmt"
	"os"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/yolo-cage/yolo-cage/pkg/protocol"
)

// Manager wraps a Kubernetes CoreV1 client scoped to one namespace, the
// way _init_k8s_client()/CoreV1Api did in the original dispatcher.
type Manager struct {
	client    kubernetes.Interface
	namespace string
	image     string
	// DispatcherAddr and ProxyAddr are wired into every rendered pod spec.
	DispatcherAddr string
	ProxyAddr      string
	ForgeAPIBypass []string
	// WorkspaceRoot roots every branch's workspace directory
	// (<WorkspaceRoot>/<branch>); Create hostPath-mounts it into the
	// sandbox pod, and Delete consults it when cleanWorkspace is set.
	WorkspaceRoot string
	// NodeName pins every sandbox pod to the node the dispatcher itself
	// runs on, so the hostPath workspace mount resolves to the same
	// filesystem the dispatcher's own git invocations use. Empty means
	// unset (e.g. local/non-cluster development), in which case the
	// scheduler places the pod freely and the workspace mount will not
	// line up with the dispatcher's filesystem.
	NodeName string
}

// New wraps an already-constructed client-go clientset.
func New(client kubernetes.Interface, namespace, image string) *Manager {
	return &Manager{client: client, namespace: namespace, image: image}
}

// Create is idempotent-by-name (spec §4.8): if the sandbox already exists,
// its current record is returned with AlreadyExisted set instead of
// erroring.
func (m *Manager) Create(ctx context.Context, branch string) (protocol.SandboxRecord, error) {
	name := SandboxName(branch)

	existing, err := m.client.CoreV1().Pods(m.namespace).Get(ctx, name, metav1.GetOptions{})
	if err == nil {
		return toRecord(existing, true), nil
	}
	if !apierrors.IsNotFound(err) {
		return protocol.SandboxRecord{}, fmt.Errorf("podlifecycle: get %q: %w", name, err)
	}

	pod, err := BuildPodSpec(PodSpecInputs{
		Namespace:      m.namespace,
		Branch:         branch,
		Image:          m.image,
		DispatcherAddr: m.DispatcherAddr,
		ProxyAddr:      m.ProxyAddr,
		ForgeAPIBypass: m.ForgeAPIBypass,
		WorkspacePath:  m.WorkspaceRoot + "/" + branch,
		NodeName:       m.NodeName,
	})
	if err != nil {
		return protocol.SandboxRecord{}, err
	}

	created, err := m.client.CoreV1().Pods(m.namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		return protocol.SandboxRecord{}, fmt.Errorf("podlifecycle: create %q: %w", name, err)
	}
	return toRecord(created, false), nil
}

// List returns all sandboxes under the well-known app label.
func (m *Manager) List(ctx context.Context) ([]protocol.SandboxRecord, error) {
	list, err := m.client.CoreV1().Pods(m.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: AppLabel + "=" + AppValue,
	})
	if err != nil {
		return nil, fmt.Errorf("podlifecycle: list: %w", err)
	}

	records := make([]protocol.SandboxRecord, 0, len(list.Items))
	for i := range list.Items {
		records = append(records, toRecord(&list.Items[i], false))
	}
	return records, nil
}

// Get returns the sandbox for branch, or ok=false if it does not exist.
func (m *Manager) Get(ctx context.Context, branch string) (protocol.SandboxRecord, bool, error) {
	pod, err := m.client.CoreV1().Pods(m.namespace).Get(ctx, SandboxName(branch), metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return protocol.SandboxRecord{}, false, nil
	}
	if err != nil {
		return protocol.SandboxRecord{}, false, fmt.Errorf("podlifecycle: get %q: %w", branch, err)
	}
	return toRecord(pod, false), true, nil
}

// Delete removes the sandbox for branch, optionally cleaning the
// on-disk workspace. Returns whether the sandbox existed.
func (m *Manager) Delete(ctx context.Context, branch string, cleanWorkspace bool) (bool, error) {
	name := SandboxName(branch)
	err := m.client.CoreV1().Pods(m.namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("podlifecycle: delete %q: %w", name, err)
	}

	if cleanWorkspace && m.WorkspaceRoot != "" {
		path := m.WorkspaceRoot + "/" + branch
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return true, fmt.Errorf("podlifecycle: clean workspace %q: %w", path, rmErr)
		}
	}
	return true, nil
}

func toRecord(pod *corev1.Pod, alreadyExisted bool) protocol.SandboxRecord {
	branch := pod.Labels[BranchLabel]
	return protocol.SandboxRecord{
		Name:           pod.Name,
		Branch:         branch,
		Phase:          toPhase(pod.Status.Phase),
		Address:        pod.Status.PodIP,
		Created:        pod.CreationTimestamp.Time,
		AlreadyExisted: alreadyExisted,
	}
}

func toPhase(phase corev1.PodPhase) protocol.SandboxPhase {
	switch phase {
	case corev1.PodPending:
		return protocol.SandboxPending
	case corev1.PodRunning:
		return protocol.SandboxRunning
	case corev1.PodSucceeded:
		return protocol.SandboxSucceeded
	case corev1.PodFailed:
		return protocol.SandboxFailed
	default:
		return protocol.SandboxUnknown
	}
}
