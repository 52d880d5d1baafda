package reaper

import (
	"context"
	"log/slog"
	"testing"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/yolo-cage/yolo-cage/internal/podlifecycle"
	"github.com/yolo-cage/yolo-cage/internal/registry"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(devNull{}, nil))
}

type devNull struct{}

func (devNull) Write(p []byte) (int, error) { return len(p), nil }

func ageSandbox(t *testing.T, client *fake.Clientset, namespace, name string, age time.Duration) {
	t.Helper()
	pod, err := client.CoreV1().Pods(namespace).Get(context.Background(), name, metav1.GetOptions{})
	if err != nil {
		t.Fatalf("get pod %q: %v", name, err)
	}
	pod.CreationTimestamp = metav1.NewTime(time.Now().Add(-age))
	if _, err := client.CoreV1().Pods(namespace).Update(context.Background(), pod, metav1.UpdateOptions{}); err != nil {
		t.Fatalf("update pod %q: %v", name, err)
	}
}

func TestValidateRejectsMalformedExpression(t *testing.T) {
	r := New(nil, nil, "not a cron expr", time.Hour, discardLog())
	if err := r.Validate(); err == nil {
		t.Fatalf("expected error for malformed cron expression")
	}
}

func TestValidateAcceptsWellFormedExpression(t *testing.T) {
	r := New(nil, nil, "*/5 * * * *", time.Hour, discardLog())
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestSweepOnceDeletesOnlyStaleSandboxes(t *testing.T) {
	client := fake.NewSimpleClientset()
	mgr := podlifecycle.New(client, "yolo-cage", "yolo-cage/agent:latest")
	reg := registry.New()

	if _, err := mgr.Create(context.Background(), "feature/stale"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := mgr.Create(context.Background(), "feature/fresh"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	reg.Register("10.0.0.1", "feature/stale")
	reg.Register("10.0.0.2", "feature/fresh")

	ageSandbox(t, client, "yolo-cage", podlifecycle.SandboxName("feature/stale"), 2*time.Hour)
	ageSandbox(t, client, "yolo-cage", podlifecycle.SandboxName("feature/fresh"), time.Minute)

	r := New(mgr, reg, "*/5 * * * *", time.Hour, discardLog())
	deleted, err := r.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deletion, got %d", deleted)
	}

	records, err := mgr.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 1 || records[0].Branch != "feature/fresh" {
		t.Fatalf("expected only feature/fresh to survive, got %+v", records)
	}

	if _, ok := reg.Lookup("10.0.0.1"); ok {
		t.Fatalf("expected stale sandbox's registry assignment to be cleared")
	}
	if branch, ok := reg.Lookup("10.0.0.2"); !ok || branch != "feature/fresh" {
		t.Fatalf("expected fresh sandbox's registry assignment to survive")
	}
}

func TestSweepOnceDeletesNothingWhenAllFresh(t *testing.T) {
	client := fake.NewSimpleClientset()
	mgr := podlifecycle.New(client, "yolo-cage", "yolo-cage/agent:latest")

	if _, err := mgr.Create(context.Background(), "feature/x"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	r := New(mgr, nil, "*/5 * * * *", time.Hour, discardLog())
	deleted, err := r.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("expected 0 deletions, got %d", deleted)
	}
}

func TestRunReturnsImmediatelyOnInvalidSchedule(t *testing.T) {
	r := New(nil, nil, "garbage", time.Hour, discardLog())
	if err := r.Run(context.Background()); err == nil {
		t.Fatalf("expected Run to fail fast on an invalid schedule")
	}
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	client := fake.NewSimpleClientset()
	mgr := podlifecycle.New(client, "yolo-cage", "yolo-cage/agent:latest")

	r := New(mgr, nil, "*/5 * * * *", time.Hour, discardLog())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := r.Run(ctx); err == nil {
		t.Fatalf("expected Run to return ctx.Err() once canceled")
	}
}
