package podlifecycle

import "testing"

func TestBuildPodSpecSetsLabelsAndName(t *testing.T) {
	pod, err := BuildPodSpec(PodSpecInputs{
		Namespace:      "yolo-cage",
		Branch:         "feature/x",
		Image:          "yolo-cage/agent:latest",
		DispatcherAddr: "http://dispatcher:8080",
		ProxyAddr:      "http://proxy:3128",
	})
	if err != nil {
		t.Fatalf("BuildPodSpec: %v", err)
	}
	if pod.Name != "yolo-cage-feature-x" {
		t.Fatalf("expected sandbox name yolo-cage-feature-x, got %q", pod.Name)
	}
	if pod.Namespace != "yolo-cage" {
		t.Fatalf("expected namespace yolo-cage, got %q", pod.Namespace)
	}
	if pod.Labels["yolo-cage/branch"] != "feature/x" {
		t.Fatalf("expected branch label feature/x, got %q", pod.Labels["yolo-cage/branch"])
	}
	if len(pod.Spec.InitContainers) != 1 {
		t.Fatalf("expected exactly one init container, got %d", len(pod.Spec.InitContainers))
	}
	if len(pod.Spec.Containers) != 1 {
		t.Fatalf("expected exactly one main container, got %d", len(pod.Spec.Containers))
	}
}

func TestBuildPodSpecMountsWorkspaceAsHostPath(t *testing.T) {
	pod, err := BuildPodSpec(PodSpecInputs{
		Namespace:      "yolo-cage",
		Branch:         "feature/x",
		Image:          "yolo-cage/agent:latest",
		DispatcherAddr: "http://dispatcher:8080",
		ProxyAddr:      "http://proxy:3128",
		WorkspacePath:  "/var/lib/yolo-cage/workspaces/feature/x",
		NodeName:       "node-1",
	})
	if err != nil {
		t.Fatalf("BuildPodSpec: %v", err)
	}

	var sawWorkspaceVol bool
	for _, v := range pod.Spec.Volumes {
		if v.Name != "workspace" {
			continue
		}
		sawWorkspaceVol = true
		if v.HostPath == nil {
			t.Fatalf("expected workspace volume to be a hostPath, got %+v", v)
		}
		if v.EmptyDir != nil {
			t.Fatalf("expected workspace volume not to be an emptyDir")
		}
		if v.HostPath.Path != "/var/lib/yolo-cage/workspaces/feature/x" {
			t.Fatalf("expected hostPath to be the branch workspace directory, got %q", v.HostPath.Path)
		}
	}
	if !sawWorkspaceVol {
		t.Fatalf("expected a workspace volume, got %+v", pod.Spec.Volumes)
	}

	if pod.Spec.NodeName != "node-1" {
		t.Fatalf("expected the pod pinned to the dispatcher's node, got nodeName %q", pod.Spec.NodeName)
	}
}

func TestBuildPodSpecWithoutNodeNameLeavesSchedulingFree(t *testing.T) {
	pod, err := BuildPodSpec(PodSpecInputs{
		Namespace:      "yolo-cage",
		Branch:         "feature/x",
		Image:          "yolo-cage/agent:latest",
		DispatcherAddr: "http://dispatcher:8080",
		ProxyAddr:      "http://proxy:3128",
		WorkspacePath:  "/var/lib/yolo-cage/workspaces/feature/x",
	})
	if err != nil {
		t.Fatalf("BuildPodSpec: %v", err)
	}
	if pod.Spec.NodeName != "" {
		t.Fatalf("expected no nodeName when NodeName is unset, got %q", pod.Spec.NodeName)
	}
}

func TestBuildPodSpecWithForgeAPIBypass(t *testing.T) {
	pod, err := BuildPodSpec(PodSpecInputs{
		Namespace:      "yolo-cage",
		Branch:         "main",
		Image:          "yolo-cage/agent:latest",
		DispatcherAddr: "http://dispatcher:8080",
		ProxyAddr:      "http://proxy:3128",
		ForgeAPIBypass: []string{"api.github.com"},
	})
	if err != nil {
		t.Fatalf("BuildPodSpec: %v", err)
	}
	found := false
	for _, env := range pod.Spec.Containers[0].Env {
		if env.Name == "NO_PROXY" && env.Value == "api.github.com" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected NO_PROXY env var with forge API bypass host, got %+v", pod.Spec.Containers[0].Env)
	}
}
