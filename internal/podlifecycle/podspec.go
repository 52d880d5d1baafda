package podlifecycle

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	corev1 "k8s.io/api/core/v1"
	sigsyaml "sigs.k8s.io/yaml"
)

// PodSpecInputs parameterizes the rendered pod spec: branch name, an
// optional destination-bypass list for the egress proxy, and the image
// references the cluster operator configured. Mirrors the original
// dispatcher's ${BRANCH}/${PROXY_BYPASS} substitution into a bundled
// pod-template.yaml, reworked as a typed text/template.Template render
// into a YAML document, then decoded into a corev1.Pod.
type PodSpecInputs struct {
	Namespace      string
	Branch         string
	Image          string
	DispatcherAddr string
	ProxyAddr      string
	ForgeAPIBypass []string
	// WorkspacePath is the on-disk directory the dispatcher itself
	// bootstraps and runs git against for this branch
	// (<WorkspaceRoot>/<branch>). It is hostPath-mounted into the sandbox
	// so the agent's edits and the dispatcher's git invocations observe
	// the same files (spec.md glossary: the workspace "lives outside any
	// sandbox and is mounted into the sandbox").
	WorkspacePath string
	// NodeName pins the sandbox pod to the same node the dispatcher pod
	// itself runs on, since a hostPath volume only resolves to the
	// dispatcher's filesystem when both pods are scheduled on that node.
	NodeName string
}

var podTemplate = template.Must(template.New("sandbox-pod").Parse(`
apiVersion: v1
kind: Pod
metadata:
  name: {{ .Name }}
  namespace: {{ .Namespace }}
  labels:
    app: yolo-cage
    yolo-cage/branch: {{ .Branch | printf "%q" }}
spec:
  restartPolicy: Never
{{- if .NodeName }}
  nodeName: {{ .NodeName | printf "%q" }}
{{- end }}
  initContainers:
    - name: trust-proxy-ca
      image: {{ .Image }}
      command: ["sh", "-c", "cp /etc/yolo-cage/ca.pem /usr/local/share/ca-certificates/yolo-cage-proxy.crt && update-ca-certificates"]
      volumeMounts:
        - name: proxy-ca
          mountPath: /etc/yolo-cage
          readOnly: true
        - name: workspace
          mountPath: /workspace
  containers:
    - name: agent
      image: {{ .Image }}
      command: ["/usr/local/bin/yolo-cage-shim", "run"]
      env:
        - name: YOLO_CAGE_BRANCH
          value: {{ .Branch | printf "%q" }}
        - name: YOLO_CAGE_DISPATCHER_ADDR
          value: {{ .DispatcherAddr | printf "%q" }}
        - name: HTTPS_PROXY
          value: {{ .ProxyAddr | printf "%q" }}
        - name: HTTP_PROXY
          value: {{ .ProxyAddr | printf "%q" }}
{{- if .ForgeAPIBypass }}
        - name: NO_PROXY
          value: {{ .ForgeAPIBypass | printf "%q" }}
{{- end }}
      volumeMounts:
        - name: workspace
          mountPath: /home/dev/workspace
  volumes:
    - name: workspace
      hostPath:
        path: {{ .WorkspacePath | printf "%q" }}
        type: DirectoryOrCreate
    - name: proxy-ca
      configMap:
        name: yolo-cage-proxy-ca
`))

type templateVars struct {
	Name           string
	Namespace      string
	Branch         string
	Image          string
	DispatcherAddr string
	ProxyAddr      string
	ForgeAPIBypass string
	WorkspacePath  string
	NodeName       string
}

// BuildPodSpec renders a corev1.Pod for in.Branch: an init container that
// pre-trusts the interception proxy's root certificate, and a main
// container that runs the agent pointed at the dispatcher and proxy.
func BuildPodSpec(in PodSpecInputs) (*corev1.Pod, error) {
	vars := templateVars{
		Name:           SandboxName(in.Branch),
		Namespace:      in.Namespace,
		Branch:         in.Branch,
		Image:          in.Image,
		DispatcherAddr: in.DispatcherAddr,
		ProxyAddr:      in.ProxyAddr,
		ForgeAPIBypass: strings.Join(in.ForgeAPIBypass, ","),
		WorkspacePath:  in.WorkspacePath,
		NodeName:       in.NodeName,
	}

	var buf bytes.Buffer
	if err := podTemplate.Execute(&buf, vars); err != nil {
		return nil, fmt.Errorf("podlifecycle: render pod template: %w", err)
	}

	var pod corev1.Pod
	if err := sigsyaml.Unmarshal(buf.Bytes(), &pod); err != nil {
		return nil, fmt.Errorf("podlifecycle: decode rendered pod manifest: %w", err)
	}
	return &pod, nil
}
