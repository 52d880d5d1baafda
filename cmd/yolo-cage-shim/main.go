// Command yolo-cage-shim is the multicall binary mounted over git and gh
// inside every sandbox. argv[0] selects its behavior: invoked as "git" or
// "gh" it serializes the invocation to the dispatcher and reproduces the
// advertised exit code and output; invoked under its own name it prints a
// short usage banner. Grounded on
// calvinalkan-agent-sandbox/cmd/agent-sandbox's argv[0] multicall dispatch
// (run.go, multicall.go).
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/yolo-cage/yolo-cage/internal/shim"
)

const selfName = "yolo-cage-shim"

func main() {
	os.Exit(run(os.Args, os.Stdin, os.Stdout, os.Stderr, os.Getenv))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer, getenv func(string) string) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "yolo-cage-shim: missing argv[0]")
		return 1
	}

	invoked := filepath.Base(args[0])
	switch invoked {
	case "git", "gh":
		return dispatch(invoked, args[1:], stdin, stdout, stderr, getenv)
	case selfName:
		fmt.Fprintln(stdout, "yolo-cage-shim: multicall binary for git/gh, invoke via a git or gh symlink")
		return 0
	default:
		fmt.Fprintf(stderr, "yolo-cage-shim: %s: not a wrapped command\n", invoked)
		return 1
	}
}

func dispatch(cmdName string, cmdArgs []string, stdin io.Reader, stdout, stderr io.Writer, getenv func(string) string) int {
	dispatcherAddr := getenv("YOLO_CAGE_DISPATCHER_ADDR")
	if dispatcherAddr == "" {
		fmt.Fprintln(stderr, "yolo-cage-shim: YOLO_CAGE_DISPATCHER_ADDR is not set")
		return 1
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(stderr, "yolo-cage-shim: getwd: %v\n", err)
		return 1
	}

	client := shim.NewClient(dispatcherAddr)
	ctx := context.Background()

	var (
		output   string
		exitCode int
	)

	if cmdName == "git" {
		r, err := client.RunGit(ctx, cmdArgs, cwd)
		if err != nil {
			fmt.Fprintf(stderr, "yolo-cage-shim: %v\n", err)
			return 1
		}
		output, exitCode = r.Output, r.ExitCode
	} else {
		files, err := shim.CollectBodyFiles(cmdArgs)
		if err != nil {
			fmt.Fprintf(stderr, "yolo-cage-shim: %v\n", err)
			return 1
		}
		stdinBody, err := shim.ReadStdinIfPiped(cmdArgs, stdin)
		if err != nil {
			fmt.Fprintf(stderr, "yolo-cage-shim: %v\n", err)
			return 1
		}
		r, err := client.RunGh(ctx, cmdArgs, cwd, files, stdinBody)
		if err != nil {
			fmt.Fprintf(stderr, "yolo-cage-shim: %v\n", err)
			return 1
		}
		output, exitCode = r.Output, r.ExitCode
	}

	fmt.Fprint(stdout, output)
	return exitCode
}
