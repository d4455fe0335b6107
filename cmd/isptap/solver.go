package main

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// execSolver shells out to an external lp_solve-compatible binary, feeding
// it the serialized model on stdin and reading its textual solution back
// from stdout - the blocking child-process call the IPET solver interface
// (§1, §6) assumes but does not itself implement.
type execSolver struct {
	path    string
	timeout time.Duration
}

func newExecSolver(path string) execSolver {
	return execSolver{path: path, timeout: 30 * time.Second}
}

func (s execSolver) Solve(lpText string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.path)
	cmd.Stdin = bytes.NewBufferString(lpText)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w: %s", s.path, err, stderr.String())
	}
	return stdout.String(), nil
}
