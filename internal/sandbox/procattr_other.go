//go:build !unix

package sandbox

import (
	"os"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

func killGroup(cmd *exec.Cmd) {}

func signalOf(state *os.ProcessState) (string, int, bool) { return "", 0, false }
