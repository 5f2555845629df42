//go:build !unix

package jobs

import "os/exec"

// setProcessGroup is a no-op where process groups are unavailable;
// WaitDelay alone bounds the wait there.
func setProcessGroup(cmd *exec.Cmd) {}
