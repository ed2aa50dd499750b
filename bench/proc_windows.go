//go:build windows

package bench

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}

// killTree on windows only reaches the direct child; descendants of a killed
// benchmark are rare enough there that job objects are not worth the cgo.
func killTree(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
