package procutil

import (
	"os/exec"
	"syscall"
)

// setpgid mirrors the spawner's background-mode launch: each test
// process gets its own group so Stop can be exercised the same way the
// watcher uses it.
func setpgid(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
