//go:build !windows

package result

import (
	"errors"

	"golang.org/x/sys/unix"
)

func processAlive(pid int) (alive, known bool) {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM), true
}
