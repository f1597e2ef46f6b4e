//go:build unix

package restart

import "golang.org/x/sys/unix"

func execve(path string, argv []string, env []string) error {
	return unix.Exec(path, argv, env)
}
