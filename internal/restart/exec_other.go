//go:build !unix

package restart

func execve(string, []string, []string) error {
	return ErrUnsupported
}
