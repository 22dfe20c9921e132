//go:build windows

package report

import "os"

// createNoFollow creates or truncates path. O_NOFOLLOW does not exist on
// Windows; ValidatePath has already rejected symlinks.
func createNoFollow(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
}
