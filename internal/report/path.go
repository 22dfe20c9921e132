package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/sav-assist/internal/errors"
)

// Extension is the only file extension WriteFile accepts.
const Extension = ".xlsx"

// ValidatePath checks an output path before a workbook is written:
// no ".." components, the .xlsx extension, an existing parent directory
// and no symlink on either the parent or the file itself.
func ValidatePath(path string) error {
	if path == "" {
		return errors.NewInvalidRequest("path is required")
	}
	if containsTraversal(path) {
		return errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	if !strings.EqualFold(filepath.Ext(cleaned), Extension) {
		return errors.NewInvalidRequest(fmt.Sprintf("path must have %s extension", Extension))
	}

	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}

	parentDir := filepath.Dir(absPath)
	info, err := os.Lstat(parentDir)
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("directory does not exist: %s", parentDir))
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("parent directory must not be a symlink")
	}
	if !info.IsDir() {
		return errors.NewInvalidRequest(fmt.Sprintf("not a directory: %s", parentDir))
	}

	if info, err := os.Lstat(absPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	return nil
}

func containsTraversal(path string) bool {
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	if filepath.Separator != '/' {
		for _, part := range strings.Split(path, "/") {
			if part == ".." {
				return true
			}
		}
	}
	return false
}
