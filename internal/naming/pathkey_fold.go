//go:build windows || darwin

package naming

import (
	"path/filepath"
	"strings"
)

// Case-insensitive filesystems: a.PNG and a.png are the same file.
func pathKey(p string) string { return strings.ToLower(filepath.Clean(p)) }
