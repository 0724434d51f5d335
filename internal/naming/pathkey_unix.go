//go:build !windows && !darwin

package naming

import "path/filepath"

func pathKey(p string) string { return filepath.Clean(p) }
