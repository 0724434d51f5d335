package pipeline

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/backmassage/pixmaster/internal/codec"
	"github.com/backmassage/pixmaster/internal/job"
	"github.com/backmassage/pixmaster/internal/naming"
)

// Discover walks inputDir and returns every supported input in natural
// order. Hidden directories and our own temporary files are skipped. When
// recursive is false only the top level is listed.
func Discover(inputDir string, recursive bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == inputDir {
				return nil
			}
			if !recursive || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".pixmaster-") {
			return nil
		}
		if codec.IsSupportedInput(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	naming.SortNatural(files)
	return files, nil
}

// ExpandInputs turns command-line arguments (files or directories) into an
// ordered input list. Directories are expanded with Discover; files with
// unsupported extensions are returned in ignored. Missing files are kept so
// the batch reports them as failed items.
func ExpandInputs(args []string, recursive bool) (files, ignored []string, err error) {
	for _, arg := range args {
		info, statErr := os.Stat(arg)
		switch {
		case statErr == nil && info.IsDir():
			found, err := Discover(arg, recursive)
			if err != nil {
				return nil, nil, fmt.Errorf("discover %s: %w", arg, err)
			}
			files = append(files, found...)
		case codec.IsSupportedInput(arg):
			files = append(files, arg)
		default:
			ignored = append(ignored, arg)
		}
	}
	return files, ignored, nil
}

// FileItems wraps paths as single-file job items, preserving order.
func FileItems(paths []string) []job.Item {
	items := make([]job.Item, len(paths))
	for i, p := range paths {
		items[i] = job.NewItem(p)
	}
	return items
}

// GroupItems builds stitch groups from arguments: each directory argument
// becomes one folder group; the remaining files form a single explicit
// group named name.
func GroupItems(args []string, name string) []job.Item {
	var (
		items   []job.Item
		members []string
	)
	for _, arg := range args {
		if info, err := os.Stat(arg); err == nil && info.IsDir() {
			clean := filepath.Clean(arg)
			items = append(items, job.Item{Source: clean, DisplayName: filepath.Base(clean), Dir: true})
			continue
		}
		members = append(members, arg)
	}
	if len(members) > 0 {
		items = append(items, job.Item{Source: name, DisplayName: name, Members: members})
	}
	return items
}

// itemSize is the input size of an item: the file size, or the summed size
// of a group's members. Unreadable members count as zero.
func itemSize(item job.Item) int64 {
	if len(item.Members) > 0 {
		var total int64
		for _, m := range item.Members {
			total += fileSize(m)
		}
		return total
	}
	if item.Dir {
		files, err := Discover(item.Source, false)
		if err != nil {
			return 0
		}
		var total int64
		for _, f := range files {
			total += fileSize(f)
		}
		return total
	}
	return fileSize(item.Source)
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return 0
	}
	return info.Size()
}
