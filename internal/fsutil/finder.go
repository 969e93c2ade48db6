// Package fsutil locates flow files on disk.
package fsutil

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// FlowFileExt is the extension a file must carry to be picked up as part
// of a flow definition.
const FlowFileExt = ".hcl"

// FindFlowFiles walks root and returns every flow file beneath it, in the
// lexical order WalkDir yields. Hidden directories are skipped so a flow
// checked out under version control does not pick up editor or VCS state.
func FindFlowFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(d.Name()) == FlowFileExt {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
