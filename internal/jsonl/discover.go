// Copyright 2025 The dmpworks Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package jsonl

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// FindFiles enumerates the files under dir whose base name matches pattern.
// A pattern prefixed with "**/" matches at any depth; otherwise only direct
// children of dir are considered. Results are absolute-as-given paths in
// sorted order so runs over the same tree see the same file list.
func FindFiles(dir, pattern string) ([]string, error) {
	recursive := false
	if rest, ok := strings.CutPrefix(pattern, "**/"); ok {
		recursive = true
		pattern = rest
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid file pattern %q: %w", pattern, err)
	}

	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive && p != dir {
				return fs.SkipDir
			}
			return nil
		}
		ok, _ := path.Match(pattern, d.Name())
		if ok {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files in %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
