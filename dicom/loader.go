// Copyright 2018 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dicom

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sync"

	"github.com/zeebo/blake3"
)

// LoadOptions control batch loading.
type LoadOptions struct {
	// Pattern, when set, must match the whole slash separated absolute path of a file for the
	// file to be read.
	Pattern *regexp.Regexp
	// Recursive descends into subdirectories.
	Recursive bool
	// TemporalPosition, when zero or more, is assigned to every slice read. Otherwise each
	// slice uses its Temporal Position Identifier, or the number of time groups in the volume
	// being extended when the header has none.
	TemporalPosition int
	// Workers is the number of files decoded concurrently. Zero means one per CPU.
	Workers int
	// SkipDuplicates ignores files whose content is identical to a file already read in the
	// same batch.
	SkipDuplicates bool
}

// DefaultLoadOptions reads every file of a directory, without recursion, taking temporal
// positions from the headers.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{TemporalPosition: -1}
}

// ListFiles returns the files under root accepted by opts. A root that is not a directory is
// returned as is.
func ListFiles(root string, opts LoadOptions) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}
	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && !opts.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		ok, err := matchPath(opts.Pattern, path)
		if err != nil {
			return err
		}
		if ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", root, err)
	}
	return files, nil
}

func matchPath(pattern *regexp.Regexp, path string) (bool, error) {
	if pattern == nil {
		return true, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}
	abs = filepath.ToSlash(abs)
	loc := pattern.FindStringIndex(abs)
	return loc != nil && loc[0] == 0 && loc[1] == len(abs), nil
}

// ReadDir loads the files under dir into vol, or into a new volume titled after dir when vol
// is nil. See ReadFiles.
func (r *Reader) ReadDir(ctx context.Context, vol *Volume, dir string, opts LoadOptions) (*Volume, error) {
	files, err := ListFiles(dir, opts)
	if err != nil {
		return nil, err
	}
	return r.ReadFiles(ctx, vol, files, opts)
}

type fileResult struct {
	path   string
	slices []*Slice
	err    error
}

// ReadFiles decodes files concurrently and adds their slices to vol. When vol is nil a new
// volume is started, titled after the directory of the first file.
//
// Files are folded into the volume as they finish decoding, so the volume is only ever
// modified by the calling goroutine. A file that fails to decode, and a slice that is not
// compatible with the volume, is logged and skipped. ReadFiles returns ErrNoSlices when the
// batch leaves the volume nil.
func (r *Reader) ReadFiles(ctx context.Context, vol *Volume, files []string, opts LoadOptions) (*Volume, error) {
	if len(files) == 0 {
		if vol == nil {
			return nil, ErrNoSlices
		}
		return vol, nil
	}
	title := filepath.Base(filepath.Dir(files[0]))
	numTimes := 0
	if vol != nil {
		numTimes = vol.NumTimes()
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(files))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	paths := make(chan string)
	results := make(chan fileResult)
	var seen sync.Map
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range paths {
				res := r.readFile(path, opts.SkipDuplicates, &seen)
				select {
				case results <- res:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		defer close(paths)
		for _, path := range files {
			select {
			case paths <- path:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	var loaded, failed int
	for res := range results {
		if res.err != nil {
			failed++
			r.logger.Warn("skipping file", "path", res.path, "error", res.err)
			continue
		}
		for _, s := range res.slices {
			if opts.TemporalPosition >= 0 {
				s.Info.TemporalPosition = opts.TemporalPosition
			} else if len(s.header.MultiIntValue(TemporalPositionIdentifierTag)) == 0 {
				s.Info.TemporalPosition = numTimes
			}
			if vol == nil {
				vol = NewVolume(title, s)
				loaded++
				continue
			}
			if !vol.AddSlice(s) {
				r.logger.Warn("skipping incompatible slice", "path", res.path, "slice", s.Info.Title,
					"rows", s.Info.Rows, "cols", s.Info.Cols, "pixel_type", s.PixelType())
				continue
			}
			loaded++
		}
	}
	if err := ctx.Err(); err != nil {
		return vol, err
	}
	r.logger.Debug("batch loaded", "files", len(files), "failed", failed, "slices", loaded)
	if vol == nil {
		return nil, ErrNoSlices
	}
	if vol.Title() == "" {
		vol.SetTitle(title)
	}
	return vol, nil
}

// readFile decodes one file. Duplicate detection hashes the file content, so the file is read
// into memory once and decoded from there.
func (r *Reader) readFile(path string, skipDuplicates bool, seen *sync.Map) fileResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileResult{path: path, err: err}
	}
	if skipDuplicates {
		sum := blake3.Sum256(data)
		if first, dup := seen.LoadOrStore(sum, path); dup {
			r.logger.Debug("skipping duplicate file", "path", path, "duplicate_of", first)
			return fileResult{path: path}
		}
	}
	slices, err := r.ReadSlices(filepath.Base(path), bytes.NewReader(data))
	if err != nil {
		return fileResult{path: path, err: fmt.Errorf("reading %s: %w", path, err)}
	}
	return fileResult{path: path, slices: slices}
}
