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
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

// writeSeries writes one 2x2 slice per z value, named IM0, IM1 and so on.
func writeSeries(t *testing.T, dir string, temporal int, zs ...float64) {
	t.Helper()
	for i, z := range zs {
		writeFile(t, filepath.Join(dir, "IM"+string(rune('0'+i))), slice16(2, 2, z, temporal, []uint16{uint16(z), 1, 2, 3}))
	}
}

func depths(v *Volume) []float64 {
	var out []float64
	for i := 0; i < v.Len(); i++ {
		out = append(out, v.Slice(i).Info.Pose.P.Z)
	}
	return out
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.dcm", "b.txt", filepath.Join("sub", "c.dcm")} {
		writeFile(t, filepath.Join(dir, name), []byte("x"))
	}
	tests := []struct {
		name string
		root string
		opts LoadOptions
		want []string
	}{
		{"flat", dir, LoadOptions{}, []string{"a.dcm", "b.txt"}},
		{"recursive", dir, LoadOptions{Recursive: true}, []string{"a.dcm", "b.txt", filepath.Join("sub", "c.dcm")}},
		{"pattern", dir, LoadOptions{Recursive: true, Pattern: regexp.MustCompile(`.*\.dcm`)}, []string{"a.dcm", filepath.Join("sub", "c.dcm")}},
		{"pattern must match whole path", dir, LoadOptions{Recursive: true, Pattern: regexp.MustCompile(`\.dcm`)}, nil},
		{"single file", filepath.Join(dir, "b.txt"), LoadOptions{Pattern: regexp.MustCompile(`nothing`)}, []string{"b.txt"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			files, err := ListFiles(tc.root, tc.opts)
			if err != nil {
				t.Fatalf("ListFiles: %v", err)
			}
			var got []string
			for _, f := range files {
				rel, err := filepath.Rel(dir, f)
				if err != nil {
					t.Fatal(err)
				}
				got = append(got, rel)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}

	if _, err := ListFiles(filepath.Join(dir, "missing"), LoadOptions{}); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing root: got err %v, want %v", err, os.ErrNotExist)
	}
}

func TestReadDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "series")
	writeSeries(t, dir, -1, 2, 0, 3, 1)
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("not a DICOM file"))

	vol, err := newTestReader().ReadDir(context.Background(), nil, dir, DefaultLoadOptions())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if got, want := depths(vol), []float64{0, 1, 2, 3}; !reflect.DeepEqual(got, want) {
		t.Errorf("got depths %v, want %v", got, want)
	}
	if got := vol.Title(); got != "series" {
		t.Errorf("got title %q, want series", got)
	}
	if got := vol.NumTimes(); got != 1 {
		t.Errorf("got %d time groups, want 1", got)
	}
	for i := 0; i < vol.Len(); i++ {
		if got := vol.Slice(i).PixelBuffer().Pixel(0); got != i {
			t.Errorf("slice %d: got first pixel %v, want %v", i, got, i)
		}
	}
}

func TestReadDirTemporalPositions(t *testing.T) {
	root := t.TempDir()
	first, second := filepath.Join(root, "t0"), filepath.Join(root, "t1")
	writeSeries(t, first, -1, 0, 1)
	writeSeries(t, second, -1, 1, 0)
	r := newTestReader()

	vol, err := r.ReadDir(context.Background(), nil, first, DefaultLoadOptions())
	if err != nil {
		t.Fatalf("ReadDir(t0): %v", err)
	}
	// a second series without temporal positions becomes the next time group
	vol, err = r.ReadDir(context.Background(), vol, second, DefaultLoadOptions())
	if err != nil {
		t.Fatalf("ReadDir(t1): %v", err)
	}
	if got, want := vol.TimeOffsets(), []int{0, 2}; !reflect.DeepEqual(got, want) {
		t.Errorf("got time offsets %v, want %v", got, want)
	}
	if got, want := depths(vol), []float64{0, 1, 0, 1}; !reflect.DeepEqual(got, want) {
		t.Errorf("got depths %v, want %v", got, want)
	}
	if got := vol.Title(); got != "t0" {
		t.Errorf("got title %q, want t0", got)
	}

	// an explicit position overrides the headers
	opts := DefaultLoadOptions()
	opts.Recursive = true
	opts.TemporalPosition = 0
	vol, err = r.ReadDir(context.Background(), nil, root, opts)
	if err != nil {
		t.Fatalf("ReadDir(root): %v", err)
	}
	if got := vol.NumTimes(); got != 1 || vol.Len() != 4 {
		t.Errorf("got %d slices in %d time groups, want 4 in 1", vol.Len(), got)
	}
}

func TestReadDirHeaderTemporalPositions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a"), slice16(2, 2, 0, 1, []uint16{0, 0, 0, 0}))
	writeFile(t, filepath.Join(dir, "b"), slice16(2, 2, 1, 0, []uint16{0, 0, 0, 0}))
	writeFile(t, filepath.Join(dir, "c"), slice16(2, 2, 0, 0, []uint16{0, 0, 0, 0}))
	writeFile(t, filepath.Join(dir, "d"), slice16(2, 2, 1, 1, []uint16{0, 0, 0, 0}))

	vol, err := newTestReader().ReadDir(context.Background(), nil, dir, DefaultLoadOptions())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var got []string
	for i := 0; i < vol.Len(); i++ {
		got = append(got, vol.Slice(i).Info.Title)
	}
	if want := []string{"c", "b", "a", "d"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got order %v, want %v", got, want)
	}
}

func TestReadDirDuplicates(t *testing.T) {
	dir := t.TempDir()
	data := slice16(2, 2, 0, -1, []uint16{1, 2, 3, 4})
	writeFile(t, filepath.Join(dir, "a"), data)
	writeFile(t, filepath.Join(dir, "copy-of-a"), data)
	tests := []struct {
		name string
		skip bool
		want int
	}{
		{"kept", false, 2},
		{"skipped", true, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultLoadOptions()
			opts.SkipDuplicates = tc.skip
			vol, err := newTestReader().ReadDir(context.Background(), nil, dir, opts)
			if err != nil {
				t.Fatalf("ReadDir: %v", err)
			}
			if got := vol.Len(); got != tc.want {
				t.Errorf("got %d slices, want %d", got, tc.want)
			}
		})
	}
}

func TestReadDirDuplicatesLogLevel(t *testing.T) {
	dir := t.TempDir()
	data := slice16(2, 2, 0, -1, []uint16{1, 2, 3, 4})
	writeFile(t, filepath.Join(dir, "a"), data)
	writeFile(t, filepath.Join(dir, "copy-of-a"), data)
	tests := []struct {
		name   string
		level  slog.Level
		logged bool
	}{
		{"info", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var logs bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: tc.level}))
			opts := DefaultLoadOptions()
			opts.SkipDuplicates = true
			if _, err := newTestReader(WithLogger(logger)).ReadDir(context.Background(), nil, dir, opts); err != nil {
				t.Fatalf("ReadDir: %v", err)
			}
			if got := strings.Contains(logs.String(), "skipping duplicate file"); got != tc.logged {
				t.Errorf("duplicate logged: got %v, want %v (log %q)", got, tc.logged, logs.String())
			}
		})
	}
}

func TestReadFilesIncompatible(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a"), slice16(2, 2, 0, -1, []uint16{0, 0, 0, 0}))
	writeFile(t, filepath.Join(dir, "b"), slice16(2, 2, 1, -1, []uint16{0, 0, 0, 0}))
	writeFile(t, filepath.Join(dir, "c"), slice16(1, 3, 2, -1, []uint16{0, 0, 0}))
	opts := DefaultLoadOptions()
	opts.Workers = 1
	vol, err := newTestReader().ReadDir(context.Background(), nil, dir, opts)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if got := vol.Len(); got != 2 {
		t.Errorf("got %d slices, want 2", got)
	}
}

func TestReadFilesNoSlices(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "junk"), []byte("junk"))
	r := newTestReader()
	if _, err := r.ReadDir(context.Background(), nil, dir, DefaultLoadOptions()); !errors.Is(err, ErrNoSlices) {
		t.Errorf("unreadable files: got err %v, want %v", err, ErrNoSlices)
	}
	if _, err := r.ReadFiles(context.Background(), nil, nil, DefaultLoadOptions()); !errors.Is(err, ErrNoSlices) {
		t.Errorf("no files: got err %v, want %v", err, ErrNoSlices)
	}
	vol := NewVolume("v", testSlice("a", 0, 0))
	if got, err := r.ReadFiles(context.Background(), vol, nil, DefaultLoadOptions()); err != nil || got != vol {
		t.Errorf("no files into a volume: got %v %v, want the volume back", got, err)
	}
}

func TestReadFilesCancelled(t *testing.T) {
	dir := t.TempDir()
	writeSeries(t, dir, -1, 0, 1, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newTestReader().ReadDir(ctx, nil, dir, DefaultLoadOptions()); !errors.Is(err, context.Canceled) {
		t.Errorf("got err %v, want %v", err, context.Canceled)
	}
}
