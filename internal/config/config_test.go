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

package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/GoogleCloudPlatform/go-dicom-volume/dicom"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default configuration is invalid: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv("DCMVOLUME_TEST_CACHE", "/tmp/snapshots")
	path := writeConfig(t, `
reader:
  pattern: '.*\.dcm'
  recursive: true
  workers: 4
  imagemagick: ""
cache:
  dir: ${DCMVOLUME_TEST_CACHE}/volumes
  compression: zstd
log:
  level: debug
transfer_syntaxes:
  - name: Private Little Endian
    uid: 1.2.3.4.5
    little_endian: true
    explicit_vr: true
`)
	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	want := Default()
	want.Reader.Pattern = `.*\.dcm`
	want.Reader.Recursive = true
	want.Reader.Workers = 4
	want.Reader.ImageMagick = ""
	want.Cache.Dir = "/tmp/snapshots/volumes"
	want.Cache.Compression = "zstd"
	want.Log.Level = "debug"
	want.TransferSyntaxes = []TransferSyntaxConfig{
		{Name: "Private Little Endian", UID: "1.2.3.4.5", LittleEndian: true, ExplicitVR: true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); !os.IsNotExist(err) {
		t.Errorf("got error %v, want a not exist error", err)
	}
	if _, err := LoadFile(writeConfig(t, "reader: [")); err == nil {
		t.Error("got nil error for malformed YAML")
	}
	if _, err := LoadFile(writeConfig(t, "log:\n  format: xml\n")); err == nil {
		t.Error("got nil error for an invalid format")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		want   string
	}{
		{"pattern", func(c *Config) { c.Reader.Pattern = "(" }, "reader.pattern"},
		{"workers", func(c *Config) { c.Reader.Workers = -1 }, "reader.workers"},
		{"timeout", func(c *Config) { c.Reader.ImageMagickTimeout = "soon" }, "reader.imagemagick_timeout"},
		{"compression", func(c *Config) { c.Cache.Compression = "gzip" }, "cache.compression"},
		{"level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"transfer syntax uid", func(c *Config) {
			c.TransferSyntaxes = []TransferSyntaxConfig{{Name: "no uid", UID: " "}}
		}, "transfer_syntaxes[0].uid"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.modify(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("got error %v, want one mentioning %s", err, tc.want)
			}
		})
	}

	c := Default()
	c.Reader.Workers = -2
	c.Log.Format = "xml"
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "reader.workers") || !strings.Contains(err.Error(), "log.format") {
		t.Errorf("got error %v, want both problems reported", err)
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tc := range tests {
		t.Run(tc.level, func(t *testing.T) {
			got, err := LogConfig{Level: tc.level}.SlogLevel()
			if err != nil {
				t.Fatalf("SlogLevel: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLoadOptions(t *testing.T) {
	c := Default()
	opts, err := c.LoadOptions()
	if err != nil {
		t.Fatalf("LoadOptions: %v", err)
	}
	if opts.Pattern != nil {
		t.Errorf("got pattern %v, want none", opts.Pattern)
	}
	if opts.TemporalPosition != -1 {
		t.Errorf("got temporal position %d, want -1", opts.TemporalPosition)
	}

	c.Reader.Pattern = `IM\d+`
	c.Reader.Workers = 3
	c.Reader.SkipDuplicates = true
	opts, err = c.LoadOptions()
	if err != nil {
		t.Fatalf("LoadOptions: %v", err)
	}
	if opts.Pattern == nil || opts.Pattern.String() != `IM\d+` {
		t.Errorf("got pattern %v, want IM\\d+", opts.Pattern)
	}
	if opts.Workers != 3 || !opts.SkipDuplicates {
		t.Errorf("got workers %d skip duplicates %v, want 3 true", opts.Workers, opts.SkipDuplicates)
	}

	c.Reader.Pattern = "["
	if _, err := c.LoadOptions(); err == nil {
		t.Error("got nil error for an invalid pattern")
	}
}

func TestReaderOptions(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	tests := []struct {
		name         string
		imageMagick  string
		wantDecoders int
		wantWarning  bool
	}{
		{"disabled", "", 2, false},
		{"missing command", "dcmvolume-no-such-command", 2, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			logs.Reset()
			c := Default()
			c.Reader.ImageMagick = tc.imageMagick
			c.TransferSyntaxes = []TransferSyntaxConfig{{Name: "Private", UID: " 1.2.3.4.5 ", LittleEndian: true}}
			opts, err := c.ReaderOptions(logger)
			if err != nil {
				t.Fatalf("ReaderOptions: %v", err)
			}
			r := dicom.NewReader(opts...)
			if got := len(r.ImageDecoders()); got != tc.wantDecoders {
				t.Errorf("got %d decoders, want %d", got, tc.wantDecoders)
			}
			if got := strings.Contains(logs.String(), "ImageMagick decoder disabled"); got != tc.wantWarning {
				t.Errorf("got warning %v, want %v: %s", got, tc.wantWarning, logs.String())
			}
			ts := r.TransferSyntaxes().Lookup("1.2.3.4.5")
			if ts == nil || ts.Name != "Private" || !ts.LittleEndian || ts.ExplicitVR {
				t.Errorf("got transfer syntax %+v, want the configured one", ts)
			}
		})
	}

	c := Default()
	c.Reader.ImageMagickTimeout = "later"
	if _, err := c.ReaderOptions(logger); err == nil {
		t.Error("got nil error for an invalid timeout")
	}
}

func TestCacheSalt(t *testing.T) {
	salt := func(t *testing.T, c *Config) string {
		t.Helper()
		s, err := c.CacheSalt()
		if err != nil {
			t.Fatalf("CacheSalt: %v", err)
		}
		return s
	}
	base := salt(t, Default())
	if got := salt(t, Default()); got != base {
		t.Errorf("salt is not stable: got %q, want %q", got, base)
	}

	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"temporal position", func(c *Config) { c.Reader.TemporalPosition = 0 }},
		{"skip duplicates", func(c *Config) { c.Reader.SkipDuplicates = true }},
		{"drop private", func(c *Config) { c.Reader.DropPrivate = true }},
		{"imagemagick disabled", func(c *Config) { c.Reader.ImageMagick = "" }},
		{"imagemagick timeout", func(c *Config) { c.Reader.ImageMagickTimeout = "1m" }},
		{"transfer syntax", func(c *Config) {
			c.TransferSyntaxes = []TransferSyntaxConfig{{Name: "Private", UID: "1.2.3.4", LittleEndian: true, ExplicitVR: true}}
		}},
		{"transfer syntax flag", func(c *Config) {
			c.TransferSyntaxes = []TransferSyntaxConfig{{Name: "Private", UID: "1.2.3.4", LittleEndian: true}}
		}},
	}
	seen := map[string]string{base: "default"}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.modify(c)
			got := salt(t, c)
			if prev, ok := seen[got]; ok {
				t.Errorf("salt equals the %s salt %q", prev, got)
			}
			seen[got] = tc.name
		})
	}

	c := Default()
	c.Reader.Workers = 8
	c.Cache.Compression = "zstd"
	c.Log.Level = "debug"
	if got := salt(t, c); got != base {
		t.Errorf("salt depends on settings that do not change the volume: got %q, want %q", got, base)
	}
}
