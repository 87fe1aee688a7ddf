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

// Package config loads the YAML configuration of the dcmvolume command.
//
// Every setting has a default, so the configuration file is optional. Values in the file
// replace the defaults field by field; ${VAR} references in paths are expanded from the
// environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/GoogleCloudPlatform/go-dicom-volume/dicom"
	"gopkg.in/yaml.v3"
)

// Config is the configuration of the dcmvolume command.
type Config struct {
	// Reader configures decoding and batch loading.
	Reader ReaderConfig `yaml:"reader"`

	// Cache configures the volume snapshot cache.
	Cache CacheConfig `yaml:"cache"`

	// Log configures the slog handler.
	Log LogConfig `yaml:"log"`

	// TransferSyntaxes are added to the transfer syntax registry. A UID that is already
	// registered keeps its built in entry.
	TransferSyntaxes []TransferSyntaxConfig `yaml:"transfer_syntaxes"`
}

// ReaderConfig configures decoding and batch loading.
type ReaderConfig struct {
	// Pattern is a regular expression that file paths must match in full.
	// Default: empty (every file)
	Pattern string `yaml:"pattern"`

	// Recursive descends into subdirectories.
	Recursive bool `yaml:"recursive"`

	// TemporalPosition, when zero or more, overrides the temporal position of every slice.
	// Default: -1 (taken from the headers)
	TemporalPosition int `yaml:"temporal_position"`

	// Workers is the number of files decoded concurrently.
	// Default: 0 (one per CPU)
	Workers int `yaml:"workers"`

	// SkipDuplicates ignores files whose content was already read.
	SkipDuplicates bool `yaml:"skip_duplicates"`

	// ImageMagick is the convert command used for compressed frames no built in decoder
	// handles. An empty value disables it.
	// Default: convert
	ImageMagick string `yaml:"imagemagick"`

	// ImageMagickTimeout bounds one conversion.
	// Default: 30s
	ImageMagickTimeout string `yaml:"imagemagick_timeout"`

	// DropPrivate excludes private elements from headers.
	DropPrivate bool `yaml:"drop_private"`
}

// CacheConfig configures the volume snapshot cache.
type CacheConfig struct {
	// Dir holds snapshots. An empty value disables the cache.
	Dir string `yaml:"dir"`

	// Compression of snapshot pixel data: none, lz4 or zstd.
	// Default: lz4
	Compression string `yaml:"compression"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	// Level is debug, info, warn or error.
	// Default: info
	Level string `yaml:"level"`

	// Format is text or json.
	// Default: text
	Format string `yaml:"format"`
}

// TransferSyntaxConfig describes a transfer syntax unknown to the built in registry.
type TransferSyntaxConfig struct {
	Name         string `yaml:"name"`
	UID          string `yaml:"uid"`
	LittleEndian bool   `yaml:"little_endian"`
	ExplicitVR   bool   `yaml:"explicit_vr"`
	Encoded      bool   `yaml:"encoded"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Reader: ReaderConfig{
			TemporalPosition:   -1,
			ImageMagick:        "convert",
			ImageMagickTimeout: "30s",
		},
		Cache: CacheConfig{
			Compression: "lz4",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFile overlays the file at path on the defaults and validates the result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.Cache.Dir = os.ExpandEnv(cfg.Cache.Dir)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error
	if _, err := regexp.Compile(c.Reader.Pattern); err != nil {
		errs = append(errs, fmt.Errorf("reader.pattern: %w", err))
	}
	if c.Reader.Workers < 0 {
		errs = append(errs, fmt.Errorf("reader.workers must not be negative, got %d", c.Reader.Workers))
	}
	if _, err := time.ParseDuration(c.Reader.ImageMagickTimeout); err != nil {
		errs = append(errs, fmt.Errorf("reader.imagemagick_timeout: %w", err))
	}
	switch c.Cache.Compression {
	case "none", "lz4", "zstd":
	default:
		errs = append(errs, fmt.Errorf("cache.compression must be none, lz4 or zstd, got %q", c.Cache.Compression))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	for i, ts := range c.TransferSyntaxes {
		if strings.TrimSpace(ts.UID) == "" {
			errs = append(errs, fmt.Errorf("transfer_syntaxes[%d].uid is required", i))
		}
	}
	return errors.Join(errs...)
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// LoadOptions converts the reader settings to batch load options.
func (c *Config) LoadOptions() (dicom.LoadOptions, error) {
	opts := dicom.LoadOptions{
		Recursive:        c.Reader.Recursive,
		TemporalPosition: c.Reader.TemporalPosition,
		Workers:          c.Reader.Workers,
		SkipDuplicates:   c.Reader.SkipDuplicates,
	}
	if c.Reader.Pattern != "" {
		re, err := regexp.Compile(c.Reader.Pattern)
		if err != nil {
			return opts, fmt.Errorf("reader.pattern: %w", err)
		}
		opts.Pattern = re
	}
	return opts, nil
}

// ReaderOptions converts the reader and transfer syntax settings to dicom reader options.
func (c *Config) ReaderOptions(logger *slog.Logger) ([]dicom.ReaderOption, error) {
	registry := dicom.NewTransferSyntaxRegistry()
	for _, ts := range c.TransferSyntaxes {
		registry.Add(dicom.TransferSyntax{
			Name:         ts.Name,
			UID:          strings.TrimSpace(ts.UID),
			LittleEndian: ts.LittleEndian,
			ExplicitVR:   ts.ExplicitVR,
			Encoded:      ts.Encoded,
		})
	}
	opts := []dicom.ReaderOption{
		dicom.WithLogger(logger),
		dicom.WithTransferSyntaxRegistry(registry),
		dicom.WithMagickCommand(""),
	}
	if c.Reader.DropPrivate {
		opts = append(opts, dicom.DropPrivateElements)
	}
	if c.Reader.ImageMagick == "" {
		return opts, nil
	}

	timeout, err := time.ParseDuration(c.Reader.ImageMagickTimeout)
	if err != nil {
		return nil, fmt.Errorf("reader.imagemagick_timeout: %w", err)
	}
	decoders := []dicom.ImageDecoder{dicom.RawDecoder{}, dicom.CodecDecoder{}}
	if m, err := dicom.NewMagickDecoder(c.Reader.ImageMagick, timeout); err == nil {
		decoders = append(decoders, m)
	} else {
		logger.Warn("ImageMagick decoder disabled", "command", c.Reader.ImageMagick, "error", err)
	}
	return append(opts, dicom.WithImageDecoders(decoders...)), nil
}

// CacheSalt encodes every setting that changes the volume decoded from a given file list, so
// that snapshots taken under other settings are never reused.
func (c *Config) CacheSalt() (string, error) {
	salt := struct {
		TemporalPosition   int                    `yaml:"temporal_position"`
		SkipDuplicates     bool                   `yaml:"skip_duplicates"`
		DropPrivate        bool                   `yaml:"drop_private"`
		ImageMagick        string                 `yaml:"imagemagick"`
		ImageMagickTimeout string                 `yaml:"imagemagick_timeout"`
		TransferSyntaxes   []TransferSyntaxConfig `yaml:"transfer_syntaxes"`
	}{
		TemporalPosition:   c.Reader.TemporalPosition,
		SkipDuplicates:     c.Reader.SkipDuplicates,
		DropPrivate:        c.Reader.DropPrivate,
		ImageMagick:        c.Reader.ImageMagick,
		ImageMagickTimeout: c.Reader.ImageMagickTimeout,
		TransferSyntaxes:   c.TransferSyntaxes,
	}
	out, err := yaml.Marshal(salt)
	if err != nil {
		return "", fmt.Errorf("encoding cache salt: %w", err)
	}
	return string(out), nil
}
