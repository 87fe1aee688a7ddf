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

// Command dcmvolume assembles DICOM files into a volume and reports on it.
//
// Usage:
//
//	dcmvolume [flags] <dir|file>...
//
// Every argument is read into the same volume: directories through a concurrent batch load,
// files one at a time. The volume summary is printed to stdout.
package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/GoogleCloudPlatform/go-dicom-volume/dicom"
	"github.com/GoogleCloudPlatform/go-dicom-volume/internal/config"
	"github.com/GoogleCloudPlatform/go-dicom-volume/internal/volcache"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath       string
		pattern          string
		recursive        bool
		temporalPosition int
		workers          int
		dump             bool
		cacheDir         string
		compression      string
		pngPath          string
		plane            int
		timeIndex        int
		logLevel         string
		logFormat        string
	)
	flagSet := pflag.NewFlagSet("dcmvolume", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "YAML configuration file")
	flagSet.StringVar(&pattern, "pattern", "", "regular expression the full path of each file must match")
	flagSet.BoolVarP(&recursive, "recursive", "r", false, "descend into subdirectories")
	flagSet.IntVar(&temporalPosition, "temporal-position", -1, "temporal position assigned to every slice (negative: from the headers)")
	flagSet.IntVar(&workers, "workers", 0, "files decoded concurrently (0: one per CPU)")
	flagSet.BoolVar(&dump, "dump", false, "print the header of the first slice")
	flagSet.StringVar(&cacheDir, "cache-dir", "", "directory of volume snapshots")
	flagSet.StringVar(&compression, "compression", "", "snapshot pixel compression: none, lz4 or zstd")
	flagSet.StringVar(&pngPath, "png", "", "write one windowed plane of the volume to this PNG file")
	flagSet.IntVar(&plane, "plane", -1, "slice index of the plane written by --png (negative: middle slice)")
	flagSet.IntVar(&timeIndex, "time", 0, "time group of the plane written by --png")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	flagSet.StringVar(&logFormat, "log-format", "", "text or json")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: dcmvolume [flags] <dir|file>...\n\n")
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() == 0 {
		flagSet.Usage()
		return fmt.Errorf("no input given")
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadFile(configPath); err != nil {
			return err
		}
	}
	if flagSet.Changed("pattern") {
		cfg.Reader.Pattern = pattern
	}
	if flagSet.Changed("recursive") {
		cfg.Reader.Recursive = recursive
	}
	if flagSet.Changed("temporal-position") {
		cfg.Reader.TemporalPosition = temporalPosition
	}
	if flagSet.Changed("workers") {
		cfg.Reader.Workers = workers
	}
	if flagSet.Changed("cache-dir") {
		cfg.Cache.Dir = cacheDir
	}
	if flagSet.Changed("compression") {
		cfg.Cache.Compression = compression
	}
	if flagSet.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flagSet.Changed("log-format") {
		cfg.Log.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vol, err := loadVolume(ctx, cfg, logger, flagSet.Args())
	if err != nil {
		return err
	}

	fmt.Print(vol)
	if dump {
		if err := vol.Slice(0).Header().Dump(os.Stdout); err != nil {
			return err
		}
	}
	if pngPath != "" {
		if plane < 0 {
			plane = vol.NumSlices() / 2
		}
		if err := writePlane(vol, timeIndex, plane, pngPath); err != nil {
			return err
		}
		logger.Info("wrote plane", "path", pngPath, "time", timeIndex, "slice", plane)
	}
	return nil
}

func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

// loadVolume reads every input into one volume, going through the snapshot cache when one is
// configured.
func loadVolume(ctx context.Context, cfg *config.Config, logger *slog.Logger, inputs []string) (*dicom.Volume, error) {
	readerOpts, err := cfg.ReaderOptions(logger)
	if err != nil {
		return nil, err
	}
	loadOpts, err := cfg.LoadOptions()
	if err != nil {
		return nil, err
	}
	reader := dicom.NewReader(readerOpts...)

	var files []string
	for _, in := range inputs {
		f, err := dicom.ListFiles(in, loadOpts)
		if err != nil {
			return nil, err
		}
		files = append(files, f...)
	}

	var cache *volcache.Cache
	var key volcache.Key
	if cfg.Cache.Dir != "" {
		c, err := volcache.ParseCompression(cfg.Cache.Compression)
		if err != nil {
			return nil, err
		}
		if cache, err = volcache.Open(cfg.Cache.Dir, c, logger); err != nil {
			return nil, err
		}
		salt, err := cfg.CacheSalt()
		if err != nil {
			return nil, err
		}
		if key, err = cache.Key(files, salt); err != nil {
			return nil, err
		}
		vol, err := cache.Load(key)
		if err == nil {
			return vol, nil
		}
		if !errors.Is(err, volcache.ErrMiss) {
			logger.Warn("ignoring unreadable volume snapshot", "key", key.String(), "error", err)
		}
	}

	vol, err := reader.ReadFiles(ctx, nil, files, loadOpts)
	if err != nil {
		return nil, err
	}
	vol.Complete()

	if cache != nil {
		if err := cache.Store(key, vol); err != nil {
			logger.Warn("storing volume snapshot", "key", key.String(), "error", err)
		}
	}
	return vol, nil
}

// writePlane writes slice z of time group t as an 8-bit grayscale PNG, windowed by the
// slice's own window when it has one and by the volume's intensity range otherwise.
func writePlane(vol *dicom.Volume, t, z int, path string) error {
	if t < 0 || t >= vol.NumTimes() || z >= vol.NumSlices() {
		return fmt.Errorf("plane %d of time %d outside %d slices and %d times", z, t, vol.NumSlices(), vol.NumTimes())
	}
	window, ok := dicom.WindowFromHeader(vol.SliceAt(t, z).Header())
	if !ok {
		lo, hi := vol.MinIntensity(), vol.MaxIntensity()
		window = dicom.NewWindowConverter((lo+hi)/2, hi-lo)
	}

	img := image.NewGray(image.Rect(0, 0, vol.NumCols(), vol.NumRows()))
	if _, err := vol.BytePixels(vol.Plane(t, z), img.Pix, 0, window); err != nil {
		return fmt.Errorf("sampling plane: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return f.Close()
}
