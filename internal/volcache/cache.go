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

// Package volcache stores assembled volumes on disk so that a directory of DICOM files only
// has to be decoded once.
//
// A snapshot holds, for every slice in volume order, its title, temporal position, header
// elements and compressed pixel samples, encoded as deterministic CBOR. Snapshots are keyed by
// a keyed BLAKE3 hash over the paths and contents of the source files and the load settings,
// so any change to the inputs produces a different key.
package volcache

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/GoogleCloudPlatform/go-dicom-volume/dicom"
	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// snapshotVersion changes whenever the snapshot layout does.
const snapshotVersion = 1

// ErrMiss is returned by Load when no snapshot exists for a key.
var ErrMiss = errors.New("volcache: no snapshot for key")

// Key identifies a snapshot.
type Key [32]byte

func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// keyDomain separates snapshot keys from other uses of BLAKE3 over the same files.
var keyDomain = blake3.Sum256([]byte("go-dicom-volume snapshot key v1"))

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("volcache: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("volcache: CBOR decoder initialization failed: " + err.Error())
	}
}

type snapshot struct {
	Version int           `cbor:"version"`
	Title   string        `cbor:"title"`
	Slices  []sliceRecord `cbor:"slices"`
}

type sliceRecord struct {
	Title            string          `cbor:"title"`
	TemporalPosition int             `cbor:"temporal_position"`
	TransferSyntax   string          `cbor:"transfer_syntax,omitempty"`
	Header           []elementRecord `cbor:"header"`
	PixelType        uint8           `cbor:"pixel_type"`
	Compression      Compression     `cbor:"compression"`
	Size             int             `cbor:"size"`
	Samples          []byte          `cbor:"samples"`
}

// Cache is a directory of volume snapshots. It is safe for concurrent use; concurrent
// stores of the same key leave one complete snapshot.
type Cache struct {
	dir         string
	compression Compression
	syntaxes    *dicom.TransferSyntaxRegistry
	logger      *slog.Logger
}

// Open creates dir if needed and returns a cache storing snapshots there with the given
// pixel compression.
func Open(dir string, compression Compression, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if compression > CompressionZstd {
		return nil, fmt.Errorf("unsupported compression %v", compression)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Cache{
		dir:         dir,
		compression: compression,
		syntaxes:    dicom.NewTransferSyntaxRegistry(),
		logger:      logger,
	}, nil
}

// Key hashes the paths and contents of files, in sorted path order, together with salt, which
// callers use for the settings that shape the volume.
func (c *Cache) Key(files []string, salt string) (Key, error) {
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)

	h, err := blake3.NewKeyed(keyDomain[:])
	if err != nil {
		return Key{}, fmt.Errorf("creating keyed hash: %w", err)
	}
	writeString := func(s string) {
		var n [8]byte
		binary.LittleEndian.PutUint64(n[:], uint64(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}
	writeString(salt)
	for _, path := range sorted {
		data, err := os.ReadFile(path)
		if err != nil {
			return Key{}, fmt.Errorf("hashing %s: %w", path, err)
		}
		sum := blake3.Sum256(data)
		writeString(path)
		h.Write(sum[:])
	}
	var k Key
	copy(k[:], h.Sum(nil))
	return k, nil
}

func (c *Cache) path(k Key) string {
	return filepath.Join(c.dir, k.String()+".cbor")
}

// Store writes a snapshot of vol under k.
func (c *Cache) Store(k Key, vol *dicom.Volume) error {
	snap := snapshot{Version: snapshotVersion, Title: vol.Title()}
	for i := 0; i < vol.Len(); i++ {
		rec, err := c.sliceRecord(vol.Slice(i))
		if err != nil {
			return fmt.Errorf("encoding slice %d: %w", i, err)
		}
		snap.Slices = append(snap.Slices, rec)
	}
	data, err := encMode.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, "snapshot-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path(k)); err != nil {
		return fmt.Errorf("installing snapshot: %w", err)
	}
	c.logger.Debug("stored volume snapshot", "key", k.String(), "slices", len(snap.Slices), "bytes", len(data))
	return nil
}

func (c *Cache) sliceRecord(s *dicom.Slice) (sliceRecord, error) {
	rec := sliceRecord{
		Title:            s.Info.Title,
		TemporalPosition: s.Info.TemporalPosition,
		PixelType:        uint8(s.PixelType()),
	}
	h := s.Header()
	if ts := h.TransferSyntax(); ts != nil {
		rec.TransferSyntax = ts.UID
	}
	for _, tag := range h.Tags() {
		e, _ := h.Element(tag)
		er, err := toRecord(e)
		if err != nil {
			return rec, err
		}
		rec.Header = append(rec.Header, er)
	}

	raw := sampleBytes(s.PixelBuffer())
	data, compression, err := compress(raw, c.compression)
	if err != nil {
		return rec, err
	}
	rec.Compression, rec.Size, rec.Samples = compression, len(raw), data
	return rec, nil
}

// Load rebuilds the volume stored under k. It returns ErrMiss when there is none.
func (c *Cache) Load(k Key) (*dicom.Volume, error) {
	data, err := os.ReadFile(c.path(k))
	if errors.Is(err, fs.ErrNotExist) {
		c.logger.Debug("volume snapshot miss", "key", k.String())
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	var snap snapshot
	if err := decMode.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot %v: %w", k, err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("snapshot %v has version %d, want %d", k, snap.Version, snapshotVersion)
	}
	if len(snap.Slices) == 0 {
		return nil, fmt.Errorf("snapshot %v: %w", k, dicom.ErrNoSlices)
	}

	var vol *dicom.Volume
	for i, rec := range snap.Slices {
		s, err := c.slice(rec)
		if err != nil {
			return nil, fmt.Errorf("snapshot %v slice %d: %w", k, i, err)
		}
		if vol == nil {
			vol = dicom.NewVolume(snap.Title, s)
		} else if !vol.AddSlice(s) {
			return nil, fmt.Errorf("snapshot %v slice %d: incompatible with volume", k, i)
		}
	}
	vol.Complete()
	c.logger.Debug("volume snapshot hit", "key", k.String(), "slices", vol.Len())
	return vol, nil
}

func (c *Cache) slice(rec sliceRecord) (*dicom.Slice, error) {
	h := dicom.NewHeader()
	for _, er := range rec.Header {
		e, err := er.element()
		if err != nil {
			return nil, err
		}
		h.Add(e)
	}
	if rec.TransferSyntax != "" {
		h.SetTransferSyntax(c.syntaxes.Lookup(rec.TransferSyntax))
	}
	raw, err := decompress(rec.Samples, rec.Compression, rec.Size)
	if err != nil {
		return nil, err
	}
	pb, err := pixelBuffer(dicom.PixelType(rec.PixelType), raw)
	if err != nil {
		return nil, err
	}
	s := dicom.NewSlice(rec.Title, h, pb)
	s.Info.TemporalPosition = rec.TemporalPosition
	return s, nil
}

// sampleBytes flattens the samples of pb, 16-bit samples little endian.
func sampleBytes(pb dicom.PixelBuffer) []byte {
	samples := pb.Samples()
	if pb.PixelType() != dicom.ShortPixel {
		return samples.Bytes
	}
	out := make([]byte, 2*len(samples.Shorts))
	for i, v := range samples.Shorts {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

func pixelBuffer(typ dicom.PixelType, raw []byte) (dicom.PixelBuffer, error) {
	switch typ {
	case dicom.BytePixel:
		return dicom.NewBytePixelBuffer(raw), nil
	case dicom.ShortPixel:
		shorts := make([]int16, len(raw)/2)
		for i := range shorts {
			shorts[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
		}
		return dicom.NewShortPixelBuffer(shorts), nil
	case dicom.RGBPixel:
		return dicom.NewRGBPixelBuffer(raw), nil
	}
	return nil, fmt.Errorf("%w %v", dicom.ErrUnsupportedType, typ)
}
