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
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Reader decodes DICOM streams into headers and slices.
//
// Configure a Reader before sharing it: ReadHeader, ReadSlices and ReadFile may be called
// concurrently, but AddImageDecoder and AddImageDecoderLast may not run alongside them.
type Reader struct {
	syntaxes       *TransferSyntaxRegistry
	decoders       []ImageDecoder
	customDecoders bool
	magickCommand  string
	transforms     []Transform
	logger         *slog.Logger
}

// NewReader returns a Reader using the standard transfer syntaxes and, unless replaced by
// WithImageDecoders, the raw decoder, the codec decoder and, when it can be found, the
// ImageMagick decoder, tried in that order.
func NewReader(opts ...ReaderOption) *Reader {
	r := &Reader{
		syntaxes:      NewTransferSyntaxRegistry(),
		magickCommand: "convert",
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if !r.customDecoders {
		r.decoders = []ImageDecoder{RawDecoder{}, CodecDecoder{}}
		if r.magickCommand != "" {
			if m, err := NewMagickDecoder(r.magickCommand, 0); err == nil {
				r.decoders = append(r.decoders, m)
			} else {
				r.logger.Debug("ImageMagick decoder unavailable", "command", r.magickCommand, "error", err)
			}
		}
	}
	return r
}

// AddImageDecoder puts dec ahead of every registered decoder.
func (r *Reader) AddImageDecoder(dec ImageDecoder) {
	r.decoders = append([]ImageDecoder{dec}, r.decoders...)
}

// AddImageDecoderLast puts dec after every registered decoder.
func (r *Reader) AddImageDecoderLast(dec ImageDecoder) {
	r.decoders = append(r.decoders, dec)
}

// ImageDecoders returns the registered decoders in the order they are tried.
func (r *Reader) ImageDecoders() []ImageDecoder {
	return append([]ImageDecoder(nil), r.decoders...)
}

// TransferSyntaxes returns the registry used to resolve transfer syntax UIDs.
func (r *Reader) TransferSyntaxes() *TransferSyntaxRegistry {
	return r.syntaxes
}

func (r *Reader) newDecoder(in io.Reader) *streamDecoder {
	d := newStreamDecoder(in, r.syntaxes, r.logger)
	d.transforms = r.transforms
	return d
}

// ReadHeader decodes the elements of a stream up to its pixel data. A stream without pixel
// data is not an error for ReadHeader.
func (r *Reader) ReadHeader(in io.Reader) (*Header, error) {
	d := r.newDecoder(in)
	if err := d.decodeHeader(); err != nil && !isNoPixelData(err) {
		return nil, err
	}
	return d.header, nil
}

// ReadSlices decodes every frame of a stream. Each frame is decoded by the first registered
// ImageDecoder that accepts it. With more than one frame, slice titles are suffixed with _0,
// _1 and so on.
func (r *Reader) ReadSlices(title string, in io.Reader) ([]*Slice, error) {
	h, frames, err := r.newDecoder(in).decode()
	if err != nil {
		return nil, err
	}
	slices := make([]*Slice, 0, len(frames))
	for i, f := range frames {
		pb, err := r.decodeFrame(h, f)
		if err != nil {
			return nil, fmt.Errorf("decoding frame %d: %w", i, err)
		}
		t := title
		if len(frames) > 1 {
			t = fmt.Sprintf("%s_%d", title, i)
		}
		slices = append(slices, NewSlice(t, h, pb))
	}
	return slices, nil
}

func (r *Reader) decodeFrame(h *Header, f *Frame) (PixelBuffer, error) {
	for _, dec := range r.decoders {
		if dec.CanDecode(h, f) {
			return dec.Decode(h, f)
		}
	}
	return nil, fmt.Errorf("%w for transfer syntax %v", ErrNoDecoder, h.TransferSyntax())
}

// ReadFile reads the slices of one file, titled after the file name.
func (r *Reader) ReadFile(path string) ([]*Slice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	slices, err := r.ReadSlices(filepath.Base(path), f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return slices, nil
}
