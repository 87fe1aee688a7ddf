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
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"math"
)

// directReadLimit is the largest value read into a preallocated buffer. Longer values grow
// their buffer as bytes arrive so that a corrupt length cannot force a huge allocation.
const directReadLimit = 1 << 20

// dcmReader is a wrapper around io.Reader, providing convenience methods for
// parsing tags, numbers, strings. The byte order used for multi-byte values is part of the
// reader's state and is switched by the decoder when the transfer syntax requires it.
type dcmReader struct {
	br    *bufio.Reader
	cr    *countReader
	order binary.ByteOrder
}

func newDcmReader(r io.Reader) *dcmReader {
	cr := &countReader{r, 0}
	return &dcmReader{br: bufio.NewReader(cr), cr: cr, order: binary.LittleEndian}
}

// ByteOrder returns the byte order currently used for multi-byte values.
func (dr *dcmReader) ByteOrder() binary.ByteOrder {
	return dr.order
}

// SetByteOrder changes the byte order used by subsequent reads.
func (dr *dcmReader) SetByteOrder(order binary.ByteOrder) {
	dr.order = order
}

// Offset returns the number of bytes consumed so far.
func (dr *dcmReader) Offset() int64 {
	return dr.cr.bytesRead - int64(dr.br.Buffered())
}

// Peek returns the next n bytes without consuming them.
func (dr *dcmReader) Peek(n int) ([]byte, error) {
	return dr.br.Peek(n)
}

// Reset makes the reader continue from r, which must yield the bytes that follow the
// current position. The offset keeps counting from where it is.
func (dr *dcmReader) Reset(r io.Reader) {
	offset := dr.Offset()
	dr.cr = &countReader{r, offset}
	dr.br = bufio.NewReader(dr.cr)
}

// Remaining returns a reader over the unconsumed bytes, including any already buffered.
func (dr *dcmReader) Remaining() io.Reader {
	return dr.br
}

func (dr *dcmReader) Tag() (Tag, error) {
	group, err := dr.UInt16()
	if err != nil {
		return 0, err
	}
	element, err := dr.UInt16()
	if err != nil {
		return 0, noEOF(err)
	}
	return NewTag(group, element), nil
}

// Skip advances the input stream by n bytes
func (dr *dcmReader) Skip(n int64) error {
	_, err := io.CopyN(io.Discard, dr.br, n)
	return noEOF(err)
}

// String returns a string of length n from the input stream
func (dr *dcmReader) String(n int64) (string, error) {
	b, err := dr.Bytes(n)
	return string(b), err
}

// Bytes returns a byte array of size n from the input stream
func (dr *dcmReader) Bytes(n int64) ([]byte, error) {
	if n <= directReadLimit {
		b := make([]byte, n)
		if _, err := io.ReadFull(dr.br, b); err != nil {
			return nil, noEOF(err)
		}
		return b, nil
	}
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, dr.br, n); err != nil {
		return nil, noEOF(err)
	}
	return buf.Bytes(), nil
}

// UInt32 returns a uint32 from the input stream
func (dr *dcmReader) UInt32() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(dr.br, b[:]); err != nil {
		return 0, err
	}
	return dr.order.Uint32(b[:]), nil
}

// UInt16 returns a uint16 from the input stream
func (dr *dcmReader) UInt16() (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(dr.br, b[:]); err != nil {
		return 0, err
	}
	return dr.order.Uint16(b[:]), nil
}

// UInt16s reads n values of 2 bytes each.
func (dr *dcmReader) UInt16s(n int64) ([]uint16, error) {
	b, err := dr.Bytes(2 * n)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, n)
	for i := range out {
		out[i] = dr.order.Uint16(b[2*i:])
	}
	return out, nil
}

// Int16s reads n values of 2 bytes each.
func (dr *dcmReader) Int16s(n int64) ([]int16, error) {
	u, err := dr.UInt16s(n)
	if err != nil {
		return nil, err
	}
	out := make([]int16, len(u))
	for i, v := range u {
		out[i] = int16(v)
	}
	return out, nil
}

// UInt32s reads n values of 4 bytes each.
func (dr *dcmReader) UInt32s(n int64) ([]uint32, error) {
	b, err := dr.Bytes(4 * n)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = dr.order.Uint32(b[4*i:])
	}
	return out, nil
}

// Int32s reads n values of 4 bytes each.
func (dr *dcmReader) Int32s(n int64) ([]int32, error) {
	u, err := dr.UInt32s(n)
	if err != nil {
		return nil, err
	}
	out := make([]int32, len(u))
	for i, v := range u {
		out[i] = int32(v)
	}
	return out, nil
}

// Float32s reads n IEEE 754 single precision values.
func (dr *dcmReader) Float32s(n int64) ([]float32, error) {
	u, err := dr.UInt32s(n)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(u))
	for i, v := range u {
		out[i] = math.Float32frombits(v)
	}
	return out, nil
}

// Float64s reads n IEEE 754 double precision values.
func (dr *dcmReader) Float64s(n int64) ([]float64, error) {
	b, err := dr.Bytes(8 * n)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(dr.order.Uint64(b[8*i:]))
	}
	return out, nil
}

// noEOF converts io.EOF to io.ErrUnexpectedEOF for reads that started a value.
func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// countReader is an io.Reader that counts how many bytes read
type countReader struct {
	r         io.Reader
	bytesRead int64 // number of bytes read
}

func (cr *countReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.bytesRead += int64(n)
	return n, err
}
