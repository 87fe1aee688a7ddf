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
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/klauspost/compress/flate"
	"golang.org/x/text/encoding"
)

const (
	preambleLength = 128
	magic          = "DICM"
)

type decoderState int

const (
	readingMetaGroup decoderState = iota
	readingHeader
	readingPixelData
	done
)

func (s decoderState) String() string {
	switch s {
	case readingMetaGroup:
		return "reading meta group"
	case readingHeader:
		return "reading header"
	case readingPixelData:
		return "reading pixel data"
	case done:
		return "done"
	}
	return fmt.Sprintf("decoderState(%d)", int(s))
}

// streamDecoder parses one DICOM stream. The file meta group is always explicit VR little
// endian; the transfer syntax it declares takes effect once the first tag outside group 0002
// has been read.
type streamDecoder struct {
	dr       *dcmReader
	registry *TransferSyntaxRegistry
	logger   *slog.Logger

	// transforms are applied in order to each top level element before it joins the header
	transforms []Transform

	state   decoderState
	syntax  *TransferSyntax
	charset encoding.Encoding
	header  *Header
}

func newStreamDecoder(r io.Reader, registry *TransferSyntaxRegistry, logger *slog.Logger) *streamDecoder {
	syntax := registry.Lookup(ExplicitVRLittleEndianUID)
	if syntax == nil {
		syntax = &TransferSyntax{Name: "Explicit VR Little Endian", UID: ExplicitVRLittleEndianUID, LittleEndian: true, ExplicitVR: true}
	}
	return &streamDecoder{
		dr:       newDcmReader(r),
		registry: registry,
		logger:   logger,
		syntax:   syntax,
		charset:  defaultCharacterRepertoire,
		header:   NewHeader(),
	}
}

func (d *streamDecoder) elementSyntax() elementSyntax {
	if d.state == readingMetaGroup || d.syntax.ExplicitVR {
		return explicitSyntax{d.logger}
	}
	return implicitSyntax{}
}

// readPreamble consumes the optional 128 byte preamble and the DICM magic. A stream that does
// not start with 'D' is assumed to carry a preamble.
func (d *streamDecoder) readPreamble() error {
	first, err := d.dr.Bytes(1)
	if err != nil {
		return fmt.Errorf("reading preamble: %w", err)
	}
	var sig []byte
	if first[0] == magic[0] {
		rest, err := d.dr.Bytes(int64(len(magic) - 1))
		if err != nil {
			return fmt.Errorf("reading DICOM signature: %w", err)
		}
		sig = append(first, rest...)
	} else {
		if err := d.dr.Skip(preambleLength - 1); err != nil {
			return fmt.Errorf("skipping preamble: %w", err)
		}
		if sig, err = d.dr.Bytes(int64(len(magic))); err != nil {
			return fmt.Errorf("reading DICOM signature: %w", err)
		}
	}
	if string(sig) != magic {
		return fmt.Errorf("%w: found %q", ErrNotDICOM, sig)
	}
	return nil
}

// decodeHeader reads the file meta group and the data set up to the pixel data tag. It leaves
// the stream positioned after that tag.
func (d *streamDecoder) decodeHeader() error {
	if err := d.readPreamble(); err != nil {
		return err
	}
	d.state = readingMetaGroup
	defer func() { d.header.syntax = d.syntax }()

	for {
		tag, err := d.nextTag()
		if err == io.EOF {
			d.state = done
			return ErrNoPixelData
		}
		if err != nil {
			return fmt.Errorf("reading tag at offset %d: %w", d.dr.Offset(), noEOF(err))
		}
		if tag == PixelDataTag {
			d.state = readingPixelData
			return nil
		}

		elem, err := d.readElement(tag)
		if err != nil {
			return err
		}
		switch tag {
		case TransferSyntaxUIDTag:
			d.setTransferSyntax(elem)
		case SpecificCharacterSetTag:
			d.setCharacterSet(elem)
		}

		if elem, err = d.transform(elem); err != nil {
			return &ParseError{Tag: tag, Offset: d.dr.Offset(), Err: err}
		}
		if elem != nil {
			d.header.Add(elem)
		}
	}
}

func (d *streamDecoder) transform(elem *Element) (*Element, error) {
	var err error
	for _, t := range d.transforms {
		if elem, err = t(elem); err != nil || elem == nil {
			return nil, err
		}
	}
	return elem, nil
}

// nextTag reads the next top level tag, leaving the meta group when the tag is outside it.
func (d *streamDecoder) nextTag() (Tag, error) {
	if d.state == readingMetaGroup && d.syntax.Deflated {
		if err := d.leaveDeflatedMetaGroup(); err != nil {
			return 0, err
		}
	}
	tag, err := d.dr.Tag()
	if err != nil {
		return 0, err
	}
	if d.state == readingMetaGroup && !tag.IsMetaElement() {
		tag = d.leaveMetaGroup(tag)
	}
	return tag, nil
}

// leaveMetaGroup switches from the meta group encoding to the data set's transfer syntax. It
// runs exactly once, after the first tag outside group 0002 has been read little endian. For a
// big endian data set the reader is switched and the tag already read is reinterpreted by
// byte-swapping its group and element.
func (d *streamDecoder) leaveMetaGroup(tag Tag) Tag {
	d.state = readingHeader
	if d.syntax.LittleEndian {
		return tag
	}
	d.dr.SetByteOrder(binary.BigEndian)
	return tag.swapped()
}

// leaveDeflatedMetaGroup checks, before the next tag is consumed, whether the meta group has
// ended. Everything after it is a raw deflate stream, so the switch must happen before any of
// those bytes are read as a tag.
func (d *streamDecoder) leaveDeflatedMetaGroup() error {
	group, err := d.dr.Peek(2)
	if err != nil {
		// let the tag read report the short stream
		return nil
	}
	if binary.LittleEndian.Uint16(group) == 0x0002 {
		return nil
	}
	d.dr.Reset(flate.NewReader(d.dr.Remaining()))
	d.state = readingHeader
	return nil
}

func (d *streamDecoder) setTransferSyntax(elem *Element) {
	uid, _ := elem.Value.(string)
	uid = strings.TrimRight(uid, "\x00 ")
	ts := d.registry.Lookup(uid)
	if ts == nil {
		d.logger.Warn("unknown transfer syntax, assuming explicit VR little endian", "transfer_syntax", uid)
		ts = unknownTransferSyntax(uid)
	}
	d.syntax = ts
}

func (d *streamDecoder) setCharacterSet(elem *Element) {
	value, _ := elem.Value.(string)
	coding, err := characterSetEncoding(value)
	if err != nil {
		d.logger.Warn("unsupported character set, using default repertoire", "character_set", value, "error", err)
		return
	}
	d.charset = coding
}

// decode reads the header and every frame of the stream.
func (d *streamDecoder) decode() (*Header, []*Frame, error) {
	if err := d.decodeHeader(); err != nil {
		return nil, nil, err
	}
	frames, err := d.readFrames()
	if err != nil {
		return nil, nil, err
	}
	d.state = done
	return d.header, frames, nil
}

// isNoPixelData reports whether err only says that the stream has no pixel data.
func isNoPixelData(err error) bool {
	return errors.Is(err, ErrNoPixelData)
}
