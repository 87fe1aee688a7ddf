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
	"fmt"

	codechelpers "github.com/cocosip/go-dicom-codec/codec"
	_ "github.com/cocosip/go-dicom-codec/jpeg/baseline"
	_ "github.com/cocosip/go-dicom-codec/jpeg/extended"
	_ "github.com/cocosip/go-dicom-codec/jpeg/lossless"
	_ "github.com/cocosip/go-dicom-codec/jpeg/lossless14sv1"
	_ "github.com/cocosip/go-dicom-codec/jpeg2000/lossless"
	_ "github.com/cocosip/go-dicom-codec/jpeg2000/lossy"
	_ "github.com/cocosip/go-dicom-codec/jpegls/lossless"
	"github.com/cocosip/go-dicom/pkg/imaging/codec"
	"github.com/cocosip/go-dicom/pkg/imaging/imagetypes"
)

// CodecDecoder decodes encapsulated frames with the codec registered for their transfer
// syntax in the go-dicom imaging registry. Importing this package registers the JPEG baseline,
// JPEG extended, JPEG lossless (process 14 and SV1), JPEG-LS lossless and JPEG 2000 codecs.
type CodecDecoder struct{}

// lookupCodec returns the registered codec for a transfer syntax UID.
func lookupCodec(uid string) (codec.Codec, bool) {
	for _, c := range codec.GetGlobalRegistry().GetCodecs() {
		if c.UID() == uid {
			return c, true
		}
	}
	return nil, false
}

// Supports reports whether a codec is registered for the transfer syntax uid.
func (CodecDecoder) Supports(uid string) bool {
	_, ok := lookupCodec(uid)
	return ok
}

func (d CodecDecoder) CanDecode(h *Header, f *Frame) bool {
	ts := h.TransferSyntax()
	if !f.Encapsulated || ts == nil || !imageParamsFromHeader(h).supported() {
		return false
	}
	return d.Supports(ts.UID)
}

func (CodecDecoder) Decode(h *Header, f *Frame) (PixelBuffer, error) {
	ts := h.TransferSyntax()
	if ts == nil {
		return nil, fmt.Errorf("%w: no transfer syntax", ErrNoDecoder)
	}
	c, ok := lookupCodec(ts.UID)
	if !ok {
		return nil, fmt.Errorf("%w for transfer syntax %v", ErrNoDecoder, ts)
	}
	p := imageParamsFromHeader(h)
	info := p.frameInfo()

	src := codechelpers.NewTestPixelData(info)
	if err := src.AddFrame(f.Bytes); err != nil {
		return nil, fmt.Errorf("preparing %s frame: %w", c.Name(), err)
	}
	dst := codechelpers.NewTestPixelData(info)
	if err := c.Decode(src, dst, nil); err != nil {
		return nil, fmt.Errorf("decoding %s frame: %w", c.Name(), err)
	}
	data, err := dst.GetFrame(0)
	if err != nil {
		return nil, fmt.Errorf("reading decoded %s frame: %w", c.Name(), err)
	}

	// Codecs produce native little endian samples with colour interleaved.
	p.planarConfiguration = 0
	return p.nativeBuffer(&Frame{Bytes: data, ByteOrder: binary.LittleEndian})
}

// frameInfo describes the frame to the codecs.
func (p imageParams) frameInfo() *imagetypes.FrameInfo {
	return &imagetypes.FrameInfo{
		Width:                     uint16(p.cols),
		Height:                    uint16(p.rows),
		BitsAllocated:             uint16(p.bitsAllocated),
		BitsStored:                uint16(p.bitsStored),
		HighBit:                   uint16(p.highBit),
		SamplesPerPixel:           uint16(p.samplesPerPixel),
		PixelRepresentation:       uint16(p.pixelRepresentation),
		PlanarConfiguration:       uint16(p.planarConfiguration),
		PhotometricInterpretation: p.photometric,
	}
}
