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
	"log/slog"
	"sync"
)

// list of transfer syntaxes obtained from
// http://dicom.nema.org/medical/dicom/current/output/html/part06.html#chapter_A
const (
	// ImplicitVRLittleEndianUID is the Implicit VR Little Endian UID
	ImplicitVRLittleEndianUID = "1.2.840.10008.1.2"
	// ExplicitVRLittleEndianUID is the Explicit VR Little Endian UID
	ExplicitVRLittleEndianUID = "1.2.840.10008.1.2.1"
	// ExplicitVRBigEndianUID is the Explicit VR Big Endian UID
	ExplicitVRBigEndianUID = "1.2.840.10008.1.2.2"
	// DeflatedExplicitVRLittleEndianUID is the Deflated Explicit VR Little Endian UID
	DeflatedExplicitVRLittleEndianUID = "1.2.840.10008.1.2.1.99"
	// JPEGBaselineUID is the JPEG Baseline (Process 1) transfer syntax UID
	JPEGBaselineUID = "1.2.840.10008.1.2.4.50"
	// JPEGExtendedUID is the JPEG Extended (Process 2 & 4) transfer syntax UID
	JPEGExtendedUID = "1.2.840.10008.1.2.4.51"
	// JPEGLosslessUID is the JPEG Lossless, Non-Hierarchical (Process 14) transfer syntax UID
	JPEGLosslessUID = "1.2.840.10008.1.2.4.57"
	// JPEGLosslessSV1UID is the JPEG Lossless, First-Order Prediction transfer syntax UID
	JPEGLosslessSV1UID = "1.2.840.10008.1.2.4.70"
	// JPEGLSLosslessUID is the JPEG-LS Lossless transfer syntax UID
	JPEGLSLosslessUID = "1.2.840.10008.1.2.4.80"
	// JPEGLSNearLosslessUID is the JPEG-LS Lossy (Near-Lossless) transfer syntax UID
	JPEGLSNearLosslessUID = "1.2.840.10008.1.2.4.81"
	// JPEG2000LosslessUID is the JPEG 2000 Image Compression (Lossless Only) transfer syntax UID
	JPEG2000LosslessUID = "1.2.840.10008.1.2.4.90"
	// JPEG2000UID is the JPEG 2000 Image Compression transfer syntax UID
	JPEG2000UID = "1.2.840.10008.1.2.4.91"
	// RLELosslessUID is the RLE Lossless transfer syntax UID
	RLELosslessUID = "1.2.840.10008.1.2.5"
)

// TransferSyntax describes how a data set is encoded.
type TransferSyntax struct {
	Name string
	UID  string

	LittleEndian bool
	ExplicitVR   bool

	// Encoded is set when pixel data is compressed and encapsulated in fragments
	Encoded bool

	// Deflated is set when everything after the file meta group is deflate compressed
	Deflated bool
}

// ByteOrder returns the byte order of the data set.
func (ts *TransferSyntax) ByteOrder() binary.ByteOrder {
	if ts.LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

func (ts *TransferSyntax) String() string {
	return fmt.Sprintf("%s (%s)", ts.Name, ts.UID)
}

// defaultTransferSyntaxes seeds every new registry.
var defaultTransferSyntaxes = [...]TransferSyntax{
	{"Implicit VR Little Endian", ImplicitVRLittleEndianUID, true, false, false, false},
	{"Explicit VR Little Endian", ExplicitVRLittleEndianUID, true, true, false, false},
	{"Explicit VR Big Endian", ExplicitVRBigEndianUID, false, true, false, false},
	{"Deflated Explicit VR Little Endian", DeflatedExplicitVRLittleEndianUID, true, true, false, true},
	{"JPEG Baseline (Process 1)", JPEGBaselineUID, true, true, true, false},
	{"JPEG Extended (Process 2 & 4)", JPEGExtendedUID, true, true, true, false},
	{"JPEG Lossless, Non-Hierarchical (Process 14)", JPEGLosslessUID, true, true, true, false},
	{"JPEG Lossless, First-Order Prediction", JPEGLosslessSV1UID, true, true, true, false},
	{"JPEG-LS Lossless", JPEGLSLosslessUID, true, true, true, false},
	{"JPEG-LS Near-Lossless", JPEGLSNearLosslessUID, true, true, true, false},
	{"JPEG 2000 (Lossless Only)", JPEG2000LosslessUID, true, true, true, false},
	{"JPEG 2000", JPEG2000UID, true, true, true, false},
	{"RLE Lossless", RLELosslessUID, true, true, true, false},
}

// TransferSyntaxRegistry maps UIDs to transfer syntaxes. It is safe for concurrent lookups;
// registrations should happen before any concurrent reading starts.
type TransferSyntaxRegistry struct {
	mu       sync.RWMutex
	syntaxes []*TransferSyntax
}

// NewTransferSyntaxRegistry returns a registry seeded with the well known transfer syntaxes.
func NewTransferSyntaxRegistry() *TransferSyntaxRegistry {
	r := &TransferSyntaxRegistry{}
	for i := range defaultTransferSyntaxes {
		ts := defaultTransferSyntaxes[i]
		r.syntaxes = append(r.syntaxes, &ts)
	}
	return r
}

// Lookup returns the syntax registered under uid, or nil.
func (r *TransferSyntaxRegistry) Lookup(uid string) *TransferSyntax {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ts := range r.syntaxes {
		if ts.UID == uid {
			return ts
		}
	}
	return nil
}

// Add registers an additional transfer syntax. Entries are never removed; a UID that is
// already registered keeps its first entry.
func (r *TransferSyntaxRegistry) Add(ts TransferSyntax) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syntaxes = append(r.syntaxes, &ts)
}

// All returns a snapshot of the registered syntaxes.
func (r *TransferSyntaxRegistry) All() []TransferSyntax {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TransferSyntax, len(r.syntaxes))
	for i, ts := range r.syntaxes {
		out[i] = *ts
	}
	return out
}

// unknownTransferSyntax stands in for a UID missing from the registry. PS3.5 A.4 requires
// encapsulated syntaxes to be explicit VR little endian, which is also the most common layout.
func unknownTransferSyntax(uid string) *TransferSyntax {
	return &TransferSyntax{Name: "Unknown", UID: uid, LittleEndian: true, ExplicitVR: true}
}

const (
	vrSize  = 2
	tagSize = 4
)

// elementSyntax reads the VR and value length fields that follow a tag.
type elementSyntax interface {
	readVR(dr *dcmReader, tag Tag) (*VR, error)
	readValueLength(dr *dcmReader, tag Tag, vr *VR) (uint32, error)
}

type implicitSyntax struct{}

func (implicitSyntax) readVR(dr *dcmReader, tag Tag) (*VR, error) {
	vr, ok := tag.DictionaryVR()
	if !ok {
		return nil, &ParseError{Tag: tag, Offset: dr.Offset(), Err: ErrUnknownTag}
	}
	return vr, nil
}

func (implicitSyntax) readValueLength(dr *dcmReader, _ Tag, _ *VR) (uint32, error) {
	return dr.UInt32()
}

type explicitSyntax struct {
	logger *slog.Logger
}

func (s explicitSyntax) readVR(dr *dcmReader, tag Tag) (*VR, error) {
	name, err := dr.Bytes(vrSize)
	if err != nil {
		return nil, fmt.Errorf("reading VR of %v: %w", tag, err)
	}
	vr, ok := LookupVR(name[0], name[1])
	if !ok {
		return nil, &ParseError{Tag: tag, Offset: dr.Offset(), Err: fmt.Errorf("%w %q", ErrUnknownVR, name)}
	}
	return vr, nil
}

// readValueLength reads a 16-bit length, or for the long length VRs 2 reserved bytes followed
// by a 32-bit length.
// http://dicom.nema.org/medical/dicom/current/output/html/part05.html#sect_7.1.2
func (s explicitSyntax) readValueLength(dr *dcmReader, tag Tag, vr *VR) (uint32, error) {
	if !vr.longLength {
		length, err := dr.UInt16()
		return uint32(length), err
	}
	reserved, err := dr.UInt16()
	if err != nil {
		return 0, err
	}
	if reserved != 0 && s.logger != nil {
		s.logger.Warn("non-zero reserved field", "tag", tag, "vr", vr, "reserved", reserved)
	}
	return dr.UInt32()
}
