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

// vrType is to group common encodings together
type vrType int

const (
	// textVR is for value fields that will be interpreted as simple text with space padding
	textVR vrType = iota

	// numberBinaryVR is for value fields that are parsed as binary numbers
	numberBinaryVR

	// bulkDataVR groups sequences of binary numbers
	bulkDataVR

	// uniqueIdentifierVR is for VR: UI. It has null padding
	uniqueIdentifierVR

	// sequenceVR is for VR: SQ
	sequenceVR

	// tagVR is for tags. Distinct from numberBinaryVR due to little endian byte ordering
	tagVR

	// delimiterVR marks items and delimitation items inside sequences
	delimiterVR
)

// UndefinedLength as specified
// http://dicom.nema.org/medical/dicom/current/output/html/part05.html#sect_7.1.1
const UndefinedLength = 0xffffffff

// VR models the DICOM Value representations (VR)
// http://dicom.nema.org/medical/dicom/current/output/html/part05.html#sect_6.2
//
// The set of VRs is closed: every *VR in use is one of the package level values below, so
// pointer comparison identifies a VR.
type VR struct {
	// Name represents the 2-character VR Code
	Name string

	kind vrType

	// size is the width in bytes of one binary value, zero for text and sequences
	size int

	// longLength is set for the VRs whose explicit encoding carries 2 reserved bytes
	// followed by a 32-bit length
	longLength bool

	// multiValued is set for text VRs whose values are separated by backslashes
	multiValued bool
}

var vrLookupMap = map[string]*VR{}

func newVR(name string, kind vrType, size int, longLength, multiValued bool) *VR {
	vr := &VR{Name: name, kind: kind, size: size, longLength: longLength, multiValued: multiValued}
	vrLookupMap[vr.Name] = vr
	return vr
}

// LookupVR resolves a 2-character VR code. The second return value is false when the code is
// not a known VR; callers treat that as a parse error.
func LookupVR(c0, c1 byte) (*VR, bool) {
	vr, ok := vrLookupMap[string([]byte{c0, c1})]
	return vr, ok
}

// LookupVRByName resolves a VR code given as a string.
func LookupVRByName(name string) (*VR, bool) {
	vr, ok := vrLookupMap[name]
	return vr, ok
}

// String returns the VR code.
func (vr *VR) String() string {
	if vr == nil {
		return "??"
	}
	return vr.Name
}

// VR list obtained from
// http://dicom.nema.org/medical/dicom/current/output/html/part05.html#sect_6.2
var (
	// textual VRs
	CSVR = newVR("CS", textVR, 0, false, true)
	SHVR = newVR("SH", textVR, 0, false, true)
	LOVR = newVR("LO", textVR, 0, false, true)
	STVR = newVR("ST", textVR, 0, false, false)
	LTVR = newVR("LT", textVR, 0, false, false)
	ASVR = newVR("AS", textVR, 0, false, true)

	// person name
	PNVR = newVR("PN", textVR, 0, false, true)

	// application entity
	AEVR = newVR("AE", textVR, 0, false, true)

	// dates/time VR
	DAVR = newVR("DA", textVR, 0, false, true)
	TMVR = newVR("TM", textVR, 0, false, true)
	DTVR = newVR("DT", textVR, 0, false, true)

	// textual numbers
	ISVR = newVR("IS", textVR, 0, false, true)
	DSVR = newVR("DS", textVR, 0, false, true)

	// unlimited text
	UCVR = newVR("UC", textVR, 0, true, true)
	URVR = newVR("UR", textVR, 0, true, false)
	UTVR = newVR("UT", textVR, 0, true, false)

	// binary numbers
	SSVR = newVR("SS", numberBinaryVR, 2, false, false)
	USVR = newVR("US", numberBinaryVR, 2, false, false)
	SLVR = newVR("SL", numberBinaryVR, 4, false, false)
	ULVR = newVR("UL", numberBinaryVR, 4, false, false)
	FLVR = newVR("FL", numberBinaryVR, 4, false, false)
	FDVR = newVR("FD", numberBinaryVR, 8, false, false)

	// large binary sequences
	OBVR = newVR("OB", bulkDataVR, 1, true, false)
	ODVR = newVR("OD", bulkDataVR, 8, true, false)
	OLVR = newVR("OL", bulkDataVR, 4, true, false)
	OWVR = newVR("OW", bulkDataVR, 2, true, false)
	OFVR = newVR("OF", bulkDataVR, 4, true, false)

	// OX stands for "OB or OW" in the data dictionary and is never found in a stream
	OXVR = newVR("OX", bulkDataVR, 1, true, false)

	// unknown
	UNVR = newVR("UN", bulkDataVR, 1, true, false)

	// attribute tag
	ATVR = newVR("AT", tagVR, 4, false, false)

	// unique identifier
	UIVR = newVR("UI", uniqueIdentifierVR, 0, false, true)

	// sequence
	SQVR = newVR("SQ", sequenceVR, 0, true, false)

	// items and delimiters
	DLVR = newVR("DL", delimiterVR, 0, false, false)
)
