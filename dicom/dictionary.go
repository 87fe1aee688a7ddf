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
	"strings"

	"github.com/mpetavy/go-dicom/dicomtag"
)

type dictionaryEntry struct {
	vr   *VR
	name string
}

// Entries the standard dictionary describes with pseudo VRs.
var dictionaryOverrides = map[Tag]dictionaryEntry{
	PixelDataTag:                {OXVR, "PixelData"},
	ItemTag:                     {DLVR, "Item"},
	ItemDelimitationItemTag:     {DLVR, "ItemDelimitationItem"},
	SequenceDelimitationItemTag: {DLVR, "SequenceDelimitationItem"},
}

// lookupDictionary finds the tag in the DICOM data dictionary
// (http://dicom.nema.org/medical/dicom/current/output/html/part06.html). Overlay and curve
// repeating groups resolve through their first group.
func lookupDictionary(t Tag) (dictionaryEntry, bool) {
	if e, ok := dictionaryOverrides[t]; ok {
		return e, true
	}
	group := t.Group()
	if group&0xFF01 == 0x6000 || group&0xFF01 == 0x5000 {
		group &= 0xFF00
	}
	info, err := dicomtag.FindTagInfo(dicomtag.Tag{Group: group, Element: t.Element()})
	if err != nil {
		return dictionaryEntry{}, false
	}
	vr, ok := dictionaryVRByName(info.VR)
	if !ok {
		return dictionaryEntry{}, false
	}
	return dictionaryEntry{vr: vr, name: info.Name}, true
}

// dictionaryVRByName resolves VR notations such as "US or SS" to the first listed VR.
func dictionaryVRByName(name string) (*VR, bool) {
	switch {
	case strings.Contains(name, "OB") && strings.Contains(name, "OW"):
		return OXVR, true
	case name == "XS":
		return USVR, true
	case name == "NA":
		return DLVR, true
	}
	for _, field := range strings.Fields(name) {
		if vr, ok := LookupVRByName(field); ok {
			return vr, true
		}
	}
	return nil, false
}

// DictionaryVR returns the VR registered for the tag in the data dictionary. Group length
// elements resolve to UL, private creator elements to LO and any other private element to UN.
func (t Tag) DictionaryVR() (*VR, bool) {
	switch {
	case t.Element() == 0x0000:
		return ULVR, true
	case t.IsPrivate() && t.Element() >= 0x0010 && t.Element() <= 0x00FF:
		return LOVR, true
	case t.IsPrivate():
		return UNVR, true
	}
	e, ok := lookupDictionary(t)
	return e.vr, ok
}

// Name returns the dictionary keyword of the tag, or "Unknown" when the tag is not registered.
func (t Tag) Name() string {
	switch {
	case t.IsPrivate() && t.Element() >= 0x0010 && t.Element() <= 0x00FF:
		return "PrivateCreator"
	case t.IsPrivate() && t.Element() != 0x0000:
		return "Private"
	}
	if e, ok := lookupDictionary(t); ok {
		return e.name
	}
	if t.Element() == 0x0000 {
		return "GroupLength"
	}
	return "Unknown"
}
