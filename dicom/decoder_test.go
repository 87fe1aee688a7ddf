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
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/klauspost/compress/flate"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestReader returns a Reader that logs nowhere and never shells out to ImageMagick.
func newTestReader(opts ...ReaderOption) *Reader {
	return NewReader(append([]ReaderOption{WithLogger(discardLogger()), WithMagickCommand("")}, opts...)...)
}

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestSpeed)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// basicDataSet encodes a few elements of different VR classes.
func basicDataSet(e encoder) []byte {
	return bytes.Join([][]byte{
		e.str(SOPInstanceUIDTag, UIVR, "1.2.3"),
		e.str(ModalityTag, CSVR, "MR"),
		e.str(PatientNameTag, PNVR, "Doe^John"),
		e.str(SliceThicknessTag, DSVR, "2.5"),
		e.str(ImagePositionPatientTag, DSVR, "-10\\20.5\\3e1"),
		e.u16(RowsTag, 4),
		e.u16(ColumnsTag, 3),
	}, nil)
}

func checkBasicDataSet(t *testing.T, h *Header) {
	t.Helper()
	if got, _ := h.StringValue(SOPInstanceUIDTag); got != "1.2.3" {
		t.Errorf("SOPInstanceUID: got %q, want %q", got, "1.2.3")
	}
	if got, _ := h.StringValue(ModalityTag); got != "MR" {
		t.Errorf("Modality: got %q, want %q", got, "MR")
	}
	if got, _ := h.StringValue(PatientNameTag); got != "Doe^John" {
		t.Errorf("PatientName: got %q, want %q", got, "Doe^John")
	}
	if got := h.DecimalValue(SliceThicknessTag, 0); got != 2.5 {
		t.Errorf("SliceThickness: got %v, want 2.5", got)
	}
	if got, want := h.VectorValue(ImagePositionPatientTag), []float64{-10, 20.5, 30}; !reflect.DeepEqual(got, want) {
		t.Errorf("ImagePositionPatient: got %v, want %v", got, want)
	}
	if got := h.IntValue(RowsTag, 0); got != 4 {
		t.Errorf("Rows: got %v, want 4", got)
	}
	if got := h.IntValue(ColumnsTag, 0); got != 3 {
		t.Errorf("Columns: got %v, want 3", got)
	}
}

func TestReadHeader(t *testing.T) {
	tests := []struct {
		name   string
		in     []byte
		syntax string
	}{
		{"explicit little endian", part10(ExplicitVRLittleEndianUID, basicDataSet(explicitLEEncoder)), ExplicitVRLittleEndianUID},
		{"implicit little endian", part10(ImplicitVRLittleEndianUID, basicDataSet(implicitLEEncoder)), ImplicitVRLittleEndianUID},
		{"explicit big endian", part10(ExplicitVRBigEndianUID, basicDataSet(explicitBEEncoder)), ExplicitVRBigEndianUID},
		{"deflated", part10(DeflatedExplicitVRLittleEndianUID, deflate(t, basicDataSet(explicitLEEncoder))), DeflatedExplicitVRLittleEndianUID},
		{"no preamble", part10(ExplicitVRLittleEndianUID, basicDataSet(explicitLEEncoder))[preambleLength:], ExplicitVRLittleEndianUID},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, err := newTestReader().ReadHeader(bytes.NewReader(tc.in))
			if err != nil {
				t.Fatalf("ReadHeader: %v", err)
			}
			checkBasicDataSet(t, h)
			if got := h.TransferSyntax().UID; got != tc.syntax {
				t.Errorf("transfer syntax: got %v, want %v", got, tc.syntax)
			}
			if got, _ := h.StringValue(TransferSyntaxUIDTag); got != tc.syntax {
				t.Errorf("TransferSyntaxUID element: got %q, want %q", got, tc.syntax)
			}
		})
	}
}

func TestReadHeaderUnknownTransferSyntax(t *testing.T) {
	var logs bytes.Buffer
	r := newTestReader(WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	h, err := r.ReadHeader(bytes.NewReader(part10("1.2.3.4.5.6", basicDataSet(explicitLEEncoder))))
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	checkBasicDataSet(t, h)
	ts := h.TransferSyntax()
	if !ts.ExplicitVR || !ts.LittleEndian || ts.Encoded {
		t.Errorf("got transfer syntax %+v, want explicit VR little endian", ts)
	}
	if !strings.Contains(logs.String(), "unknown transfer syntax") {
		t.Errorf("expected a warning about the transfer syntax, got log %q", logs.String())
	}
}

func TestReadHeaderErrors(t *testing.T) {
	e := explicitLEEncoder
	badMagic := append(make([]byte, preambleLength), "DICX"...)
	tests := []struct {
		name    string
		in      []byte
		wantErr error
		wantTag Tag
	}{
		{"bad magic", badMagic, ErrNotDICOM, 0},
		{"text file", []byte(strings.Repeat("not a dicom file ", 10)), ErrNotDICOM, 0},
		{"unknown implicit tag", part10(ImplicitVRLittleEndianUID,
			implicitLEEncoder.str(ModalityTag, CSVR, "CT"),
			implicitLEEncoder.str(NewTag(0x0006, 0x0001), CSVR, "??")), ErrUnknownTag, NewTag(0x0006, 0x0001)},
		{"undefined length text", part10(ExplicitVRLittleEndianUID,
			e.undefined(ImageTypeTag, UTVR, []byte("ORIGINAL"))), ErrUndefinedLength, ImageTypeTag},
		{"unknown explicit VR", part10(ExplicitVRLittleEndianUID,
			[]byte{0x08, 0x00, 0x60, 0x00, 'Z', 'Z', 0x02, 0x00, 'M', 'R'}), ErrUnknownVR, ModalityTag},
		{"truncated value", part10(ExplicitVRLittleEndianUID,
			e.str(PatientNameTag, PNVR, "Doe^John")[:12]), io.ErrUnexpectedEOF, PatientNameTag},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newTestReader().ReadHeader(bytes.NewReader(tc.in))
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("ReadHeader: got err %v, want %v", err, tc.wantErr)
			}
			if tc.wantTag == 0 {
				return
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("got err %T, want *ParseError", err)
			}
			if pe.Tag != tc.wantTag {
				t.Errorf("ParseError tag: got %v, want %v", pe.Tag, tc.wantTag)
			}
		})
	}
}

func TestReadHeaderImplicitDictionary(t *testing.T) {
	e := implicitLEEncoder
	var (
		timezoneOffset    = NewTag(0x0008, 0x0201)
		procedureCode     = NewTag(0x0008, 0x1032)
		anatomicRegion    = NewTag(0x0008, 0x2218)
		requestAttributes = NewTag(0x0040, 0x0275)
		codeValue         = NewTag(0x0008, 0x0100)
		requestedProcID   = NewTag(0x0040, 0x1001)
	)
	in := part10(ImplicitVRLittleEndianUID,
		e.str(timezoneOffset, SHVR, "+0100"),
		e.sequence(procedureCode, e.item(e.str(codeValue, SHVR, "CTHEAD"))),
		e.undefinedSequence(anatomicRegion, e.undefinedItem(e.str(codeValue, SHVR, "T-A0100"))),
		e.sequence(requestAttributes, e.item(e.str(requestedProcID, SHVR, "RP1"))),
		e.str(ModalityTag, CSVR, "CT"),
	)
	h, err := newTestReader().ReadHeader(bytes.NewReader(in))
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if got, _ := h.StringValue(timezoneOffset); got != "+0100" {
		t.Errorf("TimezoneOffsetFromUTC: got %q, want %q", got, "+0100")
	}
	tests := []struct {
		tag   Tag
		child Tag
		want  string
	}{
		{procedureCode, codeValue, "CTHEAD"},
		{anatomicRegion, codeValue, "T-A0100"},
		{requestAttributes, requestedProcID, "RP1"},
	}
	for _, tc := range tests {
		seq, ok := h.Element(tc.tag)
		if !ok || seq.VR != SQVR {
			t.Fatalf("%v: got %v, want a sequence", tc.tag, seq)
		}
		items := seq.Items()
		if len(items) != 1 || len(items[0].Children()) != 1 {
			t.Fatalf("%v: got %v, want one item with one element", tc.tag, seq)
		}
		child := items[0].Children()[0]
		if child.Tag != tc.child || child.VR != SHVR || child.Value != tc.want {
			t.Errorf("%v: got child %v, want %v (SH) %q", tc.tag, child, tc.child, tc.want)
		}
	}
	if got, _ := h.StringValue(ModalityTag); got != "CT" {
		t.Errorf("Modality: got %q, want %q", got, "CT")
	}
}

// withReserved sets the reserved bytes of an explicit VR long length element header.
func withReserved(element []byte, reserved uint16) []byte {
	out := append([]byte(nil), element...)
	out[6], out[7] = byte(reserved), byte(reserved>>8)
	return out
}

func TestReadHeaderReservedField(t *testing.T) {
	e := explicitLEEncoder
	comments := NewTag(0x0020, 0x4000)
	document := NewTag(0x0042, 0x0011)
	in := part10(ExplicitVRLittleEndianUID,
		e.str(ModalityTag, CSVR, "CT"),
		withReserved(e.sequence(ReferencedImageSequenceTag, e.item(referencedImage(e, "1.1")...)), 0x00FF),
		withReserved(e.element(comments, UTVR, []byte("TEXT")), 0x0001),
		withReserved(e.element(document, OBVR, []byte{1, 2, 3, 4}), 0x4242),
	)
	var logs bytes.Buffer
	h, err := newTestReader(WithLogger(slog.New(slog.NewTextHandler(&logs, nil)))).ReadHeader(bytes.NewReader(in))
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}

	seq, _ := h.Element(ReferencedImageSequenceTag)
	if items := seq.Items(); len(items) != 1 || !reflect.DeepEqual(items[0], wantReferencedImage("1.1")) {
		t.Errorf("ReferencedImageSequence: got %v, want one reference to 1.1", seq)
	}
	if got, _ := h.StringValue(comments); got != "TEXT" {
		t.Errorf("ImageComments: got %q, want %q", got, "TEXT")
	}
	if doc, ok := h.Element(document); !ok || !reflect.DeepEqual(doc.Value, []byte{1, 2, 3, 4}) {
		t.Errorf("EncapsulatedDocument: got %v, want 01 02 03 04", doc)
	}
	if got, _ := h.StringValue(ModalityTag); got != "CT" {
		t.Errorf("Modality: got %q, want %q", got, "CT")
	}
	if got := strings.Count(logs.String(), "non-zero reserved field"); got != 3 {
		t.Errorf("got %d reserved field warnings, want 3 (log %q)", got, logs.String())
	}
	for _, want := range []string{"reserved=255", "reserved=1", "reserved=16962"} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("log %q does not contain %q", logs.String(), want)
		}
	}
}

func TestReadHeaderLongLengthVRs(t *testing.T) {
	e := explicitLEEncoder
	od := make([]byte, 16)
	binary.LittleEndian.PutUint64(od, math.Float64bits(1.5))
	binary.LittleEndian.PutUint64(od[8:], math.Float64bits(-2))
	tests := []struct {
		name  string
		tag   Tag
		vr    *VR
		value []byte
		want  interface{}
	}{
		{"UR", NewTag(0x0008, 0x010E), URVR, []byte("http://x.org"), "http://x.org"},
		{"UC", NewTag(0x0008, 0x0119), UCVR, []byte("LONGCODE"), "LONGCODE"},
		{"OD", NewTag(0x0066, 0x0040), ODVR, od, []float64{1.5, -2}},
		{"OL", NewTag(0x0066, 0x0041), OLVR, e.longs(7, 0x10000), []uint32{7, 0x10000}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			element := e.element(tc.tag, tc.vr, tc.value)
			if got, want := len(element), 12+len(tc.value); got != want {
				t.Fatalf("encoded element: got %d bytes, want %d", got, want)
			}
			in := part10(ExplicitVRLittleEndianUID, element, e.str(ModalityTag, CSVR, "CT"))
			h, err := newTestReader().ReadHeader(bytes.NewReader(in))
			if err != nil {
				t.Fatalf("ReadHeader: %v", err)
			}
			got, ok := h.Element(tc.tag)
			if !ok || got.VR != tc.vr || !reflect.DeepEqual(got.Value, tc.want) {
				t.Errorf("got %v, want %v (%v) %v", got, tc.tag, tc.vr, tc.want)
			}
			if modality, _ := h.StringValue(ModalityTag); modality != "CT" {
				t.Errorf("Modality: got %q, want %q", modality, "CT")
			}
		})
	}
}

func TestReadHeaderCharacterSet(t *testing.T) {
	e := explicitLEEncoder
	in := part10(ExplicitVRLittleEndianUID,
		e.str(SpecificCharacterSetTag, CSVR, "ISO_IR 144"),
		e.element(PatientNameTag, PNVR, []byte{0xB0, 0xB1}),
	)
	h, err := newTestReader().ReadHeader(bytes.NewReader(in))
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if got, _ := h.StringValue(PatientNameTag); got != "АБ" {
		t.Errorf("PatientName: got %q, want %q", got, "АБ")
	}
}

func TestReadHeaderTransforms(t *testing.T) {
	e := explicitLEEncoder
	groupLength := NewTag(0x0008, 0x0000)
	creator := NewTag(0x0009, 0x0010)
	private := NewTag(0x0009, 0x1001)
	in := part10(ExplicitVRLittleEndianUID,
		e.element(groupLength, ULVR, e.longs(10)),
		e.str(ModalityTag, CSVR, "MR"),
		e.str(creator, LOVR, "ACME"),
		e.element(private, OBVR, []byte{1, 2, 3, 4}),
	)
	tests := []struct {
		name string
		opts []ReaderOption
		want []Tag
	}{
		{"none", nil, []Tag{TransferSyntaxUIDTag, groupLength, ModalityTag, creator, private}},
		{"drop group lengths", []ReaderOption{DropGroupLengths}, []Tag{TransferSyntaxUIDTag, ModalityTag, creator, private}},
		{"drop private", []ReaderOption{DropPrivateElements}, []Tag{TransferSyntaxUIDTag, groupLength, ModalityTag}},
		{"both", []ReaderOption{DropGroupLengths, DropPrivateElements}, []Tag{TransferSyntaxUIDTag, ModalityTag}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, err := newTestReader(tc.opts...).ReadHeader(bytes.NewReader(in))
			if err != nil {
				t.Fatalf("ReadHeader: %v", err)
			}
			if got := h.Tags(); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got tags %v, want %v", got, tc.want)
			}
		})
	}
}

func TestReadHeaderTransformError(t *testing.T) {
	errRejected := errors.New("rejected")
	reject := WithTransform(func(elem *Element) (*Element, error) {
		if elem.Tag == ModalityTag {
			return nil, errRejected
		}
		return elem, nil
	})
	in := part10(ExplicitVRLittleEndianUID, basicDataSet(explicitLEEncoder))
	_, err := newTestReader(reject).ReadHeader(bytes.NewReader(in))
	var pe *ParseError
	if !errors.Is(err, errRejected) || !errors.As(err, &pe) || pe.Tag != ModalityTag {
		t.Errorf("got err %v, want %v at %v", err, errRejected, ModalityTag)
	}
}

func TestReadSlicesByteOrder(t *testing.T) {
	pixels := []uint16{1, 2, 3, 400, 500, 600}
	tests := []struct {
		name string
		ts   string
		e    encoder
	}{
		{"explicit little endian", ExplicitVRLittleEndianUID, explicitLEEncoder},
		{"implicit little endian", ImplicitVRLittleEndianUID, implicitLEEncoder},
		{"explicit big endian", ExplicitVRBigEndianUID, explicitBEEncoder},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := part10(tc.ts,
				tc.e.imageElements(2, 3, 1, 16, "MONOCHROME2"),
				tc.e.element(PixelDataTag, OWVR, tc.e.words(pixels...)),
			)
			slices, err := newTestReader().ReadSlices("s", bytes.NewReader(in))
			if err != nil {
				t.Fatalf("ReadSlices: %v", err)
			}
			if len(slices) != 1 {
				t.Fatalf("got %d slices, want 1", len(slices))
			}
			sb, ok := slices[0].PixelBuffer().(*ShortPixelBuffer)
			if !ok {
				t.Fatalf("got %T, want *ShortPixelBuffer", slices[0].PixelBuffer())
			}
			want := []int16{1, 2, 3, 400, 500, 600}
			if got := sb.Samples().Shorts; !reflect.DeepEqual(got, want) {
				t.Errorf("got pixels %v, want %v", got, want)
			}
		})
	}
}
