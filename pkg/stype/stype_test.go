package stype

import (
	"bytes"
	"sort"
	"testing"
)

func TestFootprintAndElementSize(t *testing.T) {
	cases := []struct {
		typ       Type
		footprint uint32
	}{
		{INT32, 4},
		{INT64, 8},
		{UINT32, 4},
		{UINT64, 8},
		{FLOAT, 4},
		{DOUBLE, 8},
		{LONGDOUBLE, 16},
		{TIMESTAMP, 8},
		{OBJ, 16},
		{BYTEARRAY, 8},
		{INT32ARRAY, 8},
		{OBJARRAY, 8},
	}
	for _, c := range cases {
		if got := Footprint(c.typ); got != c.footprint {
			t.Errorf("Footprint(%s) = %d, want %d", c.typ, got, c.footprint)
		}
	}
}

func TestTypeCountMatchesEighteenTags(t *testing.T) {
	if typeCount != 18 {
		t.Fatalf("expected 18 type tags, got %d", int(typeCount))
	}
}

func TestIsRefAndIsArray(t *testing.T) {
	for t1 := INT32; t1 <= Last; t1++ {
		wantRef := t1 >= OBJ
		if t1.IsRef() != wantRef {
			t.Errorf("%s.IsRef() = %v, want %v", t1, t1.IsRef(), wantRef)
		}
	}
	if BYTEARRAY.IsArray() == false {
		t.Error("BYTE_ARRAY should be an array type")
	}
	if OBJ.IsArray() {
		t.Error("OBJ should not be an array type")
	}
	if INT32.IsArray() {
		t.Error("INT32 should not be an array type")
	}
}

func TestFixedIntRoundTrip(t *testing.T) {
	f := FuncsFor(INT32)
	buf := make([]byte, 4)
	n, err := f.FromStr(buf, "-42")
	if err != nil {
		t.Fatalf("FromStr: %v", err)
	}
	if n != 4 {
		t.Fatalf("FromStr wrote %d bytes, want 4", n)
	}
	s, err := f.ToStr(buf)
	if err != nil {
		t.Fatalf("ToStr: %v", err)
	}
	if s != "-42" {
		t.Fatalf("ToStr = %q, want -42", s)
	}
}

func TestUint64RoundTrip(t *testing.T) {
	f := FuncsFor(UINT64)
	buf := make([]byte, 8)
	if _, err := f.FromStr(buf, "18446744073709551615"); err != nil {
		t.Fatalf("FromStr: %v", err)
	}
	s, err := f.ToStr(buf)
	if err != nil {
		t.Fatalf("ToStr: %v", err)
	}
	if s != "18446744073709551615" {
		t.Fatalf("ToStr = %q", s)
	}
}

func TestFloatRoundTrip(t *testing.T) {
	f := FuncsFor(DOUBLE)
	buf := make([]byte, 8)
	if _, err := f.FromStr(buf, "3.5"); err != nil {
		t.Fatalf("FromStr: %v", err)
	}
	s, err := f.ToStr(buf)
	if err != nil {
		t.Fatalf("ToStr: %v", err)
	}
	if s != "3.5" {
		t.Fatalf("ToStr = %q, want 3.5", s)
	}
}

func TestByteArrayKeyOrdering(t *testing.T) {
	f := FuncsFor(BYTEARRAY)
	vals := [][]byte{[]byte("banana"), []byte("apple"), []byte("cherry")}
	keys := make([][]byte, len(vals))
	for i, v := range vals {
		keys[i] = f.KeyValue(v)
	}
	order := []int{0, 1, 2}
	sort.Slice(order, func(i, j int) bool {
		return bytes.Compare(keys[order[i]], keys[order[j]]) < 0
	})
	got := make([]string, len(order))
	for i, idx := range order {
		got[i] = string(vals[idx])
	}
	want := []string{"apple", "banana", "cherry"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte array key order = %v, want %v", got, want)
		}
	}
}

func TestSignedIntKeyOrderingPreservesNumericOrder(t *testing.T) {
	f := FuncsFor(INT32)
	ints := []int64{-100, -1, 0, 1, 100}
	var keys [][]byte
	for _, n := range ints {
		buf := make([]byte, 4)
		encodeInt(buf, 4, n)
		keys = append(keys, f.KeyValue(buf))
	}
	for i := 1; i < len(keys); i++ {
		if bytes.Compare(keys[i-1], keys[i]) >= 0 {
			t.Fatalf("key for %d should sort before key for %d", ints[i-1], ints[i])
		}
	}
}

func TestFloatKeyOrderingPreservesNumericOrder(t *testing.T) {
	f := FuncsFor(DOUBLE)
	floats := []float64{-10.5, -0.5, 0, 0.5, 10.5}
	var keys [][]byte
	for _, v := range floats {
		buf := make([]byte, 8)
		encodeFloat(buf, 8, v)
		keys = append(keys, f.KeyValue(buf))
	}
	for i := 1; i < len(keys); i++ {
		if bytes.Compare(keys[i-1], keys[i]) >= 0 {
			t.Fatalf("key for %v should sort before key for %v", floats[i-1], floats[i])
		}
	}
}

func TestRefTypeHasNoStringForm(t *testing.T) {
	f := FuncsFor(OBJ)
	if _, err := f.ToStr(make([]byte, 16)); err == nil {
		t.Fatal("expected OBJ.ToStr to fail, references have no string form")
	}
	if _, err := f.FromStr(make([]byte, 16), "anything"); err == nil {
		t.Fatal("expected OBJ.FromStr to fail")
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	buf := make([]byte, 8)
	encodeUint(buf, 8, 1700000000)
	tm := DecodeTime(buf)
	if tm.Unix() != 1700000000 {
		t.Fatalf("DecodeTime = %v, want unix 1700000000", tm.Unix())
	}
}

func TestParseTypeRoundTripsWithString(t *testing.T) {
	for t1 := Type(0); t1 <= Last; t1++ {
		parsed, err := ParseType(t1.String())
		if err != nil {
			t.Fatalf("ParseType(%s): %v", t1, err)
		}
		if parsed != t1 {
			t.Fatalf("ParseType(%s) = %s, want %s", t1.String(), parsed, t1)
		}
	}
}

func TestParseTypeRejectsUnknownName(t *testing.T) {
	if _, err := ParseType("NOT_A_TYPE"); err == nil {
		t.Fatal("expected an error for an unknown type name")
	}
}
