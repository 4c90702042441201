package schema

import (
	"strings"

	"github.com/narategithub/sos/pkg/stype"
)

// internalSchemaCount is the number of non-primitive types — OBJ plus
// every array kind — each of which gets a static internal schema
// describing its single out-of-line "value" element. OBJ..OBJ_ARRAY
// spans exactly ten type tags.
const internalSchemaCount = int(stype.Last-stype.OBJ) + 1

var internalSchemas [internalSchemaCount]*Schema

// arrayElementType maps an array type to the scalar type its elements
// are stored as out-of-line, for array kinds whose element happens to
// coincide with a whole attribute type (e.g. INT32_ARRAY elements are
// plain INT32 values). BYTE_ARRAY (1-byte elements) and OBJ_ARRAY
// (8-byte Ref elements) have no such scalar counterpart and are handled
// with an explicit size instead; they're absent from this table.
var arrayElementType = map[stype.Type]stype.Type{
	stype.INT32ARRAY:      stype.INT32,
	stype.INT64ARRAY:      stype.INT64,
	stype.UINT32ARRAY:     stype.UINT32,
	stype.UINT64ARRAY:     stype.UINT64,
	stype.FLOATARRAY:      stype.FLOAT,
	stype.DOUBLEARRAY:     stype.DOUBLE,
	stype.LONGDOUBLEARRAY: stype.LONGDOUBLE,
}

func init() {
	// Every internal schema gets its own distinct id; none are shared.
	id := uint32(1)
	for t := stype.OBJ; t <= stype.Last; t++ {
		s := New(ischemaName(t))
		switch {
		case t == stype.BYTEARRAY:
			s.attrs.AddSized("value", t, 1)
		case t == stype.OBJARRAY:
			s.attrs.AddSized("value", t, stype.ElementSize(t))
		case t.IsArray():
			s.attrs.Add("value", arrayElementType[t])
		default:
			s.attrs.Add("value", t)
		}
		s.id = id
		s.persisted = true
		internalSchemas[t-stype.OBJ] = s
		id++
	}
}

func ischemaName(t stype.Type) string {
	return "__" + strings.ToLower(t.String()) + "_ischema"
}

// InternalSchema returns the static internal schema describing the
// single out-of-line element of a reference-typed attribute (OBJ or
// any array kind). Returns nil for non-reference types.
func InternalSchema(t stype.Type) *Schema {
	if !t.IsRef() {
		return nil
	}
	return internalSchemas[t-stype.OBJ]
}

// firstUserSchemaID is the smallest id a Registry may assign to a
// user-defined schema, reserving 1..internalSchemaCount for the
// statically-defined internal schemas above.
const firstUserSchemaID = uint32(internalSchemaCount) + 1
