// Package value implements attribute value views: the short-lived
// binding between an object handle (or a private buffer) and one
// attribute's raw bytes, through which reads/writes/string conversion/
// key extraction ultimately flow, dispatching per-type through
// stype.FuncsFor.
package value

import (
	"encoding/binary"
	"fmt"

	"github.com/narategithub/sos/pkg/attr"
	"github.com/narategithub/sos/pkg/ods"
	"github.com/narategithub/sos/pkg/schema"
	"github.com/narategithub/sos/pkg/sos"
	"github.com/narategithub/sos/pkg/stype"
)

// recordHeaderSize is the fixed prefix ahead of every record's packed
// attribute storage: a schema id and a flags word. Attribute offsets
// (pkg/attr) are relative to the end of this header.
const recordHeaderSize = 8

func schemaIDAt(data []byte) uint32   { return binary.LittleEndian.Uint32(data[0:4]) }
func setSchemaIDAt(data []byte, id uint32) {
	binary.LittleEndian.PutUint32(data[0:4], id)
}
func flagsAt(data []byte) uint32 { return binary.LittleEndian.Uint32(data[4:8]) }
func setFlagsAt(data []byte, f uint32) {
	binary.LittleEndian.PutUint32(data[4:8], f)
}

// NewRecord allocates a record object sized for s's attribute storage
// plus the record header, and writes s's id into that header.
func NewRecord(store *ods.ODS, s *schema.Schema) (*ods.Handle, error) {
	if !s.Persisted() {
		return nil, fmt.Errorf("value: new_record: schema %q not persisted: %w", s.Name(), sos.EINVAL)
	}
	h, err := store.AllocObject(recordHeaderSize + s.RecordSize())
	if err != nil {
		return nil, err
	}
	data := h.Bytes()
	setSchemaIDAt(data, s.ID())
	setFlagsAt(data, 0)
	return h, nil
}

// RecordSchemaID reads the schema id out of an existing record's
// header.
func RecordSchemaID(rec *ods.Handle) uint32 { return schemaIDAt(rec.Bytes()) }

// attrSlice returns the in-record byte range belonging to a.
func attrSlice(rec *ods.Handle, a *attr.Attr) []byte {
	start := recordHeaderSize + a.Offset()
	end := start + stype.Footprint(a.Type())
	return rec.Bytes()[start:end]
}
