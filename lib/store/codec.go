package store

import (
	"fmt"
	"github.com/cyclopcam/connect/lib/registry"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of an encoded record. They must never be reused.
const (
	fieldID            protowire.Number = 1
	fieldLanIP         protowire.Number = 2
	fieldName          protowire.Number = 3
	fieldBearerToken   protowire.Number = 4
	fieldSessionCookie protowire.Number = 5
	fieldSeq           protowire.Number = 6
)

// entry is a record together with its insertion sequence number,
// which orders records on load.
type entry struct {
	Record registry.Record
	Seq    uint64
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// encodeEntry encodes an entry in the protobuf wire format.
func encodeEntry(e entry) []byte {
	var b []byte
	b = appendString(b, fieldID, e.Record.ID)
	b = appendString(b, fieldLanIP, e.Record.LanIP)
	b = appendString(b, fieldName, e.Record.Name)
	b = appendString(b, fieldBearerToken, e.Record.BearerToken)
	b = appendString(b, fieldSessionCookie, e.Record.SessionCookie)
	b = protowire.AppendTag(b, fieldSeq, protowire.VarintType)
	b = protowire.AppendVarint(b, e.Seq)
	return b
}

// decodeEntry decodes what encodeEntry produced. Unknown fields are skipped.
func decodeEntry(b []byte) (e entry, err error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			err = protowire.ParseError(n)
			return
		}
		b = b[n:]

		if num == fieldSeq && typ == protowire.VarintType {
			e.Seq, n = protowire.ConsumeVarint(b)
			if n < 0 {
				err = protowire.ParseError(n)
				return
			}
			b = b[n:]
			continue
		}

		var target *string
		if typ == protowire.BytesType {
			switch num {
			case fieldID:
				target = &e.Record.ID
			case fieldLanIP:
				target = &e.Record.LanIP
			case fieldName:
				target = &e.Record.Name
			case fieldBearerToken:
				target = &e.Record.BearerToken
			case fieldSessionCookie:
				target = &e.Record.SessionCookie
			}
		}
		if target == nil {
			n = protowire.ConsumeFieldValue(num, typ, b)
		} else {
			*target, n = protowire.ConsumeString(b)
		}
		if n < 0 {
			err = protowire.ParseError(n)
			return
		}
		b = b[n:]
	}
	if e.Record.ID == "" {
		err = fmt.Errorf("record without id")
	}
	e.Record.State = registry.StateUnmodified
	return
}
