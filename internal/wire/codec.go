package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers shared by Request and Response.
const fieldFunc protowire.Number = 1

// DecodeError reports a frame that could not be parsed.
type DecodeError struct {
	Len int // raw payload length
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %d byte frame: %v", e.Len, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// resultField describes one arm of the response union.
type resultField struct {
	key    string
	num    protowire.Number
	typ    protowire.Type
	decode func(f field) (Result, error)
}

// resultFields is the probing order for response results. The wire format
// records presence, not an exclusive tag: when more than one field is set
// the first entry here wins.
var resultFields = []resultField{
	{key: "status", num: 2, typ: protowire.VarintType, decode: func(f field) (Result, error) {
		return Status(int32(f.varint)), nil
	}},
	{key: "str", num: 3, typ: protowire.BytesType, decode: func(f field) (Result, error) {
		return Str(f.bytes), nil
	}},
	{key: "wxmsg", num: 4, typ: protowire.BytesType, decode: func(f field) (Result, error) {
		return decodeEvent(f.bytes)
	}},
	{key: "types", num: 5, typ: protowire.BytesType, decode: func(f field) (Result, error) {
		return decodeMsgTypes(f.bytes)
	}},
	{key: "contacts", num: 6, typ: protowire.BytesType, decode: func(f field) (Result, error) {
		return decodeContacts(f.bytes)
	}},
	{key: "dbs", num: 7, typ: protowire.BytesType, decode: func(f field) (Result, error) {
		return decodeDBNames(f.bytes)
	}},
	{key: "tables", num: 8, typ: protowire.BytesType, decode: func(f field) (Result, error) {
		return decodeDBTables(f.bytes)
	}},
	{key: "rows", num: 9, typ: protowire.BytesType, decode: func(f field) (Result, error) {
		return decodeDBRows(f.bytes)
	}},
}

// payloadFields is the probing order for request payloads.
var payloadFields = []struct {
	key    string
	num    protowire.Number
	decode func(b []byte) (Payload, error)
}{
	{"empty", 2, func([]byte) (Payload, error) { return Empty{}, nil }},
	{"str", 3, func(b []byte) (Payload, error) { return Str(b), nil }},
	{"txt", 4, decodeTextMsg},
	{"file", 5, decodePathMsg},
	{"query", 6, decodeDBQuery},
	{"v", 7, decodeVerification},
	{"m", 8, decodeAddMembers},
	{"xml", 9, decodeXMLMsg},
}

// ResultKey returns the wire field name of r ("status", "contacts", ...),
// or "" for nil.
func ResultKey(r Result) string {
	switch r.(type) {
	case Status:
		return "status"
	case Str:
		return "str"
	case Event:
		return "wxmsg"
	case MsgTypes:
		return "types"
	case Contacts:
		return "contacts"
	case DBNames:
		return "dbs"
	case DBTables:
		return "tables"
	case DBRows:
		return "rows"
	default:
		return ""
	}
}

// Encode serializes a request for the control socket.
func Encode(req Request) []byte {
	var b []byte
	b = appendVarint(b, fieldFunc, uint64(req.Func))

	switch p := req.Payload.(type) {
	case nil:
	case Empty:
		b = appendMessage(b, 2, nil)
	case Str:
		b = appendMessage(b, 3, []byte(p))
	case TextMsg:
		var m []byte
		m = appendString(m, 1, p.Msg)
		m = appendString(m, 2, p.Receiver)
		m = appendString(m, 3, p.Aters)
		b = appendMessage(b, 4, m)
	case PathMsg:
		var m []byte
		m = appendString(m, 1, p.Path)
		m = appendString(m, 2, p.Receiver)
		b = appendMessage(b, 5, m)
	case DBQuery:
		var m []byte
		m = appendString(m, 1, p.DB)
		m = appendString(m, 2, p.SQL)
		b = appendMessage(b, 6, m)
	case Verification:
		var m []byte
		m = appendString(m, 1, p.V3)
		m = appendString(m, 2, p.V4)
		b = appendMessage(b, 7, m)
	case AddMembers:
		var m []byte
		m = appendString(m, 1, p.RoomID)
		m = appendString(m, 2, p.Wxids)
		b = appendMessage(b, 8, m)
	case XMLMsg:
		var m []byte
		m = appendString(m, 1, p.Receiver)
		m = appendString(m, 2, p.Content)
		m = appendString(m, 3, p.Path)
		m = appendVarint(m, 4, uint64(int64(p.Type)))
		b = appendMessage(b, 9, m)
	}
	return b
}

// Decode parses a control reply. Unknown fields are skipped.
func Decode(data []byte) (*Response, error) {
	var resp Response
	found := make([]Result, len(resultFields))

	err := rangeFields(data, func(f field) error {
		if f.num == fieldFunc && f.typ == protowire.VarintType {
			resp.Func = Function(f.varint)
			return nil
		}
		for i, rf := range resultFields {
			if rf.num != f.num || rf.typ != f.typ {
				continue
			}
			r, err := rf.decode(f)
			if err != nil {
				return fmt.Errorf("field %s: %w", rf.key, err)
			}
			found[i] = r
		}
		return nil
	})
	if err != nil {
		return nil, &DecodeError{Len: len(data), Err: err}
	}

	for _, r := range found {
		if r != nil {
			resp.Result = r
			break
		}
	}
	return &resp, nil
}

// DecodeEvent parses a frame pushed on the event socket. The frame is a
// Response whose wxmsg field is set; anything else is a DecodeError.
func DecodeEvent(data []byte) (Event, error) {
	resp, err := Decode(data)
	if err != nil {
		return Event{}, err
	}
	ev, ok := resp.Result.(Event)
	if !ok {
		key := ResultKey(resp.Result)
		if key == "" {
			key = "no result"
		}
		return Event{}, &DecodeError{
			Len: len(data),
			Err: fmt.Errorf("frame carries %s, want wxmsg", key),
		}
	}
	return ev, nil
}

// DecodeRequest parses a request frame. The agent side of the protocol uses
// it; the bridge only needs it for loopback tests.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	found := make([]Payload, len(payloadFields))

	err := rangeFields(data, func(f field) error {
		if f.num == fieldFunc && f.typ == protowire.VarintType {
			req.Func = Function(f.varint)
			return nil
		}
		if f.typ != protowire.BytesType {
			return nil
		}
		for i, pf := range payloadFields {
			if pf.num != f.num {
				continue
			}
			p, err := pf.decode(f.bytes)
			if err != nil {
				return fmt.Errorf("field %s: %w", pf.key, err)
			}
			found[i] = p
		}
		return nil
	})
	if err != nil {
		return nil, &DecodeError{Len: len(data), Err: err}
	}

	for _, p := range found {
		if p != nil {
			req.Payload = p
			break
		}
	}
	return &req, nil
}

// EncodeResponse serializes a reply the way the agent does.
func EncodeResponse(resp Response) []byte {
	var b []byte
	b = appendVarint(b, fieldFunc, uint64(resp.Func))

	switch r := resp.Result.(type) {
	case nil:
	case Status:
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(r)))
	case Str:
		b = appendMessage(b, 3, []byte(r))
	case Event:
		b = appendMessage(b, 4, encodeEvent(r))
	case MsgTypes:
		var m []byte
		for code, name := range r {
			var entry []byte
			entry = appendVarint(entry, 1, uint64(int64(code)))
			entry = appendString(entry, 2, name)
			m = appendMessage(m, 1, entry)
		}
		b = appendMessage(b, 5, m)
	case Contacts:
		var m []byte
		for _, c := range r {
			var cm []byte
			cm = appendString(cm, 1, c.Wxid)
			cm = appendString(cm, 2, c.Code)
			cm = appendString(cm, 3, c.Name)
			cm = appendString(cm, 4, c.Country)
			cm = appendString(cm, 5, c.Province)
			cm = appendString(cm, 6, c.City)
			cm = appendVarint(cm, 7, uint64(int64(c.Gender)))
			m = appendMessage(m, 1, cm)
		}
		b = appendMessage(b, 6, m)
	case DBNames:
		var m []byte
		for _, name := range r {
			m = appendMessage(m, 1, []byte(name))
		}
		b = appendMessage(b, 7, m)
	case DBTables:
		var m []byte
		for _, t := range r {
			var tm []byte
			tm = appendString(tm, 1, t.Name)
			tm = appendString(tm, 2, t.SQL)
			m = appendMessage(m, 1, tm)
		}
		b = appendMessage(b, 8, m)
	case DBRows:
		var m []byte
		for _, row := range r {
			var rm []byte
			for _, fld := range row.Fields {
				var fm []byte
				fm = appendVarint(fm, 1, uint64(int64(fld.Type)))
				fm = appendString(fm, 2, fld.Column)
				if len(fld.Content) > 0 {
					fm = appendMessage(fm, 3, fld.Content)
				}
				rm = appendMessage(rm, 1, fm)
			}
			m = appendMessage(m, 1, rm)
		}
		b = appendMessage(b, 9, m)
	}
	return b
}

func encodeEvent(ev Event) []byte {
	var m []byte
	m = appendBool(m, 1, ev.IsSelf)
	m = appendBool(m, 2, ev.IsGroup)
	m = appendVarint(m, 3, uint64(int64(ev.Type)))
	m = appendString(m, 4, ev.ID)
	m = appendString(m, 5, ev.XML)
	m = appendString(m, 6, ev.Sender)
	m = appendString(m, 7, ev.RoomID)
	m = appendString(m, 8, ev.Content)
	return m
}

func decodeEvent(b []byte) (Event, error) {
	var ev Event
	err := rangeFields(b, func(f field) error {
		switch {
		case f.num == 1 && f.typ == protowire.VarintType:
			ev.IsSelf = f.varint != 0
		case f.num == 2 && f.typ == protowire.VarintType:
			ev.IsGroup = f.varint != 0
		case f.num == 3 && f.typ == protowire.VarintType:
			ev.Type = int32(f.varint)
		case f.num == 4 && f.typ == protowire.BytesType:
			ev.ID = string(f.bytes)
		case f.num == 5 && f.typ == protowire.BytesType:
			ev.XML = string(f.bytes)
		case f.num == 6 && f.typ == protowire.BytesType:
			ev.Sender = string(f.bytes)
		case f.num == 7 && f.typ == protowire.BytesType:
			ev.RoomID = string(f.bytes)
		case f.num == 8 && f.typ == protowire.BytesType:
			ev.Content = string(f.bytes)
		}
		return nil
	})
	return ev, err
}

func decodeMsgTypes(b []byte) (MsgTypes, error) {
	types := MsgTypes{}
	err := rangeFields(b, func(f field) error {
		if f.num != 1 || f.typ != protowire.BytesType {
			return nil
		}
		var code int32
		var name string
		err := rangeFields(f.bytes, func(e field) error {
			switch {
			case e.num == 1 && e.typ == protowire.VarintType:
				code = int32(e.varint)
			case e.num == 2 && e.typ == protowire.BytesType:
				name = string(e.bytes)
			}
			return nil
		})
		if err != nil {
			return err
		}
		types[code] = name
		return nil
	})
	return types, err
}

func decodeContacts(b []byte) (Contacts, error) {
	contacts := Contacts{}
	err := rangeFields(b, func(f field) error {
		if f.num != 1 || f.typ != protowire.BytesType {
			return nil
		}
		var c Contact
		err := rangeFields(f.bytes, func(cf field) error {
			if cf.typ == protowire.VarintType {
				if cf.num == 7 {
					c.Gender = int32(cf.varint)
				}
				return nil
			}
			if cf.typ != protowire.BytesType {
				return nil
			}
			s := string(cf.bytes)
			switch cf.num {
			case 1:
				c.Wxid = s
			case 2:
				c.Code = s
			case 3:
				c.Name = s
			case 4:
				c.Country = s
			case 5:
				c.Province = s
			case 6:
				c.City = s
			}
			return nil
		})
		if err != nil {
			return err
		}
		contacts = append(contacts, c)
		return nil
	})
	return contacts, err
}

func decodeDBNames(b []byte) (DBNames, error) {
	names := DBNames{}
	err := rangeFields(b, func(f field) error {
		if f.num == 1 && f.typ == protowire.BytesType {
			names = append(names, string(f.bytes))
		}
		return nil
	})
	return names, err
}

func decodeDBTables(b []byte) (DBTables, error) {
	tables := DBTables{}
	err := rangeFields(b, func(f field) error {
		if f.num != 1 || f.typ != protowire.BytesType {
			return nil
		}
		var t DBTable
		err := rangeFields(f.bytes, func(tf field) error {
			switch {
			case tf.num == 1 && tf.typ == protowire.BytesType:
				t.Name = string(tf.bytes)
			case tf.num == 2 && tf.typ == protowire.BytesType:
				t.SQL = string(tf.bytes)
			}
			return nil
		})
		if err != nil {
			return err
		}
		tables = append(tables, t)
		return nil
	})
	return tables, err
}

func decodeDBRows(b []byte) (DBRows, error) {
	rows := DBRows{}
	err := rangeFields(b, func(f field) error {
		if f.num != 1 || f.typ != protowire.BytesType {
			return nil
		}
		row := DBRow{Fields: []DBField{}}
		err := rangeFields(f.bytes, func(rf field) error {
			if rf.num != 1 || rf.typ != protowire.BytesType {
				return nil
			}
			var fld DBField
			err := rangeFields(rf.bytes, func(ff field) error {
				switch {
				case ff.num == 1 && ff.typ == protowire.VarintType:
					fld.Type = int32(ff.varint)
				case ff.num == 2 && ff.typ == protowire.BytesType:
					fld.Column = string(ff.bytes)
				case ff.num == 3 && ff.typ == protowire.BytesType:
					fld.Content = append([]byte(nil), ff.bytes...)
				}
				return nil
			})
			if err != nil {
				return err
			}
			row.Fields = append(row.Fields, fld)
			return nil
		})
		if err != nil {
			return err
		}
		rows = append(rows, row)
		return nil
	})
	return rows, err
}

func decodeTextMsg(b []byte) (Payload, error) {
	var m TextMsg
	err := rangeStrings(b, map[protowire.Number]*string{1: &m.Msg, 2: &m.Receiver, 3: &m.Aters})
	return m, err
}

func decodePathMsg(b []byte) (Payload, error) {
	var m PathMsg
	err := rangeStrings(b, map[protowire.Number]*string{1: &m.Path, 2: &m.Receiver})
	return m, err
}

func decodeDBQuery(b []byte) (Payload, error) {
	var m DBQuery
	err := rangeStrings(b, map[protowire.Number]*string{1: &m.DB, 2: &m.SQL})
	return m, err
}

func decodeVerification(b []byte) (Payload, error) {
	var m Verification
	err := rangeStrings(b, map[protowire.Number]*string{1: &m.V3, 2: &m.V4})
	return m, err
}

func decodeAddMembers(b []byte) (Payload, error) {
	var m AddMembers
	err := rangeStrings(b, map[protowire.Number]*string{1: &m.RoomID, 2: &m.Wxids})
	return m, err
}

func decodeXMLMsg(b []byte) (Payload, error) {
	var m XMLMsg
	err := rangeFields(b, func(f field) error {
		switch {
		case f.num == 1 && f.typ == protowire.BytesType:
			m.Receiver = string(f.bytes)
		case f.num == 2 && f.typ == protowire.BytesType:
			m.Content = string(f.bytes)
		case f.num == 3 && f.typ == protowire.BytesType:
			m.Path = string(f.bytes)
		case f.num == 4 && f.typ == protowire.VarintType:
			m.Type = int32(f.varint)
		}
		return nil
	})
	return m, err
}

// rangeStrings fills string fields of a flat message.
func rangeStrings(b []byte, dst map[protowire.Number]*string) error {
	return rangeFields(b, func(f field) error {
		if p, ok := dst[f.num]; ok && f.typ == protowire.BytesType {
			*p = string(f.bytes)
		}
		return nil
	})
}

// field is one decoded varint or length-delimited field. Other wire types
// are skipped by rangeFields.
type field struct {
	num    protowire.Number
	typ    protowire.Type
	varint uint64
	bytes  []byte
}

func rangeFields(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
			}
			f.varint = v
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
			}
			f.bytes = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarint(b, num, 1)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// appendMessage writes a length-delimited field even when empty; union
// members are encoded whenever they are set.
func appendMessage(b []byte, num protowire.Number, m []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m)
}
