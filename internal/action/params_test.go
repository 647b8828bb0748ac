package action

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/lydakis/wcfx/internal/wire"
)

func TestPayloadBuildsEachVariant(t *testing.T) {
	cases := []struct {
		action string
		params map[string]any
		want   wire.Payload
	}{
		{"get_contacts", nil, nil},
		{"get_db_tables", map[string]any{"db": "MicroMsg.db"}, wire.Str("MicroMsg.db")},
		{"get_db_tables", map[string]any{"str": "MicroMsg.db"}, wire.Str("MicroMsg.db")},
		{"exec_db_query", map[string]any{"db": "MicroMsg.db", "sql": "SELECT 1"}, wire.DBQuery{DB: "MicroMsg.db", SQL: "SELECT 1"}},
		{"send_image", map[string]any{"path": `C:\a.png`, "receiver": "wxid_1"}, wire.PathMsg{Path: `C:\a.png`, Receiver: "wxid_1"}},
		{"send_file", map[string]any{"file": map[string]any{"path": `C:\a.zip`, "receiver": "wxid_1"}}, wire.PathMsg{Path: `C:\a.zip`, Receiver: "wxid_1"}},
		{"accept_friend", map[string]any{"v3": "a", "v4": "b"}, wire.Verification{V3: "a", V4: "b"}},
		{"add_room_members", map[string]any{"roomid": "1@chatroom", "wxids": "x,y"}, wire.AddMembers{RoomID: "1@chatroom", Wxids: "x,y"}},
		{"send_xml", map[string]any{"receiver": "wxid_1", "content": "<msg/>", "path": "", "type": float64(21)}, wire.XMLMsg{Receiver: "wxid_1", Content: "<msg/>", Type: 21}},
		{"send_xml", map[string]any{"receiver": "wxid_1", "content": "<msg/>", "path": "", "type": "21"}, wire.XMLMsg{Receiver: "wxid_1", Content: "<msg/>", Type: 21}},
		{"send_xml", map[string]any{"receiver": "wxid_1", "content": "<msg/>", "path": "", "type": json.Number("3")}, wire.XMLMsg{Receiver: "wxid_1", Content: "<msg/>", Type: 3}},
	}

	for _, tc := range cases {
		act, ok := Lookup(tc.action)
		if !ok {
			t.Fatalf("Lookup(%q) failed", tc.action)
		}
		got, err := act.Payload(tc.params)
		if err != nil {
			t.Fatalf("%s Payload(%v) error = %v", tc.action, tc.params, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s Payload(%v) = %#v, want %#v", tc.action, tc.params, got, tc.want)
		}
	}
}

func TestPayloadRejectsBadShapes(t *testing.T) {
	cases := []struct {
		action string
		params map[string]any
	}{
		{"send_text", map[string]any{"msg": "hi"}},
		{"send_text", map[string]any{"msg": "hi", "receiver": 7}},
		{"send_text", map[string]any{"msg": "hi", "receiver": "wxid_1"}},
		{"send_text", map[string]any{"txt": "hi"}},
		{"send_text", map[string]any{"msg": "hi", "txt": map[string]any{"msg": "again", "receiver": "wxid_1"}}},
		{"send_xml", map[string]any{"receiver": "wxid_1", "content": "<msg/>", "path": "", "type": 2.5}},
		{"send_xml", map[string]any{"receiver": "wxid_1", "content": "<msg/>", "path": "", "type": float64(1 << 40)}},
		{"send_xml", map[string]any{"receiver": "wxid_1", "content": "<msg/>", "path": "", "type": "text"}},
		{"get_db_tables", map[string]any{"str": []any{"x"}}},
		{"send_xml", map[string]any{"receiver": "wxid_1", "content": "<msg/>", "type": 1}},
	}

	for _, tc := range cases {
		act, _ := Lookup(tc.action)
		if _, err := act.Payload(tc.params); !errors.Is(err, ErrBadParams) {
			t.Fatalf("%s Payload(%v) error = %v, want ErrBadParams", tc.action, tc.params, err)
		}
	}
}

func TestPayloadDropsUnknownKeys(t *testing.T) {
	act, _ := Lookup("send_text")
	got, err := act.Payload(map[string]any{"msg": "hi", "receiver": "wxid_1", "aters": "", "colour": "red"})
	if err != nil {
		t.Fatalf("Payload() error = %v", err)
	}
	if want := (wire.TextMsg{Msg: "hi", Receiver: "wxid_1"}); got != want {
		t.Fatalf("Payload() = %#v, want %#v", got, want)
	}

	act, _ = Lookup("get_contacts")
	if got, err := act.Payload(map[string]any{"extra": true}); err != nil || got != nil {
		t.Fatalf("get_contacts Payload() = %#v, %v; want nil, nil", got, err)
	}
}

func TestPayloadIgnoresEchoedFunc(t *testing.T) {
	act, _ := Lookup("get_db_names")
	got, err := act.Payload(map[string]any{"func": "FUNC_GET_DB_NAMES"})
	if err != nil {
		t.Fatalf("Payload() error = %v", err)
	}
	if got != nil {
		t.Fatalf("Payload() = %#v, want nil", got)
	}
}
