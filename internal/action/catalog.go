package action

import (
	"sort"

	"github.com/lydakis/wcfx/internal/wire"
)

// Param describes one named argument of an action.
type Param struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "string" or "integer"
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

// Action is one externally callable operation.
type Action struct {
	Name        string        `json:"name"`
	Func        wire.Function `json:"-"`
	Description string        `json:"description"`

	// ReadOnly actions only query the agent and are safe to cache.
	ReadOnly bool `json:"read_only"`

	// Variant is the request union arm the params fill, by its wire name.
	// Empty for actions that send no payload.
	Variant string  `json:"-"`
	Params  []Param `json:"params,omitempty"`
}

var catalog = []Action{
	{
		Name:        "get_contacts",
		Func:        wire.FuncGetContacts,
		Description: "List the account's contacts and rooms.",
		ReadOnly:    true,
	},
	{
		Name:        "get_db_names",
		Func:        wire.FuncGetDBNames,
		Description: "List the agent's database names.",
		ReadOnly:    true,
	},
	{
		Name:        "get_db_tables",
		Func:        wire.FuncGetDBTables,
		Description: "List the tables of one database with their CREATE statements.",
		ReadOnly:    true,
		Variant:     "str",
		Params: []Param{
			{Name: "db", Type: "string", Required: true, Description: "Database name, as returned by get_db_names."},
		},
	},
	{
		Name:        "get_msg_types",
		Func:        wire.FuncGetMsgTypes,
		Description: "List message type codes and their names.",
		ReadOnly:    true,
	},
	{
		Name:        "exec_db_query",
		Func:        wire.FuncExecDBQuery,
		Description: "Run a SQL query against one of the agent's databases.",
		Variant:     "query",
		Params: []Param{
			{Name: "db", Type: "string", Required: true, Description: "Database name."},
			{Name: "sql", Type: "string", Required: true, Description: "SQL statement."},
		},
	},
	{
		Name:        "send_text",
		Func:        wire.FuncSendTxt,
		Description: "Send a text message to a contact or room.",
		Variant:     "txt",
		Params: []Param{
			{Name: "msg", Type: "string", Required: true, Description: "Message text."},
			{Name: "receiver", Type: "string", Required: true, Description: "wxid or room id."},
			{Name: "aters", Type: "string", Required: true, Description: "Comma separated wxids to mention, empty for none."},
		},
	},
	{
		Name:        "send_image",
		Func:        wire.FuncSendImg,
		Description: "Send an image file to a contact or room.",
		Variant:     "file",
		Params: []Param{
			{Name: "path", Type: "string", Required: true, Description: "Image path on the agent's host."},
			{Name: "receiver", Type: "string", Required: true, Description: "wxid or room id."},
		},
	},
	{
		Name:        "send_file",
		Func:        wire.FuncSendFile,
		Description: "Send a file to a contact or room.",
		Variant:     "file",
		Params: []Param{
			{Name: "path", Type: "string", Required: true, Description: "File path on the agent's host."},
			{Name: "receiver", Type: "string", Required: true, Description: "wxid or room id."},
		},
	},
	{
		Name:        "send_xml",
		Func:        wire.FuncSendXML,
		Description: "Send a raw XML message.",
		Variant:     "xml",
		Params: []Param{
			{Name: "receiver", Type: "string", Required: true, Description: "wxid or room id."},
			{Name: "content", Type: "string", Required: true, Description: "XML body."},
			{Name: "path", Type: "string", Required: true, Description: "Thumbnail path on the agent's host, empty for none."},
			{Name: "type", Type: "integer", Required: true, Description: "Message type code."},
		},
	},
	{
		Name:        "accept_friend",
		Func:        wire.FuncAcceptFriend,
		Description: "Accept a friend request.",
		Variant:     "v",
		Params: []Param{
			{Name: "v3", Type: "string", Required: true, Description: "v3 ticket from the request event."},
			{Name: "v4", Type: "string", Required: true, Description: "v4 ticket from the request event."},
		},
	},
	{
		Name:        "add_room_members",
		Func:        wire.FuncAddRoomMembers,
		Description: "Add contacts to a room.",
		Variant:     "m",
		Params: []Param{
			{Name: "roomid", Type: "string", Required: true, Description: "Room id."},
			{Name: "wxids", Type: "string", Required: true, Description: "Comma separated wxids to add."},
		},
	},
}

var byName = func() map[string]Action {
	m := make(map[string]Action, len(catalog))
	for _, a := range catalog {
		m[a.Name] = a
	}
	return m
}()

// Lookup returns the public action called name.
func Lookup(name string) (Action, bool) {
	a, ok := byName[name]
	return a, ok
}

// Catalog returns every public action sorted by name.
func Catalog() []Action {
	out := make([]Action, len(catalog))
	copy(out, catalog)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Param returns the named parameter, if the action has one.
func (a Action) Param(name string) (Param, bool) {
	for _, p := range a.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}
