package wire

// Request is one call sent on the control socket. Payload is nil for
// calls without an argument. The codec does not check that Payload matches
// Func; the agent's schema does not either.
type Request struct {
	Func    Function
	Payload Payload
}

// Payload is one arm of the request union: Empty, Str, TextMsg, PathMsg,
// DBQuery, Verification, AddMembers or XMLMsg.
type Payload interface {
	isPayload()
}

// Response is one reply from the control socket, or one pushed frame on the
// event socket. Result is nil when the agent set no result field.
type Response struct {
	Func   Function
	Result Result
}

// Result is one arm of the response union: Status, Str, Event, MsgTypes,
// Contacts, DBNames, DBTables or DBRows.
type Result interface {
	isResult()
}

// Empty is the explicit "no argument" payload.
type Empty struct{}

// Str is a bare string argument or result.
type Str string

type TextMsg struct {
	Msg      string // message body
	Receiver string // wxid or room id
	Aters    string // comma separated wxids to mention in a room
}

type PathMsg struct {
	Path     string // file path on the agent's host
	Receiver string
}

type DBQuery struct {
	DB  string
	SQL string
}

// Verification carries the v3/v4 tickets of a friend request.
type Verification struct {
	V3 string
	V4 string
}

type AddMembers struct {
	RoomID string
	Wxids  string // comma separated
}

type XMLMsg struct {
	Receiver string
	Content  string
	Path     string
	Type     int32
}

// Status is the int32 result most write calls return. 0 means success for
// send calls; IS_LOGIN answers 1 when logged in.
type Status int32

// Event is a chat message notification. The agent pushes these on the
// event socket; a control reply may also carry one.
type Event struct {
	IsSelf  bool   `json:"is_self"`
	IsGroup bool   `json:"is_group"`
	Type    int32  `json:"type"`
	ID      string `json:"id"`
	XML     string `json:"xml"`
	Sender  string `json:"sender"`
	RoomID  string `json:"roomid"`
	Content string `json:"content"`
}

// MsgTypes maps message type codes to display names.
type MsgTypes map[int32]string

type Contact struct {
	Wxid     string `json:"wxid"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Country  string `json:"country"`
	Province string `json:"province"`
	City     string `json:"city"`
	Gender   int32  `json:"gender"`
}

type Contacts []Contact

type DBNames []string

type DBTable struct {
	Name string `json:"name"`
	SQL  string `json:"sql"`
}

type DBTables []DBTable

type DBField struct {
	Type    int32  `json:"type"`
	Column  string `json:"column"`
	Content []byte `json:"content"`
}

type DBRow struct {
	Fields []DBField `json:"fields"`
}

type DBRows []DBRow

func (Empty) isPayload()        {}
func (Str) isPayload()          {}
func (TextMsg) isPayload()      {}
func (PathMsg) isPayload()      {}
func (DBQuery) isPayload()      {}
func (Verification) isPayload() {}
func (AddMembers) isPayload()   {}
func (XMLMsg) isPayload()       {}

func (Status) isResult()   {}
func (Str) isResult()      {}
func (Event) isResult()    {}
func (MsgTypes) isResult() {}
func (Contacts) isResult() {}
func (DBNames) isResult()  {}
func (DBTables) isResult() {}
func (DBRows) isResult()   {}
