package wire

import "fmt"

// Function identifies a remote operation on the agent. The same code is
// echoed back in the reply.
type Function uint32

const (
	FuncReserved       Function = 0x00
	FuncIsLogin        Function = 0x01
	FuncGetSelfWxid    Function = 0x10
	FuncGetMsgTypes    Function = 0x11
	FuncGetContacts    Function = 0x12
	FuncGetDBNames     Function = 0x13
	FuncGetDBTables    Function = 0x14
	FuncSendTxt        Function = 0x20
	FuncSendImg        Function = 0x21
	FuncSendFile       Function = 0x22
	FuncSendXML        Function = 0x23
	FuncEnableRecvTxt  Function = 0x30
	FuncDisableRecvTxt Function = 0x40
	FuncExecDBQuery    Function = 0x50
	FuncAcceptFriend   Function = 0x51
	FuncAddRoomMembers Function = 0x52
)

var functionNames = map[Function]string{
	FuncReserved:       "FUNC_RESERVED",
	FuncIsLogin:        "FUNC_IS_LOGIN",
	FuncGetSelfWxid:    "FUNC_GET_SELF_WXID",
	FuncGetMsgTypes:    "FUNC_GET_MSG_TYPES",
	FuncGetContacts:    "FUNC_GET_CONTACTS",
	FuncGetDBNames:     "FUNC_GET_DB_NAMES",
	FuncGetDBTables:    "FUNC_GET_DB_TABLES",
	FuncSendTxt:        "FUNC_SEND_TXT",
	FuncSendImg:        "FUNC_SEND_IMG",
	FuncSendFile:       "FUNC_SEND_FILE",
	FuncSendXML:        "FUNC_SEND_XML",
	FuncEnableRecvTxt:  "FUNC_ENABLE_RECV_TXT",
	FuncDisableRecvTxt: "FUNC_DISABLE_RECV_TXT",
	FuncExecDBQuery:    "FUNC_EXEC_DB_QUERY",
	FuncAcceptFriend:   "FUNC_ACCEPT_FRIEND",
	FuncAddRoomMembers: "FUNC_ADD_ROOM_MEMBERS",
}

func (f Function) String() string {
	if name, ok := functionNames[f]; ok {
		return name
	}
	return fmt.Sprintf("FUNC_0x%02X", uint32(f))
}

// Known reports whether f is one of the codes the agent understands.
func (f Function) Known() bool {
	_, ok := functionNames[f]
	return ok
}
