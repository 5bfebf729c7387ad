package common

// Commands served by every node.
const (
	CmdStatus   = "status"
	CmdGetState = "getState"
	CmdMessage  = "message"
	CmdStart    = "start"
	CmdStop     = "stop"
)

const (
	ContentTypeText = "text/plain; charset=utf-8"
	ContentTypeJSON = "application/json"
)
