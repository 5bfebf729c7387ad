package network

// Request is one inbound command, whatever transport carried it.
type Request interface {
	Command() string
	Body() []byte
	ContentType() string
	// Reply answers the request. Only the first call has an effect.
	Reply(status int, contentType string, body []byte) error
}

type Handler interface {
	HandleRequest(Request) error
}
