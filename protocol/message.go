package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Field names used on the wire.
const (
	FieldCmd     = "cmd"
	FieldCode    = "code"
	FieldMessage = "message"
	FieldName    = "name"
	FieldColor   = "color"
)

// ErrMalformed is returned when a body does not carry the fields its command
// requires. Receivers close the offending connection rather than guess.
var ErrMalformed = errors.New("protocol: malformed message")

// Command is the client to server discriminator carried in the cmd field.
type Command int

const (
	CmdRegister Command = iota // message carries "name secret"
	CmdLogin                   // message carries "name secret"
	CmdChat                    // name, color and message are broadcast
	CmdLogout                  // no payload
)

// String returns a human-readable name for the command.
func (c Command) String() string {
	switch c {
	case CmdRegister:
		return "register"
	case CmdLogin:
		return "login"
	case CmdChat:
		return "chat"
	case CmdLogout:
		return "logout"
	default:
		return "unknown(" + strconv.Itoa(int(c)) + ")"
	}
}

// Code is the server to client discriminator carried in the code field.
type Code int

const (
	CodeRegisterFailed Code = iota
	CodeRegisterOK
	CodeLoginFailed
	CodeLoginOK
	CodeChatMessage
)

// String returns a human-readable name for the code.
func (c Code) String() string {
	switch c {
	case CodeRegisterFailed:
		return "register failed"
	case CodeRegisterOK:
		return "register ok"
	case CodeLoginFailed:
		return "login failed"
	case CodeLoginOK:
		return "login ok"
	case CodeChatMessage:
		return "chat message"
	default:
		return "unknown(" + strconv.Itoa(int(c)) + ")"
	}
}

// Request is a decoded client command.
type Request struct {
	Cmd     Command
	Message string
	Name    string
	Color   int
}

// ParseRequest decodes a client body. The cmd field is always required,
// register and login need message, chat needs name, color and message.
//
// Returns:
//   - The decoded request
//   - An error wrapping ErrMalformed for missing fields or unknown commands
func ParseRequest(body []byte) (Request, error) {
	s := string(body)

	cmd, ok := LookupInt(s, FieldCmd)
	if !ok {
		return Request{}, fmt.Errorf("%w: missing %s field", ErrMalformed, FieldCmd)
	}

	req := Request{Cmd: Command(cmd)}
	switch req.Cmd {
	case CmdRegister, CmdLogin:
		if req.Message, ok = Lookup(s, FieldMessage); !ok {
			return Request{}, fmt.Errorf("%w: %s without %s", ErrMalformed, req.Cmd, FieldMessage)
		}
	case CmdChat:
		if req.Name, ok = Lookup(s, FieldName); !ok {
			return Request{}, fmt.Errorf("%w: %s without %s", ErrMalformed, req.Cmd, FieldName)
		}
		if req.Color, ok = LookupInt(s, FieldColor); !ok {
			return Request{}, fmt.Errorf("%w: %s without %s", ErrMalformed, req.Cmd, FieldColor)
		}
		if req.Message, ok = Lookup(s, FieldMessage); !ok {
			return Request{}, fmt.Errorf("%w: %s without %s", ErrMalformed, req.Cmd, FieldMessage)
		}
	case CmdLogout:
	default:
		return Request{}, fmt.Errorf("%w: unknown command %d", ErrMalformed, cmd)
	}

	return req, nil
}

// Encode renders the request with fields in cmd, name, color, message order.
func (r Request) Encode() []byte {
	var b strings.Builder
	writeField(&b, FieldCmd, strconv.Itoa(int(r.Cmd)))
	switch r.Cmd {
	case CmdRegister, CmdLogin:
		writeField(&b, FieldMessage, r.Message)
	case CmdChat:
		writeField(&b, FieldName, r.Name)
		writeField(&b, FieldColor, strconv.Itoa(r.Color))
		writeField(&b, FieldMessage, r.Message)
	}

	return []byte(b.String())
}

// Response is a decoded server reply or chat delivery.
type Response struct {
	Code    Code
	Name    string
	Color   int
	Message string
}

// Encode renders the response. Only chat deliveries carry name, color and
// message.
func (r Response) Encode() []byte {
	var b strings.Builder
	writeField(&b, FieldCode, strconv.Itoa(int(r.Code)))
	if r.Code == CodeChatMessage {
		writeField(&b, FieldName, r.Name)
		writeField(&b, FieldColor, strconv.Itoa(r.Color))
		writeField(&b, FieldMessage, r.Message)
	}

	return []byte(b.String())
}

// ParseResponse decodes a server body.
//
// Returns:
//   - The decoded response
//   - An error wrapping ErrMalformed when the code field is missing or a chat
//     delivery lacks one of its fields
func ParseResponse(body []byte) (Response, error) {
	s := string(body)

	code, ok := LookupInt(s, FieldCode)
	if !ok {
		return Response{}, fmt.Errorf("%w: missing %s field", ErrMalformed, FieldCode)
	}

	resp := Response{Code: Code(code)}
	if resp.Code != CodeChatMessage {
		return resp, nil
	}

	if resp.Name, ok = Lookup(s, FieldName); !ok {
		return Response{}, fmt.Errorf("%w: chat delivery without %s", ErrMalformed, FieldName)
	}
	if resp.Color, ok = LookupInt(s, FieldColor); !ok {
		return Response{}, fmt.Errorf("%w: chat delivery without %s", ErrMalformed, FieldColor)
	}
	if resp.Message, ok = Lookup(s, FieldMessage); !ok {
		return Response{}, fmt.Errorf("%w: chat delivery without %s", ErrMalformed, FieldMessage)
	}

	return resp, nil
}

// Credentials joins a user name and secret into a register/login message.
func Credentials(name string, secret string) string {
	return name + " " + secret
}

// SplitCredentials splits a register/login message at its first space.
//
// Returns:
//   - The name and secret
//   - false when either part is empty
func SplitCredentials(message string) (name string, secret string, ok bool) {
	name, secret, found := strings.Cut(message, " ")
	if !found || name == "" || secret == "" {
		return "", "", false
	}

	return name, secret, true
}
