package protocol

import (
	"fmt"
	"strings"
)

// Action is an operator action carried by a callback token.
type Action string

const (
	ActionReply Action = "reply"
	ActionClose Action = "close"
)

func (a Action) valid() bool {
	return a == ActionReply || a == ActionClose
}

// ActionToken is the decoded form of "<action>_<userId>".
type ActionToken struct {
	Action Action
	UserID string
}

// String encodes the token.
func (t ActionToken) String() string {
	return string(t.Action) + "_" + t.UserID
}

// EncodeAction builds the callback token for action on userID.
func EncodeAction(action Action, userID string) (string, error) {
	if !action.valid() {
		return "", &ParseError{Token: string(action), Reason: "unknown action"}
	}
	if !isDecimal(userID) {
		return "", &ParseError{Token: userID, Reason: "user id is not a decimal string"}
	}
	return ActionToken{Action: action, UserID: userID}.String(), nil
}

// DecodeAction parses a callback token. Anything other than exactly
// "<reply|close>_<digits>" is a *ParseError.
func DecodeAction(token string) (ActionToken, error) {
	name, userID, ok := strings.Cut(token, "_")
	if !ok {
		return ActionToken{}, &ParseError{Token: token, Reason: "missing separator"}
	}
	action := Action(name)
	if !action.valid() {
		return ActionToken{}, &ParseError{Token: token, Reason: fmt.Sprintf("unknown action %q", name)}
	}
	if !isDecimal(userID) {
		return ActionToken{}, &ParseError{Token: token, Reason: "user id is not a decimal string"}
	}
	return ActionToken{Action: action, UserID: userID}, nil
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
