package listui

import (
	"encoding/json"
	"errors"
	"strings"
)

// LoadFailure reports a failed list-view fetch. Message carries the store's
// own error text when the response had one.
type LoadFailure struct {
	Query   Query
	Status  int
	Message string
	Err     error
}

func (e *LoadFailure) Error() string {
	msg := e.UserMessage()
	if e.Query.ObjectAPIName == "" {
		return "load failed: " + msg
	}
	return "load " + e.Query.String() + " failed: " + msg
}

func (e *LoadFailure) Unwrap() error { return e.Err }

// UserMessage is the text shown on the board: the payload message if present,
// otherwise the underlying error's message.
func (e *LoadFailure) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

// MessageOf extracts the user-visible message from any fetch error.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var lf *LoadFailure
	if errors.As(err, &lf) {
		return lf.UserMessage()
	}
	return err.Error()
}

// payloadMessage pulls a message out of the error shapes the store uses:
// [{"errorCode":..., "message":...}], {"body":{"message":...}} or {"message":...}.
func payloadMessage(body []byte) string {
	var list []struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &list); err == nil {
		msgs := make([]string, 0, len(list))
		for _, m := range list {
			if m.Message != "" {
				msgs = append(msgs, m.Message)
			}
		}
		return strings.Join(msgs, "; ")
	}

	var obj struct {
		Body *struct {
			Message string `json:"message"`
		} `json:"body"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &obj); err == nil {
		if obj.Body != nil && obj.Body.Message != "" {
			return obj.Body.Message
		}
		return obj.Message
	}
	return ""
}
