// Package event holds the payload types that travel over the portal. Each
// feature package declares the topics it publishes on, the payloads live here
// so that services and devices share one wire format.
package event

import (
	"github.com/eclipse/paho.golang/paho"
	"github.com/kinhub/kinhub-server/errors"
)

// Event wraps a parsed payload together with the raw paho.Publish it arrived
// in.
type Event[T any] struct {
	Publish *paho.Publish
	Payload T
}

// EmptyEvent is used for events that do not carry any payload, like report
// requests.
type EmptyEvent struct {
}

// ErrorEventPayload carries an error to devices so that displays can surface
// it. Internal failures are stripped down to their code before publishing.
type ErrorEventPayload struct {
	// Code is the error code from errors.Error.
	Code string `json:"code"`
	// Err is the chained error message.
	Err string `json:"err"`
	// Message is the human-readable message from errors.Error.
	Message string `json:"message"`
	// Details are the error details from errors.Error.
	Details map[string]interface{} `json:"details"`
}

// ErrorEventPayloadFromError builds the ErrorEventPayload for the given error.
// Errors the user is not to blame for only expose their code.
func ErrorEventPayloadFromError(err error) ErrorEventPayload {
	e, _ := errors.Cast(err)
	if !errors.BlameUser(err) {
		return ErrorEventPayload{
			Code:    string(e.Code),
			Message: "internal server error",
		}
	}
	return ErrorEventPayload{
		Code:    string(e.Code),
		Err:     e.Error(),
		Message: e.Message,
		Details: e.Details,
	}
}
