package util

import (
	"encoding/json"
	"fmt"
	"github.com/kinhub/kinhub-server/errors"
)

// EncodeAsJSON marshals the given content and classifies failures as internal
// errors as the content is always produced by us.
func EncodeAsJSON(content interface{}) (json.RawMessage, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, errors.Error{
			Code:    errors.ErrInternal,
			Kind:    errors.KindEncodeJSON,
			Err:     err,
			Message: "marshal json",
			Details: errors.Details{"content": fmt.Sprintf("%+v", content)},
		}
	}
	return raw, nil
}

// DecodeAsJSON unmarshals the given raw data into the target and classifies
// failures as bad requests as the data usually arrives from clients.
func DecodeAsJSON(data json.RawMessage, target interface{}) error {
	err := json.Unmarshal(data, target)
	if err != nil {
		return errors.Error{
			Code:    errors.ErrBadRequest,
			Kind:    errors.KindDecodeJSON,
			Err:     err,
			Message: "unmarshal json",
			Details: errors.Details{"content": string(data)},
		}
	}
	return nil
}
