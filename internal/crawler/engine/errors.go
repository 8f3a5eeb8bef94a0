package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrTransientUpstream marks responses worth retrying unchanged: the upstream is known to
// answer with empty or broken payloads under load.
var ErrTransientUpstream = errors.New("transient upstream error")

var (
	ErrEmptyBody        = errors.New("empty response body")
	ErrMalformedPayload = errors.New("malformed json payload")
	ErrBooleanPayload   = errors.New("boolean payload")
	ErrEmptyPayload     = errors.New("empty payload")
	ErrMissingKey       = errors.New("missing required key")
)

func transient(cause error, format string, args ...interface{}) error {
	if format == "" {
		return fmt.Errorf("%w: %w", ErrTransientUpstream, cause)
	}
	return fmt.Errorf("%w: %w: %s", ErrTransientUpstream, cause, fmt.Sprintf(format, args...))
}

// DecodePayload decodes a JSON body, keeping numbers as json.Number. Empty, undecodable,
// boolean and falsy payloads are reported as ErrTransientUpstream.
func DecodePayload(body []byte) (interface{}, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, transient(ErrEmptyBody, "")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload interface{}
	if err := dec.Decode(&payload); err != nil {
		return nil, transient(ErrMalformedPayload, "%v", err)
	}

	if _, ok := payload.(bool); ok {
		return nil, transient(ErrBooleanPayload, "")
	}
	if isFalsy(payload) {
		return nil, transient(ErrEmptyPayload, "")
	}
	return payload, nil
}

// RequireKey fetches key from an object payload.
func RequireKey(payload interface{}, key string) (interface{}, error) {
	obj, ok := payload.(map[string]interface{})
	if !ok {
		return nil, transient(ErrMissingKey, "%q in %T payload", key, payload)
	}
	v, ok := obj[key]
	if !ok || v == nil {
		return nil, transient(ErrMissingKey, "%q", key)
	}
	return v, nil
}

func isFalsy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case json.Number:
		f, err := t.Float64()
		return err == nil && f == 0
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	default:
		return false
	}
}
