package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/nimasrn/crm-dispatch/internal/errs"
)

// listKeys are the envelope fields a list may hide under, in lookup order.
var listKeys = []string{"data", "results", "items", "contacts"}

// NormalizeList turns any known list shape into a plain slice:
// a bare array, {success, data}, {data}, {results}, {items} or {contacts}.
// An empty or null body is an empty list. {success:false} is a transport
// error, any other shape a decode error.
func NormalizeList[T any](raw []byte) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return []T{}, nil
	}

	switch raw[0] {
	case '[':
		return decodeList[T](raw)
	case '{':
	default:
		return nil, errs.Decode(nil, "expected a JSON list or envelope")
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errs.Decode(err, "malformed list envelope")
	}
	if err := checkSuccess(env); err != nil {
		return nil, err
	}
	for _, key := range listKeys {
		inner, ok := env[key]
		if !ok {
			continue
		}
		inner = bytes.TrimSpace(inner)
		if isNull(inner) {
			return []T{}, nil
		}
		if inner[0] != '[' {
			return nil, errs.Decode(nil, "envelope field "+key+" is not a list")
		}
		return decodeList[T](inner)
	}
	return nil, errs.Decode(nil, "unrecognized list envelope")
}

// NormalizeOne accepts a bare object, {success, data} or {data}.
func NormalizeOne[T any](raw []byte) (*T, error) {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return nil, errs.Decode(nil, "empty response body")
	}
	if raw[0] != '{' {
		return nil, errs.Decode(nil, "expected a JSON object")
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errs.Decode(err, "malformed object")
	}
	_, hasSuccess := env["success"]
	data, hasData := env["data"]
	if hasSuccess {
		if err := checkSuccess(env); err != nil {
			return nil, err
		}
	}
	if hasData && (hasSuccess || len(env) == 1) {
		raw = bytes.TrimSpace(data)
		if isNull(raw) {
			return nil, errs.NotFound("resource not found")
		}
	}

	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, errs.Decode(err, "failed to decode object")
	}
	return out, nil
}

// GetList fetches endpoint and normalizes the answer into a slice.
func GetList[T any](ctx context.Context, c *Client, endpoint string, cfg Config) ([]T, error) {
	resp, err := c.Get(ctx, endpoint, cfg)
	if err != nil {
		return nil, err
	}
	return NormalizeList[T](resp.Body)
}

// GetOne fetches endpoint and normalizes the answer into one object.
func GetOne[T any](ctx context.Context, c *Client, endpoint string, cfg Config) (*T, error) {
	resp, err := c.Get(ctx, endpoint, cfg)
	if err != nil {
		return nil, err
	}
	return NormalizeOne[T](resp.Body)
}

// Send issues a write call and normalizes the returned object. An empty 2xx
// answer yields a nil result without error.
func Send[T any](ctx context.Context, c *Client, endpoint, method string, body any, cfg Config) (*T, error) {
	resp, err := c.Request(ctx, endpoint, method, body, cfg)
	if err != nil {
		return nil, err
	}
	if isNull(bytes.TrimSpace(resp.Body)) {
		return nil, nil
	}
	return NormalizeOne[T](resp.Body)
}

func decodeList[T any](raw []byte) ([]T, error) {
	out := []T{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errs.Decode(err, "failed to decode list")
	}
	return out, nil
}

func checkSuccess(env map[string]json.RawMessage) error {
	raw, ok := env["success"]
	if !ok {
		return nil
	}
	var success bool
	if err := json.Unmarshal(raw, &success); err != nil || success {
		return nil
	}
	var msg string
	for _, key := range []string{"message", "error", "detail"} {
		if v, ok := env[key]; ok && json.Unmarshal(v, &msg) == nil && msg != "" {
			break
		}
	}
	if msg == "" {
		msg = "request was not successful"
	}
	return errs.Transport(http.StatusOK, msg)
}

func isNull(raw []byte) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
