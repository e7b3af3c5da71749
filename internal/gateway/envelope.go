package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
)

// Shape declares how a response body wraps its payload
type Shape int

const (
	// ShapeBare decodes the body directly into the result
	ShapeBare Shape = iota
	// ShapeData unwraps {"data": T}
	ShapeData
	// ShapeList accepts either {"data": [...]} or a bare [...]
	ShapeList
	// ShapeAuth decodes {"success", "message", "data", "error"} as a whole;
	// success=false is a rejection
	ShapeAuth
	// ShapeStatus decodes {"error", "message"} as a whole; a truthy error is
	// a rejection
	ShapeStatus
)

func (s Shape) String() string {
	switch s {
	case ShapeBare:
		return "bare"
	case ShapeData:
		return "data"
	case ShapeList:
		return "list"
	case ShapeAuth:
		return "auth"
	case ShapeStatus:
		return "status"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

type dataEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type authProbe struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

type statusProbe struct {
	Error   any    `json:"error"`
	Message string `json:"message"`
}

// errorRejected is returned by decodeShape when the envelope reports failure.
// The message is carried so Execute can build a KindRejected error.
type errorRejected struct{ message string }

func (e errorRejected) Error() string { return e.message }

// decodeShape decodes body into out according to shape
func decodeShape(body []byte, shape Shape, out any) error {
	trimmed := bytes.TrimSpace(body)

	switch shape {
	case ShapeBare:
		if out == nil {
			return nil
		}
		return sonic.Unmarshal(trimmed, out)

	case ShapeData:
		var env dataEnvelope
		if err := sonic.Unmarshal(trimmed, &env); err != nil {
			return err
		}
		if len(env.Data) == 0 {
			return errors.New(`missing "data" field`)
		}
		if out == nil {
			return nil
		}
		return sonic.Unmarshal(env.Data, out)

	case ShapeList:
		if len(trimmed) == 0 {
			return errors.New("empty body")
		}
		switch trimmed[0] {
		case '[':
			if out == nil {
				return nil
			}
			return sonic.Unmarshal(trimmed, out)
		case '{':
			var env dataEnvelope
			if err := sonic.Unmarshal(trimmed, &env); err != nil {
				return err
			}
			if len(env.Data) == 0 || string(env.Data) == "null" {
				// an envelope without data is an empty list
				return nil
			}
			if out == nil {
				return nil
			}
			return sonic.Unmarshal(env.Data, out)
		default:
			return fmt.Errorf("expected a list or a data envelope, got %q", trimmed[0])
		}

	case ShapeAuth:
		var probe authProbe
		if err := sonic.Unmarshal(trimmed, &probe); err != nil {
			return err
		}
		if probe.Success == nil {
			return errors.New(`missing "success" field`)
		}
		if out != nil {
			if err := sonic.Unmarshal(trimmed, out); err != nil {
				return err
			}
		}
		if !*probe.Success {
			return errorRejected{message: firstNonEmpty(probe.Error, probe.Message, "request was not successful")}
		}
		return nil

	case ShapeStatus:
		var probe statusProbe
		if len(trimmed) > 0 {
			if err := sonic.Unmarshal(trimmed, &probe); err != nil {
				return err
			}
		}
		if out != nil && len(trimmed) > 0 {
			if err := sonic.Unmarshal(trimmed, out); err != nil {
				return err
			}
		}
		if truthy(probe.Error) {
			msg := probe.Message
			if s, ok := probe.Error.(string); ok {
				msg = firstNonEmpty(msg, s)
			}
			return errorRejected{message: firstNonEmpty(msg, "request was not successful")}
		}
		return nil
	}

	return fmt.Errorf("unsupported response shape %s", shape)
}

// errorMessage extracts a human-readable message from a failed response body
func errorMessage(status int, body []byte) string {
	var probe struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if err := sonic.Unmarshal(bytes.TrimSpace(body), &probe); err == nil {
		if probe.Message != "" {
			return probe.Message
		}
		if s, ok := probe.Error.(string); ok && s != "" {
			return s
		}
	}
	return firstNonEmpty(http.StatusText(status), "request failed")
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != "" && !strings.EqualFold(t, "false")
	case float64:
		return t != 0
	default:
		return false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
