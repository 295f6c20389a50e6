package dashboard

import (
	"bytes"
	"encoding/json"
)

// runParamOrder is the order in which required run parameters are checked.
var runParamOrder = []string{"input_ref", "workspace_name"}

// Request is the decoded parameter object of a dashboard run.
type Request struct {
	WorkspaceName string `json:"workspace_name"`
	InputRef      string `json:"input_ref"`
}

// Result names the registered report.
type Result struct {
	ReportName string `json:"report_name"`
	ReportRef  string `json:"report_ref"`
}

// Validate checks that every key in required is present and not null.
// The first offending key, in the given order, is named in the error.
func Validate(params map[string]any, required []string) error {
	for _, key := range required {
		if v, ok := params[key]; !ok || v == nil {
			return newError(KindMissingParameter, nil, "Required parameter '%s' is missing", key)
		}
	}
	return nil
}

// DecodeRequest turns the first positional RPC parameter into a Request.
// Unknown keys are ignored.
func DecodeRequest(raw json.RawMessage) (Request, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Request{}, newError(KindInvalidRequest, nil, "parameters must be a JSON object")
	}

	var params map[string]any
	if err := json.Unmarshal(trimmed, &params); err != nil {
		return Request{}, newError(KindInvalidRequest, err, "decode parameters")
	}
	if err := Validate(params, runParamOrder); err != nil {
		return Request{}, err
	}

	var req Request
	for _, field := range []struct {
		key string
		dst *string
	}{
		{"workspace_name", &req.WorkspaceName},
		{"input_ref", &req.InputRef},
	} {
		s, ok := params[field.key].(string)
		if !ok {
			return Request{}, newError(KindInvalidRequest, nil, "parameter '%s' must be a string", field.key)
		}
		*field.dst = s
	}
	return req, nil
}
