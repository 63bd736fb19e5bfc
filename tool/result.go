package tool

import "encoding/json"

// ResultStatus is the terminal status of one invocation.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusError   ResultStatus = "error"
)

// ProcessData is the payload of a subprocess invocation. A non-zero return
// code is ordinary result data at this layer; interpreting it is left to the
// caller.
type ProcessData struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ReturnCode int    `json:"return_code"`
}

// HTTPData is the payload of an HTTP invocation.
type HTTPData struct {
	ResponseBody string            `json:"response_body"`
	StatusCode   int               `json:"status_code"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// Metadata carries per-invocation measurement and classification.
type Metadata struct {
	DurationMS    int64         `json:"duration_ms"`
	ToolType      ToolType      `json:"tool_type,omitempty"`
	PrimitiveType PrimitiveType `json:"primitive_type,omitempty"`
	Attempts      int           `json:"attempts,omitempty"`
	RequestID     string        `json:"request_id,omitempty"`
}

// Result is the unified outcome of one invocation. Exactly one of Process
// and HTTP is set on success; both are nil on error.
type Result struct {
	Status   ResultStatus
	Process  *ProcessData
	HTTP     *HTTPData
	Err      *ToolError
	Metadata Metadata
}

// Success reports whether the invocation completed without a primitive or
// orchestration error.
func (r Result) Success() bool {
	return r.Status == StatusSuccess
}

// MarshalJSON renders the wire shape
// {status, data, error?, error_detail?, metadata}.
func (r Result) MarshalJSON() ([]byte, error) {
	wire := struct {
		Status      ResultStatus `json:"status"`
		Data        any          `json:"data,omitempty"`
		Error       string       `json:"error,omitempty"`
		ErrorDetail *ToolError   `json:"error_detail,omitempty"`
		Metadata    Metadata     `json:"metadata"`
	}{
		Status:   r.Status,
		Metadata: r.Metadata,
	}
	switch {
	case r.Process != nil:
		wire.Data = r.Process
	case r.HTTP != nil:
		wire.Data = r.HTTP
	}
	if r.Err != nil {
		wire.Error = r.Err.Error()
		wire.ErrorDetail = r.Err
	}
	return json.Marshal(wire)
}

func failureResult(err error, meta Metadata) Result {
	toolErr, ok := toolErrorFrom(err)
	if !ok {
		toolErr = newToolError(ErrorCodeSubprocess, err.Error(), false, err)
	}
	return Result{
		Status:   StatusError,
		Err:      toolErr,
		Metadata: meta,
	}
}
