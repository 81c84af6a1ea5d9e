package host

import (
	"encoding/json"
	"fmt"
)

// Request is a decoded browser request: either ValidateRequest or
// ImportRequest.
type Request interface {
	// Kind names the request for logging.
	Kind() string
}

// ValidateRequest asks whether JabRef can be run.  Wire form:
// {"status":"validate"}.
type ValidateRequest struct{}

func (ValidateRequest) Kind() string { return "validate" }

// ImportRequest asks JabRef to import BibTeX.  Wire form: {"text":"..."}.
// Text is opaque to the host.
type ImportRequest struct {
	Text string
}

func (ImportRequest) Kind() string { return "import" }

// MissingFieldError reports a well-formed JSON message that is neither
// request shape.
type MissingFieldError struct {
	Field  string
	Reason string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("invalid request: field %q %s", e.Field, e.Reason)
}

// statusValidate is the only recognised "status" value.
const statusValidate = "validate"

// DecodeRequest decodes a JSON payload into a Request.
func DecodeRequest(payload []byte) (Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return nil, &MissingFieldError{Field: "text", Reason: "is missing, request is not a JSON object"}
	}

	if raw, ok := fields["status"]; ok {
		var status string
		if json.Unmarshal(raw, &status) == nil && status == statusValidate {
			return ValidateRequest{}, nil
		}
	}

	raw, ok := fields["text"]
	if !ok {
		return nil, &MissingFieldError{Field: "text", Reason: "is missing"}
	}
	var text *string
	if err := json.Unmarshal(raw, &text); err != nil || text == nil {
		return nil, &MissingFieldError{Field: "text", Reason: "is not a string"}
	}
	return ImportRequest{Text: *text}, nil
}
