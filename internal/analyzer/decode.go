package analyzer

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// wireRequest is the inbound JSON body. systemPrompt is accepted as an
// alias for policy.
type wireRequest struct {
	Text         json.RawMessage `json:"text"`
	Policy       json.RawMessage `json:"policy"`
	SystemPrompt json.RawMessage `json:"systemPrompt"`
}

// DecodeRequest parses a JSON request body. A missing or non-string text,
// a non-string policy, or malformed JSON fail with ErrInvalidInput.
func DecodeRequest(body []byte) (Request, error) {
	var w wireRequest
	if err := json.Unmarshal(body, &w); err != nil {
		return Request{}, fmt.Errorf("%w: request body must be a JSON object", ErrInvalidInput)
	}

	text, ok, err := optionalString(w.Text)
	if err != nil || !ok {
		return Request{}, fmt.Errorf("%w: Text is required and must be a string", ErrInvalidInput)
	}

	req := Request{Text: text}

	rawPolicy := w.Policy
	if isAbsent(rawPolicy) {
		rawPolicy = w.SystemPrompt
	}
	p, ok, err := optionalString(rawPolicy)
	if err != nil {
		return Request{}, fmt.Errorf("%w: policy must be a string", ErrInvalidInput)
	}
	if ok {
		req.Policy = &p
	}

	if err := Validate(req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// optionalString decodes a JSON string. Absent or null values report
// ok=false; any other non-string value is an error.
func optionalString(raw json.RawMessage) (string, bool, error) {
	if isAbsent(raw) {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false, err
	}
	return s, true, nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
