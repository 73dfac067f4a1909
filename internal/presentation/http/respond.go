package httppresentation

import (
	"encoding/json"
	"net/http"

	"github.com/tablekit/backhouse/internal/domain/fault"
)

// errorEnvelope is the single error shape of the API.
type errorEnvelope struct {
	Code      fault.Code     `json:"code"`
	Message   string         `json:"message"`
	Detail    map[string]any `json:"detail,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeFault(w http.ResponseWriter, r *http.Request, err error) {
	fe := fault.As(err)
	writeJSON(w, fe.HTTPStatus(), errorEnvelope{
		Code:      fe.Code,
		Message:   fe.Message,
		Detail:    fe.Detail,
		RequestID: w.Header().Get(headerRequestID),
	})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fault.Wrap(fault.CodeValidation, "invalid request body", err)
	}
	return nil
}
