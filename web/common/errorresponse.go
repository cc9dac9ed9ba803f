package common

type ErrorResponse struct {
	// Machine readable cause, set for domain errors.
	Reason  string       `json:"reason,omitempty"`
	Message string       `json:"message"`
	Fields  []FieldIssue `json:"fields,omitempty"`
}

func NewErrorResponse(message string) *ErrorResponse {
	return &ErrorResponse{Message: message}
}

func NewReasonErrorResponse(reason, message string) *ErrorResponse {
	return &ErrorResponse{Reason: reason, Message: message}
}

// NewBindingErrorResponse reports a rejected request with one entry per field.
func NewBindingErrorResponse(reason string, err error) *ErrorResponse {
	return &ErrorResponse{
		Reason:  reason,
		Message: FormatBindingError(err),
		Fields:  BindingIssues(err),
	}
}
