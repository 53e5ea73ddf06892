package nativeauth

import "fmt"

// OidcError reports an error/error_description pair returned by the
// authorization server at the OIDC callback.
type OidcError struct {
	Code        string
	Description string
}

func (e *OidcError) Error() string {
	return fmt.Sprintf("oidc error %s: %s", e.Code, e.Description)
}

// WorkflowError carries a server-defined workflow error id from the
// entry endpoint, e.g. an expired magic link or a client mismatch.
// Consumers map known ids to human text and fall back to a generic
// message for the rest.
type WorkflowError struct {
	Code        string
	Description string
}

func (e *WorkflowError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("workflow error %s", e.Code)
	}
	return fmt.Sprintf("workflow error %s: %s", e.Code, e.Description)
}

// HostedFlowCanceledError reports that the user dismissed the hosted
// page without completing the flow.
type HostedFlowCanceledError struct{}

func (e *HostedFlowCanceledError) Error() string {
	return "hosted flow canceled"
}

// InvalidCallbackError reports a state, nonce, issuer, or audience
// mismatch during callback validation, with the specific reason.
type InvalidCallbackError struct {
	Reason string
}

func (e *InvalidCallbackError) Error() string {
	return "invalid callback: " + e.Reason
}

// UnknownError wraps transport failures, parse errors, and any other
// exception the SDK cannot classify.
type UnknownError struct {
	Err error
}

func (e *UnknownError) Error() string {
	return "unknown error: " + e.Err.Error()
}

func (e *UnknownError) Unwrap() error {
	return e.Err
}
