// Package agenterrors defines the closed error taxonomy (spec §7) shared by
// every component: a structured {kind, message, cause?, retryable} value
// instead of ad-hoc error strings or panics crossing skill/transport
// boundaries.
package agenterrors

import "fmt"

// Kind is a closed enumeration of every error the platform can surface.
type Kind string

const (
	// Composition
	KindTemplateInvalid        Kind = "TemplateInvalid"
	KindTemplateExtendsUnknown Kind = "TemplateExtendsUnknown"
	KindTemplateExtendsCycle   Kind = "TemplateExtendsCycle"
	KindVersionUnsatisfied     Kind = "VersionUnsatisfied"
	KindSkillConflict          Kind = "SkillConflict"
	KindSkillMissingRequired   Kind = "SkillMissingRequired"
	KindCompositionCycle       Kind = "CompositionCycle"
	KindConfigSchemaViolation  Kind = "ConfigSchemaViolation"

	// Lifecycle
	KindInitializationFailed  Kind = "InitializationFailed"
	KindInitializationTimeout Kind = "InitializationTimeout"
	KindDependencyNotReady    Kind = "DependencyNotReady"
	KindReloading             Kind = "Reloading"
	KindShuttingDown          Kind = "ShuttingDown"

	// Dispatch
	KindOperationNotFound Kind = "OperationNotFound"
	KindInvalidArgument   Kind = "InvalidArgument"
	KindSkillUnavailable  Kind = "SkillUnavailable"
	KindWriteForbidden    Kind = "WriteForbidden"
	KindPermissionDenied  Kind = "PermissionDenied"

	// Transport
	KindTargetUnknown Kind = "TargetUnknown"
	KindUnreachable   Kind = "Unreachable"
	KindTimeout       Kind = "Timeout"
	KindCircuitOpen   Kind = "CircuitOpen"
	KindUnauthorized  Kind = "Unauthorized"
	KindProtocolError Kind = "ProtocolError"

	// Workflow
	KindDependencyMissing  Kind = "DependencyMissing"
	KindDependencyCycle    Kind = "DependencyCycle"
	KindStepTimeout        Kind = "StepTimeout"
	KindStepCancelled      Kind = "StepCancelled"
	KindRequiredStepFailed Kind = "RequiredStepFailed"

	// Runtime / generic
	KindOverloaded Kind = "Overloaded"
	KindCancelled  Kind = "Cancelled"
	KindNotFound   Kind = "NotFound"
)

// retryableKinds mirrors spec §7's propagation policy: the Agent Runtime
// retries only these kinds, and only for idempotent operations.
var retryableKinds = map[Kind]bool{
	KindUnreachable: true,
	KindTimeout:     true,
	KindCircuitOpen: true,
}

// Error is the single structured error type used across component
// boundaries. It never carries a stack trace unless Details["debug"] is
// populated by the caller under a debug flag (spec §7).
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	cause   error
}

// New constructs an Error of the given kind.
func New(kind Kind, message string, details map[string]any) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

// Wrap constructs an Error of the given kind around an underlying cause.
func Wrap(kind Kind, cause error, details map[string]any) *Error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: kind, Message: msg, Details: details, cause: cause}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Retryable reports the default retry policy for this error's kind.
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	return retryableKinds[e.Kind]
}

// AsMap projects the outermost-API shape: {kind, message}. cause and
// details are included only when includeDebug is true.
func (e *Error) AsMap(includeDebug bool) map[string]any {
	if e == nil {
		return nil
	}
	out := map[string]any{
		"kind":    string(e.Kind),
		"message": e.Message,
	}
	if includeDebug {
		if e.Details != nil {
			out["details"] = e.Details
		}
		if e.cause != nil {
			out["cause"] = e.cause.Error()
		}
	}
	return out
}

// Is supports errors.Is(err, agenterrors.New(kind, "", nil)) style matching
// by comparing Kind only.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil || e == nil {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return "", false
	}
	return e.Kind, true
}
