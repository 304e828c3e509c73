package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/meritbase/badgetrack/internal/rules"
)

// Kind classifies a domain failure. Kinds are stable wire values: the HTTP
// layer maps them onto status codes and clients branch on them.
type Kind string

const (
	KindValidation          Kind = "validation_error"
	KindForbidden           Kind = "forbidden"
	KindNotFound            Kind = "not_found"
	KindInvalidStatus       Kind = "invalid_status"
	KindReservationConflict Kind = "reservation_conflict"
	KindValidationFailed    Kind = "validation_failed"
	KindInternal            Kind = "internal_error"
)

// Error is the common shape of every typed domain failure.
type Error struct {
	Kind    Kind
	Message string
	Details interface{}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Validationf reports malformed input.
func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Forbiddenf reports an ownership or role violation.
func Forbiddenf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf reports a missing entity.
func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Internalf wraps an unexpected failure. The underlying detail is kept for
// logs but never serialized to clients.
func Internalf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// InvalidStatus reports an illegal state transition attempt. Current carries
// the status the entity actually had so the caller can react without
// re-querying.
func InvalidStatus(entity, action, current string) *Error {
	return &Error{
		Kind:    KindInvalidStatus,
		Message: fmt.Sprintf("cannot %s %s in status %q", action, entity, current),
		Details: map[string]string{"entity": entity, "action": action, "currentStatus": current},
	}
}

// ReservationConflict is raised when a badge application is already held by
// another in-flight promotion. HeldBy names the holder so the user can wait
// or pick a different badge.
type ReservationConflict struct {
	BadgeApplicationID uuid.UUID
	HeldBy             uuid.UUID
}

func (e *ReservationConflict) Error() string {
	return fmt.Sprintf("badge application %s is already reserved by promotion %s", e.BadgeApplicationID, e.HeldBy)
}

// DomainError lifts the conflict into the common Error shape.
func (e *ReservationConflict) DomainError() *Error {
	return &Error{
		Kind:    KindReservationConflict,
		Message: e.Error(),
		Details: map[string]string{
			"badgeApplicationId": e.BadgeApplicationID.String(),
			"heldByPromotionId":  e.HeldBy.String(),
		},
	}
}

// ValidationFailed is raised when a promotion's reserved badges do not satisfy
// its template at submit time. Missing lists the unmet rules in client-facing
// terms.
type ValidationFailed struct {
	Missing []rules.Shortfall
}

func (e *ValidationFailed) Error() string {
	return fmt.Sprintf("promotion does not satisfy template rules: %d rule(s) unmet", len(e.Missing))
}

// DomainError lifts the failure into the common Error shape.
func (e *ValidationFailed) DomainError() *Error {
	return &Error{
		Kind:    KindValidationFailed,
		Message: e.Error(),
		Details: map[string]interface{}{"missing": e.Missing},
	}
}

// AsError normalizes any error into an *Error, defaulting to internal_error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	var rc *ReservationConflict
	if errors.As(err, &rc) {
		return rc.DomainError()
	}
	var vf *ValidationFailed
	if errors.As(err, &vf) {
		return vf.DomainError()
	}
	return &Error{Kind: KindInternal, Message: "internal error"}
}
