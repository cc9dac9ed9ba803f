package core

import (
	"errors"
	"fmt"
	"net/http"

	"axiapac.com/workforce/attendance/model"
)

// Reason is the machine readable cause of a rejected clock request.
type Reason string

const (
	ReasonCompanyNotFound     Reason = "company-not-found"
	ReasonPoolConnection      Reason = "pool-connection"
	ReasonUserNotFound        Reason = "user-not-found"
	ReasonInvalidRequest      Reason = "invalid-request"
	ReasonMissingFaceImage    Reason = "missing-face-image"
	ReasonInvalidImageFormat  Reason = "invalid-image-format"
	ReasonNoFaceRegistered    Reason = "no-face-registered"
	ReasonNoFaceDetected      Reason = "no-face-detected"
	ReasonLivenessFailed      Reason = "liveness-failed"
	ReasonScoreBelowThreshold Reason = "score-below-threshold"
	ReasonServiceUnavailable  Reason = "service-unavailable"
	ReasonNotAssigned         Reason = "not-assigned"
	ReasonDuplicateClockEvent Reason = "duplicate-clock-event"
	ReasonNoActiveClockIn     Reason = "no-active-clock-in"
	ReasonAmbiguousClockOut   Reason = "ambiguous-clock-out"
	ReasonInternal            Reason = "internal"
)

type reasonInfo struct {
	status  int
	message string
}

var reasons = map[Reason]reasonInfo{
	ReasonCompanyNotFound:     {http.StatusNotFound, "Company not found or inactive"},
	ReasonPoolConnection:      {http.StatusInternalServerError, "The company database is unavailable, please try again later"},
	ReasonUserNotFound:        {http.StatusNotFound, "Employee not found"},
	ReasonInvalidRequest:      {http.StatusBadRequest, "Invalid request"},
	ReasonMissingFaceImage:    {http.StatusBadRequest, "A face image is required to clock with face verification"},
	ReasonInvalidImageFormat:  {http.StatusBadRequest, "The face image is not a supported image reference"},
	ReasonNoFaceRegistered:    {http.StatusBadRequest, "No face is registered for this employee, ask your supervisor to register one"},
	ReasonNoFaceDetected:      {http.StatusForbidden, "No face detected, ensure your face is clearly visible"},
	ReasonLivenessFailed:      {http.StatusForbidden, "Liveness check failed, use a real face in front of the camera"},
	ReasonScoreBelowThreshold: {http.StatusForbidden, "Face does not match the registered employee"},
	ReasonServiceUnavailable:  {http.StatusInternalServerError, "Face verification service is unavailable, please try again later"},
	ReasonNotAssigned:         {http.StatusForbidden, "You are not assigned to this site or project today"},
	ReasonDuplicateClockEvent: {http.StatusConflict, "Already clocked for this site and project today"},
	ReasonNoActiveClockIn:     {http.StatusBadRequest, "No active clock-in found for today"},
	ReasonAmbiguousClockOut:   {http.StatusBadRequest, "More than one clock-in is open today, choose the site or project to clock out of"},
	ReasonInternal:            {http.StatusInternalServerError, "Something went wrong, please try again"},
}

// ClockError is returned for every rejected clock request. Message is safe to
// show to the employee; Err carries the internal cause and is only logged.
type ClockError struct {
	Reason  Reason
	Message string
	Status  int
	Err     error
}

func (e *ClockError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return string(e.Reason)
}

func (e *ClockError) Unwrap() error {
	return e.Err
}

// IsVerificationFailure reports whether the reason comes from the face verifier.
func (r Reason) IsVerificationFailure() bool {
	switch r {
	case ReasonNoFaceDetected, ReasonLivenessFailed, ReasonScoreBelowThreshold, ReasonServiceUnavailable:
		return true
	}
	return false
}

func newClockError(reason Reason, err error) *ClockError {
	info, ok := reasons[reason]
	if !ok {
		info = reasons[ReasonInternal]
	}
	return &ClockError{Reason: reason, Message: info.message, Status: info.status, Err: err}
}

func invalidRequest(message string) *ClockError {
	e := newClockError(ReasonInvalidRequest, errors.New(message))
	e.Message = message
	return e
}

func duplicateClock(kind model.ClockType, err error) *ClockError {
	e := newClockError(ReasonDuplicateClockEvent, err)
	if kind == model.ClockIn {
		e.Message = "Already clocked in for this site and project today"
	} else {
		e.Message = "Already clocked out for this site and project today"
	}
	return e
}

// AsClockError returns the ClockError in err's chain, wrapping anything else
// as an internal error.
func AsClockError(err error) *ClockError {
	var ce *ClockError
	if errors.As(err, &ce) {
		return ce
	}
	return newClockError(ReasonInternal, err)
}
