package core

import "context"

const DefaultMatchThreshold = 0.75

// FaceIdentity is the employee a face image is compared against.
type FaceIdentity struct {
	CompanyCode string
	UserID      uint
	EmployeeNo  string
	Template    string
}

type VerificationResult struct {
	DetectedFace bool    `json:"detectedFace"`
	Liveness     bool    `json:"liveness"`
	MatchScore   float64 `json:"matchScore"`
}

// FaceVerifier compares a captured image with the registered face. An error
// means the verifier could not give an answer.
type FaceVerifier interface {
	Verify(ctx context.Context, identity FaceIdentity, image ImageRef) (VerificationResult, error)
}

// Rejection returns the reason the result is not accepted, or "" when it is.
func (r VerificationResult) Rejection(threshold float64) Reason {
	switch {
	case !r.DetectedFace:
		return ReasonNoFaceDetected
	case !r.Liveness:
		return ReasonLivenessFailed
	case r.MatchScore < threshold:
		return ReasonScoreBelowThreshold
	}
	return ""
}
