package faceverify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	attendance "axiapac.com/workforce/attendance/core"
)

type imageDTO struct {
	URL         string `json:"url,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Data        string `json:"data,omitempty"`
}

type verifyRequestDTO struct {
	CompanyCode string   `json:"companyCode"`
	EmployeeNo  string   `json:"employeeNo"`
	UserID      uint     `json:"userId"`
	Template    string   `json:"template"`
	Image       imageDTO `json:"image"`
}

type verifyResponseDTO struct {
	DetectedFace *bool    `json:"detectedFace"`
	Liveness     *bool    `json:"liveness"`
	MatchScore   *float64 `json:"matchScore"`
}

// Client calls the face verification webhook.
type Client struct {
	transport *Transport
}

// NewClient posts to webhookURL with token as bearer credential.
func NewClient(webhookURL, token string, timeout time.Duration) *Client {
	return &Client{transport: NewTransport(webhookURL, token, timeout)}
}

func (c *Client) Verify(ctx context.Context, identity attendance.FaceIdentity, image attendance.ImageRef) (attendance.VerificationResult, error) {
	req := verifyRequestDTO{
		CompanyCode: identity.CompanyCode,
		EmployeeNo:  identity.EmployeeNo,
		UserID:      identity.UserID,
		Template:    identity.Template,
	}
	if image.Kind == attendance.ImageURL {
		req.Image.URL = image.URI
	} else {
		req.Image.ContentType = image.ContentType
		req.Image.Data = base64.StdEncoding.EncodeToString(image.Data)
	}

	resp, err := c.transport.Post(ctx, "", req)
	if err != nil {
		return attendance.VerificationResult{}, err
	}

	var dto verifyResponseDTO
	if err := json.Unmarshal(resp.Data, &dto); err != nil {
		return attendance.VerificationResult{}, fmt.Errorf("invalid verifier response: %w", err)
	}
	// a partial answer is no answer
	if dto.DetectedFace == nil || dto.Liveness == nil || dto.MatchScore == nil {
		return attendance.VerificationResult{}, fmt.Errorf("incomplete verifier response: %s", string(resp.Data))
	}
	return attendance.VerificationResult{
		DetectedFace: *dto.DetectedFace,
		Liveness:     *dto.Liveness,
		MatchScore:   *dto.MatchScore,
	}, nil
}
