package core

import (
	"strings"

	"axiapac.com/workforce/attendance/model"
)

// ClockRequest is the body of the clock-in and clock-out endpoints.
// The clock type comes from the route.
type ClockRequest struct {
	CompanyCode        string            `json:"companyCode" binding:"required,max=64"`
	EmployeeNo         string            `json:"employeeNo" binding:"required,max=64"`
	Latitude           *float64          `json:"latitude" binding:"required,min=-90,max=90"`
	Longitude          *float64          `json:"longitude" binding:"required,min=-180,max=180"`
	Address            string            `json:"address" binding:"max=512"`
	Accuracy           *float64          `json:"accuracy" binding:"omitempty,min=0"`
	Method             model.ClockMethod `json:"method" binding:"required,oneof=face button"`
	SiteName           *string           `json:"siteName" binding:"omitempty,max=255"`
	ProjectName        *string           `json:"projectName" binding:"omitempty,max=255"`
	ImageURI           *string           `json:"imageUri"`
	FaceTemplateBase64 *string           `json:"faceTemplateBase64"`
}

// normalize trims the request and turns blank optional strings into nil.
// It repeats the binding checks for callers that do not go through gin.
func (r *ClockRequest) normalize() *ClockError {
	r.CompanyCode = strings.TrimSpace(r.CompanyCode)
	r.EmployeeNo = strings.TrimSpace(r.EmployeeNo)
	r.Address = strings.TrimSpace(r.Address)
	r.SiteName = blankToNil(r.SiteName)
	r.ProjectName = blankToNil(r.ProjectName)
	r.ImageURI = blankToNil(r.ImageURI)
	r.FaceTemplateBase64 = blankToNil(r.FaceTemplateBase64)

	switch {
	case r.CompanyCode == "":
		return invalidRequest("Field 'companyCode' is required")
	case r.EmployeeNo == "":
		return invalidRequest("Field 'employeeNo' is required")
	case r.Latitude == nil || *r.Latitude < -90 || *r.Latitude > 90:
		return invalidRequest("Field 'latitude' must be between -90 and 90")
	case r.Longitude == nil || *r.Longitude < -180 || *r.Longitude > 180:
		return invalidRequest("Field 'longitude' must be between -180 and 180")
	case r.Method != model.MethodFace && r.Method != model.MethodButton:
		return invalidRequest("Field 'method' must be one of face, button")
	}
	return nil
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
