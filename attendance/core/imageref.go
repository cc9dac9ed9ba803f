package core

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

type ImageKind int

const (
	ImageURL ImageKind = iota + 1
	ImageInline
)

// ImageRef is a face image either hosted at an https URL or sent inline.
type ImageRef struct {
	Kind        ImageKind
	URI         string
	ContentType string
	Data        []byte
}

var ErrImageMissing = errors.New("no image supplied")

// ImageFormatError names the rule that rejected an image reference. It is
// logged, never shown to the employee.
type ImageFormatError struct {
	Rule string
}

func (e *ImageFormatError) Error() string {
	return "invalid image reference: " + e.Rule
}

var dataURIPattern = regexp.MustCompile(`^data:image/(png|jpeg|jpg|webp);base64,(.+)$`)

// ParseImageReference accepts an https URL, a data:image URI, or a device
// file:// / content:// URI paired with inline base64.
func ParseImageReference(uri, inline string) (ImageRef, error) {
	uri = strings.TrimSpace(uri)
	inline = strings.TrimSpace(inline)

	switch {
	case uri == "" && inline == "":
		return ImageRef{}, ErrImageMissing
	case uri == "":
		return parseInline(inline)
	case strings.HasPrefix(uri, "https://"):
		u, err := url.Parse(uri)
		if err != nil || u.Host == "" {
			return ImageRef{}, &ImageFormatError{Rule: "malformed https url"}
		}
		return ImageRef{Kind: ImageURL, URI: uri}, nil
	case strings.HasPrefix(uri, "data:"):
		return parseDataURI(uri)
	case strings.HasPrefix(uri, "file://"), strings.HasPrefix(uri, "content://"):
		if inline == "" {
			return ImageRef{}, &ImageFormatError{Rule: "device uri without inline base64"}
		}
		ref, err := parseInline(inline)
		if err != nil {
			return ImageRef{}, err
		}
		ref.URI = uri
		return ref, nil
	case strings.HasPrefix(uri, "http://"):
		return ImageRef{}, &ImageFormatError{Rule: "insecure http url"}
	}
	return ImageRef{}, &ImageFormatError{Rule: fmt.Sprintf("unsupported scheme in %q", truncate(uri, 32))}
}

func parseInline(inline string) (ImageRef, error) {
	if strings.HasPrefix(inline, "data:") {
		return parseDataURI(inline)
	}
	data, err := base64.StdEncoding.DecodeString(inline)
	if err != nil || len(data) == 0 {
		return ImageRef{}, &ImageFormatError{Rule: "inline payload is not base64"}
	}
	return ImageRef{Kind: ImageInline, ContentType: "image/jpeg", Data: data}, nil
}

func parseDataURI(uri string) (ImageRef, error) {
	m := dataURIPattern.FindStringSubmatch(uri)
	if m == nil {
		return ImageRef{}, &ImageFormatError{Rule: "data uri is not data:image/<png|jpeg|jpg|webp>;base64"}
	}
	data, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil || len(data) == 0 {
		return ImageRef{}, &ImageFormatError{Rule: "data uri payload is not base64"}
	}
	subtype := m[1]
	if subtype == "jpg" {
		subtype = "jpeg"
	}
	return ImageRef{Kind: ImageInline, URI: uri, ContentType: "image/" + subtype, Data: data}, nil
}

// Extension is the file extension for the image content type.
func (r ImageRef) Extension() string {
	switch r.ContentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
