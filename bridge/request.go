package bridge

import (
	"encoding/base64"
	"strconv"
	"strings"
)

// Request is the body of a print call. Exactly one of ImageBase64 and Lines
// is set; Copies defaults to 1.
type Request struct {
	Title       string   `json:"title,omitempty"`
	ImageBase64 *string  `json:"imageBase64,omitempty"`
	Lines       []string `json:"lines,omitempty"`
	Copies      *int     `json:"copies,omitempty"`
}

// TextRequest turns a plain text body into a one-copy text request.
func TextRequest(body string) Request {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.TrimSuffix(body, "\n")
	lines := []string{}
	if body != "" {
		lines = strings.Split(body, "\n")
	}
	return Request{Lines: lines}
}

// validate checks the request shape and returns the copy count and, for image
// requests, the decoded image bytes.
func (r *Request) validate(maxCopies int) (copies int, image []byte, err error) {
	switch {
	case r.ImageBase64 == nil && r.Lines == nil:
		return 0, nil, &ValidationError{Reason: "one of imageBase64 or lines is required"}
	case r.ImageBase64 != nil && r.Lines != nil:
		return 0, nil, &ValidationError{Reason: "imageBase64 and lines are mutually exclusive"}
	}

	copies = 1
	if r.Copies != nil {
		copies = *r.Copies
		if copies < 1 {
			return 0, nil, &ValidationError{Field: "copies", Reason: "must be a positive integer"}
		}
		if maxCopies > 0 && copies > maxCopies {
			return 0, nil, &ValidationError{Field: "copies", Reason: "must not exceed " + strconv.Itoa(maxCopies)}
		}
	}

	if r.ImageBase64 != nil {
		s := strings.TrimSpace(*r.ImageBase64)
		if s == "" {
			return 0, nil, &ValidationError{Field: "imageBase64", Reason: "is empty"}
		}
		if strings.HasPrefix(s, "data:") {
			return 0, nil, &ValidationError{Field: "imageBase64", Reason: "must not carry a data URI prefix"}
		}
		image, err = base64.StdEncoding.DecodeString(s)
		if err != nil {
			return 0, nil, &ValidationError{Field: "imageBase64", Reason: "invalid base64: " + err.Error()}
		}
	}
	return copies, image, nil
}

func (r *Request) payloadKind() string {
	if r.ImageBase64 != nil {
		return "image"
	}
	return "text"
}
