package auth

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultSignupPath     = "/api/signup/"
	DefaultConfirmPinPath = "/api/confirm-pin/"
)

// Links builds the absolute URLs sent to users.
type Links struct {
	BaseURL        string
	SignupPath     string
	ConfirmPinPath string
}

func NewLinks(baseURL string) Links {
	return Links{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		SignupPath:     DefaultSignupPath,
		ConfirmPinPath: DefaultConfirmPinPath,
	}
}

// SignupURL is the link carried by an invitation email.
func (l Links) SignupURL(code string) string {
	return l.join(l.SignupPath, url.PathEscape(code))
}

// ConfirmPinURL is the link returned after an invited signup.
func (l Links) ConfirmPinURL(pin int) string {
	return l.join(l.ConfirmPinPath, strconv.Itoa(pin))
}

func (l Links) join(path, segment string) string {
	if path == "" {
		path = "/"
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return strings.TrimRight(l.BaseURL, "/") + path + segment
}
