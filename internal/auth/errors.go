package auth

import (
	"errors"
	"fmt"
)

// Error codes reported by the identity provider.
const (
	CodeEmailInUse    = "auth/email-already-in-use"
	CodeWeakPassword  = "auth/weak-password"
	CodeInvalidEmail  = "auth/invalid-email"
	CodeUserNotFound  = "auth/user-not-found"
	CodeWrongPassword = "auth/wrong-password"
	CodeInvalidToken  = "auth/invalid-token"
)

// Error is a coded identity-provider failure.
type Error struct {
	Code string
}

func (e *Error) Error() string {
	return e.Code
}

func newError(code string) error {
	return &Error{Code: code}
}

// Code extracts the code of an auth error, or "" for any other error.
func Code(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// Unknown email and wrong password share one text.
var descriptions = map[string]string{
	CodeEmailInUse:    "Email already exists. Please try logging in instead.",
	CodeWeakPassword:  "Password should be at least 6 characters long.",
	CodeInvalidEmail:  "Invalid email address.",
	CodeUserNotFound:  "Invalid email or password.",
	CodeWrongPassword: "Invalid email or password.",
	CodeInvalidToken:  "Your session is no longer valid. Please sign in again.",
}

// Describe turns err into a message fit for the login screen.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	if text, ok := descriptions[Code(err)]; ok {
		return text
	}
	return fmt.Sprintf("Failed to sign in: %v", err)
}
