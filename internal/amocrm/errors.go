package amocrm

import (
	"errors"
	"fmt"
)

// ErrNotAccepted — amoCRM ответил 2xx, но в _embedded нет созданной/обновлённой сущности.
var ErrNotAccepted = errors.New("amocrm: request was not accepted")

// ErrNoContent is returned by single-entity reads answered with 204.
var ErrNoContent = errors.New("amocrm: empty response")

var statusMessages = map[int]string{
	301: "Moved permanently",
	400: "Bad request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not found",
	500: "Internal server error",
	502: "Bad gateway",
	503: "Service unavailable",
}

// StatusMessage maps an HTTP status to the text amoCRM integrations traditionally report.
func StatusMessage(status int) string {
	if m, ok := statusMessages[status]; ok {
		return m
	}
	return "undefined error"
}

// APIError — любой ответ API v4, кроме 200 и 204.
type APIError struct {
	Method  string
	URL     string
	Status  int
	Message string
	Body    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("amocrm: %s %s: %d %s", e.Method, e.URL, e.Status, e.Message)
}

// AuthError — ошибка обмена кода или refresh-токена на access-токен.
type AuthError struct {
	Status  int
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("amocrm auth: %s: %v", e.Message, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("amocrm auth: %s (HTTP %d)", e.Message, e.Status)
	default:
		return "amocrm auth: " + e.Message
	}
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsStatus reports whether err is an APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
