package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"

	"taskdeck/internal/service"
)

// maxLoggedBody bounds how much of an unrecognized payload reaches the log.
const maxLoggedBody = 512

// decodeError marks a 2xx response whose body could not be decoded.
type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return "decode response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

// errorPayload covers the error bodies the API produces:
// {"detail": "msg"}, {"detail": [{"msg": "..."}]} and {"message": "msg"}.
type errorPayload struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
}

// fieldError is one element of a structured detail list.
type fieldError struct {
	Msg string `json:"msg"`
}

// extractMessage pulls a human-readable message out of an error body.
// list reports whether detail was a structured validation list.
// ok is false when the body has none of the known shapes.
func extractMessage(body string) (msg string, list bool, ok bool) {
	var p errorPayload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return "", false, false
	}

	if len(p.Detail) > 0 {
		var items []json.RawMessage
		if err := json.Unmarshal(p.Detail, &items); err == nil {
			msgs := make([]string, 0, len(items))
			for _, item := range items {
				var fe fieldError
				var s string
				switch {
				case json.Unmarshal(item, &fe) == nil && fe.Msg != "":
					msgs = append(msgs, fe.Msg)
				case json.Unmarshal(item, &s) == nil && s != "":
					msgs = append(msgs, s)
				default:
					msgs = append(msgs, "Validation error")
				}
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, ", "), true, true
			}
		}

		var s string
		if err := json.Unmarshal(p.Detail, &s); err == nil && s != "" {
			return s, false, true
		}
	}

	if p.Message != "" {
		return p.Message, false, true
	}
	return "", false, false
}

// kindForStatus maps an HTTP status to a service.Kind.
func kindForStatus(status int, list bool) service.Kind {
	switch {
	case status == http.StatusUnauthorized:
		return service.KindUnauthorized
	case list, status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return service.KindValidation
	default:
		return service.KindAPI
	}
}

// normalize turns any failure from do into a *service.Error whose message
// is safe to show. fallback is used when no message can be extracted.
func (c *Client) normalize(err error, fallback string) error {
	if err == nil {
		return nil
	}

	var se *service.Error
	if errors.As(err, &se) {
		return se
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg, list, ok := extractMessage(gerr.Body)
		if !ok {
			c.logger.Debug("unrecognized error payload",
				"status", gerr.Code,
				"body", truncate(gerr.Body, maxLoggedBody),
			)
			msg = fallback
			if gerr.Message != "" {
				msg = gerr.Message
			}
		}
		return &service.Error{
			Kind:    kindForStatus(gerr.Code, list),
			Status:  gerr.Code,
			Message: msg,
			Err:     err,
		}
	}

	var de *decodeError
	if errors.As(err, &de) {
		c.logger.Debug("undecodable response", "error", err)
		return &service.Error{Kind: service.KindAPI, Message: fallback, Err: err}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &service.Error{Kind: service.KindTransport, Message: "request timed out", Err: err}
	case errors.Is(err, context.Canceled):
		return &service.Error{Kind: service.KindTransport, Message: "request cancelled", Err: err}
	}

	c.logger.Debug("transport failure", "error", err)
	return &service.Error{Kind: service.KindTransport, Message: fallback, Err: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
