// Package form validates user input before it reaches a service.
package form

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"taskdeck/internal/service"
)

// validate is shared; validator.Validate caches struct metadata and is safe
// for concurrent use.
var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Error is a form validation failure. Message is ready for display.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Login normalizes and validates a login form.
func Login(email, password string) (service.Credentials, error) {
	creds := service.Credentials{
		Email:    strings.TrimSpace(email),
		Password: password,
	}
	return creds, check(creds)
}

// Signup normalizes and validates a signup form.
func Signup(email, password, name string) (service.Registration, error) {
	reg := service.Registration{
		Email:    strings.TrimSpace(email),
		Password: password,
		Name:     strings.TrimSpace(name),
	}
	return reg, check(reg)
}

// Task normalizes and validates a new task. An empty or blank title is rejected.
func Task(title, description string) (service.TaskInput, error) {
	in := service.TaskInput{
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
	}
	return in, check(in)
}

// Patch validates a partial update. Blank titles are rejected and at least
// one field must change.
func Patch(patch service.TaskPatch) (service.TaskPatch, error) {
	if patch.Title != nil {
		t := strings.TrimSpace(*patch.Title)
		if t == "" {
			return patch, &Error{Field: "title", Message: "title is required"}
		}
		patch.Title = &t
	}
	if patch.Description != nil {
		d := strings.TrimSpace(*patch.Description)
		patch.Description = &d
	}
	if patch.Empty() {
		return patch, &Error{Message: "nothing to update"}
	}
	return patch, check(patch)
}

// check runs struct validation and converts the first failure to an *Error.
func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &Error{Message: err.Error()}
	}
	fe := verrs[0]
	return &Error{Field: fe.Field(), Message: describe(fe)}
}

// describe renders a field error the way the forms show it.
func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return "invalid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
