package forms

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"docqa/cmd/security/password"
)

// DefaultMaxUploadBytes caps uploads at 25 MiB.
const DefaultMaxUploadBytes int64 = 25 << 20

// Signup is the signup form.
type Signup struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Confirm  string `json:"confirm_password"`
	Role     string `json:"role" validate:"omitempty,oneof=user admin"`
}

// Login is the login form.
type Login struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ForgotPassword is the OTP request form.
type ForgotPassword struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPassword is the OTP reset form.
type ResetPassword struct {
	Email       string `json:"email" validate:"required,email"`
	OTP         string `json:"otp" validate:"required,max=16"`
	NewPassword string `json:"new_password" validate:"required"`
	Confirm     string `json:"confirm_password"`
}

// Validator checks forms. It is safe for concurrent use.
type Validator struct {
	v              *validator.Validate
	password       password.Config
	maxUploadBytes int64
}

// New returns a Validator applying pw to password fields.
// maxUploadBytes <= 0 selects DefaultMaxUploadBytes.
func New(pw password.Config, maxUploadBytes int64) *Validator {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v, password: pw, maxUploadBytes: maxUploadBytes}
}

// MaxUploadBytes returns the upload size limit.
func (v *Validator) MaxUploadBytes() int64 { return v.maxUploadBytes }

// Signup validates in. Whitespace around name and email is trimmed in place.
func (v *Validator) Signup(in *Signup) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := v.structErr(in); err != nil {
		return err
	}
	return v.passwordErr("password", in.Password, in.Confirm)
}

// Login validates in.
func (v *Validator) Login(in *Login) error {
	in.Email = strings.TrimSpace(in.Email)
	return v.structErr(in)
}

// ForgotPassword validates in.
func (v *Validator) ForgotPassword(in *ForgotPassword) error {
	in.Email = strings.TrimSpace(in.Email)
	return v.structErr(in)
}

// ResetPassword validates in.
func (v *Validator) ResetPassword(in *ResetPassword) error {
	in.Email = strings.TrimSpace(in.Email)
	in.OTP = strings.TrimSpace(in.OTP)
	if err := v.structErr(in); err != nil {
		return err
	}
	return v.passwordErr("new_password", in.NewPassword, in.Confirm)
}

// Ask rejects a blank question and returns it trimmed.
func (v *Validator) Ask(query string) (string, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return "", invalid("query", "Please enter a question", nil)
	}
	return q, nil
}

func (v *Validator) passwordErr(field, pw, confirm string) error {
	if err := v.password.ValidateConfirmation(pw, confirm); err != nil {
		return invalid(field, v.password.Message(err), err)
	}
	return nil
}

func (v *Validator) structErr(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return invalid("", "Invalid input", err)
	}
	fe := fieldErrs[0]
	return invalid(fe.Field(), fieldMessage(fe), err)
}

func fieldMessage(fe validator.FieldError) string {
	label := humanize(fe.Field())
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return "Please enter a valid email address"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", label, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
	default:
		return label + " is invalid"
	}
}

// humanize turns "new_password" into "New password".
func humanize(field string) string {
	s := strings.ReplaceAll(field, "_", " ")
	switch s {
	case "":
		return "Value"
	case "otp":
		return "OTP"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
