package portal

import (
	"docqa/cmd/internal/apiclient"
	"docqa/cmd/internal/auth/session"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Role            string `json:"role,omitempty"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email           string `json:"email"`
	OTP             string `json:"otp"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type askRequest struct {
	Query string `json:"query"`
}

type sessionResponse struct {
	State    string            `json:"state"`
	Identity *session.Identity `json:"identity,omitempty"`
	Admin    bool              `json:"admin"`
}

type authResponse struct {
	Identity session.Identity `json:"identity"`
	Redirect string           `json:"redirect"`
}

type messageResponse struct {
	Message  string `json:"message"`
	Redirect string `json:"redirect,omitempty"`
}

type dashboardResponse struct {
	Identity session.Identity `json:"identity"`
	Admin    bool             `json:"admin"`
}

type uploadResponse struct {
	Message  string                     `json:"message"`
	Document apiclient.DocumentResponse `json:"document"`
}

func toSessionResponse(s session.Snapshot) sessionResponse {
	out := sessionResponse{State: s.Kind()}
	if s.Authenticated {
		out.Identity = s.Identity
		out.Admin = s.Admin
	}
	return out
}
