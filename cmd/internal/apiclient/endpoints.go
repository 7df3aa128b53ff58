package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
)

// Signup registers a user. It does not establish a session.
func (c *Client) Signup(ctx context.Context, in SignupRequest) (UserResponse, error) {
	var out UserResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth/signup", in, &out, true)
	return out, err
}

// Login exchanges credentials for a token pair. The pair is not persisted here.
func (c *Client) Login(ctx context.Context, email, password string) (TokenResponse, error) {
	var out TokenResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth/login", LoginRequest{Email: email, Password: password}, &out, true)
	return out, err
}

// Refresh trades a refresh token for a new pair without touching the store.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenResponse, error) {
	return c.postRefresh(ctx, refreshToken)
}

// ForgotPassword asks the service to email a reset OTP.
func (c *Client) ForgotPassword(ctx context.Context, email string) (MessageResponse, error) {
	var out MessageResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth/forgot-password", forgotPasswordRequest{Email: email}, &out, true)
	return out, err
}

// ResetPassword sets a new password using the emailed OTP.
func (c *Client) ResetPassword(ctx context.Context, in ResetPasswordRequest) (MessageResponse, error) {
	var out MessageResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth/reset-password", in, &out, true)
	return out, err
}

// UploadDocument sends a PDF or DOCX as multipart field "file".
func (c *Client) UploadDocument(ctx context.Context, filename string, content io.Reader) (DocumentResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return DocumentResponse{}, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return DocumentResponse{}, fmt.Errorf("build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return DocumentResponse{}, fmt.Errorf("build upload: %w", err)
	}

	resp, err := c.Do(ctx, Request{
		Method:      http.MethodPost,
		Path:        "/upload/",
		Body:        buf.Bytes(),
		ContentType: mw.FormDataContentType(),
	})
	if err != nil {
		return DocumentResponse{}, err
	}

	var out DocumentResponse
	err = decodeJSON(resp, &out)
	return out, err
}

// Ask sends a question about the caller's uploaded documents.
func (c *Client) Ask(ctx context.Context, query string) (AskResponse, error) {
	var out AskResponse
	err := c.doJSON(ctx, http.MethodPost, "/ask/", askRequest{Query: query}, &out, false)
	return out, err
}

// AdminDashboard returns aggregate usage. Requires the admin role server-side.
func (c *Client) AdminDashboard(ctx context.Context) (AdminDashboard, error) {
	var out AdminDashboard
	err := c.doJSON(ctx, http.MethodGet, "/admin/dashboard", nil, &out, false)
	return out, err
}

// ListUsers returns every registered user.
func (c *Client) ListUsers(ctx context.Context) ([]UserResponse, error) {
	var out []UserResponse
	err := c.doJSON(ctx, http.MethodGet, "/users/all", nil, &out, false)
	return out, err
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any, anonymous bool) error {
	req := Request{Method: method, Path: path, Anonymous: anonymous}
	if in != nil {
		body, err := encodeJSON(in)
		if err != nil {
			return err
		}
		req.Body = body
		req.ContentType = "application/json"
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return decodeJSON(resp, out)
}
