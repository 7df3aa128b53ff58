package apiclient

// Roles accepted by the service.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// SignupRequest is the body of POST /auth/signup.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// UserResponse is a user profile as returned by signup and /users/all.
type UserResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest is the body of POST /auth/reset-password.
type ResetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"new_password"`
}

// MessageResponse is the {message} envelope used by the password endpoints.
type MessageResponse struct {
	Message string `json:"message"`
}

// DocumentResponse is returned by POST /upload/.
type DocumentResponse struct {
	ID         int64     `json:"id"`
	Filename   string    `json:"filename"`
	UserID     int64     `json:"user_id"`
	UploadDate Timestamp `json:"upload_date"`
}

type askRequest struct {
	Query string `json:"query"`
}

// AskResponse is returned by POST /ask/.
type AskResponse struct {
	Answer string `json:"answer"`
}

// UserStat is one row of the admin dashboard.
type UserStat struct {
	UserID              int64  `json:"user_id"`
	Name                string `json:"name"`
	Email               string `json:"email"`
	FilesUploadedCount  int64  `json:"files_uploaded_count"`
	QuestionsAskedCount int64  `json:"questions_asked_count"`
}

// AdminDashboard is returned by GET /admin/dashboard.
type AdminDashboard struct {
	Message             string     `json:"message"`
	TotalUsers          int64      `json:"total_users"`
	TotalFilesUploaded  int64      `json:"total_files_uploaded"`
	TotalQuestionsAsked int64      `json:"total_questions_asked"`
	UserStats           []UserStat `json:"user_stats"`
}
