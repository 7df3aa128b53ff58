package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"docqa/cmd/internal/apiclient"
	"docqa/cmd/internal/auth/session"
	"docqa/cmd/internal/forms"
	"docqa/cmd/internal/guard"
	"docqa/cmd/internal/portal"
)

// Version is stamped at build time.
var Version = "dev"

const (
	annotationNoApp   = "docqa/no-app"
	annotationNoStart = "docqa/no-start"
)

// cli holds flag values and the App built for the running command.
type cli struct {
	configPath      string
	apiURL          string
	credentialsPath string
	logLevel        string
	logFormat       string

	stdin  *bufio.Reader
	stdout io.Writer
	stderr io.Writer

	app *App
}

// commandError carries the message shown when the service gave no detail.
type commandError struct {
	fallback string
	err      error
}

func (e *commandError) Error() string { return e.fallback + ": " + e.err.Error() }
func (e *commandError) Unwrap() error { return e.err }

func failed(fallback string, err error) error {
	if err == nil {
		return nil
	}
	return &commandError{fallback: fallback, err: err}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "docqa",
		Short:         "Client for the document question-answering service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[annotationNoApp] != "" {
				return nil
			}
			return c.setup(cmd)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if c.app != nil {
				c.app.Close()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&c.configPath, "config", "c", "", "YAML config file (default $DOCQA_CONFIG)")
	pf.StringVar(&c.apiURL, "api-url", "", "service base URL (default $DOCQA_API_BASE_URL)")
	pf.StringVar(&c.credentialsPath, "credentials", "", "token file, or :memory: (default $DOCQA_CREDENTIALS_PATH)")
	pf.StringVar(&c.logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&c.logFormat, "log-format", "", "json or pretty")

	root.AddCommand(
		c.loginCmd(),
		c.signupCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.askCmd(),
		c.uploadCmd(),
		c.adminCmd(),
		c.forgotPasswordCmd(),
		c.resetPasswordCmd(),
		c.serveCmd(),
		&cobra.Command{
			Use:         "version",
			Short:       "Print version information",
			Annotations: map[string]string{annotationNoApp: "true"},
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(c.stdout, "docqa %s\n", Version)
			},
		},
	)
	return root
}

// setup loads configuration, applies flag overrides, and builds the App.
func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := LoadConfig(c.configPath)
	if err != nil {
		return err
	}
	if c.apiURL != "" {
		cfg.APIBaseURL = c.apiURL
	}
	if c.credentialsPath != "" {
		cfg.CredentialsPath = c.credentialsPath
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if c.logFormat != "" {
		cfg.LogFormat = c.logFormat
	}

	// Servers log JSON at info; interactive commands stay quiet.
	serving := cmd.Name() == "serve"
	if cfg.LogFormat == "" {
		cfg.LogFormat = formatPretty
		if serving {
			cfg.LogFormat = formatJSON
		}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "warn"
		if serving {
			cfg.LogLevel = "info"
		}
	}

	log := NewLogger(c.stderr, cfg.LogLevel, cfg.LogFormat)
	a, err := New(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	c.app = a

	if cmd.Annotations[annotationNoStart] != "" {
		return nil
	}
	if err := a.Start(cmd.Context()); err != nil {
		// Restoring never blocks a command; the session simply starts anonymous.
		log.Warn("cli.session_restore.fail", "err", err)
	}
	return nil
}

// readSecret returns flagValue or prompts for a line on stdin.
func (c *cli) readSecret(flagValue, prompt string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	fmt.Fprint(c.stderr, prompt)
	line, err := c.stdin.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.ToLower(prompt), ": "), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *cli) loginCmd() *cobra.Command {
	var email, pw string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := c.readSecret(pw, "Password: ")
			if err != nil {
				return err
			}
			in := forms.Login{Email: email, Password: secret}
			if err := c.app.forms.Login(&in); err != nil {
				return err
			}
			id, err := c.app.session.Login(cmd.Context(), in.Email, in.Password)
			if err != nil {
				return failed(portal.FallbackLogin, err)
			}
			fmt.Fprintf(c.stdout, "Logged in as %s (%s)\n", id.DisplayName(), id.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&pw, "password", "", "password (prompted when empty)")
	return cmd
}

func (c *cli) signupCmd() *cobra.Command {
	var name, email, pw, confirm, role string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := c.readSecret(pw, "Password: ")
			if err != nil {
				return err
			}
			again, err := c.readSecret(confirm, "Confirm password: ")
			if err != nil {
				return err
			}
			in := forms.Signup{Name: name, Email: email, Password: secret, Confirm: again, Role: role}
			if err := c.app.forms.Signup(&in); err != nil {
				return err
			}
			id, err := c.app.session.Signup(cmd.Context(), session.SignupInput{
				Name:     in.Name,
				Email:    in.Email,
				Password: in.Password,
				Role:     session.Role(in.Role),
			})
			if err != nil {
				return failed(portal.FallbackSignup, err)
			}
			fmt.Fprintf(c.stdout, "Account created. Logged in as %s (%s)\n", id.DisplayName(), id.Role)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&name, "name", "", "full name")
	f.StringVar(&email, "email", "", "account email")
	f.StringVar(&pw, "password", "", "password (prompted when empty)")
	f.StringVar(&confirm, "confirm-password", "", "password confirmation (prompted when empty)")
	f.StringVar(&role, "role", "", "user or admin (default user)")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.app.session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(c.stdout, "Logged out")
			return nil
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap := c.app.session.Snapshot(cmd.Context())
			if !snap.Authenticated || snap.Identity == nil {
				return guard.ErrLoginRequired
			}
			id := snap.Identity
			fmt.Fprintf(c.stdout, "user %d (%s)", id.ID, id.Role)
			if name := id.DisplayName(); name != "" {
				fmt.Fprintf(c.stdout, " %s", name)
			}
			fmt.Fprintln(c.stdout)
			return nil
		},
	}
}

func (c *cli) askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask QUESTION...",
		Short: "Ask a question about your uploaded documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := guard.Check(ctx, c.app.session, false); err != nil {
				return err
			}
			q, err := c.app.forms.Ask(strings.Join(args, " "))
			if err != nil {
				return err
			}
			res, err := c.app.client.Ask(ctx, q)
			if err != nil {
				return failed(portal.FallbackAsk, err)
			}
			fmt.Fprintln(c.stdout, res.Answer)
			return nil
		},
	}
}

func (c *cli) uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a PDF or DOCX document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := guard.Check(ctx, c.app.session, false); err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return failed(portal.FallbackUpload, err)
			}
			defer func() { _ = f.Close() }()
			fi, err := f.Stat()
			if err != nil {
				return failed(portal.FallbackUpload, err)
			}

			up, content, err := c.app.forms.UploadReader(fi.Name(), fi.Size(), f)
			if err != nil {
				return err
			}
			doc, err := c.app.client.UploadDocument(ctx, up.Filename, content)
			if err != nil {
				return failed(portal.FallbackUpload, err)
			}
			fmt.Fprintf(c.stdout, "File %q uploaded successfully! (id %d)\n", doc.Filename, doc.ID)
			return nil
		},
	}
}

func (c *cli) adminCmd() *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Administrator commands",
	}
	admin.AddCommand(
		&cobra.Command{
			Use:   "dashboard",
			Short: "Show usage totals per user",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx := cmd.Context()
				if err := guard.Check(ctx, c.app.session, true); err != nil {
					return err
				}
				d, err := c.app.client.AdminDashboard(ctx)
				if err != nil {
					return failed(portal.FallbackAdmin, err)
				}
				printDashboard(c.stdout, d)
				return nil
			},
		},
		&cobra.Command{
			Use:   "users",
			Short: "List registered users",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx := cmd.Context()
				if err := guard.Check(ctx, c.app.session, true); err != nil {
					return err
				}
				users, err := c.app.client.ListUsers(ctx)
				if err != nil {
					return failed(portal.FallbackAdmin, err)
				}
				tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tROLE")
				for _, u := range users {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", u.ID, u.Name, u.Email, u.Role)
				}
				return tw.Flush()
			},
		},
	)
	return admin
}

func printDashboard(w io.Writer, d apiclient.AdminDashboard) {
	fmt.Fprintf(w, "Users: %d  Files: %d  Questions: %d\n\n", d.TotalUsers, d.TotalFilesUploaded, d.TotalQuestionsAsked)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tFILES\tQUESTIONS")
	for _, s := range d.UserStats {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\n", s.UserID, s.Name, s.Email, s.FilesUploadedCount, s.QuestionsAskedCount)
	}
	_ = tw.Flush()
}

func (c *cli) forgotPasswordCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Email a password reset code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := forms.ForgotPassword{Email: email}
			if err := c.app.forms.ForgotPassword(&in); err != nil {
				return err
			}
			res, err := c.app.client.ForgotPassword(cmd.Context(), in.Email)
			if err != nil {
				return failed(portal.FallbackForgotPassword, err)
			}
			fmt.Fprintln(c.stdout, res.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	return cmd
}

func (c *cli) resetPasswordCmd() *cobra.Command {
	var email, otp, pw, confirm string
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password with an emailed code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := c.readSecret(pw, "New password: ")
			if err != nil {
				return err
			}
			again, err := c.readSecret(confirm, "Confirm password: ")
			if err != nil {
				return err
			}
			in := forms.ResetPassword{Email: email, OTP: otp, NewPassword: secret, Confirm: again}
			if err := c.app.forms.ResetPassword(&in); err != nil {
				return err
			}
			res, err := c.app.client.ResetPassword(cmd.Context(), apiclient.ResetPasswordRequest{
				Email:       in.Email,
				OTP:         in.OTP,
				NewPassword: in.NewPassword,
			})
			if err != nil {
				return failed(portal.FallbackResetPassword, err)
			}
			fmt.Fprintln(c.stdout, res.Message)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&email, "email", "", "account email")
	f.StringVar(&otp, "otp", "", "code from the reset email")
	f.StringVar(&pw, "new-password", "", "new password (prompted when empty)")
	f.StringVar(&confirm, "confirm-password", "", "password confirmation (prompted when empty)")
	return cmd
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "serve",
		Short:       "Run the local portal",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoStart: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.app.Serve(cmd.Context())
		},
	}
}

// describe renders err as the one line printed after "Error: ".
func describe(err error) string {
	var ve *forms.ValidationError
	var ce *commandError
	switch {
	case errors.As(err, &ve):
		return ve.Message
	case errors.Is(err, apiclient.ErrReauthRequired):
		return "Your session has expired. Please run 'docqa login' again."
	case errors.Is(err, guard.ErrLoginRequired):
		return "Not logged in. Run 'docqa login' first."
	case errors.Is(err, guard.ErrAdminRequired):
		return "This command requires an admin account."
	case errors.As(err, &ce):
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) {
			return apiErr.Message(ce.fallback)
		}
		return ce.Error()
	default:
		return err.Error()
	}
}
