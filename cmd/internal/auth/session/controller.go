package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"docqa/cmd/internal/apiclient"
	"docqa/cmd/internal/auth/credstore"
	"docqa/cmd/security/token"
)

// AuthAPI is the subset of the service the controller calls.
// *apiclient.Client satisfies it.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (apiclient.TokenResponse, error)
	Signup(ctx context.Context, in apiclient.SignupRequest) (apiclient.UserResponse, error)
}

// SignupInput is the data collected by the signup form.
type SignupInput struct {
	Name     string
	Email    string
	Password string
	// Role defaults to RoleUser when empty.
	Role Role
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the expiry clock.
func WithClock(c token.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(ctl *Controller) {
		if log != nil {
			ctl.log = log
		}
	}
}

// Controller is the single owner of the session state.
//
// Login, Signup, Logout and Expire are the only mutators. They are serialized
// with each other; readers never wait on a network call.
type Controller struct {
	cfg   Config
	api   AuthAPI
	store credstore.Store
	clock token.Clock
	log   *slog.Logger

	// opMu serializes mutating operations, including their network calls.
	opMu sync.Mutex

	mu       sync.RWMutex
	state    State
	identity *Identity

	startOnce sync.Once
	startErr  error
	ready     chan struct{}
}

// NewController builds a Controller in the Loading state. Call Start once
// the process is ready to inspect stored credentials.
func NewController(cfg Config, api AuthAPI, store credstore.Store, opts ...Option) *Controller {
	c := &Controller{
		cfg:   cfg,
		api:   api,
		store: store,
		clock: token.NewClock(cfg.ExpiryMargin),
		log:   slog.New(slog.DiscardHandler),
		state: StateLoading,
		ready: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ready is closed once Start has settled the initial state.
func (c *Controller) Ready() <-chan struct{} { return c.ready }

// Start restores the session from the store. Only the first call does work;
// later calls return the first call's result.
//
// An absent, expired or undecodable access token clears both stored tokens and
// settles Anonymous. A valid one settles Authenticated with a claims-only
// identity. Loading always ends, even when the store fails.
func (c *Controller) Start(ctx context.Context) error {
	c.startOnce.Do(func() {
		defer close(c.ready)

		c.opMu.Lock()
		defer c.opMu.Unlock()

		id, err := c.restore(ctx)

		c.mu.Lock()
		if id != nil {
			c.state = StateAuthenticated
			c.identity = id
		} else {
			c.state = StateAnonymous
			c.identity = nil
		}
		c.mu.Unlock()

		if err != nil {
			c.log.Warn("session.start.fail", "err", err)
			c.startErr = err
			return
		}
		if id != nil {
			c.log.Info("session.start", "state", StateAuthenticated.String(), "user_id", id.ID, "role", string(id.Role))
		} else {
			c.log.Info("session.start", "state", StateAnonymous.String())
		}
	})
	return c.startErr
}

func (c *Controller) restore(ctx context.Context) (*Identity, error) {
	access, err := credstore.AccessToken(ctx, c.store)
	if err != nil {
		return nil, fmt.Errorf("read access token: %w", err)
	}
	if access == "" {
		return nil, c.discard(ctx)
	}
	if c.clock.Expired(access) {
		c.log.Info("session.start.expired")
		return nil, c.discard(ctx)
	}

	claims, err := token.Decode(access)
	if err != nil {
		return nil, c.discard(ctx)
	}
	uid, err := claims.UserID()
	if err != nil {
		return nil, c.discard(ctx)
	}
	if role := Role(claims.Role); !role.Valid() {
		c.log.Warn("session.start.unknown_role", "role", claims.Role)
		return nil, c.discard(ctx)
	}
	return &Identity{ID: uid, Role: Role(claims.Role)}, nil
}

// discard clears the stored pair. A store that is already empty is fine.
func (c *Controller) discard(ctx context.Context) error {
	if err := credstore.ClearPair(ctx, c.store); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// Login authenticates and persists the returned pair.
//
// The access token is decoded before anything is stored; an unusable pair
// fails the login with ErrInvalidLoginResponse and leaves the store untouched.
// The identity carries the email as typed and a name placeholder derived from it.
func (c *Controller) Login(ctx context.Context, email, password string) (Identity, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	email = strings.TrimSpace(email)
	pair, err := c.api.Login(ctx, email, password)
	if err != nil {
		c.log.Info("session.login.fail", "err", err)
		return Identity{}, err
	}

	id, err := c.establish(ctx, pair)
	if err != nil {
		c.log.Warn("session.login.fail", "err", err)
		return Identity{}, err
	}
	id.Email = strPtr(email)
	id.Name = strPtr(namePlaceholder(email))

	c.set(&id)
	c.log.Info("session.login.ok", "user_id", id.ID, "role", string(id.Role))
	return id, nil
}

// Signup registers the user, logs in with the same credentials, and takes
// the profile from the signup response. A failure at either step leaves the
// controller unchanged.
func (c *Controller) Signup(ctx context.Context, in SignupInput) (Identity, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	role := in.Role
	if role == "" {
		role = RoleUser
	}
	email := strings.TrimSpace(in.Email)

	user, err := c.api.Signup(ctx, apiclient.SignupRequest{
		Name:     strings.TrimSpace(in.Name),
		Email:    email,
		Password: in.Password,
		Role:     string(role),
	})
	if err != nil {
		c.log.Info("session.signup.fail", "step", "signup", "err", err)
		return Identity{}, err
	}

	pair, err := c.api.Login(ctx, email, in.Password)
	if err != nil {
		c.log.Info("session.signup.fail", "step", "login", "err", err)
		return Identity{}, err
	}
	if _, err := c.establish(ctx, pair); err != nil {
		c.log.Warn("session.signup.fail", "step", "login", "err", err)
		return Identity{}, err
	}

	id := Identity{
		ID:    user.ID,
		Role:  Role(user.Role),
		Name:  strPtr(user.Name),
		Email: strPtr(user.Email),
	}
	c.set(&id)
	c.log.Info("session.signup.ok", "user_id", id.ID, "role", string(id.Role))
	return id, nil
}

// establish validates pair and persists it. It returns the claims-derived identity.
func (c *Controller) establish(ctx context.Context, pair apiclient.TokenResponse) (Identity, error) {
	if strings.TrimSpace(pair.RefreshToken) == "" {
		return Identity{}, fmt.Errorf("%w: missing refresh token", ErrInvalidLoginResponse)
	}
	claims, err := token.Decode(pair.AccessToken)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidLoginResponse, err)
	}
	uid, err := claims.UserID()
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidLoginResponse, err)
	}
	if role := Role(claims.Role); !role.Valid() {
		return Identity{}, fmt.Errorf("%w: %w %q", ErrInvalidLoginResponse, ErrUnknownRole, claims.Role)
	}

	if err := credstore.WritePair(ctx, c.store, credstore.Pair{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}); err != nil {
		return Identity{}, fmt.Errorf("persist credentials: %w", err)
	}
	return Identity{ID: uid, Role: Role(claims.Role)}, nil
}

// Logout clears the stored pair and the identity. No remote call is made.
// Calling it again is a no-op. The in-memory identity is cleared even when
// the store fails.
func (c *Controller) Logout(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	err := c.discard(ctx)
	c.set(nil)
	if err != nil {
		c.log.Warn("session.logout.fail", "err", err)
		return err
	}
	c.log.Info("session.logout")
	return nil
}

// Expire drops the in-memory identity after the dispatch layer has given up
// on refreshing. The dispatch layer has already cleared the store.
//
// A login or signup that stored a new pair in the meantime wins; Expire then
// leaves the session alone.
func (c *Controller) Expire(reason error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	access, err := credstore.AccessToken(context.Background(), c.store)
	if err == nil && access != "" {
		c.log.Info("session.expire.skipped", "err", reason)
		return
	}
	c.set(nil)
	c.log.Warn("session.expired", "err", reason)
}

func (c *Controller) set(id *Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.identity = id
	if id != nil {
		c.state = StateAuthenticated
	} else {
		c.state = StateAnonymous
	}
}

// Snapshot returns the current state. Authenticated also requires the store
// to still hold an access token.
func (c *Controller) Snapshot(ctx context.Context) Snapshot {
	c.mu.RLock()
	state := c.state
	var id *Identity
	if c.identity != nil {
		cp := *c.identity
		id = &cp
	}
	c.mu.RUnlock()

	snap := Snapshot{State: state, Identity: id}
	if state == StateLoading || id == nil {
		return snap
	}

	access, err := credstore.AccessToken(ctx, c.store)
	if err != nil {
		c.log.Warn("session.snapshot.store_fail", "err", err)
	}
	snap.Authenticated = access != ""
	snap.Admin = id.Role == RoleAdmin
	return snap
}

// IsAuthenticated reports Snapshot(ctx).Authenticated.
func (c *Controller) IsAuthenticated(ctx context.Context) bool {
	return c.Snapshot(ctx).Authenticated
}

// IsAdmin reports whether the held identity has the admin role.
func (c *Controller) IsAdmin() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity != nil && c.identity.Role == RoleAdmin
}

// Identity returns a copy of the held identity.
func (c *Controller) Identity() (Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return Identity{}, false
	}
	return *c.identity, true
}
