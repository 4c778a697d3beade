package castellan

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"
)

// AuthSession is the per-request view of one browser session. It is
// created by Engine.Session, carries no locks and must not be shared
// across goroutines.
//
// State-changing methods report their outcome as a bool; the reasons
// for a refusal are deliberately not surfaced to the caller. Backend
// failures along best-effort paths are logged and absorbed, always
// resolving toward logged-out.
type AuthSession struct {
	engine *Engine
	sid    string
	secure bool

	loggedIn  bool
	principal *Principal
	isAdmin   bool

	pending []*http.Cookie
}

// SID returns the current session identifier. It changes on successful
// login and on logout.
func (as *AuthSession) SID() string { return as.sid }

// IsLoggedIn reports whether the session carries an authenticated
// principal.
func (as *AuthSession) IsLoggedIn() bool { return as.loggedIn }

// Principal returns the authenticated principal, or nil when logged
// out.
func (as *AuthSession) Principal() *Principal {
	if !as.loggedIn {
		return nil
	}
	return as.principal
}

// ID returns the authenticated principal's ID, or zero when logged out.
func (as *AuthSession) ID() int64 {
	if !as.loggedIn {
		return 0
	}
	return as.principal.ID
}

// Username returns the authenticated principal's username, or "" when
// logged out.
func (as *AuthSession) Username() string {
	if !as.loggedIn {
		return ""
	}
	return as.principal.Username
}

// IsAdmin reports whether the principal is the superuser or holds the
// configured admin permission.
func (as *AuthSession) IsAdmin() bool { return as.loggedIn && as.isAdmin }

// HasPermission reports whether the principal holds at least one of
// the comma-separated permission names. Logged-out sessions hold
// nothing; the superuser holds everything.
func (as *AuthSession) HasPermission(permissions string) bool {
	if !as.loggedIn {
		return false
	}
	return as.engine.evaluator.HasAny(as.principal.ID, as.principal.Roles, permissions)
}

// Permissions returns the deduplicated, sorted union of the
// principal's role grants. Nil when logged out.
func (as *AuthSession) Permissions() []string {
	if !as.loggedIn {
		return nil
	}
	return as.engine.evaluator.PermissionSet(as.principal.Roles)
}

// PendingCookies returns cookies queued by login, cookie renewal and
// logout. HTTP adapters must write them all to the response.
func (as *AuthSession) PendingCookies() []*http.Cookie { return as.pending }

// Load establishes identity from existing state: the server-side
// session first, then the remember-me cookie. Returns true when the
// session ends up logged in.
func (as *AuthSession) Load(ctx context.Context, rememberCookie string) bool {
	e := as.engine
	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricLoadLatency, time.Since(start))
	}()

	if as.sid != "" {
		username, ok, err := e.store.Username(ctx, as.sid)
		switch {
		case err != nil:
			log.Print("castellan: reading session identity: ", err)
		case ok:
			return as.loadFromSession(ctx, username)
		}
	}

	if rememberCookie != "" && as.challengeCookie(ctx, rememberCookie) {
		e.metrics.Inc(MetricLoadSuccess)
		return true
	}

	e.metrics.Inc(MetricLoadAnonymous)
	return false
}

// loadFromSession resolves the username the server-side session holds.
// The session is authoritative: once it names an account the
// remember-me cookie is never consulted, and an account that no longer
// resolves tears the whole login down, cookie included.
func (as *AuthSession) loadFromSession(ctx context.Context, username string) bool {
	e := as.engine

	p, err := e.provider.FindByUsername(ctx, username)
	switch {
	case err == nil && p != nil:
		as.setInfos(p)
		// Rewriting the identity renews its TTL, so active sessions
		// slide instead of expiring a fixed interval after login.
		if err := e.store.SetUsername(ctx, as.sid, username); err != nil {
			log.Print("castellan: renewing session identity: ", err)
		}
		e.metrics.Inc(MetricLoadSuccess)
		return true
	case err != nil && !errors.Is(err, ErrPrincipalNotFound):
		// Backend trouble. The stored identity stays; only this
		// request is served anonymously.
		log.Print("castellan: loading session principal: ", err)
	default:
		as.Logout(ctx)
	}

	e.metrics.Inc(MetricLoadAnonymous)
	return false
}

// challengeCookie validates a remember-me cookie and, when it holds,
// promotes it to a full session. Invalid cookies are queued for
// deletion so the browser stops presenting them.
func (as *AuthSession) challengeCookie(ctx context.Context, raw string) bool {
	e := as.engine

	var cached *Principal
	lookup := func(ctx context.Context, id int64) (string, string, error) {
		p, err := e.provider.FindByID(ctx, id)
		if err != nil {
			return "", "", err
		}
		cached = p
		return p.Username, p.Salt, nil
	}

	id, ok := e.codec.Validate(ctx, raw, time.Now(), lookup)
	if !ok || cached == nil || cached.ID != id {
		e.metrics.Inc(MetricCookieRejected)
		e.emitAudit(ctx, EventCookieRejected, id, "", as.sid, false, "cookie challenge failed")
		as.expireRememberCookie()
		return false
	}

	if !as.establish(ctx, cached, true) {
		return false
	}

	e.metrics.Inc(MetricCookieAccepted)
	e.emitAudit(ctx, EventCookieAccepted, cached.ID, cached.Username, as.sid, true, "")
	return true
}

// Login verifies the credentials and, on success, establishes a fresh
// session. On failure the per-session invalid-login counter grows and
// the configured delay is applied before returning.
func (as *AuthSession) Login(ctx context.Context, username, password string, remember bool) bool {
	return as.login(ctx, username, password, remember, false)
}

// ForceLogin establishes a session for the named principal without a
// password check. Callers must gate it behind their own trust
// boundary; RedeemTicket is the supported remote entry point.
func (as *AuthSession) ForceLogin(ctx context.Context, username string, remember bool) bool {
	return as.login(ctx, username, "", remember, true)
}

// RedeemTicket verifies a one-time force-login ticket and logs its
// subject in. Each ticket works exactly once; replays are refused.
func (as *AuthSession) RedeemTicket(ctx context.Context, token string, remember bool) bool {
	e := as.engine
	if e.tickets == nil {
		return false
	}

	username, jti, err := e.tickets.Redeem(token)
	if err != nil {
		e.metrics.Inc(MetricTicketRejected)
		e.emitAudit(ctx, EventTicketRejected, 0, "", as.sid, false, err.Error())
		return false
	}

	fresh, err := e.store.ConsumeTicket(ctx, jti, e.tickets.TTL())
	if err != nil {
		log.Print("castellan: consuming ticket: ", err)
		return false
	}
	if !fresh {
		e.metrics.Inc(MetricTicketRejected)
		e.emitAudit(ctx, EventTicketRejected, 0, username, as.sid, false, "ticket replay")
		return false
	}

	if !as.ForceLogin(ctx, username, remember) {
		return false
	}

	e.metrics.Inc(MetricTicketRedeemed)
	e.emitAudit(ctx, EventTicketRedeemed, as.ID(), username, as.sid, true, "")
	return true
}

// Logout drops the principal, clears all server-side session state
// including the invalid-login counter, rotates the session identifier
// and queues deletion of the remember-me cookie. Safe to call on a
// logged-out session.
func (as *AuthSession) Logout(ctx context.Context) {
	e := as.engine
	id, username := as.ID(), as.Username()
	wasLoggedIn := as.loggedIn

	as.resetLocal()

	if err := e.store.Clear(ctx, as.sid); err != nil {
		log.Print("castellan: clearing session on logout: ", err)
	}
	if err := e.store.ResetFailures(ctx, as.sid); err != nil {
		log.Print("castellan: resetting failure counter on logout: ", err)
	}
	if newSID, err := e.store.Regenerate(ctx, as.sid); err == nil {
		as.sid = newSID
		e.metrics.Inc(MetricSessionRegenerated)
	} else {
		log.Print("castellan: regenerating session on logout: ", err)
	}

	as.expireRememberCookie()

	if wasLoggedIn {
		e.metrics.Inc(MetricLogout)
		e.emitAudit(ctx, EventLogout, id, username, as.sid, true, "")
	}
}

// login is the shared credential flow. With force set the password is
// not checked and no failure is recorded for unknown accounts.
func (as *AuthSession) login(ctx context.Context, username, pass string, remember, force bool) bool {
	e := as.engine

	// Any prior identity is dropped before the attempt. The failure
	// counter survives so repeated attempts on one session keep
	// escalating.
	as.resetLocal()
	if err := e.store.Clear(ctx, as.sid); err != nil {
		log.Print("castellan: clearing session before login: ", err)
	}

	p, err := e.provider.FindByUsername(ctx, username)
	if errors.Is(err, ErrPrincipalNotFound) && e.config.Login.AllowLoginWithEmail {
		p, err = e.provider.FindByEmail(ctx, username)
	}
	if err != nil || p == nil {
		if err != nil && !errors.Is(err, ErrPrincipalNotFound) {
			log.Print("castellan: looking up principal: ", err)
		}
		if force {
			return false
		}
		return as.loginFailed(ctx, username, nil)
	}

	if !force && !e.hasher.Verify(pass, p.PasswordHash, p.Salt) {
		return as.loginFailed(ctx, username, p)
	}

	if !force && e.config.Password.UpgradeOnLogin && e.hasher.NeedsUpgrade(p.PasswordHash) {
		as.upgradeHash(ctx, p, pass)
	}

	if err := e.provider.RecordLogin(ctx, p.ID, time.Now()); err != nil {
		log.Print("castellan: recording login: ", err)
	}

	if !as.establish(ctx, p, remember) {
		return false
	}

	if force {
		e.metrics.Inc(MetricForceLogin)
		e.emitAudit(ctx, EventForceLogin, p.ID, p.Username, as.sid, true, "")
	} else {
		e.metrics.Inc(MetricLoginSuccess)
		e.emitAudit(ctx, EventLoginSuccess, p.ID, p.Username, as.sid, true, "")
	}
	return true
}

// establish rotates the session identifier, stores the identity and
// clears the failure counter. A rotation or store failure aborts the
// login; handing out a session that Redis never saw would split the
// engine's and the store's view of who is logged in.
func (as *AuthSession) establish(ctx context.Context, p *Principal, remember bool) bool {
	e := as.engine

	newSID, err := e.store.Regenerate(ctx, as.sid)
	if err != nil {
		log.Print("castellan: regenerating session on login: ", err)
		return false
	}
	as.sid = newSID
	e.metrics.Inc(MetricSessionRegenerated)
	e.emitAudit(ctx, EventSessionRegenerated, p.ID, p.Username, newSID, true, "")

	if err := e.store.SetUsername(ctx, as.sid, p.Username); err != nil {
		log.Print("castellan: storing session identity: ", err)
		return false
	}
	if err := e.store.ResetFailures(ctx, as.sid); err != nil {
		log.Print("castellan: resetting failure counter: ", err)
	}

	as.setInfos(p)

	if remember {
		as.pending = append(as.pending, as.rememberCookie(p, time.Now()))
	}
	return true
}

// loginFailed records the failure and applies the escalating delay.
// Always returns false.
func (as *AuthSession) loginFailed(ctx context.Context, username string, p *Principal) bool {
	e := as.engine

	count, err := e.store.IncrFailures(ctx, as.sid)
	if err != nil {
		log.Print("castellan: counting failed login: ", err)
	}

	var userID int64
	if p != nil {
		userID = p.ID
		if err := e.provider.RecordFailure(ctx, p.ID, time.Now(), p.FailureCount+1); err != nil {
			log.Print("castellan: recording failed login: ", err)
		}
	}

	e.metrics.Inc(MetricLoginFailure)
	e.emitAudit(ctx, EventLoginFailure, userID, username, as.sid, false, "invalid credentials")

	if e.config.Login.DelayOnInvalidLogin {
		if d := e.throttle.Delay(count); d > 0 {
			e.metrics.Inc(MetricLoginDelayed)
			e.emitAudit(ctx, EventLoginDelayed, userID, username, as.sid, false, "")
			if err := e.throttle.Wait(ctx, d); err != nil {
				// Caller gave up waiting; the attempt already failed.
				return false
			}
		}
	}
	return false
}

// upgradeHash rehashes a legacy credential while the cleartext is at
// hand. Failures leave the stored hash untouched.
func (as *AuthSession) upgradeHash(ctx context.Context, p *Principal, pass string) {
	e := as.engine

	newHash, err := e.hasher.HashModern(pass)
	if err != nil {
		log.Print("castellan: rehashing credential: ", err)
		return
	}
	if err := e.provider.UpdatePasswordHash(ctx, p.ID, newHash); err != nil {
		log.Print("castellan: storing upgraded credential: ", err)
		return
	}
	p.PasswordHash = newHash
}

func (as *AuthSession) resetLocal() {
	as.loggedIn = false
	as.principal = nil
	as.isAdmin = false
}

func (as *AuthSession) setInfos(p *Principal) {
	as.principal = p
	as.loggedIn = true
	as.isAdmin = as.engine.isAdminRoles(p.ID, p.Roles)
}

// rememberCookie bakes the signed remember-me cookie for p.
func (as *AuthSession) rememberCookie(p *Principal, now time.Time) *http.Cookie {
	cfg := as.engine.config.Cookie
	expires := now.Add(cfg.Lifetime)
	return &http.Cookie{
		Name:     cfg.KeyName,
		Value:    as.engine.codec.Bake(expires.Unix(), p.ID, p.Username, p.Salt),
		Path:     cfg.Path,
		Expires:  expires,
		MaxAge:   int(cfg.Lifetime / time.Second),
		Secure:   as.secure || cfg.ForceSecure,
		HttpOnly: cfg.HttpOnly,
		SameSite: cfg.SameSite,
	}
}

// expireRememberCookie queues a deletion cookie so the browser stops
// presenting a stale or revoked value.
func (as *AuthSession) expireRememberCookie() {
	cfg := as.engine.config.Cookie
	as.pending = append(as.pending, &http.Cookie{
		Name:     cfg.KeyName,
		Value:    "",
		Path:     cfg.Path,
		Expires:  time.Unix(1, 0),
		MaxAge:   -1,
		Secure:   as.secure || cfg.ForceSecure,
		HttpOnly: cfg.HttpOnly,
		SameSite: cfg.SameSite,
	})
}
