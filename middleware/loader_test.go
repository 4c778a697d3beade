package middleware

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	castellan "github.com/castellan-dev/castellan"
	"github.com/castellan-dev/castellan/password"
)

type memProvider struct {
	mu   sync.Mutex
	byID map[int64]*castellan.Principal
}

func (p *memProvider) find(match func(*castellan.Principal) bool) (*castellan.Principal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pr := range p.byID {
		if match(pr) {
			cp := *pr
			return &cp, nil
		}
	}
	return nil, castellan.ErrPrincipalNotFound
}

func (p *memProvider) FindByUsername(_ context.Context, username string) (*castellan.Principal, error) {
	return p.find(func(pr *castellan.Principal) bool { return pr.Username == username })
}

func (p *memProvider) FindByEmail(_ context.Context, email string) (*castellan.Principal, error) {
	return p.find(func(pr *castellan.Principal) bool { return pr.Email == email })
}

func (p *memProvider) FindByID(_ context.Context, id int64) (*castellan.Principal, error) {
	return p.find(func(pr *castellan.Principal) bool { return pr.ID == id })
}

func (p *memProvider) RecordLogin(context.Context, int64, time.Time) error { return nil }

func (p *memProvider) RecordFailure(context.Context, int64, time.Time, int) error { return nil }

func (p *memProvider) UpdatePasswordHash(context.Context, int64, string) error { return nil }

func newTestEngine(t *testing.T) *castellan.Engine {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	hasher, err := password.New(password.DefaultArgon2Params())
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}

	cfg := castellan.DefaultConfig()
	cfg.Login.DelayStep = time.Millisecond
	cfg.Login.DelayCeiling = 5 * time.Millisecond

	provider := &memProvider{
		byID: map[int64]*castellan.Principal{
			2: {
				ID:           2,
				Username:     "alice",
				PasswordHash: hasher.Hash("correct-horse", "salt-a"),
				Salt:         "salt-a",
				Roles: []castellan.Role{
					castellan.StaticRole{RoleName: "editor", Grants: []string{"edit"}},
				},
			},
		},
	}

	engine, err := castellan.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithProvider(provider).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func newTestServer(t *testing.T, engine *castellan.Engine) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		as, _ := FromContext(r.Context())
		ok := as.Login(r.Context(), r.FormValue("username"), r.FormValue("password"), r.FormValue("remember") == "1")
		WriteCookies(w, r, engine, as)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, as.Username())
	})
	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		as, _ := FromContext(r.Context())
		as.Logout(r.Context())
		WriteCookies(w, r, engine, as)
	})
	mux.HandleFunc("/whoami", func(w http.ResponseWriter, r *http.Request) {
		as, _ := FromContext(r.Context())
		if !as.IsLoggedIn() {
			fmt.Fprint(w, "anonymous")
			return
		}
		fmt.Fprint(w, as.Username())
	})
	mux.Handle("/edit", RequirePermission("edit")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})))

	srv := httptest.NewServer(Loader(engine)(mux))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar := newCookieJar()
	return &http.Client{Jar: jar}
}

// cookieJar is a minimal jar good enough for a single test host.
type cookieJar struct {
	mu      sync.Mutex
	cookies map[string]*http.Cookie
}

func newCookieJar() *cookieJar {
	return &cookieJar{cookies: map[string]*http.Cookie{}}
}

func (j *cookieJar) SetCookies(_ *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, c := range cookies {
		if c.MaxAge < 0 {
			delete(j.cookies, c.Name)
			continue
		}
		j.cookies[c.Name] = c
	}
}

func (j *cookieJar) Cookies(*url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*http.Cookie, 0, len(j.cookies))
	for _, c := range j.cookies {
		out = append(out, c)
	}
	return out
}

func postForm(t *testing.T, client *http.Client, target string, form url.Values) *http.Response {
	t.Helper()
	resp, err := client.PostForm(target, form)
	if err != nil {
		t.Fatalf("post %s: %v", target, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, client *http.Client, target string) *http.Response {
	t.Helper()
	resp, err := client.Get(target)
	if err != nil {
		t.Fatalf("get %s: %v", target, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(data)
}

func TestLoaderMintsSessionCookie(t *testing.T) {
	engine := newTestEngine(t)
	srv := newTestServer(t, engine)
	client := newClient(t)

	resp := get(t, client, srv.URL+"/whoami")
	if got := body(t, resp); got != "anonymous" {
		t.Fatalf("body: %q", got)
	}

	found := false
	for _, c := range client.Jar.Cookies(nil) {
		if c.Name == engine.Config().Session.IDCookieName {
			found = true
		}
	}
	if !found {
		t.Fatal("session-ID cookie not minted")
	}
}

func TestLoginThenWhoami(t *testing.T) {
	engine := newTestEngine(t)
	srv := newTestServer(t, engine)
	client := newClient(t)

	resp := postForm(t, client, srv.URL+"/login", url.Values{
		"username": {"alice"},
		"password": {"correct-horse"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status: %d", resp.StatusCode)
	}

	resp = get(t, client, srv.URL+"/whoami")
	if got := body(t, resp); got != "alice" {
		t.Fatalf("whoami after login: %q", got)
	}
}

func TestLoginFailure(t *testing.T) {
	engine := newTestEngine(t)
	srv := newTestServer(t, engine)
	client := newClient(t)

	resp := postForm(t, client, srv.URL+"/login", url.Values{
		"username": {"alice"},
		"password": {"wrong"},
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("login status: %d", resp.StatusCode)
	}

	resp = get(t, client, srv.URL+"/whoami")
	if got := body(t, resp); got != "anonymous" {
		t.Fatalf("whoami after failed login: %q", got)
	}
}

func TestRememberMeAcrossSessionLoss(t *testing.T) {
	engine := newTestEngine(t)
	srv := newTestServer(t, engine)
	client := newClient(t)

	postForm(t, client, srv.URL+"/login", url.Values{
		"username": {"alice"},
		"password": {"correct-horse"},
		"remember": {"1"},
	})

	// Simulate losing the server-side session: drop the sid cookie but
	// keep the remember cookie.
	jar := client.Jar.(*cookieJar)
	jar.mu.Lock()
	delete(jar.cookies, engine.Config().Session.IDCookieName)
	jar.mu.Unlock()

	resp := get(t, client, srv.URL+"/whoami")
	if got := body(t, resp); got != "alice" {
		t.Fatalf("whoami via remember cookie: %q", got)
	}
}

func TestLogoutClearsEverything(t *testing.T) {
	engine := newTestEngine(t)
	srv := newTestServer(t, engine)
	client := newClient(t)

	postForm(t, client, srv.URL+"/login", url.Values{
		"username": {"alice"},
		"password": {"correct-horse"},
		"remember": {"1"},
	})
	postForm(t, client, srv.URL+"/logout", nil)

	resp := get(t, client, srv.URL+"/whoami")
	if got := body(t, resp); got != "anonymous" {
		t.Fatalf("whoami after logout: %q", got)
	}

	// The remember cookie must be gone from the jar (deletion cookie).
	for _, c := range client.Jar.Cookies(nil) {
		if c.Name == engine.Config().Cookie.KeyName {
			t.Fatal("remember cookie survived logout")
		}
	}
}

func TestRequirePermission(t *testing.T) {
	engine := newTestEngine(t)
	srv := newTestServer(t, engine)
	client := newClient(t)

	resp := get(t, client, srv.URL+"/edit")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous guard status: %d", resp.StatusCode)
	}

	postForm(t, client, srv.URL+"/login", url.Values{
		"username": {"alice"},
		"password": {"correct-horse"},
	})

	resp = get(t, client, srv.URL+"/edit")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("guard status after login: %d", resp.StatusCode)
	}
}

func TestLoaderFlushesLoadCookies(t *testing.T) {
	engine := newTestEngine(t)
	srv := newTestServer(t, engine)
	client := newClient(t)

	// Plant a forged remember cookie. /whoami never calls WriteCookies,
	// so the Loader itself must emit the deletion.
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	name := engine.Config().Cookie.KeyName
	client.Jar.SetCookies(u, []*http.Cookie{{
		Name:  name,
		Value: "exp=9999999999&id=2&digest=deadbeef",
	}})

	resp := get(t, client, srv.URL+"/whoami")
	if got := body(t, resp); got != "anonymous" {
		t.Fatalf("whoami with forged cookie: %q", got)
	}

	deleted := false
	for _, c := range resp.Cookies() {
		if c.Name == name && c.MaxAge < 0 {
			deleted = true
		}
	}
	if !deleted {
		t.Fatal("forged remember cookie not deleted on a plain GET")
	}
	for _, c := range client.Jar.Cookies(nil) {
		if c.Name == name {
			t.Fatal("forged cookie still in the jar")
		}
	}
}

func TestLoaderRenewsRememberCookieOnPromotion(t *testing.T) {
	engine := newTestEngine(t)
	srv := newTestServer(t, engine)
	client := newClient(t)

	postForm(t, client, srv.URL+"/login", url.Values{
		"username": {"alice"},
		"password": {"correct-horse"},
		"remember": {"1"},
	})

	jar := client.Jar.(*cookieJar)
	jar.mu.Lock()
	delete(jar.cookies, engine.Config().Session.IDCookieName)
	jar.mu.Unlock()

	// Promotion from the cookie happens inside Load; the renewed
	// remember cookie must reach the response without handler help.
	resp := get(t, client, srv.URL+"/whoami")
	if got := body(t, resp); got != "alice" {
		t.Fatalf("whoami via remember cookie: %q", got)
	}
	renewed := false
	for _, c := range resp.Cookies() {
		if c.Name == engine.Config().Cookie.KeyName && c.MaxAge > 0 {
			renewed = true
		}
	}
	if !renewed {
		t.Fatal("promoted session did not renew the remember cookie")
	}
}
