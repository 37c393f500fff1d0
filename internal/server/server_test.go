package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/teamrally/internal/auth"
	"github.com/sakif/teamrally/internal/clock"
	"github.com/sakif/teamrally/internal/config"
	"github.com/sakif/teamrally/internal/handler"
	"github.com/sakif/teamrally/internal/server"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	t   *testing.T
	srv *server.Server
	clk *clock.Fixed
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Port:           8080,
		DBPath:         filepath.Join(t.TempDir(), "teamrally.db"),
		JWTSecret:      []byte("test-secret-0123456789abcdef"),
		TokenTTL:       config.DefaultTokenTTL,
		ScoreAlpha:     1,
		ScoreBeta:      2,
		RankingWorkers: 4,
		RateLimitRPS:   0,
		RateLimitBurst: 1,
		CORSOrigins:    []string{"http://localhost:3000"},
	}
	if mutate != nil {
		mutate(cfg)
	}

	clk := clock.NewFixed(t0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := server.New(context.Background(), cfg, logger,
		server.WithClock(clk),
		server.WithPasswordService(auth.NewPasswordServiceForTest(4)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	return &testEnv{t: t, srv: srv, clk: clk}
}

func (e *testEnv) do(method, path, token, body string) *httptest.ResponseRecorder {
	e.t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "192.0.2.10:4000"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) register(username, password string) {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/api/register", "", `{"username":"`+username+`","password":"`+password+`"}`)
	require.Equal(e.t, http.StatusOK, rr.Code, rr.Body.String())
}

func (e *testEnv) login(username, password string) string {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/api/login", "", `{"username":"`+username+`","password":"`+password+`"}`)
	require.Equal(e.t, http.StatusOK, rr.Code, rr.Body.String())
	var res handler.LoginResponse
	require.NoError(e.t, json.NewDecoder(rr.Body).Decode(&res))
	require.Equal(e.t, "Bearer", res.TokenType)
	return res.Token
}

// user registers and logs in, returning the token.
func (e *testEnv) user(username string) string {
	e.t.Helper()
	e.register(username, "pw-"+username)
	return e.login(username, "pw-"+username)
}

// clearNew marks a user as not new, the way rallyctl set-new does.
func (e *testEnv) clearNew(username string) {
	e.t.Helper()
	ctx := context.Background()
	u, err := e.srv.Store().GetUserByUsername(ctx, username)
	require.NoError(e.t, err)
	require.NoError(e.t, e.srv.Store().SetUserNew(ctx, u.ID, false))
}

func (e *testEnv) createTeam(token, name string) string {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/api/teams", token, `{"name":"`+name+`"}`)
	require.Equal(e.t, http.StatusOK, rr.Code, rr.Body.String())
	var res handler.CreateTeamResponse
	require.NoError(e.t, json.NewDecoder(rr.Body).Decode(&res))
	require.NotEmpty(e.t, res.TeamID)
	return res.TeamID
}

func (e *testEnv) join(token, teamID string) *httptest.ResponseRecorder {
	e.t.Helper()
	return e.do(http.MethodPost, "/api/teams/join", token, `{"team_id":"`+teamID+`"}`)
}

func (e *testEnv) checkIn(token, teamID string) {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/api/checkin", token,
		`{"team_id":"`+teamID+`","post_url":"https://social.example.com/p/1"}`)
	require.Equal(e.t, http.StatusOK, rr.Code, rr.Body.String())
}

func (e *testEnv) rankings() []map[string]any {
	e.t.Helper()
	rr := e.do(http.MethodGet, "/api/rankings", "", "")
	require.Equal(e.t, http.StatusOK, rr.Code, rr.Body.String())
	var res struct {
		Rankings []map[string]any `json:"rankings"`
	}
	require.NoError(e.t, json.NewDecoder(rr.Body).Decode(&res))
	return res.Rankings
}

func errorBody(t *testing.T, rr *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var res handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	return res
}

// =========================================================================
// SCENARIOS
// =========================================================================

func TestScenarioA_NewTeamScoresZero(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.user("alice")
	teamID := env.createTeam(alice, "Red")

	rankings := env.rankings()
	require.Len(t, rankings, 1)
	assert.Equal(t, teamID, rankings[0]["team_id"])
	assert.Equal(t, "Red", rankings[0]["team_name"])
	assert.Equal(t, 0.0, rankings[0]["score"])
}

func TestScenarioB_SpanDecay(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.user("alice")
	carol := env.user("carol")
	env.clearNew("alice")
	env.clearNew("carol")

	teamID := env.createTeam(alice, "Red")
	require.Equal(t, http.StatusOK, env.join(carol, teamID).Code)

	env.checkIn(alice, teamID)
	env.clk.Advance(2 * time.Hour)
	env.checkIn(alice, teamID)

	rankings := env.rankings()
	require.Len(t, rankings, 1)
	assert.InDelta(t, 2.0/3.0, rankings[0]["score"], 1e-9)
}

func TestScenarioC_NewMemberBonus(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.user("alice")
	bob := env.user("bob")
	env.clearNew("alice")

	teamID := env.createTeam(alice, "Red")
	require.Equal(t, http.StatusOK, env.join(bob, teamID).Code)

	env.checkIn(alice, teamID)
	env.clk.Advance(2 * time.Hour)
	env.checkIn(bob, teamID)

	rankings := env.rankings()
	require.Len(t, rankings, 1)
	assert.InDelta(t, 2.0/3.0+2.0, rankings[0]["score"], 1e-9)
}

func TestScenarioD_JoinWithoutTeamID(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.user("alice")

	rr := env.do(http.MethodPost, "/api/teams/join", alice, `{}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	body := errorBody(t, rr)
	assert.Equal(t, "validation_error", body.Error)
	assert.Equal(t, "Team ID is required", body.Message)
}

func TestScenarioE_BasicAuthRejected(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/teams", strings.NewReader(`{"name":"Red"}`))
	req.Header.Set("Authorization", "Basic xxx")
	rr := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	body := errorBody(t, rr)
	assert.Equal(t, "unauthorized", body.Error)
	assert.Equal(t, "unsupported_scheme", body.Reason)
}

// =========================================================================
// PROPERTIES AND EDGE CASES
// =========================================================================

func TestDuplicateJoin(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.user("alice")
	bob := env.user("bob")
	teamID := env.createTeam(alice, "Red")

	require.Equal(t, http.StatusOK, env.join(bob, teamID).Code)

	rr := env.join(bob, teamID)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "User is already a team member", errorBody(t, rr).Message)

	// The creator is already a member too.
	assert.Equal(t, http.StatusBadRequest, env.join(alice, teamID).Code)
}

func TestJoinUnknownTeam(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.user("alice")

	rr := env.join(alice, "d0000000000000000000")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Team not found", errorBody(t, rr).Message)
}

func TestDuplicateRegistration(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register("alice", "pw1")

	rr := env.do(http.MethodPost, "/api/register", "", `{"username":"alice","password":"pw2"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	body := errorBody(t, rr)
	assert.Equal(t, "conflict", body.Error)
	assert.Equal(t, "Username already exists", body.Message)
}

func TestConcurrentRegistration_OneWins(t *testing.T) {
	env := newTestEnv(t, nil)

	const n = 8
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/register",
				strings.NewReader(`{"username":"racer","password":"pw"}`))
			rr := httptest.NewRecorder()
			env.srv.Handler().ServeHTTP(rr, req)
			codes[i] = rr.Code
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, c := range codes {
		if c == http.StatusOK {
			ok++
		} else {
			assert.Equal(t, http.StatusBadRequest, c)
		}
	}
	assert.Equal(t, 1, ok)
}

func TestLogin_WrongPasswordAndUnknownUserLookAlike(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register("alice", "pw1")

	wrong := env.do(http.MethodPost, "/api/login", "", `{"username":"alice","password":"nope"}`)
	unknown := env.do(http.MethodPost, "/api/login", "", `{"username":"mallory","password":"nope"}`)

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
}

func TestTokenExpiresAfterTTL(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.user("alice")

	env.clk.Advance(24*time.Hour - time.Second)
	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/teams", alice, `{"name":"Red"}`).Code)

	env.clk.Advance(time.Second)
	rr := env.do(http.MethodPost, "/api/teams", alice, `{"name":"Blue"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "token_expired", errorBody(t, rr).Reason)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/api/teams", "/api/teams/join", "/api/checkin"} {
		rr := env.do(http.MethodPost, path, "", `{}`)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
		assert.Equal(t, "malformed_auth_header", errorBody(t, rr).Reason, path)
	}

	rr := env.do(http.MethodPost, "/api/teams", "not.a.jwt", `{"name":"Red"}`)
	assert.Equal(t, "invalid_token", errorBody(t, rr).Reason)
}

func TestRankings_OrderAndLimit(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.user("alice")
	env.clearNew("alice")

	quiet := env.createTeam(alice, "Quiet")
	busy := env.createTeam(alice, "Busy")
	env.checkIn(alice, busy)
	_ = quiet

	rankings := env.rankings()
	require.Len(t, rankings, 2)
	assert.Equal(t, "Busy", rankings[0]["team_name"])
	assert.Equal(t, 1.0, rankings[0]["score"])
	assert.Equal(t, "Quiet", rankings[1]["team_name"])

	rr := env.do(http.MethodGet, "/api/rankings?limit=1", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, strings.Count(rr.Body.String(), "team_id"))

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/rankings?limit=0", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/rankings?limit=101", "", "").Code)
}

func TestCheckInUnknownTeam(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.user("alice")

	rr := env.do(http.MethodPost, "/api/checkin", alice, `{"team_id":"nope","post_url":"https://x.example/1"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// =========================================================================
// AMBIENT ROUTES
// =========================================================================

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.user("alice")
	env.do(http.MethodPost, "/api/teams", "", `{}`)

	rr := env.do(http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `teamrally_events_total{event="register"} 1`)
	assert.Contains(t, body, `teamrally_auth_failures_total{reason="malformed_auth_header"} 1`)
	assert.Contains(t, body, `route="/api/register"`)
}

func TestRateLimiting(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.RateLimitRPS = 0.001
		c.RateLimitBurst = 2
	})

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/rankings", "", "").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/rankings", "", "").Code)

	rr := env.do(http.MethodGet, "/api/rankings", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "rate_limited", errorBody(t, rr).Error)

	// Health checks are outside /api and never limited.
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/healthz", "", "").Code)
}

// A load run fires every request from one host. The default configuration
// must serve all of it.
func TestDefaultConfig_ServesBurstFromOneClient(t *testing.T) {
	defaults, err := config.FromLookup(func(string) string { return "" })
	require.NoError(t, err)
	env := newTestEnv(t, func(c *config.Config) {
		c.RateLimitRPS = defaults.RateLimitRPS
		c.RateLimitBurst = defaults.RateLimitBurst
	})

	const n = 200
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = env.do(http.MethodGet, "/api/rankings", "", "").Code
		}(i)
	}
	wg.Wait()

	for i, c := range codes {
		require.Equal(t, http.StatusOK, c, "request %d", i)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/teams", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestStartAndShutdown(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Port = 0 })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.srv.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
