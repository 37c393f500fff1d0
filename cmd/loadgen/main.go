// Command loadgen drives a running teamrally server with a ramping mix of
// registrations, team creation, joins and check-ins.
//
// Every round issues 10 + 90×progress concurrent requests. Early rounds
// mostly register users and build teams; later rounds are dominated by
// check-ins. One round in ten also prints the top five teams.
//
//	loadgen -url http://localhost:8080 -duration 5m
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

type activity int

const (
	actRegister activity = iota
	actCreateTeam
	actJoinTeam
	actCheckIn
)

var activityNames = [...]string{"register", "create_team", "join_team", "checkin"}

func (a activity) String() string { return activityNames[a] }

const loadPassword = "testpass123"

// activityWeights returns the relative odds of each activity at progress p
// in [0, 1]. Check-ins grow from 60% to 100% of the mix.
func activityWeights(p float64) [4]float64 {
	return [4]float64{
		10 * (1 - p),
		10 * (1 - p),
		20 * (1 - p),
		60 * (1 + p),
	}
}

// concurrency is the number of requests in a round at progress p.
func concurrency(p float64) int {
	return int(10 + 90*p)
}

type opStats struct {
	ok, failed atomic.Int64
}

type generator struct {
	client   *http.Client
	baseURL  string
	logger   *slog.Logger
	maxTeams int

	mu     sync.Mutex
	rng    *rand.Rand
	tokens map[string]string // username → bearer token
	teams  map[string]string // team name → team id

	stats  [4]opStats
	rounds int
}

func newGenerator(baseURL string, maxTeams int, seed uint64, logger *slog.Logger) *generator {
	return &generator{
		client:   &http.Client{Timeout: 10 * time.Second},
		baseURL:  baseURL,
		logger:   logger,
		maxTeams: maxTeams,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		tokens:   make(map[string]string),
		teams:    make(map[string]string),
	}
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base URL")
	duration := flag.Duration("duration", 30*time.Minute, "how long to run")
	maxTeams := flag.Int("max-teams", 1000, "upper bound on distinct team names")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g := newGenerator(*baseURL, *maxTeams, *seed, logger)
	logger.Info("starting load test", slog.String("url", *baseURL), slog.Duration("duration", *duration))
	g.run(ctx, *duration)
	g.logSummary()
}

// run issues rounds until duration elapses or ctx is cancelled.
func (g *generator) run(ctx context.Context, duration time.Duration) {
	start := time.Now()
	end := start.Add(duration)

	for time.Now().Before(end) && ctx.Err() == nil {
		progress := float64(time.Since(start)) / float64(duration)
		if progress > 1 {
			progress = 1
		}

		// Rounds that issue nothing still pause so an empty pool cannot spin.
		if g.round(ctx, progress) > 0 && g.chance(0.1) {
			g.logTopTeams(ctx)
		}
		g.rounds++
		select {
		case <-time.After(g.pause()):
		case <-ctx.Done():
		}

		g.mu.Lock()
		users, teams := len(g.tokens), len(g.teams)
		g.mu.Unlock()
		g.logger.Info("progress",
			slog.Int("percent", int(progress*100)),
			slog.Int("users", users),
			slog.Int("teams", teams),
		)
	}
}

// round runs one batch of concurrent requests and returns how many were
// issued. Activities that need a user or a team are skipped until one
// exists.
func (g *generator) round(ctx context.Context, progress float64) int {
	var eg errgroup.Group
	issued := 0

	for i := 0; i < concurrency(progress); i++ {
		act := g.pick(progress)
		var fn func(context.Context) bool

		switch act {
		case actRegister:
			fn = g.registerUser
		case actCreateTeam:
			user, ok := g.randomUser()
			if !ok {
				continue
			}
			fn = func(ctx context.Context) bool { return g.createTeam(ctx, user) }
		case actJoinTeam, actCheckIn:
			user, uok := g.randomUser()
			team, tok := g.randomTeam()
			if !uok || !tok {
				continue
			}
			if act == actJoinTeam {
				fn = func(ctx context.Context) bool { return g.joinTeam(ctx, user, team) }
			} else {
				fn = func(ctx context.Context) bool { return g.checkIn(ctx, user, team) }
			}
		}

		issued++
		eg.Go(func() error {
			if fn(ctx) {
				g.stats[act].ok.Add(1)
			} else {
				g.stats[act].failed.Add(1)
			}
			return nil
		})
	}

	_ = eg.Wait()
	return issued
}

func (g *generator) pick(progress float64) activity {
	w := activityWeights(progress)
	total := w[0] + w[1] + w[2] + w[3]

	g.mu.Lock()
	r := g.rng.Float64() * total
	g.mu.Unlock()

	for i, wi := range w {
		if r < wi {
			return activity(i)
		}
		r -= wi
	}
	return actCheckIn
}

func (g *generator) chance(p float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64() < p
}

func (g *generator) intN(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.IntN(n)
}

// pause is a random 100–500ms gap between rounds.
func (g *generator) pause() time.Duration {
	return 100*time.Millisecond + time.Duration(g.intN(401))*time.Millisecond
}

func (g *generator) randomUser() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return randomKey(g.rng, g.tokens)
}

func (g *generator) randomTeam() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return randomKey(g.rng, g.teams)
}

func randomKey(rng *rand.Rand, m map[string]string) (string, bool) {
	if len(m) == 0 {
		return "", false
	}
	n := rng.IntN(len(m))
	for k := range m {
		if n == 0 {
			return k, true
		}
		n--
	}
	return "", false
}

// registerUser registers a random username and logs it in. A name that is
// already registered counts as success: every load user shares one
// password, so a concurrent registration of the same name still logs in.
func (g *generator) registerUser(ctx context.Context) bool {
	username := fmt.Sprintf("user_%d", 1+g.intN(g.maxTeams*3))

	g.mu.Lock()
	_, known := g.tokens[username]
	g.mu.Unlock()
	if known {
		return true
	}

	creds := map[string]string{"username": username, "password": loadPassword}
	status, err := g.post(ctx, "/api/register", "", creds, nil)
	if err != nil || (status != http.StatusOK && status != http.StatusBadRequest) {
		g.logFailure("register", username, status, err)
		return false
	}

	var login struct {
		Token string `json:"token"`
	}
	if status, err := g.post(ctx, "/api/login", "", creds, &login); err != nil || status != http.StatusOK {
		g.logFailure("login", username, status, err)
		return false
	}

	g.mu.Lock()
	g.tokens[username] = login.Token
	g.mu.Unlock()
	g.logger.Debug("registered user", slog.String("username", username))
	return true
}

func (g *generator) createTeam(ctx context.Context, username string) bool {
	name := fmt.Sprintf("Team_%d", 1+g.intN(g.maxTeams*2))

	g.mu.Lock()
	_, known := g.teams[name]
	token := g.tokens[username]
	g.mu.Unlock()
	if known {
		return true
	}

	var res struct {
		TeamID string `json:"team_id"`
	}
	status, err := g.post(ctx, "/api/teams", token, map[string]string{"name": name}, &res)
	if err != nil || status != http.StatusOK {
		g.logFailure("create_team", name, status, err)
		return false
	}

	g.mu.Lock()
	g.teams[name] = res.TeamID
	g.mu.Unlock()
	g.logger.Debug("created team", slog.String("team", name))
	return true
}

// joinTeam treats "already a member" as success; the mix picks members at
// random, so repeats are expected.
func (g *generator) joinTeam(ctx context.Context, username, team string) bool {
	g.mu.Lock()
	token, teamID := g.tokens[username], g.teams[team]
	g.mu.Unlock()

	status, err := g.post(ctx, "/api/teams/join", token, map[string]string{"team_id": teamID}, nil)
	if err != nil || (status != http.StatusOK && status != http.StatusBadRequest) {
		g.logFailure("join_team", team, status, err)
		return false
	}
	return true
}

func (g *generator) checkIn(ctx context.Context, username, team string) bool {
	g.mu.Lock()
	token, teamID := g.tokens[username], g.teams[team]
	g.mu.Unlock()

	body := map[string]string{
		"team_id":  teamID,
		"post_url": fmt.Sprintf("https://social.example.com/post_%d", 1000+g.intN(9000)),
	}
	status, err := g.post(ctx, "/api/checkin", token, body, nil)
	if err != nil || status != http.StatusOK {
		g.logFailure("checkin", team, status, err)
		return false
	}
	return true
}

type rankingsResponse struct {
	Rankings []struct {
		TeamID   string  `json:"team_id"`
		TeamName string  `json:"team_name"`
		Score    float64 `json:"score"`
	} `json:"rankings"`
}

func (g *generator) fetchRankings(ctx context.Context, limit int) (*rankingsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/rankings?limit=%d", g.baseURL, limit), nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rankings: status %d", resp.StatusCode)
	}
	var out rankingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("rankings: decoding: %w", err)
	}
	return &out, nil
}

func (g *generator) logTopTeams(ctx context.Context) {
	res, err := g.fetchRankings(ctx, 5)
	if err != nil {
		g.logger.Error("fetching rankings", slog.String("error", err.Error()))
		return
	}
	for i, t := range res.Rankings {
		g.logger.Info("top team",
			slog.Int("rank", i+1),
			slog.String("team", t.TeamName),
			slog.String("score", fmt.Sprintf("%.2f", t.Score)),
		)
	}
}

func (g *generator) logSummary() {
	for i := range g.stats {
		g.logger.Info("load test summary",
			slog.String("activity", activity(i).String()),
			slog.Int64("ok", g.stats[i].ok.Load()),
			slog.Int64("failed", g.stats[i].failed.Load()),
		)
	}
}

func (g *generator) logFailure(op, subject string, status int, err error) {
	attrs := []any{slog.String("op", op), slog.String("subject", subject), slog.Int("status", status)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	g.logger.Warn("request failed", attrs...)
}

// post sends body as JSON and decodes a 200 response into out when out is
// non-nil. It returns the status code.
func (g *generator) post(ctx context.Context, path, token string, body, out any) (int, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding %s response: %w", path, err)
		}
		return resp.StatusCode, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
