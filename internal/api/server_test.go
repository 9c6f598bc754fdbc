package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/terra-clan/memgame/internal/auth"
	"github.com/terra-clan/memgame/internal/catalog"
	"github.com/terra-clan/memgame/internal/config"
	"github.com/terra-clan/memgame/internal/game"
	"github.com/terra-clan/memgame/internal/health"
	"github.com/terra-clan/memgame/internal/models"
	"github.com/terra-clan/memgame/internal/profile"
	"github.com/terra-clan/memgame/internal/storage/storagetest"
)

const (
	testSecret     = "api-test-secret-0123456789"
	testCookieName = "memgame_session"
	testPassword   = "s3cret-pass"
)

type testEnv struct {
	server *httptest.Server
	repo   *storagetest.Memory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithOrigins(t, "*")
}

func newTestEnvWithOrigins(t *testing.T, origins ...string) *testEnv {
	t.Helper()

	repo := storagetest.NewMemory()
	revoker := auth.NewMemoryRevoker()
	t.Cleanup(revoker.Stop)

	accounts := auth.NewService(repo, auth.NewPasswordHasher(bcrypt.MinCost), auth.NewTokenManager(testSecret, time.Hour), revoker)
	cat := catalog.Default()
	agg := profile.NewAggregator(repo)
	games := game.NewManager(repo, cat, agg)

	registry := health.NewRegistry()
	registry.Register("postgres", health.CheckerFunc(repo.Ping))

	srv := NewServer(
		config.ServerConfig{CORSAllowedOrigins: origins},
		config.AuthConfig{CookieName: testCookieName},
		games, cat, agg, accounts, registry,
	)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, repo: repo}
}

// newClient returns a cookie-keeping client that does not follow redirects
func (e *testEnv) newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (e *testEnv) do(t *testing.T, c *http.Client, method, path, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) postForm(t *testing.T, c *http.Client, path string, values url.Values) *http.Response {
	t.Helper()
	resp, err := c.PostForm(e.server.URL+path, values)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// loggedIn registers a player and returns a client carrying its cookie
func (e *testEnv) loggedIn(t *testing.T, username string) *http.Client {
	t.Helper()
	c := e.newClient(t)
	resp := e.postForm(t, c, registerPath, url.Values{
		"username":  {username},
		"password1": {testPassword},
		"password2": {testPassword},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, selectLevelPath, resp.Header.Get("Location"))
	return c
}

func (e *testEnv) startGame(t *testing.T, c *http.Client, level string) models.StartGameResponse {
	t.Helper()
	resp := e.do(t, c, http.MethodGet, "/game/"+level, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decodeData[models.StartGameResponse](t, resp)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func decodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	env := decodeEnvelope(t, resp)
	require.True(t, env.Success, "error: %+v", env.Error)

	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	c := env.newClient(t)

	resp := env.do(t, c, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, c, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReadyReportsFailedChecks(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.repo.SetPingErr(errors.New("connection refused"))

	resp := env.do(t, env.newClient(t), http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	body := decodeEnvelope(t, resp)
	assert.False(t, body.Success)
	require.NotNil(t, body.Error)
	assert.Equal(t, "not_ready", body.Error.Code)
	assert.Contains(t, string(body.Data), "connection refused")
}

func TestProtectedRoutesNeedLogin(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	c := env.newClient(t)

	for _, path := range []string{selectLevelPath, profilePath, "/game/basico"} {
		resp := env.do(t, c, http.MethodGet, path, "")
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode, path)
		assert.Equal(t, "/?next="+url.QueryEscape(path), resp.Header.Get("Location"), path)
	}

	resp := env.do(t, c, http.MethodPost, movePath, `{"session_id":1}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, c, http.MethodPost, "/game/end/1", `{"result":"win","time_used":1}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterLoginLogout(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	c := env.loggedIn(t, "alice")

	resp := env.do(t, c, http.MethodGet, selectLevelPath, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	levels := decodeData[struct {
		Levels []models.LevelInfo `json:"levels"`
		Total  int                `json:"total"`
	}](t, resp)
	require.Equal(t, 3, levels.Total)
	assert.Equal(t, "Básico", levels.Levels[0].Name)
	assert.Equal(t, "/game/basico", levels.Levels[0].URL)
	assert.Equal(t, 16, levels.Levels[2].CardCount)

	resp = env.do(t, c, http.MethodPost, logoutPath, "")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, loginPath, resp.Header.Get("Location"))

	resp = env.do(t, c, http.MethodGet, profilePath, "")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	// log back in through the JSON body, honouring next
	resp = env.do(t, c, http.MethodPost, loginPath, `{"username":"alice","password":"`+testPassword+`","next":"/profile"}`)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, profilePath, resp.Header.Get("Location"))

	resp = env.do(t, c, http.MethodGet, profilePath, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogoutRevokesBearerToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	c := env.loggedIn(t, "alice")

	u, err := url.Parse(env.server.URL)
	require.NoError(t, err)
	var token string
	for _, cookie := range c.Jar.Cookies(u) {
		if cookie.Name == testCookieName {
			token = cookie.Value
		}
	}
	require.NotEmpty(t, token)

	bearer := func() int {
		req, err := http.NewRequest(http.MethodGet, env.server.URL+selectLevelPath, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := env.newClient(t).Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, bearer())
	env.do(t, c, http.MethodPost, logoutPath, "")
	assert.Equal(t, http.StatusSeeOther, bearer())
}

func TestLoginRejects(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.loggedIn(t, "alice")
	c := env.newClient(t)

	resp := env.postForm(t, c, loginPath, url.Values{"username": {"alice"}, "password": {"wrong-pass"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_credentials", decodeEnvelope(t, resp).Error.Code)

	resp = env.postForm(t, c, loginPath, url.Values{"username": {"alice"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, c, http.MethodPost, loginPath, `{"username":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoginNextMustBeLocal(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.loggedIn(t, "alice")

	tests := []struct {
		next     string
		location string
	}{
		{"", selectLevelPath},
		{"/profile", profilePath},
		{"/game/medio", "/game/medio"},
		{"//evil.example", selectLevelPath},
		{"https://evil.example/", selectLevelPath},
		{"/\\evil.example", selectLevelPath},
	}

	for _, tt := range tests {
		c := env.newClient(t)
		resp := env.postForm(t, c, loginPath+"?next="+url.QueryEscape(tt.next), url.Values{
			"username": {"alice"},
			"password": {testPassword},
		})
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode, tt.next)
		assert.Equal(t, tt.location, resp.Header.Get("Location"), tt.next)
	}
}

func TestLoginFormEchoesNext(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	resp := env.do(t, env.newClient(t), http.MethodGet, "/?next=%2Fprofile", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	form := decodeData[loginForm](t, resp)
	assert.Equal(t, profilePath, form.Next)
	assert.Equal(t, registerPath, form.RegisterURL)
}

func TestRegisterRejects(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.loggedIn(t, "alice")
	c := env.newClient(t)

	resp := env.postForm(t, c, registerPath, url.Values{
		"username": {"alice"}, "password1": {testPassword}, "password2": {testPassword},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.postForm(t, c, registerPath, url.Values{
		"username": {"bob"}, "password1": {testPassword}, "password2": {"different-pass"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", decodeEnvelope(t, resp).Error.Code)

	resp = env.do(t, c, http.MethodPost, registerPath, `{"username":"bob","password1":"12345678","password2":"12345678"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartGame(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	c := env.loggedIn(t, "alice")

	started := env.startGame(t, c, "basico")
	assert.Equal(t, "Básico", started.Level)
	assert.Equal(t, "basico", started.LevelSlug)
	assert.Equal(t, 10, started.InitialAttempts)
	assert.Equal(t, 60, started.GameTimeLimit)
	assert.Len(t, started.Cards, 8)
	assert.NotZero(t, started.GameSessionID)
	assert.Equal(t, movePath, started.MoveURL)
	assert.Equal(t, endPath(started.GameSessionID), started.EndURL)
	assert.Equal(t, livePath(started.GameSessionID), started.LiveURL)

	byName := env.startGame(t, c, url.PathEscape("Avanzado"))
	assert.Len(t, byName.Cards, 16)
	assert.NotEqual(t, started.GameSessionID, byName.GameSessionID)

	resp := env.do(t, c, http.MethodGet, "/game/experto", "")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, selectLevelPath, resp.Header.Get("Location"))
}

func TestMove(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	alice := env.loggedIn(t, "alice")
	bob := env.loggedIn(t, "bob")
	started := env.startGame(t, alice, "medio")
	id := started.GameSessionID

	tests := []struct {
		name   string
		client *http.Client
		body   string
		status int
	}{
		{"ack", alice, `{"session_id":` + jsonInt(id) + `}`, http.StatusOK},
		{"string id", alice, `{"session_id":"` + jsonInt(id) + `"}`, http.StatusOK},
		{"missing id", alice, `{}`, http.StatusBadRequest},
		{"null id", alice, `{"session_id":null}`, http.StatusBadRequest},
		{"fractional id", alice, `{"session_id":1.5}`, http.StatusBadRequest},
		{"zero id", alice, `{"session_id":0}`, http.StatusBadRequest},
		{"negative id", alice, `{"session_id":-3}`, http.StatusBadRequest},
		{"empty string id", alice, `{"session_id":""}`, http.StatusBadRequest},
		{"malformed", alice, `{"session_id":`, http.StatusBadRequest},
		{"empty", alice, ``, http.StatusBadRequest},
		{"foreign", bob, `{"session_id":` + jsonInt(id) + `}`, http.StatusNotFound},
		{"unknown", alice, `{"session_id":999999}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		resp := env.do(t, tt.client, http.MethodPost, movePath, tt.body)
		assert.Equal(t, tt.status, resp.StatusCode, tt.name)

		body := decodeBody[models.StatusResponse](t, resp)
		if tt.status == http.StatusOK {
			assert.Equal(t, statusSuccess, body.Status, tt.name)
		} else {
			assert.Equal(t, statusError, body.Status, tt.name)
		}
	}
}

func TestEndGame(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	c := env.loggedIn(t, "alice")
	started := env.startGame(t, c, "basico")
	path := endPath(started.GameSessionID)

	resp := env.do(t, c, http.MethodPost, path, `{"result":"win","level":"Básico","time_used":30,"attempts_left":4}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[models.EndGameResponse](t, resp)
	assert.Equal(t, statusSuccess, body.Status)
	assert.True(t, body.IsWon)
	assert.Equal(t, 30, body.Duration)
	assert.Equal(t, started.GameSessionID, body.SessionID)
	require.NotNil(t, body.NextLevel)
	assert.Equal(t, "Medio", *body.NextLevel)
	require.NotNil(t, body.NextLevelURL)
	assert.Equal(t, "/game/medio", *body.NextLevelURL)
	assert.True(t, body.StatsUpdated)
	assert.Equal(t, "Level Básico cleared. Preparing Medio...", body.Message)

	resp = env.do(t, c, http.MethodPost, path, `{"result":"lose","time_used":99}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestEndGameLegacyLoss(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	c := env.loggedIn(t, "alice")
	started := env.startGame(t, c, "avanzado")

	resp := env.do(t, c, http.MethodPost, endPath(started.GameSessionID), `{"is_won":false,"duration":90}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var raw map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.Equal(t, false, raw["is_won"])
	assert.Equal(t, float64(90), raw["duration"])
	assert.Nil(t, raw["next_level"])
	assert.Nil(t, raw["next_level_url"])
	assert.Contains(t, raw, "next_level")
}

func TestEndGameLastLevel(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	c := env.loggedIn(t, "alice")
	started := env.startGame(t, c, "avanzado")

	resp := env.do(t, c, http.MethodPost, endPath(started.GameSessionID), `{"result":"win","time_used":70}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[models.EndGameResponse](t, resp)
	assert.Nil(t, body.NextLevel)
	require.NotNil(t, body.NextLevelURL)
	assert.Equal(t, profilePath, *body.NextLevelURL)
	assert.Equal(t, "All levels completed!", body.Message)
}

func TestEndGameRejects(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	alice := env.loggedIn(t, "alice")
	bob := env.loggedIn(t, "bob")
	started := env.startGame(t, alice, "basico")
	path := endPath(started.GameSessionID)

	tests := []struct {
		name   string
		client *http.Client
		method string
		path   string
		body   string
		status int
	}{
		{"malformed", alice, http.MethodPost, path, `{"result":`, http.StatusBadRequest},
		{"missing data", alice, http.MethodPost, path, `{"result":"win"}`, http.StatusBadRequest},
		{"empty body", alice, http.MethodPost, path, ``, http.StatusBadRequest},
		{"time_used not a number", alice, http.MethodPost, path, `{"result":"win","time_used":"abc"}`, http.StatusBadRequest},
		{"time_used beyond int4", alice, http.MethodPost, path, `{"result":"win","time_used":3000000000}`, http.StatusBadRequest},
		{"duration overflow", alice, http.MethodPost, path, `{"is_won":true,"duration":1e20}`, http.StatusBadRequest},
		{"foreign", bob, http.MethodPost, path, `{"result":"win","time_used":3}`, http.StatusNotFound},
		{"unknown", alice, http.MethodPost, "/game/end/999999", `{"result":"win","time_used":3}`, http.StatusNotFound},
		{"bad id", alice, http.MethodPost, "/game/end/abc", `{"result":"win","time_used":3}`, http.StatusNotFound},
		{"get", alice, http.MethodGet, path, ``, http.StatusMethodNotAllowed},
		{"put", alice, http.MethodPut, path, `{"result":"win","time_used":3}`, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		resp := env.do(t, tt.client, tt.method, tt.path, tt.body)
		assert.Equal(t, tt.status, resp.StatusCode, tt.name)
		assert.Equal(t, statusError, decodeBody[models.StatusResponse](t, resp).Status, tt.name)
	}

	// none of the rejected attempts touched the session
	resp := env.do(t, alice, http.MethodPost, path, `{"is_won":true,"duration":12}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEndGameIgnoresFieldsOfOtherShape(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	c := env.loggedIn(t, "alice")

	started := env.startGame(t, c, "basico")
	resp := env.do(t, c, http.MethodPost, endPath(started.GameSessionID), `{"result":"win","time_used":20,"duration":"abc"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 20, decodeBody[models.EndGameResponse](t, resp).Duration)

	started = env.startGame(t, c, "basico")
	resp = env.do(t, c, http.MethodPost, endPath(started.GameSessionID), `{"is_won":false,"duration":45,"time_used":"abc"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[models.EndGameResponse](t, resp)
	assert.False(t, body.IsWon)
	assert.Equal(t, 45, body.Duration)
}

func TestEndGameStatsRefreshFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	c := env.loggedIn(t, "alice")
	started := env.startGame(t, c, "basico")
	env.repo.SetFailProfileSave(true)

	resp := env.do(t, c, http.MethodPost, endPath(started.GameSessionID), `{"result":"win","time_used":30}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[models.EndGameResponse](t, resp)
	assert.True(t, body.IsWon)
	assert.False(t, body.StatsUpdated)

	resp = env.do(t, c, http.MethodGet, profilePath, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	p := decodeData[models.ProfileResponse](t, resp)
	assert.True(t, p.StatsStale)
	assert.Len(t, p.GameHistory, 1)
}

func TestProfile(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	c := env.loggedIn(t, "alice")

	rounds := []struct {
		level string
		body  string
	}{
		{"basico", `{"result":"win","time_used":30}`},
		{"basico", `{"result":"lose","time_used":45}`},
		{"medio", `{"is_won":true,"duration":50}`},
	}
	for _, round := range rounds {
		started := env.startGame(t, c, round.level)
		resp := env.do(t, c, http.MethodPost, endPath(started.GameSessionID), round.body)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	open := env.startGame(t, c, "avanzado")

	resp := env.do(t, c, http.MethodGet, profilePath, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	p := decodeData[models.ProfileResponse](t, resp)

	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, 3, p.Profile.GamesPlayed)
	assert.Equal(t, 2, p.Profile.TotalWins)
	assert.Equal(t, 1, p.Profile.TotalLosses)
	assert.InDelta(t, 125.0/3, p.Profile.AvgDuration, 1e-9)
	assert.Equal(t, "Básico", p.Profile.MostPlayedLevel)
	assert.False(t, p.StatsStale)

	require.Len(t, p.GameHistory, 4)
	for i := 1; i < len(p.GameHistory); i++ {
		assert.False(t, p.GameHistory[i].StartTime.After(p.GameHistory[i-1].StartTime), "history is newest first")
	}
	var openView *models.SessionView
	for i := range p.GameHistory {
		if p.GameHistory[i].ID == open.GameSessionID {
			openView = &p.GameHistory[i]
		}
	}
	require.NotNil(t, openView)
	assert.Equal(t, models.OutcomeUnknown, openView.Outcome)
}

func TestNewPlayerProfile(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	c := env.loggedIn(t, "alice")

	resp := env.do(t, c, http.MethodGet, profilePath, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	p := decodeData[models.ProfileResponse](t, resp)
	assert.Zero(t, p.Profile.GamesPlayed)
	assert.Equal(t, 0.0, p.Profile.AvgDuration)
	assert.Equal(t, models.NoLevelPlayed, p.Profile.MostPlayedLevel)
	assert.Empty(t, p.GameHistory)
}

func TestNotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	resp := env.do(t, env.newClient(t), http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
