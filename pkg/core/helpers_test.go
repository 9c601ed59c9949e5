package core

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/joeydtaylor/steeze-lua/pkg/manifest"
	"github.com/joeydtaylor/steeze-lua/pkg/script"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const prelude = `
local app = require("steeze")
app.create_app()
`

type fixture struct {
	srv  *Server
	url  string
	logs *observer.ObservedLogs
}

func testConfig() manifest.Config {
	cfg := manifest.Default()
	cfg.Server.UnterminatedTimeoutMS = 200
	cfg.Log.Console = false
	return cfg
}

// start runs src (after the prelude) and serves the resulting app.
func start(t *testing.T, src string, mutate ...func(*manifest.Config)) *fixture {
	t.Helper()
	return startWith(t, Deps{}, src, mutate...)
}

func startWith(t *testing.T, deps Deps, src string, mutate ...func(*manifest.Config)) *fixture {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	obs, logs := observer.New(zapcore.DebugLevel)
	s := NewServer(cfg, deps, zap.New(obs))
	require.NoError(t, s.RunString(prelude+src))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return &fixture{srv: s, url: ts.URL, logs: logs}
}

// global reads a script global under the guard.
func (f *fixture) global(name string) lua.LValue {
	var v lua.LValue
	f.srv.Interpreter().Enter(func(c *script.Call) { v = c.State().GetGlobal(name) })
	return v
}

type reply struct {
	status int
	header http.Header
	body   string
}

func do(t *testing.T, req *http.Request) (reply, error) {
	t.Helper()
	client := &http.Client{
		Timeout:   3 * time.Second,
		Transport: &http.Transport{DisableKeepAlives: true},
	}
	resp, err := client.Do(req)
	if err != nil {
		return reply{}, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	return reply{status: resp.StatusCode, header: resp.Header, body: string(b)}, err
}

func get(t *testing.T, url string) reply {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	r, err := do(t, req)
	require.NoError(t, err)
	return r
}

func send(t *testing.T, method, url, body string) reply {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	r, err := do(t, req)
	require.NoError(t, err)
	return r
}

func newTestHTTPServer(t *testing.T, s *Server) string {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}
