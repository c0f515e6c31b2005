package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storefront/internal/adapters/in/http/middleware"
	httpout "storefront/internal/adapters/out/http"
	"storefront/internal/client/cartstate"
	appcfg "storefront/internal/infra/config"
	mallDI "storefront/internal/platform/di/mall"
	shared "storefront/internal/platform/di/shared"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "cartsync", cmd.Use)
}

func TestRootCommand_ServiceHasTimeout(t *testing.T) {
	svc, ok := newCartService("http://localhost:8080").(*httpout.CartServiceClient)
	require.True(t, ok)
	assert.Equal(t, httpout.DefaultTimeout, svc.Timeout())
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"show", "add", "set", "remove", "login", "logout", "sync", "retry"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	login, _, err := cmd.Find([]string{"login"})
	require.NoError(t, err)
	assert.NotNil(t, login.Flags().Lookup("token"))
}

// ------------------------------------------------------------
// against a live in-memory Cart Service
// ------------------------------------------------------------

type tab struct {
	t      *testing.T
	server *httptest.Server
	state  string
}

func newTab(t *testing.T) *tab {
	t.Helper()

	cfg := appcfg.Default()
	cfg.CartStore = appcfg.StoreMemory
	cfg.AuthDevTokens = true
	cfg.ProductStock = map[string]int{"p1": 10, "p2": 10}

	cont, err := mallDI.NewContainer(context.Background(), &shared.Infra{Config: cfg, Log: zap.NewNop()})
	require.NoError(t, err)

	mux := http.NewServeMux()
	mallDI.Register(mux, cont)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &tab{t: t, server: srv, state: filepath.Join(t.TempDir(), "tab.yaml")}
}

func (tb *tab) run(args ...string) (string, error) {
	tb.t.Helper()
	opts := &RootOptions{
		NewService: func(baseURL string) cartstate.CartService {
			return httpout.NewCartServiceClient(baseURL, tb.server.Client())
		},
	}
	var out, errOut bytes.Buffer
	full := append([]string{"--state", tb.state, "--server", tb.server.URL}, args...)
	err := Execute(context.Background(), newRootCommand(opts), full, &out, &errOut)
	return out.String(), err
}

func (tb *tab) runJSON(args ...string) stateView {
	tb.t.Helper()
	out, err := tb.run(append([]string{"--format", "json"}, args...)...)
	require.NoError(tb.t, err, out)
	var v stateView
	require.NoError(tb.t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func quantities(v stateView) map[string]int {
	out := map[string]int{}
	for _, it := range v.Items {
		out[it.ProductID] = it.Quantity
	}
	return out
}

func TestCLI_GuestCartMergedOnLogin(t *testing.T) {
	tb := newTab(t)

	v := tb.runJSON("add", "p1", "2")
	assert.Equal(t, 2, v.TotalItems)
	require.NotEmpty(t, v.GuestSession)

	v = tb.runJSON("add", "p2")
	assert.Equal(t, map[string]int{"p1": 2, "p2": 1}, quantities(v))

	v = tb.runJSON("login", "--token", middleware.DevTokenPrefix+"alice")
	assert.Equal(t, "merge", v.Action)
	assert.Equal(t, "synchronized", v.Message)
	assert.True(t, v.SignedIn)
	assert.Empty(t, v.GuestSession)
	assert.Equal(t, map[string]int{"p1": 2, "p2": 1}, quantities(v))

	// a later sync is a plain fetch of the account cart
	v = tb.runJSON("sync")
	assert.Equal(t, "fetch", v.Action)
	assert.Equal(t, 3, v.TotalItems)
}

func TestCLI_LogoutThenLoginFetchesOnly(t *testing.T) {
	tb := newTab(t)

	tb.runJSON("login", "--token", middleware.DevTokenPrefix+"bob")
	tb.runJSON("add", "p1", "1")

	v := tb.runJSON("logout")
	assert.Empty(t, v.Items)
	assert.False(t, v.SignedIn)
	assert.NotEmpty(t, v.GuestSession)

	raw, err := os.ReadFile(tb.state)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "justLoggedOut")

	tb.runJSON("add", "p2", "3")

	v = tb.runJSON("login", "--token", middleware.DevTokenPrefix+"bob")
	assert.Equal(t, "fetch", v.Action)
	assert.Equal(t, map[string]int{"p1": 1}, quantities(v))
}

func TestCLI_SetAndRemove(t *testing.T) {
	tb := newTab(t)

	tb.runJSON("add", "p1", "2")
	v := tb.runJSON("set", "p1", "5")
	assert.Equal(t, 5, v.TotalItems)

	v = tb.runJSON("remove", "p1")
	assert.Empty(t, v.Items)
	assert.Equal(t, 0, v.TotalItems)
}

func TestCLI_TextOutput(t *testing.T) {
	tb := newTab(t)

	out, err := tb.run("show")
	require.NoError(t, err)
	assert.Contains(t, out, "(cart is empty)")

	out, err = tb.run("add", "p2", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "p2")
	assert.Contains(t, out, "total")
	assert.Contains(t, out, "guest")
}

func TestCLI_Errors(t *testing.T) {
	tb := newTab(t)

	_, err := tb.run("logout")
	assert.ErrorIs(t, err, ErrNotSignedIn)

	_, err = tb.run("login")
	assert.ErrorContains(t, err, "--token is required")

	_, err = tb.run("login", "--token", middleware.DevTokenPrefix+"carol")
	require.NoError(t, err)
	_, err = tb.run("login", "--token", middleware.DevTokenPrefix+"carol")
	assert.ErrorIs(t, err, ErrAlreadySignedIn)

	_, err = tb.run("add", "p1", "many")
	assert.ErrorContains(t, err, "not a number")

	_, err = tb.run("--format", "xml", "show")
	assert.ErrorContains(t, err, "invalid format")
}

func TestCLI_RetryRecoversAfterServerOutage(t *testing.T) {
	tb := newTab(t)
	tb.runJSON("login", "--token", middleware.DevTokenPrefix+"dave")
	tb.runJSON("add", "p1", "1")

	url := tb.server.URL
	tb.server.Close()
	_, err := tb.run("retry")
	assert.ErrorIs(t, err, httpout.ErrNetworkFailure)

	// same tab, new server: nothing is remembered server side, but retry works
	tb2 := newTab(t)
	tb2.state = tb.state
	require.NotEqual(t, url, tb2.server.URL)
	v := tb2.runJSON("retry")
	assert.Equal(t, "fetch", v.Action)
	assert.Equal(t, "synchronized", v.Message)
}
