package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jcdickinson/ferrisfind/internal/config"
	"github.com/jcdickinson/ferrisfind/internal/db"
	"github.com/jcdickinson/ferrisfind/internal/rpc"
)

const demoIndex = `[["demo",{
	"doc":"Demo crate",
	"t":"HF",
	"n":["spawn","Thread"],
	"q":[[0,"demo::thread"]],
	"d":["Spawns a thread.","A thread handle."],
	"i":[0,0],
	"f":[[[],1],0],
	"p":[[5,"Thread"]]
}]]`

type testDaemon struct {
	srv    *Server
	client *Client
	errc   chan error
}

// startDaemon runs a server on a fresh socket against the database at
// dbPath. The cache dir must already point at a temp dir.
func startDaemon(t *testing.T, dbPath string, cfg *config.Config) *testDaemon {
	t.Helper()

	// Unix socket paths are length limited, so avoid t.TempDir's long names.
	sockDir, err := os.MkdirTemp("", "ffd")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(sockDir) })

	database, err := db.New(dbPath)
	require.NoError(t, err)

	d := &testDaemon{
		srv:  NewServer(cfg, database, filepath.Join(sockDir, "d.sock")),
		errc: make(chan error, 1),
	}
	d.srv.exit = func(int) {}
	go func() { d.errc <- d.srv.Start(context.Background()) }()

	d.client = NewClient(d.srv.socketPath)
	require.Eventually(t, d.client.IsAvailable, 5*time.Second, 10*time.Millisecond)
	return d
}

func (d *testDaemon) shutdown(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, d.client.Shutdown(ctx))
	select {
	case err := <-d.errc:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}
	// Blocks until the shutdown started by the handler has finished.
	require.NoError(t, d.srv.Stop(ctx))
	d.client.Close()
}

func testConfig() *config.Config {
	return &config.Config{
		Search: config.SearchConfig{Limit: 10},
		Daemon: config.DaemonConfig{ExpirationSeconds: 60},
	}
}

func writeIndex(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func resultNames(results []rpc.ItemResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Name)
	}
	return out
}

func TestServer_RoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	indexPath := writeIndex(t, dir, "index.json", demoIndex)
	badPath := writeIndex(t, dir, "bad.json", `[["broken",{"t":"H"}]]`)

	d := startDaemon(t, filepath.Join(dir, "db.db"), testConfig())
	ctx := context.Background()

	var progress []string
	loaded, err := d.client.Load(ctx, []string{indexPath}, func(msg string) { progress = append(progress, msg) })
	require.NoError(t, err)
	require.Len(t, loaded.Results, 1)
	assert.Empty(t, loaded.Results[0].Error)
	assert.Equal(t, "index.json", loaded.Results[0].Name)
	assert.Equal(t, []string{"demo"}, loaded.Results[0].Crates)
	assert.Equal(t, 2, loaded.Results[0].Items)
	assert.NotEmpty(t, progress)

	resp, err := d.client.Search(ctx, rpc.SearchRequest{Query: "spawn"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Others)
	assert.Equal(t, "spawn", resp.Others[0].Name)
	assert.Equal(t, "demo/thread/fn.spawn.html", resp.Others[0].Href)
	assert.Equal(t, "() -> thread", resp.Others[0].Signature)

	resp, err = d.client.Search(ctx, rpc.SearchRequest{Query: "thread"})
	require.NoError(t, err)
	assert.Contains(t, resultNames(resp.Returned), "spawn")

	parsed, err := d.client.Parse(ctx, "strct:foo")
	require.NoError(t, err)
	assert.NotEmpty(t, parsed.Query.Error)
	assert.Contains(t, parsed.Suggestions, "struct")

	bad, err := d.client.Load(ctx, []string{badPath}, nil)
	require.NoError(t, err)
	require.Len(t, bad.Results, 1)
	assert.Contains(t, bad.Results[0].Error, "n is required")

	status, err := d.client.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status.Sources, 1, "a rejected file is not registered")
	assert.Equal(t, []rpc.CrateStatus{{Name: "demo", Items: 2}}, status.Sources[0].Crates)
	assert.Equal(t, 3, status.Items, "two items plus the crate root")

	unloaded, err := d.client.Unload(ctx, []string{"index.json", "missing.json"})
	require.NoError(t, err)
	assert.Equal(t, []string{"index.json"}, unloaded.Removed)

	resp, err = d.client.Search(ctx, rpc.SearchRequest{Query: "spawn"})
	require.NoError(t, err)
	assert.Empty(t, resp.Others)

	d.shutdown(t)
}

func TestServer_RestoresFromSnapshot(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	indexPath := writeIndex(t, dir, "index.json", demoIndex)
	dbPath := filepath.Join(dir, "db.db")

	first := startDaemon(t, dbPath, testConfig())
	_, err := first.client.Load(context.Background(), []string{indexPath}, nil)
	require.NoError(t, err)
	first.shutdown(t)

	// The snapshot in the CAS is enough once the file is gone.
	require.NoError(t, os.Remove(indexPath))

	second := startDaemon(t, dbPath, testConfig())
	resp, err := second.client.Search(context.Background(), rpc.SearchRequest{Query: "spawn"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Others)
	assert.Equal(t, "spawn", resp.Others[0].Name)

	pruned, err := second.client.Prune(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pruned.Removed, "the registered snapshot is kept")
	second.shutdown(t)
}

func TestServer_LaterSourceReplacesCrate(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	oldPath := writeIndex(t, dir, "old.json", demoIndex)
	newPath := writeIndex(t, dir, "new.json", `[["demo",{"t":"H","n":["launch"],"q":[[0,"demo"]],"d":[""],"i":[0],"f":[0],"p":[]}]]`)

	cfg := testConfig()
	cfg.Index.Paths = []string{oldPath, newPath}
	d := startDaemon(t, filepath.Join(dir, "db.db"), cfg)
	ctx := context.Background()

	resp, err := d.client.Search(ctx, rpc.SearchRequest{Query: "launch"})
	require.NoError(t, err)
	assert.Contains(t, resultNames(resp.Others), "launch")

	resp, err = d.client.Search(ctx, rpc.SearchRequest{Query: "spawn"})
	require.NoError(t, err)
	assert.NotContains(t, resultNames(resp.Others), "spawn")

	d.shutdown(t)
}

func TestServer_SameBaseNameInDifferentDirs(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	for _, sub := range []string{"a", "b"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, sub, "doc"), 0o755))
	}
	alphaPath := writeIndex(t, filepath.Join(dir, "a", "doc"), "search-index.js",
		`[["alpha",{"t":"H","n":["alpha_fn"],"q":[[0,"alpha"]],"d":[""],"i":[0],"f":[0],"p":[]}]]`)
	betaPath := writeIndex(t, filepath.Join(dir, "b", "doc"), "search-index.js",
		`[["beta",{"t":"H","n":["beta_fn"],"q":[[0,"beta"]],"d":[""],"i":[0],"f":[0],"p":[]}]]`)

	d := startDaemon(t, filepath.Join(dir, "db.db"), testConfig())
	ctx := context.Background()

	loaded, err := d.client.Load(ctx, []string{alphaPath, betaPath}, nil)
	require.NoError(t, err)
	require.Len(t, loaded.Results, 2)
	assert.Equal(t, "search-index.js", loaded.Results[0].Name)
	assert.Equal(t, "doc/search-index.js", loaded.Results[1].Name)

	for _, name := range []string{"alpha_fn", "beta_fn"} {
		resp, err := d.client.Search(ctx, rpc.SearchRequest{Query: name})
		require.NoError(t, err)
		assert.Contains(t, resultNames(resp.Others), name)
	}

	// Reloading a file keeps its name rather than taking a new one.
	again, err := d.client.Load(ctx, []string{betaPath}, nil)
	require.NoError(t, err)
	assert.Equal(t, "doc/search-index.js", again.Results[0].Name)

	status, err := d.client.Status(ctx)
	require.NoError(t, err)
	assert.Len(t, status.Sources, 2)

	unloaded, err := d.client.Unload(ctx, []string{alphaPath})
	require.NoError(t, err)
	assert.Equal(t, []string{"search-index.js"}, unloaded.Removed)

	resp, err := d.client.Search(ctx, rpc.SearchRequest{Query: "alpha_fn"})
	require.NoError(t, err)
	assert.NotContains(t, resultNames(resp.Others), "alpha_fn")
	resp, err = d.client.Search(ctx, rpc.SearchRequest{Query: "beta_fn"})
	require.NoError(t, err)
	assert.Contains(t, resultNames(resp.Others), "beta_fn")

	d.shutdown(t)
}

func TestParseQuery(t *testing.T) {
	t.Parallel()

	ok := ParseQuery("fn:vec<u8> -> bool")
	assert.Empty(t, ok.Query.Error)
	assert.Empty(t, ok.Suggestions)

	broken := ParseQuery("a,")
	assert.Empty(t, broken.Suggestions)
}
