package db

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("creating test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUpsertSource(t *testing.T) {
	db := testDB(t)

	crates := []SourceCrate{{Name: "std", Items: 120}, {Name: "core", Items: 80}}
	s, err := db.UpsertSource("std.js", "/docs/std.js", "abc", crates)
	if err != nil {
		t.Fatal(err)
	}
	if s.ID == 0 || s.Name != "std.js" || s.ContentHash != "abc" {
		t.Errorf("unexpected source: %+v", s)
	}
	if s.LoadedAt.IsZero() {
		t.Error("expected loaded_at to be set")
	}

	got, err := db.GetSource("std.js")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected source")
	}
	if !reflect.DeepEqual(got.Crates, crates) {
		t.Errorf("crates = %v, want %v", got.Crates, crates)
	}
}

func TestUpsertSource_ReplaceKeepsOrder(t *testing.T) {
	db := testDB(t)

	first, err := db.UpsertSource("a.js", "/a.js", "h1", []SourceCrate{{Name: "a", Items: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.UpsertSource("b.js", "/b.js", "h2", []SourceCrate{{Name: "b", Items: 2}}); err != nil {
		t.Fatal(err)
	}
	again, err := db.UpsertSource("a.js", "/moved/a.js", "h3", []SourceCrate{{Name: "a2", Items: 3}})
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != first.ID {
		t.Errorf("reload changed id: %d -> %d", first.ID, again.ID)
	}

	sources, err := db.ListSources()
	if err != nil {
		t.Fatal(err)
	}
	if len(sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(sources))
	}
	if sources[0].Name != "a.js" || sources[1].Name != "b.js" {
		t.Errorf("order = %s, %s", sources[0].Name, sources[1].Name)
	}
	if sources[0].Path != "/moved/a.js" || sources[0].ContentHash != "h3" {
		t.Errorf("not updated: %+v", sources[0])
	}
	if want := []SourceCrate{{Name: "a2", Items: 3}}; !reflect.DeepEqual(sources[0].Crates, want) {
		t.Errorf("crates = %v, want %v", sources[0].Crates, want)
	}
}

func TestGetSource_Missing(t *testing.T) {
	db := testDB(t)

	s, err := db.GetSource("nope")
	if err != nil {
		t.Fatal(err)
	}
	if s != nil {
		t.Errorf("expected nil, got %+v", s)
	}
}

func TestDeleteSource(t *testing.T) {
	db := testDB(t)

	if _, err := db.UpsertSource("a.js", "/a.js", "h1", []SourceCrate{{Name: "a", Items: 1}}); err != nil {
		t.Fatal(err)
	}

	removed, err := db.DeleteSource("a.js")
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Error("expected removal")
	}
	removed, err = db.DeleteSource("a.js")
	if err != nil {
		t.Fatal(err)
	}
	if removed {
		t.Error("second delete should report nothing removed")
	}

	names, err := db.SourcesForCrate("a")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Errorf("crates outlived their source: %v", names)
	}
}

func TestSourcesForCrate(t *testing.T) {
	db := testDB(t)

	for _, name := range []string{"x.js", "y.js"} {
		if _, err := db.UpsertSource(name, "/"+name, name, []SourceCrate{{Name: "shared", Items: 1}}); err != nil {
			t.Fatal(err)
		}
	}
	names, err := db.SourcesForCrate("shared")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(names, []string{"x.js", "y.js"}) {
		t.Errorf("got %v", names)
	}
}

func TestNew_ReplacesForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.db")
	if err := os.WriteFile(path, []byte("DUCK not sqlite"), 0o644); err != nil {
		t.Fatal(err)
	}
	db, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer db.Close()

	if _, err := db.ListSources(); err != nil {
		t.Errorf("list on fresh db: %v", err)
	}
}

func TestSourceName(t *testing.T) {
	db := testDB(t)

	register := func(path string) string {
		t.Helper()
		name, err := db.SourceName(path)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := db.UpsertSource(name, path, "h", nil); err != nil {
			t.Fatal(err)
		}
		return name
	}

	tests := []struct {
		path string
		want string
	}{
		{"/a/doc/search-index.js", "search-index.js"},
		{"/b/doc/search-index.js", "doc/search-index.js"},
		{"/c/doc/search-index.js", "doc/search-index.js#2"},
		{"/b/doc/search-index.js", "doc/search-index.js"},
		{"/d/other/search-index.js", "other/search-index.js"},
	}
	for _, tt := range tests {
		if got := register(tt.path); got != tt.want {
			t.Errorf("SourceName(%s) = %q, want %q", tt.path, got, tt.want)
		}
	}

	src, err := db.SourceByPath("/c/doc/search-index.js")
	if err != nil {
		t.Fatal(err)
	}
	if src == nil || src.Name != "doc/search-index.js#2" {
		t.Errorf("SourceByPath = %+v", src)
	}
	if src, err := db.SourceByPath("/nowhere.js"); err != nil || src != nil {
		t.Errorf("SourceByPath(missing) = %+v, %v", src, err)
	}
}
