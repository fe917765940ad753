package vfs

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/any-hub/repohub/internal/cache"
	"github.com/any-hub/repohub/internal/checksum"
	"github.com/any-hub/repohub/internal/layout"
	"github.com/any-hub/repohub/internal/repository"
)

func TestPathAlgebra(t *testing.T) {
	root, err := New("s0", "releases", "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !root.IsRoot() {
		t.Fatalf("empty path should be root")
	}
	jar, err := root.Resolve("org/foo/foo/1.0/foo-1.0.jar")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if jar.Relativize() != "org/foo/foo/1.0/foo-1.0.jar" || jar.Name() != "foo-1.0.jar" {
		t.Fatalf("unexpected path %s", jar)
	}
	pom, err := jar.ResolveSibling("foo-1.0.pom")
	if err != nil {
		t.Fatalf("sibling: %v", err)
	}
	if pom.Relativize() != "org/foo/foo/1.0/foo-1.0.pom" {
		t.Fatalf("unexpected sibling %s", pom)
	}
	if got := jar.Checksum(checksum.SHA1).Relativize(); got != "org/foo/foo/1.0/foo-1.0.jar.sha1" {
		t.Fatalf("unexpected checksum sibling %s", got)
	}
	if _, err := root.ResolveSibling("x"); err == nil {
		t.Fatalf("root has no sibling")
	}
	if _, err := jar.ResolveSibling("a/b"); err == nil {
		t.Fatalf("sibling must be a single segment")
	}
	if _, err := root.Resolve("../escape"); err == nil {
		t.Fatalf("parent segments must be rejected")
	}
}

func TestPathEquality(t *testing.T) {
	a, _ := New("s0", "releases", "/org//foo/./bar")
	b, _ := New("s0", "releases", "org/foo/bar")
	c, _ := New("s0", "snapshots", "org/foo/bar")
	if !a.Equal(b) {
		t.Fatalf("normalised paths should be equal")
	}
	if a.Equal(c) {
		t.Fatalf("different repositories should differ")
	}
	if a.RepositoryKey() != "s0:releases" {
		t.Fatalf("unexpected key %s", a.RepositoryKey())
	}
}

func newFixture(t *testing.T) (*FileSystem, *repository.Repository) {
	t.Helper()
	st, err := repository.NewStorageBuilder("s0", t.TempDir()).
		Add(repository.NewBuilder("releases").Layout("Maven 2")).
		Build()
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	store, err := cache.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	repo, _ := st.Repository("releases")
	return NewFileSystem(store), repo
}

func TestAttributes(t *testing.T) {
	fs, repo := newFixture(t)
	ctx := context.Background()
	p, _ := Root(repo).Resolve("org/foo/foo/1.0/foo-1.0.jar")

	attrs, err := fs.Attributes(ctx, repo, p)
	if err != nil {
		t.Fatalf("attributes: %v", err)
	}
	if attrs.Exists {
		t.Fatalf("path should not exist yet")
	}
	if attrs.Coordinates.Get(layout.MavenArtifactID) != "foo" {
		t.Fatalf("coordinates should be parsed even when absent: %s", attrs.Coordinates)
	}

	if _, err := fs.Store().Put(ctx, fs.Locator(repo, p), strings.NewReader("hello"), cache.PutOptions{Sidecars: true}); err != nil {
		t.Fatalf("put: %v", err)
	}
	attrs, err = fs.Attributes(ctx, repo, p)
	if err != nil {
		t.Fatalf("attributes: %v", err)
	}
	if !attrs.Exists || attrs.Size != 5 {
		t.Fatalf("unexpected attributes %+v", attrs)
	}
	if attrs.Checksums[checksum.SHA1] != "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d" {
		t.Fatalf("sha1 sidecar not read: %v", attrs.Checksums)
	}
	if attrs.Checksums[checksum.MD5] != "5d41402abc4b2a76b9719d911017c592" {
		t.Fatalf("md5 sidecar not read: %v", attrs.Checksums)
	}

	meta, _ := Root(repo).Resolve("org/foo/foo/maven-metadata.xml")
	attrs, err = fs.Attributes(ctx, repo, meta)
	if err != nil {
		t.Fatalf("attributes: %v", err)
	}
	if !attrs.Metadata || !attrs.Coordinates.IsZero() {
		t.Fatalf("metadata path should have no coordinates: %+v", attrs)
	}
}

func TestAttributesConcurrent(t *testing.T) {
	fs, repo := newFixture(t)
	ctx := context.Background()
	p, _ := Root(repo).Resolve("a/b/c/1/c-1.jar")
	if _, err := fs.Store().Put(ctx, fs.Locator(repo, p), strings.NewReader("data"), cache.PutOptions{Sidecars: true}); err != nil {
		t.Fatalf("put: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			attrs, err := fs.Attributes(ctx, repo, p)
			if err != nil || !attrs.Exists {
				t.Errorf("attributes: %+v %v", attrs, err)
			}
		}()
	}
	wg.Wait()
}

func TestAttributesRejectsForeignPath(t *testing.T) {
	fs, repo := newFixture(t)
	p, _ := New("s0", "other", "x")
	if _, err := fs.Attributes(context.Background(), repo, p); err == nil {
		t.Fatalf("foreign path should be rejected")
	}
}
