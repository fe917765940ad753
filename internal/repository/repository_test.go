package repository

import (
	"path/filepath"
	"testing"
)

func TestStorageBuilderDefaultsBaseDir(t *testing.T) {
	base := t.TempDir()
	st, err := NewStorageBuilder("s0", base).
		Add(NewBuilder("releases").Layout("maven-2")).
		Add(NewBuilder("custom").Layout("raw").BaseDir("elsewhere")).
		Build()
	if err != nil {
		t.Fatalf("build storage: %v", err)
	}
	releases, ok := st.Repository("releases")
	if !ok {
		t.Fatalf("releases missing")
	}
	if releases.BaseDir() != filepath.Join(base, "releases") {
		t.Fatalf("unexpected basedir %s", releases.BaseDir())
	}
	if releases.Layout() != "Maven 2" {
		t.Fatalf("layout should be canonicalised, got %s", releases.Layout())
	}
	if releases.Key() != "s0:releases" {
		t.Fatalf("unexpected key %s", releases.Key())
	}
	custom, _ := st.Repository("custom")
	if custom.BaseDir() != filepath.Join(base, "elsewhere") {
		t.Fatalf("relative basedir should hang under storage, got %s", custom.BaseDir())
	}
	if got := st.Repositories(); len(got) != 2 || got[0].ID() != "releases" || got[1].ID() != "custom" {
		t.Fatalf("declaration order not preserved")
	}
}

func TestBuilderValidation(t *testing.T) {
	base := t.TempDir()
	cases := map[string]*Builder{
		"unknown layout":   NewBuilder("a").Layout("docker"),
		"proxy no url":     NewBuilder("a").Layout("raw").Type(Proxy),
		"proxy bad url":    NewBuilder("a").Layout("raw").Type(Proxy).RemoteURL("not a url"),
		"unknown type":     NewBuilder("a").Layout("raw").Type("mirror"),
		"unknown status":   NewBuilder("a").Layout("raw").Status("paused"),
		"unknown strategy": NewBuilder("a").Layout("raw").MetadataStrategy("ttl"),
		"self member":      NewBuilder("a").Layout("raw").Type(Group).Members(MemberRef{Repository: "a"}),
		"duplicate member": NewBuilder("a").Layout("raw").Type(Group).Members(
			MemberRef{Repository: "b"}, MemberRef{Storage: "s0", Repository: "b"}),
		"bad id": NewBuilder("a:b").Layout("raw"),
	}
	for name, b := range cases {
		if _, err := NewStorageBuilder("s0", base).Add(b).Build(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestProxyRemoteURLNormalised(t *testing.T) {
	st, err := NewStorageBuilder("s0", t.TempDir()).
		Add(NewBuilder("central").Layout("Maven 2").Type(Proxy).RemoteURL("https://repo.example.com/maven2/")).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	central, _ := st.Repository("central")
	if central.RemoteURL() != "https://repo.example.com/maven2" {
		t.Fatalf("trailing slash should be trimmed: %s", central.RemoteURL())
	}
}

func TestMembersReturnsCopy(t *testing.T) {
	st, err := NewStorageBuilder("s0", t.TempDir()).
		Add(NewBuilder("public").Layout("Maven 2").Type(Group).Members(MemberRef{Repository: "releases"})).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	public, _ := st.Repository("public")
	members := public.Members()
	members[0].Repository = "mutated"
	if public.Members()[0].Repository != "releases" {
		t.Fatalf("Members must return a copy")
	}
}

func TestParseMemberRef(t *testing.T) {
	ref, err := ParseMemberRef("central", "s0")
	if err != nil || ref.Key() != "s0:central" {
		t.Fatalf("unexpected %v %v", ref, err)
	}
	ref, err = ParseMemberRef("s1:npm", "s0")
	if err != nil || ref.Key() != "s1:npm" {
		t.Fatalf("unexpected %v %v", ref, err)
	}
	for _, raw := range []string{"", ":x", "s0:", "a:b:c"} {
		if _, err := ParseMemberRef(raw, "s0"); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestSnapshotAndHolder(t *testing.T) {
	s0, err := NewStorageBuilder("s0", t.TempDir()).Add(NewBuilder("releases").Layout("raw")).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	snap, err := NewSnapshot([]*Storage{s0}, nil)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if _, err := NewSnapshot([]*Storage{s0, s0}, nil); err == nil {
		t.Fatalf("duplicate storage should fail")
	}
	if _, ok := snap.Lookup(MemberRef{Storage: "s0", Repository: "releases"}); !ok {
		t.Fatalf("lookup failed")
	}
	if _, ok := snap.Repository("s1", "releases"); ok {
		t.Fatalf("unknown storage should miss")
	}

	holder := NewHolder(snap)
	next, _ := NewSnapshot(nil, nil)
	if old := holder.Swap(next); old != snap {
		t.Fatalf("swap should return previous snapshot")
	}
	if holder.Load() != next {
		t.Fatalf("load should return the new snapshot")
	}
}
