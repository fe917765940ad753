package layout

import (
	"errors"
	"sort"
	"testing"

	"github.com/any-hub/repohub/internal/coordinates"
	"github.com/any-hub/repohub/internal/errs"
)

func TestRegistryResolvesNamesAndAliases(t *testing.T) {
	cases := map[string]string{
		"Maven 2":  mavenName,
		"maven-2":  mavenName,
		" NPM ":    npmName,
		"npmjs":    npmName,
		"nuget":    nugetName,
		"nuget-v3": nugetName,
		"PyPI":     pypiName,
		"raw":      rawName,
	}
	for key, want := range cases {
		p, ok := Resolve(key)
		if !ok {
			t.Fatalf("layout %q not resolved", key)
		}
		if got := p.Descriptor().Name; got != want {
			t.Fatalf("layout %q resolved to %s, want %s", key, got, want)
		}
	}
	if _, ok := Resolve("docker"); ok {
		t.Fatalf("unknown layout should not resolve")
	}
	names := Names()
	if len(names) != len(builtin) || !sort.StringsAreSorted(names) {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Raw{}); err != nil {
		t.Fatalf("register raw: %v", err)
	}
	if err := r.Register(Raw{}); err == nil {
		t.Fatalf("duplicate registration should fail")
	}
}

func mustCoords(t *testing.T, p Provider, values map[string]string) coordinates.Coordinates {
	t.Helper()
	c, err := coordinates.New(p.Schema(), values)
	if err != nil {
		t.Fatalf("coordinates: %v", err)
	}
	return c
}

func TestCoordinatesToPathLayouts(t *testing.T) {
	cases := []struct {
		name     string
		provider Provider
		values   map[string]string
		path     string
	}{
		{"maven jar", Maven2{}, map[string]string{
			MavenGroupID: "org.foo", MavenArtifactID: "foo", MavenVersion: "1.0", MavenExtension: "jar",
		}, "org/foo/foo/1.0/foo-1.0.jar"},
		{"maven classifier", Maven2{}, map[string]string{
			MavenGroupID: "org.foo", MavenArtifactID: "foo", MavenVersion: "1.0", MavenClassifier: "sources", MavenExtension: "jar",
		}, "org/foo/foo/1.0/foo-1.0-sources.jar"},
		{"maven checksum", Maven2{}, map[string]string{
			MavenGroupID: "org.foo", MavenArtifactID: "foo", MavenVersion: "1.0", MavenExtension: "pom.sha1",
		}, "org/foo/foo/1.0/foo-1.0.pom.sha1"},
		{"maven timestamped snapshot", Maven2{}, map[string]string{
			MavenGroupID: "com.acme", MavenArtifactID: "lib", MavenVersion: "2.1-20240101.120000-3", MavenExtension: "jar",
		}, "com/acme/lib/2.1-SNAPSHOT/lib-2.1-20240101.120000-3.jar"},
		{"maven snapshot", Maven2{}, map[string]string{
			MavenGroupID: "com.acme", MavenArtifactID: "lib", MavenVersion: "2.1-SNAPSHOT", MavenExtension: "pom",
		}, "com/acme/lib/2.1-SNAPSHOT/lib-2.1-SNAPSHOT.pom"},
		{"npm", NPM{}, map[string]string{
			NPMName: "lodash", NPMVersion: "4.17.21", NPMExtension: "tgz",
		}, "lodash/-/lodash-4.17.21.tgz"},
		{"npm scoped", NPM{}, map[string]string{
			NPMScope: "@babel", NPMName: "core", NPMVersion: "7.0.0-beta.1", NPMExtension: "tgz",
		}, "@babel/core/-/core-7.0.0-beta.1.tgz"},
		{"nuget", NuGet{}, map[string]string{
			NuGetID: "newtonsoft.json", NuGetVersion: "13.0.1", NuGetType: "nupkg",
		}, "newtonsoft.json/13.0.1/newtonsoft.json.13.0.1.nupkg"},
		{"nuget nuspec", NuGet{}, map[string]string{
			NuGetID: "serilog", NuGetVersion: "2.0.0.1", NuGetType: "nuspec",
		}, "serilog/2.0.0.1/serilog.2.0.0.1.nuspec"},
		{"pypi wheel", PyPI{}, map[string]string{
			PyPIDistribution: "requests", PyPIVersion: "2.31.0", PyPIPythonTag: "py3", PyPIABI: "none",
			PyPIPlatform: "any", PyPIPackaging: "whl",
		}, "requests/2.31.0/requests-2.31.0-py3-none-any.whl"},
		{"pypi wheel build", PyPI{}, map[string]string{
			PyPIDistribution: "numpy", PyPIVersion: "1.26.0", PyPIBuild: "1", PyPIPythonTag: "cp311",
			PyPIABI: "cp311", PyPIPlatform: "manylinux_2_17_x86_64", PyPIPackaging: "whl",
		}, "numpy/1.26.0/numpy-1.26.0-1-cp311-cp311-manylinux_2_17_x86_64.whl"},
		{"pypi sdist", PyPI{}, map[string]string{
			PyPIDistribution: "requests", PyPIVersion: "2.31.0", PyPIPackaging: "tar.gz",
		}, "requests/2.31.0/requests-2.31.0.tar.gz"},
		{"raw", Raw{}, map[string]string{RawPath: "tools/bin/tool-linux"}, "tools/bin/tool-linux"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := mustCoords(t, tc.provider, tc.values)
			rel, err := tc.provider.CoordinatesToPath(c)
			if err != nil {
				t.Fatalf("to path: %v", err)
			}
			if rel != tc.path {
				t.Fatalf("path mismatch: got %s want %s", rel, tc.path)
			}
			parsed, err := tc.provider.ParseCoordinates(rel)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if !parsed.Equal(c) {
				t.Fatalf("round trip mismatch: got %s want %s", parsed, c)
			}
			if coordinates.Compare(parsed, c) != 0 {
				t.Fatalf("compare should be 0 for equal coordinates")
			}
		})
	}
}

func TestParseRejectsInvalidPaths(t *testing.T) {
	cases := []struct {
		provider Provider
		path     string
	}{
		{Maven2{}, "org/foo/1.0"},
		{Maven2{}, "org/foo/foo/1.0/bar-1.0.jar"},
		{Maven2{}, "org/foo/foo/1.0/foo-1.0"},
		{Maven2{}, "org/foo/foo/maven-metadata.xml"},
		{Maven2{}, "../etc/passwd"},
		{NPM{}, "lodash/package.json"},
		{NPM{}, "lodash/-/other-1.0.0.tgz"},
		{NPM{}, "lodash/-/lodash-1.0.0.zip"},
		{NuGet{}, "serilog/2.0.0/serilog.2.0.0.zip"},
		{NuGet{}, "serilog/index.json"},
		{PyPI{}, "simple/requests"},
		{PyPI{}, "requests/2.31.0/requests-2.31.0-py3.whl"},
		{PyPI{}, "requests/2.31.0/flask-2.31.0.tar.gz"},
		{Raw{}, ""},
		{Raw{}, "a/../../b"},
	}
	for _, tc := range cases {
		_, err := tc.provider.ParseCoordinates(tc.path)
		if err == nil {
			t.Fatalf("%s: expected error for %q", tc.provider.Descriptor().Name, tc.path)
		}
		if !errors.Is(err, errs.ErrInvalidPath) {
			t.Fatalf("%s: error should match ErrInvalidPath, got %v", tc.provider.Descriptor().Name, err)
		}
	}
}

func TestMetadataPaths(t *testing.T) {
	cases := []struct {
		provider Provider
		path     string
		want     bool
	}{
		{Maven2{}, "org/foo/foo/maven-metadata.xml", true},
		{Maven2{}, "org/foo/foo/1.0-SNAPSHOT/maven-metadata.xml", true},
		{Maven2{}, "archetype-catalog.xml", true},
		{Maven2{}, "org/foo/foo/maven-metadata.xml.sha1", false},
		{Maven2{}, "org/foo/foo/1.0/foo-1.0.pom", false},
		{NPM{}, "lodash", true},
		{NPM{}, "lodash/package.json", true},
		{NPM{}, "@babel/core", true},
		{NPM{}, "@babel/core/package.json", true},
		{NPM{}, "lodash/-/lodash-4.17.21.tgz", false},
		{NuGet{}, "serilog/index.json", true},
		{NuGet{}, "serilog/2.0.0/serilog.2.0.0.nupkg", false},
		{PyPI{}, "simple/requests", true},
		{PyPI{}, "simple/requests/index.html", true},
		{PyPI{}, "requests/2.31.0/requests-2.31.0.tar.gz", false},
		{Raw{}, "maven-metadata.xml", false},
	}
	for _, tc := range cases {
		if got := tc.provider.IsMetadataPath(tc.path); got != tc.want {
			t.Fatalf("%s IsMetadataPath(%q) = %v, want %v", tc.provider.Descriptor().Name, tc.path, got, tc.want)
		}
	}
}

func TestRemoteAndLocalPathMapping(t *testing.T) {
	if got := RemotePath(NPM{}, "@babel/core/package.json"); got != "@babel/core" {
		t.Fatalf("npm remote path: %s", got)
	}
	if got := RemotePath(NPM{}, "lodash/-/lodash-1.0.0.tgz"); got != "lodash/-/lodash-1.0.0.tgz" {
		t.Fatalf("npm tarball remote path should be unchanged: %s", got)
	}
	if got := LocalPath(NPM{}, "lodash"); got != "lodash/package.json" {
		t.Fatalf("npm local path: %s", got)
	}
	if got := RemotePath(PyPI{}, "simple/requests"); got != "simple/requests/" {
		t.Fatalf("pypi remote path: %s", got)
	}
	if got := RemotePath(Maven2{}, "org/foo/foo/maven-metadata.xml"); got != "org/foo/foo/maven-metadata.xml" {
		t.Fatalf("maven remote path should be unchanged: %s", got)
	}
	if got := LocalPath(Raw{}, "a/b"); got != "a/b" {
		t.Fatalf("raw local path should be unchanged: %s", got)
	}
}

func TestCleanPath(t *testing.T) {
	got, err := CleanPath(rawName, "/a//b/./c")
	if err != nil || got != "a/b/c" {
		t.Fatalf("clean path: %q %v", got, err)
	}
	if _, err := CleanPath(rawName, `a\b`); err == nil {
		t.Fatalf("backslash should be rejected")
	}
}

func TestPURL(t *testing.T) {
	c := mustCoords(t, Maven2{}, map[string]string{
		MavenGroupID: "org.foo", MavenArtifactID: "foo", MavenVersion: "1.0", MavenExtension: "jar",
	})
	if got := c.PURL(); got != "pkg:maven/org.foo/foo@1.0" {
		t.Fatalf("maven purl: %s", got)
	}
	npm := mustCoords(t, NPM{}, map[string]string{NPMName: "lodash", NPMVersion: "4.17.21"})
	if got := npm.PURL(); got != "pkg:npm/lodash@4.17.21" {
		t.Fatalf("npm purl: %s", got)
	}
	raw := mustCoords(t, Raw{}, map[string]string{RawPath: "x"})
	if raw.PURL() != "" {
		t.Fatalf("raw layout has no purl")
	}
}
