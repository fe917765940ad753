package layout

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/any-hub/repohub/internal/coordinates"
)

// assertAscending 校验 versions 在给定解析器下严格递增。
func assertAscending(t *testing.T, parse func(string) coordinates.Version, versions []string) {
	t.Helper()
	for i := 0; i+1 < len(versions); i++ {
		a, b := parse(versions[i]), parse(versions[i+1])
		if a.Compare(b) >= 0 {
			t.Fatalf("expected %s < %s", versions[i], versions[i+1])
		}
		if b.Compare(a) <= 0 {
			t.Fatalf("expected %s > %s", versions[i+1], versions[i])
		}
	}
}

func TestMavenVersionOrder(t *testing.T) {
	assertAscending(t, parseMavenVersion, []string{
		"1.0-alpha-1", "1.0-beta-2", "1.0-milestone-1", "1.0-rc1", "1.0-SNAPSHOT", "1.0", "1.0-sp1", "1.0.1", "1.2", "1.10",
	})
	if parseMavenVersion("1.0").Compare(parseMavenVersion("1")) != 0 {
		t.Fatalf("1.0 and 1 should compare equal")
	}
	if parseMavenVersion("1.0-final").Compare(parseMavenVersion("1.0")) != 0 {
		t.Fatalf("final qualifier should equal release")
	}
}

func TestMavenVersionMatchesComparableVersion(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1-0-alpha", "1", -1},
		{"1-ga-sp", "1", 1},
		{"1-0-alpha", "1-ga-sp", -1},
		{"1.0-alpha", "1-alpha", 0},
		{"1-0-alpha", "1-alpha", 1},
		{"1.0.1", "1-sp", 1},
		{"1-1", "1.1", -1},
		{"1-sp", "1.1", -1},
		{"1.0-a1", "1.0-alpha-1", 0},
		{"1.0-cr1", "1.0-rc-1", 0},
		{"1-foo", "1-sp", 1},
		{"1.foo", "1.1", -1},
		{"1.0-rc", "1.0-rc1", -1},
	}
	for _, tc := range cases {
		got := parseMavenVersion(tc.a).Compare(parseMavenVersion(tc.b))
		if got != tc.want {
			t.Fatalf("compare(%s, %s) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestSemverVersionOrder(t *testing.T) {
	assertAscending(t, parseSemverVersion, []string{
		"1.0.0-alpha", "1.0.0-beta.2", "1.0.0", "1.2.0", "1.10.0", "not-a-version",
	})
}

func TestNuGetVersionOrder(t *testing.T) {
	assertAscending(t, parseNuGetVersion, []string{
		"1.0.0-preview", "1.0.0", "1.0.0.1", "1.0.1", "2.0", "garbage",
	})
}

func TestPEP440VersionOrder(t *testing.T) {
	assertAscending(t, parsePEP440Version, []string{
		"1.0.dev1", "1.0a1", "1.0b2", "1.0rc1", "1.0", "1.0.post1.dev1", "1.0.post1", "1.1", "1!0.1",
	})
	if parsePEP440Version("1.0").Compare(parsePEP440Version("1.0.0")) != 0 {
		t.Fatalf("trailing zeros should compare equal")
	}
}

// assertTotalPreorder 对 versions 的所有二元组与三元组检查反对称性与传递性。
func assertTotalPreorder(t *testing.T, parse func(string) coordinates.Version, versions []string) {
	t.Helper()
	parsed := make([]coordinates.Version, len(versions))
	for i, v := range versions {
		parsed[i] = parse(v)
	}
	n := len(parsed)
	cmp := make([][]int, n)
	for i := range parsed {
		cmp[i] = make([]int, n)
		for j := range parsed {
			cmp[i][j] = parsed[i].Compare(parsed[j])
		}
	}
	for i := 0; i < n; i++ {
		if cmp[i][i] != 0 {
			t.Fatalf("%s should equal itself", versions[i])
		}
		for j := 0; j < n; j++ {
			if sign(cmp[i][j]) != -sign(cmp[j][i]) {
				t.Fatalf("not antisymmetric: %s vs %s", versions[i], versions[j])
			}
			for k := 0; k < n; k++ {
				ab, bc, ac := sign(cmp[i][j]), sign(cmp[j][k]), sign(cmp[i][k])
				if ab <= 0 && bc <= 0 && ac > 0 {
					t.Fatalf("not transitive: %s <= %s <= %s but %s > %s",
						versions[i], versions[j], versions[k], versions[i], versions[k])
				}
				if ab == 0 && bc == 0 && ac != 0 {
					t.Fatalf("equality not transitive: %s, %s, %s", versions[i], versions[j], versions[k])
				}
			}
		}
	}
}

func sign(x int) int {
	switch {
	case x < 0:
		return -1
	case x > 0:
		return 1
	}
	return 0
}

func mavenVersionSample() []string {
	bases := []string{"1", "1.0", "1.0.0", "1.1", "2", "10", "1..1"}
	suffixes := []string{
		"", "-0", "-alpha", "-alpha-1", "-a1", "-ga", "-ga-sp", "-0-alpha", "-sp", "-SNAPSHOT",
		"-rc1", "-cr-1", "-foo", "_x", ".final", "-20240101.120000-3", "-1", "rc", ".0.0", "-m2",
	}
	var out []string
	for _, b := range bases {
		for _, s := range suffixes {
			out = append(out, b+s)
		}
	}
	return out
}

func TestVersionComparatorsAreTotalPreorders(t *testing.T) {
	t.Run("maven", func(t *testing.T) {
		assertTotalPreorder(t, parseMavenVersion, mavenVersionSample())
	})
	t.Run("semver", func(t *testing.T) {
		assertTotalPreorder(t, parseSemverVersion, []string{
			"1.0.0", "1.0.0-alpha", "1.0.0-alpha.1", "1.0.0-beta", "1.0.0+build", "1.2.0",
			"1.10.0", "2.0.0-rc.1", "v1.0", "1.0", "garbage", "zzz", "",
		})
	})
	t.Run("nuget", func(t *testing.T) {
		assertTotalPreorder(t, parseNuGetVersion, []string{
			"1.0", "1.0.0", "1.0.0.0", "1.0.0.1", "1.0.0-beta", "1.0.0.1-beta", "1.0.0-beta+meta",
			"2.0", "2.0.0-rc.1", "garbage", "x.y", "1.2.3.4.5",
		})
	})
	t.Run("pep440", func(t *testing.T) {
		assertTotalPreorder(t, parsePEP440Version, []string{
			"1.0", "1.0.0", "1.0.dev1", "1.0a1", "1.0b2", "1.0rc1", "1.0.post1", "1.0.post1.dev1",
			"1!0.1", "1.0+local", "1.0+abc", "2.0", "nonsense", "1.0-1", "1.0a1.dev2", "1.0.dev",
		})
	})
}

func TestCoordinateComparatorIsTotal(t *testing.T) {
	versions := []string{
		"1.0", "1", "1.0.0", "2.0-SNAPSHOT", "2.0", "1.0-rc1", "10.0",
		"1-0-alpha", "1-ga-sp", "1.0-alpha", "1-alpha", "1.0.1", "1-sp",
	}
	classifiers := []string{"", "sources"}
	var all []coordinates.Coordinates
	for _, v := range versions {
		for _, c := range classifiers {
			all = append(all, coordinates.MustNew(mavenSchema, map[string]string{
				MavenGroupID: "org.foo", MavenArtifactID: "foo", MavenVersion: v, MavenClassifier: c, MavenExtension: "jar",
			}))
		}
	}
	rng := rand.New(rand.NewSource(7))
	rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	sort.Slice(all, func(i, j int) bool { return coordinates.Compare(all[i], all[j]) < 0 })

	for i := range all {
		for j := range all {
			cmp := coordinates.Compare(all[i], all[j])
			if (cmp == 0) != all[i].Equal(all[j]) {
				t.Fatalf("compare inconsistent with equal: %s vs %s", all[i], all[j])
			}
			if cmp != -coordinates.Compare(all[j], all[i]) {
				t.Fatalf("compare not antisymmetric: %s vs %s", all[i], all[j])
			}
			for k := range all {
				ab, bc := coordinates.Compare(all[i], all[j]), coordinates.Compare(all[j], all[k])
				if ab < 0 && bc < 0 && coordinates.Compare(all[i], all[k]) >= 0 {
					t.Fatalf("compare not transitive: %s < %s < %s", all[i], all[j], all[k])
				}
			}
			if i < j && cmp >= 0 {
				t.Fatalf("sorted order violated at %d,%d: %s vs %s", i, j, all[i], all[j])
			}
		}
	}
}
