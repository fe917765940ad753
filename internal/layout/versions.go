package layout

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/any-hub/repohub/internal/coordinates"
)

// compareNumeric 比较两个十进制数字串，不受前导零和长度溢出影响。
func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Maven

// mavenVersion 近似 Maven ComparableVersion，但保证全序：
// 版本被拆成若干段（以 '-' 或数字/字母切换分隔），每段内按 '.' 拆成项，段尾的 0 与
// release 限定符被裁掉；随后各段展平为 token 序列，段边界记为一个 pad token。
// 比较时较短的序列用 pad 无限补齐，逐个 token 按 mavenToken 的全序比较。
type mavenVersion struct {
	raw    string
	tokens []mavenToken
}

// token 类别按升序排列；同一类别内再按 rank/text 比较。
const (
	mavenPreRelease = iota // alpha < beta < milestone < rc < snapshot
	mavenPad               // 0、ga/final/release/空限定符、段边界
	mavenServicePack       // sp
	mavenUnknown           // 未知限定符，按字典序
	mavenNumber            // 正整数，按数值
)

type mavenToken struct {
	class int
	rank  int
	text  string
}

var mavenPadToken = mavenToken{class: mavenPad}

var mavenPreReleaseRank = map[string]int{
	"alpha":     0,
	"beta":      1,
	"milestone": 2,
	"rc":        3,
	"snapshot":  4,
}

var mavenQualifierAlias = map[string]string{
	"ga":      "",
	"final":   "",
	"release": "",
	"cr":      "rc",
}

func parseMavenVersion(raw string) coordinates.Version {
	return mavenVersion{raw: raw, tokens: tokenizeMaven(raw)}
}

func mavenNumberToken(digits string) mavenToken {
	trimmed := strings.TrimLeft(digits, "0")
	if trimmed == "" {
		return mavenPadToken
	}
	return mavenToken{class: mavenNumber, text: trimmed}
}

func mavenQualifierToken(q string, followedByDigit bool) mavenToken {
	if followedByDigit && len(q) == 1 {
		switch q {
		case "a":
			q = "alpha"
		case "b":
			q = "beta"
		case "m":
			q = "milestone"
		}
	}
	if alias, ok := mavenQualifierAlias[q]; ok {
		q = alias
	}
	switch {
	case q == "":
		return mavenPadToken
	case q == "sp":
		return mavenToken{class: mavenServicePack}
	}
	if rank, ok := mavenPreReleaseRank[q]; ok {
		return mavenToken{class: mavenPreRelease, rank: rank}
	}
	return mavenToken{class: mavenUnknown, text: q}
}

func tokenizeMaven(raw string) []mavenToken {
	var (
		runs     [][]mavenToken
		run      []mavenToken
		cur      strings.Builder
		curDigit bool
		pending  bool // 上一个字符是分隔符或处于开头，空项记为 0
	)
	pending = true
	flushItem := func(followedByDigit bool) {
		switch {
		case cur.Len() > 0 && curDigit:
			run = append(run, mavenNumberToken(cur.String()))
		case cur.Len() > 0:
			run = append(run, mavenQualifierToken(cur.String(), followedByDigit))
		case pending:
			run = append(run, mavenPadToken)
		}
		cur.Reset()
	}
	newRun := func() {
		runs = append(runs, run)
		run = nil
	}

	for _, r := range strings.ToLower(raw) {
		isDigit := r >= '0' && r <= '9'
		switch {
		case r == '.':
			flushItem(false)
			pending = true
		case r == '-':
			flushItem(false)
			newRun()
			pending = true
		case cur.Len() > 0 && isDigit != curDigit:
			flushItem(isDigit)
			newRun()
			cur.WriteRune(r)
			curDigit = isDigit
			pending = false
		default:
			cur.WriteRune(r)
			curDigit = isDigit
			pending = false
		}
	}
	if cur.Len() > 0 {
		flushItem(false)
	}
	newRun()

	var tokens []mavenToken
	for i, items := range runs {
		for len(items) > 0 && items[len(items)-1] == mavenPadToken {
			items = items[:len(items)-1]
		}
		if i > 0 {
			tokens = append(tokens, mavenPadToken)
		}
		tokens = append(tokens, items...)
	}
	for len(tokens) > 0 && tokens[len(tokens)-1] == mavenPadToken {
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}

func compareMavenToken(a, b mavenToken) int {
	if r := compareInts(a.class, b.class); r != 0 {
		return r
	}
	switch a.class {
	case mavenPreRelease:
		return compareInts(a.rank, b.rank)
	case mavenUnknown:
		return strings.Compare(a.text, b.text)
	case mavenNumber:
		return compareNumeric(a.text, b.text)
	}
	return 0
}

func (v mavenVersion) Compare(other coordinates.Version) int {
	o, ok := other.(mavenVersion)
	if !ok {
		return strings.Compare(v.String(), other.String())
	}
	n := len(v.tokens)
	if len(o.tokens) > n {
		n = len(o.tokens)
	}
	for i := 0; i < n; i++ {
		a, b := mavenPadToken, mavenPadToken
		if i < len(v.tokens) {
			a = v.tokens[i]
		}
		if i < len(o.tokens) {
			b = o.tokens[i]
		}
		if r := compareMavenToken(a, b); r != 0 {
			return r
		}
	}
	return 0
}

func (v mavenVersion) String() string { return v.raw }

// ---------------------------------------------------------------------------
// npm：严格 semver；无法解析的版本排在所有合法版本之后。

type semverVersion struct {
	raw string
	v   *semver.Version
}

func parseSemverVersion(raw string) coordinates.Version {
	v, err := semver.NewVersion(raw)
	if err != nil {
		return semverVersion{raw: raw}
	}
	return semverVersion{raw: raw, v: v}
}

func (v semverVersion) Compare(other coordinates.Version) int {
	o, ok := other.(semverVersion)
	if !ok {
		return strings.Compare(v.raw, other.String())
	}
	switch {
	case v.v != nil && o.v != nil:
		return v.v.Compare(o.v)
	case v.v != nil:
		return -1
	case o.v != nil:
		return 1
	}
	return strings.Compare(v.raw, o.raw)
}

func (v semverVersion) String() string { return v.raw }

// ---------------------------------------------------------------------------
// NuGet：semver 外加可选的第四段 revision（1.2.3.4）。

type nugetVersion struct {
	raw      string
	core     *semver.Version
	revision string
}

func parseNuGetVersion(raw string) coordinates.Version {
	out := nugetVersion{raw: raw}
	body := raw
	if idx := strings.IndexByte(body, '+'); idx >= 0 {
		body = body[:idx]
	}
	release, pre, hasPre := strings.Cut(body, "-")
	parts := strings.Split(release, ".")
	if len(parts) == 0 || len(parts) > 4 {
		return out
	}
	for _, p := range parts {
		if !isDigits(p) {
			return out
		}
	}
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	if len(parts) == 4 {
		out.revision = parts[3]
	}
	normalized := strings.Join(parts[:3], ".")
	if hasPre {
		normalized += "-" + pre
	}
	v, err := semver.NewVersion(normalized)
	if err != nil {
		return out
	}
	out.core = v
	return out
}

func (v nugetVersion) Compare(other coordinates.Version) int {
	o, ok := other.(nugetVersion)
	if !ok {
		return strings.Compare(v.raw, other.String())
	}
	switch {
	case v.core == nil && o.core == nil:
		return strings.Compare(v.raw, o.raw)
	case v.core == nil:
		return 1
	case o.core == nil:
		return -1
	}
	for _, pair := range [][2]uint64{
		{v.core.Major(), o.core.Major()},
		{v.core.Minor(), o.core.Minor()},
		{v.core.Patch(), o.core.Patch()},
	} {
		if pair[0] != pair[1] {
			if pair[0] < pair[1] {
				return -1
			}
			return 1
		}
	}
	if r := compareNumeric(v.revision, o.revision); r != 0 {
		return r
	}
	return v.core.Compare(o.core)
}

func (v nugetVersion) String() string { return v.raw }

// ---------------------------------------------------------------------------
// PyPI：PEP 440 的常用子集（epoch、release、pre/post/dev，本地版本仅作最终比较）。

var pep440Pattern = regexp.MustCompile(`^v?(?:(\d+)!)?(\d+(?:\.\d+)*)` +
	`(?:[-_.]?(a|alpha|b|beta|c|rc|pre|preview)[-_.]?(\d*))?` +
	`(?:-(\d+)|[-_.]?(post|rev|r)[-_.]?(\d*))?` +
	`(?:[-_.]?(dev)[-_.]?(\d*))?` +
	`(?:\+([a-z0-9]+(?:[-_.][a-z0-9]+)*))?$`)

type pep440Version struct {
	raw     string
	valid   bool
	epoch   string
	release []string
	// preKey: -1 表示仅 dev 的版本，0..2 对应 a/b/rc，3 表示无预发布。
	preKey int
	preNum string
	hasPost bool
	post    string
	hasDev  bool
	dev     string
	local   string
}

func parsePEP440Version(raw string) coordinates.Version {
	v := pep440Version{raw: raw}
	m := pep440Pattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(raw)))
	if m == nil {
		return v
	}
	v.valid = true
	v.epoch = m[1]
	v.release = strings.Split(m[2], ".")
	for len(v.release) > 1 && strings.TrimLeft(v.release[len(v.release)-1], "0") == "" {
		v.release = v.release[:len(v.release)-1]
	}
	v.preKey = 3
	switch m[3] {
	case "a", "alpha":
		v.preKey = 0
	case "b", "beta":
		v.preKey = 1
	case "c", "rc", "pre", "preview":
		v.preKey = 2
	}
	v.preNum = m[4]
	if m[5] != "" {
		v.hasPost, v.post = true, m[5]
	} else if m[6] != "" {
		v.hasPost, v.post = true, m[7]
	}
	if m[8] != "" {
		v.hasDev, v.dev = true, m[9]
	}
	if v.preKey == 3 && !v.hasPost && v.hasDev {
		v.preKey = -1
	}
	v.local = m[10]
	return v
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (v pep440Version) Compare(other coordinates.Version) int {
	o, ok := other.(pep440Version)
	if !ok {
		return strings.Compare(v.raw, other.String())
	}
	switch {
	case !v.valid && !o.valid:
		return strings.Compare(v.raw, o.raw)
	case !v.valid:
		return 1
	case !o.valid:
		return -1
	}
	if r := compareNumeric(v.epoch, o.epoch); r != 0 {
		return r
	}
	n := len(v.release)
	if len(o.release) > n {
		n = len(o.release)
	}
	for i := 0; i < n; i++ {
		a, b := "0", "0"
		if i < len(v.release) {
			a = v.release[i]
		}
		if i < len(o.release) {
			b = o.release[i]
		}
		if r := compareNumeric(a, b); r != 0 {
			return r
		}
	}
	if r := compareInts(v.preKey, o.preKey); r != 0 {
		return r
	}
	if r := compareNumeric(v.preNum, o.preNum); r != 0 {
		return r
	}
	if v.hasPost != o.hasPost {
		if v.hasPost {
			return 1
		}
		return -1
	}
	if r := compareNumeric(v.post, o.post); r != 0 {
		return r
	}
	if v.hasDev != o.hasDev {
		if v.hasDev {
			return -1
		}
		return 1
	}
	if r := compareNumeric(v.dev, o.dev); r != 0 {
		return r
	}
	return strings.Compare(v.local, o.local)
}

func (v pep440Version) String() string { return v.raw }
