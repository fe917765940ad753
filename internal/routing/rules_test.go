package routing

import "testing"

func TestAcceptOverridesDeny(t *testing.T) {
	rules, err := Compile([]Rule{
		{Storage: "s0", Group: "public", Type: Deny, Pattern: `.*\.pom$`, Repositories: []string{"central"}},
		{Storage: "s0", Group: "public", Type: Accept, Pattern: `org/example/.*`, Repositories: []string{"central"}},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if rules.IsDenied("s0:public", "s0:central", "org/example/lib/1.0/lib.pom") {
		t.Fatalf("accept rule should override deny for central")
	}
	if !rules.IsDenied("s0:public", "s0:central", "org/other/lib/1.0/lib.pom") {
		t.Fatalf("pom outside org/example should be denied")
	}
	if rules.IsDenied("s0:public", "s0:releases", "org/other/lib/1.0/lib.pom") {
		t.Fatalf("deny rule does not apply to releases")
	}
	if rules.IsDenied("s0:public", "s0:central", "org/other/lib/1.0/lib.jar") {
		t.Fatalf("jar is not matched by deny pattern")
	}
}

func TestWildcardRulesApplyToEveryGroup(t *testing.T) {
	rules, err := Compile([]Rule{
		{Group: WildcardGroup, Type: Deny, Pattern: `com/internal/.*`},
		{Storage: "s1", Group: "npm-group", Type: Accept, Pattern: `com/internal/allowed/.*`, Repositories: []string{"s1:npm-proxy"}},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !rules.IsDenied("s0:public", "s0:central", "com/internal/x") {
		t.Fatalf("wildcard deny should apply to s0:public")
	}
	if !rules.IsDenied("s1:npm-group", "s1:npm-proxy", "com/internal/x") {
		t.Fatalf("wildcard deny should apply to s1:npm-group")
	}
	if rules.IsDenied("s1:npm-group", "s1:npm-proxy", "com/internal/allowed/y") {
		t.Fatalf("group accept should override wildcard deny")
	}
}

func TestWildcardAcceptOverridesGroupDeny(t *testing.T) {
	rules, err := Compile([]Rule{
		{Storage: "s0", Group: "public", Type: Deny, Pattern: `.*`},
		{Storage: "s0", Group: WildcardGroup, Type: Accept, Pattern: `safe/.*`},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if rules.IsDenied("s0:public", "s0:central", "safe/a") {
		t.Fatalf("wildcard accept should override group deny")
	}
	if !rules.IsDenied("s0:public", "s0:central", "unsafe/a") {
		t.Fatalf("group deny should apply")
	}
	if rules.IsDenied("s1:public", "s1:central", "unsafe/a") {
		t.Fatalf("rules of s0 must not leak into s1")
	}
}

func TestAcceptAloneIsNotAnAllowList(t *testing.T) {
	rules, err := Compile([]Rule{
		{Storage: "s0", Group: "public", Type: Accept, Pattern: `org/.*`},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if rules.IsDenied("s0:public", "s0:central", "com/foo") {
		t.Fatalf("path outside accept pattern must not be denied without a deny rule")
	}
}

func TestPatternsMatchWholePath(t *testing.T) {
	rules, err := Compile([]Rule{{Storage: "s0", Group: "g", Type: Deny, Pattern: `org`}})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if rules.IsDenied("s0:g", "s0:m", "org/foo") {
		t.Fatalf("pattern should be anchored")
	}
	if !rules.IsDenied("s0:g", "s0:m", "org") {
		t.Fatalf("exact match should deny")
	}
}

func TestCompileErrors(t *testing.T) {
	cases := []Rule{
		{Storage: "s0", Group: "g", Type: "maybe", Pattern: ".*"},
		{Storage: "s0", Group: "", Type: Deny, Pattern: ".*"},
		{Storage: "s0", Group: "g", Type: Deny, Pattern: "("},
	}
	for _, rule := range cases {
		if _, err := Compile([]Rule{rule}); err == nil {
			t.Fatalf("expected error for %+v", rule)
		}
	}
}

func TestNilRulesDenyNothing(t *testing.T) {
	var rules *Rules
	if rules.IsDenied("s0:g", "s0:m", "x") {
		t.Fatalf("nil rules should deny nothing")
	}
}
