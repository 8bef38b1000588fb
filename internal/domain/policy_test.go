package domain

import "testing"

func TestParsePolicy(t *testing.T) {
	cases := map[string]Policy{"": PolicyKeep, "KEEP": PolicyKeep, " placeholder ": PolicyPlaceholder, "remove": PolicyRemove}
	for in, want := range cases {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParsePolicy(%q)：期望 %q，实际 %q err=%v", in, want, got, err)
		}
	}
	if _, err := ParsePolicy("delete"); err == nil {
		t.Fatalf("期望未知策略报错")
	}
}
