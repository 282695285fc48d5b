package parser

import (
	"reflect"
	"testing"
)

func TestSplitArgs(t *testing.T) {
	cases := []struct {
		name string
		line string
		want []string
	}{
		{
			name: "plain words",
			line: ".find users",
			want: []string{".find", "users"},
		},
		{
			name: "json object stays whole",
			line: `.find users {"a": {"$gt": 1}}`,
			want: []string{".find", "users", `{"a": {"$gt": 1}}`},
		},
		{
			name: "nested arrays",
			line: `.find events {"transaction": {"inrange": [1000, 2000]}}`,
			want: []string{".find", "events", `{"transaction": {"inrange": [1000, 2000]}}`},
		},
		{
			name: "spaces inside strings",
			line: `.insert users {"name": "Ada Lovelace"}`,
			want: []string{".insert", "users", `{"name": "Ada Lovelace"}`},
		},
		{
			name: "escaped quote inside string",
			line: `.insert users {"q": "say \"hi\" now"}`,
			want: []string{".insert", "users", `{"q": "say \"hi\" now"}`},
		},
		{
			name: "braces inside strings do not nest",
			line: `.insert users {"tpl": "{a}"} extra`,
			want: []string{".insert", "users", `{"tpl": "{a}"}`, "extra"},
		},
		{
			name: "tabs and repeated spaces",
			line: ".find\t users   {}",
			want: []string{".find", "users", "{}"},
		},
		{
			name: "trailing args after json",
			line: `.find users {} {"n": -1} 10`,
			want: []string{".find", "users", "{}", `{"n": -1}`, "10"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SplitArgs(tc.line)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("SplitArgs(%q) = %q, want %q", tc.line, got, tc.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	cmd, err := Parse(`  .update users {"a": 1} {"$set": {"a": 2}} multi  `)
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	if cmd.Name != ".update" {
		t.Errorf("Name = %q", cmd.Name)
	}
	if len(cmd.Args) != 4 {
		t.Errorf("Args = %q", cmd.Args)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse(""); err == nil {
		t.Error("Empty line should fail")
	}
	if _, err := Parse("   "); err == nil {
		t.Error("Blank line should fail")
	}
	if _, err := Parse("find users"); err == nil {
		t.Error("Missing dot prefix should fail")
	}
}

func TestParseJSON(t *testing.T) {
	obj, err := ParseJSON(`{"a": 1}`)
	if err != nil {
		t.Fatalf("Failed to parse JSON: %v", err)
	}
	if obj["a"] != float64(1) {
		t.Errorf("a = %v", obj["a"])
	}
	if _, err := ParseJSON(`[1]`); err == nil {
		t.Error("Non-object JSON should fail")
	}
}

func TestValidateArgs(t *testing.T) {
	cmd := &Command{Name: ".find", Args: []string{"users"}}
	if err := ValidateArgs(cmd, 1); err != nil {
		t.Errorf("ValidateArgs(1) = %v", err)
	}
	if err := ValidateArgs(cmd, 2); err == nil {
		t.Error("ValidateArgs(2) should fail")
	}
}
