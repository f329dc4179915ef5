package command

import (
	"reflect"
	"testing"

	"pkt.systems/tabstack/schema"
)

func TestParse(t *testing.T) {
	if _, ok := Parse("hello"); ok {
		t.Fatalf("expected plain text to be ignored")
	}
	cmd, ok := Parse("  /Stack 3 4")
	if !ok {
		t.Fatalf("expected slash command")
	}
	if cmd.Name != "stack" || !reflect.DeepEqual(cmd.Args, []string{"3", "4"}) || cmd.Raw != "Stack 3 4" {
		t.Fatalf("unexpected command %+v", cmd)
	}
	cmd, ok = Parse("/")
	if !ok || cmd.Name != "" {
		t.Fatalf("expected empty command, got %+v", cmd)
	}
}

func TestTabArgs(t *testing.T) {
	cases := []struct {
		input string
		want  []schema.TabID
		err   bool
	}{
		{input: "/stack", want: []schema.TabID{}},
		{input: "/stack 3 4", want: []schema.TabID{3, 4}},
		{input: "/stack 3,4, 5", want: []schema.TabID{3, 4, 5}},
		{input: "/stack 3 3 4", want: []schema.TabID{3, 4}},
		{input: "/stack 3 x", err: true},
		{input: "/stack -1", err: true},
	}
	for _, tc := range cases {
		cmd, _ := Parse(tc.input)
		got, err := cmd.TabArgs()
		if tc.err {
			if err == nil {
				t.Fatalf("%q: expected error", tc.input)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: %v", tc.input, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%q: expected %v, got %v", tc.input, tc.want, got)
		}
	}
}
