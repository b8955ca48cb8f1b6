package conversation

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		h     History
		field string
		index int
	}{
		{"ok", History{{RoleUser, "hi"}, {RoleAssistant, "hello"}}, "", 0},
		{"missing role", History{{RoleUser, "hi"}, {"", "x"}}, "role", 1},
		{"bad role", History{{"system", "x"}}, "role", 0},
		{"missing content", History{{RoleUser, ""}}, "content", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.h.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var mte *MalformedTurnError
			if !errors.As(err, &mte) {
				t.Fatalf("expected MalformedTurnError, got %v", err)
			}
			if mte.Field != tt.field || mte.Index != tt.index {
				t.Errorf("got field=%q index=%d, want %q %d", mte.Field, mte.Index, tt.field, tt.index)
			}
		})
	}
}

func TestQueryInputSingleTurn(t *testing.T) {
	h := History{}.Append(RoleUser, "What is git clone?")
	if got := QueryInput(h); got != "What is git clone?" {
		t.Fatalf("QueryInput = %q", got)
	}
}

func TestQueryInputWithHistory(t *testing.T) {
	h := History{
		{RoleUser, "What is git clone?"},
		{RoleAssistant, "It copies a repository."},
		{RoleUser, "And git fetch?"},
	}
	want := "Given the following conversation history:\n" +
		"User: What is git clone?\n" +
		"Assistant: It copies a repository.\n" +
		"User: And git fetch?\n" +
		"Assistant:"
	if got := QueryInput(h); got != want {
		t.Fatalf("QueryInput =\n%q\nwant\n%q", got, want)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	h := History{{RoleUser, "a"}, {RoleAssistant, "b"}}
	c := h.Clone()
	c[0].Content = "changed"
	if h[0].Content != "a" {
		t.Fatal("Clone shares backing array")
	}
	if History(nil).Clone() != nil {
		t.Fatal("Clone(nil) should be nil")
	}
}

func TestRoleLabel(t *testing.T) {
	if RoleUser.Label() != "User" || RoleAssistant.Label() != "Assistant" {
		t.Fatalf("labels: %q %q", RoleUser.Label(), RoleAssistant.Label())
	}
}
