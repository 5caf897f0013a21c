package chat

import "testing"

func TestParseRole(t *testing.T) {
	for in, want := range map[string]Role{"user": RoleUser, " Assistant ": RoleAssistant} {
		got, err := ParseRole(in)
		if err != nil || got != want {
			t.Fatalf("ParseRole(%q): want=%s got=%s err=%v", in, want, got, err)
		}
	}
	for _, in := range []string{"", "system", "tool"} {
		if _, err := ParseRole(in); err == nil {
			t.Fatalf("ParseRole(%q): expected error", in)
		}
	}
}

func TestBeforeCreateRejectsInvalidRole(t *testing.T) {
	m := &ChatMessage{RecruiterID: "r", CandidateID: "c", Role: "system", Content: "x"}
	if err := m.BeforeCreate(nil); err == nil {
		t.Fatalf("expected invalid role error")
	}
	m.Role = RoleUser
	if err := m.BeforeCreate(nil); err != nil {
		t.Fatalf("BeforeCreate: %v", err)
	}
	if m.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Fatalf("expected id assigned")
	}
}
