package policy

import "testing"

func TestCanEditStoryMatrix(t *testing.T) {
	story := StoryRef{ID: "sty_1", OwnerID: "usr_owner"}

	cases := []struct {
		name  string
		actor Actor
		allow bool
	}{
		{name: "developer owner", actor: Actor{ID: "usr_owner", Role: RoleDeveloper}, allow: true},
		{name: "developer non-owner", actor: Actor{ID: "usr_other", Role: RoleDeveloper}, allow: false},
		{name: "manager owner", actor: Actor{ID: "usr_owner", Role: RoleManager}, allow: true},
		{name: "manager non-owner", actor: Actor{ID: "usr_other", Role: RoleManager}, allow: true},
		{name: "admin owner", actor: Actor{ID: "usr_owner", Role: RoleAdmin}, allow: true},
		{name: "admin non-owner", actor: Actor{ID: "usr_other", Role: RoleAdmin}, allow: true},
		{name: "unauthenticated", actor: Actor{}, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanEditStory(tc.actor, story); got != tc.allow {
				t.Fatalf("CanEditStory(%+v) = %v, want %v", tc.actor, got, tc.allow)
			}
		})
	}
}

func TestCanEditStoryDeniesOwnerlessStoryToDevelopers(t *testing.T) {
	story := StoryRef{ID: "sty_1"}
	if CanEditStory(Actor{ID: "usr_dev", Role: RoleDeveloper}, story) {
		t.Fatalf("developer must not edit a story without an owner")
	}
	if !CanEditStory(Actor{ID: "usr_mgr", Role: RoleManager}, story) {
		t.Fatalf("manager must edit a story without an owner")
	}
}

func TestPrivilegedCapabilities(t *testing.T) {
	checks := map[string]func(Actor) bool{
		"CanDeleteStory":   CanDeleteStory,
		"CanArchiveStory":  CanArchiveStory,
		"CanViewAnalytics": CanViewAnalytics,
	}

	for name, check := range checks {
		t.Run(name, func(t *testing.T) {
			if check(Actor{ID: "u", Role: RoleDeveloper}) {
				t.Fatalf("%s must deny developers", name)
			}
			if !check(Actor{ID: "u", Role: RoleManager}) {
				t.Fatalf("%s must allow managers", name)
			}
			if !check(Actor{ID: "u", Role: RoleAdmin}) {
				t.Fatalf("%s must allow admins", name)
			}
			if check(Actor{}) {
				t.Fatalf("%s must deny unauthenticated callers", name)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("manager"); got != RoleManager {
		t.Fatalf("Normalize(manager) = %q", got)
	}
	if got := Normalize("superuser"); got != RoleDeveloper {
		t.Fatalf("unknown roles must normalize to developer, got %q", got)
	}
	if got := Normalize(""); got != RoleDeveloper {
		t.Fatalf("empty role must normalize to developer, got %q", got)
	}
}
