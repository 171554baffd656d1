package user

import (
	"context"
	"errors"
	"testing"
)

type profilesStub map[string]User

func (p profilesStub) GetUser(_ context.Context, filter GetFilter) (User, error) {
	if filter.ID == "broken" {
		return User{}, errors.New("connection reset by peer")
	}
	if usr, ok := p[filter.ID]; ok {
		return usr, nil
	}
	return User{}, ErrNotFound
}

func TestRoleResolver_Resolve(t *testing.T) {
	profiles := profilesStub{
		"boss":    {ID: "boss", Email: "boss@test.cd", Role: RoleUser},
		"coach":   {ID: "coach", Email: "coach@test.cd", Role: RoleInstructor},
		"admin":   {ID: "admin", Email: "admin@test.cd", Role: " Admin "},
		"member":  {ID: "member", Email: "member@test.cd"},
		"unknown": {ID: "unknown", Email: "unknown@test.cd", Role: "sensei"},
	}
	resolver := NewDefaultRoleResolver([]string{"BOSS@test.cd", " "}, profiles, nil)

	tests := []struct {
		name string
		id   Identity
		want Resolution
	}{
		{name: "allow-listed email wins over stored role", id: Identity{ID: "boss", Email: "Boss@Test.cd"}, want: Resolution{Role: RoleAdmin, IsAdmin: true}},
		{name: "allow-listed without profile", id: Identity{ID: "ghost", Email: "boss@test.cd"}, want: Resolution{Role: RoleAdmin, IsAdmin: true}},
		{name: "stored instructor", id: Identity{ID: "coach", Email: "coach@test.cd"}, want: Resolution{Role: RoleInstructor, IsInstructor: true}},
		{name: "stored admin", id: Identity{ID: "admin", Email: "admin@test.cd"}, want: Resolution{Role: RoleAdmin, IsAdmin: true}},
		{name: "no stored role", id: Identity{ID: "member", Email: "member@test.cd"}, want: Resolution{Role: RoleUser}},
		{name: "unknown stored role", id: Identity{ID: "unknown", Email: "unknown@test.cd"}, want: Resolution{Role: RoleUser}},
		{name: "no profile", id: Identity{ID: "ghost", Email: "ghost@test.cd"}, want: Resolution{Role: RoleUser}},
		{name: "store failure degrades to user", id: Identity{ID: "broken", Email: "broken@test.cd"}, want: Resolution{Role: RoleUser}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolver.Resolve(context.Background(), tt.id); got != tt.want {
				t.Errorf("Resolve() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRoleResolver_chain(t *testing.T) {
	calls := 0
	counting := RoleStrategyFunc(func(context.Context, Identity) (string, bool, error) {
		calls++
		return "", false, nil
	})
	failing := RoleStrategyFunc(func(context.Context, Identity) (string, bool, error) {
		return RoleAdmin, true, errors.New("boom")
	})

	r := NewRoleResolver(nil, counting, DefaultStrategy(RoleInstructor), failing)
	if got := r.Principal(context.Background(), Identity{ID: "x"}); got.Role != RoleInstructor || got.ID != "x" {
		t.Errorf("Principal() = %+v, want instructor x", got)
	}
	if calls != 1 {
		t.Errorf("strategy called %d times, want 1", calls)
	}

	r = NewRoleResolver(nil, failing, DefaultStrategy(RoleAdmin))
	if got := r.Resolve(context.Background(), Identity{ID: "x"}); got.IsAdmin {
		t.Errorf("Resolve() = %+v, want a non-admin on failure", got)
	}

	r = NewRoleResolver(nil)
	if got := r.Resolve(context.Background(), Identity{ID: "x"}); got.Role != RoleUser {
		t.Errorf("Resolve() = %+v, want user from an empty chain", got)
	}
}

func TestCanGrant(t *testing.T) {
	admin := Principal{Resolution: newResolution(RoleAdmin)}
	coach := Principal{Resolution: newResolution(RoleInstructor)}

	tests := []struct {
		name  string
		actor Principal
		role  string
		want  bool
	}{
		{name: "admin grants admin", actor: admin, role: RoleAdmin, want: true},
		{name: "admin grants instructor", actor: admin, role: RoleInstructor, want: true},
		{name: "admin clears role", actor: admin, role: "", want: true},
		{name: "instructor grants user", actor: coach, role: RoleUser, want: true},
		{name: "instructor cannot grant admin", actor: coach, role: RoleAdmin, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanGrant(tt.actor, tt.role); got != tt.want {
				t.Errorf("CanGrant() = %v, want %v", got, tt.want)
			}
		})
	}
}
