package user

import (
	"testing"
	"time"
)

func TestResetTokens(t *testing.T) {
	timeout := 3 * 24 * time.Hour
	rt := NewResetTokens("secret", timeout)

	now := time.Now()
	usr := User{ID: "u1", Name: "T", Email: "t@test.test", IsActive: true, CreatedAt: now, UpdatedAt: now, LastLogin: now}
	_ = usr.SetPassword("pwd")

	validToken := rt.Make(usr)

	// generate an expired token
	dayLate := timeout + (24 * time.Hour)
	rt.nowFunc = func() time.Time { return time.Now().Add(-dayLate) }
	expiredToken := rt.Make(usr)
	rt.nowFunc = time.Now // reset

	loggedIn := usr
	loggedIn.LastLogin = now.Add(time.Minute)
	otherKey := NewResetTokens("other-secret", timeout)

	tests := []struct {
		name    string
		usr     User
		token   string
		wantErr error
	}{
		{name: "no token", usr: usr, wantErr: ErrInvalidResetToken},
		{name: "invalid parts len", usr: usr, token: "lmaooolol", wantErr: ErrInvalidResetToken},
		{name: "invalid base32", usr: usr, token: "hahaha-sigsig-sig", wantErr: ErrInvalidResetToken},
		{name: "invalid timestamp", usr: usr, token: "NRXWY-sigsig-sig", wantErr: ErrInvalidResetToken},
		{name: "invalid signature", usr: usr, token: "HE4TS-sigsig-sig", wantErr: ErrInvalidResetToken},
		{name: "other secret", usr: usr, token: otherKey.Make(usr), wantErr: ErrInvalidResetToken},
		{name: "logged in since", usr: loggedIn, token: validToken, wantErr: ErrInvalidResetToken},
		{name: "expired token", usr: usr, token: expiredToken, wantErr: ErrResetTokenExpired},
		{name: "valid token", usr: usr, token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := rt.Verify(tt.usr, tt.token); err != tt.wantErr {
				t.Errorf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncodeUID(t *testing.T) {
	usr := User{ID: "0b6d3c0e-6f0c-4a8e-9a55-1f1f0c1d2e3f"}
	id, err := decodeUID(EncodeUID(usr))
	if err != nil || id != usr.ID {
		t.Errorf("decodeUID(EncodeUID()) = %q, %v; want %q", id, err, usr.ID)
	}
	if _, err = decodeUID("%%%"); err == nil {
		t.Error("decodeUID(%%%) error = nil")
	}
}
