package user_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/dojo/core"
	"github.com/trezcool/dojo/core/user"
	emailsvc "github.com/trezcool/dojo/services/email"
	logsvc "github.com/trezcool/dojo/services/logger"
	"github.com/trezcool/dojo/storage/database/inmem"
	"github.com/trezcool/dojo/tests"
)

var resetLinkRe = regexp.MustCompile(`/password-reset/([^/\s]+)/([^/\s]+)`)

func TestResetter(t *testing.T) {
	ctx := context.Background()
	conf := &core.Config{AppName: "Dojo", SecretKey: "secret", FrontendBaseURL: "http://dojo.test/", PasswordResetTimeoutDelta: 3 * 24 * time.Hour}
	repo := inmemdb.NewUserRepository(inmemdb.NewDB())
	svc := user.NewService(repo)
	mail := emailsvc.NewConsoleServiceMock(conf, logsvc.NewQuietLogger())
	validate, _ := testutil.NewValidator()
	resetter := user.NewResetter(conf, svc, mail, validate)

	ann := testutil.CreateUser(t, repo, "Ann", "ann@test.cd", "Old-pwd-42", "", true)
	testutil.CreateUser(t, repo, "Gone", "gone@test.cd", "Old-pwd-42", "", false)

	// link sends the reset request for email and returns the uid and token of the e-mailed link
	link := func(t *testing.T, email string) (uid, token string) {
		t.Helper()
		mail.Reset()
		require.NoError(t, resetter.Request(ctx, email))
		sent := mail.Sent()
		require.Len(t, sent, 1)
		m := resetLinkRe.FindStringSubmatch(sent[0].Body)
		require.Len(t, m, 3, sent[0].Body)
		return m[1], m[2]
	}

	t.Run("unknown and deactivated addresses are ignored", func(t *testing.T) {
		mail.Reset()
		assert.NoError(t, resetter.Request(ctx, "nobody@test.cd"))
		assert.NoError(t, resetter.Request(ctx, "gone@test.cd"))
		assert.Empty(t, mail.Sent())
	})

	t.Run("link", func(t *testing.T) {
		mail.Reset()
		require.NoError(t, resetter.Request(ctx, "ANN@test.cd"))
		sent := mail.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "ann@test.cd", sent[0].To[0].Address)
		assert.Contains(t, sent[0].Body, "http://dojo.test/password-reset/"+user.EncodeUID(ann)+"/")
	})

	t.Run("confirm", func(t *testing.T) {
		uid, token := link(t, ann.Email)

		tests := []struct {
			name    string
			pr      user.PasswordReset
			wantErr error
		}{
			{name: "bad uid", pr: user.PasswordReset{UID: "%%%", Token: token, Password: "New-pwd-42", PasswordConfirm: "New-pwd-42"}, wantErr: user.ErrInvalidResetToken},
			{name: "unknown uid", pr: user.PasswordReset{UID: "bm9ib2R5", Token: token, Password: "New-pwd-42", PasswordConfirm: "New-pwd-42"}, wantErr: user.ErrInvalidResetToken},
			{name: "bad token", pr: user.PasswordReset{UID: uid, Token: "HE4TS-sig", Password: "New-pwd-42", PasswordConfirm: "New-pwd-42"}, wantErr: user.ErrInvalidResetToken},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := resetter.Confirm(ctx, tt.pr)
				assert.ErrorIs(t, err, tt.wantErr)
			})
		}

		var vErrs validator.ValidationErrors
		_, err := resetter.Confirm(ctx, user.PasswordReset{UID: uid, Token: token, Password: "12345678", PasswordConfirm: "12345678"})
		assert.True(t, errors.As(err, &vErrs), "weak password: %v", err)

		usr, err := resetter.Confirm(ctx, user.PasswordReset{UID: uid, Token: token, Password: "New-pwd-42", PasswordConfirm: "New-pwd-42"})
		require.NoError(t, err)
		assert.NoError(t, usr.CheckPassword("New-pwd-42"))

		// the link is single use
		_, err = resetter.Confirm(ctx, user.PasswordReset{UID: uid, Token: token, Password: "Next-pwd-42", PasswordConfirm: "Next-pwd-42"})
		assert.ErrorIs(t, err, user.ErrInvalidResetToken)
	})

	t.Run("expired", func(t *testing.T) {
		user.SetResetNowFunc(resetter, func() time.Time { return time.Now().Add(-5 * 24 * time.Hour) })
		uid, token := link(t, ann.Email)
		user.SetResetNowFunc(resetter, time.Now)

		_, err := resetter.Confirm(ctx, user.PasswordReset{UID: uid, Token: token, Password: "New-pwd-43", PasswordConfirm: "New-pwd-43"})
		assert.ErrorIs(t, err, user.ErrResetTokenExpired)
	})
}
