package user

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
	texttmpl "text/template"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/dojo/core"
)

var (
	salt = []byte("dojo.core.user.reset")

	// errors
	ErrInvalidResetToken = core.NewError(core.ErrInvalid, "invalid password reset link")
	ErrResetTokenExpired = core.NewError(core.ErrInvalid, "password reset link has expired")
)

var passwordResetTmpl = texttmpl.Must(texttmpl.New("reset").Parse(`Hi {{.Name}},

You asked to reset your {{.AppName}} password. Follow this link to choose a new one:

{{.URL}}

The link expires in {{.Days}} day(s). If you did not ask for it, you can ignore this e-mail.
`))

// EncodeUID base64 encodes the user's ID for reset links.
func EncodeUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(usr.ID))
}

func decodeUID(uid string) (string, error) {
	idBytes, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(idBytes), nil
}

// ResetTokens makes and checks password reset tokens. A token is bound to the user's password hash
// and last login, so it stops working once used or after the user logs in again.
type ResetTokens struct {
	key     []byte
	timeout time.Duration
	nowFunc func() time.Time
}

func NewResetTokens(secretKey string, timeout time.Duration) *ResetTokens {
	key := sha256.Sum256(append(append([]byte(nil), salt...), secretKey...))
	return &ResetTokens{key: key[:], timeout: timeout, nowFunc: time.Now}
}

func (rt *ResetTokens) Make(usr User) string {
	return rt.makeWithTimestamp(usr, numDaysSince2001(rt.nowFunc()))
}

func (rt *ResetTokens) Verify(usr User, token string) error {
	parts := strings.SplitN(token, "-", 2)
	if len(parts) < 2 {
		return ErrInvalidResetToken
	}

	data, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(parts[0])
	if err != nil {
		return ErrInvalidResetToken
	}
	ts, err := strconv.Atoi(string(data))
	if err != nil {
		return ErrInvalidResetToken
	}

	// check that the token has not been tampered with
	if subtle.ConstantTimeCompare([]byte(rt.makeWithTimestamp(usr, ts)), []byte(token)) == 0 {
		return ErrInvalidResetToken
	}

	// check that the timestamp is within limit
	if numDaysSince2001(rt.nowFunc())-ts > int(rt.timeout/(24*time.Hour)) {
		return ErrResetTokenExpired
	}
	return nil
}

func (rt *ResetTokens) makeWithTimestamp(usr User, ts int) string {
	tsB32 := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(strconv.Itoa(ts)))
	h := hmac.New(sha256.New, rt.key)
	_, _ = h.Write(hashValue(usr, ts))
	return tsB32 + "-" + base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func numDaysSince2001(t time.Time) int {
	ref := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(math.Ceil(t.Sub(ref).Hours() / 24))
}

func hashValue(usr User, ts int) []byte {
	var val bytes.Buffer
	val.WriteString(usr.ID)
	val.Write(usr.PasswordHash)
	if !usr.LastLogin.IsZero() {
		val.WriteString(usr.LastLogin.UTC().Format(time.RFC3339Nano))
	}
	val.WriteString(strconv.Itoa(ts))
	return val.Bytes()
}

// PasswordReset sets a new password from a reset link.
type PasswordReset struct {
	UID             string `json:"uid" validate:"required"`
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (pr *PasswordReset) Validate(validate *validator.Validate) error {
	pr.UID = core.CleanString(pr.UID)
	pr.Token = core.CleanString(pr.Token)
	return validate.Struct(pr)
}

// Resetter runs the password reset flow: a signed link by e-mail, then a new password.
type Resetter struct {
	svc      Service
	tokens   *ResetTokens
	mail     core.EmailService
	appName  string
	baseURL  string
	validate *validator.Validate
}

func NewResetter(conf *core.Config, svc Service, mail core.EmailService, validate *validator.Validate) *Resetter {
	return &Resetter{
		svc:      svc,
		tokens:   NewResetTokens(conf.SecretKey, conf.PasswordResetTimeoutDelta),
		mail:     mail,
		appName:  conf.AppName,
		baseURL:  strings.TrimRight(conf.FrontendBaseURL, "/"),
		validate: validate,
	}
}

// Request e-mails a reset link to the active user with this address.
// Unknown and deactivated addresses are ignored without error.
func (r *Resetter) Request(ctx context.Context, email string) error {
	usr, err := r.svc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return errors.Wrap(err, "finding user by email")
	}
	if !usr.IsActive {
		return nil
	}

	msg := &core.EmailMessage{
		To:      core.Addresses(usr.Email),
		Subject: "Password reset",
	}
	data := map[string]interface{}{
		"Name":    usr.Name,
		"AppName": r.appName,
		"URL":     fmt.Sprintf("%s/password-reset/%s/%s", r.baseURL, EncodeUID(usr), r.tokens.Make(usr)),
		"Days":    int(r.tokens.timeout / (24 * time.Hour)),
	}
	if err = msg.RenderBody(passwordResetTmpl, data); err != nil {
		return errors.Wrap(err, "rendering password reset")
	}
	r.mail.SendMessages(msg)
	return nil
}

// Confirm checks the link of pr and sets the new password.
func (r *Resetter) Confirm(ctx context.Context, pr PasswordReset) (User, error) {
	id, err := decodeUID(pr.UID)
	if err != nil {
		return User{}, ErrInvalidResetToken
	}
	usr, err := r.svc.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrInvalidResetToken
		}
		return User{}, errors.Wrap(err, "finding user by ID")
	}
	if err = r.tokens.Verify(usr, pr.Token); err != nil {
		return User{}, err
	}

	// the password policy applies as for any other password change
	uu := UpdateUser{Password: pr.Password, PasswordConfirm: pr.PasswordConfirm}
	if err = uu.Validate(usr, r.validate); err != nil {
		return User{}, err
	}
	return r.svc.Update(ctx, usr.ID, uu)
}
