package activity

import (
	"context"
	texttmpl "text/template"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/dojo/core"
	"github.com/trezcool/dojo/core/user"
)

var helpRequestTmpl = texttmpl.Must(texttmpl.New("help").Parse(`{{.Name}} <{{.Email}}> asked for help:

{{.Message}}
`))

// HelpRequest is a member's message to the administrators.
type HelpRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
}

func (hr *HelpRequest) Validate(validate *validator.Validate) error {
	hr.Message = core.CleanString(hr.Message)
	return validate.Struct(hr)
}

// Notifier alerts the administrators. Delivery is best-effort.
type Notifier struct {
	mail        core.EmailService
	recorder    Recorder
	adminEmails []string
	logger      core.Logger
}

func NewNotifier(mail core.EmailService, recorder Recorder, adminEmails []string, logger core.Logger) *Notifier {
	return &Notifier{mail: mail, recorder: recorder, adminEmails: adminEmails, logger: logger}
}

// RequestHelp e-mails the member's message to the admin allow-list and records it.
// Only a malformed request is reported back; delivery failures are logged.
func (n *Notifier) RequestHelp(ctx context.Context, member user.User, message string) error {
	if message = core.CleanString(message); message == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "message", Error: "this field is required"})
	}

	msg := &core.EmailMessage{
		To:      core.Addresses(n.adminEmails...),
		Subject: "Help request from " + member.Name,
	}
	data := map[string]string{"Name": member.Name, "Email": member.Email, "Message": message}
	if err := msg.RenderBody(helpRequestTmpl, data); err != nil {
		n.logger.Error("rendering help request", errors.Wrap(err, "rendering help request"), member)
	} else if msg.HasRecipients() {
		n.mail.SendMessages(msg)
	} else {
		n.logger.Warn("help request dropped: no admin e-mail configured", member)
	}

	n.recorder.Record(ctx, Entry{
		ActorID:      member.ID,
		Action:       ActionHelpRequest,
		ResourceType: ResourceUser,
		ResourceID:   member.ID,
		Description:  message,
	})
	return nil
}
