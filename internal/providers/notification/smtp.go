package notification

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/bwmarrin/snowflake"
	"github.com/craftbase/meridian/internal/config"
)

// SMTPProvider mails settlement notices to a configured operations inbox.
// Owners are identified by id only here; resolving an owner to their own
// address is the mail pipeline's job, not this engine's.
type SMTPProvider struct {
	cfg config.NotifyConfig
}

func NewSMTP(cfg config.NotifyConfig) *SMTPProvider {
	return &SMTPProvider{cfg: cfg}
}

func (p *SMTPProvider) Notify(ctx context.Context, ownerID, settlementID snowflake.ID) error {
	auth := smtp.PlainAuth("", p.cfg.SMTPUsername, p.cfg.SMTPPassword, p.cfg.SMTPHost)
	addr := fmt.Sprintf("%s:%d", p.cfg.SMTPHost, p.cfg.SMTPPort)

	subject := fmt.Sprintf("Settlement %s created", settlementID.String())
	body := fmt.Sprintf("A settlement was created.\r\n\r\nSettlement: %s\r\nOwner: %s\r\n",
		settlementID.String(), ownerID.String())
	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\n\r\n%s", p.cfg.SMTPTo, subject, body))

	return smtp.SendMail(addr, auth, p.cfg.SMTPFrom, []string{p.cfg.SMTPTo}, msg)
}
