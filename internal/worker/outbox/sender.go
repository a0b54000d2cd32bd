// Package outbox はオファーメールのバックグラウンド配信を提供する。
// ドレイナー、SMTP送信、リトライ/バックオフ戦略を含む。
package outbox

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/smnguyen/epulo/internal/model"
)

// EmailSenderService はメール送信の実行インターフェース。
type EmailSenderService interface {
	// Send は1通のメールを配信する。
	Send(email *model.EmailMessage) error
}

// SMTPSender はnet/smtp経由でメールを配信する実装。
type SMTPSender struct {
	addr string // host:port
	from string
}

// NewSMTPSender はSMTPSenderの新しいインスタンスを生成する。
func NewSMTPSender(addr, from string) *SMTPSender {
	return &SMTPSender{
		addr: addr,
		from: from,
	}
}

// Send は1通のメールをSMTPサーバー経由で配信する。
func (s *SMTPSender) Send(email *model.EmailMessage) error {
	msg := buildMessage(s.from, email)

	if err := smtp.SendMail(s.addr, nil, s.from, []string{email.RecipientEmail}, msg); err != nil {
		return fmt.Errorf("SMTP送信に失敗しました: %w", err)
	}

	return nil
}

// buildMessage はRFC 5322形式のメール本文を構築する。
// ヘッダーインジェクションを防ぐため件名の改行は除去する。
func buildMessage(from string, email *model.EmailMessage) []byte {
	subject := strings.NewReplacer("\r", "", "\n", "").Replace(email.Subject)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", email.RecipientEmail)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(email.Body)

	return []byte(b.String())
}

var _ EmailSenderService = (*SMTPSender)(nil)
