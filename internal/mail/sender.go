package mail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"mailtrace/backend/internal/config"
)

// Attachment 出站附件
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// OutboundMessage 一封待投递的邮件。正文为 HTML（追踪像素已注入）。
type OutboundMessage struct {
	From       string
	To         string
	Subject    string
	HTMLBody   string
	Attachment *Attachment
}

// Sender 邮件投递接口
type Sender interface {
	Send(msg *OutboundMessage) error
}

// SMTPSender 通过上游 SMTP 中继投递邮件。
type SMTPSender struct {
	addr     string
	username string
	password string
	log      *zap.Logger
}

// NewSMTPSender 创建 SMTP 投递器。
func NewSMTPSender(cfg *config.MailConfig, log *zap.Logger) *SMTPSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &SMTPSender{
		addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		username: cfg.Username,
		password: cfg.Password,
		log:      log,
	}
}

// Send 组装 MIME 并通过 SMTP 中继投递。
func (s *SMTPSender) Send(msg *OutboundMessage) error {
	raw, err := BuildMIME(msg)
	if err != nil {
		return fmt.Errorf("build mime: %w", err)
	}

	var client sasl.Client
	if s.username != "" {
		client = sasl.NewPlainClient("", s.username, s.password)
	}

	if err := smtp.SendMail(s.addr, client, msg.From, []string{msg.To}, bytes.NewReader(raw)); err != nil {
		s.log.Error("smtp delivery failed",
			zap.String("to", msg.To),
			zap.Error(err),
		)
		return fmt.Errorf("smtp send: %w", err)
	}

	s.log.Info("email delivered",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// BuildMIME 组装出站邮件的原始 MIME 内容。
// 无附件时生成单部分 text/html，有附件时生成 multipart/mixed。
func BuildMIME(msg *OutboundMessage) ([]byte, error) {
	var buf bytes.Buffer

	writeHeader := func(key, value string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", key, value)
	}

	writeHeader("From", msg.From)
	writeHeader("To", msg.To)
	writeHeader("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader("Date", time.Now().UTC().Format(time.RFC1123Z))
	writeHeader("MIME-Version", "1.0")

	if msg.Attachment == nil {
		writeHeader("Content-Type", `text/html; charset="utf-8"`)
		buf.WriteString("\r\n")
		buf.WriteString(msg.HTMLBody)
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	writeHeader("Content-Type", fmt.Sprintf(`multipart/mixed; boundary="%s"`, mw.Boundary()))
	buf.WriteString("\r\n")

	// HTML 正文部分
	bodyHeader := textproto.MIMEHeader{}
	bodyHeader.Set("Content-Type", `text/html; charset="utf-8"`)
	bodyPart, err := mw.CreatePart(bodyHeader)
	if err != nil {
		return nil, err
	}
	if _, err := bodyPart.Write([]byte(msg.HTMLBody)); err != nil {
		return nil, err
	}

	// 附件部分，base64 编码
	att := msg.Attachment
	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	attHeader := textproto.MIMEHeader{}
	attHeader.Set("Content-Type", contentType)
	attHeader.Set("Content-Transfer-Encoding", "base64")
	attHeader.Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s"`, mime.QEncoding.Encode("utf-8", att.Filename)))
	attPart, err := mw.CreatePart(attHeader)
	if err != nil {
		return nil, err
	}

	encoded := base64.StdEncoding.EncodeToString(att.Content)
	// 按 RFC 2045 每 76 字符折行
	for len(encoded) > 0 {
		n := 76
		if len(encoded) < n {
			n = len(encoded)
		}
		if _, err := attPart.Write([]byte(encoded[:n] + "\r\n")); err != nil {
			return nil, err
		}
		encoded = encoded[n:]
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
