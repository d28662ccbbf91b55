package mail

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMIME_PlainHTML(t *testing.T) {
	raw, err := BuildMIME(&OutboundMessage{
		From:     "sender@example.com",
		To:       "rcpt@example.com",
		Subject:  "Hello",
		HTMLBody: "<p>hi</p><img src=\"http://localhost/track/abc\" />",
	})
	require.NoError(t, err)

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "sender@example.com", msg.Header.Get("From"))
	assert.Equal(t, "rcpt@example.com", msg.Header.Get("To"))
	assert.Contains(t, msg.Header.Get("Content-Type"), "text/html")

	body, err := io.ReadAll(msg.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "/track/abc")
}

func TestBuildMIME_WithAttachment(t *testing.T) {
	raw, err := BuildMIME(&OutboundMessage{
		From:     "sender@example.com",
		To:       "rcpt@example.com",
		Subject:  "Report",
		HTMLBody: "<p>see attached</p>",
		Attachment: &Attachment{
			Filename:    "report.pdf",
			ContentType: "application/pdf",
			Content:     []byte("%PDF-1.4 fake content"),
		},
	})
	require.NoError(t, err)

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/mixed", mediaType)

	mr := multipart.NewReader(msg.Body, params["boundary"])

	// 第一部分是 HTML 正文
	part, err := mr.NextPart()
	require.NoError(t, err)
	assert.Contains(t, part.Header.Get("Content-Type"), "text/html")
	body, err := io.ReadAll(part)
	require.NoError(t, err)
	assert.Contains(t, string(body), "see attached")

	// 第二部分是 base64 编码的附件
	part, err = mr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", part.Header.Get("Content-Type"))
	assert.Equal(t, "base64", part.Header.Get("Content-Transfer-Encoding"))
	assert.Contains(t, part.Header.Get("Content-Disposition"), "report.pdf")

	encoded, err := io.ReadAll(part)
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(string(encoded)))
}

func TestBuildMIME_SubjectEncoding(t *testing.T) {
	raw, err := BuildMIME(&OutboundMessage{
		From:     "a@b.com",
		To:       "c@d.com",
		Subject:  "月度报告",
		HTMLBody: "<p>ok</p>",
	})
	require.NoError(t, err)

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)

	dec := new(mime.WordDecoder)
	subject, err := dec.DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "月度报告", subject)
}
