package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildMultipartMessage() []byte {
	return []byte(strings.Join([]string{
		"From: Maria Souza <maria@cliente.example>",
		"Reply-To: suporte@cliente.example",
		"To: helpdesk@deskgo.example",
		"Subject: Impressora parou",
		"Message-Id: <abc-123@cliente.example>",
		"In-Reply-To: <root-1@cliente.example>",
		"References: <root-1@cliente.example> <mid-2@cliente.example>",
		"Date: Mon, 13 Jul 2026 10:00:00 +0000",
		"MIME-Version: 1.0",
		"Content-Type: multipart/mixed; boundary=frontier",
		"",
		"--frontier",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>versao html</p>",
		"--frontier",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"A impressora do terceiro andar parou de funcionar.",
		"--frontier",
		"Content-Type: application/pdf",
		"Content-Disposition: attachment; filename=laudo.pdf",
		"Content-Transfer-Encoding: base64",
		"",
		"JVBERi0xLjQ=",
		"--frontier--",
		"",
	}, "\r\n"))
}

func TestMessageParserMultipart(t *testing.T) {
	parser := NewMessageParser()
	env := parser.Parse(buildMultipartMessage())

	assert.Equal(t, "Impressora parou", env.Subject)
	assert.Equal(t, "maria@cliente.example", env.From)
	assert.Equal(t, "Maria Souza", env.FromName)
	assert.Equal(t, "suporte@cliente.example", env.ReplyTo)
	assert.Equal(t, "abc-123@cliente.example", env.MessageID)
	assert.Equal(t, []string{"root-1@cliente.example", "mid-2@cliente.example"}, env.ReferenceIDs)
	assert.Equal(t, "A impressora do terceiro andar parou de funcionar.", strings.TrimSpace(env.Body))

	require.Len(t, env.Attachments, 1)
	assert.Equal(t, "laudo.pdf", env.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", env.Attachments[0].ContentType)
	assert.Equal(t, []byte("%PDF-1.4"), env.Attachments[0].Data)
}

func TestMessageParserEncodedSubject(t *testing.T) {
	raw := []byte(strings.Join([]string{
		"From: joao@cliente.example",
		"Subject: =?UTF-8?Q?Atualiza=C3=A7=C3=A3o_urgente?=",
		"Message-Id: <enc-1@cliente.example>",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Sistema fora do ar.",
		"",
	}, "\r\n"))

	env := NewMessageParser().Parse(raw)
	assert.Equal(t, "Atualização urgente", env.Subject)
	assert.Equal(t, "joao@cliente.example", env.From)
	assert.Equal(t, "Sistema fora do ar.", strings.TrimSpace(env.Body))
}

func TestMessageParserHTMLOnly(t *testing.T) {
	raw := []byte(strings.Join([]string{
		"From: ana@cliente.example",
		"Subject: sem texto plano",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<b>conteudo html</b>",
		"",
	}, "\r\n"))

	env := NewMessageParser().Parse(raw)
	assert.Contains(t, env.Body, "conteudo html")
}

func TestMessageParserMalformedFallsBackToRaw(t *testing.T) {
	raw := []byte("not a mime message at all")
	env := NewMessageParser().Parse(raw)
	assert.Equal(t, "not a mime message at all", env.Body)
	assert.Empty(t, env.MessageID)
}

func TestMessageParserEmptyInput(t *testing.T) {
	env := NewMessageParser().Parse(nil)
	assert.Empty(t, env.Body)
	assert.Empty(t, env.Subject)
}

func TestUniqueMessageIDs(t *testing.T) {
	ids := uniqueMessageIDs("<a@x> <b@x>", "<b@x>", "", "c@x")
	assert.Equal(t, []string{"a@x", "b@x", "c@x"}, ids)
	assert.Nil(t, uniqueMessageIDs("", "   "))
}

func TestNormalizeMessageID(t *testing.T) {
	assert.Equal(t, "a@x", normalizeMessageID(" <a@x> "))
	assert.Equal(t, "a@x", normalizeMessageID("a@x"))
	assert.Empty(t, normalizeMessageID("  "))
}
