package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	stdmail "net/mail"
	"regexp"
	"strings"
	"time"

	gomessage "github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	htmlcharset "golang.org/x/net/html/charset"
)

const (
	defaultBodyLimit       = 128 * 1024
	defaultAttachmentLimit = 25 * 1024 * 1024
)

func init() {
	gomessage.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return htmlcharset.NewReaderLabel(charset, input)
	}
}

// Envelope is the parsed view of one inbound message.
type Envelope struct {
	Subject      string
	From         string
	FromName     string
	ReplyTo      string
	MessageID    string
	ReferenceIDs []string
	Date         time.Time
	Body         string
	Attachments  []AttachmentPart
}

// AttachmentPart is one decoded attachment.
type AttachmentPart struct {
	Filename    string
	ContentType string
	Data        []byte
}

// MessageParser turns raw RFC822 payloads into envelopes. Parsing is lenient:
// a malformed message still yields a usable envelope with the raw payload as
// body, never an error.
type MessageParser struct {
	bodyLimit       int64
	attachmentLimit int64
	decoder         *mime.WordDecoder
	logger          *log.Logger
}

// MessageParserOption customizes a MessageParser.
type MessageParserOption func(*MessageParser)

// WithParserLogger overrides the logger used for diagnostics.
func WithParserLogger(logger *log.Logger) MessageParserOption {
	return func(p *MessageParser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithParserBodyLimit constrains how much body text is kept.
func WithParserBodyLimit(limit int64) MessageParserOption {
	return func(p *MessageParser) {
		if limit > 0 {
			p.bodyLimit = limit
		}
	}
}

// WithParserAttachmentLimit constrains how many attachment bytes are buffered.
func WithParserAttachmentLimit(limit int64) MessageParserOption {
	return func(p *MessageParser) {
		if limit > 0 {
			p.attachmentLimit = limit
		}
	}
}

// NewMessageParser builds a parser with default limits.
func NewMessageParser(opts ...MessageParserOption) *MessageParser {
	p := &MessageParser{
		bodyLimit:       defaultBodyLimit,
		attachmentLimit: defaultAttachmentLimit,
		decoder:         &mime.WordDecoder{},
		logger:          log.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Parse extracts the envelope from a raw message.
func (p *MessageParser) Parse(raw []byte) Envelope {
	var env Envelope
	if len(raw) == 0 {
		return env
	}
	reader, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		p.logf("parser: structured parse failed: %v", err)
		return p.legacyEnvelope(raw)
	}

	header := &reader.Header
	env.Subject = p.subjectFromHeader(header)
	env.From, env.FromName = p.fromHeader(header)
	env.ReplyTo = p.replyToHeader(header)
	env.MessageID = normalizeMessageID(header.Get("Message-Id"))
	referenceValues := header.Values("References")
	if inReply := header.Get("In-Reply-To"); inReply != "" {
		referenceValues = append(referenceValues, inReply)
	}
	env.ReferenceIDs = uniqueMessageIDs(referenceValues...)
	if date, err := header.Date(); err == nil {
		env.Date = date
	}

	body, attachments := p.readBodyParts(reader)
	env.Body = body
	env.Attachments = attachments
	if env.Body == "" {
		legacy := p.legacyEnvelope(raw)
		env.Body = legacy.Body
		if env.Subject == "" {
			env.Subject = legacy.Subject
		}
		if env.From == "" {
			env.From = legacy.From
		}
	}
	return env
}

func (p *MessageParser) legacyEnvelope(raw []byte) Envelope {
	var env Envelope
	reader, err := stdmail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		p.logf("parser: message parse failed: %v", err)
		env.Body = p.fallbackBody(raw)
		return env
	}
	env.Subject = p.decodeHeader(reader.Header.Get("Subject"))
	env.From, env.FromName = p.parseAddress(reader.Header.Get("From"))
	env.ReplyTo, _ = p.parseAddress(reader.Header.Get("Reply-To"))
	env.MessageID = normalizeMessageID(reader.Header.Get("Message-Id"))
	env.ReferenceIDs = uniqueMessageIDs(reader.Header.Get("References"), reader.Header.Get("In-Reply-To"))
	body, err := io.ReadAll(io.LimitReader(reader.Body, p.bodyLimit))
	if err != nil {
		p.logf("parser: read body failed: %v", err)
		env.Body = p.fallbackBody(raw)
	} else {
		env.Body = string(body)
	}
	return env
}

func (p *MessageParser) subjectFromHeader(header *gomail.Header) string {
	if subject, err := header.Subject(); err == nil {
		return subject
	}
	return p.decodeHeader(header.Get("Subject"))
}

func (p *MessageParser) fromHeader(header *gomail.Header) (string, string) {
	if list, err := header.AddressList("From"); err == nil && len(list) > 0 {
		return strings.TrimSpace(list[0].Address), strings.TrimSpace(list[0].Name)
	}
	return p.parseAddress(header.Get("From"))
}

func (p *MessageParser) replyToHeader(header *gomail.Header) string {
	if list, err := header.AddressList("Reply-To"); err == nil && len(list) > 0 {
		return strings.TrimSpace(list[0].Address)
	}
	addr, _ := p.parseAddress(header.Get("Reply-To"))
	return addr
}

func (p *MessageParser) readBodyParts(reader *gomail.Reader) (string, []AttachmentPart) {
	var plainCandidate, htmlCandidate string
	var attachments []AttachmentPart
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			p.logf("parser: read part failed: %v", err)
			break
		}
		switch header := part.Header.(type) {
		case *gomail.InlineHeader:
			body, mimeType := p.extractInlineBody(part, header)
			if body == "" {
				continue
			}
			switch {
			case strings.HasPrefix(mimeType, "text/plain"):
				if plainCandidate == "" {
					plainCandidate = body
				}
			case strings.HasPrefix(mimeType, "text/html"):
				if htmlCandidate == "" {
					htmlCandidate = body
				}
			default:
				if plainCandidate == "" && htmlCandidate == "" {
					plainCandidate = body
				}
			}
		case *gomail.AttachmentHeader:
			if att := p.extractAttachment(part, header); att != nil {
				attachments = append(attachments, *att)
			}
		}
	}
	if plainCandidate != "" {
		return plainCandidate, attachments
	}
	return htmlCandidate, attachments
}

func (p *MessageParser) extractInlineBody(part *gomail.Part, header *gomail.InlineHeader) (string, string) {
	mimeType, _, err := header.ContentType()
	if err != nil {
		mimeType = parseMediaType(header.Get("Content-Type"))
	}
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType == "" {
		mimeType = "text/plain"
	}
	data, err := io.ReadAll(io.LimitReader(part.Body, p.bodyLimit))
	if err != nil {
		p.logf("parser: read part body failed: %v", err)
		return "", ""
	}
	return string(data), mimeType
}

func (p *MessageParser) extractAttachment(part *gomail.Part, header *gomail.AttachmentHeader) *AttachmentPart {
	filename, err := header.Filename()
	if err != nil || strings.TrimSpace(filename) == "" {
		filename = fmt.Sprintf("attachment-%d.bin", time.Now().UnixNano())
	}
	mimeType, _, ctErr := header.ContentType()
	if ctErr != nil || strings.TrimSpace(mimeType) == "" {
		mimeType = parseMediaType(header.Get("Content-Type"))
	}
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	data, err := io.ReadAll(io.LimitReader(part.Body, p.attachmentLimit))
	if err != nil {
		p.logf("parser: read attachment failed: %v", err)
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	return &AttachmentPart{Filename: filename, ContentType: mimeType, Data: data}
}

func (p *MessageParser) decodeHeader(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || p.decoder == nil {
		return value
	}
	decoded, err := p.decoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

func (p *MessageParser) parseAddress(value string) (string, string) {
	value = p.decodeHeader(value)
	if value == "" {
		return "", ""
	}
	if addrs, err := stdmail.ParseAddressList(value); err == nil && len(addrs) > 0 {
		return strings.TrimSpace(addrs[0].Address), strings.TrimSpace(addrs[0].Name)
	}
	if addr, err := stdmail.ParseAddress(value); err == nil {
		return strings.TrimSpace(addr.Address), strings.TrimSpace(addr.Name)
	}
	return strings.TrimSpace(value), ""
}

func (p *MessageParser) fallbackBody(raw []byte) string {
	if int64(len(raw)) > p.bodyLimit {
		raw = raw[:p.bodyLimit]
	}
	return string(raw)
}

func (p *MessageParser) logf(format string, args ...any) {
	if p == nil || p.logger == nil {
		return
	}
	p.logger.Printf(format, args...)
}

func parseMediaType(value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(raw); err == nil {
		return parsed
	}
	return raw
}

var messageIDPattern = regexp.MustCompile(`<([^<>]+)>`)

func uniqueMessageIDs(values ...string) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, raw := range values {
		for _, candidate := range parseMessageIDs(raw) {
			if _, ok := seen[candidate]; ok {
				continue
			}
			seen[candidate] = struct{}{}
			ids = append(ids, candidate)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return ids
}

func parseMessageIDs(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	matches := messageIDPattern.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		if id := normalizeMessageID(raw); id != "" {
			return []string{id}
		}
		return nil
	}
	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		if id := normalizeMessageID(match[1]); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func normalizeMessageID(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	value = strings.Trim(value, "<>")
	value = strings.Trim(value, "\"")
	return strings.TrimSpace(value)
}
