package source

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"

	"github.com/TobiSchelling/sciencesync/internal/extract"
)

var wordDecoder = &mime.WordDecoder{CharsetReader: charset.NewReaderLabel}

func readMessageFile(path string) ([]extract.Alert, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	a, err := parseMessage(f)
	if err != nil {
		return nil, err
	}
	if a.ID == "" {
		a.ID = filepath.Base(path)
	}
	if a.ReceivedAt.IsZero() {
		if info, err := f.Stat(); err == nil {
			a.ReceivedAt = info.ModTime().UTC()
		}
	}
	return []extract.Alert{a}, nil
}

// parseMessage reads an RFC 5322 message. The HTML part of a multipart message is
// preferred over the plain text part.
func parseMessage(r io.Reader) (extract.Alert, error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return extract.Alert{}, fmt.Errorf("parsing message: %w", err)
	}

	var a extract.Alert
	a.ID = strings.Trim(msg.Header.Get("Message-Id"), "<> ")
	subject := msg.Header.Get("Subject")
	if decoded, err := wordDecoder.DecodeHeader(subject); err == nil {
		subject = decoded
	}
	a.Subject = strings.TrimSpace(subject)
	if date, err := msg.Header.Date(); err == nil {
		a.ReceivedAt = date.UTC()
	}

	body, err := messageBody(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return extract.Alert{}, err
	}
	a.Body = body
	return a, nil
}

func messageBody(contentType, encoding string, body io.Reader) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if !strings.HasPrefix(mediaType, "multipart/") {
		data, err := io.ReadAll(decodeTransfer(encoding, body))
		if err != nil {
			return "", fmt.Errorf("reading body: %w", err)
		}
		if !strings.HasPrefix(mediaType, "text/") {
			return string(data), nil
		}
		return decodeText(data, contentType, params["charset"]), nil
	}

	var plain, html string
	mr := multipart.NewReader(body, params["boundary"])
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("reading multipart body: %w", err)
		}
		text, err := messageBody(part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), part)
		if err != nil {
			return "", err
		}
		partType, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		switch {
		case partType == "text/html" && html == "":
			html = text
		case partType == "text/plain" && plain == "":
			plain = text
		case strings.HasPrefix(partType, "multipart/") && html == "":
			html = text
		}
	}
	if html != "" {
		return html, nil
	}
	return plain, nil
}

// decodeText converts a text part to UTF-8. Undeclared bodies that are already valid UTF-8
// are kept; otherwise the charset parameter, a BOM or an HTML meta tag decides.
func decodeText(data []byte, contentType, declared string) string {
	if declared == "" && utf8.Valid(data) {
		return string(data)
	}
	enc, _, _ := charset.DetermineEncoding(data, contentType)
	if out, err := enc.NewDecoder().Bytes(data); err == nil {
		data = out
	}
	return strings.ToValidUTF8(string(data), "\uFFFD")
}

func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	default:
		return r
	}
}
