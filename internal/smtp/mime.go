package smtp

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"tempbox/backend/internal/domain"
)

// ParsedAttachment 解析出的附件
type ParsedAttachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ParsedEmail 解析后的邮件结构
type ParsedEmail struct {
	From        string
	Subject     string
	Date        time.Time
	Text        string
	HTML        string
	Attachments []ParsedAttachment
}

var wordDecoder = &mime.WordDecoder{
	CharsetReader: charsetReader,
}

// ParseEmail 把RFC 5322原文解析为结构化邮件。
// 头部与正文无法拆分时返回 ErrParseFailed；
// 单个MIME段解码失败只跳过该段，不影响整封邮件。
func ParseEmail(raw []byte) (*ParsedEmail, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, domain.ErrParseFailed
	}

	parsed := &ParsedEmail{
		From:    decodeHeader(msg.Header.Get("From")),
		Subject: decodeHeader(msg.Header.Get("Subject")),
	}
	if date, err := msg.Header.Date(); err == nil {
		parsed.Date = date
	} else {
		parsed.Date = time.Now()
	}

	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, params = "text/plain", nil
	}

	encoding := strings.ToLower(msg.Header.Get("Content-Transfer-Encoding"))
	walkPart(parsed, msg.Body, mediaType, params, encoding)
	return parsed, nil
}

// walkPart 递归处理MIME树的一个节点
func walkPart(parsed *ParsedEmail, body io.Reader, mediaType string, params map[string]string, encoding string) {
	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return
		}
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}
			partType, partParams, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
			if err != nil {
				partType, partParams = "text/plain", nil
			}
			partEncoding := strings.ToLower(part.Header.Get("Content-Transfer-Encoding"))
			partDisposition, dispParams, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition"))

			filename := part.FileName()
			if filename == "" && dispParams != nil {
				filename = dispParams["filename"]
			}
			if filename == "" && partParams != nil {
				filename = partParams["name"]
			}

			if partDisposition == "attachment" || filename != "" {
				content, err := decodeBody(part, partEncoding)
				if err != nil {
					continue
				}
				parsed.Attachments = append(parsed.Attachments, ParsedAttachment{
					Filename:    decodeHeader(filename),
					ContentType: partType,
					Content:     content,
				})
				continue
			}
			walkPart(parsed, part, partType, partParams, partEncoding)
		}
		return
	}

	content, err := decodeBody(body, encoding)
	if err != nil {
		return
	}
	text := decodeCharset(content, params["charset"])

	switch {
	case mediaType == "text/plain" && parsed.Text == "":
		parsed.Text = text
	case mediaType == "text/html" && parsed.HTML == "":
		parsed.HTML = text
	}
}

// decodeBody 按传输编码还原正文字节
func decodeBody(r io.Reader, encoding string) ([]byte, error) {
	switch encoding {
	case "base64":
		return io.ReadAll(base64.NewDecoder(base64.StdEncoding, newWhitespaceStripper(r)))
	case "quoted-printable":
		return io.ReadAll(quotedprintable.NewReader(r))
	default:
		return io.ReadAll(r)
	}
}

// decodeCharset 把指定字符集的字节转为UTF-8字符串，失败时原样返回
func decodeCharset(data []byte, charset string) string {
	if charset == "" || strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "us-ascii") {
		return string(data)
	}
	enc, err := ianaindex.MIME.Encoding(charset)
	if err != nil || enc == nil {
		return string(data)
	}
	decoded, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return string(data)
	}
	return string(decoded)
}

// decodeHeader 解码 RFC 2047 编码的头部值
func decodeHeader(value string) string {
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.MIME.Encoding(charset)
	if err != nil || enc == nil {
		return input, nil
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

// whitespaceStripper 过滤base64正文中的换行与空白
type whitespaceStripper struct {
	r io.Reader
}

func newWhitespaceStripper(r io.Reader) io.Reader {
	return &whitespaceStripper{r: r}
}

func (w *whitespaceStripper) Read(p []byte) (int, error) {
	n, err := w.r.Read(p)
	out := 0
	for i := 0; i < n; i++ {
		switch p[i] {
		case '\r', '\n', ' ', '\t':
		default:
			p[out] = p[i]
			out++
		}
	}
	if out == 0 && err == nil && n > 0 {
		return w.Read(p)
	}
	return out, err
}
