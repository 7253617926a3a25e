package client

import (
	"fmt"
	"net/textproto"
	"strings"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// pdfPartHeader is multipart.CreateFormFile with an application/pdf content
// type instead of application/octet-stream, so the server's declared-type
// check passes.
func pdfPartHeader(field, fileName string) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(fileName)))
	h.Set("Content-Type", "application/pdf")
	return h
}
