package ogc

import (
	"mime"
	"strings"

	"github.com/beevik/etree"

	"github.com/mohammed-shakir/geoportal/internal/core/apperr"
)

// ServiceExceptionMIME is the content type of the OGC 1.1.1 exception envelope.
const ServiceExceptionMIME = "application/vnd.ogc.se_xml"

func IsServiceException(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	return strings.EqualFold(mt, ServiceExceptionMIME)
}

// ExceptionText returns the ServiceException message of a document, if it carries one.
func ExceptionText(root *etree.Element) (string, bool) {
	if root == nil {
		return "", false
	}
	if root.Tag == "ServiceException" {
		return Text(root), true
	}
	if se := Child(root, "ServiceException"); se != nil {
		return Text(se), true
	}
	return "", false
}

// RemoteError turns an exception body into a RemoteService error.
func RemoteError(body []byte) error {
	root, err := Parse(body)
	if err != nil {
		return apperr.Wrap(apperr.KindRemoteService, err, "unreadable service exception")
	}
	if msg, ok := ExceptionText(root); ok {
		return apperr.New(apperr.KindRemoteService, "%s", msg)
	}
	return apperr.New(apperr.KindRemoteService, "service exception without message")
}
