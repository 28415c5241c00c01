package ogc

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html/charset"
)

var bom = []byte("\xef\xbb\xbf")

// Parse strips a leading byte-order mark and reads the document with etree. Non UTF-8
// documents are transcoded from their declared encoding.
func Parse(data []byte) (*etree.Element, error) {
	data = bytes.TrimLeft(bytes.TrimPrefix(data, bom), " \t\r\n")
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charset.NewReaderLabel
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("decode xml: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, errors.New("decode xml: no root element")
	}
	return root, nil
}

// The helpers below accept nil elements so optional sections chain without checks.
// Unprefixed tags match any namespace.

func Child(e *etree.Element, tag string) *etree.Element {
	if e == nil {
		return nil
	}
	return e.SelectElement(tag)
}

func Children(e *etree.Element, tag string) []*etree.Element {
	if e == nil {
		return nil
	}
	return e.SelectElements(tag)
}

// Find follows a slash separated path of tags, taking the first match at each step.
func Find(e *etree.Element, path string) *etree.Element {
	for _, part := range strings.Split(path, "/") {
		if e = Child(e, part); e == nil {
			return nil
		}
	}
	return e
}

// FindAll returns every element matching the last step of path under the first match of its parent.
func FindAll(e *etree.Element, path string) []*etree.Element {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return Children(e, path)
	}
	return Children(Find(e, path[:i]), path[i+1:])
}

func Text(e *etree.Element) string {
	if e == nil {
		return ""
	}
	return strings.TrimSpace(e.Text())
}

func ChildText(e *etree.Element, tag string) string { return Text(Child(e, tag)) }

func FindText(e *etree.Element, path string) string { return Text(Find(e, path)) }

func Attr(e *etree.Element, key string) string {
	if e == nil {
		return ""
	}
	return e.SelectAttrValue(key, "")
}
