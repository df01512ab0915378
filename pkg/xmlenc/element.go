// Package xmlenc implements the XML document model shared by every
// table and descriptor serializer. Elements keep their attributes and
// children in insertion order so that a serialized document mirrors
// the binary layout.
package xmlenc

import (
	"bytes"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// Attr is a single named attribute
type Attr struct {
	Name  string
	Value string
}

// Element is one XML element with ordered attributes and children.
// An element carries either child elements or text content, mixed
// content is not used by any table representation.
type Element struct {
	Name     string
	Attrs    []Attr
	Children []*Element
	Text     string
}

// NewElement creates a standalone element
func NewElement(name string) *Element {
	return &Element{Name: name}
}

// AddElement appends a new child element and returns it
func (e *Element) AddElement(name string) *Element {
	child := &Element{Name: name}
	e.Children = append(e.Children, child)
	return child
}

// FindFirstChild returns the first child with the given name or nil
func (e *Element) FindFirstChild(name string) *Element {
	for _, child := range e.Children {
		if child.Name == name {
			return child
		}
	}
	return nil
}

// ChildrenByName returns all children with the given name, in order
func (e *Element) ChildrenByName(name string) []*Element {
	var out []*Element
	for _, child := range e.Children {
		if child.Name == name {
			out = append(out, child)
		}
	}
	return out
}

func (e *Element) attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr sets a raw string attribute, replacing an existing value
func (e *Element) SetAttr(name, value string) {
	for i := range e.Attrs {
		if e.Attrs[i].Name == name {
			e.Attrs[i].Value = value
			return
		}
	}
	e.Attrs = append(e.Attrs, Attr{Name: name, Value: value})
}

// SetIntAttr sets an integer attribute in decimal
func (e *Element) SetIntAttr(name string, value uint64) {
	e.SetAttr(name, strconv.FormatUint(value, 10))
}

// SetHexAttr sets an integer attribute in 0x hexadecimal
func (e *Element) SetHexAttr(name string, value uint64) {
	e.SetAttr(name, fmt.Sprintf("0x%02X", value))
}

// SetBoolAttr sets a boolean attribute as true/false
func (e *Element) SetBoolAttr(name string, value bool) {
	e.SetAttr(name, strconv.FormatBool(value))
}

// IntAttr reads an integer attribute. Decimal and 0x prefixed
// hexadecimal are accepted. When the attribute is absent, ok is false
// for a required attribute and def is returned for an optional one.
func (e *Element) IntAttr(name string, required bool, def uint64) (uint64, bool) {
	raw, present := e.attr(name)
	if !present {
		return def, !required
	}
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 0, 64)
	if err != nil {
		return def, false
	}
	return value, true
}

// BoolAttr reads a boolean attribute accepting true/false
func (e *Element) BoolAttr(name string, required bool, def bool) (bool, bool) {
	raw, present := e.attr(name)
	if !present {
		return def, !required
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return def, false
	}
	return value, true
}

// AddHexaChild appends a child element whose text is the hexadecimal
// dump of data. Nothing is added for empty data when onlyNotEmpty is
// set.
func (e *Element) AddHexaChild(name string, data []byte, onlyNotEmpty bool) {
	if onlyNotEmpty && len(data) == 0 {
		return
	}
	child := e.AddElement(name)
	child.Text = strings.ToUpper(hex.EncodeToString(data))
}

// HexaChild reads back the hexadecimal text content of the first
// child with the given name. A missing child yields an empty slice
// with ok true, malformed hex text yields ok false.
func (e *Element) HexaChild(name string) ([]byte, bool) {
	child := e.FindFirstChild(name)
	if child == nil {
		return nil, true
	}
	clean := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
			return -1
		}
		return r
	}, child.Text)
	data, err := hex.DecodeString(clean)
	if err != nil {
		return nil, false
	}
	return data, true
}

// MarshalXML implements xml.Marshaler preserving attribute and child
// order
func (e *Element) MarshalXML(enc *xml.Encoder, _ xml.StartElement) error {
	start := xml.StartElement{Name: xml.Name{Local: e.Name}}
	for _, a := range e.Attrs {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: a.Name}, Value: a.Value})
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if e.Text != "" {
		if err := enc.EncodeToken(xml.CharData(e.Text)); err != nil {
			return err
		}
	}
	for _, child := range e.Children {
		if err := child.MarshalXML(enc, xml.StartElement{}); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

// UnmarshalXML implements xml.Unmarshaler
func (e *Element) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	e.Name = start.Name.Local
	e.Attrs = nil
	e.Children = nil
	e.Text = ""
	for _, a := range start.Attr {
		e.Attrs = append(e.Attrs, Attr{Name: a.Name.Local, Value: a.Value})
	}
	for {
		token, err := dec.Token()
		if err != nil {
			return err
		}
		switch tok := token.(type) {
		case xml.StartElement:
			child := &Element{}
			if err := child.UnmarshalXML(dec, tok); err != nil {
				return err
			}
			e.Children = append(e.Children, child)
		case xml.CharData:
			e.Text += strings.TrimSpace(string(tok))
		case xml.EndElement:
			return nil
		}
	}
}

// Marshal serializes the element tree with indentation
func Marshal(e *Element) ([]byte, error) {
	var out bytes.Buffer
	enc := xml.NewEncoder(&out)
	enc.Indent("", "  ")
	if err := enc.Encode(e); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// Parse builds an element tree from serialized XML
func Parse(data []byte) (*Element, error) {
	root := &Element{}
	if err := xml.Unmarshal(data, root); err != nil {
		return nil, err
	}
	return root, nil
}
