// Package answers resolves the stored exam documents (answer keys, content
// definitions and student responses) into per-question entries.
//
// Stored documents come either as a bare JSON list or as an object wrapping
// the list under "questions". Decode resolves that once into a Document;
// nothing past this package looks at the raw shape again.
package answers

import (
	"bytes"
	"encoding/json"
)

// Shape is the resolved form of a stored document.
type Shape int

const (
	ShapeEmpty   Shape = iota // absent or null
	ShapeList                 // bare list of entries
	ShapeWrapped              // object with the list under a wrapper field
	ShapeObject               // any other object
	ShapeInvalid              // scalar or unparsable
)

func (s Shape) String() string {
	switch s {
	case ShapeEmpty:
		return "empty"
	case ShapeList:
		return "list"
	case ShapeWrapped:
		return "wrapped"
	case ShapeObject:
		return "object"
	default:
		return "invalid"
	}
}

// wrapperFields are the object fields that may hold the entry list.
var wrapperFields = []string{"questions", "preguntas"}

// Document is a stored document with its shape resolved.
type Document struct {
	Shape Shape
	Items []json.RawMessage
	Raw   json.RawMessage
}

// Decode resolves the shape of a stored document.
func Decode(raw json.RawMessage) Document {
	trimmed := bytes.TrimSpace(raw)
	doc := Document{Raw: trimmed}
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		doc.Shape = ShapeEmpty
		return doc
	}

	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &doc.Items); err != nil {
			doc.Shape = ShapeInvalid
			return doc
		}
		doc.Shape = ShapeList
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			doc.Shape = ShapeInvalid
			return doc
		}
		for _, f := range wrapperFields {
			nested, ok := obj[f]
			if !ok {
				continue
			}
			var items []json.RawMessage
			if err := json.Unmarshal(nested, &items); err == nil {
				doc.Shape = ShapeWrapped
				doc.Items = items
				return doc
			}
		}
		doc.Shape = ShapeObject
	default:
		doc.Shape = ShapeInvalid
	}
	return doc
}

// fields decodes one entry into its JSON fields. Non-object entries yield nil.
func fields(item json.RawMessage) map[string]json.RawMessage {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(item, &m); err != nil {
		return nil
	}
	return m
}

// field returns the first present field among names.
func field(m map[string]json.RawMessage, names ...string) (json.RawMessage, bool) {
	for _, n := range names {
		if v, ok := m[n]; ok {
			return v, true
		}
	}
	return nil, false
}
