package domain

import (
	"fmt"
	"time"
)

// DocumentKey addresses one document inside a domain.
type DocumentKey struct {
	DomainID string
	DocType  DocType
	DocID    Identifier
}

func (k DocumentKey) String() string {
	return fmt.Sprintf("%s/%d/%s", k.DomainID, k.DocType, k.DocID.String())
}

// Canonical renders the key without the variant ambiguity of String.
func (k DocumentKey) Canonical() string {
	return fmt.Sprintf("%d:%s/%d/%s", len(k.DomainID), k.DomainID, k.DocType, k.DocID.encode())
}

// Document is a primary record. Well-known columns are typed; everything else lives in Fields.
type Document struct {
	Key           DocumentKey
	OwnerUID      int64
	Content       string
	ParentDocType *DocType
	ParentDocID   Identifier
	Fields        Fields
	CDate         time.Time
	MDate         time.Time
}

func (d *Document) HasParent() bool {
	return d.ParentDocType != nil
}

// DictKey addresses a document within a domain for batched lookups.
type DictKey struct {
	DocType DocType
	DocID   Identifier
}

func (k DictKey) String() string {
	return fmt.Sprintf("%d/%s", k.DocType, k.DocID.String())
}

// StatusKey addresses a per-user side record of a document.
type StatusKey struct {
	DocumentKey
	UID int64
}

func (k StatusKey) String() string {
	return fmt.Sprintf("%s@%d", k.DocumentKey.String(), k.UID)
}

// Status is the per-user record tracking a user's relationship to one document.
type Status struct {
	Key    StatusKey
	Rev    int64
	Fields Fields
	CDate  time.Time
	MDate  time.Time
}

// SubDocument is an element of an embedded array (threaded replies).
type SubDocument struct {
	ID       Identifier
	OwnerUID int64
	Content  string
	Fields   Fields
}

const (
	SubIDField       = "_id"
	SubOwnerUIDField = "owner_uid"
	SubContentField  = "content"
)

// ToMap renders the element the way it is stored inside the parent's array.
func (s SubDocument) ToMap() map[string]any {
	out := make(map[string]any, len(s.Fields)+3)
	for k, v := range s.Fields {
		out[k] = v
	}
	out[SubIDField] = s.ID.JSONValue()
	out[SubOwnerUIDField] = s.OwnerUID
	out[SubContentField] = s.Content
	return out
}

// SubDocumentFromMap reads an array element back; ok is false when it is not an object.
func SubDocumentFromMap(raw any) (SubDocument, bool) {
	var m map[string]any
	switch v := raw.(type) {
	case map[string]any:
		m = v
	case Fields:
		m = v
	default:
		return SubDocument{}, false
	}
	sub := SubDocument{Fields: Fields{}}
	for k, v := range m {
		switch k {
		case SubIDField:
			sub.ID = Convert(v)
		case SubOwnerUIDField:
			sub.OwnerUID, _ = AsInt64(v)
		case SubContentField:
			sub.Content, _ = v.(string)
		default:
			sub.Fields[k] = v
		}
	}
	return sub, true
}
