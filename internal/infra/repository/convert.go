package repository

import (
	"bytes"
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/totegamma/ojstore/internal/domain"
	"github.com/totegamma/ojstore/internal/infra/database/models"
)

// roundTrip re-encodes an extension map so in-memory values take the same
// shape they have after a read (numbers become json.Number, identifiers plain values).
func roundTrip(m map[string]any) (datatypes.JSONMap, error) {
	if m == nil {
		return datatypes.JSONMap{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func toFields(m datatypes.JSONMap, projection []string) domain.Fields {
	f := domain.Fields(m)
	if f == nil {
		f = domain.Fields{}
	}
	if len(projection) > 0 {
		return f.Project(projection...)
	}
	return f.Clone()
}

func toDocument(m *models.Document, projection []string) *domain.Document {
	doc := &domain.Document{
		Key: domain.DocumentKey{
			DomainID: m.DomainID,
			DocType:  domain.DocType(m.DocType),
			DocID:    m.DocID,
		},
		OwnerUID:    m.OwnerUID,
		Content:     m.Content,
		ParentDocID: m.ParentDocID,
		Fields:      toFields(m.Fields, projection),
		CDate:       m.CDate,
		MDate:       m.MDate,
	}
	if m.ParentDocType != nil {
		t := domain.DocType(*m.ParentDocType)
		doc.ParentDocType = &t
	}
	return doc
}

func toStatus(m *models.Status, projection []string) *domain.Status {
	return &domain.Status{
		Key: domain.StatusKey{
			DocumentKey: domain.DocumentKey{
				DomainID: m.DomainID,
				DocType:  domain.DocType(m.DocType),
				DocID:    m.DocID,
			},
			UID: m.UID,
		},
		Rev:    m.Rev,
		Fields: toFields(m.Fields, projection),
		CDate:  m.CDate,
		MDate:  m.MDate,
	}
}

// documentEntry is the cache representation of a document row. Identifiers
// keep their column form so a string id that looks numeric survives the trip.
type documentEntry struct {
	ID            string          `json:"id"`
	DomainID      string          `json:"domain_id"`
	DocType       int             `json:"doc_type"`
	DocID         string          `json:"doc_id"`
	OwnerUID      int64           `json:"owner_uid"`
	Content       string          `json:"content"`
	ParentDocType *int            `json:"parent_doc_type,omitempty"`
	ParentDocID   string          `json:"parent_doc_id,omitempty"`
	Fields        json.RawMessage `json:"fields"`
	CDate         time.Time       `json:"cdate"`
	MDate         time.Time       `json:"mdate"`
}

func columnString(id domain.Identifier) string {
	v, err := id.Value()
	if err != nil || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func scanColumn(s string) (domain.Identifier, error) {
	var id domain.Identifier
	if s == "" {
		return id, nil
	}
	err := id.Scan(s)
	return id, err
}

func encodeEntry(m *models.Document) ([]byte, error) {
	fields, err := m.Fields.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(documentEntry{
		ID:            m.ID,
		DomainID:      m.DomainID,
		DocType:       m.DocType,
		DocID:         columnString(m.DocID),
		OwnerUID:      m.OwnerUID,
		Content:       m.Content,
		ParentDocType: m.ParentDocType,
		ParentDocID:   columnString(m.ParentDocID),
		Fields:        fields,
		CDate:         m.CDate,
		MDate:         m.MDate,
	})
}

func decodeEntry(b []byte) (*models.Document, error) {
	var e documentEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, err
	}
	docID, err := scanColumn(e.DocID)
	if err != nil {
		return nil, err
	}
	parentID, err := scanColumn(e.ParentDocID)
	if err != nil {
		return nil, err
	}
	var fields datatypes.JSONMap
	if err := fields.Scan([]byte(e.Fields)); err != nil {
		return nil, err
	}
	return &models.Document{
		ID:            e.ID,
		DomainID:      e.DomainID,
		DocType:       e.DocType,
		DocID:         docID,
		OwnerUID:      e.OwnerUID,
		Content:       e.Content,
		ParentDocType: e.ParentDocType,
		ParentDocID:   parentID,
		Fields:        fields,
		CDate:         e.CDate,
		MDate:         e.MDate,
	}, nil
}
