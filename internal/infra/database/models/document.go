package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/totegamma/ojstore/internal/domain"
)

type Document struct {
	ID            string            `json:"id" gorm:"primaryKey;type:text"`
	DomainID      string            `json:"domainID" gorm:"type:text;not null;index:uniq_document,unique,priority:1;index:idx_document_parent,priority:1"`
	DocType       int               `json:"docType" gorm:"not null;index:uniq_document,unique,priority:2"`
	DocID         domain.Identifier `json:"docID" gorm:"type:text;not null;index:uniq_document,unique,priority:3"`
	OwnerUID      int64             `json:"ownerUID" gorm:"not null;index"`
	Content       string            `json:"content" gorm:"type:text;not null;default:''"`
	ParentDocType *int              `json:"parentDocType" gorm:"index:idx_document_parent,priority:2"`
	ParentDocID   domain.Identifier `json:"parentDocID" gorm:"type:text;index:idx_document_parent,priority:3"`
	Fields        datatypes.JSONMap `json:"fields" gorm:"not null"`
	CDate         time.Time         `json:"cdate" gorm:"autoCreateTime"`
	MDate         time.Time         `json:"mdate" gorm:"autoUpdateTime"`
}

func (Document) TableName() string {
	return "document"
}

type Status struct {
	ID       int64             `json:"id" gorm:"primaryKey;autoIncrement"`
	DomainID string            `json:"domainID" gorm:"type:text;not null;index:uniq_document_status,unique,priority:1"`
	DocType  int               `json:"docType" gorm:"not null;index:uniq_document_status,unique,priority:2"`
	DocID    domain.Identifier `json:"docID" gorm:"type:text;not null;index:uniq_document_status,unique,priority:3"`
	UID      int64             `json:"uid" gorm:"not null;index:uniq_document_status,unique,priority:4;index"`
	Rev      int64             `json:"rev" gorm:"not null;default:0"`
	Fields   datatypes.JSONMap `json:"fields" gorm:"not null"`
	CDate    time.Time         `json:"cdate" gorm:"autoCreateTime"`
	MDate    time.Time         `json:"mdate" gorm:"autoUpdateTime"`
}

func (Status) TableName() string {
	return "document_status"
}
