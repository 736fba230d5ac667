package domain

import (
	"bytes"
	"cmp"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// IdentifierKind tags the variant held by an Identifier.
type IdentifierKind int

const (
	KindNull IdentifierKind = iota
	KindObjectID
	KindInt
	KindString
)

func (k IdentifierKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindObjectID:
		return "objectid"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

var objectIDPattern = regexp.MustCompile(`^[0-9a-f]{24}$`)

// Identifier is a document id: a generated 12-byte id, a signed integer or a string.
// The zero value is the null identifier.
type Identifier struct {
	kind IdentifierKind
	oid  bson.ObjectID
	num  int64
	str  string
}

func NewObjectID() Identifier {
	return Identifier{kind: KindObjectID, oid: bson.NewObjectID()}
}

func ObjectIDOf(oid bson.ObjectID) Identifier {
	return Identifier{kind: KindObjectID, oid: oid}
}

func IntID(n int64) Identifier {
	return Identifier{kind: KindInt, num: n}
}

func StringID(s string) Identifier {
	return Identifier{kind: KindString, str: s}
}

// Convert normalizes a raw id into exactly one Identifier variant.
// 24 lowercase hex chars become an ObjectID, integer-parseable input an Int,
// everything else a String. nil converts to the null identifier.
func Convert(raw any) Identifier {
	switch v := raw.(type) {
	case nil:
		return Identifier{}
	case Identifier:
		return v
	case *Identifier:
		if v == nil {
			return Identifier{}
		}
		return *v
	case bson.ObjectID:
		return ObjectIDOf(v)
	case int:
		return IntID(int64(v))
	case int32:
		return IntID(int64(v))
	case int64:
		return IntID(v)
	case uint32:
		return IntID(int64(v))
	case json.Number:
		return convertString(v.String())
	case string:
		return convertString(v)
	default:
		return convertString(fmt.Sprint(v))
	}
}

func convertString(s string) Identifier {
	if objectIDPattern.MatchString(s) {
		oid, err := bson.ObjectIDFromHex(s)
		if err == nil {
			return ObjectIDOf(oid)
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return IntID(n)
	}
	return StringID(s)
}

func (id Identifier) Kind() IdentifierKind { return id.kind }

func (id Identifier) IsNull() bool { return id.kind == KindNull }

func (id Identifier) ObjectID() (bson.ObjectID, bool) {
	return id.oid, id.kind == KindObjectID
}

func (id Identifier) Int() (int64, bool) {
	return id.num, id.kind == KindInt
}

func (id Identifier) Str() (string, bool) {
	return id.str, id.kind == KindString
}

// String renders the textual form accepted back by Convert.
func (id Identifier) String() string {
	switch id.kind {
	case KindObjectID:
		return id.oid.Hex()
	case KindInt:
		return strconv.FormatInt(id.num, 10)
	case KindString:
		return id.str
	default:
		return ""
	}
}

func (id Identifier) Equal(other Identifier) bool {
	return id.Compare(other) == 0
}

// kindRank follows the column tags so Compare agrees with ORDER BY on the column.
var kindRank = [...]int{KindNull: 0, KindInt: 1, KindObjectID: 2, KindString: 3}

// Compare orders identifiers by kind first (Int < ObjectID < String), then per variant.
func (id Identifier) Compare(other Identifier) int {
	if c := cmp.Compare(kindRank[id.kind], kindRank[other.kind]); c != 0 {
		return c
	}
	switch id.kind {
	case KindObjectID:
		return bytes.Compare(id.oid[:], other.oid[:])
	case KindInt:
		return cmp.Compare(id.num, other.num)
	case KindString:
		return strings.Compare(id.str, other.str)
	default:
		return 0
	}
}

const intBias = uint64(1) << 63

// encode produces the column form. The int variant is biased and zero padded so
// that lexical order on the column equals numeric order.
func (id Identifier) encode() string {
	switch id.kind {
	case KindObjectID:
		return "o:" + id.oid.Hex()
	case KindInt:
		return fmt.Sprintf("i:%020d", uint64(id.num)^intBias)
	case KindString:
		return "s:" + id.str
	default:
		return ""
	}
}

func decodeIdentifier(s string) (Identifier, error) {
	if len(s) < 2 || s[1] != ':' {
		return Identifier{}, fmt.Errorf("malformed identifier column %q", s)
	}
	body := s[2:]
	switch s[0] {
	case 'o':
		oid, err := bson.ObjectIDFromHex(body)
		if err != nil {
			return Identifier{}, fmt.Errorf("malformed objectid column %q: %w", s, err)
		}
		return ObjectIDOf(oid), nil
	case 'i':
		u, err := strconv.ParseUint(body, 10, 64)
		if err != nil {
			return Identifier{}, fmt.Errorf("malformed int column %q: %w", s, err)
		}
		return IntID(int64(u ^ intBias)), nil
	case 's':
		return StringID(body), nil
	default:
		return Identifier{}, fmt.Errorf("unknown identifier tag in %q", s)
	}
}

// Value implements driver.Valuer.
func (id Identifier) Value() (driver.Value, error) {
	if id.kind == KindNull {
		return nil, nil
	}
	return id.encode(), nil
}

// Scan implements sql.Scanner.
func (id *Identifier) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*id = Identifier{}
		return nil
	case string:
		decoded, err := decodeIdentifier(v)
		if err != nil {
			return err
		}
		*id = decoded
		return nil
	case []byte:
		return id.Scan(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Identifier", src)
	}
}

// JSONValue is the plain value stored inside extension fields.
func (id Identifier) JSONValue() any {
	switch id.kind {
	case KindObjectID:
		return id.oid.Hex()
	case KindInt:
		return id.num
	case KindString:
		return id.str
	default:
		return nil
	}
}

func (id Identifier) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.JSONValue())
}

func (id *Identifier) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*id = Convert(raw)
	return nil
}

// MarshalText lets Identifier be used as a JSON object key.
func (id Identifier) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *Identifier) UnmarshalText(b []byte) error {
	*id = Convert(string(b))
	return nil
}
