// Package schema describes how the inverted index is laid out in the backing
// store: column family names, qualifiers, distinguished sentinel rows and the
// row-key builders for terms, segments and documents. A Schema is a plain
// value built once and handed to every component that touches the store.
package schema

import (
	"encoding/binary"
	"fmt"
	"strconv"

	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
)

// DocKeySize is the width of an encoded document id.
const DocKeySize = 8

// Schema names every family, qualifier and sentinel row used by the index.
type Schema struct {
	FamilyFields        string
	FamilyTermVector    string
	FamilyTermPositions string
	FamilyDocToInt      string
	FamilyIntToDoc      string
	FamilySequence      string
	FamilyPayloads      string

	QualifierInt       string
	QualifierDocument  string
	QualifierSequence  string
	QualifierSegment   string
	QualifierDocuments string
	QualifierCodec     string
	QualifierDocBase   string

	RowSequence []byte
	RowSegment  []byte
	RowMeta     []byte
}

// Default returns the standard layout.
func Default() Schema {
	return Schema{
		FamilyFields:        "documents",
		FamilyTermVector:    "termVector",
		FamilyTermPositions: "termPositions",
		FamilyDocToInt:      "doc2int",
		FamilyIntToDoc:      "int2doc",
		FamilySequence:      "sequence",
		FamilyPayloads:      "payloads",

		QualifierInt:       "Int",
		QualifierDocument:  "document",
		QualifierSequence:  "sequence",
		QualifierSegment:   "segment",
		QualifierDocuments: "documents",
		QualifierCodec:     "codec",
		QualifierDocBase:   "docBase",

		RowSequence: []byte("sequenceId"),
		RowSegment:  []byte("segmentId"),
		RowMeta:     []byte("indexMeta"),
	}
}

// Families lists every column family an index table must provision.
func (s Schema) Families() []string {
	return []string{
		s.FamilyFields,
		s.FamilyTermVector,
		s.FamilyTermPositions,
		s.FamilyDocToInt,
		s.FamilyIntToDoc,
		s.FamilySequence,
		s.FamilyPayloads,
	}
}

// TermRow is the row holding positional postings for a term.
func (s Schema) TermRow(t Term) []byte {
	return []byte(t.String())
}

// SegmentTermRow is the row holding the bitset postings of a term within
// one flushed segment.
func (s Schema) SegmentTermRow(segmentID int64, term string) []byte {
	return []byte("s" + strconv.FormatInt(segmentID, 10) + "/" + term)
}

// SegmentRow is the per-segment metadata row.
func (s Schema) SegmentRow(segmentID int64) []byte {
	return []byte("s" + strconv.FormatInt(segmentID, 10))
}

// DocKey encodes a document id as 8 big-endian bytes. The same encoding is
// used for counter cells.
func DocKey(id int64) []byte {
	b := make([]byte, DocKeySize)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

// DocID decodes a key produced by DocKey.
func DocID(b []byte) (int64, error) {
	if len(b) != DocKeySize {
		return 0, fmt.Errorf("%w: document key has %d bytes, want %d", apperrors.ErrDecode, len(b), DocKeySize)
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}
