package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/RoaringBitmap/roaring"
	"github.com/wbrown/janus-nljoin/nljoin"
	"github.com/wbrown/janus-nljoin/nljoin/table"
)

// Key layout:
//
//	t/<name>/schema       → row count, column names and types
//	t/<name>/col/<index>  → null bitmap followed by the non-null values
const tablePrefix = "t/"

func schemaKey(name string) []byte {
	return []byte(tablePrefix + name + "/schema")
}

func columnKey(name string, index int) []byte {
	return []byte(fmt.Sprintf("%s%s/col/%06d", tablePrefix, name, index))
}

func tableKeyPrefix(name string) []byte {
	return []byte(tablePrefix + name + "/")
}

// tableNameFromSchemaKey returns the table name of a schema key.
func tableNameFromSchemaKey(key []byte) (string, bool) {
	const suffix = "/schema"
	if !bytes.HasPrefix(key, []byte(tablePrefix)) || !bytes.HasSuffix(key, []byte(suffix)) {
		return "", false
	}
	return string(key[len(tablePrefix) : len(key)-len(suffix)]), true
}

type storedSchema struct {
	rows   int
	fields table.Schema
}

func encodeSchema(t *table.Table) []byte {
	var buf bytes.Buffer
	writeUvarint(&buf, uint64(t.NumRows()))
	schema := t.Schema()
	writeUvarint(&buf, uint64(len(schema)))
	for _, f := range schema {
		writeBytes(&buf, []byte(f.Name))
		buf.WriteByte(byte(f.Type))
	}
	return buf.Bytes()
}

func decodeSchema(data []byte) (storedSchema, error) {
	r := bytes.NewReader(data)
	rows, err := binary.ReadUvarint(r)
	if err != nil {
		return storedSchema{}, fmt.Errorf("reading row count: %w", err)
	}
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return storedSchema{}, fmt.Errorf("reading column count: %w", err)
	}
	if rows > uint64(nljoin.MaxRows) {
		return storedSchema{}, fmt.Errorf("row count %d exceeds limit", rows)
	}
	s := storedSchema{rows: int(rows), fields: make(table.Schema, 0, n)}
	for i := uint64(0); i < n; i++ {
		name, err := readBytes(r)
		if err != nil {
			return storedSchema{}, fmt.Errorf("reading column %d name: %w", i, err)
		}
		typ, err := r.ReadByte()
		if err != nil {
			return storedSchema{}, fmt.Errorf("reading column %d type: %w", i, err)
		}
		s.fields = append(s.fields, table.Field{Name: string(name), Type: nljoin.ValueType(typ)})
	}
	return s, nil
}

func encodeColumn(c *table.Column) ([]byte, error) {
	var buf bytes.Buffer
	nulls, err := c.Nulls().ToBytes()
	if err != nil {
		return nil, fmt.Errorf("encoding null bitmap of %s: %w", c.Name(), err)
	}
	writeBytes(&buf, nulls)
	for row := 0; row < c.Len(); row++ {
		if c.IsNull(row) {
			continue
		}
		data, err := nljoin.ValueBytes(c.Value(row))
		if err != nil {
			return nil, fmt.Errorf("encoding %s row %d: %w", c.Name(), row, err)
		}
		writeBytes(&buf, data)
	}
	return buf.Bytes(), nil
}

func decodeColumn(f table.Field, rows int, data []byte) (*table.Column, error) {
	r := bytes.NewReader(data)
	raw, err := readBytes(r)
	if err != nil {
		return nil, fmt.Errorf("reading null bitmap: %w", err)
	}
	nulls := roaring.New()
	if err := nulls.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("decoding null bitmap: %w", err)
	}

	values := make([]nljoin.Value, rows)
	for row := 0; row < rows; row++ {
		if nulls.Contains(uint32(row)) {
			continue
		}
		enc, err := readBytes(r)
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", row, err)
		}
		if values[row], err = nljoin.ValueFromBytes(f.Type, enc); err != nil {
			return nil, fmt.Errorf("decoding row %d: %w", row, err)
		}
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes", r.Len())
	}
	return table.NewColumnWithNulls(f.Name, f.Type, values, nulls)
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if n > uint64(r.Len()) {
		return nil, io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
