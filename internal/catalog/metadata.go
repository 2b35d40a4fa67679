package catalog

import (
	"encoding/binary"
	"fmt"

	"github.com/nainya/treestore/internal/dberr"
	"github.com/nainya/treestore/internal/diskio"
	"github.com/nainya/treestore/internal/record"
)

const tableMetaMagic uint32 = 0x7AB1E001
const indexMetaMagic uint32 = 0x1DE1E002

// IndexType names the index implementation an IndexMetadata describes.
// The engine currently supports only BPlusTree; the field is carried so
// a future access method has somewhere to register.
type IndexType byte

const (
	BPlusTree IndexType = iota
)

// TableMetadata is a table's durable description: its id, name, row
// schema, and the first page of its heap.
type TableMetadata struct {
	TableID     uint32
	Name        string
	Schema      *record.Schema
	FirstPageID diskio.PageID
}

func (m *TableMetadata) SerializeSize() int {
	return 4 + 4 + len(m.Name) + 4 + m.Schema.SerializeSize() + 4
}

func (m *TableMetadata) Serialize(buf []byte) int {
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], tableMetaMagic)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], m.TableID)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(m.Name)))
	off += 4
	off += copy(buf[off:], m.Name)
	off += m.Schema.Serialize(buf[off:])
	binary.LittleEndian.PutUint32(buf[off:], uint32(int32(m.FirstPageID)))
	off += 4
	return off
}

func DeserializeTableMetadata(buf []byte) (*TableMetadata, error) {
	if len(buf) < 12 {
		return nil, dberr.ErrCorruption
	}
	off := 0
	magic := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	if magic != tableMetaMagic {
		return nil, fmt.Errorf("%w: table meta magic %x", dberr.ErrCorruption, magic)
	}
	tableID := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	nameLen := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	name := string(buf[off : off+int(nameLen)])
	off += int(nameLen)
	schema, n, err := record.DeserializeSchema(buf[off:])
	if err != nil {
		return nil, err
	}
	off += n
	firstPageID := diskio.PageID(int32(binary.LittleEndian.Uint32(buf[off:])))
	off += 4
	return &TableMetadata{TableID: tableID, Name: name, Schema: schema, FirstPageID: firstPageID}, nil
}

// IndexMetadata is an index's durable description: its id, name, owning
// table, and key schema (a projection of the table's schema, in indexed
// column order). The index's root page id lives in the shared index-roots
// page, keyed by Name, not here.
type IndexMetadata struct {
	IndexID   uint32
	Name      string
	TableName string
	KeySchema *record.Schema
	Type      IndexType
}

func (m *IndexMetadata) SerializeSize() int {
	return 4 + 4 + 4 + len(m.Name) + 4 + len(m.TableName) + m.KeySchema.SerializeSize() + 1
}

func (m *IndexMetadata) Serialize(buf []byte) int {
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], indexMetaMagic)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], m.IndexID)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(m.Name)))
	off += 4
	off += copy(buf[off:], m.Name)
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(m.TableName)))
	off += 4
	off += copy(buf[off:], m.TableName)
	off += m.KeySchema.Serialize(buf[off:])
	buf[off] = byte(m.Type)
	off++
	return off
}

func DeserializeIndexMetadata(buf []byte) (*IndexMetadata, error) {
	if len(buf) < 12 {
		return nil, dberr.ErrCorruption
	}
	off := 0
	magic := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	if magic != indexMetaMagic {
		return nil, fmt.Errorf("%w: index meta magic %x", dberr.ErrCorruption, magic)
	}
	indexID := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	nameLen := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	name := string(buf[off : off+int(nameLen)])
	off += int(nameLen)
	tableNameLen := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	tableName := string(buf[off : off+int(tableNameLen)])
	off += int(tableNameLen)
	keySchema, n, err := record.DeserializeSchema(buf[off:])
	if err != nil {
		return nil, err
	}
	off += n
	typ := IndexType(buf[off])
	off++
	return &IndexMetadata{
		IndexID:   indexID,
		Name:      name,
		TableName: tableName,
		KeySchema: keySchema,
		Type:      typ,
	}, nil
}
