// Package schema implements table schema definitions and their semantic
// validation (spec §9: "the schema's semantic validation (disjoint access
// groups, valid compressor/bloom-filter specs, monotonic generation on
// alter) must be preserved"). The original Expat-SAX XML parsing is
// replaced per §9 with Parse, which decodes the same structural tree
// from the JSON text CreateTable/AlterTable carry over the wire, since
// the HQL-adjacent schema-text surface itself is out of scope (§1) but
// the tree it produces, and its validation, are not.
package schema

import (
	"encoding/json"
	"fmt"
)

// Parse decodes a schema definition from its wire text form.
func Parse(text string) (*Definition, error) {
	var d Definition
	if err := json.Unmarshal([]byte(text), &d); err != nil {
		return nil, fmt.Errorf("schema: parse: %w", err)
	}
	return &d, nil
}

// Compressor is the closed set of supported access-group compressors.
type Compressor string

const (
	CompressorNone   Compressor = "none"
	CompressorZlib   Compressor = "zlib"
	CompressorLzo    Compressor = "lzo"
	CompressorSnappy Compressor = "snappy"
)

var validCompressors = map[Compressor]bool{
	CompressorNone: true, CompressorZlib: true, CompressorLzo: true, CompressorSnappy: true,
}

// BloomFilter is the closed set of supported bloom-filter specs.
type BloomFilter string

const (
	BloomFilterNone      BloomFilter = "none"
	BloomFilterRows      BloomFilter = "rows"
	BloomFilterRowsCols  BloomFilter = "rows+cols"
)

var validBloomFilters = map[BloomFilter]bool{
	BloomFilterNone: true, BloomFilterRows: true, BloomFilterRowsCols: true,
}

// ColumnFamily is a named, versioned group of cells within a row.
type ColumnFamily struct {
	Name        string
	MaxVersions int
	TTLSeconds  int64
}

// AccessGroup is a storage-locality bundle of column families sharing an
// on-disk file.
type AccessGroup struct {
	Name        string
	Compressor  Compressor
	BloomFilter BloomFilter
	Families    []ColumnFamily
}

// Definition is a table's full schema.
type Definition struct {
	Generation   int64
	AccessGroups []AccessGroup
}

// Validate checks the structural invariants the original master enforces
// on a schema. AlterTable runs it (via ValidateAlter); CreateTable does
// not.
func (d *Definition) Validate() error {
	seenFamily := make(map[string]string) // family name -> access group name
	seenGroup := make(map[string]bool)

	for _, ag := range d.AccessGroups {
		if ag.Name == "" {
			return fmt.Errorf("schema: access group with empty name")
		}
		if seenGroup[ag.Name] {
			return fmt.Errorf("schema: duplicate access group %q", ag.Name)
		}
		seenGroup[ag.Name] = true

		if !validCompressors[ag.Compressor] {
			return fmt.Errorf("schema: access group %q: invalid compressor %q", ag.Name, ag.Compressor)
		}
		if !validBloomFilters[ag.BloomFilter] {
			return fmt.Errorf("schema: access group %q: invalid bloom filter %q", ag.Name, ag.BloomFilter)
		}

		for _, cf := range ag.Families {
			if cf.Name == "" {
				return fmt.Errorf("schema: access group %q: column family with empty name", ag.Name)
			}
			if owner, dup := seenFamily[cf.Name]; dup {
				return fmt.Errorf("schema: column family %q declared in both %q and %q (access groups must be disjoint)", cf.Name, owner, ag.Name)
			}
			seenFamily[cf.Name] = ag.Name
			if cf.MaxVersions < 0 {
				return fmt.Errorf("schema: column family %q: negative max versions", cf.Name)
			}
			if cf.TTLSeconds < 0 {
				return fmt.Errorf("schema: column family %q: negative ttl", cf.Name)
			}
		}
	}

	return nil
}

// ValidateAlter checks that next is a legal alteration of prev: the
// generation must strictly increase.
func ValidateAlter(prev, next *Definition) error {
	if err := next.Validate(); err != nil {
		return err
	}
	if next.Generation <= prev.Generation {
		return fmt.Errorf("schema: generation must increase on alter (have %d, want > %d)", next.Generation, prev.Generation)
	}
	return nil
}
