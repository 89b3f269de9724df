package back

import (
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"tlog.app/go/errors"
)

type (
	// SourceMap relates bytecode offsets back to source positions.
	// Entries are sorted by Start and cover disjoint ranges.
	SourceMap struct {
		Entries []MapEntry `cbor:"1,keyasint"`
	}

	// MapEntry maps the half-open bytecode range [Start, End) to a
	// source line.
	MapEntry struct {
		Start uint64 `cbor:"1,keyasint"`
		End   uint64 `cbor:"2,keyasint"`
		File  string `cbor:"3,keyasint"`
		Line  int    `cbor:"4,keyasint"`
	}
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("back: cbor enc mode: %v", err))
	}

	cborEncMode = em
}

// Marshal serializes the map canonically, so equal maps produce equal
// bytes.
func (m *SourceMap) Marshal() ([]byte, error) {
	return cborEncMode.Marshal(m)
}

func UnmarshalSourceMap(data []byte) (*SourceMap, error) {
	var m SourceMap

	err := cbor.Unmarshal(data, &m)
	if err != nil {
		return nil, errors.Wrap(err, "unmarshal source map")
	}

	return &m, nil
}

// Lookup finds the entry covering the bytecode offset.
func (m *SourceMap) Lookup(pc uint64) (MapEntry, bool) {
	i := sort.Search(len(m.Entries), func(i int) bool {
		return m.Entries[i].End > pc
	})

	if i == len(m.Entries) || pc < m.Entries[i].Start {
		return MapEntry{}, false
	}

	return m.Entries[i], true
}

// add extends the last entry when the position repeats, keeping
// entries coalesced.
func (m *SourceMap) add(start, end uint64, file string, line int) {
	if n := len(m.Entries); n != 0 {
		last := &m.Entries[n-1]

		if last.End == start && last.File == file && last.Line == line {
			last.End = end
			return
		}
	}

	m.Entries = append(m.Entries, MapEntry{Start: start, End: end, File: file, Line: line})
}
