package source

import (
	"sort"

	"tlog.app/go/tlog/tlwire"
)

type (
	FileID int

	Span struct {
		File       FileID
		Start, End uint32
	}

	file struct {
		name  string
		lines []uint32 // offsets of line starts
	}

	// Registry is an append-only table of source files owned by one
	// compilation Context. It is threaded by reference, never global.
	Registry struct {
		files []file
	}

	Pos struct {
		Name               string
		StartLine, EndLine int
	}
)

const NoFile FileID = -1

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) AddFile(name string, text []byte) FileID {
	f := file{
		name:  name,
		lines: []uint32{0},
	}

	for i, c := range text {
		if c == '\n' {
			f.lines = append(f.lines, uint32(i+1))
		}
	}

	r.files = append(r.files, f)

	return FileID(len(r.files) - 1)
}

func (r *Registry) Name(id FileID) string {
	if id < 0 || int(id) >= len(r.files) {
		return ""
	}

	return r.files[id].name
}

// Resolve maps a span to its file name and one-based line range.
func (r *Registry) Resolve(s Span) (p Pos, ok bool) {
	if s.File < 0 || int(s.File) >= len(r.files) {
		return p, false
	}

	f := r.files[s.File]

	p.Name = f.name
	p.StartLine = lineAt(f.lines, s.Start)
	p.EndLine = lineAt(f.lines, s.End)

	return p, true
}

func lineAt(lines []uint32, off uint32) int {
	return sort.Search(len(lines), func(i int) bool {
		return lines[i] > off
	})
}

func (s Span) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	if s == (Span{}) {
		return e.AppendNil(b)
	}

	b = e.AppendMap(b, 3)
	b = e.AppendKeyInt(b, "file", int(s.File))
	b = e.AppendKeyUint64(b, "start", uint64(s.Start))
	b = e.AppendKeyUint64(b, "end", uint64(s.End))

	return b
}
