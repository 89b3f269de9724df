package ir

import (
	"github.com/lodelang/lode/compiler/source"
)

type (
	// Metadatum is arena-stored side information attachable to values.
	Metadatum interface{ metadatum() }

	MetaInt    int64
	MetaIndex  int
	MetaString string

	MetaStruct struct {
		Name   string
		Fields []MetadataID
	}

	MetaList []MetadataID
)

func (MetaInt) metadatum()    {}
func (MetaIndex) metadatum()  {}
func (MetaString) metadatum() {}
func (MetaStruct) metadatum() {}
func (MetaList) metadatum()   {}

const spanMetaName = "span"

func (c *Context) AddMetadatum(m Metadatum) MetadataID {
	c.meta = append(c.meta, m)

	return MetadataID(len(c.meta) - 1)
}

func (c *Context) Metadatum(id MetadataID) Metadatum {
	if id < 0 || int(id) >= len(c.meta) {
		panic(fatal("dangling metadata handle %d", id))
	}

	return c.meta[id]
}

// Attach associates the metadatum with the value. A value holding
// metadata already gets a merged List rather than a duplicate slot.
func (c *Context) Attach(v ValueID, md MetadataID) {
	if v < 0 || int(v) >= len(c.values) {
		panic(fatal("dangling value handle %d", v))
	}

	cur := c.values[v].meta

	switch {
	case cur == NoMeta:
		c.values[v].meta = md
	default:
		if l, ok := c.Metadatum(cur).(MetaList); ok {
			c.meta[cur] = append(l, md)
			return
		}

		c.values[v].meta = c.AddMetadatum(MetaList{cur, md})
	}
}

func (c *Context) MetaOf(v ValueID) MetadataID {
	if v < 0 || int(v) >= len(c.values) {
		panic(fatal("dangling value handle %d", v))
	}

	return c.values[v].meta
}

// SpanMetadatum encodes a source span as a named metadata struct.
func (c *Context) SpanMetadatum(sp source.Span) MetadataID {
	return c.AddMetadatum(MetaStruct{
		Name: spanMetaName,
		Fields: []MetadataID{
			c.AddMetadatum(MetaIndex(sp.File)),
			c.AddMetadatum(MetaInt(sp.Start)),
			c.AddMetadatum(MetaInt(sp.End)),
		},
	})
}

// ValueSpan recovers the source span attached to the value, if any.
func (c *Context) ValueSpan(v ValueID) (source.Span, bool) {
	md := c.MetaOf(v)
	if md == NoMeta {
		return source.Span{}, false
	}

	return c.spanFrom(md)
}

func (c *Context) spanFrom(md MetadataID) (source.Span, bool) {
	switch m := c.Metadatum(md).(type) {
	case MetaStruct:
		if m.Name != spanMetaName || len(m.Fields) != 3 {
			return source.Span{}, false
		}

		f, _ := c.Metadatum(m.Fields[0]).(MetaIndex)
		s, _ := c.Metadatum(m.Fields[1]).(MetaInt)
		e, _ := c.Metadatum(m.Fields[2]).(MetaInt)

		return source.Span{File: source.FileID(f), Start: uint32(s), End: uint32(e)}, true
	case MetaList:
		for _, id := range m {
			if sp, ok := c.spanFrom(id); ok {
				return sp, true
			}
		}
	}

	return source.Span{}, false
}
