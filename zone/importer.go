package zone

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"codeberg.org/go-pdf/fpdf"
	"github.com/lvillar/docfill"
	"github.com/phpdave11/gofpdi"
)

// importer copies the pages of a template into an fpdf document as form
// XObjects.
//
// gofpdi serializes dictionaries in map iteration order and numbers objects
// in the order it meets them, so the same page imports differently from one
// run to the next. Before the objects reach fpdf they are rewritten in a
// canonical form: dictionary keys sorted and objects renumbered breadth first
// from the page templates.
type importer struct {
	fpdi  *gofpdi.Importer
	pages map[int]int // page number -> gofpdi template id
}

// page is the size of an imported page in points.
type page struct {
	w, h float64
}

// importPages imports every page of template into pdf and returns their
// sizes. The importer panics on malformed input, so panics are converted to
// ErrInvalidTemplate.
func importPages(pdf *fpdf.Fpdf, template []byte, pageCount int) (imp *importer, sizes []page, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: importing pages: %v", docfill.ErrInvalidTemplate, r)
		}
	}()

	imp = &importer{fpdi: gofpdi.NewImporter(), pages: make(map[int]int, pageCount)}
	rs := io.ReadSeeker(bytes.NewReader(template))
	imp.fpdi.SetSourceStream(&rs)

	boxes := imp.fpdi.GetPageSizes()
	sizes = make([]page, pageCount)
	for n := 1; n <= pageCount; n++ {
		imp.pages[n] = imp.fpdi.ImportPage(n, "/MediaBox")
		sizes[n-1] = page{w: defaultPageWidth, h: defaultPageHeight}
		if mb, ok := boxes[n]["/MediaBox"]; ok && mb["w"] > 0 && mb["h"] > 0 {
			sizes[n-1] = page{w: mb["w"], h: mb["h"]}
		}
	}

	tpls := imp.fpdi.PutFormXobjectsUnordered()
	objs := imp.fpdi.GetImportedObjectsUnordered()
	refs := imp.fpdi.GetImportedObjHashPos()

	tpls, objs, refs, err = canonicalize(tpls, objs, refs)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", docfill.ErrInvalidTemplate, err)
	}
	pdf.ImportTemplates(tpls)
	pdf.ImportObjects(objs)
	pdf.ImportObjPos(refs)
	return imp, sizes, nil
}

// use draws page n over the full current page.
func (imp *importer) use(pdf *fpdf.Fpdf, n int, size page) {
	name, sx, sy, tx, ty := imp.fpdi.UseTemplate(imp.pages[n], 0, 0, size.w, size.h)
	pdf.UseImportedTemplate(name, sx, sy, tx, ty)
}

// canonicalize rewrites gofpdi's imported objects so that equal templates
// give equal bytes. Object references in gofpdi output are 40 character
// hashes whose offsets are listed in refs.
func canonicalize(tpls map[string]string, objs map[string][]byte, refs map[string]map[int]string) (map[string]string, map[string][]byte, map[string]map[int]string, error) {
	parsed := make(map[string]*object, len(objs))
	for hash, data := range objs {
		obj, err := parseObject(data, refs[hash])
		if err != nil {
			return nil, nil, nil, fmt.Errorf("imported object: %w", err)
		}
		parsed[hash] = obj
	}

	names := make([]string, 0, len(tpls))
	for name := range tpls {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return templateIndex(names[i]) < templateIndex(names[j]) })

	// Breadth first numbering from the templates.
	order := make(map[string]int, len(parsed))
	var queue []string
	visit := func(hash string) {
		if _, seen := order[hash]; !seen {
			order[hash] = len(order)
			queue = append(queue, hash)
		}
	}
	for _, name := range names {
		visit(tpls[name])
	}
	for len(queue) > 0 {
		hash := queue[0]
		queue = queue[1:]
		if obj, ok := parsed[hash]; ok {
			obj.value.walkRefs(visit)
		}
	}
	// Objects nothing points at keep a stable position after the rest.
	var orphans []string
	for hash := range parsed {
		if _, seen := order[hash]; !seen {
			orphans = append(orphans, hash)
		}
	}
	sort.Slice(orphans, func(i, j int) bool {
		return bytes.Compare(objs[orphans[i]], objs[orphans[j]]) < 0
	})
	for _, hash := range orphans {
		visit(hash)
	}

	rename := func(hash string) string { return canonicalHash(order[hash]) }

	outTpls := make(map[string]string, len(tpls))
	for name, hash := range tpls {
		outTpls[name] = rename(hash)
	}
	outObjs := make(map[string][]byte, len(parsed))
	outRefs := make(map[string]map[int]string, len(parsed))
	for hash, obj := range parsed {
		data, pos := obj.encode(rename)
		outObjs[rename(hash)] = data
		outRefs[rename(hash)] = pos
	}
	return outTpls, outObjs, outRefs, nil
}

func templateIndex(name string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(name, "/GOFPDITPL"))
	if err != nil {
		return -1
	}
	return n
}

func canonicalHash(n int) string {
	sum := sha1.Sum([]byte("docfill-import-" + strconv.Itoa(n)))
	return hex.EncodeToString(sum[:])
}

type valueKind int

const (
	atomValue valueKind = iota
	dictValue
	arrayValue
	refValue
)

// value is one PDF value as written by gofpdi. Atoms keep their source text.
type value struct {
	kind  valueKind
	atom  string
	keys  []string
	items []*value
	ref   string
}

// object is an imported object: a value and, for streams, the raw stream data.
type object struct {
	value  *value
	stream []byte
}

const (
	streamStart = "stream\n"
	streamEnd   = "\nendstream\n"
	objectEnd   = "endobj\n"
)

func parseObject(data []byte, refs map[int]string) (*object, error) {
	p := &parser{data: data, refs: refs}
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	obj := &object{value: v}

	p.space()
	rest := data[p.pos:]
	if bytes.HasPrefix(rest, []byte(streamStart)) {
		tail := streamEnd + objectEnd
		if !bytes.HasSuffix(rest, []byte(tail)) {
			return nil, fmt.Errorf("unterminated stream")
		}
		obj.stream = rest[len(streamStart) : len(rest)-len(tail)]
		return obj, nil
	}
	if !bytes.Equal(bytes.TrimSpace(rest), []byte("endobj")) {
		return nil, fmt.Errorf("unexpected data after value at offset %d", p.pos)
	}
	return obj, nil
}

// encode serializes the object with sorted dictionary keys and renamed
// references, and returns the offset of every reference hash.
func (o *object) encode(rename func(string) string) ([]byte, map[int]string) {
	e := &encoder{rename: rename, refs: make(map[int]string)}
	e.value(o.value)
	if o.stream != nil {
		e.buf.WriteString("\n" + streamStart)
		e.buf.Write(o.stream)
		e.buf.WriteString(streamEnd)
	}
	e.buf.WriteString(objectEnd)
	return e.buf.Bytes(), e.refs
}

// walkRefs calls fn for every reference in canonical order.
func (v *value) walkRefs(fn func(string)) {
	switch v.kind {
	case refValue:
		fn(v.ref)
	case arrayValue:
		for _, it := range v.items {
			it.walkRefs(fn)
		}
	case dictValue:
		for _, i := range v.sortedKeys() {
			v.items[i].walkRefs(fn)
		}
	}
}

// sortedKeys returns the item indexes of a dictionary ordered by key.
func (v *value) sortedKeys() []int {
	idx := make([]int, len(v.keys))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return v.keys[idx[a]] < v.keys[idx[b]] })
	return idx
}

type encoder struct {
	buf    bytes.Buffer
	rename func(string) string
	refs   map[int]string
}

func (e *encoder) value(v *value) {
	switch v.kind {
	case refValue:
		h := e.rename(v.ref)
		e.refs[e.buf.Len()] = h
		e.buf.WriteString(h + " 0 R ")
	case arrayValue:
		e.buf.WriteByte('[')
		for _, it := range v.items {
			e.value(it)
		}
		e.buf.WriteString("]\n")
	case dictValue:
		e.buf.WriteString("<<")
		for _, i := range v.sortedKeys() {
			e.buf.WriteString(v.keys[i] + " ")
			e.value(v.items[i])
		}
		e.buf.WriteString(">>")
	default:
		e.buf.WriteString(v.atom)
		if v.atom[0] != '(' && v.atom[0] != '<' {
			e.buf.WriteByte(' ')
		}
	}
}

// parser reads the subset of PDF syntax gofpdi writes for imported objects.
type parser struct {
	data []byte
	pos  int
	refs map[int]string
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\r' || b == '\t' || b == '\f' || b == 0
}

func isDelim(b byte) bool {
	return strings.IndexByte("()<>[]{}/%", b) >= 0
}

func (p *parser) space() {
	for p.pos < len(p.data) && isSpace(p.data[p.pos]) {
		p.pos++
	}
}

func (p *parser) value() (*value, error) {
	p.space()
	if p.pos >= len(p.data) {
		return nil, fmt.Errorf("unexpected end of object")
	}
	if hash, ok := p.refs[p.pos]; ok {
		return p.ref(hash)
	}

	switch rest := p.data[p.pos:]; {
	case bytes.HasPrefix(rest, []byte("<<")):
		p.pos += 2
		return p.dict()
	case rest[0] == '[':
		p.pos++
		return p.array()
	case rest[0] == '(':
		return p.literal()
	case rest[0] == '<':
		end := bytes.IndexByte(rest, '>')
		if end < 0 {
			return nil, fmt.Errorf("unterminated hex string at offset %d", p.pos)
		}
		p.pos += end + 1
		return &value{atom: string(rest[:end+1])}, nil
	default:
		tok := p.token()
		if tok == "" {
			return nil, fmt.Errorf("unexpected %q at offset %d", rest[0], p.pos)
		}
		return &value{atom: tok}, nil
	}
}

func (p *parser) ref(hash string) (*value, error) {
	p.pos += len(hash)
	p.space()
	gen := p.token()
	p.space()
	if r := p.token(); gen == "" || r != "R" {
		return nil, fmt.Errorf("malformed reference at offset %d", p.pos)
	}
	return &value{kind: refValue, ref: hash}, nil
}

func (p *parser) dict() (*value, error) {
	v := &value{kind: dictValue}
	for {
		p.space()
		if bytes.HasPrefix(p.data[p.pos:], []byte(">>")) {
			p.pos += 2
			return v, nil
		}
		if p.pos >= len(p.data) || p.data[p.pos] != '/' {
			return nil, fmt.Errorf("expected dictionary key at offset %d", p.pos)
		}
		key := p.token()
		item, err := p.value()
		if err != nil {
			return nil, err
		}
		v.keys = append(v.keys, key)
		v.items = append(v.items, item)
	}
}

func (p *parser) array() (*value, error) {
	v := &value{kind: arrayValue}
	for {
		p.space()
		if p.pos < len(p.data) && p.data[p.pos] == ']' {
			p.pos++
			return v, nil
		}
		item, err := p.value()
		if err != nil {
			return nil, err
		}
		v.items = append(v.items, item)
	}
}

// literal reads a parenthesized string with balanced parentheses and
// backslash escapes kept as written.
func (p *parser) literal() (*value, error) {
	start := p.pos
	depth := 0
	for p.pos < len(p.data) {
		switch p.data[p.pos] {
		case '\\':
			p.pos++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				p.pos++
				return &value{atom: string(p.data[start:p.pos])}, nil
			}
		}
		p.pos++
	}
	return nil, fmt.Errorf("unterminated string at offset %d", start)
}

// token reads a name, number or keyword. A name's leading slash is part of
// the token.
func (p *parser) token() string {
	start := p.pos
	if p.pos < len(p.data) && p.data[p.pos] == '/' {
		p.pos++
	}
	for p.pos < len(p.data) && !isSpace(p.data[p.pos]) && !isDelim(p.data[p.pos]) {
		p.pos++
	}
	return string(p.data[start:p.pos])
}
