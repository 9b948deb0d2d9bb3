// Package matfile decodes Level 5 MAT binary files into a small typed node
// tree. It covers the subset of the format that analysis toolboxes emit for
// result structures: numeric arrays, character arrays, cell arrays, struct
// arrays, and zlib-compressed elements. Complex data, sparse matrices and
// objects are not supported.
package matfile

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zlib"
)

// ErrNotFound is returned when the mat file does not exist.
var ErrNotFound = errors.New("matfile: file not found")

// ErrFormat is returned for files or elements this decoder cannot read.
var ErrFormat = errors.New("matfile: unsupported or malformed data")

// MAT data element types.
const (
	miInt8       = 1
	miUint8      = 2
	miInt16      = 3
	miUint16     = 4
	miInt32      = 5
	miUint32     = 6
	miSingle     = 7
	miDouble     = 9
	miInt64      = 12
	miUint64     = 13
	miMatrix     = 14
	miCompressed = 15
	miUTF8       = 16
	miUTF16      = 17
)

// MATLAB array classes.
const (
	mxCell   = 1
	mxStruct = 2
	mxObject = 3
	mxChar   = 4
	mxSparse = 5
	mxDouble = 6
	mxSingle = 7
	mxInt8   = 8
	mxUint8  = 9
	mxInt16  = 10
	mxUint16 = 11
	mxInt32  = 12
	mxUint32 = 13
	mxInt64  = 14
	mxUint64 = 15
)

// Node is one decoded MATLAB array: a numeric Array, a Char, a Cell, or a
// Struct.
type Node interface {
	node()
}

// Array is a numeric array with its values widened to float64, stored in
// MATLAB's column-major element order.
type Array struct {
	Dims []int
	Data []float64
}

// Char is a character array flattened to a Go string.
type Char struct {
	Value string
}

// Cell is a cell array; Elems holds prod(Dims) nodes in column-major order.
type Cell struct {
	Dims  []int
	Elems []Node
}

// Struct is a struct array. Fields maps each field name to one node per
// array element, and FieldNames preserves declaration order.
type Struct struct {
	Dims       []int
	FieldNames []string
	Fields     map[string][]Node
}

func (*Array) node()  {}
func (*Char) node()   {}
func (*Cell) node()   {}
func (*Struct) node() {}

// Scalar returns the array's single value. It is false when the array is
// empty or holds more than one element.
func (a *Array) Scalar() (float64, bool) {
	if len(a.Data) != 1 {
		return 0, false
	}
	return a.Data[0], true
}

// Field returns the field's value for the first struct-array element, as
// scipy-style code reads 1x1 result structs.
func (s *Struct) Field(name string) (Node, bool) {
	nodes, ok := s.Fields[name]
	if !ok || len(nodes) == 0 {
		return nil, false
	}
	return nodes[0], true
}

// File is a decoded MAT file: the top-level workspace variables by name.
type File struct {
	Vars map[string]Node
}

// Var returns a top-level variable by name.
func (f *File) Var(name string) (Node, bool) {
	n, ok := f.Vars[name]
	return n, ok
}

// Open reads and decodes a Level 5 MAT file.
func Open(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "%s", path)
		}
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	f, err := Decode(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return f, nil
}

// Decode parses an in-memory Level 5 MAT stream.
func Decode(raw []byte) (*File, error) {
	if len(raw) < 128 {
		return nil, errors.Wrap(ErrFormat, "short file header")
	}
	// Bytes 126..127 are the endian indicator: "IM" when the writer was
	// little endian, "MI" when big endian.
	var order binary.ByteOrder
	switch {
	case raw[126] == 'I' && raw[127] == 'M':
		order = binary.LittleEndian
	case raw[126] == 'M' && raw[127] == 'I':
		order = binary.BigEndian
	default:
		return nil, errors.Wrap(ErrFormat, "bad endian indicator")
	}

	d := &decoder{order: order}
	file := &File{Vars: make(map[string]Node)}
	body := raw[128:]
	for len(body) > 0 {
		elemType, data, rest, err := d.element(body)
		if err != nil {
			return nil, err
		}
		body = rest
		switch elemType {
		case miCompressed:
			inner, err := inflate(data)
			if err != nil {
				return nil, err
			}
			t, payload, _, err := d.element(inner)
			if err != nil {
				return nil, err
			}
			if t != miMatrix {
				return nil, errors.Wrapf(ErrFormat, "compressed element holds type %d, want matrix", t)
			}
			name, node, err := d.matrix(payload)
			if err != nil {
				return nil, err
			}
			file.Vars[name] = node
		case miMatrix:
			name, node, err := d.matrix(data)
			if err != nil {
				return nil, err
			}
			file.Vars[name] = node
		default:
			// Skip subsystem data and other top-level elements.
		}
	}
	return file, nil
}

type decoder struct {
	order binary.ByteOrder
}

// element reads one tagged data element, handling the small-element format
// where type and up to four payload bytes pack into a single 8-byte tag.
func (d *decoder) element(b []byte) (elemType int, data []byte, rest []byte, err error) {
	if len(b) < 8 {
		return 0, nil, nil, errors.Wrap(ErrFormat, "truncated element tag")
	}
	t := d.order.Uint32(b[:4])
	if t&0xFFFF0000 != 0 {
		// Small element: byte count lives in the tag's upper half.
		n := int(t >> 16)
		if n > 4 {
			return 0, nil, nil, errors.Wrapf(ErrFormat, "small element of %d bytes", n)
		}
		return int(t & 0xFFFF), b[4 : 4+n], b[8:], nil
	}
	n := int(d.order.Uint32(b[4:8]))
	if len(b) < 8+n {
		return 0, nil, nil, errors.Wrap(ErrFormat, "truncated element data")
	}
	data = b[8 : 8+n]
	// Element data is padded to the next 8-byte boundary.
	padded := 8 + n
	if r := padded % 8; r != 0 {
		padded += 8 - r
	}
	if padded > len(b) {
		padded = len(b)
	}
	return int(t), data, b[padded:], nil
}

// matrix decodes a miMATRIX payload into its name and node.
func (d *decoder) matrix(b []byte) (string, Node, error) {
	if len(b) == 0 {
		// An empty matrix element stands for MATLAB's [].
		return "", &Array{}, nil
	}

	t, flagsData, rest, err := d.element(b)
	if err != nil {
		return "", nil, err
	}
	if t != miUint32 || len(flagsData) < 8 {
		return "", nil, errors.Wrap(ErrFormat, "bad array flags")
	}
	class := int(d.order.Uint32(flagsData[:4]) & 0xFF)

	t, dimsData, rest, err := d.element(rest)
	if err != nil {
		return "", nil, err
	}
	if t != miInt32 {
		return "", nil, errors.Wrap(ErrFormat, "bad dimensions element")
	}
	dims := make([]int, len(dimsData)/4)
	for i := range dims {
		dims[i] = int(int32(d.order.Uint32(dimsData[4*i : 4*i+4])))
	}

	_, nameData, rest, err := d.element(rest)
	if err != nil {
		return "", nil, err
	}
	name := string(nameData)

	switch class {
	case mxCell:
		node, err := d.cell(dims, rest)
		return name, node, err
	case mxStruct:
		node, err := d.structArray(dims, rest)
		return name, node, err
	case mxChar:
		node, err := d.charArray(rest)
		return name, node, err
	case mxDouble, mxSingle, mxInt8, mxUint8, mxInt16, mxUint16,
		mxInt32, mxUint32, mxInt64, mxUint64:
		node, err := d.numeric(dims, rest)
		return name, node, err
	default:
		return "", nil, errors.Wrapf(ErrFormat, "array class %d", class)
	}
}

func (d *decoder) numeric(dims []int, b []byte) (*Array, error) {
	if len(b) == 0 {
		return &Array{Dims: dims}, nil
	}
	t, data, _, err := d.element(b)
	if err != nil {
		return nil, err
	}
	values, err := d.widen(t, data)
	if err != nil {
		return nil, err
	}
	return &Array{Dims: dims, Data: values}, nil
}

func (d *decoder) charArray(b []byte) (*Char, error) {
	if len(b) == 0 {
		return &Char{}, nil
	}
	t, data, _, err := d.element(b)
	if err != nil {
		return nil, err
	}
	switch t {
	case miUTF8, miInt8, miUint8:
		return &Char{Value: string(data)}, nil
	case miUint16, miUTF16:
		runes := make([]rune, len(data)/2)
		for i := range runes {
			runes[i] = rune(d.order.Uint16(data[2*i : 2*i+2]))
		}
		return &Char{Value: string(runes)}, nil
	}
	return nil, errors.Wrapf(ErrFormat, "char element type %d", t)
}

func (d *decoder) cell(dims []int, b []byte) (*Cell, error) {
	n := numElements(dims)
	c := &Cell{Dims: dims, Elems: make([]Node, 0, n)}
	rest := b
	for i := 0; i < n; i++ {
		t, data, r, err := d.element(rest)
		if err != nil {
			return nil, err
		}
		if t != miMatrix {
			return nil, errors.Wrapf(ErrFormat, "cell element type %d", t)
		}
		_, node, err := d.matrix(data)
		if err != nil {
			return nil, err
		}
		c.Elems = append(c.Elems, node)
		rest = r
	}
	return c, nil
}

func (d *decoder) structArray(dims []int, b []byte) (*Struct, error) {
	t, lenData, rest, err := d.element(b)
	if err != nil {
		return nil, err
	}
	if t != miInt32 || len(lenData) < 4 {
		return nil, errors.Wrap(ErrFormat, "bad field name length")
	}
	nameLen := int(int32(d.order.Uint32(lenData[:4])))

	t, namesData, rest, err := d.element(rest)
	if err != nil {
		return nil, err
	}
	if t != miInt8 || nameLen <= 0 {
		return nil, errors.Wrap(ErrFormat, "bad field names")
	}
	var names []string
	for off := 0; off+nameLen <= len(namesData); off += nameLen {
		names = append(names, cstr(namesData[off:off+nameLen]))
	}

	s := &Struct{
		Dims:       dims,
		FieldNames: names,
		Fields:     make(map[string][]Node, len(names)),
	}
	// Field values follow element by element, field order within each.
	for e := 0; e < numElements(dims); e++ {
		for _, name := range names {
			t, data, r, err := d.element(rest)
			if err != nil {
				return nil, err
			}
			if t != miMatrix {
				return nil, errors.Wrapf(ErrFormat, "struct field element type %d", t)
			}
			_, node, err := d.matrix(data)
			if err != nil {
				return nil, err
			}
			s.Fields[name] = append(s.Fields[name], node)
			rest = r
		}
	}
	return s, nil
}

func (d *decoder) widen(elemType int, data []byte) ([]float64, error) {
	switch elemType {
	case miInt8:
		out := make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(int8(v))
		}
		return out, nil
	case miUint8:
		out := make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
		return out, nil
	case miInt16:
		out := make([]float64, len(data)/2)
		for i := range out {
			out[i] = float64(int16(d.order.Uint16(data[2*i:])))
		}
		return out, nil
	case miUint16:
		out := make([]float64, len(data)/2)
		for i := range out {
			out[i] = float64(d.order.Uint16(data[2*i:]))
		}
		return out, nil
	case miInt32:
		out := make([]float64, len(data)/4)
		for i := range out {
			out[i] = float64(int32(d.order.Uint32(data[4*i:])))
		}
		return out, nil
	case miUint32:
		out := make([]float64, len(data)/4)
		for i := range out {
			out[i] = float64(d.order.Uint32(data[4*i:]))
		}
		return out, nil
	case miSingle:
		out := make([]float64, len(data)/4)
		for i := range out {
			out[i] = float64(math.Float32frombits(d.order.Uint32(data[4*i:])))
		}
		return out, nil
	case miDouble:
		out := make([]float64, len(data)/8)
		for i := range out {
			out[i] = math.Float64frombits(d.order.Uint64(data[8*i:]))
		}
		return out, nil
	case miInt64:
		out := make([]float64, len(data)/8)
		for i := range out {
			out[i] = float64(int64(d.order.Uint64(data[8*i:])))
		}
		return out, nil
	case miUint64:
		out := make([]float64, len(data)/8)
		for i := range out {
			out[i] = float64(d.order.Uint64(data[8*i:]))
		}
		return out, nil
	}
	return nil, errors.Wrapf(ErrFormat, "numeric element type %d", elemType)
}

func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(ErrFormat, "bad zlib stream")
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(ErrFormat, "bad zlib stream")
	}
	return out, nil
}

func numElements(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}

func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
