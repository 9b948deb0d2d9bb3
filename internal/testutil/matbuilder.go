// Package testutil builds small binary fixtures for tests: Level 5 MAT
// streams assembled element by element, so decoder tests do not depend on
// checked-in binary files.
package testutil

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/klauspost/compress/zlib"
)

// MAT element types and array classes used by the builders.
const (
	miInt8       = 1
	miUint8      = 2
	miInt32      = 5
	miUint32     = 6
	miDouble     = 9
	miMatrix     = 14
	miCompressed = 15

	mxCell   = 1
	mxStruct = 2
	mxChar   = 4
	mxDouble = 6
)

// structFieldNameLen is the fixed field-name slot width MATLAB writes.
const structFieldNameLen = 32

// MatFile assembles a little-endian Level 5 MAT stream from full top-level
// elements (as produced by MatNumeric, MatCell, MatStruct or MatCompressed).
func MatFile(vars ...[]byte) []byte {
	var buf bytes.Buffer
	header := make([]byte, 128)
	copy(header, []byte("MATLAB 5.0 MAT-file, test fixture"))
	for i := len("MATLAB 5.0 MAT-file, test fixture"); i < 116; i++ {
		header[i] = ' '
	}
	binary.LittleEndian.PutUint16(header[124:126], 0x0100)
	header[126] = 'I'
	header[127] = 'M'
	buf.Write(header)
	for _, v := range vars {
		buf.Write(v)
	}
	return buf.Bytes()
}

// MatNumeric builds a named double array element in column-major order.
func MatNumeric(name string, dims []int, values []float64) []byte {
	data := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(data[8*i:], math.Float64bits(v))
	}
	return element(miMatrix, concat(
		arrayFlags(mxDouble),
		dimsElement(dims),
		element(miInt8, []byte(name)),
		element(miDouble, data),
	))
}

// MatChar builds a named character array element encoded as UTF-8 bytes.
func MatChar(name, s string) []byte {
	return element(miMatrix, concat(
		arrayFlags(mxChar),
		dimsElement([]int{1, len(s)}),
		element(miInt8, []byte(name)),
		element(miUint8, []byte(s)),
	))
}

// MatCell builds a named cell array whose elements are full matrix elements
// built by the other Mat helpers (their names are ignored by readers).
func MatCell(name string, dims []int, elems ...[]byte) []byte {
	return element(miMatrix, concat(append([][]byte{
		arrayFlags(mxCell),
		dimsElement(dims),
		element(miInt8, []byte(name)),
	}, elems...)...))
}

// MatStruct builds a named 1x1 struct element with the given field names
// and matching field values (full matrix elements, one per field).
func MatStruct(name string, fields []string, values ...[]byte) []byte {
	namesData := make([]byte, structFieldNameLen*len(fields))
	for i, f := range fields {
		copy(namesData[structFieldNameLen*i:], f)
	}
	lenData := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenData, structFieldNameLen)
	return element(miMatrix, concat(append([][]byte{
		arrayFlags(mxStruct),
		dimsElement([]int{1, 1}),
		element(miInt8, []byte(name)),
		element(miInt32, lenData),
		element(miInt8, namesData),
	}, values...)...))
}

// MatCompressed wraps a full top-level element in a zlib-compressed element.
func MatCompressed(inner []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(inner); err != nil {
		panic(err)
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	// Compressed elements are exempt from 8-byte padding, but padding is
	// harmless and keeps the builder uniform.
	return element(miCompressed, buf.Bytes())
}

func element(elemType int, data []byte) []byte {
	out := make([]byte, 8, 8+len(data)+7)
	binary.LittleEndian.PutUint32(out[:4], uint32(elemType))
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(data)))
	out = append(out, data...)
	for len(out)%8 != 0 {
		out = append(out, 0)
	}
	return out
}

func arrayFlags(class int) []byte {
	data := make([]byte, 8)
	data[0] = byte(class)
	return element(miUint32, data)
}

func dimsElement(dims []int) []byte {
	data := make([]byte, 4*len(dims))
	for i, d := range dims {
		binary.LittleEndian.PutUint32(data[4*i:], uint32(d))
	}
	return element(miInt32, data)
}

func concat(parts ...[]byte) []byte {
	var buf bytes.Buffer
	for _, p := range parts {
		buf.Write(p)
	}
	return buf.Bytes()
}
