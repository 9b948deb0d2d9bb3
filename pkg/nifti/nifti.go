// Package nifti reads and writes single-file NIfTI-1 volumes (.nii and
// .nii.gz). It decodes the fixed 348-byte header, applies the header's
// intensity scaling, and hands back the voxel grid as a models.Volume.
//
// Header layout follows the official definition from
// https://nifti.nimh.nih.gov/pub/dist/src/niftilib/nifti1.h
package nifti

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/gzip"

	"neurofeat/internal/models"
)

// ErrNotFound is returned when the image file does not exist.
var ErrNotFound = errors.New("nifti: file not found")

// ErrFormat is returned when the file exists but is not a readable
// single-file NIfTI-1 image.
var ErrFormat = errors.New("nifti: unsupported or malformed file")

// NIfTI-1 datatype codes for the subset of on-disk types this package decodes.
const (
	dtUint8   = 2
	dtInt16   = 4
	dtInt32   = 8
	dtFloat32 = 16
	dtFloat64 = 64
)

const (
	headerSize = 348
	voxOffset  = 352 // header + 4-byte extension flag
)

// header is the on-disk NIfTI-1 header. Field widths translate from the C
// definition as: int→int32, float→float32, short→int16, char→int8.
type header struct {
	SizeOfHdr          int32
	UnusedDataType     [10]int8
	UnusedDbName       [18]int8
	UnusedExtents      int32
	UnusedSessionError int16
	UnusedRegular      int8
	DimInfo            int8

	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	DataType      int16
	BitPix        int16
	SliceStart    int16
	PixDim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     int8
	XYZTUnits     int8
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	TOffset       float32
	UnusedGlmax   int32
	UnusedGlmin   int32

	Descrip [80]int8
	AuxFile [24]int8

	QFormCode int16
	SFormCode int16

	QuaternB float32
	QuaternC float32
	QuaternD float32
	QOffsetX float32
	QOffsetY float32
	QOffsetZ float32

	SRowX [4]float32
	SRowY [4]float32
	SRowZ [4]float32

	IntentName [16]int8

	Magic [4]int8
}

// Load reads a .nii or .nii.gz file into a Volume. Only 3D grids (or higher
// dimensional grids whose trailing extents are all 1) are accepted; the
// header's scl_slope/scl_inter scaling is applied when present.
func Load(path string) (*models.Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "%s", path)
		}
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(ErrFormat, "%s: bad gzip stream", path)
		}
		defer gz.Close()
		r = gz
	}
	vol, err := decode(r)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return vol, nil
}

func decode(r io.Reader) (*models.Volume, error) {
	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, errors.Wrap(ErrFormat, "short header")
	}

	// The header carries no explicit endianness flag; sizeof_hdr doubles as
	// the byte-order probe, as in the reference C library.
	order := byteOrder(raw)
	if order == nil {
		return nil, errors.Wrap(ErrFormat, "sizeof_hdr is not 348 in either byte order")
	}
	var hdr header
	if err := binary.Read(bytes.NewReader(raw), order, &hdr); err != nil {
		return nil, errors.Wrap(ErrFormat, "decoding header")
	}

	magic := cString(hdr.Magic[:])
	if magic != "n+1" {
		return nil, errors.Wrapf(ErrFormat, "magic %q (only single-file n+1 images are supported)", magic)
	}

	nx, ny, nz, err := gridDims(hdr.Dim)
	if err != nil {
		return nil, err
	}

	// Skip between the fixed header and the voxel data. vox_offset is a
	// float in the format; 352 in practice unless extensions are present.
	off := int64(hdr.VoxOffset)
	if off < headerSize {
		off = voxOffset
	}
	if err := skip(r, off-headerSize); err != nil {
		return nil, errors.Wrap(ErrFormat, "seeking voxel data")
	}

	vol := models.NewVolume(nx, ny, nz)
	vol.VoxelSize.X = float64(hdr.PixDim[1])
	vol.VoxelSize.Y = float64(hdr.PixDim[2])
	vol.VoxelSize.Z = float64(hdr.PixDim[3])
	for j := 0; j < 4; j++ {
		vol.Affine[0][j] = float64(hdr.SRowX[j])
		vol.Affine[1][j] = float64(hdr.SRowY[j])
		vol.Affine[2][j] = float64(hdr.SRowZ[j])
	}

	if err := readVoxels(r, order, hdr.DataType, vol.Data); err != nil {
		return nil, err
	}

	// scl_slope == 0 means "no scaling" per the format definition.
	if hdr.SclSlope != 0 && !(hdr.SclSlope == 1 && hdr.SclInter == 0) {
		slope := float64(hdr.SclSlope)
		inter := float64(hdr.SclInter)
		for i, v := range vol.Data {
			vol.Data[i] = v*slope + inter
		}
	}
	return vol, nil
}

func byteOrder(raw []byte) binary.ByteOrder {
	if binary.LittleEndian.Uint32(raw[:4]) == headerSize {
		return binary.LittleEndian
	}
	if binary.BigEndian.Uint32(raw[:4]) == headerSize {
		return binary.BigEndian
	}
	return nil
}

func gridDims(dim [8]int16) (nx, ny, nz int, err error) {
	nd := int(dim[0])
	if nd < 1 || nd > 7 {
		return 0, 0, 0, errors.Wrapf(ErrFormat, "dim[0] = %d", nd)
	}
	size := func(i int) int {
		if i > nd || dim[i] < 1 {
			return 1
		}
		return int(dim[i])
	}
	for i := 4; i <= 7; i++ {
		if size(i) != 1 {
			return 0, 0, 0, errors.Wrapf(ErrFormat, "non-singleton dimension %d (extent %d); only 3D volumes are supported", i, dim[i])
		}
	}
	return size(1), size(2), size(3), nil
}

func readVoxels(r io.Reader, order binary.ByteOrder, datatype int16, out []float64) error {
	n := len(out)
	switch datatype {
	case dtUint8:
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return errors.Wrap(ErrFormat, "short voxel data")
		}
		for i, b := range buf {
			out[i] = float64(b)
		}
	case dtInt16:
		buf := make([]int16, n)
		if err := binary.Read(r, order, buf); err != nil {
			return errors.Wrap(ErrFormat, "short voxel data")
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case dtInt32:
		buf := make([]int32, n)
		if err := binary.Read(r, order, buf); err != nil {
			return errors.Wrap(ErrFormat, "short voxel data")
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case dtFloat32:
		buf := make([]float32, n)
		if err := binary.Read(r, order, buf); err != nil {
			return errors.Wrap(ErrFormat, "short voxel data")
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case dtFloat64:
		if err := binary.Read(r, order, out); err != nil {
			return errors.Wrap(ErrFormat, "short voxel data")
		}
	default:
		return errors.Wrapf(ErrFormat, "datatype code %d not supported", datatype)
	}
	return nil
}

// Save writes a volume as a single-file little-endian NIfTI-1 image with
// float32 voxels, gzip-compressed when the path ends in .gz. Geometry
// (voxel size and affine rows) is taken from the volume.
func Save(path string, vol *models.Volume) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}

	if err := encode(w, vol); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return errors.Wrapf(err, "writing %s", path)
		}
	}
	return f.Close()
}

func encode(w io.Writer, vol *models.Volume) error {
	var hdr header
	hdr.SizeOfHdr = headerSize
	hdr.Dim[0] = 3
	hdr.Dim[1] = int16(vol.Nx)
	hdr.Dim[2] = int16(vol.Ny)
	hdr.Dim[3] = int16(vol.Nz)
	for i := 4; i < 8; i++ {
		hdr.Dim[i] = 1
	}
	hdr.DataType = dtFloat32
	hdr.BitPix = 32
	hdr.PixDim[0] = 1
	hdr.PixDim[1] = float32(vol.VoxelSize.X)
	hdr.PixDim[2] = float32(vol.VoxelSize.Y)
	hdr.PixDim[3] = float32(vol.VoxelSize.Z)
	hdr.VoxOffset = voxOffset
	hdr.SclSlope = 1
	hdr.SFormCode = 1
	for j := 0; j < 4; j++ {
		hdr.SRowX[j] = float32(vol.Affine[0][j])
		hdr.SRowY[j] = float32(vol.Affine[1][j])
		hdr.SRowZ[j] = float32(vol.Affine[2][j])
	}
	copy(hdr.Magic[:], []int8{'n', '+', '1', 0})

	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return err
	}
	// 4-byte extension flag, all zero: no extensions.
	if _, err := w.Write([]byte{0, 0, 0, 0}); err != nil {
		return err
	}
	buf := make([]float32, len(vol.Data))
	for i, v := range vol.Data {
		buf[i] = float32(v)
	}
	return binary.Write(w, binary.LittleEndian, buf)
}

func cString(b []int8) string {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c == 0 {
			break
		}
		out = append(out, byte(c))
	}
	return string(out)
}

func skip(r io.Reader, n int64) error {
	if n <= 0 {
		return nil
	}
	_, err := io.CopyN(io.Discard, r, n)
	return err
}
