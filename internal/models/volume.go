package models

// Volume represents a 3D scalar field loaded from a volumetric image,
// together with the geometry metadata needed to interpret it physically.
type Volume struct {
	// Data is the voxel data as a 1D array, x varying fastest, then y, then z.
	Data []float64

	// Nx, Ny, Nz are the grid dimensions in voxels.
	Nx, Ny, Nz int

	// VoxelSize is the physical extent of one voxel along each axis in mm.
	VoxelSize struct {
		X, Y, Z float64
	}

	// Affine holds the first three rows of the voxel-to-world transform
	// as stored in the source header. It is carried through unchanged so
	// that derived volumes can be written back with the same geometry.
	Affine [3][4]float64
}

// NewVolume allocates a zero-filled volume with the given dimensions and
// unit voxel size.
func NewVolume(nx, ny, nz int) *Volume {
	v := &Volume{
		Data: make([]float64, nx*ny*nz),
		Nx:   nx,
		Ny:   ny,
		Nz:   nz,
	}
	v.VoxelSize.X = 1
	v.VoxelSize.Y = 1
	v.VoxelSize.Z = 1
	return v
}

// Len returns the total number of voxels.
func (v *Volume) Len() int {
	return v.Nx * v.Ny * v.Nz
}

// Index converts (x, y, z) voxel coordinates into a flat index into Data.
func (v *Volume) Index(x, y, z int) int {
	return x + v.Nx*(y+v.Ny*z)
}

// At returns the value at the given voxel coordinates.
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// SetAt stores a value at the given voxel coordinates.
func (v *Volume) SetAt(x, y, z int, value float64) {
	v.Data[v.Index(x, y, z)] = value
}

// VoxelVolume returns the physical volume of a single voxel in mm³.
func (v *Volume) VoxelVolume() float64 {
	return v.VoxelSize.X * v.VoxelSize.Y * v.VoxelSize.Z
}

// SameShape reports whether two volumes share the same grid dimensions.
// It says nothing about voxel size or affine agreement; callers pairing a
// mask with an image are responsible for having resampled them to the same
// space beforehand.
func (v *Volume) SameShape(other *Volume) bool {
	return v.Nx == other.Nx && v.Ny == other.Ny && v.Nz == other.Nz
}

// CopyGeometry copies voxel size and affine from another volume, leaving
// the data untouched. Used when deriving an output image (e.g. a CBF map)
// from an input image of the same space.
func (v *Volume) CopyGeometry(src *Volume) {
	v.VoxelSize = src.VoxelSize
	v.Affine = src.Affine
}
