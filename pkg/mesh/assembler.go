package mesh

// Assembler concatenates mesh fragments into a single mesh, rebasing face
// indices by the running vertex count. Fragments keep their append order.
// No vertex welding is performed: coincident vertices from different
// fragments stay distinct, so fragment boundaries remain visible to
// downstream quality checks.
type Assembler struct {
	out       Mesh
	fragments int
}

// NewAssembler returns an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Append adds a fragment. Every face index is offset by the number of
// vertices already assembled. Fragments without normals are padded with
// zero normals so the buffer invariant len(Normals) == len(Vertices) holds;
// call RecomputeNormals on the result if exact shading is needed.
func (a *Assembler) Append(m Mesh) {
	if m.IsEmpty() {
		return
	}
	base := uint32(a.out.VertexCount())

	a.out.Vertices = append(a.out.Vertices, m.Vertices...)
	for _, f := range m.Faces {
		a.out.Faces = append(a.out.Faces, base+f)
	}
	if len(m.Normals) == len(m.Vertices) {
		a.out.Normals = append(a.out.Normals, m.Normals...)
	} else {
		a.out.Normals = append(a.out.Normals, make([]float32, len(m.Vertices))...)
	}
	a.fragments++
}

// Fragments returns the number of non-empty fragments appended so far.
func (a *Assembler) Fragments() int {
	return a.fragments
}

// Mesh returns the assembled mesh. The assembler retains ownership of the
// buffers; callers that keep assembling afterwards should Clone first.
func (a *Assembler) Mesh() Mesh {
	return a.out
}

// Merge assembles the given meshes in order and returns the result.
func Merge(meshes ...Mesh) Mesh {
	asm := NewAssembler()
	for _, m := range meshes {
		asm.Append(m)
	}
	return asm.Mesh()
}
