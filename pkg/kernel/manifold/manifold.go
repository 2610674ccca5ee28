//go:build manifold

// Package manifold provides a CGo-based geometry kernel binding to the
// Manifold library (https://github.com/elalish/manifold). Manifold guarantees
// watertight boolean results, which makes it the preferred backend when an
// excavation model has to be carved exactly instead of approximated.
//
// This package requires the Manifold C library (manifoldc) to be installed.
// Build with: go build -tags=manifold
package manifold

/*
#cgo CFLAGS: -I/usr/local/include
#cgo LDFLAGS: -L/usr/local/lib -lmanifoldc

#include <stdlib.h>
#include <manifold/manifoldc.h>
*/
import "C"

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/geomech/stratum/pkg/kernel"
	"github.com/geomech/stratum/pkg/mesh"
)

// Compile-time interface checks.
var _ kernel.Kernel = (*ManifoldKernel)(nil)
var _ kernel.Solid = (*manifoldSolid)(nil)

// manifoldSolid wraps a C ManifoldManifold pointer and implements kernel.Solid.
type manifoldSolid struct {
	ptr *C.ManifoldManifold
}

// BoundingBox returns the axis-aligned bounding box of the solid.
func (s *manifoldSolid) BoundingBox() (min, max [3]float64) {
	alloc := C.manifold_alloc_box()
	bbox := C.manifold_bounding_box(alloc, s.ptr)
	defer C.manifold_delete_box(bbox)

	min[0] = float64(C.manifold_box_min_x(bbox))
	min[1] = float64(C.manifold_box_min_y(bbox))
	min[2] = float64(C.manifold_box_min_z(bbox))
	max[0] = float64(C.manifold_box_max_x(bbox))
	max[1] = float64(C.manifold_box_max_y(bbox))
	max[2] = float64(C.manifold_box_max_z(bbox))
	return min, max
}

// newSolid wraps a C ManifoldManifold pointer with Go-side finalizer
// for automatic memory management.
func newSolid(ptr *C.ManifoldManifold) *manifoldSolid {
	s := &manifoldSolid{ptr: ptr}
	runtime.SetFinalizer(s, func(s *manifoldSolid) {
		if s.ptr != nil {
			C.manifold_delete_manifold(s.ptr)
			s.ptr = nil
		}
	})
	return s
}

// ManifoldKernel implements kernel.Kernel using the Manifold C library.
type ManifoldKernel struct{}

// New creates a new ManifoldKernel. Returns an error if the Manifold
// C library cannot be initialized.
func New() (kernel.Kernel, error) {
	return &ManifoldKernel{}, nil
}

// Slab creates a rectangular solid with the given dimensions. The minimum
// corner sits at the origin so depth translations in the excavation model
// line up with drawing coordinates; manifold_cube does that directly when
// center is false.
func (k *ManifoldKernel) Slab(x, y, z float64) kernel.Solid {
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_cube(alloc,
		C.double(x), C.double(y), C.double(z),
		C.int(0), // center=false
	)
	return newSolid(ptr)
}

// Prism extrudes a polygon outline from z=0 to z=height. The outline is
// normalized to counterclockwise winding before the cross section is built;
// Manifold's extrude already places the base on z=0.
func (k *ManifoldKernel) Prism(outline [][2]float64, height float64) (kernel.Solid, error) {
	if len(outline) < 3 {
		return nil, fmt.Errorf("prism outline needs at least 3 points, got %d", len(outline))
	}
	if height <= 0 {
		return nil, fmt.Errorf("prism height must be positive, got %g", height)
	}

	pts := make([]C.ManifoldVec2, len(outline))
	for i, p := range outline {
		pts[i] = C.ManifoldVec2{x: C.double(p[0]), y: C.double(p[1])}
	}
	if polygonArea(outline) < 0 {
		for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
			pts[i], pts[j] = pts[j], pts[i]
		}
	}

	spAlloc := C.manifold_alloc_simple_polygon()
	sp := C.manifold_simple_polygon(spAlloc, (*C.ManifoldVec2)(unsafe.Pointer(&pts[0])), C.size_t(len(pts)))
	defer C.manifold_delete_simple_polygon(sp)

	polyAlloc := C.manifold_alloc_polygons()
	polys := C.manifold_polygons(polyAlloc, &sp, 1)
	defer C.manifold_delete_polygons(polys)

	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_extrude(alloc, polys,
		C.double(height),
		C.int(0),    // slices: library default
		C.double(0), // no twist
		C.double(1), C.double(1), // no top scaling
	)
	return newSolid(ptr), nil
}

// Cylinder creates a cylinder along the Z axis with the given height,
// radius, and number of circular segments, base at z=0. Segment counts
// below 3 fall back to the library's global quality default.
func (k *ManifoldKernel) Cylinder(height, radius float64, segments int) kernel.Solid {
	if segments < 3 {
		segments = 0
	}
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_cylinder(alloc,
		C.double(height),
		C.double(radius), // radius_low
		C.double(radius), // radius_high (same = not tapered)
		C.int(segments),
		C.int(0), // center=false
	)
	return newSolid(ptr)
}

// Union returns the boolean union of two solids.
func (k *ManifoldKernel) Union(a, b kernel.Solid) kernel.Solid {
	sa := a.(*manifoldSolid)
	sb := b.(*manifoldSolid)
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_union(alloc, sa.ptr, sb.ptr)
	return newSolid(ptr)
}

// Difference returns the boolean difference (a minus b).
func (k *ManifoldKernel) Difference(a, b kernel.Solid) kernel.Solid {
	sa := a.(*manifoldSolid)
	sb := b.(*manifoldSolid)
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_difference(alloc, sa.ptr, sb.ptr)
	return newSolid(ptr)
}

// Intersection returns the boolean intersection of two solids.
func (k *ManifoldKernel) Intersection(a, b kernel.Solid) kernel.Solid {
	sa := a.(*manifoldSolid)
	sb := b.(*manifoldSolid)
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_intersection(alloc, sa.ptr, sb.ptr)
	return newSolid(ptr)
}

// Translate moves the solid by (x, y, z).
func (k *ManifoldKernel) Translate(s kernel.Solid, x, y, z float64) kernel.Solid {
	ms := s.(*manifoldSolid)
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_translate(alloc, ms.ptr,
		C.double(x), C.double(y), C.double(z),
	)
	return newSolid(ptr)
}

// RotateZ rotates the solid around the Z axis by the given angle in degrees.
func (k *ManifoldKernel) RotateZ(s kernel.Solid, degrees float64) kernel.Solid {
	ms := s.(*manifoldSolid)
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_rotate(alloc, ms.ptr,
		C.double(0), C.double(0), C.double(degrees),
	)
	return newSolid(ptr)
}

// ToMesh extracts a triangle mesh from the solid using Manifold's MeshGL
// format. Vertex positions and normals are interleaved in MeshGL; this
// method separates them into the flat mesh.Mesh layout.
func (k *ManifoldKernel) ToMesh(s kernel.Solid) (*mesh.Mesh, error) {
	ms := s.(*manifoldSolid)

	meshAlloc := C.manifold_alloc_meshgl()
	meshGL := C.manifold_get_meshgl(meshAlloc, ms.ptr)
	defer C.manifold_delete_meshgl(meshGL)

	numVert := int(C.manifold_meshgl_num_vert(meshGL))
	numTri := int(C.manifold_meshgl_num_tri(meshGL))

	if numVert == 0 || numTri == 0 {
		return &mesh.Mesh{}, nil
	}

	// MeshGL stores vertex properties in a flat float array with numProp
	// properties per vertex. The first 3 are always position (x, y, z);
	// normals, when present, follow at indices 3, 4, 5.
	numProp := int(C.manifold_meshgl_num_prop(meshGL))

	propData := make([]float32, numVert*numProp)
	C.manifold_meshgl_vert_properties(
		(*C.float)(unsafe.Pointer(&propData[0])),
		meshGL,
	)

	faces := make([]uint32, numTri*3)
	C.manifold_meshgl_tri_verts(
		(*C.uint32_t)(unsafe.Pointer(&faces[0])),
		meshGL,
	)

	vertices := make([]float32, numVert*3)
	var normals []float32
	hasNormals := numProp >= 6
	if hasNormals {
		normals = make([]float32, numVert*3)
	}

	for i := 0; i < numVert; i++ {
		base := i * numProp
		vertices[i*3+0] = propData[base+0]
		vertices[i*3+1] = propData[base+1]
		vertices[i*3+2] = propData[base+2]
		if hasNormals {
			normals[i*3+0] = propData[base+3]
			normals[i*3+1] = propData[base+4]
			normals[i*3+2] = propData[base+5]
		}
	}

	out := &mesh.Mesh{
		Vertices: vertices,
		Faces:    faces,
		Normals:  normals,
	}
	if !hasNormals {
		out.RecomputeNormals()
	}
	return out, nil
}

// polygonArea returns the signed shoelace area, positive for
// counterclockwise outlines.
func polygonArea(pts [][2]float64) float64 {
	var sum float64
	for i := range pts {
		j := (i + 1) % len(pts)
		sum += pts[i][0]*pts[j][1] - pts[j][0]*pts[i][1]
	}
	return sum / 2
}
