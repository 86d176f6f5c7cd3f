//go:build gl

package shadowdepth

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Faultbox/midgard-shadows/internal/engine/shader"
	"github.com/Faultbox/midgard-shadows/pkg/math"
)

const boxVertexShader = `#version 410 core
layout(location = 0) in vec3 aPos;
uniform mat4 uViewProj;
uniform vec3 uOrigin;
uniform vec3 uExtent;
void main() {
    gl_Position = uViewProj * vec4(uOrigin + aPos * uExtent, 1.0);
}
`

// The cube variant emits world positions; the geometry stage projects each
// triangle once per face.
const boxCubeVertexShader = `#version 410 core
layout(location = 0) in vec3 aPos;
uniform vec3 uOrigin;
uniform vec3 uExtent;
void main() {
    gl_Position = vec4(uOrigin + aPos * uExtent, 1.0);
}
`

const boxCubeGeometryShader = `#version 410 core
layout(triangles) in;
layout(triangle_strip, max_vertices = 18) out;
uniform mat4 uFaces[6];
void main() {
    for (int f = 0; f < 6; f++) {
        gl_Layer = f;
        for (int i = 0; i < 3; i++) {
            gl_Position = uFaces[f] * gl_in[i].gl_Position;
            EmitVertex();
        }
        EndPrimitive();
    }
}
`

const depthOnlyFragmentShader = `#version 410 core
void main() {}
`

// Unit cube corners indexed like math.BoxSphereBounds.Corners.
var boxCorners = [8 * 3]float32{
	-1, -1, -1, 1, -1, -1, -1, 1, -1, 1, 1, -1,
	-1, -1, 1, 1, -1, 1, -1, 1, 1, 1, 1, 1,
}

var boxIndices = [36]uint16{
	0, 2, 1, 1, 2, 3, // -Z
	4, 5, 6, 5, 7, 6, // +Z
	0, 1, 4, 1, 5, 4, // -Y
	2, 6, 3, 3, 6, 7, // +Y
	0, 4, 2, 2, 4, 6, // -X
	1, 3, 5, 3, 7, 5, // +X
}

type boxProgram struct {
	id     uint32
	origin int32
	extent int32
	xform  int32 // uViewProj or uFaces
}

// BoxDrawer is a MeshDrawer that draws every subject as its bounding box.
type BoxDrawer struct {
	flat, cube boxProgram
	vao        uint32
	vbo, ebo   uint32
}

// NewBoxDrawer compiles the depth programs. A GL context must be current.
func NewBoxDrawer() (*BoxDrawer, error) {
	d := &BoxDrawer{}
	var err error
	if d.flat, err = newBoxProgram("uViewProj",
		shader.Stage{Type: gl.VERTEX_SHADER, Source: boxVertexShader},
		shader.Stage{Type: gl.FRAGMENT_SHADER, Source: depthOnlyFragmentShader},
	); err != nil {
		return nil, fmt.Errorf("box depth program: %w", err)
	}
	if d.cube, err = newBoxProgram("uFaces",
		shader.Stage{Type: gl.VERTEX_SHADER, Source: boxCubeVertexShader},
		shader.Stage{Type: gl.GEOMETRY_SHADER, Source: boxCubeGeometryShader},
		shader.Stage{Type: gl.FRAGMENT_SHADER, Source: depthOnlyFragmentShader},
	); err != nil {
		gl.DeleteProgram(d.flat.id)
		return nil, fmt.Errorf("cube depth program: %w", err)
	}

	gl.GenVertexArrays(1, &d.vao)
	gl.BindVertexArray(d.vao)

	gl.GenBuffers(1, &d.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, d.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(boxCorners)*4, gl.Ptr(&boxCorners[0]), gl.STATIC_DRAW)

	gl.GenBuffers(1, &d.ebo)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, d.ebo)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(boxIndices)*2, gl.Ptr(&boxIndices[0]), gl.STATIC_DRAW)

	// Position attribute (location = 0): 3 floats
	gl.VertexAttribPointerWithOffset(0, 3, gl.FLOAT, false, 3*4, 0)
	gl.EnableVertexAttribArray(0)

	gl.BindVertexArray(0)
	return d, nil
}

func newBoxProgram(xform string, stages ...shader.Stage) (boxProgram, error) {
	id, err := shader.Link(stages...)
	if err != nil {
		return boxProgram{}, err
	}
	return boxProgram{
		id:     id,
		origin: shader.MustGetUniform(id, "uOrigin"),
		extent: shader.MustGetUniform(id, "uExtent"),
		xform:  shader.MustGetUniform(id, xform),
	}, nil
}

// DrawShadowMesh implements MeshDrawer.
func (d *BoxDrawer) DrawShadowMesh(item DrawItem, pass Pass) {
	d.draw(item.Bounds, pass)
}

// DrawStencilVolume implements MeshDrawer.
func (d *BoxDrawer) DrawStencilVolume(bounds math.BoxSphereBounds, pass Pass) {
	d.draw(bounds, pass)
}

func (d *BoxDrawer) draw(b math.BoxSphereBounds, pass Pass) {
	p := d.flat
	if pass.Mode == OnePassCube {
		p = d.cube
	}
	gl.UseProgram(p.id)
	if pass.Mode == OnePassCube {
		gl.UniformMatrix4fv(p.xform, 6, false, pass.Faces[0].Ptr())
	} else {
		gl.UniformMatrix4fv(p.xform, 1, false, pass.ViewProj.Ptr())
	}
	gl.Uniform3f(p.origin, b.Origin.X, b.Origin.Y, b.Origin.Z)
	gl.Uniform3f(p.extent, b.BoxExtent.X, b.BoxExtent.Y, b.BoxExtent.Z)

	gl.BindVertexArray(d.vao)
	gl.DrawElementsWithOffset(gl.TRIANGLES, int32(len(boxIndices)), gl.UNSIGNED_SHORT, 0)
	gl.BindVertexArray(0)
}

// Destroy releases the programs and buffers.
func (d *BoxDrawer) Destroy() {
	gl.DeleteProgram(d.flat.id)
	gl.DeleteProgram(d.cube.id)
	gl.DeleteBuffers(1, &d.vbo)
	gl.DeleteBuffers(1, &d.ebo)
	gl.DeleteVertexArrays(1, &d.vao)
}

var _ MeshDrawer = (*BoxDrawer)(nil)
