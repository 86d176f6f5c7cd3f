//go:build gl

package shadowdepth

import (
	"errors"
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Faultbox/midgard-shadows/internal/engine/atlas"
	"github.com/Faultbox/midgard-shadows/pkg/math"
)

// ErrIncompleteFramebuffer is returned when the driver rejects the atlas
// framebuffer.
var ErrIncompleteFramebuffer = errors.New("shadowdepth: incomplete framebuffer")

// MeshDrawer draws a subject's geometry with the pass transform bound. For
// OnePassCube passes it is expected to replicate triangles to the six
// layers of the bound cube map in a geometry stage.
type MeshDrawer interface {
	DrawShadowMesh(item DrawItem, pass Pass)
	DrawStencilVolume(bounds math.BoxSphereBounds, pass Pass)
}

// GLAtlas is the GPU depth atlas. It implements DepthTarget. Every pass is
// read back into a CPU mirror on EndPass so the atlas can also be sampled
// off the GL thread.
type GLAtlas struct {
	FBO          uint32
	DepthTexture uint32 // depth-stencil 2D atlas
	Width        int32
	Height       int32

	cubeFBO      uint32
	cubeTextures map[int]uint32

	drawer       MeshDrawer
	pass         Pass
	prevViewport [4]int32

	mirror  *SoftwareAtlas
	scratch []float32
}

// NewGLAtlas creates the atlas framebuffer. A GL context must be current.
func NewGLAtlas(width, height int32, drawer MeshDrawer) (*GLAtlas, error) {
	a := &GLAtlas{
		Width:        width,
		Height:       height,
		drawer:       drawer,
		cubeTextures: make(map[int]uint32),
		mirror:       NewSoftwareAtlas(int(width), int(height)),
	}

	gl.GenFramebuffers(1, &a.FBO)
	gl.BindFramebuffer(gl.FRAMEBUFFER, a.FBO)

	gl.GenTextures(1, &a.DepthTexture)
	gl.BindTexture(gl.TEXTURE_2D, a.DepthTexture)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.DEPTH24_STENCIL8, width, height, 0,
		gl.DEPTH_STENCIL, gl.UNSIGNED_INT_24_8, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)

	// Samples outside the atlas read as unshadowed.
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_BORDER)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_BORDER)
	borderColor := []float32{1.0, 1.0, 1.0, 1.0}
	gl.TexParameterfv(gl.TEXTURE_2D, gl.TEXTURE_BORDER_COLOR, &borderColor[0])

	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_COMPARE_MODE, gl.COMPARE_REF_TO_TEXTURE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_COMPARE_FUNC, gl.LEQUAL)

	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.DEPTH_STENCIL_ATTACHMENT, gl.TEXTURE_2D, a.DepthTexture, 0)

	// Depth only.
	gl.DrawBuffer(gl.NONE)
	gl.ReadBuffer(gl.NONE)

	if status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER); status != gl.FRAMEBUFFER_COMPLETE {
		a.Destroy()
		return nil, fmt.Errorf("%w: status 0x%x", ErrIncompleteFramebuffer, status)
	}

	gl.GenFramebuffers(1, &a.cubeFBO)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	return a, nil
}

func (a *GLAtlas) cubeTexture(slot atlas.CubeSlot) uint32 {
	if tex, ok := a.cubeTextures[slot.Index]; ok {
		return tex
	}
	var tex uint32
	gl.GenTextures(1, &tex)
	gl.BindTexture(gl.TEXTURE_CUBE_MAP, tex)
	for face := uint32(0); face < 6; face++ {
		gl.TexImage2D(gl.TEXTURE_CUBE_MAP_POSITIVE_X+face, 0, gl.DEPTH_COMPONENT24,
			int32(slot.Resolution), int32(slot.Resolution), 0, gl.DEPTH_COMPONENT, gl.FLOAT, nil)
	}
	gl.TexParameteri(gl.TEXTURE_CUBE_MAP, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_CUBE_MAP, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_CUBE_MAP, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_CUBE_MAP, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_CUBE_MAP, gl.TEXTURE_WRAP_R, gl.CLAMP_TO_EDGE)
	gl.BindTexture(gl.TEXTURE_CUBE_MAP, 0)
	a.cubeTextures[slot.Index] = tex
	return tex
}

// BeginPass implements DepthTarget. It binds the framebuffer, restricts
// viewport and scissor to the allocation and clears it.
func (a *GLAtlas) BeginPass(p Pass) {
	a.pass = p
	gl.GetIntegerv(gl.VIEWPORT, &a.prevViewport[0])

	if p.Mode == OnePassCube {
		gl.BindFramebuffer(gl.FRAMEBUFFER, a.cubeFBO)
		// Layered attachment: the drawer's geometry stage picks the face.
		gl.FramebufferTexture(gl.FRAMEBUFFER, gl.DEPTH_ATTACHMENT, a.cubeTexture(p.Cube), 0)
		gl.DrawBuffer(gl.NONE)
		gl.Viewport(0, 0, int32(p.Cube.Resolution), int32(p.Cube.Resolution))
		gl.Disable(gl.SCISSOR_TEST)
		gl.Clear(gl.DEPTH_BUFFER_BIT)
	} else {
		gl.BindFramebuffer(gl.FRAMEBUFFER, a.FBO)
		gl.Enable(gl.SCISSOR_TEST)
		gl.Scissor(int32(p.Rect.X), int32(p.Rect.Y), int32(p.Rect.W), int32(p.Rect.H))
		gl.Clear(gl.DEPTH_BUFFER_BIT | gl.STENCIL_BUFFER_BIT)
		gl.Viewport(int32(p.Viewport.X), int32(p.Viewport.Y), int32(p.Viewport.W), int32(p.Viewport.H))
		gl.Scissor(int32(p.Viewport.X), int32(p.Viewport.Y), int32(p.Viewport.W), int32(p.Viewport.H))
	}

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.DepthMask(true)
	gl.Disable(gl.CULL_FACE)
	gl.Disable(gl.STENCIL_TEST)

	// Units are in the smallest resolvable step of a 24 bit depth buffer.
	gl.Enable(gl.POLYGON_OFFSET_FILL)
	gl.PolygonOffset(p.SlopeScaleBias, p.DepthBias*float32(1<<24))
}

// MaskReceivers implements DepthTarget by marking the receivers' footprint
// in the stencil buffer and enabling the stencil test for later draws.
func (a *GLAtlas) MaskReceivers(bounds []math.BoxSphereBounds) {
	if a.pass.Mode == OnePassCube || a.drawer == nil {
		return
	}
	gl.Enable(gl.STENCIL_TEST)
	gl.StencilFunc(gl.ALWAYS, 1, 0xff)
	gl.StencilOp(gl.KEEP, gl.KEEP, gl.REPLACE)
	gl.DepthMask(false)
	gl.Disable(gl.DEPTH_TEST)
	for _, b := range bounds {
		a.drawer.DrawStencilVolume(b, a.pass)
	}
	gl.DepthMask(true)
	gl.Enable(gl.DEPTH_TEST)
	gl.StencilFunc(gl.EQUAL, 1, 0xff)
	gl.StencilOp(gl.KEEP, gl.KEEP, gl.KEEP)
}

// DrawDepth implements DepthTarget.
func (a *GLAtlas) DrawDepth(item DrawItem) {
	if a.drawer != nil {
		a.drawer.DrawShadowMesh(item, a.pass)
	}
}

// EndPass implements DepthTarget. It reads the pass back into the mirror
// and restores the previous state.
func (a *GLAtlas) EndPass() {
	if a.pass.Mode == OnePassCube {
		a.readCube(a.pass.Cube)
	} else {
		a.readRect(a.pass.Rect)
	}
	gl.Disable(gl.POLYGON_OFFSET_FILL)
	gl.Disable(gl.STENCIL_TEST)
	gl.Disable(gl.SCISSOR_TEST)
	gl.Enable(gl.CULL_FACE)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	gl.Viewport(a.prevViewport[0], a.prevViewport[1], a.prevViewport[2], a.prevViewport[3])
}

func (a *GLAtlas) readRect(r atlas.Rect) {
	r = a.mirror.clip(r)
	if r.Area() == 0 {
		return
	}
	if cap(a.scratch) < r.Area() {
		a.scratch = make([]float32, r.Area())
	}
	buf := a.scratch[:r.Area()]
	gl.PixelStorei(gl.PACK_ALIGNMENT, 4)
	gl.ReadPixels(int32(r.X), int32(r.Y), int32(r.W), int32(r.H), gl.DEPTH_COMPONENT, gl.FLOAT, gl.Ptr(&buf[0]))
	for y := 0; y < r.H; y++ {
		row := (r.Y+y)*a.mirror.width + r.X
		copy(a.mirror.depth[row:row+r.W], buf[y*r.W:(y+1)*r.W])
	}
}

func (a *GLAtlas) readCube(slot atlas.CubeSlot) {
	c := a.mirror.cube(slot)
	gl.BindTexture(gl.TEXTURE_CUBE_MAP, a.cubeTexture(slot))
	gl.PixelStorei(gl.PACK_ALIGNMENT, 4)
	for f := range c.faces {
		gl.GetTexImage(gl.TEXTURE_CUBE_MAP_POSITIVE_X+uint32(f), 0, gl.DEPTH_COMPONENT, gl.FLOAT, gl.Ptr(&c.faces[f][0]))
	}
	gl.BindTexture(gl.TEXTURE_CUBE_MAP, 0)
}

// Size returns the atlas dimensions.
func (a *GLAtlas) Size() (width, height int) { return int(a.Width), int(a.Height) }

// Sample reads the mirror of the last passes.
func (a *GLAtlas) Sample(u, v float32) float32 { return a.mirror.Sample(u, v) }

// SampleCube reads the mirror of a cube slot.
func (a *GLAtlas) SampleCube(slot, face int, u, v float32) float32 {
	return a.mirror.SampleCube(slot, face, u, v)
}

// Depth returns the mirrored atlas texels, row major.
func (a *GLAtlas) Depth() []float32 { return a.mirror.Depth() }

// BindTexture binds the atlas depth texture to a texture unit for the
// projection pass.
func (a *GLAtlas) BindTexture(textureUnit uint32) {
	gl.ActiveTexture(textureUnit)
	gl.BindTexture(gl.TEXTURE_2D, a.DepthTexture)
}

// BindCube binds a cube slot's depth texture to a texture unit.
func (a *GLAtlas) BindCube(textureUnit uint32, slot int) {
	gl.ActiveTexture(textureUnit)
	gl.BindTexture(gl.TEXTURE_CUBE_MAP, a.cubeTextures[slot])
}

// Destroy releases all GPU resources.
func (a *GLAtlas) Destroy() {
	if a.FBO != 0 {
		gl.DeleteFramebuffers(1, &a.FBO)
		a.FBO = 0
	}
	if a.cubeFBO != 0 {
		gl.DeleteFramebuffers(1, &a.cubeFBO)
		a.cubeFBO = 0
	}
	if a.DepthTexture != 0 {
		gl.DeleteTextures(1, &a.DepthTexture)
		a.DepthTexture = 0
	}
	for slot, tex := range a.cubeTextures {
		gl.DeleteTextures(1, &tex)
		delete(a.cubeTextures, slot)
	}
}

// IsValid returns true if the atlas was created successfully.
func (a *GLAtlas) IsValid() bool {
	return a != nil && a.FBO != 0 && a.DepthTexture != 0
}

var _ DepthTarget = (*GLAtlas)(nil)
