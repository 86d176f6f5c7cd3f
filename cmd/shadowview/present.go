//go:build sdl && gl

package main

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Faultbox/midgard-shadows/internal/engine/debug"
	"github.com/Faultbox/midgard-shadows/internal/engine/shader"
)

// Fullscreen triangle; no vertex buffer needed.
const quadVertexShader = `#version 410 core
out vec2 vUV;
void main() {
    vec2 pos = vec2((gl_VertexID << 1) & 2, gl_VertexID & 2);
    vUV = pos;
    gl_Position = vec4(pos * 2.0 - 1.0, 0.0, 1.0);
}
`

const quadFragmentShader = `#version 410 core
in vec2 vUV;
out vec4 FragColor;
uniform sampler2D uAttenuation;
void main() {
    vec4 a = texture(uAttenuation, vUV);
    // Whole scene directional shadows in red, everything else in blue.
    FragColor = vec4(a.r, min(a.r, a.b), a.b, 1.0);
}
`

const lineVertexShader = `#version 410 core
layout(location = 0) in vec2 aPos;
uniform vec2 uViewport;
void main() {
    vec2 ndc = aPos / uViewport * 2.0 - 1.0;
    gl_Position = vec4(ndc.x, -ndc.y, 0.0, 1.0);
}
`

const lineFragmentShader = `#version 410 core
out vec4 FragColor;
void main() {
    FragColor = vec4(0.2, 1.0, 0.3, 1.0);
}
`

// presenter draws the attenuation buffer and debug lines to the window.
type presenter struct {
	quad     uint32
	quadVAO  uint32
	texture  uint32
	texW     int
	texH     int
	lines    uint32
	viewport int32
	lineVAO  uint32
	lineVBO  uint32
	lineData []float32
}

func newPresenter() (*presenter, error) {
	p := &presenter{}
	var err error
	if p.quad, err = shader.CompileProgram(quadVertexShader, quadFragmentShader); err != nil {
		return nil, fmt.Errorf("present program: %w", err)
	}
	if p.lines, err = shader.CompileProgram(lineVertexShader, lineFragmentShader); err != nil {
		gl.DeleteProgram(p.quad)
		return nil, fmt.Errorf("line program: %w", err)
	}
	p.viewport = shader.MustGetUniform(p.lines, "uViewport")
	gl.UseProgram(p.quad)
	gl.Uniform1i(shader.MustGetUniform(p.quad, "uAttenuation"), 0)

	gl.GenVertexArrays(1, &p.quadVAO)

	gl.GenTextures(1, &p.texture)
	gl.BindTexture(gl.TEXTURE_2D, p.texture)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)

	gl.GenVertexArrays(1, &p.lineVAO)
	gl.BindVertexArray(p.lineVAO)
	gl.GenBuffers(1, &p.lineVBO)
	gl.BindBuffer(gl.ARRAY_BUFFER, p.lineVBO)
	// Position attribute (location = 0): 2 floats
	gl.VertexAttribPointerWithOffset(0, 2, gl.FLOAT, false, 2*4, 0)
	gl.EnableVertexAttribArray(0)
	gl.BindVertexArray(0)
	return p, nil
}

// upload copies an RGBA float buffer into the attenuation texture.
func (p *presenter) upload(width, height int, pix []float32) {
	gl.BindTexture(gl.TEXTURE_2D, p.texture)
	if width != p.texW || height != p.texH {
		gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA32F, int32(width), int32(height), 0, gl.RGBA, gl.FLOAT, gl.Ptr(&pix[0]))
		p.texW, p.texH = width, height
		return
	}
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(width), int32(height), gl.RGBA, gl.FLOAT, gl.Ptr(&pix[0]))
}

func (p *presenter) draw(winW, winH int, lines []debug.Line, lineW, lineH int) {
	gl.Viewport(0, 0, int32(winW), int32(winH))
	gl.Disable(gl.DEPTH_TEST)
	gl.ClearColor(0, 0, 0, 1)
	gl.Clear(gl.COLOR_BUFFER_BIT)

	if p.texW > 0 {
		gl.UseProgram(p.quad)
		gl.ActiveTexture(gl.TEXTURE0)
		gl.BindTexture(gl.TEXTURE_2D, p.texture)
		gl.BindVertexArray(p.quadVAO)
		gl.DrawArrays(gl.TRIANGLES, 0, 3)
	}

	if len(lines) > 0 {
		p.lineData = p.lineData[:0]
		for _, l := range lines {
			p.lineData = append(p.lineData, l.X0, l.Y0, l.X1, l.Y1)
		}
		gl.UseProgram(p.lines)
		gl.Uniform2f(p.viewport, float32(lineW), float32(lineH))
		gl.BindVertexArray(p.lineVAO)
		gl.BindBuffer(gl.ARRAY_BUFFER, p.lineVBO)
		gl.BufferData(gl.ARRAY_BUFFER, len(p.lineData)*4, gl.Ptr(&p.lineData[0]), gl.STREAM_DRAW)
		gl.DrawArrays(gl.LINES, 0, int32(2*len(lines)))
	}
	gl.BindVertexArray(0)
}

func (p *presenter) destroy() {
	gl.DeleteProgram(p.quad)
	gl.DeleteProgram(p.lines)
	gl.DeleteTextures(1, &p.texture)
	gl.DeleteVertexArrays(1, &p.quadVAO)
	gl.DeleteVertexArrays(1, &p.lineVAO)
	gl.DeleteBuffers(1, &p.lineVBO)
}
