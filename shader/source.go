// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/gputypes"
)

// SourceTranslator accepts programs whose code already is WGSL, with
// reflection given by directive comments:
//
//	// gxm:entry vs_main
//	// gxm:uniform <index> <offset> <size>
//	// gxm:attribute <location> <stream> <offset> <format>
//	// gxm:sampler <slot>
//
// Formats use the gputypes names (Float32x2, Unorm8x4, ...). It is used
// by the replay tool and by tests in place of a bytecode translator.
type SourceTranslator struct{}

const directivePrefix = "// gxm:"

var vertexFormats = []gputypes.VertexFormat{
	gputypes.VertexFormatFloat32, gputypes.VertexFormatFloat32x2,
	gputypes.VertexFormatFloat32x3, gputypes.VertexFormatFloat32x4,
	gputypes.VertexFormatFloat16x2, gputypes.VertexFormatFloat16x4,
	gputypes.VertexFormatUnorm8x2, gputypes.VertexFormatUnorm8x4,
	gputypes.VertexFormatSnorm8x2, gputypes.VertexFormatSnorm8x4,
	gputypes.VertexFormatUint8x2, gputypes.VertexFormatUint8x4,
	gputypes.VertexFormatUnorm16x2, gputypes.VertexFormatUnorm16x4,
	gputypes.VertexFormatSnorm16x2, gputypes.VertexFormatSnorm16x4,
	gputypes.VertexFormatUint16x2, gputypes.VertexFormatUint16x4,
	gputypes.VertexFormatUint32, gputypes.VertexFormatUint32x2,
	gputypes.VertexFormatUint32x3, gputypes.VertexFormatUint32x4,
}

func parseVertexFormat(name string) (gputypes.VertexFormat, error) {
	for _, f := range vertexFormats {
		if strings.EqualFold(f.String(), name) {
			return f, nil
		}
	}
	return gputypes.VertexFormatUndefined, fmt.Errorf("unknown vertex format %q", name)
}

func atoiAll(fields []string) ([]int, error) {
	out := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Translate implements Translator.
func (SourceTranslator) Translate(p *Program) (string, string, Reflection, error) {
	var r Reflection
	var entry string
	if p.Stage == StageVertex {
		entry = "vs_main"
	} else {
		entry = "fs_main"
	}

	src := string(p.Code)
	sc := bufio.NewScanner(strings.NewReader(src))
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(text, directivePrefix) {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(text, directivePrefix))
		if len(fields) == 0 {
			continue
		}
		bad := func(err error) (string, string, Reflection, error) {
			return "", "", Reflection{}, fmt.Errorf("line %d: %s: %w", line, fields[0], err)
		}

		switch fields[0] {
		case "entry":
			if len(fields) != 2 {
				return bad(fmt.Errorf("want 1 argument"))
			}
			entry = fields[1]
		case "uniform":
			v, err := atoiAll(fields[1:])
			if err != nil || len(v) != 3 {
				return bad(fmt.Errorf("want <index> <offset> <size>"))
			}
			r.Uniforms = append(r.Uniforms, Uniform{Index: v[0], Offset: v[1], Size: v[2]})
			if end := v[1] + v[2]; end > r.UniformBlockSize {
				r.UniformBlockSize = end
			}
		case "attribute":
			if len(fields) != 5 {
				return bad(fmt.Errorf("want <location> <stream> <offset> <format>"))
			}
			v, err := atoiAll(fields[1:4])
			if err != nil {
				return bad(err)
			}
			f, err := parseVertexFormat(fields[4])
			if err != nil {
				return bad(err)
			}
			r.Attributes = append(r.Attributes, Attribute{Location: v[0], Stream: v[1], Offset: v[2], Format: f})
		case "sampler":
			v, err := atoiAll(fields[1:])
			if err != nil || len(v) != 1 {
				return bad(fmt.Errorf("want <slot>"))
			}
			r.Samplers = append(r.Samplers, v[0])
		default:
			return bad(fmt.Errorf("unknown directive"))
		}
	}
	if err := sc.Err(); err != nil {
		return "", "", Reflection{}, err
	}

	// Uniform blocks are bound as 16-byte aligned buffers.
	r.UniformBlockSize = (r.UniformBlockSize + 15) &^ 15
	return src, entry, r, nil
}
