/*
 * Copyright 2022 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package stacklayout

import (
    `fmt`
    `io`
    `os`
    `path/filepath`
    `strings`

    `github.com/ajstarks/svgo`
    `github.com/cloudwego/dfg/internal/dfg/ir`
    `tlog.app/go/errors`
)

const (
    _CellW  = 48
    _CellH  = 24
    _LabelW = 160
    _Margin = 40
)

func cellStyle(v int16) string {
    switch {
        case v < 0  : return "fill:lightblue;stroke:gray"
        case v == 0 : return "fill:whitesmoke;stroke:lightgray"
        default     : return "fill:white;stroke:black"
    }
}

// DrawLayout renders the plan as an SVG table, one row per frame and one
// column per interpreter slot. Each cell shows the physical slot (or the
// constant ordinal) the interpreter slot maps to.
func DrawLayout(w io.Writer, g *ir.Graph, r *Result) {
    nf := r.NumFrames()
    ns := int(g.TotalNumInterpreterSlots())
    p := svg.New(w)
    p.Start(ns * _CellW + _LabelW + _Margin * 2, nf * _CellH + _Margin * 3)
    p.Rect(0, 0, ns * _CellW + _LabelW + _Margin * 2, nf * _CellH + _Margin * 3, "fill:white")

    /* column headers */
    for i := 0; i < ns; i++ {
        x := _Margin + _LabelW + i * _CellW + _CellW / 2
        p.Text(x, _Margin, fmt.Sprintf("is%d", i), "fill:gray;font-size:12px;font-family:monospace;text-anchor:middle")
    }

    /* one row per frame */
    for ord := 0; ord < nf; ord++ {
        info := r.OsrInfo(ord)
        y := _Margin * 2 + ord * _CellH
        p.Text(_Margin, y + _CellH * 2 / 3, g.InlinedCallFrame(ord).String(), "fill:black;font-size:14px;font-family:monospace")

        /* the cells of this frame */
        for i := 0; i < int(info.FrameFullLength()); i++ {
            v := info.Value(i)
            x := _Margin + _LabelW + (int(info.FrameStartSlot()) + i) * _CellW
            p.Rect(x, y, _CellW, _CellH, cellStyle(v))
            p.Text(x + _CellW / 2, y + _CellH * 2 / 3, fmt.Sprint(v), "fill:black;font-size:12px;font-family:monospace;text-anchor:middle")
        }

        /* mark the frame base */
        bx := _Margin + _LabelW + int(info.FrameBaseSlot()) * _CellW
        p.Line(bx, y, bx, y + _CellH, "stroke:red;stroke-width:3")
    }
    p.End()
}

// LayoutFileName is the name of the SVG file DrawLayoutFile writes for the
// function named name.
func LayoutFileName(name string) string {
    return strings.Map(func(c rune) rune {
        switch {
            case c >= 'a' && c <= 'z' : return c
            case c >= 'A' && c <= 'Z' : return c
            case c >= '0' && c <= '9' : return c
            case c == '-' || c == '.' : return c
            default                   : return '_'
        }
    }, name) + ".layout.svg"
}

// DrawLayoutFile renders the plan of the root function of g into dir and
// returns the path of the file.
func DrawLayoutFile(dir string, g *ir.Graph, r *Result) (fn string, err error) {
    fn = filepath.Join(dir, LayoutFileName(g.RootCodeBlock().Name))
    fp, err := os.Create(fn)
    if err != nil {
        return "", errors.Wrap(err, "create layout file")
    }
    DrawLayout(fp, g, r)
    if err = fp.Close(); err != nil {
        return "", errors.Wrap(err, "write %v", fn)
    }
    return fn, nil
}
