package main

import (
	"fmt"
	"sort"

	"github.com/gogpu/vision"
	"github.com/gogpu/vision/ops"
)

// params tunes the demo pipelines.
type params struct {
	Sigma     float64 // blur radius of blur and unsharp
	Amount    float32 // sharpening strength of unsharp
	Threshold float32 // edge cut-off in [0, 1], zero keeps magnitudes
	Size      int     // structuring element side of open
}

func defaultParams() params {
	return params{Sigma: 1.5, Amount: 1, Threshold: 0, Size: 3}
}

// builder assembles a pipeline over src. src is a leaf and may be shared;
// interior nodes are never shared.
type builder func(src *vision.Leaf, p params) (vision.Node, error)

var pipelines = map[string]builder{
	"blur":    buildBlur,
	"edge":    buildEdge,
	"open":    buildOpen,
	"unsharp": buildUnsharp,
}

// pipelineNames returns the registered pipelines in order.
func pipelineNames() []string {
	names := make([]string, 0, len(pipelines))
	for name := range pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func buildPipeline(name string, src *vision.Leaf, p params) (vision.Node, error) {
	b, ok := pipelines[name]
	if !ok {
		return nil, fmt.Errorf("unknown pipeline %q (want one of %v)", name, pipelineNames())
	}
	return b(src, p)
}

func filterLeaf(h *vision.HostImage) (*vision.Leaf, error) {
	return vision.NewLeaf(h, vision.StorageBuffer2D)
}

// blur = convolve(src, gaussian)
func buildBlur(src *vision.Leaf, p params) (vision.Node, error) {
	g, err := filterLeaf(ops.GaussianFilter(p.Sigma))
	if err != nil {
		return nil, err
	}
	return vision.Neighbour(ops.Convolve{}, src, g)
}

// edge = threshold(|sobelx(gray)| + |sobely(gray)|)
func buildEdge(src *vision.Leaf, p params) (vision.Node, error) {
	gradient := func(f *vision.HostImage) (vision.Node, error) {
		gray, err := vision.Point(ops.Gray{}, src)
		if err != nil {
			return nil, err
		}
		fl, err := filterLeaf(f)
		if err != nil {
			return nil, err
		}
		conv, err := vision.Neighbour(ops.Convolve{}, gray, fl)
		if err != nil {
			return nil, err
		}
		return vision.Point(ops.Abs{}, conv)
	}

	gx, err := gradient(ops.SobelX())
	if err != nil {
		return nil, err
	}
	gy, err := gradient(ops.SobelY())
	if err != nil {
		return nil, err
	}
	sum, err := vision.Point2(ops.Add{}, gx, gy)
	if err != nil {
		return nil, err
	}
	if p.Threshold <= 0 {
		return sum, nil
	}
	return vision.Point(ops.Threshold{Level: p.Threshold, Max: 1}, sum)
}

// open = dilate(erode(gray))
func buildOpen(src *vision.Leaf, p params) (vision.Node, error) {
	gray, err := vision.Point(ops.Gray{}, src)
	if err != nil {
		return nil, err
	}
	se, err := filterLeaf(ops.SquareElement(p.Size))
	if err != nil {
		return nil, err
	}
	eroded, err := vision.Neighbour(ops.Erode{}, gray, se)
	if err != nil {
		return nil, err
	}
	return vision.Neighbour(ops.Dilate{}, eroded, se)
}

// unsharp = src + amount*(src - blur(src))
func buildUnsharp(src *vision.Leaf, p params) (vision.Node, error) {
	blur, err := buildBlur(src, p)
	if err != nil {
		return nil, err
	}
	detail, err := vision.Point2(ops.Sub{}, src, blur)
	if err != nil {
		return nil, err
	}
	scaled, err := vision.Point(ops.Scale{Factor: p.Amount}, detail)
	if err != nil {
		return nil, err
	}
	return vision.Point2(ops.Add{}, src, scaled)
}
