// Package compose builds the ffmpeg filter graph that assembles scene
// assets, narration, music and subtitles into one video.
package compose

import (
	"fmt"
	"strings"
)

// Input is one source file handed to the renderer, with the options that
// must precede its -i.
type Input struct {
	Path    string
	Options []string
}

// InputHandle refers to a registered input. Graphs reference streams only
// through handles, so the -i order and the graph text cannot drift apart.
type InputHandle struct {
	index int
	set   *Inputs
}

func (h InputHandle) Valid() bool { return h.set != nil }

func (h InputHandle) Index() int { return h.index }

// Video is the filter-graph label of the handle's first video stream.
func (h InputHandle) Video() string { return fmt.Sprintf("[%d:v]", h.index) }

// Audio is the filter-graph label of the handle's first audio stream.
func (h InputHandle) Audio() string { return fmt.Sprintf("[%d:a]", h.index) }

// Inputs is the ordered input list of one render.
type Inputs struct {
	list []Input
}

func NewInputs() *Inputs { return &Inputs{} }

// Add registers path and returns its handle. Positions are assigned in
// registration order and never change.
func (s *Inputs) Add(path string, options ...string) InputHandle {
	s.list = append(s.list, Input{Path: path, Options: append([]string(nil), options...)})
	return InputHandle{index: len(s.list) - 1, set: s}
}

func (s *Inputs) Len() int { return len(s.list) }

// Owns reports whether h was issued by s.
func (s *Inputs) Owns(h InputHandle) bool {
	return h.set == s && h.index >= 0 && h.index < len(s.list)
}

// Args renders the input section of the command line.
func (s *Inputs) Args() []string {
	var out []string
	for _, in := range s.list {
		out = append(out, in.Options...)
		out = append(out, "-i", in.Path)
	}
	return out
}

// Graph is a filter graph fragment ending in the labelled stream Out.
type Graph struct {
	Chains []string
	Out    string
}

func (g Graph) String() string { return strings.Join(g.Chains, ";") }

func label(name string) string { return "[" + name + "]" }
