package main

import (
	"io"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/vision"
	"github.com/gogpu/vision/config"
)

// report summarizes one cycle.
type report struct {
	Pipeline      string
	Device        string
	Fusion        string
	Border        string
	Output        vision.MemoryDescriptor
	Kernels       int
	Intermediates int
	Bytes         uint64
	Elapsed       time.Duration
	Plan          *vision.Fragment
}

func newReport(name string, res *vision.Result, cfg *config.Config, elapsed time.Duration) report {
	return report{
		Pipeline:      name,
		Device:        res.Device().Name(),
		Fusion:        cfg.Fusion,
		Border:        cfg.Border,
		Output:        res.Descriptor(),
		Kernels:       res.Kernels,
		Intermediates: res.Intermediates,
		Bytes:         res.BytesAllocated,
		Elapsed:       elapsed,
		Plan:          res.Plan,
	}
}

// write prints r with English number formatting.
func (r report) write(w io.Writer) {
	p := message.NewPrinter(language.English)
	title := cases.Title(language.English)

	p.Fprintf(w, "%s on %s (fusion %s, border %s)\n", title.String(r.Pipeline), r.Device, r.Fusion, r.Border)
	p.Fprintf(w, "  output         %s %s\n", r.Output.Type, r.Output.Dims)
	p.Fprintf(w, "  kernels        %d\n", r.Kernels)
	p.Fprintf(w, "  intermediates  %d\n", r.Intermediates)
	p.Fprintf(w, "  allocated      %d bytes\n", r.Bytes)
	if r.Elapsed > 0 {
		p.Fprintf(w, "  elapsed        %v\n", r.Elapsed.Round(time.Microsecond))
	}
	if r.Plan != nil {
		p.Fprintf(w, "  plan           %s\n", r.Plan)
	}
}

// writePlan prints the kernel boundaries of plan, innermost first.
func writePlan(w io.Writer, name string, plan *vision.Fragment) {
	p := message.NewPrinter(language.English)
	title := cases.Title(language.English)

	bounds := plan.Boundaries()
	p.Fprintf(w, "%s: %d kernels\n", title.String(name), len(bounds))
	p.Fprintf(w, "  %s\n", plan)
	for i, n := range bounds {
		d := n.Descriptor()
		p.Fprintf(w, "  %2d  %-10s %-8s %-9s level %d  halo %s  %d bytes\n",
			i, n.Name(), d.Type, d.Dims, n.Level(), n.Halo(), d.ByteSize())
	}
}
