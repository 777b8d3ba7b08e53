// Package sparkline renders a reduced download series as a self-contained
// SVG line chart. Observed runs are drawn solid, gap bridges dashed, with
// a gradient-filled area under the whole line.
package sparkline

import (
	"fmt"
	"strings"

	"github.com/openbeans/plugin-counter/internal/history"
)

// Options configures the output image.
type Options struct {
	Width  int
	Height int
	Color  string
}

// DefaultOptions returns the stock badge-sized sparkline options.
func DefaultOptions() Options {
	return Options{Width: 200, Height: 50, Color: "#007ec6"}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Width <= 0 {
		o.Width = def.Width
	}
	if o.Height <= 0 {
		o.Height = def.Height
	}
	if o.Color == "" {
		o.Color = def.Color
	}
	return o
}

type point struct {
	x, y float64
}

// Render draws the series: one solid polyline per run, one dashed line per
// bridge (the previous value held flat to the next point's x-position) and
// a gradient area closing the full path down to the baseline.
func Render(s history.Series, opts Options) string {
	opts = opts.withDefaults()
	if s.Empty() {
		return Empty(opts)
	}

	w := float64(opts.Width)
	h := float64(opts.Height)

	minDate := s.Points[0].Date
	maxDate := s.Points[len(s.Points)-1].Date
	span := maxDate.Sub(minDate)

	minVal, maxVal := s.Points[0].Value, s.Points[0].Value
	for _, p := range s.Points {
		if p.Value < minVal {
			minVal = p.Value
		}
		if p.Value > maxVal {
			maxVal = p.Value
		}
	}

	pts := make([]point, len(s.Points))
	for i, p := range s.Points {
		x := w / 2
		if span > 0 {
			x = float64(p.Date.Sub(minDate)) / float64(span) * w
		}
		pts[i] = point{x: x, y: mapY(p.Value, minVal, maxVal, h)}
	}

	// Full path including held-flat step points at each gap, for the area.
	path := make([]point, 0, len(pts)+len(s.Bridges))
	bridgeAt := make(map[int]int, len(s.Bridges))
	for _, b := range s.Bridges {
		bridgeAt[b.Start] = b.End
	}
	for i, p := range pts {
		path = append(path, p)
		if end, ok := bridgeAt[i]; ok {
			path = append(path, point{x: pts[end].x, y: p.y})
		}
	}

	var sb strings.Builder
	writeHeader(&sb, opts)
	fmt.Fprintf(&sb, `    <defs>
        <linearGradient id="gradient" x1="0%%" y1="0%%" x2="0%%" y2="100%%">
            <stop offset="0%%" style="stop-color:%s;stop-opacity:0.3" />
            <stop offset="100%%" style="stop-color:%s;stop-opacity:0.05" />
        </linearGradient>
    </defs>
`, opts.Color, opts.Color)

	area := make([]point, 0, len(path)+2)
	area = append(area, point{x: path[0].x, y: h})
	area = append(area, path...)
	area = append(area, point{x: path[len(path)-1].x, y: h})
	fmt.Fprintf(&sb, "    <polygon points=\"%s\" fill=\"url(#gradient)\" />\n", joinPoints(area))

	for _, r := range s.Runs {
		if r.End == r.Start {
			continue
		}
		fmt.Fprintf(&sb,
			"    <polyline points=\"%s\" fill=\"none\" stroke=\"%s\" stroke-width=\"2\" stroke-linecap=\"round\" stroke-linejoin=\"round\" />\n",
			joinPoints(pts[r.Start:r.End+1]), opts.Color)
	}

	for _, b := range s.Bridges {
		from := pts[b.Start]
		fmt.Fprintf(&sb,
			"    <line x1=\"%.2f\" y1=\"%.2f\" x2=\"%.2f\" y2=\"%.2f\" stroke=\"%s\" stroke-width=\"2\" stroke-dasharray=\"4 3\" stroke-linecap=\"round\" />\n",
			from.x, from.y, pts[b.End].x, from.y, opts.Color)
	}

	sb.WriteString("</svg>\n")
	return sb.String()
}

// RenderValues draws a plain index-spaced series with a single solid line,
// for callers that skip daily bucketing.
func RenderValues(values []int64, opts Options) string {
	opts = opts.withDefaults()
	if len(values) == 0 {
		return Empty(opts)
	}

	w := float64(opts.Width)
	h := float64(opts.Height)

	minVal, maxVal := values[0], values[0]
	for _, v := range values {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}

	pts := make([]point, len(values))
	for i, v := range values {
		x := w / 2
		if len(values) > 1 {
			x = float64(i) * w / float64(len(values)-1)
		}
		pts[i] = point{x: x, y: mapY(v, minVal, maxVal, h)}
	}

	var sb strings.Builder
	writeHeader(&sb, opts)
	fmt.Fprintf(&sb, `    <defs>
        <linearGradient id="gradient" x1="0%%" y1="0%%" x2="0%%" y2="100%%">
            <stop offset="0%%" style="stop-color:%s;stop-opacity:0.3" />
            <stop offset="100%%" style="stop-color:%s;stop-opacity:0.05" />
        </linearGradient>
    </defs>
`, opts.Color, opts.Color)

	area := make([]point, 0, len(pts)+2)
	area = append(area, point{x: pts[0].x, y: h})
	area = append(area, pts...)
	area = append(area, point{x: pts[len(pts)-1].x, y: h})
	fmt.Fprintf(&sb, "    <polygon points=\"%s\" fill=\"url(#gradient)\" />\n", joinPoints(area))

	if len(pts) > 1 {
		fmt.Fprintf(&sb,
			"    <polyline points=\"%s\" fill=\"none\" stroke=\"%s\" stroke-width=\"2\" stroke-linecap=\"round\" stroke-linejoin=\"round\" />\n",
			joinPoints(pts), opts.Color)
	}

	sb.WriteString("</svg>\n")
	return sb.String()
}

// Empty renders the fixed-size "No data" placeholder. Consumers embed the
// image at a declared size, so the dimensions never change with the data.
func Empty(opts Options) string {
	opts = opts.withDefaults()

	var sb strings.Builder
	writeHeader(&sb, opts)
	sb.WriteString(`    <text x="50%" y="50%" text-anchor="middle" dominant-baseline="middle"
          font-family="Verdana,sans-serif" font-size="12" fill="#999">No data</text>
</svg>
`)
	return sb.String()
}

func writeHeader(sb *strings.Builder, opts Options) {
	fmt.Fprintf(sb, "<svg width=\"%d\" height=\"%d\" xmlns=\"http://www.w3.org/2000/svg\">\n",
		opts.Width, opts.Height)
}

// mapY maps a value into [height*0.1, height*0.9], inverted for the
// top-left SVG origin. A flat series sits at the vertical midpoint since
// there is no range to normalize against.
func mapY(v, minVal, maxVal int64, h float64) float64 {
	if minVal == maxVal {
		return h / 2
	}
	padding := h * 0.1
	usable := h - 2*padding
	normalized := float64(v-minVal) / float64(maxVal-minVal)
	return h - padding - normalized*usable
}

func joinPoints(pts []point) string {
	parts := make([]string, len(pts))
	for i, p := range pts {
		parts[i] = fmt.Sprintf("%.2f,%.2f", p.x, p.y)
	}
	return strings.Join(parts, " ")
}
