package printer

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

const DefaultFeedLines = 3

// Encoder turns a Job into the command buffer written on every copy's
// connection. It performs no I/O.
type Encoder struct {
	// FeedLines is the number of lines fed before the cut
	FeedLines byte

	// Charset transcodes text lines; nil sends the string bytes unchanged
	Charset *charmap.Charmap
}

func (e *Encoder) Encode(job Job) ([]byte, error) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.Init()

	switch pl := job.Payload.(type) {
	case RasterPayload:
		if pl.Raster == nil {
			return nil, fmt.Errorf("encode: raster payload without raster")
		}
		p.SetAlign(AlignCenter)
		if err := p.Raster(pl.Raster); err != nil {
			return nil, fmt.Errorf("encode: %w", err)
		}
	case TextPayload:
		p.SetAlign(AlignLeft)
		for _, line := range pl {
			p.Line(e.encodeLine(line))
		}
	case nil:
		return nil, fmt.Errorf("encode: job has no payload")
	default:
		return nil, fmt.Errorf("encode: unsupported payload %T", job.Payload)
	}

	p.FormfeedN(e.FeedLines)
	p.Cut()

	if err := p.Err(); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Encoder) encodeLine(line string) []byte {
	if e.Charset == nil {
		return []byte(line)
	}
	out := make([]byte, 0, len(line))
	for _, r := range line {
		b, ok := e.Charset.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return out
}

var charsets = map[string]*charmap.Charmap{
	"cp437":        charmap.CodePage437,
	"cp850":        charmap.CodePage850,
	"cp852":        charmap.CodePage852,
	"cp858":        charmap.CodePage858,
	"cp866":        charmap.CodePage866,
	"cp1251":       charmap.Windows1251,
	"cp1252":       charmap.Windows1252,
	"windows-1251": charmap.Windows1251,
	"windows-1252": charmap.Windows1252,
	"iso-8859-1":   charmap.ISO8859_1,
	"iso-8859-15":  charmap.ISO8859_15,
}

// ParseCharset maps a code page name such as "cp437" to its charmap. The
// empty string and "raw" mean no transcoding.
func ParseCharset(name string) (*charmap.Charmap, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "raw" {
		return nil, nil
	}
	cm, ok := charsets[name]
	if !ok {
		return nil, fmt.Errorf("unknown charset %q", name)
	}
	return cm, nil
}
