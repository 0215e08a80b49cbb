package printer

import (
	"io"
)

// Printer writes ESC/POS commands to an io.Writer. The first write error is
// kept; every later command is dropped and Err reports it.
type Printer struct {
	w   io.Writer
	err error
}

// NewPrinter creates a new printer using the specified writer.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Err returns the first error seen by the printer.
func (p *Printer) Err() error {
	return p.err
}

// Write writes buf to printer.
func (p *Printer) Write(buf []byte) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	n, err := p.w.Write(buf)
	if err != nil {
		p.err = err
	}
	return n, err
}

// Init writes the initialize code, resetting the printer's mode settings.
func (p *Printer) Init() {
	p.Write(initPrinter())
}

func (p *Printer) SetAlign(a Align) {
	p.Write(setAlign(a))
}

// Linefeed writes a line end to the printer.
func (p *Printer) Linefeed() {
	p.Write([]byte{LF})
}

// Line writes b followed by a line feed.
func (p *Printer) Line(b []byte) {
	p.Write(b)
	p.Linefeed()
}

// FormfeedN prints the buffer and feeds n lines.
func (p *Printer) FormfeedN(n byte) {
	p.Write(feedLines(n))
}

// Cut writes the full cut code to the printer.
func (p *Printer) Cut() {
	p.Write(fullCut())
}
