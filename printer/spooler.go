package printer

// SpoolerDialer sends each copy as a RAW document through the Windows print
// spooler, bypassing the driver.
type SpoolerDialer struct {
	Name string
}

func (d *SpoolerDialer) Addr() string {
	return "spooler:" + d.Name
}
