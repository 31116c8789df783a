//go:build !darwin && !windows

package pcsc

// ioRequest mirrors SCARD_IO_REQUEST from pcsc-lite, where DWORD is a C
// unsigned long: word sized on every supported Unix ABI.
type ioRequest struct {
	protocol  uint
	pciLength uint
}
