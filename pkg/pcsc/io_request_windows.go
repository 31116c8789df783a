package pcsc

// ioRequest mirrors SCARD_IO_REQUEST from winscard.h (two DWORDs).
type ioRequest struct {
	protocol  uint32
	pciLength uint32
}
