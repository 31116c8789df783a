package pcsc

// ioRequest mirrors SCARD_IO_REQUEST from the PCSC framework, which uses
// uint32_t for both fields.
type ioRequest struct {
	protocol  uint32
	pciLength uint32
}
