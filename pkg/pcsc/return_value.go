package pcsc

// SCARD_E_* and SCARD_W_* return values, identical in WinSCard and pcsc-lite.
const (
	rvSuccess            = 0x00000000
	rvCancelled          = 0x80100002
	rvInvalidHandle      = 0x80100003
	rvInvalidParameter   = 0x80100004
	rvInsufficientBuffer = 0x80100008
	rvUnknownReader      = 0x80100009
	rvTimeout            = 0x8010000A
	rvSharingViolation   = 0x8010000B
	rvNoSmartcard        = 0x8010000C
	rvProtoMismatch      = 0x8010000F
	rvNotReady           = 0x80100010
	rvSystemCancelled    = 0x80100012
	rvReaderUnavailable  = 0x80100017
	rvNoService          = 0x8010001D
	rvServiceStopped     = 0x8010001E
	rvUnexpected         = 0x8010001F
	rvUnsupportedFeature = 0x80100022
	rvNoReadersAvailable = 0x8010002E
	rvWUnsupportedCard   = 0x80100065
	rvWUnresponsiveCard  = 0x80100066
	rvWUnpoweredCard     = 0x80100067
	rvWResetCard         = 0x80100068
	rvWRemovedCard       = 0x80100069
)

var returnValues = map[uint32]ErrorCode{
	rvSuccess:            Success,
	rvCancelled:          Cancelled,
	rvSystemCancelled:    Cancelled,
	rvInvalidHandle:      InvalidHandle,
	rvInvalidParameter:   InvalidParameter,
	rvInsufficientBuffer: InsufficientBuffer,
	rvUnknownReader:      UnknownReader,
	rvTimeout:            Timeout,
	rvSharingViolation:   SharingViolation,
	rvNoSmartcard:        NoSmartcard,
	rvProtoMismatch:      ProtocolMismatch,
	rvNotReady:           NotReady,
	rvReaderUnavailable:  ReaderUnavailable,
	rvNoService:          NoService,
	rvServiceStopped:     NoService,
	rvUnexpected:         NotSupported,
	rvUnsupportedFeature: NotSupported,
	rvNoReadersAvailable: NoReadersAvailable,
	rvWUnsupportedCard:   UnsupportedCard,
	rvWUnresponsiveCard:  UnresponsiveCard,
	rvWUnpoweredCard:     UnpoweredCard,
	rvWResetCard:         CardReset,
	rvWRemovedCard:       RemovedCard,
}

// FromReturnValue classifies a raw SCard* return value. Values outside the
// known set are UnknownError.
func FromReturnValue(rv uint32) ErrorCode {
	if code, ok := returnValues[rv]; ok {
		return code
	}
	return UnknownError
}
