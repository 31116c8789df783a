package iso7816

import (
	"fmt"

	"github.com/gregLibert/cardchannel/pkg/bits"
)

// The INS byte names the command. Under the interindustry class an odd INS
// (b1 set) announces a BER-TLV data field, e.g. READ BINARY B0 vs B1.
// INS values 6X and 9X are invalid: ISO/IEC 7816-3 uses them as procedure
// bytes.

// InsCode is a typed representation of the instruction byte.
type InsCode byte

// Standard Instruction (INS) codes as defined in ISO/IEC 7816-4.
const (
	INS_DEACTIVATE_FILE              InsCode = 0x04
	INS_ERASE_RECORD                 InsCode = 0x0C
	INS_ERASE_BINARY                 InsCode = 0x0E
	INS_ERASE_BINARY_BER             InsCode = 0x0F
	INS_PERFORM_SCQL_OPERATION       InsCode = 0x10
	INS_PERFORM_TRANSACTION_OPER     InsCode = 0x12
	INS_PERFORM_USER_OPERATION       InsCode = 0x14
	INS_VERIFY                       InsCode = 0x20
	INS_VERIFY_BER                   InsCode = 0x21
	INS_MANAGE_SECURITY_ENVIRONMENT  InsCode = 0x22
	INS_CHANGE_REFERENCE_DATA        InsCode = 0x24
	INS_DISABLE_VERIF_REQ            InsCode = 0x26
	INS_ENABLE_VERIF_REQ             InsCode = 0x28
	INS_PERFORM_SECURITY_OPERATION   InsCode = 0x2A
	INS_RESET_RETRY_COUNTER          InsCode = 0x2C
	INS_ACTIVATE_FILE                InsCode = 0x44
	INS_GENERATE_ASYMMETRIC_KEY_PAIR InsCode = 0x46
	INS_MANAGE_CHANNEL               InsCode = 0x70
	INS_EXTERNAL_AUTHENTICATE        InsCode = 0x82
	INS_GET_CHALLENGE                InsCode = 0x84
	INS_GENERAL_AUTHENTICATE         InsCode = 0x86
	INS_GENERAL_AUTHENTICATE_BER     InsCode = 0x87
	INS_INTERNAL_AUTHENTICATE        InsCode = 0x88
	INS_SEARCH_BINARY                InsCode = 0xA0
	INS_SEARCH_BINARY_BER            InsCode = 0xA1
	INS_SEARCH_RECORD                InsCode = 0xA2
	INS_SELECT                       InsCode = 0xA4
	INS_READ_BINARY                  InsCode = 0xB0
	INS_READ_BINARY_BER              InsCode = 0xB1
	INS_READ_RECORD                  InsCode = 0xB2
	INS_READ_RECORD_BER              InsCode = 0xB3
	INS_GET_RESPONSE                 InsCode = 0xC0
	INS_ENVELOPE                     InsCode = 0xC2
	INS_ENVELOPE_BER                 InsCode = 0xC3
	INS_GET_DATA                     InsCode = 0xCA
	INS_GET_DATA_BER                 InsCode = 0xCB
	INS_WRITE_BINARY                 InsCode = 0xD0
	INS_WRITE_BINARY_BER             InsCode = 0xD1
	INS_WRITE_RECORD                 InsCode = 0xD2
	INS_UPDATE_BINARY                InsCode = 0xD6
	INS_UPDATE_BINARY_BER            InsCode = 0xD7
	INS_PUT_DATA                     InsCode = 0xDA
	INS_PUT_DATA_BER                 InsCode = 0xDB
	INS_UPDATE_RECORD                InsCode = 0xDC
	INS_UPDATE_RECORD_BER            InsCode = 0xDD
	INS_CREATE_FILE                  InsCode = 0xE0
	INS_APPEND_RECORD                InsCode = 0xE2
	INS_DELETE_FILE                  InsCode = 0xE4
	INS_TERMINATE_DF                 InsCode = 0xE6
	INS_TERMINATE_EF                 InsCode = 0xE8
	INS_TERMINATE_CARD_USAGE         InsCode = 0xFE
)

var insNames = map[InsCode]string{
	INS_DEACTIVATE_FILE:              "DEACTIVATE FILE",
	INS_ERASE_RECORD:                 "ERASE RECORD",
	INS_ERASE_BINARY:                 "ERASE BINARY",
	INS_ERASE_BINARY_BER:             "ERASE BINARY",
	INS_PERFORM_SCQL_OPERATION:       "PERFORM SCQL OPERATION",
	INS_PERFORM_TRANSACTION_OPER:     "PERFORM TRANSACTION OPERATION",
	INS_PERFORM_USER_OPERATION:       "PERFORM USER OPERATION",
	INS_VERIFY:                       "VERIFY",
	INS_VERIFY_BER:                   "VERIFY",
	INS_MANAGE_SECURITY_ENVIRONMENT:  "MANAGE SECURITY ENVIRONMENT",
	INS_CHANGE_REFERENCE_DATA:        "CHANGE REFERENCE DATA",
	INS_DISABLE_VERIF_REQ:            "DISABLE VERIFICATION REQUIREMENT",
	INS_ENABLE_VERIF_REQ:             "ENABLE VERIFICATION REQUIREMENT",
	INS_PERFORM_SECURITY_OPERATION:   "PERFORM SECURITY OPERATION",
	INS_RESET_RETRY_COUNTER:          "RESET RETRY COUNTER",
	INS_ACTIVATE_FILE:                "ACTIVATE FILE",
	INS_GENERATE_ASYMMETRIC_KEY_PAIR: "GENERATE ASYMMETRIC KEY PAIR",
	INS_MANAGE_CHANNEL:               "MANAGE CHANNEL",
	INS_EXTERNAL_AUTHENTICATE:        "EXTERNAL AUTHENTICATE",
	INS_GET_CHALLENGE:                "GET CHALLENGE",
	INS_GENERAL_AUTHENTICATE:         "GENERAL AUTHENTICATE",
	INS_GENERAL_AUTHENTICATE_BER:     "GENERAL AUTHENTICATE",
	INS_INTERNAL_AUTHENTICATE:        "INTERNAL AUTHENTICATE",
	INS_SEARCH_BINARY:                "SEARCH BINARY",
	INS_SEARCH_BINARY_BER:            "SEARCH BINARY",
	INS_SEARCH_RECORD:                "SEARCH RECORD",
	INS_SELECT:                       "SELECT",
	INS_READ_BINARY:                  "READ BINARY",
	INS_READ_BINARY_BER:              "READ BINARY",
	INS_READ_RECORD:                  "READ RECORD",
	INS_READ_RECORD_BER:              "READ RECORD",
	INS_GET_RESPONSE:                 "GET RESPONSE",
	INS_ENVELOPE:                     "ENVELOPE",
	INS_ENVELOPE_BER:                 "ENVELOPE",
	INS_GET_DATA:                     "GET DATA",
	INS_GET_DATA_BER:                 "GET DATA",
	INS_WRITE_BINARY:                 "WRITE BINARY",
	INS_WRITE_BINARY_BER:             "WRITE BINARY",
	INS_WRITE_RECORD:                 "WRITE RECORD",
	INS_UPDATE_BINARY:                "UPDATE BINARY",
	INS_UPDATE_BINARY_BER:            "UPDATE BINARY",
	INS_PUT_DATA:                     "PUT DATA",
	INS_PUT_DATA_BER:                 "PUT DATA",
	INS_UPDATE_RECORD:                "UPDATE RECORD",
	INS_UPDATE_RECORD_BER:            "UPDATE RECORD",
	INS_CREATE_FILE:                  "CREATE FILE",
	INS_APPEND_RECORD:                "APPEND RECORD",
	INS_DELETE_FILE:                  "DELETE FILE",
	INS_TERMINATE_DF:                 "TERMINATE DF",
	INS_TERMINATE_EF:                 "TERMINATE EF",
	INS_TERMINATE_CARD_USAGE:         "TERMINATE CARD USAGE",
}

func (i InsCode) String() string {
	if name, ok := insNames[i]; ok {
		return name
	}
	return fmt.Sprintf("InsCode(0x%02X)", byte(i))
}

// IsKnown reports whether i is one of the ISO/IEC 7816-4 instructions.
func (i InsCode) IsKnown() bool {
	_, ok := insNames[i]
	return ok
}

// InstructionName returns the command name for i, or its hex value when the
// instruction is proprietary.
func InstructionName(i InsCode) string {
	if name, ok := insNames[i]; ok {
		return name
	}
	return fmt.Sprintf("INS %02X", byte(i))
}

// Instruction represents the parsed ISO 7816-4 Instruction byte (INS).
type Instruction struct {
	Raw      InsCode
	IsBERTLV bool
}

// NewInstruction validates ins, rejecting the 6X and 9X procedure-byte ranges.
func NewInstruction(ins InsCode) (Instruction, error) {
	if high := bits.GetRange(byte(ins), 8, 5); high == 0x6 || high == 0x9 {
		return Instruction{}, fmt.Errorf("invalid INS 0x%02X: 6X and 9X are reserved", byte(ins))
	}

	return Instruction{
		Raw:      ins,
		IsBERTLV: bits.IsSet(byte(ins), 1),
	}, nil
}

// MustInstruction is NewInstruction for the package constants; it panics on
// a reserved value.
func MustInstruction(ins InsCode) Instruction {
	i, err := NewInstruction(ins)
	if err != nil {
		panic(err)
	}
	return i
}

// Verbose returns a human-readable description of the instruction.
func (i Instruction) Verbose() string {
	format := "Standard"
	if i.IsBERTLV {
		format = "BER-TLV"
	}
	return fmt.Sprintf("INS: 0x%02X | Command: %s | Format: %s", byte(i.Raw), i.Raw, format)
}
