/*
Package iso7816 is the APDU codec used on a card channel, following ISO/IEC 7816-3 and 7816-4.

It provides immutable CommandAPDU and ResponseAPDU values held in their raw byte form, decoding of the
CLA and INS header bytes, status word analysis, and a Client that resolves the T=0 "61XX" and "6CXX"
transport answers into a Trace of exchanges.

# Fundamentals

The communication with a smart card is strictly synchronous:
 1. The Host sends a Command APDU (Header + Optional Body).
 2. The Card processes it and returns a Response APDU (Optional Body + Trailer SW1/SW2).

Parsing only checks the envelope: a command needs its 4-byte header and a response its 2-byte status
word. The body of a command is classified on demand by Case().

# Status Words

Every response ends with a 2-byte Status Word (SW).
  - 0x9000: Success (OK).
  - 0x61XX: Response data is still available (XX bytes).
  - 0x6CXX: Wrong length expectation (XX is the correct length).
  - Other: Various warning and error conditions.

# Usage Example

	cmd, err := iso7816.ParseCommandAPDUHex("00A4040007A0000000041010")
	if err != nil {
	    log.Fatal(err)
	}

	// ch is any Transmitter, e.g. a connected *channel.CardChannel.
	trace, err := iso7816.NewClient(ch).Send(cmd)
	if err != nil {
	    log.Fatal(err)
	}

	fmt.Print(trace.Dump())
	if trace.IsSuccess() {
	    fmt.Printf("FCI: %X\n", trace.Data())
	}
*/
package iso7816
