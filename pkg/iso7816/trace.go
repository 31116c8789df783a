package iso7816

import (
	"fmt"
	"strings"
)

// A Transaction is one C-APDU and the R-APDU that answered it. A Trace is the
// ordered list of transactions behind one logical request: a SELECT answered
// with 61XX becomes SELECT then GET RESPONSE, and only the final status
// decides the outcome.

// Transaction represents a completed Command-Response pair.
type Transaction struct {
	Command  CommandAPDU
	Response *ResponseAPDU
}

// IsSuccess checks if the transaction ended with a successful status.
// It returns false if the response is missing.
func (t *Transaction) IsSuccess() bool {
	if t.Response == nil {
		return false
	}
	return t.Response.IsSuccess()
}

// Trace is a sequence of transactions (Command-Response pairs).
type Trace []Transaction

// Last returns the final transaction of the trace, nil if empty.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// IsSuccess checks if the FINAL transaction in the trace was successful,
// regardless of the 61XX or 6CXX answers before it.
func (t Trace) IsSuccess() bool {
	last := t.Last()
	if last == nil {
		return false
	}
	return last.IsSuccess()
}

// StatusWord returns the status of the final response, 0 if there is none.
func (t Trace) StatusWord() StatusWord {
	last := t.Last()
	if last == nil || last.Response == nil {
		return 0
	}
	return last.Response.StatusWord()
}

// Dump renders the trace as alternating ">>" command and "<<" response hex lines.
func (t Trace) Dump() string {
	var sb strings.Builder
	for _, tx := range t {
		fmt.Fprintf(&sb, ">> %s\n", tx.Command.Hex())
		if tx.Response != nil {
			fmt.Fprintf(&sb, "<< %s\n", tx.Response.Hex())
		}
	}
	return sb.String()
}
