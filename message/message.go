// Package message defines the envelope exchanged between client and server.
//
// A Transaction carries one call: the interface descriptor it targets, the
// transaction code, and the opaque parcel bytes. It gets serialized by the codec
// layer and wrapped in a protocol frame for transmission over TCP.
package message

import "fmt"

// Status is the transport-level outcome of a transaction. It says whether the
// call reached a handler, not whether the handler found what it was asked for;
// that outcome lives inside Data.
type Status int32

const (
	StatusOK                 Status = 0
	StatusUnknownTransaction Status = -74  // code not handled by the target
	StatusBadType            Status = -130 // interface token mismatch
	StatusDeadObject         Status = -32  // endpoint unreachable
	StatusFailedTransaction  Status = -2147483646
	StatusTimedOut           Status = -110
	StatusRateLimited        Status = -11
	StatusNameNotFound       Status = -2 // no handler registered for the descriptor
)

var statusNames = map[Status]string{
	StatusOK:                 "OK",
	StatusUnknownTransaction: "UNKNOWN_TRANSACTION",
	StatusBadType:            "BAD_TYPE",
	StatusDeadObject:         "DEAD_OBJECT",
	StatusFailedTransaction:  "FAILED_TRANSACTION",
	StatusTimedOut:           "TIMED_OUT",
	StatusRateLimited:        "RATE_LIMITED",
	StatusNameNotFound:       "NAME_NOT_FOUND",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS(%d)", int32(s))
}

// Transaction carries the data for a single request or reply.
//
//   - On request: Service and Code are set, Data holds the request parcel.
//   - On reply:   Status is set; Data holds the reply parcel only when Status is OK,
//     otherwise Error describes the failure.
type Transaction struct {
	Service string // Interface descriptor, e.g. "droidlogic.ISystemControlService"
	Code    uint32 // Transaction code (opcode)
	Status  Status
	Error   string
	Data    []byte
}

// Reply builds the reply envelope for req.
func (req *Transaction) Reply(data []byte) *Transaction {
	return &Transaction{Service: req.Service, Code: req.Code, Status: StatusOK, Data: data}
}

// Fail builds a failed reply envelope for req.
func (req *Transaction) Fail(status Status, err error) *Transaction {
	reply := &Transaction{Service: req.Service, Code: req.Code, Status: status}
	if err != nil {
		reply.Error = err.Error()
	}
	return reply
}
