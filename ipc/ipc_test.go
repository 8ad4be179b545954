package ipc

import (
	"context"
	"errors"
	"testing"

	"syscontrol/message"
	"syscontrol/parcel"
)

type echoHandler struct {
	calls int
}

func (h *echoHandler) Descriptor() string { return "test.IEcho" }

func (h *echoHandler) OnTransact(ctx context.Context, code uint32, data, reply *parcel.Parcel) error {
	h.calls++
	if code != FirstCallTransaction {
		return DefaultOnTransact(h, code, data, reply)
	}
	if err := data.EnforceInterface(h.Descriptor()); err != nil {
		return err
	}
	s, err := data.ReadString16()
	if err != nil {
		return err
	}
	reply.WriteString16(s)
	return nil
}

func TestLocalRoundTrip(t *testing.T) {
	h := &echoHandler{}
	remote := Local(h)

	data := parcel.New()
	data.WriteInterfaceToken("test.IEcho")
	data.WriteString16("hello")

	reply, err := remote.Transact(context.Background(), FirstCallTransaction, data)
	if err != nil {
		t.Fatalf("Transact failed: %v", err)
	}
	if got, _ := reply.ReadString16(); got != "hello" {
		t.Fatalf("expect echo, got %q", got)
	}
	if data.Position() != 0 {
		t.Fatalf("local transport read from the caller's parcel")
	}
}

func TestLocalMapsErrorsToStatus(t *testing.T) {
	remote := Local(&echoHandler{})

	data := parcel.New()
	data.WriteInterfaceToken("test.IOther")
	_, err := remote.Transact(context.Background(), FirstCallTransaction, data)
	if !errors.Is(err, ErrBadInterface) {
		t.Fatalf("expect ErrBadInterface, got %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Status != message.StatusBadType {
		t.Fatalf("expect StatusError BAD_TYPE, got %v", err)
	}

	_, err = remote.Transact(context.Background(), 0x42, parcel.New())
	if !errors.Is(err, ErrUnknownTransaction) {
		t.Fatalf("expect ErrUnknownTransaction, got %v", err)
	}
}

func TestLocalCanceledContext(t *testing.T) {
	h := &echoHandler{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Local(h).Transact(ctx, PingTransaction, parcel.New()); !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expect ErrTimedOut, got %v", err)
	}
	if h.calls != 0 {
		t.Fatalf("handler invoked on canceled context")
	}
}

func TestGenericTransactions(t *testing.T) {
	remote := Local(&echoHandler{})
	ctx := context.Background()

	if err := Ping(ctx, remote); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	desc, err := InterfaceDescriptor(ctx, remote)
	if err != nil {
		t.Fatalf("InterfaceDescriptor failed: %v", err)
	}
	if desc != "test.IEcho" {
		t.Fatalf("expect test.IEcho, got %q", desc)
	}
	if PingTransaction <= LastCallTransaction || InterfaceTransaction <= LastCallTransaction {
		t.Fatalf("generic codes overlap the interface code space")
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want message.Status
	}{
		{nil, message.StatusOK},
		{ErrUnknownTransaction, message.StatusUnknownTransaction},
		{&parcel.InterfaceError{Want: "a", Got: "b", Err: parcel.ErrBadInterface}, message.StatusBadType},
		{ErrDeadObject, message.StatusDeadObject},
		{context.DeadlineExceeded, message.StatusTimedOut},
		{ErrRateLimited, message.StatusRateLimited},
		{ErrServiceNotFound, message.StatusNameNotFound},
		{parcel.ErrTruncated, message.StatusFailedTransaction},
		{errors.New("boom"), message.StatusFailedTransaction},
		{&StatusError{Status: message.StatusTimedOut}, message.StatusTimedOut},
	}
	for _, tc := range cases {
		if got := StatusOf(tc.err); got != tc.want {
			t.Errorf("StatusOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}

	if FromStatus(message.StatusOK, "") != nil {
		t.Fatalf("expect nil error for OK status")
	}
	if err := FromStatus(message.StatusDeadObject, "gone"); !errors.Is(err, ErrDeadObject) {
		t.Fatalf("expect ErrDeadObject, got %v", err)
	}
	if err := FromStatus(message.Status(-9999), ""); !errors.Is(err, ErrFailedTransaction) {
		t.Fatalf("expect unknown status to unwrap to ErrFailedTransaction, got %v", err)
	}
}
