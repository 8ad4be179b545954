package syscontrol

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"syscontrol/ipc"
	"syscontrol/parcel"
)

// call records one Service invocation.
type call struct {
	method string
	args   []any
}

// recordingService records every call and answers from fixed results.
type recordingService struct {
	mu    sync.Mutex
	calls []call

	found   bool
	value   string
	intVal  int32
	longVal int64
	boolVal bool
}

func (r *recordingService) record(method string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{method: method, args: args})
}

func (r *recordingService) recorded() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call(nil), r.calls...)
}

func (r *recordingService) GetProperty(key string) (string, bool) {
	r.record("GetProperty", key)
	return r.value, r.found
}

func (r *recordingService) GetPropertyString(key, def string) (string, bool) {
	r.record("GetPropertyString", key, def)
	return r.value, r.found
}

func (r *recordingService) GetPropertyInt(key string, def int32) int32 {
	r.record("GetPropertyInt", key, def)
	return r.intVal
}

func (r *recordingService) GetPropertyLong(key string, def int64) int64 {
	r.record("GetPropertyLong", key, def)
	return r.longVal
}

func (r *recordingService) GetPropertyBoolean(key string, def bool) bool {
	r.record("GetPropertyBoolean", key, def)
	return r.boolVal
}

func (r *recordingService) SetProperty(key, value string) {
	r.record("SetProperty", key, value)
}

func (r *recordingService) ReadSysfs(path string) (string, bool) {
	r.record("ReadSysfs", path)
	return r.value, r.found
}

func (r *recordingService) WriteSysfs(path, value string) bool {
	r.record("WriteSysfs", path, value)
	return r.boolVal
}

func (r *recordingService) GetBootEnv(key string) (string, bool) {
	r.record("GetBootEnv", key)
	return r.value, r.found
}

func (r *recordingService) SetBootEnv(key, value string) {
	r.record("SetBootEnv", key, value)
}

func newLocalProxy(svc Service) *Proxy {
	return NewProxy(ipc.Local(NewStub(svc)))
}

func TestOpcodeValuesAreStable(t *testing.T) {
	want := map[Opcode]uint32{
		GetProperty:       1,
		GetPropertyString: 2,
		GetPropertyInt:    3,
		GetPropertyLong:   4,
		GetPropertyBool:   5,
		SetProperty:       6,
		ReadSysfs:         7,
		WriteSysfs:        8,
		GetBootEnv:        9,
		SetBootEnv:        10,
	}
	for op, v := range want {
		if uint32(op) != v {
			t.Errorf("%s = %d, want %d", op, uint32(op), v)
		}
		if _, ok := stubTable[op]; !ok {
			t.Errorf("%s has no stub entry", op)
		}
	}
	if len(Opcodes()) != len(want) || len(stubTable) != len(want) {
		t.Fatalf("opcode table size changed: Opcodes=%d stubTable=%d", len(Opcodes()), len(stubTable))
	}
	if Opcode(0).Valid() || Opcode(11).Valid() || !SetBootEnv.Valid() {
		t.Fatalf("Valid does not match the table")
	}
	if Opcode(99).String() != "OPCODE(99)" {
		t.Fatalf("unexpected name %q", Opcode(99).String())
	}
}

func TestStubDispatchesEachOpcodeOnce(t *testing.T) {
	cases := []struct {
		op   Opcode
		do   func(p *Proxy)
		want call
	}{
		{GetProperty, func(p *Proxy) { p.GetProperty("ro.build.type") },
			call{"GetProperty", []any{"ro.build.type"}}},
		{GetPropertyString, func(p *Proxy) { p.GetPropertyString("persist.sys.locale", "en-US") },
			call{"GetPropertyString", []any{"persist.sys.locale", "en-US"}}},
		{GetPropertyInt, func(p *Proxy) { p.GetPropertyInt("debug.level", -7) },
			call{"GetPropertyInt", []any{"debug.level", int32(-7)}}},
		{GetPropertyLong, func(p *Proxy) { p.GetPropertyLong("sys.uptime", 1<<40) },
			call{"GetPropertyLong", []any{"sys.uptime", int64(1 << 40)}}},
		{GetPropertyBool, func(p *Proxy) { p.GetPropertyBoolean("sys.hdmi.ready", true) },
			call{"GetPropertyBoolean", []any{"sys.hdmi.ready", true}}},
		{SetProperty, func(p *Proxy) { p.SetProperty("sys.display.mode", "1080p60hz") },
			call{"SetProperty", []any{"sys.display.mode", "1080p60hz"}}},
		{ReadSysfs, func(p *Proxy) { p.ReadSysfs("/sys/class/display/mode") },
			call{"ReadSysfs", []any{"/sys/class/display/mode"}}},
		{WriteSysfs, func(p *Proxy) { p.WriteSysfs("/sys/class/x/y", "1") },
			call{"WriteSysfs", []any{"/sys/class/x/y", "1"}}},
		{GetBootEnv, func(p *Proxy) { p.GetBootEnv("ubootenv.var.outputmode") },
			call{"GetBootEnv", []any{"ubootenv.var.outputmode"}}},
		{SetBootEnv, func(p *Proxy) { p.SetBootEnv("ubootenv.var.outputmode", "720p") },
			call{"SetBootEnv", []any{"ubootenv.var.outputmode", "720p"}}},
	}

	for _, tc := range cases {
		t.Run(tc.op.String(), func(t *testing.T) {
			svc := &recordingService{}
			tc.do(newLocalProxy(svc))

			got := svc.recorded()
			if len(got) != 1 {
				t.Fatalf("expect exactly one handler call, got %d: %+v", len(got), got)
			}
			if !reflect.DeepEqual(got[0], tc.want) {
				t.Fatalf("handler call mismatch: got %+v, want %+v", got[0], tc.want)
			}
		})
	}
}

func TestFlaggedReplies(t *testing.T) {
	svc := &recordingService{found: true, value: "1080p60hz"}
	p := newLocalProxy(svc)

	if v, ok := p.GetProperty("k"); !ok || v != "1080p60hz" {
		t.Fatalf("GetProperty: got %q, %v", v, ok)
	}
	if v, ok := p.GetPropertyString("k", "d"); !ok || v != "1080p60hz" {
		t.Fatalf("GetPropertyString: got %q, %v", v, ok)
	}
	if v, ok := p.GetBootEnv("k"); !ok || v != "1080p60hz" {
		t.Fatalf("GetBootEnv: got %q, %v", v, ok)
	}

	svc.found = false
	if _, ok := p.GetProperty("k"); ok {
		t.Fatalf("GetProperty: expect failure when the handler reports not found")
	}
	if _, ok := p.GetBootEnv("k"); ok {
		t.Fatalf("GetBootEnv: expect failure when the handler reports not found")
	}
}

func TestNumericReplies(t *testing.T) {
	svc := &recordingService{intVal: -2147483648, longVal: 9223372036854775807}
	p := newLocalProxy(svc)

	if v := p.GetPropertyInt("k", 0); v != -2147483648 {
		t.Fatalf("GetPropertyInt: got %d", v)
	}
	if v := p.GetPropertyLong("k", 0); v != 9223372036854775807 {
		t.Fatalf("GetPropertyLong: got %d", v)
	}
}

func TestBooleanPolarity(t *testing.T) {
	for _, want := range []bool{true, false} {
		svc := &recordingService{boolVal: want}

		// the literal reply encoding: true is int32 1, false is int32 0
		for _, op := range []Opcode{GetPropertyBool, WriteSysfs} {
			data := parcel.New()
			data.WriteInterfaceToken(Descriptor)
			data.WriteString16("k")
			if op == GetPropertyBool {
				data.WriteInt32(0)
			} else {
				data.WriteString16("v")
			}
			reply := parcel.New()
			if err := NewStub(svc).OnTransact(context.Background(), uint32(op), parcel.FromBytes(data.Bytes()), reply); err != nil {
				t.Fatalf("%s: OnTransact failed: %v", op, err)
			}
			raw, err := parcel.FromBytes(reply.Bytes()).ReadInt32()
			if err != nil {
				t.Fatalf("%s: reply unreadable: %v", op, err)
			}
			wantRaw := int32(0)
			if want {
				wantRaw = 1
			}
			if raw != wantRaw {
				t.Fatalf("%s: handler %v encoded as %d, want %d", op, want, raw, wantRaw)
			}
		}

		p := newLocalProxy(svc)
		if got := p.GetPropertyBoolean("k", !want); got != want {
			t.Fatalf("GetPropertyBoolean: got %v, want %v", got, want)
		}
		if got := p.WriteSysfs("/sys/k", "v"); got != want {
			t.Fatalf("WriteSysfs: got %v, want %v", got, want)
		}
	}
}

func TestGetPropertyIntMissingKeyReturnsDefault(t *testing.T) {
	// the handler has no such key and answers with the caller's default
	svc := &recordingService{intVal: -1}
	if v := newLocalProxy(svc).GetPropertyInt("debug.level", -1); v != -1 {
		t.Fatalf("expect -1, got %d", v)
	}
}

func TestWriteSysfsScenario(t *testing.T) {
	svc := &recordingService{boolVal: true}
	if !newLocalProxy(svc).WriteSysfs("/sys/class/x/y", "1") {
		t.Fatalf("expect WriteSysfs to report success")
	}
}

func TestReadSysfsReplyHasNoFlag(t *testing.T) {
	svc := &recordingService{found: false, value: ""}
	p := newLocalProxy(svc)

	// the handler's outcome is not on the wire; a completed call is a success
	if v, ok := p.ReadSysfs("/sys/missing"); !ok || v != "" {
		t.Fatalf("expect (\"\", true), got (%q, %v)", v, ok)
	}

	svc.found, svc.value = true, "3"
	data := parcel.New()
	data.WriteInterfaceToken(Descriptor)
	data.WriteString16("/sys/x")
	reply := parcel.New()
	if err := NewStub(svc).OnTransact(context.Background(), uint32(ReadSysfs), parcel.FromBytes(data.Bytes()), reply); err != nil {
		t.Fatal(err)
	}
	want := parcel.New()
	want.WriteString16("3")
	if !reflect.DeepEqual(reply.Bytes(), want.Bytes()) {
		t.Fatalf("ReadSysfs reply is not a bare string: %v", reply.Bytes())
	}
}

// failingRemote reports a transport failure but hands back a readable reply, so
// a test can tell whether the proxy touched it.
type failingRemote struct {
	reply *parcel.Parcel
	calls int
}

func (f *failingRemote) Transact(ctx context.Context, code uint32, data *parcel.Parcel) (*parcel.Parcel, error) {
	f.calls++
	return f.reply, ipc.ErrDeadObject
}

func newFailingRemote() *failingRemote {
	reply := parcel.New()
	reply.WriteInt32(1)
	reply.WriteString16("must not be read")
	reply.WriteInt64(42)
	return &failingRemote{reply: parcel.FromBytes(reply.Bytes())}
}

func TestTransportFailureValues(t *testing.T) {
	remote := newFailingRemote()
	p := NewProxy(remote)

	if _, ok := p.GetProperty("k"); ok {
		t.Errorf("GetProperty: expect false")
	}
	if _, ok := p.GetPropertyString("k", "d"); ok {
		t.Errorf("GetPropertyString: expect false")
	}
	if v := p.GetPropertyInt("k", 5); v != -1 {
		t.Errorf("GetPropertyInt: expect -1, got %d", v)
	}
	if v := p.GetPropertyLong("k", 5); v != -1 {
		t.Errorf("GetPropertyLong: expect -1, got %d", v)
	}
	if p.GetPropertyBoolean("k", true) {
		t.Errorf("GetPropertyBoolean: expect false")
	}
	p.SetProperty("k", "v")
	if _, ok := p.ReadSysfs("/sys/k"); ok {
		t.Errorf("ReadSysfs: expect false")
	}
	if p.WriteSysfs("/sys/k", "v") {
		t.Errorf("WriteSysfs: expect false")
	}
	if _, ok := p.GetBootEnv("k"); ok {
		t.Errorf("GetBootEnv: expect false")
	}
	p.SetBootEnv("k", "v")

	if remote.calls != 10 {
		t.Fatalf("expect 10 transactions, got %d", remote.calls)
	}
	if remote.reply.Position() != 0 {
		t.Fatalf("proxy read %d bytes from a failed reply", remote.reply.Position())
	}
}

func TestRemoteFailureFlagStopsDecoding(t *testing.T) {
	reply := parcel.New()
	reply.WriteInt32(int32(FlagFailure))
	reply.WriteString16("stale value")
	r := parcel.FromBytes(reply.Bytes())

	remote := ipc.RemoteFunc(func(ctx context.Context, code uint32, data *parcel.Parcel) (*parcel.Parcel, error) {
		return r, nil
	})
	if v, ok := NewProxy(remote).GetProperty("k"); ok || v != "" {
		t.Fatalf("expect (\"\", false), got (%q, %v)", v, ok)
	}
	if r.Position() != 4 {
		t.Fatalf("expect only the flag to be read, cursor at %d", r.Position())
	}

	// any non-zero flag is success
	reply = parcel.New()
	reply.WriteInt32(-5)
	reply.WriteString16("value")
	remote = ipc.RemoteFunc(func(ctx context.Context, code uint32, data *parcel.Parcel) (*parcel.Parcel, error) {
		return parcel.FromBytes(reply.Bytes()), nil
	})
	if v, ok := NewProxy(remote).GetBootEnv("k"); !ok || v != "value" {
		t.Fatalf("expect (\"value\", true), got (%q, %v)", v, ok)
	}
}

func TestMalformedReplyIsFailure(t *testing.T) {
	empty := ipc.RemoteFunc(func(ctx context.Context, code uint32, data *parcel.Parcel) (*parcel.Parcel, error) {
		return parcel.New(), nil
	})
	p := NewProxy(empty)

	if _, ok := p.GetProperty("k"); ok {
		t.Errorf("GetProperty: expect false on empty reply")
	}
	if v := p.GetPropertyInt("k", 3); v != -1 {
		t.Errorf("GetPropertyInt: expect -1 on empty reply, got %d", v)
	}
	if v := p.GetPropertyLong("k", 3); v != -1 {
		t.Errorf("GetPropertyLong: expect -1 on empty reply, got %d", v)
	}
	if p.GetPropertyBoolean("k", true) {
		t.Errorf("GetPropertyBoolean: expect false on empty reply")
	}
	if _, ok := p.ReadSysfs("/sys/k"); ok {
		t.Errorf("ReadSysfs: expect false on empty reply")
	}
	if p.WriteSysfs("/sys/k", "1") {
		t.Errorf("WriteSysfs: expect false on empty reply")
	}
}

func TestStubRejectsForeignToken(t *testing.T) {
	for _, token := range []string{"", "droidlogic.IOtherService", "android.os.IServiceManager"} {
		svc := &recordingService{}
		for _, op := range Opcodes() {
			data := parcel.New()
			data.WriteInterfaceToken(token)
			data.WriteString16("k")
			data.WriteString16("v")

			err := NewStub(svc).OnTransact(context.Background(), uint32(op), parcel.FromBytes(data.Bytes()), parcel.New())
			if !errors.Is(err, ipc.ErrBadInterface) {
				t.Fatalf("token %q %s: expect ErrBadInterface, got %v", token, op, err)
			}
		}
		if n := len(svc.recorded()); n != 0 {
			t.Fatalf("token %q: handler invoked %d times", token, n)
		}
	}
}

func TestStubRejectsTruncatedArguments(t *testing.T) {
	svc := &recordingService{}

	data := parcel.New()
	data.WriteInterfaceToken(Descriptor)
	data.WriteString16("debug.level") // default missing

	err := NewStub(svc).OnTransact(context.Background(), uint32(GetPropertyInt), parcel.FromBytes(data.Bytes()), parcel.New())
	if !errors.Is(err, parcel.ErrTruncated) {
		t.Fatalf("expect ErrTruncated, got %v", err)
	}
	if n := len(svc.recorded()); n != 0 {
		t.Fatalf("handler invoked with a truncated request")
	}

	// the stub keeps serving well-formed requests afterwards
	svc.intVal = 4
	if v := newLocalProxy(svc).GetPropertyInt("debug.level", 1); v != 4 {
		t.Fatalf("expect 4, got %d", v)
	}
}

func TestStubUnknownOpcode(t *testing.T) {
	svc := &recordingService{}
	remote := ipc.Local(NewStub(svc))
	ctx := context.Background()

	data := parcel.New()
	data.WriteInterfaceToken(Descriptor)
	if _, err := remote.Transact(ctx, 11, data); !errors.Is(err, ipc.ErrUnknownTransaction) {
		t.Fatalf("expect ErrUnknownTransaction, got %v", err)
	}
	if err := ipc.Ping(ctx, remote); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	desc, err := ipc.InterfaceDescriptor(ctx, remote)
	if err != nil || desc != Descriptor {
		t.Fatalf("expect descriptor %q, got %q err=%v", Descriptor, desc, err)
	}
	if n := len(svc.recorded()); n != 0 {
		t.Fatalf("generic transactions reached the handler")
	}
}

func TestProxyWithContext(t *testing.T) {
	svc := &recordingService{found: true, value: "v"}
	p := newLocalProxy(svc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := p.WithContext(ctx).GetProperty("k"); ok {
		t.Fatalf("expect canceled context to fail the call")
	}
	if _, ok := p.GetProperty("k"); !ok {
		t.Fatalf("WithContext modified the original proxy")
	}
}

func TestConcurrentCalls(t *testing.T) {
	svc := &recordingService{intVal: 7}
	p := newLocalProxy(svc)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if v := p.GetPropertyInt(fmt.Sprintf("key.%d", n), int32(n)); v != 7 {
				t.Errorf("call %d: expect 7, got %d", n, v)
			}
		}(i)
	}
	wg.Wait()

	if n := len(svc.recorded()); n != 50 {
		t.Fatalf("expect 50 handler calls, got %d", n)
	}
}

func TestDecodeFlaggedString(t *testing.T) {
	p := parcel.New()
	FlaggedString{Flag: FlagSuccess, Value: ""}.Encode(p)

	r, err := DecodeFlaggedString(parcel.FromBytes(p.Bytes()))
	if err != nil || !r.Flag.OK() || r.Value != "" {
		t.Fatalf("unexpected decode: %+v err=%v", r, err)
	}

	truncated := parcel.New()
	truncated.WriteInt32(1)
	if _, err := DecodeFlaggedString(parcel.FromBytes(truncated.Bytes())); !errors.Is(err, parcel.ErrTruncated) {
		t.Fatalf("expect ErrTruncated, got %v", err)
	}
}
