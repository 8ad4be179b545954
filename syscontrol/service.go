// Package syscontrol implements the system control interface: typed system
// properties, raw sysfs attributes and boot environment variables, served by a
// privileged process and called remotely over a parcel-based transaction
// protocol.
//
// Proxy is the client half: one strongly typed method per opcode that encodes
// the arguments, transacts, and decodes the fixed reply shape. Stub is the
// server half: it checks the interface token, decodes the arguments for the
// opcode, calls the Service and encodes the reply.
//
//	Proxy ──encode──▶ ipc.Remote ──▶ Stub ──decode──▶ Service
//	      ◀─decode─── reply ◀─────── encode ◀──────── result
//
// The protocol carries no error codes. A call either yields a value or its
// per-opcode failure value (false, -1, or nothing for the setters); see the
// Proxy methods for each.
package syscontrol

// Service is the set of operations behind the interface. Both Proxy and the
// implementations a Stub serves satisfy it.
//
// Implementations must be safe for concurrent use; the server may dispatch
// calls from several connections at once.
type Service interface {
	// GetProperty returns the value of key and whether it was found.
	GetProperty(key string) (string, bool)
	// GetPropertyString returns the value of key, or def when it is unset.
	GetPropertyString(key, def string) (string, bool)
	GetPropertyInt(key string, def int32) int32
	GetPropertyLong(key string, def int64) int64
	GetPropertyBoolean(key string, def bool) bool
	SetProperty(key, value string)

	// ReadSysfs returns the contents of a sysfs attribute.
	ReadSysfs(path string) (string, bool)
	// WriteSysfs writes value to a sysfs attribute and reports success.
	WriteSysfs(path, value string) bool

	GetBootEnv(key string) (string, bool)
	SetBootEnv(key, value string)
}
