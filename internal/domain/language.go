package domain

// Kind is the closed set of execution strategies a language can use.
type Kind int

const (
	KindNative Kind = iota + 1 // compiled ahead of time to a host executable
	KindJVM                    // compiled to bytecode, run by a managed runtime
	KindScript                 // interpreted directly from source
)

func (k Kind) String() string {
	switch k {
	case KindNative:
		return "compiled-native"
	case KindJVM:
		return "jvm-managed"
	case KindScript:
		return "interpreted-script"
	default:
		return "unknown"
	}
}

// Compiled reports whether the kind needs a build step before running.
func (k Kind) Compiled() bool {
	return k == KindNative || k == KindJVM
}
