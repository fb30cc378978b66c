package introspect

const (
	opPush1  = 0x60
	opPush4  = 0x63
	opPush32 = 0x7f
)

// Selectors collects the operands of every PUSH4 in runtime bytecode. Solidity
// dispatchers compare calldata against PUSH4 selector constants, so a
// function's selector missing from this set means the function is absent.
// Data bytes of other PUSH instructions are skipped.
func Selectors(code []byte) map[[4]byte]bool {
	out := make(map[[4]byte]bool)
	for i := 0; i < len(code); i++ {
		op := code[i]
		if op < opPush1 || op > opPush32 {
			continue
		}
		n := int(op-opPush1) + 1
		if op == opPush4 && i+4 < len(code) {
			var s [4]byte
			copy(s[:], code[i+1:i+5])
			out[s] = true
		}
		i += n
	}
	return out
}

func hasSelector(set map[[4]byte]bool, id []byte) bool {
	if len(id) < 4 {
		return false
	}
	var s [4]byte
	copy(s[:], id[:4])
	return set[s]
}
