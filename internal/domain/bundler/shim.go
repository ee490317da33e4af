package bundler

import "bytes"

// NameShim defines a shared __name helper on globalThis if no earlier
// bundle has.
const NameShim = `var __name = globalThis.__name || (globalThis.__name = (fn,name)=>{try{Object.defineProperty(fn,"name",{value:name,configurable:true});}catch{}return fn;});`

// InjectNameShim prepends NameShim to code unless it is already there.
func InjectNameShim(code []byte) []byte {
	if bytes.HasPrefix(code, []byte(NameShim)) {
		return code
	}
	out := make([]byte, 0, len(NameShim)+1+len(code))
	out = append(out, NameShim...)
	out = append(out, '\n')
	return append(out, code...)
}
