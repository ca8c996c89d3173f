package config

import (
	lua "github.com/yuin/gopher-lua"
)

// maxCallStack bounds recursion in user configs.
const maxCallStack = 256

// sandboxLuaVM configures a Lua VM to run in a restricted sandbox.
// This disables functions that could:
// - Execute system commands (os.execute, os.exit)
// - Access the filesystem (io.open, io.popen)
// - Load external code (require, dofile, loadfile)
// - Reach around the read-only platform table (rawset, setmetatable)
//
// string, table and math are preserved, so configs stay declarative.
func sandboxLuaVM(L *lua.LState) {
	for _, name := range []string{
		"os", "io", "debug",
		"require", "dofile", "loadfile", "load", "loadstring",
		"rawset", "rawget", "rawequal",
		"setmetatable", "getmetatable", "setfenv", "getfenv",
		"collectgarbage",
	} {
		L.SetGlobal(name, lua.LNil)
	}
}

// newSandboxedVM creates a new Lua VM with sandboxing applied.
func newSandboxedVM() *lua.LState {
	L := lua.NewState(lua.Options{CallStackSize: maxCallStack})
	sandboxLuaVM(L)
	return L
}
