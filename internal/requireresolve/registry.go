package requireresolve

import (
	lua "github.com/yuin/gopher-lua"

	"scriptbox/internal/extension"
	"scriptbox/internal/librarygate"
)

// osDenylist strips the process-control symbols from the os library.
var osDenylist = []string{"execute", "exit", "remove", "rename", "setlocale", "tmpname"}

// cjsonDenylist strips the encode family from the cjson-safe library.
var cjsonDenylist = []string{
	"encode", "encode_sparse_array", "encode_max_depth",
	"encode_number_precision", "encode_keep_buffer", "encode_invalid_numbers",
}

// baseDenylist strips guest-visible globals the sandbox doesn't expose:
// collectgarbage, coroutine, dofile, load, loadfile, loadstring, newproxy,
// print. A listed name that lua.OpenBase does not define stays absent.
var baseDenylist = []string{
	"collectgarbage", "coroutine", "dofile", "load", "loadfile",
	"loadstring", "newproxy", "print",
}

// builtins returns the name -> Descriptor table for every gated library.
// name "" (the root/globals table) is handled specially by the sandbox at
// Init time, not through this map.
func builtins() map[string]librarygate.Descriptor {
	return map[string]librarygate.Descriptor{
		"string": {Name: "string", Loader: lua.OpenString, Denylist: nil},
		"math":   {Name: "math", Loader: lua.OpenMath, Denylist: nil},
		"table":  {Name: "table", Loader: lua.OpenTable, Denylist: nil},
		"os":     {Name: "os", Loader: lua.OpenOs, Denylist: osDenylist},
		"cjson":  {Name: "cjson", Loader: extension.OpenCJSON, Denylist: cjsonDenylist},
		"lpeg":   {Name: "lpeg", Loader: extension.OpenLPeg, Denylist: nil},
		"pb":     {Name: "pb", Loader: extension.OpenPB, Denylist: nil},
		"circular_buffer": {Name: "circular_buffer", Loader: extension.OpenCircularBuffer, Denylist: nil},
		"bloom_filter":    {Name: "bloom_filter", Loader: extension.OpenBloomFilter, Denylist: nil},
		"hyperloglog":     {Name: "hyperloglog", Loader: extension.OpenHyperLogLog, Denylist: nil},
	}
}

// BaseDescriptor describes the root globals table load performed once at
// sandbox creation.
func BaseDescriptor() librarygate.Descriptor {
	return librarygate.Descriptor{Name: librarygate.RootTable, Loader: lua.OpenBase, Denylist: baseDenylist}
}
