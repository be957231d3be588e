// Package serialize implements the sandbox's output() dispatch: per-argument
// type switch into scalar formatting, JSON table encoding or extension-type
// binary dumps, all funneled into the output buffer.
package serialize

import (
	"strconv"

	lua "github.com/yuin/gopher-lua"

	"scriptbox/internal/extension"
	"scriptbox/internal/outputbuf"
	"scriptbox/internal/quota"
)

// ErrorSetter records a verbatim error message, overriding the generic
// output-limit message when the encoder itself failed: an encoder error
// message is preserved as-is and used when unwinding instead of the
// generic output-limit message.
type ErrorSetter func(msg string)

// Dispatcher binds the output() builtin to one sandbox's buffer and quota.
type Dispatcher struct {
	buf       *outputbuf.Buffer
	acct      *quota.Accountant
	setError  ErrorSetter
}

// New creates a Dispatcher writing into buf and charging acct.
func New(buf *outputbuf.Buffer, acct *quota.Accountant, setError ErrorSetter) *Dispatcher {
	return &Dispatcher{buf: buf, acct: acct, setError: setError}
}

// LGFunction returns the gopher-lua-callable output(...) implementation.
func (d *Dispatcher) LGFunction() lua.LGFunction {
	return d.output
}

func (d *Dispatcher) output(L *lua.LState) int {
	n := L.GetTop()
	if n == 0 {
		L.RaiseError("output() must have at least one argument")
	}

	var failErr error
	for i := 1; i <= n && failErr == nil; i++ {
		v := L.Get(i)
		switch t := v.(type) {
		case lua.LNumber:
			failErr = d.buf.AppendStr(formatDouble(float64(t)))
		case lua.LString:
			failErr = d.buf.AppendFmt("%s", string(t))
		case *lua.LNilType:
			failErr = d.buf.AppendStr("nil")
		case lua.LBool:
			if bool(t) {
				failErr = d.buf.AppendStr("true")
			} else {
				failErr = d.buf.AppendStr("false")
			}
		case *lua.LTable:
			failErr = d.outputTable(t)
		case *lua.LUserData:
			if dump, ok := extension.DumpFromLValue(t); ok {
				failErr = d.buf.AppendStr(string(dump))
			}
			// Unrecognized userdata: silently ignored, like any other type.
		default:
			// function/thread/etc: silently ignored.
		}
	}

	d.acct.Set(quota.Output, uint64(d.buf.Len()))

	if failErr != nil {
		if failErr == outputbuf.ErrCeiling {
			L.RaiseError("output_limit exceeded")
		}
		msg := failErr.Error()
		d.setError(msg)
		L.RaiseError("%s", msg)
	}
	return 0
}

func (d *Dispatcher) outputTable(t *lua.LTable) error {
	encoded, err := EncodeTableJSON(t)
	if err != nil {
		d.setError(err.Error())
		return err
	}
	if err := d.buf.AppendStr(string(encoded)); err != nil {
		return err
	}
	return d.buf.AppendChar('\n')
}

// formatDouble produces a round-trippable, full-precision decimal
// representation of v.
func formatDouble(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
