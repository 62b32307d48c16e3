package vm

import (
	"fmt"

	"github.com/loaf-lang/loaf/internal/bytecode"
	"github.com/loaf-lang/loaf/internal/value"
)

// execHttpCall implements HttpCall(method, url, body?) per §4.6: real
// network I/O is an explicit non-goal, so the call is simulated. It
// consumes whatever the compiler pushed (url, then body if present) and
// synthesizes a deterministic string response describing the request,
// which is the contract callers can rely on in the absence of a host
// that wires in a real transport.
func (i *Interpreter) execHttpCall(ctx *ExecutionContext, instr bytecode.Instruction) error {
	bodyPresent := instr.Operand(1) != 0
	method := methodName(instr.Operand(0))

	var body string
	if bodyPresent {
		v, err := ctx.Pop()
		if err != nil {
			return err
		}
		body = v.String()
	}

	urlVal, err := ctx.Pop()
	if err != nil {
		return err
	}
	url, ok := urlVal.AsString()
	if !ok {
		return newErr(TypeError, ctx.PC, "http_call url must be a string")
	}

	var response string
	if bodyPresent {
		response = fmt.Sprintf("%s %s %s", method, url, body)
	} else {
		response = fmt.Sprintf("%s %s", method, url)
	}
	ctx.Push(value.String(response))
	return nil
}

func methodName(code uint32) string {
	switch code {
	case 0:
		return "GET"
	case 1:
		return "POST"
	case 2:
		return "PUT"
	case 3:
		return "DELETE"
	case 4:
		return "PATCH"
	default:
		return "GET"
	}
}
