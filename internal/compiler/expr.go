package compiler

import (
	"github.com/google/uuid"

	"github.com/loaf-lang/loaf/internal/bytecode"
	"github.com/loaf-lang/loaf/internal/parser"
)

// compileExpr lowers one expression node, leaving its value on top of
// the operand stack, per the rules in spec §4.5.
func (c *Compiler) compileExpr(node parser.Node) error {
	switch n := node.(type) {
	case *parser.NullLit:
		c.emit(bytecode.LoadConstant, c.module.AddConstant(bytecode.NullConstant()))
		return nil

	case *parser.BooleanLit:
		c.emit(bytecode.LoadConstant, c.module.AddConstant(bytecode.BooleanConstant(n.Value)))
		return nil

	case *parser.StringLit:
		c.emit(bytecode.LoadConstant, c.internString(n.Value))
		return nil

	case *parser.NumberLit:
		if n.IsInt {
			c.emit(bytecode.LoadConstant, c.module.AddConstant(bytecode.IntegerConstant(n.Int)))
		} else {
			c.emit(bytecode.LoadConstant, c.module.AddConstant(bytecode.FloatConstant(n.Value)))
		}
		return nil

	case *parser.Identifier:
		if sym, ok := c.st.GetSymbol(n.Name); ok && sym.Type.IsPromise() {
			c.emit(bytecode.AwaitPromise, c.internString(n.Name))
			return nil
		}
		c.emit(bytecode.LoadVariable, c.internString(n.Name))
		return nil

	case *parser.ObjectLit:
		c.emitBare(bytecode.CreateObject)
		for _, key := range n.Order {
			if err := c.compileExpr(n.Fields[key]); err != nil {
				return err
			}
			c.emit(bytecode.SetProperty, c.internString(key))
		}
		return nil

	case *parser.ArrayLit:
		c.emitBare(bytecode.CreateArray)
		for _, elem := range n.Elements {
			if err := c.compileExpr(elem); err != nil {
				return err
			}
			c.emitBare(bytecode.AppendArray)
		}
		return nil

	case *parser.MemberAccess:
		if err := c.compileExpr(n.Object); err != nil {
			return err
		}
		c.emit(bytecode.GetProperty, c.internString(n.Property))
		return nil

	case *parser.Binary:
		if err := c.compileExpr(n.Left); err != nil {
			return err
		}
		if err := c.compileExpr(n.Right); err != nil {
			return err
		}
		c.emitBare(binaryOpcode(n.Op))
		if n.Op == parser.Divide {
			// Div leaves (remainder, quotient) with quotient on top; the
			// source-level '/' operator only has one result, so swap the
			// remainder to the top and drop it.
			c.emitBare(bytecode.Swap)
			c.emitBare(bytecode.Pop)
		}
		return nil

	case *parser.Unary:
		if err := c.compileExpr(n.Operand); err != nil {
			return err
		}
		if n.Op == parser.Not {
			c.emitBare(bytecode.Not)
		} else {
			c.emitBare(bytecode.Neg)
		}
		return nil

	case *parser.Promise:
		if err := c.compileExpr(n.Expr); err != nil {
			return err
		}
		c.emit(bytecode.CreatePromise, c.internString(uuid.New().String()))
		return nil

	case *parser.HttpCall:
		if err := c.compileExpr(n.URL); err != nil {
			return err
		}
		bodyPresent := uint32(0)
		if n.Body != nil {
			if err := c.compileExpr(n.Body); err != nil {
				return err
			}
			bodyPresent = 1
		}
		c.emit(bytecode.HttpCall, methodCode(n.Method), bodyPresent)
		return nil

	case *parser.FunctionCall:
		for _, arg := range n.Args {
			if err := c.compileExpr(arg); err != nil {
				return err
			}
		}
		c.emit(bytecode.CreatePromise, c.internString(n.Name+":"+uuid.New().String()))
		return nil

	default:
		return errUnsupported(node.Line(), shapeName(node))
	}
}

func binaryOpcode(op parser.BinaryOp) bytecode.OpCode {
	switch op {
	case parser.Add:
		return bytecode.Add
	case parser.Subtract:
		return bytecode.Sub
	case parser.Multiply:
		return bytecode.Mul
	case parser.Divide:
		return bytecode.Div
	case parser.Equal:
		return bytecode.Eq
	default:
		return bytecode.Nop
	}
}
