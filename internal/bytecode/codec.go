package bytecode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Magic identifies a compiled module file: the ASCII bytes "LOAF" read
// as a big-endian uint32.
const Magic uint32 = 0x4C4F4146

const (
	VersionMajor byte = 1
	VersionMinor byte = 0
)

type VersionPatch = uint16

// ParseError distinguishes two decode failure modes: "invalid format"
// and "unsupported version". Read failures, truncated input included,
// are reported as invalid format; there is no separate I/O-error kind.
type ParseError struct {
	Kind    string
	Detail  string
}

func (e *ParseError) Error() string {
	if e.Detail == "" {
		return e.Kind
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func invalidFormat(detail string) error {
	return &ParseError{Kind: "invalid format", Detail: detail}
}

func unsupportedVersion(v byte) error {
	return &ParseError{Kind: "unsupported version", Detail: fmt.Sprintf("%d", v)}
}

// Encode writes a module in the §4.8 binary layout: magic, version
// triple, length-prefixed name, length-prefixed constant pool, and a
// length-prefixed instruction sequence with a 1-byte opcode followed by
// N 4-byte big-endian operands per instruction.
func Encode(w io.Writer, m *Module) error {
	buf := &bytes.Buffer{}

	if err := binary.Write(buf, binary.BigEndian, Magic); err != nil {
		return err
	}
	buf.WriteByte(VersionMajor)
	buf.WriteByte(VersionMinor)
	if err := binary.Write(buf, binary.BigEndian, uint16(0)); err != nil { // patch
		return err
	}

	nameBytes := []byte(m.Name)
	if err := binary.Write(buf, binary.BigEndian, uint32(len(nameBytes))); err != nil {
		return err
	}
	buf.Write(nameBytes)

	if err := binary.Write(buf, binary.BigEndian, uint32(len(m.Constants))); err != nil {
		return err
	}
	for _, c := range m.Constants {
		if err := encodeConstant(buf, c); err != nil {
			return err
		}
	}

	if err := binary.Write(buf, binary.BigEndian, uint32(len(m.Instructions))); err != nil {
		return err
	}
	for _, instr := range m.Instructions {
		buf.WriteByte(byte(instr.Opcode))
		for _, operand := range instr.Operands {
			if err := binary.Write(buf, binary.BigEndian, operand); err != nil {
				return err
			}
		}
	}

	_, err := w.Write(buf.Bytes())
	return err
}

func encodeConstant(buf *bytes.Buffer, c Constant) error {
	buf.WriteByte(byte(c.Kind))
	switch c.Kind {
	case ConstNull:
	case ConstInteger:
		return binary.Write(buf, binary.BigEndian, c.Integer)
	case ConstFloat:
		return binary.Write(buf, binary.BigEndian, c.Float)
	case ConstString:
		b := []byte(c.String)
		if err := binary.Write(buf, binary.BigEndian, uint32(len(b))); err != nil {
			return err
		}
		buf.Write(b)
	case ConstBoolean:
		v := byte(0)
		if c.Boolean {
			v = 1
		}
		buf.WriteByte(v)
	}
	return nil
}

// Decode reads a module in the §4.8 layout. The address map records,
// for every instruction, the byte offset its opcode byte started at
// within the code page -- a decode-time convenience for tools that
// assembled jump targets as byte addresses rather than instruction
// indices. The interpreter itself addresses instructions by index.
func Decode(r io.Reader) (*Module, error) {
	br := newByteReader(r)

	var magic uint32
	if err := br.readBE(&magic); err != nil {
		return nil, invalidFormat("truncated magic")
	}
	if magic != Magic {
		return nil, invalidFormat("bad magic number")
	}

	major, err := br.readByte()
	if err != nil {
		return nil, invalidFormat("truncated version")
	}
	if major != VersionMajor {
		return nil, unsupportedVersion(major)
	}
	if _, err := br.readByte(); err != nil { // minor
		return nil, invalidFormat("truncated version")
	}
	var patch uint16
	if err := br.readBE(&patch); err != nil {
		return nil, invalidFormat("truncated version")
	}

	var nameLen uint32
	if err := br.readBE(&nameLen); err != nil {
		return nil, invalidFormat("truncated module name length")
	}
	nameBytes, err := br.readN(int(nameLen))
	if err != nil {
		return nil, invalidFormat("truncated module name")
	}

	m := NewModule(string(nameBytes))

	var constCount uint32
	if err := br.readBE(&constCount); err != nil {
		return nil, invalidFormat("truncated constant pool length")
	}
	for i := uint32(0); i < constCount; i++ {
		c, err := decodeConstant(br)
		if err != nil {
			return nil, err
		}
		m.Constants = append(m.Constants, c)
	}

	var instrCount uint32
	if err := br.readBE(&instrCount); err != nil {
		return nil, invalidFormat("truncated instruction count")
	}

	var address uint32
	codePage := &bytes.Buffer{}
	for i := uint32(0); i < instrCount; i++ {
		m.AddressMap[address] = int(i)

		opByte, err := br.readByte()
		if err != nil {
			return nil, invalidFormat("truncated instruction stream")
		}
		codePage.WriteByte(opByte)
		op := OpCode(opByte)
		n := op.NumOperands()

		instr := NewInstruction(op)
		for j := 0; j < n; j++ {
			var operand uint32
			if err := br.readBE(&operand); err != nil {
				return nil, invalidFormat("truncated operand")
			}
			var opBytes [4]byte
			binary.BigEndian.PutUint32(opBytes[:], operand)
			codePage.Write(opBytes[:])
			instr = instr.WithOperand(operand)
		}
		m.Instructions = append(m.Instructions, instr)
		address += 1 + uint32(n)*4
	}
	m.CodePage = codePage.Bytes()

	return m, nil
}

func decodeConstant(br *byteReader) (Constant, error) {
	tag, err := br.readByte()
	if err != nil {
		return Constant{}, invalidFormat("truncated constant tag")
	}
	switch ConstantKind(tag) {
	case ConstNull:
		return NullConstant(), nil
	case ConstInteger:
		var v int64
		if err := br.readBE(&v); err != nil {
			return Constant{}, invalidFormat("truncated integer constant")
		}
		return IntegerConstant(v), nil
	case ConstFloat:
		var v float64
		if err := br.readBE(&v); err != nil {
			return Constant{}, invalidFormat("truncated float constant")
		}
		return FloatConstant(v), nil
	case ConstString:
		var n uint32
		if err := br.readBE(&n); err != nil {
			return Constant{}, invalidFormat("truncated string constant length")
		}
		b, err := br.readN(int(n))
		if err != nil {
			return Constant{}, invalidFormat("truncated string constant")
		}
		return StringConstant(string(b)), nil
	case ConstBoolean:
		b, err := br.readByte()
		if err != nil {
			return Constant{}, invalidFormat("truncated boolean constant")
		}
		return BooleanConstant(b != 0), nil
	default:
		return Constant{}, invalidFormat(fmt.Sprintf("unknown constant tag %d", tag))
	}
}

// byteReader is a tiny helper over io.Reader for big-endian fixed-width
// reads without importing a buffered-reader dependency for this one use.
type byteReader struct {
	r io.Reader
}

func newByteReader(r io.Reader) *byteReader { return &byteReader{r: r} }

func (b *byteReader) readByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(b.r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (b *byteReader) readN(n int) ([]byte, error) {
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	if _, err := io.ReadFull(b.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (b *byteReader) readBE(v interface{}) error {
	return binary.Read(b.r, binary.BigEndian, v)
}
