package bytecode

// ConstantKind tags the constant pool encoding.
type ConstantKind byte

const (
	ConstNull ConstantKind = iota
	ConstInteger
	ConstFloat
	ConstString
	ConstBoolean
)

// Constant is one constant pool entry, decoded from its tagged binary
// encoding (§4.8: 0=null, 1=i64, 2=f64, 3=string, 4=bool).
type Constant struct {
	Kind    ConstantKind
	Integer int64
	Float   float64
	String  string
	Boolean bool
}

func NullConstant() Constant             { return Constant{Kind: ConstNull} }
func IntegerConstant(i int64) Constant   { return Constant{Kind: ConstInteger, Integer: i} }
func FloatConstant(f float64) Constant   { return Constant{Kind: ConstFloat, Float: f} }
func StringConstant(s string) Constant   { return Constant{Kind: ConstString, String: s} }
func BooleanConstant(b bool) Constant    { return Constant{Kind: ConstBoolean, Boolean: b} }

// EndpointRecord is one row of the registration table the VM exposes to
// its host (spec §6): the HTTP method and path an incoming request is
// matched against, and the instruction range of the compiled handler.
type EndpointRecord struct {
	Method         string
	Path           string
	HandlerStartPC int
	HandlerEndPC   int
}

// Module is a compiled unit: a name, its instruction sequence, constant
// pool, the raw encoded byte page (kept so the address map can be
// recomputed/inspected), and a decode-time address map translating
// assembled byte offsets to instruction indices.
type Module struct {
	Name         string
	CodePage     []byte
	Instructions []Instruction
	Constants    []Constant
	AddressMap   map[uint32]int
	Endpoints    []EndpointRecord
}

func NewModule(name string) *Module {
	return &Module{
		Name:       name,
		AddressMap: make(map[uint32]int),
	}
}

func (m *Module) AddConstant(c Constant) uint32 {
	m.Constants = append(m.Constants, c)
	return uint32(len(m.Constants) - 1)
}

func (m *Module) Emit(instr Instruction) int {
	idx := len(m.Instructions)
	m.Instructions = append(m.Instructions, instr)
	return idx
}
