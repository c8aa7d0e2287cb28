package dex

import (
	"fmt"
	"strings"
)

type AccessFlags uint32

const (
	AccPublic               AccessFlags = 0x1
	AccPrivate              AccessFlags = 0x2
	AccProtected            AccessFlags = 0x4
	AccStatic               AccessFlags = 0x8
	AccFinal                AccessFlags = 0x10
	AccSynchronized         AccessFlags = 0x20
	AccBridge               AccessFlags = 0x40
	AccVarargs              AccessFlags = 0x80
	AccNative               AccessFlags = 0x100
	AccInterface            AccessFlags = 0x200
	AccAbstract             AccessFlags = 0x400
	AccStrict               AccessFlags = 0x800
	AccSynthetic            AccessFlags = 0x1000
	AccAnnotation           AccessFlags = 0x2000
	AccEnum                 AccessFlags = 0x4000
	AccConstructor          AccessFlags = 0x10000
	AccDeclaredSynchronized AccessFlags = 0x20000
)

var accessNames = map[string]AccessFlags{
	"public": AccPublic, "private": AccPrivate, "protected": AccProtected,
	"static": AccStatic, "final": AccFinal, "synchronized": AccSynchronized,
	"bridge": AccBridge, "varargs": AccVarargs, "native": AccNative,
	"interface": AccInterface, "abstract": AccAbstract, "strictfp": AccStrict,
	"synthetic": AccSynthetic, "annotation": AccAnnotation, "enum": AccEnum,
	"constructor": AccConstructor, "declared-synchronized": AccDeclaredSynchronized,
}

// ParseAccessFlags accepts a space separated list such as "public static".
func ParseAccessFlags(s string) (AccessFlags, error) {
	var flags AccessFlags
	for _, word := range strings.Fields(s) {
		f, ok := accessNames[word]
		if !ok { return 0, fmt.Errorf("unknown access flag %q", word) }
		flags |= f
	}
	return flags, nil
}

func (f AccessFlags) Has(flag AccessFlags) bool { return f&flag != 0 }

type FieldRef struct{ Class, Name, Type string }

func (f *FieldRef) String() string { return f.Class + "->" + f.Name + ":" + f.Type }

type MethodRef struct {
	Class, Name, Proto string
	Params             []string
	Return             string
}

func (m *MethodRef) String() string { return m.Class + "->" + m.Name + m.Proto }

// SwitchData holds the decoded payload of a packed or sparse switch; each
// target is relative to the switch instruction, in code units.
type SwitchData struct {
	Keys    []int32
	Targets []int
}

// ArrayData is a decoded fill-array-data payload.
type ArrayData struct {
	ElementWidth int
	Size         int
	Data         []byte
}

// Instruction is one decoded Dalvik instruction. Register operands keep the
// vA/vB/vC naming of the format tables; range invocations are expanded into
// Args.
type Instruction struct {
	Op      Opcode
	Offset  int   // code units from method start
	A, B, C int
	Literal int64 // sign-extended; the high16 forms hold the shifted value
	Target  int   // branch delta in code units
	Args    []int
	String  string
	Type    string
	Field   *FieldRef
	Method  *MethodRef
	Switch  *SwitchData
	Array   *ArrayData
	Text    string // operand text as written, for traces
}

func (i *Instruction) Name() string { return i.Op.String() }

// Units is the encoded length in code units.
func (i *Instruction) Units() int {
	info, ok := i.Op.Info()
	if !ok { return 1 }
	return info.Format.Units()
}

func (i *Instruction) NextOffset() int { return i.Offset + i.Units() }

type Handler struct {
	Type   string
	Target int
	Block  *Block
}

// ExceptionAnalysis describes one try item: the protected range and its
// handlers in catch-clause order. Blocks covered by the same try item share
// the same *ExceptionAnalysis.
type ExceptionAnalysis struct {
	Start, End int
	Handlers   []Handler
}

type Block struct {
	Start, End   int
	Instructions []*Instruction
	Succs        []*Block
	Exception    *ExceptionAnalysis
}

func (b *Block) String() string { return fmt.Sprintf("block@%x", b.Start) }

func (b *Block) Last() *Instruction {
	if len(b.Instructions) == 0 { return nil }
	return b.Instructions[len(b.Instructions)-1]
}

type Class struct {
	Name        string
	Flags       AccessFlags
	Annotations []string
	Methods     []*Method
}

type Method struct {
	Class       *Class
	Name        string
	Proto       string
	Params      []string
	Return      string
	Flags       AccessFlags
	Registers   int
	Ins         int
	Annotations []string
	Code        []*Instruction
	Tries       []*ExceptionAnalysis
	Blocks      []*Block
}

func (m *Method) IsStatic() bool    { return m.Flags.Has(AccStatic) }
func (m *Method) IsNative() bool    { return m.Flags.Has(AccNative) }
func (m *Method) IsSynthetic() bool { return m.Flags.Has(AccSynthetic) }
func (m *Method) HasCode() bool     { return len(m.Blocks) > 0 }

// Entry is the block at offset zero.
func (m *Method) Entry() *Block {
	if len(m.Blocks) == 0 { return nil }
	return m.Blocks[0]
}

// FullName concatenates the triple: "Lcom/a/B;foo(I)V".
func (m *Method) FullName() string { return m.Class.Name + m.Name + m.Proto }

// Signature is the triple without the return type.
func (m *Method) Signature() string {
	proto := m.Proto
	if i := strings.IndexByte(proto, ')'); i >= 0 { proto = proto[:i+1] }
	return m.Class.Name + m.Name + proto
}

func (m *Method) JniName() string { return JniLongName(m.Class.Name, m.Name, m.Proto) }

func (m *Method) String() string { return m.Class.Name + "->" + m.Name + m.Proto }

// File is a loaded unit of classes.
type File struct {
	Classes []*Class
}

func (f *File) Methods() []*Method {
	var out []*Method
	for _, c := range f.Classes {
		out = append(out, c.Methods...)
	}
	return out
}
