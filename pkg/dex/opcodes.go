package dex

import "fmt"

// Opcode is a Dalvik instruction opcode.
type Opcode uint8

// Format is the Dalvik instruction format; it fixes the encoded length and
// the operand shape.
type Format int

const (
	Fmt10x Format = iota
	Fmt12x
	Fmt11n
	Fmt11x
	Fmt10t
	Fmt20t
	Fmt22x
	Fmt21t
	Fmt21s
	Fmt21h
	Fmt21c
	Fmt23x
	Fmt22b
	Fmt22t
	Fmt22s
	Fmt22c
	Fmt32x
	Fmt30t
	Fmt31t
	Fmt31i
	Fmt31c
	Fmt35c
	Fmt3rc
	Fmt51l
)

// RefKind says which constant-pool section a 21c/22c/31c/35c/3rc operand
// indexes.
type RefKind int

const (
	RefNone RefKind = iota
	RefString
	RefType
	RefField
	RefMethod
)

type OpInfo struct {
	Name   string
	Format Format
	Ref    RefKind
}

var formatUnits = [...]int{
	Fmt10x: 1, Fmt12x: 1, Fmt11n: 1, Fmt11x: 1, Fmt10t: 1,
	Fmt20t: 2, Fmt22x: 2, Fmt21t: 2, Fmt21s: 2, Fmt21h: 2, Fmt21c: 2,
	Fmt23x: 2, Fmt22b: 2, Fmt22t: 2, Fmt22s: 2, Fmt22c: 2,
	Fmt32x: 3, Fmt30t: 3, Fmt31t: 3, Fmt31i: 3, Fmt31c: 3, Fmt35c: 3, Fmt3rc: 3,
	Fmt51l: 5,
}

// Units is the encoded length of the format in 16-bit code units.
func (f Format) Units() int { return formatUnits[f] }

const (
	OpNop                Opcode = 0x00
	OpMove               Opcode = 0x01
	OpMoveFrom16         Opcode = 0x02
	OpMove16             Opcode = 0x03
	OpMoveWide           Opcode = 0x04
	OpMoveWideFrom16     Opcode = 0x05
	OpMoveWide16         Opcode = 0x06
	OpMoveObject         Opcode = 0x07
	OpMoveObjectFrom16   Opcode = 0x08
	OpMoveObject16       Opcode = 0x09
	OpMoveResult         Opcode = 0x0a
	OpMoveResultWide     Opcode = 0x0b
	OpMoveResultObject   Opcode = 0x0c
	OpMoveException      Opcode = 0x0d
	OpReturnVoid         Opcode = 0x0e
	OpReturn             Opcode = 0x0f
	OpReturnWide         Opcode = 0x10
	OpReturnObject       Opcode = 0x11
	OpConst4             Opcode = 0x12
	OpConst16            Opcode = 0x13
	OpConst              Opcode = 0x14
	OpConstHigh16        Opcode = 0x15
	OpConstWide16        Opcode = 0x16
	OpConstWide32        Opcode = 0x17
	OpConstWide          Opcode = 0x18
	OpConstWideHigh16    Opcode = 0x19
	OpConstString        Opcode = 0x1a
	OpConstStringJumbo   Opcode = 0x1b
	OpConstClass         Opcode = 0x1c
	OpMonitorEnter       Opcode = 0x1d
	OpMonitorExit        Opcode = 0x1e
	OpCheckCast          Opcode = 0x1f
	OpInstanceOf         Opcode = 0x20
	OpArrayLength        Opcode = 0x21
	OpNewInstance        Opcode = 0x22
	OpNewArray           Opcode = 0x23
	OpFilledNewArray     Opcode = 0x24
	OpFilledNewArrayRng  Opcode = 0x25
	OpFillArrayData      Opcode = 0x26
	OpThrow              Opcode = 0x27
	OpGoto               Opcode = 0x28
	OpGoto16             Opcode = 0x29
	OpGoto32             Opcode = 0x2a
	OpPackedSwitch       Opcode = 0x2b
	OpSparseSwitch       Opcode = 0x2c
	OpCmplFloat          Opcode = 0x2d
	OpCmpgFloat          Opcode = 0x2e
	OpCmplDouble         Opcode = 0x2f
	OpCmpgDouble         Opcode = 0x30
	OpCmpLong            Opcode = 0x31
	OpIfEq               Opcode = 0x32
	OpIfLe               Opcode = 0x37
	OpIfEqz              Opcode = 0x38
	OpIfLez              Opcode = 0x3d
	OpAget               Opcode = 0x44
	OpAgetObject         Opcode = 0x46
	OpAgetShort          Opcode = 0x4a
	OpAput               Opcode = 0x4b
	OpAputShort          Opcode = 0x51
	OpIget               Opcode = 0x52
	OpIgetObject         Opcode = 0x54
	OpIgetShort          Opcode = 0x58
	OpIput               Opcode = 0x59
	OpIputShort          Opcode = 0x5f
	OpSget               Opcode = 0x60
	OpSgetShort          Opcode = 0x66
	OpSput               Opcode = 0x67
	OpSputShort          Opcode = 0x6d
	OpInvokeVirtual      Opcode = 0x6e
	OpInvokeSuper        Opcode = 0x6f
	OpInvokeDirect       Opcode = 0x70
	OpInvokeStatic       Opcode = 0x71
	OpInvokeInterface    Opcode = 0x72
	OpInvokeVirtualRange Opcode = 0x74
	OpInvokeInterfaceRng Opcode = 0x78
	OpNegInt             Opcode = 0x7b
	OpIntToShort         Opcode = 0x8f
	OpAddInt             Opcode = 0x90
	OpRemDouble          Opcode = 0xaf
	OpAddInt2Addr        Opcode = 0xb0
	OpRemDouble2Addr     Opcode = 0xcf
	OpAddIntLit16        Opcode = 0xd0
	OpXorIntLit16        Opcode = 0xd7
	OpAddIntLit8         Opcode = 0xd8
	OpUshrIntLit8        Opcode = 0xe2
)

var opcodeTable = map[Opcode]OpInfo{
	0x00: {"nop", Fmt10x, RefNone},
	0x01: {"move", Fmt12x, RefNone},
	0x02: {"move/from16", Fmt22x, RefNone},
	0x03: {"move/16", Fmt32x, RefNone},
	0x04: {"move-wide", Fmt12x, RefNone},
	0x05: {"move-wide/from16", Fmt22x, RefNone},
	0x06: {"move-wide/16", Fmt32x, RefNone},
	0x07: {"move-object", Fmt12x, RefNone},
	0x08: {"move-object/from16", Fmt22x, RefNone},
	0x09: {"move-object/16", Fmt32x, RefNone},
	0x0a: {"move-result", Fmt11x, RefNone},
	0x0b: {"move-result-wide", Fmt11x, RefNone},
	0x0c: {"move-result-object", Fmt11x, RefNone},
	0x0d: {"move-exception", Fmt11x, RefNone},
	0x0e: {"return-void", Fmt10x, RefNone},
	0x0f: {"return", Fmt11x, RefNone},
	0x10: {"return-wide", Fmt11x, RefNone},
	0x11: {"return-object", Fmt11x, RefNone},
	0x12: {"const/4", Fmt11n, RefNone},
	0x13: {"const/16", Fmt21s, RefNone},
	0x14: {"const", Fmt31i, RefNone},
	0x15: {"const/high16", Fmt21h, RefNone},
	0x16: {"const-wide/16", Fmt21s, RefNone},
	0x17: {"const-wide/32", Fmt31i, RefNone},
	0x18: {"const-wide", Fmt51l, RefNone},
	0x19: {"const-wide/high16", Fmt21h, RefNone},
	0x1a: {"const-string", Fmt21c, RefString},
	0x1b: {"const-string/jumbo", Fmt31c, RefString},
	0x1c: {"const-class", Fmt21c, RefType},
	0x1d: {"monitor-enter", Fmt11x, RefNone},
	0x1e: {"monitor-exit", Fmt11x, RefNone},
	0x1f: {"check-cast", Fmt21c, RefType},
	0x20: {"instance-of", Fmt22c, RefType},
	0x21: {"array-length", Fmt12x, RefNone},
	0x22: {"new-instance", Fmt21c, RefType},
	0x23: {"new-array", Fmt22c, RefType},
	0x24: {"filled-new-array", Fmt35c, RefType},
	0x25: {"filled-new-array/range", Fmt3rc, RefType},
	0x26: {"fill-array-data", Fmt31t, RefNone},
	0x27: {"throw", Fmt11x, RefNone},
	0x28: {"goto", Fmt10t, RefNone},
	0x29: {"goto/16", Fmt20t, RefNone},
	0x2a: {"goto/32", Fmt30t, RefNone},
	0x2b: {"packed-switch", Fmt31t, RefNone},
	0x2c: {"sparse-switch", Fmt31t, RefNone},
	0x2d: {"cmpl-float", Fmt23x, RefNone},
	0x2e: {"cmpg-float", Fmt23x, RefNone},
	0x2f: {"cmpl-double", Fmt23x, RefNone},
	0x30: {"cmpg-double", Fmt23x, RefNone},
	0x31: {"cmp-long", Fmt23x, RefNone},
	0x32: {"if-eq", Fmt22t, RefNone},
	0x33: {"if-ne", Fmt22t, RefNone},
	0x34: {"if-lt", Fmt22t, RefNone},
	0x35: {"if-ge", Fmt22t, RefNone},
	0x36: {"if-gt", Fmt22t, RefNone},
	0x37: {"if-le", Fmt22t, RefNone},
	0x38: {"if-eqz", Fmt21t, RefNone},
	0x39: {"if-nez", Fmt21t, RefNone},
	0x3a: {"if-ltz", Fmt21t, RefNone},
	0x3b: {"if-gez", Fmt21t, RefNone},
	0x3c: {"if-gtz", Fmt21t, RefNone},
	0x3d: {"if-lez", Fmt21t, RefNone},
	0x44: {"aget", Fmt23x, RefNone},
	0x45: {"aget-wide", Fmt23x, RefNone},
	0x46: {"aget-object", Fmt23x, RefNone},
	0x47: {"aget-boolean", Fmt23x, RefNone},
	0x48: {"aget-byte", Fmt23x, RefNone},
	0x49: {"aget-char", Fmt23x, RefNone},
	0x4a: {"aget-short", Fmt23x, RefNone},
	0x4b: {"aput", Fmt23x, RefNone},
	0x4c: {"aput-wide", Fmt23x, RefNone},
	0x4d: {"aput-object", Fmt23x, RefNone},
	0x4e: {"aput-boolean", Fmt23x, RefNone},
	0x4f: {"aput-byte", Fmt23x, RefNone},
	0x50: {"aput-char", Fmt23x, RefNone},
	0x51: {"aput-short", Fmt23x, RefNone},
	0x52: {"iget", Fmt22c, RefField},
	0x53: {"iget-wide", Fmt22c, RefField},
	0x54: {"iget-object", Fmt22c, RefField},
	0x55: {"iget-boolean", Fmt22c, RefField},
	0x56: {"iget-byte", Fmt22c, RefField},
	0x57: {"iget-char", Fmt22c, RefField},
	0x58: {"iget-short", Fmt22c, RefField},
	0x59: {"iput", Fmt22c, RefField},
	0x5a: {"iput-wide", Fmt22c, RefField},
	0x5b: {"iput-object", Fmt22c, RefField},
	0x5c: {"iput-boolean", Fmt22c, RefField},
	0x5d: {"iput-byte", Fmt22c, RefField},
	0x5e: {"iput-char", Fmt22c, RefField},
	0x5f: {"iput-short", Fmt22c, RefField},
	0x60: {"sget", Fmt21c, RefField},
	0x61: {"sget-wide", Fmt21c, RefField},
	0x62: {"sget-object", Fmt21c, RefField},
	0x63: {"sget-boolean", Fmt21c, RefField},
	0x64: {"sget-byte", Fmt21c, RefField},
	0x65: {"sget-char", Fmt21c, RefField},
	0x66: {"sget-short", Fmt21c, RefField},
	0x67: {"sput", Fmt21c, RefField},
	0x68: {"sput-wide", Fmt21c, RefField},
	0x69: {"sput-object", Fmt21c, RefField},
	0x6a: {"sput-boolean", Fmt21c, RefField},
	0x6b: {"sput-byte", Fmt21c, RefField},
	0x6c: {"sput-char", Fmt21c, RefField},
	0x6d: {"sput-short", Fmt21c, RefField},
	0x6e: {"invoke-virtual", Fmt35c, RefMethod},
	0x6f: {"invoke-super", Fmt35c, RefMethod},
	0x70: {"invoke-direct", Fmt35c, RefMethod},
	0x71: {"invoke-static", Fmt35c, RefMethod},
	0x72: {"invoke-interface", Fmt35c, RefMethod},
	0x74: {"invoke-virtual/range", Fmt3rc, RefMethod},
	0x75: {"invoke-super/range", Fmt3rc, RefMethod},
	0x76: {"invoke-direct/range", Fmt3rc, RefMethod},
	0x77: {"invoke-static/range", Fmt3rc, RefMethod},
	0x78: {"invoke-interface/range", Fmt3rc, RefMethod},
	0x7b: {"neg-int", Fmt12x, RefNone},
	0x7c: {"not-int", Fmt12x, RefNone},
	0x7d: {"neg-long", Fmt12x, RefNone},
	0x7e: {"not-long", Fmt12x, RefNone},
	0x7f: {"neg-float", Fmt12x, RefNone},
	0x80: {"neg-double", Fmt12x, RefNone},
	0x81: {"int-to-long", Fmt12x, RefNone},
	0x82: {"int-to-float", Fmt12x, RefNone},
	0x83: {"int-to-double", Fmt12x, RefNone},
	0x84: {"long-to-int", Fmt12x, RefNone},
	0x85: {"long-to-float", Fmt12x, RefNone},
	0x86: {"long-to-double", Fmt12x, RefNone},
	0x87: {"float-to-int", Fmt12x, RefNone},
	0x88: {"float-to-long", Fmt12x, RefNone},
	0x89: {"float-to-double", Fmt12x, RefNone},
	0x8a: {"double-to-int", Fmt12x, RefNone},
	0x8b: {"double-to-long", Fmt12x, RefNone},
	0x8c: {"double-to-float", Fmt12x, RefNone},
	0x8d: {"int-to-byte", Fmt12x, RefNone},
	0x8e: {"int-to-char", Fmt12x, RefNone},
	0x8f: {"int-to-short", Fmt12x, RefNone},
	0x90: {"add-int", Fmt23x, RefNone},
	0x91: {"sub-int", Fmt23x, RefNone},
	0x92: {"mul-int", Fmt23x, RefNone},
	0x93: {"div-int", Fmt23x, RefNone},
	0x94: {"rem-int", Fmt23x, RefNone},
	0x95: {"and-int", Fmt23x, RefNone},
	0x96: {"or-int", Fmt23x, RefNone},
	0x97: {"xor-int", Fmt23x, RefNone},
	0x98: {"shl-int", Fmt23x, RefNone},
	0x99: {"shr-int", Fmt23x, RefNone},
	0x9a: {"ushr-int", Fmt23x, RefNone},
	0x9b: {"add-long", Fmt23x, RefNone},
	0x9c: {"sub-long", Fmt23x, RefNone},
	0x9d: {"mul-long", Fmt23x, RefNone},
	0x9e: {"div-long", Fmt23x, RefNone},
	0x9f: {"rem-long", Fmt23x, RefNone},
	0xa0: {"and-long", Fmt23x, RefNone},
	0xa1: {"or-long", Fmt23x, RefNone},
	0xa2: {"xor-long", Fmt23x, RefNone},
	0xa3: {"shl-long", Fmt23x, RefNone},
	0xa4: {"shr-long", Fmt23x, RefNone},
	0xa5: {"ushr-long", Fmt23x, RefNone},
	0xa6: {"add-float", Fmt23x, RefNone},
	0xa7: {"sub-float", Fmt23x, RefNone},
	0xa8: {"mul-float", Fmt23x, RefNone},
	0xa9: {"div-float", Fmt23x, RefNone},
	0xaa: {"rem-float", Fmt23x, RefNone},
	0xab: {"add-double", Fmt23x, RefNone},
	0xac: {"sub-double", Fmt23x, RefNone},
	0xad: {"mul-double", Fmt23x, RefNone},
	0xae: {"div-double", Fmt23x, RefNone},
	0xaf: {"rem-double", Fmt23x, RefNone},
	0xb0: {"add-int/2addr", Fmt12x, RefNone},
	0xb1: {"sub-int/2addr", Fmt12x, RefNone},
	0xb2: {"mul-int/2addr", Fmt12x, RefNone},
	0xb3: {"div-int/2addr", Fmt12x, RefNone},
	0xb4: {"rem-int/2addr", Fmt12x, RefNone},
	0xb5: {"and-int/2addr", Fmt12x, RefNone},
	0xb6: {"or-int/2addr", Fmt12x, RefNone},
	0xb7: {"xor-int/2addr", Fmt12x, RefNone},
	0xb8: {"shl-int/2addr", Fmt12x, RefNone},
	0xb9: {"shr-int/2addr", Fmt12x, RefNone},
	0xba: {"ushr-int/2addr", Fmt12x, RefNone},
	0xbb: {"add-long/2addr", Fmt12x, RefNone},
	0xbc: {"sub-long/2addr", Fmt12x, RefNone},
	0xbd: {"mul-long/2addr", Fmt12x, RefNone},
	0xbe: {"div-long/2addr", Fmt12x, RefNone},
	0xbf: {"rem-long/2addr", Fmt12x, RefNone},
	0xc0: {"and-long/2addr", Fmt12x, RefNone},
	0xc1: {"or-long/2addr", Fmt12x, RefNone},
	0xc2: {"xor-long/2addr", Fmt12x, RefNone},
	0xc3: {"shl-long/2addr", Fmt12x, RefNone},
	0xc4: {"shr-long/2addr", Fmt12x, RefNone},
	0xc5: {"ushr-long/2addr", Fmt12x, RefNone},
	0xc6: {"add-float/2addr", Fmt12x, RefNone},
	0xc7: {"sub-float/2addr", Fmt12x, RefNone},
	0xc8: {"mul-float/2addr", Fmt12x, RefNone},
	0xc9: {"div-float/2addr", Fmt12x, RefNone},
	0xca: {"rem-float/2addr", Fmt12x, RefNone},
	0xcb: {"add-double/2addr", Fmt12x, RefNone},
	0xcc: {"sub-double/2addr", Fmt12x, RefNone},
	0xcd: {"mul-double/2addr", Fmt12x, RefNone},
	0xce: {"div-double/2addr", Fmt12x, RefNone},
	0xcf: {"rem-double/2addr", Fmt12x, RefNone},
	0xd0: {"add-int/lit16", Fmt22s, RefNone},
	0xd1: {"rsub-int", Fmt22s, RefNone},
	0xd2: {"mul-int/lit16", Fmt22s, RefNone},
	0xd3: {"div-int/lit16", Fmt22s, RefNone},
	0xd4: {"rem-int/lit16", Fmt22s, RefNone},
	0xd5: {"and-int/lit16", Fmt22s, RefNone},
	0xd6: {"or-int/lit16", Fmt22s, RefNone},
	0xd7: {"xor-int/lit16", Fmt22s, RefNone},
	0xd8: {"add-int/lit8", Fmt22b, RefNone},
	0xd9: {"rsub-int/lit8", Fmt22b, RefNone},
	0xda: {"mul-int/lit8", Fmt22b, RefNone},
	0xdb: {"div-int/lit8", Fmt22b, RefNone},
	0xdc: {"rem-int/lit8", Fmt22b, RefNone},
	0xdd: {"and-int/lit8", Fmt22b, RefNone},
	0xde: {"or-int/lit8", Fmt22b, RefNone},
	0xdf: {"xor-int/lit8", Fmt22b, RefNone},
	0xe0: {"shl-int/lit8", Fmt22b, RefNone},
	0xe1: {"shr-int/lit8", Fmt22b, RefNone},
	0xe2: {"ushr-int/lit8", Fmt22b, RefNone},
}

var opcodeByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeTable))
	for op, info := range opcodeTable {
		m[info.Name] = op
	}
	return m
}()

// Info returns the table entry for op; ok is false for unassigned opcodes.
func (op Opcode) Info() (OpInfo, bool) { info, ok := opcodeTable[op]; return info, ok }

func (op Opcode) String() string {
	if info, ok := opcodeTable[op]; ok { return info.Name }
	return fmt.Sprintf("op_%02x", uint8(op))
}

// LookupOpcode resolves a mnemonic such as "add-int/lit8".
func LookupOpcode(name string) (Opcode, bool) { op, ok := opcodeByName[name]; return op, ok }
