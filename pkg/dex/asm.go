package dex

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// The assembler reads smali-flavoured method bodies:
//
//	:loop
//	add-int/lit8 v0, v0, 1
//	if-lt v0, p1, :loop
//	invoke-virtual {p0, v0}, Lcom/a/B;->f(I)V
//	packed-switch v0, {0: :a, 1: :b}
//	fill-array-data v1, 4, {1, 2, 3}
//	.catch Ljava/io/IOException; {:try_start .. :try_end} :handler
//	.catchall {:try_start .. :try_end} :handler
//
// Registers may be named vN or pN (parameter registers, counted from the
// top of the frame).

type pendingLabel struct {
	ins   *Instruction
	label string
	slot  int // -1 for the branch target, else switch case index
}

type pendingCatch struct {
	typ, start, end, handler string
	all                      bool
	line                     int
}

type assembler struct {
	regs, ins int
	offset    int
	code      []*Instruction
	labels    map[string]int
	pending   []pendingLabel
	catches   []pendingCatch
}

// Assemble decodes the body text of a method with the given frame size and
// incoming-argument window.
func Assemble(text string, registers, ins int) ([]*Instruction, []*ExceptionAnalysis, error) {
	a := &assembler{regs: registers, ins: ins, labels: make(map[string]int)}
	for n, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(stripComment(raw))
		if line == "" { continue }
		if err := a.line(line, n+1); err != nil { return nil, nil, errors.Wrapf(err, "line %d", n+1) }
	}
	for _, p := range a.pending {
		off, ok := a.labels[p.label]
		if !ok { return nil, nil, errors.Errorf("undefined label %s", p.label) }
		if p.slot < 0 {
			p.ins.Target = off - p.ins.Offset
		} else {
			p.ins.Switch.Targets[p.slot] = off - p.ins.Offset
		}
	}
	tries, err := a.tries()
	if err != nil { return nil, nil, err }
	return a.code, tries, nil
}

func stripComment(s string) string {
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\': if inQuote { i++ }
		case '"': inQuote = !inQuote
		case '#': if !inQuote { return s[:i] }
		}
	}
	return s
}

func (a *assembler) line(line string, n int) error {
	if strings.HasPrefix(line, ":") {
		if _, dup := a.labels[line]; dup { return errors.Errorf("duplicate label %s", line) }
		a.labels[line] = a.offset
		return nil
	}
	if strings.HasPrefix(line, ".catch") { return a.catch(line, n) }
	if strings.HasPrefix(line, ".") { return nil }

	mnemonic, rest, _ := strings.Cut(line, " ")
	op, ok := LookupOpcode(mnemonic)
	if !ok { return errors.Errorf("unknown instruction %q", mnemonic) }
	info, _ := op.Info()
	ins := &Instruction{Op: op, Offset: a.offset, Text: strings.TrimSpace(rest)}
	if err := a.operands(ins, info, splitOperands(rest)); err != nil {
		return errors.Wrapf(err, "%s", mnemonic)
	}
	a.code = append(a.code, ins)
	a.offset += info.Format.Units()
	return nil
}

// splitOperands splits on commas outside braces and string literals.
func splitOperands(s string) []string {
	var out []string
	depth, inQuote, start := 0, false, 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\\' && inQuote: i++
		case c == '"': inQuote = !inQuote
		case inQuote:
		case c == '{': depth++
		case c == '}': depth--
		case c == ',' && depth == 0:
			out = append(out, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(s[start:]); tail != "" || len(out) > 0 { out = append(out, tail) }
	return out
}

func (a *assembler) operands(ins *Instruction, info OpInfo, ops []string) error {
	want := map[Format]int{
		Fmt10x: 0, Fmt12x: 2, Fmt11n: 2, Fmt11x: 1, Fmt10t: 1, Fmt20t: 1, Fmt30t: 1,
		Fmt22x: 2, Fmt32x: 2, Fmt21t: 2, Fmt21s: 2, Fmt21h: 2, Fmt31i: 2, Fmt51l: 2,
		Fmt21c: 2, Fmt31c: 2, Fmt23x: 3, Fmt22b: 3, Fmt22s: 3, Fmt22t: 3, Fmt22c: 3,
		Fmt35c: 2, Fmt3rc: 2,
	}
	if n, ok := want[info.Format]; ok && len(ops) != n {
		return errors.Errorf("expected %d operands, got %d", n, len(ops))
	}
	var err error
	reg := func(s string) int {
		if err != nil { return 0 }
		var r int
		r, err = a.register(s)
		return r
	}
	lit := func(s string) int64 {
		if err != nil { return 0 }
		var v int64
		v, err = parseLiteral(s)
		return v
	}

	switch info.Format {
	case Fmt10x:
	case Fmt12x, Fmt22x, Fmt32x:
		ins.A, ins.B = reg(ops[0]), reg(ops[1])
	case Fmt11x:
		ins.A = reg(ops[0])
	case Fmt11n, Fmt21s, Fmt21h, Fmt31i, Fmt51l:
		ins.A, ins.Literal = reg(ops[0]), lit(ops[1])
	case Fmt10t, Fmt20t, Fmt30t:
		a.label(ins, ops[0], -1)
	case Fmt21t:
		ins.A = reg(ops[0])
		a.label(ins, ops[1], -1)
	case Fmt22t:
		ins.A, ins.B = reg(ops[0]), reg(ops[1])
		a.label(ins, ops[2], -1)
	case Fmt23x:
		ins.A, ins.B, ins.C = reg(ops[0]), reg(ops[1]), reg(ops[2])
	case Fmt22b, Fmt22s:
		ins.A, ins.B, ins.Literal = reg(ops[0]), reg(ops[1]), lit(ops[2])
	case Fmt21c, Fmt31c:
		ins.A = reg(ops[0])
		if err == nil { err = a.reference(ins, info.Ref, ops[1]) }
	case Fmt22c:
		ins.A, ins.B = reg(ops[0]), reg(ops[1])
		if err == nil { err = a.reference(ins, info.Ref, ops[2]) }
	case Fmt35c, Fmt3rc:
		if ins.Args, err = a.registerList(ops[0]); err == nil {
			err = a.reference(ins, info.Ref, ops[1])
		}
	case Fmt31t:
		if len(ops) < 2 { return errors.New("missing payload") }
		ins.A = reg(ops[0])
		if err == nil {
			if ins.Op == OpFillArrayData {
				err = a.arrayPayload(ins, ops[1:])
			} else {
				err = a.switchPayload(ins, ops[1:])
			}
		}
	}
	return err
}

func (a *assembler) label(ins *Instruction, s string, slot int) {
	a.pending = append(a.pending, pendingLabel{ins: ins, label: strings.TrimSpace(s), slot: slot})
}

func (a *assembler) register(s string) (int, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 { return 0, errors.Errorf("bad register %q", s) }
	n, err := strconv.Atoi(s[1:])
	if err != nil || n < 0 { return 0, errors.Errorf("bad register %q", s) }
	switch s[0] {
	case 'v':
		return n, nil
	case 'p':
		if n >= a.ins { return 0, errors.Errorf("parameter register %s out of range", s) }
		return a.regs - a.ins + n, nil
	}
	return 0, errors.Errorf("bad register %q", s)
}

func (a *assembler) registerList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return nil, errors.Errorf("bad register list %q", s)
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" { return nil, nil }
	if lo, hi, ok := strings.Cut(body, ".."); ok {
		first, err := a.register(lo)
		if err != nil { return nil, err }
		last, err := a.register(hi)
		if err != nil { return nil, err }
		if last < first { return nil, errors.Errorf("empty register range %q", s) }
		regs := make([]int, 0, last-first+1)
		for r := first; r <= last; r++ {
			regs = append(regs, r)
		}
		return regs, nil
	}
	var regs []int
	for _, part := range strings.Split(body, ",") {
		r, err := a.register(part)
		if err != nil { return nil, err }
		regs = append(regs, r)
	}
	return regs, nil
}

func (a *assembler) reference(ins *Instruction, kind RefKind, s string) error {
	s = strings.TrimSpace(s)
	switch kind {
	case RefString:
		str, err := strconv.Unquote(s)
		if err != nil { return errors.Errorf("bad string literal %s", s) }
		ins.String = str
	case RefType:
		if n, err := descriptorLen(s); err != nil || n != len(s) { return errors.Errorf("bad type %q", s) }
		ins.Type = s
	case RefField:
		cls, rest, ok := strings.Cut(s, "->")
		name, typ, ok2 := strings.Cut(rest, ":")
		if !ok || !ok2 { return errors.Errorf("bad field reference %q", s) }
		ins.Field = &FieldRef{Class: cls, Name: name, Type: typ}
	case RefMethod:
		ref, err := ParseMethodRef(s)
		if err != nil { return err }
		ins.Method = ref
	}
	return nil
}

// ParseMethodRef parses "Lcls;->name(params)ret".
func ParseMethodRef(s string) (*MethodRef, error) {
	cls, rest, ok := strings.Cut(s, "->")
	i := strings.IndexByte(rest, '(')
	if !ok || i <= 0 { return nil, errors.Errorf("bad method reference %q", s) }
	params, ret, err := ParseProto(rest[i:])
	if err != nil { return nil, err }
	return &MethodRef{Class: cls, Name: rest[:i], Proto: rest[i:], Params: params, Return: ret}, nil
}

func (a *assembler) switchPayload(ins *Instruction, ops []string) error {
	body, err := braced(strings.Join(ops, ","))
	if err != nil { return err }
	ins.Switch = &SwitchData{}
	for _, entry := range body {
		k, l, ok := strings.Cut(entry, ":")
		if !ok { return errors.Errorf("bad switch case %q", entry) }
		key, err := parseLiteral(k)
		if err != nil { return err }
		ins.Switch.Keys = append(ins.Switch.Keys, int32(key))
		ins.Switch.Targets = append(ins.Switch.Targets, 0)
		a.label(ins, ":"+strings.TrimPrefix(strings.TrimSpace(l), ":"), len(ins.Switch.Targets)-1)
	}
	return nil
}

func (a *assembler) arrayPayload(ins *Instruction, ops []string) error {
	if len(ops) != 2 { return errors.New("fill-array-data wants <width>, {values}") }
	width, err := parseLiteral(ops[0])
	if err != nil { return err }
	switch width {
	case 1, 2, 4, 8:
	default: return errors.Errorf("bad element width %d", width)
	}
	values, err := braced(ops[1])
	if err != nil { return err }
	data := &ArrayData{ElementWidth: int(width)}
	for _, v := range values {
		n, err := parseLiteral(v)
		if err != nil { return err }
		for i := 0; i < int(width); i++ {
			data.Data = append(data.Data, byte(uint64(n)>>(8*i)))
		}
		data.Size++
	}
	ins.Array = data
	return nil
}

func braced(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") { return nil, errors.Errorf("expected {...}, got %q", s) }
	var out []string
	for _, part := range strings.Split(s[1:len(s)-1], ",") {
		if part = strings.TrimSpace(part); part != "" { out = append(out, part) }
	}
	return out, nil
}

// parseLiteral accepts smali integer literals (with optional L/t/s suffix),
// and float literals ("1.5f" as float bits, "2.0" as double bits).
func parseLiteral(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" { return 0, errors.New("empty literal") }
	lower := strings.ToLower(s)
	isHex := strings.HasPrefix(strings.TrimPrefix(lower, "-"), "0x")
	if !isHex && (strings.ContainsAny(lower, ".e") || strings.HasSuffix(lower, "f") || strings.HasSuffix(lower, "d")) {
		switch {
		case strings.HasSuffix(lower, "f"):
			f, err := strconv.ParseFloat(lower[:len(lower)-1], 32)
			if err != nil { return 0, errors.Errorf("bad float literal %q", s) }
			return int64(int32(math.Float32bits(float32(f)))), nil
		default:
			f, err := strconv.ParseFloat(strings.TrimSuffix(lower, "d"), 64)
			if err != nil { return 0, errors.Errorf("bad double literal %q", s) }
			return int64(math.Float64bits(f)), nil
		}
	}
	s = strings.TrimRight(s, "LlTtSs")
	v, err := strconv.ParseInt(s, 0, 64)
	if err == nil { return v, nil }
	u, uerr := strconv.ParseUint(s, 0, 64)
	if uerr != nil { return 0, errors.Errorf("bad literal %q", s) }
	return int64(u), nil
}

func (a *assembler) catch(line string, n int) error {
	var typ, rest string
	all := strings.HasPrefix(line, ".catchall")
	switch {
	case all:
		typ, rest = TypeThrowable, strings.TrimSpace(strings.TrimPrefix(line, ".catchall"))
	default:
		fields := strings.TrimSpace(strings.TrimPrefix(line, ".catch"))
		var ok bool
		if typ, rest, ok = strings.Cut(fields, " "); !ok { return errors.Errorf("bad .catch %q", line) }
	}
	open, close := strings.IndexByte(rest, '{'), strings.IndexByte(rest, '}')
	if open < 0 || close < open { return errors.Errorf("bad .catch range %q", line) }
	start, end, ok := strings.Cut(rest[open+1:close], "..")
	if !ok { return errors.Errorf("bad .catch range %q", line) }
	a.catches = append(a.catches, pendingCatch{
		typ: typ, all: all, start: strings.TrimSpace(start), end: strings.TrimSpace(end),
		handler: strings.TrimSpace(rest[close+1:]), line: n,
	})
	return nil
}

// tries groups .catch directives by protected range; typed handlers keep
// their order and the catch-all goes last.
func (a *assembler) tries() ([]*ExceptionAnalysis, error) {
	type key struct{ start, end int }
	var out []*ExceptionAnalysis
	byRange := make(map[key]*ExceptionAnalysis)
	catchAll := make(map[*ExceptionAnalysis][]Handler)
	for _, c := range a.catches {
		start, ok1 := a.labels[c.start]
		end, ok2 := a.labels[c.end]
		target, ok3 := a.labels[c.handler]
		if !ok1 || !ok2 || !ok3 { return nil, errors.Errorf("line %d: undefined label in .catch", c.line) }
		if end <= start { return nil, errors.Errorf("line %d: empty try range", c.line) }
		k := key{start, end}
		ea := byRange[k]
		if ea == nil {
			ea = &ExceptionAnalysis{Start: start, End: end}
			byRange[k] = ea
			out = append(out, ea)
		}
		h := Handler{Type: c.typ, Target: target}
		if c.all {
			catchAll[ea] = append(catchAll[ea], h)
			continue
		}
		ea.Handlers = append(ea.Handlers, h)
	}
	for _, ea := range out {
		ea.Handlers = append(ea.Handlers, catchAll[ea]...)
	}
	return out, nil
}
