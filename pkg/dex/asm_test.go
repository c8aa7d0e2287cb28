package dex

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssembleOffsetsAndOperands(t *testing.T) {
	code, tries, err := Assemble(`
		const/4 v0, 0          # one unit
		const-wide v1, 0x100000000L
		const-string v3, "a\"b"
		:loop
		add-int/lit8 v0, v0, 1
		if-lt v0, p0, :loop
		invoke-static {v0, p0}, Lcom/a/B;->f(II)V
		invoke-virtual/range {v1 .. v3}, Lcom/a/B;->g(J)Ljava/lang/String;
		return-void
	`, 5, 1)
	require.NoError(t, err)
	require.Empty(t, tries)
	require.Len(t, code, 8)

	offsets := []int{0, 1, 6, 8, 10, 12, 15, 18}
	for i, ins := range code {
		require.Equal(t, offsets[i], ins.Offset, ins.Name())
	}
	require.Equal(t, int64(0x100000000), code[1].Literal)
	require.Equal(t, `a"b`, code[2].String)
	require.Equal(t, 4, code[4].B)
	require.Equal(t, -2, code[4].Target)
	require.Equal(t, []int{0, 4}, code[5].Args)
	require.Equal(t, "f", code[5].Method.Name)
	require.Equal(t, []string{"I", "I"}, code[5].Method.Params)
	require.Equal(t, []int{1, 2, 3}, code[6].Args)
	require.Equal(t, TypeString, code[6].Method.Return)
}

func TestAssemblePayloads(t *testing.T) {
	code, _, err := Assemble(`
		packed-switch v0, {1: :a, 2: :b}
		fill-array-data v1, 2, {1, -1}
		:a
		return-void
		:b
		return-void
	`, 2, 0)
	require.NoError(t, err)
	sw := code[0].Switch
	require.Equal(t, []int32{1, 2}, sw.Keys)
	require.Equal(t, []int{6, 7}, sw.Targets)
	arr := code[1].Array
	require.Equal(t, 2, arr.Size)
	require.Equal(t, []byte{1, 0, 0xff, 0xff}, arr.Data)
}

func TestAssembleFloatLiterals(t *testing.T) {
	v, err := parseLiteral("1.0f")
	require.NoError(t, err)
	require.Equal(t, int64(math.Float32bits(1.0)), v)
	v, err = parseLiteral("-2.5")
	require.NoError(t, err)
	require.Equal(t, int64(math.Float64bits(-2.5)), v)
	v, err = parseLiteral("-0x1t")
	require.NoError(t, err)
	require.Equal(t, int64(-1), v)
}

func TestAssembleErrors(t *testing.T) {
	for _, src := range []string{
		"frobnicate v0",
		"goto :nowhere",
		"add-int v0, v1",
		"const/4 x0, 1",
		"move v0, p3",
	} {
		_, _, err := Assemble(src, 2, 1)
		require.Error(t, err, src)
	}
}

func TestSplitBlocksWithTry(t *testing.T) {
	m, err := NewMethod("Lcom/a/B;", "f", "(Lcom/a/B;)V", "public static", 2, `
		:try_start
		const/4 v0, 1
		iput v0, p0, Lcom/a/B;->x:I
		:try_end
		return-void
		:handler
		move-exception v0
		return-void
		.catch Ljava/lang/IllegalStateException; {:try_start .. :try_end} :handler
		.catchall {:try_start .. :try_end} :handler
	`)
	require.NoError(t, err)
	require.Len(t, m.Blocks, 3)
	entry := m.Entry()
	require.NotNil(t, entry.Exception)
	require.Len(t, entry.Exception.Handlers, 2)
	require.Equal(t, "Ljava/lang/IllegalStateException;", entry.Exception.Handlers[0].Type)
	require.Equal(t, TypeThrowable, entry.Exception.Handlers[1].Type)
	require.Same(t, m.Blocks[2], entry.Exception.Handlers[0].Block)
	require.Equal(t, []*Block{m.Blocks[1]}, entry.Succs)
	require.Nil(t, m.Blocks[1].Exception)
	require.Empty(t, m.Blocks[1].Succs)
}

func TestSplitBlocksDiamond(t *testing.T) {
	m, err := NewMethod("Lcom/a/B;", "f", "(Z)I", "static", 2, `
		if-eqz p0, :else
		const/4 v0, 1
		goto :join
		:else
		const/4 v0, 2
		:join
		return v0
	`)
	require.NoError(t, err)
	require.Len(t, m.Blocks, 4)
	entry := m.Entry()
	require.Equal(t, []*Block{m.Blocks[1], m.Blocks[2]}, entry.Succs)
	require.Equal(t, []*Block{m.Blocks[3]}, m.Blocks[1].Succs)
	require.Equal(t, []*Block{m.Blocks[3]}, m.Blocks[2].Succs)
}

func TestLoadYAML(t *testing.T) {
	src := `
classes:
  - name: Lcom/example/Calc;
    flags: public
    annotations: [Lcom/example/Dex2C;]
    methods:
      - name: add
        proto: (II)I
        flags: public static
        registers: 2
        code: |
          add-int v0, p0, p1
          return v0
      - name: nat
        proto: ()V
        flags: public native
`
	f, err := Load(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, f.Classes, 1)
	methods := f.Methods()
	require.Len(t, methods, 2)
	add := methods[0]
	require.Equal(t, 2, add.Ins)
	require.True(t, add.IsStatic())
	require.Equal(t, "Lcom/example/Calc;add(II)I", add.FullName())
	require.Equal(t, "Lcom/example/Calc;add(II)", add.Signature())
	require.Len(t, add.Blocks, 1)
	require.True(t, methods[1].IsNative())
	require.False(t, methods[1].HasCode())

	_, err = Load(strings.NewReader("classes:\n  - name: Lx;\n    bogus: 1\n"))
	require.Error(t, err)
}
