package dex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergePrimitiveIsCommutative(t *testing.T) {
	prims := []string{"Z", "B", "S", "C", "I", "J", "F", "D"}
	for _, a := range prims {
		for _, b := range prims {
			require.Equal(t, MergeType(a, b), MergeType(b, a), "merge(%s,%s)", a, b)
		}
	}
}

func TestMergeType(t *testing.T) {
	cases := []struct{ a, b, want string }{
		{"I", "J", "J"},
		{"F", "D", "D"},
		{"Z", "I", "I"},
		{"S", "C", "I"},
		{"B", "B", "B"},
		{"I", "F", ""},
		{"I", "", "I"},
		{"", "", ""},
		{"I", TypeString, ""},
		{TypeString, TypeString, TypeString},
		{TypeString, TypeObject, TypeObject},
		{"Lcom/a/A;", "Lcom/a/B;", TypeObject},
		{"[I", "[I", "[I"},
		{"[I", "[J", "[J"},
		{"[I", "[F", TypeObject},
		{"[Lcom/a/A;", "[Lcom/a/B;", "[" + TypeObject},
		{"[I", TypeObject, TypeObject},
		{"[I", TypeString, TypeObject},
	}
	for _, c := range cases {
		require.Equal(t, c.want, MergeType(c.a, c.b), "merge(%q,%q)", c.a, c.b)
	}
}

func TestNativeTypes(t *testing.T) {
	require.Equal(t, "jint", NativeType("I"))
	require.Equal(t, "jboolean", NativeType("Z"))
	require.Equal(t, "jstring", NativeType(TypeString))
	require.Equal(t, "jarray", NativeType("[I"))
	require.Equal(t, "jobject", NativeType("Lcom/a/B;"))
	require.Equal(t, "void", NativeType("V"))

	require.Equal(t, "jint", CDeclType("Z"))
	require.Equal(t, "jlong", CDeclType("J"))
	require.Equal(t, "jobject", CDeclType("[I"))

	require.Equal(t, "Int", TypeDescriptor("I"))
	require.Equal(t, "Object", TypeDescriptor("[I"))
	require.Equal(t, "java/lang/String", JavaName(TypeString))
	require.Equal(t, "[I", JavaName("[I"))
	require.Equal(t, "int", JavaName("I"))
}

func TestFamilies(t *testing.T) {
	require.True(t, SameFamily("Z", "J"))
	require.True(t, SameFamily("F", "D"))
	require.True(t, SameFamily("[I", TypeObject))
	require.False(t, SameFamily("I", "F"))
	require.False(t, SameFamily("I", TypeObject))
	require.Equal(t, 2, TypeSize("D"))
	require.Equal(t, 1, TypeSize(TypeObject))
}
