package dex

import (
	"strings"
)

// Type descriptors are kept in their Dalvik textual form ("I", "J",
// "Ljava/lang/String;", "[I"). The empty string means "not known yet".

const (
	TypeObject    = "Ljava/lang/Object;"
	TypeString    = "Ljava/lang/String;"
	TypeClass     = "Ljava/lang/Class;"
	TypeThrowable = "Ljava/lang/Throwable;"
)

var primitiveOrder = map[string]int{
	"Z": 1,
	"B": 2,
	"S": 3,
	"C": 3,
	"I": 5,
	"J": 6,
	"F": 8,
	"D": 9,
}

var typeDescriptor = map[string]string{
	"V": "Void", "Z": "Boolean", "B": "Byte", "S": "Short", "C": "Char",
	"I": "Int", "J": "Long", "F": "Float", "D": "Double",
}

var javaNames = map[string]string{
	"V": "void", "Z": "boolean", "B": "byte", "S": "short", "C": "char",
	"I": "int", "J": "long", "F": "float", "D": "double",
}

var nativeTypes = map[string]string{
	"Z": "jboolean", "B": "jbyte", "S": "jshort", "C": "jchar", "I": "jint",
	"J": "jlong", "F": "jfloat", "D": "jdouble", "V": "void",
}

func IsPrimitive(t string) bool { _, ok := primitiveOrder[t]; return ok }
func IsInt(t string) bool       { return len(t) == 1 && strings.Contains("ZBCSIJ", t) }
func IsLong(t string) bool      { return t == "J" }
func IsFloat(t string) bool     { return t == "F" || t == "D" }
func IsWide(t string) bool      { return t == "J" || t == "D" }
func IsRef(t string) bool       { return t != "" && (t[0] == 'L' || t[0] == '[') }
func IsArray(t string) bool     { return t != "" && t[0] == '[' }
func IsObject(t string) bool    { return t == TypeObject }

// SameFamily reports whether two resolved types can share a phi: both
// integral, both floating, or both references.
func SameFamily(a, b string) bool {
	switch {
	case IsInt(a): return IsInt(b)
	case IsFloat(a): return IsFloat(b)
	case IsRef(a): return IsRef(b)
	}
	return false
}

// TypeSize is the number of Dalvik registers a value of type t occupies.
func TypeSize(t string) int {
	if IsWide(t) { return 2 }
	return 1
}

func comparePrimitive(a, b string) int {
	switch {
	case a == "" && b == "": return 0
	case a == "": return -1
	case b == "": return 1
	}
	return primitiveOrder[a] - primitiveOrder[b]
}

// BiggerType returns the wider of two same-family primitives. short and
// char share an ordinal; their join is int.
func BiggerType(a, b string) string {
	if a != b && primitiveOrder[a] == primitiveOrder[b] && primitiveOrder[a] == primitiveOrder["S"] {
		return "I"
	}
	if comparePrimitive(a, b) > 0 { return a }
	return b
}

// MergeType joins two type descriptors on the inference lattice. It returns
// "" when the types belong to incompatible families.
func MergeType(a, b string) string {
	switch {
	case a == "" && b == "": return ""
	case a == "": return b
	case b == "": return a
	}
	switch {
	case IsInt(a) && IsInt(b), IsFloat(a) && IsFloat(b):
		return BiggerType(a, b)
	case IsArray(a) || IsArray(b):
		if t := mergeArrayType(a, b); t != "" { return t }
		return TypeObject
	case IsRef(a) && IsRef(b):
		return mergeReferenceType(a, b)
	}
	return ""
}

func mergeArrayType(a, b string) string {
	switch {
	case IsObject(b): return b
	case IsObject(a): return a
	}
	if !IsArray(a) { a, b = b, a }
	if !IsArray(b) { return TypeObject }
	if elem := MergeType(a[1:], b[1:]); elem != "" { return "[" + elem }
	return ""
}

func mergeReferenceType(a, b string) string {
	switch {
	case a == b: return a
	case IsObject(a): return a
	case IsObject(b): return b
	}
	return TypeObject
}

// JavaName renders a descriptor the way reflection lookups expect it:
// primitives by keyword, classes as "java/lang/String", arrays unchanged.
func JavaName(t string) string {
	if n, ok := javaNames[t]; ok { return n }
	if strings.HasPrefix(t, "L") && strings.HasSuffix(t, ";") { return t[1 : len(t)-1] }
	return t
}

// TypeDescriptor is the JNI accessor infix: "Int" for CallIntMethodA,
// "Object" for every reference type.
func TypeDescriptor(t string) string {
	if d, ok := typeDescriptor[t]; ok { return d }
	return "Object"
}

// NativeType is the JNI storage type of a descriptor.
func NativeType(t string) string {
	if n, ok := nativeTypes[t]; ok { return n }
	switch {
	case t == TypeString: return "jstring"
	case IsArray(t): return "jarray"
	}
	return "jobject"
}

// CDeclType collapses a descriptor to the local-variable kind used for
// register allocation: sub-int integral types widen to jint.
func CDeclType(t string) string {
	switch t {
	case "Z", "B", "C", "S", "I": return "jint"
	case "J": return "jlong"
	case "F": return "jfloat"
	case "D": return "jdouble"
	}
	return "jobject"
}

// IsNativeRef reports whether the JNI storage for t is a local reference.
func IsNativeRef(t string) bool {
	switch NativeType(t) {
	case "jobject", "jstring", "jarray": return true
	}
	return false
}
