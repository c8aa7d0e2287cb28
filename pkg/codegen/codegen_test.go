package codegen_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/xplshn/dcc/pkg/cfg"
	"github.com/xplshn/dcc/pkg/codegen"
	"github.com/xplshn/dcc/pkg/config"
	"github.com/xplshn/dcc/pkg/dex"
	"github.com/xplshn/dcc/pkg/ir"
	"github.com/xplshn/dcc/pkg/ssa"
	"github.com/xplshn/dcc/pkg/typeChecker"
)

func quiet() *config.Config {
	conf := config.NewConfig()
	conf.SetFeature(config.FeatTrace, false)
	return conf
}

func generate(t *testing.T, conf *config.Config, proto string, regs int, code string) *codegen.Unit {
	t.Helper()
	m, err := dex.NewMethod("Lcom/a/B;", "f", proto, "static", regs, code)
	require.NoError(t, err)
	f := ir.NewFunc(m)
	require.NoError(t, cfg.Build(f))
	require.NoError(t, ssa.Build(f, nil))
	require.NoError(t, typeChecker.Infer(f, typeChecker.DefaultOptions(), nil))
	u, err := codegen.NewJNIBackend(nil).Generate(f, conf)
	require.NoError(t, err)
	return u
}

func TestStraightLineAddSource(t *testing.T) {
	u := generate(t, quiet(), "(II)I", 3, `
		add-int v0, p0, p1
		return v0
	`)
	want := `
/* Lcom/a/B;->f(II)I */
extern "C" JNIEXPORT jint JNICALL
Java_com_a_B_f__II(JNIEnv *env, jobject thiz, jint p1, jint p2){
jint v0;
jint v1;
jint v2;
v0 = (jint)p1;
v1 = (jint)p2;
L0:
v2 = (v0 + v1);
return (jint) v2;
EX_UnwindBlock: return (jint)0;
}
`
	if diff := cmp.Diff(want, u.Source); diff != "" {
		t.Errorf("source mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, "Java_com_a_B_f__II", u.Name)
	require.Empty(t, u.Prototype)
}

func TestDynamicRegisterPrototype(t *testing.T) {
	conf := quiet()
	conf.SetFeature(config.FeatDynamicRegister, true)
	u := generate(t, conf, "(II)I", 3, `
		add-int v0, p0, p1
		return v0
	`)
	require.Equal(t, "jint Java_com_a_B_f__II(JNIEnv *env, jobject thiz, jint p1, jint p2)", u.Prototype)
	require.NotContains(t, u.Source, "JNIEXPORT")
	require.True(t, strings.HasPrefix(u.Source, "\n/* Lcom/a/B;->f(II)I */\njint Java_com_a_B_f__II("))
}

func TestCatchDispatchesOnlyCaughtType(t *testing.T) {
	u := generate(t, quiet(), "(Lcom/a/B;)V", 2, `
		:try_start
		const/4 v0, 1
		iput v0, p0, Lcom/a/B;->x:I
		:try_end
		return-void
		:handler
		move-exception v0
		return-void
		.catch Ljava/lang/IllegalStateException; {:try_start .. :try_end} :handler
	`)
	pad := `
EX_LandingPad_0:
D2C_GET_PENDING_EX
if(d2c_is_instance_of(env, exception, "java/lang/IllegalStateException")) {
goto L2;
}
D2C_GOTO_UNWINDBLOCK
EX_UnwindBlock: return;
}
`
	require.True(t, strings.HasSuffix(u.Source, pad), u.Source)
	require.Equal(t, 1, strings.Count(u.Source, "d2c_is_instance_of"))
	require.Contains(t, u.Source, "jthrowable exception;\n")
	require.Contains(t, u.Source, "#define EX_HANDLE EX_LandingPad_0\nD2C_NOT_NULL(")
	require.Contains(t, u.Source, `D2C_RESOLVE_FIELD(clz, fld, "com/a/B", "x", "I");`)
	require.Contains(t, u.Source, "jclass cls0 = NULL;\njfieldID fld0 = NULL;\n")
}

func TestIntegerDivisionChecksZero(t *testing.T) {
	u := generate(t, quiet(), "(II)I", 3, `
		div-int v0, p0, p1
		return v0
	`)
	require.Contains(t, u.Source, "{\n#define EX_HANDLE EX_UnwindBlock\n"+
		"if (v1 == 0) {\n"+
		"d2c_throw_exception(env, \"java/lang/ArithmeticException\", \"divide by zero\");\n"+
		"goto EX_HANDLE;\n"+
		"}\n"+
		"#undef EX_HANDLE\n"+
		"v2 = v0 / v1;\n}\n")

	u = generate(t, quiet(), "(JJ)J", 6, `
		rem-long v0, p0, p2
		return-wide v0
	`)
	require.Contains(t, u.Source, "if (v1 == 0) {\n")
	require.Contains(t, u.Source, "v2 = v0 % v1;\n")
}

func TestFloatDivisionHasNoCheck(t *testing.T) {
	u := generate(t, quiet(), "(FF)F", 3, `
		div-float v0, p0, p1
		rem-float v0, v0, p1
		return v0
	`)
	require.NotContains(t, u.Source, "ArithmeticException")
	require.Contains(t, u.Source, "v2 = v0 / v1;\n")
	require.Contains(t, u.Source, "v2 = fmodf(v2, v1);\n")

	u = generate(t, quiet(), "(DD)D", 6, `
		rem-double v0, p0, p2
		return-wide v0
	`)
	require.Contains(t, u.Source, "v2 = fmod(v0, v1);\n")
}

func TestShiftsMaskTheDistance(t *testing.T) {
	u := generate(t, quiet(), "(II)I", 3, `
		shr-int v0, p0, p1
		ushr-int/lit8 v0, v0, 3
		return v0
	`)
	require.Contains(t, u.Source, "v2 = (v0) >> (v1 & 0x1f);\n")
	require.Contains(t, u.Source, "v2 = ((uint32_t) v2) >> (3 & 0x1f);\n")

	u = generate(t, quiet(), "(JI)J", 5, `
		shl-long v0, p0, p2
		ushr-long v0, v0, p2
		return-wide v0
	`)
	require.Contains(t, u.Source, "v2 = (v0) << (v1 & 0x3f);\n")
	require.Contains(t, u.Source, "v2 = ((uint64_t) v2) >> (v1 & 0x3f);\n")
}

func TestCompareBias(t *testing.T) {
	u := generate(t, quiet(), "(FF)I", 3, `
		cmpl-float v0, p0, p1
		return v0
	`)
	require.Contains(t, u.Source, "v2 = (v0 == v1) ? 0 : (v0 > v1) ? 1 : -1;\n")

	u = generate(t, quiet(), "(FF)I", 3, `
		cmpg-float v0, p0, p1
		return v0
	`)
	require.Contains(t, u.Source, "v2 = (v0 == v1) ? 0 : (v0 < v1) ? -1 : 1;\n")
}

func TestUnusedCallResultIsReleased(t *testing.T) {
	code := `
		invoke-static {}, Lcom/a/C;->g()Ljava/lang/String;
		return-void
	`
	u := generate(t, quiet(), "()V", 1, code)
	require.Contains(t, u.Source, "jclass cls0 = NULL;\n")
	require.Contains(t, u.Source, "jmethodID mth0 = NULL;\n")
	require.Contains(t, u.Source, `D2C_RESOLVE_STATIC_METHOD(clz, mid, "com/a/C", "g", "()Ljava/lang/String;");`)
	require.Contains(t, u.Source, "jvalue args[] = {};\n")
	require.Contains(t, u.Source, "v0 = (jstring) env->CallStaticObjectMethodA(clz, mid, args);\n")
	require.Contains(t, u.Source, "}\nif (v0) {\nLOGD(\"env->DeleteLocalRef(%p):v0\", v0);\nenv->DeleteLocalRef(v0);\n}\n")

	conf := quiet()
	conf.SetFeature(config.FeatLocalRefGC, false)
	u = generate(t, conf, "()V", 1, code)
	require.NotContains(t, u.Source, "DeleteLocalRef")
}

func TestInvokeArguments(t *testing.T) {
	u := generate(t, quiet(), "(Ljava/lang/Object;JZ)V", 5, `
		invoke-virtual {p0, p1, p2, p3}, Ljava/lang/Object;->h(JZ)V
		return-void
	`)
	require.Contains(t, u.Source, "D2C_NOT_NULL(v0);\n")
	require.Contains(t, u.Source, `D2C_RESOLVE_METHOD(clz, mid, "java/lang/Object", "h", "(JZ)V");`)
	require.Contains(t, u.Source, "jvalue args[] = {{.j = (jlong) v1},{.z = (jboolean) v2}};\n")
	require.Contains(t, u.Source, "env->CallVoidMethodA(v0, mid, args);\n")
	require.Contains(t, u.Source, "v0 = (jobject)env->NewLocalRef(p1);\n")
}

func TestBranchesAndTrace(t *testing.T) {
	u := generate(t, config.NewConfig(), "(I)I", 2, `
		if-eqz p0, :zero
		const/4 v0, 1
		return v0
		:zero
		const/4 v0, 0
		return v0
	`)
	require.Contains(t, u.Source, "if(v0 == 0){\ngoto L2;\n}\nelse {\ngoto L1;\n}\n")
	require.Contains(t, u.Source, `LOGD("0:if-eqz \x70\x30\x2c\x20\x3a\x7a\x65\x72\x6f");`)
}

func TestConstantLoads(t *testing.T) {
	u := generate(t, quiet(), "()V", 2, `
		const-string v0, "hi"
		const-class v1, Ljava/lang/String;
		invoke-static {v0, v1}, Lcom/a/C;->k(Ljava/lang/String;Ljava/lang/Class;)V
		return-void
	`)
	require.Contains(t, u.Source, "v0 = (jstring) env->NewStringUTF(\"\\x68\\x69\");\n")
	require.Contains(t, u.Source, "jclass &clz = cls0;\nD2C_RESOLVE_CLASS(clz,\"java/lang/String\");\nv1 = env->NewLocalRef(clz);\n")
	require.Contains(t, u.Source, "jclass cls0 = NULL,cls1 = NULL;\n")
}

func TestLandingPadKeepsHandlerOrder(t *testing.T) {
	u := generate(t, quiet(), "(Lcom/a/B;)V", 2, `
		:try_start
		const/4 v0, 1
		iput v0, p0, Lcom/a/B;->x:I
		:try_end
		return-void
		:specific
		move-exception v0
		return-void
		:any
		move-exception v0
		return-void
		.catch Ljava/lang/IllegalStateException; {:try_start .. :try_end} :specific
		.catchall {:try_start .. :try_end} :any
	`)
	specific := strings.Index(u.Source, `d2c_is_instance_of(env, exception, "java/lang/IllegalStateException")`)
	catchAll := strings.Index(u.Source, `d2c_is_instance_of(env, exception, "java/lang/Throwable")`)
	require.Positive(t, specific)
	require.Greater(t, catchAll, specific, "the first listed handler is tested first")
	require.Equal(t, 1, strings.Count(u.Source, "EX_LandingPad_0:\n"))
}

func TestLandingPadWithoutLocalsDeclaresException(t *testing.T) {
	u := generate(t, quiet(), "()V", 0, `
		:try_start
		invoke-static {}, Lcom/a/C;->g()V
		:try_end
		return-void
		:any
		return-void
		.catchall {:try_start .. :try_end} :any
	`)
	require.Contains(t, u.Source, "EX_LandingPad_0:\nD2C_GET_PENDING_EX\n")
	require.Contains(t, u.Source, "jthrowable exception;\n")
	require.NotContains(t, u.Source, " v0")
}

func TestNegativeZeroDouble(t *testing.T) {
	u := generate(t, quiet(), "()D", 2, `
		const-wide v0, -0.0
		return-wide v0
	`)
	require.Contains(t, u.Source, "v0 = d2c_bitcast_to_double((-9223372036854775807LL - 1));\n")
	require.NotContains(t, u.Source, "(-9223372036854775808)")
}

func TestLoopAtEntryKeepsParametersOutsideTheLoop(t *testing.T) {
	u := generate(t, quiet(), "(I)I", 1, `
		:loop
		if-lez p0, :end
		add-int/lit8 p0, p0, -1
		goto :loop
		:end
		return p0
	`)
	params := strings.Index(u.Source, " = (jint)p0;\n")
	require.Positive(t, params)
	require.Greater(t, strings.Index(u.Source, "L1:\n"), params)
	require.Contains(t, u.Source, "goto L1;\n")
}
