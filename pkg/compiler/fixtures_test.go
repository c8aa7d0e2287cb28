package compiler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/xplshn/dcc/pkg/dex"
	"github.com/xplshn/dcc/pkg/filter"
)

// The inputs under tests/ are the same ones cmd/gtest diffs against golden
// output; here they are pushed through the whole pipeline in-process.
func TestFixtures(t *testing.T) {
	for input, want := range map[string][]string{
		"arith.yaml": {
			"Lcom/example/Arith;add(II)I",
			"Lcom/example/Arith;clamp(III)I",
			"Lcom/example/Arith;divide(JJ)J",
			"Lcom/example/Arith;mix(FDI)J",
		},
		"arrays.yaml": {
			"Lcom/example/Arrays;names()[Ljava/lang/String;",
			"Lcom/example/Arrays;sum([I)I",
		},
		"exceptions.yaml": {
			"Lcom/example/Guard;closeQuietly(Ljava/io/Closeable;)V",
			"Lcom/example/Guard;parse(Ljava/lang/String;)I",
		},
		"selection.yaml": {
			"Lcom/example/Selected;kept()I",
		},
	} {
		t.Run(input, func(t *testing.T) {
			path := filepath.Join("..", "..", "tests", input)
			file, err := dex.LoadFile(path)
			require.NoError(t, err)

			rules, err := filter.ParseRules(strings.NewReader(".*\n"))
			require.NoError(t, err)
			if own := strings.TrimSuffix(path, ".yaml") + ".filter"; fileExists(own) {
				rules, err = filter.LoadRules(own)
				require.NoError(t, err)
			}

			c := newCompiler()
			b, err := c.CompileAll(context.Background(), c.Select(file, filter.New(rules, file)), nil)
			require.NoError(t, err)
			require.Empty(t, b.Failed)

			dir := t.TempDir()
			_, err = Write(dir, b, c.Config, nil)
			require.NoError(t, err)
			manifest, err := os.ReadFile(filepath.Join(dir, ManifestName))
			require.NoError(t, err)
			if diff := cmp.Diff(strings.Join(want, "\n"), string(manifest)); diff != "" {
				t.Errorf("manifest mismatch (-want +got):\n%s", diff)
			}

			for _, cm := range b.Compiled {
				src, err := os.ReadFile(filepath.Join(dir, cm.Unit.Name+".cpp"))
				require.NoError(t, err)
				require.True(t, strings.HasPrefix(string(src), SourceHeader))
				require.Contains(t, string(src), "JNICALL\n"+cm.Unit.Name+"(JNIEnv *env, jobject thiz")
				require.True(t, strings.HasSuffix(string(src), "}\n"))
			}
		})
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
