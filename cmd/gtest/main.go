// gtest runs dcc over every input in tests/ and diffs the generated sources
// against golden JSON files kept next to each input.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
)

type Execution struct {
	Stderr   string        `json:"stderr,omitempty"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
}

// Golden is what one dcc invocation produced: its exit status and every file
// written to the output directory, keyed by base name.
type Golden struct {
	Compile Execution         `json:"compile"`
	Files   map[string]string `json:"files"`
}

type FileTestResult struct {
	File    string  `json:"file"`
	Status  string  `json:"status"` // PASS, FAIL, SKIP, ERROR
	Message string  `json:"message,omitempty"`
	Diff    string  `json:"diff,omitempty"`
	Target  *Golden `json:"target,omitempty"`
}

type TestSuiteResults map[string]*FileTestResult

var (
	targetCompiler = flag.String("target-compiler", "./dcc", "Path to the dcc binary to test.")
	targetArgs     = flag.String("target-args", "", "Extra arguments for dcc (space-separated).")
	generateGolden = flag.String("generate-golden", "", "Generate a golden .json file for a given input file.")
	testFiles      = flag.String("test-files", "tests/*.yaml", "Glob pattern(s) for files to test (space-separated).")
	skipFiles      = flag.String("skip-files", "", "Files to skip (space-separated).")
	outputJSON     = flag.String("output", ".test_results.json", "Output file for the JSON test report.")
	timeout        = flag.Duration("timeout", 30*time.Second, "Timeout for each dcc invocation.")
	jobs           = flag.Int("j", 4, "Number of parallel test jobs.")
	verbose        = flag.Bool("v", false, "Print dcc's diagnostics for failing tests.")
	jsonDir        = flag.String("dir", "", "Directory to store/read golden JSON files (defaults to input file dir).")
)

const (
	cRed    = "\x1b[91m"
	cYellow = "\x1b[93m"
	cGreen  = "\x1b[92m"
	cCyan   = "\x1b[96m"
	cBold   = "\x1b[1m"
	cNone   = "\x1b[0m"
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	tempDir, err := os.MkdirTemp("", "gtest-*")
	if err != nil {
		log.Fatalf("%s[ERROR]%s Failed to create temp directory: %v\n", cRed, cNone, err)
	}
	defer os.RemoveAll(tempDir)
	setupInterruptHandler(tempDir)
	if err := os.WriteFile(filepath.Join(tempDir, "all.filter"), []byte(".*\n"), 0644); err != nil {
		log.Fatalf("%s[ERROR]%s Failed to write default filter: %v\n", cRed, cNone, err)
	}

	if *generateGolden != "" {
		handleGenerateGolden(*generateGolden, tempDir)
		return
	}
	handleRunTestSuite(tempDir)
}

// setupInterruptHandler is used to clean up on CTRL+C
func setupInterruptHandler(tempDir string) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		os.RemoveAll(tempDir)
		fmt.Printf("\n%s[INTERRUPT]%s Test run cancelled. Cleaning up...\n", cYellow, cNone)
		os.Exit(1)
	}()
}

func getJSONPath(inputFile string) string {
	jsonFileName := "." + filepath.Base(inputFile) + ".json"
	if *jsonDir != "" {
		return filepath.Join(*jsonDir, jsonFileName)
	}
	return filepath.Join(filepath.Dir(inputFile), jsonFileName)
}

// filterFor returns the rule file next to input (x.yaml -> x.filter), or a
// rule file that selects every method.
func filterFor(input, tempDir string) string {
	own := strings.TrimSuffix(input, filepath.Ext(input)) + ".filter"
	if _, err := os.Stat(own); err == nil {
		return own
	}
	return filepath.Join(tempDir, "all.filter")
}

// hashFile computes the xxhash of a file's content
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum64()), nil
}

func handleGenerateGolden(inputFile, tempDir string) {
	log.Printf("Generating golden file for %s...\n", inputFile)

	fileHash, err := hashFile(inputFile)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Could not hash input file %s: %v\n", cRed, cNone, inputFile, err)
	}
	result, err := translate(inputFile, tempDir, fileHash)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Could not run dcc on %s: %v\n", cRed, cNone, inputFile, err)
	}

	jsonData, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("%s[ERROR]%s Failed to marshal golden data to JSON: %v\n", cRed, cNone, err)
	}
	goldenFileName := getJSONPath(inputFile)
	if *jsonDir != "" {
		if err := os.MkdirAll(*jsonDir, 0755); err != nil {
			log.Fatalf("%s[ERROR]%s Failed to create directory %s: %v\n", cRed, cNone, *jsonDir, err)
		}
	}
	if err := os.WriteFile(goldenFileName, jsonData, 0644); err != nil {
		log.Fatalf("%s[ERROR]%s Failed to write golden file %s: %v\n", cRed, cNone, goldenFileName, err)
	}
	log.Printf("%s[SUCCESS]%s Golden file created at %s\n", cGreen, cNone, goldenFileName)
}

func handleRunTestSuite(tempDir string) {
	files, err := expandGlobPatterns(*testFiles)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Invalid glob pattern(s): %v\n", cRed, cNone, err)
	}
	if len(files) == 0 {
		log.Println("No test files found matching the pattern(s).")
		return
	}

	skipList := make(map[string]bool)
	for _, f := range strings.Fields(*skipFiles) {
		skipList[f] = true
	}

	tasks := make(chan [2]string, len(files))
	resultsChan := make(chan *FileTestResult, len(files))
	var wg sync.WaitGroup

	for i := 0; i < *jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasks {
				resultsChan <- testFile(task[0], tempDir, task[1])
			}
		}()
	}

	// Feed the tasks channel, skipping files with identical content
	seenHashes := make(map[string]string)
	for _, file := range files {
		if skipList[file] || skipList[filepath.Base(file)] {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: "Explicitly skipped"}
			continue
		}
		fileHash, err := hashFile(file)
		if err != nil {
			resultsChan <- &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to read file for hashing: %v", err)}
			continue
		}
		if originalFile, seen := seenHashes[fileHash]; seen {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Content is identical to %s", originalFile)}
			continue
		}
		seenHashes[fileHash] = file
		tasks <- [2]string{file, fileHash}
	}
	close(tasks)

	wg.Wait()
	close(resultsChan)

	var allResults []*FileTestResult
	for result := range resultsChan {
		allResults = append(allResults, result)
	}
	sort.Slice(allResults, func(i, j int) bool {
		return allResults[i].File < allResults[j].File
	})

	printSummary(allResults)
	resultsMap := writeJSONReport(allResults)
	if hasFailures(resultsMap) {
		os.Exit(1)
	}
}

func testFile(file, tempDir, fileHash string) *FileTestResult {
	goldenFile := getJSONPath(file)
	goldenData, err := os.ReadFile(goldenFile)
	if os.IsNotExist(err) {
		return &FileTestResult{File: file, Status: "SKIP", Message: "Cannot test without a corresponding .json golden file"}
	}
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not read golden file %s: %v", goldenFile, err)}
	}
	var golden Golden
	if err := json.Unmarshal(goldenData, &golden); err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not parse golden file %s: %v", goldenFile, err)}
	}

	target, err := translate(file, tempDir, fileHash)
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: err.Error(), Target: target}
	}
	return compareResults(file, &golden, target)
}

func compareResults(file string, golden, target *Golden) *FileTestResult {
	var diffs strings.Builder
	if golden.Compile.ExitCode != target.Compile.ExitCode {
		diffs.WriteString(fmt.Sprintf("Exit Code mismatch:\n  - Golden: %d\n  - Target: %d\n", golden.Compile.ExitCode, target.Compile.ExitCode))
	}
	if d := cmp.Diff(golden.Files, target.Files); d != "" {
		diffs.WriteString(fmt.Sprintf("Generated files mismatch (-golden +target):\n%s", d))
	}
	if diffs.Len() > 0 {
		return &FileTestResult{File: file, Status: "FAIL", Message: "Generated output differs from the golden file", Diff: diffs.String(), Target: target}
	}
	return &FileTestResult{File: file, Status: "PASS", Message: fmt.Sprintf("%d generated files match", len(target.Files)), Target: target}
}

// executeCommand runs a command with a timeout and captures its diagnostics
func executeCommand(ctx context.Context, command string, args ...string) Execution {
	startTime := time.Now()
	cmd := exec.CommandContext(ctx, command, args...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	err := cmd.Run()
	execResult := Execution{Stderr: stderr.String(), Duration: time.Since(startTime)}

	if ctx.Err() == context.DeadlineExceeded {
		execResult.TimedOut = true
		execResult.ExitCode = -1
	} else if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			execResult.ExitCode = exitErr.ExitCode()
		} else {
			execResult.ExitCode = -2
			execResult.Stderr += "\nExecution error: " + err.Error()
		}
	}
	return execResult
}

// translate runs dcc on input into a fresh directory named after its hash and
// collects everything it wrote.
func translate(input, tempDir, fileHash string) (*Golden, error) {
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	outDir := filepath.Join(tempDir, fileHash)
	if err := os.RemoveAll(outDir); err != nil {
		return nil, err
	}
	args := []string{"-o", outDir, "--filter", filterFor(input, tempDir), "--no-progress"}
	args = append(args, strings.Fields(*targetArgs)...)
	args = append(args, input)

	result := &Golden{Compile: executeCommand(ctx, *targetCompiler, args...), Files: map[string]string{}}
	if result.Compile.TimedOut {
		return result, fmt.Errorf("dcc timed out after %s", *timeout)
	}
	entries, err := os.ReadDir(outDir)
	if os.IsNotExist(err) {
		return result, nil
	}
	if err != nil {
		return result, err
	}
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(outDir, e.Name()))
		if err != nil {
			return result, err
		}
		result.Files[e.Name()] = string(data)
	}
	return result, nil
}

func printSummary(results []*FileTestResult) {
	var passed, failed, skipped, errored int
	var total time.Duration

	for _, result := range results {
		fmt.Println("----------------------------------------------------------------------")
		fmt.Printf("Testing %s%s%s...\n", cCyan, result.File, cNone)

		switch result.Status {
		case "PASS":
			passed++
			fmt.Printf("  [%sPASS%s] %s\n", cGreen, cNone, result.Message)
		case "FAIL":
			failed++
			fmt.Printf("  [%sFAIL%s] %s\n", cRed, cNone, result.Message)
			fmt.Println(formatDiff(result.Diff))
		case "SKIP":
			skipped++
			fmt.Printf("  [%sSKIP%s] %s\n", cYellow, cNone, result.Message)
		case "ERROR":
			errored++
			fmt.Printf("  [%sERROR%s] %s\n", cRed, cNone, result.Message)
		}
		if result.Target != nil {
			total += result.Target.Compile.Duration
			if *verbose && result.Status != "PASS" && result.Target.Compile.Stderr != "" {
				fmt.Printf("    dcc stderr:\n%s\n", result.Target.Compile.Stderr)
			}
		}
	}

	fmt.Println("----------------------------------------------------------------------")
	fmt.Printf("%sTest Summary:%s %s%d Passed%s, %s%d Failed%s, %s%d Skipped%s, %s%d Errored%s, %d Total\n",
		cBold, cNone, cGreen, passed, cNone, cRed, failed, cNone, cYellow, skipped, cNone, cRed, errored, cNone, len(results))
	if total > 0 {
		fmt.Printf("Total translation time: %s\n", total.Round(time.Millisecond))
	}
}

func formatDiff(diff string) string {
	if diff == "" {
		return ""
	}
	var builder strings.Builder
	builder.WriteString("    --- Diff ---\n")
	for _, line := range strings.Split(diff, "\n") {
		trimmedLine := strings.TrimSpace(line)
		if strings.HasPrefix(trimmedLine, "-") {
			builder.WriteString(cRed)
		} else if strings.HasPrefix(trimmedLine, "+") {
			builder.WriteString(cGreen)
		}
		builder.WriteString("    " + line)
		builder.WriteString(cNone)
		builder.WriteString("\n")
	}
	return builder.String()
}

func writeJSONReport(results []*FileTestResult) TestSuiteResults {
	resultsMap := make(TestSuiteResults, len(results))
	for _, r := range results {
		resultsMap[r.File] = r
	}

	jsonData, err := json.MarshalIndent(resultsMap, "", "  ")
	if err != nil {
		log.Printf("%s[ERROR]%s Failed to marshal results to JSON: %v\n", cRed, cNone, err)
		return resultsMap
	}

	outputFile := *outputJSON
	if *jsonDir != "" {
		if err := os.MkdirAll(*jsonDir, 0755); err != nil {
			log.Printf("%s[ERROR]%s Failed to create dir %s: %v\n", cRed, cNone, *jsonDir, err)
		}
		outputFile = filepath.Join(*jsonDir, *outputJSON)
	}

	if err := os.WriteFile(outputFile, jsonData, 0644); err != nil {
		log.Printf("%s[ERROR]%s Failed to write JSON report to %s: %v\n", cRed, cNone, outputFile, err)
	} else {
		fmt.Printf("Full test report saved to %s\n", outputFile)
	}
	return resultsMap
}

func hasFailures(results TestSuiteResults) bool {
	for _, result := range results {
		if result.Status == "FAIL" || result.Status == "ERROR" {
			return true
		}
	}
	return false
}

func expandGlobPatterns(patterns string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		files, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, file := range files {
			absFile, err := filepath.Abs(file)
			if err != nil {
				continue
			}
			if !seen[absFile] {
				if info, err := os.Stat(absFile); err == nil && info.Mode().IsRegular() {
					allFiles = append(allFiles, absFile)
					seen[absFile] = true
				}
			}
		}
	}
	return allFiles, nil
}
