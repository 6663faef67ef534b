// helper.go --  This file is part of goCIDER project.
// Mirzaeva Irina, 2023
//
//	goCIDER is distributed in the hope that it will be useful,
//	but WITHOUT ANY WARRANTY; without even the implied warranty
//	of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//	See the GNU General Public License for more details.
//
//	You should have received a copy of the GNU General Public License
//	along with this program.  If not, see http://www.gnu.org/licenses/
//
// ------------------------------------------------
package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var (
	WarningLogger *log.Logger
	InfoLogger    *log.Logger
	ErrorLogger   *log.Logger
	OutputLogger  *log.Logger
)

// initLog opens the output file and points the loggers and the default
// slog handler at it.
func initLog(fname string, level slog.Level) (io.Closer, error) {
	file, err := os.OpenFile(fname, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	setLoggers(file, level)
	return file, nil
}

func setLoggers(w io.Writer, level slog.Level) {
	InfoLogger = log.New(w, "INFO: ", log.Ldate|log.Ltime)
	WarningLogger = log.New(w, "WARNING: ", log.Ldate|log.Ltime)
	ErrorLogger = log.New(w, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)
	OutputLogger = log.New(w, "", 0)
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func appInfo(runID string) {
	OutputLogger.Println("\n              __  ____  ____  ____  ____  ____ \n" +
		"   __   ___  / _)(_  _)(  _ \\( ___)(  _ \\   | Author: Mirzaeva Irina Valerievna\n" +
		"  / _`\\/ _ \\( (_  _)(_  )(_) ))__)  )   /   | email: dairdre@gmail.com\n" +
		"  \\__, \\___/ \\__)(____)(____/(____)(_)\\_)   | Nonlocal CIDER features for PAW atoms\n" +
		"  |___/                                     | Have Fun!!!")
	OutputLogger.Println("Run ID:", runID)
}

func printOutputDelimiter() {
	OutputLogger.Println(strings.Repeat("-", 70))
}

func ReadFileLines(fname string) ([]string, error) {
	file, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return readLines(file)
}

func readLines(r io.Reader) ([]string, error) {
	var result []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		result = append(result, scanner.Text())
	}
	return result, scanner.Err()
}

// unpack expands a packed upper triangle of an n x n symmetric matrix.
func unpack(n int, p []float64) *mat.SymDense {
	m := mat.NewSymDense(n, nil)
	k := 0
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			m.SetSym(i, j, p[k])
			k++
		}
	}
	return m
}

func PrintDense(D mat.Matrix) {
	fa := mat.Formatted(D, mat.Prefix("    "), mat.Squeeze())
	OutputLogger.Printf("    %.8f\n", fa)
}

func MyMemDebug() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	InfoLogger.Printf("Alloc: %d bytes, TotalAlloc: %d bytes, HeapSys: %d bytes", memStats.Alloc, memStats.TotalAlloc, memStats.HeapSys)
}

func outputName(inp string) string {
	split := strings.Split(inp, ".")
	if len(split) < 2 {
		return inp + ".out"
	}
	ext := split[len(split)-1]
	return inp[:len(inp)-len(ext)] + "out"
}

func fatalf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	if ErrorLogger != nil {
		ErrorLogger.Println(err)
	}
	return err
}
