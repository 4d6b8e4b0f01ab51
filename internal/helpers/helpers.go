package helpers

import (
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"unicode"

	log "github.com/sirupsen/logrus"
	"lukechampine.com/blake3"
)

// Blake3Hex streams r through BLAKE3 and returns the upper-case hex digest.
func Blake3Hex(r io.Reader) (string, error) {
	hasher := blake3.New(32, nil)
	if _, err := io.Copy(hasher, r); err != nil {
		return "", fmt.Errorf("hashing content: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(hasher.Sum(nil))), nil
}

// CounterWriter tracks the number of bytes written to the underlying writer.
// OnWrite, when set, receives the running total after every write.
type CounterWriter struct {
	Total   uint64
	Writer  io.Writer
	OnWrite func(total uint64)
}

// Write implements the io.Writer interface for CounterWriter.
func (cw *CounterWriter) Write(p []byte) (int, error) {
	n, err := cw.Writer.Write(p)
	cw.Total += uint64(n)
	if cw.OnWrite != nil && n > 0 {
		cw.OnWrite(cw.Total)
	}
	return n, err
}

// BytesToSize converts a byte count into a human-readable string (KB, MB, GB, etc.).
func BytesToSize(bytes uint64) string {
	sizes := []string{"B", "KB", "MB", "GB", "TB"}
	if bytes == 0 {
		return "0B"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizes) {
		i = len(sizes) - 1 // Handle very large sizes
	}
	return fmt.Sprintf("%.2f%s", float64(bytes)/math.Pow(1024, float64(i)), sizes[i])
}

// RateToString renders a transfer rate in bytes per second, "-" when unknown.
func RateToString(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "-"
	}
	return BytesToSize(uint64(bytesPerSec)) + "/s"
}

// ConvertToSlug converts a string into a filesystem-friendly slug. Letters and digits
// of any script are kept; the result never starts with a dot.
func ConvertToSlug(str string) string {
	str = strings.ReplaceAll(str, " ", "_")
	str = strings.ReplaceAll(str, ":", "-")
	str = strings.ToLower(str)

	var filtered strings.Builder
	for _, ch := range str {
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || unicode.IsMark(ch) || strings.ContainsRune("._-", ch) {
			filtered.WriteRune(ch)
		}
	}
	str = filtered.String()

	// Simplify repeated and mixed separators until nothing changes
	for {
		before := str
		str = strings.ReplaceAll(str, "--", "-")
		str = strings.ReplaceAll(str, "__", "_")
		str = strings.ReplaceAll(str, "-_", "-")
		str = strings.ReplaceAll(str, "_-", "-")
		if str == before {
			break
		}
	}

	str = strings.TrimLeft(strings.Trim(str, "_-"), ".")
	str = strings.Trim(str, "_-")

	return str
}

// CheckAndMakeDir ensures a directory exists, creating it if necessary.
func CheckAndMakeDir(dir string) bool {
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		log.WithError(err).Errorf("Error creating directory %s", dir)
		return false
	}
	return true
}
