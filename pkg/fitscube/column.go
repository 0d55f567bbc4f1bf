package fitscube

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ReadColumn reads a single-column ASCII vector file, one value per
// line, the format the frequency and noise vectors arrive in. Blank
// lines and '#' comments are skipped.
func ReadColumn(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var vals []float64
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		v, err := strconv.ParseFloat(strings.Fields(text)[0], 64)
		if err != nil {
			return nil, fmt.Errorf("fitscube: %s line %d: %w", path, line, err)
		}
		vals = append(vals, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("fitscube: %s contains no values", path)
	}
	return vals, nil
}
