package store

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ReadDocIDs reads one decimal document ID per line. Blank lines and lines
// starting with '#' are skipped.
func ReadDocIDs(path string) ([]uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening ID file: %w", err)
	}
	defer f.Close()

	var ids []uint32
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		id, err := strconv.ParseUint(text, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: bad document ID %q: %w", path, line, text, err)
		}
		ids = append(ids, uint32(id))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ID file: %w", err)
	}
	return ids, nil
}
