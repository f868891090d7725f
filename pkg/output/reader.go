package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Sternrassler/jira-scraper/pkg/record"
)

// maxLineSize bounds one JSONL line; issue descriptions can be large.
const maxLineSize = 16 << 20

// ReadFile reads every record of a JSONL file in order.
func ReadFile(path string) ([]record.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []record.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var r record.Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return records, nil
}
