package notebook

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterDelimiter = "---"

// stripFrontmatter detects a leading "---\n...\n---\n" YAML block (spec
// §4.2) and returns the parsed value, the remaining content, and the
// number of lines the frontmatter block (including both delimiters)
// occupied — callers use that count to offset line numbers for cells
// parsed out of the remainder.
func stripFrontmatter(content []byte) (fm any, rest []byte, lineOffset int, err error) {
	reader := bufio.NewReader(bytes.NewReader(content))

	firstLine, readErr := reader.ReadString('\n')
	if readErr != nil && firstLine == "" {
		return nil, content, 0, nil
	}

	if strings.TrimSpace(firstLine) != frontmatterDelimiter {
		return nil, content, 0, nil
	}

	var raw bytes.Buffer
	lines := 1
	closed := false

	for {
		line, readErr := reader.ReadString('\n')
		if line == "" && readErr != nil {
			break
		}

		lines++

		if strings.TrimSpace(line) == frontmatterDelimiter {
			closed = true

			break
		}

		raw.WriteString(line)

		if readErr != nil {
			break
		}
	}

	if !closed {
		return nil, content, 0, errors.New("frontmatter not closed: missing closing '---'")
	}

	var value any
	if raw.Len() > 0 {
		if err := yaml.Unmarshal(raw.Bytes(), &value); err != nil {
			return nil, content, 0, err
		}
	}

	rest, _ = io.ReadAll(reader)

	return value, rest, lines, nil
}
