package graphtest

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/nodegraph/provisioner/internal/graph/schema"
)

// ParseDocument parses a Dgraph schema document into predicate metadata and
// type field lists. Only the subset of the syntax the provisioner emits is
// understood.
func ParseDocument(doc string) ([]schema.PredicateMeta, map[string][]string, error) {
	var preds []schema.PredicateMeta
	types := make(map[string][]string)

	scanner := bufio.NewScanner(strings.NewReader(doc))
	var currentType string
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if currentType != "" {
			if line == "}" {
				currentType = ""
				continue
			}
			types[currentType] = append(types[currentType], line)
			continue
		}

		if strings.HasPrefix(line, "type ") && strings.HasSuffix(line, "{") {
			currentType = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(line, "type "), "{"))
			types[currentType] = []string{}
			continue
		}

		meta, err := parsePredicateLine(line)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		preds = append(preds, meta)
	}

	if currentType != "" {
		return nil, nil, fmt.Errorf("unterminated type block %s", currentType)
	}

	return preds, types, scanner.Err()
}

func parsePredicateLine(line string) (schema.PredicateMeta, error) {
	if !strings.HasSuffix(line, " .") {
		return schema.PredicateMeta{}, fmt.Errorf("predicate line must end with ' .': %q", line)
	}
	line = strings.TrimSuffix(line, " .")

	name, rest, ok := strings.Cut(line, ":")
	if !ok {
		return schema.PredicateMeta{}, fmt.Errorf("missing ':' in %q", line)
	}

	meta := schema.PredicateMeta{Predicate: strings.TrimSpace(name)}
	rest = strings.TrimSpace(rest)

	typ, directives, _ := strings.Cut(rest, " ")
	if strings.HasPrefix(typ, "[") && strings.HasSuffix(typ, "]") {
		meta.List = true
		typ = strings.Trim(typ, "[]")
	}
	meta.Type = typ

	directives = strings.TrimSpace(directives)
	if start := strings.Index(directives, "@index("); start >= 0 {
		end := strings.Index(directives[start:], ")")
		if end < 0 {
			return schema.PredicateMeta{}, fmt.Errorf("unterminated @index in %q", line)
		}
		for _, tok := range strings.Split(directives[start+len("@index("):start+end], ",") {
			if tok = strings.TrimSpace(tok); tok != "" {
				meta.Index = append(meta.Index, tok)
			}
		}
	}
	meta.Upsert = strings.Contains(directives, "@upsert")

	return meta, nil
}
