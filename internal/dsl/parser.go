package dsl

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	entityRe = regexp.MustCompile(`^entity\s+(\w+)\s*:(.*)$`)
	fieldRe  = regexp.MustCompile(`^\s*([\w_]+):\s*([^\s#]+)(.*)$`)
	enumRe   = regexp.MustCompile(`^enum\[(.*)\]$`)
	refRe    = regexp.MustCompile(`^ref\[([A-Za-z0-9_.]+)\]$`)
	arrayRe  = regexp.MustCompile(`^array\[(.+)\]$`)
	moduleRe = regexp.MustCompile(`^\s*module\s+([A-Za-z0-9_.-]+)\s*$`)
)

// splitOptionTokens делит "k=v k2='v 2' flag" на токены, не рвёт внутри кавычек
func splitOptionTokens(s string) []string {
	var out []string
	var buf []rune
	var quote rune

	flush := func() {
		if len(buf) > 0 {
			out = append(out, string(buf))
			buf = buf[:0]
		}
	}

	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
			buf = append(buf, r)
		case r == '\'' || r == '"':
			quote = r
			buf = append(buf, r)
		case r == ' ' || r == '\t' || r == ',':
			flush()
		default:
			buf = append(buf, r)
		}
	}
	flush()
	return out
}

// parseOptions: флаг без значения → "true", кавычки снимаются
func parseOptions(raw string) map[string]string {
	opts := map[string]string{}
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}
	if strings.HasPrefix(strings.ToLower(raw), "options:") {
		raw = raw[len("options:"):]
	}
	for _, tok := range splitOptionTokens(raw) {
		if !strings.Contains(tok, "=") {
			opts[strings.ToLower(tok)] = "true"
			continue
		}
		kv := strings.SplitN(tok, "=", 2)
		k := strings.ToLower(strings.TrimSpace(kv[0]))
		if k == "" {
			continue
		}
		opts[k] = unquote(strings.TrimSpace(kv[1]))
	}
	return opts
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

func enumValues(inside string) []string {
	var out []string
	for _, p := range splitOptionTokens(inside) {
		if s := unquote(strings.TrimSpace(p)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// LoadEntities читает один .dsl файл
func LoadEntities(path string) ([]*Entity, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ParseEntities(file)
}

// ParseEntities разбирает DSL из произвольного reader'а.
func ParseEntities(r io.Reader) ([]*Entity, error) {
	var entities []*Entity
	var current *Entity
	currentModule := ""
	lineNo := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if m := moduleRe.FindStringSubmatch(line); m != nil {
			currentModule = m[1]
			continue
		}

		if m := entityRe.FindStringSubmatch(line); m != nil {
			if current != nil {
				entities = append(entities, current)
			}
			current = &Entity{
				Module:  currentModule,
				Name:    m[1],
				Options: parseOptions(m[2]),
			}
			continue
		}
		if current == nil {
			// всё вне сущности игнорируем
			continue
		}

		m := fieldRe.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("line %d: cannot parse %q", lineNo, line)
		}
		name, rawType, tail := m[1], m[2], m[3]

		// склейка enum["Hard Cover", ...]: пробел внутри скобок рвёт тип
		if strings.HasPrefix(rawType, "enum[") || strings.HasPrefix(rawType, "array[enum[") {
			for strings.Count(rawType, "[") > strings.Count(rawType, "]") {
				idx := strings.Index(tail, "]")
				if idx < 0 {
					break
				}
				rawType += tail[:idx+1]
				tail = tail[idx+1:]
			}
		}

		f := Field{
			Name:    name,
			Type:    strings.ToLower(rawType),
			Options: parseOptions(tail),
		}
		if mm := enumRe.FindStringSubmatch(rawType); mm != nil {
			f.Type = "enum"
			f.Enum = enumValues(mm[1])
		} else if mm := refRe.FindStringSubmatch(rawType); mm != nil {
			f.Type = "ref"
			f.RefTarget = mm[1]
		} else if mm := arrayRe.FindStringSubmatch(rawType); mm != nil {
			f.Type = "array"
			elem := strings.TrimSpace(mm[1])
			f.ElemType = strings.ToLower(elem)
			switch {
			case refRe.MatchString(elem):
				// array[ref[...]]
				f.ElemType = "ref"
				f.RefTarget = refRe.FindStringSubmatch(elem)[1]
			case enumRe.MatchString(elem):
				f.ElemType = "enum"
				f.Enum = enumValues(enumRe.FindStringSubmatch(elem)[1])
			}
		}

		current.Fields = append(current.Fields, f)
	}

	if current != nil {
		entities = append(entities, current)
	}
	return entities, scanner.Err()
}

// LoadAllEntities обходит root и собирает все *.dsl, ключ — FQN ("module.Entity")
func LoadAllEntities(root string) (map[string]*Entity, error) {
	result := make(map[string]*Entity)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".dsl") {
			return nil
		}

		ents, err := LoadEntities(path)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		for _, e := range ents {
			if e.Module == "" {
				return fmt.Errorf("entity %q in %s has no module — add `module <name>` at the top", e.Name, path)
			}
			if _, exists := result[e.FQN()]; exists {
				return fmt.Errorf("duplicate entity %q in module %q (file: %s)", e.Name, e.Module, path)
			}
			result[e.FQN()] = e
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
