package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"autodojo/internal/autodojo"
	"autodojo/internal/schema"
	"autodojo/internal/verb"
)

// Manifest перечисляет роутеры, которые нужно собрать
type Manifest struct {
	Routers []Router `yaml:"routers"`
}

// Router — одна запись манифеста: модель и настройки её схем.
// Пустой verbs означает набор по умолчанию.
type Router struct {
	Namespace       string                      `yaml:"namespace"`
	Model           string                      `yaml:"model"`
	Verbs           []verb.Verb                 `yaml:"verbs,omitempty"`
	RequestSchemas  map[verb.Verb]schema.Config `yaml:"request_schemas,omitempty"`
	ResponseSchemas map[verb.Verb]schema.Config `yaml:"response_schemas,omitempty"`
}

// Options переводит запись в параметры autodojo.NewRouter.
func (r Router) Options() autodojo.Options {
	return autodojo.Options{
		Namespace:       r.Namespace,
		Model:           r.Model,
		Verbs:           r.Verbs,
		RequestConfigs:  r.RequestSchemas,
		ResponseConfigs: r.ResponseSchemas,
	}
}

// Load читает манифест из файла или из всех *.yaml/*.yml папки (по имени файла)
func Load(path string) (*Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	files := []string{path}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		files = files[:0]
		for _, e := range entries {
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
		sort.Strings(files)
	}

	out := &Manifest{}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		var part Manifest
		if err := yaml.Unmarshal(data, &part); err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		out.Routers = append(out.Routers, part.Routers...)
	}
	if len(out.Routers) == 0 {
		return nil, errors.New("no routers declared in " + path)
	}
	return out, nil
}
