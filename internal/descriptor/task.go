package descriptor

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// BuildTask expands templateFile, substituting {{.node_tag}}, and returns
// the rendered task document bytes (§4.3).
func BuildTask(templateFile, nodeTag string) ([]byte, error) {
	raw, err := os.ReadFile(templateFile)
	if err != nil {
		return nil, fmt.Errorf("read task template %s: %w", templateFile, err)
	}

	tmpl, err := template.New(filepath.Base(templateFile)).Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse task template %s: %w", templateFile, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]string{"node_tag": nodeTag}); err != nil {
		return nil, fmt.Errorf("expand task template %s: %w", templateFile, err)
	}

	return buf.Bytes(), nil
}

// PersistTask writes the expanded task document to out/tasks/<tag>.yaml,
// atomically as PersistBid does.
func PersistTask(outDir, tag string, rendered []byte) error {
	dir := filepath.Join(outDir, "tasks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	dest := filepath.Join(dir, tag+".yaml")
	return writeAtomic(dest, rendered)
}
