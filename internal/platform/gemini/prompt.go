package gemini

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"os"
	"text/template"

	"github.com/phrazzld/ragbench/internal/evaluation"
)

//go:embed prompts/answer.tmpl
var promptFS embed.FS

const defaultPromptPath = "prompts/answer.tmpl"

type promptTemplate struct {
	tmpl *template.Template
	// version is a short content hash recorded as provenance.
	version string
}

type promptData struct {
	Question string
}

// loadPrompt parses the template at path, or the embedded default when path
// is empty.
func loadPrompt(path string) (*promptTemplate, error) {
	var (
		raw []byte
		err error
	)
	if path == "" {
		raw, err = promptFS.ReadFile(defaultPromptPath)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read prompt template: %v", evaluation.ErrInvalidConfig, err)
	}

	tmpl, err := template.New("answer").Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v", evaluation.ErrInvalidConfig, err)
	}

	sum := sha256.Sum256(raw)
	return &promptTemplate{tmpl: tmpl, version: hex.EncodeToString(sum[:4])}, nil
}

func (p *promptTemplate) render(question string) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, promptData{Question: question}); err != nil {
		return "", fmt.Errorf("%w: failed to execute prompt template: %v", evaluation.ErrPermanentService, err)
	}
	return buf.String(), nil
}
