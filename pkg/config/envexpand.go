package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv expands environment variables in YAML content using Go
// templates. Uses {{.VAR_NAME}} syntax so literal $ characters in
// queries, regexes, and passwords survive untouched.
//
// Examples:
//   - {{.FIRECRAWL_API_KEY}} → value of FIRECRAWL_API_KEY
//   - {{.LLM_HOST}}:{{.LLM_PORT}} → hostname:port with both expanded
//
// Missing variables expand to the empty string; validation catches
// required fields left empty. Content without template syntax passes
// through unchanged.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	envMap := make(map[string]string)
	for _, env := range os.Environ() {
		if idx := strings.IndexByte(env, '='); idx > 0 {
			envMap[env[:idx]] = env[idx+1:]
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, envMap); err != nil {
		return data
	}
	return buf.Bytes()
}
