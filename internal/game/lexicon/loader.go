package lexicon

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// yamlLexiconFile is the top-level YAML structure for word-list files.
type yamlLexiconFile struct {
	Lexicon yamlLexicon `yaml:"lexicon"`
}

// yamlLexicon is the YAML representation of a word list.
type yamlLexicon struct {
	Name         string      `yaml:"name"`
	DefaultScore int         `yaml:"default_score"`
	Words        []yamlentry `yaml:"words"`
}

// yamlentry is one word entry. Score falls back to the list's default_score
// when omitted.
type yamlentry struct {
	Word  string `yaml:"word"`
	Score int    `yaml:"score"`
}

// LoadFromFile reads and validates a single word-list YAML file.
//
// Precondition: path must point to a valid YAML word-list file.
// Postcondition: Returns a word→score map or a non-nil error.
func LoadFromFile(path string) (map[string]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lexicon file %s: %w", path, err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses and validates a word list from YAML bytes.
//
// Precondition: data must be valid YAML conforming to the lexicon schema.
// Postcondition: Returns a word→score map or a non-nil error.
func LoadFromBytes(data []byte) (map[string]int, error) {
	var file yamlLexiconFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing lexicon YAML: %w", err)
	}

	lx := file.Lexicon
	if lx.Name == "" {
		return nil, fmt.Errorf("lexicon name must not be empty")
	}
	if len(lx.Words) == 0 {
		return nil, fmt.Errorf("lexicon %q contains no words", lx.Name)
	}

	defaultScore := lx.DefaultScore
	if defaultScore <= 0 {
		defaultScore = 1
	}

	words := make(map[string]int, len(lx.Words))
	for _, e := range lx.Words {
		w := Normalize(e.Word)
		if w == "" {
			return nil, fmt.Errorf("lexicon %q contains an empty word entry", lx.Name)
		}
		if strings.ContainsAny(w, " \t") {
			return nil, fmt.Errorf("lexicon %q: word %q contains whitespace", lx.Name, e.Word)
		}
		score := e.Score
		if score == 0 {
			score = defaultScore
		}
		if score < 0 {
			return nil, fmt.Errorf("lexicon %q: word %q has negative score %d", lx.Name, e.Word, e.Score)
		}
		if existing, ok := words[w]; !ok || score > existing {
			words[w] = score
		}
	}

	return words, nil
}

// LoadDir loads all YAML files in a directory and merges them into one
// Lexicon. Duplicate words across files keep the higher score.
//
// Precondition: dir must be a valid directory path.
// Postcondition: Returns a merged Lexicon or the first error encountered.
func LoadDir(dir string) (*Lexicon, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading lexicon directory %s: %w", dir, err)
	}

	merged := make(map[string]int)
	files := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		words, err := LoadFromFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("loading lexicon from %s: %w", name, err)
		}
		for w, score := range words {
			if existing, ok := merged[w]; !ok || score > existing {
				merged[w] = score
			}
		}
		files++
	}

	if files == 0 {
		return nil, fmt.Errorf("no lexicon files found in %s", dir)
	}

	return New(merged), nil
}
