// Package characters provides the read-only character directory.
package characters

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/ashureev/statefultalk/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed characters.yaml
var bundled []byte

// Directory is an immutable lookup of characters keyed by handle.
type Directory struct {
	list     []domain.Character
	byHandle map[string]int
}

// Bundled loads the directory compiled into the binary.
func Bundled() (*Directory, error) {
	return Load(bundled)
}

// Empty returns a directory with no characters. The server falls back to it
// when the configured directory fails to load.
func Empty() *Directory {
	return &Directory{byHandle: map[string]int{}}
}

// LoadFile loads a directory from a YAML file on disk.
func LoadFile(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read characters file: %w", err)
	}
	return Load(data)
}

// Load decodes a YAML list of characters.
// An empty or null list is a data integrity error.
func Load(data []byte) (*Directory, error) {
	var list []domain.Character
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode characters: %w", err)
	}
	if len(list) == 0 {
		return nil, domain.ErrEmptyCharacterList
	}

	d := &Directory{
		list:     make([]domain.Character, 0, len(list)),
		byHandle: make(map[string]int, len(list)),
	}
	for i, c := range list {
		c.Handle = strings.TrimSpace(c.Handle)
		c.Bio = strings.TrimSpace(c.Bio)
		if c.Handle == "" {
			return nil, fmt.Errorf("character %d has no handle", i)
		}
		if _, dup := d.byHandle[c.Handle]; dup {
			return nil, fmt.Errorf("duplicate character handle %q", c.Handle)
		}
		d.byHandle[c.Handle] = len(d.list)
		d.list = append(d.list, c)
	}
	return d, nil
}

// All returns every character in dataset order.
func (d *Directory) All() []domain.Character {
	return append([]domain.Character(nil), d.list...)
}

// Len returns the number of characters.
func (d *Directory) Len() int {
	return len(d.list)
}

// Get looks up a character by handle.
func (d *Directory) Get(handle string) (domain.Character, error) {
	i, ok := d.byHandle[handle]
	if !ok {
		return domain.Character{}, domain.CharacterNotFoundError(handle)
	}
	return d.list[i], nil
}

// Search returns characters whose name or short description contains term,
// case-insensitively. An empty term returns everything.
func (d *Directory) Search(term string) []domain.Character {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return d.All()
	}
	var out []domain.Character
	for _, c := range d.list {
		if strings.Contains(strings.ToLower(c.Name), term) ||
			strings.Contains(strings.ToLower(c.ShortDescription), term) {
			out = append(out, c)
		}
	}
	return out
}
