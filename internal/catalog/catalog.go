// Package catalog holds the read-only lesson tree: year → specialization →
// semester → subject → leaf items. The tree is supplied as a YAML file and
// never mutated by the bot; slices keep the author's ordering.
package catalog

import (
	"errors"
	"fmt"
	"os"

	yaml "go.yaml.in/yaml/v3"
)

type Tree struct {
	Years []Year `yaml:"years"`
}

type Year struct {
	Name            string           `yaml:"name"`
	Specializations []Specialization `yaml:"specializations"`
}

type Specialization struct {
	Name      string     `yaml:"name"`
	Semesters []Semester `yaml:"semesters"`
}

type Semester struct {
	Name     string    `yaml:"name"`
	Subjects []Subject `yaml:"subjects"`
}

type Subject struct {
	Name  string `yaml:"name"`
	Items []Item `yaml:"items"`
}

// Item is a terminal catalog entry. Exactly one of URL and Ref is set:
// URL opens a link, Ref points at a stored message the bot copies over.
type Item struct {
	Title string      `yaml:"title"`
	URL   string      `yaml:"url,omitempty"`
	Ref   *ContentRef `yaml:"ref,omitempty"`
}

// ContentRef addresses a message in an archive channel.
type ContentRef struct {
	ChatID    int64 `yaml:"chat_id"`
	MessageID int   `yaml:"message_id"`
}

// LoadFile reads and validates a catalog tree from a YAML file.
func LoadFile(path string) (*Tree, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

func Parse(b []byte) (*Tree, error) {
	var t Tree
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("catalog yaml: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Tree) validate() error {
	if len(t.Years) == 0 {
		return errors.New("catalog: no years defined")
	}
	for _, y := range t.Years {
		if y.Name == "" {
			return errors.New("catalog: year with empty name")
		}
		for _, sp := range y.Specializations {
			if sp.Name == "" {
				return fmt.Errorf("catalog: empty specialization name under %q", y.Name)
			}
			for _, sem := range sp.Semesters {
				if sem.Name == "" {
					return fmt.Errorf("catalog: empty semester name under %q/%q", y.Name, sp.Name)
				}
				for _, sub := range sem.Subjects {
					if sub.Name == "" {
						return fmt.Errorf("catalog: empty subject name under %q/%q/%q", y.Name, sp.Name, sem.Name)
					}
					for _, it := range sub.Items {
						if it.Title == "" {
							return fmt.Errorf("catalog: item without title in subject %q", sub.Name)
						}
						if (it.URL == "") == (it.Ref == nil) {
							return fmt.Errorf("catalog: item %q must set exactly one of url/ref", it.Title)
						}
					}
				}
			}
		}
	}
	return nil
}

// Year returns the named year, or false if it no longer exists
// (sessions may outlive a catalog reload).
func (t *Tree) Year(name string) (*Year, bool) {
	for i := range t.Years {
		if t.Years[i].Name == name {
			return &t.Years[i], true
		}
	}
	return nil, false
}

func (y *Year) Specialization(name string) (*Specialization, bool) {
	for i := range y.Specializations {
		if y.Specializations[i].Name == name {
			return &y.Specializations[i], true
		}
	}
	return nil, false
}

func (sp *Specialization) Semester(name string) (*Semester, bool) {
	for i := range sp.Semesters {
		if sp.Semesters[i].Name == name {
			return &sp.Semesters[i], true
		}
	}
	return nil, false
}

func (sem *Semester) Subject(name string) (*Subject, bool) {
	for i := range sem.Subjects {
		if sem.Subjects[i].Name == name {
			return &sem.Subjects[i], true
		}
	}
	return nil, false
}
