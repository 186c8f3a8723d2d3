// ABOUTME: Fallback idea pool: generic card stubs served when the backend yields nothing usable.
// ABOUTME: Sampled without replacement; a YAML file can override the built-in pool.
package engine

import (
	"fmt"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"
)

// FallbackIdea is one entry in the fallback pool. Body is markdown.
type FallbackIdea struct {
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
}

// defaultFallbackPool is the built-in idea pool used when generation fails
// twice. Deliberately generic: these stubs exist to keep the board usable,
// not to be good suggestions.
var defaultFallbackPool = []FallbackIdea{
	{Title: "Brainstorm next steps", Body: "List three concrete next steps for this column."},
	{Title: "Review recent cards", Body: "Pick an older card in this column and check whether it is still relevant."},
	{Title: "Break down a big task", Body: "Choose the largest card here and split it into smaller pieces."},
	{Title: "Capture an open question", Body: "Write down one unresolved question blocking progress."},
	{Title: "Tidy up titles", Body: "Rename vague card titles so they state an outcome."},
	{Title: "Identify a blocker", Body: "Note anything currently preventing cards from moving forward."},
	{Title: "Celebrate a win", Body: "Record one recent thing that went well."},
	{Title: "Schedule a follow-up", Body: "Add a card for something that needs revisiting next week."},
}

// FallbackPool holds the idea stubs used when generation degrades.
type FallbackPool struct {
	ideas []FallbackIdea
}

// DefaultFallbackPool returns the built-in pool.
func DefaultFallbackPool() *FallbackPool {
	return &FallbackPool{ideas: defaultFallbackPool}
}

// LoadFallbackPool reads a YAML idea pool from path. The file is a list of
// {title, body} entries; an empty or unreadable file is an error so a bad
// override never silently replaces the built-in pool.
func LoadFallbackPool(path string) (*FallbackPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fallback pool: %w", err)
	}
	var ideas []FallbackIdea
	if err := yaml.Unmarshal(data, &ideas); err != nil {
		return nil, fmt.Errorf("parsing fallback pool: %w", err)
	}
	if len(ideas) == 0 {
		return nil, fmt.Errorf("fallback pool %s contains no ideas", path)
	}
	return &FallbackPool{ideas: ideas}, nil
}

// Sample returns up to count drafts sampled without replacement, each
// flagged as a fallback. When count exceeds the pool size, every idea is
// returned once.
func (p *FallbackPool) Sample(count int) []Draft {
	if count <= 0 {
		return nil
	}

	indices := rand.Perm(len(p.ideas))
	if count > len(indices) {
		count = len(indices)
	}

	drafts := make([]Draft, 0, count)
	for _, idx := range indices[:count] {
		idea := p.ideas[idx]
		drafts = append(drafts, Draft{
			Title:    idea.Title,
			HTMLBody: htmlCache.Convert(idea.Body),
			Fallback: true,
		})
	}
	return drafts
}

// Size reports the number of ideas in the pool.
func (p *FallbackPool) Size() int { return len(p.ideas) }
