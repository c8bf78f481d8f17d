// Package prompts supplies named prompt templates for the feature
// layers above the routing core, with a simple versioning registry.
package prompts

import (
	"fmt"
	"sort"
	"strings"
)

// Static default templates. Placeholders use {name} syntax and are
// substituted by Render.
var templates = map[string]string{
	"rag_qa": "You are a helpful assistant. Answer the question using only the provided context.\n\n" +
		"Context:\n{context}\n\nQuestion: {question}",

	"summarize": "Summarize the following text in at most {max_sentences} sentences, " +
		"preserving key facts and figures.\n\n{text}",

	"classify": "Classify the following text into exactly one of these categories: {categories}.\n" +
		"Respond with the category name only.\n\n{text}",
}

// Get returns the default template for name.
func Get(name string) (string, error) {
	tpl, ok := templates[name]
	if !ok {
		return "", fmt.Errorf("prompt %q not found", name)
	}
	return tpl, nil
}

// Names returns the available default template names, sorted.
func Names() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render substitutes {placeholder} occurrences in the named template.
// Unmatched placeholders are left verbatim.
func Render(name string, vars map[string]string) (string, error) {
	tpl, err := Get(name)
	if err != nil {
		return "", err
	}

	for key, value := range vars {
		tpl = strings.ReplaceAll(tpl, "{"+key+"}", value)
	}
	return tpl, nil
}
