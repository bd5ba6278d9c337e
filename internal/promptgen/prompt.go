package promptgen

import "strings"

// contentPlaceholder marks where the scene content lands in the template.
const contentPlaceholder = "{content}"

// BuildInput joins the configured story background and the transcript into
// the scene content fed to the model. An empty background contributes
// nothing.
func BuildInput(background, transcript string) string {
	background = strings.TrimSpace(background)
	transcript = strings.TrimSpace(transcript)
	if background == "" {
		return transcript
	}
	if transcript == "" {
		return background
	}
	return background + "\n\n" + transcript
}

// RenderTemplate substitutes content into every placeholder occurrence. A
// blank template passes the content through untouched.
func RenderTemplate(template, content string) string {
	if strings.TrimSpace(template) == "" {
		return content
	}
	return strings.ReplaceAll(template, contentPlaceholder, content)
}
