package comfyui

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"murmur/internal/services"
)

//go:embed default_workflow.json
var defaultWorkflowJSON []byte

const (
	classTextEncode = "CLIPTextEncode"
	positiveTitle   = "CLIP Text Encode (Positive Prompt)"
)

// NodeMeta carries the editor metadata attached to a workflow node.
type NodeMeta struct {
	Title string `json:"title"`
}

// Node is one typed node in a workflow graph.
type Node struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
	Meta      *NodeMeta      `json:"_meta,omitempty"`
}

// Workflow is a prompt graph keyed by node id, in the server's API format.
type Workflow map[string]Node

// DefaultWorkflow returns the embedded text-to-image graph.
func DefaultWorkflow() (Workflow, error) {
	return parseWorkflow(defaultWorkflowJSON)
}

// LoadWorkflow reads a workflow graph from path. An empty path selects the
// embedded default. Each call returns a fresh graph, so callers may mutate
// the result freely.
func LoadWorkflow(path string) (Workflow, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultWorkflow()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "render", "load workflow",
			fmt.Sprintf("read %s", path), err)
	}
	workflow, err := parseWorkflow(data)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "render", "load workflow",
			fmt.Sprintf("parse %s", path), err)
	}
	return workflow, nil
}

func parseWorkflow(data []byte) (Workflow, error) {
	var workflow Workflow
	if err := json.Unmarshal(data, &workflow); err != nil {
		return nil, fmt.Errorf("parse workflow graph: %w", err)
	}
	if len(workflow) == 0 {
		return nil, fmt.Errorf("workflow graph has no nodes")
	}
	return workflow, nil
}

// SetPositivePrompt overwrites the text input of every text-encoding node
// titled as the positive prompt. The graph must contain at least one such
// node; rendering an unrelated graph is a configuration mistake, not
// something to paper over.
func (w Workflow) SetPositivePrompt(text string) error {
	updated := 0
	for id, node := range w {
		if node.ClassType != classTextEncode {
			continue
		}
		if node.Meta == nil || node.Meta.Title != positiveTitle {
			continue
		}
		if node.Inputs == nil {
			node.Inputs = make(map[string]any)
			w[id] = node
		}
		node.Inputs["text"] = text
		updated++
	}
	if updated == 0 {
		return services.Wrap(services.ErrConfiguration, "render", "set prompt",
			fmt.Sprintf("workflow has no %q node titled %q", classTextEncode, positiveTitle), nil)
	}
	return nil
}
