package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
)

func formatMissingFieldsSection(fields []FieldInfo) string {
	if len(fields) == 0 {
		return ""
	}
	var buf strings.Builder
	buf.WriteString("# Missing required fields:\n")
	table := tablewriter.NewTable(&buf, tablewriter.WithRenderer(renderer.NewMarkdown()))
	table.Header("Field", "Description")
	for _, field := range fields {
		_ = table.Append(field.Name, field.Description)
	}
	_ = table.Render()
	return buf.String()
}

func formatKindsSection(kinds []string) string {
	if len(kinds) == 0 {
		return ""
	}
	return "# Workflows:\n- " + strings.Join(kinds, "\n- ")
}

// FormatToolRequest renders req as the user prompt shared by the classifier,
// the extractor and the dialogue generator.
func FormatToolRequest(req *ToolRequest) (string, error) {
	sections := []string{
		fmt.Sprintf("# Current Date: \n %s", time.Now().Format(time.RFC3339)),
	}
	kinds := make([]string, 0, len(req.Kinds))
	for _, k := range req.Kinds {
		kinds = append(kinds, string(k))
	}
	if s := formatKindsSection(kinds); s != "" {
		sections = append(sections, s)
	}
	if req.Intent != "" {
		sections = append(sections, fmt.Sprintf("# Workflow:\n%s", req.Intent))
	}
	if req.FieldSchema != "" {
		sections = append(sections, fmt.Sprintf("# Field schema JSON:\n```json\n%s\n```", req.FieldSchema))
	}
	if len(req.Fields) > 0 {
		fieldsJSON, err := json.Marshal(req.Fields)
		if err != nil {
			return "", err
		}
		sections = append(sections, fmt.Sprintf("# Known fields JSON:\n```json\n%s\n```", string(fieldsJSON)))
	}
	if req.Phase != "" {
		sections = append(sections, fmt.Sprintf("# Current Phase:\n%s", req.Phase))
	}
	if req.Status != "" {
		sections = append(sections, fmt.Sprintf("# Decision:\n%s", req.Status))
	}
	if req.Details != "" {
		sections = append(sections, fmt.Sprintf("# Details:\n%s", req.Details))
	}
	if req.DraftMessage != "" {
		sections = append(sections, fmt.Sprintf("# Draft reply:\n%s", req.DraftMessage))
	}
	if s := formatMissingFieldsSection(req.Missing); s != "" {
		sections = append(sections, s)
	}
	if req.Message != "" {
		sections = append(sections, fmt.Sprintf("# User Message:\n%s", req.Message))
	}
	return strings.Join(sections, "\n\n"), nil
}
