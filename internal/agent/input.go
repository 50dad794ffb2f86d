package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/metalagman/anvil/internal/model"
)

func initialInput(rec model.ProjectRecord, template string) string {
	var b strings.Builder
	b.WriteString("PROJECT_DESCRIPTION: ")
	b.WriteString(rec.Description)
	b.WriteString("\n")
	scope, _ := json.Marshal(rec.Scope)
	b.WriteString("PROJECT_SCOPE: ")
	b.Write(scope)
	b.WriteString("\n")
	if len(rec.ExternalURLs) > 0 {
		b.WriteString("EXTERNAL_URLS: ")
		b.WriteString(strings.Join(rec.ExternalURLs, ", "))
		b.WriteString("\n")
	}
	b.WriteString("CODE_TEMPLATE:\n")
	b.WriteString(template)
	return b.String()
}

func improveInput(rec model.ProjectRecord) string {
	facts := struct {
		Description  string           `json:"project_description"`
		Scope        model.ScopeFlags `json:"project_scope"`
		ExternalURLs []string         `json:"external_urls,omitempty"`
	}{rec.Description, rec.Scope, rec.ExternalURLs}
	data, _ := json.MarshalIndent(facts, "", "  ")
	return fmt.Sprintf("PROJECT_DESCRIPTION:\n%s\nCURRENT_SOURCE:\n%s", data, rec.Source())
}

func fixInput(source, buildErr string) string {
	return fmt.Sprintf("BROKEN_CODE:\n%s\nERROR_BUGS:\n%s\nTHIS FUNCTION ONLY OUTPUTS CODE. JUST OUTPUT THE CODE.", source, buildErr)
}

func schemaInput(source string) string {
	return "CODE_INPUT:\n" + source
}
