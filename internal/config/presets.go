package config

import "sort"

// Supported languages of the generated server.
const (
	LanguageRust = "rust"
	LanguageJava = "java"
	LanguageGo   = "go"
)

type preset struct {
	dir          string
	templatePath string
	sourcePath   string
	buildCmd     []string
	updateCmd    []string
	runCmd       []string
}

var presets = map[string]preset{
	LanguageRust: {
		dir:          "web_template_rust",
		templatePath: "src/code_template.rs",
		sourcePath:   "src/main.rs",
		buildCmd:     []string{"cargo", "build"},
		updateCmd:    []string{"cargo", "update"},
		runCmd:       []string{"cargo", "run"},
	},
	LanguageJava: {
		dir:          "web_template_java",
		templatePath: "src/main/java/com/example/demo/CodeTemplate.java",
		sourcePath:   "src/main/java/com/example/demo/DemoApplication.java",
		buildCmd:     []string{"./mvnw", "-q", "compile"},
		updateCmd:    []string{"./mvnw", "-q", "-U", "dependency:resolve"},
		runCmd:       []string{"./mvnw", "-q", "spring-boot:run"},
	},
	LanguageGo: {
		dir:          "web_template_go",
		templatePath: "template.go.txt",
		sourcePath:   "main.go",
		buildCmd:     []string{"go", "build", "./..."},
		updateCmd:    []string{"go", "mod", "tidy"},
		runCmd:       []string{"go", "run", "."},
	},
}

// Languages returns the known language presets in stable order.
func Languages() []string {
	out := make([]string, 0, len(presets))
	for name := range presets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
