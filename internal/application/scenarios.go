package application

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/ahrav/go-ballot/internal/ports"
)

//go:embed scenarios/*.yaml
var embeddedScenarios embed.FS

// Names of the scenarios shipped with the binary.
const (
	ScenarioGeneral2018 = "general2018"
	ScenarioLocal2024   = "local2024"
)

// EmbeddedScenarios lists the built-in scenario names in sorted order.
func EmbeddedScenarios() []string {
	entries, err := fs.ReadDir(embeddedScenarios, "scenarios")
	if err != nil {
		return nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".yaml"); ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// EmbeddedScenario returns the YAML source of a built-in scenario.
func EmbeddedScenario(name string) ([]byte, error) {
	data, err := embeddedScenarios.ReadFile(path.Join("scenarios", name+".yaml"))
	if err != nil {
		return nil, ports.NewConfigError("scenario."+name, fmt.Errorf("%w: %w", ports.ErrConfigNotFound, err))
	}
	return data, nil
}
