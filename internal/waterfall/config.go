package waterfall

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/opendate-cli/internal/model"
)

// Config is the priority configuration file.
type Config struct {
	Priority []string `yaml:"priority"`
}

// LoadConfig reads a priority order from a YAML file with a top-level
// "waterfall" key. An empty order falls back to the default.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "waterfall: read config %s", path)
	}

	var wrapper struct {
		Waterfall Config `yaml:"waterfall"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "waterfall: parse config")
	}

	cfg := &wrapper.Waterfall
	if len(cfg.Priority) == 0 {
		cfg.Priority = append([]string(nil), model.DefaultPriority...)
	}
	return cfg, nil
}
