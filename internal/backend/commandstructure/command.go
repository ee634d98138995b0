// Package commandstructure runs uploaded images through a configurable
// sequence of byte-to-byte commands.
package commandstructure

// Command transforms encoded image bytes.
type Command interface {
	Name() string
	Execute(imageData []byte) ([]byte, error)
}

// CommandFactory creates a command from its configuration parameters.
type CommandFactory func(params map[string]any) (Command, error)

// CommandConfig is one configured pipeline step.
type CommandConfig struct {
	Name   string         `yaml:"name" validate:"required"`
	Params map[string]any `yaml:",inline"`
}
