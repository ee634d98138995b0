package commandstructure

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// CommandInvoker applies commands in order, each one fed the previous output.
type CommandInvoker struct {
	commands []Command
}

func NewCommandInvoker(commands []Command) *CommandInvoker {
	return &CommandInvoker{
		commands: commands,
	}
}

// NewCommandInvokerFromConfigs creates every configured command up front so
// configuration errors surface at startup.
func NewCommandInvokerFromConfigs(registry *CommandRegistry, configs []CommandConfig) (*CommandInvoker, error) {
	commands := make([]Command, 0, len(configs))
	for i, cfg := range configs {
		command, err := registry.Create(cfg.Name, cfg.Params)
		if err != nil {
			return nil, fmt.Errorf("failed to create command at index %d (%s): %w", i, cfg.Name, err)
		}
		commands = append(commands, command)
	}
	return NewCommandInvoker(commands), nil
}

// Names lists the pipeline steps.
func (i *CommandInvoker) Names() []string {
	names := make([]string, len(i.commands))
	for idx, command := range i.commands {
		names[idx] = command.Name()
	}
	return names
}

func (i *CommandInvoker) Execute(imageData []byte) ([]byte, error) {
	start := time.Now()

	if len(i.commands) == 0 {
		log.Debug().Msg("no commands to execute, returning original image")
		return imageData, nil
	}

	currentData := imageData
	for idx, command := range i.commands {
		commandStart := time.Now()

		processedData, err := command.Execute(currentData)
		if err != nil {
			log.Error().Int("index", idx).Str("command_name", command.Name()).
				Int("input_size_bytes", len(currentData)).Err(err).
				Msg("command execution failed")
			return nil, fmt.Errorf("command %s (index %d) failed: %w", command.Name(), idx, err)
		}

		log.Debug().Int("index", idx).Str("command_name", command.Name()).
			Dur("duration", time.Since(commandStart)).
			Int("input_size_bytes", len(currentData)).
			Int("output_size_bytes", len(processedData)).
			Msg("command completed")

		currentData = processedData
	}

	log.Info().Int("command_count", len(i.commands)).
		Dur("duration", time.Since(start)).
		Int("input_size_bytes", len(imageData)).
		Int("final_size_bytes", len(currentData)).
		Msg("image processing pipeline completed")

	return currentData, nil
}
