package commandstructure

import (
	"errors"
	"strings"
	"testing"
)

func TestCommandInvoker_EmptyCommandList(t *testing.T) {
	invoker := NewCommandInvoker(nil)
	testData := []byte("test data")

	result, err := invoker.Execute(testData)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if string(result) != string(testData) {
		t.Error("Expected result to match input for empty command list")
	}
}

func TestCommandInvoker_MultipleCommands(t *testing.T) {
	invoker := NewCommandInvoker([]Command{
		appendingCommand("Command1", "-cmd1"),
		appendingCommand("Command2", "-cmd2"),
	})

	result, err := invoker.Execute([]byte("start"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if string(result) != "start-cmd1-cmd2" {
		t.Errorf("Expected 'start-cmd1-cmd2', got '%s'", string(result))
	}
}

func TestCommandInvoker_ErrorInMiddle(t *testing.T) {
	sentinel := errors.New("command2 failed")
	called := false
	last := &mockCommand{name: "Command3", executeFunc: func(b []byte) ([]byte, error) {
		called = true
		return b, nil
	}}
	invoker := NewCommandInvoker([]Command{
		newMockCommand("Command1"),
		newMockCommandWithError("Command2", sentinel),
		last,
	})

	_, err := invoker.Execute([]byte("test"))
	if !errors.Is(err, sentinel) {
		t.Fatalf("Expected wrapped command error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Command2") {
		t.Errorf("Expected error to name the failing command, got %v", err)
	}
	if called {
		t.Error("Expected commands after the failure not to run")
	}
}

func TestNewCommandInvokerFromConfigs(t *testing.T) {
	registry := NewCommandRegistry()
	if err := registry.Register("Suffix", func(params map[string]any) (Command, error) {
		if err := ValidateRequiredParams(params, []string{"suffix"}); err != nil {
			return nil, err
		}
		return appendingCommand("Suffix", GetStringParam(params, "suffix", "")), nil
	}); err != nil {
		t.Fatalf("Failed to register command: %v", err)
	}

	invoker, err := NewCommandInvokerFromConfigs(registry, []CommandConfig{
		{Name: "Suffix", Params: map[string]any{"suffix": "-a"}},
		{Name: "Suffix", Params: map[string]any{"suffix": "-b"}},
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got := strings.Join(invoker.Names(), ","); got != "Suffix,Suffix" {
		t.Errorf("Unexpected names %s", got)
	}
	result, err := invoker.Execute([]byte("x"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if string(result) != "x-a-b" {
		t.Errorf("Expected 'x-a-b', got '%s'", string(result))
	}

	if _, err := NewCommandInvokerFromConfigs(registry, []CommandConfig{{Name: "Suffix"}}); err == nil {
		t.Error("Expected error for missing required parameter")
	}
	if _, err := NewCommandInvokerFromConfigs(registry, []CommandConfig{{Name: "Unknown"}}); err == nil {
		t.Error("Expected error for unknown command")
	}
}
