package commandstructure

type mockCommand struct {
	name        string
	executeFunc func([]byte) ([]byte, error)
}

func (m *mockCommand) Name() string {
	return m.name
}

func (m *mockCommand) Execute(imageData []byte) ([]byte, error) {
	if m.executeFunc != nil {
		return m.executeFunc(imageData)
	}
	return imageData, nil
}

func newMockCommand(name string) *mockCommand {
	return &mockCommand{name: name}
}

func newMockCommandWithError(name string, err error) *mockCommand {
	return &mockCommand{
		name: name,
		executeFunc: func([]byte) ([]byte, error) {
			return nil, err
		},
	}
}

func appendingCommand(name, suffix string) *mockCommand {
	return &mockCommand{
		name: name,
		executeFunc: func(data []byte) ([]byte, error) {
			return append(append([]byte(nil), data...), suffix...), nil
		},
	}
}
