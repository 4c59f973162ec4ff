package runner

import "os"

// LoadFile reads a test document into a fresh TestContext. It does not
// parse it; that happens when the context is run.
func LoadFile(path string) (*TestContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return NewTestContext(path, string(data)), nil
}
