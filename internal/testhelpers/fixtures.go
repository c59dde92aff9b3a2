package testhelpers

import (
	"os"
	"path/filepath"
	"runtime"
)

// LoadFixture reads testhelpers/fixtures/<name> from any package's tests.
func LoadFixture(name string) ([]byte, error) {
	_, file, _, _ := runtime.Caller(0)
	return os.ReadFile(filepath.Join(filepath.Dir(file), "fixtures", name))
}
