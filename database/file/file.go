// Pseudo source that reads dump text from a file or stdin.
package file

import (
	"fmt"
	"io"
	"os"
)

type FileSource struct {
	path string
}

func NewSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (f *FileSource) DumpSchema() (string, error) {
	return ReadFile(f.path)
}

func (f *FileSource) Close() error {
	return nil
}

// ReadFile reads the named file, or piped stdin when the path is "-".
func ReadFile(path string) (string, error) {
	var buf []byte
	var err error

	if path == "-" {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) != 0 {
			return "", fmt.Errorf("stdin is not piped")
		}
		buf, err = io.ReadAll(os.Stdin)
	} else {
		buf, err = os.ReadFile(path)
	}

	if err != nil {
		return "", err
	}
	return string(buf), nil
}
