package process_blob

import (
	"fmt"
	"os"

	"chrreload/process"
)

// LoadImage maps a raw module dump from disk so it can be scanned offline.
func LoadImage(path, name string, base process.ProcessMemoryAddress) (*ProcessBlob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image %s is empty", path)
	}

	b := NewProcessBlob(name, 0, base).MapModule(data)
	b.log.Infoln("Loaded image", path, "at", base.ToString(), process.ProcessMemorySize(len(data)).ToString())
	return b, nil
}
