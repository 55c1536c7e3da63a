package commands

import (
	"fmt"
	"io"

	"github.com/channelize/channelize-go/pkg/log"
)

// RunFilter copies the events of path matching filter into a new capture
// file and returns how many were written.
func RunFilter(path, output string, filter log.Filter) (int, error) {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output file: %w", err)
	}

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Close()
			return count, fmt.Errorf("failed to read event: %w", err)
		}
		logger.Log(event)
		count++
	}

	if err := logger.Close(); err != nil {
		return count, err
	}
	if _, failed := logger.Stats(); failed > 0 {
		return count, fmt.Errorf("%d events could not be written", failed)
	}
	return count, nil
}
