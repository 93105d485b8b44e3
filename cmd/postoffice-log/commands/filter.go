package commands

import (
	"fmt"

	"github.com/zhycit/postoffice-go/pkg/log"
)

// RunFilter copies the events in path that match sel to output and
// returns how many were written.
func RunFilter(path, output string, sel Selection) (int, error) {
	if output == "" {
		return 0, fmt.Errorf("output file required")
	}
	filter, err := sel.Filter()
	if err != nil {
		return 0, err
	}
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output logger: %w", err)
	}

	count := 0
	err = each(reader, func(e log.Event) error {
		logger.Log(e)
		count++
		return nil
	})
	if cerr := logger.Close(); err == nil {
		err = cerr
	}
	if err == nil && logger.Dropped() > 0 {
		err = fmt.Errorf("%d events could not be written", logger.Dropped())
	}
	return count, err
}
