package model

import (
	"bufio"
	"errors"
	"os"
	"strings"
)

// ReadLabels reads one label per line, in model output order. Blank lines
// are skipped.
func ReadLabels(path string) ([]string, error) {
	labelsFile, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer labelsFile.Close()

	var labels []string
	scanner := bufio.NewScanner(labelsFile)
	for scanner.Scan() {
		if label := strings.TrimSpace(scanner.Text()); label != "" {
			labels = append(labels, label)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, errors.New("no labels in " + path)
	}
	return labels, nil
}
