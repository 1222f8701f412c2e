package worker

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedDataSource is returned when a compound data source holds more than one underscore.
var ErrMalformedDataSource = errors.New("malformed data source")

// ProjectID derives the submission identity of one snapshot.
//
//	""               -> {type}:{namespace}
//	"source"         -> {type}:{source}:{namespace}
//	"primary_source" -> {type}:{primary}_{source}:{namespace}
func ProjectID(projectType, dataSource, namespace string) (string, error) {
	if dataSource == "" {
		return fmt.Sprintf("%s:%s", projectType, namespace), nil
	}
	parts := strings.Split(dataSource, "_")
	switch len(parts) {
	case 1:
		return fmt.Sprintf("%s:%s:%s", projectType, strings.ToLower(parts[0]), namespace), nil
	case 2:
		return fmt.Sprintf("%s:%s_%s:%s", projectType, strings.ToLower(parts[0]), strings.ToLower(parts[1]), namespace), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrMalformedDataSource, dataSource)
	}
}
