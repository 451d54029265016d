package pipeline

import "fmt"

// PartialPolicy decides what happens when some chunks fail synthesis.
type PartialPolicy string

const (
	// PartialDegrade continues with the successful segments.
	PartialDegrade PartialPolicy = "degrade"
	// PartialAbort fails the session on any chunk failure.
	PartialAbort PartialPolicy = "abort"
)

func ParsePartialPolicy(s string) (PartialPolicy, error) {
	switch PartialPolicy(s) {
	case "", PartialDegrade:
		return PartialDegrade, nil
	case PartialAbort:
		return PartialAbort, nil
	default:
		return "", fmt.Errorf("unknown partial policy %q (want degrade or abort)", s)
	}
}
