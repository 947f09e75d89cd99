package entity

import (
	"cmp"
	"fmt"
	"math"
	"strings"
)

// Comparator is a total order over keys.
type Comparator func(a, b Key) int

// InvalidKeyTypeError reports a key whose runtime type cannot be ordered.
// Only strings and numbers are supported.
type InvalidKeyTypeError struct {
	Value any
}

func (e *InvalidKeyTypeError) Error() string {
	return fmt.Sprintf("entitydb: unsupported key type %T (%v)", e.Value, e.Value)
}

// ComparatorFor returns the comparator for the class of sample: lexicographic
// for strings, arithmetic for numbers. Keys of different classes order
// numbers before strings.
func ComparatorFor(sample Key) (Comparator, error) {
	switch k := sample.(type) {
	case string:
		return compareText, nil
	case int64:
		return compareNumeric, nil
	case float64:
		if !math.IsNaN(k) {
			return compareNumeric, nil
		}
	}
	return nil, &InvalidKeyTypeError{Value: sample}
}

func mustComparator(sample Key) Comparator {
	c, err := ComparatorFor(sample)
	if err != nil {
		panic(err)
	}
	return c
}

func compareText(a, b Key) int {
	if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	}
	return compareKeys(a, b)
}

func compareNumeric(a, b Key) int {
	if x, ok := a.(int64); ok {
		if y, ok := b.(int64); ok {
			return cmp.Compare(x, y)
		}
	}
	return compareKeys(a, b)
}

func compareKeys(a, b Key) int {
	ra, rb := keyClass(a), keyClass(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}

	if ra == textClass {
		return strings.Compare(a.(string), b.(string))
	}

	x, xi := a.(int64)
	y, yi := b.(int64)
	if xi && yi {
		return cmp.Compare(x, y)
	}
	return cmp.Compare(toFloat(a), toFloat(b))
}

const (
	numberClass = iota
	textClass
)

func keyClass(k Key) int {
	switch v := k.(type) {
	case int64:
		return numberClass
	case float64:
		if !math.IsNaN(v) {
			return numberClass
		}
	case string:
		return textClass
	}
	panic(&InvalidKeyTypeError{Value: k})
}

func toFloat(k Key) float64 {
	if i, ok := k.(int64); ok {
		return float64(i)
	}
	return k.(float64)
}

// checkKey panics with *InvalidKeyTypeError for unsupported keys. Unsupported
// values are rejected before they reach a map or a sort.
func checkKey(k Key) Key {
	keyClass(k)
	return k
}
