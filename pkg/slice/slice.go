// Copyright (c) 2026 MLForge. All rights reserved.
// Author: platform@mlforge.dev

/*
Package slice compliments the standard [slices] package by providing functional
programming utilities (Map, Filter) and set-style helpers leveraging generics.
*/
package slice

// Map maps a slice of type T to a slice of type U using the provided transformation function.
func Map[T any, U any](input []T, transform func(T) U) []U {
	if input == nil {
		return nil
	}

	result := make([]U, len(input))
	for i, v := range input {
		result[i] = transform(v)
	}

	return result
}

// Filter filters a slice, returning only elements where the predicate function evaluates to true.
func Filter[T any](input []T, predicate func(T) bool) []T {
	if input == nil {
		return nil
	}

	// Not pre-allocating to full length to avoid excessive memory on heavy filters
	var result []T
	for _, v := range input {
		if predicate(v) {
			result = append(result, v)
		}
	}

	return result
}

// ToSet converts a slice into a membership set.
func ToSet[T comparable](input []T) map[T]struct{} {
	set := make(map[T]struct{}, len(input))
	for _, v := range input {
		set[v] = struct{}{}
	}
	return set
}

// Intersects reports whether any element of a is present in b.
func Intersects[T comparable](a []T, b []T) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}

	set := ToSet(b)
	for _, v := range a {
		if _, ok := set[v]; ok {
			return true
		}
	}

	return false
}
