// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import "strconv"

// Page is one window over an already-fetched ordered sequence, along with
// the navigation facts a renderer needs.
type Page[T any] struct {
	// Items is the slice for this page; empty when Index is out of range.
	Items []T
	// Index is the zero-based page index the caller asked for.
	Index int
	// TotalPages is ceil(len/pageSize), with one empty page for an empty
	// input so renderers never divide by or underflow on zero.
	TotalPages int
	// HasPrev / HasNext report whether neighbouring pages exist.
	HasPrev bool
	HasNext bool
}

// Paginate slices items into the window [index*size, index*size+size).
// It is pure: the input is never mutated and the result aliases it.
//
// A size < 1 is coerced to 1, and a negative index to 0. Concatenating
// pages 0..TotalPages-1 reproduces the input exactly.
func Paginate[T any](items []T, index, size int) Page[T] {
	if size < 1 {
		size = 1
	}
	if index < 0 {
		index = 0
	}

	n := len(items)
	total := 1
	if n > 0 {
		total = (n-1)/size + 1
	}

	start := index * size
	if start > n {
		start = n
	}
	end := start + size
	if end > n {
		end = n
	}

	return Page[T]{
		Items:      items[start:end],
		Index:      index,
		TotalPages: total,
		HasPrev:    index > 0,
		HasNext:    index < total-1,
	}
}

// AtoiDefault converts a string to an int using strconv.Atoi.
// If the string is empty or cannot be parsed as an integer,
// it returns the provided default value instead.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
