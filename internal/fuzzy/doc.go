// Package fuzzy ranks candidate names by similarity to a query.
//
// Scores are in [0, 100]. 100 means the strings are equal after lowercasing
// and 0 means they share no characters. Two metrics are provided:
//
//   - Ratio: the gestalt (Ratcliff/Obershelp) ratio. Matching characters are
//     found by repeatedly taking the longest common substring and recursing
//     on the pieces to its left and right, as Python's difflib does without
//     its junk heuristics.
//   - IndelRatio: the normalized insertion/deletion similarity, where the
//     matching characters are the longest common subsequence.
//
// Both compute 100 * 2M / (len(a) + len(b)) and differ only in how M is
// counted. They agree on most short names.
package fuzzy
