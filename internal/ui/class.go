package ui

import twmerge "github.com/Oudwins/tailwind-merge-go"

// Class merges tailwind class lists so later classes override conflicting
// earlier ones.
func Class(classes ...string) string {
	return twmerge.Merge(classes...)
}
