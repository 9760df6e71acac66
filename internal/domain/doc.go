// Package domain contains the core entities of the synthesis system:
// candidate items awaiting inclusion in an article, the plan that fixes
// an article's structure before any section is written, and the section
// text produced for each planned position.
//
// Domain objects validate themselves but never touch storage or external
// services; those concerns live in the store and platform packages.
package domain
